package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/tydom2mqtt/internal/bus"
	"github.com/nerrad567/tydom2mqtt/internal/cover"
	"github.com/nerrad567/tydom2mqtt/internal/tydom"
)

// Bridge operation constants.
const (
	defaultQueueSize       = 100
	defaultMutationTimeout = 10 * time.Second
	auditTimeout           = 5 * time.Second

	// Command sources recorded in metrics and the audit log.
	SourceBus = "mqtt"
	SourceAPI = "api"

	sourceSnapshot = "snapshot"
	sourceEvent    = "event"

	queueHubEvents   = "hub_events"
	queueBusMessages = "bus_messages"
	queueMutations   = "hub_mutations"
)

// Hub is the hub-side capability. *tydom.Gateway implements it.
type Hub interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	SetPosition(ctx context.Context, id cover.DeviceID, name string, value any) error
	GetInfo(ctx context.Context, id cover.DeviceID) (tydom.Endpoint, error)
	GetAllInfo(ctx context.Context) ([]tydom.DeviceData, error)
	CoverPositions(ctx context.Context) ([]tydom.CoverPosition, error)
	SubscribeChanges(handler func(tydom.ChangeEvent))
}

// Bus is the MQTT-side capability. *bus.Gateway implements it.
type Bus interface {
	Listen(onCommand bus.CommandHandler, onPositionSet bus.PositionHandler) error
	PublishPosition(name cover.Name, pos cover.Position) error
	PublishDiscovery(names []cover.Name)
	IsConnected() bool
	Close() error
}

// PositionRecorder stores published positions for history. Optional.
type PositionRecorder interface {
	RecordPosition(name cover.Name, pos cover.Position, source string)
}

// CommandRecord describes one hub mutation for the audit log.
type CommandRecord struct {
	Cover    cover.Name
	DeviceID cover.DeviceID
	Source   string
	Action   string
	Position cover.Position
	Err      error
}

// CommandAuditor stores issued mutations. Optional.
type CommandAuditor interface {
	RecordCommand(ctx context.Context, rec CommandRecord) error
}

// Metrics receives bridge counters. Optional.
type Metrics interface {
	EventReceived()
	PositionPublished(name cover.Name, pos cover.Position)
	CommandReceived(source, kind string)
	MutationFailed(source string)
	UnknownDevice()
	QueueDropped(queue string)
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopMetrics struct{}

func (noopMetrics) EventReceived()                               {}
func (noopMetrics) PositionPublished(cover.Name, cover.Position) {}
func (noopMetrics) CommandReceived(string, string)               {}
func (noopMetrics) MutationFailed(string)                        {}
func (noopMetrics) UnknownDevice()                               {}
func (noopMetrics) QueueDropped(string)                          {}

// Options holds the collaborators and settings of a bridge.
type Options struct {
	// Registry, Hub and Bus are required.
	Registry *cover.Registry
	Hub      Hub
	Bus      Bus

	// Health publishes the periodic health document. Optional.
	Health         HealthPublisher
	HealthTopic    string
	HealthInterval time.Duration
	Version        string

	// QueueSize bounds each queue. Default: 100.
	QueueSize int

	// MutationTimeout bounds hub writes issued from bus messages.
	MutationTimeout time.Duration

	Recorder PositionRecorder
	Auditor  CommandAuditor
	Metrics  Metrics
	Logger   Logger
}

// busMessage is a decoded command or position-set request.
type busMessage struct {
	name     cover.Name
	command  cover.Command
	position cover.Position
	isSet    bool
}

// mutation is a resolved hub write waiting its turn.
type mutation struct {
	name   cover.Name
	id     cover.DeviceID
	pos    cover.Position
	action string
}

// Bridge keeps cover positions in sync between the hub and the bus.
//
// Hub pushes and bus messages each feed their own bounded queue with a
// single consumer, so messages from one source are handled in order. Hub
// writes decoded from bus messages go through a third queue, so they reach
// the hub in bus order while a slow write never holds up bus delivery.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	registry *cover.Registry
	hub      Hub
	bus      Bus
	health   *HealthReporter
	recorder PositionRecorder
	auditor  CommandAuditor
	metrics  Metrics
	logger   Logger

	mutationTimeout time.Duration

	events    *queue[tydom.ChangeEvent]
	messages  *queue[busMessage]
	mutations *queue[mutation]

	positionState atomic.Int32
	commandState  atomic.Int32
	started       atomic.Bool
	startTime     time.Time

	eventsReceived     atomic.Uint64
	positionsPublished atomic.Uint64
	commandsReceived   atomic.Uint64
	mutationsFailed    atomic.Uint64
	unknownDevices     atomic.Uint64

	// Shutdown coordination
	ctx      context.Context
	cancel   context.CancelFunc
	workers  sync.WaitGroup
	stopOnce sync.Once
}

// NewBridge creates a bridge. Call Start to begin operation.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("%w: registry", ErrMissingDependency)
	}
	if opts.Hub == nil {
		return nil, fmt.Errorf("%w: hub gateway", ErrMissingDependency)
	}
	if opts.Bus == nil {
		return nil, fmt.Errorf("%w: bus gateway", ErrMissingDependency)
	}

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	mutationTimeout := opts.MutationTimeout
	if mutationTimeout <= 0 {
		mutationTimeout = defaultMutationTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		registry:        opts.Registry,
		hub:             opts.Hub,
		bus:             opts.Bus,
		recorder:        opts.Recorder,
		auditor:         opts.Auditor,
		metrics:         opts.Metrics,
		logger:          opts.Logger,
		mutationTimeout: mutationTimeout,
		startTime:       time.Now(),
		ctx:             ctx,
		cancel:          cancel,
	}
	if b.metrics == nil {
		b.metrics = noopMetrics{}
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}

	b.events = newQueue(queueHubEvents, queueSize, b.handleEvent, b.recoverPanic)
	b.messages = newQueue(queueBusMessages, queueSize, b.handleBusMessage, b.recoverPanic)
	b.mutations = newQueue(queueMutations, queueSize, b.applyMutation, b.recoverPanic)

	if opts.Health != nil {
		b.health = NewHealthReporter(HealthReporterConfig{
			Topic:     opts.HealthTopic,
			Version:   opts.Version,
			Interval:  opts.HealthInterval,
			Publisher: opts.Health,
			Source:    b.Status,
			Logger:    b.logger,
		})
	}

	return b, nil
}

// Start brings both paths up.
//
// The position path runs first and sequentially: connect the hub, register
// the change handler, then read the whole fleet once and publish every
// cover position. Only then is the command path subscribed and discovery
// sent. Any failure here is returned and the bridge should not be used.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if b.health != nil {
		if err := b.health.PublishStarting(); err != nil {
			b.logger.Warn("failed to publish starting status", "error", err)
		}
	}

	b.workers.Add(3)
	go func() {
		defer b.workers.Done()
		b.events.run(b.ctx)
	}()
	go func() {
		defer b.workers.Done()
		b.messages.run(b.ctx)
	}()
	go func() {
		defer b.workers.Done()
		b.mutations.run(b.ctx)
	}()

	b.positionState.Store(int32(PositionListenerStarting))
	if err := b.hub.Connect(ctx); err != nil {
		return err
	}
	b.hub.SubscribeChanges(b.enqueueEvent)

	if err := b.reconcile(ctx); err != nil {
		return err
	}
	b.positionState.Store(int32(PositionSynchronized))

	if err := b.bus.Listen(b.enqueueCommand, b.enqueuePositionSet); err != nil {
		return fmt.Errorf("starting command listener: %w", err)
	}
	b.commandState.Store(int32(CommandListenerActive))
	b.bus.PublishDiscovery(b.registry.Names())

	if b.health != nil {
		b.health.Start(b.ctx)
	}

	b.logger.Info("bridge started", "covers", b.registry.Len())
	return nil
}

// Stop shuts the bridge down. The hub write in progress is cancelled and
// awaited; queued writes are discarded. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.cancel()

		if b.health != nil {
			b.health.Stop()
		}

		b.workers.Wait()

		if CommandState(b.commandState.Load()) == CommandListenerActive {
			if err := b.bus.Close(); err != nil {
				b.logger.Warn("closing bus gateway", "error", err)
			}
		}

		b.logger.Info("bridge stopped")
	})
}

// reconcile publishes the current position of every known cover.
func (b *Bridge) reconcile(ctx context.Context) error {
	devices, err := b.hub.GetAllInfo(ctx)
	if err != nil {
		return fmt.Errorf("reading initial positions: %w", err)
	}

	published := b.publishDevices(devices, sourceSnapshot)
	b.logger.Info("initial positions published", "devices", len(devices), "published", published)
	return nil
}

// =============================================================================
// Hub -> bus
// =============================================================================

func (b *Bridge) enqueueEvent(ev tydom.ChangeEvent) {
	if !b.events.push(ev) {
		b.metrics.QueueDropped(queueHubEvents)
		b.logger.Warn("hub event queue full, dropping event", "uri", ev.URI)
	}
}

func (b *Bridge) handleEvent(ev tydom.ChangeEvent) {
	b.eventsReceived.Add(1)
	b.metrics.EventReceived()
	b.publishDevices(ev.Body, sourceEvent)
}

// publishDevices publishes one position per endpoint that carries one.
// A failure on one endpoint never stops the others.
func (b *Bridge) publishDevices(devices []tydom.DeviceData, source string) int {
	published := 0
	for _, d := range devices {
		for _, ep := range d.Endpoints {
			pos, ok := tydom.PositionOf(ep)
			if !ok {
				continue
			}

			name, err := b.registry.Resolve(string(ep.ID))
			if err != nil {
				b.unknownDevices.Add(1)
				b.metrics.UnknownDevice()
				if source == sourceSnapshot {
					b.logger.Debug("skipping unmapped device", "device_id", ep.ID)
				} else {
					b.logger.Warn("skipping unmapped device", "device_id", ep.ID, "error", err)
				}
				continue
			}

			if err := b.bus.PublishPosition(name, pos); err != nil {
				b.logger.Warn("position publish failed", "cover", name, "position", pos, "error", err)
				continue
			}

			published++
			b.positionsPublished.Add(1)
			b.metrics.PositionPublished(name, pos)
			if b.recorder != nil {
				b.recorder.RecordPosition(name, pos, source)
			}
			b.logger.Debug("position published", "cover", name, "position", pos, "source", source)
		}
	}
	return published
}

// =============================================================================
// Bus -> hub
// =============================================================================

func (b *Bridge) enqueueCommand(name cover.Name, cmd cover.Command) {
	b.enqueueMessage(busMessage{name: name, command: cmd})
}

func (b *Bridge) enqueuePositionSet(name cover.Name, pos cover.Position) {
	b.enqueueMessage(busMessage{name: name, position: pos, isSet: true})
}

func (b *Bridge) enqueueMessage(msg busMessage) {
	if !b.messages.push(msg) {
		b.metrics.QueueDropped(queueBusMessages)
		b.logger.Warn("bus message queue full, dropping message", "cover", msg.name)
	}
}

func (b *Bridge) handleBusMessage(msg busMessage) {
	b.commandsReceived.Add(1)

	if msg.isSet {
		b.metrics.CommandReceived(SourceBus, "position")
		b.issue(msg.name, msg.position, "position")
		return
	}

	b.metrics.CommandReceived(SourceBus, "command")
	target, ok := msg.command.Target()
	if !ok {
		b.logger.Debug("ignoring command", "cover", msg.name, "command", msg.command)
		return
	}
	b.issue(msg.name, target, string(msg.command))
}

// issue queues a hub write behind the ones already issued from the bus.
func (b *Bridge) issue(name cover.Name, pos cover.Position, action string) {
	id, err := b.registry.NameToID(name)
	if err != nil {
		b.unknownDevices.Add(1)
		b.metrics.UnknownDevice()
		b.logger.Warn("ignoring request for unknown cover", "cover", name, "action", action)
		return
	}

	if !b.mutations.push(mutation{name: name, id: id, pos: pos, action: action}) {
		b.metrics.QueueDropped(queueMutations)
		b.logger.Warn("hub write queue full, dropping request", "cover", name, "action", action)
	}
}

// applyMutation performs one queued write and waits for the hub's answer
// before the next one starts.
func (b *Bridge) applyMutation(m mutation) {
	ctx, cancel := context.WithTimeout(b.ctx, b.mutationTimeout)
	defer cancel()

	err := b.hub.SetPosition(ctx, m.id, tydom.DataPointPosition, int(m.pos))
	b.audit(CommandRecord{Cover: m.name, DeviceID: m.id, Source: SourceBus, Action: m.action, Position: m.pos, Err: err})
	b.logMutation(m.name, m.pos, SourceBus, err)
}

func (b *Bridge) logMutation(name cover.Name, pos cover.Position, source string, err error) {
	switch {
	case err == nil:
		b.logger.Info("cover position requested", "cover", name, "position", pos, "source", source)
	case errors.Is(err, tydom.ErrNotConnected):
		b.logger.Debug("hub not connected, request dropped", "cover", name, "position", pos, "source", source)
	default:
		b.mutationsFailed.Add(1)
		b.metrics.MutationFailed(source)
		b.logger.Warn("cover position request failed", "cover", name, "position", pos, "source", source, "error", err)
	}
}

func (b *Bridge) audit(rec CommandRecord) {
	if b.auditor == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if err := b.auditor.RecordCommand(ctx, rec); err != nil {
		b.logger.Warn("audit record failed", "cover", rec.Cover, "error", err)
	}
}

func (b *Bridge) recoverPanic(queue string, r any) {
	b.logger.Error("panic while handling message", "queue", queue, "panic", r)
}

// =============================================================================
// Status
// =============================================================================

// State returns the lifecycle of both paths.
func (b *Bridge) State() State {
	return State{
		Position: PositionState(b.positionState.Load()),
		Command:  CommandState(b.commandState.Load()),
	}
}

// Statistics holds bridge counters.
type Statistics struct {
	EventsReceived     uint64 `json:"events_received"`
	PositionsPublished uint64 `json:"positions_published"`
	CommandsReceived   uint64 `json:"commands_received"`
	MutationsFailed    uint64 `json:"mutations_failed"`
	UnknownDevices     uint64 `json:"unknown_devices"`
	EventsDropped      uint64 `json:"events_dropped"`
	MessagesDropped    uint64 `json:"messages_dropped"`
	MutationsDropped   uint64 `json:"mutations_dropped"`
}

// Status is a point-in-time view of the bridge.
type Status struct {
	State           State         `json:"state"`
	HubConnected    bool          `json:"hub_connected"`
	BusConnected    bool          `json:"bus_connected"`
	Covers          int           `json:"covers"`
	Uptime          time.Duration `json:"-"`
	Statistics      Statistics    `json:"statistics"`
	EventsQueued    int           `json:"events_queued"`
	MessagesQueued  int           `json:"messages_queued"`
	MutationsQueued int           `json:"mutations_queued"`
}

// Status returns the current bridge status.
func (b *Bridge) Status() Status {
	return Status{
		State:        b.State(),
		HubConnected: b.hub.IsConnected(),
		BusConnected: b.bus.IsConnected(),
		Covers:       b.registry.Len(),
		Uptime:       time.Since(b.startTime),
		Statistics: Statistics{
			EventsReceived:     b.eventsReceived.Load(),
			PositionsPublished: b.positionsPublished.Load(),
			CommandsReceived:   b.commandsReceived.Load(),
			MutationsFailed:    b.mutationsFailed.Load(),
			UnknownDevices:     b.unknownDevices.Load(),
			EventsDropped:      b.events.dropped.Load(),
			MessagesDropped:    b.messages.dropped.Load(),
			MutationsDropped:   b.mutations.dropped.Load(),
		},
		EventsQueued:    b.events.len(),
		MessagesQueued:  b.messages.len(),
		MutationsQueued: b.mutations.len(),
	}
}
