package bus

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/tydom2mqtt/internal/cover"
	"github.com/nerrad567/tydom2mqtt/internal/infrastructure/mqtt"
)

// Client is the MQTT capability the gateway needs. *mqtt.Client
// implements it.
type Client interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Logger defines the logging interface used by the gateway.
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

// Topics holds the raw topic patterns.
type Topics struct {
	Command     string
	PositionSet string
	Position    string
}

// Options configures a Gateway.
type Options struct {
	// QoS is used for subscriptions and position publications.
	QoS byte

	// DiscoveryPrefix enables discovery documents when non-empty.
	DiscoveryPrefix string

	// StatusTopic is advertised as the availability topic in discovery.
	StatusTopic string

	Logger Logger
}

// CommandHandler receives a command payload addressed to a cover.
type CommandHandler func(name cover.Name, cmd cover.Command)

// PositionHandler receives a decoded position-set request.
type PositionHandler func(name cover.Name, pos cover.Position)

// Gateway routes cover topics to handlers and publishes cover state.
type Gateway struct {
	client Client

	command     Pattern
	positionSet Pattern
	position    Pattern

	qos             byte
	discoveryPrefix string
	statusTopic     string
	logger          Logger

	// discovery tracks in-flight discovery publications.
	discovery     sync.WaitGroup
	discoverySent atomic.Bool
}

// NewGateway compiles the topic patterns. Identical command and
// position-set patterns, or a position pattern equal to the position-set
// pattern, are rejected with ErrConfiguration.
func NewGateway(client Client, topics Topics, opts Options) (*Gateway, error) {
	command, err := CompilePattern(topics.Command)
	if err != nil {
		return nil, fmt.Errorf("command topic: %w", err)
	}
	positionSet, err := CompilePattern(topics.PositionSet)
	if err != nil {
		return nil, fmt.Errorf("position-set topic: %w", err)
	}
	position, err := CompilePattern(topics.Position)
	if err != nil {
		return nil, fmt.Errorf("position topic: %w", err)
	}

	if command.String() == positionSet.String() {
		return nil, fmt.Errorf("%w: command and position-set topics are both %q", ErrConfiguration, command)
	}
	if position.String() == positionSet.String() {
		return nil, fmt.Errorf("%w: position and position-set topics are both %q", ErrConfiguration, position)
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Gateway{
		client:          client,
		command:         command,
		positionSet:     positionSet,
		position:        position,
		qos:             opts.QoS,
		discoveryPrefix: opts.DiscoveryPrefix,
		statusTopic:     opts.StatusTopic,
		logger:          logger,
	}, nil
}

// Listen subscribes the command and position-set topics. Handlers run on
// the MQTT client's delivery goroutine and should return quickly.
func (g *Gateway) Listen(onCommand CommandHandler, onPositionSet PositionHandler) error {
	handler := func(topic string, payload []byte) error {
		g.route(topic, payload, onCommand, onPositionSet)
		return nil
	}

	if err := g.client.Subscribe(g.command.String(), g.qos, handler); err != nil {
		return fmt.Errorf("subscribing %s: %w", g.command, err)
	}
	if err := g.client.Subscribe(g.positionSet.String(), g.qos, handler); err != nil {
		return fmt.Errorf("subscribing %s: %w", g.positionSet, err)
	}

	g.logger.Info("listening for cover commands",
		"command_topic", g.command.String(),
		"position_set_topic", g.positionSet.String(),
	)
	return nil
}

// Close unsubscribes both topics and waits for pending discovery
// publications.
func (g *Gateway) Close() error {
	var errs []string
	for _, p := range []Pattern{g.command, g.positionSet} {
		if err := g.client.Unsubscribe(p.String()); err != nil {
			errs = append(errs, err.Error())
		}
	}
	g.discovery.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("unsubscribing: %s", strings.Join(errs, "; "))
	}
	return nil
}

// route dispatches one message. The command pattern is tried first.
func (g *Gateway) route(topic string, payload []byte, onCommand CommandHandler, onPositionSet PositionHandler) {
	if name, ok := g.command.Match(topic); ok {
		if onCommand != nil {
			onCommand(name, cover.Command(strings.TrimSpace(string(payload))))
		}
		return
	}

	if name, ok := g.positionSet.Match(topic); ok {
		pos, err := ParsePosition(payload)
		if err != nil {
			g.logger.Warn("ignoring position request", "cover", name, "topic", topic, "error", err)
			return
		}
		if onPositionSet != nil {
			onPositionSet(name, pos)
		}
		return
	}

	g.logger.Debug("ignoring message on unrelated topic", "topic", topic)
}

// ParsePosition decodes a decimal integer payload. Values are not clamped.
func ParsePosition(payload []byte) (cover.Position, error) {
	s := strings.TrimSpace(string(payload))
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrMalformedPayload, s)
	}
	return cover.Position(n), nil
}

// PublishPosition publishes one position, not retained.
func (g *Gateway) PublishPosition(name cover.Name, pos cover.Position) error {
	topic := g.position.Expand(name)
	if err := g.client.Publish(topic, []byte(strconv.Itoa(int(pos))), g.qos, false); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublish, topic, err)
	}
	return nil
}

// IsConnected reports whether the MQTT session is up.
func (g *Gateway) IsConnected() bool {
	return g.client.IsConnected()
}

// PositionTopic returns the concrete position topic for a cover.
func (g *Gateway) PositionTopic(name cover.Name) string {
	return g.position.Expand(name)
}
