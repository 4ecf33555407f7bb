package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const (
	defaultHealthInterval = 30 * time.Second
	healthBridgeName      = "tydom2mqtt"
)

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthMessage is the retained health document.
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	HubConnected  bool         `json:"hub_connected"`
	BusConnected  bool         `json:"bus_connected"`
	PositionPath  string       `json:"position_path"`
	CommandPath   string       `json:"command_path"`
	Covers        int          `json:"covers"`
	Statistics    Statistics   `json:"statistics"`
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Topic receives the health document.
	Topic string

	Version string

	// Interval is how often to publish. Default: 30 seconds.
	Interval time.Duration

	Publisher HealthPublisher

	// Source provides the bridge status for each report.
	Source func() Status

	Logger Logger
}

// HealthReporter publishes the bridge health at regular intervals.
type HealthReporter struct {
	topic     string
	version   string
	interval  time.Duration
	publisher HealthPublisher
	source    func() Status
	logger    Logger

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter creates a health reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &HealthReporter{
		topic:     cfg.Topic,
		version:   cfg.Version,
		interval:  interval,
		publisher: cfg.Publisher,
		source:    cfg.Source,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting until ctx ends or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // best-effort during shutdown
		h.publish(HealthStopping, "")
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publish(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logger.Warn("failed to publish initial health", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logger.Warn("failed to publish health", "error", err)
			}
		}
	}
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.source == nil {
		return HealthHealthy, ""
	}

	st := h.source()
	switch {
	case !st.HubConnected:
		return HealthDegraded, "hub disconnected"
	case !st.State.Ready():
		return HealthStarting, ""
	default:
		return HealthHealthy, ""
	}
}

func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	if h.publisher == nil || h.topic == "" {
		return nil
	}

	msg := HealthMessage{
		Bridge:    healthBridgeName,
		Timestamp: time.Now().UTC(),
		Status:    status,
		Reason:    reason,
		Version:   h.version,
	}
	if h.source != nil {
		st := h.source()
		msg.UptimeSeconds = int64(st.Uptime.Seconds())
		msg.HubConnected = st.HubConnected
		msg.BusConnected = st.BusConnected
		msg.PositionPath = st.State.Position.String()
		msg.CommandPath = st.State.Command.String()
		msg.Covers = st.Covers
		msg.Statistics = st.Statistics
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topic, payload, 1, true)
}
