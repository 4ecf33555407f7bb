package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/tydom2mqtt/internal/cover"
)

const namespace = "tydom2mqtt"

// Collectors holds every bridge metric. It implements bridge.Metrics.
type Collectors struct {
	registry *prometheus.Registry

	eventsReceived     prometheus.Counter
	positionsPublished *prometheus.CounterVec
	coverPosition      *prometheus.GaugeVec
	commandsReceived   *prometheus.CounterVec
	mutationsFailed    *prometheus.CounterVec
	unknownDevices     prometheus.Counter
	queueDropped       *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
}

// New creates the collectors and registers them in a fresh registry.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		eventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_events_received_total",
			Help:      "Device-data change events received from the hub.",
		}),
		positionsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_published_total",
			Help:      "Cover positions published to MQTT.",
		}, []string{"cover"}),
		coverPosition: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cover_position",
			Help:      "Last published cover position (0 closed, 100 open).",
		}, []string{"cover"}),
		commandsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_received_total",
			Help:      "Cover commands received, by source and kind.",
		}, []string{"source", "kind"}),
		mutationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_mutations_failed_total",
			Help:      "Hub writes that failed, by command source.",
		}, []string{"source"}),
		unknownDevices: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_devices_total",
			Help:      "Events or commands naming a device missing from the registry.",
		}),
		queueDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_dropped_total",
			Help:      "Items dropped because a delivery queue was full.",
		}, []string{"queue"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route, method and status.",
		}, []string{"route", "method", "status"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.eventsReceived,
		c.positionsPublished,
		c.coverPosition,
		c.commandsReceived,
		c.mutationsFailed,
		c.unknownDevices,
		c.queueDropped,
		c.httpRequests,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collectors) EventReceived() { c.eventsReceived.Inc() }
func (c *Collectors) UnknownDevice() { c.unknownDevices.Inc() }

func (c *Collectors) PositionPublished(name cover.Name, pos cover.Position) {
	c.positionsPublished.WithLabelValues(name.String()).Inc()
	c.coverPosition.WithLabelValues(name.String()).Set(float64(pos))
}

func (c *Collectors) CommandReceived(source, kind string) {
	c.commandsReceived.WithLabelValues(source, kind).Inc()
}

func (c *Collectors) MutationFailed(source string) {
	c.mutationsFailed.WithLabelValues(source).Inc()
}

func (c *Collectors) QueueDropped(queue string) {
	c.queueDropped.WithLabelValues(queue).Inc()
}

// ObserveRequest counts one API request.
func (c *Collectors) ObserveRequest(route, method string, status int) {
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}

// Gauge registers a gauge whose value is read from fn at scrape time.
// Used for connection state owned by other packages.
func (c *Collectors) Gauge(name, help string, fn func() float64) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// CounterFunc registers a counter whose value is read from fn at scrape time.
func (c *Collectors) CounterFunc(name, help string, fn func() float64) {
	c.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// BoolGauge converts a connection check into a 0/1 gauge function.
func BoolGauge(check func() bool) func() float64 {
	return func() float64 {
		if check() {
			return 1
		}
		return 0
	}
}
