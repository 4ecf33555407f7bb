// tydom2mqtt bridges the roller-shutter covers of a Delta Dore Tydom hub to
// an MQTT broker.
//
// Hub position changes are published on per-cover MQTT topics, and MQTT
// commands are turned into hub writes. An optional HTTP API reads and sets
// positions directly.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/tydom2mqtt/internal/api"
	"github.com/nerrad567/tydom2mqtt/internal/audit"
	"github.com/nerrad567/tydom2mqtt/internal/bridge"
	"github.com/nerrad567/tydom2mqtt/internal/bus"
	"github.com/nerrad567/tydom2mqtt/internal/cover"
	"github.com/nerrad567/tydom2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/tydom2mqtt/internal/infrastructure/database"
	"github.com/nerrad567/tydom2mqtt/internal/infrastructure/influxdb"
	"github.com/nerrad567/tydom2mqtt/internal/infrastructure/logging"
	"github.com/nerrad567/tydom2mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/tydom2mqtt/internal/metrics"
	"github.com/nerrad567/tydom2mqtt/internal/tydom"
	"github.com/nerrad567/tydom2mqtt/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled. Deferred
// closers run in reverse order of construction.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting tydom2mqtt",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // nothing left to report to
	log.Info("configuration loaded",
		"path", configPath,
		"covers", len(cfg.Covers),
		"level", cfg.Logging.Level,
	)

	registry, err := buildRegistry(cfg.Covers)
	if err != nil {
		return fmt.Errorf("building cover registry: %w", err)
	}

	collectors := metrics.New()
	checks := make(map[string]api.HealthChecker)

	auditor, closeDB, err := openAuditLog(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDB()
	if auditor != nil {
		checks["database"] = auditor
	}

	recorder, closeInflux, err := openPositionHistory(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeInflux()
	if recorder != nil {
		checks["influxdb"] = recorder
	}

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.With("component", "mqtt"))
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	checks["mqtt"] = mqttClient
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	hubClient := tydom.NewClient(cfg.Hub)
	hubClient.SetLogger(log.With("component", "tydom"))
	defer func() {
		log.Info("closing hub session")
		if closeErr := hubClient.Close(); closeErr != nil {
			log.Error("error closing hub session", "error", closeErr)
		}
	}()
	hub := tydom.NewGateway(hubClient, tydom.GatewayOptions{Logger: log.With("component", "tydom")})
	checks["hub"] = hubClient

	busGateway, err := bus.NewGateway(mqttClient, bus.Topics{
		Command:     cfg.MQTT.Topics.Command,
		PositionSet: cfg.MQTT.Topics.PositionSet,
		Position:    cfg.MQTT.Topics.Position,
	}, bus.Options{
		QoS:             byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0..2
		DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
		StatusTopic:     mqttClient.StatusTopic(),
		Logger:          log.With("component", "bus"),
	})
	if err != nil {
		return fmt.Errorf("creating bus gateway: %w", err)
	}

	opts := bridge.Options{
		Registry:       registry,
		Hub:            hub,
		Bus:            busGateway,
		Health:         mqttClient,
		HealthTopic:    mqttClient.StatusTopic() + "/health",
		HealthInterval: cfg.Bridge.HealthInterval,
		Version:        version,
		QueueSize:      cfg.Bridge.MessageQueueSize,
		Metrics:        collectors,
		Logger:         log.With("component", "bridge"),
	}
	if auditor != nil {
		opts.Auditor = auditor
	}
	if recorder != nil {
		opts.Recorder = recorder
	}
	coverBridge, err := bridge.NewBridge(opts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	registerConnectionMetrics(collectors, hubClient, hub, mqttClient)

	if err := coverBridge.Start(ctx); err != nil {
		coverBridge.Stop()
		return fmt.Errorf("starting bridge: %w", err)
	}
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})

	var server *api.Server
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:  cfg.API,
			Logger:  log.With("component", "api"),
			Covers:  coverBridge,
			Metrics: collectors,
			Checks:  checks,
			Version: version,
		}
		if auditor != nil {
			deps.Audit = auditor
		}
		server, err = api.New(deps)
		if err != nil {
			coverBridge.Stop()
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := server.Start(ctx); err != nil {
			coverBridge.Stop()
			return fmt.Errorf("starting API server: %w", err)
		}
	} else {
		log.Info("API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// The API and the bridge drain independently.
	var g errgroup.Group
	if server != nil {
		g.Go(server.Close)
	}
	g.Go(func() error {
		coverBridge.Stop()
		return nil
	})
	err = g.Wait()

	log.Info("tydom2mqtt stopped")
	return err
}

// getConfigPath returns the configuration file path.
// Uses TYDOM2MQTT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TYDOM2MQTT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func buildRegistry(covers []config.CoverConfig) (*cover.Registry, error) {
	mappings := make([]cover.Mapping, 0, len(covers))
	for _, c := range covers {
		mappings = append(mappings, cover.Mapping{ID: cover.NormalizeID(c.ID), Name: cover.Name(c.Name)})
	}
	return cover.NewRegistry(mappings)
}

// auditLog is the SQLite-backed command auditor and its health check.
type auditLog struct {
	*audit.SQLiteRepository
	db *database.DB
}

func (a *auditLog) HealthCheck(ctx context.Context) error { return a.db.HealthCheck(ctx) }

// openAuditLog opens and migrates the audit database when enabled. The
// returned closer is always safe to call.
func openAuditLog(ctx context.Context, cfg *config.Config, log *logging.Logger) (*auditLog, func(), error) {
	if !cfg.Database.Enabled {
		log.Info("audit log disabled")
		return nil, func() {}, nil
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	closer := func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		closer()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("audit log ready", "path", cfg.Database.Path)

	return &auditLog{SQLiteRepository: audit.NewSQLiteRepository(db.DB), db: db}, closer, nil
}

// openPositionHistory connects to InfluxDB when enabled.
func openPositionHistory(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, func(), error) {
	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}

	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)

	return client, func() {
		log.Info("closing InfluxDB connection")
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing InfluxDB", "error", closeErr)
		}
	}, nil
}

// registerConnectionMetrics exposes connection state owned by the clients.
func registerConnectionMetrics(c *metrics.Collectors, hubClient *tydom.Client, hub *tydom.Gateway, mqttClient *mqtt.Client) {
	c.Gauge("hub_connected", "Whether the hub session is up.", metrics.BoolGauge(hubClient.IsConnected))
	c.Gauge("mqtt_connected", "Whether the MQTT connection is up.", metrics.BoolGauge(mqttClient.IsConnected))
	c.CounterFunc("hub_reconnects_total", "Hub session reconnects.", func() float64 {
		return float64(hubClient.Stats().ReconnectsTotal)
	})
	c.CounterFunc("hub_requests_total", "Requests sent to the hub.", func() float64 {
		return float64(hubClient.Stats().RequestsTx)
	})
	c.CounterFunc("hub_errors_total", "Failed hub requests.", func() float64 {
		return float64(hubClient.Stats().ErrorsTotal)
	})
	c.CounterFunc("hub_pushes_dropped_total", "Hub pushes dropped because the push queue was full.", func() float64 {
		return float64(hubClient.Stats().PushesDropped)
	})
	c.CounterFunc("hub_pushes_filtered_total", "Hub pushes that were not device-data updates.", func() float64 {
		return float64(hub.FilteredCount())
	})
}
