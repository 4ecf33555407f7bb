package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for tydom2mqtt.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Hub      HubConfig      `yaml:"hub"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Covers   []CoverConfig  `yaml:"covers"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// HubConfig contains the Tydom hub session settings.
type HubConfig struct {
	// MAC is the hub's MAC address, used as the digest username.
	MAC      string `yaml:"mac"`
	Password string `yaml:"password"`

	// Host is the local hub address, or mediation.tydom.com for remote access.
	Host string `yaml:"host"`

	// Remote forces the cloud mediation framing. It is implied when Host
	// is the mediation server.
	Remote bool `yaml:"remote"`

	// InsecureSkipVerify disables certificate checks. Local hubs present
	// a self-signed certificate.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	RequestTimeout    time.Duration      `yaml:"request_timeout"`
	KeepAliveInterval time.Duration      `yaml:"keepalive_interval"`
	EventQueueSize    int                `yaml:"event_queue_size"`
	Reconnect         HubReconnectConfig `yaml:"reconnect"`
	Breaker           HubBreakerConfig   `yaml:"breaker"`
}

// HubReconnectConfig bounds the exponential reconnect backoff.
type HubReconnectConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// HubBreakerConfig configures the circuit breaker around hub requests.
type HubBreakerConfig struct {
	Failures    int           `yaml:"failures"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Topics    TopicsConfig        `yaml:"topics"`

	// DiscoveryPrefix enables Home Assistant discovery when non-empty.
	DiscoveryPrefix string `yaml:"discovery_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// TopicsConfig holds the cover topic patterns. Each pattern carries a
// single "+" segment standing for the cover name.
type TopicsConfig struct {
	Command     string `yaml:"command"`
	PositionSet string `yaml:"position_set"`
	Position    string `yaml:"position"`

	// Status is the bridge availability topic (LWT).
	Status string `yaml:"status"`
}

// CoverConfig maps one hub device to its logical cover name.
// The tydomId/localId keys are accepted for older configuration files.
type CoverConfig struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	TydomID string `yaml:"tydomId,omitempty"`
	LocalID string `yaml:"localId,omitempty"`
}

// BridgeConfig contains cover bridge settings.
type BridgeConfig struct {
	MessageQueueSize int           `yaml:"message_queue_size"`
	HealthInterval   time.Duration `yaml:"health_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// InfluxDBConfig contains InfluxDB connection settings for position history.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DatabaseConfig contains SQLite settings for the command audit log.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. A .env file in the working directory, if present
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern TYDOM2MQTT_SECTION_KEY, for
// example TYDOM2MQTT_HUB_PASSWORD. The TB_* names used by earlier releases
// are honoured as well.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	cfg.normalizeCovers()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads variables from an optional dotenv file. Variables already
// present in the environment win.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Hub: HubConfig{
			InsecureSkipVerify: true,
			RequestTimeout:     10 * time.Second,
			KeepAliveInterval:  60 * time.Second,
			EventQueueSize:     100,
			Reconnect: HubReconnectConfig{
				InitialInterval: time.Second,
				MaxInterval:     60 * time.Second,
			},
			Breaker: HubBreakerConfig{
				Failures:    5,
				OpenTimeout: 30 * time.Second,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tydom2mqtt",
			},
			QoS: 0,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Topics: TopicsConfig{
				Command:     "tydom/cover/+/set",
				PositionSet: "tydom/cover/+/position/set",
				Position:    "tydom/cover/+/position",
				Status:      "tydom2mqtt/status",
			},
		},
		Bridge: BridgeConfig{
			MessageQueueSize: 100,
			HealthInterval:   30 * time.Second,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Database: DatabaseConfig{
			Path:        "./data/tydom2mqtt.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/tydom2mqtt.log",
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// The legacy TB_* names are read first so the TYDOM2MQTT_* names take precedence.
func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		keys []string
		set  func(string)
	}{
		{[]string{"TB_TYDOM_MAC", "TYDOM2MQTT_HUB_MAC"}, func(v string) { cfg.Hub.MAC = v }},
		{[]string{"TB_TYDOM_PASSWORD", "TYDOM2MQTT_HUB_PASSWORD"}, func(v string) { cfg.Hub.Password = v }},
		{[]string{"TB_TYDOM_HOSTNAME", "TYDOM2MQTT_HUB_HOST"}, func(v string) { cfg.Hub.Host = v }},
		{[]string{"TB_MQTT_HOST", "TYDOM2MQTT_MQTT_HOST"}, func(v string) { cfg.MQTT.Broker.Host = v }},
		{[]string{"TB_MQTT_USERNAME", "TYDOM2MQTT_MQTT_USERNAME"}, func(v string) { cfg.MQTT.Auth.Username = v }},
		{[]string{"TB_MQTT_PASSWORD", "TYDOM2MQTT_MQTT_PASSWORD"}, func(v string) { cfg.MQTT.Auth.Password = v }},
		{[]string{"TYDOM2MQTT_MQTT_PORT"}, func(v string) {
			if port, err := strconv.Atoi(v); err == nil {
				cfg.MQTT.Broker.Port = port
			}
		}},
		{[]string{"TYDOM2MQTT_MQTT_DISCOVERY_PREFIX"}, func(v string) { cfg.MQTT.DiscoveryPrefix = v }},
		{[]string{"TYDOM2MQTT_API_HOST"}, func(v string) { cfg.API.Host = v }},
		{[]string{"TYDOM2MQTT_INFLUXDB_TOKEN"}, func(v string) { cfg.InfluxDB.Token = v }},
		{[]string{"TYDOM2MQTT_DATABASE_PATH"}, func(v string) { cfg.Database.Path = v }},
		{[]string{"TYDOM2MQTT_LOG_LEVEL"}, func(v string) { cfg.Logging.Level = v }},
	}

	for _, o := range overrides {
		for _, key := range o.keys {
			if v := os.Getenv(key); v != "" {
				o.set(v)
			}
		}
	}
}

// normalizeCovers folds the legacy tydomId/localId keys into id/name.
func (c *Config) normalizeCovers() {
	for i := range c.Covers {
		cv := &c.Covers[i]
		if cv.ID == "" {
			cv.ID = cv.TydomID
		}
		if cv.Name == "" {
			cv.Name = cv.LocalID
		}
		cv.ID = strings.TrimSpace(cv.ID)
		cv.Name = strings.TrimSpace(cv.Name)
	}
}

// Validate checks the configuration for errors.
// Duplicate cover ids or names are reported here as well as by the
// registry, so a bad file fails before any connection is attempted.
func (c *Config) Validate() error {
	var errs []string

	if c.Hub.Host == "" {
		errs = append(errs, "hub.host is required")
	}
	if c.Hub.MAC == "" {
		errs = append(errs, "hub.mac is required")
	}
	if c.Hub.RequestTimeout <= 0 {
		errs = append(errs, "hub.request_timeout must be positive")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	t := c.MQTT.Topics
	if t.Command == "" || t.PositionSet == "" || t.Position == "" {
		errs = append(errs, "mqtt.topics.command, position_set and position are required")
	} else if t.Command == t.PositionSet {
		errs = append(errs, "mqtt.topics.command and mqtt.topics.position_set must differ")
	}

	if len(c.Covers) == 0 {
		errs = append(errs, "at least one cover is required")
	}
	ids := make(map[string]bool, len(c.Covers))
	names := make(map[string]bool, len(c.Covers))
	for i, cv := range c.Covers {
		if cv.ID == "" || cv.Name == "" {
			errs = append(errs, fmt.Sprintf("covers[%d]: id and name are required", i))
			continue
		}
		if strings.ContainsAny(cv.Name, "/+#\x00") {
			errs = append(errs, fmt.Sprintf("covers[%d]: name %q must not contain /, + or #", i, cv.Name))
		}
		if ids[cv.ID] {
			errs = append(errs, fmt.Sprintf("covers[%d]: duplicate id %q", i, cv.ID))
		}
		if names[cv.Name] {
			errs = append(errs, fmt.Sprintf("covers[%d]: duplicate name %q", i, cv.Name))
		}
		ids[cv.ID] = true
		names[cv.Name] = true
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	switch c.Logging.Output {
	case "", "stdout", "stderr", "file", "both":
	default:
		errs = append(errs, "logging.output must be stdout, stderr, file, or both")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
