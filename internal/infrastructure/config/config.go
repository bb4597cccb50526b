package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-node/internal/reconnect"
)

// Config is the root configuration structure for Gray Logic Node.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	// Version identifies this configuration document. The Core publishes a
	// retained version number per node; a node that sees a newer version
	// after publishing fetches and applies the updated document.
	Version int `yaml:"version"`

	Node    NodeConfig    `yaml:"node"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Sensors SensorsConfig `yaml:"sensors"`
	Store   StoreConfig   `yaml:"store"`
	History HistoryConfig `yaml:"history"`
	Logging LoggingConfig `yaml:"logging"`
}

// NodeConfig identifies this device and its duty cycle.
type NodeConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// Room is the location label carried in every published reading.
	Room string `yaml:"room"`

	// WakeInterval is the sleep time between publish cycles, in seconds.
	WakeInterval int `yaml:"wake_interval"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker      MQTTBrokerConfig `yaml:"broker"`
	Auth        MQTTAuthConfig   `yaml:"auth"`
	QoS         int              `yaml:"qos"`
	KeepAlive   int              `yaml:"keepalive"`
	TopicPrefix string           `yaml:"topic_prefix"`
	Reconnect   ReconnectConfig  `yaml:"reconnect"`
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

// ReconnectConfig contains the static half of the reconnection policy.
// The dynamic half (attempt count, last attempt time) lives in the local
// store so it survives deep sleep and power loss.
type ReconnectConfig struct {
	Enabled       bool    `yaml:"enabled"`
	MaxAttempts   int     `yaml:"max_attempts"`
	BackoffFactor float64 `yaml:"backoff_factor"`
	MinInterval   int     `yaml:"min_interval"`
	MaxInterval   int     `yaml:"max_interval"`
}

// State builds a reconnect.State carrying these parameters and no attempt
// history. The caller overlays the persisted counters afterwards.
func (r ReconnectConfig) State() reconnect.State {
	return reconnect.State{
		Enabled:       r.Enabled,
		MaxAttempts:   r.MaxAttempts,
		BackoffFactor: r.BackoffFactor,
		MinInterval:   r.MinInterval,
		MaxInterval:   r.MaxInterval,
	}
}

// SensorsConfig controls reading acquisition.
type SensorsConfig struct {
	// Simulated selects the synthetic sensor source for hardware-less
	// development and CI.
	Simulated bool `yaml:"simulated"`

	// Enabled lists the sensor channels to sample each cycle.
	Enabled []string `yaml:"enabled"`
}

// StoreConfig contains local SQLite store settings.
type StoreConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// HistoryConfig contains the optional InfluxDB readings mirror settings.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYNODE_SECTION_KEY
// For example: GRAYNODE_MQTT_HOST, GRAYNODE_STORE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	applyGenerated(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Apply merges a configuration document received over MQTT into this
// configuration, then revalidates. Only fields the Core is allowed to steer
// remotely are touched; broker address and credentials stay local so a bad
// push cannot strand the node.
//
// QoS 0 is a legal push, so absence cannot be its zero value: callers mark
// an unspecified QoS with a negative number.
func (c *Config) Apply(update *Config) error {
	merged := *c
	merged.Version = update.Version
	if update.Node.WakeInterval > 0 {
		merged.Node.WakeInterval = update.Node.WakeInterval
	}
	if update.MQTT.QoS >= 0 {
		merged.MQTT.QoS = update.MQTT.QoS
	}
	if len(update.Sensors.Enabled) > 0 {
		merged.Sensors.Enabled = update.Sensors.Enabled
	}
	if update.MQTT.Reconnect != (ReconnectConfig{}) {
		merged.MQTT.Reconnect = update.MQTT.Reconnect
	}

	if err := merged.Validate(); err != nil {
		return fmt.Errorf("validating pushed config: %w", err)
	}
	*c = merged
	return nil
}

// Save writes the configuration back to disk, preserving remotely applied
// updates across power cycles.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Version: 1,
		Node: NodeConfig{
			Name:         "Gray Logic Node",
			Room:         "unassigned",
			WakeInterval: 300,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS:         1,
			KeepAlive:   60,
			TopicPrefix: "graylogic/node",
			Reconnect: ReconnectConfig{
				Enabled:       true,
				MaxAttempts:   reconnect.DefaultMaxAttempts,
				BackoffFactor: reconnect.DefaultBackoffFactor,
				MinInterval:   reconnect.DefaultMinInterval,
				MaxInterval:   reconnect.DefaultMaxInterval,
			},
		},
		Sensors: SensorsConfig{
			Simulated: false,
			Enabled:   []string{"temperature", "humidity", "battery"},
		},
		Store: StoreConfig{
			Path:        "./data/graynode.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYNODE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Node
	if v := os.Getenv("GRAYNODE_NODE_ID"); v != "" {
		cfg.Node.ID = v
	}

	// MQTT
	if v := os.Getenv("GRAYNODE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYNODE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("GRAYNODE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYNODE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Store
	if v := os.Getenv("GRAYNODE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}

	// History
	if v := os.Getenv("GRAYNODE_HISTORY_TOKEN"); v != "" {
		cfg.History.Token = v
	}
}

// applyGenerated fills identity fields that default to generated values.
// The node id sticks once saved; the client id is derived from it so broker
// ACLs can be written per node.
func applyGenerated(cfg *Config) {
	if cfg.Node.ID == "" {
		cfg.Node.ID = "node-" + uuid.NewString()[:8]
	}
	if cfg.MQTT.Broker.ClientID == "" {
		cfg.MQTT.Broker.ClientID = "graynode-" + cfg.Node.ID
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Node.ID == "" {
		errs = append(errs, "node.id is required")
	}
	if c.Node.WakeInterval < 1 {
		errs = append(errs, "node.wake_interval must be at least 1 second")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 1 {
		errs = append(errs, "mqtt.qos must be 0 or 1")
	}
	if c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required")
	}

	r := c.MQTT.Reconnect
	if r.MaxAttempts < 1 {
		errs = append(errs, "mqtt.reconnect.max_attempts must be at least 1")
	}
	if r.BackoffFactor < 1 {
		errs = append(errs, "mqtt.reconnect.backoff_factor must be at least 1")
	}
	if r.MinInterval < 1 || r.MaxInterval < r.MinInterval {
		errs = append(errs, "mqtt.reconnect intervals must satisfy 1 <= min_interval <= max_interval")
	}

	if c.Store.Path == "" {
		errs = append(errs, "store.path is required")
	}

	if c.History.Enabled {
		if c.History.URL == "" || c.History.Token == "" || c.History.Org == "" || c.History.Bucket == "" {
			errs = append(errs, "history requires url, token, org and bucket when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// WakeInterval returns the sleep time between cycles as a Duration.
func (c *Config) WakeInterval() time.Duration {
	return time.Duration(c.Node.WakeInterval) * time.Second
}

// KeepAliveDuration returns the MQTT keepalive as a Duration.
func (c *MQTTConfig) KeepAliveDuration() time.Duration {
	return time.Duration(c.KeepAlive) * time.Second
}
