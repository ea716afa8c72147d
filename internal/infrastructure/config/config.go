package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the KNXnet/IP daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Health    HealthConfig    `yaml:"health"`
}

// GatewayConfig contains KNXnet/IP gateway connection settings.
type GatewayConfig struct {
	// Host is the gateway IP or hostname. Leave empty to pick the first
	// gateway found by discovery.
	Host string `yaml:"host"`

	// Port is the gateway control port. Default: 3671
	Port int `yaml:"port"`

	// DeviceAddress is the individual address used as the source of
	// outgoing telegrams. "0.0.0" lets the gateway substitute its own.
	DeviceAddress string `yaml:"device_address"`

	Timing    TimingConfig    `yaml:"timing"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// TimingConfig contains tunnel protocol timing settings.
type TimingConfig struct {
	// ConnectTimeout is the maximum wait for the connect response (seconds).
	// Default: 5
	ConnectTimeout int `yaml:"connect_timeout"`

	// ResponseTimeout is the maximum wait for acks and heartbeat
	// responses (seconds). Default: 3
	ResponseTimeout int `yaml:"response_timeout"`

	// HeartbeatInterval is the connection state request period (seconds).
	// Gateways drop channels idle for 120s. Default: 60
	HeartbeatInterval int `yaml:"heartbeat_interval"`

	// ReceivePollMs is the receive loop poll deadline (milliseconds).
	// Default: 100
	ReceivePollMs int `yaml:"receive_poll_ms"`

	// DrainDelayMs is the settle time between the pre-send drain passes
	// (milliseconds). Default: 20
	DrainDelayMs int `yaml:"drain_delay_ms"`

	// DrainLimit bounds how many queued datagrams a drain pass will
	// dispatch. Default: 8
	DrainLimit int `yaml:"drain_limit"`
}

// ReconnectConfig contains tunnel reconnection settings.
type ReconnectConfig struct {
	// InitialDelay is the first retry delay in seconds. Default: 1
	InitialDelay int `yaml:"initial_delay"`

	// MaxDelay caps the exponential backoff in seconds. Default: 120
	MaxDelay int `yaml:"max_delay"`

	// MaxAttempts limits reconnection attempts. 0 means unlimited.
	MaxAttempts int `yaml:"max_attempts"`
}

// DiscoveryConfig contains gateway discovery settings.
type DiscoveryConfig struct {
	// LocalIP pins the interface used for the search. Empty picks the
	// first routable IPv4 address.
	LocalIP string `yaml:"local_ip"`

	// PrefixLen is the network prefix length for the directed
	// broadcast. Default: 24
	PrefixLen int `yaml:"prefix_len"`

	// Timeout is how long to collect search responses (seconds).
	// Default: 3
	Timeout int `yaml:"timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
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

// HealthConfig contains health report publishing settings.
type HealthConfig struct {
	// Interval is how often the health report is published (seconds).
	// Default: 30
	Interval int `yaml:"interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: KNXIP_SECTION_KEY
// For example: KNXIP_GATEWAY_HOST, KNXIP_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Port:          3671,
			DeviceAddress: "0.0.0",
			Timing: TimingConfig{
				ConnectTimeout:    5,
				ResponseTimeout:   3,
				HeartbeatInterval: 60,
				ReceivePollMs:     100,
				DrainDelayMs:      20,
				DrainLimit:        8,
			},
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     120,
				MaxAttempts:  0,
			},
		},
		Discovery: DiscoveryConfig{
			PrefixLen: 24,
			Timeout:   3,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "knxipd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/knxipd.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Health: HealthConfig{
			Interval: 30,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: KNXIP_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Gateway
	if v := os.Getenv("KNXIP_GATEWAY_HOST"); v != "" {
		cfg.Gateway.Host = v
	}
	if v := os.Getenv("KNXIP_GATEWAY_DEVICE_ADDRESS"); v != "" {
		cfg.Gateway.DeviceAddress = v
	}

	// Database
	if v := os.Getenv("KNXIP_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("KNXIP_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("KNXIP_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("KNXIP_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("KNXIP_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Gateway validation. An empty host is allowed; discovery picks
	// the gateway at startup.
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		errs = append(errs, "gateway.port must be between 1 and 65535")
	}
	if c.Gateway.Timing.ConnectTimeout < 1 {
		errs = append(errs, "gateway.timing.connect_timeout must be at least 1 second")
	}
	if c.Gateway.Timing.ResponseTimeout < 1 {
		errs = append(errs, "gateway.timing.response_timeout must be at least 1 second")
	}
	if c.Gateway.Timing.HeartbeatInterval < 1 || c.Gateway.Timing.HeartbeatInterval > 110 {
		errs = append(errs, "gateway.timing.heartbeat_interval must be between 1 and 110 seconds (gateways drop channels idle for 120s)")
	}
	if c.Gateway.Timing.DrainLimit < 1 {
		errs = append(errs, "gateway.timing.drain_limit must be at least 1")
	}

	// Discovery validation
	if c.Discovery.PrefixLen < 0 || c.Discovery.PrefixLen > 32 {
		errs = append(errs, "discovery.prefix_len must be between 0 and 32")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GatewayAddress returns the configured gateway endpoint as "host:port".
func (c *Config) GatewayAddress() string {
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}

// GetConnectTimeout returns the tunnel connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.Gateway.Timing.ConnectTimeout) * time.Second
}

// GetResponseTimeout returns the tunnel response timeout as a Duration.
func (c *Config) GetResponseTimeout() time.Duration {
	return time.Duration(c.Gateway.Timing.ResponseTimeout) * time.Second
}

// GetHeartbeatInterval returns the heartbeat interval as a Duration.
func (c *Config) GetHeartbeatInterval() time.Duration {
	return time.Duration(c.Gateway.Timing.HeartbeatInterval) * time.Second
}

// GetReceivePoll returns the receive poll deadline as a Duration.
func (c *Config) GetReceivePoll() time.Duration {
	return time.Duration(c.Gateway.Timing.ReceivePollMs) * time.Millisecond
}

// GetDrainDelay returns the pre-send drain settle time as a Duration.
func (c *Config) GetDrainDelay() time.Duration {
	return time.Duration(c.Gateway.Timing.DrainDelayMs) * time.Millisecond
}

// GetDiscoveryTimeout returns the discovery collection window as a Duration.
func (c *Config) GetDiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.Timeout) * time.Second
}

// GetHealthInterval returns the health report interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Health.Interval) * time.Second
}
