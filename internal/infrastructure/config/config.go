package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Matter bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge        BridgeConfig        `yaml:"bridge"`
	HomeAssistant HomeAssistantConfig `yaml:"home_assistant"`
	Database      DatabaseConfig      `yaml:"database"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	API           APIConfig           `yaml:"api"`
	WebSocket     WebSocketConfig     `yaml:"websocket"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// BridgeConfig contains the identity of the bridge and the converter order.
type BridgeConfig struct {
	Name string `yaml:"name"`

	// UniqueID pins the identifier used in device serial numbers. When
	// empty, the identifier persisted in the database is used, and one is
	// generated on first start.
	UniqueID string `yaml:"unique_id"`

	// SerialPrefix starts every device serial number. Default: "hmb"
	SerialPrefix string `yaml:"serial_prefix"`

	// Converters lists device families in priority order. The first family
	// that accepts an entity wins. Default: light, switch
	Converters []string `yaml:"converters"`

	// Commissioning is reported by the bridge info endpoint.
	Commissioning CommissioningConfig `yaml:"commissioning"`
}

// CommissioningConfig contains the pairing parameters of the aggregator node.
type CommissioningConfig struct {
	Passcode      uint32 `yaml:"passcode"`
	Discriminator uint16 `yaml:"discriminator"`
	VendorID      uint16 `yaml:"vendor_id"`
	ProductID     uint16 `yaml:"product_id"`
	Port          int    `yaml:"port"`
	NetInterface  string `yaml:"net_interface"`
}

// HomeAssistantConfig contains the Home Assistant connection settings.
type HomeAssistantConfig struct {
	// URL is the Home Assistant base URL (http, https, ws or wss).
	URL string `yaml:"url"`

	// AccessToken is a long-lived access token.
	AccessToken string `yaml:"access_token"`

	// Addon connects through the Supervisor proxy with SUPERVISOR_TOKEN.
	Addon bool `yaml:"addon"`

	// CallTimeout bounds each service call, in seconds. Default: 10
	CallTimeout int `yaml:"call_timeout"`

	// HandshakeTimeout bounds connect and authentication, in seconds. Default: 10
	HandshakeTimeout int `yaml:"handshake_timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// TopicPrefix is the root of every mirror topic. Default: "matterbridge"
	TopicPrefix string `yaml:"topic_prefix"`

	// HealthInterval is how often bridge health is published, in seconds.
	// Default: 30
	HealthInterval int `yaml:"health_interval"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains live event WebSocket settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MATTERBRIDGE_SECTION_KEY
// For example: MATTERBRIDGE_DATABASE_PATH, MATTERBRIDGE_HA_TOKEN
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Name:         "HA Matter Bridge",
			SerialPrefix: "hmb",
			Converters:   []string{"light", "switch"},
			Commissioning: CommissioningConfig{
				Passcode:      20202021,
				Discriminator: 3840,
				VendorID:      0xfff1,
				ProductID:     0x8000,
				Port:          5540,
			},
		},
		HomeAssistant: HomeAssistantConfig{
			URL:              "http://localhost:8123",
			CallTimeout:      10,
			HandshakeTimeout: 10,
		},
		Database: DatabaseConfig{
			Path:        "./data/matterbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "matterbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			TopicPrefix:    "matterbridge",
			HealthInterval: 30,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8099,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "matterbridge",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MATTERBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Bridge
	if v := os.Getenv("MATTERBRIDGE_UNIQUE_ID"); v != "" {
		cfg.Bridge.UniqueID = v
	}

	// Home Assistant
	if v := os.Getenv("MATTERBRIDGE_HA_URL"); v != "" {
		cfg.HomeAssistant.URL = v
	}
	if v := os.Getenv("MATTERBRIDGE_HA_TOKEN"); v != "" {
		cfg.HomeAssistant.AccessToken = v
	}
	if v := os.Getenv("MATTERBRIDGE_HA_ADDON"); v != "" {
		if addon, err := strconv.ParseBool(v); err == nil {
			cfg.HomeAssistant.Addon = addon
		}
	}
	// Inside the add-on container the Supervisor token replaces the
	// long-lived token.
	if cfg.HomeAssistant.Addon {
		if v := os.Getenv("SUPERVISOR_TOKEN"); v != "" {
			cfg.HomeAssistant.AccessToken = v
		}
	}

	// Database
	if v := os.Getenv("MATTERBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("MATTERBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MATTERBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MATTERBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("MATTERBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("MATTERBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("MATTERBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// maxSerialPrefixLength leaves room in the 32-character serial for the
// unique id and the entity hash.
const maxSerialPrefixLength = 8

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Bridge validation
	if c.Bridge.Name == "" {
		errs = append(errs, "bridge.name is required")
	}
	if c.Bridge.SerialPrefix == "" || len(c.Bridge.SerialPrefix) > maxSerialPrefixLength {
		errs = append(errs, fmt.Sprintf("bridge.serial_prefix must be 1 to %d characters", maxSerialPrefixLength))
	}
	if p := c.Bridge.Commissioning.Passcode; p < 1 || p > 99999998 {
		errs = append(errs, "bridge.commissioning.passcode must be between 1 and 99999998")
	}
	if c.Bridge.Commissioning.Discriminator > 4095 {
		errs = append(errs, "bridge.commissioning.discriminator must be at most 4095")
	}

	// Home Assistant validation
	if !c.HomeAssistant.Addon && c.HomeAssistant.URL == "" {
		errs = append(errs, "home_assistant.url is required")
	}
	if c.HomeAssistant.AccessToken == "" {
		errs = append(errs, "home_assistant.access_token is required (set MATTERBRIDGE_HA_TOKEN environment variable)")
	}
	if c.HomeAssistant.CallTimeout < 0 {
		errs = append(errs, "home_assistant.call_timeout must not be negative")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
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

// GetCallTimeout returns the Home Assistant service call timeout.
func (c *Config) GetCallTimeout() time.Duration {
	return time.Duration(c.HomeAssistant.CallTimeout) * time.Second
}

// GetHandshakeTimeout returns the Home Assistant connect timeout.
func (c *Config) GetHandshakeTimeout() time.Duration {
	return time.Duration(c.HomeAssistant.HandshakeTimeout) * time.Second
}

// GetHealthInterval returns the MQTT health publish interval.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.MQTT.HealthInterval) * time.Second
}
