package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
bridge:
  name: "Test Bridge"
  converters: ["switch", "light"]
home_assistant:
  url: "http://homeassistant.local:8123"
  access_token: "long-lived-token"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8099
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridge.Name != "Test Bridge" {
		t.Errorf("Bridge.Name = %q, want %q", cfg.Bridge.Name, "Test Bridge")
	}

	if want := []string{"switch", "light"}; !reflect.DeepEqual(cfg.Bridge.Converters, want) {
		t.Errorf("Bridge.Converters = %v, want %v", cfg.Bridge.Converters, want)
	}

	if cfg.HomeAssistant.URL != "http://homeassistant.local:8123" {
		t.Errorf("HomeAssistant.URL = %q", cfg.HomeAssistant.URL)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.MQTT.TopicPrefix != "matterbridge" {
		t.Errorf("MQTT.TopicPrefix = %q, want default %q", cfg.MQTT.TopicPrefix, "matterbridge")
	}

	if cfg.Bridge.Commissioning.Passcode != 20202021 {
		t.Errorf("Commissioning.Passcode = %d, want default 20202021", cfg.Bridge.Commissioning.Passcode)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
home_assistant:
  url: "http://homeassistant.local:8123"
database:
  path: "/tmp/test.db"
`)
	t.Setenv("MATTERBRIDGE_HA_TOKEN", "")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for missing access token, got nil")
	}
}

func TestLoad_AddonUsesSupervisorToken(t *testing.T) {
	configPath := writeConfig(t, `
home_assistant:
  addon: true
  url: ""
`)
	t.Setenv("SUPERVISOR_TOKEN", "supervisor-token")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HomeAssistant.AccessToken != "supervisor-token" {
		t.Errorf("AccessToken = %q, want %q", cfg.HomeAssistant.AccessToken, "supervisor-token")
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.HomeAssistant.AccessToken = "token"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing bridge name",
			mutate:  func(c *Config) { c.Bridge.Name = "" },
			wantErr: true,
		},
		{
			name:    "serial prefix too long",
			mutate:  func(c *Config) { c.Bridge.SerialPrefix = "matterbridge" },
			wantErr: true,
		},
		{
			name:    "passcode out of range",
			mutate:  func(c *Config) { c.Bridge.Commissioning.Passcode = 99999999 },
			wantErr: true,
		},
		{
			name:    "discriminator out of range",
			mutate:  func(c *Config) { c.Bridge.Commissioning.Discriminator = 4096 },
			wantErr: true,
		},
		{
			name:    "missing home assistant url",
			mutate:  func(c *Config) { c.HomeAssistant.URL = "" },
			wantErr: true,
		},
		{
			name: "addon needs no url",
			mutate: func(c *Config) {
				c.HomeAssistant.URL = ""
				c.HomeAssistant.Addon = true
			},
			wantErr: false,
		},
		{
			name:    "missing access token",
			mutate:  func(c *Config) { c.HomeAssistant.AccessToken = "" },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name: "mqtt enabled without topic prefix",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.TopicPrefix = ""
			},
			wantErr: true,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name: "port ignored when api disabled",
			mutate: func(c *Config) {
				c.API.Enabled = false
				c.API.Port = 0
			},
			wantErr: false,
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		HomeAssistant: HomeAssistantConfig{CallTimeout: 7, HandshakeTimeout: 3},
		MQTT:          MQTTConfig{HealthInterval: 15},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}

	if got := cfg.GetCallTimeout().Seconds(); got != 7 {
		t.Errorf("GetCallTimeout() = %v, want 7", got)
	}

	if got := cfg.GetHandshakeTimeout().Seconds(); got != 3 {
		t.Errorf("GetHandshakeTimeout() = %v, want 3", got)
	}

	if got := cfg.GetHealthInterval().Seconds(); got != 15 {
		t.Errorf("GetHealthInterval() = %v, want 15", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("MATTERBRIDGE_UNIQUE_ID", "1700000000000")
	t.Setenv("MATTERBRIDGE_HA_URL", "https://ha.example.com")
	t.Setenv("MATTERBRIDGE_HA_TOKEN", "ha-token")
	t.Setenv("MATTERBRIDGE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("MATTERBRIDGE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("MATTERBRIDGE_MQTT_USERNAME", "testuser")
	t.Setenv("MATTERBRIDGE_MQTT_PASSWORD", "testpass")
	t.Setenv("MATTERBRIDGE_API_HOST", "192.168.1.1")
	t.Setenv("MATTERBRIDGE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("MATTERBRIDGE_LOG_LEVEL", "debug")
	t.Setenv("SUPERVISOR_TOKEN", "ignored-outside-addon")

	applyEnvOverrides(cfg)

	checks := []struct {
		field string
		got   string
		want  string
	}{
		{"Bridge.UniqueID", cfg.Bridge.UniqueID, "1700000000000"},
		{"HomeAssistant.URL", cfg.HomeAssistant.URL, "https://ha.example.com"},
		{"HomeAssistant.AccessToken", cfg.HomeAssistant.AccessToken, "ha-token"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Bridge.SerialPrefix != "hmb" {
		t.Errorf("defaultConfig Bridge.SerialPrefix = %q, want %q", cfg.Bridge.SerialPrefix, "hmb")
	}

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.Bridge.Commissioning.Port != 5540 {
		t.Errorf("defaultConfig Commissioning.Port = %d, want 5540", cfg.Bridge.Commissioning.Port)
	}

	if cfg.MQTT.Enabled {
		t.Error("defaultConfig should leave the MQTT mirror disabled")
	}
}
