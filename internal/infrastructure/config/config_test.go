package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
device:
  model: "SO-02"
thingsboard:
  host: "iot.example.com"
  port: 1883
  provision:
    key: "prov-key"
    secret: "prov-secret"
database:
  path: "/tmp/test.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ThingsBoard.Host != "iot.example.com" {
		t.Errorf("ThingsBoard.Host = %q, want %q", cfg.ThingsBoard.Host, "iot.example.com")
	}
	if cfg.Device.Model != "SO-02" {
		t.Errorf("Device.Model = %q, want %q", cfg.Device.Model, "SO-02")
	}
	// Defaults survive partial files.
	if cfg.ThingsBoard.Session.MaxConnectAttempts != 5 {
		t.Errorf("MaxConnectAttempts = %d, want 5", cfg.ThingsBoard.Session.MaxConnectAttempts)
	}
	if len(cfg.Attributes.Families) != 1 || cfg.Attributes.Families[0].Size != 6 {
		t.Errorf("Attributes.Families = %+v, want default switch family", cfg.Attributes.Families)
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
thingsboard:
  host: ""
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty host, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.ThingsBoard.Provision.Key = "k"
		cfg.ThingsBoard.Provision.Secret = "s"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing host", mutate: func(c *Config) { c.ThingsBoard.Host = "" }, wantErr: true},
		{name: "invalid port", mutate: func(c *Config) { c.ThingsBoard.Port = 70000 }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.ThingsBoard.QoS = 3 }, wantErr: true},
		{
			name: "no provisioning and no token",
			mutate: func(c *Config) {
				c.ThingsBoard.Provision.Key = ""
			},
			wantErr: true,
		},
		{
			name: "access token without provisioning",
			mutate: func(c *Config) {
				c.ThingsBoard.Provision.Key = ""
				c.ThingsBoard.Provision.Secret = ""
				c.ThingsBoard.AccessToken = "token"
			},
		},
		{name: "zero cooldown", mutate: func(c *Config) { c.ThingsBoard.Session.ConnectCooldown = 0 }, wantErr: true},
		{name: "zero ceiling", mutate: func(c *Config) { c.ThingsBoard.Session.MaxConnectAttempts = 0 }, wantErr: true},
		{name: "unknown wifi driver", mutate: func(c *Config) { c.WiFi.Driver = "iwd" }, wantErr: true},
		{name: "nmcli without ssid", mutate: func(c *Config) { c.WiFi.Driver = "nmcli" }, wantErr: true},
		{
			name: "nmcli with ssid",
			mutate: func(c *Config) {
				c.WiFi.Driver = "nmcli"
				c.WiFi.SSID = "IoT"
			},
		},
		{name: "no families", mutate: func(c *Config) { c.Attributes.Families = nil }, wantErr: true},
		{
			name: "bad family kind",
			mutate: func(c *Config) {
				c.Attributes.Families = []AttributeFamilyConfig{{Prefix: "x_", Kind: "string", Size: 1}}
			},
			wantErr: true,
		},
		{
			name: "duplicate family prefix",
			mutate: func(c *Config) {
				c.Attributes.Families = append(c.Attributes.Families, c.Attributes.Families[0])
			},
			wantErr: true,
		},
		{
			name: "oversized family",
			mutate: func(c *Config) {
				c.Attributes.Families[0].Size = maxFamilySize + 1
			},
			wantErr: true,
		},
		{name: "zero telemetry interval", mutate: func(c *Config) { c.Publish.TelemetryInterval = 0 }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{
			name: "influxdb enabled without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.ConnectCooldown(); got != 10*time.Second {
		t.Errorf("ConnectCooldown() = %v, want 10s", got)
	}
	if got := cfg.RequestTimeout(); got != 5*time.Second {
		t.Errorf("RequestTimeout() = %v, want 5s", got)
	}
	if got := cfg.AttributeInterval(); got != 5*time.Minute {
		t.Errorf("AttributeInterval() = %v, want 5m", got)
	}
	if got := cfg.TelemetryInterval(); got != 30*time.Second {
		t.Errorf("TelemetryInterval() = %v, want 30s", got)
	}
	if got := cfg.WiFiCooldown(); got != 10*time.Second {
		t.Errorf("WiFiCooldown() = %v, want 10s", got)
	}
	if got := cfg.StepInterval(); got != 500*time.Millisecond {
		t.Errorf("StepInterval() = %v, want 500ms", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("TBAGENT_WIFI_SSID", "IoT")
	t.Setenv("TBAGENT_WIFI_PASSPHRASE", "MyIoT-WiFi")
	t.Setenv("TBAGENT_TB_HOST", "tb.example.com")
	t.Setenv("TBAGENT_ACCESS_TOKEN", "token-1")
	t.Setenv("TBAGENT_PROVISION_KEY", "pk")
	t.Setenv("TBAGENT_PROVISION_SECRET", "ps")
	t.Setenv("TBAGENT_DATABASE_PATH", "/custom/path.db")
	t.Setenv("TBAGENT_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("TBAGENT_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	checks := []struct {
		name, got, want string
	}{
		{"WiFi.SSID", cfg.WiFi.SSID, "IoT"},
		{"WiFi.Passphrase", cfg.WiFi.Passphrase, "MyIoT-WiFi"},
		{"ThingsBoard.Host", cfg.ThingsBoard.Host, "tb.example.com"},
		{"ThingsBoard.AccessToken", cfg.ThingsBoard.AccessToken, "token-1"},
		{"Provision.Key", cfg.ThingsBoard.Provision.Key, "pk"},
		{"Provision.Secret", cfg.ThingsBoard.Provision.Secret, "ps"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.ThingsBoard.Port != 1883 {
		t.Errorf("defaultConfig ThingsBoard.Port = %d, want 1883", cfg.ThingsBoard.Port)
	}
	if cfg.ThingsBoard.Provision.Identity != "provision" {
		t.Errorf("defaultConfig Provision.Identity = %q, want %q", cfg.ThingsBoard.Provision.Identity, "provision")
	}
	if cfg.Attributes.RPCMethod != "switch_set" {
		t.Errorf("defaultConfig RPCMethod = %q, want switch_set", cfg.Attributes.RPCMethod)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	configPath := writeConfig(t, `
thingsboard:
  access_token: "t"
logging:
  level: "info"
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	changed := make(chan *Config, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, configPath, func(c *Config) {
			select {
			case changed <- c:
			default:
			}
		}, nil)
	}()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(configPath, []byte(`
thingsboard:
  access_token: "t"
logging:
  level: "debug"
`), 0600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-changed:
		if cfg.Logging.Level != "debug" {
			t.Errorf("reloaded Logging.Level = %q, want debug", cfg.Logging.Level)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for config reload")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}
