package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the edge agent.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device      DeviceConfig      `yaml:"device"`
	WiFi        WiFiConfig        `yaml:"wifi"`
	ThingsBoard ThingsBoardConfig `yaml:"thingsboard"`
	Attributes  AttributesConfig  `yaml:"attributes"`
	Publish     PublishConfig     `yaml:"publish"`
	GPIO        GPIOConfig        `yaml:"gpio"`
	Database    DatabaseConfig    `yaml:"database"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DeviceConfig describes the static metadata reported by the device.
type DeviceConfig struct {
	// NamePrefix is prepended to the hardware address to form the display name.
	NamePrefix string `yaml:"name_prefix"`

	// IDPrefix is prepended to the hardware address to form the platform device id.
	IDPrefix string `yaml:"id_prefix"`

	Model     string `yaml:"model"`
	HWVersion string `yaml:"hw_version"`
	HWSerial  string `yaml:"hw_serial"`
	FWVersion string `yaml:"fw_version"`

	// Interface is the network interface whose hardware address identifies the device.
	// If empty, the first non-loopback interface with a hardware address is used.
	Interface string `yaml:"interface"`

	// TemperatureSensor is the host sensor key used for the temperature reading.
	// If empty, temperature is simulated.
	TemperatureSensor string `yaml:"temperature_sensor"`
}

// WiFiConfig contains network association settings.
type WiFiConfig struct {
	// Driver selects the association backend: "nmcli" or "static".
	Driver     string `yaml:"driver"`
	Interface  string `yaml:"interface"`
	SSID       string `yaml:"ssid"`
	Passphrase string `yaml:"passphrase"`

	// RetryCooldown is the minimum time between association attempts (seconds).
	RetryCooldown int `yaml:"retry_cooldown"`

	// PollInterval is how often the link state is sampled (seconds).
	PollInterval int `yaml:"poll_interval"`
}

// ThingsBoardConfig contains platform connection settings.
type ThingsBoardConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`
	QoS  int    `yaml:"qos"`

	// AccessToken seeds the credentials when nothing has been provisioned yet.
	AccessToken string `yaml:"access_token"`

	Provision ProvisionConfig     `yaml:"provision"`
	Session   SessionPolicyConfig `yaml:"session"`
}

// ProvisionConfig contains the pre-shared provisioning key pair.
type ProvisionConfig struct {
	Key    string `yaml:"key"`
	Secret string `yaml:"secret"`

	// Identity is the well-known username used for the anonymous provisioning session.
	Identity string `yaml:"identity"`
}

// SessionPolicyConfig holds the retry policy of the session state machine.
type SessionPolicyConfig struct {
	// ConnectCooldown is the minimum time between connect attempts (seconds).
	ConnectCooldown int `yaml:"connect_cooldown"`

	// MaxConnectAttempts is the number of consecutive credentialed connect
	// failures after which the credentials are discarded.
	MaxConnectAttempts int `yaml:"max_connect_attempts"`

	// RequestTimeout bounds provisioning and attribute requests (seconds).
	RequestTimeout int `yaml:"request_timeout"`

	// StepInterval is the session loop period (milliseconds).
	StepInterval int `yaml:"step_interval"`
}

// AttributesConfig describes the shared attribute schema.
type AttributesConfig struct {
	// RPCMethod is the server-side RPC method that mutates shared attributes.
	RPCMethod string                  `yaml:"rpc_method"`
	Families  []AttributeFamilyConfig `yaml:"families"`
}

// AttributeFamilyConfig describes a bounded array of attributes sharing a key prefix.
type AttributeFamilyConfig struct {
	Prefix string `yaml:"prefix"`
	Kind   string `yaml:"kind"` // "bool" or "number"
	Size   int    `yaml:"size"`
}

// PublishConfig contains the publish cadence.
type PublishConfig struct {
	// AttributeInterval is the device attribute republish period (seconds).
	AttributeInterval int `yaml:"attribute_interval"`

	// TelemetryInterval is the telemetry period (seconds).
	TelemetryInterval int `yaml:"telemetry_interval"`

	// LoopInterval is the control loop period (milliseconds).
	LoopInterval int `yaml:"loop_interval"`
}

// GPIOConfig maps physical inputs and outputs onto switch indices.
type GPIOConfig struct {
	Enabled bool `yaml:"enabled"`

	// Base is the sysfs GPIO root. Default: /sys/class/gpio
	Base string `yaml:"base"`

	// PollInterval is the input sampling period (milliseconds).
	PollInterval int             `yaml:"poll_interval"`
	Inputs       []GPIOPinConfig `yaml:"inputs"`
	Outputs      []GPIOPinConfig `yaml:"outputs"`
}

// GPIOPinConfig binds one GPIO line to a switch index.
type GPIOPinConfig struct {
	Pin       int  `yaml:"pin"`
	Index     int  `yaml:"index"`
	ActiveLow bool `yaml:"active_low"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains the optional local telemetry history settings.
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TBAGENT_SECTION_KEY
// For example: TBAGENT_WIFI_SSID, TBAGENT_TB_HOST
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

// defaultConfig returns a Config with the device defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			NamePrefix: "Smart Office",
			IDPrefix:   "smartoffice",
			Model:      "SO-01",
			HWVersion:  "A.0.1",
			HWSerial:   "SN-0001",
			FWVersion:  "A.0.1",
		},
		WiFi: WiFiConfig{
			Driver:        "static",
			RetryCooldown: 10,
			PollInterval:  1,
		},
		ThingsBoard: ThingsBoardConfig{
			Host: "localhost",
			Port: 1883,
			QoS:  1,
			Provision: ProvisionConfig{
				Identity: "provision",
			},
			Session: SessionPolicyConfig{
				ConnectCooldown:    10,
				MaxConnectAttempts: 5,
				RequestTimeout:     5,
				StepInterval:       500,
			},
		},
		Attributes: AttributesConfig{
			RPCMethod: "switch_set",
			Families: []AttributeFamilyConfig{
				{Prefix: "switch_state_", Kind: "bool", Size: 6},
			},
		},
		Publish: PublishConfig{
			AttributeInterval: 300,
			TelemetryInterval: 30,
			LoopInterval:      100,
		},
		GPIO: GPIOConfig{
			Base:         "/sys/class/gpio",
			PollInterval: 20,
		},
		Database: DatabaseConfig{
			Path:        "./data/tbagent.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Secrets should always come from the environment rather than the file.
func applyEnvOverrides(cfg *Config) {
	// WiFi
	if v := os.Getenv("TBAGENT_WIFI_SSID"); v != "" {
		cfg.WiFi.SSID = v
	}
	if v := os.Getenv("TBAGENT_WIFI_PASSPHRASE"); v != "" {
		cfg.WiFi.Passphrase = v
	}

	// ThingsBoard
	if v := os.Getenv("TBAGENT_TB_HOST"); v != "" {
		cfg.ThingsBoard.Host = v
	}
	if v := os.Getenv("TBAGENT_ACCESS_TOKEN"); v != "" {
		cfg.ThingsBoard.AccessToken = v
	}
	if v := os.Getenv("TBAGENT_PROVISION_KEY"); v != "" {
		cfg.ThingsBoard.Provision.Key = v
	}
	if v := os.Getenv("TBAGENT_PROVISION_SECRET"); v != "" {
		cfg.ThingsBoard.Provision.Secret = v
	}

	// Database
	if v := os.Getenv("TBAGENT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("TBAGENT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("TBAGENT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	// Platform
	if c.ThingsBoard.Host == "" {
		errs = append(errs, "thingsboard.host is required")
	}
	if c.ThingsBoard.Port < 1 || c.ThingsBoard.Port > 65535 {
		errs = append(errs, "thingsboard.port must be between 1 and 65535")
	}
	if c.ThingsBoard.QoS < 0 || c.ThingsBoard.QoS > 2 {
		errs = append(errs, "thingsboard.qos must be 0, 1, or 2")
	}
	if c.ThingsBoard.AccessToken == "" &&
		(c.ThingsBoard.Provision.Key == "" || c.ThingsBoard.Provision.Secret == "") {
		errs = append(errs, "thingsboard.provision.key and secret are required when no access_token is set")
	}
	if c.ThingsBoard.Provision.Identity == "" {
		errs = append(errs, "thingsboard.provision.identity is required")
	}

	// Session policy
	s := c.ThingsBoard.Session
	if s.ConnectCooldown < 1 {
		errs = append(errs, "thingsboard.session.connect_cooldown must be at least 1")
	}
	if s.MaxConnectAttempts < 1 {
		errs = append(errs, "thingsboard.session.max_connect_attempts must be at least 1")
	}
	if s.RequestTimeout < 1 {
		errs = append(errs, "thingsboard.session.request_timeout must be at least 1")
	}
	if s.StepInterval < 1 {
		errs = append(errs, "thingsboard.session.step_interval must be positive")
	}

	// WiFi
	switch c.WiFi.Driver {
	case "static":
	case "nmcli":
		if c.WiFi.SSID == "" {
			errs = append(errs, "wifi.ssid is required for the nmcli driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("wifi.driver %q is not one of static, nmcli", c.WiFi.Driver))
	}
	if c.WiFi.RetryCooldown < 1 {
		errs = append(errs, "wifi.retry_cooldown must be at least 1")
	}

	// Attributes
	if c.Attributes.RPCMethod == "" {
		errs = append(errs, "attributes.rpc_method is required")
	}
	if len(c.Attributes.Families) == 0 {
		errs = append(errs, "attributes.families must not be empty")
	}
	seen := make(map[string]bool)
	for i, f := range c.Attributes.Families {
		if f.Prefix == "" {
			errs = append(errs, fmt.Sprintf("attributes.families[%d].prefix is required", i))
		}
		if seen[f.Prefix] {
			errs = append(errs, fmt.Sprintf("attributes.families[%d].prefix %q is duplicated", i, f.Prefix))
		}
		seen[f.Prefix] = true
		if f.Kind != "bool" && f.Kind != "number" {
			errs = append(errs, fmt.Sprintf("attributes.families[%d].kind must be bool or number", i))
		}
		if f.Size < 1 || f.Size > maxFamilySize {
			errs = append(errs, fmt.Sprintf("attributes.families[%d].size must be between 1 and %d", i, maxFamilySize))
		}
	}

	// Publishing
	if c.Publish.AttributeInterval < 1 || c.Publish.TelemetryInterval < 1 {
		errs = append(errs, "publish intervals must be at least 1 second")
	}
	if c.Publish.LoopInterval < 1 {
		errs = append(errs, "publish.loop_interval must be positive")
	}

	// Database
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// InfluxDB
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// maxFamilySize bounds each attribute family.
const maxFamilySize = 64

// ConnectCooldown returns the session connect cool-down as a Duration.
func (c *Config) ConnectCooldown() time.Duration {
	return time.Duration(c.ThingsBoard.Session.ConnectCooldown) * time.Second
}

// RequestTimeout returns the platform request timeout as a Duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.ThingsBoard.Session.RequestTimeout) * time.Second
}

// StepInterval returns the session loop period as a Duration.
func (c *Config) StepInterval() time.Duration {
	return time.Duration(c.ThingsBoard.Session.StepInterval) * time.Millisecond
}

// WiFiCooldown returns the association retry cool-down as a Duration.
func (c *Config) WiFiCooldown() time.Duration {
	return time.Duration(c.WiFi.RetryCooldown) * time.Second
}

// WiFiPollInterval returns the link sampling period as a Duration.
func (c *Config) WiFiPollInterval() time.Duration {
	if c.WiFi.PollInterval < 1 {
		return time.Second
	}
	return time.Duration(c.WiFi.PollInterval) * time.Second
}

// AttributeInterval returns the device attribute publish period.
func (c *Config) AttributeInterval() time.Duration {
	return time.Duration(c.Publish.AttributeInterval) * time.Second
}

// TelemetryInterval returns the telemetry publish period.
func (c *Config) TelemetryInterval() time.Duration {
	return time.Duration(c.Publish.TelemetryInterval) * time.Second
}

// LoopInterval returns the control loop period.
func (c *Config) LoopInterval() time.Duration {
	return time.Duration(c.Publish.LoopInterval) * time.Millisecond
}

// GPIOPollInterval returns the input sampling period.
func (c *Config) GPIOPollInterval() time.Duration {
	if c.GPIO.PollInterval < 1 {
		return 20 * time.Millisecond
	}
	return time.Duration(c.GPIO.PollInterval) * time.Millisecond
}
