package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default tuning values applied when the configuration omits them.
const (
	// DefaultDeviceRefreshRate is the refresh rate in seconds for a device
	// when neither the device nor the platform sets one.
	DefaultDeviceRefreshRate = 1800

	// DefaultPushRate is the debounce (seconds) applied to pushed status changes.
	DefaultPushRate = 0.1

	// DefaultIrrigationDelay is the rain delay in hours used by the delay switch.
	DefaultIrrigationDelay = 1

	// DefaultMinValueRemaining is the minimum reported remaining duration in seconds.
	DefaultMinValueRemaining = 0

	// DefaultMaxValueRemaining is the maximum reported remaining duration in seconds.
	DefaultMaxValueRemaining = 3600
)

// Config is the root configuration structure for rainbridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Platform PlatformConfig `yaml:"platform"`
	Devices  []DeviceConfig `yaml:"devices"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	HomeKit  HomeKitConfig  `yaml:"homekit"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// PlatformConfig contains settings shared by every configured controller.
type PlatformConfig struct {
	Name string `yaml:"name"`

	// RefreshRate and PushRate, when set, replace the built-in defaults for
	// devices that leave them out.
	RefreshRate int     `yaml:"refresh_rate"`
	PushRate    float64 `yaml:"push_rate"`

	// AllowInvalidCharacters disables display-name sanitization.
	AllowInvalidCharacters bool `yaml:"allow_invalid_characters"`

	// DiscoveryConcurrency is how many controllers are reconciled at once.
	// 1 keeps discovery strictly sequential.
	DiscoveryConcurrency int `yaml:"discovery_concurrency"`
}

// DeviceConfig describes one physical irrigation controller.
type DeviceConfig struct {
	Address  string `yaml:"address" json:"address"`
	Password string `yaml:"password" json:"-"`
	Name     string `yaml:"name" json:"name,omitempty"`

	// Firmware overrides the firmware revision reported to HomeKit.
	Firmware string `yaml:"firmware" json:"firmware,omitempty"`

	// Delete removes every accessory belonging to this controller.
	Delete bool `yaml:"delete" json:"delete,omitempty"`

	ShowLeakSensor      bool `yaml:"show_leak_sensor" json:"show_leak_sensor"`
	ShowValveSensor     bool `yaml:"show_valve_sensor" json:"show_valve_sensor"`
	ShowZoneValve       bool `yaml:"show_zone_valve" json:"show_zone_valve"`
	ShowProgramASwitch  bool `yaml:"show_program_a_switch" json:"show_program_a_switch"`
	ShowProgramBSwitch  bool `yaml:"show_program_b_switch" json:"show_program_b_switch"`
	ShowProgramCSwitch  bool `yaml:"show_program_c_switch" json:"show_program_c_switch"`
	ShowProgramDSwitch  bool `yaml:"show_program_d_switch" json:"show_program_d_switch"`
	ShowStopSwitch      bool `yaml:"show_stop_switch" json:"show_stop_switch"`
	ShowDelaySwitch     bool `yaml:"show_delay_switch" json:"show_delay_switch"`
	ShowRequestResponse bool `yaml:"show_requests" json:"show_requests,omitempty"`
	SyncTime            bool `yaml:"sync_time" json:"sync_time,omitempty"`

	// Verbose logs accessories that are skipped because they are hidden.
	Verbose bool `yaml:"verbose" json:"verbose,omitempty"`

	// IncludeZones is a comma-separated list of zone numbers; "0" means all.
	IncludeZones string `yaml:"include_zones" json:"include_zones"`

	RefreshRate       int     `yaml:"refresh_rate" json:"refresh_rate"`
	PushRate          float64 `yaml:"push_rate" json:"push_rate"`
	PollRate          int     `yaml:"poll_rate" json:"poll_rate"`
	MinValueRemaining int     `yaml:"min_value_remaining" json:"min_value_remaining"`
	MaxValueRemaining int     `yaml:"max_value_remaining" json:"max_value_remaining"`
	IrrigationDelay   int     `yaml:"irrigation_delay" json:"irrigation_delay"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// RequestTimeout bounds a single controller request in seconds.
	RequestTimeout int `yaml:"request_timeout"`
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

// HomeKitConfig contains HomeKit bridge publishing settings.
type HomeKitConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BridgeName  string `yaml:"bridge_name"`
	Pin         string `yaml:"pin"`
	Port        string `yaml:"port"`
	StoragePath string `yaml:"storage_path"`
}

// APIConfig contains the status HTTP server settings.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	WebSocket WebSocketConfig  `yaml:"websocket"`
	Auth      APIAuthConfig    `yaml:"auth"`
}

// APIAuthConfig enables bearer-token access control on the status API.
// An empty secret leaves the API open.
type APIAuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`

	// TokenTTL is the lifetime in minutes of tokens issued by "rainbridge token".
	TokenTTL int `yaml:"token_ttl"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket event stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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
//  4. Per-device defaults backfilled
//
// Environment variables follow the pattern: RAINBRIDGE_SECTION_KEY
// For example: RAINBRIDGE_DATABASE_PATH, RAINBRIDGE_MQTT_HOST
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
	cfg.ApplyDeviceDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Platform: PlatformConfig{
			Name:                 "RainBird",
			DiscoveryConcurrency: 1,
		},
		Database: DatabaseConfig{
			Path:        "./data/rainbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "rainbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			RequestTimeout: 10,
		},
		HomeKit: HomeKitConfig{
			Enabled:     true,
			BridgeName:  "RainBird Bridge",
			Pin:         "00102003",
			StoragePath: "./data/homekit",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8088,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
			},
			Auth: APIAuthConfig{
				TokenTTL: 60 * 24 * 30,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RAINBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("RAINBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("RAINBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("RAINBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("RAINBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("RAINBRIDGE_HOMEKIT_PIN"); v != "" {
		cfg.HomeKit.Pin = v
	}

	if v := os.Getenv("RAINBRIDGE_API_JWT_SECRET"); v != "" {
		cfg.API.Auth.JWTSecret = v
	}

	// RAINBRIDGE_DEVICE_<n>_PASSWORD keeps controller credentials out of the file.
	for i := range cfg.Devices {
		if v := os.Getenv("RAINBRIDGE_DEVICE_" + strconv.Itoa(i) + "_PASSWORD"); v != "" {
			cfg.Devices[i].Password = v
		}
	}
}

// ApplyDeviceDefaults backfills unset tuning values on every device entry,
// taking rates from the platform section before the built-in defaults.
// Visibility flags keep their zero value (false).
func (c *Config) ApplyDeviceDefaults() {
	for i := range c.Devices {
		c.Devices[i].applyDefaults(c.Platform)
	}
}

func (d *DeviceConfig) applyDefaults(platform PlatformConfig) {
	d.Address = strings.TrimSpace(d.Address)
	d.IncludeZones = strings.TrimSpace(d.IncludeZones)
	if d.RefreshRate <= 0 {
		d.RefreshRate = platform.RefreshRate
	}
	if d.RefreshRate <= 0 {
		d.RefreshRate = DefaultDeviceRefreshRate
	}
	if d.PushRate <= 0 {
		d.PushRate = platform.PushRate
	}
	if d.PushRate <= 0 {
		d.PushRate = DefaultPushRate
	}
	if d.PollRate < 0 {
		d.PollRate = 0
	}
	if d.MaxValueRemaining <= 0 {
		d.MaxValueRemaining = DefaultMaxValueRemaining
	}
	if d.MinValueRemaining < 0 || d.MinValueRemaining > d.MaxValueRemaining {
		d.MinValueRemaining = DefaultMinValueRemaining
	}
	if d.IrrigationDelay <= 0 {
		d.IrrigationDelay = DefaultIrrigationDelay
	}
}

// Validate checks the global configuration for errors.
//
// Device entries are not validated here: a bad entry only disables that
// controller, so discovery checks each one with DeviceConfig.Validate.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.RequestTimeout <= 0 {
		errs = append(errs, "mqtt.request_timeout must be positive")
	}

	if c.Platform.DiscoveryConcurrency < 1 {
		errs = append(errs, "platform.discovery_concurrency must be at least 1")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	const minSecretLength = 32
	if c.API.Auth.JWTSecret != "" && len(c.API.Auth.JWTSecret) < minSecretLength {
		errs = append(errs, "api.auth.jwt_secret must be at least 32 characters")
	}

	const homeKitPinLength = 8
	if c.HomeKit.Enabled && len(c.HomeKit.Pin) != homeKitPinLength {
		errs = append(errs, "homekit.pin must be 8 digits")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Validate reports the first missing required field of a device entry.
func (d DeviceConfig) Validate() error {
	var missing []string
	if d.Address == "" {
		missing = append(missing, "address")
	}
	if d.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("device entry missing %s", strings.Join(missing, " and "))
	}
	return nil
}

// ShowProgramSwitch reports whether the switch for the given program letter is enabled.
// Unknown letters are never shown.
func (d DeviceConfig) ShowProgramSwitch(program string) bool {
	switch strings.ToUpper(program) {
	case "A":
		return d.ShowProgramASwitch
	case "B":
		return d.ShowProgramBSwitch
	case "C":
		return d.ShowProgramCSwitch
	case "D":
		return d.ShowProgramDSwitch
	default:
		return false
	}
}

// IncludesZone reports whether zone passes the include_zones filter.
// Malformed entries never match; an entry of 0 matches every zone.
func (d DeviceConfig) IncludesZone(zone int) bool {
	for _, part := range strings.Split(d.IncludeZones, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if n == 0 || n == zone {
			return true
		}
	}
	return false
}

// GetRefreshInterval returns the device refresh rate as a Duration.
func (d DeviceConfig) GetRefreshInterval() time.Duration {
	return time.Duration(d.RefreshRate) * time.Second
}

// GetPushInterval returns the device push debounce as a Duration.
func (d DeviceConfig) GetPushInterval() time.Duration {
	return time.Duration(d.PushRate * float64(time.Second))
}

// GetRequestTimeout returns the controller request timeout as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.MQTT.RequestTimeout) * time.Second
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
