package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
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
platform:
  name: "Garden"
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "broker.local"
    port: 1883
  qos: 1
devices:
  - address: "192.168.1.50"
    password: "secret"
    show_zone_valve: true
    include_zones: " 1,2 "
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Platform.Name != "Garden" {
		t.Errorf("Platform.Name = %q, want %q", cfg.Platform.Name, "Garden")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if len(cfg.Devices) != 1 {
		t.Fatalf("len(Devices) = %d, want 1", len(cfg.Devices))
	}

	dev := cfg.Devices[0]
	if !dev.ShowZoneValve {
		t.Error("ShowZoneValve = false, want true")
	}
	if dev.ShowLeakSensor {
		t.Error("ShowLeakSensor should default to false")
	}
	if dev.IncludeZones != "1,2" {
		t.Errorf("IncludeZones = %q, want trimmed %q", dev.IncludeZones, "1,2")
	}
}

func TestLoad_DeviceDefaults(t *testing.T) {
	configPath := writeConfig(t, `
devices:
  - address: "10.0.0.2"
    password: "pw"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	dev := cfg.Devices[0]
	if dev.RefreshRate != DefaultDeviceRefreshRate {
		t.Errorf("RefreshRate = %d, want %d", dev.RefreshRate, DefaultDeviceRefreshRate)
	}
	if dev.PushRate != DefaultPushRate {
		t.Errorf("PushRate = %v, want %v", dev.PushRate, DefaultPushRate)
	}
	if dev.IrrigationDelay != DefaultIrrigationDelay {
		t.Errorf("IrrigationDelay = %d, want %d", dev.IrrigationDelay, DefaultIrrigationDelay)
	}
	if dev.MinValueRemaining != 0 || dev.MaxValueRemaining != DefaultMaxValueRemaining {
		t.Errorf("remaining range = %d..%d, want 0..%d", dev.MinValueRemaining, dev.MaxValueRemaining, DefaultMaxValueRemaining)
	}
	if dev.GetRefreshInterval() != 30*time.Minute {
		t.Errorf("GetRefreshInterval() = %v, want 30m", dev.GetRefreshInterval())
	}
	if dev.GetPushInterval() != 100*time.Millisecond {
		t.Errorf("GetPushInterval() = %v, want 100ms", dev.GetPushInterval())
	}
}

func TestLoad_PlatformRates(t *testing.T) {
	configPath := writeConfig(t, `
platform:
  refresh_rate: 600
  push_rate: 2
devices:
  - address: "10.0.0.2"
    password: "pw"
  - address: "10.0.0.3"
    password: "pw"
    refresh_rate: 90
    push_rate: 0.5
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		address     string
		wantRefresh int
		wantPush    float64
	}{
		{"10.0.0.2", 600, 2},
		{"10.0.0.3", 90, 0.5},
	}
	for i, tt := range tests {
		dev := cfg.Devices[i]
		if dev.Address != tt.address {
			t.Fatalf("Devices[%d].Address = %q, want %q", i, dev.Address, tt.address)
		}
		if dev.RefreshRate != tt.wantRefresh || dev.PushRate != tt.wantPush {
			t.Errorf("%s: rates = %d/%v, want %d/%v", tt.address, dev.RefreshRate, dev.PushRate, tt.wantRefresh, tt.wantPush)
		}
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
mqtt:
  qos: 5
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for qos 5, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	configPath := writeConfig(t, `
devices:
  - address: "10.0.0.2"
`)
	t.Setenv("RAINBRIDGE_MQTT_HOST", "env-broker")
	t.Setenv("RAINBRIDGE_DEVICE_0_PASSWORD", "from-env")
	t.Setenv("RAINBRIDGE_API_JWT_SECRET", "0123456789abcdef0123456789abcdef")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MQTT.Broker.Host != "env-broker" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "env-broker")
	}
	if cfg.Devices[0].Password != "from-env" {
		t.Errorf("Devices[0].Password = %q, want %q", cfg.Devices[0].Password, "from-env")
	}
	if cfg.API.Auth.JWTSecret != "0123456789abcdef0123456789abcdef" {
		t.Errorf("API.Auth.JWTSecret = %q, want env value", cfg.API.Auth.JWTSecret)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Platform.DiscoveryConcurrency = 0 },
			wantErr: true,
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.API.Auth.JWTSecret = "short" },
			wantErr: true,
		},
		{
			name:    "short homekit pin",
			mutate:  func(c *Config) { c.HomeKit.Pin = "123" },
			wantErr: true,
		},
		{
			name: "api port ignored when disabled",
			mutate: func(c *Config) {
				c.API.Enabled = false
				c.API.Port = 0
			},
			wantErr: false,
		},
		{
			name: "bad device entry does not fail global validation",
			mutate: func(c *Config) {
				c.Devices = []DeviceConfig{{Address: ""}}
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDeviceConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		dev     DeviceConfig
		wantErr string
	}{
		{name: "complete", dev: DeviceConfig{Address: "1.2.3.4", Password: "pw"}},
		{name: "missing address", dev: DeviceConfig{Password: "pw"}, wantErr: "address"},
		{name: "missing password", dev: DeviceConfig{Address: "1.2.3.4"}, wantErr: "password"},
		{name: "missing both", dev: DeviceConfig{}, wantErr: "address and password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dev.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDeviceConfig_IncludesZone(t *testing.T) {
	tests := []struct {
		filter string
		zone   int
		want   bool
	}{
		{filter: "0", zone: 7, want: true},
		{filter: "2,5", zone: 2, want: true},
		{filter: "2,5", zone: 5, want: true},
		{filter: "2,5", zone: 3, want: false},
		{filter: "", zone: 1, want: false},
		{filter: "x, 4", zone: 4, want: true},
		{filter: "abc", zone: 1, want: false},
		{filter: "1, 0", zone: 9, want: true},
	}

	for _, tt := range tests {
		dev := DeviceConfig{IncludeZones: tt.filter}
		if got := dev.IncludesZone(tt.zone); got != tt.want {
			t.Errorf("IncludesZone(%q, %d) = %v, want %v", tt.filter, tt.zone, got, tt.want)
		}
	}
}

func TestDeviceConfig_ShowProgramSwitch(t *testing.T) {
	dev := DeviceConfig{ShowProgramASwitch: true, ShowProgramDSwitch: true}

	tests := map[string]bool{"A": true, "b": false, "C": false, "d": true, "E": false, "": false}
	for letter, want := range tests {
		if got := dev.ShowProgramSwitch(letter); got != want {
			t.Errorf("ShowProgramSwitch(%q) = %v, want %v", letter, got, want)
		}
	}
}

func TestDeviceConfig_PasswordNotSerialised(t *testing.T) {
	data, err := json.Marshal(DeviceConfig{Address: "1.2.3.4", Password: "hunter2"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(data), "hunter2") {
		t.Errorf("serialised device leaks password: %s", data)
	}
}
