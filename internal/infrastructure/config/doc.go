// Package config loads the rainbridge YAML file, applies RAINBRIDGE_*
// environment overrides, fills per-controller defaults and validates
// the result.
//
// Secrets have environment overrides so the file can be committed:
// RAINBRIDGE_MQTT_PASSWORD, RAINBRIDGE_INFLUXDB_TOKEN,
// RAINBRIDGE_API_JWT_SECRET and RAINBRIDGE_DEVICE_<n>_PASSWORD, where n
// is the zero-based index into devices. DeviceConfig.Password has no
// JSON encoding, so it never reaches a persisted accessory record.
//
//	cfg, err := config.Load(path)
//	if err != nil {
//		return fmt.Errorf("loading config: %w", err)
//	}
//	included := cfg.Devices[0].IncludesZone(3)
package config
