package influxdb

import "errors"

// Sentinel errors; match with errors.Is.
var (
	ErrDisabled         = errors.New("influxdb: telemetry disabled")
	ErrConnectionFailed = errors.New("influxdb: unreachable")
	ErrNotConnected     = errors.New("influxdb: client closed")

	// ErrWriteFailed wraps failures passed to the SetOnError callback.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
