package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/rainbridge/internal/accessory"
	"github.com/nerrad567/rainbridge/internal/irrigation"
)

// Measurements written by the Recorder methods.
const (
	MeasurementReconcile = "reconcile"
	MeasurementFailure   = "device_failure"
	MeasurementZone      = "zone_activity"
	MeasurementRain      = "rain_sensor"
)

var _ irrigation.Recorder = (*Client)(nil)

// PassCompleted records one reconciliation pass.
func (c *Client) PassCompleted(address string, kind accessory.Kind, outcome irrigation.Outcome) {
	c.write(MeasurementReconcile,
		map[string]string{"address": address, "kind": string(kind), "outcome": string(outcome)},
		map[string]any{"count": 1})
}

// DeviceFailed records a controller skipped during discovery.
func (c *Client) DeviceFailed(address, reason string) {
	c.write(MeasurementFailure,
		map[string]string{"address": address, "reason": reason},
		map[string]any{"count": 1})
}

// ZoneStatus records the watering state of one zone. Remaining time is
// written as zero for an idle zone.
func (c *Client) ZoneStatus(address string, zone int, active bool, remaining time.Duration) {
	if !active {
		remaining = 0
	}
	c.write(MeasurementZone,
		map[string]string{"address": address, "zone": strconv.Itoa(zone)},
		map[string]any{"active": active, "remaining_s": remaining.Seconds()})
}

// RainSensor records the rain sensor state.
func (c *Client) RainSensor(address string, tripped bool) {
	c.write(MeasurementRain,
		map[string]string{"address": address},
		map[string]any{"tripped": tripped})
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.write(measurement, tags, fields)
}

// WritePointWithTime writes a custom point at ts.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}

func (c *Client) write(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}
