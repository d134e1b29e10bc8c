// Package influxdb records irrigation telemetry in InfluxDB v2.
//
// A connected Client satisfies irrigation.Recorder, so it can sit beside
// the Prometheus recorder and receive every reconciliation outcome,
// discovery failure, zone status and rain sensor change:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	recorder := irrigation.Recorders{metrics, client}
//
// Writes are batched per batch_size and flush_interval; they never block
// the caller. Asynchronous write errors reach the SetOnError callback.
//
// Measurements:
//
//	reconcile       tags address, kind, outcome   field count
//	device_failure  tags address, reason          field count
//	zone_activity   tags address, zone            fields active, remaining_s
//	rain_sensor     tags address                  field tripped
package influxdb
