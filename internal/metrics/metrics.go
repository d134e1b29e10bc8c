// Package metrics exposes Prometheus metrics for reconciliation, controller
// activity and the status API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/rainbridge/internal/accessory"
	"github.com/nerrad567/rainbridge/internal/irrigation"
)

const namespace = "rainbridge"

// Metrics owns a private registry so tests and multiple instances never
// collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	passes         *prometheus.CounterVec
	deviceFailures *prometheus.CounterVec
	zoneActive     *prometheus.GaugeVec
	zoneRemaining  *prometheus.GaugeVec
	rainSensor     *prometheus.GaugeVec
	accessories    prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New creates and registers every collector, plus the Go and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_passes_total",
			Help:      "Reconciliation passes by accessory kind and outcome.",
		}, []string{"kind", "outcome"}),
		deviceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_failures_total",
			Help:      "Controllers skipped during discovery, by reason.",
		}, []string{"address", "reason"}),
		zoneActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "zone_active",
			Help:      "1 while the zone is watering.",
		}, []string{"address", "zone"}),
		zoneRemaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "zone_remaining_seconds",
			Help:      "Watering time left on the zone.",
		}, []string{"address", "zone"}),
		rainSensor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rain_sensor_tripped",
			Help:      "1 while the controller's rain sensor is tripped.",
		}, []string{"address"}),
		accessories: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accessories",
			Help:      "Registered accessory records.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.passes,
		m.deviceFailures,
		m.zoneActive,
		m.zoneRemaining,
		m.rainSensor,
		m.accessories,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// PassCompleted counts one reconciliation pass.
func (m *Metrics) PassCompleted(_ string, kind accessory.Kind, outcome irrigation.Outcome) {
	m.passes.WithLabelValues(string(kind), string(outcome)).Inc()
}

// DeviceFailed counts a controller skipped during discovery.
func (m *Metrics) DeviceFailed(address, reason string) {
	m.deviceFailures.WithLabelValues(address, reason).Inc()
}

// ZoneStatus records the watering state of one zone.
func (m *Metrics) ZoneStatus(address string, zone int, active bool, remaining time.Duration) {
	z := strconv.Itoa(zone)
	m.zoneActive.WithLabelValues(address, z).Set(boolValue(active))
	if !active {
		remaining = 0
	}
	m.zoneRemaining.WithLabelValues(address, z).Set(remaining.Seconds())
}

// RainSensor records the rain sensor state.
func (m *Metrics) RainSensor(address string, tripped bool) {
	m.rainSensor.WithLabelValues(address).Set(boolValue(tripped))
}

// AccessoryCount sets the registered accessory gauge.
func (m *Metrics) AccessoryCount(n int) {
	m.accessories.Set(float64(n))
}

// ObserveHTTP records one served request. route is the matched pattern,
// not the raw path.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var _ irrigation.Recorder = (*Metrics)(nil)
