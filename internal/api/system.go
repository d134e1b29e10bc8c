package api

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"
)

const healthCheckTimeout = 3 * time.Second

// handleHealth probes every registered component. Any failure turns the
// response into 503 so load balancers and supervisors can act on it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	components := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name].HealthCheck(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}

// SystemInfo is the body of GET /api/v1/system.
type SystemInfo struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeInfo    `json:"runtime"`
	Accessories   AccessoryStats `json:"accessories"`
	Devices       map[string]int `json:"devices"`
	HomeKit       *HomeKitInfo   `json:"homekit,omitempty"`
	StreamClients int            `json:"stream_clients"`
}

// RuntimeInfo contains Go runtime statistics.
type RuntimeInfo struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// AccessoryStats counts registry records.
type AccessoryStats struct {
	Total  int            `json:"total"`
	ByKind map[string]int `json:"by_kind"`
}

// HomeKitInfo reports the bridge state.
type HomeKitInfo struct {
	Published   bool `json:"published"`
	Accessories int  `json:"accessories"`
}

func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	info := SystemInfo{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Runtime: RuntimeInfo{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / (1 << 20),
			NumGC:         mem.NumGC,
		},
		Accessories:   AccessoryStats{ByKind: make(map[string]int)},
		Devices:       make(map[string]int),
		StreamClients: s.hub.ClientCount(),
	}

	for _, rec := range s.registry.List() {
		info.Accessories.Total++
		info.Accessories.ByKind[string(rec.Kind)]++
	}
	for _, d := range s.devices.Devices() {
		info.Devices[d.State]++
	}
	if s.bridge != nil {
		info.HomeKit = &HomeKitInfo{Published: s.bridge.Published(), Accessories: s.bridge.Count()}
	}

	writeJSON(w, http.StatusOK, info)
}
