package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/rainbridge/internal/irrigation"
)

// handleListDevices reports the discovery outcome of every configured
// controller, ?state= narrows the list.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")

	all := s.devices.Devices()
	devices := make([]irrigation.DeviceStatus, 0, len(all))
	for _, d := range all {
		if state == "" || d.State == state {
			devices = append(devices, d)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	for _, d := range s.devices.Devices() {
		if d.Address == address {
			writeJSON(w, http.StatusOK, map[string]any{
				"device":      d,
				"accessories": len(s.registry.ListByDevice(address)),
			})
			return
		}
	}
	writeError(w, http.StatusNotFound, "device not found")
}
