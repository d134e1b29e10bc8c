package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/rainbridge/internal/accessory"
)

// AccessoryView is the API shape of an accessory record.
type AccessoryView struct {
	ID         string       `json:"id"`
	HAPID      uint64       `json:"hap_id"`
	Kind       string       `json:"kind"`
	Name       string       `json:"name"`
	Address    string       `json:"address"`
	Serial     string       `json:"serial"`
	Model      string       `json:"model"`
	Firmware   string       `json:"firmware"`
	Zone       *int         `json:"zone,omitempty"`
	Program    string       `json:"program,omitempty"`
	Configured map[int]bool `json:"configured,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

func accessoryView(rec accessory.Record) AccessoryView {
	v := AccessoryView{
		ID:        rec.ID,
		HAPID:     accessory.HAPID(rec.ID),
		Kind:      string(rec.Kind),
		Name:      rec.Name,
		Address:   rec.Address(),
		Serial:    rec.Context.Serial,
		Model:     rec.Context.Model,
		Firmware:  rec.Context.Firmware,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if z := rec.Context.Zone; z != nil {
		zone := z.Zone
		v.Zone = &zone
	}
	if p := rec.Context.Program; p != nil {
		v.Program = p.Program
	}
	if sys := rec.Context.System; sys != nil {
		v.Configured = sys.Configured
	}
	return v
}

// handleListAccessories lists records, optionally filtered by ?device=
// and ?kind=. Results are ordered by address, kind order, zone, name.
func (s *Server) handleListAccessories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	kind := accessory.Kind(q.Get("kind"))
	if kind != "" && !kind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown kind: "+string(kind))
		return
	}

	var records []accessory.Record
	if address := q.Get("device"); address != "" {
		records = s.registry.ListByDevice(address)
	} else {
		records = s.registry.List()
	}

	views := make([]AccessoryView, 0, len(records))
	for _, rec := range records {
		if kind != "" && rec.Kind != kind {
			continue
		}
		views = append(views, accessoryView(rec))
	}
	sortAccessories(views)

	writeJSON(w, http.StatusOK, map[string]any{
		"accessories": views,
		"count":       len(views),
	})
}

func (s *Server) handleGetAccessory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := s.registry.Find(id)
	if !ok {
		writeError(w, http.StatusNotFound, "accessory not found")
		return
	}
	writeJSON(w, http.StatusOK, accessoryView(*rec))
}

var kindRank = func() map[string]int {
	m := make(map[string]int, len(accessory.AllKinds))
	for i, k := range accessory.AllKinds {
		m[string(k)] = i
	}
	return m
}()

func sortAccessories(views []AccessoryView) {
	zoneOf := func(v AccessoryView) int {
		if v.Zone == nil {
			return 0
		}
		return *v.Zone
	}
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i], views[j]
		if a.Address != b.Address {
			return a.Address < b.Address
		}
		if kindRank[a.Kind] != kindRank[b.Kind] {
			return kindRank[a.Kind] < kindRank[b.Kind]
		}
		if zoneOf(a) != zoneOf(b) {
			return zoneOf(a) < zoneOf(b)
		}
		return a.Name < b.Name
	})
}
