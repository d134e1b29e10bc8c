package accessory

import (
	"fmt"
	"time"

	"github.com/nerrad567/rainbridge/internal/infrastructure/config"
)

// Kind is the category of a logical accessory.
type Kind string

// Accessory kinds, in the order a device pass reconciles them.
const (
	KindIrrigationSystem Kind = "irrigation_system"
	KindLeakSensor       Kind = "leak_sensor"
	KindValve            Kind = "valve"
	KindContactSensor    Kind = "contact_sensor"
	KindProgramSwitch    Kind = "program_switch"
	KindStopSwitch       Kind = "stop_switch"
	KindDelaySwitch      Kind = "delay_switch"
)

// AllKinds lists every kind in reconciliation order.
var AllKinds = []Kind{
	KindIrrigationSystem,
	KindLeakSensor,
	KindValve,
	KindContactSensor,
	KindProgramSwitch,
	KindStopSwitch,
	KindDelaySwitch,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Record is one persisted logical accessory.
type Record struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	Context   Context   `json:"context"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Context holds the fields shared by every kind plus exactly one
// kind-specific payload (or none for leak, stop and delay).
type Context struct {
	// Device is the owning controller's configuration at the last pass.
	// The credential is never persisted.
	Device   config.DeviceConfig `json:"device"`
	Serial   string              `json:"serial"`
	Model    string              `json:"model"`
	Firmware string              `json:"firmware"`

	Zone    *ZonePayload    `json:"zone,omitempty"`
	Program *ProgramPayload `json:"program,omitempty"`
	System  *SystemPayload  `json:"system,omitempty"`
}

// ZonePayload identifies the zone behind a valve or contact sensor.
type ZonePayload struct {
	Zone int `json:"zone"`
}

// ProgramPayload identifies the program behind a program switch.
type ProgramPayload struct {
	Program string `json:"program"`
}

// SystemPayload is owned by the irrigation-system record and is the
// authority for per-zone configured status.
type SystemPayload struct {
	Configured map[int]bool `json:"configured"`
}

// IsConfigured reports whether zone is configured. A zone with no entry
// counts as configured.
func (s *SystemPayload) IsConfigured(zone int) bool {
	if s == nil {
		return true
	}
	v, ok := s.Configured[zone]
	return !ok || v
}

// SetConfigured records the configured status of zone.
func (s *SystemPayload) SetConfigured(zone int, configured bool) {
	if s.Configured == nil {
		s.Configured = make(map[int]bool)
	}
	s.Configured[zone] = configured
}

// Address returns the network address of the owning controller.
func (r *Record) Address() string {
	return r.Context.Device.Address
}

// Validate checks that the payload matches the kind.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRecord, r.Kind)
	}

	c := r.Context
	var want string
	switch r.Kind {
	case KindValve, KindContactSensor:
		want = "zone"
	case KindProgramSwitch:
		want = "program"
	case KindIrrigationSystem:
		want = "system"
	}

	got := map[string]bool{"zone": c.Zone != nil, "program": c.Program != nil, "system": c.System != nil}
	for payload, present := range got {
		if present != (payload == want) {
			return fmt.Errorf("%w: kind %s with %s payload present=%v", ErrInvalidRecord, r.Kind, payload, present)
		}
	}
	return nil
}

// DeepCopy returns a copy sharing no mutable state with r.
func (r *Record) DeepCopy() *Record {
	if r == nil {
		return nil
	}
	cpy := *r
	if r.Context.Zone != nil {
		z := *r.Context.Zone
		cpy.Context.Zone = &z
	}
	if r.Context.Program != nil {
		p := *r.Context.Program
		cpy.Context.Program = &p
	}
	if r.Context.System != nil {
		sys := SystemPayload{}
		if r.Context.System.Configured != nil {
			sys.Configured = make(map[int]bool, len(r.Context.System.Configured))
			for k, v := range r.Context.System.Configured {
				sys.Configured[k] = v
			}
		}
		cpy.Context.System = &sys
	}
	return &cpy
}
