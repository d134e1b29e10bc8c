package accessory

import (
	"errors"
	"testing"

	"github.com/nerrad567/rainbridge/internal/infrastructure/config"
)

func TestRecord_Validate(t *testing.T) {
	zone := &ZonePayload{Zone: 1}
	prog := &ProgramPayload{Program: "A"}
	sys := &SystemPayload{}

	tests := []struct {
		name    string
		rec     Record
		wantErr bool
	}{
		{"valve with zone", Record{ID: "x", Kind: KindValve, Context: Context{Zone: zone}}, false},
		{"contact with zone", Record{ID: "x", Kind: KindContactSensor, Context: Context{Zone: zone}}, false},
		{"program with program", Record{ID: "x", Kind: KindProgramSwitch, Context: Context{Program: prog}}, false},
		{"system with system", Record{ID: "x", Kind: KindIrrigationSystem, Context: Context{System: sys}}, false},
		{"leak bare", Record{ID: "x", Kind: KindLeakSensor}, false},
		{"stop bare", Record{ID: "x", Kind: KindStopSwitch}, false},
		{"missing id", Record{Kind: KindLeakSensor}, true},
		{"unknown kind", Record{ID: "x", Kind: "sprinkler"}, true},
		{"valve without zone", Record{ID: "x", Kind: KindValve}, true},
		{"valve with extra program", Record{ID: "x", Kind: KindValve, Context: Context{Zone: zone, Program: prog}}, true},
		{"delay with system", Record{ID: "x", Kind: KindDelaySwitch, Context: Context{System: sys}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("Validate() error = %v, want ErrInvalidRecord", err)
			}
		})
	}
}

func TestSystemPayload_IsConfigured(t *testing.T) {
	var nilPayload *SystemPayload
	if !nilPayload.IsConfigured(3) {
		t.Error("nil payload should treat zones as configured")
	}

	s := &SystemPayload{}
	if !s.IsConfigured(1) {
		t.Error("absent entry should count as configured")
	}
	s.SetConfigured(1, false)
	if s.IsConfigured(1) {
		t.Error("zone 1 should be unconfigured")
	}
	s.SetConfigured(1, true)
	if !s.IsConfigured(1) {
		t.Error("zone 1 should be configured again")
	}
}

func TestRecord_DeepCopy(t *testing.T) {
	orig := &Record{
		ID:   "id",
		Kind: KindIrrigationSystem,
		Context: Context{
			Device: config.DeviceConfig{Address: "10.0.0.2"},
			System: &SystemPayload{Configured: map[int]bool{1: true}},
		},
	}

	cpy := orig.DeepCopy()
	cpy.Context.System.Configured[1] = false
	cpy.Context.System.Configured[2] = true
	cpy.Context.Device.Address = "changed"

	if !orig.Context.System.Configured[1] || len(orig.Context.System.Configured) != 1 {
		t.Error("mutating copy changed original configured map")
	}
	if orig.Address() != "10.0.0.2" {
		t.Error("mutating copy changed original device snapshot")
	}

	z := &Record{ID: "z", Kind: KindValve, Context: Context{Zone: &ZonePayload{Zone: 4}}}
	zc := z.DeepCopy()
	zc.Context.Zone.Zone = 9
	if z.Context.Zone.Zone != 4 {
		t.Error("mutating copy changed original zone payload")
	}

	var nilRec *Record
	if nilRec.DeepCopy() != nil {
		t.Error("DeepCopy of nil should be nil")
	}
}
