package accessory

import (
	"testing"

	"github.com/google/uuid"
)

func TestDeriveID_Stable(t *testing.T) {
	a := DeriveID("192.168.1.50", ValveSuffix("ESP-TM2", 3), "0000001234")
	b := DeriveID("192.168.1.50", ValveSuffix("ESP-TM2", 3), "0000001234")
	if a != b {
		t.Fatalf("DeriveID not deterministic: %s != %s", a, b)
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("DeriveID returned non-UUID %q: %v", a, err)
	}
}

func TestDeriveID_AnyInputChangesResult(t *testing.T) {
	base := DeriveID("10.0.0.2", "ESP-ME3-stop", "SN1")

	variants := map[string]string{
		"address": DeriveID("10.0.0.3", "ESP-ME3-stop", "SN1"),
		"suffix":  DeriveID("10.0.0.2", "ESP-ME3-delay", "SN1"),
		"serial":  DeriveID("10.0.0.2", "ESP-ME3-stop", "SN2"),
	}
	for input, got := range variants {
		if got == base {
			t.Errorf("changing %s did not change the identifier", input)
		}
	}
}

func TestDeriveID_DistinctPerKindAndZone(t *testing.T) {
	const addr, model, serial = "10.0.0.2", "ESP-TM2", "SN1"

	suffixes := []string{
		SystemSuffix(model),
		LeakSuffix(),
		StopSuffix(model),
		DelaySuffix(model),
	}
	for zone := 1; zone <= 8; zone++ {
		suffixes = append(suffixes, ValveSuffix(model, zone), ContactSuffix(model, zone))
	}
	for _, p := range []string{"A", "B", "C", "D"} {
		suffixes = append(suffixes, ProgramSuffix(model, p))
	}

	seen := make(map[string]string)
	for _, s := range suffixes {
		id := DeriveID(addr, s, serial)
		if prev, dup := seen[id]; dup {
			t.Errorf("suffix %q collides with %q", s, prev)
		}
		seen[id] = s
	}
}

func TestSuffixes(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{SystemSuffix("ESP-TM2"), "ESP-TM2"},
		{LeakSuffix(), "WR2"},
		{ValveSuffix("ESP-TM2", 4), "ESP-TM2-valve-4"},
		{ContactSuffix("ESP-TM2", 4), "ESP-TM2-4"},
		{ProgramSuffix("ESP-TM2", "B"), "ESP-TM2-pgm-B"},
		{StopSuffix("ESP-TM2"), "ESP-TM2-stop"},
		{DelaySuffix("ESP-TM2"), "ESP-TM2-delay"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("suffix = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestHAPID(t *testing.T) {
	id := DeriveID("10.0.0.2", "ESP-TM2", "SN1")

	if HAPID(id) != HAPID(id) {
		t.Error("HAPID not deterministic")
	}
	if HAPID(id) < 2 {
		t.Errorf("HAPID = %d, must not collide with the bridge", HAPID(id))
	}
	if HAPID(id) >= 1<<53 {
		t.Errorf("HAPID = %d, out of range", HAPID(id))
	}
	if HAPID(id) == HAPID(DeriveID("10.0.0.2", "ESP-TM2-stop", "SN1")) {
		t.Error("distinct identifiers produced the same HAPID")
	}
	if HAPID("not-a-uuid") < 2 {
		t.Error("fallback HAPID must not collide with the bridge")
	}
}
