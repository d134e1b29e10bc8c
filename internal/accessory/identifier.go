package accessory

import (
	"encoding/binary"
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Namespace seeds identifier derivation. Changing it changes every
// identifier and orphans all persisted records.
var Namespace = uuid.MustParse("6f1c1a52-3b8e-4f0d-9a57-1c0e5b7d2a90")

// LeakSensorModel is the fixed model tag used for leak sensor identifiers.
const LeakSensorModel = "WR2"

// DeriveID returns the stable identifier for address-kindSuffix-serial.
// The same inputs always give the same value across restarts.
func DeriveID(address, kindSuffix, serial string) string {
	key := strings.Join([]string{address, kindSuffix, serial}, "-")
	return uuid.NewSHA1(Namespace, []byte(key)).String()
}

// SystemSuffix is the kind suffix for the irrigation-system record.
func SystemSuffix(model string) string { return model }

// LeakSuffix is the kind suffix for the leak (rain) sensor.
func LeakSuffix() string { return LeakSensorModel }

// ValveSuffix is the kind suffix for a zone valve.
func ValveSuffix(model string, zone int) string {
	return model + "-valve-" + strconv.Itoa(zone)
}

// ContactSuffix is the kind suffix for a zone contact sensor.
func ContactSuffix(model string, zone int) string {
	return model + "-" + strconv.Itoa(zone)
}

// ProgramSuffix is the kind suffix for a program switch.
func ProgramSuffix(model, program string) string {
	return model + "-pgm-" + program
}

// StopSuffix is the kind suffix for the stop switch.
func StopSuffix(model string) string { return model + "-stop" }

// DelaySuffix is the kind suffix for the irrigation-delay switch.
func DelaySuffix(model string) string { return model + "-delay" }

// hapIDSpan keeps accessory IDs in [2, 2^53). ID 1 belongs to the bridge.
const hapIDSpan = 1<<53 - 2

// HAPID maps an identifier to the numeric accessory ID HomeKit needs.
func HAPID(id string) uint64 {
	var n uint64
	if u, err := uuid.Parse(id); err == nil {
		n = binary.BigEndian.Uint64(u[:8])
	} else {
		h := fnv.New64a()
		_, _ = h.Write([]byte(id)) //nolint:errcheck // hash writes never fail
		n = h.Sum64()
	}
	return n%hapIDSpan + 2
}
