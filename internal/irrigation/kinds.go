package irrigation

import (
	"fmt"
	"sync"

	"github.com/nerrad567/rainbridge/internal/accessory"
	"github.com/nerrad567/rainbridge/internal/controller"
	"github.com/nerrad567/rainbridge/internal/infrastructure/config"
)

// Programs are the controller programs that may get a switch.
var Programs = []string{"A", "B", "C", "D"}

// Device is one connected controller. Passes and zone notifications for
// the same device are serialised on it.
type Device struct {
	Config   config.DeviceConfig
	Metadata controller.Metadata
	Handle   controller.Handle

	mu sync.Mutex
}

// baseName is the label the irrigation-system accessory is shown under.
func (d *Device) baseName() string {
	switch {
	case d.Config.Name != "":
		return d.Config.Name
	case d.Metadata.Model != "":
		return d.Metadata.Model
	default:
		return "Irrigation"
	}
}

// pass describes one accessory a device may have.
type pass struct {
	kind    accessory.Kind
	suffix  string
	name    string
	zone    int
	program string

	// show is the kind's visibility flag.
	show bool

	// eligible further gates the record on the system record's configured
	// map. nil means always eligible.
	eligible func(sys *accessory.SystemPayload) bool
}

func (p pass) id(d *Device) string {
	return accessory.DeriveID(d.Config.Address, p.suffix, d.Metadata.Serial)
}

func (p pass) String() string {
	switch {
	case p.zone > 0:
		return fmt.Sprintf("%s zone %d", p.kind, p.zone)
	case p.program != "":
		return fmt.Sprintf("%s %s", p.kind, p.program)
	default:
		return string(p.kind)
	}
}

func systemPass(d *Device) pass {
	return pass{
		kind:   accessory.KindIrrigationSystem,
		suffix: accessory.SystemSuffix(d.Metadata.Model),
		name:   d.baseName(),
		show:   true,
	}
}

func leakPass(d *Device) pass {
	return pass{
		kind:   accessory.KindLeakSensor,
		suffix: accessory.LeakSuffix(),
		name:   d.baseName() + " Rain Sensor",
		show:   d.Config.ShowLeakSensor,
	}
}

func valvePass(d *Device, zone int) pass {
	return pass{
		kind:   accessory.KindValve,
		suffix: accessory.ValveSuffix(d.Metadata.Model, zone),
		name:   fmt.Sprintf("Zone %d", zone),
		zone:   zone,
		show:   d.Config.ShowZoneValve,
		eligible: func(sys *accessory.SystemPayload) bool {
			return d.Config.IncludesZone(zone) && sys.IsConfigured(zone)
		},
	}
}

func contactPass(d *Device, zone int) pass {
	return pass{
		kind:   accessory.KindContactSensor,
		suffix: accessory.ContactSuffix(d.Metadata.Model, zone),
		name:   fmt.Sprintf("Zone %d Sensor", zone),
		zone:   zone,
		show:   d.Config.ShowValveSensor,
		eligible: func(sys *accessory.SystemPayload) bool {
			return sys.IsConfigured(zone)
		},
	}
}

func programPass(d *Device, program string) pass {
	return pass{
		kind:    accessory.KindProgramSwitch,
		suffix:  accessory.ProgramSuffix(d.Metadata.Model, program),
		name:    "Program " + program,
		program: program,
		show:    d.Config.ShowProgramSwitch(program),
	}
}

func stopPass(d *Device) pass {
	return pass{
		kind:   accessory.KindStopSwitch,
		suffix: accessory.StopSuffix(d.Metadata.Model),
		name:   "Stop Irrigation",
		show:   d.Config.ShowStopSwitch,
	}
}

func delayPass(d *Device) pass {
	return pass{
		kind:   accessory.KindDelaySwitch,
		suffix: accessory.DelaySuffix(d.Metadata.Model),
		name:   "Irrigation Delay",
		show:   d.Config.ShowDelaySwitch,
	}
}

// accessoryPasses lists every pass after the system pass, in order.
func accessoryPasses(d *Device) []pass {
	passes := []pass{leakPass(d)}
	for _, zone := range d.Metadata.Zones {
		passes = append(passes, valvePass(d, zone), contactPass(d, zone))
	}
	for _, program := range Programs {
		passes = append(passes, programPass(d, program))
	}
	return append(passes, stopPass(d), delayPass(d))
}
