package homekit

import (
	"fmt"
	"sync"
	"time"

	hcaccessory "github.com/brutella/hc/accessory"
	"github.com/brutella/hc/characteristic"
	"github.com/brutella/hc/service"

	"github.com/nerrad567/rainbridge/internal/accessory"
	"github.com/nerrad567/rainbridge/internal/controller"
)

// typeSprinkler is the HAP category for sprinkler accessories.
const typeSprinkler hcaccessory.AccessoryType = 28

// defaultZoneDuration seeds the set-duration characteristic of a valve.
const defaultZoneDuration = 5 * time.Minute

// entry binds one record to its HAP accessory and controller handle.
type entry struct {
	// recMu guards rec against re-attachment while commands run. Writers
	// also hold the presenter lock.
	recMu     sync.RWMutex
	rec       accessory.Record
	handle    controller.Handle
	presenter *Presenter

	acc     *hcaccessory.Accessory
	refresh func()
	subs    []*controller.Subscription
}

func (e *entry) record() accessory.Record {
	e.recMu.RLock()
	defer e.recMu.RUnlock()
	return e.rec
}

func (e *entry) setRecord(rec accessory.Record) {
	e.recMu.Lock()
	e.rec = rec
	e.recMu.Unlock()
}

func (e *entry) info() hcaccessory.Info {
	return hcaccessory.Info{
		Name:             e.rec.Name,
		SerialNumber:     e.rec.Context.Serial,
		Manufacturer:     manufacturer,
		Model:            e.rec.Context.Model,
		FirmwareRevision: e.rec.Context.Firmware,
		ID:               accessory.HAPID(e.rec.ID),
	}
}

// build creates the accessory and the refresh function for the kind.
func (e *entry) build() error {
	switch e.rec.Kind {
	case accessory.KindIrrigationSystem:
		e.buildSystem()
	case accessory.KindLeakSensor:
		e.buildLeakSensor()
	case accessory.KindValve:
		e.buildValve()
	case accessory.KindContactSensor:
		e.buildContactSensor()
	case accessory.KindProgramSwitch:
		e.buildProgramSwitch()
	case accessory.KindStopSwitch:
		e.buildStopSwitch()
	case accessory.KindDelaySwitch:
		e.buildDelaySwitch()
	default:
		return fmt.Errorf("unsupported kind %q", e.rec.Kind)
	}
	return nil
}

func (e *entry) buildSystem() {
	e.acc = hcaccessory.New(e.info(), typeSprinkler)
	svc := service.NewIrrigationSystem()
	svc.Active.SetValue(characteristic.ActiveActive)
	svc.ProgramMode.SetValue(characteristic.ProgramModeProgramScheduled)
	svc.Active.OnValueRemoteUpdate(func(v int) { e.onSystemActive(v) })
	e.acc.AddService(svc.Service)

	e.refresh = func() {
		svc.InUse.SetValue(inUse(e.handle.IsInUse(0)))
	}
}

func (e *entry) buildLeakSensor() {
	e.acc = hcaccessory.New(e.info(), hcaccessory.TypeSensor)
	svc := service.NewLeakSensor()
	e.acc.AddService(svc.Service)

	e.refresh = func() {
		if e.handle.RainSensorState() {
			svc.LeakDetected.SetValue(characteristic.LeakDetectedLeakDetected)
		} else {
			svc.LeakDetected.SetValue(characteristic.LeakDetectedLeakNotDetected)
		}
	}
}

func (e *entry) buildValve() {
	zone := e.rec.Context.Zone.Zone

	e.acc = hcaccessory.New(e.info(), typeSprinkler)
	svc := service.NewValve()
	svc.ValveType.SetValue(characteristic.ValveTypeIrrigation)

	setDuration := characteristic.NewSetDuration()
	setDuration.SetValue(int(defaultZoneDuration / time.Second))
	remaining := characteristic.NewRemainingDuration()
	configured := characteristic.NewIsConfigured()
	configured.SetValue(characteristic.IsConfiguredConfigured)

	svc.AddCharacteristic(setDuration.Characteristic)
	svc.AddCharacteristic(remaining.Characteristic)
	svc.AddCharacteristic(configured.Characteristic)

	svc.Active.OnValueRemoteUpdate(func(v int) {
		e.onValveActive(zone, v, time.Duration(setDuration.GetValue())*time.Second)
	})
	e.acc.AddService(svc.Service)

	e.refresh = func() {
		running := e.handle.IsInUse(zone)
		svc.InUse.SetValue(inUse(running))
		if running {
			svc.Active.SetValue(characteristic.ActiveActive)
			remaining.SetValue(int(e.handle.RemainingDuration(zone) / time.Second))
		} else {
			svc.Active.SetValue(characteristic.ActiveInactive)
			remaining.SetValue(0)
		}
	}
}

func (e *entry) buildContactSensor() {
	zone := e.rec.Context.Zone.Zone

	e.acc = hcaccessory.New(e.info(), hcaccessory.TypeSensor)
	svc := service.NewContactSensor()
	e.acc.AddService(svc.Service)

	// open while the zone is watering
	e.refresh = func() {
		if e.handle.IsInUse(zone) {
			svc.ContactSensorState.SetValue(characteristic.ContactSensorStateContactNotDetected)
		} else {
			svc.ContactSensorState.SetValue(characteristic.ContactSensorStateContactDetected)
		}
	}
}

func (e *entry) buildProgramSwitch() {
	program := e.rec.Context.Program.Program

	e.acc = hcaccessory.New(e.info(), hcaccessory.TypeSwitch)
	svc := service.NewSwitch()
	svc.On.OnValueRemoteUpdate(func(on bool) { e.onProgram(program, on) })
	e.acc.AddService(svc.Service)

	e.refresh = func() {
		if running, known := e.handle.IsProgramRunning(program); known {
			svc.On.SetValue(running)
		}
	}
}

func (e *entry) buildStopSwitch() {
	e.acc = hcaccessory.New(e.info(), hcaccessory.TypeSwitch)
	svc := service.NewSwitch()
	svc.On.OnValueRemoteUpdate(func(on bool) {
		if on {
			e.onStop()
		}
	})
	e.acc.AddService(svc.Service)

	// momentary: always reads off
	e.refresh = func() {
		svc.On.SetValue(false)
	}
}

func (e *entry) buildDelaySwitch() {
	e.acc = hcaccessory.New(e.info(), hcaccessory.TypeSwitch)
	svc := service.NewSwitch()
	svc.On.OnValueRemoteUpdate(func(on bool) { e.onDelay(on) })
	e.acc.AddService(svc.Service)

	e.refresh = func() {}
}

// watch re-reads characteristics whenever the controller reports status.
func (e *entry) watch() {
	update := func(controller.Event) { e.refresh() }
	e.subs = append(e.subs, e.handle.Subscribe(controller.EventStatus, update))
	if e.rec.Kind == accessory.KindLeakSensor {
		e.subs = append(e.subs, e.handle.Subscribe(controller.EventRainSensorState, update))
	}
}

func (e *entry) close() {
	for _, sub := range e.subs {
		sub.Cancel()
	}
	e.subs = nil
}

func inUse(running bool) int {
	if running {
		return characteristic.InUseInUse
	}
	return characteristic.InUseNotInUse
}
