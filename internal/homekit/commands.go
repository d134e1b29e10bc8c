package homekit

import (
	"context"
	"time"

	"github.com/brutella/hc/characteristic"
)

// Remote writes from HomeKit run off the HAP goroutine. After a command
// the controller status is re-read once push_rate has passed so the new
// state reaches HomeKit.

func (e *entry) onSystemActive(v int) {
	if v != characteristic.ActiveInactive {
		return
	}
	e.exec("stop irrigation", func(ctx context.Context) error {
		return e.handle.StopIrrigation(ctx)
	})
}

func (e *entry) onValveActive(zone, v int, duration time.Duration) {
	if v == characteristic.ActiveActive {
		e.exec("start zone", func(ctx context.Context) error {
			return e.handle.StartZone(ctx, zone, duration)
		})
		return
	}
	// controllers can only stop every zone at once
	e.exec("stop zone", func(ctx context.Context) error {
		return e.handle.DeactivateAllZones(ctx)
	})
}

func (e *entry) onProgram(program string, on bool) {
	if on {
		e.exec("start program", func(ctx context.Context) error {
			return e.handle.StartProgram(ctx, program)
		})
		return
	}
	e.exec("stop program", func(ctx context.Context) error {
		return e.handle.StopIrrigation(ctx)
	})
}

func (e *entry) onStop() {
	e.exec("stop irrigation", func(ctx context.Context) error {
		return e.handle.StopIrrigation(ctx)
	})
}

func (e *entry) onDelay(on bool) {
	delay := time.Duration(0)
	if on {
		delay = time.Duration(e.record().Context.Device.IrrigationDelay) * time.Hour
	}
	e.exec("set irrigation delay", func(ctx context.Context) error {
		return e.handle.SetIrrigationDelay(ctx, delay)
	})
}

func (e *entry) exec(action string, fn func(ctx context.Context) error) {
	p := e.presenter
	p.spawn(func() {
		ctx, cancel := commandContext()
		defer cancel()

		log := p.logger
		rec := e.record()
		if err := fn(ctx); err != nil {
			log.Error("controller command failed",
				"action", action, "accessory", rec.Name, "address", rec.Address(), "error", err)
			return
		}
		log.Info("controller command sent", "action", action, "accessory", rec.Name)

		push := rec.Context.Device.GetPushInterval()
		p.spawn(func() {
			time.Sleep(push)
			ctx, cancel := commandContext()
			defer cancel()
			if err := e.handle.RefreshStatus(ctx); err != nil {
				log.Warn("status refresh after command failed", "address", rec.Address(), "error", err)
			}
		})
	})
}
