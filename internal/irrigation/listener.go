package irrigation

import (
	"context"

	"github.com/nerrad567/rainbridge/internal/controller"
)

// Listener keeps a device's zone accessories in step with live zone
// enable/disable notifications between discovery passes.
type Listener struct {
	reconciler *Reconciler
	device     *Device
	logger     Logger

	// ctx bounds registry writes made from notifications.
	ctx context.Context

	// enabled is the last known state per zone, guarded by device.mu.
	enabled map[int]bool
	sub     *controller.Subscription
}

// NewListener creates a listener for d. Nothing is subscribed until Start.
func NewListener(ctx context.Context, r *Reconciler, d *Device, logger Logger) *Listener {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Listener{
		reconciler: r,
		device:     d,
		logger:     logger,
		ctx:        ctx,
		enabled:    make(map[int]bool),
	}
}

// Start seeds zone state from the reported zones and the system record,
// then subscribes to zone_enable. The irrigation-system record must exist.
// Callers hold the device lock (Start runs as the afterSystem hook).
func (l *Listener) Start() {
	if l.sub != nil {
		return
	}
	sys := l.reconciler.systemPayload(l.device)
	for _, zone := range l.device.Metadata.Zones {
		l.enabled[zone] = sys.IsConfigured(zone)
	}
	l.sub = l.device.Handle.Subscribe(controller.EventZoneEnable, l.handle)
}

// Stop cancels the subscription.
func (l *Listener) Stop() {
	l.sub.Cancel()
}

func (l *Listener) handle(ev controller.Event) {
	d := l.device
	// zone 0 means "all zones" to the controller; only 1-based zones get accessories
	if ev.Zone < 1 {
		l.logger.Warn("ignoring zone_enable for invalid zone", "address", d.Config.Address, "zone", ev.Zone)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, known := l.enabled[ev.Zone]; known && prev == ev.Enabled {
		if d.Config.Verbose {
			l.logger.Debug("zone state unchanged", "address", d.Config.Address, "zone", ev.Zone, "enabled", ev.Enabled)
		}
		return
	}

	l.logger.Info("zone state changed", "address", d.Config.Address, "zone", ev.Zone, "enabled", ev.Enabled)

	if err := l.reconciler.setZoneConfigured(l.ctx, d, ev.Zone, ev.Enabled); err != nil {
		l.logger.Failure("failed to record zone state", err, "address", d.Config.Address, "zone", ev.Zone)
		return
	}
	l.enabled[ev.Zone] = ev.Enabled
	l.reconciler.reconcileZone(l.ctx, d, ev.Zone, ev.Enabled)
}
