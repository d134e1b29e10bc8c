package irrigation

import (
	"context"
	"testing"

	"github.com/nerrad567/rainbridge/internal/accessory"
	"github.com/nerrad567/rainbridge/internal/controller"
)

// startListener reconciles dev and starts a listener from the system hook.
func startListener(t *testing.T, f *fixture, dev *Device) *Listener {
	t.Helper()
	l := NewListener(context.Background(), f.rec, dev, f.logger)
	f.rec.ReconcileDevice(context.Background(), dev, l.Start)
	t.Cleanup(l.Stop)
	return l
}

func zoneDevice() *Device {
	cfg := testConfig()
	cfg.ShowValveSensor = true
	return newDevice(cfg, testMetadata(1, 2, 3, 4, 5))
}

func emitZone(dev *Device, zone int, enabled bool) {
	dev.Handle.(*fakeHandle).Emit(controller.Event{Type: controller.EventZoneEnable, Zone: zone, Enabled: enabled})
}

func TestListener_DisableRemovesZoneAccessories(t *testing.T) {
	f := newFixture(t)
	dev := zoneDevice()
	startListener(t, f, dev)

	contactID := contactPass(dev, 5).id(dev)
	valveID := valvePass(dev, 5).id(dev)
	if _, ok := f.registry.Find(contactID); !ok {
		t.Fatal("zone 5 contact sensor not created by discovery")
	}

	emitZone(dev, 5, false)

	if _, ok := f.registry.Find(contactID); ok {
		t.Error("zone 5 contact sensor still registered")
	}
	if _, ok := f.registry.Find(valveID); ok {
		t.Error("zone 5 valve still registered")
	}
	if f.presenter.isAttached(contactID) {
		t.Error("zone 5 contact sensor still attached")
	}

	sys := recordsOfKind(f.registry, dev.Config.Address, accessory.KindIrrigationSystem)[0]
	if sys.Context.System.IsConfigured(5) {
		t.Error("zone 5 still configured on system record")
	}
	if got := zonesOf(recordsOfKind(f.registry, dev.Config.Address, accessory.KindContactSensor)); !equalInts(got, []int{1, 2, 3, 4}) {
		t.Errorf("contact zones = %v, want [1 2 3 4]", got)
	}
}

func TestListener_ReEnableRestoresZone(t *testing.T) {
	f := newFixture(t)
	dev := zoneDevice()
	startListener(t, f, dev)

	emitZone(dev, 3, false)
	emitZone(dev, 3, true)

	if _, ok := f.registry.Find(valvePass(dev, 3).id(dev)); !ok {
		t.Error("zone 3 valve not recreated")
	}
	if _, ok := f.registry.Find(contactPass(dev, 3).id(dev)); !ok {
		t.Error("zone 3 contact sensor not recreated")
	}
}

func TestListener_NewZoneEnabled(t *testing.T) {
	f := newFixture(t)
	dev := zoneDevice()
	startListener(t, f, dev)

	emitZone(dev, 7, true)

	if _, ok := f.registry.Find(contactPass(dev, 7).id(dev)); !ok {
		t.Error("zone 7 contact sensor not created")
	}
}

func TestListener_RepeatedStateIgnored(t *testing.T) {
	f := newFixture(t)
	dev := zoneDevice()

	changes := 0
	f.registry.Observe(func(accessory.ChangeOp, accessory.Record) { changes++ })
	startListener(t, f, dev)
	changes = 0

	emitZone(dev, 1, true)
	if changes != 0 {
		t.Errorf("enable of enabled zone made %d changes", changes)
	}

	emitZone(dev, 1, false)
	afterDisable := changes
	emitZone(dev, 1, false)
	if changes != afterDisable {
		t.Errorf("repeated disable made %d more changes", changes-afterDisable)
	}
}

func TestListener_SubscribesAfterSystemPass(t *testing.T) {
	f := newFixture(t)
	dev := zoneDevice()
	h := dev.Handle.(*fakeHandle)

	l := NewListener(context.Background(), f.rec, dev, f.logger)
	if n := h.SubscriberCount(controller.EventZoneEnable); n != 0 {
		t.Fatalf("subscribed before Start: %d", n)
	}

	f.rec.ReconcileDevice(context.Background(), dev, func() {
		l.Start()
		l.Start()
	})
	if n := h.SubscriberCount(controller.EventZoneEnable); n != 1 {
		t.Errorf("subscriptions = %d, want 1", n)
	}

	l.Stop()
	if n := h.SubscriberCount(controller.EventZoneEnable); n != 0 {
		t.Errorf("subscriptions after Stop = %d, want 0", n)
	}
}

func TestListener_WithoutSystemRecord(t *testing.T) {
	f := newFixture(t)
	dev := zoneDevice()

	l := NewListener(context.Background(), f.rec, dev, f.logger)
	l.Start()
	defer l.Stop()

	emitZone(dev, 2, false)

	if f.registry.Count() != 0 {
		t.Errorf("registry count = %d, want 0", f.registry.Count())
	}
	if f.logger.count("failure") != 1 {
		t.Errorf("failure logs = %d, want 1", f.logger.count("failure"))
	}
}

func TestListener_StateSeededFromSystemRecord(t *testing.T) {
	f := newFixture(t)
	dev := zoneDevice()
	ctx := context.Background()

	f.rec.ReconcileDevice(ctx, dev, nil)
	if err := f.rec.setZoneConfigured(ctx, dev, 4, false); err != nil {
		t.Fatalf("setZoneConfigured() error = %v", err)
	}

	startListener(t, f, dev)

	// zone 4 starts disabled, so enabling it is a transition
	emitZone(dev, 4, true)
	if _, ok := f.registry.Find(valvePass(dev, 4).id(dev)); !ok {
		t.Error("zone 4 valve not created on enable")
	}
}

func TestListener_InvalidZoneIgnored(t *testing.T) {
	f := newFixture(t)
	dev := zoneDevice()
	startListener(t, f, dev)
	before := f.registry.Count()
	warns := f.logger.count("warn")

	for _, zone := range []int{0, -3} {
		emitZone(dev, zone, true)
		emitZone(dev, zone, false)
	}

	if got := f.registry.Count(); got != before {
		t.Errorf("registry count = %d, want %d", got, before)
	}
	want := []int{1, 2, 3, 4, 5}
	if got := zonesOf(recordsOfKind(f.registry, dev.Config.Address, accessory.KindValve)); !equalInts(got, want) {
		t.Errorf("valve zones = %v, want %v", got, want)
	}
	if got := zonesOf(recordsOfKind(f.registry, dev.Config.Address, accessory.KindContactSensor)); !equalInts(got, want) {
		t.Errorf("contact zones = %v, want %v", got, want)
	}
	sys := recordsOfKind(f.registry, dev.Config.Address, accessory.KindIrrigationSystem)[0]
	if _, set := sys.Context.System.Configured[0]; set {
		t.Error("zone 0 recorded on system record")
	}
	if got := f.logger.count("warn") - warns; got != 4 {
		t.Errorf("warnings = %d, want 4", got)
	}
}
