package irrigation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/rainbridge/internal/controller"
	"github.com/nerrad567/rainbridge/internal/infrastructure/config"
)

// Device states reported by Discovery.Devices.
const (
	StateReady   = "ready"
	StateDeleted = "deleted"
	StateInvalid = "invalid"
	StateFailed  = "failed"
)

// DeviceStatus is the outcome of discovering one controller.
type DeviceStatus struct {
	Address      string    `json:"address"`
	Name         string    `json:"name,omitempty"`
	State        string    `json:"state"`
	Error        string    `json:"error,omitempty"`
	Model        string    `json:"model,omitempty"`
	Serial       string    `json:"serial,omitempty"`
	Zones        []int     `json:"zones,omitempty"`
	Report       *Report   `json:"report,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// DiscoveryConfig wires a Discovery.
type DiscoveryConfig struct {
	Dialer     controller.Dialer
	Reconciler *Reconciler

	// Concurrency bounds how many controllers are discovered at once.
	// Values below 1 mean one at a time.
	Concurrency int

	Recorder Recorder
	Logger   Logger
}

// Discovery connects every configured controller, reconciles its
// accessories and keeps a zone listener running for it until Close.
type Discovery struct {
	dialer      controller.Dialer
	reconciler  *Reconciler
	concurrency int
	recorder    Recorder
	logger      Logger

	mu       sync.Mutex
	sessions map[string]*session
	offline  map[string]controller.Handle
	statuses map[string]DeviceStatus
	order    []string
}

type session struct {
	device   *Device
	listener *Listener
	subs     []*controller.Subscription
}

// NewDiscovery creates a Discovery from cfg.
func NewDiscovery(cfg DiscoveryConfig) *Discovery {
	d := &Discovery{
		dialer:      cfg.Dialer,
		reconciler:  cfg.Reconciler,
		concurrency: cfg.Concurrency,
		recorder:    cfg.Recorder,
		logger:      cfg.Logger,
		sessions:    make(map[string]*session),
		offline:     make(map[string]controller.Handle),
		statuses:    make(map[string]DeviceStatus),
	}
	if d.concurrency < 1 {
		d.concurrency = 1
	}
	if d.recorder == nil {
		d.recorder = Recorders(nil)
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}
	return d
}

// Run discovers every device. A failing device is logged and skipped;
// the others are still discovered. Run returns ErrNoDevices when the list
// is empty and nil otherwise.
func (d *Discovery) Run(ctx context.Context, devices []config.DeviceConfig) error {
	if len(devices) == 0 {
		d.logger.Failure("no irrigation controllers configured", ErrNoDevices)
		return ErrNoDevices
	}

	seen := make(map[string]int, len(devices))
	var g errgroup.Group
	g.SetLimit(d.concurrency)

	for i, device := range devices {
		i, device := i, device

		if err := device.Validate(); err != nil {
			d.invalid(&ConfigError{Index: i, Address: device.Address, Err: err}, device.Address)
			continue
		}
		if first, dup := seen[device.Address]; dup {
			d.invalid(&ConfigError{Index: i, Address: device.Address,
				Err: fmt.Errorf("address already used by device %d", first)}, "")
			continue
		}
		seen[device.Address] = i

		g.Go(func() error {
			d.discover(ctx, device)
			return nil
		})
	}

	return g.Wait()
}

// invalid reports a rejected device entry under key, or under its list
// position when key is empty.
func (d *Discovery) invalid(err *ConfigError, key string) {
	d.logger.Failure("invalid device configuration, skipping", err, "index", err.Index)
	d.recorder.DeviceFailed(err.Address, "config")
	if key == "" {
		key = fmt.Sprintf("devices[%d]", err.Index)
	}
	d.setStatus(DeviceStatus{
		Address: key,
		State:   StateInvalid,
		Error:   err.Error(),
	})
}

// discover runs one device end to end. Failures leave existing records
// untouched.
func (d *Discovery) discover(ctx context.Context, cfg config.DeviceConfig) {
	log := d.logger
	start := time.Now()

	handle, err := d.dialer.Dial(ctx, cfg)
	if err != nil {
		d.failed(cfg, err)
		return
	}

	md, err := handle.Init(ctx)
	if err != nil {
		_ = handle.Close() //nolint:errcheck // already failing
		d.failed(cfg, err)
		return
	}

	dev := &Device{Config: cfg, Metadata: md, Handle: handle}
	s := &session{device: dev}
	if !cfg.Delete {
		s.listener = NewListener(ctx, d.reconciler, dev, log)
	}

	report := d.reconciler.ReconcileDevice(ctx, dev, func() {
		if s.listener != nil {
			s.listener.Start()
		}
	})

	status := DeviceStatus{
		Address:      cfg.Address,
		Name:         dev.baseName(),
		State:        StateReady,
		Model:        md.Model,
		Serial:       md.Serial,
		Zones:        md.Zones,
		Report:       report,
		DiscoveredAt: time.Now().UTC(),
	}

	if cfg.Delete {
		_ = handle.Close() //nolint:errcheck // device is being forgotten
		status.State = StateDeleted
		d.setStatus(status)
		log.Info("controller marked for deletion, accessories removed",
			"address", cfg.Address, "removed", report.Removed)
		return
	}

	s.subs = d.watch(dev)
	d.mu.Lock()
	d.sessions[cfg.Address] = s
	d.mu.Unlock()
	d.setStatus(status)

	log.Info("controller reconciled",
		"address", cfg.Address,
		"model", md.Model,
		"zones", len(md.Zones),
		"created", report.Created,
		"restored", report.Restored,
		"removed", report.Removed,
		"failed", report.Failed,
		"duration", time.Since(start))
}

func (d *Discovery) failed(cfg config.DeviceConfig, err error) {
	reason := "error"
	switch {
	case errors.Is(err, controller.ErrAuth):
		reason = "auth"
	case errors.Is(err, controller.ErrConnection):
		reason = "connection"
	}
	d.logger.Failure("controller unavailable, skipping", err, "address", cfg.Address, "reason", reason)
	d.recorder.DeviceFailed(cfg.Address, reason)
	d.setStatus(DeviceStatus{
		Address:      cfg.Address,
		Name:         cfg.Name,
		State:        StateFailed,
		Error:        err.Error(),
		DiscoveredAt: time.Now().UTC(),
	})
	if cfg.Delete {
		return
	}

	// Persisted accessories stay on the bridge until a pass succeeds.
	off := controller.NewOfflineHandle(cfg.Address, err)
	if n := d.reconciler.attachPersisted(cfg.Address, off); n > 0 {
		d.mu.Lock()
		d.offline[cfg.Address] = off
		d.mu.Unlock()
		d.logger.Info("presenting persisted accessories offline", "address", cfg.Address, "accessories", n)
		return
	}
	_ = off.Close() //nolint:errcheck // never fails
}

// watch forwards controller log lines and zone activity.
func (d *Discovery) watch(dev *Device) []*controller.Subscription {
	addr := dev.Config.Address
	h := dev.Handle

	logs := h.Subscribe(controller.EventLog, func(ev controller.Event) {
		d.logger.Emit(ev.Level, ev.Message, "address", addr)
	})
	status := h.Subscribe(controller.EventStatus, func(controller.Event) {
		for _, zone := range dev.Metadata.Zones {
			d.recorder.ZoneStatus(addr, zone, h.IsInUse(zone), h.RemainingDuration(zone))
		}
	})
	rain := h.Subscribe(controller.EventRainSensorState, func(ev controller.Event) {
		d.recorder.RainSensor(addr, ev.Tripped)
	})
	return []*controller.Subscription{logs, status, rain}
}

func (d *Discovery) setStatus(s DeviceStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.statuses[s.Address]; !ok {
		d.order = append(d.order, s.Address)
	}
	d.statuses[s.Address] = s
}

// Devices returns the discovery status of every device, in the order they
// were first seen.
func (d *Discovery) Devices() []DeviceStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]DeviceStatus, 0, len(d.order))
	for _, addr := range d.order {
		out = append(out, d.statuses[addr])
	}
	return out
}

// Handle returns the live handle for the controller at address.
func (d *Discovery) Handle(address string) (controller.Handle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[address]
	if !ok {
		return nil, false
	}
	return s.device.Handle, true
}

// Close stops every listener and closes every handle.
func (d *Discovery) Close() error {
	d.mu.Lock()
	sessions := make([]*session, 0, len(d.sessions))
	addrs := make([]string, 0, len(d.sessions))
	for addr := range d.sessions {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	for _, addr := range addrs {
		sessions = append(sessions, d.sessions[addr])
	}
	d.sessions = make(map[string]*session)
	offline := d.offline
	d.offline = make(map[string]controller.Handle)
	d.mu.Unlock()

	var errs []error
	for _, h := range offline {
		_ = h.Close() //nolint:errcheck // offline handles hold no connection
	}
	for _, s := range sessions {
		if s.listener != nil {
			s.listener.Stop()
		}
		for _, sub := range s.subs {
			sub.Cancel()
		}
		if err := s.device.Handle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", s.device.Config.Address, err))
		}
	}
	return errors.Join(errs...)
}
