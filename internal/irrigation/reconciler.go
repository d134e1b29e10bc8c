package irrigation

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/rainbridge/internal/accessory"
	"github.com/nerrad567/rainbridge/internal/controller"
)

// ReconcilerConfig wires a Reconciler.
type ReconcilerConfig struct {
	Registry  *accessory.Registry
	Sanitizer *accessory.Sanitizer

	// Presenter and Recorder are optional.
	Presenter Presenter
	Recorder  Recorder
	Logger    Logger

	// PluginVersion is the firmware fallback when neither the device entry
	// nor the controller reports one.
	PluginVersion string
}

// Reconciler decides which accessory records a controller should have and
// brings the registry in line.
type Reconciler struct {
	registry      *accessory.Registry
	sanitizer     *accessory.Sanitizer
	presenter     Presenter
	recorder      Recorder
	logger        Logger
	pluginVersion string
}

// NewReconciler creates a Reconciler from cfg.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	r := &Reconciler{
		registry:      cfg.Registry,
		sanitizer:     cfg.Sanitizer,
		presenter:     cfg.Presenter,
		recorder:      cfg.Recorder,
		logger:        cfg.Logger,
		pluginVersion: cfg.PluginVersion,
	}
	if r.sanitizer == nil {
		r.sanitizer = accessory.NewSanitizer(false, nil)
	}
	if r.presenter == nil {
		r.presenter = nopPresenter{}
	}
	if r.recorder == nil {
		r.recorder = Recorders(nil)
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	return r
}

// Report counts the outcomes of one device pass.
type Report struct {
	Address  string `json:"address"`
	Created  int    `json:"created"`
	Restored int    `json:"restored"`
	Removed  int    `json:"removed"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`

	visited map[string]struct{}
}

func newReport(address string) *Report {
	return &Report{Address: address, visited: make(map[string]struct{})}
}

func (rep *Report) add(id string, o Outcome) {
	rep.visited[id] = struct{}{}
	switch o {
	case OutcomeCreated:
		rep.Created++
	case OutcomeRestored:
		rep.Restored++
	case OutcomeRemoved:
		rep.Removed++
	case OutcomeSkipped:
		rep.Skipped++
	case OutcomeFailed:
		rep.Failed++
	}
}

// ReconcileDevice runs every pass for d in order: irrigation system, leak
// sensor, valve and contact sensor per reported zone, program switches A-D,
// stop switch, delay switch. Records of the device that no pass visited are
// then removed.
//
// afterSystem, if set, runs once the irrigation-system record is registered
// and before any zone pass. It runs with the device lock held.
func (r *Reconciler) ReconcileDevice(ctx context.Context, d *Device, afterSystem func()) *Report {
	d.mu.Lock()
	defer d.mu.Unlock()

	rep := newReport(d.Config.Address)

	sys := systemPass(d)
	rep.add(sys.id(d), r.reconcile(ctx, d, sys))
	if afterSystem != nil {
		if _, ok := r.registry.Find(sys.id(d)); ok {
			afterSystem()
		}
	}

	for _, p := range accessoryPasses(d) {
		rep.add(p.id(d), r.reconcile(ctx, d, p))
	}

	r.sweep(ctx, d, rep)
	return rep
}

// reconcile runs the create/restore/remove decision for one pass.
func (r *Reconciler) reconcile(ctx context.Context, d *Device, p pass) Outcome {
	outcome := r.decide(ctx, d, p)
	r.recorder.PassCompleted(d.Config.Address, p.kind, outcome)
	return outcome
}

func (r *Reconciler) decide(ctx context.Context, d *Device, p pass) Outcome {
	id := p.id(d)
	existing, found := r.registry.Find(id)

	shouldExist := !d.Config.Delete && p.show
	if shouldExist && p.eligible != nil {
		shouldExist = p.eligible(r.systemPayload(d))
	}

	switch {
	case found && shouldExist:
		existing.Name = r.sanitizer.Sanitize(existing.Name, "name", p.name)
		existing.Context = r.buildContext(d, p, existing)
		if err := r.registry.Update(ctx, existing); err != nil {
			r.logger.Failure("failed to refresh accessory", err, "address", d.Config.Address, "accessory", p.String())
			return OutcomeFailed
		}
		r.attach(d, *existing)
		r.logger.Debug("accessory restored", "address", d.Config.Address, "accessory", p.String(), "id", id)
		return OutcomeRestored

	case found:
		if err := r.registry.Remove(ctx, id); err != nil && !errors.Is(err, accessory.ErrNotFound) {
			r.logger.Failure("failed to remove accessory", err, "address", d.Config.Address, "accessory", p.String())
			return OutcomeFailed
		}
		r.presenter.Detach(id)
		r.logger.Info("accessory removed", "address", d.Config.Address, "accessory", p.String(), "id", id)
		return OutcomeRemoved

	case shouldExist:
		rec := &accessory.Record{
			ID:   id,
			Kind: p.kind,
			Name: r.sanitizer.Sanitize(p.name, "name", p.name),
		}
		rec.Context = r.buildContext(d, p, nil)
		if err := r.registry.Register(ctx, rec); err != nil {
			if errors.Is(err, accessory.ErrConflict) {
				r.logger.Error("accessory already registered, skipping",
					"address", d.Config.Address, "accessory", p.String(), "id", id, "error", err)
				return OutcomeSkipped
			}
			r.logger.Failure("failed to create accessory", err, "address", d.Config.Address, "accessory", p.String())
			return OutcomeFailed
		}
		r.attach(d, *rec)
		r.logger.Info("accessory created", "address", d.Config.Address, "accessory", p.String(), "id", id)
		return OutcomeCreated

	default:
		if d.Config.Verbose {
			r.logger.Debug("accessory not shown", "address", d.Config.Address, "accessory", p.String())
		}
		return OutcomeSkipped
	}
}

// attachPersisted presents every registered record of address through
// handle, leaving the registry untouched. It returns how many were attached.
func (r *Reconciler) attachPersisted(address string, handle controller.Handle) int {
	n := 0
	for _, rec := range r.registry.ListByDevice(address) {
		if err := r.presenter.Attach(rec, handle); err != nil {
			r.logger.Warn("failed to attach accessory", "address", address, "id", rec.ID, "error", err)
			continue
		}
		n++
	}
	return n
}

func (r *Reconciler) attach(d *Device, rec accessory.Record) {
	if err := r.presenter.Attach(rec, d.Handle); err != nil {
		r.logger.Warn("failed to attach accessory", "address", d.Config.Address, "id", rec.ID, "error", err)
	}
}

// buildContext refreshes the shared fields and sets the kind payload. The
// system record keeps its configured map across passes.
func (r *Reconciler) buildContext(d *Device, p pass, existing *accessory.Record) accessory.Context {
	c := accessory.Context{
		Device:   d.Config,
		Serial:   d.Metadata.Serial,
		Model:    d.Metadata.Model,
		Firmware: r.firmware(d),
	}

	switch p.kind {
	case accessory.KindValve, accessory.KindContactSensor:
		c.Zone = &accessory.ZonePayload{Zone: p.zone}
	case accessory.KindProgramSwitch:
		c.Program = &accessory.ProgramPayload{Program: p.program}
	case accessory.KindIrrigationSystem:
		c.System = &accessory.SystemPayload{}
		if existing != nil && existing.Context.System != nil {
			c.System = existing.Context.System
		}
	}
	return c
}

// firmware resolves the version shown for d's accessories: the device
// entry override, then the controller's report, then the plugin version.
func (r *Reconciler) firmware(d *Device) string {
	switch {
	case d.Config.Firmware != "":
		return d.Config.Firmware
	case d.Metadata.Version != "":
		return d.Metadata.Version
	default:
		return r.pluginVersion
	}
}

// systemPayload returns d's configured map, or nil when the system record
// is not registered.
func (r *Reconciler) systemPayload(d *Device) *accessory.SystemPayload {
	rec, ok := r.registry.Find(systemPass(d).id(d))
	if !ok {
		return nil
	}
	return rec.Context.System
}

// sweep removes records of d that the pass did not visit: zones no longer
// reported and records from an earlier model or serial.
func (r *Reconciler) sweep(ctx context.Context, d *Device, rep *Report) {
	for _, rec := range r.registry.ListByDevice(d.Config.Address) {
		if _, ok := rep.visited[rec.ID]; ok {
			continue
		}
		if err := r.registry.Remove(ctx, rec.ID); err != nil && !errors.Is(err, accessory.ErrNotFound) {
			r.logger.Failure("failed to remove stale accessory", err, "address", d.Config.Address, "id", rec.ID)
			rep.Failed++
			continue
		}
		r.presenter.Detach(rec.ID)
		r.recorder.PassCompleted(d.Config.Address, rec.Kind, OutcomeRemoved)
		r.logger.Info("stale accessory removed", "address", d.Config.Address, "id", rec.ID,
			"kind", string(rec.Kind), "name", rec.Name)
		rep.Removed++
	}
}

// setZoneConfigured records zone's configured status on d's system record.
// Callers hold d's lock.
func (r *Reconciler) setZoneConfigured(ctx context.Context, d *Device, zone int, configured bool) error {
	rec, ok := r.registry.Find(systemPass(d).id(d))
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSystemRecord, d.Config.Address)
	}
	if rec.Context.System == nil {
		rec.Context.System = &accessory.SystemPayload{}
	}
	if v, set := rec.Context.System.Configured[zone]; set && v == configured {
		return nil
	}
	rec.Context.System.SetConfigured(zone, configured)
	return r.registry.Update(ctx, rec)
}

// reconcileZone runs the valve and contact-sensor passes for zone. Removal
// runs contact sensor first so a disabled zone loses its sensor before the
// valve. Callers hold d's lock.
func (r *Reconciler) reconcileZone(ctx context.Context, d *Device, zone int, enabled bool) []Outcome {
	passes := []pass{valvePass(d, zone), contactPass(d, zone)}
	if !enabled {
		passes[0], passes[1] = passes[1], passes[0]
	}
	out := make([]Outcome, 0, len(passes))
	for _, p := range passes {
		out = append(out, r.reconcile(ctx, d, p))
	}
	return out
}
