package irrigation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/rainbridge/internal/accessory"
	"github.com/nerrad567/rainbridge/internal/controller"
	"github.com/nerrad567/rainbridge/internal/infrastructure/config"
)

// memRepository is an in-memory accessory.Repository with error injection.
type memRepository struct {
	mu        sync.Mutex
	order     []string
	records   map[string]accessory.Record
	createErr error
	updateErr error
	deleteErr error
}

func newMemRepository() *memRepository {
	return &memRepository{records: make(map[string]accessory.Record)}
}

func (m *memRepository) List(context.Context) ([]accessory.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]accessory.Record, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.records[id])
	}
	return out, nil
}

func (m *memRepository) Create(_ context.Context, rec *accessory.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.records[rec.ID]; ok {
		return accessory.ErrConflict
	}
	m.order = append(m.order, rec.ID)
	m.records[rec.ID] = *rec.DeepCopy()
	return nil
}

func (m *memRepository) Update(_ context.Context, rec *accessory.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.records[rec.ID]; !ok {
		return accessory.ErrNotFound
	}
	m.records[rec.ID] = *rec.DeepCopy()
	return nil
}

func (m *memRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.records[id]; !ok {
		return accessory.ErrNotFound
	}
	delete(m.records, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// fakeHandle is a controller.Handle driven by the test.
type fakeHandle struct {
	*controller.Emitter

	md       controller.Metadata
	initErr  error
	initHook func()

	mu     sync.Mutex
	inUse  map[int]bool
	closed bool
}

func newFakeHandle(md controller.Metadata) *fakeHandle {
	return &fakeHandle{Emitter: controller.NewEmitter(nil), md: md, inUse: make(map[int]bool)}
}

func (h *fakeHandle) Init(context.Context) (controller.Metadata, error) {
	if h.initHook != nil {
		h.initHook()
	}
	return h.md, h.initErr
}

func (h *fakeHandle) RefreshStatus(context.Context) error { return nil }

func (h *fakeHandle) IsInUse(zone int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inUse[zone]
}

func (h *fakeHandle) IsProgramRunning(string) (bool, bool)                 { return false, false }
func (h *fakeHandle) StartProgram(context.Context, string) error           { return nil }
func (h *fakeHandle) StopIrrigation(context.Context) error                 { return nil }
func (h *fakeHandle) DeactivateAllZones(context.Context) error             { return nil }
func (h *fakeHandle) StartZone(context.Context, int, time.Duration) error  { return nil }
func (h *fakeHandle) IrrigationDelay(context.Context) (time.Duration, error) { return 0, nil }
func (h *fakeHandle) SetIrrigationDelay(context.Context, time.Duration) error {
	return nil
}
func (h *fakeHandle) RainSensorState() bool { return false }

func (h *fakeHandle) RemainingDuration(zone int) time.Duration {
	if h.IsInUse(zone) {
		return time.Minute
	}
	return 0
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.Emitter.Close()
	return nil
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// fakeDialer hands out prepared handles by address.
type fakeDialer struct {
	mu      sync.Mutex
	handles map[string]*fakeHandle
	dialErr error
}

func (d *fakeDialer) Dial(_ context.Context, device config.DeviceConfig) (controller.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	h, ok := d.handles[device.Address]
	if !ok {
		return nil, fmt.Errorf("%w: no route to %s", controller.ErrConnection, device.Address)
	}
	return h, nil
}

// fakePresenter records attach/detach calls.
type fakePresenter struct {
	mu        sync.Mutex
	attached  map[string]accessory.Record
	handles   map[string]controller.Handle
	detached  []string
	attachErr error
}

func newFakePresenter() *fakePresenter {
	return &fakePresenter{
		attached: make(map[string]accessory.Record),
		handles:  make(map[string]controller.Handle),
	}
}

func (p *fakePresenter) Attach(rec accessory.Record, handle controller.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attachErr != nil {
		return p.attachErr
	}
	p.attached[rec.ID] = rec
	p.handles[rec.ID] = handle
	return nil
}

func (p *fakePresenter) Detach(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.attached, id)
	p.detached = append(p.detached, id)
}

func (p *fakePresenter) isAttached(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.attached[id]
	return ok
}

// recordingRecorder captures Recorder calls.
type recordingRecorder struct {
	mu       sync.Mutex
	passes   map[Outcome]int
	failures map[string]string
	zones    map[int]bool
	rain     []bool
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{
		passes:   make(map[Outcome]int),
		failures: make(map[string]string),
		zones:    make(map[int]bool),
	}
}

func (r *recordingRecorder) PassCompleted(_ string, _ accessory.Kind, o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passes[o]++
}

func (r *recordingRecorder) DeviceFailed(address, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[address] = reason
}

func (r *recordingRecorder) ZoneStatus(_ string, zone int, active bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zones[zone] = active
}

func (r *recordingRecorder) RainSensor(_ string, tripped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rain = append(r.rain, tripped)
}

// recordingLogger captures log lines by level.
type recordingLogger struct {
	mu    sync.Mutex
	lines map[string][]string
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{lines: make(map[string][]string)}
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines[level] = append(l.lines[level], msg)
}

func (l *recordingLogger) Debug(msg string, _ ...any)           { l.add("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)            { l.add("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)            { l.add("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any)           { l.add("error", msg) }
func (l *recordingLogger) Emit(level, msg string, _ ...any)     { l.add("emit:"+level, msg) }
func (l *recordingLogger) Failure(msg string, _ error, _ ...any) { l.add("failure", msg) }

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines[level])
}

// fixture bundles a reconciler with its collaborators.
type fixture struct {
	repo      *memRepository
	registry  *accessory.Registry
	presenter *fakePresenter
	recorder  *recordingRecorder
	logger    *recordingLogger
	rec       *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      newMemRepository(),
		presenter: newFakePresenter(),
		recorder:  newRecordingRecorder(),
		logger:    newRecordingLogger(),
	}
	f.registry = accessory.NewRegistry(f.repo)
	f.rec = NewReconciler(ReconcilerConfig{
		Registry:      f.registry,
		Sanitizer:     accessory.NewSanitizer(false, nil),
		Presenter:     f.presenter,
		Recorder:      f.recorder,
		Logger:        f.logger,
		PluginVersion: "1.0.0",
	})
	return f
}

func testConfig() config.DeviceConfig {
	return config.DeviceConfig{
		Address:       "10.0.0.2",
		Password:      "secret",
		ShowZoneValve: true,
		IncludeZones:  "0",
	}
}

func testMetadata(zones ...int) controller.Metadata {
	return controller.Metadata{Model: "ESP-TM2", Version: "2.9", Serial: "SN1", Zones: zones}
}

func newDevice(cfg config.DeviceConfig, md controller.Metadata) *Device {
	return &Device{Config: cfg, Metadata: md, Handle: newFakeHandle(md)}
}

// recordsOfKind returns the zone or program keys of every record of kind.
func recordsOfKind(reg *accessory.Registry, address string, kind accessory.Kind) []accessory.Record {
	var out []accessory.Record
	for _, rec := range reg.ListByDevice(address) {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

func zonesOf(recs []accessory.Record) []int {
	out := make([]int, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Context.Zone.Zone)
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
