package accessory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/rainbridge/internal/infrastructure/config"
)

// mockRepository is an in-memory Repository for registry tests.
type mockRepository struct {
	mu      sync.Mutex
	order   []string
	records map[string]Record

	listErr   error
	createErr error
	updateErr error
	deleteErr error
}

func newMockRepository(seed ...Record) *mockRepository {
	m := &mockRepository{records: make(map[string]Record)}
	for _, r := range seed {
		m.order = append(m.order, r.ID)
		m.records[r.ID] = r
	}
	return m
}

func (m *mockRepository) List(context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]Record, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.records[id])
	}
	return out, nil
}

func (m *mockRepository) Create(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.records[rec.ID]; ok {
		return ErrConflict
	}
	m.order = append(m.order, rec.ID)
	m.records[rec.ID] = *rec.DeepCopy()
	return nil
}

func (m *mockRepository) Update(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.records[rec.ID]; !ok {
		return ErrNotFound
	}
	m.records[rec.ID] = *rec.DeepCopy()
	return nil
}

func (m *mockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
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

func (m *mockRepository) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[id]
	return ok
}

func valveRecord(address string, zone int) *Record {
	return &Record{
		ID:   DeriveID(address, ValveSuffix("ESP-TM2", zone), "SN1"),
		Kind: KindValve,
		Name: "Zone",
		Context: Context{
			Device: config.DeviceConfig{Address: address},
			Model:  "ESP-TM2",
			Serial: "SN1",
			Zone:   &ZonePayload{Zone: zone},
		},
	}
}

func TestRegistry_RegisterFindList(t *testing.T) {
	repo := newMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	for zone := 1; zone <= 3; zone++ {
		if err := reg.Register(ctx, valveRecord("10.0.0.2", zone)); err != nil {
			t.Fatalf("Register(zone %d) error = %v", zone, err)
		}
	}

	if reg.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", reg.Count())
	}

	list := reg.List()
	for i, rec := range list {
		if rec.Context.Zone.Zone != i+1 {
			t.Errorf("List()[%d] zone = %d, want %d (registration order)", i, rec.Context.Zone.Zone, i+1)
		}
		if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
			t.Errorf("List()[%d] missing timestamps", i)
		}
	}

	want := valveRecord("10.0.0.2", 2)
	got, ok := reg.Find(want.ID)
	if !ok {
		t.Fatal("Find() did not return registered record")
	}
	if got.Context.Zone.Zone != 2 {
		t.Errorf("Find() zone = %d, want 2", got.Context.Zone.Zone)
	}
	if !repo.has(want.ID) {
		t.Error("record not written through to repository")
	}

	if _, ok := reg.Find("missing"); ok {
		t.Error("Find() returned a record for an unknown id")
	}
}

func TestRegistry_RegisterConflict(t *testing.T) {
	reg := NewRegistry(newMockRepository())
	ctx := context.Background()

	rec := valveRecord("10.0.0.2", 1)
	if err := reg.Register(ctx, rec); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	dup := valveRecord("10.0.0.2", 1)
	dup.Name = "Overwrite"
	err := reg.Register(ctx, dup)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Register(dup) error = %v, want ErrConflict", err)
	}

	got, _ := reg.Find(rec.ID)
	if got.Name != "Zone" {
		t.Errorf("existing record overwritten: name = %q", got.Name)
	}
	if reg.Count() != 1 {
		t.Errorf("Count() = %d, want 1", reg.Count())
	}
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	reg := NewRegistry(newMockRepository())
	err := reg.Register(context.Background(), &Record{ID: "x", Kind: KindValve})
	if !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("Register() error = %v, want ErrInvalidRecord", err)
	}
	if reg.Count() != 0 {
		t.Error("invalid record was registered")
	}
}

func TestRegistry_PersistFailureLeavesMemoryUntouched(t *testing.T) {
	repo := newMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	repo.createErr = errors.New("disk full")
	if err := reg.Register(ctx, valveRecord("10.0.0.2", 1)); err == nil {
		t.Fatal("expected error when repository fails")
	}
	if reg.Count() != 0 {
		t.Error("record visible in memory after failed persist")
	}

	repo.createErr = nil
	rec := valveRecord("10.0.0.2", 1)
	if err := reg.Register(ctx, rec); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	repo.deleteErr = errors.New("locked")
	if err := reg.Remove(ctx, rec.ID); err == nil {
		t.Fatal("expected error when delete fails")
	}
	if _, ok := reg.Find(rec.ID); !ok {
		t.Error("record dropped from memory after failed delete")
	}
}

func TestRegistry_Update(t *testing.T) {
	repo := newMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	rec := valveRecord("10.0.0.2", 1)
	if err := reg.Register(ctx, rec); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	created := rec.CreatedAt

	rec.Name = "Front Lawn"
	rec.Context.Firmware = "3.0"
	if err := reg.Update(ctx, rec); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, _ := reg.Find(rec.ID)
	if got.Name != "Front Lawn" || got.Context.Firmware != "3.0" {
		t.Errorf("Update() not applied: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Error("Update() changed CreatedAt")
	}
	if repo.records[rec.ID].Name != "Front Lawn" {
		t.Error("Update() not written through")
	}

	err := reg.Update(ctx, valveRecord("10.0.0.2", 9))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_Remove(t *testing.T) {
	repo := newMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	for zone := 1; zone <= 3; zone++ {
		if err := reg.Register(ctx, valveRecord("10.0.0.2", zone)); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}

	middle := valveRecord("10.0.0.2", 2).ID
	if err := reg.Remove(ctx, middle); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, ok := reg.Find(middle); ok {
		t.Error("removed record still found")
	}
	if repo.has(middle) {
		t.Error("removed record still persisted")
	}

	list := reg.List()
	if len(list) != 2 || list[0].Context.Zone.Zone != 1 || list[1].Context.Zone.Zone != 3 {
		t.Errorf("List() after remove = %+v", list)
	}

	if err := reg.Remove(ctx, middle); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove() error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_Restore(t *testing.T) {
	seed := []Record{*valveRecord("10.0.0.2", 1), *valveRecord("10.0.0.3", 4), *valveRecord("10.0.0.2", 5)}
	reg := NewRegistry(newMockRepository(seed...))

	if err := reg.Restore(context.Background()); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if reg.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", reg.Count())
	}

	byDevice := reg.ListByDevice("10.0.0.2")
	if len(byDevice) != 2 {
		t.Fatalf("ListByDevice() = %d records, want 2", len(byDevice))
	}
	if byDevice[0].Context.Zone.Zone != 1 || byDevice[1].Context.Zone.Zone != 5 {
		t.Errorf("ListByDevice() order = %d,%d", byDevice[0].Context.Zone.Zone, byDevice[1].Context.Zone.Zone)
	}

	failing := newMockRepository()
	failing.listErr = errors.New("boom")
	if err := NewRegistry(failing).Restore(context.Background()); err == nil {
		t.Error("expected Restore() to fail")
	}
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	reg := NewRegistry(newMockRepository())
	ctx := context.Background()

	sys := &Record{
		ID:      "sys",
		Kind:    KindIrrigationSystem,
		Context: Context{System: &SystemPayload{Configured: map[int]bool{}}},
	}
	if err := reg.Register(ctx, sys); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// caller mutations must not leak in
	sys.Context.System.Configured[1] = false
	got, _ := reg.Find("sys")
	if _, ok := got.Context.System.Configured[1]; ok {
		t.Error("mutating registered record leaked into registry")
	}

	got.Context.System.Configured[2] = false
	again, _ := reg.Find("sys")
	if _, ok := again.Context.System.Configured[2]; ok {
		t.Error("mutating found record leaked into registry")
	}
}

func TestRegistry_Observe(t *testing.T) {
	reg := NewRegistry(newMockRepository())
	ctx := context.Background()

	var ops []ChangeOp
	reg.Observe(func(op ChangeOp, rec Record) {
		// must be callable without deadlocking
		_ = reg.Count()
		ops = append(ops, op)
	})

	rec := valveRecord("10.0.0.2", 1)
	_ = reg.Register(ctx, rec)
	_ = reg.Update(ctx, rec)
	_ = reg.Remove(ctx, rec.ID)

	want := []ChangeOp{OpRegistered, OpUpdated, OpRemoved}
	if len(ops) != len(want) {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("ops[%d] = %s, want %s", i, ops[i], want[i])
		}
	}
}

func TestRegistry_ConcurrentRegister(t *testing.T) {
	reg := NewRegistry(newMockRepository())
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	conflicts := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := reg.Register(ctx, valveRecord("10.0.0.2", 1))
			if errors.Is(err, ErrConflict) {
				mu.Lock()
				conflicts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if reg.Count() != 1 {
		t.Errorf("Count() = %d, want 1", reg.Count())
	}
	if conflicts != 15 {
		t.Errorf("conflicts = %d, want 15", conflicts)
	}
}
