package accessory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ChangeOp names a registry mutation.
type ChangeOp string

// Registry mutations reported to observers.
const (
	OpRegistered ChangeOp = "registered"
	OpUpdated    ChangeOp = "updated"
	OpRemoved    ChangeOp = "removed"
)

// Observer is told about every committed mutation. It runs after the
// registry lock is released and receives its own copy of the record.
type Observer func(op ChangeOp, rec Record)

// Registry is the ordered set of accessory records, written through to a
// Repository. A record is only visible in memory once it is persisted.
//
// All public methods are thread-safe. Returned records are deep copies.
type Registry struct {
	mu      sync.Mutex
	repo    Repository
	order   []string
	records map[string]*Record

	logger    Logger
	observers []Observer
	now       func() time.Time
}

// NewRegistry creates an empty registry backed by repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:    repo,
		records: make(map[string]*Record),
		logger:  noopLogger{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Observe registers fn for change notifications. Call before use.
func (r *Registry) Observe(fn Observer) {
	r.observers = append(r.observers, fn)
}

// Restore replaces the in-memory set with the persisted records.
// It is called once at startup, before any device pass.
func (r *Registry) Restore(ctx context.Context) error {
	records, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading accessories: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = make([]string, 0, len(records))
	r.records = make(map[string]*Record, len(records))
	for i := range records {
		rec := records[i]
		if _, dup := r.records[rec.ID]; dup {
			r.logger.Warn("duplicate persisted accessory ignored", "id", rec.ID)
			continue
		}
		r.order = append(r.order, rec.ID)
		r.records[rec.ID] = rec.DeepCopy()
	}

	r.logger.Info("accessories restored", "count", len(r.order))
	return nil
}

// Find returns the record with the given identifier.
func (r *Registry) Find(id string) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, false
	}
	return rec.DeepCopy(), true
}

// Register persists and appends rec. Returns ErrConflict if its identifier
// is already registered; the existing record is left untouched.
func (r *Registry) Register(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.records[rec.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrConflict, rec.ID)
	}

	stored := rec.DeepCopy()
	now := r.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	if err := r.repo.Create(ctx, stored); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("persisting accessory %s: %w", rec.ID, err)
	}
	r.order = append(r.order, stored.ID)
	r.records[stored.ID] = stored
	snapshot := *stored.DeepCopy()
	r.mu.Unlock()

	rec.CreatedAt, rec.UpdatedAt = stored.CreatedAt, stored.UpdatedAt
	r.notify(OpRegistered, snapshot)
	return nil
}

// Update persists and replaces an existing record. Returns ErrNotFound if
// the identifier is not registered.
func (r *Registry) Update(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	current, ok := r.records[rec.ID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, rec.ID)
	}

	stored := rec.DeepCopy()
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = r.now()

	if err := r.repo.Update(ctx, stored); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("persisting accessory %s: %w", rec.ID, err)
	}
	r.records[stored.ID] = stored
	snapshot := *stored.DeepCopy()
	r.mu.Unlock()

	rec.CreatedAt, rec.UpdatedAt = stored.CreatedAt, stored.UpdatedAt
	r.notify(OpUpdated, snapshot)
	return nil
}

// Remove forgets the record in memory and in the repository.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := r.repo.Delete(ctx, id); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("deleting accessory %s: %w", id, err)
	}
	delete(r.records, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.notify(OpRemoved, *rec)
	return nil
}

// List returns every record in registration order.
func (r *Registry) List() []Record {
	return r.filter(func(*Record) bool { return true })
}

// ListByDevice returns the records owned by the controller at address.
func (r *Registry) ListByDevice(address string) []Record {
	return r.filter(func(rec *Record) bool { return rec.Address() == address })
}

// Count returns the number of registered records.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

func (r *Registry) filter(keep func(*Record) bool) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Record, 0, len(r.order))
	for _, id := range r.order {
		rec := r.records[id]
		if keep(rec) {
			out = append(out, *rec.DeepCopy())
		}
	}
	return out
}

func (r *Registry) notify(op ChangeOp, rec Record) {
	for _, fn := range r.observers {
		fn(op, rec)
	}
}
