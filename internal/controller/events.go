package controller

import (
	"sync"
)

// EventType names a controller notification.
type EventType string

// Controller notifications.
const (
	EventStatus          EventType = "status"
	EventRainSensorState EventType = "rain_sensor_state"
	EventZoneEnable      EventType = "zone_enable"
	EventLog             EventType = "log"
)

// Event is one notification from a controller. Only the fields relevant
// to Type are set.
type Event struct {
	Type EventType `json:"-"`

	// zone_enable
	Zone    int  `json:"zone,omitempty"`
	Enabled bool `json:"enabled,omitempty"`

	// rain_sensor_state
	Tripped bool `json:"tripped,omitempty"`

	// log: level is one of error, warn, debug, info
	Level   string `json:"level,omitempty"`
	Message string `json:"message,omitempty"`
}

// Emitter fans events out to per-type subscribers. Handlers run in the
// emitting goroutine; a panicking handler is logged and skipped.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]handlerEntry
	nextID   uint64
	closed   bool
	logger   Logger
}

type handlerEntry struct {
	id uint64
	fn func(Event)
}

// Subscription is a cancellable registration on an Emitter.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Cancel stops delivery. Safe to call more than once and on nil.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// NewEmitter creates an emitter. A nil logger discards panics silently.
func NewEmitter(logger Logger) *Emitter {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Emitter{
		handlers: make(map[EventType][]handlerEntry),
		logger:   logger,
	}
}

// Subscribe registers fn for events of type t.
func (e *Emitter) Subscribe(t EventType, fn func(Event)) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return &Subscription{cancel: func() {}}
	}

	id := e.nextID
	e.nextID++
	e.handlers[t] = append(e.handlers[t], handlerEntry{id: id, fn: fn})

	return &Subscription{cancel: func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		entries := e.handlers[t]
		for i, h := range entries {
			if h.id == id {
				e.handlers[t] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}}
}

// Emit delivers ev to every subscriber of ev.Type.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	entries := make([]handlerEntry, len(e.handlers[ev.Type]))
	copy(entries, e.handlers[ev.Type])
	e.mu.RUnlock()

	for _, h := range entries {
		e.safeCall(h.fn, ev)
	}
}

// SubscriberCount returns the number of live subscriptions for t.
func (e *Emitter) SubscriberCount(t EventType) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers[t])
}

// Close drops every subscription. Later Subscribe calls are inert.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.handlers = make(map[EventType][]handlerEntry)
}

func (e *Emitter) safeCall(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panicked", "event", string(ev.Type), "panic", r)
		}
	}()
	fn(ev)
}
