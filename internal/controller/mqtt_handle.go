package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/rainbridge/internal/infrastructure/config"
	"github.com/nerrad567/rainbridge/internal/infrastructure/mqtt"
)

// Bus is the subset of the MQTT client a handle needs.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

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

const defaultRequestTimeout = 10 * time.Second

// HandleOptions tunes an MQTTHandle.
type HandleOptions struct {
	QoS     byte
	Timeout time.Duration
	Logger  Logger
}

// MQTTHandle implements Handle by exchanging JSON messages with a
// controller gateway over MQTT.
type MQTTHandle struct {
	bus     Bus
	device  config.DeviceConfig
	qos     byte
	timeout time.Duration
	logger  Logger
	emitter *Emitter
	topics  mqtt.Topics

	mu          sync.Mutex
	pending     map[string]chan ResponseMessage
	status      StatusSnapshot
	subscribed  bool
	initialised bool
	closed      bool

	done     chan struct{}
	pollStop context.CancelFunc
	pollWG   sync.WaitGroup

	newID func() string
	now   func() time.Time
}

// NewMQTTHandle creates a handle for device. Nothing is sent until Init.
func NewMQTTHandle(bus Bus, device config.DeviceConfig, opts HandleOptions) *MQTTHandle {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRequestTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &MQTTHandle{
		bus:     bus,
		device:  device,
		qos:     opts.QoS,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		emitter: NewEmitter(opts.Logger),
		pending: make(map[string]chan ResponseMessage),
		done:    make(chan struct{}),
		newID:   uuid.NewString,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Address returns the controller address this handle talks to.
func (h *MQTTHandle) Address() string {
	return h.device.Address
}

// Init subscribes to the gateway topics, authenticates and returns the
// controller metadata. With sync_time set the controller clock is set too.
// A status poll runs every refresh_rate seconds until Close.
func (h *MQTTHandle) Init(ctx context.Context) (Metadata, error) {
	if err := h.subscribe(); err != nil {
		return Metadata{}, err
	}

	var md Metadata
	err := h.request(ctx, ActionInit, map[string]any{"password": h.device.Password}, &md)
	if err != nil {
		return Metadata{}, err
	}

	if h.device.SyncTime {
		params := map[string]any{"time": h.now().Format(time.RFC3339)}
		if err := h.request(ctx, ActionSyncTime, params, nil); err != nil {
			h.logger.Warn("controller time sync failed", "address", h.device.Address, "error", err)
		}
	}

	h.mu.Lock()
	h.initialised = true
	h.mu.Unlock()

	if err := h.RefreshStatus(ctx); err != nil {
		h.logger.Warn("initial status refresh failed", "address", h.device.Address, "error", err)
	}

	h.startPolling()
	return md, nil
}

func (h *MQTTHandle) subscribe() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if h.subscribed {
		return nil
	}

	addr := h.device.Address
	if err := h.bus.Subscribe(h.topics.Responses(addr), h.qos, h.handleResponse); err != nil {
		return fmt.Errorf("%w: subscribing to responses: %w", ErrConnection, err)
	}
	if err := h.bus.Subscribe(h.topics.Events(addr), h.qos, h.handleEvent); err != nil {
		_ = h.bus.Unsubscribe(h.topics.Responses(addr)) //nolint:errcheck // best effort
		return fmt.Errorf("%w: subscribing to events: %w", ErrConnection, err)
	}
	h.subscribed = true
	return nil
}

// RefreshStatus fetches and caches the controller status, then emits a
// status event.
func (h *MQTTHandle) RefreshStatus(ctx context.Context) error {
	if err := h.ready(); err != nil {
		return err
	}

	var snap StatusSnapshot
	if err := h.request(ctx, ActionStatus, nil, &snap); err != nil {
		return err
	}

	h.mu.Lock()
	h.status = snap
	h.mu.Unlock()

	h.emitter.Emit(Event{Type: EventStatus})
	return nil
}

// IsInUse reports whether zone is watering; zone 0 means any zone.
func (h *MQTTHandle) IsInUse(zone int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if zone == 0 {
		return len(h.status.ActiveZones) > 0
	}
	for _, z := range h.status.ActiveZones {
		if z == zone {
			return true
		}
	}
	return false
}

// IsProgramRunning reports program state when the model exposes it.
func (h *MQTTHandle) IsProgramRunning(program string) (running, known bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.status.Programs == nil {
		return false, false
	}
	running, known = h.status.Programs[strings.ToUpper(program)]
	return running, known
}

// StartProgram starts program A-D.
func (h *MQTTHandle) StartProgram(ctx context.Context, program string) error {
	return h.command(ctx, ActionStartProgram, map[string]any{"program": strings.ToUpper(program)})
}

// StopIrrigation stops whatever is running.
func (h *MQTTHandle) StopIrrigation(ctx context.Context) error {
	return h.command(ctx, ActionStopIrrigation, nil)
}

// DeactivateAllZones closes every zone valve.
func (h *MQTTHandle) DeactivateAllZones(ctx context.Context) error {
	return h.command(ctx, ActionDeactivateAllZones, nil)
}

// StartZone waters zone for duration, rounded down to whole seconds.
func (h *MQTTHandle) StartZone(ctx context.Context, zone int, duration time.Duration) error {
	return h.command(ctx, ActionStartZone, map[string]any{
		"zone":     zone,
		"duration": int(duration / time.Second),
	})
}

// RemainingDuration is the time left on zone within the configured bounds.
func (h *MQTTHandle) RemainingDuration(zone int) time.Duration {
	h.mu.Lock()
	secs := h.status.Remaining[zone]
	h.mu.Unlock()

	if secs < h.device.MinValueRemaining {
		secs = h.device.MinValueRemaining
	}
	if h.device.MaxValueRemaining > 0 && secs > h.device.MaxValueRemaining {
		secs = h.device.MaxValueRemaining
	}
	return time.Duration(secs) * time.Second
}

// IrrigationDelay returns the current rain delay.
func (h *MQTTHandle) IrrigationDelay(ctx context.Context) (time.Duration, error) {
	if err := h.ready(); err != nil {
		return 0, err
	}
	var d delayData
	if err := h.request(ctx, ActionGetDelay, nil, &d); err != nil {
		return 0, err
	}
	return time.Duration(d.Hours) * time.Hour, nil
}

// SetIrrigationDelay sets the rain delay, rounded down to whole hours.
func (h *MQTTHandle) SetIrrigationDelay(ctx context.Context, delay time.Duration) error {
	return h.command(ctx, ActionSetDelay, map[string]any{"hours": int(delay / time.Hour)})
}

// RainSensorState reports whether the rain sensor is tripped.
func (h *MQTTHandle) RainSensorState() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status.RainSensor
}

// Subscribe registers fn for events of type t.
func (h *MQTTHandle) Subscribe(t EventType, fn func(Event)) *Subscription {
	return h.emitter.Subscribe(t, fn)
}

// Close stops polling, drops gateway subscriptions and cancels every
// event subscription. Pending requests fail with ErrClosed.
func (h *MQTTHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	subscribed := h.subscribed
	stop := h.pollStop
	close(h.done)
	h.mu.Unlock()

	if stop != nil {
		stop()
	}
	h.pollWG.Wait()

	var errs []error
	if subscribed {
		addr := h.device.Address
		errs = append(errs,
			h.bus.Unsubscribe(h.topics.Responses(addr)),
			h.bus.Unsubscribe(h.topics.Events(addr)))
	}
	h.emitter.Close()
	return errors.Join(errs...)
}

func (h *MQTTHandle) ready() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case h.closed:
		return ErrClosed
	case !h.initialised:
		return ErrNotInitialised
	}
	return nil
}

func (h *MQTTHandle) command(ctx context.Context, action string, params map[string]any) error {
	if err := h.ready(); err != nil {
		return err
	}
	return h.request(ctx, action, params, nil)
}

// request publishes one request and waits for the matching response.
func (h *MQTTHandle) request(ctx context.Context, action string, params map[string]any, out any) error {
	id := h.newID()
	reply := make(chan ResponseMessage, 1)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	h.pending[id] = reply
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
	}()

	body, err := json.Marshal(RequestMessage{
		RequestID:  id,
		Timestamp:  h.now(),
		Action:     action,
		Parameters: params,
	})
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", action, err)
	}

	if h.device.ShowRequestResponse {
		h.logger.Info("controller request", "address", h.device.Address, "action", action, "request_id", id)
	}

	if err := h.bus.Publish(h.topics.Request(h.device.Address, id), body, h.qos, false); err != nil {
		return fmt.Errorf("%w: sending %s: %w", ErrConnection, action, err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var resp ResponseMessage
	select {
	case resp = <-reply:
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w: %s after %v", ErrConnection, ErrTimeout, action, h.timeout)
		}
		return ctx.Err()
	}

	if h.device.ShowRequestResponse {
		h.logger.Info("controller response", "address", h.device.Address, "action", action,
			"request_id", id, "success", resp.Success, "data", string(resp.Data))
	}

	if !resp.Success {
		return gatewayError(action, resp.Error)
	}
	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("decoding %s response: %w", action, err)
		}
	}
	return nil
}

// gatewayError maps a gateway error onto the package error taxonomy.
func gatewayError(action string, e *ResponseError) error {
	if e == nil {
		return fmt.Errorf("%w: %s failed without detail", ErrRejected, action)
	}
	switch e.Code {
	case CodeAuthFailed:
		return fmt.Errorf("%w: %s", ErrAuth, e.Message)
	case CodeDeviceUnreachable:
		return fmt.Errorf("%w: %s", ErrConnection, e.Message)
	default:
		return fmt.Errorf("%w: %s: %s %s", ErrRejected, action, e.Code, e.Message)
	}
}

func (h *MQTTHandle) handleResponse(topic string, payload []byte) error {
	var resp ResponseMessage
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("decoding response on %s: %w", topic, err)
	}
	if resp.RequestID == "" {
		resp.RequestID = topic[strings.LastIndex(topic, "/")+1:]
	}

	h.mu.Lock()
	reply, ok := h.pending[resp.RequestID]
	h.mu.Unlock()
	if !ok {
		return nil // late or foreign response
	}

	select {
	case reply <- resp:
	default:
	}
	return nil
}

func (h *MQTTHandle) handleEvent(topic string, payload []byte) error {
	name := EventType(topic[strings.LastIndex(topic, "/")+1:])

	switch name {
	case EventStatus:
		if len(payload) > 0 {
			var snap StatusSnapshot
			if err := json.Unmarshal(payload, &snap); err != nil {
				return fmt.Errorf("decoding status event: %w", err)
			}
			h.mu.Lock()
			h.status = snap
			h.mu.Unlock()
		}
		h.emitter.Emit(Event{Type: EventStatus})

	case EventRainSensorState, EventZoneEnable, EventLog:
		var ev Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("decoding %s event: %w", name, err)
		}
		ev.Type = name
		if name == EventRainSensorState {
			h.mu.Lock()
			h.status.RainSensor = ev.Tripped
			h.mu.Unlock()
		}
		h.emitter.Emit(ev)

	default:
		return fmt.Errorf("unknown controller event %q", name)
	}
	return nil
}

// startPolling refreshes status every refresh_rate seconds, or every
// poll_rate seconds while a zone is watering.
func (h *MQTTHandle) startPolling() {
	if h.device.RefreshRate <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.mu.Lock()
	if h.closed || h.pollStop != nil {
		h.mu.Unlock()
		cancel()
		return
	}
	h.pollStop = cancel
	h.mu.Unlock()

	h.pollWG.Add(1)
	go func() {
		defer h.pollWG.Done()
		timer := time.NewTimer(h.pollInterval())
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				if err := h.RefreshStatus(ctx); err != nil && ctx.Err() == nil {
					h.logger.Warn("status refresh failed", "address", h.device.Address, "error", err)
				}
				timer.Reset(h.pollInterval())
			}
		}
	}()
}

func (h *MQTTHandle) pollInterval() time.Duration {
	if h.device.PollRate > 0 && h.IsInUse(0) {
		return time.Duration(h.device.PollRate) * time.Second
	}
	return h.device.GetRefreshInterval()
}
