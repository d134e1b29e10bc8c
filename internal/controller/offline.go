package controller

import (
	"context"
	"fmt"
	"time"
)

// OfflineHandle stands in for a controller that could not be reached.
// Queries report idle and every command fails with ErrConnection, so
// accessories persisted for the controller stay presented without
// accepting commands.
type OfflineHandle struct {
	address string
	cause   error
	events  *Emitter
}

// NewOfflineHandle returns a handle for address that failed with cause.
func NewOfflineHandle(address string, cause error) *OfflineHandle {
	return &OfflineHandle{address: address, cause: cause, events: NewEmitter(nil)}
}

func (h *OfflineHandle) unavailable() error {
	if h.cause == nil {
		return fmt.Errorf("%w: %s is offline", ErrConnection, h.address)
	}
	return fmt.Errorf("%w: %s is offline: %v", ErrConnection, h.address, h.cause)
}

// Init always fails; an offline handle never connects.
func (h *OfflineHandle) Init(context.Context) (Metadata, error) { return Metadata{}, h.unavailable() }

func (h *OfflineHandle) RefreshStatus(context.Context) error        { return h.unavailable() }
func (h *OfflineHandle) IsInUse(int) bool                           { return false }
func (h *OfflineHandle) IsProgramRunning(string) (bool, bool)       { return false, false }
func (h *OfflineHandle) StartProgram(context.Context, string) error { return h.unavailable() }
func (h *OfflineHandle) StopIrrigation(context.Context) error       { return h.unavailable() }
func (h *OfflineHandle) DeactivateAllZones(context.Context) error   { return h.unavailable() }
func (h *OfflineHandle) RemainingDuration(int) time.Duration        { return 0 }
func (h *OfflineHandle) RainSensorState() bool                      { return false }

func (h *OfflineHandle) StartZone(context.Context, int, time.Duration) error {
	return h.unavailable()
}

func (h *OfflineHandle) IrrigationDelay(context.Context) (time.Duration, error) {
	return 0, h.unavailable()
}

func (h *OfflineHandle) SetIrrigationDelay(context.Context, time.Duration) error {
	return h.unavailable()
}

// Subscribe accepts handlers that never fire.
func (h *OfflineHandle) Subscribe(t EventType, fn func(Event)) *Subscription {
	return h.events.Subscribe(t, fn)
}

func (h *OfflineHandle) Close() error {
	h.events.Close()
	return nil
}

var _ Handle = (*OfflineHandle)(nil)
