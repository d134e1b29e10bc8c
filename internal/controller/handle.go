package controller

import (
	"context"
	"time"

	"github.com/nerrad567/rainbridge/internal/infrastructure/config"
)

// Metadata is what a controller reports about itself after Init.
type Metadata struct {
	Model   string `json:"model"`
	Version string `json:"version"`
	Serial  string `json:"serial"`

	// Zones lists the currently reported zone numbers in controller order.
	Zones []int `json:"zones"`
}

// Handle is a live session with one irrigation controller.
//
// Query methods (IsInUse, IsProgramRunning, RemainingDuration,
// RainSensorState) read the status cached by the last RefreshStatus and
// never block on the network.
type Handle interface {
	// Init connects and fetches metadata. Errors wrap ErrConnection or ErrAuth.
	Init(ctx context.Context) (Metadata, error)

	// RefreshStatus re-reads zone, program and sensor state.
	RefreshStatus(ctx context.Context) error

	// IsInUse reports whether zone is watering. Zone 0 means any zone.
	IsInUse(zone int) bool

	// IsProgramRunning reports whether program (A-D) is running. known is
	// false when the model does not report program state.
	IsProgramRunning(program string) (running, known bool)

	StartProgram(ctx context.Context, program string) error
	StopIrrigation(ctx context.Context) error
	DeactivateAllZones(ctx context.Context) error
	StartZone(ctx context.Context, zone int, duration time.Duration) error

	// RemainingDuration is the time left on zone, clamped to the
	// configured min/max reported values.
	RemainingDuration(zone int) time.Duration

	IrrigationDelay(ctx context.Context) (time.Duration, error)
	SetIrrigationDelay(ctx context.Context, delay time.Duration) error

	// RainSensorState reports whether the rain sensor is tripped.
	RainSensorState() bool

	// Subscribe registers fn for events of type t until the returned
	// subscription is cancelled.
	Subscribe(t EventType, fn func(Event)) *Subscription

	// Close ends the session and cancels every subscription.
	Close() error
}

// Dialer opens handles for configured controllers.
type Dialer interface {
	Dial(ctx context.Context, device config.DeviceConfig) (Handle, error)
}
