package irrigation

import (
	"time"

	"github.com/nerrad567/rainbridge/internal/accessory"
	"github.com/nerrad567/rainbridge/internal/controller"
)

// Outcome is the result of one reconciliation pass.
type Outcome string

// Pass outcomes.
const (
	OutcomeCreated  Outcome = "created"
	OutcomeRestored Outcome = "restored"
	OutcomeRemoved  Outcome = "removed"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// Presenter exposes records to the home automation runtime.
type Presenter interface {
	// Attach binds a live handler for rec to handle. Calling it again for
	// the same record replaces the previous binding.
	Attach(rec accessory.Record, handle controller.Handle) error

	// Detach drops the handler for id. Unknown ids are ignored.
	Detach(id string)
}

// Recorder receives reconciliation and controller activity for metrics
// and telemetry.
type Recorder interface {
	PassCompleted(address string, kind accessory.Kind, outcome Outcome)
	DeviceFailed(address, reason string)
	ZoneStatus(address string, zone int, active bool, remaining time.Duration)
	RainSensor(address string, tripped bool)
}

// Recorders fans every call out to each member.
type Recorders []Recorder

func (rs Recorders) PassCompleted(address string, kind accessory.Kind, outcome Outcome) {
	for _, r := range rs {
		r.PassCompleted(address, kind, outcome)
	}
}

func (rs Recorders) DeviceFailed(address, reason string) {
	for _, r := range rs {
		r.DeviceFailed(address, reason)
	}
}

func (rs Recorders) ZoneStatus(address string, zone int, active bool, remaining time.Duration) {
	for _, r := range rs {
		r.ZoneStatus(address, zone, active, remaining)
	}
}

func (rs Recorders) RainSensor(address string, tripped bool) {
	for _, r := range rs {
		r.RainSensor(address, tripped)
	}
}

type nopPresenter struct{}

func (nopPresenter) Attach(accessory.Record, controller.Handle) error { return nil }
func (nopPresenter) Detach(string)                                    {}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// Emit logs at a level given by name (error, warn, debug, info).
	Emit(level, msg string, args ...any)

	// Failure logs a per-controller error with a support hint.
	Failure(msg string, err error, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any)          {}
func (noopLogger) Info(string, ...any)           {}
func (noopLogger) Warn(string, ...any)           {}
func (noopLogger) Error(string, ...any)          {}
func (noopLogger) Emit(string, string, ...any)   {}
func (noopLogger) Failure(string, error, ...any) {}
