// Package hw defines the hardware ports the gate engine drives: the entry
// presence sensor, the door actuator, and the audible alert. Implementations
// wrap real GPIO lines; the engine only ever sees these interfaces.
package hw

import (
	"context"
	"errors"
)

// ErrSensorFault is returned when the presence sensor cannot be read.
var ErrSensorFault = errors.New("presence sensor fault")

// ErrActuatorFault is returned when the door actuator fails to move or
// does not respond within its travel budget.
var ErrActuatorFault = errors.New("door actuator fault")

// Sensor reports whether a body is present in the entry zone.
// Present is polled; a single read must be cheap and bounded.
type Sensor interface {
	Present(ctx context.Context) (bool, error)
}

// Actuator drives the door. Open and Close block for the physical travel
// duration and are idempotent: opening an open door is a no-op.
type Actuator interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

// Alert controls the audible buzzer. Off must always succeed from the
// engine's point of view; a failed Off is a fault worth recovering from.
type Alert interface {
	On(ctx context.Context) error
	Off(ctx context.Context) error
}
