package hw

import (
	"context"
	"sync"
	"time"
)

// SimSensor is a scriptable presence sensor for development and tests.
// Thread-safe: the capture loop polls it while tests flip its state.
type SimSensor struct {
	mu      sync.Mutex
	present bool
	err     error
}

// NewSimSensor creates a sensor that initially reports no presence.
func NewSimSensor() *SimSensor {
	return &SimSensor{}
}

// SetPresent sets the value returned by subsequent Present calls.
func (s *SimSensor) SetPresent(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.present = v
}

// Fail makes subsequent Present calls return err. Pass nil to clear.
func (s *SimSensor) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Present implements Sensor.
func (s *SimSensor) Present(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	return s.present, nil
}

// SimActuator simulates a door motor with a configurable travel time.
type SimActuator struct {
	travel time.Duration

	mu      sync.Mutex
	open    bool
	openErr error
	opens   int
	closes  int
}

// NewSimActuator creates an actuator whose Open/Close block for travel.
func NewSimActuator(travel time.Duration) *SimActuator {
	return &SimActuator{travel: travel}
}

// FailOpen makes subsequent Open calls return err. Pass nil to clear.
func (a *SimActuator) FailOpen(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.openErr = err
}

// Open implements Actuator.
func (a *SimActuator) Open(ctx context.Context) error {
	a.mu.Lock()
	err := a.openErr
	a.mu.Unlock()
	if err != nil {
		return err
	}
	if err := sleep(ctx, a.travel); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		a.open = true
		a.opens++
	}
	return nil
}

// Close implements Actuator.
func (a *SimActuator) Close(ctx context.Context) error {
	if err := sleep(ctx, a.travel); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open {
		a.open = false
		a.closes++
	}
	return nil
}

// IsOpen reports the simulated door position.
func (a *SimActuator) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open
}

// Counts returns how many completed open and close movements occurred.
func (a *SimActuator) Counts() (opens, closes int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opens, a.closes
}

// SimAlert records buzzer activity.
type SimAlert struct {
	mu     sync.Mutex
	on     bool
	pulses int
}

// NewSimAlert creates a silent alert.
func NewSimAlert() *SimAlert {
	return &SimAlert{}
}

// On implements Alert.
func (b *SimAlert) On(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.on {
		b.on = true
		b.pulses++
	}
	return nil
}

// Off implements Alert.
func (b *SimAlert) Off(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.on = false
	return nil
}

// IsOn reports whether the buzzer is currently sounding.
func (b *SimAlert) IsOn() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.on
}

// Pulses returns how many times the buzzer was switched on.
func (b *SimAlert) Pulses() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pulses
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
