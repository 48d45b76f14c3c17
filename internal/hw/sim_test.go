package hw

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSimSensor(t *testing.T) {
	ctx := context.Background()
	s := NewSimSensor()

	if got, err := s.Present(ctx); err != nil || got {
		t.Errorf("Present() = %v, %v; want false, nil", got, err)
	}

	s.SetPresent(true)
	if got, _ := s.Present(ctx); !got {
		t.Error("Present() = false after SetPresent(true)")
	}

	fault := errors.New("ir beam misaligned")
	s.Fail(fault)
	if _, err := s.Present(ctx); !errors.Is(err, fault) {
		t.Errorf("Present() error = %v, want injected fault", err)
	}

	s.Fail(nil)
	if got, err := s.Present(ctx); err != nil || !got {
		t.Errorf("Present() = %v, %v after clearing fault", got, err)
	}
}

func TestSimSensorCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSimSensor().Present(ctx); err == nil {
		t.Error("Present() with cancelled ctx returned nil error")
	}
}

func TestSimActuatorOpenClose(t *testing.T) {
	ctx := context.Background()
	a := NewSimActuator(0)

	if a.IsOpen() {
		t.Fatal("actuator starts open")
	}
	if err := a.Open(ctx); err != nil {
		t.Fatal(err)
	}
	if !a.IsOpen() {
		t.Error("IsOpen() = false after Open")
	}

	// A second Open while already open moves nothing.
	if err := a.Open(ctx); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if a.IsOpen() {
		t.Error("IsOpen() = true after Close")
	}

	opens, closes := a.Counts()
	if opens != 1 || closes != 1 {
		t.Errorf("Counts() = %d, %d; want 1, 1", opens, closes)
	}
}

func TestSimActuatorFailOpen(t *testing.T) {
	ctx := context.Background()
	a := NewSimActuator(0)

	fault := errors.New("motor stalled")
	a.FailOpen(fault)
	if err := a.Open(ctx); !errors.Is(err, fault) {
		t.Errorf("Open() error = %v, want injected fault", err)
	}
	if a.IsOpen() {
		t.Error("door open despite failed motor")
	}

	a.FailOpen(nil)
	if err := a.Open(ctx); err != nil {
		t.Errorf("Open() error = %v after clearing fault", err)
	}
}

func TestSimActuatorTravelRespectsContext(t *testing.T) {
	a := NewSimActuator(time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	if err := a.Open(ctx); err == nil {
		t.Error("Open() with expiring ctx returned nil error")
	}
	if a.IsOpen() {
		t.Error("door open despite cancelled travel")
	}
}

func TestSimAlertPulses(t *testing.T) {
	ctx := context.Background()
	b := NewSimAlert()

	if b.IsOn() || b.Pulses() != 0 {
		t.Fatal("alert not silent at start")
	}
	if err := b.On(ctx); err != nil {
		t.Fatal(err)
	}
	if err := b.On(ctx); err != nil { // already on, not a new pulse
		t.Fatal(err)
	}
	if !b.IsOn() {
		t.Error("IsOn() = false after On")
	}
	if err := b.Off(ctx); err != nil {
		t.Fatal(err)
	}
	if err := b.On(ctx); err != nil {
		t.Fatal(err)
	}
	if got := b.Pulses(); got != 2 {
		t.Errorf("Pulses() = %d, want 2", got)
	}
}
