// Package gate implements the access-control state machine that owns the
// door, the buzzer, and the one in-flight gate cycle. All state transitions
// happen on a single run-loop goroutine; everything else observes the gate
// through immutable snapshots or the event stream.
package gate

import "time"

// State is the gate's finite state.
type State int

const (
	// Idle means the gate is closed and accepting verdicts.
	Idle State = iota
	// Verifying means a submitted verdict is being acted on.
	Verifying
	// Actuating means the door is travelling open.
	Actuating
	// AwaitingEntry means the door opened and the engine is waiting for
	// the presence sensor to confirm the subject walked through.
	AwaitingEntry
	// Alerting means the buzzer is sounding.
	Alerting
	// Recovering means a hardware fault is being forced back to a safe,
	// de-energized configuration.
	Recovering
)

// String returns the wire/status name for the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Verifying:
		return "verifying"
	case Actuating:
		return "opening"
	case AwaitingEntry:
		return "open"
	case Alerting:
		return "alert"
	case Recovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// Snapshot is a read-only copy of gate state for the HTTP surface. It is a
// value; handing it out never exposes live mutable state.
type Snapshot struct {
	State              State     `json:"-"`
	Status             string    `json:"status"`
	Since              time.Time `json:"since"`
	LastOpenedAt       time.Time `json:"lastOpenedAt,omitzero"`
	LastVerifiedID     string    `json:"lastVerifiedId,omitempty"`
	LastVerifiedName   string    `json:"lastVerifiedName,omitempty"`
	LastActivityAt     time.Time `json:"lastActivityAt,omitzero"`
	AutoCloseRemaining float64   `json:"autoCloseRemaining"` // seconds, 0 when closed
	DegradedCycles     int       `json:"degradedCycles"`
}

// Event is one observable gate happening, published to the event sink as
// cycles progress.
type Event struct {
	Type      string    `json:"type"` // state_changed | entry_confirmed | entry_timeout | alert | degraded
	State     string    `json:"state"`
	SubjectID string    `json:"subjectId,omitempty"`
	Name      string    `json:"name,omitempty"`
	At        time.Time `json:"at"`
}

// EventSink receives gate events. Publish must not block; slow consumers
// are the sink's problem.
type EventSink interface {
	Publish(ev Event)
}

// NopSink discards events.
type NopSink struct{}

// Publish implements EventSink.
func (NopSink) Publish(Event) {}
