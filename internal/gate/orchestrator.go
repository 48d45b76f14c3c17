package gate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ferrovax/gatehouse/internal/hw"
	"github.com/ferrovax/gatehouse/internal/verify"
)

// Timings holds every duration the gate cycle depends on.
type Timings struct {
	OpenTravel     time.Duration // door travel when opening
	HoldOpen       time.Duration // door stays open before auto-close
	CloseTravel    time.Duration // door travel when closing
	EntryTimeout   time.Duration // window for the sensor to confirm entry
	SensorPoll     time.Duration // presence sensor poll interval
	UnknownAlert   time.Duration // buzzer pulse for an unknown credential
	EntryFailAlert time.Duration // buzzer pulse when entry is not confirmed
	HardwareGrace  time.Duration // slack added to hardware call deadlines
}

// DefaultTimings mirrors the deployed hardware: 3s servo travel, 5s hold,
// 15s entry window.
func DefaultTimings() Timings {
	return Timings{
		OpenTravel:     3 * time.Second,
		HoldOpen:       5 * time.Second,
		CloseTravel:    3 * time.Second,
		EntryTimeout:   15 * time.Second,
		SensorPoll:     250 * time.Millisecond,
		UnknownAlert:   time.Second,
		EntryFailAlert: 3 * time.Second,
		HardwareGrace:  2 * time.Second,
	}
}

// Ledger is the attendance write path the orchestrator hands outcomes to.
// Failures here never block the physical door cycle.
type Ledger interface {
	// RecordPresent writes today's record for the subject as Present with
	// full verification. created is false when today's record already
	// existed, in which case this cycle must not downgrade it later.
	RecordPresent(ctx context.Context, subjectID string, at time.Time) (created bool, err error)

	// MarkProxy downgrades today's pending record to Proxy when entry was
	// not confirmed in time.
	MarkProxy(ctx context.Context, subjectID string, at time.Time) error
}

// Orchestrator is the single writer of gate state. Verdicts arrive through
// Submit; everything the cycle does (actuation, sensor polling, alert
// pulses, auto-close) happens on the Run goroutine, with timers delivering
// into its select loop so a stale timer can never race a new cycle.
type Orchestrator struct {
	sensor  hw.Sensor
	door    hw.Actuator
	alert   hw.Alert
	ledger  Ledger
	timings Timings
	logger  *slog.Logger
	metrics *Metrics
	sink    EventSink

	verdicts chan verify.Verdict

	mu             sync.RWMutex
	state          State
	since          time.Time
	lastOpenedAt   time.Time
	lastVerifiedID string
	lastVerified   string
	lastActivityAt time.Time
	doorClosesAt   time.Time
	degraded       int
}

// New creates an orchestrator in the Idle state. metrics and sink may be nil.
func New(sensor hw.Sensor, door hw.Actuator, alert hw.Alert, ledger Ledger, timings Timings, metrics *Metrics, sink EventSink, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &Orchestrator{
		sensor:   sensor,
		door:     door,
		alert:    alert,
		ledger:   ledger,
		timings:  timings,
		logger:   logger,
		metrics:  metrics,
		sink:     sink,
		verdicts: make(chan verify.Verdict, 1),
		state:    Idle,
		since:    time.Now(),
	}
}

// Submit offers a verdict to the orchestrator. While a cycle is in flight
// the verdict is dropped, explicitly and counted, so concurrent door cycles
// are impossible by construction. Submit never blocks.
func (o *Orchestrator) Submit(v verify.Verdict) bool {
	o.mu.RLock()
	busy := o.state != Idle
	o.mu.RUnlock()
	if busy {
		o.drop(v)
		return false
	}
	select {
	case o.verdicts <- v:
		return true
	default:
		o.drop(v)
		return false
	}
}

func (o *Orchestrator) drop(v verify.Verdict) {
	if o.metrics != nil {
		o.metrics.IncDropped()
	}
	o.logger.Debug("verdict ignored while cycle in flight", "verdict", v.Kind.String())
}

// Run drives the gate until ctx is cancelled. It must be called exactly once.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("gate orchestrator stopping")
			return
		case v := <-o.verdicts:
			o.handleVerdict(ctx, v)
		}
	}
}

// Busy reports whether a cycle is in flight. The capture loop uses it to
// pause submissions instead of producing verdicts that would be dropped.
func (o *Orchestrator) Busy() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state != Idle
}

// Snapshot returns a copy of the observable gate state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	snap := Snapshot{
		State:            o.state,
		Status:           o.state.String(),
		Since:            o.since,
		LastOpenedAt:     o.lastOpenedAt,
		LastVerifiedID:   o.lastVerifiedID,
		LastVerifiedName: o.lastVerified,
		LastActivityAt:   o.lastActivityAt,
		DegradedCycles:   o.degraded,
	}
	if !o.doorClosesAt.IsZero() {
		if rem := time.Until(o.doorClosesAt); rem > 0 {
			snap.AutoCloseRemaining = rem.Seconds()
		}
	}
	return snap
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.since = time.Now()
	o.mu.Unlock()
	o.sink.Publish(Event{Type: "state_changed", State: s.String(), At: time.Now()})
}

func (o *Orchestrator) handleVerdict(ctx context.Context, v verify.Verdict) {
	o.setState(Verifying)
	o.mu.Lock()
	o.lastActivityAt = time.Now()
	o.mu.Unlock()

	switch v.Kind {
	case verify.NoCredential, verify.LivenessFailed:
		// No actuation, no alert. LivenessFailed is still worth a line.
		if v.Kind == verify.LivenessFailed {
			o.logger.Info("liveness check failed", "credential", v.Credential)
		}
		o.finish("ignored")
	case verify.CredentialUnknown:
		o.logger.Warn("unknown credential scanned", "credential", v.Credential)
		o.sink.Publish(Event{Type: "alert", State: Alerting.String(), At: time.Now()})
		if !o.alertPulse(ctx, o.timings.UnknownAlert) {
			return // alertPulse already recovered
		}
		o.finish("alert")
	case verify.Verified:
		o.admit(ctx, v)
	default:
		o.logger.Error("unhandled verdict kind", "kind", int(v.Kind))
		o.finish("ignored")
	}
}

// finish returns the gate to Idle and records the cycle result.
func (o *Orchestrator) finish(result string) {
	if o.metrics != nil {
		o.metrics.IncCycle(result)
	}
	o.setState(Idle)
}

// admit runs the full door cycle for a verified subject.
func (o *Orchestrator) admit(ctx context.Context, v verify.Verdict) {
	subject := v.Entry.ExternalID

	o.setState(Actuating)
	if err := o.withDeadline(ctx, o.timings.OpenTravel+o.timings.HardwareGrace, o.door.Open); err != nil {
		o.logger.Error("door open failed", "subject", subject, "error", err)
		o.recover(ctx, "open")
		return
	}

	openedAt := time.Now()
	o.mu.Lock()
	o.lastOpenedAt = openedAt
	o.lastVerifiedID = subject
	o.lastVerified = v.Entry.Name
	o.doorClosesAt = openedAt.Add(o.timings.HoldOpen)
	o.mu.Unlock()

	// The record is written as Present at door-open time and only ever
	// downgraded to Proxy if entry is not confirmed. A store outage is
	// logged and the physical cycle continues.
	recorded, err := o.ledger.RecordPresent(ctx, subject, openedAt)
	if err != nil {
		recorded = false
		o.logger.Error("attendance write failed, continuing cycle", "subject", subject, "error", err)
	}

	o.setState(AwaitingEntry)
	confirmed, ok := o.awaitEntry(ctx, subject, recorded)
	if !ok {
		return // fault path already recovered
	}

	o.mu.Lock()
	o.doorClosesAt = time.Time{}
	o.mu.Unlock()

	if confirmed {
		if o.metrics != nil {
			o.metrics.ObserveDoorOpen(time.Since(openedAt).Seconds())
		}
		o.finish("present")
		return
	}

	// Entry never confirmed: the record (if any) was already downgraded
	// inside awaitEntry; pulse the buzzer before going back to Idle.
	o.sink.Publish(Event{Type: "entry_timeout", State: AwaitingEntry.String(), SubjectID: subject, At: time.Now()})
	if !o.alertPulse(ctx, o.timings.EntryFailAlert) {
		return
	}
	if o.metrics != nil {
		o.metrics.ObserveDoorOpen(time.Since(openedAt).Seconds())
	}
	o.finish("proxy")
}

// awaitEntry polls the presence sensor until entry is confirmed or the
// entry window elapses, running the auto-close sequence in the middle of
// it. Returns (confirmed, ok); ok is false when a hardware fault forced
// recovery. All timers live on this goroutine and die with it.
func (o *Orchestrator) awaitEntry(ctx context.Context, subject string, recorded bool) (bool, bool) {
	hold := time.NewTimer(o.timings.HoldOpen)
	entry := time.NewTimer(o.timings.EntryTimeout)
	poll := time.NewTicker(o.timings.SensorPoll)
	defer hold.Stop()
	defer entry.Stop()
	defer poll.Stop()

	doorOpen := true
	confirmed := false

	closeDoor := func() bool {
		if !doorOpen {
			return true
		}
		if err := o.withDeadline(ctx, o.timings.CloseTravel+o.timings.HardwareGrace, o.door.Close); err != nil {
			o.logger.Error("door close failed", "subject", subject, "error", err)
			if recorded && !confirmed {
				o.downgrade(ctx, subject)
			}
			o.recover(ctx, "close")
			return false
		}
		doorOpen = false
		return true
	}

	for {
		if confirmed && !doorOpen {
			return true, true
		}
		select {
		case <-ctx.Done():
			// Shutting down mid-cycle: leave the hardware safe.
			o.deEnergize()
			return confirmed, true

		case <-hold.C:
			if !closeDoor() {
				return false, false
			}

		case <-entry.C:
			if confirmed {
				continue
			}
			o.logger.Warn("entry not confirmed in time", "subject", subject, "timeout", o.timings.EntryTimeout)
			if recorded {
				o.downgrade(ctx, subject)
			}
			// Honor the remainder of the auto-close sequence before
			// surfacing the proxy outcome.
			if doorOpen {
				select {
				case <-ctx.Done():
					o.deEnergize()
					return false, true
				case <-hold.C:
				}
				if !closeDoor() {
					return false, false
				}
			}
			return false, true

		case <-poll.C:
			if confirmed {
				continue
			}
			present, err := o.pollSensor(ctx)
			if err != nil {
				o.logger.Error("presence sensor fault", "subject", subject, "error", err)
				if recorded {
					o.downgrade(ctx, subject)
				}
				o.recover(ctx, "sensor")
				return false, false
			}
			if present {
				confirmed = true
				o.sink.Publish(Event{Type: "entry_confirmed", State: AwaitingEntry.String(), SubjectID: subject, At: time.Now()})
				o.logger.Info("entry confirmed", "subject", subject)
			}
		}
	}
}

func (o *Orchestrator) pollSensor(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timings.SensorPoll+o.timings.HardwareGrace)
	defer cancel()
	return o.sensor.Present(ctx)
}

func (o *Orchestrator) downgrade(ctx context.Context, subject string) {
	if err := o.ledger.MarkProxy(ctx, subject, time.Now()); err != nil {
		o.logger.Error("proxy downgrade failed", "subject", subject, "error", err)
	}
}

// alertPulse sounds the buzzer for d. Returns false if a fault forced
// recovery.
func (o *Orchestrator) alertPulse(ctx context.Context, d time.Duration) bool {
	o.setState(Alerting)
	if err := o.withDeadline(ctx, o.timings.HardwareGrace, o.alert.On); err != nil {
		o.logger.Error("buzzer on failed", "error", err)
		o.recover(ctx, "alert")
		return false
	}
	if o.metrics != nil {
		o.metrics.IncAlert()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
	if err := o.withDeadline(ctx, o.timings.HardwareGrace, o.alert.Off); err != nil {
		o.logger.Error("buzzer off failed", "error", err)
		o.recover(ctx, "alert")
		return false
	}
	return true
}

// recover forces the hardware to a safe de-energized configuration and
// returns the gate to Idle. Every pass through here is a degraded cycle.
func (o *Orchestrator) recover(ctx context.Context, cause string) {
	o.setState(Recovering)
	o.deEnergize()
	o.mu.Lock()
	o.degraded++
	n := o.degraded
	o.doorClosesAt = time.Time{}
	o.mu.Unlock()
	o.logger.Warn("gate cycle degraded, hardware forced safe", "cause", cause, "degraded_total", n)
	o.sink.Publish(Event{Type: "degraded", State: Recovering.String(), At: time.Now()})
	o.finish("degraded")
}

// deEnergize best-effort turns everything off; errors are logged only,
// there is nothing further to fall back to.
func (o *Orchestrator) deEnergize() {
	ctx, cancel := context.WithTimeout(context.Background(), o.timings.CloseTravel+o.timings.HardwareGrace)
	defer cancel()
	if err := o.alert.Off(ctx); err != nil {
		o.logger.Error("de-energize buzzer failed", "error", err)
	}
	if err := o.door.Close(ctx); err != nil {
		o.logger.Error("de-energize door failed", "error", err)
	}
}

// withDeadline runs a hardware call under a hard timeout so no actuation
// can block the cycle indefinitely.
func (o *Orchestrator) withDeadline(ctx context.Context, d time.Duration, f func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return f(ctx)
}
