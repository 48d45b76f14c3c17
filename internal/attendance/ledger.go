package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrStoreUnavailable is returned when the local store is known to be down.
// Callers get it immediately instead of blocking on a fresh reconnect.
var ErrStoreUnavailable = errors.New("attendance store unavailable")

// OutboxAppender enqueues a record snapshot for replication to the remote
// mirror. The ledger appends; it never retries or drains.
type OutboxAppender interface {
	Append(ctx context.Context, rec Record) error
}

// HealthSignal reports the last known store health. The resilience monitor
// owns the probing; the ledger only consults the signal.
type HealthSignal interface {
	Healthy() bool
}

type alwaysHealthy struct{}

func (alwaysHealthy) Healthy() bool { return true }

// Ledger is the attendance write path: dedup against today's record, local
// persist, then exactly one outbox append per successful write.
type Ledger struct {
	repo   Repository
	outbox OutboxAppender
	health HealthSignal
	logger *slog.Logger
}

// NewLedger creates a ledger. health may be nil when no monitor is wired
// (in-memory mode); outbox may be nil to disable replication.
func NewLedger(repo Repository, outbox OutboxAppender, health HealthSignal, logger *slog.Logger) *Ledger {
	if health == nil {
		health = alwaysHealthy{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{repo: repo, outbox: outbox, health: health, logger: logger}
}

// RecordPresent writes today's record for the subject as Present/Full.
// Returns created=false when a record for (subject, today) already exists;
// the existing record is left exactly as it was, whatever its outcome.
func (l *Ledger) RecordPresent(ctx context.Context, subjectID string, at time.Time) (bool, error) {
	if !l.health.Healthy() {
		return false, ErrStoreUnavailable
	}
	rec := Record{
		SubjectID:  subjectID,
		Day:        DayOf(at),
		Outcome:    OutcomePresent,
		Level:      LevelFull,
		CapturedAt: at,
	}
	created, err := l.repo.InsertIfAbsent(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !created {
		l.logger.Info("attendance already recorded today", "subject", subjectID, "day", rec.Day)
		return false, nil
	}
	l.enqueue(ctx, rec)
	return true, nil
}

// MarkProxy downgrades today's Present record for the subject to
// Proxy/Partial. The reverse direction never happens: a record that is
// already Proxy stays Proxy, and only the cycle that created a pending
// record should call this.
func (l *Ledger) MarkProxy(ctx context.Context, subjectID string, at time.Time) error {
	if !l.health.Healthy() {
		return ErrStoreUnavailable
	}
	day := DayOf(at)
	changed, err := l.repo.Downgrade(ctx, subjectID, day)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !changed {
		return nil
	}
	l.enqueue(ctx, Record{
		SubjectID:  subjectID,
		Day:        day,
		Outcome:    OutcomeProxy,
		Level:      LevelPartial,
		CapturedAt: at,
	})
	return nil
}

// enqueue hands the record to the outbox. Replication is best-effort
// relative to the local write: a failed append is logged and the mirror
// catches up on a later cycle, it never unwinds the local record.
func (l *Ledger) enqueue(ctx context.Context, rec Record) {
	if l.outbox == nil {
		return
	}
	if err := l.outbox.Append(ctx, rec); err != nil {
		l.logger.Error("outbox append failed", "subject", rec.SubjectID, "day", rec.Day, "error", err)
	}
}

// Recent returns the most recent records, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Record, error) {
	if !l.health.Healthy() {
		return nil, ErrStoreUnavailable
	}
	return l.repo.Recent(ctx, limit)
}

// Stats summarizes attendance volume for the dashboard.
type Stats struct {
	TodaysEntries int `json:"todaysEntries"`
	ThisWeek      int `json:"thisWeek"`
}

// StatsFor computes today's and this week's entry counts. The week starts
// on Monday, matching the dashboard the original deployment used.
func (l *Ledger) StatsFor(ctx context.Context, now time.Time) (Stats, error) {
	if !l.health.Healthy() {
		return Stats{}, ErrStoreUnavailable
	}
	today := DayOf(now)
	weekday := int(now.Local().Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday belongs to the week that started last Monday
	}
	weekStart := DayOf(now.AddDate(0, 0, -(weekday - 1)))

	todays, err := l.repo.CountForDay(ctx, today)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	week, err := l.repo.CountSinceDay(ctx, weekStart)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return Stats{TodaysEntries: todays, ThisWeek: week}, nil
}
