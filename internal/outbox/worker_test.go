package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ferrovax/gatehouse/internal/attendance"
)

type fakeMirror struct {
	mu       sync.Mutex
	err      error
	upserted []attendance.Record
}

func (m *fakeMirror) Upsert(ctx context.Context, rec attendance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.upserted = append(m.upserted, rec)
	return nil
}

func (m *fakeMirror) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *fakeMirror) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.upserted)
}

func record(subject string) attendance.Record {
	return attendance.Record{
		SubjectID:  subject,
		Day:        "2026-03-09",
		Outcome:    attendance.OutcomePresent,
		Level:      attendance.LevelFull,
		CapturedAt: time.Now(),
	}
}

func TestDrainDeliversAndRemoves(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	mirror := &fakeMirror{}
	w := NewWorker(WorkerConfig{}, repo, mirror)

	for _, s := range []string{"S1", "S2", "S3"} {
		if err := repo.Append(ctx, record(s)); err != nil {
			t.Fatal(err)
		}
	}

	w.Drain(ctx)

	if got := mirror.count(); got != 3 {
		t.Errorf("mirror upserts = %d, want 3", got)
	}
	pending, parked, err := repo.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pending != 0 || parked != 0 {
		t.Errorf("counts after drain = %d pending, %d parked; want 0, 0", pending, parked)
	}
}

func TestDrainReschedulesOnFailure(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	mirror := &fakeMirror{err: errors.New("mirror unreachable")}
	w := NewWorker(WorkerConfig{BaseBackoff: time.Minute}, repo, mirror)

	if err := repo.Append(ctx, record("S1")); err != nil {
		t.Fatal(err)
	}
	w.Drain(ctx)

	pending, parked, _ := repo.Counts(ctx)
	if pending != 1 || parked != 0 {
		t.Fatalf("counts = %d pending, %d parked; want item kept pending", pending, parked)
	}

	// Backed off: not due again right away.
	due, err := repo.Due(ctx, time.Now(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 0 {
		t.Errorf("item due immediately after failure, want backoff")
	}
	due, _ = repo.Due(ctx, time.Now().Add(2*time.Minute), 10)
	if len(due) != 1 {
		t.Fatalf("item not due after backoff window")
	}
	if due[0].Attempts != 1 {
		t.Errorf("attempts = %d, want 1", due[0].Attempts)
	}
}

func TestItemParkedAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	mirror := &fakeMirror{err: errors.New("mirror rejects the row")}
	w := NewWorker(WorkerConfig{MaxAttempts: 3, BaseBackoff: time.Nanosecond, MaxBackoff: time.Nanosecond}, repo, mirror)

	if err := repo.Append(ctx, record("S1")); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		time.Sleep(time.Millisecond) // let the nanosecond backoff elapse
		w.Drain(ctx)
	}

	pending, parked, _ := repo.Counts(ctx)
	if parked != 1 {
		t.Fatalf("parked = %d, want 1 after max attempts", parked)
	}
	if pending != 0 {
		t.Errorf("pending = %d, want 0", pending)
	}

	// Parked means kept but never retried.
	mirror.setErr(nil)
	w.Drain(ctx)
	if got := mirror.count(); got != 0 {
		t.Errorf("parked item was retried %d times", got)
	}
}

func TestDrainRecoversAfterMirrorReturns(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	mirror := &fakeMirror{err: errors.New("down")}
	w := NewWorker(WorkerConfig{BaseBackoff: time.Nanosecond, MaxBackoff: time.Nanosecond}, repo, mirror)

	if err := repo.Append(ctx, record("S1")); err != nil {
		t.Fatal(err)
	}
	w.Drain(ctx)
	time.Sleep(time.Millisecond)

	mirror.setErr(nil)
	w.Drain(ctx)

	if got := mirror.count(); got != 1 {
		t.Errorf("mirror upserts = %d, want 1 after recovery", got)
	}
	pending, _, _ := repo.Counts(ctx)
	if pending != 0 {
		t.Errorf("pending = %d, want 0", pending)
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	w := NewWorker(WorkerConfig{BaseBackoff: time.Second, MaxBackoff: 8 * time.Second}, nil, nil)

	cases := []struct {
		attempts int
		min, max time.Duration
	}{
		{1, time.Second, time.Second + time.Second/4},
		{2, 2 * time.Second, 2*time.Second + time.Second/2},
		{3, 4 * time.Second, 5 * time.Second},
		{4, 8 * time.Second, 10 * time.Second},
		{10, 8 * time.Second, 10 * time.Second}, // capped
	}
	for _, tc := range cases {
		got := w.backoff(tc.attempts)
		if got < tc.min || got > tc.max {
			t.Errorf("backoff(%d) = %v, want in [%v, %v]", tc.attempts, got, tc.min, tc.max)
		}
	}
}

func TestStartStopIdempotent(t *testing.T) {
	repo := NewInMemoryRepository()
	w := NewWorker(WorkerConfig{Interval: time.Hour}, repo, &fakeMirror{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)
	w.Start(ctx) // second start is a no-op
	w.Stop()
	w.Stop() // second stop is a no-op
}

func TestBatchSizeBoundsDrain(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	mirror := &fakeMirror{}
	w := NewWorker(WorkerConfig{BatchSize: 2}, repo, mirror)

	for _, s := range []string{"S1", "S2", "S3", "S4"} {
		if err := repo.Append(ctx, record(s)); err != nil {
			t.Fatal(err)
		}
	}
	w.Drain(ctx)
	if got := mirror.count(); got != 2 {
		t.Errorf("first drain delivered %d, want 2", got)
	}
	w.Drain(ctx)
	if got := mirror.count(); got != 4 {
		t.Errorf("after second drain delivered %d, want 4", got)
	}
}
