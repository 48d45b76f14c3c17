package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type captureOutbox struct {
	mu       sync.Mutex
	appended []Record
	err      error
}

func (o *captureOutbox) Append(ctx context.Context, rec Record) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.appended = append(o.appended, rec)
	return nil
}

func (o *captureOutbox) records() []Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Record(nil), o.appended...)
}

type staticHealth bool

func (h staticHealth) Healthy() bool { return bool(h) }

func TestRecordPresentCreatesOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	box := &captureOutbox{}
	ledger := NewLedger(repo, box, nil, nil)

	at := time.Date(2026, 3, 9, 8, 30, 0, 0, time.Local)

	created, err := ledger.RecordPresent(ctx, "S1", at)
	if err != nil {
		t.Fatalf("RecordPresent() error = %v", err)
	}
	if !created {
		t.Fatal("first RecordPresent() created = false")
	}

	// Second pass through the gate on the same day.
	created, err = ledger.RecordPresent(ctx, "S1", at.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("second RecordPresent() error = %v", err)
	}
	if created {
		t.Error("second RecordPresent() created = true, want dedup")
	}

	rec, err := repo.Get(ctx, "S1", DayOf(at))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec == nil {
		t.Fatal("record missing after RecordPresent")
	}
	if rec.Outcome != OutcomePresent || rec.Level != LevelFull {
		t.Errorf("record = %s/%s, want present/full", rec.Outcome, rec.Level)
	}
	if !rec.CapturedAt.Equal(at) {
		t.Errorf("CapturedAt = %v, want first cycle's %v", rec.CapturedAt, at)
	}

	// Exactly one outbox item: the dedup'd write enqueues nothing.
	if got := box.records(); len(got) != 1 {
		t.Errorf("outbox appends = %d, want 1", len(got))
	}
}

func TestMarkProxyDowngradesAndEnqueues(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	box := &captureOutbox{}
	ledger := NewLedger(repo, box, nil, nil)

	at := time.Now()
	if _, err := ledger.RecordPresent(ctx, "S1", at); err != nil {
		t.Fatalf("RecordPresent() error = %v", err)
	}
	if err := ledger.MarkProxy(ctx, "S1", at.Add(15*time.Second)); err != nil {
		t.Fatalf("MarkProxy() error = %v", err)
	}

	rec, _ := repo.Get(ctx, "S1", DayOf(at))
	if rec.Outcome != OutcomeProxy || rec.Level != LevelPartial {
		t.Errorf("record = %s/%s, want proxy/partial", rec.Outcome, rec.Level)
	}

	got := box.records()
	if len(got) != 2 {
		t.Fatalf("outbox appends = %d, want 2 (present then proxy)", len(got))
	}
	if got[1].Outcome != OutcomeProxy {
		t.Errorf("second outbox item outcome = %s, want proxy", got[1].Outcome)
	}
}

func TestMarkProxyNeverUpgrades(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	ledger := NewLedger(repo, nil, nil, nil)

	at := time.Now()
	if _, err := ledger.RecordPresent(ctx, "S1", at); err != nil {
		t.Fatal(err)
	}
	if err := ledger.MarkProxy(ctx, "S1", at); err != nil {
		t.Fatal(err)
	}
	// A second downgrade attempt is a no-op, and there is no path back to
	// Present for the day.
	if err := ledger.MarkProxy(ctx, "S1", at); err != nil {
		t.Fatal(err)
	}

	rec, _ := repo.Get(ctx, "S1", DayOf(at))
	if rec.Outcome != OutcomeProxy {
		t.Errorf("outcome = %s, want proxy to stick", rec.Outcome)
	}
}

func TestUnhealthyStoreFailsFast(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(NewInMemoryRepository(), nil, staticHealth(false), nil)

	if _, err := ledger.RecordPresent(ctx, "S1", time.Now()); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("RecordPresent() error = %v, want ErrStoreUnavailable", err)
	}
	if err := ledger.MarkProxy(ctx, "S1", time.Now()); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("MarkProxy() error = %v, want ErrStoreUnavailable", err)
	}
	if _, err := ledger.Recent(ctx, 10); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Recent() error = %v, want ErrStoreUnavailable", err)
	}
	if _, err := ledger.StatsFor(ctx, time.Now()); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("StatsFor() error = %v, want ErrStoreUnavailable", err)
	}
}

func TestOutboxFailureDoesNotUnwindWrite(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	box := &captureOutbox{err: errors.New("outbox table missing")}
	ledger := NewLedger(repo, box, nil, nil)

	at := time.Now()
	created, err := ledger.RecordPresent(ctx, "S1", at)
	if err != nil {
		t.Fatalf("RecordPresent() error = %v despite outbox failure", err)
	}
	if !created {
		t.Fatal("created = false")
	}
	if rec, _ := repo.Get(ctx, "S1", DayOf(at)); rec == nil {
		t.Error("local record missing; outbox failure must not unwind it")
	}
}

func TestStatsWeekStartsMonday(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	ledger := NewLedger(repo, nil, nil, nil)

	// Wednesday 2026-03-11. The week began Monday 2026-03-09.
	now := time.Date(2026, 3, 11, 12, 0, 0, 0, time.Local)

	seed := []struct {
		subject string
		at      time.Time
	}{
		{"S1", now},                    // today
		{"S2", now.AddDate(0, 0, -1)},  // Tuesday
		{"S3", now.AddDate(0, 0, -2)},  // Monday
		{"S4", now.AddDate(0, 0, -3)},  // Sunday, previous week
		{"S5", now.AddDate(0, 0, -10)}, // long gone
	}
	for _, s := range seed {
		if _, err := ledger.RecordPresent(ctx, s.subject, s.at); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := ledger.StatsFor(ctx, now)
	if err != nil {
		t.Fatalf("StatsFor() error = %v", err)
	}
	if stats.TodaysEntries != 1 {
		t.Errorf("TodaysEntries = %d, want 1", stats.TodaysEntries)
	}
	if stats.ThisWeek != 3 {
		t.Errorf("ThisWeek = %d, want 3 (Monday through today)", stats.ThisWeek)
	}
}

func TestStatsSundayBelongsToPriorMonday(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	ledger := NewLedger(repo, nil, nil, nil)

	// Sunday 2026-03-15; its week began Monday 2026-03-09.
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.Local)
	if _, err := ledger.RecordPresent(ctx, "S1", now.AddDate(0, 0, -6)); err != nil { // Monday
		t.Fatal(err)
	}
	if _, err := ledger.RecordPresent(ctx, "S2", now.AddDate(0, 0, -7)); err != nil { // prior Sunday
		t.Fatal(err)
	}

	stats, err := ledger.StatsFor(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if stats.ThisWeek != 1 {
		t.Errorf("ThisWeek = %d, want 1", stats.ThisWeek)
	}
}

func TestRepositoryDowngradeDirection(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()

	changed, err := repo.Downgrade(ctx, "missing", "2026-03-09")
	if err != nil || changed {
		t.Errorf("Downgrade(missing) = %v, %v; want false, nil", changed, err)
	}

	rec := Record{SubjectID: "S1", Day: "2026-03-09", Outcome: OutcomeProxy, Level: LevelPartial, CapturedAt: time.Now()}
	if _, err := repo.InsertIfAbsent(ctx, rec); err != nil {
		t.Fatal(err)
	}
	changed, err = repo.Downgrade(ctx, "S1", "2026-03-09")
	if err != nil || changed {
		t.Errorf("Downgrade(already proxy) = %v, %v; want false, nil", changed, err)
	}
}
