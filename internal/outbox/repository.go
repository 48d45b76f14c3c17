package outbox

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ferrovax/gatehouse/internal/attendance"
)

// ErrItemNotFound is returned when attempt metadata is updated for an item
// that no longer exists.
var ErrItemNotFound = errors.New("outbox item not found")

// Repository defines outbox persistence.
type Repository interface {
	// Append enqueues a record snapshot for replication. Implements
	// attendance.OutboxAppender.
	Append(ctx context.Context, rec attendance.Record) error

	// Due returns up to limit unparked items whose retry time has come,
	// oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]Item, error)

	// MarkDone removes an item after a confirmed remote acknowledgment.
	MarkDone(ctx context.Context, id string) error

	// Reschedule updates an item's attempt count and next retry time.
	Reschedule(ctx context.Context, id string, attempts int, next time.Time) error

	// Park flags an item for manual inspection; it stays in the store but
	// is never returned by Due again.
	Park(ctx context.Context, id string, attempts int) error

	// Counts returns how many items are pending and how many are parked.
	Counts(ctx context.Context) (pending, parked int, err error)
}

// InMemoryRepository implements Repository with a map.
type InMemoryRepository struct {
	mu    sync.Mutex
	items map[string]*Item
}

// NewInMemoryRepository creates an empty in-memory outbox.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{items: make(map[string]*Item)}
}

// Append enqueues a record snapshot for replication.
func (r *InMemoryRepository) Append(ctx context.Context, rec attendance.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	it := &Item{
		ID:          uuid.New().String(),
		SubjectID:   rec.SubjectID,
		Day:         rec.Day,
		Outcome:     rec.Outcome,
		Level:       rec.Level,
		CapturedAt:  rec.CapturedAt,
		NextRetryAt: now,
		CreatedAt:   now,
	}
	r.items[it.ID] = it
	return nil
}

// Due returns up to limit unparked items whose retry time has come.
func (r *InMemoryRepository) Due(ctx context.Context, now time.Time, limit int) ([]Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Item
	for _, it := range r.items {
		if !it.Parked && !it.NextRetryAt.After(now) {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkDone removes an item.
func (r *InMemoryRepository) MarkDone(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return ErrItemNotFound
	}
	delete(r.items, id)
	return nil
}

// Reschedule updates attempt metadata.
func (r *InMemoryRepository) Reschedule(ctx context.Context, id string, attempts int, next time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return ErrItemNotFound
	}
	it.Attempts = attempts
	it.NextRetryAt = next
	return nil
}

// Park flags an item for manual inspection.
func (r *InMemoryRepository) Park(ctx context.Context, id string, attempts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return ErrItemNotFound
	}
	it.Attempts = attempts
	it.Parked = true
	return nil
}

// Counts returns pending and parked item counts.
func (r *InMemoryRepository) Counts(ctx context.Context) (pending, parked int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.Parked {
			parked++
		} else {
			pending++
		}
	}
	return pending, parked, nil
}
