package attendance

import (
	"context"
	"sort"
	"sync"
)

// Repository defines attendance persistence. All implementations must keep
// the (subject, day) uniqueness invariant.
type Repository interface {
	// Get returns the record for (subjectID, day), or (nil, nil) when absent.
	Get(ctx context.Context, subjectID, day string) (*Record, error)

	// InsertIfAbsent stores rec unless a record for its (subject, day)
	// already exists. Returns true when a new row was created.
	InsertIfAbsent(ctx context.Context, rec Record) (bool, error)

	// Downgrade flips an existing Present record for (subjectID, day) to
	// Proxy/Partial. It never touches a record that is already Proxy and
	// returns false when nothing changed.
	Downgrade(ctx context.Context, subjectID, day string) (bool, error)

	// Recent returns the most recent records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)

	// CountForDay returns how many records exist for one day.
	CountForDay(ctx context.Context, day string) (int, error)

	// CountSinceDay returns how many records exist on or after a day.
	CountSinceDay(ctx context.Context, fromDay string) (int, error)
}

// InMemoryRepository implements Repository with a map, for tests and
// database-less development.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record // key: subjectID + "|" + day
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{records: make(map[string]*Record)}
}

func key(subjectID, day string) string { return subjectID + "|" + day }

// Get returns the record for (subjectID, day), or (nil, nil) when absent.
func (r *InMemoryRepository) Get(ctx context.Context, subjectID, day string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[key(subjectID, day)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// InsertIfAbsent stores rec unless its (subject, day) already exists.
func (r *InMemoryRepository) InsertIfAbsent(ctx context.Context, rec Record) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(rec.SubjectID, rec.Day)
	if _, exists := r.records[k]; exists {
		return false, nil
	}
	cp := rec
	r.records[k] = &cp
	return true, nil
}

// Downgrade flips a Present record to Proxy/Partial.
func (r *InMemoryRepository) Downgrade(ctx context.Context, subjectID, day string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key(subjectID, day)]
	if !ok || rec.Outcome != OutcomePresent {
		return false, nil
	}
	rec.Outcome = OutcomeProxy
	rec.Level = LevelPartial
	return true, nil
}

// Recent returns the most recent records, newest first.
func (r *InMemoryRepository) Recent(ctx context.Context, limit int) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CapturedAt.After(out[j].CapturedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountForDay returns how many records exist for one day.
func (r *InMemoryRepository) CountForDay(ctx context.Context, day string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rec := range r.records {
		if rec.Day == day {
			n++
		}
	}
	return n, nil
}

// CountSinceDay returns how many records exist on or after a day.
func (r *InMemoryRepository) CountSinceDay(ctx context.Context, fromDay string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rec := range r.records {
		if rec.Day >= fromDay {
			n++
		}
	}
	return n, nil
}
