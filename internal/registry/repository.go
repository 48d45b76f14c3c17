package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Update and Delete when no entry matches.
var ErrNotFound = errors.New("registry entry not found")

// ErrDuplicateExternalID is returned when an insert or update would reuse
// another entry's external ID.
var ErrDuplicateExternalID = errors.New("external id already registered")

// Repository defines registry data operations. Lookup is the only call made
// from the gate cycle; everything else serves the admin surface.
type Repository interface {
	// Lookup returns the entry for an external ID, or (nil, nil) when absent.
	Lookup(ctx context.Context, externalID string) (*Entry, error)

	// List returns all entries ordered by name.
	List(ctx context.Context) ([]Entry, error)

	// Insert stores a new entry. The ID is assigned if empty.
	Insert(ctx context.Context, entry *Entry) error

	// Update modifies an existing entry by ID.
	Update(ctx context.Context, entry *Entry) error

	// Delete removes an entry by ID.
	Delete(ctx context.Context, id string) error

	// Count returns the number of registered entries.
	Count(ctx context.Context) (int, error)
}

// InMemoryRepository implements Repository with a map. Used in tests and
// when running without a database.
type InMemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*Entry
	byExtID map[string]string // externalID -> ID
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID:    make(map[string]*Entry),
		byExtID: make(map[string]string),
	}
}

// Lookup returns the entry for an external ID, or (nil, nil) when absent.
func (r *InMemoryRepository) Lookup(ctx context.Context, externalID string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byExtID[externalID]
	if !ok {
		return nil, nil
	}
	cp := *r.byID[id]
	return &cp, nil
}

// List returns all entries ordered by name.
func (r *InMemoryRepository) List(ctx context.Context) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Insert stores a new entry.
func (r *InMemoryRepository) Insert(ctx context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byExtID[entry.ExternalID]; exists {
		return ErrDuplicateExternalID
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	cp := *entry
	r.byID[cp.ID] = &cp
	r.byExtID[cp.ExternalID] = cp.ID
	return nil
}

// Update modifies an existing entry by ID.
func (r *InMemoryRepository) Update(ctx context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.byID[entry.ID]
	if !ok {
		return ErrNotFound
	}
	if other, exists := r.byExtID[entry.ExternalID]; exists && other != entry.ID {
		return ErrDuplicateExternalID
	}
	delete(r.byExtID, existing.ExternalID)
	cp := *entry
	cp.CreatedAt = existing.CreatedAt
	r.byID[cp.ID] = &cp
	r.byExtID[cp.ExternalID] = cp.ID
	return nil
}

// Delete removes an entry by ID.
func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byExtID, existing.ExternalID)
	delete(r.byID, id)
	return nil
}

// Count returns the number of registered entries.
func (r *InMemoryRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}
