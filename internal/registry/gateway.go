package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL bounds how long a cached lookup may lag a CRUD change made
// on another node.
const DefaultCacheTTL = 5 * time.Minute

// Gateway fronts a Repository with an optional Redis read-through cache for
// Lookup, the one call on the hot gate-cycle path. CRUD operations pass
// through and invalidate the cached entry. A nil Redis client disables
// caching entirely; cache errors degrade to a direct repository read.
type Gateway struct {
	repo   Repository
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewGateway creates a gateway. cache may be nil.
func NewGateway(repo Repository, cache *redis.Client, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{repo: repo, cache: cache, ttl: DefaultCacheTTL, logger: logger}
}

func (g *Gateway) cacheKey(externalID string) string {
	return "gatehouse:student:" + externalID
}

// Lookup returns the entry for an external ID, or (nil, nil) when absent.
func (g *Gateway) Lookup(ctx context.Context, externalID string) (*Entry, error) {
	if g.cache != nil {
		raw, err := g.cache.Get(ctx, g.cacheKey(externalID)).Bytes()
		if err == nil {
			var e Entry
			if err := json.Unmarshal(raw, &e); err == nil {
				return &e, nil
			}
			// Corrupt cache payload, fall through to the repository.
			g.logger.Warn("discarding unreadable cache entry", "external_id", externalID)
		} else if err != redis.Nil {
			g.logger.Warn("registry cache read failed", "error", err)
		}
	}

	entry, err := g.repo.Lookup(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if entry != nil && g.cache != nil {
		if raw, err := json.Marshal(entry); err == nil {
			if err := g.cache.Set(ctx, g.cacheKey(externalID), raw, g.ttl).Err(); err != nil {
				g.logger.Warn("registry cache write failed", "error", err)
			}
		}
	}
	return entry, nil
}

// List returns all entries ordered by name.
func (g *Gateway) List(ctx context.Context) ([]Entry, error) {
	return g.repo.List(ctx)
}

// Insert stores a new entry.
func (g *Gateway) Insert(ctx context.Context, entry *Entry) error {
	if err := g.repo.Insert(ctx, entry); err != nil {
		return err
	}
	g.invalidate(ctx, entry.ExternalID)
	return nil
}

// Update modifies an existing entry, invalidating both the old and new
// external ID so a changed credential cannot serve a stale hit.
func (g *Gateway) Update(ctx context.Context, entry *Entry) error {
	var oldExternalID string
	if prev, err := g.findByID(ctx, entry.ID); err == nil && prev != nil {
		oldExternalID = prev.ExternalID
	}
	if err := g.repo.Update(ctx, entry); err != nil {
		return err
	}
	g.invalidate(ctx, entry.ExternalID)
	if oldExternalID != "" && oldExternalID != entry.ExternalID {
		g.invalidate(ctx, oldExternalID)
	}
	return nil
}

// Delete removes an entry by ID.
func (g *Gateway) Delete(ctx context.Context, id string) error {
	var externalID string
	if prev, err := g.findByID(ctx, id); err == nil && prev != nil {
		externalID = prev.ExternalID
	}
	if err := g.repo.Delete(ctx, id); err != nil {
		return err
	}
	if externalID != "" {
		g.invalidate(ctx, externalID)
	}
	return nil
}

// Count returns the number of registered entries.
func (g *Gateway) Count(ctx context.Context) (int, error) {
	return g.repo.Count(ctx)
}

func (g *Gateway) findByID(ctx context.Context, id string) (*Entry, error) {
	entries, err := g.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve entry %s: %w", id, err)
	}
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i], nil
		}
	}
	return nil, nil
}

func (g *Gateway) invalidate(ctx context.Context, externalID string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Del(ctx, g.cacheKey(externalID)).Err(); err != nil {
		g.logger.Warn("registry cache invalidation failed", "external_id", externalID, "error", err)
	}
}
