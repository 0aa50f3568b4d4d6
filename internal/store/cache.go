package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"arc-framework/benchd/internal/health"
)

// ErrNotFound is returned for ids outside the world table.
var ErrNotFound = errors.New("not found")

// Cache holds worlds by id for the /cached route.
type Cache interface {
	// GetWorlds returns the cached subset of ids.
	GetWorlds(ctx context.Context, ids []int32) (map[int32]World, error)
	SetWorlds(ctx context.Context, worlds []World) error
}

// MapCache is an in-process Cache.
type MapCache struct {
	mu     sync.RWMutex
	worlds map[int32]World
}

func NewMapCache() *MapCache {
	return &MapCache{worlds: make(map[int32]World)}
}

func (c *MapCache) GetWorlds(_ context.Context, ids []int32) (map[int32]World, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hits := make(map[int32]World, len(ids))
	for _, id := range ids {
		if w, ok := c.worlds[id]; ok {
			hits[id] = w
		}
	}
	return hits, nil
}

func (c *MapCache) SetWorlds(_ context.Context, worlds []World) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range worlds {
		c.worlds[w.ID] = w
	}
	return nil
}

// Cached decorates a Store so FindCachedWorlds reads through cache and
// ReplaceWorlds writes through to it.
type Cached struct {
	Store
	cache Cache
}

// WithCache wraps s with cache.
func WithCache(s Store, cache Cache) *Cached {
	return &Cached{Store: s, cache: cache}
}

func (c *Cached) FindCachedWorlds(ctx context.Context, ids []int32) ([]World, error) {
	return readThrough(ctx, c.cache, c.Store.FindWorlds, ids)
}

func (c *Cached) ReplaceWorlds(ctx context.Context, worlds []World) error {
	if err := c.Store.ReplaceWorlds(ctx, worlds); err != nil {
		return err
	}
	if err := c.cache.SetWorlds(ctx, worlds); err != nil {
		slog.WarnContext(ctx, "world cache write failed", "err", err)
	}
	return nil
}

// Probe reports the wrapped store and, when it can report health, the cache.
func (c *Cached) Probe(ctx context.Context) health.ProbeResult {
	res := c.Store.Probe(ctx)
	p, ok := c.cache.(health.Prober)
	if !ok || !res.OK {
		return res
	}
	if cr := p.Probe(ctx); !cr.OK {
		res.OK = false
		res.Error = fmt.Sprintf("cache %s: %s", cr.Name, cr.Error)
	}
	return res
}

type finder func(ctx context.Context, ids []int32) ([]World, error)

// readThrough serves ids from cache, loads the misses with find, backfills
// the cache and returns worlds in the order of ids. A failing cache
// degrades to find.
func readThrough(ctx context.Context, cache Cache, find finder, ids []int32) ([]World, error) {
	hits, err := cache.GetWorlds(ctx, ids)
	if err != nil {
		slog.WarnContext(ctx, "world cache read failed", "err", err)
		hits = nil
	}

	var missing []int32
	for _, id := range ids {
		if _, ok := hits[id]; !ok {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		loaded, err := find(ctx, missing)
		if err != nil {
			return nil, err
		}
		if hits == nil {
			hits = make(map[int32]World, len(loaded))
		}
		for _, w := range loaded {
			hits[w.ID] = w
		}
		if err := cache.SetWorlds(ctx, loaded); err != nil {
			slog.WarnContext(ctx, "world cache write failed", "err", err)
		}
	}

	out := make([]World, len(ids))
	for i, id := range ids {
		out[i] = hits[id]
	}
	return out, nil
}
