package store

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"arc-framework/benchd/internal/health"
)

// Memory is an in-process Store seeded with rows worlds and the canonical
// fortunes.
type Memory struct {
	mu       sync.RWMutex
	worlds   map[int32]int32
	fortunes []Fortune
	cache    Cache
}

// NewMemory returns a Memory store with worlds 1..rows holding random
// numbers in [1, 10000].
func NewMemory(rows int) *Memory {
	m := &Memory{
		worlds:   make(map[int32]int32, rows),
		fortunes: append([]Fortune(nil), Fortunes...),
		cache:    NewMapCache(),
	}
	for id := 1; id <= rows; id++ {
		m.worlds[int32(id)] = rand.Int32N(10000) + 1
	}
	return m
}

func (m *Memory) FindWorlds(_ context.Context, ids []int32) ([]World, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]World, len(ids))
	for i, id := range ids {
		n, ok := m.worlds[id]
		if !ok {
			return nil, fmt.Errorf("world %d: %w", id, ErrNotFound)
		}
		out[i] = World{ID: id, RandomNumber: n}
	}
	return out, nil
}

func (m *Memory) FindCachedWorlds(ctx context.Context, ids []int32) ([]World, error) {
	return readThrough(ctx, m.cache, m.FindWorlds, ids)
}

// ReplaceWorlds overwrites the random number of each existing world.
func (m *Memory) ReplaceWorlds(ctx context.Context, worlds []World) error {
	m.mu.Lock()
	for _, w := range worlds {
		if _, ok := m.worlds[w.ID]; !ok {
			m.mu.Unlock()
			return fmt.Errorf("world %d: %w", w.ID, ErrNotFound)
		}
	}
	for _, w := range worlds {
		m.worlds[w.ID] = w.RandomNumber
	}
	m.mu.Unlock()
	return m.cache.SetWorlds(ctx, worlds)
}

func (m *Memory) FindAllFortunes(_ context.Context) ([]Fortune, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Fortune(nil), m.fortunes...), nil
}

func (m *Memory) Probe(_ context.Context) health.ProbeResult {
	return health.Probe("memory", func() error { return nil })
}
