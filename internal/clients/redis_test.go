package clients

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arc-framework/benchd/internal/config"
	"arc-framework/benchd/internal/store"
)

// mockRedis is an in-memory redisBackend.
type mockRedis struct {
	mu      sync.Mutex
	pingVal string
	pingErr error
	opErr   error
	data    map[string]string
	ttls    []time.Duration
	closed  bool
}

func newMockRedis() *mockRedis {
	return &mockRedis{pingVal: "PONG", data: make(map[string]string)}
}

func (m *mockRedis) PingResult(_ context.Context) (string, error) {
	return m.pingVal, m.pingErr
}

func (m *mockRedis) MGetValues(_ context.Context, keys ...string) ([]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opErr != nil {
		return nil, m.opErr
	}
	vals := make([]any, len(keys))
	for i, k := range keys {
		if v, ok := m.data[k]; ok {
			vals[i] = v
		}
	}
	return vals, nil
}

func (m *mockRedis) SetValues(_ context.Context, values map[string]string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opErr != nil {
		return m.opErr
	}
	for k, v := range values {
		m.data[k] = v
	}
	m.ttls = append(m.ttls, ttl)
	return nil
}

func (m *mockRedis) Close() error {
	m.closed = true
	return nil
}

func TestRedisProbe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pingVal    string
		pingErr    error
		wantOK     bool
		wantErrSub string
	}{
		{
			name:    "success: PING returns PONG",
			pingVal: "PONG",
			wantOK:  true,
		},
		{
			name:       "failure: PING returns error",
			pingErr:    errors.New("connection refused"),
			wantOK:     false,
			wantErrSub: "connection refused",
		},
		{
			name:       "failure: PING returns unexpected value",
			pingVal:    "WHOOPS",
			wantOK:     false,
			wantErrSub: "unexpected PING response",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cb := NewCircuitBreaker("redis-test-" + tc.name)
			client := &RedisClient{
				cb:      cb,
				backend: &mockRedis{pingVal: tc.pingVal, pingErr: tc.pingErr},
			}

			result := client.Probe(context.Background())

			assert.Equal(t, redisProbeName, result.Name)
			assert.Equal(t, tc.wantOK, result.OK)
			if tc.wantErrSub != "" {
				assert.Contains(t, result.Error, tc.wantErrSub)
			}
			if tc.wantOK {
				assert.Empty(t, result.Error)
			}
		})
	}
}

func TestRedisProbeCircuitBreaker_OpensAfterThreeFailures(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("redis-cb-open-test")
	client := &RedisClient{cb: cb, backend: &mockRedis{pingErr: errors.New("connection refused")}}

	// Three consecutive failures should trip the breaker.
	for i := range 3 {
		result := client.Probe(context.Background())
		assert.False(t, result.OK, "probe %d should fail", i+1)
		assert.NotEqual(t, "circuit open", result.Error,
			"probe %d should not be circuit-open yet", i+1)
	}

	// The 4th call must be rejected immediately by the open breaker.
	result := client.Probe(context.Background())
	assert.False(t, result.OK)
	assert.Equal(t, "circuit open", result.Error)
}

func TestRedisWorldCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newMockRedis()
	client := &RedisClient{
		cfg:     config.RedisConfig{TTL: time.Minute},
		cb:      NewCircuitBreaker("redis-worlds"),
		backend: backend,
	}

	require.NoError(t, client.SetWorlds(ctx, []store.World{{ID: 1, RandomNumber: 11}, {ID: 2, RandomNumber: 22}}))
	assert.Equal(t, `{"id":1,"randomNumber":11}`, backend.data["world:1"])
	assert.Equal(t, []time.Duration{time.Minute}, backend.ttls)

	backend.data["world:3"] = "not json"

	hits, err := client.GetWorlds(ctx, []int32{2, 3, 4, 1})
	require.NoError(t, err)
	assert.Equal(t, map[int32]store.World{
		1: {ID: 1, RandomNumber: 11},
		2: {ID: 2, RandomNumber: 22},
	}, hits)

	empty, err := client.GetWorlds(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	require.NoError(t, client.SetWorlds(ctx, nil))
	assert.Len(t, backend.ttls, 1)
}

func TestRedisWorldCache_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newMockRedis()
	backend.opErr = errors.New("READONLY")
	client := &RedisClient{cb: NewCircuitBreaker("redis-errors"), backend: backend}

	_, err := client.GetWorlds(ctx, []int32{1})
	assert.ErrorContains(t, err, "READONLY")
	assert.ErrorContains(t, client.SetWorlds(ctx, []store.World{{ID: 1}}), "READONLY")
}

func TestRedisCacheBehindStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := &RedisClient{cb: NewCircuitBreaker("redis-store"), backend: newMockRedis()}
	s := store.WithCache(store.NewMemory(10), client)

	first, err := s.FindCachedWorlds(ctx, []int32{4, 5})
	require.NoError(t, err)

	second, err := s.FindCachedWorlds(ctx, []int32{5, 4})
	require.NoError(t, err)
	assert.Equal(t, first[0], second[1])
	assert.Equal(t, first[1], second[0])

	res := s.Probe(ctx)
	assert.True(t, res.OK)
}

func TestRedisNamespacesAreIsolated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newMockRedis()
	client := &RedisClient{cb: NewCircuitBreaker("redis-namespaces"), backend: backend}

	memory := store.WithCache(store.NewMemory(10), client.Namespace("memory"))
	require.NoError(t, memory.ReplaceWorlds(ctx, []store.World{{ID: 1, RandomNumber: 11}}))
	assert.Equal(t, `{"id":1,"randomNumber":11}`, backend.data["world:memory:1"])
	assert.NotContains(t, backend.data, "world:1")

	pgCache := client.Namespace("postgresql")
	hits, err := pgCache.GetWorlds(ctx, []int32{1})
	require.NoError(t, err)
	assert.Empty(t, hits)

	pg := store.WithCache(store.NewMemory(10), pgCache)
	require.NoError(t, pg.ReplaceWorlds(ctx, []store.World{{ID: 1, RandomNumber: 22}}))

	got, err := memory.FindCachedWorlds(ctx, []int32{1})
	require.NoError(t, err)
	assert.Equal(t, []store.World{{ID: 1, RandomNumber: 11}}, got)

	got, err = pg.FindCachedWorlds(ctx, []int32{1})
	require.NoError(t, err)
	assert.Equal(t, []store.World{{ID: 1, RandomNumber: 22}}, got)
}

func TestRedisClose(t *testing.T) {
	t.Parallel()

	backend := newMockRedis()
	client := &RedisClient{cb: NewCircuitBreaker("redis-close"), backend: backend}
	require.NoError(t, client.Close())
	assert.True(t, backend.closed)
	require.NoError(t, client.Close())
}
