package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"arc-framework/benchd/internal/config"
	"arc-framework/benchd/internal/health"
	"arc-framework/benchd/internal/store"
)

const (
	redisProbeName = "redis"
	worldKeyPrefix = "world:"
)

// redisBackend is the subset of the go-redis client used by RedisClient.
// It is implemented by the real client and by test doubles.
type redisBackend interface {
	PingResult(ctx context.Context) (string, error)
	MGetValues(ctx context.Context, keys ...string) ([]any, error)
	SetValues(ctx context.Context, values map[string]string, ttl time.Duration) error
	Close() error
}

// realRedisBackend adapts a *redis.Client to redisBackend so tests do not
// have to construct go-redis command results.
type realRedisBackend struct {
	client *redis.Client
}

func (r *realRedisBackend) PingResult(ctx context.Context) (string, error) {
	return r.client.Ping(ctx).Result()
}

func (r *realRedisBackend) MGetValues(ctx context.Context, keys ...string) ([]any, error) {
	return r.client.MGet(ctx, keys...).Result()
}

func (r *realRedisBackend) SetValues(ctx context.Context, values map[string]string, ttl time.Duration) error {
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, k, v, ttl)
		}
		return nil
	})
	return err
}

func (r *realRedisBackend) Close() error {
	return r.client.Close()
}

// RedisClient is a store.Cache backed by redis. Worlds are stored as JSON
// under "world:{id}", or "world:{namespace}:{id}" through Namespace. Every
// call runs inside the circuit breaker.
type RedisClient struct {
	cfg config.RedisConfig
	cb  *gobreaker.CircuitBreaker

	mu      sync.Mutex
	backend redisBackend
}

var (
	_ store.Cache   = (*RedisClient)(nil)
	_ health.Prober = (*RedisClient)(nil)
)

// NewRedisClient creates a RedisClient. The go-redis client is built on first
// use.
func NewRedisClient(cfg config.RedisConfig, cb *gobreaker.CircuitBreaker) *RedisClient {
	return &RedisClient{
		cfg: cfg,
		cb:  cb,
	}
}

func (c *RedisClient) client() redisBackend {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend == nil {
		c.backend = &realRedisBackend{
			client: redis.NewClient(&redis.Options{
				Addr:     fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port),
				Password: c.cfg.Password,
				DB:       c.cfg.DB,
			}),
		}
	}
	return c.backend
}

// Namespace returns a store.Cache sharing this client's connection and
// breaker. Its keys never collide with another namespace's.
func (c *RedisClient) Namespace(name string) store.Cache {
	return &namespacedCache{client: c, prefix: worldKeyPrefix + name + ":"}
}

type namespacedCache struct {
	client *RedisClient
	prefix string
}

func (n *namespacedCache) GetWorlds(ctx context.Context, ids []int32) (map[int32]store.World, error) {
	return n.client.getWorlds(ctx, n.prefix, ids)
}

func (n *namespacedCache) SetWorlds(ctx context.Context, worlds []store.World) error {
	return n.client.setWorlds(ctx, n.prefix, worlds)
}

func (n *namespacedCache) Probe(ctx context.Context) health.ProbeResult {
	return n.client.Probe(ctx)
}

// GetWorlds returns the cached subset of ids. Missing keys and entries that
// fail to decode are treated as misses.
func (c *RedisClient) GetWorlds(ctx context.Context, ids []int32) (map[int32]store.World, error) {
	return c.getWorlds(ctx, worldKeyPrefix, ids)
}

// SetWorlds stores worlds with the configured TTL; zero keeps them forever.
func (c *RedisClient) SetWorlds(ctx context.Context, worlds []store.World) error {
	return c.setWorlds(ctx, worldKeyPrefix, worlds)
}

func (c *RedisClient) getWorlds(ctx context.Context, prefix string, ids []int32) (map[int32]store.World, error) {
	if len(ids) == 0 {
		return map[int32]store.World{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = worldKey(prefix, id)
	}

	out, err := c.cb.Execute(func() (any, error) {
		vals, err := c.client().MGetValues(ctx, keys...)
		if err != nil {
			return nil, fmt.Errorf("mget worlds: %w", err)
		}
		return vals, nil
	})
	if err != nil {
		return nil, err
	}

	vals := out.([]any)
	hits := make(map[int32]store.World, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok || i >= len(ids) {
			continue
		}
		var w store.World
		if err := json.Unmarshal([]byte(s), &w); err != nil || w.ID != ids[i] {
			continue
		}
		hits[w.ID] = w
	}
	return hits, nil
}

func (c *RedisClient) setWorlds(ctx context.Context, prefix string, worlds []store.World) error {
	if len(worlds) == 0 {
		return nil
	}

	values := make(map[string]string, len(worlds))
	for _, w := range worlds {
		b, err := json.Marshal(w)
		if err != nil {
			return fmt.Errorf("encoding world %d: %w", w.ID, err)
		}
		values[worldKey(prefix, w.ID)] = string(b)
	}

	_, err := c.cb.Execute(func() (any, error) {
		if err := c.client().SetValues(ctx, values, c.cfg.TTL); err != nil {
			return nil, fmt.Errorf("set worlds: %w", err)
		}
		return nil, nil
	})
	return err
}

// Probe sends a PING command to Redis and validates the PONG response. After
// 3 consecutive failures the breaker opens and calls return "circuit open".
func (c *RedisClient) Probe(ctx context.Context) health.ProbeResult {
	return health.Probe(redisProbeName, func() error {
		_, err := c.cb.Execute(func() (any, error) {
			val, err := c.client().PingResult(ctx)
			if err != nil {
				return nil, fmt.Errorf("ping: %w", err)
			}
			if val != "PONG" {
				return nil, fmt.Errorf("unexpected PING response: %q", val)
			}
			return nil, nil
		})
		return breakerErr(err)
	})
}

// Close releases the go-redis client if one was built.
func (c *RedisClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend == nil {
		return nil
	}
	err := c.backend.Close()
	c.backend = nil
	return err
}

func worldKey(prefix string, id int32) string {
	return prefix + strconv.FormatInt(int64(id), 10)
}
