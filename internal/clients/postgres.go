package clients

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"

	"arc-framework/benchd/internal/config"
	"arc-framework/benchd/internal/health"
	"arc-framework/benchd/internal/store"
)

const postgresProbeName = "postgresql"

const (
	selectWorldSQL    = "SELECT id, randomnumber FROM world WHERE id = $1"
	selectFortunesSQL = "SELECT id, message FROM fortune"
	updateWorldsSQL   = "UPDATE world SET randomnumber = v.randomnumber " +
		"FROM (SELECT unnest($1::int[]) AS id, unnest($2::int[]) AS randomnumber) AS v " +
		"WHERE world.id = v.id"
	worldTableSQL = "SELECT 1 FROM information_schema.tables WHERE table_schema='public' AND table_name='world'"
)

// pgConn abstracts the pgxpool.Pool methods used by PostgresClient so that
// tests can inject a fake without standing up a real database.
type pgConn interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresClient is the postgresql store. It wraps a pgx connection pool
// with a circuit breaker.
type PostgresClient struct {
	cfg     config.PostgresConfig
	cb      *gobreaker.CircuitBreaker
	connect func(ctx context.Context, cfg config.PostgresConfig) (pgConn, error)

	mu sync.Mutex
	db pgConn
}

var _ store.Store = (*PostgresClient)(nil)

// NewPostgresClient creates a PostgresClient that lazily opens a pgx pool on
// first use. No connection is made at construction time; a failed connect is
// retried on the next call.
func NewPostgresClient(cfg config.PostgresConfig, cb *gobreaker.CircuitBreaker) *PostgresClient {
	return &PostgresClient{
		cfg:     cfg,
		cb:      cb,
		connect: realConnect,
	}
}

func (c *PostgresClient) conn(ctx context.Context) (pgConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return c.db, nil
	}
	db, err := c.connect(ctx, c.cfg)
	if err != nil {
		return nil, err
	}
	c.db = db
	return db, nil
}

// execute runs fn with a pool inside the circuit breaker.
func (c *PostgresClient) execute(ctx context.Context, fn func(db pgConn) (any, error)) (any, error) {
	return c.cb.Execute(func() (any, error) {
		db, err := c.conn(ctx)
		if err != nil {
			return nil, err
		}
		return fn(db)
	})
}

// FindWorlds fetches each id with its own single-row query.
func (c *PostgresClient) FindWorlds(ctx context.Context, ids []int32) ([]store.World, error) {
	out, err := c.execute(ctx, func(db pgConn) (any, error) {
		worlds := make([]store.World, len(ids))
		for i, id := range ids {
			w := &worlds[i]
			if err := db.QueryRow(ctx, selectWorldSQL, id).Scan(&w.ID, &w.RandomNumber); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return nil, fmt.Errorf("world %d: %w", id, store.ErrNotFound)
				}
				return nil, fmt.Errorf("selecting world %d: %w", id, err)
			}
		}
		return worlds, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]store.World), nil
}

// FindCachedWorlds has no cache of its own; wrap the client with
// store.WithCache to get one.
func (c *PostgresClient) FindCachedWorlds(ctx context.Context, ids []int32) ([]store.World, error) {
	return c.FindWorlds(ctx, ids)
}

// ReplaceWorlds updates all worlds in a single statement. Rows are sorted by
// id to keep lock order stable across concurrent updates; for a repeated id
// the last value wins.
func (c *PostgresClient) ReplaceWorlds(ctx context.Context, worlds []store.World) error {
	if len(worlds) == 0 {
		return nil
	}

	latest := make(map[int32]int32, len(worlds))
	for _, w := range worlds {
		latest[w.ID] = w.RandomNumber
	}
	ids := make([]int32, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	numbers := make([]int32, len(ids))
	for i, id := range ids {
		numbers[i] = latest[id]
	}

	_, err := c.execute(ctx, func(db pgConn) (any, error) {
		if _, err := db.Exec(ctx, updateWorldsSQL, ids, numbers); err != nil {
			return nil, fmt.Errorf("updating worlds: %w", err)
		}
		return nil, nil
	})
	return err
}

func (c *PostgresClient) FindAllFortunes(ctx context.Context) ([]store.Fortune, error) {
	out, err := c.execute(ctx, func(db pgConn) (any, error) {
		rows, err := db.Query(ctx, selectFortunesSQL)
		if err != nil {
			return nil, fmt.Errorf("selecting fortunes: %w", err)
		}
		defer rows.Close()

		var fortunes []store.Fortune
		for rows.Next() {
			var f store.Fortune
			if err := rows.Scan(&f.ID, &f.Message); err != nil {
				return nil, fmt.Errorf("scanning fortune: %w", err)
			}
			fortunes = append(fortunes, f)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("reading fortunes: %w", err)
		}
		return fortunes, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]store.Fortune), nil
}

// Probe pings the Postgres server and verifies the world table exists in the
// public schema. It wraps the check in the circuit breaker so that
// persistent failures trip the breaker after three consecutive errors.
func (c *PostgresClient) Probe(ctx context.Context) health.ProbeResult {
	return health.Probe(postgresProbeName, func() error {
		_, err := c.execute(ctx, func(db pgConn) (any, error) {
			if err := db.Ping(ctx); err != nil {
				return nil, fmt.Errorf("ping: %w", err)
			}

			var exists int
			if err := db.QueryRow(ctx, worldTableSQL).Scan(&exists); err != nil {
				return nil, fmt.Errorf("world table not found: %w", err)
			}
			return nil, nil
		})
		return breakerErr(err)
	})
}

// Close releases the pool if one was opened.
func (c *PostgresClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		c.db.Close()
		c.db = nil
	}
}

// realConnect opens a pgxpool.Pool using the provided PostgresConfig.
func realConnect(ctx context.Context, cfg config.PostgresConfig) (pgConn, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DB, cfg.SSLMode,
	)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}

	return pool, nil
}
