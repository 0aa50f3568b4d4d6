package main

import (
	"fmt"
	"log/slog"

	"arc-framework/benchd/internal/api"
	"arc-framework/benchd/internal/bench"
	"arc-framework/benchd/internal/clients"
	"arc-framework/benchd/internal/config"
	"arc-framework/benchd/internal/health"
	"arc-framework/benchd/internal/launcher"
	"arc-framework/benchd/internal/store"
)

const (
	memoryEngine   = "memory"
	postgresEngine = "postgresql"
)

// AppContext holds all constructed application dependencies shared across
// subcommands. It is built once in PersistentPreRunE.
type AppContext struct {
	cfg      *config.Config
	registry *launcher.Registry
	stores   map[string]store.Store
	closers  []func()
}

// buildAppContext constructs all application dependencies from cfg:
//  1. Creates the world cache (redis when configured, in-process otherwise)
//  2. Creates the stores, one route group each
//  3. Creates the optional NATS lifecycle announcer
//  4. Creates the health checker over every store and client
//  5. Boots the bench application as the root component
//
// No connection is opened here; clients connect on first use.
func buildAppContext(cfg *config.Config, logger *slog.Logger) (*AppContext, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &AppContext{
		cfg:      cfg,
		registry: &launcher.Registry{},
		stores:   make(map[string]store.Store),
	}

	settings := bench.SettingsFrom(cfg.Bench)

	// One circuit breaker per client so each dependency trips independently.
	// Each engine caches under its own namespace.
	cacheFor := func(string) store.Cache { return store.NewMapCache() }
	if cfg.Cache.Enabled() {
		redis := clients.NewRedisClient(cfg.Cache, clients.NewCircuitBreaker("redis"))
		app.closers = append(app.closers, func() {
			if err := redis.Close(); err != nil {
				logger.Warn("closing redis client", "err", err)
			}
		})
		cacheFor = redis.Namespace
	}

	mem := store.NewMemory(settings.WorldRows)
	if cfg.Cache.Enabled() {
		app.stores[memoryEngine] = store.WithCache(mem, cacheFor(memoryEngine))
	} else {
		app.stores[memoryEngine] = mem
	}

	if cfg.Database.Enabled() {
		pg := clients.NewPostgresClient(cfg.Database, clients.NewCircuitBreaker("postgresql"))
		app.closers = append(app.closers, pg.Close)
		app.stores[postgresEngine] = store.WithCache(pg, cacheFor(postgresEngine))
	}

	probers := make(map[string]health.Prober, len(app.stores)+1)
	for name, s := range app.stores {
		probers[name] = s
	}

	controller, err := bench.NewController(settings, app.stores, logger)
	if err != nil {
		return nil, fmt.Errorf("building bench controller: %w", err)
	}
	children := []launcher.Component{controller}

	if cfg.NATS.Enabled() {
		announcer := clients.NewNATSAnnouncer(cfg.NATS, clients.NewCircuitBreaker("nats"), logger)
		probers["nats"] = announcer
		children = append(children, announcer)
	}

	children = append(children, api.NewHealth(health.New(probers)))

	app.registry.Boot(bench.NewApp(children...))
	return app, nil
}

// launcherOptions maps the server config section to launcher options. A
// zero worker_pool keeps the cores-derived size.
func launcherOptions(cfg *config.Config, logger *slog.Logger) []launcher.Option {
	opts := []launcher.Option{
		launcher.WithPort(cfg.Server.Port),
		launcher.WithLogger(logger),
	}
	if cfg.Server.WorkerPool > 0 {
		opts = append(opts, launcher.WithPoolSize(cfg.Server.WorkerPool))
	}
	return opts
}

// Close releases every client opened by the stores.
func (a *AppContext) Close() {
	for _, c := range a.closers {
		c()
	}
}
