package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arc-framework/benchd/internal/config"
	"arc-framework/benchd/internal/launcher"
)

func loadDefaults(t *testing.T) *config.Config {
	t.Helper()
	c, err := config.Load("")
	require.NoError(t, err)
	return c
}

func TestBuildAppContext_Defaults(t *testing.T) {
	c := loadDefaults(t)

	a, err := buildAppContext(c, nil)
	require.NoError(t, err)
	defer a.Close()

	root, err := a.registry.Root()
	require.NoError(t, err)
	assert.Equal(t, "bench", root.Name())

	components, err := launcher.Discover(root)
	require.NoError(t, err)
	names := make([]string, len(components))
	for i, comp := range components {
		names[i] = comp.Name()
	}
	assert.Equal(t, []string{"bench", "bench-controller", "health"}, names)
	assert.Contains(t, a.stores, "memory")
	assert.NotContains(t, a.stores, "postgresql")
}

func TestBuildAppContext_OptionalClients(t *testing.T) {
	c := loadDefaults(t)
	c.Database.Host = "db.internal"
	c.Cache.Host = "cache.internal"
	c.NATS.URL = "nats://flash:4222"

	a, err := buildAppContext(c, nil)
	require.NoError(t, err)
	defer a.Close()

	root, err := a.registry.Root()
	require.NoError(t, err)
	components, err := launcher.Discover(root)
	require.NoError(t, err)

	var names []string
	for _, comp := range components {
		names = append(names, comp.Name())
	}
	assert.Contains(t, names, "nats-announcer")
	assert.Contains(t, a.stores, "postgresql")
	assert.Contains(t, a.stores, "memory")
}

func TestBuildAppContext_UnknownTemplate(t *testing.T) {
	c := loadDefaults(t)
	c.Bench.Templates = []string{"jet"}

	_, err := buildAppContext(c, nil)
	assert.ErrorContains(t, err, "unknown template engine")
}

func TestLauncherOptions(t *testing.T) {
	c := loadDefaults(t)
	a, err := buildAppContext(c, nil)
	require.NoError(t, err)
	root, err := a.registry.Root()
	require.NoError(t, err)

	derived, err := launcher.New(nil, append(launcherOptions(c, nil),
		launcher.WithCoreCounter(func() int { return 4 }))...).Configure(root, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, derived.WorkerPoolSize)
	assert.Equal(t, 8888, derived.ListenPort)
	assert.Equal(t, []string{}, derived.Args)

	c.Server.WorkerPool = 3
	c.Server.Port = 9000
	pinned, err := launcher.New(nil, launcherOptions(c, nil)...).Configure(root, []string{"--warmup"})
	require.NoError(t, err)
	assert.Equal(t, 3, pinned.WorkerPoolSize)
	assert.Equal(t, 9000, pinned.ListenPort)
	assert.Equal(t, []string{"--warmup"}, pinned.Args)
}

func TestInitLogger_LogFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "benchd.log")
	require.NoError(t, initLogger(config.TelemetryConfig{LogLevel: "warn", LogFile: path}))

	slog.Info("dropped")
	slog.Warn("pool saturated", "workerPool", 2)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pool saturated")
	assert.NotContains(t, string(data), "dropped")

	err = initLogger(config.TelemetryConfig{LogFile: filepath.Join(t.TempDir(), "no", "such", "dir.log")})
	assert.ErrorContains(t, err, "opening log file")
}
