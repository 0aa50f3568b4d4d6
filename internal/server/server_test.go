package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"arc-framework/benchd/internal/launcher"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pingComponent mounts GET /ping and records lifecycle hooks.
type pingComponent struct {
	name     string
	children []launcher.Component
	startErr error

	mu      sync.Mutex
	info    *Info
	stopped atomic.Bool
}

func (c *pingComponent) Name() string                     { return c.name }
func (c *pingComponent) Components() []launcher.Component { return c.children }

func (c *pingComponent) Mount(r gin.IRouter) {
	r.GET("/"+c.name, func(ctx *gin.Context) { ctx.String(http.StatusOK, c.name) })
	r.GET("/"+c.name+"/panic", func(*gin.Context) { panic("handler exploded") })
}

func (c *pingComponent) OnStart(_ context.Context, info Info) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info = &info
	return c.startErr
}

func (c *pingComponent) OnStop(context.Context) error {
	c.stopped.Store(true)
	return nil
}

func (c *pingComponent) startInfo() *Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

func testConfig(root launcher.Component, pool int) launcher.ProcessConfiguration {
	return launcher.ProcessConfiguration{
		WorkerPoolSize: pool,
		ListenPort:     0,
		Root:           root,
		Args:           []string{},
	}
}

func newTestServer(opts Options) *Server {
	opts.Host = "127.0.0.1"
	opts.Logger = noopLogger()
	opts.ShutdownTimeout = 2 * time.Second
	return New(opts)
}

func get(t *testing.T, h launcher.Handle, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + h.Addr().String() + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestStart_ServesDiscoveredComponents(t *testing.T) {
	t.Parallel()

	child := &pingComponent{name: "child"}
	root := &pingComponent{name: "root", children: []launcher.Component{child}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, err := newTestServer(Options{}).Start(ctx, testConfig(root, 4))
	require.NoError(t, err)

	assert.Equal(t, 4, h.PoolSize())

	code, body := get(t, h, "/root")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "root", body)

	code, body = get(t, h, "/child")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "child", body)

	info := child.startInfo()
	require.NotNil(t, info)
	assert.Equal(t, 4, info.PoolSize)
	assert.Equal(t, "root", info.Root)
	assert.Equal(t, h.Addr().String(), info.Addr.String())

	require.NoError(t, h.Shutdown(context.Background()))
	assert.True(t, root.stopped.Load())
	assert.True(t, child.stopped.Load())
}

func TestStart_WorkersObservePoolSizeBeforeActive(t *testing.T) {
	t.Parallel()

	const size = 6
	seen := make(chan int, size)

	srv := newTestServer(Options{OnWorkerStart: func(_, n int) { seen <- n }})
	h, err := srv.Start(context.Background(), testConfig(&pingComponent{name: "root"}, size))
	require.NoError(t, err)
	defer h.Shutdown(context.Background()) //nolint:errcheck

	for i := 0; i < size; i++ {
		select {
		case n := <-seen:
			assert.Equal(t, size, n)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for workers")
		}
	}
}

func TestStart_PanicInHandlerIsRecovered(t *testing.T) {
	t.Parallel()

	srv := newTestServer(Options{Middleware: []gin.HandlerFunc{gin.CustomRecovery(func(c *gin.Context, _ any) {
		c.AbortWithStatus(http.StatusInternalServerError)
	})}})
	h, err := srv.Start(context.Background(), testConfig(&pingComponent{name: "root"}, 1))
	require.NoError(t, err)
	defer h.Shutdown(context.Background()) //nolint:errcheck

	code, _ := get(t, h, "/root/panic")
	assert.Equal(t, http.StatusInternalServerError, code)

	code, body := get(t, h, "/root")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "root", body)
}

func TestStart_BindError(t *testing.T) {
	t.Parallel()

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()
	port := taken.Addr().(*net.TCPAddr).Port

	cfg := testConfig(&pingComponent{name: "root"}, 2)
	cfg.ListenPort = port

	_, err = newTestServer(Options{}).Start(context.Background(), cfg)
	require.Error(t, err)

	var be *launcher.BindError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, port, be.Port)
}

func TestStart_ConfigurationErrorBeforeBind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  launcher.ProcessConfiguration
	}{
		{
			name: "duplicate component names",
			cfg: testConfig(&pingComponent{name: "root", children: []launcher.Component{
				&pingComponent{name: "dup"},
				&pingComponent{name: "dup"},
			}}, 2),
		},
		{
			name: "zero worker pool",
			cfg:  testConfig(&pingComponent{name: "root"}, 0),
		},
		{
			name: "missing root",
			cfg:  testConfig(nil, 2),
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var listened atomic.Bool
			srv := newTestServer(Options{Listen: func(network, addr string) (net.Listener, error) {
				listened.Store(true)
				return net.Listen(network, addr)
			}})

			_, err := srv.Start(context.Background(), tc.cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, launcher.ErrConfiguration)
			assert.False(t, listened.Load(), "no socket may be opened on configuration error")
		})
	}
}

// dupRouteComponent registers the same route twice, which gin rejects with a
// panic.
type dupRouteComponent struct{}

func (dupRouteComponent) Name() string                     { return "dup-route" }
func (dupRouteComponent) Components() []launcher.Component { return nil }

func (dupRouteComponent) Mount(r gin.IRouter) {
	r.GET("/same", func(*gin.Context) {})
	r.GET("/same", func(*gin.Context) {})
}

func TestStart_MountPanicOpensNothing(t *testing.T) {
	t.Parallel()

	var listened atomic.Bool
	var workers atomic.Int32
	srv := newTestServer(Options{
		Listen: func(network, addr string) (net.Listener, error) {
			listened.Store(true)
			return net.Listen(network, addr)
		},
		OnWorkerStart: func(int, int) { workers.Add(1) },
	})

	root := &pingComponent{name: "root", children: []launcher.Component{dupRouteComponent{}}}
	assert.Panics(t, func() {
		_, _ = srv.Start(context.Background(), testConfig(root, 4))
	})
	assert.False(t, listened.Load(), "no socket may be opened when mounting fails")
	assert.Zero(t, workers.Load(), "no worker may be spawned when mounting fails")
}

func TestStart_ContextCancelStops(t *testing.T) {
	t.Parallel()

	root := &pingComponent{name: "root"}
	ctx, cancel := context.WithCancel(context.Background())

	h, err := newTestServer(Options{}).Start(ctx, testConfig(root, 2))
	require.NoError(t, err)

	cancel()

	done := make(chan error, 1)
	go func() { done <- h.Wait() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("runtime did not stop after context cancel")
	}
	assert.True(t, root.stopped.Load())

	_, err = http.Get("http://" + h.Addr().String() + "/root")
	assert.Error(t, err, "listener must be closed after shutdown")
}

func TestStart_StartHookFailure(t *testing.T) {
	t.Parallel()

	root := &pingComponent{name: "root", startErr: errors.New("announce failed")}

	_, err := newTestServer(Options{}).Start(context.Background(), testConfig(root, 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "announce failed")
	assert.True(t, root.stopped.Load())
}

func TestHandle_ShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	h, err := newTestServer(Options{}).Start(context.Background(), testConfig(&pingComponent{name: "root"}, 1))
	require.NoError(t, err)

	require.NoError(t, h.Shutdown(context.Background()))
	require.NoError(t, h.Shutdown(context.Background()))
	require.NoError(t, h.Wait())
}

func TestLauncherDrivesServer(t *testing.T) {
	t.Parallel()

	// Bind an ephemeral port, release it and hand it to the launcher.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	seen := make(chan int, 6)
	srv := newTestServer(Options{OnWorkerStart: func(_, n int) { seen <- n }})
	l := launcher.New(srv,
		launcher.WithCoreCounter(func() int { return 3 }),
		launcher.WithPort(port),
		launcher.WithLogger(noopLogger()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	launched := make(chan error, 1)
	go func() { launched <- l.Launch(ctx, &pingComponent{name: "root"}, nil) }()

	for i := 0; i < 6; i++ {
		select {
		case n := <-seen:
			assert.Equal(t, 6, n)
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for workers")
		}
	}

	cancel()
	select {
	case err := <-launched:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Launch did not return after shutdown")
	}
}
