// Package server is the HTTP runtime started by the launcher. It discovers
// components from the boot component, provisions the worker pool, and serves
// the mounted routes until its context is cancelled.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"arc-framework/benchd/internal/launcher"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const defaultShutdownTimeout = 30 * time.Second

// Options configures a Server. Zero values are usable.
type Options struct {
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Logger          *slog.Logger

	// Middleware runs before the worker pool dispatch on every request.
	Middleware []gin.HandlerFunc

	// OnWorkerStart is called by each pool worker as it becomes active.
	OnWorkerStart func(id, size int)

	// MeterProvider defaults to the global OTEL provider.
	MeterProvider metric.MeterProvider

	// Listen defaults to net.Listen.
	Listen func(network, address string) (net.Listener, error)
}

// Server implements launcher.Runtime.
type Server struct {
	opts Options
}

var _ launcher.Runtime = (*Server)(nil)

// New returns a Server with opts.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = otel.GetMeterProvider()
	}
	if opts.Listen == nil {
		opts.Listen = net.Listen
	}
	return &Server{opts: opts}
}

// Start discovers components from cfg.Root, binds cfg.ListenPort, spawns
// cfg.WorkerPoolSize workers and begins serving. Cancelling ctx shuts the
// runtime down gracefully.
func (s *Server) Start(ctx context.Context, cfg launcher.ProcessConfiguration) (launcher.Handle, error) {
	if cfg.WorkerPoolSize < launcher.MinPoolSize {
		return nil, &launcher.ConfigurationError{
			Reason: fmt.Sprintf("worker pool size %d below %d", cfg.WorkerPoolSize, launcher.MinPoolSize),
		}
	}

	components, err := launcher.Discover(cfg.Root)
	if err != nil {
		return nil, err
	}

	// Routes are mounted before anything is opened, so a Mount panic
	// leaves no listener or worker behind.
	pool := newPool(cfg.WorkerPoolSize)
	engine := gin.New()
	engine.Use(s.opts.Middleware...)
	engine.Use(pool.Middleware())

	var stoppers []Stopper
	var starters []Starter
	for _, c := range components {
		if m, ok := c.(Mounter); ok {
			m.Mount(engine)
		}
		if st, ok := c.(Starter); ok {
			starters = append(starters, st)
		}
		if sp, ok := c.(Stopper); ok {
			stoppers = append(stoppers, sp)
		}
	}

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(cfg.ListenPort))
	ln, err := s.opts.Listen("tcp", addr)
	if err != nil {
		return nil, &launcher.BindError{Port: cfg.ListenPort, Err: err}
	}

	pool.spawn(s.opts.OnWorkerStart)

	// Metrics are best-effort.
	metrics, err := registerPoolMetrics(s.opts.MeterProvider, pool)
	if err != nil {
		s.opts.Logger.WarnContext(ctx, "pool metrics disabled", "err", err)
	}

	h := &handle{
		srv: &http.Server{
			Handler:      engine,
			ReadTimeout:  s.opts.ReadTimeout,
			WriteTimeout: s.opts.WriteTimeout,
		},
		pool:            pool,
		metrics:         metrics,
		addr:            ln.Addr(),
		stoppers:        stoppers,
		logger:          s.opts.Logger,
		shutdownTimeout: s.opts.ShutdownTimeout,
		serveErr:        make(chan error, 1),
		done:            make(chan struct{}),
	}

	go h.serve(ln)
	s.opts.Logger.InfoContext(ctx, "server listening",
		"addr", h.addr.String(),
		"worker_pool", pool.Size(),
		"components", len(components),
	)

	info := Info{
		Addr:     h.addr,
		PoolSize: pool.Size(),
		Root:     cfg.Root.Name(),
		Args:     cfg.Args,
	}
	for _, st := range starters {
		if err := st.OnStart(ctx, info); err != nil {
			shutCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
			_ = h.Shutdown(shutCtx)
			cancel()
			return nil, fmt.Errorf("start hook: %w", err)
		}
	}

	go h.watch(ctx)
	return h, nil
}

type handle struct {
	srv             *http.Server
	pool            *Pool
	metrics         metric.Registration
	addr            net.Addr
	stoppers        []Stopper
	logger          *slog.Logger
	shutdownTimeout time.Duration

	serveErr chan error
	stopOnce sync.Once
	stopErr  error
	done     chan struct{}
}

func (h *handle) serve(ln net.Listener) {
	if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		h.serveErr <- err
	}
}

func (h *handle) watch(ctx context.Context) {
	var cause error
	select {
	case err := <-h.serveErr:
		h.logger.Error("server error", "err", err)
		cause = fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
		h.logger.Info("shutdown signal received")
	case <-h.done:
		return
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()
	_ = h.stop(shutCtx, cause)
}

// stop shuts the runtime down once; concurrent callers wait for the first.
// cause, when set, is reported by Wait instead of the shutdown result.
func (h *handle) stop(ctx context.Context, cause error) error {
	h.stopOnce.Do(func() {
		err := h.shutdown(ctx)
		if cause != nil {
			err = cause
		}
		h.stopErr = err
		close(h.done)
	})
	<-h.done
	return h.stopErr
}

func (h *handle) shutdown(ctx context.Context) error {
	var errs []error
	if err := h.srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("graceful shutdown failed: %w", err))
	}
	h.pool.Close()
	if h.metrics != nil {
		if err := h.metrics.Unregister(); err != nil {
			h.logger.Warn("unregistering pool metrics", "err", err)
		}
	}
	for _, sp := range h.stoppers {
		if err := sp.OnStop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop hook: %w", err))
		}
	}
	if len(errs) == 0 {
		h.logger.Info("server stopped cleanly")
	}
	return errors.Join(errs...)
}

func (h *handle) Addr() net.Addr { return h.addr }

func (h *handle) PoolSize() int { return h.pool.Size() }

func (h *handle) Wait() error {
	<-h.done
	return h.stopErr
}

// Shutdown stops the runtime and waits for it. Only the first call does any
// work; later calls return the same result.
func (h *handle) Shutdown(ctx context.Context) error {
	return h.stop(ctx, nil)
}
