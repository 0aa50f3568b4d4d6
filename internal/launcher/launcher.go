// Package launcher assembles the process configuration and hands it to a
// server runtime exactly once.
package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
)

// ProcessConfiguration is the one-shot configuration handed to a Runtime.
// It is passed by value and must not be mutated after Start.
type ProcessConfiguration struct {
	WorkerPoolSize int
	ListenPort     int
	Root           Component
	Args           []string
}

// Handle is a running runtime instance.
type Handle interface {
	Addr() net.Addr
	PoolSize() int
	// Wait blocks until the runtime has stopped.
	Wait() error
	Shutdown(ctx context.Context) error
}

// Runtime is the server runtime driven by a Launcher. Start provisions the
// worker pool from cfg, binds the port and begins serving. The runtime owns
// shutdown: cancelling ctx stops it.
type Runtime interface {
	Start(ctx context.Context, cfg ProcessConfiguration) (Handle, error)
}

// Launcher computes a ProcessConfiguration and starts a Runtime once.
type Launcher struct {
	rt     Runtime
	cores  func() int
	sizer  Sizer
	port   int
	logger *slog.Logger

	launched atomic.Bool
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithCoreCounter replaces the host topology query.
func WithCoreCounter(f func() int) Option {
	return func(l *Launcher) { l.cores = f }
}

// WithSizer replaces the pool sizing strategy.
func WithSizer(s Sizer) Option {
	return func(l *Launcher) { l.sizer = s }
}

// WithPoolSize pins the pool size regardless of host topology.
func WithPoolSize(n int) Option {
	return WithSizer(FixedSize(n))
}

// WithPort overrides DefaultPort.
func WithPort(port int) Option {
	return func(l *Launcher) { l.port = port }
}

// WithLogger sets the logger used for launch events.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Launcher) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New returns a Launcher driving rt.
func New(rt Runtime, opts ...Option) *Launcher {
	l := &Launcher{
		rt:     rt,
		cores:  HostCores,
		sizer:  PoolSize,
		port:   DefaultPort,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Configure assembles the ProcessConfiguration Launch would hand to the
// runtime, without starting anything. args is copied.
func (l *Launcher) Configure(root Component, args []string) (ProcessConfiguration, error) {
	if isNil(root) {
		return ProcessConfiguration{}, &ConfigurationError{Err: ErrNoRootComponent}
	}
	if l.port < minPort || l.port > maxPort {
		return ProcessConfiguration{}, &ConfigurationError{
			Reason: fmt.Sprintf("listen port %d outside [%d, %d]", l.port, minPort, maxPort),
		}
	}

	forwarded := make([]string, len(args))
	copy(forwarded, args)

	return ProcessConfiguration{
		WorkerPoolSize: clampPool(l.sizer(l.cores())),
		ListenPort:     l.port,
		Root:           root,
		Args:           forwarded,
	}, nil
}

// Launch starts the runtime with root as the boot component and blocks
// until the runtime stops. The runtime is started at most once per
// Launcher; later calls return ErrAlreadyLaunched.
func (l *Launcher) Launch(ctx context.Context, root Component, args []string) error {
	cfg, err := l.Configure(root, args)
	if err != nil {
		return err
	}

	if !l.launched.CompareAndSwap(false, true) {
		return ErrAlreadyLaunched
	}

	l.logger.InfoContext(ctx, "launching runtime",
		"root", cfg.Root.Name(),
		"port", cfg.ListenPort,
		"worker_pool", cfg.WorkerPoolSize,
		"args", len(cfg.Args),
	)

	h, err := l.rt.Start(ctx, cfg)
	if err != nil {
		return fmt.Errorf("starting runtime: %w", err)
	}

	l.logger.InfoContext(ctx, "runtime running", "addr", h.Addr().String(), "worker_pool", h.PoolSize())

	if err := h.Wait(); err != nil {
		return fmt.Errorf("runtime stopped: %w", err)
	}
	return nil
}
