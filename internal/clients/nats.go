package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"

	"arc-framework/benchd/internal/config"
	"arc-framework/benchd/internal/health"
	"arc-framework/benchd/internal/launcher"
	"arc-framework/benchd/internal/server"
)

const (
	natsProbeName     = "nats"
	announcerName     = "nats-announcer"
	defaultSubject    = "benchd.lifecycle"
	EventLaunched     = "launched"
	EventStopped      = "stopped"
	natsConnectWait   = 2 * time.Second
	natsFlushDeadline = 2 * time.Second
)

var errNotConnected = errors.New("not connected")

// natsConn is the subset of *nats.Conn used by the announcer. Defining an
// interface here allows test doubles to be injected without a live server.
type natsConn interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
	IsConnected() bool
	Close()
}

// LifecycleEvent is published on the lifecycle subject.
type LifecycleEvent struct {
	Event      string    `json:"event"`
	Instance   string    `json:"instance"`
	Addr       string    `json:"addr,omitempty"`
	WorkerPool int       `json:"workerPool,omitempty"`
	Root       string    `json:"root,omitempty"`
	Args       []string  `json:"args,omitempty"`
	At         time.Time `json:"at"`
}

// NATSAnnouncer publishes launch and stop events for this process. It is a
// runtime component: OnStart connects and announces, OnStop announces and
// disconnects. Publishing is best-effort and never fails the runtime.
type NATSAnnouncer struct {
	url      string
	subject  string
	instance string
	cb       *gobreaker.CircuitBreaker
	logger   *slog.Logger
	connect  func(url string) (natsConn, error)
	now      func() time.Time

	mu   sync.Mutex
	conn natsConn
	info server.Info
}

var (
	_ launcher.Component = (*NATSAnnouncer)(nil)
	_ server.Starter     = (*NATSAnnouncer)(nil)
	_ server.Stopper     = (*NATSAnnouncer)(nil)
	_ health.Prober      = (*NATSAnnouncer)(nil)
)

// NewNATSAnnouncer constructs a NATSAnnouncer. No connection is made until the
// runtime starts.
func NewNATSAnnouncer(cfg config.NATSConfig, cb *gobreaker.CircuitBreaker, logger *slog.Logger) *NATSAnnouncer {
	subject := cfg.Subject
	if subject == "" {
		subject = defaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSAnnouncer{
		url:      cfg.URL,
		subject:  subject,
		instance: uuid.NewString(),
		cb:       cb,
		logger:   logger,
		connect:  realNATSConnect,
		now:      time.Now,
	}
}

func (a *NATSAnnouncer) Name() string { return announcerName }

// OnStart connects and publishes a launched event.
func (a *NATSAnnouncer) OnStart(ctx context.Context, info server.Info) error {
	a.mu.Lock()
	a.info = info
	a.mu.Unlock()

	if err := a.publish(ctx, EventLaunched); err != nil {
		a.logger.WarnContext(ctx, "lifecycle announce failed",
			"event", EventLaunched, "subject", a.subject, "err", err)
	}
	return nil
}

// OnStop publishes a stopped event, flushes and closes the connection.
func (a *NATSAnnouncer) OnStop(ctx context.Context) error {
	if err := a.publish(ctx, EventStopped); err != nil {
		a.logger.WarnContext(ctx, "lifecycle announce failed",
			"event", EventStopped, "subject", a.subject, "err", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		flushCtx, cancel := context.WithTimeout(ctx, natsFlushDeadline)
		_ = a.conn.FlushWithContext(flushCtx)
		cancel()
		a.conn.Close()
		a.conn = nil
	}
	return nil
}

func (a *NATSAnnouncer) publish(ctx context.Context, event string) error {
	a.mu.Lock()
	info := a.info
	a.mu.Unlock()

	ev := LifecycleEvent{
		Event:      event,
		Instance:   a.instance,
		WorkerPool: info.PoolSize,
		Root:       info.Root,
		Args:       info.Args,
		At:         a.now().UTC(),
	}
	if info.Addr != nil {
		ev.Addr = info.Addr.String()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event, err)
	}

	_, err = a.cb.Execute(func() (any, error) {
		nc, err := a.ensureConn()
		if err != nil {
			return nil, err
		}
		if err := nc.Publish(a.subject, data); err != nil {
			return nil, fmt.Errorf("publishing to %s: %w", a.subject, err)
		}
		return nil, nil
	})
	if err != nil {
		return breakerErr(err)
	}

	a.logger.DebugContext(ctx, "lifecycle announced", "event", event, "subject", a.subject)
	return nil
}

func (a *NATSAnnouncer) ensureConn() (natsConn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		return a.conn, nil
	}
	nc, err := a.connect(a.url)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	a.conn = nc
	return nc, nil
}

// Probe reports whether the announcer holds a live connection. Before the
// runtime starts there is nothing to check and the probe fails.
func (a *NATSAnnouncer) Probe(_ context.Context) health.ProbeResult {
	return health.Probe(natsProbeName, func() error {
		a.mu.Lock()
		nc := a.conn
		a.mu.Unlock()

		if nc == nil || !nc.IsConnected() {
			return errNotConnected
		}
		return nil
	})
}

// realNATSConnect opens a real NATS connection.
func realNATSConnect(url string) (natsConn, error) {
	nc, err := nats.Connect(url,
		nats.Name(announcerName),
		nats.Timeout(natsConnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}
