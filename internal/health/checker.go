package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// Prober is satisfied by every store and client that can report health.
type Prober interface {
	Probe(ctx context.Context) ProbeResult
}

// Checker tracks runtime readiness and probes dependencies on demand.
type Checker struct {
	probers map[string]Prober
	state   atomic.Pointer[LaunchState]
}

// New constructs a Checker over probers keyed by dependency name. Nil
// probers are ignored.
func New(probers map[string]Prober) *Checker {
	c := &Checker{probers: make(map[string]Prober, len(probers))}
	for name, p := range probers {
		if p != nil {
			c.probers[name] = p
		}
	}
	c.state.Store(&LaunchState{Status: StatusStarting})
	return c
}

// Dependencies returns the probed dependency names in sorted order.
func (c *Checker) Dependencies() []string {
	names := make([]string, 0, len(c.probers))
	for name := range c.probers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunDeepHealth probes every dependency concurrently and returns a map of
// dependency name to ProbeResult.
func (c *Checker) RunDeepHealth(ctx context.Context) map[string]ProbeResult {
	ctx, span := otel.Tracer("benchd").Start(ctx, "benchd.health.deep")
	defer span.End()

	results := make(map[string]ProbeResult, len(c.probers))
	var mu sync.Mutex
	var g errgroup.Group

	for name, p := range c.probers {
		name, p := name, p
		g.Go(func() error {
			probe := p.Probe(ctx)
			mu.Lock()
			results[name] = probe
			mu.Unlock()
			if !probe.OK {
				slog.WarnContext(ctx, "dependency probe failed", "dependency", name, "error", probe.Error)
			}
			return nil
		})
	}

	// g.Wait() never returns an error because all goroutines return nil.
	_ = g.Wait()

	healthy := AllOK(results)
	span.SetAttributes(attribute.Bool("health.ok", healthy), attribute.Int("health.dependencies", len(results)))
	if !healthy {
		span.SetStatus(codes.Error, "one or more dependencies failed")
	}
	return results
}

// MarkRunning records that the runtime is listening.
func (c *Checker) MarkRunning(s LaunchState) {
	s.Status = StatusRunning
	c.state.Store(&s)
}

// MarkStopped records that the runtime is shutting down.
func (c *Checker) MarkStopped() {
	prev := c.State()
	prev.Status = StatusStopped
	c.state.Store(&prev)
}

// State returns a copy of the last reported launch state.
func (c *Checker) State() LaunchState {
	return *c.state.Load()
}

// IsReady returns true while the runtime is running.
func (c *Checker) IsReady() bool {
	return c.State().Status == StatusRunning
}

// AllOK reports whether every probe succeeded.
func AllOK(results map[string]ProbeResult) bool {
	for _, p := range results {
		if !p.OK {
			return false
		}
	}
	return true
}
