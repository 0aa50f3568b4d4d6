package api

import (
	"context"
	"net/http"
	"time"

	"arc-framework/benchd/internal/health"
	"arc-framework/benchd/internal/server"

	"github.com/gin-gonic/gin"
)

// checker is the subset of *health.Checker used by the HTTP handlers.
// Declaring it as an interface allows test doubles to be injected.
type checker interface {
	Dependencies() []string
	RunDeepHealth(ctx context.Context) map[string]health.ProbeResult
	MarkRunning(s health.LaunchState)
	MarkStopped()
	State() health.LaunchState
	IsReady() bool
}

// Health is the component serving liveness, readiness and dependency
// health. It tracks runtime state through the server start/stop hooks.
type Health struct {
	checker checker
	now     func() time.Time
}

var (
	_ server.Mounter = (*Health)(nil)
	_ server.Starter = (*Health)(nil)
	_ server.Stopper = (*Health)(nil)
)

// NewHealth returns a Health component backed by c.
func NewHealth(c *health.Checker) *Health {
	return &Health{checker: c, now: time.Now}
}

func (h *Health) Name() string { return "health" }

// Mount registers the health routes.
func (h *Health) Mount(r gin.IRouter) {
	r.GET("/health", h.Live)
	r.GET("/health/deep", h.DeepHealth)
	r.GET("/ready", h.Ready)
}

// OnStart marks the runtime as running.
func (h *Health) OnStart(_ context.Context, info server.Info) error {
	h.checker.MarkRunning(health.LaunchState{
		Addr:      info.Addr.String(),
		PoolSize:  info.PoolSize,
		Root:      info.Root,
		StartedAt: h.now(),
	})
	return nil
}

// OnStop marks the runtime as stopped so /ready fails during drain.
func (h *Health) OnStop(context.Context) error {
	h.checker.MarkStopped()
	return nil
}

// Live handles GET /health.
// It always returns 200: this is the liveness probe.
func (h *Health) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"mode":   "shallow",
	})
}

// DeepHealth handles GET /health/deep.
// It probes every backing dependency and returns 200 only when all are OK.
func (h *Health) DeepHealth(c *gin.Context) {
	probes := h.checker.RunDeepHealth(c.Request.Context())

	status := "healthy"
	code := http.StatusOK
	if !health.AllOK(probes) {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":       status,
		"dependencies": probes,
	})
}

// Ready handles GET /ready.
// It returns 200 while the runtime is running; 503 otherwise. The body lists
// the dependencies /health/deep will probe.
func (h *Health) Ready(c *gin.Context) {
	code := http.StatusServiceUnavailable
	ready := h.checker.IsReady()
	if ready {
		code = http.StatusOK
	}
	c.JSON(code, gin.H{
		"ready":        ready,
		"runtime":      h.checker.State(),
		"dependencies": h.checker.Dependencies(),
	})
}
