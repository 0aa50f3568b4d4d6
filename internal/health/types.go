package health

import "time"

// Status values reported by Checker.
const (
	StatusStarting = "starting"
	StatusRunning  = "running"
	StatusStopped  = "stopped"
)

// ProbeResult is the outcome of probing a single dependency.
type ProbeResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// LaunchState describes the runtime as last reported to the Checker.
type LaunchState struct {
	Status    string    `json:"status"`
	Addr      string    `json:"addr,omitempty"`
	PoolSize  int       `json:"workerPool,omitempty"`
	Root      string    `json:"root,omitempty"`
	StartedAt time.Time `json:"startedAt,omitempty"`
}

// Probe times fn and converts its error into a ProbeResult.
func Probe(name string, fn func() error) ProbeResult {
	start := time.Now()
	err := fn()
	res := ProbeResult{
		Name:      name,
		OK:        err == nil,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}
