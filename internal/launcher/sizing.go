package launcher

import "runtime"

const (
	// DefaultPort is the TCP port the runtime binds when none is configured.
	DefaultPort = 8888

	// MinPoolSize is the smallest worker pool handed to a runtime.
	MinPoolSize = 1

	// workersPerCore assumes a mix of I/O-bound and CPU-bound work per worker.
	workersPerCore = 2

	minPort = 1
	maxPort = 65535
)

// Sizer maps a host logical-core count to a worker pool size.
type Sizer func(cores int) int

// PoolSize is the default Sizer. The core count is clamped to 1 before
// doubling, so a host reporting zero cores still gets two workers.
func PoolSize(cores int) int {
	if cores < 1 {
		cores = 1
	}
	return cores * workersPerCore
}

// HostCores returns the number of logical CPUs usable by the process.
func HostCores() int {
	return runtime.NumCPU()
}

// FixedSize returns a Sizer that ignores the host topology.
func FixedSize(n int) Sizer {
	return func(int) int { return n }
}

func clampPool(n int) int {
	if n < MinPoolSize {
		return MinPoolSize
	}
	return n
}
