package clients

import (
	"context"
	"errors"
	"time"

	"arc-framework/benchd/internal/store"

	"github.com/sony/gobreaker"
)

// NewCircuitBreaker returns a gobreaker configured to trip after 3 consecutive
// failures and reset after 30 seconds in the open state. Lookups of missing
// rows and caller cancellations do not count as failures.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, store.ErrNotFound) ||
				errors.Is(err, context.Canceled)
		},
	})
}

var errCircuitOpen = errors.New("circuit open")

// breakerErr reports an open breaker as errCircuitOpen.
func breakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errCircuitOpen
	}
	return err
}
