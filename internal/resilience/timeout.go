// Package resilience wraps calls to unreliable dependencies with timeouts,
// retries, and circuit breakers, and composes the three in a fixed order:
// the timeout bounds the whole call, the breaker guards the dependency,
// and retries run inside the breaker so persistent transient failures
// still count toward its threshold.
package resilience

import (
	"context"
	"fmt"
	"time"
)

// TimeoutError reports an operation that exceeded its deadline. The
// underlying work is not guaranteed to be cancelled; its result is
// discarded by the caller.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.After)
}

// WithTimeout races fn against a timer. When the timer fires first the
// call returns a *TimeoutError and fn's eventual result is dropped. The
// derived context is cancelled on timeout so cooperative callees can stop
// early, but cancellation is an optimization, not a correctness
// requirement.
func WithTimeout(ctx context.Context, op string, d time.Duration, fn func(context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so the goroutine can always deliver and exit after a timeout.
	done := make(chan error, 1)
	go func() {
		done <- fn(cctx)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return &TimeoutError{Op: op, After: d}
	case <-ctx.Done():
		return ctx.Err()
	}
}
