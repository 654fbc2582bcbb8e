package resilience

import (
	"context"
	"time"
)

// Guard composes the three primitives around one dependency as
// timeout(breaker(retry(fn))). Retries run inside the breaker so a call
// that only succeeds after repeated transient failures still records a
// single outcome, and an exhausted retry loop counts as one breaker
// failure. The timeout wraps everything so a hung retry loop cannot block
// the pipeline.
type Guard struct {
	Op      string
	Timeout time.Duration
	Breaker *Breaker // optional
	Retry   Policy   // MaxAttempts <= 1 disables retries
}

// Do executes fn under the guard. Fields left zero are skipped, so a
// Guard{} is a plain call.
func (g Guard) Do(ctx context.Context, fn func(context.Context) error) error {
	wrapped := fn
	if g.Retry.MaxAttempts > 1 {
		inner := wrapped
		policy := g.Retry
		wrapped = func(ctx context.Context) error {
			return Retry(ctx, policy, inner)
		}
	}
	if g.Breaker != nil {
		inner := wrapped
		wrapped = func(ctx context.Context) error {
			return g.Breaker.Execute(ctx, inner)
		}
	}
	if g.Timeout > 0 {
		return WithTimeout(ctx, g.Op, g.Timeout, wrapped)
	}
	return wrapped(ctx)
}
