package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// StatusError carries an HTTP status from a vendor call so the retry
// predicate can separate server-side failures from client mistakes.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// Policy controls Retry. Zero fields take defaults: 3 attempts, 1s initial
// delay, multiplier 2, 30s delay cap, DefaultShouldRetry.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	ShouldRetry  func(error) bool
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.ShouldRetry == nil {
		p.ShouldRetry = DefaultShouldRetry
	}
	return p
}

// DefaultShouldRetry retries network-class errors, timeouts, and vendor
// responses with status >= 500. Client errors (4xx) and open breakers are
// never retried.
func DefaultShouldRetry(err error) bool {
	var open *BreakerOpenError
	if errors.As(err, &open) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}

	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// Retry runs fn up to p.MaxAttempts times. The delay before attempt k+1 is
// min(InitialDelay * Multiplier^(k-1), MaxDelay). On exhaustion the last
// error is returned unchanged so callers can branch on the original
// failure kind.
func Retry(ctx context.Context, p Policy, fn func(context.Context) error) error {
	p = p.withDefaults()

	var lastErr error
	delay := p.InitialDelay
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !p.ShouldRetry(err) || attempt == p.MaxAttempts {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		next := time.Duration(float64(delay) * p.Multiplier)
		if next > p.MaxDelay {
			next = p.MaxDelay
		}
		delay = next
	}
	return lastErr
}
