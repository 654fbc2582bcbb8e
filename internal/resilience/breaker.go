package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is a circuit breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerOpenError is the fast-fail result of calling through an open
// breaker. Callers must not retry it; the breaker decides when the
// dependency may be probed again.
type BreakerOpenError struct {
	Service string
}

func (e *BreakerOpenError) Error() string {
	return fmt.Sprintf("%s unavailable: circuit open", e.Service)
}

// BreakerConfig sets the thresholds for one protected dependency.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// breaker from closed.
	FailureThreshold int
	// SuccessThreshold is the consecutive-success count that closes the
	// breaker from half-open.
	SuccessThreshold int
	// Cooldown is how long the breaker stays open before admitting a
	// probe call.
	Cooldown time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Second
	}
	return c
}

// Breaker is a circuit breaker for one external dependency. One instance
// exists per dependency and is shared by every request, so all state
// transitions happen under the mutex.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	probing     bool // a half-open probe call is in flight

	onChange func(name string, from, to State)
	now      func() time.Time
}

// NewBreaker creates a closed breaker named for the dependency it guards.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	return &Breaker{
		name: name,
		cfg:  cfg.withDefaults(),
		now:  time.Now,
	}
}

// OnStateChange registers a hook invoked on every transition. The hook
// runs with the breaker lock held and must not call back into the breaker.
func (b *Breaker) OnStateChange(fn func(name string, from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

// Name returns the protected dependency's name.
func (b *Breaker) Name() string { return b.name }

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn through the breaker. While open it fails fast with
// *BreakerOpenError without invoking fn. After the cooldown a single probe
// call is admitted; its outcome moves the breaker toward closed or back to
// open.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.lastFailure) >= b.cfg.Cooldown {
			b.transition(StateHalfOpen)
			b.probing = true
			return nil
		}
		return &BreakerOpenError{Service: b.name}
	case StateHalfOpen:
		if b.probing {
			return &BreakerOpenError{Service: b.name}
		}
		b.probing = true
		return nil
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.probing = false
	}

	if err != nil {
		b.lastFailure = b.now()
		switch b.state {
		case StateClosed:
			b.failures++
			if b.failures >= b.cfg.FailureThreshold {
				b.transition(StateOpen)
			}
		case StateHalfOpen:
			b.transition(StateOpen)
		}
		return
	}

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
		}
	}
}

// transition moves to s and resets the counters that do not carry across
// states. Caller holds b.mu.
func (b *Breaker) transition(s State) {
	if b.state == s {
		return
	}
	from := b.state
	b.state = s

	switch s {
	case StateClosed:
		b.failures = 0
		b.successes = 0
	case StateOpen:
		b.successes = 0
	case StateHalfOpen:
		b.successes = 0
	}

	if b.onChange != nil {
		b.onChange(b.name, from, s)
	}
}
