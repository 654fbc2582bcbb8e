// Package ratelimit enforces fixed-window request limits keyed by
// (identity, operation). Identity tiers scale a shared base allowance;
// expensive operations additionally carry their own tier-independent
// limits. Counters live in a pluggable store so multiple instances can
// share state, with a transparent in-process fallback when the shared
// store is unreachable.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Tier is an identity class with its own allowance.
type Tier string

const (
	TierAnonymous     Tier = "anonymous"
	TierAuthenticated Tier = "authenticated"
	TierPremium       Tier = "premium"
)

// Operation names a rate-limited action.
type Operation string

const (
	OpVerify     Operation = "verify"
	OpTranscribe Operation = "transcribe"
	OpFactCheck  Operation = "factCheck"
)

// Identity is a resolved caller: an authenticated subject when present,
// otherwise a network-address fallback.
type Identity struct {
	Key  string
	Tier Tier
}

// Limit is one fixed window.
type Limit struct {
	Window time.Duration
	Max    int
}

// Config holds the base authenticated allowance and the operation-scoped
// limits. Anonymous callers get 20% of the authenticated allowance
// (floored at one request); premium callers get five times it.
type Config struct {
	Window           time.Duration
	AuthenticatedMax int
	Operations       map[Operation]Limit
}

// DefaultConfig mirrors production limits: 60 verifications per minute for
// authenticated callers, 120 transcriptions and 60 fact-checks per minute
// regardless of tier.
func DefaultConfig() Config {
	return Config{
		Window:           time.Minute,
		AuthenticatedMax: 60,
		Operations: map[Operation]Limit{
			OpTranscribe: {Window: time.Minute, Max: 120},
			OpFactCheck:  {Window: time.Minute, Max: 60},
		},
	}
}

// ForTier returns the tier-scaled base limit.
func (c Config) ForTier(t Tier) Limit {
	base := Limit{Window: c.Window, Max: c.AuthenticatedMax}
	switch t {
	case TierAnonymous:
		m := base.Max / 5
		if m < 1 {
			m = 1
		}
		return Limit{Window: base.Window, Max: m}
	case TierPremium:
		return Limit{Window: base.Window, Max: base.Max * 5}
	}
	return base
}

// Decision is the outcome of one limiter check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Error is the rejection reported to callers. It carries the retry hint;
// it is never retried automatically.
type Error struct {
	Operation  Operation
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry in %ds", e.Operation, int(e.RetryAfter/time.Second))
}

// Store is a fixed-window counter store. Incr atomically increments the
// counter for key, creating a fresh window when none exists or the current
// one has elapsed. Stale windows are replaced, never merged.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int, resetAt time.Time, err error)
}

// Limiter checks fixed-window limits against a shared store, falling back
// to a process-local store when the shared store errors. Under the
// fallback, correctness is per-process rather than global; that trade
// favors availability and is acceptable for single-instance deployments.
type Limiter struct {
	cfg    Config
	shared Store
	local  Store
	now    func() time.Time
}

// New creates a Limiter. shared may be nil, in which case only the local
// in-memory store is used.
func New(cfg Config, shared Store) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.AuthenticatedMax <= 0 {
		cfg.AuthenticatedMax = 60
	}
	return &Limiter{
		cfg:    cfg,
		shared: shared,
		local:  NewMemoryStore(),
		now:    time.Now,
	}
}

// limitFor picks the operation-scoped limit when one exists, else the
// tier-scaled base limit.
func (l *Limiter) limitFor(t Tier, op Operation) Limit {
	if lim, ok := l.cfg.Operations[op]; ok {
		return lim
	}
	return l.cfg.ForTier(t)
}

// Allow records one call for (id, op) and reports whether it fits in the
// current window.
func (l *Limiter) Allow(ctx context.Context, id Identity, op Operation) Decision {
	lim := l.limitFor(id.Tier, op)
	key := string(op) + ":" + id.Key

	count, resetAt, err := l.incr(ctx, key, lim.Window)
	if err != nil {
		// Both stores failing means we cannot count at all; admit rather
		// than hard-fail the request path.
		return Decision{Allowed: true, Limit: lim.Max, Remaining: lim.Max, ResetAt: l.now().Add(lim.Window)}
	}

	d := Decision{Limit: lim.Max, ResetAt: resetAt}
	if count <= lim.Max {
		d.Allowed = true
		d.Remaining = lim.Max - count
		return d
	}

	d.RetryAfter = ceilSeconds(resetAt.Sub(l.now()))
	return d
}

// Check is Allow folded into the error domain: nil when admitted, *Error
// with the retry hint when rejected.
func (l *Limiter) Check(ctx context.Context, id Identity, op Operation) error {
	d := l.Allow(ctx, id, op)
	if d.Allowed {
		return nil
	}
	return &Error{Operation: op, RetryAfter: d.RetryAfter}
}

func (l *Limiter) incr(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	if l.shared != nil {
		count, resetAt, err := l.shared.Incr(ctx, key, window)
		if err == nil {
			return count, resetAt, nil
		}
	}
	return l.local.Incr(ctx, key, window)
}

// ceilSeconds rounds d up to whole seconds, floored at zero.
func ceilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	secs := (d + time.Second - 1) / time.Second
	return secs * time.Second
}
