package ratewindow

import (
	"context"
	"time"
)

// Decision is the outcome of a rate-window check.
type Decision struct {
	Allowed bool
	Count   int64
	// RetryAfter is the remaining window when the check is denied, usable
	// as a client retry hint. Zero when allowed or when the backing store
	// cannot report it.
	RetryAfter time.Duration
}

// Store is the pluggable backing for window counters. An in-process
// MemoryStore serves single-instance deployments; RedisStore gives the
// same guarantees across instances via atomic increments.
type Store interface {
	// Peek returns the current count for the active window and the time
	// remaining in it, without mutating anything. A key with no active
	// window reports zero.
	Peek(ctx context.Context, key string) (count int64, remaining time.Duration, err error)

	// Incr atomically increments the counter for key, starting a fresh
	// window of the given duration when none is active. Returns the count
	// after the increment.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)

	// Reset clears any active window for key.
	Reset(ctx context.Context, key string) error
}

// Counter enforces fixed-window rate limits keyed by (scope, identity).
//
// The semantics are a fixed-window approximation, not a true sliding log:
// the count resets when the window elapses, so a burst straddling a window
// boundary can admit up to twice the limit over a short span. Callers size
// their limits with that tradeoff in mind; it buys O(1) memory and O(1)
// checks and is part of the contract.
type Counter struct {
	store Store
}

// New creates a Counter over the given store.
func New(store Store) *Counter {
	return &Counter{store: store}
}

// Check reports whether one more event fits under limit within the active
// window for key. It never mutates the counter: callers evaluate the
// decision before performing the guarded side effect and call Increment
// only once that side effect is committed.
func (c *Counter) Check(ctx context.Context, key string, limit int64, window time.Duration) (Decision, error) {
	count, remaining, err := c.store.Peek(ctx, key)
	if err != nil {
		return Decision{}, err
	}

	if count >= limit {
		return Decision{Allowed: false, Count: count, RetryAfter: remaining}, nil
	}
	return Decision{Allowed: true, Count: count}, nil
}

// Increment records one event against key, starting a fresh window when
// none is active. Returns the count after the increment.
func (c *Counter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	return c.store.Incr(ctx, key, window)
}

// Reset clears the active window for key, e.g. after a successful login.
func (c *Counter) Reset(ctx context.Context, key string) error {
	return c.store.Reset(ctx, key)
}
