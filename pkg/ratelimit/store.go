package ratelimit

import (
	"context"
	"time"
)

// CounterStore holds the per-key request counters.
//
// A plain CounterStore is driven with read-then-set: two concurrent
// requests can read the same count and both be admitted, so under load
// the limiter may admit slightly more than MaxRequests. Stores that can
// do better implement [AtomicCounterStore].
type CounterStore interface {
	// Get returns the current count, or 0 when the key is absent or
	// expired.
	Get(ctx context.Context, key string) (int64, error)

	// Set stores value under key and (re)sets its time to live.
	Set(ctx context.Context, key string, value int64, ttl time.Duration) error
}

// AtomicCounterStore is a CounterStore with an atomic
// check-and-increment. The limiter prefers it when available.
type AtomicCounterStore interface {
	CounterStore

	// IncrementIfBelow reads the count at key and, when it is below
	// limit, increments it and resets its TTL, all as one atomic step.
	// It returns the count observed before the call and whether the
	// increment happened.
	IncrementIfBelow(ctx context.Context, key string, limit int64, ttl time.Duration) (count int64, incremented bool, err error)
}
