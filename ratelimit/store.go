package ratelimit

import (
	"context"
	"time"
)

// Entry is one live counting window for a key.
type Entry struct {
	// Key is the counter key the window belongs to.
	Key string

	// Count is the number of requests seen in the window so far.
	Count int64

	// WindowStart marks when the window opened. Stores that persist only
	// a count and a TTL may leave it zero.
	WindowStart time.Time

	// WindowEnd marks when the window closes and the count resets.
	WindowEnd time.Time

	// LastSeen is the time of the most recent increment.
	LastSeen time.Time
}

// Expired reports whether the window has closed as of now.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.WindowEnd)
}

// Store persists fixed-window counters keyed by client identity.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use, and
//     Increment must be atomic per key.
//   - Context: implementations backed by external I/O must honor
//     cancellation and deadlines.
//   - Errors: Get returns (nil, nil) when no live window exists for the
//     key; it never fabricates an entry.
type Store interface {
	// Get returns the live window for key, or (nil, nil) when none
	// exists or the window has expired.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set writes an entry, replacing any live window for its key.
	Set(ctx context.Context, e *Entry) error

	// Increment bumps the counter for key, opening a fresh window of the
	// given length when none is live, and returns the resulting entry.
	Increment(ctx context.Context, key string, window time.Duration) (*Entry, error)

	// Reset removes the live window for key.
	Reset(ctx context.Context, key string) error

	// Cleanup removes expired windows. Stores whose backend expires keys
	// on its own may make this a no-op.
	Cleanup(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
