package health

import (
	"context"
	"fmt"
	"time"

	"github.com/payguard/payguard/ratelimit"
)

// storeProbeKey is the counter key probes write under. It lives outside
// any client keyspace so probes never collide with real rate limit windows.
const storeProbeKey = "health:store-probe"

// storeProbeWindow keeps probe entries short-lived even when the cleanup
// reset fails.
const storeProbeWindow = 30 * time.Second

// StoreChecker probes a rate limit counter store with a full
// increment/read/reset roundtrip, exercising the same operations the
// limiter performs on the hot path.
type StoreChecker struct {
	store ratelimit.Store
}

var _ PingChecker = (*StoreChecker)(nil)

// NewStoreChecker wraps store as a health checker.
func NewStoreChecker(store ratelimit.Store) *StoreChecker {
	return &StoreChecker{store: store}
}

// Name identifies this checker.
func (c *StoreChecker) Name() string {
	return "store"
}

// Check runs the roundtrip probe. A store that takes writes and reads but
// cannot reset reports degraded; any other failure is unhealthy.
func (c *StoreChecker) Check(ctx context.Context) Result {
	if _, err := c.store.Increment(ctx, storeProbeKey, storeProbeWindow); err != nil {
		return Unhealthy("counter store increment failed", err)
	}

	entry, err := c.store.Get(ctx, storeProbeKey)
	if err != nil {
		return Unhealthy("counter store read failed", err)
	}
	if entry == nil {
		return Unhealthy("counter store dropped the probe window", ErrCheckFailed)
	}

	details := map[string]any{
		"probe_key":   storeProbeKey,
		"probe_count": entry.Count,
	}

	if err := c.store.Reset(ctx, storeProbeKey); err != nil {
		return Degraded(fmt.Sprintf("probe reset failed: %v", err)).WithDetails(details)
	}

	return Healthy("counter store roundtrip ok").WithDetails(details)
}

// Ping runs the roundtrip probe and reports only whether the store is
// usable. A degraded store still pings.
func (c *StoreChecker) Ping(ctx context.Context) error {
	result := c.Check(ctx)
	if result.Status != StatusUnhealthy {
		return nil
	}
	if result.Error != nil {
		return result.Error
	}
	return ErrCheckFailed
}
