package health

import (
	"context"
	"fmt"
	"time"

	"github.com/payguard/payguard/resilience"
)

// BreakerChecker reports the state of a circuit breaker as a health check.
// A closed circuit is healthy, a half-open circuit probing for recovery is
// degraded, and an open circuit is unhealthy.
type BreakerChecker struct {
	breaker *resilience.Breaker
}

var _ Checker = (*BreakerChecker)(nil)

// NewBreakerChecker wraps breaker as a health checker.
func NewBreakerChecker(breaker *resilience.Breaker) *BreakerChecker {
	return &BreakerChecker{breaker: breaker}
}

// Name identifies this checker. Named breakers yield "breaker:<name>" so
// several can register side by side.
func (c *BreakerChecker) Name() string {
	if name := c.breaker.Name(); name != "" {
		return "breaker:" + name
	}
	return "breaker"
}

// Check maps the breaker state onto a health status. Reading the state
// also applies the pending open to half-open transition, so a recovered
// breaker reports degraded rather than staying unhealthy forever.
func (c *BreakerChecker) Check(ctx context.Context) Result {
	select {
	case <-ctx.Done():
		return Unhealthy("context cancelled", ctx.Err())
	default:
	}

	m := c.breaker.Snapshot()

	details := map[string]any{
		"state":                m.State.String(),
		"consecutive_failures": m.Failures,
	}
	if !m.OpenedAt.IsZero() {
		details["opened_at"] = m.OpenedAt.UTC().Format(time.RFC3339)
	}

	switch m.State {
	case resilience.StateClosed:
		return Healthy("circuit closed").WithDetails(details)
	case resilience.StateHalfOpen:
		details["probe_successes"] = m.Successes
		return Degraded("circuit half-open, probing for recovery").WithDetails(details)
	default:
		return Unhealthy(
			fmt.Sprintf("circuit open after %d consecutive failures", m.Failures),
			ErrCheckFailed,
		).WithDetails(details)
	}
}
