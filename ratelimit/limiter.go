package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// healthLimitFactor relaxes the ceiling for health probes when dynamic
// limits are on.
const healthLimitFactor = 10

var healthPaths = map[string]struct{}{
	"/health":  {},
	"/healthz": {},
	"/livez":   {},
	"/readyz":  {},
	"/ping":    {},
	"/metrics": {},
}

// sensitivePathPrefixes mark money-moving surfaces that get tighter
// limits under dynamic adjustment.
var sensitivePathPrefixes = []string{
	"/payments",
	"/refunds",
	"/payouts",
	"/disputes",
	"/webhooks/replay",
}

// Limiter makes keyed fixed-window admission decisions.
//
// Contract:
//   - Concurrency: safe for concurrent use; counting is atomic per key
//     in the store.
//   - Context: Check honors cancellation through the store; decision
//     logic itself does not block.
//   - Errors: a failing store never denies a request. The limiter fails
//     open and reports through Events.OnStoreError and Stats.
type Limiter struct {
	cfg   Config
	store Store
	rules []ruleLimiter
	stats stats
}

// ruleLimiter pairs a rule with the nested limiter enforcing it.
type ruleLimiter struct {
	rule    Rule
	limiter *Limiter
}

// NewLimiter builds a limiter over an injected counter store. The store
// stays owned by the caller; rule budgets get their own in-memory
// stores, released by Close.
func NewLimiter(cfg Config, store Store) (*Limiter, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{
		cfg:   cfg,
		store: store,
	}

	// Stable sort keeps configuration order for equal priorities.
	sorted := make([]Rule, len(cfg.Rules))
	copy(sorted, cfg.Rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	for _, r := range sorted {
		// Each rule counts in its own store, so a matched request
		// consumes only the rule's budget.
		nested, err := NewLimiter(r.merge(cfg), NewMemoryStore())
		if err != nil {
			return nil, fmt.Errorf("ratelimit: rule %q: %w", r.Name, err)
		}
		l.rules = append(l.rules, ruleLimiter{rule: r, limiter: nested})
	}

	return l, nil
}

// Check admits or denies one request.
func (l *Limiter) Check(ctx context.Context, req Request) Result {
	res := l.check(ctx, req)
	l.stats.record(res)
	if l.cfg.Events.OnDecision != nil {
		l.cfg.Events.OnDecision(req, res)
	}
	return res
}

func (l *Limiter) check(ctx context.Context, req Request) Result {
	key := l.resolveKey(req)

	if matchAny(l.cfg.Whitelist, key, req.ClientAddr) {
		res := Result{
			Allowed:   true,
			Limit:     l.cfg.MaxRequests,
			Remaining: l.cfg.MaxRequests,
			Reason:    ReasonWhitelisted,
			Key:       key,
		}
		res.Headers = l.headers(res)
		return res
	}

	if matchAny(l.cfg.Blacklist, key, req.ClientAddr) {
		res := Result{
			Limit:  l.cfg.MaxRequests,
			Reason: ReasonBlacklisted,
			Key:    key,
		}
		res.Headers = l.headers(res)
		return res
	}

	for i := range l.rules {
		rl := &l.rules[i]
		if rl.rule.When.Match(req) {
			res := rl.limiter.check(ctx, req)
			res.Rule = rl.rule.Name
			return res
		}
	}

	entry, err := l.store.Increment(ctx, key, l.cfg.Window)
	if err != nil {
		if l.cfg.Events.OnStoreError != nil {
			l.cfg.Events.OnStoreError(err)
		}
		// Availability beats precision here: an unreachable store must
		// not take the API down with it.
		return Result{
			Allowed: true,
			Limit:   l.cfg.MaxRequests,
			Reason:  ReasonStoreFailOpen,
			Key:     key,
		}
	}

	limit := l.effectiveLimit(req)
	remaining := limit - int(entry.Count)
	if remaining < 0 {
		remaining = 0
	}

	res := Result{
		Limit:     limit,
		Remaining: remaining,
		Reset:     entry.WindowEnd,
		Key:       key,
	}

	switch {
	case entry.Count <= int64(limit):
		res.Allowed = true

	case l.cfg.BurstEnabled && entry.Count <= burstCeiling(limit, l.cfg.BurstMultiplier):
		res.Allowed = true
		res.Reason = ReasonBurst
		if l.cfg.SlowDownEnabled {
			res.SlowDown = l.slowDownFor(entry.Count - int64(limit))
		}

	default:
		res.Allowed = false
		res.Reason = ReasonLimited
		res.RetryAfter = l.cfg.Window
	}

	res.Headers = l.headers(res)
	return res
}

// effectiveLimit adjusts the ceiling for the request shape: health
// probes get room, mutating and payment-sensitive calls get squeezed.
// Adjustments do not stack; the write-path halving applies once.
func (l *Limiter) effectiveLimit(req Request) int {
	limit := l.cfg.MaxRequests
	if !l.cfg.DynamicLimits {
		return limit
	}
	if _, ok := healthPaths[req.Path]; ok {
		return limit * healthLimitFactor
	}
	if isWriteMethod(req.Method) || isSensitivePath(req.Path) {
		limit /= 2
		if limit < 1 {
			limit = 1
		}
	}
	return limit
}

func isWriteMethod(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	}
	return false
}

func isSensitivePath(path string) bool {
	for _, prefix := range sensitivePathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// burstCeiling truncates limit times mult, so a 1.5 multiplier over a
// limit of 5 admits 7 requests, not 8.
func burstCeiling(limit int, mult float64) int64 {
	return int64(float64(limit) * mult)
}

// slowDownFor grows the delay with the overage and caps it.
func (l *Limiter) slowDownFor(over int64) time.Duration {
	d := time.Duration(over) * l.cfg.SlowDownDelay
	if d > l.cfg.SlowDownMax {
		d = l.cfg.SlowDownMax
	}
	return d
}

// headers renders a decision as response header values. Reset appears
// only when a window participated; Retry-After only on denials that
// clear, rounded up to whole seconds.
func (l *Limiter) headers(res Result) map[string]string {
	h := map[string]string{
		l.cfg.Headers.Limit:     strconv.Itoa(res.Limit),
		l.cfg.Headers.Remaining: strconv.Itoa(res.Remaining),
	}
	if !res.Reset.IsZero() {
		h[l.cfg.Headers.Reset] = strconv.FormatInt(res.Reset.Unix(), 10)
	}
	if res.RetryAfter > 0 {
		h[l.cfg.Headers.RetryAfter] = strconv.FormatInt(int64(math.Ceil(res.RetryAfter.Seconds())), 10)
	}
	return h
}

// ResetKey clears the live default-path window for one counter key.
// Rule budgets are untouched.
func (l *Limiter) ResetKey(ctx context.Context, key string) error {
	return l.store.Reset(ctx, key)
}

// Stats returns a snapshot of the limiter's decision counters. Rule
// decisions are folded into the parent's counters.
func (l *Limiter) Stats() StatsSnapshot {
	return l.stats.snapshot()
}

// Config returns the limiter's effective configuration.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Close releases rule-scoped counter stores. The injected base store is
// caller-owned and left open.
func (l *Limiter) Close() error {
	var errs []error
	for _, rl := range l.rules {
		if err := rl.limiter.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
