package resilience

import (
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means calls flow normally.
	StateClosed State = iota
	// StateOpen means calls are refused.
	StateOpen
	// StateHalfOpen means the breaker is probing for recovery.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// halfOpenSuccesses is the number of consecutive probe successes required
// to close a half-open circuit.
const halfOpenSuccesses = 2

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// Name identifies the breaker in state-change hooks and health checks.
	Name string

	// Threshold is the number of consecutive failures that opens the
	// circuit. Default: 5
	Threshold int

	// ResetTimeout is how long an open circuit waits before admitting a
	// probe. Default: 30 seconds
	ResetTimeout time.Duration

	// OnStateChange observes transitions. Invoked outside the breaker
	// lock; implementations may call back into the breaker.
	OnStateChange func(name string, from, to State)
}

// Breaker is a circuit breaker guarding one upstream dependency.
//
// Contract:
//   - Concurrency: safe for concurrent use; one mutex guards all state.
//   - The open to half-open transition happens lazily on the first state
//     query after ResetTimeout has elapsed; no background goroutine runs.
//   - Callers that received true from Allow must report the outcome via
//     RecordSuccess or RecordFailure, or a half-open probe slot leaks.
type Breaker struct {
	cfg BreakerConfig

	mu        sync.Mutex
	state     State
	failures  int // consecutive failures while closed
	successes int // consecutive probe successes while half-open
	probes    int // probes currently admitted while half-open
	openedAt  time.Time
}

// NewBreaker creates a circuit breaker.
func NewBreaker(cfg BreakerConfig) (*Breaker, error) {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultBreakerThreshold
	}
	if cfg.ResetTimeout == 0 {
		cfg.ResetTimeout = DefaultBreakerReset
	}
	if cfg.Threshold < 0 {
		return nil, ErrInvalidThreshold
	}
	if cfg.ResetTimeout < 0 {
		return nil, ErrInvalidResetTimeout
	}
	return &Breaker{cfg: cfg, state: StateClosed}, nil
}

// Name returns the breaker's configured name.
func (b *Breaker) Name() string { return b.cfg.Name }

// Allow reports whether a call may proceed. While half-open it admits a
// single probe at a time.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	trans := b.advanceLocked()
	allowed := true
	switch b.state {
	case StateOpen:
		allowed = false
	case StateHalfOpen:
		if b.probes >= 1 {
			allowed = false
		} else {
			b.probes++
		}
	}
	b.mu.Unlock()

	b.notify(trans)
	return allowed
}

// RecordSuccess reports a successful call outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	var trans *transition
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		if b.probes > 0 {
			b.probes--
		}
		b.successes++
		if b.successes >= halfOpenSuccesses {
			trans = &transition{from: StateHalfOpen, to: StateClosed}
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	case StateOpen:
		// Late result from before the trip; ignore.
	}
	b.mu.Unlock()

	b.notify(trans)
}

// RecordFailure reports a failed call outcome.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	var trans *transition
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.Threshold {
			trans = &transition{from: StateClosed, to: StateOpen}
			b.state = StateOpen
			b.openedAt = time.Now()
		}
	case StateHalfOpen:
		// Any probe failure reopens with a fresh reset horizon.
		trans = &transition{from: StateHalfOpen, to: StateOpen}
		b.state = StateOpen
		b.openedAt = time.Now()
		b.probes = 0
		b.successes = 0
	case StateOpen:
		// Late result from before the trip; keep the existing horizon.
	}
	b.mu.Unlock()

	b.notify(trans)
}

// State returns the current state, applying the reset-timeout transition
// when it is due.
func (b *Breaker) State() State {
	b.mu.Lock()
	trans := b.advanceLocked()
	state := b.state
	b.mu.Unlock()

	b.notify(trans)
	return state
}

// Reset forces the breaker back to closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	var trans *transition
	if b.state != StateClosed {
		trans = &transition{from: b.state, to: StateClosed}
	}
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.probes = 0
	b.mu.Unlock()

	b.notify(trans)
}

// Snapshot returns a point-in-time view of the breaker.
func (b *Breaker) Snapshot() BreakerMetrics {
	b.mu.Lock()
	trans := b.advanceLocked()
	m := BreakerMetrics{
		State:     b.state,
		Failures:  b.failures,
		Successes: b.successes,
		OpenedAt:  b.openedAt,
	}
	b.mu.Unlock()

	b.notify(trans)
	return m
}

// BreakerMetrics is a point-in-time view of breaker state.
type BreakerMetrics struct {
	State     State
	Failures  int       // consecutive failures while closed
	Successes int       // consecutive probe successes while half-open
	OpenedAt  time.Time // zero until the breaker first opens
}

type transition struct{ from, to State }

// advanceLocked applies the time-based open to half-open transition and
// returns it when it fired.
func (b *Breaker) advanceLocked() *transition {
	if b.state == StateOpen && time.Since(b.openedAt) >= b.cfg.ResetTimeout {
		b.state = StateHalfOpen
		b.probes = 0
		b.successes = 0
		return &transition{from: StateOpen, to: StateHalfOpen}
	}
	return nil
}

func (b *Breaker) notify(t *transition) {
	if t == nil || b.cfg.OnStateChange == nil {
		return
	}
	b.cfg.OnStateChange(b.cfg.Name, t.from, t.to)
}
