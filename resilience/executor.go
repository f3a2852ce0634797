package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Attempt records one try of an operation.
type Attempt struct {
	// Number is the 1-based position of the attempt within the call.
	Number int

	// Delay is the backoff slept before this attempt; zero for the first.
	Delay time.Duration

	// Err is the attempt's failure, nil for the successful attempt.
	Err error

	// StatusCode is the upstream HTTP status when the failure carried one.
	StatusCode int

	Start   time.Time
	Elapsed time.Duration
}

// Result is the outcome of a resilient call: the terminal error (if any)
// plus the full attempt history, oldest first.
type Result struct {
	Success  bool
	Err      error
	Attempts []Attempt
	Duration time.Duration

	// BreakerTripped is true when the circuit refused the call outright;
	// no attempts were made.
	BreakerTripped bool
}

// Stats is a point-in-time snapshot of executor counters.
type Stats struct {
	Calls         int64
	Successes     int64
	Failures      int64
	Exhausted     int64
	ShortCircuits int64
}

// Executor runs operations against an upstream with retry, exponential
// backoff, and circuit breaking.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: cancellation is terminal; it is never retried and aborts
//     backoff sleeps immediately.
//   - Errors: terminal failures carry the attempt history in the returned
//     Result; an exhausted retry budget yields an *ExhaustedError.
type Executor struct {
	mu    sync.RWMutex
	cfg   Config
	class *classifier

	breaker  *Breaker
	throttle *rate.Limiter
	inflight *Inflight

	calls         atomic.Int64
	successes     atomic.Int64
	failures      atomic.Int64
	exhausted     atomic.Int64
	shortCircuits atomic.Int64
}

// Option configures an Executor.
type Option func(*Executor)

// WithThrottle paces attempts with a client-side rate limiter. The
// executor waits for a token before every attempt.
func WithThrottle(l *rate.Limiter) Option {
	return func(e *Executor) { e.throttle = l }
}

// WithInflight caps concurrent calls through the executor.
func WithInflight(in *Inflight) Option {
	return func(e *Executor) { e.inflight = in }
}

// WithBreaker substitutes a caller-owned breaker, letting several
// executors guard the same upstream. The breaker's own OnStateChange hook
// stands; Events.OnBreakerOpen and OnBreakerClose are not wired for it.
func WithBreaker(b *Breaker) Option {
	return func(e *Executor) { e.breaker = b }
}

// NewExecutor builds an Executor from cfg. Defaults are applied first,
// then the config is validated; an invalid config is never half-applied.
func NewExecutor(cfg Config, opts ...Option) (*Executor, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Executor{cfg: cfg, class: newClassifier(cfg)}
	for _, opt := range opts {
		opt(e)
	}

	if e.breaker == nil && cfg.BreakerThreshold > 0 {
		events := cfg.Events
		b, err := NewBreaker(BreakerConfig{
			Threshold:    cfg.BreakerThreshold,
			ResetTimeout: cfg.BreakerResetTimeout,
			OnStateChange: func(_ string, from, to State) {
				switch to {
				case StateOpen:
					if events.OnBreakerOpen != nil {
						events.OnBreakerOpen(from)
					}
				case StateClosed:
					if events.OnBreakerClose != nil {
						events.OnBreakerClose(from)
					}
				}
			},
		})
		if err != nil {
			return nil, err
		}
		e.breaker = b
	}

	return e, nil
}

// Breaker exposes the executor's circuit breaker, nil when disabled.
func (e *Executor) Breaker() *Breaker { return e.breaker }

// Config returns a copy of the active configuration.
func (e *Executor) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// UpdateConfig re-validates cfg and atomically swaps the retry
// configuration. Breaker settings are fixed at construction and are not
// rebuilt here.
func (e *Executor) UpdateConfig(cfg Config) error {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.cfg = cfg
	e.class = newClassifier(cfg)
	e.mu.Unlock()
	return nil
}

// Stats returns the executor's lifetime counters.
func (e *Executor) Stats() Stats {
	return Stats{
		Calls:         e.calls.Load(),
		Successes:     e.successes.Load(),
		Failures:      e.failures.Load(),
		Exhausted:     e.exhausted.Load(),
		ShortCircuits: e.shortCircuits.Load(),
	}
}

// Do runs op through ex and returns its value alongside the full outcome.
// On terminal failure the zero T is returned and Result.Err is non-nil.
func Do[T any](ctx context.Context, ex *Executor, op func(context.Context) (T, error)) (T, *Result) {
	var value T
	res := ex.run(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if !res.Success {
		var zero T
		return zero, res
	}
	return value, res
}

// Execute runs a value-less operation through the executor.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) *Result {
	return e.run(ctx, op)
}

func (e *Executor) run(ctx context.Context, op func(context.Context) error) *Result {
	e.mu.RLock()
	cfg := e.cfg
	class := e.class
	e.mu.RUnlock()

	e.calls.Add(1)
	start := time.Now()
	res := &Result{}

	finish := func() *Result {
		res.Duration = time.Since(start)
		if res.Success {
			e.successes.Add(1)
			if cfg.Events.OnSuccess != nil {
				cfg.Events.OnSuccess(*res)
			}
		} else {
			e.failures.Add(1)
			if cfg.Events.OnFailure != nil {
				cfg.Events.OnFailure(*res)
			}
		}
		return res
	}

	if e.breaker != nil && !e.breaker.Allow() {
		e.shortCircuits.Add(1)
		res.BreakerTripped = true
		res.Err = ErrCircuitOpen
		return finish()
	}

	if e.inflight != nil {
		if err := e.inflight.Acquire(ctx); err != nil {
			res.Err = err
			return finish()
		}
		defer e.inflight.Release()
	}

	var delay time.Duration
	for attempt := 1; ; attempt++ {
		if delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				res.Err = err
				return finish()
			}
		}
		if e.throttle != nil {
			if err := e.throttle.Wait(ctx); err != nil {
				res.Err = err
				return finish()
			}
		}

		a := Attempt{Number: attempt, Delay: delay, Start: time.Now()}
		err := runAttempt(ctx, cfg.AttemptTimeout, op)
		a.Elapsed = time.Since(a.Start)
		if err != nil {
			a.Err = err
			a.StatusCode = statusCode(err)
		}
		res.Attempts = append(res.Attempts, a)
		if cfg.Events.OnAttempt != nil {
			cfg.Events.OnAttempt(a)
		}

		if err == nil {
			res.Success = true
			if e.breaker != nil {
				e.breaker.RecordSuccess()
			}
			return finish()
		}

		retryable := class.shouldRetry(err)
		if !retryable || attempt > cfg.MaxRetries {
			// The breaker sees one outcome per call, not per attempt.
			if e.breaker != nil {
				e.breaker.RecordFailure()
			}
			if retryable {
				e.exhausted.Add(1)
				res.Err = &ExhaustedError{Attempts: res.Attempts, LastErr: err}
			} else {
				res.Err = err
			}
			return finish()
		}

		delay = nextDelay(cfg, attempt, err)
	}
}

// runAttempt runs op once under the per-attempt budget. A budget overrun
// abandons the attempt; the operation's goroutine drains on its own once
// the attempt context is canceled.
func runAttempt(ctx context.Context, budget time.Duration, op func(context.Context) error) error {
	if budget <= 0 {
		return op(ctx)
	}

	actx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op(actx) }()

	select {
	case err := <-done:
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return ErrAttemptTimeout
		}
		return err
	case <-actx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrAttemptTimeout
	}
}

// nextDelay computes the backoff slept before the attempt that follows
// failed attempt number attempt (1-based): the exponential schedule capped
// at MaxDelay, overridden by an honored server Retry-After hint, plus
// uniform jitter.
func nextDelay(cfg Config, attempt int, err error) time.Duration {
	d := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1)))
	if d > cfg.MaxDelay || d <= 0 {
		d = cfg.MaxDelay
	}

	if !cfg.IgnoreRetryAfter {
		if hint := retryAfterHint(err); hint > 0 && hint <= cfg.MaxRetryAfter {
			d = hint
		}
	}

	if cfg.JitterMax > 0 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		d += time.Duration(rand.Int64N(int64(cfg.JitterMax)))
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
