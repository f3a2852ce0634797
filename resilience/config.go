package resilience

import "time"

// Default configuration values.
const (
	DefaultMaxRetries        = 3
	DefaultInitialDelay      = 200 * time.Millisecond
	DefaultMaxDelay          = 10 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultJitterMax         = 100 * time.Millisecond
	DefaultAttemptTimeout    = 15 * time.Second
	DefaultMaxRetryAfter     = 30 * time.Second
	DefaultBreakerThreshold  = 5
	DefaultBreakerReset      = 30 * time.Second
)

// Default classification sets.
var (
	// DefaultRetryableStatusCodes are upstream statuses worth retrying:
	// request timeout, throttling, and server-side failures.
	DefaultRetryableStatusCodes = []int{408, 429, 500, 502, 503, 504}

	// DefaultRetryableErrorCodes are transient transport failures.
	DefaultRetryableErrorCodes = []string{
		CodeConnReset,
		CodeConnRefused,
		CodeTimedOut,
		CodeHostUnreach,
		CodeBrokenPipe,
		CodeDNSFailure,
	}

	// DefaultNonRetryableErrorCodes are terminal gateway outcomes where a
	// replay would either fail identically or double-charge.
	DefaultNonRetryableErrorCodes = []string{
		"invalid_request",
		"authentication_failed",
		"permission_denied",
		"card_declined",
	}
)

// Config controls retry, backoff, and circuit breaking for an Executor.
//
// The zero value is usable: it performs a single attempt with no jitter and
// no breaker. DefaultConfig returns the canonical production settings.
// NewExecutor copies the config; it is immutable afterwards and can only be
// replaced wholesale through UpdateConfig, which re-validates.
type Config struct {
	// MaxRetries is the number of retries after the first attempt, so the
	// total attempt budget is MaxRetries+1. Zero disables retries.
	MaxRetries int

	// InitialDelay seeds the exponential backoff.
	// Default: 200ms
	InitialDelay time.Duration

	// MaxDelay caps a computed backoff delay.
	// Default: 10s
	MaxDelay time.Duration

	// BackoffMultiplier grows the delay between consecutive retries.
	// Default: 2.0
	BackoffMultiplier float64

	// JitterMax is the upper bound of the uniform random jitter added to
	// every delay. Zero disables jitter.
	JitterMax time.Duration

	// AttemptTimeout bounds a single attempt. Exceeding it abandons that
	// attempt only; the retry loop continues. Zero disables the bound.
	AttemptTimeout time.Duration

	// IgnoreRetryAfter disables honoring server Retry-After hints. The
	// zero value honors them.
	IgnoreRetryAfter bool

	// MaxRetryAfter caps an honored Retry-After hint; longer hints are
	// ignored in favor of the computed backoff.
	// Default: 30s
	MaxRetryAfter time.Duration

	// RetryableStatusCodes are upstream HTTP statuses treated as retryable
	// failures. Nil selects DefaultRetryableStatusCodes; an empty non-nil
	// slice disables status-based retries.
	RetryableStatusCodes []int

	// RetryableErrorCodes are error codes treated as retryable. Nil
	// selects DefaultRetryableErrorCodes.
	RetryableErrorCodes []string

	// NonRetryableErrorCodes always win over retryable classification.
	// Nil selects DefaultNonRetryableErrorCodes.
	NonRetryableErrorCodes []string

	// BreakerThreshold is the number of consecutive terminal failures that
	// opens the circuit. Zero disables the breaker.
	BreakerThreshold int

	// BreakerResetTimeout is how long an open circuit waits before
	// admitting a probe.
	// Default: 30s
	BreakerResetTimeout time.Duration

	// Events carries optional observational callbacks.
	Events Events
}

// Events are observational callbacks fired synchronously on the calling
// goroutine.
//
// Contract:
//   - Hooks must be fast and must not panic.
//   - Hooks never influence retry or breaker decisions.
type Events struct {
	// OnAttempt fires after every attempt, success or failure.
	OnAttempt func(Attempt)

	// OnSuccess fires once when a call ends successfully.
	OnSuccess func(Result)

	// OnFailure fires once when a call ends in terminal failure,
	// including breaker short circuits.
	OnFailure func(Result)

	// OnBreakerOpen fires when the circuit trips open.
	OnBreakerOpen func(from State)

	// OnBreakerClose fires when the circuit recovers to closed.
	OnBreakerClose func(from State)
}

// DefaultConfig returns the canonical production configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:             DefaultMaxRetries,
		InitialDelay:           DefaultInitialDelay,
		MaxDelay:               DefaultMaxDelay,
		BackoffMultiplier:      DefaultBackoffMultiplier,
		JitterMax:              DefaultJitterMax,
		AttemptTimeout:         DefaultAttemptTimeout,
		MaxRetryAfter:          DefaultMaxRetryAfter,
		RetryableStatusCodes:   DefaultRetryableStatusCodes,
		RetryableErrorCodes:    DefaultRetryableErrorCodes,
		NonRetryableErrorCodes: DefaultNonRetryableErrorCodes,
		BreakerThreshold:       DefaultBreakerThreshold,
		BreakerResetTimeout:    DefaultBreakerReset,
	}
}

// withDefaults fills fields whose zero value has no standalone meaning.
// Fields where zero is meaningful (MaxRetries, JitterMax, AttemptTimeout,
// BreakerThreshold) are left alone.
func (c Config) withDefaults() Config {
	if c.InitialDelay == 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if c.MaxRetryAfter == 0 {
		c.MaxRetryAfter = DefaultMaxRetryAfter
	}
	if c.BreakerResetTimeout == 0 {
		c.BreakerResetTimeout = DefaultBreakerReset
	}
	if c.RetryableStatusCodes == nil {
		c.RetryableStatusCodes = DefaultRetryableStatusCodes
	}
	if c.RetryableErrorCodes == nil {
		c.RetryableErrorCodes = DefaultRetryableErrorCodes
	}
	if c.NonRetryableErrorCodes == nil {
		c.NonRetryableErrorCodes = DefaultNonRetryableErrorCodes
	}
	return c
}

// Validate rejects configurations that cannot be executed.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	if c.InitialDelay < 0 || c.MaxDelay < 0 || c.JitterMax < 0 ||
		c.AttemptTimeout < 0 || c.MaxRetryAfter < 0 {
		return ErrInvalidDelay
	}
	if c.MaxDelay > 0 && c.MaxDelay < c.InitialDelay {
		return ErrInvalidDelay
	}
	if c.BackoffMultiplier != 0 && c.BackoffMultiplier < 1 {
		return ErrInvalidMultiplier
	}
	for _, code := range c.RetryableStatusCodes {
		if code < 100 || code > 599 {
			return ErrInvalidStatusCode
		}
	}
	if c.BreakerThreshold < 0 {
		return ErrInvalidThreshold
	}
	if c.BreakerResetTimeout < 0 {
		return ErrInvalidResetTimeout
	}
	return nil
}
