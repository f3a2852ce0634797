package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for resilient execution.
var (
	// ErrCircuitOpen is returned when the circuit breaker refuses a call.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrRetriesExhausted marks terminal failures where every allowed
	// attempt was used. The concrete error is an *ExhaustedError carrying
	// the attempt history; errors.Is against this sentinel matches it.
	ErrRetriesExhausted = errors.New("resilience: retries exhausted")

	// ErrAttemptTimeout is recorded for an attempt that exceeded the
	// per-attempt budget. It aborts that attempt only, not the call.
	ErrAttemptTimeout = errors.New("resilience: attempt timed out")

	// ErrTooManyInflight is returned when the in-flight cap rejects a call.
	ErrTooManyInflight = errors.New("resilience: too many in-flight calls")

	// ErrNilExecutor indicates a nil Executor was provided.
	ErrNilExecutor = errors.New("resilience: executor is nil")
)

// Configuration errors.
var (
	// ErrInvalidMaxRetries indicates Config.MaxRetries is negative.
	ErrInvalidMaxRetries = errors.New("resilience: max retries must not be negative")

	// ErrInvalidDelay indicates a delay field is negative or inconsistent.
	ErrInvalidDelay = errors.New("resilience: invalid delay configuration")

	// ErrInvalidMultiplier indicates Config.BackoffMultiplier is below 1.
	ErrInvalidMultiplier = errors.New("resilience: backoff multiplier must be at least 1")

	// ErrInvalidStatusCode indicates a retryable status code outside 100-599.
	ErrInvalidStatusCode = errors.New("resilience: invalid retryable status code")

	// ErrInvalidThreshold indicates a negative breaker failure threshold.
	ErrInvalidThreshold = errors.New("resilience: breaker threshold must not be negative")

	// ErrInvalidResetTimeout indicates a negative breaker reset timeout.
	ErrInvalidResetTimeout = errors.New("resilience: breaker reset timeout must not be negative")
)

// StatusError reports an upstream HTTP response treated as a failure.
// RetryAfter carries the server's Retry-After hint when one was present,
// zero otherwise.
type StatusError struct {
	Code       int
	Status     string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("resilience: upstream status %d %s (retry after %s)", e.Code, e.Status, e.RetryAfter)
	}
	return fmt.Sprintf("resilience: upstream status %d %s", e.Code, e.Status)
}

// CodedError attaches a stable error code to an underlying error. Codes are
// matched against the retryable and non-retryable sets in Config; an
// explicit code takes precedence over whatever the wrapped error would
// classify as.
type CodedError struct {
	Code string
	Err  error
}

func (e *CodedError) Error() string {
	if e.Err == nil {
		return "resilience: " + e.Code
	}
	return fmt.Sprintf("resilience: %s: %v", e.Code, e.Err)
}

func (e *CodedError) Unwrap() error { return e.Err }

// WithCode wraps err with a stable error code.
func WithCode(err error, code string) error {
	return &CodedError{Code: code, Err: err}
}

// ExhaustedError is the terminal error when the retry budget ran out. It
// wraps the last attempt's error and carries the full attempt history.
type ExhaustedError struct {
	Attempts []Attempt
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("resilience: retries exhausted after %d attempts: %v", len(e.Attempts), e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// Is matches ErrRetriesExhausted so callers can test for the class without
// naming the concrete type.
func (e *ExhaustedError) Is(target error) bool { return target == ErrRetriesExhausted }
