package ratelimit

import "errors"

// Configuration errors returned by Config.Validate and NewLimiter.
var (
	// ErrInvalidWindow indicates a zero or negative counting window.
	ErrInvalidWindow = errors.New("ratelimit: window must be positive")

	// ErrInvalidLimit indicates a zero or negative request ceiling.
	ErrInvalidLimit = errors.New("ratelimit: max requests must be positive")

	// ErrInvalidStrategy indicates an unknown key strategy.
	ErrInvalidStrategy = errors.New("ratelimit: unknown key strategy")

	// ErrMissingExtractor indicates the custom key strategy was selected
	// without a KeyExtractor.
	ErrMissingExtractor = errors.New("ratelimit: custom key strategy requires an extractor")

	// ErrInvalidBurst indicates a burst multiplier below 1.
	ErrInvalidBurst = errors.New("ratelimit: burst multiplier must be at least 1")

	// ErrInvalidSlowDown indicates a negative slow-down delay or cap.
	ErrInvalidSlowDown = errors.New("ratelimit: slow-down delay and cap must not be negative")

	// ErrInvalidRule indicates a rule without a name or matcher, or with
	// out-of-range overrides.
	ErrInvalidRule = errors.New("ratelimit: invalid rule")
)

// Wiring errors.
var (
	// ErrNilStore indicates a limiter was built without a counter store.
	ErrNilStore = errors.New("ratelimit: counter store is nil")

	// ErrNilClient indicates a Redis store was built without a client.
	ErrNilClient = errors.New("ratelimit: redis client is nil")
)

// Store errors.
var (
	// ErrStoreClosed indicates an operation on a closed counter store.
	ErrStoreClosed = errors.New("ratelimit: counter store is closed")

	// ErrBadScriptReply indicates the counting script returned a reply
	// the store could not decode.
	ErrBadScriptReply = errors.New("ratelimit: malformed counter script reply")
)
