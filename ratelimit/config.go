package ratelimit

import "time"

// Default configuration values.
const (
	// DefaultWindow is the default counting window.
	DefaultWindow = time.Minute

	// DefaultMaxRequests is the default per-key ceiling per window.
	DefaultMaxRequests = 60

	// DefaultBurstMultiplier scales the ceiling into the burst
	// allowance.
	DefaultBurstMultiplier = 1.5

	// DefaultSlowDownDelay is the delay added per request over the base
	// limit when slow-down is enabled.
	DefaultSlowDownDelay = 500 * time.Millisecond

	// DefaultSlowDownMax caps the slow-down delay.
	DefaultSlowDownMax = 5 * time.Second

	// DefaultSweepInterval is how often MemoryStore deletes expired
	// windows.
	DefaultSweepInterval = time.Minute
)

// Decision reasons reported in Result.Reason. Plain admissions within
// the base limit carry an empty reason.
const (
	ReasonWhitelisted   = "Whitelisted"
	ReasonBlacklisted   = "Blacklisted"
	ReasonBurst         = "Burst allowance used"
	ReasonLimited       = "Rate limit exceeded"
	ReasonStoreFailOpen = "Store unavailable (fail open)"
)

// Request is a transport-normalized admission request. HTTP servers can
// let Middleware build it, or fill one directly for other transports.
type Request struct {
	// ClientAddr is the remote host without port.
	ClientAddr string

	// UserID is the authenticated user, when known.
	UserID string

	// APIKey is the raw presented API key, when any. Only a fingerprint
	// of it ever reaches the counter store.
	APIKey string

	// Path is the request path.
	Path string

	// Method is the request method.
	Method string
}

// Result is one admission decision.
type Result struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Limit is the ceiling applied to this request.
	Limit int

	// Remaining is how many requests the key has left in the window.
	Remaining int

	// Reset is when the window closes. Zero when no window participated
	// in the decision.
	Reset time.Time

	// RetryAfter is how long a denied caller should wait. Zero for
	// blacklist denials, which never clear.
	RetryAfter time.Duration

	// SlowDown is the delay an admitted-on-burst request should absorb
	// before proceeding.
	SlowDown time.Duration

	// Reason explains any decision beyond a plain in-limit admission.
	Reason string

	// Rule names the override rule that made the decision, if any.
	Rule string

	// Key is the counter key the request resolved to.
	Key string

	// Headers carries the decision as response header values.
	Headers map[string]string
}

// HeaderNames configures the response headers attached to decisions.
type HeaderNames struct {
	// Limit header. Default: "X-RateLimit-Limit"
	Limit string

	// Remaining header. Default: "X-RateLimit-Remaining"
	Remaining string

	// Reset header, a Unix timestamp in seconds.
	// Default: "X-RateLimit-Reset"
	Reset string

	// RetryAfter header, in whole seconds rounded up.
	// Default: "Retry-After"
	RetryAfter string
}

// Events carries observational callbacks, fired synchronously on the
// deciding goroutine.
//
// Contract:
//   - Concurrency: hooks may be invoked concurrently and must be safe.
//   - Errors: hooks must not panic; they cannot influence decisions.
type Events struct {
	// OnDecision fires after every Check with the final decision.
	OnDecision func(req Request, res Result)

	// OnStoreError fires when the counter store fails and the limiter
	// admits the request without counting it.
	OnStoreError func(err error)
}

// Config controls a Limiter.
type Config struct {
	// Window is the fixed counting window.
	// Default: 1 minute
	Window time.Duration

	// MaxRequests is the per-key ceiling per window.
	// Default: 60
	MaxRequests int

	// KeyBy selects the counter key strategy.
	// Default: KeyByIP
	KeyBy KeyStrategy

	// KeyExtractor derives keys for KeyByCustom. Required then, unused
	// otherwise.
	KeyExtractor KeyExtractor

	// Whitelist patterns are matched against the resolved key and the
	// client address; matches are admitted without counting.
	Whitelist []string

	// Blacklist patterns are matched the same way; matches are denied
	// without consuming window budget.
	Blacklist []string

	// Rules apply override limits to selected requests, highest
	// priority first; the first match wins and counts against the
	// rule's own isolated budget.
	Rules []Rule

	// BurstEnabled admits short overflows above MaxRequests, up to
	// MaxRequests times BurstMultiplier.
	BurstEnabled bool

	// BurstMultiplier scales MaxRequests into the burst ceiling.
	// Default: 1.5
	BurstMultiplier float64

	// DynamicLimits adjusts the ceiling per request shape: health
	// probes get ten times the room, mutating methods and
	// payment-sensitive paths half of it.
	DynamicLimits bool

	// SlowDownEnabled attaches a delay to burst admissions, growing
	// with the overage.
	SlowDownEnabled bool

	// SlowDownDelay is the delay per request above the base limit.
	// Default: 500ms
	SlowDownDelay time.Duration

	// SlowDownMax caps the slow-down delay.
	// Default: 5s
	SlowDownMax time.Duration

	// Headers overrides decision header names.
	Headers HeaderNames

	// Events carries observational hooks.
	Events Events
}

// withDefaults returns a copy of cfg with zero values replaced.
func (c Config) withDefaults() Config {
	if c.Window == 0 {
		c.Window = DefaultWindow
	}
	if c.MaxRequests == 0 {
		c.MaxRequests = DefaultMaxRequests
	}
	if c.KeyBy == "" {
		c.KeyBy = KeyByIP
	}
	if c.BurstMultiplier == 0 {
		c.BurstMultiplier = DefaultBurstMultiplier
	}
	if c.SlowDownDelay == 0 {
		c.SlowDownDelay = DefaultSlowDownDelay
	}
	if c.SlowDownMax == 0 {
		c.SlowDownMax = DefaultSlowDownMax
	}
	if c.Headers.Limit == "" {
		c.Headers.Limit = "X-RateLimit-Limit"
	}
	if c.Headers.Remaining == "" {
		c.Headers.Remaining = "X-RateLimit-Remaining"
	}
	if c.Headers.Reset == "" {
		c.Headers.Reset = "X-RateLimit-Reset"
	}
	if c.Headers.RetryAfter == "" {
		c.Headers.RetryAfter = "Retry-After"
	}
	return c
}

// Validate checks the configuration for inconsistencies.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return ErrInvalidWindow
	}
	if c.MaxRequests <= 0 {
		return ErrInvalidLimit
	}
	if !c.KeyBy.valid() {
		return ErrInvalidStrategy
	}
	if c.KeyBy == KeyByCustom && c.KeyExtractor == nil {
		return ErrMissingExtractor
	}
	if c.BurstMultiplier < 1 {
		return ErrInvalidBurst
	}
	if c.SlowDownDelay < 0 || c.SlowDownMax < 0 {
		return ErrInvalidSlowDown
	}
	for _, r := range c.Rules {
		if err := r.validate(); err != nil {
			return err
		}
	}
	return nil
}
