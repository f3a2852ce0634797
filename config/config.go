package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/payguard/payguard/observe"
	"github.com/payguard/payguard/ratelimit"
	"github.com/payguard/payguard/resilience"
)

// EnvPrefix is the prefix for environment overrides. Keys nest with
// underscores: PAYGUARD_SERVER_LISTEN_ADDRESS overrides
// server.listen_address.
const EnvPrefix = "PAYGUARD"

// Counter store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// File is the root of the gateway configuration.
type File struct {
	Server        Server        `mapstructure:"server"`
	Upstream      Upstream      `mapstructure:"upstream"`
	Resilience    Resilience    `mapstructure:"resilience"`
	RateLimit     RateLimit     `mapstructure:"rate_limit"`
	Observability Observability `mapstructure:"observability"`
}

// Server configures the gateway's own HTTP listener.
type Server struct {
	// ListenAddress is the host:port the gateway binds.
	ListenAddress string `mapstructure:"listen_address"`

	// ReadTimeout bounds reading a request, header through body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout bounds writing a response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout bounds idle keep-alive connections.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// ShutdownTimeout bounds the drain on graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Upstream configures the payment processor requests are proxied to.
type Upstream struct {
	// Name labels the upstream in telemetry and breaker state.
	Name string `mapstructure:"name"`

	// Endpoint is the base URL proxied calls are sent to.
	Endpoint string `mapstructure:"endpoint"`

	// Timeout bounds the underlying HTTP client per send. Zero leaves
	// the executor's attempt timeout as the only bound.
	Timeout time.Duration `mapstructure:"timeout"`

	// IdempotencyHeader is stamped with a fresh key on mutating
	// requests that lack one. Empty disables stamping.
	IdempotencyHeader string `mapstructure:"idempotency_header"`
}

// Resilience mirrors resilience.Config plus the executor guards that
// cannot be expressed there. Event hooks are wired in code.
type Resilience struct {
	MaxRetries             int           `mapstructure:"max_retries"`
	InitialDelay           time.Duration `mapstructure:"initial_delay"`
	MaxDelay               time.Duration `mapstructure:"max_delay"`
	BackoffMultiplier      float64       `mapstructure:"backoff_multiplier"`
	JitterMax              time.Duration `mapstructure:"jitter_max"`
	AttemptTimeout         time.Duration `mapstructure:"attempt_timeout"`
	IgnoreRetryAfter       bool          `mapstructure:"ignore_retry_after"`
	MaxRetryAfter          time.Duration `mapstructure:"max_retry_after"`
	RetryableStatusCodes   []int         `mapstructure:"retryable_status_codes"`
	RetryableErrorCodes    []string      `mapstructure:"retryable_error_codes"`
	NonRetryableErrorCodes []string      `mapstructure:"non_retryable_error_codes"`
	BreakerThreshold       int           `mapstructure:"breaker_threshold"`
	BreakerResetTimeout    time.Duration `mapstructure:"breaker_reset_timeout"`

	// ThrottleRPS caps outbound calls per second. Zero disables the
	// throttle.
	ThrottleRPS float64 `mapstructure:"throttle_rps"`

	// ThrottleBurst is the throttle's burst size. Zero lets the caller
	// derive one from ThrottleRPS.
	ThrottleBurst int `mapstructure:"throttle_burst"`

	// MaxInflight caps concurrent upstream calls. Zero disables the
	// gate.
	MaxInflight int `mapstructure:"max_inflight"`

	// InflightFailFast rejects callers at the inflight cap instead of
	// queueing them.
	InflightFailFast bool `mapstructure:"inflight_fail_fast"`
}

// Build maps the section onto a resilience.Config.
func (r Resilience) Build() resilience.Config {
	return resilience.Config{
		MaxRetries:             r.MaxRetries,
		InitialDelay:           r.InitialDelay,
		MaxDelay:               r.MaxDelay,
		BackoffMultiplier:      r.BackoffMultiplier,
		JitterMax:              r.JitterMax,
		AttemptTimeout:         r.AttemptTimeout,
		IgnoreRetryAfter:       r.IgnoreRetryAfter,
		MaxRetryAfter:          r.MaxRetryAfter,
		RetryableStatusCodes:   r.RetryableStatusCodes,
		RetryableErrorCodes:    r.RetryableErrorCodes,
		NonRetryableErrorCodes: r.NonRetryableErrorCodes,
		BreakerThreshold:       r.BreakerThreshold,
		BreakerResetTimeout:    r.BreakerResetTimeout,
	}
}

// RateLimit configures admission control on the gateway's inbound
// surface. Event hooks are wired in code.
type RateLimit struct {
	// Enabled mounts the limiter middleware.
	Enabled bool `mapstructure:"enabled"`

	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"max_requests"`

	// KeyBy selects the counter key strategy: ip, user or api-key.
	// Custom keying needs a code-provided extractor and cannot be
	// selected here.
	KeyBy string `mapstructure:"key_by"`

	Whitelist       []string      `mapstructure:"whitelist"`
	Blacklist       []string      `mapstructure:"blacklist"`
	BurstEnabled    bool          `mapstructure:"burst_enabled"`
	BurstMultiplier float64       `mapstructure:"burst_multiplier"`
	DynamicLimits   bool          `mapstructure:"dynamic_limits"`
	SlowDownEnabled bool          `mapstructure:"slow_down_enabled"`
	SlowDownDelay   time.Duration `mapstructure:"slow_down_delay"`
	SlowDownMax     time.Duration `mapstructure:"slow_down_max"`

	// Rules lay override limits over selected routes.
	Rules []Rule `mapstructure:"rules"`

	// Store selects the counter store backend.
	Store Store `mapstructure:"store"`
}

// Rule declares a per-route limit override. A rule must select
// requests by path prefix, methods or both.
type Rule struct {
	Name        string        `mapstructure:"name"`
	Priority    int           `mapstructure:"priority"`
	PathPrefix  string        `mapstructure:"path_prefix"`
	Methods     []string      `mapstructure:"methods"`
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"max_requests"`
	KeyBy       string        `mapstructure:"key_by"`
}

// Store selects and configures the counter store backend.
type Store struct {
	// Backend is memory or redis.
	Backend string `mapstructure:"backend"`

	// Redis configures the redis backend; ignored for memory.
	Redis Redis `mapstructure:"redis"`
}

// Redis holds connection settings for the redis counter store.
type Redis struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Build maps the section onto a ratelimit.Config.
func (r RateLimit) Build() ratelimit.Config {
	cfg := ratelimit.Config{
		Window:          r.Window,
		MaxRequests:     r.MaxRequests,
		KeyBy:           ratelimit.KeyStrategy(r.KeyBy),
		Whitelist:       r.Whitelist,
		Blacklist:       r.Blacklist,
		BurstEnabled:    r.BurstEnabled,
		BurstMultiplier: r.BurstMultiplier,
		DynamicLimits:   r.DynamicLimits,
		SlowDownEnabled: r.SlowDownEnabled,
		SlowDownDelay:   r.SlowDownDelay,
		SlowDownMax:     r.SlowDownMax,
	}
	for _, rule := range r.Rules {
		cfg.Rules = append(cfg.Rules, rule.build())
	}
	return cfg
}

func (r Rule) build() ratelimit.Rule {
	var matchers []ratelimit.Matcher
	if r.PathPrefix != "" {
		matchers = append(matchers, ratelimit.MatchPathPrefix(r.PathPrefix))
	}
	if len(r.Methods) > 0 {
		matchers = append(matchers, ratelimit.MatchMethod(r.Methods...))
	}

	out := ratelimit.Rule{
		Name:     r.Name,
		Priority: r.Priority,
	}
	if len(matchers) == 1 {
		out.When = matchers[0]
	} else {
		out.When = ratelimit.MatchAll(matchers...)
	}
	if r.Window > 0 {
		w := r.Window
		out.Limits.Window = &w
	}
	if r.MaxRequests > 0 {
		n := r.MaxRequests
		out.Limits.MaxRequests = &n
	}
	if r.KeyBy != "" {
		k := ratelimit.KeyStrategy(r.KeyBy)
		out.Limits.KeyBy = &k
	}
	return out
}

// Observability configures telemetry for the gateway process.
type Observability struct {
	ServiceName string  `mapstructure:"service_name"`
	Version     string  `mapstructure:"version"`
	Environment string  `mapstructure:"environment"`
	Tracing     Tracing `mapstructure:"tracing"`
	Metrics     Metrics `mapstructure:"metrics"`
	Logging     Logging `mapstructure:"logging"`
}

// Tracing configures the tracing subsystem.
type Tracing struct {
	Enabled   bool    `mapstructure:"enabled"`
	Exporter  string  `mapstructure:"exporter"`
	SamplePct float64 `mapstructure:"sample_pct"`
}

// Metrics configures the metrics subsystem.
type Metrics struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"`
}

// Logging configures the logging subsystem.
type Logging struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"`
}

// Build maps the section onto an observe.Config.
func (o Observability) Build() observe.Config {
	return observe.Config{
		ServiceName: o.ServiceName,
		Version:     o.Version,
		Environment: o.Environment,
		Tracing: observe.TracingConfig{
			Enabled:   o.Tracing.Enabled,
			Exporter:  o.Tracing.Exporter,
			SamplePct: o.Tracing.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  o.Metrics.Enabled,
			Exporter: o.Metrics.Exporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: o.Logging.Enabled,
			Level:   o.Logging.Level,
		},
	}
}

// Load reads the configuration file at path, lays environment
// overrides over it, expands ${VAR} references and validates the
// result. An empty path skips the file and configures from defaults
// and environment alone.
func Load(path string) (*File, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := ExpandStrings(&f); err != nil {
		return nil, err
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// setDefaults registers every key so environment-only overrides bind
// during Unmarshal. Values duplicate the runtime packages' defaults
// through their exported constants where they exist.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_address", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 2*time.Minute)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("upstream.name", "acquirer")
	v.SetDefault("upstream.endpoint", "http://localhost:9090")
	v.SetDefault("upstream.timeout", time.Duration(0))
	v.SetDefault("upstream.idempotency_header", "Idempotency-Key")

	v.SetDefault("resilience.max_retries", resilience.DefaultMaxRetries)
	v.SetDefault("resilience.initial_delay", resilience.DefaultInitialDelay)
	v.SetDefault("resilience.max_delay", resilience.DefaultMaxDelay)
	v.SetDefault("resilience.backoff_multiplier", resilience.DefaultBackoffMultiplier)
	v.SetDefault("resilience.jitter_max", resilience.DefaultJitterMax)
	v.SetDefault("resilience.attempt_timeout", resilience.DefaultAttemptTimeout)
	v.SetDefault("resilience.ignore_retry_after", false)
	v.SetDefault("resilience.max_retry_after", resilience.DefaultMaxRetryAfter)
	v.SetDefault("resilience.breaker_threshold", resilience.DefaultBreakerThreshold)
	v.SetDefault("resilience.breaker_reset_timeout", resilience.DefaultBreakerReset)
	v.SetDefault("resilience.throttle_rps", 0.0)
	v.SetDefault("resilience.throttle_burst", 0)
	v.SetDefault("resilience.max_inflight", 0)
	v.SetDefault("resilience.inflight_fail_fast", false)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.window", ratelimit.DefaultWindow)
	v.SetDefault("rate_limit.max_requests", ratelimit.DefaultMaxRequests)
	v.SetDefault("rate_limit.key_by", string(ratelimit.KeyByIP))
	v.SetDefault("rate_limit.burst_enabled", false)
	v.SetDefault("rate_limit.burst_multiplier", ratelimit.DefaultBurstMultiplier)
	v.SetDefault("rate_limit.dynamic_limits", false)
	v.SetDefault("rate_limit.slow_down_enabled", false)
	v.SetDefault("rate_limit.slow_down_delay", ratelimit.DefaultSlowDownDelay)
	v.SetDefault("rate_limit.slow_down_max", ratelimit.DefaultSlowDownMax)
	v.SetDefault("rate_limit.store.backend", StoreMemory)
	v.SetDefault("rate_limit.store.redis.addr", "localhost:6379")
	v.SetDefault("rate_limit.store.redis.password", "")
	v.SetDefault("rate_limit.store.redis.db", 0)
	v.SetDefault("rate_limit.store.redis.key_prefix", "")

	v.SetDefault("observability.service_name", "payguard")
	v.SetDefault("observability.version", "")
	v.SetDefault("observability.environment", "")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.exporter", "stdout")
	v.SetDefault("observability.tracing.sample_pct", 1.0)
	v.SetDefault("observability.metrics.enabled", false)
	v.SetDefault("observability.metrics.exporter", "prometheus")
	v.SetDefault("observability.logging.enabled", true)
	v.SetDefault("observability.logging.level", "info")
}

// Validate checks the loaded configuration. Section semantics are
// delegated to the packages the sections build for.
func (f *File) Validate() error {
	if f.Server.ListenAddress == "" {
		return ErrMissingListenAddress
	}

	if f.Upstream.Endpoint == "" {
		return ErrMissingUpstreamEndpoint
	}
	u, err := url.Parse(f.Upstream.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidUpstreamEndpoint, f.Upstream.Endpoint)
	}

	switch f.RateLimit.Store.Backend {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStoreBackend, f.RateLimit.Store.Backend)
	}
	if f.RateLimit.Store.Backend == StoreRedis && f.RateLimit.Store.Redis.Addr == "" {
		return ErrMissingRedisAddr
	}

	if err := validKeyStrategy(f.RateLimit.KeyBy); err != nil {
		return err
	}
	for _, r := range f.RateLimit.Rules {
		if r.PathPrefix == "" && len(r.Methods) == 0 {
			return fmt.Errorf("%w: %q", ErrRuleSelectsNothing, r.Name)
		}
		if r.KeyBy != "" {
			if err := validKeyStrategy(r.KeyBy); err != nil {
				return fmt.Errorf("rule %q: %w", r.Name, err)
			}
		}
	}

	if err := f.Resilience.Build().Validate(); err != nil {
		return err
	}
	if f.RateLimit.Enabled {
		if err := f.RateLimit.Build().Validate(); err != nil {
			return err
		}
	}
	obs := f.Observability.Build()
	if err := obs.Validate(); err != nil {
		return err
	}
	return nil
}

// validKeyStrategy accepts the strategies a file can express. Custom
// keying needs a code-provided extractor, so it is rejected here even
// though the limiter supports it.
func validKeyStrategy(s string) error {
	switch ratelimit.KeyStrategy(s) {
	case "", ratelimit.KeyByIP, ratelimit.KeyByUser, ratelimit.KeyByAPIKey:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidKeyStrategy, s)
}
