package ratelimit

import (
	"strings"
	"time"
)

// Rule applies override limits to requests selected by a predicate.
// Matched requests count against the rule's own isolated budget, never
// the default one.
type Rule struct {
	// Name annotates decisions made under this rule.
	Name string

	// Priority orders evaluation; higher runs first. Ties keep the
	// configured order.
	Priority int

	// When selects the requests this rule governs.
	When Matcher

	// Limits are laid over the base configuration for matched requests.
	Limits Overrides
}

// Matcher is a predicate over admission requests.
type Matcher interface {
	Match(req Request) bool
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(Request) bool

// Match calls f.
func (f MatcherFunc) Match(req Request) bool {
	return f(req)
}

// Ensure MatcherFunc implements Matcher
var _ Matcher = (MatcherFunc)(nil)

// Overrides is a sparse set of limit overrides; nil fields inherit the
// base configuration.
type Overrides struct {
	Window          *time.Duration
	MaxRequests     *int
	KeyBy           *KeyStrategy
	BurstEnabled    *bool
	BurstMultiplier *float64
	SlowDownEnabled *bool
}

func (r Rule) validate() error {
	if r.Name == "" || r.When == nil {
		return ErrInvalidRule
	}
	if r.Limits.Window != nil && *r.Limits.Window <= 0 {
		return ErrInvalidWindow
	}
	if r.Limits.MaxRequests != nil && *r.Limits.MaxRequests <= 0 {
		return ErrInvalidLimit
	}
	if r.Limits.KeyBy != nil && !r.Limits.KeyBy.valid() {
		return ErrInvalidStrategy
	}
	if r.Limits.BurstMultiplier != nil && *r.Limits.BurstMultiplier < 1 {
		return ErrInvalidBurst
	}
	return nil
}

// merge lays the rule's overrides over base. List screening, nested
// rules and the decision hook are stripped: the parent limiter already
// ran them before delegating to the rule.
func (r Rule) merge(base Config) Config {
	cfg := base
	cfg.Rules = nil
	cfg.Whitelist = nil
	cfg.Blacklist = nil
	cfg.Events = Events{OnStoreError: base.Events.OnStoreError}

	if r.Limits.Window != nil {
		cfg.Window = *r.Limits.Window
	}
	if r.Limits.MaxRequests != nil {
		cfg.MaxRequests = *r.Limits.MaxRequests
	}
	if r.Limits.KeyBy != nil {
		cfg.KeyBy = *r.Limits.KeyBy
	}
	if r.Limits.BurstEnabled != nil {
		cfg.BurstEnabled = *r.Limits.BurstEnabled
	}
	if r.Limits.BurstMultiplier != nil {
		cfg.BurstMultiplier = *r.Limits.BurstMultiplier
	}
	if r.Limits.SlowDownEnabled != nil {
		cfg.SlowDownEnabled = *r.Limits.SlowDownEnabled
	}
	return cfg
}

// MatchPathPrefix matches requests whose path starts with prefix.
func MatchPathPrefix(prefix string) Matcher {
	return MatcherFunc(func(req Request) bool {
		return strings.HasPrefix(req.Path, prefix)
	})
}

// MatchMethod matches requests using any of the given methods,
// case-insensitively.
func MatchMethod(methods ...string) Matcher {
	set := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		set[strings.ToUpper(m)] = struct{}{}
	}
	return MatcherFunc(func(req Request) bool {
		_, ok := set[strings.ToUpper(req.Method)]
		return ok
	})
}

// MatchAll matches requests that satisfy every given matcher.
func MatchAll(matchers ...Matcher) Matcher {
	return MatcherFunc(func(req Request) bool {
		for _, m := range matchers {
			if !m.Match(req) {
				return false
			}
		}
		return true
	})
}
