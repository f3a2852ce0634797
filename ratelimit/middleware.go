package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/payguard/payguard/identity"
	"github.com/payguard/payguard/observe"
)

// middleware holds resolved Middleware options.
type middleware struct {
	limiter    *Limiter
	trustProxy bool
	apiKey     identity.HeaderAPIKey
	userFrom   func(*http.Request) string
	logger     observe.Logger
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middleware)

// WithTrustProxy honors X-Forwarded-For and X-Real-IP when resolving
// the client address. Enable only behind a trusted reverse proxy.
func WithTrustProxy() MiddlewareOption {
	return func(m *middleware) {
		m.trustProxy = true
	}
}

// WithAPIKeyHeader overrides the header carrying API keys.
func WithAPIKeyHeader(name string) MiddlewareOption {
	return func(m *middleware) {
		m.apiKey = identity.HeaderAPIKey{Header: name}
	}
}

// WithUserResolver sets how the authenticated user is derived from a
// request. The default reads the bearer token's subject, unverified.
func WithUserResolver(fn func(*http.Request) string) MiddlewareOption {
	return func(m *middleware) {
		m.userFrom = fn
	}
}

// WithBearerSubjects derives the user from verified bearer tokens.
func WithBearerSubjects(b identity.BearerSubject) MiddlewareOption {
	return func(m *middleware) {
		m.userFrom = b.Extract
	}
}

// WithMiddlewareLogger logs denials and slow-downs.
func WithMiddlewareLogger(logger observe.Logger) MiddlewareOption {
	return func(m *middleware) {
		m.logger = logger
	}
}

// Middleware enforces l on every request. Decision headers are set on
// allow and deny alike; denials answer 429 with a JSON body, and burst
// admissions absorb their slow-down delay before the handler runs.
func Middleware(l *Limiter, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	m := &middleware{
		limiter: l,
		userFrom: func(r *http.Request) string {
			return identity.BearerSubject{}.Extract(r)
		},
	}
	for _, opt := range opts {
		opt(m)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := m.limiter.Check(r.Context(), m.request(r))

			for k, v := range res.Headers {
				w.Header().Set(k, v)
			}

			if !res.Allowed {
				m.deny(w, r, res)
				return
			}

			if res.SlowDown > 0 && !m.pause(r, res) {
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *middleware) request(r *http.Request) Request {
	return Request{
		ClientAddr: identity.ClientAddr(r, m.trustProxy),
		UserID:     m.userFrom(r),
		APIKey:     m.apiKey.Extract(r),
		Path:       r.URL.Path,
		Method:     r.Method,
	}
}

func (m *middleware) deny(w http.ResponseWriter, r *http.Request, res Result) {
	if m.logger != nil {
		m.logger.Warn(r.Context(), "request denied",
			observe.Field{Key: "limit.key", Value: res.Key},
			observe.Field{Key: "limit.reason", Value: res.Reason},
			observe.Field{Key: "limit.rule", Value: res.Rule},
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":       res.Reason,
		"retry_after": int64(math.Ceil(res.RetryAfter.Seconds())),
	})
}

// pause absorbs the slow-down delay. Returns false when the client went
// away while waiting.
func (m *middleware) pause(r *http.Request, res Result) bool {
	if m.logger != nil {
		m.logger.Debug(r.Context(), "slowing request down",
			observe.Field{Key: "limit.key", Value: res.Key},
			observe.Field{Key: "limit.delay", Value: res.SlowDown.String()},
		)
	}

	t := time.NewTimer(res.SlowDown)
	defer t.Stop()
	select {
	case <-r.Context().Done():
		return false
	case <-t.C:
		return true
	}
}
