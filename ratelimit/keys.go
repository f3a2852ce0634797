package ratelimit

import "github.com/payguard/payguard/identity"

// KeyStrategy selects how requests map onto counter keys.
type KeyStrategy string

const (
	// KeyByIP counts per client address.
	KeyByIP KeyStrategy = "ip"

	// KeyByUser counts per authenticated user, falling back to the
	// client address for anonymous requests.
	KeyByUser KeyStrategy = "user"

	// KeyByAPIKey counts per API key fingerprint, falling back to the
	// client address when no key is presented.
	KeyByAPIKey KeyStrategy = "api-key"

	// KeyByCustom counts per caller-derived key, falling back to the
	// client address when the extractor yields nothing.
	KeyByCustom KeyStrategy = "custom"
)

func (s KeyStrategy) valid() bool {
	switch s {
	case KeyByIP, KeyByUser, KeyByAPIKey, KeyByCustom:
		return true
	}
	return false
}

// KeyExtractor derives a counter key from a request. An empty key or an
// error falls the request back to the client-address key.
type KeyExtractor interface {
	Key(req Request) (string, error)
}

// KeyExtractorFunc adapts a function to KeyExtractor.
type KeyExtractorFunc func(Request) (string, error)

// Key calls f.
func (f KeyExtractorFunc) Key(req Request) (string, error) {
	return f(req)
}

// Ensure KeyExtractorFunc implements KeyExtractor
var _ KeyExtractor = (KeyExtractorFunc)(nil)

// resolveKey maps req onto the counter key for the configured strategy.
// Every strategy degrades to the client-address key when its preferred
// identity is absent, so unauthenticated traffic is still counted.
func (l *Limiter) resolveKey(req Request) string {
	switch l.cfg.KeyBy {
	case KeyByUser:
		if req.UserID != "" {
			return "user:" + req.UserID
		}
	case KeyByAPIKey:
		if req.APIKey != "" {
			return "key:" + identity.HashKey(req.APIKey)
		}
	case KeyByCustom:
		if l.cfg.KeyExtractor != nil {
			if k, err := l.cfg.KeyExtractor.Key(req); err == nil && k != "" {
				return k
			}
		}
	}
	return "ip:" + req.ClientAddr
}
