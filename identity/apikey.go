package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// DefaultAPIKeyHeader is the header HeaderAPIKey reads when none is
// configured.
const DefaultAPIKeyHeader = "X-API-Key"

// fingerprintLen is the length of the hex fingerprint HashKey returns.
// 64 bits of a SHA-256 digest is plenty to keep distinct keys on
// distinct counters without carrying the full digest around.
const fingerprintLen = 16

// HeaderAPIKey extracts API keys from a request header.
type HeaderAPIKey struct {
	// Header is the header to read. Default: X-API-Key
	Header string
}

// Extract returns the trimmed API key from the request, or "" when the
// header is absent.
func (h HeaderAPIKey) Extract(r *http.Request) string {
	name := h.Header
	if name == "" {
		name = DefaultAPIKeyHeader
	}
	return strings.TrimSpace(r.Header.Get(name))
}

// HashKey reduces a raw API key to a short hex fingerprint. The
// fingerprint identifies the key for counting and logging but cannot be
// reversed into it.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}
