package identity

import (
	"net"
	"net/http"
	"strings"
)

// ClientAddr returns the client host for r without a port. When
// trustProxy is set it prefers the first hop of X-Forwarded-For, then
// X-Real-IP, falling back to RemoteAddr.
func ClientAddr(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// The first entry is the originating client; later hops
			// are proxies appending themselves.
			first := xff
			if idx := strings.Index(xff, ","); idx >= 0 {
				first = xff[:idx]
			}
			if addr := strings.TrimSpace(first); addr != "" {
				return addr
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr without a port, e.g. from a test or a unix socket.
		return r.RemoteAddr
	}
	return host
}
