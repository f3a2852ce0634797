// Package identity derives client identities from HTTP requests for
// admission control.
//
// The helpers here answer one question each: which address, which API
// key, which user. They are deliberately forgiving; a request that
// carries no usable identity yields an empty string and the caller
// falls back to coarser keying rather than rejecting the request.
//
// # Client address
//
// ClientAddr strips the port from RemoteAddr. Behind a trusted reverse
// proxy it prefers the first hop of X-Forwarded-For, then X-Real-IP.
// Never trust those headers on a server reachable directly; they cost
// nothing to forge.
//
// # API keys
//
// HeaderAPIKey reads a configurable header, X-API-Key by default.
// HashKey reduces a raw key to a short fingerprint safe to use in
// counter keys and logs; the raw key never leaves the request path.
//
// # Bearer subjects
//
// BearerSubject pulls the sub claim out of an Authorization bearer
// token. With a Keyfunc it verifies the signature first; without one it
// decodes the claims unverified, which is acceptable for grouping
// traffic but never for authentication.
package identity
