// Package ratelimit provides keyed fixed-window admission control for
// payment API traffic.
//
// A Limiter resolves each request to a counter key, screens it against
// whitelist and blacklist patterns, and counts it in a fixed window
// held by a Store. Requests within the limit pass; short overflows can
// pass on a burst allowance, optionally slowed down; everything else is
// denied with a Retry-After hint.
//
// # Keys
//
// Counters can be keyed by client address, authenticated user, API key
// fingerprint, or a custom extractor. Every strategy falls back to the
// client address when its identity is absent, so anonymous traffic is
// still counted rather than pooled on one empty key.
//
// # Rules
//
// Rules carve out traffic classes with their own budgets: a matched
// request counts against the rule's isolated store and never against
// the default window. First match wins, highest priority first.
//
// # Stores
//
// MemoryStore counts in process and sweeps expired windows in the
// background. RedisStore shares one budget across replicas using a
// server-side counting script. A failing store never blocks traffic;
// the limiter fails open and reports the error.
//
// # Usage
//
//	store := ratelimit.NewMemoryStore()
//	defer store.Close()
//
//	limiter, err := ratelimit.NewLimiter(ratelimit.Config{
//		Window:      time.Minute,
//		MaxRequests: 120,
//		KeyBy:       ratelimit.KeyByAPIKey,
//	}, store)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer limiter.Close()
//
//	res := limiter.Check(ctx, ratelimit.Request{
//		ClientAddr: "203.0.113.7",
//		APIKey:     "pk_live_example",
//		Path:       "/payments",
//		Method:     "POST",
//	})
//	if !res.Allowed {
//		// answer 429, res.RetryAfter tells the caller when to return
//	}
//
// HTTP servers can mount the same decision as middleware with
// Middleware, which also resolves client identity from the request.
package ratelimit
