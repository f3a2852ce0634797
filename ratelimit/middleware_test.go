package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func doRequest(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestMiddlewareAllowsAndSetsHeaders(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Window: time.Minute, MaxRequests: 2})
	h := Middleware(l)(okHandler())

	rec := doRequest(h, httptest.NewRequest("GET", "/charges", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Errorf("X-RateLimit-Limit = %q, want %q", got, "2")
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "1" {
		t.Errorf("X-RateLimit-Remaining = %q, want %q", got, "1")
	}
	if got := rec.Header().Get("X-RateLimit-Reset"); got == "" {
		t.Errorf("X-RateLimit-Reset missing")
	}
}

func TestMiddlewareDeniesWithJSON(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Window: time.Minute, MaxRequests: 1})
	h := Middleware(l)(okHandler())

	doRequest(h, httptest.NewRequest("GET", "/charges", nil))
	rec := doRequest(h, httptest.NewRequest("GET", "/charges", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want %q", got, "60")
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}

	var body struct {
		Error      string `json:"error"`
		RetryAfter int64  `json:"retry_after"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Error != ReasonLimited {
		t.Errorf("body.error = %q, want %q", body.Error, ReasonLimited)
	}
	if body.RetryAfter != 60 {
		t.Errorf("body.retry_after = %d, want 60", body.RetryAfter)
	}
}

func TestMiddlewareKeysByClientAddr(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxRequests: 1})
	h := Middleware(l)(okHandler())

	a := httptest.NewRequest("GET", "/charges", nil)
	a.RemoteAddr = "203.0.113.7:40001"
	b := httptest.NewRequest("GET", "/charges", nil)
	b.RemoteAddr = "203.0.113.8:40002"

	if rec := doRequest(h, a); rec.Code != http.StatusOK {
		t.Fatalf("first client status = %d, want 200", rec.Code)
	}
	if rec := doRequest(h, a); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("first client second request status = %d, want 429", rec.Code)
	}
	if rec := doRequest(h, b); rec.Code != http.StatusOK {
		t.Errorf("second client status = %d, want 200", rec.Code)
	}
}

func TestMiddlewareTrustProxy(t *testing.T) {
	var (
		mu   sync.Mutex
		keys []string
	)
	l, _ := newTestLimiter(t, Config{
		MaxRequests: 10,
		Events: Events{
			OnDecision: func(_ Request, res Result) {
				mu.Lock()
				keys = append(keys, res.Key)
				mu.Unlock()
			},
		},
	})

	trusted := Middleware(l, WithTrustProxy())(okHandler())
	direct := Middleware(l)(okHandler())

	req := httptest.NewRequest("GET", "/charges", nil)
	req.RemoteAddr = "10.0.0.1:40001"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	doRequest(trusted, req)
	doRequest(direct, req)

	mu.Lock()
	defer mu.Unlock()
	if len(keys) != 2 {
		t.Fatalf("recorded %d keys, want 2", len(keys))
	}
	if keys[0] != "ip:203.0.113.9" {
		t.Errorf("trusted key = %q, want forwarded client", keys[0])
	}
	if keys[1] != "ip:10.0.0.1" {
		t.Errorf("direct key = %q, want socket address", keys[1])
	}
}

func TestMiddlewareAPIKeyHeader(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxRequests: 1, KeyBy: KeyByAPIKey})
	h := Middleware(l, WithAPIKeyHeader("X-PG-Key"))(okHandler())

	withKey := func(key string) *http.Request {
		r := httptest.NewRequest("GET", "/charges", nil)
		r.Header.Set("X-PG-Key", key)
		return r
	}

	if rec := doRequest(h, withKey("pk_a")); rec.Code != http.StatusOK {
		t.Fatalf("key a status = %d, want 200", rec.Code)
	}
	if rec := doRequest(h, withKey("pk_a")); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("key a second status = %d, want 429", rec.Code)
	}
	if rec := doRequest(h, withKey("pk_b")); rec.Code != http.StatusOK {
		t.Errorf("key b status = %d, want 200; budgets must be per key", rec.Code)
	}
}

func TestMiddlewareUserResolver(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxRequests: 1, KeyBy: KeyByUser})
	h := Middleware(l, WithUserResolver(func(r *http.Request) string {
		return r.Header.Get("X-User")
	}))(okHandler())

	asUser := func(user string) *http.Request {
		r := httptest.NewRequest("GET", "/charges", nil)
		r.Header.Set("X-User", user)
		return r
	}

	doRequest(h, asUser("alice"))
	if rec := doRequest(h, asUser("alice")); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("alice second status = %d, want 429", rec.Code)
	}
	if rec := doRequest(h, asUser("bob")); rec.Code != http.StatusOK {
		t.Errorf("bob status = %d, want 200", rec.Code)
	}
}

func TestMiddlewareBearerSubjectDefault(t *testing.T) {
	var (
		mu   sync.Mutex
		keys []string
	)
	l, _ := newTestLimiter(t, Config{
		MaxRequests: 10,
		KeyBy:       KeyByUser,
		Events: Events{
			OnDecision: func(_ Request, res Result) {
				mu.Lock()
				keys = append(keys, res.Key)
				mu.Unlock()
			},
		},
	})
	h := Middleware(l)(okHandler())

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "merchant_7",
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	req := httptest.NewRequest("GET", "/charges", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	doRequest(h, req)

	mu.Lock()
	defer mu.Unlock()
	if len(keys) != 1 || keys[0] != "user:merchant_7" {
		t.Errorf("keys = %v, want [user:merchant_7]", keys)
	}
}

func TestMiddlewareSlowDownDelays(t *testing.T) {
	l, _ := newTestLimiter(t, Config{
		MaxRequests:     1,
		BurstEnabled:    true,
		BurstMultiplier: 2,
		SlowDownEnabled: true,
		SlowDownDelay:   30 * time.Millisecond,
	})
	h := Middleware(l)(okHandler())

	doRequest(h, httptest.NewRequest("GET", "/charges", nil))

	start := time.Now()
	rec := doRequest(h, httptest.NewRequest("GET", "/charges", nil))
	elapsed := time.Since(start)

	if rec.Code != http.StatusOK {
		t.Fatalf("burst request status = %d, want 200", rec.Code)
	}
	if elapsed < 30*time.Millisecond {
		t.Errorf("burst request served in %v, want at least 30ms of slow-down", elapsed)
	}
}
