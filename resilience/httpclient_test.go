package resilience

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestClient(t *testing.T, cfg Config, opts ...ClientOption) *Client {
	t.Helper()
	ex, err := NewExecutor(cfg)
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	c, err := NewClient(ex, opts...)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestClientNilExecutor(t *testing.T) {
	if _, err := NewClient(nil); !errors.Is(err, ErrNilExecutor) {
		t.Errorf("NewClient(nil) error = %v, want ErrNilExecutor", err)
	}
}

func TestClientRetriesRetryableStatuses(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		n := hits
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "settled")
	}))
	defer srv.Close()

	c := newTestClient(t, Config{MaxRetries: 3, InitialDelay: time.Millisecond})

	resp, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "settled" {
		t.Errorf("body = %q, want %q", body, "settled")
	}

	mu.Lock()
	defer mu.Unlock()
	if hits != 3 {
		t.Errorf("upstream saw %d requests, want 3", hits)
	}
}

// Statuses outside the retryable set are handed back as responses, not
// errors, whatever their class.
func TestClientPassesThroughNonRetryableStatus(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = io.WriteString(w, `{"error":"insufficient_funds"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, Config{MaxRetries: 3, InitialDelay: time.Millisecond})

	resp, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		t.Errorf("StatusCode = %d, want 402", resp.StatusCode)
	}
	mu.Lock()
	defer mu.Unlock()
	if hits != 1 {
		t.Errorf("upstream saw %d requests, want 1", hits)
	}
}

func TestClientExhaustionCarriesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, Config{MaxRetries: 1, InitialDelay: time.Millisecond})

	resp, res := c.DoResult(mustRequest(t, http.MethodGet, srv.URL, ""))
	if resp != nil {
		t.Error("response != nil on terminal failure, want nil")
	}
	if !errors.Is(res.Err, ErrRetriesExhausted) {
		t.Fatalf("Err = %v, want ErrRetriesExhausted", res.Err)
	}

	var status *StatusError
	if !errors.As(res.Err, &status) {
		t.Fatal("Err does not unwrap to *StatusError")
	}
	if status.Code != http.StatusBadGateway {
		t.Errorf("StatusError.Code = %d, want 502", status.Code)
	}
	if len(res.Attempts) != 2 {
		t.Errorf("len(Attempts) = %d, want 2", len(res.Attempts))
	}
	for i, a := range res.Attempts {
		if a.StatusCode != http.StatusBadGateway {
			t.Errorf("Attempts[%d].StatusCode = %d, want 502", i, a.StatusCode)
		}
	}
}

// The request body replays identically on every attempt.
func TestClientReplaysBody(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(payload))
		n := len(bodies)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := newTestClient(t, Config{MaxRetries: 2, InitialDelay: time.Millisecond})

	resp, err := c.Post(context.Background(), srv.URL, "application/json", strings.NewReader(`{"amount":1299}`))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 2 {
		t.Fatalf("upstream saw %d requests, want 2", len(bodies))
	}
	for i, b := range bodies {
		if b != `{"amount":1299}` {
			t.Errorf("attempt %d body = %q, want the original payload", i+1, b)
		}
	}
}

// One idempotency key is minted per logical call and reused across its
// retries.
func TestClientIdempotencyKeyStableAcrossRetries(t *testing.T) {
	var mu sync.Mutex
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		n := len(keys)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, Config{MaxRetries: 2, InitialDelay: time.Millisecond},
		WithIdempotencyKeys("Idempotency-Key"))

	resp, err := c.Post(context.Background(), srv.URL, "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(keys) != 2 {
		t.Fatalf("upstream saw %d requests, want 2", len(keys))
	}
	if keys[0] == "" {
		t.Fatal("no idempotency key was stamped")
	}
	if keys[0] != keys[1] {
		t.Errorf("keys differ across retries: %q vs %q", keys[0], keys[1])
	}
}

func TestClientPreparerRunsPerAttempt(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("X-Signature"))
		n := len(seen)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, Config{MaxRetries: 1, InitialDelay: time.Millisecond},
		WithPreparer(PreparerFunc(func(req *http.Request) error {
			req.Header.Set("X-Signature", "sig-v1")
			return nil
		})))

	resp, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	for i, s := range seen {
		if s != "sig-v1" {
			t.Errorf("attempt %d signature = %q, want %q", i+1, s, "sig-v1")
		}
	}
}

func TestClientPreparerErrorIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream was reached, want the prepare failure to stop the call")
	}))
	defer srv.Close()

	c := newTestClient(t, Config{MaxRetries: 3, InitialDelay: time.Millisecond},
		WithPreparer(PreparerFunc(func(*http.Request) error {
			return errors.New("no signing key")
		})))

	_, res := c.DoResult(mustRequest(t, http.MethodGet, srv.URL, ""))
	if res.Err == nil {
		t.Fatal("Err = nil, want the prepare failure")
	}
	if len(res.Attempts) != 1 {
		t.Errorf("len(Attempts) = %d, want 1", len(res.Attempts))
	}
	if got := ErrorCode(res.Err); got != "prepare_failed" {
		t.Errorf("ErrorCode = %q, want prepare_failed", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "5", 5 * time.Second},
		{"zero", "0", 0},
		{"negative", "-3", 0},
		{"garbage", "soon", 0},
		{"past http date", "Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(tt.value); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseRetryAfterFutureDate(t *testing.T) {
	future := time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat)
	got := parseRetryAfter(future)
	if got <= 0 || got > 10*time.Second {
		t.Errorf("parseRetryAfter(%q) = %v, want a positive duration up to 10s", future, got)
	}
}

func mustRequest(t *testing.T, method, url, body string) *http.Request {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, r)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	return req
}
