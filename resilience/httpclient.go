package resilience

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Preparer mutates an outbound request before every attempt, e.g. to sign
// it or stamp auth headers.
//
// Contract:
//   - Concurrency: must be safe for concurrent use.
//   - Errors: a Prepare error fails the call without a retry.
type Preparer interface {
	Prepare(req *http.Request) error
}

// PreparerFunc adapts a function to the Preparer interface.
type PreparerFunc func(*http.Request) error

func (f PreparerFunc) Prepare(req *http.Request) error { return f(req) }

var _ Preparer = (PreparerFunc)(nil)

// Client sends HTTP requests through an Executor. Transport failures and
// upstream statuses from the retryable set are retried with backoff, the
// circuit breaker guards the upstream, and mutating calls can carry a
// stable idempotency key so replays are safe on the gateway side.
type Client struct {
	ex         *Executor
	http       *http.Client
	prepare    Preparer
	idemHeader string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient substitutes the underlying http.Client. The attempt
// timeout already bounds each send; the substitute usually should not
// carry its own Timeout.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithPreparer installs a request preparer run before every attempt.
func WithPreparer(p Preparer) ClientOption {
	return func(c *Client) { c.prepare = p }
}

// WithIdempotencyKeys stamps header with a fresh UUID on POST and PATCH
// requests that lack one. The key is set once per logical call and reused
// across its retries.
func WithIdempotencyKeys(header string) ClientOption {
	return func(c *Client) { c.idemHeader = header }
}

// NewClient builds a resilient HTTP client around an injected Executor.
func NewClient(ex *Executor, opts ...ClientOption) (*Client, error) {
	if ex == nil {
		return nil, ErrNilExecutor
	}
	c := &Client{ex: ex, http: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Do sends req through the retry executor. The request body, when present,
// is buffered once so every attempt replays the same payload. A response
// outside the retryable status set is returned to the caller unconsumed,
// whatever its status; callers own closing its body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, res := c.DoResult(req)
	if res.Err != nil {
		return nil, res.Err
	}
	return resp, nil
}

// DoResult is Do with the full attempt history included.
func (c *Client) DoResult(req *http.Request) (*http.Response, *Result) {
	if err := bufferBody(req); err != nil {
		return nil, &Result{Err: err}
	}
	if c.idemHeader != "" && req.Header.Get(c.idemHeader) == "" &&
		(req.Method == http.MethodPost || req.Method == http.MethodPatch) {
		req.Header.Set(c.idemHeader, uuid.NewString())
	}

	return Do(req.Context(), c.ex, func(ctx context.Context) (*http.Response, error) {
		return c.send(ctx, req)
	})
}

// Get issues a GET through the retry executor.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Post issues a POST through the retry executor.
func (c *Client) Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.Do(req)
}

func (c *Client) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	attempt := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		attempt.Body = body
	}
	if c.prepare != nil {
		if err := c.prepare.Prepare(attempt); err != nil {
			return nil, WithCode(err, "prepare_failed")
		}
	}

	resp, err := c.http.Do(attempt)
	if err != nil {
		return nil, err
	}
	if c.ex.retryableStatus(resp.StatusCode) {
		hint := parseRetryAfter(resp.Header.Get("Retry-After"))
		drain(resp)
		return nil, &StatusError{
			Code:       resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			RetryAfter: hint,
		}
	}
	return resp, nil
}

func (e *Executor) retryableStatus(code int) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.class.retryableStatus(code)
}

// bufferBody captures the request payload once so GetBody can replay it on
// every attempt. Requests built by http.NewRequest from byte readers
// already have GetBody and are left alone.
func bufferBody(req *http.Request) error {
	if req.Body == nil || req.GetBody != nil {
		return nil
	}
	payload, err := io.ReadAll(req.Body)
	if err != nil {
		return fmt.Errorf("resilience: buffering request body: %w", err)
	}
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(payload))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}
	return nil
}

// parseRetryAfter reads a Retry-After value in integer-seconds or
// HTTP-date form. Returns zero when absent or unparseable.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// drain discards and closes a response body so the transport can reuse
// the connection before the next attempt.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}
