package resilience

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"
)

// Transport error codes, aligned with what payment gateways and their
// client SDKs report.
const (
	CodeConnReset   = "ECONNRESET"
	CodeConnRefused = "ECONNREFUSED"
	CodeTimedOut    = "ETIMEDOUT"
	CodeHostUnreach = "EHOSTUNREACH"
	CodeBrokenPipe  = "EPIPE"
	CodeDNSFailure  = "EAI_AGAIN"
	CodeDNSNotFound = "ENOTFOUND"
)

// ErrorCode extracts a stable classification code from err.
//
// Precedence: an explicit CodedError wins, then an upstream StatusError
// (reported as HTTP_<code>), then timeouts, then transport-level failures
// mapped to their conventional names. Unknown errors yield "".
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	var status *StatusError
	if errors.As(err, &status) {
		return "HTTP_" + strconv.Itoa(status.Code)
	}

	if errors.Is(err, ErrAttemptTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return CodeTimedOut
	}

	switch {
	case errors.Is(err, syscall.ECONNRESET):
		return CodeConnReset
	case errors.Is(err, syscall.ECONNREFUSED):
		return CodeConnRefused
	case errors.Is(err, syscall.EHOSTUNREACH):
		return CodeHostUnreach
	case errors.Is(err, syscall.EPIPE):
		return CodeBrokenPipe
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return CodeDNSNotFound
		}
		return CodeDNSFailure
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimedOut
	}

	return ""
}

// classifier decides retryability from the configured code and status sets.
type classifier struct {
	statuses     map[int]struct{}
	retryable    map[string]struct{}
	nonRetryable map[string]struct{}
}

func newClassifier(cfg Config) *classifier {
	c := &classifier{
		statuses:     make(map[int]struct{}, len(cfg.RetryableStatusCodes)),
		retryable:    make(map[string]struct{}, len(cfg.RetryableErrorCodes)),
		nonRetryable: make(map[string]struct{}, len(cfg.NonRetryableErrorCodes)),
	}
	for _, code := range cfg.RetryableStatusCodes {
		c.statuses[code] = struct{}{}
	}
	for _, code := range cfg.RetryableErrorCodes {
		c.retryable[code] = struct{}{}
	}
	for _, code := range cfg.NonRetryableErrorCodes {
		c.nonRetryable[code] = struct{}{}
	}
	return c
}

// shouldRetry reports whether err may be retried. A non-retryable code
// match wins over every retryable signal; errors that classify to no code
// at all are not retried.
func (c *classifier) shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	code := ErrorCode(err)
	if code == "" {
		return false
	}
	if _, bad := c.nonRetryable[code]; bad {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		_, ok := c.statuses[status.Code]
		return ok
	}
	_, ok := c.retryable[code]
	return ok
}

func (c *classifier) retryableStatus(code int) bool {
	_, ok := c.statuses[code]
	return ok
}

// retryAfterHint surfaces the server-provided backoff hint attached to an
// upstream status failure, zero when there is none.
func retryAfterHint(err error) time.Duration {
	var status *StatusError
	if errors.As(err, &status) {
		return status.RetryAfter
	}
	return 0
}

func statusCode(err error) int {
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code
	}
	return 0
}
