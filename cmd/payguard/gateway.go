package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/payguard/payguard/config"
	"github.com/payguard/payguard/observe"
	"github.com/payguard/payguard/resilience"
)

// maxPaymentBody caps inbound payment payloads.
const maxPaymentBody = 1 << 20

// gateway proxies payment operations to the acquirer through the
// resilient client, each call wrapped in observability middleware.
type gateway struct {
	upstream config.Upstream
	endpoint string
	call     observe.CallFunc
}

func newGateway(upstream config.Upstream, client *resilience.Client, mw *observe.Middleware) *gateway {
	g := &gateway{
		upstream: upstream,
		endpoint: strings.TrimSuffix(upstream.Endpoint, "/"),
	}
	g.call = mw.Wrap(func(ctx context.Context, _ observe.CallMeta, payload any) (any, error) {
		req := payload.(*http.Request)
		return client.Do(req.WithContext(ctx))
	})
	return g
}

func (g *gateway) createPayment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPaymentBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "reading request body")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, g.endpoint+"/payments", bytes.NewReader(body))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "building upstream request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	// An inbound key is forwarded as-is so client retries stay
	// idempotent end to end. Without one the client stamps a fresh key.
	if h := g.upstream.IdempotencyHeader; h != "" {
		if key := r.Header.Get(h); key != "" {
			req.Header.Set(h, key)
		}
	}

	g.proxy(w, r, req, "payments.create")
}

func (g *gateway) getPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "paymentID")

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, g.endpoint+"/payments/"+id, nil)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "building upstream request")
		return
	}

	g.proxy(w, r, req, "payments.get")
}

// proxy runs the upstream request through the wrapped call and relays
// the response. Non-retryable upstream statuses, declines included,
// pass through unchanged.
func (g *gateway) proxy(w http.ResponseWriter, r *http.Request, upstreamReq *http.Request, operation string) {
	meta := observe.CallMeta{
		Service:   g.upstream.Name,
		Operation: operation,
		Endpoint:  g.endpoint,
	}

	out, err := g.call(r.Context(), meta, upstreamReq)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	resp := out.(*http.Response)
	defer func() { _ = resp.Body.Close() }()

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// relayedHeaders are the upstream response headers passed back to the
// caller. Everything else stays behind.
var relayedHeaders = []string{"Content-Type", "Location", "Retry-After"}

func copyResponseHeaders(dst, src http.Header) {
	for _, name := range relayedHeaders {
		if v := src.Get(name); v != "" {
			dst.Set(name, v)
		}
	}
}

// writeUpstreamError maps executor failures onto gateway responses.
func writeUpstreamError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	msg := "upstream call failed"

	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		status = http.StatusServiceUnavailable
		msg = "upstream temporarily unavailable"
	case errors.Is(err, resilience.ErrTooManyInflight):
		status = http.StatusServiceUnavailable
		msg = "gateway at capacity"
	case errors.Is(err, resilience.ErrRetriesExhausted):
		msg = "upstream not responding"
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		msg = "upstream timed out"
	}

	writeJSONError(w, status, msg)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
