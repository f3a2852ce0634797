package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records telemetry for upstream calls and gateway decisions.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines and return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordCall records an upstream call with duration and error status.
	RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, err error)

	// RecordRetry records one retry attempt against an upstream.
	RecordRetry(ctx context.Context, meta CallMeta, attempt int)

	// RecordBreakerTransition records a circuit breaker state change.
	RecordBreakerTransition(ctx context.Context, breaker, from, to string)

	// RecordAdmission records a rate limit decision and its reason.
	RecordAdmission(ctx context.Context, decision, reason string)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	meter         metric.Meter
	callTotal     metric.Int64Counter
	callErrors    metric.Int64Counter
	callDuration  metric.Float64Histogram
	retryAttempts metric.Int64Counter
	breakerTrans  metric.Int64Counter
	admissions    metric.Int64Counter
}

// newMetrics creates a new Metrics instance with the given meter.
func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	callTotal, err := meter.Int64Counter(
		"upstream.call.total",
		metric.WithDescription("Total number of upstream calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	callErrors, err := meter.Int64Counter(
		"upstream.call.errors",
		metric.WithDescription("Total number of failed upstream calls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	callDuration, err := meter.Float64Histogram(
		"upstream.call.duration_ms",
		metric.WithDescription("Upstream call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	retryAttempts, err := meter.Int64Counter(
		"upstream.retry.attempts",
		metric.WithDescription("Total number of retry attempts against upstreams"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	breakerTrans, err := meter.Int64Counter(
		"breaker.transition.total",
		metric.WithDescription("Total number of circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	admissions, err := meter.Int64Counter(
		"admission.decision.total",
		metric.WithDescription("Total number of rate limit admission decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		meter:         meter,
		callTotal:     callTotal,
		callErrors:    callErrors,
		callDuration:  callDuration,
		retryAttempts: retryAttempts,
		breakerTrans:  breakerTrans,
		admissions:    admissions,
	}, nil
}

// MetricsFromObserver creates a Metrics backed by the observer's meter.
// Instruments are registered per name on the meter, so a Metrics built
// here shares counters with any Middleware built from the same observer.
func MetricsFromObserver(obs Observer) (Metrics, error) {
	return newMetrics(obs.Meter())
}

// callAttributes builds the common attribute set for call-scoped metrics.
func callAttributes(meta CallMeta) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("call.id", meta.CallID()),
		attribute.String("call.operation", meta.Operation),
	}
	if meta.Service != "" {
		attrs = append(attrs, attribute.String("call.service", meta.Service))
	}
	return attrs
}

// RecordCall records metrics for an upstream call.
func (m *metricsImpl) RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(callAttributes(meta)...)

	m.callTotal.Add(ctx, 1, opt)

	if err != nil {
		m.callErrors.Add(ctx, 1, opt)
	}

	durationMs := float64(duration.Milliseconds())
	m.callDuration.Record(ctx, durationMs, opt)
}

// RecordRetry records one retry attempt. The attempt ordinal starts at 1
// for the first retry after the initial call.
func (m *metricsImpl) RecordRetry(ctx context.Context, meta CallMeta, attempt int) {
	attrs := append(callAttributes(meta), attribute.Int("retry.attempt", attempt))
	m.retryAttempts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordBreakerTransition records a breaker state change.
func (m *metricsImpl) RecordBreakerTransition(ctx context.Context, breaker, from, to string) {
	m.breakerTrans.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker.name", breaker),
		attribute.String("breaker.from", from),
		attribute.String("breaker.to", to),
	))
}

// RecordAdmission records a rate limit decision.
func (m *metricsImpl) RecordAdmission(ctx context.Context, decision, reason string) {
	m.admissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("admission.decision", decision),
		attribute.String("admission.reason", reason),
	))
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

func (m *noopMetrics) RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, err error) {
}

func (m *noopMetrics) RecordRetry(ctx context.Context, meta CallMeta, attempt int) {}

func (m *noopMetrics) RecordBreakerTransition(ctx context.Context, breaker, from, to string) {}

func (m *noopMetrics) RecordAdmission(ctx context.Context, decision, reason string) {}
