package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// CallMeta identifies an upstream call for telemetry purposes.
type CallMeta struct {
	ID        string   // Fully qualified call ID (service.operation or just operation)
	Service   string   // Upstream service, e.g. "acquirer" (may be empty)
	Operation string   // Operation name, e.g. "authorize" (required)
	Endpoint  string   // Target URL or host (optional)
	Version   string   // Upstream API version (optional)
	Tags      []string // Free-form labels (optional)
}

// SpanName returns the deterministic span name for this call.
// Format: upstream.call.<service>.<operation> or upstream.call.<operation>
func (m CallMeta) SpanName() string {
	if m.Service != "" {
		return "upstream.call." + m.Service + "." + m.Operation
	}
	return "upstream.call." + m.Operation
}

// CallID returns the fully qualified call identifier.
// If ID field is set, returns it. Otherwise constructs from service and operation.
func (m CallMeta) CallID() string {
	if m.ID != "" {
		return m.ID
	}
	if m.Service != "" {
		return m.Service + "." + m.Operation
	}
	return m.Operation
}

// Validate checks that required metadata is present.
func (m CallMeta) Validate() error {
	if m.Operation == "" {
		return ErrMissingOperation
	}
	return nil
}

// Tracer wraps OpenTelemetry tracing with call-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: StartSpan must honor cancellation/deadlines and return ctx.Err() when canceled.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for an upstream call.
	StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

// tracerImpl is the concrete implementation of Tracer.
type tracerImpl struct {
	tracer trace.Tracer
}

// newTracer creates a new Tracer wrapping the given OpenTelemetry tracer.
func newTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts a new span with call metadata as attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span) {
	spanName := meta.SpanName()

	attrs := []attribute.KeyValue{
		attribute.String("call.id", meta.CallID()),
		attribute.String("call.operation", meta.Operation),
		attribute.Bool("call.error", false), // Updated in EndSpan if error
	}

	if meta.Service != "" {
		attrs = append(attrs, attribute.String("call.service", meta.Service))
	}
	if meta.Endpoint != "" {
		attrs = append(attrs, attribute.String("call.endpoint", meta.Endpoint))
	}
	if meta.Version != "" {
		attrs = append(attrs, attribute.String("call.version", meta.Version))
	}
	if len(meta.Tags) > 0 {
		attrs = append(attrs, attribute.StringSlice("call.tags", meta.Tags))
	}

	ctx, span := t.tracer.Start(ctx, spanName,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)

	return ctx, span
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("call.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// noopTracer is a tracer that does nothing.
type noopTracer struct {
	noop trace.Tracer
}

// newNoopTracer creates a no-op tracer.
func newNoopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
