package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestCallMeta_SpanNameWithService verifies span name includes the service.
func TestCallMeta_SpanNameWithService(t *testing.T) {
	meta := CallMeta{
		Service:   "acquirer",
		Operation: "authorize",
	}

	expected := "upstream.call.acquirer.authorize"
	if got := meta.SpanName(); got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}

// TestCallMeta_SpanNameWithoutService verifies span name without a service.
func TestCallMeta_SpanNameWithoutService(t *testing.T) {
	meta := CallMeta{
		Service:   "",
		Operation: "capture",
	}

	expected := "upstream.call.capture"
	if got := meta.SpanName(); got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}

// TestCallMeta_ID verifies ID generation with and without service.
func TestCallMeta_ID(t *testing.T) {
	tests := []struct {
		name     string
		meta     CallMeta
		expected string
	}{
		{
			name:     "with service",
			meta:     CallMeta{Service: "acquirer", Operation: "authorize"},
			expected: "acquirer.authorize",
		},
		{
			name:     "without service",
			meta:     CallMeta{Service: "", Operation: "capture"},
			expected: "capture",
		},
		{
			name:     "explicit ID wins",
			meta:     CallMeta{ID: "custom:id", Service: "acquirer", Operation: "authorize"},
			expected: "custom:id",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.meta.CallID(); got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

// TestCallMeta_Validate verifies the operation is required.
func TestCallMeta_Validate(t *testing.T) {
	valid := CallMeta{Service: "acquirer", Operation: "authorize"}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected nil error, got: %v", err)
	}

	missing := CallMeta{Service: "acquirer"}
	if err := missing.Validate(); !errors.Is(err, ErrMissingOperation) {
		t.Errorf("expected ErrMissingOperation, got: %v", err)
	}
}

// TestTracer_SpanAttributes verifies all attributes are present on span.
func TestTracer_SpanAttributes(t *testing.T) {
	// Set up in-memory span recorder
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("test")

	tr := &tracerImpl{tracer: tracer}
	meta := CallMeta{
		ID:        "acquirer.authorize",
		Service:   "acquirer",
		Operation: "authorize",
		Endpoint:  "https://api.acquirer.example/v1",
		Version:   "2024-06",
		Tags:      []string{"cards", "eu"},
	}

	ctx, span := tr.StartSpan(context.Background(), meta)
	tr.EndSpan(span, nil)
	_ = ctx // Suppress unused warning

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	s := spans[0]

	// Verify span name
	if s.Name() != "upstream.call.acquirer.authorize" {
		t.Errorf("expected span name 'upstream.call.acquirer.authorize', got %q", s.Name())
	}

	// Verify attributes
	attrs := s.Attributes()
	attrMap := make(map[string]attribute.Value)
	for _, a := range attrs {
		attrMap[string(a.Key)] = a.Value
	}

	// Required attributes
	if v, ok := attrMap["call.id"]; !ok || v.AsString() != "acquirer.authorize" {
		t.Errorf("expected call.id='acquirer.authorize', got %v", v)
	}
	if v, ok := attrMap["call.service"]; !ok || v.AsString() != "acquirer" {
		t.Errorf("expected call.service='acquirer', got %v", v)
	}
	if v, ok := attrMap["call.operation"]; !ok || v.AsString() != "authorize" {
		t.Errorf("expected call.operation='authorize', got %v", v)
	}
	if v, ok := attrMap["call.error"]; !ok || v.AsBool() != false {
		t.Errorf("expected call.error=false, got %v", v)
	}

	// Optional attributes
	if v, ok := attrMap["call.endpoint"]; !ok || v.AsString() != "https://api.acquirer.example/v1" {
		t.Errorf("expected call.endpoint='https://api.acquirer.example/v1', got %v", v)
	}
	if v, ok := attrMap["call.version"]; !ok || v.AsString() != "2024-06" {
		t.Errorf("expected call.version='2024-06', got %v", v)
	}
}

// TestTracer_SpanAttributesMinimal verifies only required attributes when minimal meta.
func TestTracer_SpanAttributesMinimal(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("test")

	tr := &tracerImpl{tracer: tracer}
	meta := CallMeta{
		Operation: "capture",
	}

	ctx, span := tr.StartSpan(context.Background(), meta)
	tr.EndSpan(span, nil)
	_ = ctx

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	s := spans[0]
	attrs := s.Attributes()
	attrMap := make(map[string]attribute.Value)
	for _, a := range attrs {
		attrMap[string(a.Key)] = a.Value
	}

	// Required attributes should be present
	if _, ok := attrMap["call.id"]; !ok {
		t.Error("expected call.id attribute")
	}
	if _, ok := attrMap["call.operation"]; !ok {
		t.Error("expected call.operation attribute")
	}
	if _, ok := attrMap["call.error"]; !ok {
		t.Error("expected call.error attribute")
	}

	// Optional attributes should NOT be present when empty
	if v, ok := attrMap["call.service"]; ok && v.AsString() != "" {
		t.Errorf("expected no call.service, got %v", v)
	}
	if v, ok := attrMap["call.endpoint"]; ok && v.AsString() != "" {
		t.Errorf("expected no call.endpoint, got %v", v)
	}
	if v, ok := attrMap["call.version"]; ok && v.AsString() != "" {
		t.Errorf("expected no call.version, got %v", v)
	}
}

// TestTracer_ContextPropagation verifies parent span is propagated.
func TestTracer_ContextPropagation(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("test")

	tr := &tracerImpl{tracer: tracer}
	meta := CallMeta{Operation: "refund"}

	// Create parent span
	parentCtx, parentSpan := tracer.Start(context.Background(), "parent")

	// Create child span through our tracer
	childCtx, childSpan := tr.StartSpan(parentCtx, meta)
	tr.EndSpan(childSpan, nil)
	parentSpan.End()
	_ = childCtx

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}

	// Find the child span (the one with upstream.call prefix)
	var child sdktrace.ReadOnlySpan
	for _, s := range spans {
		if s.Name() == "upstream.call.refund" {
			child = s
			break
		}
	}
	if child == nil {
		t.Fatal("child span not found")
	}

	// Verify parent-child relationship
	if child.Parent().TraceID() != parentSpan.SpanContext().TraceID() {
		t.Error("child span should have same trace ID as parent")
	}
	if !child.Parent().SpanID().IsValid() {
		t.Error("child span should have valid parent span ID")
	}
}

// TestTracer_ErrorRecording verifies error sets span status and attribute.
func TestTracer_ErrorRecording(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("test")

	tr := &tracerImpl{tracer: tracer}
	meta := CallMeta{Operation: "authorize"}

	ctx, span := tr.StartSpan(context.Background(), meta)
	testErr := errors.New("upstream timeout")
	tr.EndSpan(span, testErr)
	_ = ctx

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	s := spans[0]

	// Verify error status
	if s.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", s.Status().Code)
	}

	// Verify call.error attribute
	attrs := s.Attributes()
	var callError bool
	for _, a := range attrs {
		if string(a.Key) == "call.error" {
			callError = a.Value.AsBool()
			break
		}
	}
	if !callError {
		t.Error("expected call.error=true")
	}
}
