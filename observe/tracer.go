package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing with authentication span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a span for an authentication attempt.
	StartSpan(ctx context.Context, a Attempt) (context.Context, trace.Span)

	// EndSpan records the outcome kind and error, then ends the span.
	EndSpan(span trace.Span, outcome string, err error)
}

type otelTracer struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &otelTracer{tracer: t}
}

// NopTracer returns a tracer whose spans are never recorded.
func NopTracer() Tracer {
	return NewTracer(tracenoop.NewTracerProvider().Tracer("noop"))
}

func (t *otelTracer) StartSpan(ctx context.Context, a Attempt) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("auth.op", a.Op),
	}
	if a.Strategy != "" {
		attrs = append(attrs, attribute.String("auth.strategy", a.Strategy))
	}

	return t.tracer.Start(ctx, a.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpan marks internal errors as span errors. Failed authentications are
// an expected outcome and only show up in the auth.outcome attribute.
func (t *otelTracer) EndSpan(span trace.Span, outcome string, err error) {
	if outcome != "" {
		span.SetAttributes(attribute.String("auth.outcome", outcome))
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
