package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer starts engine and handler spans.
// Use NewTracer for OTel tracing or NoopTracer when telemetry is disabled.
type Tracer interface {
	StartEvaluation(ctx context.Context, shipmentID string) (context.Context, trace.Span)
	StartHandler(ctx context.Context, queue, reason, shipmentID string, attempt int) (context.Context, trace.Span)
}

type otelTracer struct {
	tracer trace.Tracer
}

// NewTracer binds to the global tracer provider when enabled.
func NewTracer(enabled bool) Tracer {
	if !enabled {
		return NoopTracer{}
	}
	return otelTracer{tracer: otel.Tracer(instrumentationName)}
}

func (t otelTracer) StartEvaluation(ctx context.Context, shipmentID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "shipflow.evaluate",
		trace.WithAttributes(attribute.String("shipment.id", shipmentID)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t otelTracer) StartHandler(ctx context.Context, queue, reason, shipmentID string, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "shipflow.handler."+reason,
		trace.WithAttributes(
			attribute.String("queue.name", queue),
			attribute.String("reason", reason),
			attribute.String("shipment.id", shipmentID),
			attribute.Int("attempt", attempt),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
}

// EndSpan completes span, recording err when present.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// NoopTracer returns the context unchanged and a no-op span.
type NoopTracer struct{}

var noopSpan = noop.Span{}

func (NoopTracer) StartEvaluation(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

func (NoopTracer) StartHandler(ctx context.Context, _, _, _ string, _ int) (context.Context, trace.Span) {
	return ctx, noopSpan
}
