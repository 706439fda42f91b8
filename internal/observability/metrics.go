package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "shipflow"

// Handler outcomes recorded on shipflow.handler.runs.
const (
	OutcomeAcked    = "acked"
	OutcomeRetried  = "retried"
	OutcomeDead     = "dead"
	OutcomeReleased = "released"
	OutcomeSkipped  = "skipped"
)

// Recorder records engine and dispatcher metrics.
// Use NewRecorder for OTel metrics or NoopRecorder when telemetry is disabled.
type Recorder interface {
	RecordTick(ctx context.Context, selected, transitioned, failed int, duration time.Duration)
	RecordTransition(ctx context.Context, toPhase string, discarded bool)
	RecordHandler(ctx context.Context, queue, reason, outcome string, duration time.Duration)
	RecordQueueDepth(ctx context.Context, queue string, pending, leased, dead int)
}

type otelMetrics struct {
	ticks          metric.Int64Counter
	tickLatency    metric.Float64Histogram
	tickFailures   metric.Int64Counter
	transitions    metric.Int64Counter
	handlerRuns    metric.Int64Counter
	handlerLatency metric.Float64Histogram
	queueDepth     metric.Int64Gauge
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter(instrumentationName)

	ticks, err := meter.Int64Counter("shipflow.engine.ticks",
		metric.WithDescription("Number of engine ticks"),
	)
	if err != nil {
		return nil, err
	}
	tickLatency, err := meter.Float64Histogram("shipflow.engine.tick_latency_ms",
		metric.WithDescription("Engine tick latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	tickFailures, err := meter.Int64Counter("shipflow.engine.evaluation_failures",
		metric.WithDescription("Shipments whose evaluation failed during a tick"),
	)
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter("shipflow.engine.transitions",
		metric.WithDescription("Phase transitions written or discarded"),
	)
	if err != nil {
		return nil, err
	}
	handlerRuns, err := meter.Int64Counter("shipflow.handler.runs",
		metric.WithDescription("Side-effect handler runs by outcome"),
	)
	if err != nil {
		return nil, err
	}
	handlerLatency, err := meter.Float64Histogram("shipflow.handler.latency_ms",
		metric.WithDescription("Side-effect handler latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	queueDepth, err := meter.Int64Gauge("shipflow.queue.entries",
		metric.WithDescription("Queue entries by state"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		ticks:          ticks,
		tickLatency:    tickLatency,
		tickFailures:   tickFailures,
		transitions:    transitions,
		handlerRuns:    handlerRuns,
		handlerLatency: handlerLatency,
		queueDepth:     queueDepth,
	}, nil
}

// NewRecorder returns an OpenTelemetry recorder bound to the global meter
// provider when enabled, and NoopRecorder otherwise or on init failure.
func NewRecorder(enabled bool, logger *slog.Logger) Recorder {
	if !enabled {
		return NoopRecorder{}
	}
	m, err := newOtelMetrics()
	if err != nil {
		if logger != nil {
			logger.Warn("metrics initialization failed, using no-op recorder",
				slog.String("error", err.Error()))
		}
		return NoopRecorder{}
	}
	return m
}

func (m *otelMetrics) RecordTick(ctx context.Context, selected, transitioned, failed int, duration time.Duration) {
	m.ticks.Add(ctx, 1, metric.WithAttributes(attribute.Bool("idle", selected == 0)))
	m.tickLatency.Record(ctx, float64(duration.Milliseconds()))
	if failed > 0 {
		m.tickFailures.Add(ctx, int64(failed))
	}
}

func (m *otelMetrics) RecordTransition(ctx context.Context, toPhase string, discarded bool) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("phase", toPhase),
		attribute.Bool("discarded", discarded),
	))
}

func (m *otelMetrics) RecordHandler(ctx context.Context, queue, reason, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("queue", queue),
		attribute.String("reason", reason),
		attribute.String("outcome", outcome),
	)
	m.handlerRuns.Add(ctx, 1, attrs)
	m.handlerLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (m *otelMetrics) RecordQueueDepth(ctx context.Context, queue string, pending, leased, dead int) {
	for state, n := range map[string]int{"pending": pending, "leased": leased, "dead": dead} {
		m.queueDepth.Record(ctx, int64(n), metric.WithAttributes(
			attribute.String("queue", queue),
			attribute.String("state", state),
		))
	}
}
