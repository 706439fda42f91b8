package observability

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"shipflow/internal/config"
	"shipflow/internal/logging"
)

const defaultExportInterval = time.Minute

// Providers are the SDK meter and tracer providers backing the global OTel API.
type Providers struct {
	Meter  *sdkmetric.MeterProvider
	Tracer *sdktrace.TracerProvider
}

// NewProviders builds SDK providers that export metrics and spans to logger.
// interval is the metric export period.
func NewProviders(cfg config.Telemetry, interval time.Duration, logger *slog.Logger) *Providers {
	if interval <= 0 {
		interval = defaultExportInterval
	}
	logger = logging.NewComponentLogger(logger, "telemetry")
	name := cfg.ServiceName
	if name == "" {
		name = instrumentationName
	}
	res := resource.NewSchemaless(attribute.String("service.name", name))

	return &Providers{
		Meter: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(logMetricExporter{logger: logger}, sdkmetric.WithInterval(interval))),
		),
		Tracer: sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(logSpanExporter{logger: logger}),
		),
	}
}

// Install makes p the global OTel providers.
func (p *Providers) Install() {
	otel.SetMeterProvider(p.Meter)
	otel.SetTracerProvider(p.Tracer)
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	return errors.Join(p.Meter.Shutdown(ctx), p.Tracer.Shutdown(ctx))
}

// Setup installs log-exporting providers when telemetry is enabled and
// returns their shutdown. The shutdown is a no-op when telemetry is off.
func Setup(cfg config.Telemetry, interval time.Duration, logger *slog.Logger) func(context.Context) error {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }
	}
	p := NewProviders(cfg, interval, logger)
	p.Install()
	return p.Shutdown
}

type logMetricExporter struct {
	logger *slog.Logger
}

func (e logMetricExporter) Temporality(kind sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(kind)
}

func (e logMetricExporter) Aggregation(kind sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(kind)
}

func (e logMetricExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			attrs := []any{logging.String("metric", m.Name)}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				attrs = append(attrs, logging.Int64("sum", total), logging.Int("series", len(data.DataPoints)))
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					q, _ := dp.Attributes.Value("queue")
					state, _ := dp.Attributes.Value("state")
					attrs = append(attrs, logging.Int64(q.AsString()+"."+state.AsString(), dp.Value))
				}
			case metricdata.Histogram[float64]:
				var (
					count uint64
					sum   float64
				)
				for _, dp := range data.DataPoints {
					count += dp.Count
					sum += dp.Sum
				}
				attrs = append(attrs, logging.Uint64("count", count), logging.Float64("sum", sum))
			}
			e.logger.InfoContext(ctx, "metric", attrs...)
		}
	}
	return nil
}

func (e logMetricExporter) ForceFlush(context.Context) error { return nil }
func (e logMetricExporter) Shutdown(context.Context) error   { return nil }

type logSpanExporter struct {
	logger *slog.Logger
}

func (e logSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		e.logger.DebugContext(ctx, "span",
			logging.String("span", span.Name()),
			logging.String("trace_id", span.SpanContext().TraceID().String()),
			logging.Duration("duration", span.EndTime().Sub(span.StartTime())),
			logging.String("status", span.Status().Code.String()),
		)
	}
	return nil
}

func (e logSpanExporter) Shutdown(context.Context) error { return nil }
