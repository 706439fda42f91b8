package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setupMetricsTest(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	original := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(original)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown meter provider: %v", err)
		}
	})
	return reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumValue(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	require.NotNil(t, m)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum[int64], got %T", m.Data)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestNewRecorder_Disabled(t *testing.T) {
	_, isNoop := NewRecorder(false, nil).(NoopRecorder)
	assert.True(t, isNoop)
}

func TestNewRecorder_Enabled(t *testing.T) {
	setupMetricsTest(t)
	_, isNoop := NewRecorder(true, nil).(NoopRecorder)
	assert.False(t, isNoop)
}

func TestRecordTick(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordTick(ctx, 5, 2, 1, 40*time.Millisecond)
	m.RecordTick(ctx, 0, 0, 0, time.Millisecond)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(2), sumValue(t, findMetric(rm, "shipflow.engine.ticks")))
	assert.Equal(t, int64(1), sumValue(t, findMetric(rm, "shipflow.engine.evaluation_failures")))

	latency := findMetric(rm, "shipflow.engine.tick_latency_ms")
	require.NotNil(t, latency)
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
}

func TestRecordHandler_Attributes(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordHandler(ctx, "events", "packaging", OutcomeAcked, 3*time.Millisecond)
	m.RecordHandler(ctx, "events", "packaging", OutcomeRetried, 3*time.Millisecond)
	m.RecordHandler(ctx, "events", "packaging", OutcomeAcked, 3*time.Millisecond)

	rm := collectMetrics(t, reader)
	runs := findMetric(rm, "shipflow.handler.runs")
	require.NotNil(t, runs)
	sum := runs.Data.(metricdata.Sum[int64])

	byOutcome := map[string]int64{}
	for _, dp := range sum.DataPoints {
		outcome, ok := dp.Attributes.Value(attribute.Key("outcome"))
		require.True(t, ok)
		byOutcome[outcome.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{OutcomeAcked: 2, OutcomeRetried: 1}, byOutcome)
}

func TestRecordQueueDepth(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	m.RecordQueueDepth(context.Background(), "hydration", 3, 1, 0)

	rm := collectMetrics(t, reader)
	depth := findMetric(rm, "shipflow.queue.entries")
	require.NotNil(t, depth)
	gauge, ok := depth.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	assert.Len(t, gauge.DataPoints, 3)
}

func TestNoopRecorder_DoesNotPanic(t *testing.T) {
	var r Recorder = NoopRecorder{}
	ctx := context.Background()
	assert.NotPanics(t, func() {
		r.RecordTick(ctx, 1, 1, 0, time.Millisecond)
		r.RecordTransition(ctx, "ready_to_pick", false)
		r.RecordHandler(ctx, "events", "session", OutcomeDead, 0)
		r.RecordQueueDepth(ctx, "events", 0, 0, 0)
	})
}
