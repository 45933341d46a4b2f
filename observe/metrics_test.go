package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newManualMetrics(t *testing.T) (Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
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
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected Sum[int64], got %T", m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_CountsAttempts(t *testing.T) {
	m, reader := newManualMetrics(t)
	ctx := context.Background()
	a := Attempt{Op: OpAuthenticate, Strategy: "local"}

	m.RecordAttempt(ctx, a, "authenticated", 5*time.Millisecond, nil)
	m.RecordAttempt(ctx, a, "failed", 3*time.Millisecond, nil)

	rm := collect(t, reader)
	total := findMetric(rm, MetricAttemptsTotal)
	if total == nil {
		t.Fatalf("%s not found", MetricAttemptsTotal)
	}
	if got := sumValue(t, total); got != 2 {
		t.Errorf("total = %d, want 2", got)
	}
	sum := total.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 2 {
		t.Errorf("expected one data point per outcome, got %d", len(sum.DataPoints))
	}

	if errs := findMetric(rm, MetricAttemptErrors); errs != nil && sumValue(t, errs) != 0 {
		t.Errorf("errors counter incremented without an error")
	}

	hist := findMetric(rm, MetricDuration)
	if hist == nil {
		t.Fatalf("%s not found", MetricDuration)
	}
	h, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("expected Histogram[float64], got %T", hist.Data)
	}
	var count uint64
	for _, dp := range h.DataPoints {
		count += dp.Count
	}
	if count != 2 {
		t.Errorf("histogram count = %d, want 2", count)
	}
}

func TestMetrics_CountsErrors(t *testing.T) {
	m, reader := newManualMetrics(t)

	m.RecordAttempt(context.Background(), Attempt{Op: OpIsAuthenticated}, "", time.Millisecond, errors.New("store down"))

	errs := findMetric(collect(t, reader), MetricAttemptErrors)
	if errs == nil {
		t.Fatalf("%s not found", MetricAttemptErrors)
	}
	if got := sumValue(t, errs); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
}

func TestNopMetrics_NoPanic(t *testing.T) {
	NopMetrics().RecordAttempt(context.Background(), Attempt{Op: OpLogout}, "redirect", 0, nil)
}
