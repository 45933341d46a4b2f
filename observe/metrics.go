package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names.
const (
	MetricAttemptsTotal = "auth.attempts.total"
	MetricAttemptErrors = "auth.attempts.errors"
	MetricDuration      = "auth.attempts.duration_ms"
)

// Metrics records authentication attempt metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	RecordAttempt(ctx context.Context, a Attempt, outcome string, duration time.Duration, err error)
}

type otelMetrics struct {
	total    metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
}

// NewMetrics creates the attempt instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	total, err := meter.Int64Counter(
		MetricAttemptsTotal,
		metric.WithDescription("Authentication attempts by operation, strategy and outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	errs, err := meter.Int64Counter(
		MetricAttemptErrors,
		metric.WithDescription("Authentication attempts that ended in an internal error"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		MetricDuration,
		metric.WithDescription("Authentication attempt duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{total: total, errors: errs, duration: duration}, nil
}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics {
	return nopMetrics{}
}

func (m *otelMetrics) RecordAttempt(ctx context.Context, a Attempt, outcome string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("auth.op", a.Op),
		attribute.String("auth.outcome", outcome),
	}
	if a.Strategy != "" {
		attrs = append(attrs, attribute.String("auth.strategy", a.Strategy))
	}
	opt := metric.WithAttributes(attrs...)

	m.total.Add(ctx, 1, opt)
	if err != nil {
		m.errors.Add(ctx, 1, opt)
	}
	m.duration.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

type nopMetrics struct{}

func (nopMetrics) RecordAttempt(context.Context, Attempt, string, time.Duration, error) {}
