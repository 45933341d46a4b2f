package observe

import (
	"context"
	"time"
)

// AttemptFunc performs an authentication attempt and reports its outcome kind.
type AttemptFunc func(ctx context.Context) (outcome string, err error)

// Instrumentation wraps attempts with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: errors from the wrapped function are recorded and returned unchanged.
type Instrumentation struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewInstrumentation combines the given primitives. nil arguments become no-ops.
func NewInstrumentation(tracer Tracer, metrics Metrics, logger Logger) *Instrumentation {
	if tracer == nil {
		tracer = NopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Instrumentation{tracer: tracer, metrics: metrics, logger: logger}
}

// NopInstrumentation records nothing.
func NopInstrumentation() *Instrumentation {
	return NewInstrumentation(nil, nil, nil)
}

// Logger returns the logger used for attempt entries.
func (i *Instrumentation) Logger() Logger {
	return i.logger
}

// Run executes fn inside a span and records metrics and a log entry.
func (i *Instrumentation) Run(ctx context.Context, a Attempt, fn AttemptFunc) error {
	ctx, span := i.tracer.StartSpan(ctx, a)
	start := time.Now()

	outcome, err := fn(ctx)

	duration := time.Since(start)
	i.tracer.EndSpan(span, outcome, err)
	i.metrics.RecordAttempt(ctx, a, outcome, duration, err)

	fields := append(a.fields(),
		Field{Key: "auth.outcome", Value: outcome},
		Field{Key: "duration_ms", Value: float64(duration.Microseconds()) / 1000},
	)
	if err != nil {
		fields = append(fields, Field{Key: "error", Value: err})
		i.logger.Error(ctx, "authentication attempt failed", fields...)
	} else {
		i.logger.Debug(ctx, "authentication attempt completed", fields...)
	}
	return err
}

// FromObserver builds Instrumentation from an Observer's tracer, meter and logger.
func FromObserver(obs Observer) (*Instrumentation, error) {
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewInstrumentation(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}
