package template

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type telemetry struct {
	enabled bool

	operations metric.Int64Counter
	duration   metric.Float64Histogram
	failures   metric.Int64Counter

	logger *log.Helper
}

func newTelemetry(meter metric.Meter, logger *log.Helper, enabled bool) *telemetry {
	t := &telemetry{enabled: enabled, logger: logger}
	if !enabled {
		return t
	}

	var err error
	t.operations, err = meter.Int64Counter("db.session.operations")
	if err != nil {
		logger.Warnf("template: create operations counter: %v", err)
	}
	t.duration, err = meter.Float64Histogram("db.session.duration", metric.WithUnit("ms"))
	if err != nil {
		logger.Warnf("template: create histogram: %v", err)
	}
	t.failures, err = meter.Int64Counter("db.session.failures")
	if err != nil {
		logger.Warnf("template: create failures counter: %v", err)
	}
	return t
}

func (t *telemetry) record(ctx context.Context, op string, bound bool, err error, elapsed time.Duration) {
	if !t.enabled {
		return
	}
	opts := metric.WithAttributes(
		attribute.String("session.op", op),
		attribute.Bool("session.bound", bound),
	)
	if t.operations != nil {
		t.operations.Add(ctx, 1, opts)
	}
	if t.duration != nil {
		t.duration.Record(ctx, float64(elapsed.Milliseconds()), opts)
	}
	if err != nil && t.failures != nil {
		t.failures.Add(ctx, 1, opts)
	}
}
