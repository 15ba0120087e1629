package datasource

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type poolTelemetry struct {
	helper        *log.Helper
	acquire       metric.Float64Histogram
	acquireFail   metric.Int64Counter
	healthLatency metric.Float64Histogram
	healthFail    metric.Int64Counter
	registration  metric.Registration
	enabled       bool
}

func newPoolTelemetry(meter metric.Meter, helper *log.Helper, pool *pgxpool.Pool) *poolTelemetry {
	t := &poolTelemetry{helper: helper}
	if meter == nil || helper == nil || pool == nil {
		return t
	}

	var err error
	t.acquire, err = meter.Float64Histogram("db.datasource.acquire_duration", metric.WithUnit("ms"))
	if err != nil {
		helper.Warnf("datasource: acquire histogram error: %v", err)
	}
	t.acquireFail, err = meter.Int64Counter("db.datasource.acquire_failures")
	if err != nil {
		helper.Warnf("datasource: acquire failure counter error: %v", err)
	}
	t.healthLatency, err = meter.Float64Histogram("db.datasource.health_check.duration", metric.WithUnit("ms"))
	if err != nil {
		helper.Warnf("datasource: health check histogram error: %v", err)
	}
	t.healthFail, err = meter.Int64Counter("db.datasource.health_check.failures")
	if err != nil {
		helper.Warnf("datasource: health check counter error: %v", err)
	}

	connections, err := meter.Int64ObservableGauge("db.datasource.connections")
	if err != nil {
		helper.Warnf("datasource: connections gauge error: %v", err)
	} else {
		reg, regErr := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
			stats := pool.Stat()
			observer.ObserveInt64(connections, int64(stats.AcquiredConns()), metric.WithAttributes(attribute.String("state", "active")))
			observer.ObserveInt64(connections, int64(stats.IdleConns()), metric.WithAttributes(attribute.String("state", "idle")))
			observer.ObserveInt64(connections, int64(stats.TotalConns()), metric.WithAttributes(attribute.String("state", "total")))
			return nil
		}, connections)
		if regErr != nil {
			helper.Warnf("datasource: register connections callback: %v", regErr)
		} else {
			t.registration = reg
		}
	}

	t.enabled = true
	return t
}

func (t *poolTelemetry) recordAcquire(ctx context.Context, elapsed time.Duration) {
	if t == nil || !t.enabled || t.acquire == nil {
		return
	}
	t.acquire.Record(ctx, float64(elapsed.Milliseconds()))
}

func (t *poolTelemetry) recordAcquireFailure(ctx context.Context) {
	if t == nil || !t.enabled || t.acquireFail == nil {
		return
	}
	t.acquireFail.Add(ctx, 1)
}

func (t *poolTelemetry) recordHealthCheck(ctx context.Context, elapsed time.Duration, err error) {
	if t == nil || !t.enabled {
		return
	}
	if t.healthLatency != nil {
		t.healthLatency.Record(ctx, float64(elapsed.Milliseconds()))
	}
	if err != nil && t.healthFail != nil {
		t.healthFail.Add(ctx, 1)
	}
}

func (t *poolTelemetry) shutdown() {
	if t == nil || !t.enabled || t.registration == nil {
		return
	}
	if err := t.registration.Unregister(); err != nil {
		t.helper.Warnf("datasource: unregister connections callback: %v", err)
	}
}
