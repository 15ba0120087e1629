// Package observability installs the global OpenTelemetry tracer and meter
// providers that the template, transaction manager and datasource packages
// record into.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Exporter identifiers.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPgRPC = "otlp_grpc"
)

// Config selects the exporter shared by traces and metrics.
type Config struct {
	Exporter       string
	Endpoint       string
	Insecure       bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	Attributes     map[string]string
	// Interval is the metric export period.
	Interval time.Duration
	// RuntimeStats records Go runtime metrics.
	RuntimeStats bool
	// Writer receives stdout exporter output; defaults to os.Stderr.
	Writer io.Writer
}

func (c Config) sanitize() Config {
	if c.Exporter == "" {
		c.Exporter = ExporterNone
	}
	if c.Interval <= 0 {
		c.Interval = 60 * time.Second
	}
	if c.Writer == nil {
		c.Writer = os.Stderr
	}
	return c
}

// Init installs the providers for cfg and returns a shutdown that flushes
// them. The none exporter installs nothing and returns a no-op shutdown.
func Init(ctx context.Context, cfg Config, logger log.Logger) (func(context.Context) error, error) {
	if ctx == nil {
		return nil, errors.New("observability: nil context")
	}
	if logger == nil {
		return nil, errors.New("observability: logger is required")
	}
	cfg = cfg.sanitize()
	helper := log.NewHelper(logger)
	if cfg.Exporter == ExporterNone {
		return func(context.Context) error { return nil }, nil
	}

	res, err := buildResource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	spanExp, metricExp, err := newExporters(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(spanExp),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(cfg.Interval))),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		helper.Warnf("observability: exporter error: %v", err)
	}))

	if cfg.RuntimeStats {
		if err := runtime.Start(runtime.WithMeterProvider(mp)); err != nil {
			helper.Warnf("observability: runtime metrics disabled: %v", err)
		}
	}

	helper.Infof("observability: initialized exporter=%s endpoint=%s", cfg.Exporter, cfg.Endpoint)
	return func(ctx context.Context) error {
		// Spans first so their final metrics are still collected.
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

func newExporters(ctx context.Context, cfg Config) (sdktrace.SpanExporter, sdkmetric.Exporter, error) {
	switch cfg.Exporter {
	case ExporterStdout:
		spans, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Writer))
		if err != nil {
			return nil, nil, err
		}
		metrics, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Writer))
		if err != nil {
			return nil, nil, err
		}
		return spans, metrics, nil
	case ExporterOTLPgRPC:
		traceOpts := []otlptracegrpc.Option{}
		metricOpts := []otlpmetricgrpc.Option{}
		if cfg.Endpoint != "" {
			traceOpts = append(traceOpts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
			metricOpts = append(metricOpts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
			metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		}
		spans, err := otlptracegrpc.New(ctx, traceOpts...)
		if err != nil {
			return nil, nil, err
		}
		metrics, err := otlpmetricgrpc.New(ctx, metricOpts...)
		if err != nil {
			return nil, nil, errors.Join(err, spans.Shutdown(ctx))
		}
		return spans, metrics, nil
	default:
		return nil, nil, fmt.Errorf("observability: unsupported exporter %q", cfg.Exporter)
	}
}

func buildResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	var attrs []attribute.KeyValue
	if cfg.ServiceName != "" {
		attrs = append(attrs, semconv.ServiceNameKey.String(cfg.ServiceName))
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(cfg.ServiceVersion))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(cfg.Environment))
	}
	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(attrs...),
	)
}
