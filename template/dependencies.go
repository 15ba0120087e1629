package template

import (
	"io"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/bionicotaku/lingo-sqlmapper/dataaccess"
)

// Dependencies collects optional collaborators of the template. Zero values
// fall back to discard logging, global otel providers and PgTranslator.
type Dependencies struct {
	Logger     log.Logger
	Meter      metric.Meter
	Tracer     trace.Tracer
	Clock      func() time.Time
	Translator dataaccess.Translator
}

type resolvedDependencies struct {
	logger     log.Logger
	meter      metric.Meter
	tracer     trace.Tracer
	clock      func() time.Time
	translator dataaccess.Translator
}

func resolveDependencies(cfg Config, deps Dependencies) resolvedDependencies {
	logger := deps.Logger
	if logger == nil {
		logger = log.NewStdLogger(io.Discard)
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(cfg.MeterName)
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(cfg.MeterName)
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	translator := deps.Translator
	if translator == nil {
		translator = dataaccess.PgTranslator{}
	}

	return resolvedDependencies{
		logger:     logger,
		meter:      meter,
		tracer:     tracer,
		clock:      clock,
		translator: translator,
	}
}
