package logging

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"go.opentelemetry.io/otel/trace"
)

// Formats accepted by Config.Format.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config selects the log format and the metadata attached to JSON entries.
type Config struct {
	Format      string
	Service     string
	Version     string
	Environment string
	Writer      io.Writer
}

// Component bundles the configured logger.
type Component struct {
	Logger log.Logger
}

// NewComponent builds a text logger (kratos std logger with timestamp and
// caller) or a JSON logger carrying the trace and span of the logging
// context.
func NewComponent(cfg Config) (*Component, func(), error) {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	var logger log.Logger
	switch cfg.Format {
	case "", FormatText:
		logger = log.With(log.NewStdLogger(w),
			"ts", log.DefaultTimestamp,
			"caller", log.DefaultCaller,
		)
	case FormatJSON:
		base, err := NewLogger(Options{
			Service:     cfg.Service,
			Version:     cfg.Version,
			Environment: cfg.Environment,
			Writer:      w,
		})
		if err != nil {
			return nil, nil, err
		}
		logger = log.With(base,
			"caller", log.DefaultCaller,
			traceKey, log.Valuer(func(ctx context.Context) any {
				if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
					return sc.TraceID().String()
				}
				return ""
			}),
			spanKey, log.Valuer(func(ctx context.Context) any {
				if sc := trace.SpanContextFromContext(ctx); sc.HasSpanID() {
					return sc.SpanID().String()
				}
				return ""
			}),
		)
	default:
		return nil, nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}
	return &Component{Logger: logger}, func() {}, nil
}

// ProvideLogger exposes the logger for injection.
func ProvideLogger(comp *Component) log.Logger { return comp.Logger }

// ProviderSet wires the logging component.
var ProviderSet = wire.NewSet(NewComponent, ProvideLogger)
