// Package logging provides a kratos log.Logger that writes one JSON object
// per entry, for tools whose output is collected by a log pipeline.
package logging

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	traceKey  = "trace_id"
	spanKey   = "span_id"
	callerKey = "caller"
	labelsKey = "labels"
	errorKey  = "error"
)

// Keys written as labels rather than payload fields.
var labelFields = map[string]struct{}{
	"component": {},
	"namespace": {},
	"statement": {},
}

// Options configures the JSON logger.
type Options struct {
	Service              string
	Version              string
	Environment          string
	StaticLabels         map[string]string
	Writer               io.Writer
	EnableSourceLocation bool
}

func (o *Options) validate() error {
	if strings.TrimSpace(o.Service) == "" {
		return errors.New("logging: service is required")
	}
	if o.Version == "" {
		o.Version = "dev"
	}
	if o.Writer == nil {
		o.Writer = os.Stdout
	}
	return nil
}

// Logger implements log.Logger.
type Logger struct {
	opts Options
	mu   sync.Mutex
}

var _ log.Logger = (*Logger)(nil)

// NewLogger returns a JSON logger for opts.
func NewLogger(opts Options) (*Logger, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	labels := make(map[string]string, len(opts.StaticLabels))
	for k, v := range opts.StaticLabels {
		if k != "" {
			labels[k] = v
		}
	}
	opts.StaticLabels = labels
	return &Logger{opts: opts}, nil
}

// Log implements log.Logger. Keys that are neither well known nor labels go
// to jsonPayload.
func (l *Logger) Log(level log.Level, keyvals ...any) error {
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, nil)
	}

	entry := logEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Severity:  severityFromLevel(level),
		ServiceContext: serviceContext{
			Service:     l.opts.Service,
			Version:     l.opts.Version,
			Environment: l.opts.Environment,
		},
	}
	labels := make(map[string]string, len(l.opts.StaticLabels)+2)
	for k, v := range l.opts.StaticLabels {
		labels[k] = v
	}
	var payload map[string]any

	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		val := keyvals[i+1]
		switch key {
		case log.DefaultMessageKey:
			entry.Message = fmt.Sprint(val)
		case traceKey:
			entry.Trace, _ = val.(string)
		case spanKey:
			entry.SpanID, _ = val.(string)
		case callerKey:
			if s, _ := val.(string); s != "" {
				labels[callerKey] = s
			}
		case labelsKey:
			if m, ok := val.(map[string]string); ok {
				for lk, lv := range m {
					labels[lk] = lv
				}
			}
		default:
			if _, ok := labelFields[key]; ok {
				labels[key] = fmt.Sprint(val)
				continue
			}
			if payload == nil {
				payload = make(map[string]any)
			}
			if err, ok := val.(error); ok {
				val = err.Error()
			}
			payload[key] = val
		}
	}

	if entry.Message == "" {
		entry.Message = "<no message>"
	}
	if len(labels) > 0 {
		entry.Labels = labels
	}
	if len(payload) > 0 {
		entry.JSONPayload = payload
	}
	if l.opts.EnableSourceLocation {
		entry.SourceLocation = captureSourceLocation()
	}
	return l.write(entry)
}

func (l *Logger) write(entry logEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.opts.Writer.Write(append(data, '\n'))
	return err
}

func captureSourceLocation() *sourceLocation {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(4, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if f.File != "" && !strings.Contains(f.File, "/runtime/") && !strings.Contains(f.File, "kratos/v2/log") {
			return &sourceLocation{File: f.File, Line: f.Line, Function: f.Function}
		}
		if !more {
			return nil
		}
	}
}

func severityFromLevel(level log.Level) string {
	switch level {
	case log.LevelDebug:
		return "DEBUG"
	case log.LevelWarn:
		return "WARNING"
	case log.LevelError:
		return "ERROR"
	case log.LevelFatal:
		return "CRITICAL"
	default:
		return "INFO"
	}
}

type logEntry struct {
	Timestamp      string            `json:"timestamp"`
	Severity       string            `json:"severity"`
	Message        string            `json:"message"`
	ServiceContext serviceContext    `json:"serviceContext"`
	Trace          string            `json:"trace,omitempty"`
	SpanID         string            `json:"spanId,omitempty"`
	SourceLocation *sourceLocation   `json:"sourceLocation,omitempty"`
	Labels         map[string]string `json:"labels,omitempty"`
	JSONPayload    map[string]any    `json:"jsonPayload,omitempty"`
}

type serviceContext struct {
	Service     string `json:"service"`
	Version     string `json:"version"`
	Environment string `json:"environment,omitempty"`
}

type sourceLocation struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function,omitempty"`
}
