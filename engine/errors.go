package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStatementNotFound = errors.New("engine: mapped statement not found")
	ErrTooManyResults    = errors.New("engine: expected one result but found more")
	ErrNoEnvironment     = errors.New("engine: environment is not configured")
	ErrMapperKnown       = errors.New("engine: mapper already known to the mapper registry")
	ErrMapperUnknown     = errors.New("engine: mapper not known to the mapper registry")
	ErrIncomplete        = errors.New("engine: incomplete mapped statements")
	ErrSessionClosed     = errors.New("engine: session closed")
	ErrParameterNotFound = errors.New("engine: parameter not found")
)

// ConfigError reports an invalid configuration or property.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return "engine: configuration: " + e.Msg
	}
	return fmt.Sprintf("engine: configuration: %s: %v", e.Msg, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError builds a ConfigError with a formatted message.
func NewConfigError(err error, format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// ResourceError reports a config or mapper resource that could not be read or
// parsed. Resource names the offending location.
type ResourceError struct {
	Resource string
	Msg      string
	Err      error
}

func (e *ResourceError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = "failed to parse resource"
	}
	if e.Err == nil {
		return fmt.Sprintf("engine: %s: '%s'", msg, e.Resource)
	}
	return fmt.Sprintf("engine: %s: '%s': %v", msg, e.Resource, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// IncompleteError lists statements whose fragments or cache references never
// resolved.
type IncompleteError struct {
	Statements []string
	Reasons    []string
}

func (e *IncompleteError) Error() string {
	parts := make([]string, len(e.Statements))
	for i, id := range e.Statements {
		parts[i] = id + " (" + e.Reasons[i] + ")"
	}
	return "engine: incomplete mapped statements: " + strings.Join(parts, ", ")
}

func (e *IncompleteError) Is(target error) bool { return target == ErrIncomplete }
