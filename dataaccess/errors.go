// Package dataaccess is the driver independent failure hierarchy that session
// template callers see. Engine and pgx errors are translated into *Error with
// a Kind that callers branch on instead of SQLSTATE codes.
package dataaccess

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bionicotaku/lingo-sqlmapper/engine"
)

// Kind categorises a data access failure.
type Kind int

const (
	KindUncategorized Kind = iota
	KindDataIntegrity
	KindDuplicateKey
	KindTransient
	KindBadGrammar
	KindPermissionDenied
	KindQueryTimeout
	KindIncorrectResultSize
	KindResourceFailure
	KindInvalidUsage
)

func (k Kind) String() string {
	switch k {
	case KindDataIntegrity:
		return "data_integrity"
	case KindDuplicateKey:
		return "duplicate_key"
	case KindTransient:
		return "transient"
	case KindBadGrammar:
		return "bad_grammar"
	case KindPermissionDenied:
		return "permission_denied"
	case KindQueryTimeout:
		return "query_timeout"
	case KindIncorrectResultSize:
		return "incorrect_result_size"
	case KindResourceFailure:
		return "resource_failure"
	case KindInvalidUsage:
		return "invalid_usage"
	default:
		return "uncategorized"
	}
}

// Error is a translated data access failure carrying the original cause.
type Error struct {
	Kind     Kind
	Op       string
	SQLState string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("dataaccess: ")
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(" op=")
		b.WriteString(e.Op)
	}
	if e.SQLState != "" {
		b.WriteString(" sqlstate=")
		b.WriteString(e.SQLState)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Translator converts a failure raised while running op into the data access
// hierarchy. It returns nil for a nil error.
type Translator interface {
	Translate(op string, err error) error
}

// PgTranslator classifies pgx, pgconn and engine errors.
type PgTranslator struct{}

// Translate implements Translator. Errors already translated pass through.
func (PgTranslator) Translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	kind, state := classify(err)
	return &Error{Kind: kind, Op: op, SQLState: state, Err: err}
}

func classify(err error) (Kind, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		state := pgErr.SQLState()
		return classifySQLState(state), state
	}
	var connErr *pgconn.ConnectError
	switch {
	case errors.As(err, &connErr):
		return KindResourceFailure, ""
	case pgconn.Timeout(err), errors.Is(err, context.DeadlineExceeded):
		return KindQueryTimeout, ""
	case errors.Is(err, engine.ErrTooManyResults):
		return KindIncorrectResultSize, ""
	case errors.Is(err, engine.ErrStatementNotFound),
		errors.Is(err, engine.ErrMapperUnknown),
		errors.Is(err, engine.ErrParameterNotFound),
		errors.Is(err, engine.ErrSessionClosed),
		errors.Is(err, engine.ErrNoEnvironment):
		return KindInvalidUsage, ""
	}
	var cfgErr *engine.ConfigError
	if errors.As(err, &cfgErr) {
		return KindInvalidUsage, ""
	}
	return KindUncategorized, ""
}

func classifySQLState(state string) Kind {
	switch state {
	case "23505": // unique_violation
		return KindDuplicateKey
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03": // lock_not_available
		return KindTransient
	case "42501": // insufficient_privilege
		return KindPermissionDenied
	case "57014": // query_canceled
		return KindQueryTimeout
	}
	switch {
	case strings.HasPrefix(state, "23"):
		return KindDataIntegrity
	case strings.HasPrefix(state, "42"):
		return KindBadGrammar
	case strings.HasPrefix(state, "08"), strings.HasPrefix(state, "53"):
		return KindResourceFailure
	}
	return KindUncategorized
}

// KindOf returns the kind of a translated error, or KindUncategorized.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUncategorized
}

// IsRetryable reports whether err is a transient failure worth retrying
// (serialization failure, deadlock, lock timeout).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == KindTransient
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr.SQLState()) == KindTransient
	}
	return false
}

// Wrap is a convenience for ad hoc translation with the default translator.
func Wrap(op string, err error) error {
	return PgTranslator{}.Translate(op, err)
}
