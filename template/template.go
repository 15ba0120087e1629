// Package template provides SessionTemplate, a goroutine-safe stand-in for an
// engine session. Each call reuses the session bound to the active unit of
// work in ctx or opens one for the call alone, and translates failures into
// dataaccess errors.
package template

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bionicotaku/lingo-sqlmapper/dataaccess"
	"github.com/bionicotaku/lingo-sqlmapper/engine"
)

// ErrManagedSession is returned by Commit, Rollback and Close: the unit of
// work boundary owns them.
var ErrManagedSession = errors.New("template: manual commit, rollback and close are not allowed on a managed session")

// SessionTemplate implements engine.Operations on top of a session factory.
type SessionTemplate struct {
	factory    engine.SessionFactory
	translator dataaccess.Translator
	clock      func() time.Time
	helper     *log.Helper
	tracer     trace.Tracer
	metrics    *telemetry
}

var _ engine.Operations = (*SessionTemplate)(nil)

// New returns a template over factory.
func New(factory engine.SessionFactory, cfg Config, deps Dependencies) (*SessionTemplate, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	cfg = cfg.sanitized()
	resolved := resolveDependencies(cfg, deps)
	helper := log.NewHelper(resolved.logger)
	return &SessionTemplate{
		factory:    factory,
		translator: resolved.translator,
		clock:      resolved.clock,
		helper:     helper,
		tracer:     resolved.tracer,
		metrics:    newTelemetry(resolved.meter, helper, *cfg.MetricsEnabled),
	}, nil
}

// SessionFactory returns the factory sessions are opened from.
func (t *SessionTemplate) SessionFactory() engine.SessionFactory { return t.factory }

// Configuration returns the factory's engine configuration.
func (t *SessionTemplate) Configuration() *engine.Configuration { return t.factory.Configuration() }

func (t *SessionTemplate) SelectOne(ctx context.Context, statement string, param any, dest any) error {
	return t.execute(ctx, "select_one", statement, func(ctx context.Context, s engine.Session) error {
		return s.SelectOne(ctx, statement, param, dest)
	})
}

func (t *SessionTemplate) SelectList(ctx context.Context, statement string, param any, dest any) error {
	return t.execute(ctx, "select_list", statement, func(ctx context.Context, s engine.Session) error {
		return s.SelectList(ctx, statement, param, dest)
	})
}

// SelectEach maps rows into dest one at a time, calling fn after each. The
// result is read in full before the first call, so it goes through the
// statement cache like SelectList. The session stays open until iteration
// ends.
func (t *SessionTemplate) SelectEach(ctx context.Context, statement string, param any, dest any, fn func() error) error {
	return t.execute(ctx, "select_each", statement, func(ctx context.Context, s engine.Session) error {
		return s.SelectEach(ctx, statement, param, dest, fn)
	})
}

func (t *SessionTemplate) Insert(ctx context.Context, statement string, param any) (n int64, err error) {
	err = t.execute(ctx, "insert", statement, func(ctx context.Context, s engine.Session) error {
		n, err = s.Insert(ctx, statement, param)
		return err
	})
	return n, err
}

func (t *SessionTemplate) Update(ctx context.Context, statement string, param any) (n int64, err error) {
	err = t.execute(ctx, "update", statement, func(ctx context.Context, s engine.Session) error {
		n, err = s.Update(ctx, statement, param)
		return err
	})
	return n, err
}

func (t *SessionTemplate) Delete(ctx context.Context, statement string, param any) (n int64, err error) {
	err = t.execute(ctx, "delete", statement, func(ctx context.Context, s engine.Session) error {
		n, err = s.Delete(ctx, statement, param)
		return err
	})
	return n, err
}

// GetMapper returns an implementation of the mapper interface mt whose calls
// run through this template.
func (t *SessionTemplate) GetMapper(mt reflect.Type) (any, error) {
	m, err := t.Configuration().GetMapper(mt, t)
	if err != nil {
		return nil, t.translator.Translate("get_mapper", err)
	}
	return m, nil
}

// Commit is rejected with ErrManagedSession.
func (t *SessionTemplate) Commit(context.Context) error { return ErrManagedSession }

// Rollback is rejected with ErrManagedSession.
func (t *SessionTemplate) Rollback(context.Context) error { return ErrManagedSession }

// Close is rejected with ErrManagedSession.
func (t *SessionTemplate) Close(context.Context) error { return ErrManagedSession }

// Mapper returns the mapper implementing T through tmpl.
func Mapper[T any](tmpl *SessionTemplate) (T, error) {
	var zero T
	mt := reflect.TypeOf((*T)(nil)).Elem()
	m, err := tmpl.GetMapper(mt)
	if err != nil {
		return zero, err
	}
	typed, ok := m.(T)
	if !ok {
		return zero, fmt.Errorf("template: binding for %s returned %T", mt, m)
	}
	return typed, nil
}

func (t *SessionTemplate) execute(ctx context.Context, op, statement string, fn func(context.Context, engine.Session) error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := t.tracer.Start(ctx, "sqlmapper.session."+op, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.statement.id", statement))

	start := t.clock()
	bound := false
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, op)
		}
		t.metrics.record(ctx, op, bound, err, t.clock().Sub(start))
	}()

	session, err := getSession(ctx, t.factory, t.helper)
	if err != nil {
		return t.translator.Translate(op, err)
	}
	bound = IsSessionTransactional(ctx, session, t.factory)
	span.SetAttributes(attribute.Bool("db.session.bound", bound), attribute.String("db.session.id", session.ID()))

	closed := false
	closeSession := func() {
		if closed {
			return
		}
		closed = true
		if closeErr := CloseSession(ctx, session, t.factory); closeErr != nil {
			t.helper.Warnf("template: close session id=%s statement=%s err=%v", session.ID(), statement, closeErr)
		}
	}
	defer closeSession()

	if err = fn(ctx, session); err != nil {
		closeSession()
		t.helper.Debugf("template: %s failed statement=%s bound=%t err=%v", op, statement, bound, err)
		return t.translator.Translate(op, err)
	}
	if !bound {
		if err = session.Commit(ctx); err != nil {
			closeSession()
			return t.translator.Translate(op, err)
		}
	}
	return nil
}
