package template

import (
	"context"
	"errors"
	"io"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/bionicotaku/lingo-sqlmapper/engine"
	"github.com/bionicotaku/lingo-sqlmapper/transaction"
	"github.com/bionicotaku/lingo-sqlmapper/txsync"
)

var (
	// ErrNilFactory is returned when no session factory was supplied.
	ErrNilFactory = errors.New("template: session factory is required")
	// ErrNotManagedFactory is returned when a unit of work holds a connection
	// for the factory's data source but the factory cannot join it.
	ErrNotManagedFactory = errors.New("template: session factory must use transaction.ManagedFactory to join the active unit of work")
)

// sessionKey binds a session holder to the unit of work per factory.
type sessionKey struct {
	factory engine.SessionFactory
}

type sessionHolder struct {
	session engine.Session
	refs    int
	// closed holders are unbound and no longer handed out; released ones
	// have had their session closed.
	closed   bool
	released bool
}

var discardHelper = log.NewHelper(log.NewStdLogger(io.Discard))

// GetSession returns the session bound to the unit of work in ctx for
// factory, or opens a new one. A session opened inside a unit of work is
// bound to it and closed when the unit of work completes.
func GetSession(ctx context.Context, factory engine.SessionFactory) (engine.Session, error) {
	return getSession(ctx, factory, discardHelper)
}

// IsSessionTransactional reports whether session is the one bound to the unit
// of work in ctx, in which case callers must not commit or close it.
func IsSessionTransactional(ctx context.Context, session engine.Session, factory engine.SessionFactory) bool {
	holder, ok := boundHolder(ctx, factory)
	return ok && holder.session == session
}

// CloseSession closes session unless it is bound to the unit of work in ctx;
// a bound session only has its use released.
func CloseSession(ctx context.Context, session engine.Session, factory engine.SessionFactory) error {
	if session == nil {
		return nil
	}
	if holder, ok := boundHolder(ctx, factory); ok && holder.session == session {
		if holder.refs > 0 {
			holder.refs--
		}
		return nil
	}
	return session.Close(ctx)
}

func boundHolder(ctx context.Context, factory engine.SessionFactory) (*sessionHolder, bool) {
	sync, ok := txsync.FromContext(ctx)
	if !ok || factory == nil {
		return nil, false
	}
	res, ok := sync.Resource(sessionKey{factory: factory})
	if !ok {
		return nil, false
	}
	holder, ok := res.(*sessionHolder)
	return holder, ok && !holder.closed
}

func getSession(ctx context.Context, factory engine.SessionFactory, helper *log.Helper) (engine.Session, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	if holder, ok := boundHolder(ctx, factory); ok {
		holder.refs++
		return holder.session, nil
	}

	helper.Debugf("template: opening session")
	session, err := factory.OpenSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := registerSession(ctx, factory, session, helper); err != nil {
		_ = session.Close(ctx)
		return nil, err
	}
	return session, nil
}

func registerSession(ctx context.Context, factory engine.SessionFactory, session engine.Session, helper *log.Helper) error {
	sync, ok := txsync.FromContext(ctx)
	if !ok {
		helper.Debugf("template: session id=%s not synchronized, no active unit of work", session.ID())
		return nil
	}
	env := factory.Configuration().Environment()
	if env == nil {
		return nil
	}
	if _, managed := env.TransactionFactory.(*transaction.ManagedFactory); !managed {
		if _, bound := sync.Resource(env.DataSource); bound {
			return ErrNotManagedFactory
		}
		helper.Debugf("template: session id=%s not synchronized, data source is not transactional", session.ID())
		return nil
	}

	key := sessionKey{factory: factory}
	holder := &sessionHolder{session: session, refs: 1}
	if err := sync.Bind(key, holder); err != nil {
		return err
	}
	if err := sync.Register(&sessionSynchronization{key: key, holder: holder, helper: helper}); err != nil {
		sync.Unbind(key)
		return err
	}
	helper.Debugf("template: session id=%s registered with unit of work id=%s", session.ID(), sync.ID())
	return nil
}

// sessionSynchronization closes a bound session when its unit of work
// completes. Cache writes the session buffered are published only when the
// unit of work committed.
type sessionSynchronization struct {
	key    sessionKey
	holder *sessionHolder
	helper *log.Helper
}

func (s *sessionSynchronization) BeforeCompletion(ctx context.Context) {
	if s.holder.refs > 0 {
		return
	}
	s.detach(ctx)
}

func (s *sessionSynchronization) AfterCompletion(ctx context.Context, status txsync.Status) {
	if s.holder.released {
		return
	}
	s.detach(ctx)
	s.holder.released = true
	session := s.holder.session
	if status == txsync.StatusCommitted {
		// The bound transaction is already committed; this only publishes the
		// session's cache writes.
		if err := session.Commit(ctx); err != nil {
			s.helper.Warnf("template: publish cache of session id=%s err=%v", session.ID(), err)
		}
	}
	s.helper.Debugf("template: closing session id=%s after unit of work status=%s", session.ID(), status)
	if err := session.Close(ctx); err != nil {
		s.helper.Warnf("template: close session id=%s err=%v", session.ID(), err)
	}
}

// detach unbinds the holder so no further call reuses the session.
func (s *sessionSynchronization) detach(ctx context.Context) {
	if s.holder.closed {
		return
	}
	if sync, ok := txsync.FromContext(ctx); ok {
		sync.Unbind(s.key)
	}
	s.holder.closed = true
}
