package engine

import (
	"context"
	"reflect"

	"github.com/google/uuid"
)

// Operations is the statement surface shared by sessions and the session
// template.
type Operations interface {
	SelectOne(ctx context.Context, statement string, param any, dest any) error
	SelectList(ctx context.Context, statement string, param any, dest any) error
	SelectEach(ctx context.Context, statement string, param any, dest any, fn func() error) error
	Insert(ctx context.Context, statement string, param any) (int64, error)
	Update(ctx context.Context, statement string, param any) (int64, error)
	Delete(ctx context.Context, statement string, param any) (int64, error)
	GetMapper(t reflect.Type) (any, error)
	Configuration() *Configuration
}

// Session is a unit of statement execution over one transaction. A session
// is used by one goroutine at a time.
type Session interface {
	Operations
	ID() string
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
}

// SessionFactory opens sessions against a configuration's environment.
type SessionFactory interface {
	OpenSession(ctx context.Context) (Session, error)
	Configuration() *Configuration
}

// DefaultSessionFactory opens DefaultSessions.
type DefaultSessionFactory struct {
	cfg *Configuration
}

// Build returns a session factory over cfg.
func Build(cfg *Configuration) *DefaultSessionFactory {
	return &DefaultSessionFactory{cfg: cfg}
}

func (f *DefaultSessionFactory) Configuration() *Configuration { return f.cfg }

// OpenSession opens a session on a new transaction from the environment.
func (f *DefaultSessionFactory) OpenSession(ctx context.Context) (Session, error) {
	env := f.cfg.environment
	if env == nil {
		return nil, ErrNoEnvironment
	}
	tx, err := env.TransactionFactory.NewTransaction(env.DataSource, "", false)
	if err != nil {
		return nil, err
	}
	return NewSession(f.cfg, tx), nil
}

// DefaultSession runs statements through the executor.
type DefaultSession struct {
	id     string
	cfg    *Configuration
	tx     Transaction
	exec   *executor
	mapper resultMapper
	dirty  bool
	closed bool
}

// NewSession returns a session over tx.
func NewSession(cfg *Configuration, tx Transaction) *DefaultSession {
	return &DefaultSession{
		id:     uuid.NewString(),
		cfg:    cfg,
		tx:     tx,
		exec:   &executor{cfg: cfg, tx: tx, caches: newTransactionalCaches()},
		mapper: resultMapper{cfg: cfg},
	}
}

func (s *DefaultSession) ID() string                    { return s.id }
func (s *DefaultSession) Configuration() *Configuration { return s.cfg }

// Dirty reports whether a write ran since the last commit or rollback.
func (s *DefaultSession) Dirty() bool { return s.dirty }

func (s *DefaultSession) query(ctx context.Context, statement string, param any) (*MappedStatement, *ResultSet, error) {
	if s.closed {
		return nil, nil, ErrSessionClosed
	}
	ms, err := s.cfg.MappedStatement(statement)
	if err != nil {
		return nil, nil, err
	}
	rs, err := s.exec.query(ctx, ms, param)
	if err != nil {
		return nil, nil, err
	}
	return ms, rs, nil
}

// SelectOne maps a single row into dest. No row leaves dest zeroed; more than
// one row fails with ErrTooManyResults.
func (s *DefaultSession) SelectOne(ctx context.Context, statement string, param any, dest any) error {
	target, err := destValue(dest)
	if err != nil {
		return err
	}
	ms, rs, err := s.query(ctx, statement, param)
	if err != nil {
		return err
	}
	switch len(rs.Rows) {
	case 0:
		target.Set(reflect.Zero(target.Type()))
		return nil
	case 1:
		if err := s.mapInto(ms, rs.Columns, rs.Rows[0], target); err != nil {
			return wrapMapping(ms, err)
		}
		return nil
	default:
		return ErrTooManyResults
	}
}

// SelectList maps every row into the slice dest points at.
func (s *DefaultSession) SelectList(ctx context.Context, statement string, param any, dest any) error {
	target, err := destValue(dest)
	if err != nil {
		return err
	}
	if target.Kind() != reflect.Slice {
		return NewConfigError(nil, "select list destination must point at a slice, got %T", dest)
	}
	ms, rs, err := s.query(ctx, statement, param)
	if err != nil {
		return err
	}
	list := reflect.MakeSlice(target.Type(), 0, len(rs.Rows))
	for _, row := range rs.Rows {
		elem := reflect.New(target.Type().Elem()).Elem()
		if err := s.mapInto(ms, rs.Columns, row, elem); err != nil {
			return wrapMapping(ms, err)
		}
		list = reflect.Append(list, elem)
	}
	target.Set(list)
	return nil
}

// SelectEach maps rows one at a time into dest and calls fn after each. Rows
// are fetched in full first; only the mapping is incremental. An error from
// fn stops iteration.
func (s *DefaultSession) SelectEach(ctx context.Context, statement string, param any, dest any, fn func() error) error {
	target, err := destValue(dest)
	if err != nil {
		return err
	}
	ms, rs, err := s.query(ctx, statement, param)
	if err != nil {
		return err
	}
	for _, row := range rs.Rows {
		target.Set(reflect.Zero(target.Type()))
		if err := s.mapInto(ms, rs.Columns, row, target); err != nil {
			return wrapMapping(ms, err)
		}
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func (s *DefaultSession) update(ctx context.Context, statement string, param any) (int64, error) {
	if s.closed {
		return 0, ErrSessionClosed
	}
	ms, err := s.cfg.MappedStatement(statement)
	if err != nil {
		return 0, err
	}
	s.dirty = true
	return s.exec.update(ctx, ms, param)
}

func (s *DefaultSession) Insert(ctx context.Context, statement string, param any) (int64, error) {
	return s.update(ctx, statement, param)
}

func (s *DefaultSession) Update(ctx context.Context, statement string, param any) (int64, error) {
	return s.update(ctx, statement, param)
}

func (s *DefaultSession) Delete(ctx context.Context, statement string, param any) (int64, error) {
	return s.update(ctx, statement, param)
}

// GetMapper returns a mapper implementation bound to this session.
func (s *DefaultSession) GetMapper(t reflect.Type) (any, error) {
	return s.cfg.GetMapper(t, s)
}

// Commit commits the transaction, then publishes the query results cached
// since the last commit or rollback.
func (s *DefaultSession) Commit(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := s.tx.Commit(ctx); err != nil {
		return err
	}
	s.exec.caches.commit()
	s.dirty = false
	return nil
}

// Rollback rolls the transaction back and drops buffered cache writes.
func (s *DefaultSession) Rollback(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	s.exec.caches.rollback()
	if err := s.tx.Rollback(ctx); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Close releases the transaction and drops cache writes that were never
// committed. Closing twice is a no-op.
func (s *DefaultSession) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.exec.caches.rollback()
	return s.tx.Close(ctx)
}

// mapInto maps a row into target. Interface targets receive a value of the
// statement's result type, or a column map when none is declared.
func (s *DefaultSession) mapInto(ms *MappedStatement, columns []string, row []any, target reflect.Value) error {
	if target.Kind() != reflect.Interface {
		return s.mapper.mapRow(columns, row, target)
	}
	rt := ms.ResultType
	if rt == nil {
		rt = reflect.TypeOf(map[string]any(nil))
	}
	v := reflect.New(rt).Elem()
	if err := s.mapper.mapRow(columns, row, v); err != nil {
		return err
	}
	target.Set(v)
	return nil
}

func wrapMapping(ms *MappedStatement, err error) error {
	return NewConfigError(err, "mapping result of '%s'", ms.ID)
}
