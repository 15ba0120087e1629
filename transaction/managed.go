// Package transaction adapts engine transactions to the unit of work driven
// by txmanager. A Managed transaction runs on the connection bound to the
// active unit of work and leaves commit and rollback to its boundary.
package transaction

import (
	"context"
	"errors"
	"io"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/jackc/pgx/v5"

	"github.com/bionicotaku/lingo-sqlmapper/datasource"
	"github.com/bionicotaku/lingo-sqlmapper/engine"
	"github.com/bionicotaku/lingo-sqlmapper/txsync"
)

// ErrRequiresDataSource is returned when a transaction is requested for a raw
// connection instead of a managed data source.
var ErrRequiresDataSource = errors.New("transaction: new managed transactions require a data source")

// ManagedFactory creates Managed transactions. The zero value is ready to use.
type ManagedFactory struct {
	logger log.Logger
}

// NewManagedFactory returns a factory logging through logger.
func NewManagedFactory(logger log.Logger) *ManagedFactory {
	return &ManagedFactory{logger: logger}
}

// NewTransaction implements engine.TransactionFactory.
func (f *ManagedFactory) NewTransaction(ds datasource.DataSource, level pgx.TxIsoLevel, autoCommit bool) (engine.Transaction, error) {
	if ds == nil {
		return nil, ErrRequiresDataSource
	}
	logger := log.Logger(nil)
	if f != nil {
		logger = f.logger
	}
	if logger == nil {
		logger = log.NewStdLogger(io.Discard)
	}
	return &Managed{
		ds:         ds,
		level:      level,
		autoCommit: autoCommit,
		log:        log.NewHelper(logger),
	}, nil
}

// NewTransactionFromConn always fails with ErrRequiresDataSource.
func (f *ManagedFactory) NewTransactionFromConn(datasource.Connection) (engine.Transaction, error) {
	return nil, ErrRequiresDataSource
}

// Managed is an engine transaction whose connection comes from the unit of
// work in ctx when one is active, otherwise from the data source.
type Managed struct {
	ds         datasource.DataSource
	level      pgx.TxIsoLevel
	autoCommit bool
	log        *log.Helper

	conn     datasource.Conn
	acquired datasource.Connection
	tx       pgx.Tx
	bound    bool
}

// Connection returns the connection statements run on, resolving it on first
// use.
func (m *Managed) Connection(ctx context.Context) (datasource.Conn, error) {
	if m.conn != nil {
		return m.conn, nil
	}
	if sync, ok := txsync.FromContext(ctx); ok {
		if res, bound := sync.Resource(m.ds); bound {
			if holder, ok := res.(*txsync.ConnectionHolder); ok && holder.Conn != nil {
				m.conn = holder.Conn
				m.bound = true
				m.log.Debugf("transaction: using connection bound to unit of work id=%s", sync.ID())
				return m.conn, nil
			}
		}
	}

	if m.acquired == nil {
		conn, err := m.ds.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		m.acquired = conn
	}
	if m.autoCommit {
		m.conn = m.acquired
		m.log.Debugf("transaction: acquired auto-commit connection")
		return m.conn, nil
	}

	tx, err := m.acquired.BeginTx(ctx, pgx.TxOptions{IsoLevel: m.level})
	if err != nil {
		return nil, err
	}
	m.tx = tx
	m.conn = tx
	m.log.Debugf("transaction: began transaction level=%q", m.level)
	return m.conn, nil
}

// Bound reports whether the transaction runs on a unit-of-work connection.
func (m *Managed) Bound() bool { return m.bound }

// Commit commits a transaction this adapter began. Bound and auto-commit
// connections are left alone.
func (m *Managed) Commit(ctx context.Context) error {
	if m.bound || m.tx == nil {
		return nil
	}
	tx := m.tx
	m.tx, m.conn = nil, nil
	return tx.Commit(ctx)
}

// Rollback rolls back a transaction this adapter began.
func (m *Managed) Rollback(ctx context.Context) error {
	if m.bound || m.tx == nil {
		return nil
	}
	tx := m.tx
	m.tx, m.conn = nil, nil
	return tx.Rollback(ctx)
}

// Close releases a connection this adapter acquired. A connection bound to
// the unit of work is released by its boundary.
func (m *Managed) Close(ctx context.Context) error {
	if m.bound {
		m.conn = nil
		m.bound = false
		return nil
	}
	var err error
	if m.tx != nil {
		err = m.tx.Rollback(ctx)
		if errors.Is(err, pgx.ErrTxClosed) {
			err = nil
		}
		m.tx = nil
	}
	if m.acquired != nil {
		m.acquired.Release()
		m.acquired = nil
	}
	m.conn = nil
	return err
}
