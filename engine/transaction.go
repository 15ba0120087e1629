package engine

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/bionicotaku/lingo-sqlmapper/datasource"
)

// Transaction owns the connection a session runs its statements on.
type Transaction interface {
	Connection(ctx context.Context) (datasource.Conn, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
}

// TransactionFactory creates transactions for sessions.
type TransactionFactory interface {
	NewTransaction(ds datasource.DataSource, level pgx.TxIsoLevel, autoCommit bool) (Transaction, error)
	NewTransactionFromConn(conn datasource.Connection) (Transaction, error)
}

// Environment binds a transaction strategy to a data source.
type Environment struct {
	ID                 string
	TransactionFactory TransactionFactory
	DataSource         datasource.DataSource
}

// NewEnvironment validates and returns an environment.
func NewEnvironment(id string, tf TransactionFactory, ds datasource.DataSource) (*Environment, error) {
	if id == "" {
		return nil, NewConfigError(nil, "environment id is required")
	}
	if tf == nil {
		return nil, NewConfigError(nil, "environment '%s' requires a transaction factory", id)
	}
	if ds == nil {
		return nil, NewConfigError(nil, "environment '%s' requires a data source", id)
	}
	return &Environment{ID: id, TransactionFactory: tf, DataSource: ds}, nil
}

// DirectTransactionFactory runs statements in transactions the engine begins
// and commits itself on a connection it acquires.
type DirectTransactionFactory struct{}

func (DirectTransactionFactory) NewTransaction(ds datasource.DataSource, level pgx.TxIsoLevel, autoCommit bool) (Transaction, error) {
	if ds == nil {
		return nil, errors.New("engine: data source is required")
	}
	return &directTransaction{ds: ds, level: level, autoCommit: autoCommit}, nil
}

func (DirectTransactionFactory) NewTransactionFromConn(conn datasource.Connection) (Transaction, error) {
	if conn == nil {
		return nil, errors.New("engine: connection is required")
	}
	return &directTransaction{conn: conn, borrowed: true}, nil
}

type directTransaction struct {
	ds         datasource.DataSource
	level      pgx.TxIsoLevel
	autoCommit bool

	conn     datasource.Connection
	tx       pgx.Tx
	borrowed bool
}

func (t *directTransaction) Connection(ctx context.Context) (datasource.Conn, error) {
	if t.conn == nil {
		conn, err := t.ds.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		t.conn = conn
	}
	if t.autoCommit {
		return t.conn, nil
	}
	if t.tx == nil {
		tx, err := beginTx(ctx, t.conn, t.level)
		if err != nil {
			return nil, err
		}
		t.tx = tx
	}
	return t.tx, nil
}

func beginTx(ctx context.Context, conn datasource.Connection, level pgx.TxIsoLevel) (pgx.Tx, error) {
	return conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: level})
}

func (t *directTransaction) Commit(ctx context.Context) error {
	if t.tx == nil {
		return nil
	}
	tx := t.tx
	t.tx = nil
	return tx.Commit(ctx)
}

func (t *directTransaction) Rollback(ctx context.Context) error {
	if t.tx == nil {
		return nil
	}
	tx := t.tx
	t.tx = nil
	return tx.Rollback(ctx)
}

func (t *directTransaction) Close(ctx context.Context) error {
	err := t.Rollback(ctx)
	if t.conn != nil && !t.borrowed {
		t.conn.Release()
	}
	t.conn = nil
	return err
}
