package datasource

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Conn is the statement surface shared by pooled connections and open
// transactions. Both *pgxpool.Conn and pgx.Tx satisfy it.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connection is a connection checked out of a DataSource. Callers must
// Release it exactly once.
type Connection interface {
	Conn
	Begin(ctx context.Context) (pgx.Tx, error)
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Release()
}

// DataSource hands out connections. It is the managed connection source every
// transaction and session factory is built on.
type DataSource interface {
	Acquire(ctx context.Context) (Connection, error)
}

// PoolDataSource adapts a pgx pool to DataSource.
type PoolDataSource struct {
	pool    *pgxpool.Pool
	metrics *poolTelemetry
	clock   func() time.Time
}

// NewPoolDataSource wraps an existing pool without telemetry.
func NewPoolDataSource(pool *pgxpool.Pool) (*PoolDataSource, error) {
	if pool == nil {
		return nil, errors.New("datasource: pool is required")
	}
	return &PoolDataSource{pool: pool, metrics: &poolTelemetry{}, clock: time.Now}, nil
}

// Acquire checks a connection out of the pool.
func (d *PoolDataSource) Acquire(ctx context.Context) (Connection, error) {
	start := d.clock()
	conn, err := d.pool.Acquire(ctx)
	d.metrics.recordAcquire(ctx, d.clock().Sub(start))
	if err != nil {
		d.metrics.recordAcquireFailure(ctx)
		return nil, err
	}
	return conn, nil
}

// Pool exposes the underlying pgx pool.
func (d *PoolDataSource) Pool() *pgxpool.Pool {
	return d.pool
}
