// Package fakedb provides in-memory stand-ins for pgx connections, rows and
// transactions so engine level code can be exercised without PostgreSQL.
package fakedb

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bionicotaku/lingo-sqlmapper/datasource"
)

// Result is the canned answer for one statement.
type Result struct {
	Columns []string
	Rows    [][]any
	Tag     string
	Err     error
}

// Call records one statement sent to the fake.
type Call struct {
	SQL  string
	Args []any
	InTx bool
}

// Handler produces the result for a statement.
type Handler func(sql string, args []any) Result

// Conn is a fake pooled connection.
type Conn struct {
	mu       sync.Mutex
	handler  Handler
	calls    []Call
	released int
	begun    int
	commits  int
	rollback int
	options  []pgx.TxOptions
}

// NewConn returns a connection answering every statement through handler.
func NewConn(handler Handler) *Conn {
	if handler == nil {
		handler = func(string, []any) Result { return Result{Tag: "SELECT 0"} }
	}
	return &Conn{handler: handler}
}

func (c *Conn) record(sql string, args []any, inTx bool) Result {
	c.mu.Lock()
	c.calls = append(c.calls, Call{SQL: sql, Args: args, InTx: inTx})
	c.mu.Unlock()
	return c.handler(sql, args)
}

// Exec implements datasource.Conn.
func (c *Conn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	res := c.record(sql, args, false)
	return pgconn.NewCommandTag(res.Tag), res.Err
}

// Query implements datasource.Conn.
func (c *Conn) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	res := c.record(sql, args, false)
	if res.Err != nil {
		return nil, res.Err
	}
	return NewRows(res), nil
}

// QueryRow implements datasource.Conn.
func (c *Conn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	rows, err := c.Query(ctx, sql, args...)
	return &row{rows: rows, err: err}
}

// Begin implements datasource.Connection.
func (c *Conn) Begin(ctx context.Context) (pgx.Tx, error) {
	return c.BeginTx(ctx, pgx.TxOptions{})
}

// BeginTx implements datasource.Connection and records opts.
func (c *Conn) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	c.mu.Lock()
	c.begun++
	c.options = append(c.options, opts)
	c.mu.Unlock()
	return &Tx{conn: c}, nil
}

// TxOptions returns the options of every transaction started, in order.
func (c *Conn) TxOptions() []pgx.TxOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]pgx.TxOptions(nil), c.options...)
}

// Release implements datasource.Connection.
func (c *Conn) Release() {
	c.mu.Lock()
	c.released++
	c.mu.Unlock()
}

// Calls returns a copy of the recorded statements.
func (c *Conn) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Released reports how many times the connection was released.
func (c *Conn) Released() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// Begun reports how many transactions were started.
func (c *Conn) Begun() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.begun
}

// Commits reports how many transactions were committed.
func (c *Conn) Commits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits
}

// Rollbacks reports how many transactions were rolled back.
func (c *Conn) Rollbacks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollback
}

// Tx is a fake transaction bound to a Conn. Methods outside the statement
// surface panic through the embedded nil interface.
type Tx struct {
	pgx.Tx
	conn   *Conn
	closed bool
}

func (t *Tx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	res := t.conn.record(sql, args, true)
	return pgconn.NewCommandTag(res.Tag), res.Err
}

func (t *Tx) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	res := t.conn.record(sql, args, true)
	if res.Err != nil {
		return nil, res.Err
	}
	return NewRows(res), nil
}

func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	rows, err := t.Query(ctx, sql, args...)
	return &row{rows: rows, err: err}
}

func (t *Tx) Commit(context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.conn.mu.Lock()
	t.conn.commits++
	t.conn.mu.Unlock()
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.conn.mu.Lock()
	t.conn.rollback++
	t.conn.mu.Unlock()
	return nil
}

func (t *Tx) Conn() *pgx.Conn { return nil }

// Rows iterates a canned Result.
type Rows struct {
	res    Result
	pos    int
	closed bool
}

// NewRows wraps a result as pgx.Rows.
func NewRows(res Result) *Rows {
	return &Rows{res: res, pos: -1}
}

func (r *Rows) Close()     { r.closed = true }
func (r *Rows) Err() error { return nil }

func (r *Rows) CommandTag() pgconn.CommandTag {
	if r.res.Tag != "" {
		return pgconn.NewCommandTag(r.res.Tag)
	}
	return pgconn.NewCommandTag(fmt.Sprintf("SELECT %d", len(r.res.Rows)))
}

func (r *Rows) FieldDescriptions() []pgconn.FieldDescription {
	fields := make([]pgconn.FieldDescription, len(r.res.Columns))
	for i, name := range r.res.Columns {
		fields[i] = pgconn.FieldDescription{Name: name}
	}
	return fields
}

func (r *Rows) Next() bool {
	if r.closed {
		return false
	}
	r.pos++
	if r.pos >= len(r.res.Rows) {
		r.closed = true
		return false
	}
	return true
}

func (r *Rows) Values() ([]any, error) {
	if r.pos < 0 || r.pos >= len(r.res.Rows) {
		return nil, errors.New("fakedb: no current row")
	}
	return append([]any(nil), r.res.Rows[r.pos]...), nil
}

func (r *Rows) Scan(dest ...any) error {
	values, err := r.Values()
	if err != nil {
		return err
	}
	if len(dest) != len(values) {
		return fmt.Errorf("fakedb: scan %d values into %d targets", len(values), len(dest))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d)
		if target.Kind() != reflect.Pointer || target.IsNil() {
			return fmt.Errorf("fakedb: scan target %d is not a pointer", i)
		}
		if values[i] == nil {
			target.Elem().Set(reflect.Zero(target.Elem().Type()))
			continue
		}
		v := reflect.ValueOf(values[i])
		if !v.Type().ConvertibleTo(target.Elem().Type()) {
			return fmt.Errorf("fakedb: cannot scan %T into %s", values[i], target.Elem().Type())
		}
		target.Elem().Set(v.Convert(target.Elem().Type()))
	}
	return nil
}

func (r *Rows) RawValues() [][]byte { return nil }
func (r *Rows) Conn() *pgx.Conn     { return nil }

type row struct {
	rows pgx.Rows
	err  error
}

func (r *row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	defer r.rows.Close()
	if !r.rows.Next() {
		return pgx.ErrNoRows
	}
	return r.rows.Scan(dest...)
}

// DataSource hands out one shared fake connection and counts checkouts.
type DataSource struct {
	mu       sync.Mutex
	conn     *Conn
	acquired int
	err      error
}

// NewDataSource returns a data source serving conn.
func NewDataSource(conn *Conn) *DataSource {
	return &DataSource{conn: conn}
}

// FailWith makes subsequent Acquire calls return err.
func (d *DataSource) FailWith(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

// Acquire implements datasource.DataSource.
func (d *DataSource) Acquire(context.Context) (datasource.Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	d.acquired++
	return d.conn, nil
}

// Acquired reports how many connections were checked out.
func (d *DataSource) Acquired() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquired
}

// Conn returns the shared connection.
func (d *DataSource) Conn() *Conn { return d.conn }
