package engine

import (
	"context"
	"fmt"
)

// executor runs mapped statements over a session's transaction. Cache
// writes go through caches and reach the shared Cache on commit.
type executor struct {
	cfg    *Configuration
	tx     Transaction
	caches *transactionalCaches
}

func (e *executor) query(ctx context.Context, ms *MappedStatement, param any) (*ResultSet, error) {
	args, err := ms.boundArgs(e.cfg, param)
	if err != nil {
		return nil, err
	}
	inv := &Invocation{Op: OpQuery, Statement: ms, Param: param, SQL: ms.sql, Args: args}
	res, err := chain(e.cfg.interceptors, e.doQuery)(ctx, inv)
	if err != nil {
		return nil, err
	}
	rs, ok := res.(*ResultSet)
	if !ok {
		return nil, fmt.Errorf("engine: interceptor returned %T for query %s", res, ms.ID)
	}
	return rs, nil
}

func (e *executor) doQuery(ctx context.Context, inv *Invocation) (any, error) {
	ms := inv.Statement
	cache := e.cacheFor(ms)
	if ms.FlushCache && cache != nil {
		e.caches.clear(cache)
	}
	key := ""
	if cache != nil && ms.UseCache {
		key = fmt.Sprintf("%s|%s|%v", ms.ID, inv.SQL, inv.Args)
		if v, ok := e.caches.get(cache, key); ok {
			return v, nil
		}
	}

	conn, err := e.tx.Connection(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := e.withTimeout(ctx, ms)
	defer cancel()

	rows, err := conn.Query(ctx, inv.SQL, inv.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	rs := &ResultSet{Columns: make([]string, len(fields))}
	for i, f := range fields {
		rs.Columns[i] = f.Name
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if key != "" {
		e.caches.put(cache, key, rs)
	}
	return rs, nil
}

func (e *executor) update(ctx context.Context, ms *MappedStatement, param any) (int64, error) {
	args, err := ms.boundArgs(e.cfg, param)
	if err != nil {
		return 0, err
	}
	inv := &Invocation{Op: OpUpdate, Statement: ms, Param: param, SQL: ms.sql, Args: args}
	res, err := chain(e.cfg.interceptors, e.doUpdate)(ctx, inv)
	if err != nil {
		return 0, err
	}
	n, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("engine: interceptor returned %T for update %s", res, ms.ID)
	}
	return n, nil
}

func (e *executor) doUpdate(ctx context.Context, inv *Invocation) (any, error) {
	ms := inv.Statement
	if cache := e.cacheFor(ms); cache != nil && ms.FlushCache {
		e.caches.clear(cache)
	}
	conn, err := e.tx.Connection(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := e.withTimeout(ctx, ms)
	defer cancel()

	tag, err := conn.Exec(ctx, inv.SQL, inv.Args...)
	if err != nil {
		return nil, err
	}
	return tag.RowsAffected(), nil
}

func (e *executor) cacheFor(ms *MappedStatement) Cache {
	if !e.cfg.settings.CacheEnabled {
		return nil
	}
	return ms.Cache
}

func (e *executor) withTimeout(ctx context.Context, ms *MappedStatement) (context.Context, context.CancelFunc) {
	timeout := ms.Timeout
	if timeout <= 0 {
		timeout = e.cfg.settings.DefaultStatementTimeout
	}
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
