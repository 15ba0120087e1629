package txmanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bionicotaku/lingo-sqlmapper/datasource"
	"github.com/bionicotaku/lingo-sqlmapper/txsync"
)

// Manager provides scoped transaction helpers for service layers. Each call
// opens a unit of work carried by the callback context; sessions and
// connections bound to it are released when the transaction completes.
type Manager interface {
	WithinTx(ctx context.Context, opts TxOptions, fn func(context.Context, Session) error) error
	WithinReadOnlyTx(ctx context.Context, opts TxOptions, fn func(context.Context, Session) error) error
}

type managerImpl struct {
	ds      datasource.DataSource
	cfg     Config
	presets TxOptionPreset
	deps    managerDeps
	metrics *telemetry
	helper  *log.Helper
	tracer  trace.Tracer
}

// NewManager constructs a transaction manager over ds.
func NewManager(ds datasource.DataSource, cfg Config, deps Dependencies) (Manager, error) {
	if ds == nil {
		return nil, errors.New("txmanager: data source is required")
	}

	cfg = cfg.sanitized()
	resolved := sanitizeDependencies(cfg, deps)
	helper := log.NewHelper(resolved.logger)

	metricsEnabled := cfg.MetricsEnabled
	if resolved.metricsEnabledOverride != nil {
		metricsEnabled = *resolved.metricsEnabledOverride
	}

	return &managerImpl{
		ds:      ds,
		cfg:     cfg,
		presets: cfg.BuildPresets(),
		deps:    resolved,
		metrics: newTelemetry(resolved.meter, helper, metricsEnabled),
		helper:  helper,
		tracer:  resolved.tracer,
	}, nil
}

func (m *managerImpl) WithinTx(ctx context.Context, override TxOptions, fn func(context.Context, Session) error) error {
	opts := mergeTxOptions(m.presets.Default, override)
	return m.exec(ctx, opts, fn, "read_write")
}

func (m *managerImpl) WithinReadOnlyTx(ctx context.Context, override TxOptions, fn func(context.Context, Session) error) error {
	opts := mergeTxOptions(m.presets.ReadOnly, override)
	opts.AccessMode = ReadOnly
	return m.exec(ctx, opts, fn, "read_only")
}

func (m *managerImpl) exec(ctx context.Context, opts TxOptions, fn func(context.Context, Session) error, method string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if sync, ok := txsync.FromContext(ctx); ok {
		if holder, bound := sync.Resource(m.ds); bound {
			return m.join(ctx, sync, holder.(*txsync.ConnectionHolder), fn, method)
		}
	}

	seq := backoff.NewExponentialBackOff()
	seq.InitialInterval = m.cfg.RetryInitialInterval
	seq.MaxInterval = m.cfg.RetryMaxInterval
	seq.Reset()

	for attempt := 0; ; attempt++ {
		err := m.runOnce(ctx, opts, fn, method)
		if err == nil || !IsRetryable(err) || attempt >= m.cfg.MaxRetries {
			return err
		}
		delay := seq.NextBackOff()
		if delay == backoff.Stop {
			delay = seq.MaxInterval
		}
		m.helper.Warnf("txmanager: retrying method=%s attempt=%d delay=%s err=%v", method, attempt+1, delay, err)
		if waitErr := waitWithContext(ctx, delay); waitErr != nil {
			return fmt.Errorf("txmanager: retry aborted: %w", err)
		}
	}
}

// join runs fn inside the unit of work already active in ctx. Failures mark
// the outer transaction rollback-only.
func (m *managerImpl) join(ctx context.Context, sync *txsync.Synchronization, holder *txsync.ConnectionHolder, fn func(context.Context, Session) error, method string) error {
	tx, _ := holder.Conn.(pgx.Tx)
	m.helper.Debugf("txmanager: joining unit of work id=%s method=%s", sync.ID(), method)
	m.metrics.recordJoin(ctx, method)
	if err := fn(ctx, newSession(tx, sync, true)); err != nil {
		sync.SetRollbackOnly()
		return err
	}
	return nil
}

func (m *managerImpl) runOnce(ctx context.Context, opts TxOptions, fn func(context.Context, Session) error, method string) (err error) {
	ctx, cancel := applyTimeout(ctx, opts.Timeout)
	defer cancel()

	spanName := opts.TraceName
	if spanName == "" {
		spanName = "db.tx." + method
	}
	ctx, span := m.tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	isolation := isoString(opts.Isolation)
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.tx.isolation", isolation), attribute.String("db.tx.method", method))

	start := m.deps.clock()
	m.metrics.recordStart(ctx, method, isolation)

	conn, err := m.ds.Acquire(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "acquire")
		m.helper.Errorf("txmanager: acquire failed method=%s isolation=%s err=%v", method, isolation, err)
		m.metrics.recordEnd(ctx, method, isolation, false, err, m.elapsedSince(start))
		return err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: opts.Isolation, AccessMode: opts.AccessMode})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin")
		m.helper.Errorf("txmanager: begin failed method=%s isolation=%s err=%v", method, isolation, err)
		m.metrics.recordEnd(ctx, method, isolation, false, err, m.elapsedSince(start))
		return err
	}

	ctx, sync := txsync.Begin(ctx)
	if err = sync.Bind(m.ds, &txsync.ConnectionHolder{Conn: tx}); err != nil {
		_ = tx.Rollback(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, "bind")
		m.helper.Errorf("txmanager: bind connection failed method=%s isolation=%s err=%v", method, isolation, err)
		m.metrics.recordEnd(ctx, method, isolation, false, err, m.elapsedSince(start))
		return err
	}

	completed := false
	defer func() {
		if !completed {
			sync.TriggerBeforeCompletion(ctx)
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				m.helper.Warnf("txmanager: rollback failed method=%s isolation=%s err=%v", method, isolation, rbErr)
			}
			sync.Complete(ctx, txsync.StatusRolledBack)
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("txmanager: panic recovered: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			m.helper.Errorf("txmanager: panic method=%s isolation=%s err=%v", method, isolation, err)
			m.metrics.recordEnd(ctx, method, isolation, false, err, m.elapsedSince(start))
			panic(r)
		}
	}()

	if opts.LockTimeout > 0 {
		ms := opts.LockTimeout / time.Millisecond
		if ms > 0 {
			stmt := fmt.Sprintf("set local lock_timeout = '%dms'", ms)
			if _, execErr := tx.Exec(ctx, stmt); execErr != nil {
				err = fmt.Errorf("set lock_timeout: %w", execErr)
				span.RecordError(err)
				span.SetStatus(codes.Error, "lock_timeout")
				m.helper.Errorf("txmanager: lock_timeout failed method=%s isolation=%s err=%v", method, isolation, err)
				m.metrics.recordEnd(ctx, method, isolation, false, err, m.elapsedSince(start))
				return err
			}
		}
	}

	err = fn(ctx, newSession(tx, sync, false))
	if err == nil && sync.RollbackOnly() {
		err = ErrRollbackOnly
	}
	if err != nil {
		retryable, sqlState := classifyPgError(err)
		if retryable {
			err = wrapRetryable(err)
		}
		if sqlState != "" {
			span.SetAttributes(attribute.String("db.sql_state", sqlState))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "exec")
		m.helper.Warnf("txmanager: fn error method=%s isolation=%s retryable=%t err=%v", method, isolation, retryable, err)
		m.metrics.recordEnd(ctx, method, isolation, retryable, err, m.elapsedSince(start))
		return err
	}

	sync.TriggerBeforeCompletion(ctx)
	completed = true
	if commitErr := tx.Commit(ctx); commitErr != nil {
		sync.Complete(ctx, txsync.StatusRolledBack)
		retryable, sqlState := classifyPgError(commitErr)
		if retryable {
			commitErr = wrapRetryable(commitErr)
		}
		if sqlState != "" {
			span.SetAttributes(attribute.String("db.sql_state", sqlState))
		}
		span.RecordError(commitErr)
		span.SetStatus(codes.Error, "commit")
		err = fmt.Errorf("commit: %w", commitErr)
		m.helper.Errorf("txmanager: commit failed method=%s isolation=%s retryable=%t err=%v", method, isolation, retryable, err)
		m.metrics.recordEnd(ctx, method, isolation, retryable, err, m.elapsedSince(start))
		return err
	}
	sync.Complete(ctx, txsync.StatusCommitted)

	m.metrics.recordEnd(ctx, method, isolation, false, nil, m.elapsedSince(start))
	span.SetStatus(codes.Ok, "committed")
	return nil
}

func applyTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	if deadline, ok := ctx.Deadline(); ok {
		if time.Until(deadline) <= timeout {
			return ctx, func() {}
		}
	}
	return context.WithTimeout(ctx, timeout)
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}

func isoString(level pgx.TxIsoLevel) string {
	switch level {
	case pgx.Serializable:
		return "serializable"
	case pgx.RepeatableRead:
		return "repeatable_read"
	case pgx.ReadUncommitted:
		return "read_uncommitted"
	default:
		return "read_committed"
	}
}

func (m *managerImpl) elapsedSince(start time.Time) time.Duration {
	now := m.deps.clock()
	return now.Sub(start)
}
