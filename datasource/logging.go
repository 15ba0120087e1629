package datasource

import (
	"context"
	"io"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/jackc/pgx/v5"
)

type queryLogger struct {
	helper *log.Helper
}

func newQueryLogger(helper *log.Helper) pgx.QueryTracer {
	if helper == nil {
		helper = log.NewHelper(log.NewStdLogger(io.Discard))
	}
	return &queryLogger{helper: helper}
}

// TraceQueryStart implements pgx.QueryTracer. Start events only carry the
// statement text forward at debug level.
func (l *queryLogger) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	l.helper.WithContext(ctx).Debugf("datasource: query start args=%d", len(data.Args))
	return ctx
}

// TraceQueryEnd logs failures without including SQL text to avoid leaking
// sensitive data.
func (l *queryLogger) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	if data.Err == nil {
		return
	}
	l.helper.WithContext(ctx).Errorf("datasource: query failed command_tag=%s err=%v", data.CommandTag.String(), data.Err)
}
