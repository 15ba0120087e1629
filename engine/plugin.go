package engine

import "context"

// Operation names reported to interceptors.
const (
	OpQuery  = "query"
	OpUpdate = "update"
)

// Invocation describes one statement execution passing through the
// interceptor chain. Interceptors may rewrite SQL or Args before calling next.
type Invocation struct {
	Op        string
	Statement *MappedStatement
	Param     any
	SQL       string
	Args      []any
}

// Handler continues an invocation.
type Handler func(ctx context.Context, inv *Invocation) (any, error)

// Interceptor wraps statement execution. Interceptors run in registration
// order, the first registered being outermost.
type Interceptor interface {
	Intercept(ctx context.Context, inv *Invocation, next Handler) (any, error)
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(ctx context.Context, inv *Invocation, next Handler) (any, error)

func (f InterceptorFunc) Intercept(ctx context.Context, inv *Invocation, next Handler) (any, error) {
	return f(ctx, inv, next)
}

func chain(interceptors []Interceptor, last Handler) Handler {
	h := last
	for i := len(interceptors) - 1; i >= 0; i-- {
		ic, next := interceptors[i], h
		h = func(ctx context.Context, inv *Invocation) (any, error) {
			return ic.Intercept(ctx, inv, next)
		}
	}
	return h
}
