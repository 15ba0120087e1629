// Package txsync carries the active unit of work through context.Context.
//
// A Synchronization holds resources bound for the lifetime of one transaction
// (the connection opened by txmanager, sessions opened by the template) and
// the callbacks that release them when the transaction completes. It is owned
// by a single call path and is not safe for concurrent use.
package txsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bionicotaku/lingo-sqlmapper/datasource"
)

var (
	// ErrAlreadyBound is returned when a key already has a resource bound.
	ErrAlreadyBound = errors.New("txsync: resource already bound")
	// ErrCompleted is returned when mutating a finished synchronization.
	ErrCompleted = errors.New("txsync: synchronization already completed")
)

// Status reports how a unit of work finished.
type Status int

const (
	StatusUnknown Status = iota
	StatusCommitted
	StatusRolledBack
)

func (s Status) String() string {
	switch s {
	case StatusCommitted:
		return "committed"
	case StatusRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Callback observes completion of a unit of work.
type Callback interface {
	BeforeCompletion(ctx context.Context)
	AfterCompletion(ctx context.Context, status Status)
}

// CallbackFuncs adapts plain functions to Callback. Nil members are skipped.
type CallbackFuncs struct {
	Before func(ctx context.Context)
	After  func(ctx context.Context, status Status)
}

func (c CallbackFuncs) BeforeCompletion(ctx context.Context) {
	if c.Before != nil {
		c.Before(ctx)
	}
}

func (c CallbackFuncs) AfterCompletion(ctx context.Context, status Status) {
	if c.After != nil {
		c.After(ctx, status)
	}
}

// ConnectionHolder is the resource txmanager binds under its DataSource key.
type ConnectionHolder struct {
	Conn datasource.Conn
}

// Synchronization is the state of one active unit of work.
type Synchronization struct {
	id           string
	resources    map[any]any
	callbacks    []Callback
	rollbackOnly bool
	completed    bool
}

type ctxKey struct{}

// Begin attaches a fresh synchronization to ctx.
func Begin(ctx context.Context) (context.Context, *Synchronization) {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Synchronization{
		id:        uuid.NewString(),
		resources: make(map[any]any),
	}
	return context.WithValue(ctx, ctxKey{}, s), s
}

// FromContext returns the synchronization carried by ctx when it is still
// active.
func FromContext(ctx context.Context) (*Synchronization, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(ctxKey{}).(*Synchronization)
	if !ok || s == nil || s.completed {
		return nil, false
	}
	return s, true
}

// IsActive reports whether ctx carries an active unit of work.
func IsActive(ctx context.Context) bool {
	_, ok := FromContext(ctx)
	return ok
}

// ID identifies the unit of work in logs and spans.
func (s *Synchronization) ID() string { return s.id }

// Bind associates value with key for the rest of the unit of work.
func (s *Synchronization) Bind(key, value any) error {
	if s.completed {
		return ErrCompleted
	}
	if _, ok := s.resources[key]; ok {
		return fmt.Errorf("%w: %v", ErrAlreadyBound, key)
	}
	s.resources[key] = value
	return nil
}

// Resource returns the value bound to key.
func (s *Synchronization) Resource(key any) (any, bool) {
	v, ok := s.resources[key]
	return v, ok
}

// Unbind removes and returns the value bound to key.
func (s *Synchronization) Unbind(key any) (any, bool) {
	v, ok := s.resources[key]
	if ok {
		delete(s.resources, key)
	}
	return v, ok
}

// Register adds a completion callback. Callbacks run in registration order.
func (s *Synchronization) Register(cb Callback) error {
	if s.completed {
		return ErrCompleted
	}
	s.callbacks = append(s.callbacks, cb)
	return nil
}

// SetRollbackOnly marks the unit of work so that its boundary rolls back.
func (s *Synchronization) SetRollbackOnly() { s.rollbackOnly = true }

// RollbackOnly reports whether the unit of work must roll back.
func (s *Synchronization) RollbackOnly() bool { return s.rollbackOnly }

// TriggerBeforeCompletion runs BeforeCompletion on every callback.
func (s *Synchronization) TriggerBeforeCompletion(ctx context.Context) {
	for _, cb := range s.callbacks {
		cb.BeforeCompletion(ctx)
	}
}

// Complete runs AfterCompletion on every callback, clears bound resources and
// deactivates the synchronization.
func (s *Synchronization) Complete(ctx context.Context, status Status) {
	if s.completed {
		return
	}
	callbacks := s.callbacks
	s.callbacks = nil
	for _, cb := range callbacks {
		cb.AfterCompletion(ctx, status)
	}
	s.resources = make(map[any]any)
	s.completed = true
}
