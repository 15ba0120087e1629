package engine

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
)

// TypeAliasRegistry resolves short, case-insensitive names used in mapper
// files (resultType) to Go types.
type TypeAliasRegistry struct {
	aliases map[string]reflect.Type
}

func newTypeAliasRegistry() *TypeAliasRegistry {
	r := &TypeAliasRegistry{aliases: make(map[string]reflect.Type)}
	for alias, t := range map[string]reflect.Type{
		"string":  reflect.TypeOf(""),
		"int":     reflect.TypeOf(int(0)),
		"int32":   reflect.TypeOf(int32(0)),
		"int64":   reflect.TypeOf(int64(0)),
		"float64": reflect.TypeOf(float64(0)),
		"bool":    reflect.TypeOf(false),
		"bytes":   reflect.TypeOf([]byte(nil)),
		"time":    reflect.TypeOf(time.Time{}),
		"map":     reflect.TypeOf(map[string]any(nil)),
	} {
		r.aliases[alias] = t
	}
	return r
}

// RegisterAlias binds alias to t. Re-registering the same pair is a no-op;
// binding an alias to a different type fails.
func (r *TypeAliasRegistry) RegisterAlias(alias string, t reflect.Type) error {
	if alias == "" || t == nil {
		return NewConfigError(nil, "type alias and type are required")
	}
	key := strings.ToLower(alias)
	if existing, ok := r.aliases[key]; ok && existing != t {
		return NewConfigError(nil, "type alias '%s' is already mapped to %s", alias, existing)
	}
	r.aliases[key] = t
	return nil
}

// RegisterType registers t under its simple name.
func (r *TypeAliasRegistry) RegisterType(t reflect.Type) error {
	if t == nil {
		return NewConfigError(nil, "type is required")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return r.RegisterAlias(t.Name(), t)
}

// Resolve looks an alias up.
func (r *TypeAliasRegistry) Resolve(alias string) (reflect.Type, error) {
	t, ok := r.aliases[strings.ToLower(alias)]
	if !ok {
		return nil, NewConfigError(nil, "could not resolve type alias '%s'", alias)
	}
	return t, nil
}

// Aliases returns a snapshot of the registered aliases.
func (r *TypeAliasRegistry) Aliases() map[string]reflect.Type {
	out := make(map[string]reflect.Type, len(r.aliases))
	for k, v := range r.aliases {
		out[k] = v
	}
	return out
}

// TypeHandler converts between a Go type and the value handed to or read
// from the driver.
type TypeHandler interface {
	Type() reflect.Type
	ToDriver(v any) (any, error)
	FromDriver(src any) (any, error)
}

// TypeHandlerRegistry indexes handlers by the Go type they serve.
type TypeHandlerRegistry struct {
	handlers map[reflect.Type]TypeHandler
}

func newTypeHandlerRegistry() *TypeHandlerRegistry {
	return &TypeHandlerRegistry{handlers: make(map[reflect.Type]TypeHandler)}
}

// Register adds h; a later handler for the same type replaces the earlier one.
func (r *TypeHandlerRegistry) Register(h TypeHandler) error {
	if h == nil || h.Type() == nil {
		return NewConfigError(nil, "type handler must declare its Go type")
	}
	r.handlers[h.Type()] = h
	return nil
}

// Lookup returns the handler for t.
func (r *TypeHandlerRegistry) Lookup(t reflect.Type) (TypeHandler, bool) {
	if t == nil {
		return nil, false
	}
	h, ok := r.handlers[t]
	return h, ok
}

// Len reports the number of registered handlers.
func (r *TypeHandlerRegistry) Len() int { return len(r.handlers) }

// Cache stores query results per namespace.
type Cache interface {
	ID() string
	Get(key string) (any, bool)
	Put(key string, value any)
	Remove(key string)
	Clear()
	Size() int
}

// PerpetualCache is an unbounded in-memory Cache.
type PerpetualCache struct {
	id    string
	mu    sync.RWMutex
	items map[string]any
}

// NewPerpetualCache returns an empty cache identified by id.
func NewPerpetualCache(id string) *PerpetualCache {
	return &PerpetualCache{id: id, items: make(map[string]any)}
}

func (c *PerpetualCache) ID() string { return c.id }

func (c *PerpetualCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *PerpetualCache) Put(key string, value any) {
	c.mu.Lock()
	c.items[key] = value
	c.mu.Unlock()
}

func (c *PerpetualCache) Remove(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *PerpetualCache) Clear() {
	c.mu.Lock()
	c.items = make(map[string]any)
	c.mu.Unlock()
}

func (c *PerpetualCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// ObjectFactory instantiates result objects. Create returns a pointer to a
// new value of t.
type ObjectFactory interface {
	Create(t reflect.Type) (reflect.Value, error)
}

// DefaultObjectFactory allocates zero values.
type DefaultObjectFactory struct{}

func (DefaultObjectFactory) Create(t reflect.Type) (reflect.Value, error) {
	if t == nil {
		return reflect.Value{}, fmt.Errorf("engine: cannot create object of nil type")
	}
	return reflect.New(t), nil
}

// ObjectWrapper sets column values on a result object.
type ObjectWrapper interface {
	SetValue(column string, value any) error
}

// ObjectWrapperFactory supplies wrappers for result objects the built-in
// struct and map wrappers do not cover.
type ObjectWrapperFactory interface {
	HasWrapperFor(obj reflect.Value) bool
	WrapperFor(cfg *Configuration, obj reflect.Value) ObjectWrapper
}

type defaultWrapperFactory struct{}

func (defaultWrapperFactory) HasWrapperFor(reflect.Value) bool { return false }
func (defaultWrapperFactory) WrapperFor(*Configuration, reflect.Value) ObjectWrapper {
	return nil
}
