package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Invoker dispatches a mapper method call. Generated mapper bindings forward
// every method to an Invoker.
type Invoker interface {
	Invoke(ctx context.Context, method string, out any, params Params) error
}

// BindFunc returns a value implementing a mapper interface whose methods
// forward to inv.
type BindFunc func(inv Invoker) any

// Namespace returns the statement namespace of a mapper interface.
func Namespace(t reflect.Type) string {
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}

type mapperEntry struct {
	typ       reflect.Type
	namespace string
	bind      BindFunc
}

// MapperRegistry tracks mapper interfaces known to a configuration.
type MapperRegistry struct {
	cfg   *Configuration
	mu    sync.RWMutex
	known map[reflect.Type]*mapperEntry
}

func newMapperRegistry(cfg *Configuration) *MapperRegistry {
	return &MapperRegistry{cfg: cfg, known: make(map[reflect.Type]*mapperEntry)}
}

// Add registers t. When its namespace has no statements yet, the mapper
// resource next to the interface is loaded from the VFS. Every method must
// resolve to a statement; otherwise t is not registered.
func (r *MapperRegistry) Add(t reflect.Type) (err error) {
	if t == nil || t.Kind() != reflect.Interface {
		return NewConfigError(nil, "mapper type %v is not an interface", t)
	}
	r.mu.Lock()
	if _, ok := r.known[t]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrMapperKnown, Namespace(t))
	}
	entry := &mapperEntry{typ: t, namespace: Namespace(t)}
	if r.cfg.resolver != nil {
		entry.bind, _ = r.cfg.resolver.ResolveMapper(t)
	}
	r.known[t] = entry
	r.mu.Unlock()

	defer func() {
		if err != nil {
			r.mu.Lock()
			delete(r.known, t)
			r.mu.Unlock()
		}
	}()

	if !r.cfg.hasNamespace(entry.namespace) {
		if err := r.loadResource(t); err != nil {
			return err
		}
	}
	var missing []string
	for i := 0; i < t.NumMethod(); i++ {
		name := t.Method(i).Name
		if !r.cfg.hasStatementOrPending(entry.namespace + "." + name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return NewConfigError(nil, "mapper %s has no mapped statement for %s", entry.namespace, strings.Join(missing, ", "))
	}
	return nil
}

// loadResource parses <Name>.yaml found under any suffix of the interface's
// package path in the VFS.
func (r *MapperRegistry) loadResource(t reflect.Type) error {
	vfs := r.cfg.vfs
	if vfs == nil {
		return nil
	}
	for _, candidate := range resourceCandidates(t) {
		data, err := fs.ReadFile(vfs, candidate)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return &ResourceError{Resource: candidate, Msg: "failed to read mapper resource", Err: err}
		}
		return NewMapperBuilder(r.cfg, candidate).Parse(data)
	}
	return nil
}

func resourceCandidates(t reflect.Type) []string {
	file := t.Name() + ".yaml"
	parts := strings.Split(t.PkgPath(), "/")
	out := make([]string, 0, len(parts)+1)
	for i := range parts {
		if parts[i] == "" {
			continue
		}
		out = append(out, path.Join(path.Join(parts[i:]...), file))
	}
	return append(out, file)
}

// Has reports whether t is registered.
func (r *MapperRegistry) Has(t reflect.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.known[t]
	return ok
}

// Types lists registered mapper interfaces ordered by namespace.
func (r *MapperRegistry) Types() []reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]reflect.Type, 0, len(r.known))
	for t := range r.known {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return Namespace(out[i]) < Namespace(out[j]) })
	return out
}

// Get returns an implementation of t bound to ops.
func (r *MapperRegistry) Get(t reflect.Type, ops Operations) (any, error) {
	r.mu.RLock()
	entry, ok := r.known[t]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrMapperUnknown, t)
	}
	bind := entry.bind
	if bind == nil && r.cfg.resolver != nil {
		bind, _ = r.cfg.resolver.ResolveMapper(t)
	}
	if bind == nil {
		return nil, NewConfigError(nil, "no generated binding for mapper %s", entry.namespace)
	}
	return bind(&MapperProxy{cfg: r.cfg, namespace: entry.namespace, ops: ops}), nil
}

// MapperProxy turns mapper method calls into statement executions on ops.
type MapperProxy struct {
	cfg       *Configuration
	namespace string
	ops       Operations
}

// NewMapperProxy returns a proxy dispatching statements of namespace to ops.
func NewMapperProxy(cfg *Configuration, namespace string, ops Operations) *MapperProxy {
	return &MapperProxy{cfg: cfg, namespace: namespace, ops: ops}
}

// Invoke runs the statement named after method. Selects fill out, a slice
// destination selecting a list; writes store the affected row count in out
// when it is non-nil.
func (p *MapperProxy) Invoke(ctx context.Context, method string, out any, params Params) error {
	ms, err := p.cfg.MappedStatement(p.namespace + "." + method)
	if err != nil {
		return err
	}
	var param any
	if len(params) > 0 {
		param = params
	}
	switch ms.Type {
	case StatementSelect:
		if out == nil {
			return fmt.Errorf("engine: %s: select requires a destination", ms.ID)
		}
		if isListDest(out) {
			return p.ops.SelectList(ctx, ms.ID, param, out)
		}
		return p.ops.SelectOne(ctx, ms.ID, param, out)
	case StatementInsert, StatementUpdate, StatementDelete:
		var n int64
		switch ms.Type {
		case StatementInsert:
			n, err = p.ops.Insert(ctx, ms.ID, param)
		case StatementUpdate:
			n, err = p.ops.Update(ctx, ms.ID, param)
		default:
			n, err = p.ops.Delete(ctx, ms.ID, param)
		}
		if err != nil {
			return err
		}
		return storeCount(out, n)
	}
	return fmt.Errorf("engine: %s: unsupported statement type %s", ms.ID, ms.Type)
}

func storeCount(out any, n int64) error {
	switch v := out.(type) {
	case nil:
		return nil
	case *int64:
		*v = n
	case *int:
		*v = int(n)
	case *int32:
		*v = int32(n)
	case *bool:
		*v = n > 0
	default:
		return fmt.Errorf("engine: cannot store row count in %T", out)
	}
	return nil
}
