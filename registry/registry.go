// Package registry keeps mutable component definitions that registrars and
// scanners may rewrite until Refresh, then hands them to a dig container that
// builds, caches and orders the components. On top of dig it adds factory
// objects, by-type autowiring and ready/dispose callbacks.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/go-kratos/kratos/v2/log"
	"go.uber.org/dig"
)

var (
	ErrDuplicateDefinition = errors.New("registry: component name already in use")
	ErrNoSuchComponent     = errors.New("registry: no component with that name")
	ErrNoUniqueComponent   = errors.New("registry: more than one component matches the type")
	ErrUnknownClass        = errors.New("registry: no constructor for class")
	ErrCircularReference   = errors.New("registry: circular reference")
	ErrAlreadyRefreshed    = errors.New("registry: already refreshed")
)

// CreationError reports a failure building one component.
type CreationError struct {
	Name string
	Err  error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("registry: create component '%s': %v", e.Name, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

// Registry holds definitions and the components built from them. Refresh is
// expected to run once, from one goroutine; Get is safe for concurrent use
// afterwards.
type Registry struct {
	mu         sync.Mutex
	log        *log.Helper
	classes    map[string]Constructor
	defs       map[string]*Definition
	order      []string
	components map[string]any
	products   map[string]any
	created    []string
	creating   map[string]bool
	registrars []DefinitionRegistrar
	container  *dig.Container
	refreshed  bool
}

// New returns an empty registry.
func New(logger log.Logger) *Registry {
	if logger == nil {
		logger = log.NewStdLogger(io.Discard)
	}
	return &Registry{
		log:        log.NewHelper(logger),
		classes:    make(map[string]Constructor),
		defs:       make(map[string]*Definition),
		components: make(map[string]any),
		products:   make(map[string]any),
		creating:   make(map[string]bool),
	}
}

// Logger returns the registry's logger for collaborators such as scanners.
func (r *Registry) Logger() *log.Helper { return r.log }

// RegisterClass binds a class name to its constructor.
func (r *Registry) RegisterClass(class string, ctor Constructor) {
	r.mu.Lock()
	r.classes[class] = ctor
	r.mu.Unlock()
}

// HasClass reports whether class has a constructor.
func (r *Registry) HasClass(class string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.classes[class]
	return ok
}

// Register adds a definition.
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.Name == "" {
		return errors.New("registry: definition requires a name")
	}
	if def.Class == "" {
		return fmt.Errorf("registry: definition '%s' requires a class", def.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.containsLocked(def.Name) {
		return fmt.Errorf("%w: %s", ErrDuplicateDefinition, def.Name)
	}
	r.defs[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// RegisterSingleton adds an already built component.
func (r *Registry) RegisterSingleton(name string, component any) error {
	if name == "" || component == nil {
		return errors.New("registry: singleton requires a name and a value")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.containsLocked(name) {
		return fmt.Errorf("%w: %s", ErrDuplicateDefinition, name)
	}
	r.components[name] = component
	r.order = append(r.order, name)
	r.created = append(r.created, name)
	return nil
}

// Contains reports whether name is a definition or a registered singleton.
func (r *Registry) Contains(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.containsLocked(name)
}

func (r *Registry) containsLocked(name string) bool {
	if _, ok := r.defs[name]; ok {
		return true
	}
	_, ok := r.components[name]
	return ok
}

// Definition returns the definition registered under name.
func (r *Registry) Definition(name string) (*Definition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.defs[name]
	return d, ok
}

// Names lists component names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// AddRegistrar queues a registrar for the next Refresh.
func (r *Registry) AddRegistrar(reg DefinitionRegistrar) {
	r.mu.Lock()
	r.registrars = append(r.registrars, reg)
	r.mu.Unlock()
}

// Refresh runs the registrars, provides every definition and singleton to a
// dig container under its component name, builds them in registration order
// and notifies ready listeners. Factory object products stay lazy.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if r.refreshed {
		r.mu.Unlock()
		return ErrAlreadyRefreshed
	}
	r.refreshed = true
	registrars := r.registrars
	r.registrars = nil
	r.mu.Unlock()

	for _, reg := range registrars {
		if err := reg.RegisterDefinitions(ctx, r); err != nil {
			return fmt.Errorf("registry: registrar: %w", err)
		}
	}

	r.mu.Lock()
	c := dig.New()
	for _, name := range r.order {
		if err := r.provideLocked(ctx, c, name); err != nil {
			r.mu.Unlock()
			return err
		}
	}
	r.container = c
	for _, name := range r.order {
		if _, err := r.componentLocked(name); err != nil {
			r.mu.Unlock()
			return err
		}
	}
	type listener struct {
		name string
		l    ReadyListener
	}
	var listeners []listener
	for _, name := range r.created {
		if l, ok := r.components[name].(ReadyListener); ok {
			listeners = append(listeners, listener{name: name, l: l})
		}
	}
	r.log.Infof("registry: refreshed components=%d", len(r.order))
	r.mu.Unlock()

	for _, ln := range listeners {
		if err := ln.l.OnReady(ctx); err != nil {
			return &CreationError{Name: ln.name, Err: err}
		}
	}
	return nil
}

// Get returns the component called name, or the product when it is a factory
// object. Prefix the name with FactoryPrefix for the factory itself.
func (r *Registry) Get(ctx context.Context, name string) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(ctx, name)
}

// GetByType returns the unique component whose type matches t.
func (r *Registry) GetByType(ctx context.Context, t reflect.Type) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := r.namesForTypeLocked(t, "")
	switch len(names) {
	case 0:
		return nil, fmt.Errorf("%w: type %v", ErrNoSuchComponent, t)
	case 1:
		return r.getLocked(ctx, names[0])
	default:
		return nil, fmt.Errorf("%w: %v matches %s", ErrNoUniqueComponent, t, strings.Join(names, ", "))
	}
}

// NamesForType lists components whose type matches t.
func (r *Registry) NamesForType(t reflect.Type) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.namesForTypeLocked(t, "")
}

// Close disposes components in reverse creation order and joins failures.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for i := len(r.created) - 1; i >= 0; i-- {
		name := r.created[i]
		if d, ok := r.components[name].(Disposer); ok {
			if err := d.Dispose(ctx); err != nil {
				errs = append(errs, fmt.Errorf("dispose %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) getLocked(ctx context.Context, name string) (any, error) {
	if raw, ok := strings.CutPrefix(name, FactoryPrefix); ok {
		return r.componentLocked(raw)
	}
	component, err := r.componentLocked(name)
	if err != nil {
		return nil, err
	}
	return r.productLocked(ctx, name, component)
}

func (r *Registry) productLocked(ctx context.Context, name string, component any) (any, error) {
	fo, ok := component.(FactoryObject)
	if !ok {
		return component, nil
	}
	if product, ok := r.products[name]; ok {
		return product, nil
	}
	product, err := fo.Object(ctx)
	if err != nil {
		return nil, &CreationError{Name: name, Err: err}
	}
	if fo.IsSingleton() {
		r.products[name] = product
	}
	return product, nil
}

// componentLocked resolves name through the container; dig builds and caches
// each component once.
func (r *Registry) componentLocked(name string) (any, error) {
	if c, ok := r.components[name]; ok {
		return c, nil
	}
	if !r.containsLocked(name) {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchComponent, name)
	}
	if r.container == nil {
		return nil, fmt.Errorf("registry: component '%s' requested before refresh", name)
	}
	if r.creating[name] {
		return nil, fmt.Errorf("%w: %s", ErrCircularReference, name)
	}
	var out any
	invoke := reflect.MakeFunc(reflect.FuncOf([]reflect.Type{inType([]string{name})}, nil, false),
		func(args []reflect.Value) []reflect.Value {
			out = args[0].Field(1).Interface().(*instance).value
			return nil
		})
	if err := r.container.Invoke(invoke.Interface()); err != nil {
		return nil, containerError(name, err)
	}
	return out, nil
}

// instance carries a component through the container; every component is
// provided as *instance named after the component.
type instance struct {
	value any
}

var (
	instanceType = reflect.TypeOf((*instance)(nil))
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
	digInType    = reflect.TypeOf(dig.In{})
)

// inType builds a dig parameter object with one named *instance field per
// component name.
func inType(names []string) reflect.Type {
	fields := make([]reflect.StructField, 0, len(names)+1)
	fields = append(fields, reflect.StructField{Name: "In", Type: digInType, Anonymous: true})
	for i, name := range names {
		fields = append(fields, reflect.StructField{
			Name: fmt.Sprintf("C%d", i),
			Type: instanceType,
			Tag:  reflect.StructTag(fmt.Sprintf("name:%q", name)),
		})
	}
	return reflect.StructOf(fields)
}

func (r *Registry) provideLocked(ctx context.Context, c *dig.Container, name string) error {
	if component, ok := r.components[name]; ok {
		err := c.Provide(func() *instance { return &instance{value: component} }, dig.Name(name))
		if err != nil {
			return &CreationError{Name: name, Err: err}
		}
		return nil
	}

	def := r.defs[name]
	ctor, ok := r.classes[def.Class]
	if !ok {
		return &CreationError{Name: name, Err: fmt.Errorf("%w: %s", ErrUnknownClass, def.Class)}
	}
	refs := def.references()
	for _, ref := range refs {
		if !r.containsLocked(ref) {
			return &CreationError{Name: name, Err: fmt.Errorf("%w: %s", ErrNoSuchComponent, ref)}
		}
	}

	fnType := reflect.FuncOf([]reflect.Type{inType(refs)}, []reflect.Type{instanceType, errorType}, false)
	fn := reflect.MakeFunc(fnType, func(args []reflect.Value) []reflect.Value {
		deps := make(map[string]any, len(refs))
		for i, ref := range refs {
			deps[ref] = args[0].Field(i + 1).Interface().(*instance).value
		}
		component, err := r.buildLocked(ctx, def, ctor, deps)
		if err != nil {
			errValue := reflect.New(errorType).Elem()
			errValue.Set(reflect.ValueOf(&CreationError{Name: name, Err: err}))
			return []reflect.Value{reflect.Zero(instanceType), errValue}
		}
		return []reflect.Value{reflect.ValueOf(&instance{value: component}), reflect.Zero(errorType)}
	})
	if err := c.Provide(fn.Interface(), dig.Name(name)); err != nil {
		if dig.IsCycleDetected(err) {
			return fmt.Errorf("%w: %s: %v", ErrCircularReference, name, err)
		}
		return &CreationError{Name: name, Err: err}
	}
	return nil
}

// containerError strips dig's wrapping so callers see the constructor's own
// failure.
func containerError(name string, err error) error {
	cause := dig.RootCause(err)
	var cerr *CreationError
	if errors.As(cause, &cerr) {
		return cerr
	}
	if errors.Is(cause, ErrCircularReference) {
		return cause
	}
	return &CreationError{Name: name, Err: err}
}

// buildLocked runs inside the container: deps holds the components named by
// the definition's references, already built by dig.
func (r *Registry) buildLocked(ctx context.Context, def *Definition, ctor Constructor, deps map[string]any) (any, error) {
	r.creating[def.Name] = true
	defer delete(r.creating, def.Name)

	resolve := func(v any) (any, error) {
		var target string
		switch ref := v.(type) {
		case Ref:
			target = ref.Name
		case *Ref:
			target = ref.Name
		default:
			return v, nil
		}
		if raw, ok := strings.CutPrefix(target, FactoryPrefix); ok {
			return deps[raw], nil
		}
		return r.productLocked(ctx, target, deps[target])
	}

	args := make([]any, len(def.ConstructorArgs))
	for i, a := range def.ConstructorArgs {
		v, err := resolve(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	component, err := ctor(context.WithValue(ctx, definitionKey{}, def), args)
	if err != nil {
		return nil, err
	}

	if len(def.Properties) > 0 {
		setter, ok := component.(PropertySetter)
		if !ok {
			return nil, fmt.Errorf("registry: %T does not accept properties", component)
		}
		for _, p := range def.Properties {
			v, err := resolve(p.Value)
			if err != nil {
				return nil, err
			}
			if err := setter.SetProperty(p.Name, v); err != nil {
				return nil, fmt.Errorf("property %s: %w", p.Name, err)
			}
		}
	}

	if def.Autowire == AutowireByType {
		if err := r.autowire(ctx, def.Name, component); err != nil {
			return nil, err
		}
	}

	if init, ok := component.(Initializer); ok {
		if err := init.AfterPropertiesSet(ctx); err != nil {
			return nil, err
		}
	}
	r.components[def.Name] = component
	r.created = append(r.created, def.Name)
	r.log.Debugf("registry: created component name=%s class=%s", def.Name, def.Class)
	return component, nil
}

// autowire fills unsatisfied dependencies with the unique component of each
// dependency type. No candidate leaves the property unset; several fail.
func (r *Registry) autowire(ctx context.Context, name string, component any) error {
	aw, ok := component.(Autowirable)
	if !ok {
		return nil
	}
	for _, dep := range aw.Dependencies() {
		if aw.Satisfied(dep.Property) {
			continue
		}
		names := r.namesForTypeLocked(dep.Type, name)
		switch len(names) {
		case 0:
			r.log.Debugf("registry: no candidate for %s.%s type=%v", name, dep.Property, dep.Type)
			continue
		case 1:
		default:
			return fmt.Errorf("%w: %s.%s type=%v candidates=%s", ErrNoUniqueComponent, name, dep.Property, dep.Type, strings.Join(names, ", "))
		}
		v, err := r.getLocked(ctx, names[0])
		if err != nil {
			return err
		}
		if err := aw.SetProperty(dep.Property, v); err != nil {
			return fmt.Errorf("property %s: %w", dep.Property, err)
		}
		r.log.Debugf("registry: autowired %s.%s from %s", name, dep.Property, names[0])
	}
	return nil
}

func (r *Registry) namesForTypeLocked(t reflect.Type, exclude string) []string {
	var out []string
	for _, name := range r.order {
		if name == exclude {
			continue
		}
		if typ := r.typeOfLocked(name); typ != nil && matches(typ, t) {
			out = append(out, name)
		}
	}
	return out
}

func (r *Registry) typeOfLocked(name string) reflect.Type {
	if c, ok := r.components[name]; ok {
		if fo, ok := c.(FactoryObject); ok {
			return fo.ObjectType()
		}
		return reflect.TypeOf(c)
	}
	if def, ok := r.defs[name]; ok {
		return def.Type
	}
	return nil
}

func matches(typ, want reflect.Type) bool {
	if typ == want {
		return true
	}
	if want.Kind() == reflect.Interface {
		return typ.Implements(want)
	}
	return typ.AssignableTo(want)
}
