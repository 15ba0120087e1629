package registry

import (
	"context"
	"reflect"
	"strings"
)

// AutowireMode selects how unset dependencies of a component are filled.
type AutowireMode int

const (
	// AutowireNo leaves unset dependencies alone.
	AutowireNo AutowireMode = iota
	// AutowireByType fills each declared dependency with the unique
	// registered component of its type.
	AutowireByType
)

func (m AutowireMode) String() string {
	if m == AutowireByType {
		return "by_type"
	}
	return "no"
}

// Ref points at another component by name. Ref values in constructor args or
// properties are replaced by that component.
type Ref struct {
	Name string
}

// Property is one named value applied after construction.
type Property struct {
	Name  string
	Value any
}

// Definition tells the registry how to build one component.
type Definition struct {
	Name string
	// Class names the Constructor used to build the component.
	Class string
	// Type is the type the component exposes, or the product type for
	// factory objects. Used for by-type lookups before instantiation.
	Type            reflect.Type
	ConstructorArgs []any
	Properties      []Property
	Autowire        AutowireMode
	// Source records where the definition came from, e.g. the scanned type.
	Source string
}

// AddConstructorArg appends a constructor argument.
func (d *Definition) AddConstructorArg(v any) {
	d.ConstructorArgs = append(d.ConstructorArgs, v)
}

// SetProperty sets or replaces a property value.
func (d *Definition) SetProperty(name string, value any) {
	for i := range d.Properties {
		if d.Properties[i].Name == name {
			d.Properties[i].Value = value
			return
		}
	}
	d.Properties = append(d.Properties, Property{Name: name, Value: value})
}

// RemoveProperty drops a property.
func (d *Definition) RemoveProperty(name string) {
	out := d.Properties[:0]
	for _, p := range d.Properties {
		if p.Name != name {
			out = append(out, p)
		}
	}
	d.Properties = out
}

type definitionKey struct{}

// DefinitionFromContext returns the definition whose constructor is running.
// The registry sets it on the context passed to every Constructor.
func DefinitionFromContext(ctx context.Context) (*Definition, bool) {
	def, ok := ctx.Value(definitionKey{}).(*Definition)
	return def, ok
}

// references lists the component names the definition's Ref values point at,
// once each, in argument then property order.
func (d *Definition) references() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(v any) {
		var name string
		switch ref := v.(type) {
		case Ref:
			name = ref.Name
		case *Ref:
			name = ref.Name
		default:
			return
		}
		name = strings.TrimPrefix(name, FactoryPrefix)
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, a := range d.ConstructorArgs {
		add(a)
	}
	for _, p := range d.Properties {
		add(p.Value)
	}
	return out
}

// Property returns the value of a property.
func (d *Definition) Property(name string) (any, bool) {
	for _, p := range d.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// Constructor builds a component from its resolved constructor arguments.
type Constructor func(ctx context.Context, args []any) (any, error)

// PropertySetter receives definition properties after construction.
type PropertySetter interface {
	SetProperty(name string, value any) error
}

// Dependency is a property a component wants filled by type.
type Dependency struct {
	Property string
	Type     reflect.Type
}

// Autowirable components declare the dependencies AutowireByType fills.
// Satisfied reports whether a property already holds a value.
type Autowirable interface {
	PropertySetter
	Dependencies() []Dependency
	Satisfied(property string) bool
}

// Initializer is called once all properties are applied.
type Initializer interface {
	AfterPropertiesSet(ctx context.Context) error
}

// FactoryObject components expose a product instead of themselves. Request
// the factory itself with the name prefixed by FactoryPrefix.
type FactoryObject interface {
	Object(ctx context.Context) (any, error)
	ObjectType() reflect.Type
	IsSingleton() bool
}

// FactoryPrefix selects the factory object rather than its product in Get.
const FactoryPrefix = "&"

// ReadyListener is notified once Refresh instantiated every component.
type ReadyListener interface {
	OnReady(ctx context.Context) error
}

// Disposer components are released by Close in reverse creation order.
type Disposer interface {
	Dispose(ctx context.Context) error
}

// DefinitionRegistrar adds definitions during Refresh, before any component
// is instantiated.
type DefinitionRegistrar interface {
	RegisterDefinitions(ctx context.Context, r *Registry) error
}

// RegistrarFunc adapts a function to DefinitionRegistrar.
type RegistrarFunc func(ctx context.Context, r *Registry) error

func (f RegistrarFunc) RegisterDefinitions(ctx context.Context, r *Registry) error {
	return f(ctx, r)
}
