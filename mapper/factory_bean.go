// Package mapper exposes mapper interfaces as registry components: the
// FactoryBean produces one mapper implementation per interface and the
// ClassPathScanner turns catalog descriptors into FactoryBean definitions.
package mapper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/bionicotaku/lingo-sqlmapper/catalog"
	"github.com/bionicotaku/lingo-sqlmapper/engine"
	"github.com/bionicotaku/lingo-sqlmapper/registry"
	"github.com/bionicotaku/lingo-sqlmapper/support"
	"github.com/bionicotaku/lingo-sqlmapper/template"
)

// FactoryBeanClass is the registry class name of FactoryBean.
const FactoryBeanClass = "github.com/bionicotaku/lingo-sqlmapper/mapper.FactoryBean"

// Property names understood by FactoryBean.
const (
	PropertyAddToConfig     = "addToConfig"
	PropertySessionFactory  = "sessionFactory"
	PropertySessionTemplate = "sessionTemplate"
)

// ErrNoMapperInterface is returned when a FactoryBean has no interface.
var ErrNoMapperInterface = errors.New("mapper: property 'mapperInterface' is required")

var (
	sessionFactoryType  = reflect.TypeOf((*engine.SessionFactory)(nil)).Elem()
	sessionTemplateType = reflect.TypeOf((*template.SessionTemplate)(nil))
)

// FactoryBean produces the implementation of one mapper interface bound to a
// session template.
type FactoryBean struct {
	support.DAOSupport

	mapperInterface reflect.Type
	addToConfig     bool
	log             *log.Helper
}

var (
	_ registry.FactoryObject = (*FactoryBean)(nil)
	_ registry.Autowirable   = (*FactoryBean)(nil)
	_ registry.Initializer   = (*FactoryBean)(nil)
)

// NewFactoryBean returns a bean for iface that registers it with the engine
// configuration by default.
func NewFactoryBean(iface reflect.Type, logger log.Logger) *FactoryBean {
	if logger == nil {
		logger = log.NewStdLogger(io.Discard)
	}
	return &FactoryBean{
		mapperInterface: iface,
		addToConfig:     true,
		log:             log.NewHelper(logger),
	}
}

// NewFactoryBeanConstructor returns the registry constructor for
// FactoryBeanClass. Its single argument is the interface full name, resolved
// through cat, or a reflect.Type.
func NewFactoryBeanConstructor(cat *catalog.Catalog, logger log.Logger) registry.Constructor {
	return func(ctx context.Context, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("mapper: factory bean takes 1 constructor argument, got %d", len(args))
		}
		iface, err := resolveInterface(ctx, cat, args[0])
		if err != nil {
			return nil, err
		}
		return NewFactoryBean(iface, logger), nil
	}
}

// resolveInterface looks a name up in cat, then falls back to the type the
// definition being built declares, so definitions scanned from another
// catalog still resolve.
func resolveInterface(ctx context.Context, cat *catalog.Catalog, arg any) (reflect.Type, error) {
	switch v := arg.(type) {
	case reflect.Type:
		return v, nil
	case string:
		if cat != nil {
			if t, ok := cat.ResolveType(v); ok {
				return t, nil
			}
		}
		if def, ok := registry.DefinitionFromContext(ctx); ok && def.Type != nil &&
			def.Type.Kind() == reflect.Interface && catalog.PackageOf(def.Type)+"."+def.Type.Name() == v {
			return def.Type, nil
		}
		if cat == nil {
			return nil, fmt.Errorf("mapper: no catalog to resolve %s", v)
		}
		return nil, fmt.Errorf("mapper: mapper interface %s is not in the catalog", v)
	default:
		return nil, fmt.Errorf("mapper: unsupported mapper interface argument %T", arg)
	}
}

// MapperInterface returns the interface this bean implements.
func (b *FactoryBean) MapperInterface() reflect.Type { return b.mapperInterface }

// AddToConfig reports whether the interface is registered with the engine.
func (b *FactoryBean) AddToConfig() bool { return b.addToConfig }

// SetAddToConfig toggles engine registration.
func (b *FactoryBean) SetAddToConfig(v bool) { b.addToConfig = v }

// SetProperty implements registry.PropertySetter.
func (b *FactoryBean) SetProperty(name string, value any) error {
	switch name {
	case PropertyAddToConfig:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("mapper: %s must be a bool, got %T", name, value)
		}
		b.addToConfig = v
	case PropertySessionFactory:
		f, ok := value.(engine.SessionFactory)
		if !ok {
			return fmt.Errorf("mapper: %s must be an engine.SessionFactory, got %T", name, value)
		}
		b.SetSessionFactory(f)
	case PropertySessionTemplate:
		t, ok := value.(*template.SessionTemplate)
		if !ok {
			return fmt.Errorf("mapper: %s must be a *template.SessionTemplate, got %T", name, value)
		}
		b.SetSessionTemplate(t)
	default:
		return fmt.Errorf("mapper: unknown property %q", name)
	}
	return nil
}

// Dependencies implements registry.Autowirable. The template is filled after
// the factory so that it wins when both resolve.
func (b *FactoryBean) Dependencies() []registry.Dependency {
	return []registry.Dependency{
		{Property: PropertySessionFactory, Type: sessionFactoryType},
		{Property: PropertySessionTemplate, Type: sessionTemplateType},
	}
}

// Satisfied implements registry.Autowirable.
func (b *FactoryBean) Satisfied(property string) bool {
	switch property {
	case PropertySessionFactory:
		return b.SessionFactory() != nil
	case PropertySessionTemplate:
		return b.ExternalTemplate()
	}
	return false
}

// AfterPropertiesSet validates the bean and registers the interface with the
// engine configuration when requested.
func (b *FactoryBean) AfterPropertiesSet(context.Context) error {
	if err := b.CheckDAOConfig(); err != nil {
		return err
	}
	if b.mapperInterface == nil {
		return ErrNoMapperInterface
	}
	if b.mapperInterface.Kind() != reflect.Interface {
		return fmt.Errorf("mapper: %v is not an interface", b.mapperInterface)
	}
	cfg := b.SessionTemplate().Configuration()
	if !b.addToConfig || cfg.HasMapper(b.mapperInterface) {
		return nil
	}
	if err := cfg.AddMapper(b.mapperInterface); err != nil {
		b.log.Errorf("mapper: error adding mapper to configuration mapper=%v err=%v", b.mapperInterface, err)
		return engine.NewConfigError(err, "adding mapper %v to configuration", b.mapperInterface)
	}
	return nil
}

// Object returns the mapper implementation.
func (b *FactoryBean) Object(context.Context) (any, error) {
	if b.SessionTemplate() == nil {
		return nil, support.ErrNoSessionSource
	}
	return b.SessionTemplate().GetMapper(b.mapperInterface)
}

// ObjectType returns the mapper interface.
func (b *FactoryBean) ObjectType() reflect.Type { return b.mapperInterface }

// IsSingleton is always true.
func (b *FactoryBean) IsSingleton() bool { return true }
