// Package sessionfactory assembles an engine configuration from explicit
// objects, scanned packages and YAML resources and builds the singleton
// session factory handed to templates and mappers.
package sessionfactory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"reflect"
	"strings"
	"sync"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/bionicotaku/lingo-sqlmapper/catalog"
	"github.com/bionicotaku/lingo-sqlmapper/datasource"
	"github.com/bionicotaku/lingo-sqlmapper/engine"
	"github.com/bionicotaku/lingo-sqlmapper/registry"
	"github.com/bionicotaku/lingo-sqlmapper/transaction"
)

// DefaultEnvironment names the environment installed when Environment is empty.
const DefaultEnvironment = "SessionFactoryBuilder"

var sessionFactoryType = reflect.TypeOf((*engine.SessionFactory)(nil)).Elem()

// Builder builds one engine.SessionFactory. Fields are read once, on the
// first Build; the builder is not meant to be configured concurrently.
type Builder struct {
	DataSource datasource.DataSource
	// Configuration and ConfigLocation are mutually exclusive. With neither,
	// an empty configuration is used.
	Configuration  *engine.Configuration
	ConfigLocation string
	// VFS serves ConfigLocation, MapperLocations and namespace resources.
	VFS fs.FS
	// MapperLocations are fs.Glob patterns. Blank entries are skipped.
	MapperLocations []string
	Properties      map[string]string

	ObjectFactory        engine.ObjectFactory
	ObjectWrapperFactory engine.ObjectWrapperFactory

	// TypeAliasesPackage lists packages, separated by commas, semicolons or
	// whitespace, whose concrete types are registered under their simple
	// names. TypeAliasesSuperType restricts the scan to assignable types.
	TypeAliasesPackage   string
	TypeAliasesSuperType reflect.Type
	TypeAliases          []reflect.Type

	// Plugins are installed in order.
	Plugins []engine.Interceptor

	// TypeHandlersPackage lists packages whose structs implementing
	// engine.TypeHandler are instantiated and registered.
	TypeHandlersPackage string
	TypeHandlers        []engine.TypeHandler

	DatabaseIDProvider datasource.DatabaseIDProvider
	Cache              engine.Cache

	Environment string
	// TransactionFactory defaults to transaction.ManagedFactory.
	TransactionFactory engine.TransactionFactory

	// FailFast resolves every mapped statement once the registry is ready.
	FailFast bool

	// Catalog resolves scanned packages and type names; catalog.Default
	// when nil.
	Catalog *catalog.Catalog
	Logger  log.Logger

	mu      sync.Mutex
	factory *engine.DefaultSessionFactory
	log     *log.Helper
}

var (
	_ registry.FactoryObject = (*Builder)(nil)
	_ registry.Initializer   = (*Builder)(nil)
	_ registry.ReadyListener = (*Builder)(nil)
)

// Build assembles the configuration and builds the factory on the first
// call; later calls return the same factory.
func (b *Builder) Build(ctx context.Context) (*engine.DefaultSessionFactory, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.factory != nil {
		return b.factory, nil
	}
	factory, err := b.build(ctx)
	if err != nil {
		return nil, err
	}
	b.factory = factory
	return factory, nil
}

// AfterPropertiesSet builds the factory.
func (b *Builder) AfterPropertiesSet(ctx context.Context) error {
	_, err := b.Build(ctx)
	return err
}

// Object returns the session factory, building it when needed.
func (b *Builder) Object(ctx context.Context) (any, error) {
	factory, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}
	return factory, nil
}

// ObjectType reports engine.SessionFactory.
func (b *Builder) ObjectType() reflect.Type { return sessionFactoryType }

// IsSingleton is always true.
func (b *Builder) IsSingleton() bool { return true }

// OnReady resolves every mapped statement when FailFast is set so that
// incomplete statements fail startup instead of their first call.
func (b *Builder) OnReady(ctx context.Context) error {
	if !b.FailFast {
		return nil
	}
	factory, err := b.Build(ctx)
	if err != nil {
		return err
	}
	if _, err := factory.Configuration().MappedStatementNames(); err != nil {
		return fmt.Errorf("sessionfactory: fail-fast check: %w", err)
	}
	return nil
}

func (b *Builder) helper() *log.Helper {
	if b.log == nil {
		logger := b.Logger
		if logger == nil {
			logger = log.NewStdLogger(io.Discard)
		}
		b.log = log.NewHelper(logger)
	}
	return b.log
}

func (b *Builder) catalog() *catalog.Catalog {
	if b.Catalog != nil {
		return b.Catalog
	}
	return catalog.Default
}

func (b *Builder) build(ctx context.Context) (*engine.DefaultSessionFactory, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	logger := b.helper()

	cfg := b.Configuration
	if cfg == nil {
		if b.ConfigLocation == "" {
			logger.Debugf("sessionfactory: property 'configuration' or 'configLocation' not specified, using default configuration")
		}
		cfg = engine.NewConfiguration()
	}
	if cfg.TypeResolver() == nil {
		cfg.SetTypeResolver(b.catalog())
	}
	cfg.SetLogger(b.Logger)

	if len(b.Properties) > 0 {
		cfg.AddVariables(b.Properties)
	}
	cfg.SetObjectFactory(b.ObjectFactory)
	cfg.SetObjectWrapperFactory(b.ObjectWrapperFactory)
	if b.VFS != nil {
		cfg.SetVFS(b.VFS)
	}

	if err := b.registerTypeAliases(cfg); err != nil {
		return nil, err
	}
	for _, plugin := range b.Plugins {
		cfg.AddInterceptor(plugin)
		logger.Debugf("sessionfactory: registered plugin %T", plugin)
	}
	if err := b.registerTypeHandlers(cfg); err != nil {
		return nil, err
	}

	// Mapper resources select statements by database id, so it is resolved
	// before any of them is parsed.
	if b.DatabaseIDProvider != nil {
		id, err := b.DatabaseIDProvider.DatabaseID(ctx, b.DataSource)
		if err != nil {
			return nil, engine.NewConfigError(err, "failed getting a databaseId")
		}
		cfg.SetDatabaseID(id)
		logger.Debugf("sessionfactory: database id=%q", id)
	}

	if b.Cache != nil {
		if err := cfg.AddCache(b.Cache); err != nil {
			return nil, err
		}
	}

	if b.ConfigLocation != "" {
		if err := parseConfigResource(cfg, b.ConfigLocation); err != nil {
			return nil, err
		}
		logger.Debugf("sessionfactory: parsed configuration file: '%s'", b.ConfigLocation)
	}

	tf := b.TransactionFactory
	if tf == nil {
		tf = transaction.NewManagedFactory(b.Logger)
	}
	name := b.Environment
	if name == "" {
		name = DefaultEnvironment
	}
	env, err := engine.NewEnvironment(name, tf, b.DataSource)
	if err != nil {
		return nil, err
	}
	cfg.SetEnvironment(env)

	if err := b.parseMapperLocations(cfg); err != nil {
		return nil, err
	}
	return engine.Build(cfg), nil
}

func (b *Builder) registerTypeAliases(cfg *engine.Configuration) error {
	aliases := cfg.TypeAliasRegistry()
	for _, pkg := range tokenize(b.TypeAliasesPackage) {
		for _, d := range b.catalog().Scan(pkg) {
			if d.IsPackageInfo() || d.Kind == catalog.KindInterface {
				continue
			}
			if !d.Loaded() {
				b.helper().Warnf("sessionfactory: cannot load type alias candidate %s: %s", d.FullName(), d.Err)
				continue
			}
			if b.TypeAliasesSuperType != nil && !assignable(d.Type, b.TypeAliasesSuperType) {
				continue
			}
			if err := aliases.RegisterType(d.Type); err != nil {
				return err
			}
			b.helper().Debugf("sessionfactory: scanned type alias %s", d.FullName())
		}
	}
	for _, t := range b.TypeAliases {
		if err := aliases.RegisterType(t); err != nil {
			return err
		}
		b.helper().Debugf("sessionfactory: registered type alias %v", t)
	}
	return nil
}

func (b *Builder) registerTypeHandlers(cfg *engine.Configuration) error {
	handlers := cfg.TypeHandlerRegistry()
	for _, pkg := range tokenize(b.TypeHandlersPackage) {
		for _, d := range b.catalog().Scan(pkg) {
			if d.Kind != catalog.KindStruct {
				continue
			}
			if !d.Loaded() {
				b.helper().Warnf("sessionfactory: cannot load type handler candidate %s: %s", d.FullName(), d.Err)
				continue
			}
			h, ok := instantiateHandler(cfg, d.Type)
			if !ok {
				continue
			}
			if err := handlers.Register(h); err != nil {
				b.helper().Warnf("sessionfactory: skipping type handler %s: %v", d.FullName(), err)
				continue
			}
			b.helper().Debugf("sessionfactory: scanned type handler %s", d.FullName())
		}
	}
	for _, h := range b.TypeHandlers {
		if err := handlers.Register(h); err != nil {
			return err
		}
		b.helper().Debugf("sessionfactory: registered type handler %T", h)
	}
	return nil
}

func (b *Builder) parseMapperLocations(cfg *engine.Configuration) error {
	logger := b.helper()
	if b.MapperLocations == nil {
		logger.Debugf("sessionfactory: property 'mapperLocations' was not specified")
		return nil
	}
	resources, err := b.resolveMapperLocations(cfg.VFS())
	if err != nil {
		return err
	}
	if len(resources) == 0 {
		logger.Warnf("sessionfactory: property 'mapperLocations' was specified but matching resources are not found")
		return nil
	}
	for _, res := range resources {
		data, err := fs.ReadFile(cfg.VFS(), res)
		if err != nil {
			return &engine.ResourceError{Resource: res, Msg: "failed to read mapping resource", Err: err}
		}
		if err := engine.NewMapperBuilder(cfg, res).Parse(data); err != nil {
			var rerr *engine.ResourceError
			if errors.As(err, &rerr) {
				return err
			}
			return &engine.ResourceError{Resource: res, Msg: "failed to parse mapping resource", Err: err}
		}
		logger.Debugf("sessionfactory: parsed mapper file: '%s'", res)
	}
	return nil
}

func (b *Builder) resolveMapperLocations(vfs fs.FS) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	for _, loc := range b.MapperLocations {
		loc = strings.TrimSpace(loc)
		if loc == "" {
			continue
		}
		if vfs == nil {
			return nil, &engine.ResourceError{Resource: loc, Msg: "no VFS configured to load mapping resource"}
		}
		matches, err := fs.Glob(vfs, loc)
		if err != nil {
			return nil, &engine.ResourceError{Resource: loc, Msg: "invalid mapper location", Err: err}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out, nil
}

func parseConfigResource(cfg *engine.Configuration, location string) error {
	if cfg.VFS() == nil {
		return &engine.ResourceError{Resource: location, Msg: "no VFS configured to load configuration resource"}
	}
	data, err := fs.ReadFile(cfg.VFS(), location)
	if err != nil {
		return &engine.ResourceError{Resource: location, Msg: "failed to read configuration resource", Err: err}
	}
	return engine.NewConfigBuilder(cfg, location).Parse(data)
}

// instantiateHandler creates t through the object factory and returns it when
// the value or its pointer is a TypeHandler.
func instantiateHandler(cfg *engine.Configuration, t reflect.Type) (engine.TypeHandler, bool) {
	ptr, err := cfg.ObjectFactory().Create(t)
	if err != nil || !ptr.IsValid() {
		return nil, false
	}
	if h, ok := ptr.Interface().(engine.TypeHandler); ok {
		return h, true
	}
	if h, ok := ptr.Elem().Interface().(engine.TypeHandler); ok {
		return h, true
	}
	return nil, false
}

func assignable(t, super reflect.Type) bool {
	if t.AssignableTo(super) {
		return true
	}
	return super.Kind() == reflect.Interface && reflect.PointerTo(t).Implements(super)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\t', '\n':
			return true
		}
		return false
	})
}
