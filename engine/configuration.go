package engine

import (
	"fmt"
	"io"
	"io/fs"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// Settings are the engine switches a config resource may set.
type Settings struct {
	CacheEnabled             bool          `yaml:"cacheEnabled" json:"cacheEnabled"`
	MapUnderscoreToCamelCase bool          `yaml:"mapUnderscoreToCamelCase" json:"mapUnderscoreToCamelCase"`
	DefaultStatementTimeout  time.Duration `yaml:"defaultStatementTimeout" json:"defaultStatementTimeout"`
}

// DefaultSettings mirrors the engine defaults.
func DefaultSettings() Settings {
	return Settings{CacheEnabled: true}
}

// TypeResolver maps names found in resources to Go types and supplies the
// generated bindings that let a mapper interface be implemented.
type TypeResolver interface {
	ResolveType(name string) (reflect.Type, bool)
	ResolveMapper(t reflect.Type) (BindFunc, bool)
}

type pendingStatement struct {
	ms      *MappedStatement
	text    string
	missing string
}

// Configuration holds everything the engine knows: statements, fragments,
// caches, registries and the environment. It is assembled once and then only
// read, apart from mapper registration.
type Configuration struct {
	mu sync.RWMutex

	settings             Settings
	variables            map[string]string
	typeAliases          *TypeAliasRegistry
	typeHandlers         *TypeHandlerRegistry
	interceptors         []Interceptor
	caches               map[string]Cache
	statements           map[string]*MappedStatement
	fragments            map[string]string
	incomplete           []*pendingStatement
	pendingCacheRefs     map[string]string
	loadedResources      map[string]bool
	mappers              *MapperRegistry
	databaseID           string
	environment          *Environment
	objectFactory        ObjectFactory
	objectWrapperFactory ObjectWrapperFactory
	vfs                  fs.FS
	resolver             TypeResolver
	log                  *log.Helper
}

// NewConfiguration returns an empty configuration with default settings.
func NewConfiguration() *Configuration {
	cfg := &Configuration{
		settings:             DefaultSettings(),
		variables:            make(map[string]string),
		typeAliases:          newTypeAliasRegistry(),
		typeHandlers:         newTypeHandlerRegistry(),
		caches:               make(map[string]Cache),
		statements:           make(map[string]*MappedStatement),
		fragments:            make(map[string]string),
		pendingCacheRefs:     make(map[string]string),
		loadedResources:      make(map[string]bool),
		objectFactory:        DefaultObjectFactory{},
		objectWrapperFactory: defaultWrapperFactory{},
		log:                  log.NewHelper(log.NewStdLogger(io.Discard)),
	}
	cfg.mappers = newMapperRegistry(cfg)
	return cfg
}

func (c *Configuration) Settings() Settings         { return c.settings }
func (c *Configuration) SetSettings(s Settings)     { c.settings = s }
func (c *Configuration) DatabaseID() string         { return c.databaseID }
func (c *Configuration) SetDatabaseID(id string)    { c.databaseID = id }
func (c *Configuration) Environment() *Environment  { return c.environment }
func (c *Configuration) VFS() fs.FS                 { return c.vfs }
func (c *Configuration) SetVFS(vfs fs.FS)           { c.vfs = vfs }
func (c *Configuration) TypeResolver() TypeResolver { return c.resolver }

// Logger returns the helper the engine logs configuration problems through.
func (c *Configuration) Logger() *log.Helper { return c.log }

// SetLogger replaces the engine logger; nil is ignored.
func (c *Configuration) SetLogger(logger log.Logger) {
	if logger != nil {
		c.log = log.NewHelper(logger)
	}
}

// SetEnvironment installs the environment sessions are opened against.
func (c *Configuration) SetEnvironment(env *Environment) { c.environment = env }

// SetTypeResolver installs the resolver used for type names and mapper
// bindings.
func (c *Configuration) SetTypeResolver(r TypeResolver) { c.resolver = r }

// TypeAliasRegistry exposes the alias registry.
func (c *Configuration) TypeAliasRegistry() *TypeAliasRegistry { return c.typeAliases }

// TypeHandlerRegistry exposes the type handler registry.
func (c *Configuration) TypeHandlerRegistry() *TypeHandlerRegistry { return c.typeHandlers }

// Variables returns a copy of the variable table.
func (c *Configuration) Variables() map[string]string {
	out := make(map[string]string, len(c.variables))
	for k, v := range c.variables {
		out[k] = v
	}
	return out
}

// AddVariables merges vars into the variable table, replacing existing keys.
func (c *Configuration) AddVariables(vars map[string]string) {
	for k, v := range vars {
		c.variables[k] = v
	}
}

func (c *Configuration) ObjectFactory() ObjectFactory { return c.objectFactory }

func (c *Configuration) SetObjectFactory(f ObjectFactory) {
	if f != nil {
		c.objectFactory = f
	}
}

func (c *Configuration) ObjectWrapperFactory() ObjectWrapperFactory { return c.objectWrapperFactory }

func (c *Configuration) SetObjectWrapperFactory(f ObjectWrapperFactory) {
	if f != nil {
		c.objectWrapperFactory = f
	}
}

// AddInterceptor appends an interceptor to the chain.
func (c *Configuration) AddInterceptor(i Interceptor) {
	if i != nil {
		c.interceptors = append(c.interceptors, i)
	}
}

// Interceptors returns the chain in registration order.
func (c *Configuration) Interceptors() []Interceptor {
	return append([]Interceptor(nil), c.interceptors...)
}

// AddCache registers a namespace cache. Cache ids are unique.
func (c *Configuration) AddCache(cache Cache) error {
	if cache == nil {
		return NewConfigError(nil, "cache is required")
	}
	if _, ok := c.caches[cache.ID()]; ok {
		return NewConfigError(nil, "cache '%s' is already registered", cache.ID())
	}
	c.caches[cache.ID()] = cache
	return nil
}

// Cache returns the cache registered under id.
func (c *Configuration) Cache(id string) (Cache, bool) {
	cache, ok := c.caches[id]
	return cache, ok
}

// CacheNames lists registered cache ids.
func (c *Configuration) CacheNames() []string {
	names := make([]string, 0, len(c.caches))
	for id := range c.caches {
		names = append(names, id)
	}
	sort.Strings(names)
	return names
}

// IsResourceLoaded reports whether resource was already parsed.
func (c *Configuration) IsResourceLoaded(resource string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedResources[resource]
}

func (c *Configuration) addLoadedResource(resource string) {
	c.mu.Lock()
	c.loadedResources[resource] = true
	c.mu.Unlock()
}

// AddMappedStatement registers ms. Statement ids are unique.
func (c *Configuration) AddMappedStatement(ms *MappedStatement) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addStatementLocked(ms)
}

func (c *Configuration) addStatementLocked(ms *MappedStatement) error {
	if ms == nil || ms.ID == "" {
		return NewConfigError(nil, "mapped statement id is required")
	}
	if _, ok := c.statements[ms.ID]; ok {
		return NewConfigError(nil, "mapped statement '%s' already exists", ms.ID)
	}
	c.statements[ms.ID] = ms
	return nil
}

// HasStatement reports whether id is a resolved statement.
func (c *Configuration) HasStatement(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.statements[id]
	return ok
}

// MappedStatement returns the statement registered under id, first trying to
// resolve statements still waiting for fragments.
func (c *Configuration) MappedStatement(id string) (*MappedStatement, error) {
	c.mu.RLock()
	ms, ok := c.statements[id]
	pending := len(c.incomplete)
	c.mu.RUnlock()
	if ok {
		return ms, nil
	}
	if pending > 0 {
		c.resolvePending()
		c.mu.RLock()
		ms, ok = c.statements[id]
		c.mu.RUnlock()
		if ok {
			return ms, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrStatementNotFound, id)
}

// MappedStatementNames resolves every pending statement and returns all
// statement ids. Statements that still cannot be resolved fail the call.
func (c *Configuration) MappedStatementNames() ([]string, error) {
	c.resolvePending()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.incomplete) > 0 || len(c.pendingCacheRefs) > 0 {
		ierr := &IncompleteError{}
		for _, p := range c.incomplete {
			ierr.Statements = append(ierr.Statements, p.ms.ID)
			ierr.Reasons = append(ierr.Reasons, "unresolved include "+p.missing)
		}
		namespaces := make([]string, 0, len(c.pendingCacheRefs))
		for ns := range c.pendingCacheRefs {
			namespaces = append(namespaces, ns)
		}
		sort.Strings(namespaces)
		for _, ns := range namespaces {
			ierr.Statements = append(ierr.Statements, ns)
			ierr.Reasons = append(ierr.Reasons, "unresolved cache-ref "+c.pendingCacheRefs[ns])
		}
		return nil, ierr
	}
	names := make([]string, 0, len(c.statements))
	for id := range c.statements {
		names = append(names, id)
	}
	sort.Strings(names)
	return names, nil
}

// hasNamespace reports whether any statement, resolved or not, belongs to ns.
func (c *Configuration) hasNamespace(ns string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ms := range c.statements {
		if ms.Namespace == ns {
			return true
		}
	}
	for _, p := range c.incomplete {
		if p.ms.Namespace == ns {
			return true
		}
	}
	return false
}

// hasStatementOrPending reports whether id is resolved or waiting on a fragment.
func (c *Configuration) hasStatementOrPending(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.statements[id]; ok {
		return true
	}
	for _, p := range c.incomplete {
		if p.ms.ID == id {
			return true
		}
	}
	return false
}

func (c *Configuration) statementDatabaseID(id string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if ms, ok := c.statements[id]; ok {
		return ms.DatabaseID, true
	}
	for _, p := range c.incomplete {
		if p.ms.ID == id {
			return p.ms.DatabaseID, true
		}
	}
	return "", false
}

func (c *Configuration) addFragment(id, text string) {
	c.mu.Lock()
	c.fragments[id] = text
	c.mu.Unlock()
}

// addStatementText expands includes in text and registers the statement, or
// parks it until the missing fragment appears.
func (c *Configuration) addStatementText(ms *MappedStatement, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	expanded, missing := expandIncludes(text, ms.Namespace, c.fragments)
	if missing != "" {
		for _, p := range c.incomplete {
			if p.ms.ID == ms.ID {
				return NewConfigError(nil, "mapped statement '%s' already exists", ms.ID)
			}
		}
		c.incomplete = append(c.incomplete, &pendingStatement{ms: ms, text: text, missing: missing})
		return nil
	}
	ms.sql, ms.params = compilePlaceholders(expanded)
	return c.addStatementLocked(ms)
}

// resolvePending retries parked statements and cache references.
func (c *Configuration) resolvePending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	remaining := c.incomplete[:0]
	for _, p := range c.incomplete {
		expanded, missing := expandIncludes(p.text, p.ms.Namespace, c.fragments)
		if missing != "" {
			p.missing = missing
			remaining = append(remaining, p)
			continue
		}
		p.ms.sql, p.ms.params = compilePlaceholders(expanded)
		if cache, ok := c.caches[p.ms.Namespace]; ok && p.ms.Cache == nil {
			p.ms.Cache = cache
		}
		if err := c.addStatementLocked(p.ms); err != nil {
			p.missing = err.Error()
			remaining = append(remaining, p)
		}
	}
	c.incomplete = remaining

	for ns, ref := range c.pendingCacheRefs {
		cache, ok := c.caches[ref]
		if !ok {
			continue
		}
		c.caches[ns] = cache
		for _, ms := range c.statements {
			if ms.Namespace == ns {
				ms.Cache = cache
			}
		}
		for _, p := range c.incomplete {
			if p.ms.Namespace == ns {
				p.ms.Cache = cache
			}
		}
		delete(c.pendingCacheRefs, ns)
	}
}

// AddMapper registers a mapper interface.
func (c *Configuration) AddMapper(t reflect.Type) error { return c.mappers.Add(t) }

// HasMapper reports whether t is a registered mapper.
func (c *Configuration) HasMapper(t reflect.Type) bool { return c.mappers.Has(t) }

// GetMapper returns an implementation of t dispatching to ops.
func (c *Configuration) GetMapper(t reflect.Type, ops Operations) (any, error) {
	return c.mappers.Get(t, ops)
}

// MapperRegistry exposes the registered mapper interfaces.
func (c *Configuration) MapperRegistry() *MapperRegistry { return c.mappers }
