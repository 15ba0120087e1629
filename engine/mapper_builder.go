package engine

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type mapperDocument struct {
	Namespace  string              `yaml:"namespace"`
	Cache      bool                `yaml:"cache"`
	CacheRef   string              `yaml:"cacheRef"`
	SQL        []fragmentDocument  `yaml:"sql"`
	Statements []statementDocument `yaml:"statements"`
}

type fragmentDocument struct {
	ID  string `yaml:"id"`
	SQL string `yaml:"sql"`
}

type statementDocument struct {
	ID         string `yaml:"id"`
	Type       string `yaml:"type"`
	DatabaseID string `yaml:"databaseId"`
	ResultType string `yaml:"resultType"`
	SQL        string `yaml:"sql"`
	Timeout    string `yaml:"timeout"`
	FlushCache *bool  `yaml:"flushCache"`
	UseCache   *bool  `yaml:"useCache"`
}

// MapperBuilder parses a YAML mapper resource into mapped statements.
//
//	namespace: example.com/app/mappers.UserMapper
//	cache: true
//	sql:
//	  - id: columns
//	    sql: id, name, created_at
//	statements:
//	  - id: FindByID
//	    type: select
//	    resultType: User
//	    sql: select <include refid="columns"/> from ${schema}.users where id = #{id}
type MapperBuilder struct {
	cfg      *Configuration
	resource string
}

// NewMapperBuilder returns a builder writing into cfg. resource names the
// document in errors and guards against loading it twice.
func NewMapperBuilder(cfg *Configuration, resource string) *MapperBuilder {
	return &MapperBuilder{cfg: cfg, resource: resource}
}

// Parse decodes data and registers its fragments and statements. Statements
// are selected by database id: one tagged with the configuration's id wins
// over an untagged one with the same id, and statements tagged for another
// database are skipped.
func (b *MapperBuilder) Parse(data []byte) error {
	if b.cfg.IsResourceLoaded(b.resource) {
		return nil
	}
	var doc mapperDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return b.fail("failed to parse mapper resource", err)
	}
	ns := strings.TrimSpace(doc.Namespace)
	if ns == "" {
		return b.fail("mapper namespace is required", nil)
	}
	if b.cfg.IsResourceLoaded("namespace:" + ns) {
		return nil
	}

	if err := b.applyCache(ns, doc); err != nil {
		return b.fail("invalid cache for "+ns, err)
	}
	for _, frag := range doc.SQL {
		if frag.ID == "" {
			return b.fail("sql fragment id is required", nil)
		}
		b.cfg.addFragment(qualify(ns, frag.ID), ParseVariables(frag.SQL, b.cfg.variables))
	}

	if id := b.cfg.databaseID; id != "" {
		if err := b.addStatements(ns, doc.Statements, id); err != nil {
			return err
		}
	}
	if err := b.addStatements(ns, doc.Statements, ""); err != nil {
		return err
	}

	b.cfg.addLoadedResource(b.resource)
	b.cfg.addLoadedResource("namespace:" + ns)
	b.bindNamespace(ns)
	b.cfg.resolvePending()
	return nil
}

func (b *MapperBuilder) applyCache(ns string, doc mapperDocument) error {
	if doc.Cache {
		if _, ok := b.cfg.Cache(ns); ok {
			return nil
		}
		return b.cfg.AddCache(NewPerpetualCache(ns))
	}
	if ref := strings.TrimSpace(doc.CacheRef); ref != "" {
		if cache, ok := b.cfg.Cache(ref); ok {
			b.cfg.caches[ns] = cache
			return nil
		}
		b.cfg.mu.Lock()
		b.cfg.pendingCacheRefs[ns] = ref
		b.cfg.mu.Unlock()
	}
	return nil
}

func (b *MapperBuilder) addStatements(ns string, docs []statementDocument, requiredDatabaseID string) error {
	for _, sd := range docs {
		if !b.databaseIDMatches(ns+"."+sd.ID, sd.DatabaseID, requiredDatabaseID) {
			continue
		}
		ms, err := b.buildStatement(ns, sd)
		if err != nil {
			return b.fail("invalid statement "+sd.ID, err)
		}
		if err := b.cfg.addStatementText(ms, ParseVariables(sd.SQL, b.cfg.variables)); err != nil {
			return b.fail("invalid statement "+sd.ID, err)
		}
	}
	return nil
}

func (b *MapperBuilder) databaseIDMatches(id, databaseID, required string) bool {
	if required != "" {
		return databaseID == required
	}
	if databaseID != "" {
		return false
	}
	existing, ok := b.cfg.statementDatabaseID(id)
	return !ok || existing == ""
}

func (b *MapperBuilder) buildStatement(ns string, sd statementDocument) (*MappedStatement, error) {
	if strings.TrimSpace(sd.ID) == "" {
		return nil, NewConfigError(nil, "statement id is required")
	}
	typ, err := ParseStatementType(sd.Type)
	if err != nil {
		return nil, err
	}
	ms := &MappedStatement{
		ID:         ns + "." + sd.ID,
		Namespace:  ns,
		Resource:   b.resource,
		Type:       typ,
		DatabaseID: sd.DatabaseID,
		FlushCache: typ != StatementSelect,
		UseCache:   typ == StatementSelect,
	}
	if sd.FlushCache != nil {
		ms.FlushCache = *sd.FlushCache
	}
	if sd.UseCache != nil {
		ms.UseCache = *sd.UseCache
	}
	if sd.Timeout != "" {
		if ms.Timeout, err = parseDuration(sd.Timeout); err != nil {
			return nil, err
		}
	}
	if sd.ResultType != "" {
		if ms.ResultType, err = resolveTypeName(b.cfg, sd.ResultType); err != nil {
			return nil, err
		}
	}
	if cache, ok := b.cfg.Cache(ns); ok {
		ms.Cache = cache
	}
	return ms, nil
}

// bindNamespace registers the mapper interface named by ns when the type
// resolver knows it.
func (b *MapperBuilder) bindNamespace(ns string) {
	if b.cfg.resolver == nil {
		return
	}
	t, ok := b.cfg.resolver.ResolveType(ns)
	if !ok || t.Kind() != reflect.Interface || b.cfg.HasMapper(t) {
		return
	}
	if err := b.cfg.AddMapper(t); err != nil {
		b.cfg.log.Warnf("engine: resource %s: cannot bind namespace %s to its mapper interface: %v", b.resource, ns, err)
	}
}

func (b *MapperBuilder) fail(msg string, err error) error {
	return &ResourceError{Resource: b.resource, Msg: msg, Err: err}
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	// Bare numbers are seconds.
	d, err := time.ParseDuration(s + "s")
	if err != nil {
		return 0, NewConfigError(err, "invalid duration '%s'", s)
	}
	return d, nil
}
