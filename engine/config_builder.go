package engine

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"reflect"

	"gopkg.in/yaml.v3"
)

type configDocument struct {
	Properties  map[string]string `yaml:"properties"`
	Settings    *settingsDocument `yaml:"settings"`
	TypeAliases map[string]string `yaml:"typeAliases"`
	Mappers     []mapperReference `yaml:"mappers"`
}

type settingsDocument struct {
	CacheEnabled             *bool   `yaml:"cacheEnabled"`
	MapUnderscoreToCamelCase *bool   `yaml:"mapUnderscoreToCamelCase"`
	DefaultStatementTimeout  *string `yaml:"defaultStatementTimeout"`
}

type mapperReference struct {
	Resource string `yaml:"resource"`
	Mapper   string `yaml:"mapper"`
}

// ConfigBuilder applies a YAML config resource to a configuration.
//
//	properties:
//	  schema: app
//	settings:
//	  mapUnderscoreToCamelCase: true
//	typeAliases:
//	  User: example.com/app/model.User
//	mappers:
//	  - resource: mappers/user.yaml
//	  - mapper: example.com/app/mappers.UserMapper
type ConfigBuilder struct {
	cfg      *Configuration
	resource string
}

// NewConfigBuilder returns a builder writing into cfg. resource names the
// document in errors.
func NewConfigBuilder(cfg *Configuration, resource string) *ConfigBuilder {
	return &ConfigBuilder{cfg: cfg, resource: resource}
}

// Parse decodes data and applies it. Properties already present in the
// configuration take precedence over those in the document.
func (b *ConfigBuilder) Parse(data []byte) error {
	var doc configDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return b.fail("failed to parse config resource", err)
	}

	for k, v := range doc.Properties {
		if _, ok := b.cfg.variables[k]; !ok {
			b.cfg.variables[k] = v
		}
	}
	if doc.Settings != nil {
		if err := b.applySettings(doc.Settings); err != nil {
			return b.fail("invalid settings", err)
		}
	}
	for alias, name := range doc.TypeAliases {
		t, err := resolveTypeName(b.cfg, ParseVariables(name, b.cfg.variables))
		if err != nil {
			return b.fail("invalid type alias "+alias, err)
		}
		if err := b.cfg.typeAliases.RegisterAlias(alias, t); err != nil {
			return b.fail("invalid type alias "+alias, err)
		}
	}
	for _, ref := range doc.Mappers {
		if err := b.loadMapper(ref); err != nil {
			return err
		}
	}
	return nil
}

func (b *ConfigBuilder) applySettings(doc *settingsDocument) error {
	s := b.cfg.settings
	if doc.CacheEnabled != nil {
		s.CacheEnabled = *doc.CacheEnabled
	}
	if doc.MapUnderscoreToCamelCase != nil {
		s.MapUnderscoreToCamelCase = *doc.MapUnderscoreToCamelCase
	}
	if doc.DefaultStatementTimeout != nil {
		d, err := parseDuration(*doc.DefaultStatementTimeout)
		if err != nil {
			return err
		}
		s.DefaultStatementTimeout = d
	}
	b.cfg.settings = s
	return nil
}

func (b *ConfigBuilder) loadMapper(ref mapperReference) error {
	switch {
	case ref.Resource != "" && ref.Mapper != "":
		return b.fail("mapper entry may set only one of resource and mapper", nil)
	case ref.Resource != "":
		if b.cfg.vfs == nil {
			return b.fail("no VFS configured to load "+ref.Resource, nil)
		}
		data, err := fs.ReadFile(b.cfg.vfs, ref.Resource)
		if err != nil {
			return &ResourceError{Resource: ref.Resource, Msg: "failed to read mapper resource", Err: err}
		}
		return NewMapperBuilder(b.cfg, ref.Resource).Parse(data)
	case ref.Mapper != "":
		t, err := resolveTypeName(b.cfg, ref.Mapper)
		if err != nil {
			return b.fail("invalid mapper "+ref.Mapper, err)
		}
		if b.cfg.HasMapper(t) {
			return nil
		}
		if err := b.cfg.AddMapper(t); err != nil {
			return b.fail("invalid mapper "+ref.Mapper, err)
		}
		return nil
	}
	return b.fail("mapper entry requires resource or mapper", nil)
}

func (b *ConfigBuilder) fail(msg string, err error) error {
	return &ResourceError{Resource: b.resource, Msg: msg, Err: err}
}

// resolveTypeName resolves an alias first, then a fully qualified type name
// through the configured TypeResolver.
func resolveTypeName(cfg *Configuration, name string) (reflect.Type, error) {
	if t, err := cfg.typeAliases.Resolve(name); err == nil {
		return t, nil
	}
	if cfg.resolver != nil {
		if t, ok := cfg.resolver.ResolveType(name); ok {
			return t, nil
		}
	}
	return nil, NewConfigError(nil, "could not resolve type '%s'", name)
}
