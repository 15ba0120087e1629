// Package catalog is the type index mapper scanning walks. Descriptors are
// registered at init time by code that cmd/mappergen generates from package
// source, so discovery never depends on runtime reflection over packages.
package catalog

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/bionicotaku/lingo-sqlmapper/engine"
)

// PackageInfoName is the descriptor name emitted for a package doc comment.
const PackageInfoName = "package-info"

// Kind classifies a descriptor.
type Kind int

const (
	KindOther Kind = iota
	KindInterface
	KindStruct
	KindPackageInfo
)

func (k Kind) String() string {
	switch k {
	case KindInterface:
		return "interface"
	case KindStruct:
		return "struct"
	case KindPackageInfo:
		return "package-info"
	default:
		return "other"
	}
}

// Annotation is a `//sqlmapper:<Name> [value]` directive from a doc comment.
type Annotation struct {
	Name  string
	Value string
}

// TypeDescriptor describes one declared type.
type TypeDescriptor struct {
	Package     string
	Name        string
	Kind        Kind
	Type        reflect.Type
	Annotations []Annotation
	// Embeds lists the full names of interfaces embedded by an interface.
	Embeds []string
	// Bind builds the mapper implementation for interface descriptors.
	Bind engine.BindFunc
	// Err explains why the type could not be loaded.
	Err string
}

// FullName is the package path joined with the type name.
func (d TypeDescriptor) FullName() string {
	return d.Package + "." + d.Name
}

// IsPackageInfo reports whether d describes a package doc comment.
func (d TypeDescriptor) IsPackageInfo() bool {
	return d.Kind == KindPackageInfo || d.Name == PackageInfoName
}

// Annotation returns the annotation called name.
func (d TypeDescriptor) Annotation(name string) (Annotation, bool) {
	for _, a := range d.Annotations {
		if a.Name == name {
			return a, true
		}
	}
	return Annotation{}, false
}

// HasAnnotation reports whether d carries the annotation called name.
func (d TypeDescriptor) HasAnnotation(name string) bool {
	_, ok := d.Annotation(name)
	return ok
}

// Loaded reports whether the descriptor resolved to a Go type.
func (d TypeDescriptor) Loaded() bool {
	return d.Err == "" && d.Type != nil
}

// Catalog indexes descriptors by full name and type.
type Catalog struct {
	mu     sync.RWMutex
	byName map[string]TypeDescriptor
	byType map[reflect.Type]string
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		byName: make(map[string]TypeDescriptor),
		byType: make(map[reflect.Type]string),
	}
}

// Register adds descriptors. A name registered twice fails.
func (c *Catalog) Register(descs ...TypeDescriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range descs {
		if d.Package == "" || d.Name == "" {
			return fmt.Errorf("catalog: descriptor requires package and name, got %q", d.FullName())
		}
		if d.Name == PackageInfoName {
			d.Kind = KindPackageInfo
		}
		if d.Type != nil && d.Kind == KindOther {
			d.Kind = kindOf(d.Type)
		}
		name := d.FullName()
		if _, ok := c.byName[name]; ok {
			return fmt.Errorf("catalog: %s already registered", name)
		}
		c.byName[name] = d
		if d.Type != nil {
			c.byType[d.Type] = name
		}
	}
	return nil
}

// MustRegister is Register for generated init code.
func (c *Catalog) MustRegister(descs ...TypeDescriptor) {
	if err := c.Register(descs...); err != nil {
		panic(err)
	}
}

// Lookup returns the descriptor registered under fullName.
func (c *Catalog) Lookup(fullName string) (TypeDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.byName[fullName]
	return d, ok
}

// LookupType returns the descriptor of t.
func (c *Catalog) LookupType(t reflect.Type) (TypeDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.byType[t]
	if !ok {
		return TypeDescriptor{}, false
	}
	return c.byName[name], true
}

// Scan returns every descriptor in basePackage and its sub-packages, sorted by
// full name.
func (c *Catalog) Scan(basePackage string) []TypeDescriptor {
	base := strings.TrimSuffix(strings.TrimSpace(basePackage), "/")
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []TypeDescriptor
	for _, d := range c.byName {
		if base == "" || d.Package == base || strings.HasPrefix(d.Package, base+"/") {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName() < out[j].FullName() })
	return out
}

// Packages lists the packages with registered descriptors.
func (c *Catalog) Packages() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, d := range c.byName {
		seen[d.Package] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of descriptors.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byName)
}

// ResolveType implements engine.TypeResolver over loaded descriptors.
func (c *Catalog) ResolveType(name string) (reflect.Type, bool) {
	d, ok := c.Lookup(name)
	if !ok || !d.Loaded() {
		return nil, false
	}
	return d.Type, true
}

// ResolveMapper implements engine.TypeResolver.
func (c *Catalog) ResolveMapper(t reflect.Type) (engine.BindFunc, bool) {
	d, ok := c.LookupType(t)
	if !ok || d.Bind == nil {
		return nil, false
	}
	return d.Bind, true
}

var _ engine.TypeResolver = (*Catalog)(nil)

// Default is the catalog generated code registers into.
var Default = New()

// Register adds descriptors to Default, panicking on conflicts.
func Register(descs ...TypeDescriptor) {
	Default.MustRegister(descs...)
}

// PackageOf returns the package path of t, looking through pointers.
func PackageOf(t reflect.Type) string {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.PkgPath()
}

// TypeOf returns the reflect.Type of T, for interfaces included.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func kindOf(t reflect.Type) Kind {
	switch t.Kind() {
	case reflect.Interface:
		return KindInterface
	case reflect.Struct:
		return KindStruct
	default:
		return KindOther
	}
}
