package mapper

import (
	"context"
	"reflect"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/bionicotaku/lingo-sqlmapper/catalog"
	"github.com/bionicotaku/lingo-sqlmapper/engine"
	"github.com/bionicotaku/lingo-sqlmapper/registry"
	"github.com/bionicotaku/lingo-sqlmapper/template"
)

// TypeFilter matches catalog descriptors.
type TypeFilter func(d catalog.TypeDescriptor) bool

// ClassPathScanner registers a FactoryBean definition for every mapper
// interface found in the catalog under the scanned packages.
type ClassPathScanner struct {
	AddToConfig             bool
	AnnotationClass         string
	MarkerInterface         reflect.Type
	SessionFactory          engine.SessionFactory
	SessionFactoryBeanName  string
	SessionTemplate         *template.SessionTemplate
	SessionTemplateBeanName string
	// FactoryBeanClass overrides the registry class of generated definitions.
	FactoryBeanClass string
	NameGenerator    NameGenerator

	registry *registry.Registry
	catalog  *catalog.Catalog
	log      *log.Helper

	includeFilters []TypeFilter
	excludeFilters []TypeFilter
}

// NewClassPathScanner returns a scanner registering into reg from cat. The
// FactoryBean constructor is registered with reg when missing.
func NewClassPathScanner(reg *registry.Registry, cat *catalog.Catalog, logger log.Logger) *ClassPathScanner {
	if cat == nil {
		cat = catalog.Default
	}
	helper := reg.Logger()
	if logger != nil {
		helper = log.NewHelper(logger)
	}
	if !reg.HasClass(FactoryBeanClass) {
		reg.RegisterClass(FactoryBeanClass, NewFactoryBeanConstructor(cat, logger))
	}
	return &ClassPathScanner{
		AddToConfig:   true,
		NameGenerator: DefaultNameGenerator{},
		registry:      reg,
		catalog:       cat,
		log:           helper,
	}
}

// AddIncludeFilter adds a filter a candidate must match (any of).
func (s *ClassPathScanner) AddIncludeFilter(f TypeFilter) {
	s.includeFilters = append(s.includeFilters, f)
}

// AddExcludeFilter adds a filter rejecting candidates.
func (s *ClassPathScanner) AddExcludeFilter(f TypeFilter) {
	s.excludeFilters = append(s.excludeFilters, f)
}

// RegisterFilters installs the annotation and marker filters, or an
// accept-all filter when neither is configured, and excludes package-info
// descriptors.
func (s *ClassPathScanner) RegisterFilters() {
	acceptAll := true

	if s.AnnotationClass != "" {
		annotation := s.AnnotationClass
		s.AddIncludeFilter(func(d catalog.TypeDescriptor) bool {
			return d.HasAnnotation(annotation)
		})
		acceptAll = false
	}

	if s.MarkerInterface != nil {
		s.AddIncludeFilter(s.markerFilter(s.MarkerInterface))
		acceptAll = false
	}

	if acceptAll {
		s.AddIncludeFilter(func(catalog.TypeDescriptor) bool { return true })
	}

	s.AddExcludeFilter(func(d catalog.TypeDescriptor) bool {
		return d.IsPackageInfo()
	})
}

// markerFilter matches interfaces assignable to marker, never the marker
// itself. An empty marker is satisfied by every interface, so it matches
// only types embedding it.
func (s *ClassPathScanner) markerFilter(marker reflect.Type) TypeFilter {
	markerName := catalog.PackageOf(marker) + "." + marker.Name()
	return func(d catalog.TypeDescriptor) bool {
		if d.FullName() == markerName {
			return false
		}
		if marker.NumMethod() == 0 {
			return s.embeds(d, markerName, 0)
		}
		return d.Type != nil && d.Type.Implements(marker)
	}
}

func (s *ClassPathScanner) embeds(d catalog.TypeDescriptor, name string, depth int) bool {
	if depth > 16 {
		return false
	}
	for _, e := range d.Embeds {
		if e == name {
			return true
		}
		if parent, ok := s.catalog.Lookup(e); ok && s.embeds(parent, name, depth+1) {
			return true
		}
	}
	return false
}

// Scan registers definitions for the mapper interfaces under basePackages
// and returns them. Finding nothing is logged, not an error.
func (s *ClassPathScanner) Scan(_ context.Context, basePackages ...string) ([]*registry.Definition, error) {
	defs, err := s.doScan(basePackages)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		s.log.Warnf("mapper: no mapper was found in '%v' package, please check your configuration", basePackages)
		return defs, nil
	}
	s.processDefinitions(defs)
	return defs, nil
}

// Candidates returns the descriptors under basePackages that pass the
// filters, in scan order, including types that failed to load.
func (s *ClassPathScanner) Candidates(basePackages ...string) []catalog.TypeDescriptor {
	var out []catalog.TypeDescriptor
	for _, pkg := range basePackages {
		for _, d := range s.catalog.Scan(pkg) {
			if s.isCandidate(d) {
				out = append(out, d)
			}
		}
	}
	return out
}

func (s *ClassPathScanner) doScan(basePackages []string) ([]*registry.Definition, error) {
	var defs []*registry.Definition
	for _, d := range s.Candidates(basePackages...) {
		if !d.Loaded() {
			s.log.Warnf("mapper: skipping %s, type failed to load: %s", d.FullName(), d.Err)
			continue
		}
		name := s.NameGenerator.GenerateName(d)
		def := &registry.Definition{
			Name:   name,
			Class:  d.FullName(),
			Type:   d.Type,
			Source: d.FullName(),
		}
		if !s.checkCandidate(name, def) {
			continue
		}
		if err := s.registry.Register(def); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// isCandidate applies the filters; only interfaces qualify.
func (s *ClassPathScanner) isCandidate(d catalog.TypeDescriptor) bool {
	for _, f := range s.excludeFilters {
		if f(d) {
			return false
		}
	}
	included := false
	for _, f := range s.includeFilters {
		if f(d) {
			included = true
			break
		}
	}
	return included && d.Kind == catalog.KindInterface
}

// checkCandidate rejects names already in use, keeping the first
// registration.
func (s *ClassPathScanner) checkCandidate(name string, def *registry.Definition) bool {
	if s.registry.Contains(name) {
		s.log.Warnf("mapper: skipping factory bean with name '%s' and '%s' mapper interface, a component with the same name is already defined", name, def.Class)
		return false
	}
	return true
}

func (s *ClassPathScanner) processDefinitions(defs []*registry.Definition) {
	class := s.FactoryBeanClass
	if class == "" {
		class = FactoryBeanClass
	}
	for _, def := range defs {
		iface := def.Class
		s.log.Debugf("mapper: creating factory bean with name '%s' and '%s' mapper interface", def.Name, iface)

		// The interface name becomes the constructor argument; the
		// definition builds a FactoryBean instead of the interface.
		def.Class = class
		def.AddConstructorArg(iface)
		def.SetProperty(PropertyAddToConfig, s.AddToConfig)

		explicitFactoryUsed := false
		if s.SessionFactoryBeanName != "" {
			def.SetProperty(PropertySessionFactory, registry.Ref{Name: s.SessionFactoryBeanName})
			explicitFactoryUsed = true
		} else if s.SessionFactory != nil {
			def.SetProperty(PropertySessionFactory, s.SessionFactory)
			explicitFactoryUsed = true
		}

		if s.SessionTemplateBeanName != "" {
			if explicitFactoryUsed {
				s.log.Warnf("mapper: cannot use both sessionTemplate and sessionFactory together, sessionFactory is ignored")
				def.RemoveProperty(PropertySessionFactory)
			}
			def.SetProperty(PropertySessionTemplate, registry.Ref{Name: s.SessionTemplateBeanName})
			explicitFactoryUsed = true
		} else if s.SessionTemplate != nil {
			if explicitFactoryUsed {
				s.log.Warnf("mapper: cannot use both sessionTemplate and sessionFactory together, sessionFactory is ignored")
				def.RemoveProperty(PropertySessionFactory)
			}
			def.SetProperty(PropertySessionTemplate, s.SessionTemplate)
			explicitFactoryUsed = true
		}

		if !explicitFactoryUsed {
			s.log.Debugf("mapper: enabling autowire by type for factory bean with name '%s'", def.Name)
			def.Autowire = registry.AutowireByType
		}
	}
}
