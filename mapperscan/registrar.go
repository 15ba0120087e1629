package mapperscan

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/bionicotaku/lingo-sqlmapper/catalog"
	"github.com/bionicotaku/lingo-sqlmapper/mapper"
	"github.com/bionicotaku/lingo-sqlmapper/registry"
)

// Registrar runs one scan when the registry refreshes.
type Registrar struct {
	scan    MapperScan
	catalog *catalog.Catalog
	logger  log.Logger
}

var _ registry.DefinitionRegistrar = (*Registrar)(nil)

// NewRegistrar returns a registrar for scan over cat (catalog.Default when
// nil).
func NewRegistrar(scan MapperScan, cat *catalog.Catalog, logger log.Logger) *Registrar {
	return &Registrar{scan: scan, catalog: cat, logger: logger}
}

// RegisterDefinitions implements registry.DefinitionRegistrar.
func (r *Registrar) RegisterDefinitions(ctx context.Context, reg *registry.Registry) error {
	if err := r.scan.Validate(); err != nil {
		return err
	}
	scanner := mapper.NewClassPathScanner(reg, r.catalog, r.logger)
	if r.scan.AddToConfig != nil {
		scanner.AddToConfig = *r.scan.AddToConfig
	}
	scanner.AnnotationClass = r.scan.AnnotationClass
	scanner.MarkerInterface = r.scan.MarkerInterface
	if r.scan.NameGenerator != nil {
		scanner.NameGenerator = r.scan.NameGenerator
	}
	scanner.FactoryBeanClass = r.scan.FactoryBean
	scanner.SessionTemplateBeanName = r.scan.SessionTemplateRef
	scanner.SessionFactoryBeanName = r.scan.SessionFactoryRef

	scanner.RegisterFilters()
	_, err := scanner.Scan(ctx, r.scan.Packages()...)
	return err
}

// RepeatingRegistrar runs several scans in order.
type RepeatingRegistrar struct {
	scans   MapperScans
	catalog *catalog.Catalog
	logger  log.Logger
}

var _ registry.DefinitionRegistrar = (*RepeatingRegistrar)(nil)

// NewRepeatingRegistrar returns a registrar for scans.
func NewRepeatingRegistrar(scans MapperScans, cat *catalog.Catalog, logger log.Logger) *RepeatingRegistrar {
	return &RepeatingRegistrar{scans: scans, catalog: cat, logger: logger}
}

// RegisterDefinitions implements registry.DefinitionRegistrar.
func (r *RepeatingRegistrar) RegisterDefinitions(ctx context.Context, reg *registry.Registry) error {
	for i, scan := range r.scans {
		if err := NewRegistrar(scan, r.catalog, r.logger).RegisterDefinitions(ctx, reg); err != nil {
			return fmt.Errorf("mapperscan: scan %d: %w", i, err)
		}
	}
	return nil
}
