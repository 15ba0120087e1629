package sessionfactory

import (
	"context"
	"io/fs"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"

	"github.com/bionicotaku/lingo-sqlmapper/catalog"
	"github.com/bionicotaku/lingo-sqlmapper/datasource"
	"github.com/bionicotaku/lingo-sqlmapper/engine"
)

// Config carries the resource driven builder settings.
type Config struct {
	ConfigLocation      string            `json:"configLocation" yaml:"configLocation"`
	MapperLocations     []string          `json:"mapperLocations" yaml:"mapperLocations"`
	Properties          map[string]string `json:"properties" yaml:"properties"`
	TypeAliasesPackage  string            `json:"typeAliasesPackage" yaml:"typeAliasesPackage"`
	TypeHandlersPackage string            `json:"typeHandlersPackage" yaml:"typeHandlersPackage"`
	Environment         string            `json:"environment" yaml:"environment"`
	// DatabaseID enables vendor database id resolution.
	DatabaseID bool `json:"databaseId" yaml:"databaseId"`
	FailFast   bool `json:"failFast" yaml:"failFast"`
}

// Component holds the builder and the factory it produced.
type Component struct {
	Builder *Builder
	Factory *engine.DefaultSessionFactory
}

// NewComponent builds the session factory eagerly and runs the fail-fast
// check when enabled.
func NewComponent(ctx context.Context, cfg Config, ds datasource.DataSource, ids datasource.DatabaseIDProvider, vfs fs.FS, cat *catalog.Catalog, logger log.Logger) (*Component, func(), error) {
	b := &Builder{
		DataSource:          ds,
		ConfigLocation:      cfg.ConfigLocation,
		VFS:                 vfs,
		MapperLocations:     cfg.MapperLocations,
		Properties:          cfg.Properties,
		TypeAliasesPackage:  cfg.TypeAliasesPackage,
		TypeHandlersPackage: cfg.TypeHandlersPackage,
		Environment:         cfg.Environment,
		FailFast:            cfg.FailFast,
		Catalog:             cat,
		Logger:              logger,
	}
	if cfg.DatabaseID {
		b.DatabaseIDProvider = ids
	}
	factory, err := b.Build(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := b.OnReady(ctx); err != nil {
		return nil, nil, err
	}
	b.helper().Infof("sessionfactory: built environment=%s database_id=%q", factory.Configuration().Environment().ID, factory.Configuration().DatabaseID())
	return &Component{Builder: b, Factory: factory}, func() {}, nil
}

// ProvideSessionFactory exposes the factory for Wire injection.
func ProvideSessionFactory(comp *Component) engine.SessionFactory {
	return comp.Factory
}

// ProviderSet collects constructors for Wire integration.
var ProviderSet = wire.NewSet(NewComponent, ProvideSessionFactory)
