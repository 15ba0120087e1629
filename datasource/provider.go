package datasource

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProvideComponent builds a Component using the shared logger and default
// dependency set.
func ProvideComponent(ctx context.Context, cfg Config, logger log.Logger) (*Component, func(), error) {
	return NewComponent(ctx, cfg, Dependencies{Logger: logger})
}

// ProvidePool exposes the constructed pgxpool.Pool for downstream injection.
func ProvidePool(component *Component) *pgxpool.Pool {
	if component == nil {
		return nil
	}
	return component.Pool
}

// ProvideDataSource exposes the pool as a DataSource.
func ProvideDataSource(component *Component) DataSource {
	if component == nil {
		return nil
	}
	return component.DataSource
}

// ProvideDatabaseIDProvider builds the vendor provider from configuration.
func ProvideDatabaseIDProvider(cfg Config) DatabaseIDProvider {
	return VendorDatabaseIDProvider{Properties: cfg.DatabaseIDs}
}

// ProviderSet wires the datasource component for Google Wire.
var ProviderSet = wire.NewSet(ProvideComponent, ProvidePool, ProvideDataSource, ProvideDatabaseIDProvider)
