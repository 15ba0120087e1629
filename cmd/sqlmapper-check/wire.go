//go:build wireinject
// +build wireinject

//go:generate wire

package main

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"

	"github.com/bionicotaku/lingo-sqlmapper/datasource"
	"github.com/bionicotaku/lingo-sqlmapper/sessionfactory"
)

// wireApp connects to the configured database.
func wireApp(ctx context.Context, cfg *config, logger log.Logger) (*app, func(), error) {
	panic(wire.Build(
		wire.FieldsOf(new(*config), "Datasource", "SessionFactory", "Scan"),
		datasource.ProviderSet,
		sessionfactory.ProviderSet,
		provideVFS,
		provideSources,
		provideCatalog,
		newApp,
	))
}

// wireOfflineApp builds the factory without a database connection.
func wireOfflineApp(ctx context.Context, cfg *config, logger log.Logger) (*app, func(), error) {
	panic(wire.Build(
		wire.FieldsOf(new(*config), "SessionFactory", "Scan"),
		sessionfactory.ProviderSet,
		provideOfflineDataSource,
		provideOfflineDatabaseIDProvider,
		provideVFS,
		provideSources,
		provideCatalog,
		newApp,
	))
}
