package main

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/bionicotaku/lingo-sqlmapper/catalog"
	"github.com/bionicotaku/lingo-sqlmapper/datasource"
)

var errOffline = errors.New("sqlmapper-check: running offline, no database connection")

// offlineDataSource lets the session factory build without a database.
type offlineDataSource struct{}

func (offlineDataSource) Acquire(context.Context) (datasource.Connection, error) {
	return nil, errOffline
}

func provideOfflineDataSource() datasource.DataSource { return offlineDataSource{} }

func provideOfflineDatabaseIDProvider() datasource.DatabaseIDProvider { return nil }

func provideVFS(cfg *config) fs.FS { return os.DirFS(cfg.ResourceDir) }

func provideSources(ctx context.Context, cfg scanConfig) ([]catalog.SourcePackage, error) {
	return catalog.LoadSource(ctx, cfg.Dir, cfg.Patterns...)
}

// provideCatalog registers the source descriptors. They carry no Go types,
// so they only drive candidate selection.
func provideCatalog(sources []catalog.SourcePackage) (*catalog.Catalog, error) {
	cat := catalog.New()
	for _, sp := range sources {
		for _, st := range sp.Types {
			if err := cat.Register(st.TypeDescriptor); err != nil {
				return nil, err
			}
		}
	}
	return cat, nil
}
