package txmanager

import (
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"

	"github.com/bionicotaku/lingo-sqlmapper/datasource"
)

// Component wraps the constructed Manager and aligns with the shared component
// pattern used by the datasource and sessionfactory packages.
type Component struct {
	Manager Manager
}

// NewComponent builds a transaction manager over the data source. The cleanup
// currently no-ops; connections are released by each transaction.
func NewComponent(cfg Config, ds datasource.DataSource, logger log.Logger) (*Component, func(), error) {
	manager, err := NewManager(ds, cfg, Dependencies{Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	comp := &Component{Manager: manager}
	cleanup := func() {}
	return comp, cleanup, nil
}

// ProvideManager exposes the Manager interface for Wire injection.
func ProvideManager(comp *Component) Manager {
	return comp.Manager
}

// ProviderSet collects constructors for Wire integration.
var ProviderSet = wire.NewSet(NewComponent, ProvideManager)
