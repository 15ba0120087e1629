package template

import (
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"

	"github.com/bionicotaku/lingo-sqlmapper/engine"
)

// Component wraps the shared SessionTemplate.
type Component struct {
	Template *SessionTemplate
}

// NewComponent builds the template over factory. Sessions are closed per call
// or by their unit of work, so cleanup has nothing to release.
func NewComponent(cfg Config, factory engine.SessionFactory, logger log.Logger) (*Component, func(), error) {
	tmpl, err := New(factory, cfg, Dependencies{Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	return &Component{Template: tmpl}, func() {}, nil
}

// ProvideTemplate exposes the template for Wire injection.
func ProvideTemplate(comp *Component) *SessionTemplate {
	return comp.Template
}

// ProviderSet collects constructors for Wire integration.
var ProviderSet = wire.NewSet(NewComponent, ProvideTemplate)
