// Package support holds the base for hand-written data access objects that
// run statements through a session template.
package support

import (
	"errors"

	"github.com/bionicotaku/lingo-sqlmapper/engine"
	"github.com/bionicotaku/lingo-sqlmapper/template"
)

// ErrNoSessionSource is returned when neither a factory nor a template was
// supplied.
var ErrNoSessionSource = errors.New("support: property 'sessionFactory' or 'sessionTemplate' is required")

// DAOSupport holds the template a DAO runs on. Setting a factory builds a
// template for it unless one for the same factory is already held; setting a
// template directly replaces it.
type DAOSupport struct {
	tmpl        *template.SessionTemplate
	tmplConfig  template.Config
	tmplDeps    template.Dependencies
	tmplErr     error
	externalSet bool
}

// SetTemplateOptions configures templates built from a factory.
func (s *DAOSupport) SetTemplateOptions(cfg template.Config, deps template.Dependencies) {
	s.tmplConfig = cfg
	s.tmplDeps = deps
}

// SetSessionFactory builds a template over factory.
func (s *DAOSupport) SetSessionFactory(factory engine.SessionFactory) {
	if factory == nil {
		return
	}
	if s.tmpl != nil && s.tmpl.SessionFactory() == factory {
		return
	}
	s.tmpl, s.tmplErr = template.New(factory, s.tmplConfig, s.tmplDeps)
	s.externalSet = false
}

// SetSessionTemplate uses tmpl for every statement.
func (s *DAOSupport) SetSessionTemplate(tmpl *template.SessionTemplate) {
	if tmpl == nil {
		return
	}
	s.tmpl = tmpl
	s.tmplErr = nil
	s.externalSet = true
}

// SessionFactory returns the factory behind the template, or nil.
func (s *DAOSupport) SessionFactory() engine.SessionFactory {
	if s.tmpl == nil {
		return nil
	}
	return s.tmpl.SessionFactory()
}

// SessionTemplate returns the template statements run through.
func (s *DAOSupport) SessionTemplate() *template.SessionTemplate { return s.tmpl }

// ExternalTemplate reports whether the template was set directly.
func (s *DAOSupport) ExternalTemplate() bool { return s.externalSet }

// CheckDAOConfig fails when no usable template is held.
func (s *DAOSupport) CheckDAOConfig() error {
	if s.tmplErr != nil {
		return s.tmplErr
	}
	if s.tmpl == nil {
		return ErrNoSessionSource
	}
	return nil
}
