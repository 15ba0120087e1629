// Package mapperscan triggers mapper scanning from declarative scan
// attributes while the registry is refreshed.
package mapperscan

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bionicotaku/lingo-sqlmapper/catalog"
	"github.com/bionicotaku/lingo-sqlmapper/mapper"
)

// MapperScan holds the attributes of one scan.
type MapperScan struct {
	// Value is an alias of BasePackages.
	Value              []string `validate:"dive,pkgpath"`
	BasePackages       []string `validate:"dive,pkgpath"`
	BasePackageClasses []reflect.Type
	// DeclaringPackage is scanned when no package is given.
	DeclaringPackage string `validate:"required_without_all=Value BasePackages BasePackageClasses,pkgpath"`

	AnnotationClass string `validate:"omitempty,alphanum"`
	MarkerInterface reflect.Type
	NameGenerator   mapper.NameGenerator
	// FactoryBean overrides the registry class of generated definitions.
	FactoryBean        string `validate:"omitempty,excludesall= "`
	SessionTemplateRef string `validate:"omitempty,excludesall= "`
	SessionFactoryRef  string `validate:"omitempty,excludesall= "`
	// AddToConfig defaults to true.
	AddToConfig *bool
}

// MapperScans groups repeated scans.
type MapperScans []MapperScan

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Blank entries are dropped later; anything else must look like an
	// import path.
	_ = v.RegisterValidation("pkgpath", func(fl validator.FieldLevel) bool {
		p := strings.TrimSpace(fl.Field().String())
		if p == "" {
			return true
		}
		return !strings.ContainsAny(p, " \t\\") && !strings.HasPrefix(p, "/") && !strings.HasSuffix(p, "/")
	})
	return v
}

// Validate checks the attributes.
func (s MapperScan) Validate() error {
	if err := validate.Struct(s); err != nil {
		return formatValidationError(err)
	}
	if s.MarkerInterface != nil && s.MarkerInterface.Kind() != reflect.Interface {
		return fmt.Errorf("mapperscan: marker %v is not an interface", s.MarkerInterface)
	}
	for _, t := range s.BasePackageClasses {
		if catalog.PackageOf(t) == "" {
			return fmt.Errorf("mapperscan: base package class %v has no package", t)
		}
	}
	return nil
}

// Packages returns the packages to scan: Value, BasePackages and the
// packages of BasePackageClasses with blanks and repeats dropped, or the
// declaring package when none remain.
func (s MapperScan) Packages() []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, p := range s.Value {
		add(p)
	}
	for _, p := range s.BasePackages {
		add(p)
	}
	for _, t := range s.BasePackageClasses {
		add(catalog.PackageOf(t))
	}
	if len(out) == 0 {
		add(s.DeclaringPackage)
	}
	return out
}

func formatValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("mapperscan: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		switch e.Tag() {
		case "required_without_all":
			msgs = append(msgs, "at least one base package is required")
		case "pkgpath":
			msgs = append(msgs, fmt.Sprintf("%s %q is not a package path", e.Namespace(), e.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", e.Namespace(), e.Tag()))
		}
	}
	return fmt.Errorf("mapperscan: %s", strings.Join(msgs, "; "))
}
