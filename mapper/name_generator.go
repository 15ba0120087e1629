package mapper

import (
	"unicode"
	"unicode/utf8"

	"github.com/bionicotaku/lingo-sqlmapper/catalog"
)

// NamedAnnotation overrides the generated component name:
// `//sqlmapper:Named userRepo`.
const NamedAnnotation = "Named"

// NameGenerator names the component registered for a descriptor.
type NameGenerator interface {
	GenerateName(d catalog.TypeDescriptor) string
}

// NameGeneratorFunc adapts a function to NameGenerator.
type NameGeneratorFunc func(d catalog.TypeDescriptor) string

func (f NameGeneratorFunc) GenerateName(d catalog.TypeDescriptor) string { return f(d) }

// DefaultNameGenerator uses the Named annotation value, else the type name
// with its first letter lowered.
type DefaultNameGenerator struct{}

func (DefaultNameGenerator) GenerateName(d catalog.TypeDescriptor) string {
	if a, ok := d.Annotation(NamedAnnotation); ok && a.Value != "" {
		return a.Value
	}
	return Decapitalize(d.Name)
}

// FullNameGenerator names components by package path and type name.
type FullNameGenerator struct{}

func (FullNameGenerator) GenerateName(d catalog.TypeDescriptor) string { return d.FullName() }

// Decapitalize lowers the first letter of name, leaving names that start
// with two upper-case letters alone ("URLMapper").
func Decapitalize(name string) string {
	first, size := utf8.DecodeRuneInString(name)
	if first == utf8.RuneError {
		return name
	}
	if second, _ := utf8.DecodeRuneInString(name[size:]); unicode.IsUpper(first) && unicode.IsUpper(second) {
		return name
	}
	return string(unicode.ToLower(first)) + name[size:]
}
