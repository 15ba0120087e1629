package catalog

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/types"
	"path/filepath"
	"sort"

	"golang.org/x/tools/go/packages"
)

// LoadMode is the package information LoadSource needs.
const LoadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedSyntax |
	packages.NeedTypes |
	packages.NeedTypesInfo |
	packages.NeedImports

// SourcePackage is one package read from source.
type SourcePackage struct {
	Path  string
	Name  string
	Dir   string
	Types []SourceType
	// Err is set when the package failed to load; its types are empty.
	Err error
}

// SourceType is a descriptor read from source together with the type-checker
// object cmd/mappergen renders from.
type SourceType struct {
	TypeDescriptor
	Object  *types.TypeName
	Generic bool
	Methods []*types.Func
}

// LoadSource loads patterns relative to dir and describes every exported
// type, plus a package-info descriptor for packages whose doc comment carries
// directives. Packages that fail to type-check are returned with Err set.
func LoadSource(ctx context.Context, dir string, patterns ...string) ([]SourcePackage, error) {
	if len(patterns) == 0 {
		return nil, errors.New("catalog: at least one package pattern is required")
	}
	cfg := &packages.Config{
		Context: ctx,
		Dir:     dir,
		Mode:    LoadMode,
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("catalog: load packages: %w", err)
	}

	out := make([]SourcePackage, 0, len(pkgs))
	for _, pkg := range pkgs {
		sp := SourcePackage{Path: pkg.PkgPath, Name: pkg.Name}
		if len(pkg.GoFiles) > 0 {
			sp.Dir = filepath.Dir(pkg.GoFiles[0])
		}
		if len(pkg.Errors) > 0 {
			errs := make([]error, 0, len(pkg.Errors))
			for _, e := range pkg.Errors {
				errs = append(errs, e)
			}
			sp.Err = errors.Join(errs...)
			out = append(out, sp)
			continue
		}
		sp.Types = describePackage(pkg)
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func describePackage(pkg *packages.Package) []SourceType {
	docs := make(map[string][]Annotation)
	var pkgDoc []Annotation
	for _, file := range pkg.Syntax {
		pkgDoc = append(pkgDoc, commentDirectives(file.Doc)...)
		for _, decl := range file.Decls {
			gen, ok := decl.(*ast.GenDecl)
			if !ok {
				continue
			}
			for _, spec := range gen.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				// A lone spec carries its doc on the GenDecl.
				docs[ts.Name.Name] = commentDirectives(gen.Doc, ts.Doc)
			}
		}
	}

	var out []SourceType
	if len(pkgDoc) > 0 {
		out = append(out, SourceType{TypeDescriptor: TypeDescriptor{
			Package:     pkg.PkgPath,
			Name:        PackageInfoName,
			Kind:        KindPackageInfo,
			Annotations: pkgDoc,
		}})
	}

	scope := pkg.Types.Scope()
	for _, name := range scope.Names() {
		tn, ok := scope.Lookup(name).(*types.TypeName)
		if !ok || !tn.Exported() || tn.IsAlias() {
			continue
		}
		st := SourceType{
			TypeDescriptor: TypeDescriptor{
				Package:     pkg.PkgPath,
				Name:        name,
				Annotations: docs[name],
			},
			Object: tn,
		}
		named, _ := tn.Type().(*types.Named)
		if named != nil && named.TypeParams().Len() > 0 {
			st.Generic = true
			st.Err = "generic types cannot be registered"
		}
		switch u := tn.Type().Underlying().(type) {
		case *types.Interface:
			st.Kind = KindInterface
			for i := 0; i < u.NumEmbeddeds(); i++ {
				if en, ok := u.EmbeddedType(i).(*types.Named); ok && en.Obj().Pkg() != nil {
					st.Embeds = append(st.Embeds, en.Obj().Pkg().Path()+"."+en.Obj().Name())
				}
			}
			for i := 0; i < u.NumMethods(); i++ {
				st.Methods = append(st.Methods, u.Method(i))
			}
		case *types.Struct:
			st.Kind = KindStruct
		default:
			st.Kind = KindOther
		}
		out = append(out, st)
	}
	return out
}
