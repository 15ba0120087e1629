package main

import (
	"bytes"
	"fmt"
	"go/format"
	"go/types"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"unicode"
	"unicode/utf8"

	"github.com/bionicotaku/lingo-sqlmapper/catalog"
)

const (
	catalogPath = "github.com/bionicotaku/lingo-sqlmapper/catalog"
	enginePath  = "github.com/bionicotaku/lingo-sqlmapper/engine"
)

type importView struct {
	Alias string
	Path  string
}

type descriptorView struct {
	Name        string
	Kind        string
	Type        string
	Annotations string
	Embeds      string
	Bind        string
	Err         string
}

type methodView struct {
	Recv   string
	Name   string
	Params string
	Ctx    string
	Out    string
	Args   string
}

type bindingView struct {
	Type    string
	Bind    string
	Methods []methodView
}

type fileView struct {
	Package     string
	Path        string
	Std         []importView
	Other       []importView
	Descriptors []descriptorView
	Bindings    []bindingView
}

var fileTemplate = template.Must(template.New("file").Parse(`// Code generated by mappergen. DO NOT EDIT.

package {{.Package}}

import (
{{- range .Std}}
	{{if .Alias}}{{.Alias}} {{end}}{{printf "%q" .Path}}
{{- end}}
{{if .Other}}
{{- range .Other}}
	{{if .Alias}}{{.Alias}} {{end}}{{printf "%q" .Path}}
{{- end}}
{{end -}}
)

const sqlmapperPackage = {{printf "%q" .Path}}

func init() {
	catalog.Register(Descriptors()...)
}

// Descriptors returns the catalog descriptors of this package.
func Descriptors() []catalog.TypeDescriptor {
	return []catalog.TypeDescriptor{
{{- range .Descriptors}}
		{
			Package: sqlmapperPackage,
			Name: {{.Name}},
			Kind: {{.Kind}},
{{- if .Type}}
			Type: {{.Type}},
{{- end}}
{{- if .Annotations}}
			Annotations: {{.Annotations}},
{{- end}}
{{- if .Embeds}}
			Embeds: {{.Embeds}},
{{- end}}
{{- if .Bind}}
			Bind: {{.Bind}},
{{- end}}
{{- if .Err}}
			Err: {{.Err}},
{{- end}}
		},
{{- end}}
	}
}
{{range .Bindings}}
type {{.Type}} struct{ inv engine.Invoker }

func {{.Bind}}(inv engine.Invoker) any { return {{.Type}}{inv: inv} }
{{range .Methods}}
{{- if .Out}}
func (m {{.Recv}}) {{.Name}}({{.Params}}) ({{.Out}}, error) {
	var out {{.Out}}
	err := m.inv.Invoke({{.Ctx}}, {{printf "%q" .Name}}, &out, {{.Args}})
	return out, err
}
{{else}}
func (m {{.Recv}}) {{.Name}}({{.Params}}) error {
	return m.inv.Invoke({{.Ctx}}, {{printf "%q" .Name}}, nil, {{.Args}})
}
{{end -}}
{{end -}}
{{end -}}
`))

// fileGen renders one package.
type fileGen struct {
	path    string
	imports map[string]string // path -> name used in the file
	names   map[string]string // name -> path
	std     map[string]bool
}

func newFileGen(path string) *fileGen {
	g := &fileGen{
		path:    path,
		imports: make(map[string]string),
		names:   make(map[string]string),
		std:     make(map[string]bool),
	}
	// Reserve the names the generated code always refers to.
	for _, p := range []string{"context", "reflect", catalogPath, enginePath} {
		g.importName(p, p[strings.LastIndex(p, "/")+1:])
	}
	return g
}

func (g *fileGen) importName(path, name string) string {
	if n, ok := g.imports[path]; ok {
		return n
	}
	candidate := name
	for i := 2; ; i++ {
		if _, taken := g.names[candidate]; !taken {
			break
		}
		candidate = name + strconv.Itoa(i)
	}
	g.imports[path] = candidate
	g.names[candidate] = path
	return candidate
}

func (g *fileGen) qualifier(p *types.Package) string {
	if p.Path() == g.path {
		return ""
	}
	name := g.importName(p.Path(), p.Name())
	g.std[p.Path()] = isStdPath(p.Path())
	return name
}

func (g *fileGen) use(path string) {
	g.std[path] = isStdPath(path)
}

func isStdPath(path string) bool {
	first, _, _ := strings.Cut(path, "/")
	return !strings.Contains(first, ".")
}

// render returns the formatted generated file for sp, or nil when the
// package declares nothing to register.
func render(sp catalog.SourcePackage) ([]byte, error) {
	if sp.Err != nil {
		return nil, fmt.Errorf("package %s: %w", sp.Path, sp.Err)
	}
	if sp.Name == "main" || len(sp.Types) == 0 {
		return nil, nil
	}
	g := newFileGen(sp.Path)
	g.use(catalogPath)

	view := fileView{Package: sp.Name, Path: sp.Path}
	sorted := append([]catalog.SourceType(nil), sp.Types...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].IsPackageInfo() != sorted[j].IsPackageInfo() {
			return sorted[i].IsPackageInfo()
		}
		return sorted[i].Name < sorted[j].Name
	})
	for _, st := range sorted {
		d, b := g.describe(st)
		view.Descriptors = append(view.Descriptors, d)
		if b != nil {
			view.Bindings = append(view.Bindings, *b)
		}
	}

	for path, std := range g.std {
		name := g.imports[path]
		iv := importView{Path: path}
		if name != path[strings.LastIndex(path, "/")+1:] {
			iv.Alias = name
		}
		if std {
			view.Std = append(view.Std, iv)
		} else {
			view.Other = append(view.Other, iv)
		}
	}
	sort.Slice(view.Std, func(i, j int) bool { return view.Std[i].Path < view.Std[j].Path })
	sort.Slice(view.Other, func(i, j int) bool { return view.Other[i].Path < view.Other[j].Path })

	var buf bytes.Buffer
	if err := fileTemplate.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("package %s: render: %w", sp.Path, err)
	}
	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("package %s: format: %w\n%s", sp.Path, err, buf.Bytes())
	}
	return out, nil
}

func (g *fileGen) describe(st catalog.SourceType) (descriptorView, *bindingView) {
	d := descriptorView{Kind: kindExpr(st.Kind)}
	if st.IsPackageInfo() {
		d.Name = "catalog.PackageInfoName"
		d.Kind = "catalog.KindPackageInfo"
		d.Annotations = annotationsExpr(st.Annotations)
		return d, nil
	}
	d.Name = strconv.Quote(st.Name)
	d.Annotations = annotationsExpr(st.Annotations)
	d.Embeds = g.embedsExpr(st.Embeds)

	errMsg := st.Err
	if !st.Generic {
		g.use("reflect")
		d.Type = fmt.Sprintf("reflect.TypeOf((*%s)(nil)).Elem()", st.Name)
	}
	var binding *bindingView
	if st.Kind == catalog.KindInterface && errMsg == "" {
		b, err := g.bind(st)
		if err != nil {
			errMsg = err.Error()
		} else {
			binding = b
			d.Bind = b.Bind
		}
	}
	if errMsg != "" {
		d.Err = strconv.Quote(errMsg)
	}
	return d, binding
}

func (g *fileGen) bind(st catalog.SourceType) (*bindingView, error) {
	lower := lowerFirst(st.Name)
	b := &bindingView{Type: lower + "Binding", Bind: "bind" + upperFirst(st.Name)}
	var methods []methodView
	for _, fn := range st.Methods {
		mv, err := g.method(b.Type, fn)
		if err != nil {
			return nil, err
		}
		methods = append(methods, mv)
	}
	if len(methods) > 0 {
		g.use("context")
	}
	g.use(enginePath)
	b.Methods = methods
	return b, nil
}

func (g *fileGen) method(recv string, fn *types.Func) (methodView, error) {
	if !fn.Exported() && fn.Pkg() != nil && fn.Pkg().Path() != g.path {
		return methodView{}, fmt.Errorf("method %s: unexported method of another package", fn.Name())
	}
	sig, ok := fn.Type().(*types.Signature)
	if !ok {
		return methodView{}, fmt.Errorf("method %s: no signature", fn.Name())
	}
	params := sig.Params()
	if params.Len() == 0 || !isContext(params.At(0).Type()) {
		return methodView{}, fmt.Errorf("method %s: first parameter must be context.Context", fn.Name())
	}
	results := sig.Results()
	var out string
	switch {
	case results.Len() == 1 && isError(results.At(0).Type()):
	case results.Len() == 2 && isError(results.At(1).Type()):
		out = types.TypeString(results.At(0).Type(), g.qualifier)
	default:
		return methodView{}, fmt.Errorf("method %s: must return error or (T, error)", fn.Name())
	}

	typeNames := make([]string, params.Len())
	for i := 0; i < params.Len(); i++ {
		t := params.At(i).Type()
		if sig.Variadic() && i == params.Len()-1 {
			typeNames[i] = "..." + types.TypeString(t.(*types.Slice).Elem(), g.qualifier)
			continue
		}
		typeNames[i] = types.TypeString(t, g.qualifier)
	}

	// Locals must not shadow the receiver, the results or any import.
	reserved := map[string]bool{"m": true, "out": true, "err": true}
	for name := range g.names {
		reserved[name] = true
	}

	ctx := params.At(0).Name()
	if ctx == "" || ctx == "_" || reserved[ctx] {
		ctx = "ctx"
	}
	decl := []string{ctx + " " + typeNames[0]}
	var args []string
	for i := 1; i < params.Len(); i++ {
		key, local := params.At(i).Name(), params.At(i).Name()
		if key == "" || key == "_" {
			key = "param" + strconv.Itoa(i)
			local = "arg" + strconv.Itoa(i)
		} else if reserved[local] || local == ctx {
			local = "arg" + strconv.Itoa(i)
		}
		decl = append(decl, local+" "+typeNames[i])
		args = append(args, strconv.Quote(key)+": "+local)
	}
	argExpr := "nil"
	if len(args) > 0 {
		argExpr = "engine.Params{" + strings.Join(args, ", ") + "}"
	}
	return methodView{
		Recv:   recv,
		Name:   fn.Name(),
		Params: strings.Join(decl, ", "),
		Ctx:    ctx,
		Out:    out,
		Args:   argExpr,
	}, nil
}

func (g *fileGen) embedsExpr(embeds []string) string {
	if len(embeds) == 0 {
		return ""
	}
	parts := make([]string, len(embeds))
	for i, e := range embeds {
		if name, ok := strings.CutPrefix(e, g.path+"."); ok && !strings.Contains(name, "/") {
			parts[i] = "sqlmapperPackage + " + strconv.Quote("."+name)
			continue
		}
		parts[i] = strconv.Quote(e)
	}
	return "[]string{" + strings.Join(parts, ", ") + "}"
}

func annotationsExpr(as []catalog.Annotation) string {
	if len(as) == 0 {
		return ""
	}
	parts := make([]string, len(as))
	for i, a := range as {
		if a.Value == "" {
			parts[i] = fmt.Sprintf("{Name: %q}", a.Name)
		} else {
			parts[i] = fmt.Sprintf("{Name: %q, Value: %q}", a.Name, a.Value)
		}
	}
	return "[]catalog.Annotation{" + strings.Join(parts, ", ") + "}"
}

func kindExpr(k catalog.Kind) string {
	switch k {
	case catalog.KindInterface:
		return "catalog.KindInterface"
	case catalog.KindStruct:
		return "catalog.KindStruct"
	case catalog.KindPackageInfo:
		return "catalog.KindPackageInfo"
	default:
		return "catalog.KindOther"
	}
}

func isContext(t types.Type) bool {
	named, ok := t.(*types.Named)
	if !ok || named.Obj().Pkg() == nil {
		return false
	}
	return named.Obj().Pkg().Path() == "context" && named.Obj().Name() == "Context"
}

func isError(t types.Type) bool {
	return types.Identical(t, types.Universe.Lookup("error").Type())
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[size:]
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
