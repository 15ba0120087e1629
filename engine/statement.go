package engine

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// StatementType is the kind of SQL a mapped statement runs.
type StatementType int

const (
	StatementUnknown StatementType = iota
	StatementSelect
	StatementInsert
	StatementUpdate
	StatementDelete
)

func (t StatementType) String() string {
	switch t {
	case StatementSelect:
		return "select"
	case StatementInsert:
		return "insert"
	case StatementUpdate:
		return "update"
	case StatementDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ParseStatementType parses the `type` attribute of a mapper statement.
func ParseStatementType(s string) (StatementType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "select":
		return StatementSelect, nil
	case "insert":
		return StatementInsert, nil
	case "update":
		return StatementUpdate, nil
	case "delete":
		return StatementDelete, nil
	default:
		return StatementUnknown, fmt.Errorf("engine: unknown statement type %q", s)
	}
}

// MappedStatement is one compiled statement of a mapper namespace.
type MappedStatement struct {
	ID         string
	Namespace  string
	Resource   string
	Type       StatementType
	DatabaseID string
	ResultType reflect.Type
	Timeout    time.Duration
	FlushCache bool
	UseCache   bool
	Cache      Cache

	sql    string
	params []string
}

// SQL returns the statement text with positional placeholders.
func (s *MappedStatement) SQL() string { return s.sql }

// ParameterNames lists the parameter expression bound to each placeholder.
func (s *MappedStatement) ParameterNames() []string {
	return append([]string(nil), s.params...)
}

var (
	placeholderPattern = regexp.MustCompile(`#\{([^}]+)\}`)
	includePattern     = regexp.MustCompile(`<include\s+refid="([^"]+)"\s*/>`)
)

// compilePlaceholders rewrites #{name} markers into $n positional arguments.
// Repeated names share one position.
func compilePlaceholders(text string) (string, []string) {
	var names []string
	index := make(map[string]int)
	out := placeholderPattern.ReplaceAllStringFunc(text, func(m string) string {
		expr := placeholderPattern.FindStringSubmatch(m)[1]
		name, _, _ := strings.Cut(expr, ",")
		name = strings.TrimSpace(name)
		pos, ok := index[name]
		if !ok {
			names = append(names, name)
			pos = len(names)
			index[name] = pos
		}
		return "$" + strconv.Itoa(pos)
	})
	return strings.TrimSpace(out), names
}

// qualify turns a fragment reference into a namespace qualified id.
func qualify(namespace, ref string) string {
	if strings.Contains(ref, ".") {
		return ref
	}
	return namespace + "." + ref
}

// expandIncludes replaces <include refid="..."/> markers with fragment text.
// It reports the first reference that is not yet known.
func expandIncludes(text, namespace string, fragments map[string]string) (string, string) {
	missing := ""
	for depth := 0; depth < 8 && strings.Contains(text, "<include"); depth++ {
		text = includePattern.ReplaceAllStringFunc(text, func(m string) string {
			ref := qualify(namespace, includePattern.FindStringSubmatch(m)[1])
			frag, ok := fragments[ref]
			if !ok {
				if missing == "" {
					missing = ref
				}
				return m
			}
			return frag
		})
		if missing != "" {
			return text, missing
		}
	}
	return text, ""
}

// boundArgs evaluates the statement parameters against param.
func (s *MappedStatement) boundArgs(cfg *Configuration, param any) ([]any, error) {
	args := make([]any, len(s.params))
	for i, name := range s.params {
		v, err := resolveParam(param, name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.ID, err)
		}
		if v != nil {
			if h, ok := cfg.typeHandlers.Lookup(reflect.TypeOf(v)); ok {
				if v, err = h.ToDriver(v); err != nil {
					return nil, fmt.Errorf("%s: parameter %s: %w", s.ID, name, err)
				}
			}
		}
		args[i] = v
	}
	return args, nil
}

// Params carries named mapper method arguments.
type Params map[string]any

func resolveParam(param any, name string) (any, error) {
	parts := strings.Split(name, ".")
	v, ok := lookupValue(param, parts[0])
	if !ok {
		if p, isParams := param.(Params); isParams && len(p) == 1 {
			for _, only := range p {
				v, ok = lookupValue(only, parts[0])
			}
		}
	}
	if !ok && isScalar(param) {
		v, ok = param, true
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrParameterNotFound, name)
	}
	for _, part := range parts[1:] {
		if v, ok = lookupValue(v, part); !ok {
			return nil, fmt.Errorf("%w: %s", ErrParameterNotFound, name)
		}
	}
	return v, nil
}

func lookupValue(obj any, key string) (any, bool) {
	switch m := obj.(type) {
	case nil:
		return nil, false
	case Params:
		v, ok := m[key]
		return v, ok
	case map[string]any:
		v, ok := m[key]
		return v, ok
	}
	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		mv := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !mv.IsValid() {
			return nil, false
		}
		return mv.Interface(), true
	case reflect.Struct:
		f, ok := fieldByColumn(rv, key, false)
		if !ok {
			return nil, false
		}
		return f.Interface(), true
	}
	return nil, false
}

func isScalar(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.(time.Time); ok {
		return true
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return true
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct, reflect.Map:
		return false
	}
	return true
}

// fieldByColumn finds the exported struct field for a column: `db` tag first,
// then the field name ignoring case, then (when enabled) the name with
// underscores removed.
func fieldByColumn(rv reflect.Value, column string, underscoreToCamel bool) (reflect.Value, bool) {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		if tag, _, _ := strings.Cut(sf.Tag.Get("db"), ","); tag != "" {
			if tag == column {
				return rv.Field(i), true
			}
			continue
		}
		if strings.EqualFold(sf.Name, column) {
			return rv.Field(i), true
		}
		if underscoreToCamel && strings.EqualFold(sf.Name, strings.ReplaceAll(column, "_", "")) {
			return rv.Field(i), true
		}
	}
	return reflect.Value{}, false
}
