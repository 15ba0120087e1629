package engine

import (
	"database/sql"
	"fmt"
	"reflect"
	"time"
)

// ResultSet is a materialised query result. Values are those decoded by the
// driver.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
)

type resultMapper struct {
	cfg *Configuration
}

// mapRow writes one row into target, which must be settable.
func (m resultMapper) mapRow(columns []string, values []any, target reflect.Value) error {
	if target.Kind() == reflect.Pointer && !isScalarType(target.Type()) {
		if target.IsNil() {
			obj, err := m.cfg.objectFactory.Create(target.Type().Elem())
			if err != nil {
				return err
			}
			target.Set(obj)
		}
		return m.mapRow(columns, values, target.Elem())
	}

	if target.CanAddr() && m.cfg.objectWrapperFactory.HasWrapperFor(target.Addr()) {
		w := m.cfg.objectWrapperFactory.WrapperFor(m.cfg, target.Addr())
		for i, col := range columns {
			if err := w.SetValue(col, values[i]); err != nil {
				return fmt.Errorf("column %s: %w", col, err)
			}
		}
		return nil
	}

	switch {
	case isScalarType(target.Type()):
		if len(values) == 0 {
			return nil
		}
		return m.assign(target, values[0])
	case target.Kind() == reflect.Map:
		if target.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("engine: cannot map row into %s", target.Type())
		}
		if target.IsNil() {
			target.Set(reflect.MakeMapWithSize(target.Type(), len(columns)))
		}
		for i, col := range columns {
			elem := reflect.New(target.Type().Elem()).Elem()
			if err := m.assign(elem, values[i]); err != nil {
				return fmt.Errorf("column %s: %w", col, err)
			}
			target.SetMapIndex(reflect.ValueOf(col).Convert(target.Type().Key()), elem)
		}
		return nil
	case target.Kind() == reflect.Struct:
		for i, col := range columns {
			field, ok := fieldByColumn(target, col, m.cfg.settings.MapUnderscoreToCamelCase)
			if !ok {
				continue
			}
			if err := m.assign(field, values[i]); err != nil {
				return fmt.Errorf("column %s: %w", col, err)
			}
		}
		return nil
	}
	return fmt.Errorf("engine: cannot map row into %s", target.Type())
}

// assign stores a driver value into dst using, in order, a registered type
// handler, sql.Scanner, direct assignment and conversion.
func (m resultMapper) assign(dst reflect.Value, src any) error {
	if h, ok := m.cfg.typeHandlers.Lookup(dst.Type()); ok {
		v, err := h.FromDriver(src)
		if err != nil {
			return err
		}
		if v == nil {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		rv := reflect.ValueOf(v)
		if !rv.Type().AssignableTo(dst.Type()) {
			return fmt.Errorf("engine: type handler for %s returned %T", dst.Type(), v)
		}
		dst.Set(rv)
		return nil
	}
	if dst.CanAddr() && dst.Addr().Type().Implements(scannerType) {
		return dst.Addr().Interface().(sql.Scanner).Scan(src)
	}
	if src == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if dst.Kind() == reflect.Pointer {
		elem := reflect.New(dst.Type().Elem())
		if err := m.assign(elem.Elem(), src); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}
	sv := reflect.ValueOf(src)
	switch {
	case sv.Type().AssignableTo(dst.Type()):
		dst.Set(sv)
	case dst.Kind() == reflect.String && sv.Kind() == reflect.Slice && sv.Type().Elem().Kind() == reflect.Uint8:
		dst.SetString(string(sv.Bytes()))
	case dst.Kind() == reflect.String && sv.Kind() != reflect.String:
		dst.SetString(fmt.Sprint(src))
	case sv.Type().ConvertibleTo(dst.Type()) && convertibleKinds(sv.Kind(), dst.Kind()):
		dst.Set(sv.Convert(dst.Type()))
	default:
		return fmt.Errorf("engine: cannot assign %T to %s", src, dst.Type())
	}
	return nil
}

func convertibleKinds(from, to reflect.Kind) bool {
	numeric := func(k reflect.Kind) bool {
		return k >= reflect.Int && k <= reflect.Float64
	}
	if numeric(from) && numeric(to) {
		return true
	}
	return from == to
}

func isScalarType(t reflect.Type) bool {
	if t == timeType || reflect.PointerTo(t).Implements(scannerType) {
		return true
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Map:
		return false
	case reflect.Pointer:
		return isScalarType(t.Elem())
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8
	}
	return true
}

// isListDest reports whether dest points at a slice other than []byte.
func isListDest(dest any) bool {
	t := reflect.TypeOf(dest)
	if t == nil || t.Kind() != reflect.Pointer {
		return false
	}
	t = t.Elem()
	return t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8
}

func destValue(dest any) (reflect.Value, error) {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return reflect.Value{}, fmt.Errorf("engine: destination must be a non-nil pointer, got %T", dest)
	}
	return rv.Elem(), nil
}
