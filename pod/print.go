package pod

import (
	"fmt"
	"io"
	"reflect"
	"strings"
)

func tryStringer(v reflect.Value) (string, bool) {
	if !v.IsValid() {
		return "", false
	}

	if v.CanInterface() {
		if s, ok := v.Interface().(fmt.Stringer); ok {
			return s.String(), true
		}
	}

	if v.CanAddr() {
		av := v.Addr()
		if av.CanInterface() {
			if s, ok := av.Interface().(fmt.Stringer); ok {
				return s.String(), true
			}
		}
	}
	return "", false
}

func formatScalar(fv reflect.Value) string {
	var raw string
	switch fv.Kind() {
	case reflect.Uint8:
		u := fv.Uint()
		raw = fmt.Sprintf("%d (0x%02X)", u, u)
	case reflect.Int8:
		raw = fmt.Sprintf("%d", fv.Int())
	case reflect.Bool:
		raw = fmt.Sprintf("%v", fv.Bool())
	default:
		raw = fmt.Sprintf("%v", fv.Interface())
	}

	if s, ok := tryStringer(fv); ok && s != "" && s != raw {
		return raw + " :: " + s
	}
	return raw
}

func formatArray(fv reflect.Value) string {
	n := fv.Len()
	shown := min(n, 16)
	parts := make([]string, 0, shown+1)
	for j := 0; j < shown; j++ {
		parts = append(parts, fmt.Sprintf("%02X", uint8(fv.Index(j).Uint())))
	}
	if n > shown {
		parts = append(parts, fmt.Sprintf("... (%d bytes)", n))
	}
	return strings.Join(parts, " ")
}

// PrintStruct writes one table row per tagged field of v, with the address
// each field was decoded from. v is a struct or a pointer to one.
func PrintStruct(v any, base int, w io.Writer) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return fmt.Errorf("pod.PrintStruct: nil %T", v)
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("pod.PrintStruct: %T is not a struct", v)
	}

	table := NewTable(
		ColumnSpec{Header: "Field"},
		ColumnSpec{Header: "Address", MinWidth: 6},
		ColumnSpec{Header: "Value"},
	)
	if err := addRows(table, "", base, rv); err != nil {
		return err
	}
	return table.Render(w)
}

func addRows(table *Table, prefix string, base int, sv reflect.Value) error {
	st := sv.Type()
	for i := 0; i < st.NumField(); i++ {
		ft := st.Field(i)
		tags := parsePodTags(ft.Tag.Get("pod"))
		if tags["type"] == "skip" {
			continue
		}
		at, ok, err := offsetOf(ft, tags)
		if err != nil {
			return err
		}
		if !ok || !ft.IsExported() {
			continue
		}

		name := prefix + ft.Name
		addr := fmt.Sprintf("$%04X", base+at)
		fv := sv.Field(i)

		switch fv.Kind() {
		case reflect.Struct:
			table.AddRow(name, addr, "")
			if err := addRows(table, "  "+name+".", base+at, fv); err != nil {
				return err
			}
		case reflect.Array:
			table.AddRow(name, addr, formatArray(fv))
		default:
			table.AddRow(name, addr, formatScalar(fv))
		}
	}
	return nil
}
