// Package pod decodes plain structs out of a byte image using struct tags
// that give each field's offset:
//
//	type Header struct {
//		Frame uint8     `pod:"at=0x0043"`
//		Field [128]byte `pod:"at=0x0400"`
//		P1    Player    `pod:"at=0x0300"` // nested offsets are relative
//		Note  string    `pod:"skip"`
//	}
//
// Supported field kinds are uint8, int8, bool, arrays of those, and nested
// structs. Fields without an "at" are left alone.
package pod

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Decode fills the struct v points to from data, with every offset taken
// relative to base.
func Decode(data []byte, base int, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("pod.Decode: v must be a non-nil pointer to a struct")
	}

	elem := rv.Elem()
	if elem.Kind() != reflect.Struct {
		return errors.New("pod.Decode: v must point to a struct")
	}

	return decodeStruct(data, base, elem)
}

// Span returns one past the highest byte Decode would read for a value of
// v's type, or an error if the type cannot be decoded.
func Span(v any) (int, error) {
	rt := reflect.TypeOf(v)
	for rt != nil && rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt == nil || rt.Kind() != reflect.Struct {
		return 0, errors.New("pod.Span: v must be a struct")
	}
	return structSpan(rt)
}

func decodeStruct(data []byte, base int, sv reflect.Value) error {
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
		if !ok {
			continue
		}
		if !ft.IsExported() {
			return fmt.Errorf("pod: field %s.%s is unexported", st.Name(), ft.Name)
		}
		if err := decodeField(data, base+at, sv.Field(i), ft); err != nil {
			return err
		}
	}
	return nil
}

func decodeField(data []byte, at int, fv reflect.Value, ft reflect.StructField) error {
	switch fv.Kind() {
	case reflect.Struct:
		return decodeStruct(data, at, fv)

	case reflect.Array:
		n := fv.Len()
		if at < 0 || at+n > len(data) {
			return fmt.Errorf("pod: field %s [0x%X, 0x%X) outside %d bytes", ft.Name, at, at+n, len(data))
		}
		for j := 0; j < n; j++ {
			if err := setByte(fv.Index(j), data[at+j], ft); err != nil {
				return err
			}
		}
		return nil

	default:
		if at < 0 || at >= len(data) {
			return fmt.Errorf("pod: field %s at 0x%X outside %d bytes", ft.Name, at, len(data))
		}
		return setByte(fv, data[at], ft)
	}
}

func setByte(fv reflect.Value, b byte, ft reflect.StructField) error {
	switch fv.Kind() {
	case reflect.Uint8:
		fv.SetUint(uint64(b))
	case reflect.Int8:
		fv.SetInt(int64(int8(b)))
	case reflect.Bool:
		fv.SetBool(b != 0)
	default:
		return fmt.Errorf("pod: field %s has unsupported kind %s", ft.Name, fv.Kind())
	}
	return nil
}

func structSpan(st reflect.Type) (int, error) {
	span := 0
	for i := 0; i < st.NumField(); i++ {
		ft := st.Field(i)
		tags := parsePodTags(ft.Tag.Get("pod"))
		if tags["type"] == "skip" {
			continue
		}
		at, ok, err := offsetOf(ft, tags)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		if typeHasPointers(ft.Type) {
			return 0, fmt.Errorf("pod: field %s.%s contains pointers", st.Name(), ft.Name)
		}

		var end int
		switch ft.Type.Kind() {
		case reflect.Struct:
			inner, err := structSpan(ft.Type)
			if err != nil {
				return 0, err
			}
			end = at + inner
		case reflect.Array:
			end = at + ft.Type.Len()
		default:
			end = at + 1
		}
		span = max(span, end)
	}
	return span, nil
}

func offsetOf(ft reflect.StructField, tags map[string]string) (int, bool, error) {
	s, ok := tags["at"]
	if !ok {
		return 0, false, nil
	}
	at, err := strconv.ParseInt(s, 0, 32)
	if err != nil || at < 0 {
		return 0, false, fmt.Errorf("pod: field %s: bad offset '%s'", ft.Name, s)
	}
	return int(at), true, nil
}

// typeHasPointers reports whether rt (recursively) contains any pointer-like fields.
func typeHasPointers(rt reflect.Type) bool {
	switch rt.Kind() {
	case reflect.Ptr, reflect.UnsafePointer, reflect.Interface, reflect.Func, reflect.Map, reflect.Slice, reflect.String:
		return true
	case reflect.Array:
		return typeHasPointers(rt.Elem())
	case reflect.Struct:
		for i := 0; i < rt.NumField(); i++ {
			if typeHasPointers(rt.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// parsePodTags parses a pod tag such as "skip" or "at=0x43,hex" into a map.
// A leading bare word is the field type.
func parsePodTags(tagStr string) map[string]string {
	tags := make(map[string]string)
	if tagStr == "" {
		return tags
	}

	for i, part := range strings.Split(tagStr, ",") {
		if k, v, ok := strings.Cut(part, "="); ok {
			tags[k] = v
			continue
		}
		if i == 0 {
			tags["type"] = part
		} else {
			tags[part] = "true"
		}
	}

	return tags
}
