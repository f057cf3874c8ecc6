package parser

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// ToText renders a loosely typed feed value as text. Numbers, booleans,
// lists and nested maps are all accepted; nil is the empty string.
// Maps produced from feed extensions expose their text under "value".
func ToText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	case error:
		return t.Error()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case []string:
		return joinNonEmpty(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, ToText(e))
		}
		return joinNonEmpty(parts)
	case map[string]any:
		if inner, ok := t["value"]; ok {
			return ToText(inner)
		}
		return mapText(reflect.ValueOf(t))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return ""
		}
		return ToText(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		parts := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts = append(parts, ToText(rv.Index(i).Interface()))
		}
		return joinNonEmpty(parts)
	case reflect.Map:
		return mapText(rv)
	}
	return fmt.Sprint(v)
}

// mapText renders a map as "key: value" pairs in key order
func mapText(rv reflect.Value) string {
	parts := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		parts = append(parts, ToText(iter.Key().Interface())+": "+ToText(iter.Value().Interface()))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func joinNonEmpty(parts []string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

// firstText returns the text of the first value that is not blank
func firstText(values ...any) string {
	for _, v := range values {
		if s := ToText(v); strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
