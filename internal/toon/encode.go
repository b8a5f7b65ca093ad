// Package toon 은 프롬프트에 넣을 구조화 값을 TOON 형태의 간결한 텍스트로 만든다.
package toon

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// Encode: 값을 Toon 포맷 문자열로 변환합니다. 맵 키는 정렬됩니다.
func Encode(value any) string {
	var e encoder
	e.value(normalize(value), 0)
	return strings.TrimRight(e.String(), "\n")
}

type encoder struct {
	strings.Builder
}

func (e *encoder) indent(depth int) {
	e.WriteString(strings.Repeat("  ", depth))
}

// value: 최상위 또는 "key: " 뒤에 오는 값을 씁니다.
func (e *encoder) value(v any, depth int) {
	switch typed := v.(type) {
	case map[string]any:
		if len(typed) == 0 {
			e.WriteString("{}")
			return
		}
		e.fields(typed, depth)
	case []any:
		e.list("", typed, depth)
	default:
		e.WriteString(scalar(typed))
	}
}

func (e *encoder) fields(m map[string]any, depth int) {
	keys := sortedKeys(m)
	for i, key := range keys {
		if i > 0 {
			e.WriteByte('\n')
			e.indent(depth)
		}
		switch child := m[key].(type) {
		case map[string]any:
			if len(child) == 0 {
				e.WriteString(key + ": {}")
				continue
			}
			e.WriteString(key + ":\n")
			e.indent(depth + 1)
			e.fields(child, depth+1)
		case []any:
			e.list(key, child, depth)
		default:
			e.WriteString(key + ": " + scalar(child))
		}
	}
}

// list: 원시값 배열은 한 줄로, 같은 키를 가진 객체 배열은 표로, 나머지는 항목별로 씁니다.
func (e *encoder) list(key string, items []any, depth int) {
	if len(items) == 0 {
		e.WriteString(key + "[0]:")
		return
	}
	if cells, ok := primitives(items); ok {
		fmt.Fprintf(e, "%s[%d]: %s", key, len(items), strings.Join(cells, ","))
		return
	}
	if columns, ok := tableColumns(items); ok {
		fmt.Fprintf(e, "%s[%d]{%s}:", key, len(items), strings.Join(columns, ","))
		for _, item := range items {
			row := item.(map[string]any)
			cells := make([]string, 0, len(columns))
			for _, column := range columns {
				cells = append(cells, scalar(row[column]))
			}
			e.WriteByte('\n')
			e.indent(depth + 1)
			e.WriteString(strings.Join(cells, ","))
		}
		return
	}
	fmt.Fprintf(e, "%s[%d]:", key, len(items))
	for _, item := range items {
		e.WriteByte('\n')
		e.indent(depth + 1)
		e.WriteString("- ")
		e.value(item, depth+2)
	}
}

func primitives(items []any) ([]string, bool) {
	cells := make([]string, 0, len(items))
	for _, item := range items {
		switch item.(type) {
		case map[string]any, []any:
			return nil, false
		}
		cells = append(cells, scalar(item))
	}
	return cells, true
}

func tableColumns(items []any) ([]string, bool) {
	first, ok := items[0].(map[string]any)
	if !ok || len(first) == 0 {
		return nil, false
	}
	columns := sortedKeys(first)
	for _, item := range items {
		row, ok := item.(map[string]any)
		if !ok || len(row) != len(columns) {
			return nil, false
		}
		for _, column := range columns {
			value, exists := row[column]
			if !exists {
				return nil, false
			}
			switch value.(type) {
			case map[string]any, []any:
				return nil, false
			}
		}
	}
	return columns, true
}

func scalar(v any) string {
	switch typed := v.(type) {
	case nil:
		return "null"
	case string:
		return quote(typed)
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case fmt.Stringer:
		return quote(typed.String())
	default:
		return fmt.Sprint(typed)
	}
}

// quote: 구분자나 개행이 포함된 문자열만 따옴표로 감쌉니다.
func quote(s string) string {
	if s == "" {
		return `""`
	}
	if !strings.ContainsAny(s, ",:\n\"'[]{}") && strings.TrimSpace(s) == s {
		return s
	}
	return strconv.Quote(s)
}

// normalize: 임의의 맵/슬라이스를 map[string]any, []any 로 통일합니다.
func normalize(v any) any {
	switch typed := v.(type) {
	case nil, string, bool, float32, float64, int, int64:
		return typed
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, value := range typed {
			out[key] = normalize(value)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, value := range typed {
			out[i] = normalize(value)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = normalize(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	default:
		return v
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
