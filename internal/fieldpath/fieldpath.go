// Package fieldpath resolves dotted paths such as "result.data" against
// decoded JSON or XML-as-map documents.
package fieldpath

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Extract walks item along the dot-separated path and returns the value it
// finds. An empty path, or a path that cannot be resolved, yields ok=false.
//
// Root fallback: when a segment is missing from the current mapping, the same
// single key is looked up on the top-level item before giving up. Feeds with
// mixed shapes rely on this, e.g. "a.c" resolves to item["c"] when a has no c.
func Extract(item map[string]any, path string) (any, bool) {
	if item == nil || strings.TrimSpace(path) == "" {
		return nil, false
	}

	var current any = item
	for _, key := range strings.Split(path, ".") {
		m, isMap := asMap(current)
		if !isMap {
			return nil, false
		}
		if v, found := m[key]; found {
			current = v
			continue
		}
		v, found := item[key]
		if !found {
			return nil, false
		}
		current = v
	}
	return current, true
}

// String resolves path and renders scalar values as text. Mappings and
// lists are not strings; nil counts as absent.
func String(item map[string]any, path string) (string, bool) {
	v, ok := Extract(item, path)
	if !ok {
		return "", false
	}
	return Stringify(v)
}

// List resolves path to a slice. An empty path returns false; callers that
// treat the whole document as the list handle that themselves.
func List(item map[string]any, path string) ([]any, bool) {
	v, ok := Extract(item, path)
	if !ok {
		return nil, false
	}
	l, ok := v.([]any)
	return l, ok
}

// Stringify renders a scalar decoded value.
func Stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}
