package jsonutil

import (
	"strings"
)

// Unflatten expands a flat map with dot-notation keys into a nested map.
// {"attributes.vatCode": "X"} becomes {"attributes": {"vatCode": "X"}}.
// Keys without dots pass through unchanged. If an intermediate path segment
// collides with a non-map value, the nested write wins.
func Unflatten(data map[string]any) map[string]any {
	result := make(map[string]any, len(data))
	for key, value := range data {
		parts := strings.Split(key, ".")
		current := result
		for _, part := range parts[:len(parts)-1] {
			next, ok := current[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				current[part] = next
			}
			current = next
		}
		current[parts[len(parts)-1]] = value
	}
	return result
}

// FlattenDotted collapses a nested map into a flat map with dot-notation keys,
// the inverse of Unflatten for maps whose leaf paths do not overlap.
func FlattenDotted(data map[string]any) map[string]any {
	result := make(map[string]any)
	flattenInto(result, "", data)
	return result
}

func flattenInto(out map[string]any, prefix string, data map[string]any) {
	for key, value := range data {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok && len(nested) > 0 {
			flattenInto(out, full, nested)
			continue
		}
		out[full] = value
	}
}

// LookupPath reads a value from a nested map by dot-notation path, falling
// back to a flat key of the same name. Returns false if any segment is
// missing or not a map.
func LookupPath(data map[string]any, path string) (any, bool) {
	if v, ok := data[path]; ok {
		return v, true
	}
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	v, ok := current[parts[len(parts)-1]]
	return v, ok
}
