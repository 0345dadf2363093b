// Package metadata flattens and unflattens nested metadata for vector
// backends that only accept flat key spaces.
//
// Nested maps are encoded as dot-qualified keys ("user.prefs.lang"); scalars
// and slices are leaves and are never recursed into. Unflatten reverses the
// encoding, so Unflatten(Flatten(m)) == m for any metadata whose leaves are
// scalars or slices. Behavior is undefined when a key itself contains a dot.
package metadata

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Flatten encodes nested maps into a single-level map with dot-qualified
// keys. The input is not modified.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	flattenInto(out, "", m)
	return out
}

func flattenInto(out map[string]any, prefix string, m map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(out, key, nested)
			continue
		}
		out[key] = v
	}
}

// Unflatten rebuilds nested maps from dot-qualified keys. Intermediate
// maps are created as needed; the final segment holds the leaf value.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		parts := strings.Split(k, ".")
		node := out
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = v
	}
	return out
}

// FlattenToStrings flattens m and renders every leaf to a string, for
// backends whose metadata is map[string]string (chromem-go). Strings pass
// through unchanged; all other leaves are JSON-encoded.
func FlattenToStrings(m map[string]any) map[string]string {
	flat := Flatten(m)
	out := make(map[string]string, len(flat))
	for k, v := range flat {
		out[k] = encodeLeaf(v)
	}
	return out
}

// UnflattenStrings reverses FlattenToStrings: each value is decoded back to
// its original leaf type where possible, then the keys are unflattened.
func UnflattenStrings(flat map[string]string) map[string]any {
	decoded := make(map[string]any, len(flat))
	for k, v := range flat {
		decoded[k] = decodeLeaf(v)
	}
	return Unflatten(decoded)
}

func encodeLeaf(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		// Unmarshalable leaves (channels, funcs) have no sane encoding;
		// fall back to the fmt-free Sprintf equivalent.
		return strconv.Quote("<unencodable>")
	}
	return string(b)
}

// decodeLeaf recovers JSON-encoded leaves. Values that do not parse as JSON
// are plain strings and pass through unchanged. A parseable value that was
// originally a plain string ("true", "42") is indistinguishable from its
// typed form; callers that need exact round-trips store typed metadata
// through backends with typed payloads.
func decodeLeaf(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	switch trimmed[0] {
	case '{', '[', '"', 't', 'f', 'n', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return s
}
