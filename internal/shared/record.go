package shared //nolint:revive // internal shared package is intentional

import (
	"bytes"
	"encoding/json"
)

// RawRecord is a document as returned by a backend, before decoding.
type RawRecord struct {
	// ID is the backend document id.
	ID string

	// Fields holds the document body in backend-neutral form
	// (string, float64/int64, bool, nil, []any, map[string]any, time.Time).
	Fields map[string]any

	// Ref is an optional backend-native handle used to resume pagination
	// (for example a Firestore document snapshot). Opaque to callers.
	Ref any
}

// SameIdentity reports whether two records refer to the same backend document.
// Content is not compared.
func SameIdentity(a, b *RawRecord) bool {
	if a == nil || b == nil {
		return false
	}
	return a.ID == b.ID
}

// SnapshotEvent is one emission of a subscription: a full result set or an error.
type SnapshotEvent struct {
	Records []RawRecord
	Err     error
}

// CloneFields deep-copies nested maps and slices of fields. A nil map
// yields an empty one.
func CloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneFields(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}

// MergeFields writes src into dst. Nested maps present on both sides merge
// recursively; every other value in src replaces the one in dst.
func MergeFields(dst, src map[string]any) {
	for k, v := range src {
		if sm, ok := v.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				MergeFields(dm, sm)
				continue
			}
		}
		dst[k] = cloneValue(v)
	}
}

// DecodeFields parses a JSON object into fields. Integral numbers that fit
// become int64, everything else numeric becomes float64. A JSON null yields
// a nil map.
func DecodeFields(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		fields[k] = normalizeNumbers(v)
	}
	return fields, nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeNumbers(item)
		}
	case []any:
		for i, item := range t {
			t[i] = normalizeNumbers(item)
		}
	}
	return v
}
