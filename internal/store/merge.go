package store

import "github.com/google/go-cmp/cmp"

// Equal reports whether two records are deeply equal.
func Equal(a, b Record) bool {
	return cmp.Equal(map[string]any(a), map[string]any(b))
}

// Merge deep-merges incoming into a copy of existing and returns the result.
// Neither argument is modified.
//
//   - object attributes merge recursively
//   - array attributes become the set union of old and new (old first)
//   - an existing array is kept when the incoming value is not an array
//   - any other collision resolves to the incoming value
func Merge(existing, incoming Record) Record {
	out := existing.Clone()
	if out == nil {
		out = make(Record, len(incoming))
	}
	for k, v := range incoming {
		old, ok := out[k]
		if !ok {
			out[k] = CloneValue(v)
			continue
		}
		out[k] = mergeValue(old, v)
	}
	return out
}

func mergeValue(old, incoming any) any {
	if n, ok := asMap(incoming); ok {
		if o, ok := asMap(old); ok {
			return mergeMaps(o, n)
		}
		return CloneValue(n)
	}
	if n, ok := incoming.([]any); ok {
		if o, ok := old.([]any); ok {
			return union(o, n)
		}
		return CloneValue(n)
	}
	if o, ok := old.([]any); ok {
		return CloneValue(o)
	}
	return incoming
}

func mergeMaps(old, incoming map[string]any) map[string]any {
	out := make(map[string]any, len(old)+len(incoming))
	for k, v := range old {
		out[k] = CloneValue(v)
	}
	for k, v := range incoming {
		if o, ok := out[k]; ok {
			out[k] = mergeValue(o, v)
			continue
		}
		out[k] = CloneValue(v)
	}
	return out
}

// union returns the distinct elements of a followed by the distinct elements
// of b not already present, compared by value.
func union(a, b []any) []any {
	out := make([]any, 0, len(a)+len(b))
	for _, src := range [][]any{a, b} {
		for _, v := range src {
			if containsValue(out, v) {
				continue
			}
			out = append(out, CloneValue(v))
		}
	}
	return out
}

func containsValue(list []any, v any) bool {
	for _, e := range list {
		if cmp.Equal(e, v) {
			return true
		}
	}
	return false
}
