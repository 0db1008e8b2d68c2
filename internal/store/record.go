package store

// Record is one stored entity. Attribute values are JSON-shaped: scalars,
// []any and map[string]any. Reference attributes hold ids (string or []any of
// strings) of other records.
type Record map[string]any

// Clone returns a deep copy of r. Records handed out of the store are always
// clones, so callers can never alias stored state.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = CloneValue(v)
	}
	return out
}

// String returns the attribute as a string when it holds one.
func (r Record) String(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}

// CloneValue deep-copies a JSON-shaped value.
func CloneValue(v any) any {
	switch t := v.(type) {
	case Record:
		return t.Clone()
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = CloneValue(vv)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i := range t {
			s[i] = CloneValue(t[i])
		}
		return s
	default:
		return v
	}
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case Record:
		return map[string]any(t), true
	case map[string]any:
		return t, true
	}
	return nil, false
}
