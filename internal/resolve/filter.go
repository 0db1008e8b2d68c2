package resolve

import (
	"encoding/json"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/go-cmp/cmp"

	"github.com/hanpama/normcache/internal/store"
)

const (
	opGreaterThanOrEqualTo = "greaterThanOrEqualTo"
	opLessThanOrEqualTo    = "lessThanOrEqualTo"
)

// filter applies the condition argument and then the filter argument.
//
// condition keeps a record when every listed attribute equals the expected
// value. filter evaluates, for every listed attribute the record carries a
// truthy value for, each range operator against the bound as time instants:
// greaterThanOrEqualTo keeps records at or before the bound and
// lessThanOrEqualTo keeps records at or after it.
func (s *RecordSet) filter(args map[string]any) {
	if cond, ok := args["condition"].(map[string]any); ok {
		s.keep(func(rec store.Record) bool { return matchCondition(rec, cond) })
	}
	if f, ok := args["filter"].(map[string]any); ok {
		s.keep(func(rec store.Record) bool { return matchFilter(rec, f) })
	}
}

func matchCondition(rec store.Record, cond map[string]any) bool {
	for attr, want := range cond {
		got, ok := rec[attr]
		if !ok || !cmp.Equal(normalizeNumber(got), normalizeNumber(want)) {
			return false
		}
	}
	return true
}

func matchFilter(rec store.Record, filter map[string]any) bool {
	for attr, spec := range filter {
		value := rec[attr]
		if !truthy(value) {
			continue
		}
		ops, ok := spec.(map[string]any)
		if !ok {
			continue
		}
		for op, bound := range ops {
			if bound == nil {
				continue
			}
			switch op {
			case opGreaterThanOrEqualTo:
				v, vok := instant(value)
				b, bok := instant(bound)
				if !vok || !bok || v.After(b) {
					return false
				}
			case opLessThanOrEqualTo:
				v, vok := instant(value)
				b, bok := instant(bound)
				if !vok || !bok || v.Before(b) {
					return false
				}
			}
		}
	}
	return true
}

// instant parses a date-time string (RFC 3339 and the other layouts strfmt
// accepts, or a bare date) or a number of milliseconds since the epoch.
func instant(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		if dt, err := strfmt.ParseDateTime(t); err == nil {
			return time.Time(dt), true
		}
		if d, err := time.Parse(strfmt.RFC3339FullDate, t); err == nil {
			return d, true
		}
	case float64:
		return time.UnixMilli(int64(t)), true
	case int:
		return time.UnixMilli(int64(t)), true
	case int64:
		return time.UnixMilli(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return time.UnixMilli(n), true
		}
	}
	return time.Time{}, false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	}
	return true
}

func normalizeNumber(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
	}
	return v
}
