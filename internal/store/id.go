package store

import (
	"encoding/json"
	"strconv"
)

// ID converts an identity attribute to the key it is stored under. Numbers
// decoded from JSON map to their decimal form, so 1.0 and "1" address the
// same record.
func ID(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	}
	return "", false
}
