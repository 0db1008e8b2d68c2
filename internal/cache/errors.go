package cache

import (
	"errors"

	language "github.com/hanpama/normcache/internal/language"
	normalize "github.com/hanpama/normcache/internal/normalize"
	resolve "github.com/hanpama/normcache/internal/resolve"
)

// Error kinds reported by ErrorKind.
const (
	KindFieldNotCached = "field_not_cached"
	KindDataNotCached  = "data_not_cached"
	KindUnknownField   = "unknown_field"
	KindMalformedNode  = "malformed_node"
	KindParseError     = "parse_error"
	KindInternal       = "internal"
)

// ErrorKind returns a short label for err, or "" for nil.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, resolve.ErrFieldNotCached):
		return KindFieldNotCached
	case errors.Is(err, resolve.ErrDataNotCached):
		return KindDataNotCached
	case errors.Is(err, resolve.ErrUnknownField):
		return KindUnknownField
	case errors.Is(err, normalize.ErrMalformedNode):
		return KindMalformedNode
	case errors.Is(err, language.ErrParse):
		return KindParseError
	}
	return KindInternal
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return ErrorKind(err)
}
