package executor

import (
	"context"
	"sync"
	"testing"

	language "github.com/hanpama/normcache/internal/language"
)

// mustParseQuery parses a GraphQL query and fails the test on error.
func mustParseQuery(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	d, err := language.ParseQuery(q)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return d
}

// mapResolver reads every field off map sources and records each call.
type mapResolver struct {
	mu    sync.Mutex
	calls []Field
	fail  map[string]error
}

func (r *mapResolver) ResolveField(ctx context.Context, source any, field Field) (any, error) {
	r.mu.Lock()
	r.calls = append(r.calls, field)
	r.mu.Unlock()
	if err := r.fail[field.Name]; err != nil {
		return nil, err
	}
	m, _ := source.(map[string]any)
	return m[field.Name], nil
}

func (r *mapResolver) TypeName(value any) string {
	return ResolverFunc(nil).TypeName(value)
}
