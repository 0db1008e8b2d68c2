package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

var root = map[string]any{
	"__typename": "Query",
	"viewer": map[string]any{
		"__typename": "User",
		"name":       "ada",
		"tags":       []any{"a", "b"},
		"friends": []any{
			map[string]any{"__typename": "User", "name": "bob"},
			nil,
			map[string]any{"__typename": "Bot", "name": "hal", "model": "9000"},
		},
	},
}

// Pattern: Result comparison
func TestExecute_Result(t *testing.T) {
	t.Run("Leaves objects and lists", func(t *testing.T) {
		exec := NewExecutor(&mapResolver{})
		doc := mustParseQuery(t, `{ viewer { name tags friends { name } } }`)

		got := exec.ExecuteRequest(context.Background(), doc, "", nil, root)

		want := &ExecutionResult{Data: map[string]any{
			"viewer": map[string]any{
				"name": "ada",
				"tags": []any{"a", "b"},
				"friends": []any{
					map[string]any{"name": "bob"},
					nil,
					map[string]any{"name": "hal"},
				},
			},
		}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Aliases and fragments", func(t *testing.T) {
		exec := NewExecutor(&mapResolver{})
		doc := mustParseQuery(t, `
                query Viewer {
                        me: viewer {
                                ...UserParts
                                friends { ... on Bot { model } first: name }
                        }
                }
                fragment UserParts on User { name }
                `)

		got := exec.ExecuteRequest(context.Background(), doc, "Viewer", nil, root)

		want := &ExecutionResult{Data: map[string]any{
			"me": map[string]any{
				"name": "ada",
				"friends": []any{
					map[string]any{"first": "bob"},
					nil,
					map[string]any{"model": "9000", "first": "hal"},
				},
			},
		}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Null object short-circuits", func(t *testing.T) {
		exec := NewExecutor(&mapResolver{})
		doc := mustParseQuery(t, `{ missing { name } }`)

		got := exec.ExecuteRequest(context.Background(), doc, "", nil, root)

		want := &ExecutionResult{Data: map[string]any{"missing": nil}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}
	})
}

// Pattern: Call recording
func TestExecute_FieldInfo(t *testing.T) {
	rt := &mapResolver{}
	exec := NewExecutor(rt)
	doc := mustParseQuery(t, `query($n: Int) { v: viewer(first: $n) { name } }`)

	res := exec.ExecuteRequest(context.Background(), doc, "", map[string]any{"n": 2}, root)
	require.NoError(t, res.Err())

	want := []Field{
		{Name: "viewer", Alias: "v", Args: map[string]any{"first": 2}, Path: Path{"v"}},
		{Name: "name", Leaf: true, Path: Path{"v", "name"}},
	}
	if diff := cmp.Diff(want, rt.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
}

// Pattern: Error handling
func TestExecute_Errors(t *testing.T) {
	t.Run("First error aborts", func(t *testing.T) {
		boom := errors.New("boom")
		exec := NewExecutor(&mapResolver{fail: map[string]error{"name": boom}})
		doc := mustParseQuery(t, `{ viewer { tags friends { name } } }`)

		got := exec.ExecuteRequest(context.Background(), doc, "", nil, root)

		require.Nil(t, got.Data)
		require.Len(t, got.Errors, 1)
		require.ErrorIs(t, got.Err(), boom)
		want := GraphQLError{Message: "boom", Path: Path{"viewer", "friends", 0, "name"}}
		if diff := cmp.Diff(want, got.Errors[0], cmpopts.IgnoreFields(GraphQLError{}, "Err")); diff != "" {
			t.Fatalf("error mismatch (-want +got):\n%s", diff)
		}
		require.Equal(t, "viewer.friends[0].name", got.Errors[0].Path.String())
	})

	t.Run("Cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		exec := NewExecutor(&mapResolver{})

		got := exec.ExecuteRequest(ctx, mustParseQuery(t, `{ viewer { name } }`), "", nil, root)

		require.ErrorIs(t, got.Err(), context.Canceled)
		require.Nil(t, got.Data)
	})

	t.Run("Unknown operation", func(t *testing.T) {
		exec := NewExecutor(&mapResolver{})
		got := exec.ExecuteRequest(context.Background(), mustParseQuery(t, `query A { viewer { name } }`), "B", nil, root)
		require.EqualError(t, got.Err(), "operation not found")
	})

	t.Run("Mutation rejected", func(t *testing.T) {
		exec := NewExecutor(&mapResolver{})
		got := exec.ExecuteRequest(context.Background(), mustParseQuery(t, `mutation { viewer { name } }`), "", nil, root)
		require.EqualError(t, got.Err(), "unsupported operation type: mutation")
	})

	t.Run("Variable coercion", func(t *testing.T) {
		exec := NewExecutor(&mapResolver{})
		got := exec.ExecuteRequest(context.Background(), mustParseQuery(t, `query($n: Int!) { viewer { name } }`), "", nil, root)
		require.Error(t, got.Err())
		require.Nil(t, got.Data)
	})
}
