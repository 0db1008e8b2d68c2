package normalize

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/normcache/internal/store"
)

func run(t *testing.T, s *store.Store, n *Normalizer, result map[string]any) ([]store.Change, error) {
	t.Helper()
	return s.Update(func(tx *store.Tx) error { return n.Normalize(tx, result) })
}

func mustRun(t *testing.T, s *store.Store, n *Normalizer, result map[string]any) []store.Change {
	t.Helper()
	changes, err := run(t, s, n, result)
	require.NoError(t, err)
	return changes
}

func get(t *testing.T, s *store.Store, typ, id string) store.Record {
	t.Helper()
	var rec store.Record
	require.NoError(t, s.View(func(v *store.View) error {
		r, ok := v.Get(typ, id)
		require.Truef(t, ok, "%s %s not stored", typ, id)
		rec = r
		return nil
	}))
	return rec
}

func category(id, name string, activities ...map[string]any) map[string]any {
	nodes := make([]any, 0, len(activities))
	for _, a := range activities {
		nodes = append(nodes, a)
	}
	return map[string]any{
		"__typename": "Category",
		"nodeId":     id,
		"name":       name,
		"activitiesByType": map[string]any{
			"__typename": "ActivitiesConnection",
			"nodes":      nodes,
		},
	}
}

func activity(id, name string) map[string]any {
	return map[string]any{"__typename": "Activity", "nodeId": id, "name": name}
}

func TestNormalizeCategoryWithConnection(t *testing.T) {
	s := store.New()
	n := New(WithTypeKey("type"), WithIDKey("id"))

	mustRun(t, s, n, map[string]any{
		"category": map[string]any{
			"type": "Category",
			"id":   "c1",
			"name": "Sports",
			"activitiesByType": map[string]any{
				"type":  "ActivityConnection",
				"nodes": []any{map[string]any{"type": "Activity", "id": "a1", "name": "Soccer"}},
			},
		},
	})

	wantActivity := store.Record{"type": "Activity", "id": "a1", "name": "Soccer", "activitiesByType": "c1"}
	if diff := cmp.Diff(wantActivity, get(t, s, "Activity", "a1")); diff != "" {
		t.Fatalf("activity mismatch (-want +got):\n%s", diff)
	}
	wantCategory := store.Record{"type": "Category", "id": "c1", "name": "Sports", "activitiesByType": []any{"a1"}}
	if diff := cmp.Diff(wantCategory, get(t, s, "Category", "c1")); diff != "" {
		t.Fatalf("category mismatch (-want +got):\n%s", diff)
	}
	require.ElementsMatch(t, []string{"Activity", "Category"}, s.Types(), "connection wrapper must not be stored")

	require.NoError(t, s.View(func(v *store.View) error {
		id, ok := v.Root("category")
		require.True(t, ok)
		require.Equal(t, "c1", id)
		return nil
	}))
}

func TestNormalizeIdempotent(t *testing.T) {
	s := store.New()
	n := New()
	result := map[string]any{
		"allCategories": map[string]any{
			"__typename": "CategoriesConnection",
			"nodes": []any{
				category("c1", "Sports", activity("a1", "Soccer"), activity("a2", "Chess")),
				category("c2", "Games", activity("a2", "Chess")),
			},
		},
	}

	first := mustRun(t, s, n, result)
	require.Len(t, first, 4)
	before := s.Snapshot()

	second := mustRun(t, s, n, result)
	require.Empty(t, second)
	if diff := cmp.Diff(before, s.Snapshot()); diff != "" {
		t.Fatalf("second pass changed the store (-want +got):\n%s", diff)
	}
}

func TestBackReferencePromotion(t *testing.T) {
	t.Run("within one pass", func(t *testing.T) {
		s := store.New()
		mustRun(t, s, New(), map[string]any{
			"categories": []any{
				category("c1", "Sports", activity("a1", "Soccer")),
				category("c2", "Outdoor", activity("a1", "Soccer")),
			},
		})
		require.Equal(t, []any{"c1", "c2"}, get(t, s, "Activity", "a1")["activitiesByType"])
	})

	t.Run("across passes", func(t *testing.T) {
		s := store.New()
		n := New()
		mustRun(t, s, n, map[string]any{"category": category("c1", "Sports", activity("a1", "Soccer"))})
		require.Equal(t, "c1", get(t, s, "Activity", "a1")["activitiesByType"])

		mustRun(t, s, n, map[string]any{"category": category("c2", "Outdoor", activity("a1", "Soccer"))})
		require.Equal(t, []any{"c1", "c2"}, get(t, s, "Activity", "a1")["activitiesByType"])

		mustRun(t, s, n, map[string]any{"category": category("c1", "Sports", activity("a1", "Soccer"))})
		require.Equal(t, []any{"c1", "c2"}, get(t, s, "Activity", "a1")["activitiesByType"], "known parent must not be appended twice")
	})

	t.Run("entity children", func(t *testing.T) {
		s := store.New()
		n := New()
		for _, owner := range []string{"u1", "u2"} {
			mustRun(t, s, n, map[string]any{
				"user": map[string]any{
					"__typename": "User",
					"nodeId":     owner,
					"team": map[string]any{
						"__typename": "Team",
						"nodeId":     "t1",
						"league":     map[string]any{"__typename": "League", "nodeId": "l1"},
					},
				},
			})
		}
		team := get(t, s, "Team", "t1")
		require.Equal(t, []any{"u1", "u2"}, team["team"])
		require.Equal(t, "l1", team["league"])
		require.Equal(t, "t1", get(t, s, "League", "l1")["league"])
		require.Equal(t, "t1", get(t, s, "User", "u2")["team"])
	})
}

func TestNormalizeEdges(t *testing.T) {
	s := store.New()
	mustRun(t, s, New(), map[string]any{
		"category": map[string]any{
			"__typename": "Category",
			"nodeId":     "c1",
			"activitiesByType": map[string]any{
				"__typename": "ActivitiesConnection",
				"totalCount": 2.0,
				"edges": []any{
					map[string]any{"cursor": "x", "node": activity("a1", "Soccer")},
					map[string]any{"cursor": "y", "node": activity("a2", "Chess")},
				},
			},
		},
	})
	require.Equal(t, []any{"a1", "a2"}, get(t, s, "Category", "c1")["activitiesByType"])
	require.Equal(t, "c1", get(t, s, "Activity", "a2")["activitiesByType"])
}

func TestNormalizeEmptyConnection(t *testing.T) {
	s := store.New()
	mustRun(t, s, New(), map[string]any{
		"category": map[string]any{
			"__typename":       "Category",
			"nodeId":           "c1",
			"activitiesByType": map[string]any{"__typename": "ActivitiesConnection", "nodes": []any{}},
		},
	})
	require.Equal(t, []any{}, get(t, s, "Category", "c1")["activitiesByType"])
}

func TestNormalizePassthrough(t *testing.T) {
	s := store.New()
	mustRun(t, s, New(), map[string]any{
		"createActivity": map[string]any{
			"__typename":       "CreateActivityPayload",
			"clientMutationId": "m1",
			"activity":         activity("a9", "Golf"),
		},
	})

	want := store.Record{"__typename": "Activity", "nodeId": "a9", "name": "Golf"}
	if diff := cmp.Diff(want, get(t, s, "Activity", "a9")); diff != "" {
		t.Fatalf("activity mismatch (-want +got):\n%s", diff)
	}
	require.ElementsMatch(t, []string{"Activity"}, s.Types())
	require.NoError(t, s.View(func(v *store.View) error {
		_, ok := v.Root("createActivity")
		require.False(t, ok)
		return nil
	}))
}

func TestNormalizeRootLeaf(t *testing.T) {
	s := store.New()
	mustRun(t, s, New(), map[string]any{
		"__typename":  "Query",
		"currentUser": map[string]any{"__typename": "User", "nodeId": "u1", "roles": []any{"admin", "staff"}},
		"version":     "1.2.0",
	})

	require.Equal(t, []any{"admin", "staff"}, get(t, s, "User", "u1")["roles"])
	require.NoError(t, s.View(func(v *store.View) error {
		id, ok := v.Root("currentUser")
		require.True(t, ok)
		require.Equal(t, "u1", id)
		return nil
	}))
}

func TestNormalizeMalformed(t *testing.T) {
	cases := map[string]map[string]any{
		"missing typename": {
			"category": map[string]any{"nodeId": "c1"},
		},
		"missing id": {
			"category": map[string]any{"__typename": "Category", "name": "Sports"},
		},
		"nested missing id": {
			"category": category("c1", "Sports", map[string]any{"__typename": "Activity", "name": "Soccer"}),
		},
		"nodes and edges": {
			"activities": map[string]any{"__typename": "ActivitiesConnection", "nodes": []any{}, "edges": []any{}},
		},
		"scalar inside object list": {
			"activities": []any{activity("a1", "Soccer"), "a2"},
		},
	}
	for name, result := range cases {
		t.Run(name, func(t *testing.T) {
			s := store.New()
			changes, err := run(t, s, New(), result)
			require.ErrorIs(t, err, ErrMalformedNode)
			require.Nil(t, changes)
			require.Equal(t, 0, s.Len(), "failed pass must not write")
		})
	}
}

func TestKindString(t *testing.T) {
	require.Equal(t, "connection", KindConnection.String())
	require.Equal(t, "unknown", Kind(99).String())
}
