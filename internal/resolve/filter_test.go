package resolve

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/normcache/internal/store"
)

func names(t *testing.T, data any, field string) []string {
	t.Helper()
	nodes := data.(map[string]any)[field].(map[string]any)["nodes"].([]any)
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.(map[string]any)["name"].(string))
	}
	return out
}

func TestFilterLiteralDirections(t *testing.T) {
	s := seed(t, categoryResult)

	t.Run("lessThanOrEqualTo keeps later records", func(t *testing.T) {
		res := execute(t, s, `query($t: Datetime) {
                        allActivities(filter: {date: {lessThanOrEqualTo: $t}}) { nodes { name } }
                }`, map[string]any{"t": "2024-03-01T10:00:00Z"})
		require.NoError(t, res.Err())
		require.Equal(t, []string{"Soccer", "Golf"}, names(t, res.Data, "allActivities"))
	})

	t.Run("greaterThanOrEqualTo keeps earlier records", func(t *testing.T) {
		res := execute(t, s, `{
                        allActivities(filter: {date: {greaterThanOrEqualTo: "2024-03-01T10:00:00Z"}}) { nodes { name } }
                }`, nil)
		require.NoError(t, res.Err())
		require.Equal(t, []string{"Soccer", "Chess"}, names(t, res.Data, "allActivities"))
	})

	t.Run("both operators form a window", func(t *testing.T) {
		res := execute(t, s, `{
                        allActivities(filter: {date: {lessThanOrEqualTo: "2024-02-01", greaterThanOrEqualTo: "2024-04-01"}}) { nodes { name } }
                }`, nil)
		require.NoError(t, res.Err())
		require.Equal(t, []string{"Soccer"}, names(t, res.Data, "allActivities"))
	})

	t.Run("filter on nested connection", func(t *testing.T) {
		res := execute(t, s, `{
                        category { activitiesByType(filter: {date: {lessThanOrEqualTo: "2024-06-01T00:00:00Z"}}) { nodes { name } } }
                }`, nil)
		require.NoError(t, res.Err())
		require.Equal(t, []string{"Golf"}, names(t, res.Data.(map[string]any)["category"], "activitiesByType"))
	})
}

func TestRecordSetFilter(t *testing.T) {
	build := func() *RecordSet {
		set := &RecordSet{TypeName: "EventsConnection"}
		set.add("e1", store.Record{"nodeId": "e1", "t": "2024-01-01T00:00:00Z", "rank": 3.0, "kind": "talk"})
		set.add("e2", store.Record{"nodeId": "e2", "t": "2024-02-01T00:00:00Z", "rank": 1.0, "kind": "talk"})
		set.add("e3", store.Record{"nodeId": "e3", "rank": 3.0, "kind": "demo"})
		set.add("e4", store.Record{"nodeId": "e4", "t": "not a date", "kind": "talk"})
		set.add("e5", store.Record{"nodeId": "e5", "t": 1706745600000.0, "kind": "talk"})
		return set
	}

	cases := []struct {
		name string
		args map[string]any
		want []string
	}{
		{"no arguments", map[string]any{}, []string{"e1", "e2", "e3", "e4", "e5"}},
		{
			"condition equality with numeric normalization",
			map[string]any{"condition": map[string]any{"rank": 3}},
			[]string{"e1", "e3"},
		},
		{
			"condition excludes missing attribute",
			map[string]any{"condition": map[string]any{"kind": "talk", "rank": 1}},
			[]string{"e2"},
		},
		{
			"absent attribute passes filter and bad dates fail it",
			map[string]any{"filter": map[string]any{"t": map[string]any{"lessThanOrEqualTo": "2024-01-15T00:00:00Z"}}},
			[]string{"e2", "e3", "e5"},
		},
		{
			"unknown operator is ignored",
			map[string]any{"filter": map[string]any{"t": map[string]any{"equalTo": "2024-01-01T00:00:00Z"}}},
			[]string{"e1", "e2", "e3", "e4", "e5"},
		},
		{
			"condition then filter",
			map[string]any{
				"condition": map[string]any{"kind": "talk"},
				"filter":    map[string]any{"t": map[string]any{"greaterThanOrEqualTo": "2024-01-15T00:00:00Z"}},
			},
			[]string{"e1"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			set := build()
			set.filter(tc.args)
			require.Equal(t, tc.want, set.IDs)
			require.Len(t, set.Records, len(tc.want))
		})
	}
}
