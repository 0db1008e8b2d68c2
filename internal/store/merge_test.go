package store

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMerge(t *testing.T) {
	t.Run("scalar collision takes incoming", func(t *testing.T) {
		got := Merge(Record{"name": "old", "keep": 1.0}, Record{"name": "new"})
		want := Record{"name": "new", "keep": 1.0}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("merge mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("arrays become set union old first", func(t *testing.T) {
		got := Merge(Record{"tags": []any{"a", "b"}}, Record{"tags": []any{"c", "a"}})
		want := Record{"tags": []any{"a", "b", "c"}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("merge mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("union compares by value", func(t *testing.T) {
		got := Merge(
			Record{"pts": []any{map[string]any{"x": 1.0}}},
			Record{"pts": []any{map[string]any{"x": 1.0}, map[string]any{"x": 2.0}}},
		)
		want := Record{"pts": []any{map[string]any{"x": 1.0}, map[string]any{"x": 2.0}}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("merge mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("objects merge recursively", func(t *testing.T) {
		got := Merge(
			Record{"geo": map[string]any{"lat": 1.0, "lng": 2.0}},
			Record{"geo": map[string]any{"lng": 3.0, "alt": 4.0}},
		)
		want := Record{"geo": map[string]any{"lat": 1.0, "lng": 3.0, "alt": 4.0}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("merge mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("existing list survives incoming scalar", func(t *testing.T) {
		got := Merge(Record{"parent": []any{"p1", "p2"}}, Record{"parent": "p1"})
		want := Record{"parent": []any{"p1", "p2"}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("merge mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("incoming list replaces scalar", func(t *testing.T) {
		got := Merge(Record{"parent": "p1"}, Record{"parent": []any{"p1", "p2"}})
		want := Record{"parent": []any{"p1", "p2"}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("merge mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("inputs are not modified", func(t *testing.T) {
		existing := Record{"tags": []any{"a"}, "geo": map[string]any{"lat": 1.0}}
		incoming := Record{"tags": []any{"b"}, "geo": map[string]any{"lat": 2.0}}
		_ = Merge(existing, incoming)
		if diff := cmp.Diff(Record{"tags": []any{"a"}, "geo": map[string]any{"lat": 1.0}}, existing); diff != "" {
			t.Fatalf("existing modified (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(Record{"tags": []any{"b"}, "geo": map[string]any{"lat": 2.0}}, incoming); diff != "" {
			t.Fatalf("incoming modified (-want +got):\n%s", diff)
		}
	})
}

func TestMergeMatchesSequentialUpserts(t *testing.T) {
	a := Record{"nodeId": "x", "name": "A", "tags": []any{"t1"}}
	b := Record{"nodeId": "x", "desc": "B", "tags": []any{"t2", "t1"}}

	s1 := New()
	if _, err := s1.Update(func(tx *Tx) error {
		tx.Upsert("T", "x", a)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := s1.Update(func(tx *Tx) error {
		tx.Upsert("T", "x", b)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	s2 := New()
	if _, err := s2.Update(func(tx *Tx) error {
		tx.Upsert("T", "x", Merge(a, b))
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(s2.Snapshot(), s1.Snapshot()); diff != "" {
		t.Fatalf("sequential upserts differ from single merge (-want +got):\n%s", diff)
	}
}
