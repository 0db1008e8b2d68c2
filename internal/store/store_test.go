package store

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func upsertAll(t *testing.T, s *Store, typ string, recs ...Record) []Change {
	t.Helper()
	changes, err := s.Update(func(tx *Tx) error {
		for _, r := range recs {
			id, _ := r.String("nodeId")
			tx.Upsert(typ, id, r)
		}
		return nil
	})
	require.NoError(t, err)
	return changes
}

func TestUpsertSignals(t *testing.T) {
	s := New()

	changes := upsertAll(t, s, "Activity", Record{"nodeId": "a1", "name": "Soccer"})
	require.Equal(t, []Change{{Type: "Activity", ID: "a1"}}, changes)

	changes = upsertAll(t, s, "Activity", Record{"nodeId": "a1", "name": "Soccer"})
	require.Empty(t, changes, "deep-equal write must not signal")

	changes = upsertAll(t, s, "Activity", Record{"nodeId": "a1"})
	require.Empty(t, changes, "subset write that merges to the same record must not signal")

	changes = upsertAll(t, s, "Activity", Record{"nodeId": "a1", "name": "Football"})
	require.Equal(t, []Change{{Type: "Activity", ID: "a1"}}, changes)

	require.NoError(t, s.View(func(v *View) error {
		r, ok := v.Get("Activity", "a1")
		require.True(t, ok)
		require.Equal(t, "Football", r["name"])
		return nil
	}))
}

func TestUpdateSignalsOncePerRecord(t *testing.T) {
	s := New()
	changes := upsertAll(t, s, "Activity",
		Record{"nodeId": "a1", "name": "Soccer"},
		Record{"nodeId": "a1", "desc": "ball"},
		Record{"nodeId": "a2", "name": "Chess"},
	)
	want := []Change{{Type: "Activity", ID: "a1"}, {Type: "Activity", ID: "a2"}}
	if diff := cmp.Diff(want, changes); diff != "" {
		t.Fatalf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateErrorAppliesNothing(t *testing.T) {
	s := New()
	upsertAll(t, s, "Activity", Record{"nodeId": "a1", "name": "Soccer"})

	boom := errors.New("boom")
	changes, err := s.Update(func(tx *Tx) error {
		tx.Upsert("Activity", "a1", Record{"nodeId": "a1", "name": "Chess"})
		tx.Upsert("Event", "e1", Record{"nodeId": "e1"})
		tx.SetRoot("event", "e1")
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Nil(t, changes)

	require.NoError(t, s.View(func(v *View) error {
		r, _ := v.Get("Activity", "a1")
		require.Equal(t, "Soccer", r["name"])
		_, ok := v.IDs("Event")
		require.False(t, ok)
		_, ok = v.Root("event")
		require.False(t, ok)
		return nil
	}))
}

func TestTxSeesOwnWrites(t *testing.T) {
	s := New()
	_, err := s.Update(func(tx *Tx) error {
		tx.Upsert("Activity", "a1", Record{"nodeId": "a1", "parent": "c1"})
		r, ok := tx.Get("Activity", "a1")
		require.True(t, ok)
		require.Equal(t, "c1", r["parent"])
		return nil
	})
	require.NoError(t, err)
}

func TestViewReturnsCopies(t *testing.T) {
	s := New()
	upsertAll(t, s, "Activity", Record{"nodeId": "a1", "tags": []any{"x"}})

	require.NoError(t, s.View(func(v *View) error {
		r, _ := v.Get("Activity", "a1")
		r["tags"].([]any)[0] = "mutated"
		r["name"] = "mutated"
		return nil
	}))
	require.NoError(t, s.View(func(v *View) error {
		r, _ := v.Get("Activity", "a1")
		require.Equal(t, Record{"nodeId": "a1", "tags": []any{"x"}}, r)
		return nil
	}))
}

func TestBucketInsertionOrder(t *testing.T) {
	s := New()
	upsertAll(t, s, "Activity",
		Record{"nodeId": "z"},
		Record{"nodeId": "a"},
		Record{"nodeId": "m"},
	)
	upsertAll(t, s, "Activity", Record{"nodeId": "a", "name": "changed"})

	require.NoError(t, s.View(func(v *View) error {
		ids, ok := v.IDs("Activity")
		require.True(t, ok)
		require.Equal(t, []string{"z", "a", "m"}, ids)
		return nil
	}))
}

func TestResetEmptiesEverything(t *testing.T) {
	s := New()
	_, err := s.Update(func(tx *Tx) error {
		tx.Upsert("Activity", "a1", Record{"nodeId": "a1"})
		tx.Upsert("Category", "c1", Record{"nodeId": "c1"})
		tx.SetRoot("currentCategory", "c1")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())

	s.Reset()

	require.Equal(t, 0, s.Len())
	require.Empty(t, s.Types())
	require.True(t, s.Snapshot().Empty())
}

func TestSnapshotRestore(t *testing.T) {
	s := New()
	_, err := s.Update(func(tx *Tx) error {
		tx.Upsert("Category", "c1", Record{"nodeId": "c1", "name": "Sports"})
		tx.Upsert("Activity", "a2", Record{"nodeId": "a2"})
		tx.Upsert("Activity", "a1", Record{"nodeId": "a1"})
		tx.SetRoot("currentCategory", "c1")
		return nil
	})
	require.NoError(t, err)

	snap := s.Snapshot()
	want := Snapshot{
		Types: []TypeSnapshot{
			{Name: "Category", Entities: []Entity{{ID: "c1", Record: Record{"nodeId": "c1", "name": "Sports"}}}},
			{Name: "Activity", Entities: []Entity{{ID: "a2", Record: Record{"nodeId": "a2"}}, {ID: "a1", Record: Record{"nodeId": "a1"}}}},
		},
		Roots: []RootPointer{{Field: "currentCategory", ID: "c1"}},
	}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	restored := New()
	restored.Restore(snap)
	if diff := cmp.Diff(snap, restored.Snapshot()); diff != "" {
		t.Fatalf("restored snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestConcurrentViewsAndUpdates(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _ = s.Update(func(tx *Tx) error {
				tx.Upsert("Activity", "a1", Record{"nodeId": "a1", "n": float64(i), "pair": float64(i)})
				return nil
			})
		}(i)
		go func() {
			defer wg.Done()
			_ = s.View(func(v *View) error {
				if r, ok := v.Get("Activity", "a1"); ok && r["n"] != r["pair"] {
					t.Errorf("observed partial record %v", r)
				}
				return nil
			})
		}()
	}
	wg.Wait()
}
