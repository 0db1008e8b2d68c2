// Package store holds the flat entity table of the normalized cache: records
// addressed by (type name, id), grouped into per-type buckets that keep
// insertion order, plus the root pointer table used for root-level leaf
// objects.
//
// The store is a single-writer/multiple-reader resource. Update runs one
// normalization pass under an exclusive lock and applies its writes only
// when the pass succeeds; View gives a resolution pass a consistent read of
// the store that never observes a partially applied Update.
package store

import (
	"sort"
	"sync"
)

// Change identifies one record that was inserted or modified by an Update.
type Change struct {
	Type string
	ID   string
}

type bucket struct {
	ids     []string
	records map[string]Record
}

func newBucket() *bucket { return &bucket{records: make(map[string]Record)} }

// Store is the entity table. The zero value is not usable; call New.
type Store struct {
	mu      sync.RWMutex
	types   []string
	buckets map[string]*bucket
	roots   map[string]string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		buckets: make(map[string]*bucket),
		roots:   make(map[string]string),
	}
}

// Update runs fn with exclusive access to the store. Writes made through tx
// are staged and applied only if fn returns nil. The returned changes list
// every record that was inserted or actually modified, once per record, in
// first-write order.
func (s *Store) Update(fn func(tx *Tx) error) ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := newTx(s)
	if err := fn(tx); err != nil {
		return nil, err
	}
	tx.commit()
	return tx.changes, nil
}

// View runs fn with shared read access to the store.
func (s *Store) View(fn func(v *View) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&View{s: s})
}

// Reset empties every bucket and the root pointer table.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types = nil
	s.buckets = make(map[string]*bucket)
	s.roots = make(map[string]string)
}

// Len returns the total number of records across all buckets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, b := range s.buckets {
		n += len(b.ids)
	}
	return n
}

// Types returns the bucket names in creation order.
func (s *Store) Types() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.types...)
}

// lookup returns the live record; callers must hold the lock and must not
// modify or leak it.
func (s *Store) lookup(typ, id string) (Record, bool) {
	b := s.buckets[typ]
	if b == nil {
		return nil, false
	}
	r, ok := b.records[id]
	return r, ok
}

func (s *Store) put(typ, id string, r Record) {
	b := s.buckets[typ]
	if b == nil {
		b = newBucket()
		s.buckets[typ] = b
		s.types = append(s.types, typ)
	}
	if _, ok := b.records[id]; !ok {
		b.ids = append(b.ids, id)
	}
	b.records[id] = r
}

type key struct{ typ, id string }

// Tx is the write handle passed to Update.
type Tx struct {
	s       *Store
	writes  map[key]Record
	order   []key
	roots   map[string]string
	changed map[key]struct{}
	changes []Change
}

func newTx(s *Store) *Tx {
	return &Tx{
		s:       s,
		writes:  make(map[key]Record),
		roots:   make(map[string]string),
		changed: make(map[key]struct{}),
	}
}

func (tx *Tx) current(k key) (Record, bool) {
	if r, ok := tx.writes[k]; ok {
		return r, true
	}
	return tx.s.lookup(k.typ, k.id)
}

// Get returns a copy of the record as seen by this transaction, including
// its own staged writes.
func (tx *Tx) Get(typ, id string) (Record, bool) {
	r, ok := tx.current(key{typ, id})
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// Upsert writes rec at (typ, id) following the merge rules: insert when
// absent, no-op when deep-equal to the current record, deep-merge otherwise.
// It reports whether the stored record changed.
func (tx *Tx) Upsert(typ, id string, rec Record) bool {
	k := key{typ, id}
	existing, ok := tx.current(k)
	var next Record
	switch {
	case !ok:
		next = rec.Clone()
	case Equal(existing, rec):
		return false
	default:
		next = Merge(existing, rec)
		if Equal(existing, next) {
			return false
		}
	}
	if _, staged := tx.writes[k]; !staged {
		tx.order = append(tx.order, k)
	}
	tx.writes[k] = next
	if _, seen := tx.changed[k]; !seen {
		tx.changed[k] = struct{}{}
		tx.changes = append(tx.changes, Change{Type: typ, ID: id})
	}
	return true
}

// SetRoot points the root field at the record id.
func (tx *Tx) SetRoot(field, id string) {
	tx.roots[field] = id
}

func (tx *Tx) commit() {
	for _, k := range tx.order {
		tx.s.put(k.typ, k.id, tx.writes[k])
	}
	for f, id := range tx.roots {
		tx.s.roots[f] = id
	}
}

// View is the read handle passed to View. Every record it returns is a copy.
type View struct {
	s *Store
}

// Get returns a copy of the record at (typ, id).
func (v *View) Get(typ, id string) (Record, bool) {
	r, ok := v.s.lookup(typ, id)
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// IDs returns the ids of the typ bucket in insertion order. The second
// result is false when the bucket does not exist.
func (v *View) IDs(typ string) ([]string, bool) {
	b := v.s.buckets[typ]
	if b == nil {
		return nil, false
	}
	return append([]string(nil), b.ids...), true
}

// Root returns the record id stored for a root-level field.
func (v *View) Root(field string) (string, bool) {
	id, ok := v.s.roots[field]
	return id, ok
}

// Types returns the bucket names in creation order.
func (v *View) Types() []string {
	return append([]string(nil), v.s.types...)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
