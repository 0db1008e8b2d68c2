package store

// Snapshot is the serializable form of the whole store. Bucket and entity
// order follow insertion order so a restored store iterates identically.
type Snapshot struct {
	Types []TypeSnapshot `json:"types"`
	Roots []RootPointer  `json:"roots,omitempty"`
}

// TypeSnapshot is one bucket.
type TypeSnapshot struct {
	Name     string   `json:"name"`
	Entities []Entity `json:"entities"`
}

// Entity is one record with its id.
type Entity struct {
	ID     string `json:"id"`
	Record Record `json:"record"`
}

// RootPointer maps a root query field to the id of the record it resolved to.
type RootPointer struct {
	Field string `json:"field"`
	ID    string `json:"id"`
}

// Empty reports whether the snapshot holds no buckets and no root pointers.
func (s Snapshot) Empty() bool { return len(s.Types) == 0 && len(s.Roots) == 0 }

// Snapshot returns a deep copy of the current contents.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{Types: make([]TypeSnapshot, 0, len(s.types))}
	for _, typ := range s.types {
		b := s.buckets[typ]
		ts := TypeSnapshot{Name: typ, Entities: make([]Entity, 0, len(b.ids))}
		for _, id := range b.ids {
			ts.Entities = append(ts.Entities, Entity{ID: id, Record: b.records[id].Clone()})
		}
		snap.Types = append(snap.Types, ts)
	}
	for _, f := range sortedKeys(s.roots) {
		snap.Roots = append(snap.Roots, RootPointer{Field: f, ID: s.roots[f]})
	}
	return snap
}

// Restore replaces the entire contents of the store with snap.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types = nil
	s.buckets = make(map[string]*bucket)
	s.roots = make(map[string]string)
	for _, ts := range snap.Types {
		if _, ok := s.buckets[ts.Name]; !ok {
			s.buckets[ts.Name] = newBucket()
			s.types = append(s.types, ts.Name)
		}
		for _, e := range ts.Entities {
			s.put(ts.Name, e.ID, e.Record.Clone())
		}
	}
	for _, rp := range snap.Roots {
		s.roots[rp.Field] = rp.ID
	}
}
