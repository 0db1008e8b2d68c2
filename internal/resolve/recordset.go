package resolve

import "github.com/hanpama/normcache/internal/store"

// RecordSet is a materialized connection: an id to record mapping that
// iterates in the order the ids were read.
type RecordSet struct {
	TypeName string
	EdgeType string
	NodeType string
	IDs      []string
	Records  map[string]store.Record
}

func (s *RecordSet) add(id string, rec store.Record) {
	if s.Records == nil {
		s.Records = make(map[string]store.Record)
	}
	if _, ok := s.Records[id]; ok {
		return
	}
	s.IDs = append(s.IDs, id)
	s.Records[id] = rec
}

// Len returns the number of records in the set.
func (s *RecordSet) Len() int { return len(s.IDs) }

// Nodes returns the records in order.
func (s *RecordSet) Nodes() []any {
	out := make([]any, 0, len(s.IDs))
	for _, id := range s.IDs {
		out = append(out, s.Records[id])
	}
	return out
}

// Edge wraps one record of a RecordSet for edges { cursor node } selections.
type Edge struct {
	TypeName string
	Cursor   string
	Node     store.Record
}

// Edges returns the records wrapped as edges, using the id as cursor.
func (s *RecordSet) Edges() []any {
	out := make([]any, 0, len(s.IDs))
	for _, id := range s.IDs {
		out = append(out, Edge{TypeName: s.EdgeType, Cursor: id, Node: s.Records[id]})
	}
	return out
}

// keep narrows the set to records for which pred holds, preserving order.
func (s *RecordSet) keep(pred func(store.Record) bool) {
	ids := s.IDs[:0]
	for _, id := range s.IDs {
		if pred(s.Records[id]) {
			ids = append(ids, id)
			continue
		}
		delete(s.Records, id)
	}
	s.IDs = ids
}
