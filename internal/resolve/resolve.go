// Package resolve answers query fields from the entity store. A Resolver is
// handed to the executor; each call reconstructs one field of the query shape
// from records, materializing connections as ordered RecordSets and applying
// condition/filter arguments to them.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hanpama/normcache/internal/executor"
	"github.com/hanpama/normcache/internal/store"
)

var (
	// ErrFieldNotCached means a requested leaf is absent from its record.
	ErrFieldNotCached = errors.New("field not cached")
	// ErrDataNotCached means a reference or relation could not be resolved.
	ErrDataNotCached = errors.New("data not cached")
	// ErrUnknownField means no type mapping exists for a selection.
	ErrUnknownField = errors.New("unknown field")
)

// Source is the read side of the entity store. *store.View satisfies it.
type Source interface {
	Get(typ, id string) (store.Record, bool)
	IDs(typ string) ([]string, bool)
	Root(field string) (string, bool)
}

// TypeMap maps field names to declared type names.
type TypeMap interface {
	Get(field string) (string, bool)
	GuessChildType(typeName string) string
}

type Options struct {
	TypeKey          string
	ConnectionSuffix string
	// GlobalPrefix marks connection fields that select every record of the
	// target type.
	GlobalPrefix string
	// RootTypeName is reported for the root value.
	RootTypeName string
}

type Option func(*Options)

func WithTypeKey(k string) Option          { return func(o *Options) { o.TypeKey = k } }
func WithConnectionSuffix(s string) Option { return func(o *Options) { o.ConnectionSuffix = s } }
func WithGlobalPrefix(p string) Option     { return func(o *Options) { o.GlobalPrefix = p } }

// Resolver implements executor.Resolver over a Source. It is stateless; a
// new Resolver is cheap to build for every read pass.
type Resolver struct {
	src   Source
	types TypeMap
	opt   Options
}

var _ executor.Resolver = (*Resolver)(nil)

func New(src Source, types TypeMap, opts ...Option) *Resolver {
	o := Options{
		TypeKey:          "__typename",
		ConnectionSuffix: "Connection",
		GlobalPrefix:     "all",
		RootTypeName:     "Query",
	}
	for _, f := range opts {
		f(&o)
	}
	return &Resolver{src: src, types: types, opt: o}
}

// rootValue is the parent of root fields. Direct references under it are
// looked up through the root pointer table.
type rootValue struct{}

// Root returns the initial value to execute a document against.
func (r *Resolver) Root() any { return rootValue{} }

func (r *Resolver) TypeName(value any) string {
	switch v := value.(type) {
	case rootValue:
		return r.opt.RootTypeName
	case store.Record:
		s, _ := v.String(r.opt.TypeKey)
		return s
	case *RecordSet:
		return v.TypeName
	case Edge:
		return v.TypeName
	}
	return ""
}

func (r *Resolver) ResolveField(_ context.Context, source any, field executor.Field) (any, error) {
	if field.Leaf {
		return r.leaf(source, field.Name)
	}

	switch parent := source.(type) {
	case *RecordSet:
		switch field.Name {
		case "nodes":
			return parent.Nodes(), nil
		case "edges":
			return parent.Edges(), nil
		}
	case Edge:
		if field.Name == "node" {
			return parent.Node, nil
		}
	}
	if field.Name == "nodes" {
		return nil, fmt.Errorf("%w: nodes outside a connection", ErrDataNotCached)
	}

	fieldType, ok := r.types.Get(field.Name)
	if !ok || fieldType == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field.Name)
	}
	if strings.HasSuffix(fieldType, r.opt.ConnectionSuffix) {
		return r.connection(source, field, fieldType)
	}
	return r.reference(source, field.Name, fieldType)
}

func (r *Resolver) leaf(source any, name string) (any, error) {
	switch parent := source.(type) {
	case store.Record:
		v, ok := parent[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrFieldNotCached, name)
		}
		return v, nil
	case *RecordSet:
		switch name {
		case "totalCount":
			return len(parent.IDs), nil
		case r.opt.TypeKey:
			return parent.TypeName, nil
		}
	case Edge:
		switch name {
		case "cursor":
			return parent.Cursor, nil
		case r.opt.TypeKey:
			return parent.TypeName, nil
		}
	case rootValue:
		if name == r.opt.TypeKey {
			return r.opt.RootTypeName, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrFieldNotCached, name)
}

func (r *Resolver) connection(source any, field executor.Field, fieldType string) (*RecordSet, error) {
	target := r.types.GuessChildType(fieldType)
	set := &RecordSet{
		TypeName: fieldType,
		EdgeType: strings.TrimSuffix(fieldType, r.opt.ConnectionSuffix) + "Edge",
		NodeType: target,
	}

	var ids []string
	if r.opt.GlobalPrefix != "" && strings.HasPrefix(field.Name, r.opt.GlobalPrefix) {
		ids, _ = r.src.IDs(target)
	} else if rec, ok := source.(store.Record); ok {
		ids = idSet(rec[field.Name])
	}

	for _, id := range ids {
		rec, ok := r.src.Get(target, id)
		if !ok {
			continue
		}
		set.add(id, rec)
	}
	if field.Args != nil {
		set.filter(field.Args)
	}
	return set, nil
}

// reference resolves a direct reference. The parent attribute named after
// the field type is tried first, then the one named after the field.
func (r *Resolver) reference(source any, name, fieldType string) (any, error) {
	if _, ok := source.(rootValue); ok {
		if id, ok := r.src.Root(name); ok {
			if rec, ok := r.src.Get(fieldType, id); ok {
				return rec, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrDataNotCached, name)
	}

	rec, _ := source.(store.Record)
	for _, key := range []string{fieldType, name} {
		if v, ok := r.lookup(fieldType, rec[key]); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDataNotCached, name)
}

// lookup fetches the record for an id attribute. An id list resolves to the
// list of records and fails when any of them is missing.
func (r *Resolver) lookup(typ string, ref any) (any, bool) {
	if list, ok := ref.([]any); ok {
		out := make([]any, 0, len(list))
		for _, e := range list {
			id, ok := store.ID(e)
			if !ok {
				return nil, false
			}
			rec, ok := r.src.Get(typ, id)
			if !ok {
				return nil, false
			}
			out = append(out, rec)
		}
		return out, true
	}
	id, ok := store.ID(ref)
	if !ok {
		return nil, false
	}
	return r.src.Get(typ, id)
}

// idSet reads the ids a connection attribute refers to: the keys of a map,
// the elements of a list, or a single id. Numeric ids address the record
// stored under their decimal form.
func idSet(v any) []string {
	switch t := v.(type) {
	case []any:
		ids := make([]string, 0, len(t))
		for _, e := range t {
			if id, ok := store.ID(e); ok {
				ids = append(ids, id)
			}
		}
		return ids
	case map[string]any:
		ids := make([]string, 0, len(t))
		for k := range t {
			ids = append(ids, k)
		}
		sort.Strings(ids)
		return ids
	}
	if id, ok := store.ID(v); ok {
		return []string{id}
	}
	return nil
}
