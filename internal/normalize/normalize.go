// Package normalize flattens nested query results into the entity store.
//
// Every visited node is classified once into a Kind and dispatched:
//
//   - Passthrough nodes (mutation payloads, the query root) are unwrapped.
//   - Leaf and Entity nodes become records; nested objects of an entity are
//     replaced by the id (or id list) they normalize to.
//   - Array and Connection nodes fan out to their children and return the
//     ordered child ids. Connections are never stored.
//
// Children produced under a parent field receive a back-reference attribute
// named after that field holding the parent id. The reference is a scalar
// for one parent and is promoted to a deduplicated list once a second
// distinct parent is observed, within a pass or across passes.
package normalize

import (
	"errors"
	"fmt"

	"github.com/hanpama/normcache/internal/store"
)

// ErrMalformedNode is returned when a result node lacks the type
// discriminator or identity attribute its kind requires.
var ErrMalformedNode = errors.New("malformed node")

func malformed(path, reason string) error {
	if path == "" {
		path = "<root>"
	}
	return fmt.Errorf("%w at %s: %s", ErrMalformedNode, path, reason)
}

// Options configures attribute naming conventions of the result tree.
type Options struct {
	TypeKey             string
	IDKey               string
	ConnectionSuffix    string
	PassthroughSuffixes []string
	PassthroughTypes    []string
}

type Option func(*Options)

func WithTypeKey(k string) Option          { return func(o *Options) { o.TypeKey = k } }
func WithIDKey(k string) Option            { return func(o *Options) { o.IDKey = k } }
func WithConnectionSuffix(s string) Option { return func(o *Options) { o.ConnectionSuffix = s } }
func WithPassthroughSuffixes(s ...string) Option {
	return func(o *Options) { o.PassthroughSuffixes = s }
}
func WithPassthroughTypes(names ...string) Option {
	return func(o *Options) { o.PassthroughTypes = names }
}

// DefaultOptions returns the conventions of a Relay-style GraphQL server.
func DefaultOptions() Options {
	return Options{
		TypeKey:             "__typename",
		IDKey:               "nodeId",
		ConnectionSuffix:    "Connection",
		PassthroughSuffixes: []string{"Payload"},
		PassthroughTypes:    []string{"query", "Query", "Mutation"},
	}
}

// Normalizer walks result trees and writes records through a store.Tx. It
// holds no state between calls.
type Normalizer struct {
	opt         Options
	passthrough map[string]struct{}
}

func New(opts ...Option) *Normalizer {
	o := DefaultOptions()
	for _, f := range opts {
		f(&o)
	}
	pt := make(map[string]struct{}, len(o.PassthroughTypes))
	for _, name := range o.PassthroughTypes {
		pt[name] = struct{}{}
	}
	return &Normalizer{opt: o, passthrough: pt}
}

// Options returns the effective options.
func (n *Normalizer) Options() Options { return n.opt }

// parentRef is the context a child is normalized under: the parent field
// that produced it and the parent record id.
type parentRef struct {
	field string
	id    string
}

// Normalize flattens one result tree. Each root field holding an object or
// list is normalized; identified objects directly under a root field are
// also recorded as root pointers.
func (n *Normalizer) Normalize(tx *store.Tx, result map[string]any) error {
	for _, key := range sortedKeys(result) {
		if key == n.opt.TypeKey {
			continue
		}
		v := result[key]
		if !nested(v) {
			continue
		}
		if _, err := n.normalize(tx, v, nil, key, key); err != nil {
			return err
		}
	}
	return nil
}

// normalize returns the reference the node collapses to: an id string, a
// []any of ids, or nil for passthrough nodes.
func (n *Normalizer) normalize(tx *store.Tx, v any, parent *parentRef, root, path string) (any, error) {
	nd, err := n.classify(v, path)
	if err != nil {
		return nil, err
	}
	switch nd.kind {
	case KindPassthrough:
		return nil, n.passthroughNode(tx, nd, path)
	case KindLeaf:
		return n.leaf(tx, nd, parent, root), nil
	case KindArray:
		return n.array(tx, nd.list, parent, path)
	case KindConnection:
		return n.connection(tx, nd, parent, path)
	default:
		return n.entity(tx, nd, parent, root, path)
	}
}

func (n *Normalizer) passthroughNode(tx *store.Tx, nd node, path string) error {
	for _, k := range sortedKeys(nd.obj) {
		if k == n.opt.TypeKey || !nested(nd.obj[k]) {
			continue
		}
		if _, err := n.normalize(tx, nd.obj[k], nil, "", path+"."+k); err != nil {
			return err
		}
	}
	return nil
}

func (n *Normalizer) leaf(tx *store.Tx, nd node, parent *parentRef, root string) string {
	rec := store.Record(nd.obj).Clone()
	if parent != nil {
		n.attachBackRef(tx, nd, rec, parent)
	}
	tx.Upsert(nd.typeName, nd.id, rec)
	if root != "" {
		tx.SetRoot(root, nd.id)
	}
	return nd.id
}

func (n *Normalizer) array(tx *store.Tx, list []any, parent *parentRef, path string) ([]any, error) {
	ids := make([]any, 0, len(list))
	for i, e := range list {
		if e == nil {
			continue
		}
		ref, err := n.normalize(tx, e, parent, "", fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		if ref != nil {
			ids = append(ids, ref)
		}
	}
	return ids, nil
}

func (n *Normalizer) connection(tx *store.Tx, nd node, parent *parentRef, path string) ([]any, error) {
	if nodes, ok := nd.obj["nodes"].([]any); ok {
		return n.array(tx, nodes, parent, path+".nodes")
	}
	edges, _ := nd.obj["edges"].([]any)
	children := make([]any, 0, len(edges))
	for i, e := range edges {
		edge, ok := e.(map[string]any)
		if !ok {
			return nil, malformed(fmt.Sprintf("%s.edges[%d]", path, i), "edge is not an object")
		}
		if child := edge["node"]; child != nil {
			children = append(children, child)
		}
	}
	return n.array(tx, children, parent, path+".edges")
}

func (n *Normalizer) entity(tx *store.Tx, nd node, parent *parentRef, root, path string) (string, error) {
	rec := make(store.Record, len(nd.obj))
	var children []string
	for _, k := range sortedKeys(nd.obj) {
		v := nd.obj[k]
		if k != n.opt.TypeKey && nested(v) {
			children = append(children, k)
			continue
		}
		rec[k] = store.CloneValue(v)
	}
	if parent != nil {
		n.attachBackRef(tx, nd, rec, parent)
	}
	for _, k := range children {
		ref, err := n.normalize(tx, nd.obj[k], &parentRef{field: k, id: nd.id}, "", path+"."+k)
		if err != nil {
			return "", err
		}
		if ref != nil {
			rec[k] = ref
		}
	}
	tx.Upsert(nd.typeName, nd.id, rec)
	if root != "" {
		tx.SetRoot(root, nd.id)
	}
	return nd.id, nil
}

// attachBackRef merges the parent id into the child's back-reference field.
// The current value comes from the incoming node or, failing that, from the
// record already stored for the child.
func (n *Normalizer) attachBackRef(tx *store.Tx, nd node, rec store.Record, parent *parentRef) {
	existing, ok := rec[parent.field]
	if !ok {
		if stored, found := tx.Get(nd.typeName, nd.id); found {
			existing = stored[parent.field]
		}
	}
	rec[parent.field] = backRef(existing, parent.id)
}

func backRef(existing any, parentID string) any {
	switch ex := existing.(type) {
	case nil:
		return parentID
	case []any:
		out := make([]any, 0, len(ex)+1)
		found := false
		for _, e := range ex {
			if e == any(parentID) {
				found = true
			}
			out = append(out, e)
		}
		if !found {
			out = append(out, parentID)
		}
		return out
	default:
		if ex == any(parentID) {
			return ex
		}
		return []any{ex, parentID}
	}
}
