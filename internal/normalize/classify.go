package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hanpama/normcache/internal/store"
)

// Kind is the normalization variant of a result-tree node.
type Kind int

const (
	// KindPassthrough is a transport envelope (mutation payload, query root).
	KindPassthrough Kind = iota
	// KindLeaf is an identified object without nested objects.
	KindLeaf
	// KindArray is a list holding nested objects.
	KindArray
	// KindConnection is a list relationship exposed through nodes or edges.
	KindConnection
	// KindEntity is an identified object with nested objects.
	KindEntity
)

func (k Kind) String() string {
	switch k {
	case KindPassthrough:
		return "passthrough"
	case KindLeaf:
		return "leaf"
	case KindArray:
		return "array"
	case KindConnection:
		return "connection"
	case KindEntity:
		return "entity"
	}
	return "unknown"
}

// node is a classified result-tree node.
type node struct {
	kind     Kind
	obj      map[string]any
	list     []any
	typeName string
	id       string
}

// classify decides the variant of v once; every later step dispatches on
// the returned kind.
func (n *Normalizer) classify(v any, path string) (node, error) {
	if list, ok := v.([]any); ok {
		return node{kind: KindArray, list: list}, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return node{}, malformed(path, fmt.Sprintf("expected object or list, got %T", v))
	}
	typeName, _ := obj[n.opt.TypeKey].(string)
	if typeName == "" {
		return node{}, malformed(path, fmt.Sprintf("missing %q", n.opt.TypeKey))
	}
	nd := node{obj: obj, typeName: typeName}
	switch {
	case n.isPassthrough(typeName):
		nd.kind = KindPassthrough
		return nd, nil
	case strings.HasSuffix(typeName, n.opt.ConnectionSuffix):
		_, hasNodes := obj["nodes"]
		_, hasEdges := obj["edges"]
		if hasNodes && hasEdges {
			return node{}, malformed(path, "connection carries both nodes and edges")
		}
		nd.kind = KindConnection
		return nd, nil
	case n.isLeaf(obj):
		nd.kind = KindLeaf
	default:
		nd.kind = KindEntity
	}
	id, ok := store.ID(obj[n.opt.IDKey])
	if !ok {
		return node{}, malformed(path, fmt.Sprintf("%s without %q", typeName, n.opt.IDKey))
	}
	nd.id = id
	return nd, nil
}

func (n *Normalizer) isPassthrough(typeName string) bool {
	if _, ok := n.passthrough[typeName]; ok {
		return true
	}
	for _, suffix := range n.opt.PassthroughSuffixes {
		if strings.HasSuffix(typeName, suffix) {
			return true
		}
	}
	return false
}

func (n *Normalizer) isLeaf(obj map[string]any) bool {
	for k, v := range obj {
		if k != n.opt.TypeKey && nested(v) {
			return false
		}
	}
	return true
}

// nested reports whether v is an object, or a list that holds objects.
// Lists of scalars are plain attribute values.
func nested(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		return true
	case []any:
		for _, e := range t {
			if nested(e) {
				return true
			}
		}
	}
	return false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
