package typemap

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// IntrospectionQuery selects what FromIntrospection needs from a server.
const IntrospectionQuery = `query TypeMapIntrospection {
  __schema {
    queryType { name }
    types {
      kind
      name
      fields(includeDeprecated: true) {
        name
        type { ...TypeRef }
      }
    }
  }
}

fragment TypeRef on __Type {
  kind
  name
  ofType { kind name ofType { kind name ofType { kind name ofType { kind name } } } }
}`

type introspectionTypeRef struct {
	Kind   string                `json:"kind"`
	Name   *string               `json:"name"`
	OfType *introspectionTypeRef `json:"ofType"`
}

func (t *introspectionTypeRef) named() string {
	for cur := t; cur != nil; cur = cur.OfType {
		if cur.Name != nil {
			return *cur.Name
		}
	}
	return ""
}

type introspectionField struct {
	Name string                `json:"name"`
	Type *introspectionTypeRef `json:"type"`
}

type introspectionType struct {
	Kind   string               `json:"kind"`
	Name   string               `json:"name"`
	Fields []introspectionField `json:"fields"`
}

func (t introspectionType) field(name string) *introspectionField {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i]
		}
	}
	return nil
}

type introspectionSchema struct {
	QueryType *struct {
		Name string `json:"name"`
	} `json:"queryType"`
	Types []introspectionType `json:"types"`
}

// FromIntrospection builds a Map from an introspection response. Both the
// full response ({"data": {"__schema": ...}}) and the bare data object are
// accepted.
func FromIntrospection(data []byte) (*Map, error) {
	var envelope struct {
		Data *struct {
			Schema *introspectionSchema `json:"__schema"`
		} `json:"data"`
		Schema *introspectionSchema `json:"__schema"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("typemap: %w", err)
	}
	schema := envelope.Schema
	if envelope.Data != nil && envelope.Data.Schema != nil {
		schema = envelope.Data.Schema
	}
	if schema == nil {
		return nil, errors.New("typemap: introspection result has no __schema")
	}

	byName := make(map[string]introspectionType, len(schema.Types))
	var objects []introspectionType
	for _, t := range schema.Types {
		if strings.HasPrefix(t.Name, "__") || (t.Kind != "OBJECT" && t.Kind != "INTERFACE") {
			continue
		}
		byName[t.Name] = t
		objects = append(objects, t)
	}

	m := New(nil, nil)
	rootName := "Query"
	if schema.QueryType != nil && schema.QueryType.Name != "" {
		rootName = schema.QueryType.Name
	}
	if root, ok := byName[rootName]; ok {
		addIntrospectionFields(m, root)
	}
	for _, t := range objects {
		addIntrospectionFields(m, t)
	}

	for _, t := range objects {
		if !strings.HasSuffix(t.Name, connectionSuffix) {
			continue
		}
		if f := t.field("nodes"); f != nil && f.Type != nil {
			m.connections[t.Name] = f.Type.named()
			continue
		}
		f := t.field("edges")
		if f == nil || f.Type == nil {
			continue
		}
		if node := byName[f.Type.named()].field("node"); node != nil && node.Type != nil {
			m.connections[t.Name] = node.Type.named()
		}
	}
	return m, nil
}

func addIntrospectionFields(m *Map, t introspectionType) {
	for _, f := range t.Fields {
		if strings.HasPrefix(f.Name, "__") || f.Type == nil {
			continue
		}
		m.set(f.Name, f.Type.named())
	}
}
