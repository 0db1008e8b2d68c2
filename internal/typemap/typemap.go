// Package typemap provides the field name to type name table the resolver
// consults, built from SDL, an introspection result or a YAML table.
package typemap

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const connectionSuffix = "Connection"

// Map is a read-only lookup table once built. Field names map to the named
// type they declare; connection types map to the type of their nodes.
type Map struct {
	fields      map[string]string
	connections map[string]string
}

// New builds a Map from literal tables. Either may be nil.
func New(fields, connections map[string]string) *Map {
	m := &Map{
		fields:      make(map[string]string, len(fields)),
		connections: make(map[string]string, len(connections)),
	}
	for k, v := range fields {
		m.fields[k] = v
	}
	for k, v := range connections {
		m.connections[k] = v
	}
	return m
}

// Get returns the declared type name of a field.
func (m *Map) Get(field string) (string, bool) {
	t, ok := m.fields[field]
	return t, ok
}

// GuessChildType returns the node type of a connection type. Without a known
// mapping the connection suffix is stripped and the remainder singularized.
func (m *Map) GuessChildType(typeName string) string {
	if child, ok := m.connections[typeName]; ok {
		return child
	}
	return singular(strings.TrimSuffix(typeName, connectionSuffix))
}

// Len returns the number of mapped fields.
func (m *Map) Len() int { return len(m.fields) }

// Fields returns the mapped field names in sorted order.
func (m *Map) Fields() []string {
	out := make([]string, 0, len(m.fields))
	for k := range m.fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// set records the first mapping seen for a field.
func (m *Map) set(field, typeName string) {
	if field == "" || typeName == "" {
		return
	}
	if _, ok := m.fields[field]; !ok {
		m.fields[field] = typeName
	}
}

func singular(s string) string {
	switch {
	case strings.HasSuffix(s, "ies"):
		return strings.TrimSuffix(s, "ies") + "y"
	case strings.HasSuffix(s, "sses"), strings.HasSuffix(s, "xes"), strings.HasSuffix(s, "ches"):
		return strings.TrimSuffix(s, "es")
	case strings.HasSuffix(s, "ss"):
		return s
	case strings.HasSuffix(s, "s"):
		return strings.TrimSuffix(s, "s")
	}
	return s
}

type yamlTable struct {
	Fields      map[string]string `yaml:"fields"`
	Connections map[string]string `yaml:"connections"`
}

// FromYAML reads a table of the form
//
//	fields:
//	  category: Category
//	connections:
//	  ActivitiesConnection: Activity
func FromYAML(data []byte) (*Map, error) {
	var t yamlTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("typemap: %w", err)
	}
	return New(t.Fields, t.Connections), nil
}

// LoadFile reads a type map, choosing the format by file extension:
// .graphql/.gql for SDL, .json for an introspection result and .yaml/.yml
// for a literal table.
func LoadFile(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".graphql", ".graphqls", ".gql":
		return FromSDL(filepath.Base(path), string(data))
	case ".json":
		return FromIntrospection(data)
	case ".yaml", ".yml":
		return FromYAML(data)
	}
	return nil, fmt.Errorf("typemap: unsupported file type %q", filepath.Ext(path))
}
