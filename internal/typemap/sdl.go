package typemap

import (
	"strings"

	language "github.com/hanpama/normcache/internal/language"
)

// FromSDL builds a Map from schema definition language. Fields of object and
// interface types, including extensions, are mapped to their named type;
// root operation types are visited first so their fields win name clashes.
// Connection types map to the type of their nodes field, or of the node field
// of their edge type.
func FromSDL(name, sdl string) (*Map, error) {
	doc, err := language.ParseSchema(name, sdl)
	if err != nil {
		return nil, err
	}

	defs := make(map[string]*language.Definition)
	var ordered []*language.Definition
	for _, list := range []language.DefinitionList{doc.Definitions, doc.Extensions} {
		for _, def := range list {
			if def.Kind != language.Object && def.Kind != language.Interface {
				continue
			}
			if _, ok := defs[def.Name]; !ok {
				defs[def.Name] = def
			}
			ordered = append(ordered, def)
		}
	}

	m := New(nil, nil)
	for _, root := range []string{"Query", "Mutation"} {
		for _, def := range ordered {
			if def.Name == root {
				addFields(m, def)
			}
		}
	}
	for _, def := range ordered {
		addFields(m, def)
	}

	for _, def := range ordered {
		if !strings.HasSuffix(def.Name, connectionSuffix) {
			continue
		}
		if child := childType(def, defs); child != "" {
			if _, ok := m.connections[def.Name]; !ok {
				m.connections[def.Name] = child
			}
		}
	}
	return m, nil
}

func addFields(m *Map, def *language.Definition) {
	for _, f := range def.Fields {
		if strings.HasPrefix(f.Name, "__") || f.Type == nil {
			continue
		}
		m.set(f.Name, f.Type.Name())
	}
}

func childType(conn *language.Definition, defs map[string]*language.Definition) string {
	if f := conn.Fields.ForName("nodes"); f != nil && f.Type != nil {
		return f.Type.Name()
	}
	f := conn.Fields.ForName("edges")
	if f == nil || f.Type == nil {
		return ""
	}
	edge := defs[f.Type.Name()]
	if edge == nil {
		return ""
	}
	if node := edge.Fields.ForName("node"); node != nil && node.Type != nil {
		return node.Type.Name()
	}
	return ""
}
