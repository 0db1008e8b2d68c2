package executor

import "context"

// Field is one collected selection handed to the Resolver.
type Field struct {
	// Name is the field name as written in the document.
	Name string
	// Alias is the response name when it differs from Name.
	Alias string
	// Args holds the field arguments as Go values, nil when the selection has
	// none.
	Args map[string]any
	// Leaf reports that the selection has no sub-selection set.
	Leaf bool
	// Path is the response path of the field.
	Path Path
}

// Resolver supplies field values during execution.
//
//   - ResolveField is called once per collected field. source is the
//     initial value for root fields and the completed parent object below.
//     Returning an error aborts the whole execution.
//   - TypeName returns the runtime type name of an object value, used to
//     match fragment type conditions. An empty string matches every
//     condition.
//
// Implementations must not mutate source or args values.
type Resolver interface {
	ResolveField(ctx context.Context, source any, field Field) (any, error)
	TypeName(value any) string
}

// ResolverFunc adapts a function to Resolver. Its TypeName reads the
// "__typename" attribute of map values.
type ResolverFunc func(ctx context.Context, source any, field Field) (any, error)

func (f ResolverFunc) ResolveField(ctx context.Context, source any, field Field) (any, error) {
	return f(ctx, source, field)
}

func (f ResolverFunc) TypeName(value any) string {
	if m, ok := value.(map[string]any); ok {
		if name, ok := m["__typename"].(string); ok {
			return name
		}
	}
	return ""
}
