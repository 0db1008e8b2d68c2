package language

const typenameField = "__typename"

// AddTypename adds a __typename selection to every field selection set of
// doc, including fragment definitions. Operation root selection sets are
// left alone.
func AddTypename(doc *QueryDocument) {
	for _, op := range doc.Operations {
		addTypenameWithin(op.SelectionSet)
	}
	for _, frag := range doc.Fragments {
		frag.SelectionSet = withTypename(frag.SelectionSet)
		addTypenameWithin(frag.SelectionSet)
	}
}

func addTypenameWithin(set SelectionSet) {
	for _, sel := range set {
		switch s := sel.(type) {
		case *Field:
			if len(s.SelectionSet) > 0 {
				s.SelectionSet = withTypename(s.SelectionSet)
				addTypenameWithin(s.SelectionSet)
			}
		case *InlineFragment:
			addTypenameWithin(s.SelectionSet)
		}
	}
}

func withTypename(set SelectionSet) SelectionSet {
	for _, sel := range set {
		if f, ok := sel.(*Field); ok && f.Name == typenameField && (f.Alias == "" || f.Alias == typenameField) {
			return set
		}
	}
	return append(set, &Field{Name: typenameField, Alias: typenameField})
}
