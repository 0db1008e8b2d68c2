package executor

import (
	language "github.com/hanpama/normcache/internal/language"
)

// fieldGroup is every field selected under one response key, in document
// order. The resolver sees the first; the others contribute sub-selections.
type fieldGroup struct {
	Key    string
	Fields []*language.Field
}

// collector merges a selection set into response-key groups for one object.
type collector struct {
	state    *executionState
	typeName string
	groups   []fieldGroup
	byKey    map[string]int
	visited  map[string]bool
}

// collectFields flattens fragments and drops skipped selections. typeName is
// what the resolver reported for the object; an empty name matches every
// type condition, since records do not always carry one.
func collectFields(state *executionState, typeName string, set language.SelectionSet) []fieldGroup {
	c := &collector{
		state:    state,
		typeName: typeName,
		byKey:    map[string]int{},
		visited:  map[string]bool{},
	}
	c.collect(set)
	return c.groups
}

func (c *collector) collect(set language.SelectionSet) {
	for _, sel := range set {
		switch sel := sel.(type) {
		case *language.Field:
			if c.included(sel.Directives) {
				c.add(sel)
			}
		case *language.InlineFragment:
			if c.included(sel.Directives) && c.matches(sel.TypeCondition) {
				c.collect(sel.SelectionSet)
			}
		case *language.FragmentSpread:
			if !c.included(sel.Directives) || c.visited[sel.Name] {
				continue
			}
			c.visited[sel.Name] = true
			def := c.state.document.Fragments.ForName(sel.Name)
			if def == nil || !c.matches(def.TypeCondition) || !c.included(def.Directives) {
				continue
			}
			c.collect(def.SelectionSet)
		}
	}
}

func (c *collector) add(f *language.Field) {
	key := f.Alias
	if key == "" {
		key = f.Name
	}
	if i, ok := c.byKey[key]; ok {
		c.groups[i].Fields = append(c.groups[i].Fields, f)
		return
	}
	c.byKey[key] = len(c.groups)
	c.groups = append(c.groups, fieldGroup{Key: key, Fields: []*language.Field{f}})
}

func (c *collector) matches(condition string) bool {
	return condition == "" || c.typeName == "" || condition == c.typeName
}

// included evaluates @skip and @include. A condition that is not a boolean
// leaves the selection in.
func (c *collector) included(directives language.DirectiveList) bool {
	if d := directives.ForName("skip"); d != nil && c.condition(d) == true {
		return false
	}
	if d := directives.ForName("include"); d != nil && c.condition(d) == false {
		return false
	}
	return true
}

func (c *collector) condition(d *language.Directive) any {
	arg := d.Arguments.ForName("if")
	if arg == nil {
		return nil
	}
	return valueFromASTWithVars(arg.Value, c.state.variableValues)
}
