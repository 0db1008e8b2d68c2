package language

import "github.com/vektah/gqlparser/v2/ast"

// Aliases for the parts of the gqlparser AST that the executor, the
// type map builder and the typename injector walk.
type (
	QueryDocument       = ast.QueryDocument
	SchemaDocument      = ast.SchemaDocument
	OperationDefinition = ast.OperationDefinition
	SelectionSet        = ast.SelectionSet
	Field               = ast.Field
	InlineFragment      = ast.InlineFragment
	FragmentDefinition  = ast.FragmentDefinition
	FragmentSpread      = ast.FragmentSpread
	Directive           = ast.Directive
	DirectiveList       = ast.DirectiveList
	ArgumentList        = ast.ArgumentList
	Value               = ast.Value
	Type                = ast.Type
	Definition          = ast.Definition
	DefinitionList      = ast.DefinitionList
)

type Operation = ast.Operation

// Query is the only operation the cache executes.
const Query Operation = ast.Query

// Definition kinds that carry fields.
const (
	Object    = ast.Object
	Interface = ast.Interface
)

// Value kinds read when coercing arguments and variables.
const (
	Variable     = ast.Variable
	IntValue     = ast.IntValue
	FloatValue   = ast.FloatValue
	StringValue  = ast.StringValue
	BlockValue   = ast.BlockValue
	BooleanValue = ast.BooleanValue
	NullValue    = ast.NullValue
	EnumValue    = ast.EnumValue
	ListValue    = ast.ListValue
	ObjectValue  = ast.ObjectValue
)
