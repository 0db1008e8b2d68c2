package executor

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	language "github.com/hanpama/normcache/internal/language"
)

type Path []PathElement

type PathElement any

// executionState holds the state during query execution
type executionState struct {
	resolver       Resolver
	document       *language.QueryDocument
	variableValues map[string]any
	context        context.Context
}

// fieldError aborts execution at a response path.
type fieldError struct {
	path Path
	err  error
}

func (e *fieldError) Error() string { return e.err.Error() }
func (e *fieldError) Unwrap() error { return e.err }

type Executor struct {
	resolver Resolver
}

func NewExecutor(resolver Resolver) *Executor {
	return &Executor{resolver: resolver}
}

func (e *Executor) ExecuteRequest(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	initialValue any,
) *ExecutionResult {
	operation := getOperation(document, operationName)
	if operation == nil {
		return &ExecutionResult{Errors: []GraphQLError{{Message: "operation not found"}}}
	}
	if operation.Operation != language.Query {
		return &ExecutionResult{Errors: []GraphQLError{{Message: fmt.Sprintf("unsupported operation type: %s", operation.Operation)}}}
	}

	coercedVariableValues, err := coerceVariableValues(operation, variableValues)
	if err != nil {
		return &ExecutionResult{Errors: []GraphQLError{{Message: err.Error(), Err: err}}}
	}

	state := &executionState{
		resolver:       e.resolver,
		document:       document,
		variableValues: coercedVariableValues,
		context:        ctx,
	}

	data, err := executeSelectionSet(state, operation.SelectionSet, initialValue, Path{})
	if err != nil {
		gqlErr := GraphQLError{Message: err.Error(), Err: err}
		var fe *fieldError
		if errors.As(err, &fe) {
			gqlErr.Path = fe.path
			gqlErr.Err = fe.err
		}
		return &ExecutionResult{Errors: []GraphQLError{gqlErr}}
	}
	return &ExecutionResult{Data: data}
}

// executeSelectionSet executes a selection set against objectValue
func executeSelectionSet(state *executionState, selectionSet language.SelectionSet, objectValue any, path Path) (map[string]any, error) {
	typeName := state.resolver.TypeName(objectValue)
	groups := collectFields(state, typeName, selectionSet)
	resultMap := make(map[string]any, len(groups))

	for _, group := range groups {
		responseName := group.Key
		fieldPath := appendPath(path, responseName)

		fieldResult, err := executeFieldGroup(state, objectValue, group.Fields, fieldPath)
		if err != nil {
			return nil, err
		}
		if isNullish(fieldResult) {
			resultMap[responseName] = nil
		} else {
			resultMap[responseName] = fieldResult
		}
	}

	return resultMap, nil
}

func executeFieldGroup(state *executionState, objectValue any, fields []*language.Field, path Path) (any, error) {
	if err := state.context.Err(); err != nil {
		return nil, &fieldError{path: path, err: err}
	}
	field := fields[0]
	sub := mergeSelectionSets(fields)

	info := Field{
		Name: field.Name,
		Args: argumentValues(field.Arguments, state.variableValues),
		Leaf: len(sub) == 0,
		Path: path,
	}
	if field.Alias != field.Name {
		info.Alias = field.Alias
	}

	resolved, err := state.resolver.ResolveField(state.context, objectValue, info)
	if err != nil {
		return nil, &fieldError{path: path, err: err}
	}
	if info.Leaf {
		return resolved, nil
	}
	return completeValue(state, sub, resolved, path)
}

// completeValue completes a non-leaf value
func completeValue(state *executionState, sub language.SelectionSet, result any, path Path) (any, error) {
	if isNullish(result) {
		return nil, nil
	}
	if items, ok := listItems(result); ok {
		completed := make([]any, len(items))
		for i, item := range items {
			v, err := completeValue(state, sub, item, appendPath(path, i))
			if err != nil {
				return nil, err
			}
			completed[i] = v
		}
		return completed, nil
	}
	return executeSelectionSet(state, sub, result, path)
}

func listItems(result any) ([]any, bool) {
	if direct, ok := result.([]any); ok {
		return direct, true
	}
	rv := reflect.ValueOf(result)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func pathToString(path Path) string {
	result := ""
	for i, elem := range path {
		switch v := elem.(type) {
		case string:
			if i > 0 {
				result += "."
			}
			result += v
		case int:
			result += fmt.Sprintf("[%d]", v)
		}
	}
	return result
}

func (p Path) String() string { return pathToString(p) }

func appendPath(path Path, elem PathElement) Path {
	newPath := make(Path, len(path)+1)
	copy(newPath, path)
	newPath[len(path)] = elem
	return newPath
}

// getOperation retrieves the operation from the document
func getOperation(document *language.QueryDocument, operationName string) *language.OperationDefinition {
	if operationName == "" && len(document.Operations) == 1 {
		for _, op := range document.Operations {
			return op
		}
	}
	for _, op := range document.Operations {
		if op.Name == operationName {
			return op
		}
	}
	return nil
}

// mergeSelectionSets merges selection sets from multiple fields
func mergeSelectionSets(fields []*language.Field) language.SelectionSet {
	var merged language.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}

// isNullish returns true for nil interfaces and typed nils (map, slice, ptr, interface)
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
