// Package executor implements a schema-less, depth-first GraphQL executor
// that drives an injected Resolver at every selection of a query document.
//
// # Overview
//
// The executor knows nothing about the types behind a document. For each
// field in a selection set it:
//   - Collects fields by response name, honoring @skip/@include, inline
//     fragments and fragment spreads. A fragment type condition applies when
//     it equals Resolver.TypeName of the current object, or when that name is
//     unknown.
//   - Converts the AST arguments to Go values, substituting variables.
//   - Calls Resolver.ResolveField with the parent value. A field without a
//     sub-selection is a leaf; its resolved value is written as is.
//   - Completes non-leaf values: null stays null, lists complete element-wise
//     with index-aware paths, anything else is treated as an object and its
//     sub-selection executes against it.
//
// # Preparation
//
// Before execution, the executor chooses the operation (by name or by
// uniqueness when unnamed) and coerces the provided variables against the
// operation variable definitions. Only query operations are executed.
//
// # Errors
//
// Execution is all-or-nothing. The first error returned by the Resolver, or
// a cancelled context, aborts the walk; the result then carries no data and a
// single located error whose Err field keeps the original cause for
// errors.Is/errors.As.
package executor
