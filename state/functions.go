package state

import "github.com/ionshell/flowexec/ast"

// FunctionTable stores declared functions by name. Redeclaring a name
// silently overwrites the previous definition, matching ion's behavior.
type FunctionTable struct {
	fns map[string]ast.Function
}

// NewFunctionTable returns an empty table.
func NewFunctionTable() *FunctionTable {
	return &FunctionTable{fns: map[string]ast.Function{}}
}

// InsertFunction implements flow.FunctionRegistry.
func (t *FunctionTable) InsertFunction(fn ast.Function) {
	t.fns[fn.Name] = fn
}

// Lookup returns the function named name, if declared.
func (t *FunctionTable) Lookup(name string) (ast.Function, bool) {
	fn, ok := t.fns[name]
	return fn, ok
}

// LookupFunction implements flow.FunctionRegistry's invocation-resolution
// half; it is Lookup under the name the flow package's interface expects.
func (t *FunctionTable) LookupFunction(name string) (ast.Function, bool) {
	return t.Lookup(name)
}
