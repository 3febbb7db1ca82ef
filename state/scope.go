// Package state holds the mutable shell state that survives across parsed
// lines: variable bindings and declared functions.
package state

import (
	"fmt"
	"strings"

	"github.com/ionshell/flowexec/flow"
)

// Scope is a chain of variable bindings. A child scope (one pushed for a
// function call) sees its parent's bindings, exported or not, but writes
// only its own.
type Scope struct {
	parent   *Scope
	vars     map[string]string
	exported map[string]bool
}

// NewScope returns a root scope with no parent.
func NewScope() *Scope {
	return &Scope{vars: map[string]string{}, exported: map[string]bool{}}
}

// Push returns a new child scope for a function call's local bindings.
func (s *Scope) Push() *Scope {
	return &Scope{parent: s, vars: map[string]string{}, exported: map[string]bool{}}
}

// PushScope implements flow.ScopePusher: it returns a child scope as a
// flow.VariableStore, so a function call's positional arguments are bound
// locally and discarded once the call returns.
func (s *Scope) PushScope() flow.VariableStore {
	return s.Push()
}

// Get looks up name in this scope, then its ancestors.
func (s *Scope) Get(name string) (string, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return "", false
}

// IsExported reports whether the innermost binding of name visible from
// this scope was made with Export; a plain binding in a nearer scope
// shadows an exported one further up the chain.
func (s *Scope) IsExported(name string) bool {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.exported[name] {
			return true
		}
		if _, ok := cur.vars[name]; ok {
			return false
		}
	}
	return false
}

// Set assigns name in this scope, the way ExecuteFor binds a loop variable.
func (s *Scope) Set(name, value string) {
	s.vars[name] = value
}

// All returns every binding visible from this scope, innermost wins.
func (s *Scope) All() map[string]string {
	out := map[string]string{}
	chain := []*Scope{}
	for cur := s; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].vars {
			out[k] = v
		}
	}
	return out
}

// SetVar implements flow.VariableStore; it binds name to value directly,
// for for-loop variable binding.
func (s *Scope) SetVar(name, value string) {
	s.Set(name, value)
}

// Local implements flow.VariableStore's `let name = value` form and
// returns a shell exit status: 0 on success, nonzero on a malformed
// expression.
func (s *Scope) Local(expression string) int {
	name, value, ok := splitAssignment(expression)
	if !ok {
		return 1
	}
	s.Set(name, value)
	return 0
}

// Export implements flow.VariableStore's `export name = value` form,
// marking the binding visible to spawned processes.
func (s *Scope) Export(expression string) int {
	name, value, ok := splitAssignment(expression)
	if !ok {
		return 1
	}
	s.Set(name, value)
	s.exported[name] = true
	return 0
}

func splitAssignment(expression string) (name, value string, ok bool) {
	idx := strings.IndexByte(expression, '=')
	if idx < 0 {
		return "", "", false
	}
	name = strings.TrimSpace(expression[:idx])
	value = strings.TrimSpace(expression[idx+1:])
	if name == "" {
		return "", "", false
	}
	return name, value, true
}

// String renders the scope chain for debugging/logging, innermost first.
func (s *Scope) String() string {
	var b strings.Builder
	for cur, depth := s, 0; cur != nil; cur, depth = cur.parent, depth+1 {
		fmt.Fprintf(&b, "scope[%d]: %d vars\n", depth, len(cur.vars))
	}
	return b.String()
}
