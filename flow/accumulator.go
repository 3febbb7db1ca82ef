package flow

import "github.com/ionshell/flowexec/ast"

// IfMode enumerates which sub-body of a partially-accumulated If statement
// is currently receiving statements. It implements the state machine from
// spec.md §4.4.
type IfMode int

const (
	IfModeSuccess IfMode = iota
	IfModeElseIfExpr
	IfModeElseIfSuccess
	IfModeFailure
	// IfModeError is terminal: a collector returns it together with an
	// error, and the caller then discards the partial statement and resets
	// the accumulator to clean.
	IfModeError
)

// Accumulator holds the flow-control state for one shell: the partially
// accumulated compound statement, how deep inside it we are, and which
// If sub-body is currently open.
//
// Invariant: Level == 0 if and only if Current is a DefaultStmt (no partial
// statement pending). See spec.md §3 "Lifecycle invariants".
type Accumulator struct {
	Level     uint
	Current   ast.Statement
	IfMode    IfMode
	BreakFlow bool
}

// NewAccumulator returns a clean accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{Current: ast.DefaultStmt{}}
}

// Clean reports whether the accumulator holds no partial statement.
func (a *Accumulator) Clean() bool {
	return a.Level == 0
}

// Reset discards any partial statement and returns the accumulator to a
// clean state. Used after both structural errors and the terminal
// IfModeError.
func (a *Accumulator) Reset() {
	a.Level = 0
	a.IfMode = IfModeSuccess
	a.Current = ast.DefaultStmt{}
}

// Take swaps out the completed statement for a DefaultStmt, mirroring the
// original implementation's mem::swap dance: it avoids cloning the
// statement just to hand it off for execution.
func (a *Accumulator) Take() ast.Statement {
	stmt := a.Current
	a.Current = ast.DefaultStmt{}
	return stmt
}
