package flow

import "github.com/ionshell/flowexec/ast"

// Flag is a bitset entry for shell-wide behavior toggles.
type Flag uint32

// ErrExit mirrors the `set -e` family of behavior: any non-successful
// pipeline executed at any nesting level causes an immediate shell exit
// with that pipeline's status.
const ErrExit Flag = 1 << iota

// SUCCESS is the conventional zero exit status.
const SUCCESS = 0

// PipelineRunner executes a parsed Pipeline and reports its exit status.
// A false ok return signals a fatal, shell-level failure (the pipeline
// never produced a status at all), distinct from a merely non-zero status.
type PipelineRunner interface {
	RunPipeline(pipeline *ast.Pipeline) (status int, ok bool)
}

// Expander expands words (variable, glob, arithmetic substitution) into an
// array of resolved strings.
type Expander interface {
	ExpandString(text string, glob bool) []string
}

// ForResolver turns a For statement's raw value list into one of the three
// shapes described in spec.md §4.3.
type ForResolver interface {
	ResolveFor(values []string) ForExpression
}

// ForExpressionKind distinguishes the three shapes a For statement's value
// list can resolve to.
type ForExpressionKind int

const (
	// ForMultiple is an explicit list of already-expanded words.
	ForMultiple ForExpressionKind = iota
	// ForNormal is a single word that ExecuteFor expands with the Expander
	// and iterates over the resulting fields. It is split by the expansion's
	// field splitting at any whitespace, not at line boundaries only, so a
	// line that contains spaces yields several values.
	ForNormal
	// ForRange is a half-open integer range [Start, End).
	ForRange
)

// ForExpression is the resolved form of a For statement's value list.
type ForExpression struct {
	Kind   ForExpressionKind
	Values []string // ForMultiple
	Text   string   // ForNormal
	Start  int      // ForRange
	End    int      // ForRange
}

// VariableStore binds names to values for word expansion to read back.
type VariableStore interface {
	SetVar(name, value string)
	Local(expression string) int
	Export(expression string) int
}

// FunctionRegistry inserts function declarations by name, overwriting any
// existing definition of the same name, and resolves a command word back to
// a declared function for invocation as a pipeline stage.
type FunctionRegistry interface {
	InsertFunction(fn ast.Function)
	LookupFunction(name string) (ast.Function, bool)
}

// ScopePusher is implemented by a VariableStore that supports nested
// scoping for a function call: PushScope returns a child store seeded with
// the caller's bindings, used to bind a function's positional arguments
// ($1, $2, ... and its named Args) without leaking them into the caller.
type ScopePusher interface {
	PushScope() VariableStore
}

// SignalSource models the asynchronous, cooperatively-polled signal queue.
// NextSignal returns ok == false when no signal is pending.
type SignalSource interface {
	NextSignal() (sig int, ok bool)
	HandleSignal(sig int) (fatal bool)
	SignalExitCode(sig int) int
}

// Exiter terminates the owning process, not just the executor.
type Exiter interface {
	Exit(status int)
}

// Diagnostics receives structural-error messages the way spec.md §6
// describes: "ion: syntax error: <detail>" lines.
type Diagnostics interface {
	SyntaxError(detail string)
}
