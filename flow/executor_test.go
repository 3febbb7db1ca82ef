package flow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ionshell/flowexec/ast"
)

// sliceIterator feeds a fixed slice of statements to the executor, the way
// parse.LineIterator does for real input.
type sliceIterator struct {
	stmts []ast.Statement
	pos   int
}

func (s *sliceIterator) Next() (ast.Statement, bool) {
	if s.pos >= len(s.stmts) {
		return nil, false
	}
	stmt := s.stmts[s.pos]
	s.pos++
	return stmt, true
}

type scriptedRunner struct {
	statuses []int
	calls    int
}

func (r *scriptedRunner) RunPipeline(p *ast.Pipeline) (int, bool) {
	if r.calls >= len(r.statuses) {
		return 0, true
	}
	s := r.statuses[r.calls]
	r.calls++
	return s, true
}

type echoExpander struct{}

func (echoExpander) ExpandString(text string, glob bool) []string { return []string{text} }

type noSignals struct{}

func (noSignals) NextSignal() (int, bool)     { return 0, false }
func (noSignals) HandleSignal(int) bool       { return false }
func (noSignals) SignalExitCode(sig int) int  { return 128 + sig }

type noopVars struct{ set map[string]string }

func newNoopVars() *noopVars { return &noopVars{set: map[string]string{}} }
func (v *noopVars) SetVar(name, value string)  { v.set[name] = value }
func (v *noopVars) Local(expression string) int  { return 0 }
func (v *noopVars) Export(expression string) int { return 0 }

type noopFuncs struct{ fns []ast.Function }

func (f *noopFuncs) InsertFunction(fn ast.Function) { f.fns = append(f.fns, fn) }
func (f *noopFuncs) LookupFunction(name string) (ast.Function, bool) {
	for _, fn := range f.fns {
		if fn.Name == name {
			return fn, true
		}
	}
	return ast.Function{}, false
}

type noopExit struct{ called bool; status int }

func (e *noopExit) Exit(status int) { e.called = true; e.status = status }

func pipelineOf(name string) ast.Pipeline {
	return ast.Pipeline{Stages: []ast.Stage{{Words: []string{name}}}}
}

func TestOnCommandRunsCompletePipelineImmediately(t *testing.T) {
	runner := &scriptedRunner{statuses: []int{0}}
	sh := NewShell(runner, echoExpander{}, nil, newNoopVars(), &noopFuncs{}, noSignals{}, &noopExit{}, nil)

	iter := &sliceIterator{stmts: []ast.Statement{ast.PipelineStmt{Pipeline: pipelineOf("echo")}}}
	sh.OnCommand(iter)

	assert.Equal(t, 1, runner.calls)
	assert.True(t, sh.Accum.Clean())
}

func TestOnCommandAccumulatesIfAcrossLines(t *testing.T) {
	runner := &scriptedRunner{statuses: []int{0, 0}}
	sh := NewShell(runner, echoExpander{}, nil, newNoopVars(), &noopFuncs{}, noSignals{}, &noopExit{}, nil)

	iter := &sliceIterator{stmts: []ast.Statement{
		ast.IfStmt{Expression: pipelineOf("test")},
	}}
	sh.OnCommand(iter)
	require.False(t, sh.Accum.Clean(), "if with no end yet should remain partial")

	iter2 := &sliceIterator{stmts: []ast.Statement{
		ast.PipelineStmt{Pipeline: pipelineOf("echo")},
		ast.EndStmt{},
	}}
	sh.OnCommand(iter2)
	assert.True(t, sh.Accum.Clean())
	assert.Equal(t, 2, runner.calls, "both the if condition and its body pipeline should have run")
}

func TestExecuteWhileStopsOnBreak(t *testing.T) {
	runner := &scriptedRunner{statuses: []int{0, 0, 0}}
	sh := NewShell(runner, echoExpander{}, nil, newNoopVars(), &noopFuncs{}, noSignals{}, &noopExit{}, nil)

	st := ast.WhileStmt{
		Expression: pipelineOf("true"),
		Statements: []ast.Statement{ast.BreakStmt{}},
	}
	cond := sh.ExecuteWhile(st)
	assert.Equal(t, NoOp, cond)
	assert.Equal(t, 1, runner.calls, "condition checked once before the break stopped the loop")
}

func TestExecuteIfChoosesElseIfArm(t *testing.T) {
	runner := &scriptedRunner{statuses: []int{1, 0}}
	sh := NewShell(runner, echoExpander{}, nil, newNoopVars(), &noopFuncs{}, noSignals{}, &noopExit{}, nil)

	st := ast.IfStmt{
		Expression: pipelineOf("false"),
		ElseIf: []ast.ElseIf{{
			Expression: pipelineOf("true"),
			Success:    []ast.Statement{ast.LetStmt{Expression: "x = 1"}},
		}},
	}
	cond := sh.ExecuteIf(st)
	assert.Equal(t, NoOp, cond)
	assert.Equal(t, 2, runner.calls)
}

func TestExecuteForBindsEachValue(t *testing.T) {
	runner := &scriptedRunner{}
	vars := newNoopVars()
	sh := NewShell(runner, echoExpander{}, multipleResolver{}, vars, &noopFuncs{}, noSignals{}, &noopExit{}, nil)

	st := ast.ForStmt{Variable: "i", Values: ast.ForValues{Raw: []string{"a", "b", "c"}}}
	cond := sh.ExecuteFor(st)
	assert.Equal(t, NoOp, cond)
	assert.Equal(t, "c", vars.set["i"])
}

type multipleResolver struct{}

func (multipleResolver) ResolveFor(values []string) ForExpression {
	return ForExpression{Kind: ForMultiple, Values: values}
}

type fatalSignal struct{ sig int }

func (f fatalSignal) NextSignal() (int, bool)    { return f.sig, true }
func (fatalSignal) HandleSignal(int) bool        { return true }
func (fatalSignal) SignalExitCode(sig int) int   { return 128 + sig }

func TestExecuteStatementsExitsOnFatalSignal(t *testing.T) {
	runner := &scriptedRunner{statuses: []int{0}}
	exit := &noopExit{}
	sh := NewShell(runner, echoExpander{}, nil, newNoopVars(), &noopFuncs{}, fatalSignal{sig: 2}, exit, nil)

	cond := sh.ExecuteStatements([]ast.Statement{ast.PipelineStmt{Pipeline: pipelineOf("echo")}})

	assert.Equal(t, SigInt, cond)
	assert.True(t, exit.called)
	assert.Equal(t, 130, exit.status)
}

func TestExecuteStatementsUnwindsOnBreakFlow(t *testing.T) {
	runner := &scriptedRunner{statuses: []int{0, 0}}
	sh := NewShell(runner, echoExpander{}, nil, newNoopVars(), &noopFuncs{}, noSignals{}, &noopExit{}, nil)
	sh.Accum.BreakFlow = true

	cond := sh.ExecuteStatements([]ast.Statement{
		ast.PipelineStmt{Pipeline: pipelineOf("echo")},
		ast.PipelineStmt{Pipeline: pipelineOf("echo")},
	})

	assert.Equal(t, SigInt, cond)
	assert.False(t, sh.Accum.BreakFlow, "break_flow is cleared once consumed")
	assert.Equal(t, 1, runner.calls, "second pipeline never ran: unwind happened after the first")
}

// fieldsExpander splits its input on spaces, standing in for real word
// expansion so ExecuteMatch's elementwise pattern comparison can be tested.
type fieldsExpander struct{}

func (fieldsExpander) ExpandString(text string, glob bool) []string {
	return strings.Fields(text)
}

func TestExecuteMatchComparesExpandedArraysElementwise(t *testing.T) {
	runner := &scriptedRunner{}
	sh := NewShell(runner, fieldsExpander{}, nil, newNoopVars(), &noopFuncs{}, noSignals{}, &noopExit{}, nil)

	foo := "bar foo"
	st := ast.MatchStmt{
		Expression: "foo",
		Cases: []ast.Case{
			{Value: strPtr("bar"), Statements: []ast.Statement{ast.ErrorStmt{Status: 1}}},
			{Value: &foo, Statements: []ast.Statement{ast.ErrorStmt{Status: 2}}},
		},
	}
	cond := sh.ExecuteMatch(st)
	assert.Equal(t, NoOp, cond)
	assert.Equal(t, 2, sh.PreviousStatus, "the \"bar foo\" case shares \"foo\" with the subject and runs")
}

func strPtr(s string) *string { return &s }

func TestExecuteMatchStopsAtDefaultEvenIfLaterCaseMatches(t *testing.T) {
	runner := &scriptedRunner{}
	sh := NewShell(runner, fieldsExpander{}, nil, newNoopVars(), &noopFuncs{}, noSignals{}, &noopExit{}, nil)

	st := ast.MatchStmt{
		Expression: "foo",
		Cases: []ast.Case{
			{Value: nil, Statements: []ast.Statement{ast.ErrorStmt{Status: 1}}}, // default, first in order
			{Value: strPtr("foo"), Statements: []ast.Statement{ast.ErrorStmt{Status: 2}}},
		},
	}
	cond := sh.ExecuteMatch(st)

	assert.Equal(t, NoOp, cond)
	assert.Equal(t, 1, sh.PreviousStatus, "the default case runs and stops the scan, even though the later case would also match")
}

func TestRunPipelineStmtInvokesDeclaredFunction(t *testing.T) {
	runner := &scriptedRunner{statuses: []int{99}}
	vars := newNoopVars()
	funcs := &noopFuncs{}
	sh := NewShell(runner, echoExpander{}, nil, vars, funcs, noSignals{}, &noopExit{}, nil)

	funcs.InsertFunction(ast.Function{
		Name: "greet",
		Args: []string{"name"},
		Statements: []ast.Statement{
			ast.LetStmt{Expression: "called = yes"},
		},
	})

	sh.runPipelineStmt(&ast.Pipeline{Stages: []ast.Stage{{Words: []string{"greet", "world"}}}})

	assert.Equal(t, 0, runner.calls, "a declared function is called directly, never handed to the pipeline runner")
	assert.Equal(t, SUCCESS, sh.PreviousStatus)
}

func TestCallFunctionBindsPositionalArgs(t *testing.T) {
	runner := &scriptedRunner{}
	vars := newNoopVars()
	sh := NewShell(runner, echoExpander{}, nil, vars, &noopFuncs{}, noSignals{}, &noopExit{}, nil)

	fn := ast.Function{
		Name: "greet",
		Args: []string{"name"},
	}
	cond := sh.CallFunction(fn, []string{"world"})

	assert.Equal(t, NoOp, cond)
	assert.Equal(t, "world", vars.set["1"], "positional $1 bound from args")
	assert.Equal(t, "world", vars.set["name"], "named Args[0] bound the same way")
}

// recordingRunner answers "test" pipelines by comparing the bound loop
// variable's current value (read live from vars, the way the real shell
// would expand `$i` before running the condition) against match, and
// records every "echo" call's argument.
type recordingRunner struct {
	vars    *noopVars
	varName string
	match   string
	printed *[]string
}

func (r recordingRunner) RunPipeline(p *ast.Pipeline) (int, bool) {
	words := p.Stages[0].Words
	if words[0] == "test" {
		if r.vars.set[r.varName] == r.match {
			return SUCCESS, true
		}
		return 1, true
	}
	*r.printed = append(*r.printed, r.vars.set[r.varName])
	return SUCCESS, true
}

// TestExecuteForBreaksInsideNestedIf reconstructs, at execution time, the
// nested body of an `if` (a `break` and the `end` that closes the `if`)
// flattened into a `for` loop's body ahead of a trailing `echo` — and
// confirms the break only fires once the if's condition is true, instead of
// on every iteration.
func TestExecuteForBreaksInsideNestedIf(t *testing.T) {
	vars := newNoopVars()
	var printed []string
	runner := recordingRunner{vars: vars, varName: "i", match: "3", printed: &printed}
	sh := NewShell(runner, echoExpander{}, multipleResolver{}, vars, &noopFuncs{}, noSignals{}, &noopExit{}, nil)

	// for i in 1 2 3 4 5
	//   if test $i -eq 3
	//     break
	//   end
	//   echo $i
	// end
	forBody := []ast.Statement{
		ast.IfStmt{Expression: pipelineOf("test")},
		ast.BreakStmt{},
		ast.EndStmt{}, // closes the nested if, preserved by the collector fix
		ast.PipelineStmt{Pipeline: pipelineOf("echo")},
	}

	cond := sh.ExecuteFor(ast.ForStmt{
		Variable:   "i",
		Values:     ast.ForValues{Raw: []string{"1", "2", "3", "4", "5"}},
		Statements: forBody,
	})

	assert.Equal(t, NoOp, cond)
	assert.Equal(t, []string{"1", "2"}, printed, "loop must break on i==3, after printing 1 and 2")
}

func TestErrExitTriggersExit(t *testing.T) {
	runner := &scriptedRunner{statuses: []int{7}}
	exit := &noopExit{}
	sh := NewShell(runner, echoExpander{}, nil, newNoopVars(), &noopFuncs{}, noSignals{}, exit, nil)
	sh.Flags |= ErrExit

	sh.runPipelineStmt(&ast.Pipeline{Stages: []ast.Stage{{Words: []string{"false"}}}})

	assert.True(t, exit.called)
	assert.Equal(t, 7, exit.status)
}
