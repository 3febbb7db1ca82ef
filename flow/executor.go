package flow

import (
	"fmt"

	"github.com/ionshell/flowexec/ast"
)

// Shell wires together every collaborator the recursive executor needs and
// holds the accumulator that spans input lines. It has no knowledge of how
// statements were parsed or how pipelines actually run a process; those are
// the Parser/PipelineRunner's job.
type Shell struct {
	Pipelines PipelineRunner
	Expand    Expander
	ForRes    ForResolver
	Vars      VariableStore
	Funcs     FunctionRegistry
	Signals   SignalSource
	Exit      Exiter
	Diag      Diagnostics

	Flags          Flag
	PreviousStatus int
	Accum          *Accumulator
}

// NewShell constructs a Shell with a clean accumulator.
func NewShell(pipelines PipelineRunner, expand Expander, forRes ForResolver, vars VariableStore, funcs FunctionRegistry, signals SignalSource, exit Exiter, diag Diagnostics) *Shell {
	return &Shell{
		Pipelines: pipelines,
		Expand:    expand,
		ForRes:    forRes,
		Vars:      vars,
		Funcs:     funcs,
		Signals:   signals,
		Exit:      exit,
		Diag:      diag,
		Accum:     NewAccumulator(),
	}
}

// OnCommand is the entry point for one line of input. When the accumulator
// is clean, a complete statement runs immediately; an incomplete compound
// keeps accumulating. When the accumulator already holds a partial
// statement, the new line is routed into it instead of being executed on
// its own, and any statements left over on the same iterator after the
// partial statement closes are drained by ExecuteToplevel.
func (s *Shell) OnCommand(iter StatementIterator) {
	for {
		stmt, ok := iter.Next()
		if !ok {
			return
		}

		if s.Accum.Clean() {
			s.ExecuteToplevel(iter, stmt)
			continue
		}

		s.continuePartial(iter, stmt)
	}
}

// continuePartial routes stmt into whichever partial compound statement the
// accumulator currently holds. If that compound is still open, it keeps
// collecting the compound's body from iter; once the compound closes, it runs
// it and leaves the rest of iter to OnCommand.
func (s *Shell) continuePartial(iter StatementIterator, stmt ast.Statement) {
	switch cur := s.Accum.Current.(type) {
	case ast.WhileStmt:
		body := cur.Statements
		level := s.Accum.Level
		s.routeIntoLoop(stmt, &body, &level)
		cur.Statements = body
		if level != 0 {
			CollectLoops(iter, &cur.Statements, &level)
		}
		s.Accum.Level = level
		s.Accum.Current = cur
		if level == 0 {
			s.finishPartial(cur)
		}
	case ast.ForStmt:
		body := cur.Statements
		level := s.Accum.Level
		s.routeIntoLoop(stmt, &body, &level)
		cur.Statements = body
		if level != 0 {
			CollectLoops(iter, &cur.Statements, &level)
		}
		s.Accum.Level = level
		s.Accum.Current = cur
		if level == 0 {
			s.finishPartial(cur)
		}
	case ast.FunctionStmt:
		body := cur.Function.Statements
		level := s.Accum.Level
		s.routeIntoLoop(stmt, &body, &level)
		cur.Function.Statements = body
		if level != 0 {
			CollectLoops(iter, &cur.Function.Statements, &level)
		}
		s.Accum.Level = level
		s.Accum.Current = cur
		if level == 0 {
			s.finishPartial(cur)
		}
	case ast.IfStmt:
		level := s.Accum.Level
		mode, err := s.routeIntoIf(stmt, &cur, &level)
		if err != nil {
			s.syntaxError(err)
			return
		}
		if level != 0 {
			mode, err = CollectIf(iter, &cur.Success, &cur.ElseIf, &cur.Failure, &level, mode)
			if err != nil {
				s.syntaxError(err)
				return
			}
		}
		s.Accum.Level = level
		s.Accum.IfMode = mode
		s.Accum.Current = cur
		if level == 0 {
			s.finishPartial(cur)
		}
	case ast.MatchStmt:
		level := s.Accum.Level
		if err := s.routeIntoMatch(stmt, &cur, &level); err != nil {
			s.syntaxError(err)
			return
		}
		if level != 0 {
			if err := CollectCases(iter, &cur.Cases, &level); err != nil {
				s.syntaxError(err)
				return
			}
		}
		s.Accum.Level = level
		s.Accum.Current = cur
		if level == 0 {
			s.finishPartial(cur)
		}
	default:
		// Current is a DefaultStmt with Level > 0: structurally impossible
		// under the Level==0 iff DefaultStmt invariant, but stay defensive.
		s.Accum.Reset()
	}
}

// routeIntoLoop handles the one statement that arrives just as the
// accumulator learns it is resuming a While/For/Function body; the rest of
// the line, if any, is drained by CollectLoops right after. Only an `end`
// that closes *this* block (level reaches 0) is dropped; an `end` closing a
// nested compound is appended like any other statement, for the same
// reason CollectLoops preserves it (see collectors.go).
func (s *Shell) routeIntoLoop(stmt ast.Statement, body *[]ast.Statement, level *uint) {
	switch stmt.(type) {
	case ast.EndStmt:
		*level--
		if *level == 0 {
			return
		}
	case ast.WhileStmt, ast.ForStmt, ast.IfStmt, ast.FunctionStmt, ast.MatchStmt:
		*level++
	}
	*body = append(*body, stmt)
}

func (s *Shell) routeIntoIf(stmt ast.Statement, cur *ast.IfStmt, level *uint) (IfMode, error) {
	mode := s.Accum.IfMode
	switch st := stmt.(type) {
	case ast.ElseStmt:
		if *level > 1 {
			break
		}
		if mode == IfModeFailure {
			return IfModeError, fmt.Errorf("else after else")
		}
		return IfModeFailure, nil
	case ast.ElseIfStmt:
		if *level > 1 {
			break
		}
		if mode == IfModeFailure {
			return IfModeError, fmt.Errorf("else if after else")
		}
		cur.ElseIf = append(cur.ElseIf, ast.ElseIf{Expression: st.Expression})
		return IfModeElseIfSuccess, nil
	case ast.EndStmt:
		*level--
		if *level == 0 {
			return mode, nil
		}
	case ast.WhileStmt, ast.ForStmt, ast.IfStmt, ast.FunctionStmt, ast.MatchStmt:
		*level++
	}

	switch mode {
	case IfModeSuccess:
		cur.Success = append(cur.Success, stmt)
	case IfModeElseIfSuccess:
		if len(cur.ElseIf) == 0 {
			return IfModeError, fmt.Errorf("else if body with no else if header")
		}
		last := &cur.ElseIf[len(cur.ElseIf)-1]
		last.Success = append(last.Success, stmt)
	case IfModeFailure:
		cur.Failure = append(cur.Failure, stmt)
	default:
		return IfModeError, fmt.Errorf("malformed if statement")
	}
	return mode, nil
}

func (s *Shell) routeIntoMatch(stmt ast.Statement, cur *ast.MatchStmt, level *uint) error {
	switch st := stmt.(type) {
	case MatchCaseStmt:
		if *level > 1 {
			break
		}
		cur.Cases = append(cur.Cases, ast.Case{Value: st.Value})
		return nil
	case ast.EndStmt:
		*level--
		if *level == 0 {
			return nil
		}
	case ast.WhileStmt, ast.ForStmt, ast.IfStmt, ast.FunctionStmt, ast.MatchStmt:
		*level++
	}
	if len(cur.Cases) == 0 {
		return fmt.Errorf("statement before any case arm in match block")
	}
	last := &cur.Cases[len(cur.Cases)-1]
	last.Statements = append(last.Statements, stmt)
	return nil
}

// finishPartial runs a compound statement whose body has just finished
// accumulating and returns the accumulator to clean. Unlike
// ExecuteToplevel, it never re-enters collection: the statement handed in
// is already fully built.
func (s *Shell) finishPartial(stmt ast.Statement) {
	s.Accum.Reset()
	s.ExecuteStatements([]ast.Statement{stmt})
}

// ExecuteToplevel either starts accumulating a fresh compound statement or,
// for a complete simple statement, runs it immediately. Else/ElseIf/End
// arriving with a clean accumulator are syntax errors: they have no partial
// If to attach to.
func (s *Shell) ExecuteToplevel(iter StatementIterator, stmt ast.Statement) {
	switch st := stmt.(type) {
	case ast.ElseStmt:
		s.syntaxError(fmt.Errorf("else found with no matching if"))
	case ast.ElseIfStmt:
		s.syntaxError(fmt.Errorf("else if found with no matching if"))
	case ast.EndStmt:
		s.syntaxError(fmt.Errorf("end found with no matching block"))
	case ast.WhileStmt:
		level := uint(1)
		CollectLoops(iter, &st.Statements, &level)
		if level != 0 {
			s.startPartial(st, level)
			return
		}
		s.ExecuteStatements([]ast.Statement{st})
	case ast.ForStmt:
		level := uint(1)
		CollectLoops(iter, &st.Statements, &level)
		if level != 0 {
			s.startPartial(st, level)
			return
		}
		s.ExecuteStatements([]ast.Statement{st})
	case ast.FunctionStmt:
		level := uint(1)
		CollectLoops(iter, &st.Function.Statements, &level)
		if level != 0 {
			s.startPartial(st, level)
			return
		}
		s.ExecuteStatements([]ast.Statement{st})
	case ast.IfStmt:
		level := uint(1)
		mode, err := CollectIf(iter, &st.Success, &st.ElseIf, &st.Failure, &level, IfModeSuccess)
		if err != nil {
			s.syntaxError(err)
			return
		}
		if level != 0 {
			s.Accum.Level = level
			s.Accum.IfMode = mode
			s.Accum.Current = st
			return
		}
		s.ExecuteStatements([]ast.Statement{st})
	case ast.MatchStmt:
		level := uint(1)
		if err := CollectCases(iter, &st.Cases, &level); err != nil {
			s.syntaxError(err)
			return
		}
		if level != 0 {
			s.startPartial(st, level)
			return
		}
		s.ExecuteStatements([]ast.Statement{st})
	default:
		s.ExecuteStatements([]ast.Statement{stmt})
	}
}

func (s *Shell) startPartial(stmt ast.Statement, level uint) {
	s.Accum.Level = level
	s.Accum.Current = stmt
}

func (s *Shell) syntaxError(err error) {
	s.Accum.Reset()
	if s.Diag != nil {
		s.Diag.SyntaxError(err.Error())
	}
}

// bodyCursor is a StatementIterator over an already-collected statement
// slice. The collectors (CollectLoops/CollectIf/CollectCases) only ever
// find the boundary of the block currently being read; a nested compound
// opener inside that block is appended as a body-less placeholder followed
// by its own sub-statements and its own `end`, all flattened into the same
// slice (see collectors.go). bodyCursor lets ExecuteStatements hand that
// same slice back to the collectors at execution time so each nested
// compound's real body is reconstructed, and consumed, right before it
// runs — the "iterator sharing between collector and executor" spec.md §9
// calls for, just at a different phase than parse time.
type bodyCursor struct {
	stmts []ast.Statement
	pos   int
}

func (c *bodyCursor) Next() (ast.Statement, bool) {
	if c.pos >= len(c.stmts) {
		return nil, false
	}
	stmt := c.stmts[c.pos]
	c.pos++
	return stmt, true
}

// ExecuteStatements runs body in order, stopping early on any non-NoOp
// Condition, on a pending signal, or on an asynchronous break request. A
// compound statement encountered mid-body has its own body reconstructed
// from the remainder of the same cursor before it is dispatched.
func (s *Shell) ExecuteStatements(body []ast.Statement) Condition {
	cur := &bodyCursor{stmts: body}
	for {
		stmt, ok := cur.Next()
		if !ok {
			return NoOp
		}
		cond := s.executeOne(stmt, cur)
		if cond != NoOp {
			return cond
		}
		if sig, ok := s.Signals.NextSignal(); ok {
			if fatal := s.Signals.HandleSignal(sig); fatal {
				s.Exit.Exit(s.Signals.SignalExitCode(sig))
			}
			return SigInt
		}
		if s.Accum.BreakFlow {
			s.Accum.BreakFlow = false
			return SigInt
		}
	}
}

func (s *Shell) executeOne(stmt ast.Statement, cur StatementIterator) Condition {
	switch st := stmt.(type) {
	case ast.DefaultStmt:
		return NoOp
	case ast.ErrorStmt:
		s.PreviousStatus = st.Status
		return NoOp
	case ast.LetStmt:
		s.PreviousStatus = s.Vars.Local(st.Expression)
		return NoOp
	case ast.ExportStmt:
		s.PreviousStatus = s.Vars.Export(st.Expression)
		return NoOp
	case ast.WhileStmt:
		level := uint(1)
		CollectLoops(cur, &st.Statements, &level)
		return s.ExecuteWhile(st)
	case ast.ForStmt:
		level := uint(1)
		CollectLoops(cur, &st.Statements, &level)
		return s.ExecuteFor(st)
	case ast.IfStmt:
		level := uint(1)
		if _, err := CollectIf(cur, &st.Success, &st.ElseIf, &st.Failure, &level, IfModeSuccess); err != nil {
			s.syntaxError(err)
			return NoOp
		}
		return s.ExecuteIf(st)
	case ast.FunctionStmt:
		level := uint(1)
		CollectLoops(cur, &st.Function.Statements, &level)
		s.Funcs.InsertFunction(st.Function)
		return NoOp
	case ast.PipelineStmt:
		return s.runPipelineStmt(&st.Pipeline)
	case ast.BreakStmt:
		return Break
	case ast.ContinueStmt:
		return Continue
	case ast.MatchStmt:
		level := uint(1)
		if err := CollectCases(cur, &st.Cases, &level); err != nil {
			s.syntaxError(err)
			return NoOp
		}
		return s.ExecuteMatch(st)
	default:
		return NoOp
	}
}

func (s *Shell) runPipelineStmt(p *ast.Pipeline) Condition {
	if len(p.Stages) > 0 && len(p.Stages[0].Words) > 0 {
		if fn, ok := s.Funcs.LookupFunction(p.Stages[0].Words[0]); ok {
			return s.callFunctionStmt(fn, p.Stages[0].Words[1:])
		}
	}

	status, ok := s.Pipelines.RunPipeline(p)
	if !ok {
		s.PreviousStatus = status
		return NoOp
	}
	s.PreviousStatus = status
	if status != SUCCESS && s.Flags&ErrExit != 0 {
		s.Exit.Exit(status)
	}
	return NoOp
}

// callFunctionStmt invokes a declared function as if it were a pipeline
// command: its positional args (raw, unexpanded words) are bound as $1,
// $2, ... and under its declared Args names, in a scope that is discarded
// once the call returns so they never leak into the caller.
func (s *Shell) callFunctionStmt(fn ast.Function, args []string) Condition {
	s.PreviousStatus = SUCCESS
	return s.CallFunction(fn, args)
}

// CallFunction runs fn.Statements with args bound as positional parameters.
// Break and Continue reaching the end of a function body are absorbed
// (there is no enclosing loop inside the call to consume them); SigInt
// still propagates to the caller.
func (s *Shell) CallFunction(fn ast.Function, args []string) Condition {
	outer := s.Vars
	if pusher, ok := outer.(ScopePusher); ok {
		s.Vars = pusher.PushScope()
		defer func() { s.Vars = outer }()
	}

	for i, v := range args {
		s.Vars.SetVar(fmt.Sprintf("%d", i+1), v)
	}
	for i, name := range fn.Args {
		if i < len(args) {
			s.Vars.SetVar(name, args[i])
		}
	}

	cond := s.ExecuteStatements(fn.Statements)
	if cond == SigInt {
		return SigInt
	}
	return NoOp
}

// ExecuteWhile repeats Statements for as long as Expression succeeds. Break
// stops the loop without propagating further; Continue restarts the
// condition check; SigInt unwinds past the loop entirely.
func (s *Shell) ExecuteWhile(st ast.WhileStmt) Condition {
	for {
		expr := st.Expression.Clone()
		status, ok := s.Pipelines.RunPipeline(&expr)
		if !ok || status != SUCCESS {
			return NoOp
		}
		cond := s.ExecuteStatements(st.Statements)
		switch cond {
		case Break:
			return NoOp
		case SigInt:
			return SigInt
		}
	}
}

// ExecuteFor resolves Values into concrete loop values and binds Variable to
// each in turn. Variable == "_" discards the binding instead of setting it.
func (s *Shell) ExecuteFor(st ast.ForStmt) Condition {
	expr := s.ForRes.ResolveFor(st.Values.Raw)

	bind := func(value string) Condition {
		if st.Variable != "_" {
			s.Vars.SetVar(st.Variable, value)
		}
		return s.ExecuteStatements(st.Statements)
	}

	switch expr.Kind {
	case ForMultiple:
		for _, v := range expr.Values {
			cond := bind(v)
			if cond == Break {
				return NoOp
			}
			if cond == SigInt {
				return SigInt
			}
		}
	case ForNormal:
		values := s.Expand.ExpandString(expr.Text, false)
		for _, v := range values {
			cond := bind(v)
			if cond == Break {
				return NoOp
			}
			if cond == SigInt {
				return SigInt
			}
		}
	case ForRange:
		for i := expr.Start; i < expr.End; i++ {
			cond := bind(fmt.Sprintf("%d", i))
			if cond == Break {
				return NoOp
			}
			if cond == SigInt {
				return SigInt
			}
		}
	}
	return NoOp
}

// ExecuteIf runs Expression and dispatches to Success, the first matching
// ElseIf arm, or Failure.
func (s *Shell) ExecuteIf(st ast.IfStmt) Condition {
	expr := st.Expression.Clone()
	status, ok := s.Pipelines.RunPipeline(&expr)
	if ok && status == SUCCESS {
		return s.ExecuteStatements(st.Success)
	}

	for _, arm := range st.ElseIf {
		armExpr := arm.Expression.Clone()
		armStatus, armOk := s.Pipelines.RunPipeline(&armExpr)
		if armOk && armStatus == SUCCESS {
			return s.ExecuteStatements(arm.Success)
		}
	}

	return s.ExecuteStatements(st.Failure)
}

// ExecuteMatch expands Expression into an array once, then runs the first
// Case in declaration order whose own expanded pattern shares any element
// with it. A nil-Value (default) case runs and stops the scan the moment
// it is reached, even if a later case would have matched — it is not a
// fallback tried only after every other case fails.
func (s *Shell) ExecuteMatch(st ast.MatchStmt) Condition {
	value := s.Expand.ExpandString(st.Expression, false)

	for i := range st.Cases {
		c := &st.Cases[i]
		if c.Value == nil {
			return s.ExecuteStatements(c.Statements)
		}
		pattern := s.Expand.ExpandString(*c.Value, false)
		if anyShared(pattern, value) {
			return s.ExecuteStatements(c.Statements)
		}
	}
	return NoOp
}

// anyShared reports whether a and b have any element in common.
func anyShared(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
