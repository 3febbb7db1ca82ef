package flow

import (
	"fmt"

	"github.com/ionshell/flowexec/ast"
)

// StatementIterator is a pull cursor over a stream of parsed statements.
// Both the accumulator and the recursive executor share one iterator across
// calls so that statements left over on an input line after a compound
// block closes are visible to whichever caller reads next.
type StatementIterator interface {
	Next() (ast.Statement, bool)
}

// CollectLoops drains iter into body, tracking nesting via level, until the
// `end` that closes the caller's own block is reached; that closing `end`
// is never appended. Statements that open a new compound (While, For, If,
// Function, Match) increment level and are appended as a body-less
// placeholder, and everything up to and including that nested compound's
// own `end` is appended verbatim right after it — the executor re-derives
// the nested body from this same flat run by calling the matching
// collector again against a cursor over body, consuming that `end` for
// real. Without it surviving here, nothing downstream could tell where the
// nested block stops and the enclosing one resumes.
func CollectLoops(iter StatementIterator, body *[]ast.Statement, level *uint) {
	for {
		stmt, ok := iter.Next()
		if !ok {
			return
		}
		switch stmt.(type) {
		case ast.WhileStmt, ast.ForStmt, ast.IfStmt, ast.FunctionStmt, ast.MatchStmt:
			*level++
		case ast.EndStmt:
			*level--
			if *level == 0 {
				return
			}
		}
		*body = append(*body, stmt)
	}
}

// CollectIf drains iter, routing statements into success, the most recent
// else-if arm, or failure according to mode, until the `end` that closes
// this If is reached. It returns the mode the collector ended in so the
// caller can resume later if the input line ran out first. As in
// CollectLoops, an `end` that closes a nested compound (rather than this
// If) is routed into the current arm like any other statement instead of
// being dropped, so the executor can later find it again; the same goes for
// the `else` and `else if` markers of a nested If.
func CollectIf(
	iter StatementIterator,
	success *[]ast.Statement,
	elseIf *[]ast.ElseIf,
	failure *[]ast.Statement,
	level *uint,
	mode IfMode,
) (IfMode, error) {
	for {
		stmt, ok := iter.Next()
		if !ok {
			return mode, nil
		}

		switch s := stmt.(type) {
		case ast.ElseStmt:
			if *level > 1 {
				break
			}
			if mode == IfModeFailure {
				return IfModeError, fmt.Errorf("else after else")
			}
			mode = IfModeFailure
			continue
		case ast.ElseIfStmt:
			if *level > 1 {
				break
			}
			if mode == IfModeFailure {
				return IfModeError, fmt.Errorf("else if after else")
			}
			*elseIf = append(*elseIf, ast.ElseIf{Expression: s.Expression})
			mode = IfModeElseIfSuccess
			continue
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
			*success = append(*success, stmt)
		case IfModeElseIfSuccess:
			if len(*elseIf) == 0 {
				return IfModeError, fmt.Errorf("else if body with no else if header")
			}
			last := &(*elseIf)[len(*elseIf)-1]
			last.Success = append(last.Success, stmt)
		case IfModeFailure:
			*failure = append(*failure, stmt)
		default:
			return IfModeError, fmt.Errorf("malformed if statement")
		}
	}
}

// CollectCases drains iter into cases, appending statements to the most
// recently opened Case arm, until the `end` that closes this Match is
// reached. A Case arm begins when a MatchCaseStmt marker statement is seen;
// the parser is responsible for emitting one per `case <pattern>` line. It
// is an error to see a plain statement before any case arm has been
// opened. A nested compound's own `end`, and the `case` markers of a nested
// Match, are appended into the current arm rather than dropped or treated as
// this Match's own, for the same reason as CollectLoops/CollectIf.
func CollectCases(iter StatementIterator, cases *[]ast.Case, level *uint) error {
	for {
		stmt, ok := iter.Next()
		if !ok {
			return nil
		}

		switch s := stmt.(type) {
		case MatchCaseStmt:
			if *level > 1 {
				break
			}
			pattern := s.Value
			*cases = append(*cases, ast.Case{Value: pattern})
			continue
		case ast.EndStmt:
			*level--
			if *level == 0 {
				return nil
			}
		case ast.WhileStmt, ast.ForStmt, ast.IfStmt, ast.FunctionStmt, ast.MatchStmt:
			*level++
		}

		if len(*cases) == 0 {
			return fmt.Errorf("statement before any case arm in match block")
		}
		last := &(*cases)[len(*cases)-1]
		last.Statements = append(last.Statements, stmt)
	}
}

// MatchCaseStmt marks a `case <pattern>` line inside a Match block. It is a
// marker statement, like ast.ElseIfStmt, that only the collector sees — it
// never reaches execution. Value is nil for the default (catch-all) arm. It
// is an alias of ast.MatchCaseStmt, since only types in package ast can
// implement ast.Statement.
type MatchCaseStmt = ast.MatchCaseStmt
