package parse

import "github.com/ionshell/flowexec/ast"

// LineIterator adapts a batch of already-split input lines into a
// flow.StatementIterator: each call to Next parses exactly one more line.
// Held by pointer and shared between Shell.OnCommand and the collectors,
// it is never copied, so statements left over on the same batch after a
// compound block closes stay visible to whoever reads next.
type LineIterator struct {
	parser *LineParser
	lines  []string
	pos    int
	err    error
}

// NewLineIterator returns an iterator over lines, to be read one at a time.
// Each raw line is first split on `;` boundaries (SplitStatements), so a
// batch line containing several semicolon-joined commands yields one
// ast.Statement per command rather than being folded into a single pipeline.
func NewLineIterator(parser *LineParser, lines []string) *LineIterator {
	var expanded []string
	for _, raw := range lines {
		expanded = append(expanded, SplitStatements(raw)...)
	}
	return &LineIterator{parser: parser, lines: expanded}
}

// Next implements flow.StatementIterator. On a parse error it records the
// error (retrievable via Err) and returns ok==false, ending the batch early
// the same way the original hitting a syntax error mid-accumulation does.
func (it *LineIterator) Next() (ast.Statement, bool) {
	if it.err != nil || it.pos >= len(it.lines) {
		return nil, false
	}
	line := it.lines[it.pos]
	it.pos++

	stmt, err := it.parser.ParseLine(line)
	if err != nil {
		it.err = err
		return nil, false
	}
	return stmt, true
}

// Err returns the parse error that ended iteration early, if any.
func (it *LineIterator) Err() error {
	return it.err
}

// Remaining reports how many unread lines are left, for diagnostics.
func (it *LineIterator) Remaining() int {
	return len(it.lines) - it.pos
}
