// Package parse turns one line of shell input into an ast.Statement,
// using mvdan.cc/sh/v3/syntax to tokenize pipeline words and ion's own
// keyword grammar (if/while/for/match/fn/let/export/break/continue/end)
// for everything else.
package parse

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/ionshell/flowexec/ast"
	"github.com/ionshell/flowexec/flow"
)

// LineParser converts raw input lines into ast.Statement values.
type LineParser struct{}

// NewLineParser returns a ready-to-use parser. It holds no state of its
// own; all per-input state lives in the caller's Accumulator.
func NewLineParser() *LineParser {
	return &LineParser{}
}

// ParseLine is the single entry point: it classifies line by its leading
// keyword and dispatches to the matching constructor.
func (p *LineParser) ParseLine(line string) (ast.Statement, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return ast.DefaultStmt{}, nil
	}

	word, rest := splitFirstWord(trimmed)
	switch word {
	case "if":
		expr, err := p.parsePipeline(rest)
		if err != nil {
			return nil, err
		}
		return ast.IfStmt{Expression: expr}, nil
	case "else":
		inner, rest2 := splitFirstWord(rest)
		if inner == "if" {
			expr, err := p.parsePipeline(rest2)
			if err != nil {
				return nil, err
			}
			return ast.ElseIfStmt{Expression: expr}, nil
		}
		if strings.TrimSpace(rest) != "" {
			return nil, fmt.Errorf("unexpected tokens after else")
		}
		return ast.ElseStmt{}, nil
	case "end":
		return ast.EndStmt{}, nil
	case "while":
		expr, err := p.parsePipeline(rest)
		if err != nil {
			return nil, err
		}
		return ast.WhileStmt{Expression: expr}, nil
	case "for":
		return p.parseFor(rest)
	case "match":
		return ast.MatchStmt{Expression: strings.TrimSpace(rest)}, nil
	case "case":
		value := strings.TrimSpace(rest)
		if value == "_" || value == "" {
			return flow.MatchCaseStmt{}, nil
		}
		return flow.MatchCaseStmt{Value: &value}, nil
	case "fn":
		return p.parseFunction(rest)
	case "let":
		return ast.LetStmt{Expression: strings.TrimSpace(rest)}, nil
	case "export":
		return ast.ExportStmt{Expression: strings.TrimSpace(rest)}, nil
	case "break":
		return ast.BreakStmt{}, nil
	case "continue":
		return ast.ContinueStmt{}, nil
	default:
		expr, err := p.parsePipeline(trimmed)
		if err != nil {
			return nil, err
		}
		return ast.PipelineStmt{Pipeline: expr}, nil
	}
}

// parseFor parses "for VAR in VALUE...".
func (p *LineParser) parseFor(rest string) (ast.Statement, error) {
	variable, afterVar := splitFirstWord(rest)
	if variable == "" {
		return nil, fmt.Errorf("for: missing loop variable")
	}
	inWord, values := splitFirstWord(strings.TrimSpace(afterVar))
	if inWord != "in" {
		return nil, fmt.Errorf("for: expected 'in' after loop variable")
	}
	return ast.ForStmt{Variable: variable, Values: ast.ForValues{Raw: fields(values)}}, nil
}

// parseFunction parses "fn NAME [ARG...] [--description TEXT]".
func (p *LineParser) parseFunction(rest string) (ast.Statement, error) {
	parts := fields(rest)
	if len(parts) == 0 {
		return nil, fmt.Errorf("fn: missing function name")
	}
	fn := ast.Function{Name: parts[0]}
	for i := 1; i < len(parts); i++ {
		if parts[i] == "--description" && i+1 < len(parts) {
			fn.Description = strings.Join(parts[i+1:], " ")
			break
		}
		fn.Args = append(fn.Args, parts[i])
	}
	return ast.FunctionStmt{Function: fn}, nil
}

// parsePipeline tokenizes text as a shell command line, splitting on pipe
// stages, and returns each stage's raw (not-yet-expanded) argv words.
func (p *LineParser) parsePipeline(text string) (ast.Pipeline, error) {
	text = strings.TrimSpace(text)
	negate := false
	if strings.HasPrefix(text, "not ") {
		negate = true
		text = strings.TrimSpace(text[len("not "):])
	}

	reader := strings.NewReader(text)
	file, err := syntax.NewParser(syntax.KeepComments(false)).Parse(reader, "")
	if err != nil {
		return ast.Pipeline{}, fmt.Errorf("syntax error: %w", err)
	}

	var stages []ast.Stage
	for _, stmt := range file.Stmts {
		collectStages(stmt.Cmd, &stages)
	}
	if len(stages) == 0 {
		return ast.Pipeline{}, fmt.Errorf("empty pipeline expression")
	}
	return ast.Pipeline{Stages: stages, Negate: negate}, nil
}

// collectStages walks a parsed command, flattening a chain of BinaryCmd
// pipe operators into a single left-to-right stage list.
func collectStages(cmd syntax.Command, out *[]ast.Stage) {
	switch c := cmd.(type) {
	case *syntax.BinaryCmd:
		if c.Op == syntax.Pipe {
			collectStages(c.X.Cmd, out)
			collectStages(c.Y.Cmd, out)
			return
		}
		*out = append(*out, stageFromCommand(cmd))
	case *syntax.CallExpr:
		*out = append(*out, stageFromWords(c.Args))
	default:
		*out = append(*out, stageFromCommand(cmd))
	}
}

func stageFromCommand(cmd syntax.Command) ast.Stage {
	if call, ok := cmd.(*syntax.CallExpr); ok {
		return stageFromWords(call.Args)
	}
	return ast.Stage{}
}

func stageFromWords(words []*syntax.Word) ast.Stage {
	stage := ast.Stage{Words: make([]string, len(words))}
	for i, w := range words {
		stage.Words[i] = wordLiteral(w)
	}
	return stage
}

// wordLiteral renders a *syntax.Word back to source text so the expand
// package can later resolve any variable or glob parts. mvdan.cc/sh/v3
// has no public "stringify" helper for parsed words outside of printer, so
// this reconstructs from Lit/Quoted/ParamExp parts directly.
func wordLiteral(w *syntax.Word) string {
	var b strings.Builder
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			b.WriteString(p.Value)
		case *syntax.SglQuoted:
			b.WriteByte('\'')
			b.WriteString(p.Value)
			b.WriteByte('\'')
		case *syntax.DblQuoted:
			b.WriteByte('"')
			for _, inner := range p.Parts {
				if lit, ok := inner.(*syntax.Lit); ok {
					b.WriteString(lit.Value)
				}
				if param, ok := inner.(*syntax.ParamExp); ok {
					b.WriteString("$" + param.Param.Value)
				}
			}
			b.WriteByte('"')
		case *syntax.ParamExp:
			b.WriteString("$" + p.Param.Value)
		}
	}
	return b.String()
}

// SplitStatements splits a raw input line into the semicolon-separated
// statements it contains, treating `;` as a statement boundary everywhere
// outside single and double quotes. A whole-line comment is left intact so
// ParseLine's own "#" check still sees it. This runs ahead of ParseLine so a
// single batch line like "let x = 3; echo $x" yields two ast.Statement
// values instead of being folded into one Pipeline's stages.
func SplitStatements(line string) []string {
	if strings.HasPrefix(strings.TrimSpace(line), "#") {
		return []string{line}
	}

	var out []string
	var cur strings.Builder
	inSingle, inDouble := false, false

	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			cur.WriteByte(c)
		case c == '"' && !inSingle:
			inDouble = !inDouble
			cur.WriteByte(c)
		case c == ';' && !inSingle && !inDouble:
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return out
}

func splitFirstWord(s string) (first, rest string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexAny(s, " \t")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx+1:]
}

func fields(s string) []string {
	return strings.Fields(s)
}
