// Package expand turns unexpanded words from the parser into concrete
// strings: variable substitution, arithmetic, and globbing, using
// mvdan.cc/sh/v3/expand as the underlying engine.
package expand

import (
	"os"
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"

	"github.com/ionshell/flowexec/flow"
	"github.com/ionshell/flowexec/state"
)

// Expander expands words against a variable scope. It implements
// flow.Expander and pipeline.Expander.
type Expander struct {
	Scope *state.Scope
}

// New returns an Expander reading from scope.
func New(scope *state.Scope) *Expander {
	return &Expander{Scope: scope}
}

// ExpandString parses text as a single shell word and expands it. When glob
// is true, patterns like "*.go" are resolved against the filesystem;
// otherwise they are left literal. Pipeline argv words and the words of a
// multi-word for-loop value list are expanded with glob on; match subjects,
// case patterns and a single-word for-loop value with it off.
func (e *Expander) ExpandString(text string, glob bool) []string {
	word, ok := parseWord(text)
	if !ok {
		return []string{text}
	}

	cfg := &expand.Config{Env: e.environ()}
	if glob {
		cfg.ReadDir2 = os.ReadDir
	}

	fields, err := expand.Fields(cfg, word)
	if err != nil {
		return []string{text}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// parseWord parses text as a lone shell word by wrapping it in a trivial
// command and pulling out its single argument. mvdan.cc/sh/v3/syntax has no
// public single-word parse entry point outside of the full statement
// grammar, so this reuses the same CallExpr path the pipeline parser does.
func parseWord(text string) (*syntax.Word, bool) {
	file, err := syntax.NewParser().Parse(strings.NewReader(text), "")
	if err != nil || len(file.Stmts) == 0 {
		return nil, false
	}
	call, ok := file.Stmts[0].Cmd.(*syntax.CallExpr)
	if !ok || len(call.Args) == 0 {
		return nil, false
	}
	return call.Args[0], true
}

// environ adapts the variable scope to expand.WriteEnviron, the read
// interface mvdan.cc/sh/v3/expand expects for variable lookups.
func (e *Expander) environ() expand.WriteEnviron {
	return scopeEnviron{scope: e.Scope}
}

type scopeEnviron struct {
	scope *state.Scope
}

func (s scopeEnviron) Get(name string) expand.Variable {
	if v, ok := s.scope.Get(name); ok {
		return expand.Variable{Exported: s.scope.IsExported(name), Kind: expand.String, Str: v}
	}
	if v, ok := os.LookupEnv(name); ok {
		return expand.Variable{Exported: true, Kind: expand.String, Str: v}
	}
	return expand.Variable{}
}

func (s scopeEnviron) Set(name string, vr expand.Variable) error {
	s.scope.Set(name, vr.Str)
	return nil
}

func (s scopeEnviron) Each(fn func(name string, vr expand.Variable) bool) {
	for name, val := range s.scope.All() {
		if !fn(name, expand.Variable{Exported: s.scope.IsExported(name), Kind: expand.String, Str: val}) {
			return
		}
	}
}

// ForResolver turns a raw for-loop value list into one of the three shapes
// flow.ExecuteFor understands: an explicit list, a single string to split
// on whitespace, or an integer range written "N..M".
type ForResolver struct {
	Expand *Expander
}

// ResolveFor implements flow.ForResolver.
func (r ForResolver) ResolveFor(values []string) flow.ForExpression {
	if len(values) == 1 {
		if start, end, ok := parseRange(values[0]); ok {
			return flow.ForExpression{Kind: flow.ForRange, Start: start, End: end}
		}
		return flow.ForExpression{Kind: flow.ForNormal, Text: values[0]}
	}

	var out []string
	for _, v := range values {
		out = append(out, r.Expand.ExpandString(v, true)...)
	}
	return flow.ForExpression{Kind: flow.ForMultiple, Values: out}
}

// parseRange recognizes ion's "start..end" and "start...end" range literals:
// the former half-open, the latter inclusive of end.
func parseRange(raw string) (start, end int, ok bool) {
	inclusive := false
	sep := ".."
	idx := strings.Index(raw, "...")
	if idx >= 0 {
		inclusive = true
		sep = "..."
	} else {
		idx = strings.Index(raw, "..")
		if idx < 0 {
			return 0, 0, false
		}
	}

	left := raw[:idx]
	right := raw[idx+len(sep):]
	s, err1 := strconv.Atoi(strings.TrimSpace(left))
	e, err2 := strconv.Atoi(strings.TrimSpace(right))
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	if inclusive {
		e++
	}
	return s, e, true
}
