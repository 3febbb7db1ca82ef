// Package session wires the flow, parse, pipeline, expand, and state
// packages into one running shell and drives it line by line.
package session

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ionshell/flowexec/expand"
	"github.com/ionshell/flowexec/flow"
	"github.com/ionshell/flowexec/parse"
	"github.com/ionshell/flowexec/pipeline"
	"github.com/ionshell/flowexec/signals"
	"github.com/ionshell/flowexec/state"
)

// Session owns one shell's full collaborator graph and its accumulator
// state across however many lines of input it is fed.
type Session struct {
	Shell  *flow.Shell
	Config Config
	Log    *zap.Logger

	parser  *parse.LineParser
	scope   *state.Scope
	funcs   *state.FunctionTable
	signals *signals.OSSource
}

// New builds a Session from cfg, wiring a fresh variable scope, function
// table, process runner, and expander, the way main() in a real shell
// binary would.
func New(cfg Config, log *zap.Logger) *Session {
	scope := state.NewScope()
	for k, v := range cfg.Vars {
		scope.Set(k, v)
	}
	funcs := state.NewFunctionTable()
	exp := expand.New(scope)
	runner := pipeline.NewRunner(exp, log)
	sigSrc := signals.NewOSSource()

	diag := &logDiagnostics{log: log}
	exiter := &processExiter{}

	sh := flow.NewShell(runner, exp, expand.ForResolver{Expand: exp}, scope, funcs, sigSrc, exiter, diag)
	if cfg.ErrExit {
		sh.Flags |= flow.ErrExit
	}

	return &Session{
		Shell:   sh,
		Config:  cfg,
		Log:     log,
		parser:  parse.NewLineParser(),
		scope:   scope,
		funcs:   funcs,
		signals: sigSrc,
	}
}

// Close releases OS-level resources (the signal hook).
func (s *Session) Close() {
	s.signals.Stop()
}

// EvalLines feeds a fixed batch of lines through OnCommand, the same entry
// point real interactive input uses.
func (s *Session) EvalLines(lines []string) error {
	iter := parse.NewLineIterator(s.parser, lines)
	s.Shell.OnCommand(iter)
	return iter.Err()
}

// RunREPL reads lines from r until EOF, feeding each one through
// OnCommand, printing prompt to w between lines when interactive is true.
func (s *Session) RunREPL(r io.Reader, w io.Writer, interactive bool) error {
	scanner := bufio.NewScanner(r)
	for {
		if interactive {
			io.WriteString(w, s.prompt())
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "exit" {
			return nil
		}
		if err := s.EvalLines([]string{line}); err != nil {
			s.Log.Warn("syntax error", zap.Error(err))
		}
	}
}

func (s *Session) prompt() string {
	return Interpolate(s.Config.Prompt, s.scope.All())
}

// logDiagnostics reports structural errors as an "ion: syntax error: <detail>"
// line on stderr and as a zap log entry.
type logDiagnostics struct {
	log *zap.Logger
}

func (d *logDiagnostics) SyntaxError(detail string) {
	fmt.Fprintf(os.Stderr, "ion: syntax error: %s\n", detail)
	d.log.Error("ion: syntax error", zap.String("detail", detail))
}

// processExiter terminates the host process. The executor calls it when
// ErrExit is set and a pipeline fails, and when a fatal signal arrives.
type processExiter struct{}

func (processExiter) Exit(status int) {
	os.Exit(status)
}

// DefaultIdleTimeout is zero, the value a Session's runner is built with
// (NewRunner leaves Runner.IdleTimeout unset): a pipeline stage is never
// killed for inactivity.
const DefaultIdleTimeout = 0 * time.Second
