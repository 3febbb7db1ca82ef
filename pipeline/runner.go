// Package pipeline runs a parsed ast.Pipeline as one or more OS processes,
// wiring stages together the way a shell's pipe operator does.
package pipeline

import (
	"context"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ionshell/flowexec/ast"
)

// Expander resolves a stage's words (variables, globs) into final argv
// strings before the process is spawned.
type Expander interface {
	ExpandString(text string, glob bool) []string
}

// Runner executes ast.Pipeline values as real processes. It implements
// flow.PipelineRunner.
type Runner struct {
	Expand      Expander
	Stdout      io.Writer
	Stderr      io.Writer
	Timeout     time.Duration
	IdleTimeout time.Duration
	Log         *zap.Logger
}

// NewRunner returns a Runner writing to the process's own stdout/stderr.
func NewRunner(expand Expander, log *zap.Logger) *Runner {
	return &Runner{Expand: expand, Stdout: os.Stdout, Stderr: os.Stderr, Log: log}
}

// RunPipeline resolves every stage's argv, wires consecutive stages'
// stdout to the next stage's stdin the way a shell pipe does, and returns
// the status of the last stage. Negate flips a zero status to 1 and vice
// versa, per the `not` pipeline prefix. ok is false only when a stage could
// not even be started (bad argv, missing binary).
func (r *Runner) RunPipeline(p *ast.Pipeline) (int, bool) {
	if len(p.Stages) == 0 {
		return 0, true
	}

	argvs := make([][]string, len(p.Stages))
	for i, stage := range p.Stages {
		var argv []string
		for _, word := range stage.Words {
			argv = append(argv, r.Expand.ExpandString(word, true)...)
		}
		if len(argv) == 0 {
			return 1, false
		}
		argvs[i] = argv
	}

	status, ok := r.runChain(argvs)
	if ok && p.Negate {
		if status == 0 {
			status = 1
		} else {
			status = 0
		}
	}
	return status, ok
}

// runChain spawns one exec.Cmd per stage, connecting each stage's stdout to
// the next stage's stdin via io.Pipe, and waits for all of them in order.
// On total timeout or idle timeout it kills every stage's process group.
func (r *Runner) runChain(argvs [][]string) (int, bool) {
	n := len(argvs)
	cmds := make([]*exec.Cmd, n)
	closers := make([]*io.PipeWriter, n)

	ctx, cancel := r.newContext()
	defer cancel()

	var stdin io.Reader = os.Stdin
	for i, argv := range argvs {
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		if runtime.GOOS != "windows" {
			cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		}
		cmd.Stdin = stdin
		cmd.Stderr = r.Stderr

		if i == n-1 {
			cmd.Stdout = r.Stdout
		} else {
			pr, pw := io.Pipe()
			cmd.Stdout = pw
			closers[i] = pw
			stdin = pr
		}
		cmds[i] = cmd
	}

	for i, cmd := range cmds {
		if err := cmd.Start(); err != nil {
			if r.Log != nil {
				r.Log.Error("pipeline stage failed to start", zap.Int("stage", i), zap.Error(err))
			}
			killAll(cmds[:i])
			return 1, false
		}
	}

	activity := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		var lastErr error
		for i, cmd := range cmds {
			err := cmd.Wait()
			if closers[i] != nil {
				_ = closers[i].Close()
			}
			select {
			case activity <- struct{}{}:
			default:
			}
			if i == len(cmds)-1 {
				lastErr = err
			}
		}
		done <- lastErr
	}()

	waitErr, timedOut := r.wait(ctx, cmds, done, activity)

	if timedOut {
		return 124, true
	}
	if waitErr == nil {
		return 0, true
	}
	if ee, ok := waitErr.(*exec.ExitError); ok {
		if status, ok2 := ee.Sys().(interface{ ExitStatus() int }); ok2 {
			return status.ExitStatus(), true
		}
	}
	return 1, true
}

// wait blocks until every stage finishes, the context's total timeout
// fires, or IdleTimeout elapses with no stage making progress.
func (r *Runner) wait(ctx context.Context, cmds []*exec.Cmd, done chan error, activity chan struct{}) (error, bool) {
	if r.IdleTimeout <= 0 {
		select {
		case err := <-done:
			return err, false
		case <-ctx.Done():
			killAll(cmds)
			return <-done, ctx.Err() == context.DeadlineExceeded
		}
	}

	idleTimer := time.NewTimer(r.IdleTimeout)
	defer idleTimer.Stop()
	for {
		select {
		case <-activity:
			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(r.IdleTimeout)
		case <-idleTimer.C:
			killAll(cmds)
			return <-done, true
		case <-ctx.Done():
			killAll(cmds)
			return <-done, ctx.Err() == context.DeadlineExceeded
		case err := <-done:
			return err, false
		}
	}
}

func (r *Runner) newContext() (context.Context, context.CancelFunc) {
	if r.Timeout > 0 {
		return context.WithTimeout(context.Background(), r.Timeout)
	}
	return context.WithCancel(context.Background())
}

func killAll(cmds []*exec.Cmd) {
	for _, cmd := range cmds {
		if cmd == nil || cmd.Process == nil {
			continue
		}
		if runtime.GOOS != "windows" {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		} else {
			_ = exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(cmd.Process.Pid)).Run()
		}
	}
}
