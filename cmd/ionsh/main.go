// Command ionsh is the shell's executable entry point: a REPL by default,
// or non-interactive execution of a script file or -c expression.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ionshell/flowexec/session"
)

var (
	rcFile  string
	command string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ionsh [script]",
		Short: "ionsh runs scripts written in the ion control-flow language",
		RunE:  runRoot,
	}
	root.Flags().StringVar(&rcFile, "rc", "", "path to a YAML rc file")
	root.Flags().StringVarP(&command, "command", "c", "", "run COMMAND instead of reading a script")
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the ionsh version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

const version = "0.1.0"

func runRoot(cmd *cobra.Command, args []string) error {
	cfg := session.DefaultConfig()
	if rcFile != "" {
		var err error
		cfg, err = session.LoadConfig(rcFile)
		if err != nil {
			return fmt.Errorf("loading rc file: %w", err)
		}
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	sess := session.New(cfg, log)
	defer sess.Close()

	switch {
	case command != "":
		return sess.EvalLines(splitLines(command))
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		return sess.EvalLines(splitLines(string(data)))
	default:
		return sess.RunREPL(os.Stdin, os.Stdout, isTerminal())
	}
}

// newLogger builds a console-encoded zap logger at level, falling back to
// info for an empty or unrecognized rc-file log_level.
func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// splitLines only breaks text on newlines; semicolon-separated statements
// within each resulting line are split later by parse.NewLineIterator
// (parse.SplitStatements), which both EvalLines call sites in runRoot route
// through via sess.EvalLines.
func splitLines(text string) []string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

func isTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
