// Package main implements the harness executable: discover, build,
// install, run, and record outcomes for a set of cross-environment test
// actions.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"golang.org/x/term"

	"go.crosstest.dev/harness/internal/command"
	"go.crosstest.dev/harness/logging"
)

func newLogger(verbose bool) *logging.SinkLogger {
	level := logging.LevelInfo
	if verbose {
		level = logging.LevelDebug
	}
	return logging.NewSinkLogger(level, true, logging.NewWriterSink(os.Stderr))
}

// installSignalHandler restores terminal state on SIGINT/SIGTERM so a run
// interrupted while the console is mid-render doesn't leave the terminal
// in raw mode.
func installSignalHandler() {
	var st *term.State
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		var err error
		if st, err = term.GetState(fd); err != nil {
			st = nil
		}
	}
	command.InstallSignalHandler(os.Stderr, func(os.Signal) {
		if st != nil {
			term.Restore(fd, st)
		}
	})
}

// doMain is a separate function from main so deferred cleanup runs before
// os.Exit.
func doMain() int {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&runCmd{}, "")

	verbose := flag.Bool("verbose", false, "use verbose logging")
	flag.Parse()

	logger := newLogger(*verbose)
	ctx := logging.AttachLogger(context.Background(), logger)

	installSignalHandler()

	return int(subcommands.Execute(ctx))
}

func main() {
	os.Exit(doMain())
}
