package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Melevir/opensource-watchman/internal/logger"
)

// Exit codes returned by the CLI.
const (
	exitHasErrors    = 1
	exitConfigError  = 2
	exitRuntimeError = 3
)

// exitError carries a process exit code through cobra. A nil err exits
// silently.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

type rootFlags struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "watchman",
		Short:         "Watchman audits open source repositories against maintenance rules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(newAuditCmd(flags))
	cmd.AddCommand(newPlanCmd())
	cmd.AddCommand(newRulesCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// newLogger writes to w, using the console format when w is a terminal.
func newLogger(flags *rootFlags, w io.Writer) (*logger.Logger, error) {
	level := "warn"
	if flags.verbose {
		level = "debug"
	}

	humanReadable := false
	if file, ok := w.(*os.File); ok {
		humanReadable = term.IsTerminal(int(file.Fd()))
	}

	return logger.New(logger.Options{
		Level:         level,
		HumanReadable: humanReadable,
		Writer:        w,
		Component:     "watchman",
	})
}
