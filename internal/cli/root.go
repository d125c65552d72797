// Package cli wires the sync daemon's commands.
package cli

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Runtime failure (channel error, resync failure)
	ExitCommandError = 2 // Command error (bad config, unreachable store)
)

// ExitError carries a process exit code alongside the error.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Non-ExitError
// failures map to ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose bool
	Config  string

	// Logger is set by the root PersistentPreRun; commands log through it.
	Logger *logrus.Logger
}

// NewRootCommand creates the possync root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Logger: logrus.New()}

	cmd := &cobra.Command{
		Use:   "possync",
		Short: "POS to platform order reconciliation daemon",
		Long: `possync keeps a point of sale and a remote order/payment platform
reconciled: it serves the platform's realtime pushes, round-trips order
and payment lifecycles through the POS adapter, and resyncs state after
every reconnect.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.Logger.SetLevel(logrus.InfoLevel)
			if opts.Verbose {
				opts.Logger.SetLevel(logrus.DebugLevel)
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to YAML config file")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewResyncCommand(opts))

	return cmd
}
