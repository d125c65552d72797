package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/opentab/possync/internal/config"
)

// NewResyncCommand creates the resync command: a one-shot reconciliation
// pass without serving the realtime channel.
func NewResyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Run a single reconciliation pass and exit",
		Long: `Fetch the platform's unlinked orders, active checkins and in-flight
linked orders and replay them through the reconciliation engine once.
Safe to run repeatedly: replayed events are recognized and skipped.

Example:
  possync resync --config possync.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResync(cmd, rootOpts)
		},
	}
	return cmd
}

func runResync(cmd *cobra.Command, opts *RootOptions) error {
	log := opts.Logger

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	eng, store, err := buildEngine(cfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.WithError(closeErr).Error("error closing store")
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := eng.Resync(ctx); err != nil {
		return WrapExitError(ExitFailure, "resync failed", err)
	}
	log.Info("resync complete")
	return nil
}
