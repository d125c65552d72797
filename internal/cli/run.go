package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opentab/possync/internal/config"
	"github.com/opentab/possync/internal/platform"
	"github.com/opentab/possync/internal/posstore"
	"github.com/opentab/possync/internal/realtime"
	"github.com/opentab/possync/internal/reconcile"
)

// NewRunCommand creates the run command: the long-lived sync daemon.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve the platform's realtime channel",
		Long: `Start the sync daemon. It connects to the platform's push channel,
resyncs on every (re)connect, and reconciles order, payment, checkin,
member and booking pushes through the POS adapter until interrupted.

Example:
  possync run --config possync.yaml
  POSSYNC_TOKEN=... possync run -c possync.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, rootOpts)
		},
	}
	return cmd
}

func runDaemon(cmd *cobra.Command, opts *RootOptions) error {
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

	channel, err := realtime.NewChannel(realtime.ChannelConfig{
		Venue:           cfg.Venue,
		Transport:       &realtime.SocketTransport{Addr: cfg.SocketAddr},
		WatchdogTimeout: cfg.WatchdogTimeout,
		Logger:          log,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build channel", err)
	}
	channel.Register(eng)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.WithField("signal", sig).Info("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	log.WithFields(logrus.Fields{
		"venue": cfg.Venue,
		"mode":  cfg.Mode,
	}).Info("daemon starting")

	if err := channel.Run(ctx); err != nil && err != context.Canceled {
		return WrapExitError(ExitFailure, "channel error", err)
	}

	log.Info("daemon stopped")
	return nil
}

// buildEngine assembles the store, adapter, gateway client and
// reconciliation engine from a loaded config.
func buildEngine(cfg config.Config, opts *RootOptions) (*reconcile.Engine, *posstore.Store, error) {
	log := opts.Logger

	store, err := posstore.Open(cfg.StorePath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	adapter := posstore.NewAdapter(store)

	client, err := platform.NewClient(platform.Config{
		BaseURL: cfg.BaseURL,
		Token:   cfg.Token,
		Venue:   cfg.Venue,
		Logger:  log,
	})
	if err != nil {
		store.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to build platform client", err)
	}

	eng, err := reconcile.New(reconcile.Deps{
		Gateway: client,
		POS:     adapter,
		Caps:    adapter.Capabilities(),
		Mode:    cfg.CaptureMode(),
		Logger:  log,
	})
	if err != nil {
		store.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to build engine", err)
	}
	return eng, store, nil
}
