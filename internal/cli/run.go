package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/vadiminshakov/watchtower/config"
	"github.com/vadiminshakov/watchtower/internal"
	"github.com/vadiminshakov/watchtower/internal/setup"
	"go.uber.org/zap"
)

func newRunCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the monitoring engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(rc.ConfigPath)
			if err != nil {
				return err
			}
			if rc.Debug {
				cfg.Debug = true
			}

			l, err := newLogger(cfg.Debug)
			if err != nil {
				return errors.Wrap(err, "failed to create logger")
			}
			defer func() { _ = l.Sync() }()

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine, err := internal.NewEngine(ctx, l, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := engine.Close(); err != nil {
					l.Error("failed to close engine", zap.Error(err))
				}
			}()

			return engine.Run(ctx)
		},
	}
}

func newSetupCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive configuration wizard",
		RunE: func(*cobra.Command, []string) error {
			return setup.RunTUI(rc.ConfigPath)
		},
	}
}
