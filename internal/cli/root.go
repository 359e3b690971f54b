// Package cli implements the watchtower command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/vadiminshakov/watchtower/config"
	"github.com/vadiminshakov/watchtower/internal"
	"github.com/vadiminshakov/watchtower/internal/storage/keys"
	"github.com/vadiminshakov/watchtower/internal/storage/kv"
	"go.uber.org/zap"
)

// RootConfig flags shared by every command.
type RootConfig struct {
	ConfigPath string
	Debug      bool
	Virtual    bool
}

// scope returns the ledger scope selected by --virtual.
func (rc *RootConfig) scope() string {
	if rc.Virtual {
		return keys.VirtualScope
	}
	return ""
}

func NewRootCmd() *cobra.Command {
	rc := &RootConfig{}

	cmd := &cobra.Command{
		Use:           "watchtower",
		Short:         "Watchtower: portfolio, price movement and alert monitor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&rc.ConfigPath, "config", config.DefaultPath, "Path to config file")
	cmd.PersistentFlags().BoolVar(&rc.Debug, "debug", false, "Enable debug logging and diagnostic notifications")

	cmd.AddCommand(
		newRunCmd(rc),
		newSetupCmd(rc),
		newPositionsCmd(rc),
		newHistoryCmd(rc),
		newAlertsCmd(rc),
		newThresholdsCmd(rc),
		newVirtualCmd(rc),
	)

	return cmd
}

func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openStore reads the configuration without validating credentials and
// opens the state store it points to.
func openStore(cmd *cobra.Command, rc *RootConfig) (config.Config, kv.Store, error) {
	cfg, err := config.Read(rc.ConfigPath)
	if err != nil {
		return config.Config{}, nil, err
	}

	store, err := internal.OpenStore(commandContext(cmd), cfg.Store)
	if err != nil {
		return config.Config{}, nil, errors.Wrap(err, "failed to open state store")
	}
	return cfg, store, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
