package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/vadiminshakov/watchtower/config"
	"github.com/vadiminshakov/watchtower/internal/services/movement"
	"github.com/vadiminshakov/watchtower/internal/storage/kv"
	"go.uber.org/zap"
)

func newThresholdsCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thresholds",
		Short: "Manage price movement thresholds",
	}
	cmd.AddCommand(newThresholdsSetCmd(rc), newThresholdsClearCmd(rc), newThresholdsShowCmd(rc))
	return cmd
}

// settingsDetector builds a detector that is only used to read and write thresholds.
func settingsDetector(cfg config.Config, store kv.Store) *movement.Detector {
	return movement.NewDetector(zap.NewNop(), store, nil, nil, nil, nil, movement.Config{
		DefaultThreshold: cfg.MovementThreshold,
		Watchlist:        cfg.Watchlist,
	})
}

func newThresholdsSetCmd(rc *RootConfig) *cobra.Command {
	var symbol string

	cmd := &cobra.Command{
		Use:     "set <percent>",
		Short:   "Set the global threshold, or a per-symbol override with --symbol",
		Example: "watchtower thresholds set 3\nwatchtower thresholds set 8 --symbol doge",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pct, err := decimal.NewFromString(args[0])
			if err != nil {
				return errors.Wrapf(err, "invalid percent %q", args[0])
			}

			cfg, store, err := openStore(cmd, rc)
			if err != nil {
				return err
			}
			defer store.Close()

			detector := settingsDetector(cfg, store)
			ctx := commandContext(cmd)
			if symbol == "" {
				err = detector.SetGlobal(ctx, pct)
			} else {
				err = detector.SetOverride(ctx, symbol, pct)
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "threshold updated")
			return nil
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "Override the threshold of one symbol")
	return cmd
}

func newThresholdsClearCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <symbol>",
		Short: "Remove the per-symbol override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := openStore(cmd, rc)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := settingsDetector(cfg, store).ClearOverride(commandContext(cmd), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "override cleared")
			return nil
		},
	}
}

func newThresholdsShowCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show thresholds and current baselines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, store, err := openStore(cmd, rc)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := commandContext(cmd)
			detector := settingsDetector(cfg, store)
			settings, err := detector.Settings(ctx)
			if err != nil {
				return err
			}

			symbols := make([]string, 0, len(settings.Overrides)+len(cfg.Watchlist))
			seen := make(map[string]struct{})
			for _, s := range cfg.Watchlist {
				seen[s] = struct{}{}
				symbols = append(symbols, s)
			}
			for s := range settings.Overrides {
				if _, ok := seen[s]; !ok {
					symbols = append(symbols, s)
				}
			}
			sort.Strings(symbols)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "global threshold: %s%%\n", settings.Global.String())
			if len(symbols) == 0 {
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tTHRESHOLD %\tBASELINE")
			for _, s := range symbols {
				baseline := "-"
				b, err := detector.Baseline(ctx, s)
				if err != nil {
					return err
				}
				if b != nil {
					baseline = b.Price.String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", s, settings.Threshold(s).String(), baseline)
			}
			return w.Flush()
		},
	}
}
