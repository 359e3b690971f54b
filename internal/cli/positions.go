package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vadiminshakov/watchtower/internal/domain"
	"github.com/vadiminshakov/watchtower/internal/services/ledger"
	"github.com/vadiminshakov/watchtower/internal/storage/tradejournal"
)

func newPositionsCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "List open positions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, store, err := openStore(cmd, rc)
			if err != nil {
				return err
			}
			defer store.Close()

			repo := ledger.NewRepository(store, rc.scope())
			positions, err := repo.Positions(commandContext(cmd))
			if err != nil {
				return err
			}
			if len(positions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no open positions")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tHOLDING\tAVG BUY\tCOST\tREALIZED\tOPENED")
			for _, p := range positions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					p.Symbol,
					p.Holding.String(),
					p.AverageBuyPrice.StringFixed(8),
					p.CostBasis().StringFixed(2),
					p.RealizedPnL.StringFixed(2),
					p.OpenDate.Format(time.RFC3339),
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&rc.Virtual, "virtual", false, "Show the paper-trading ledger")
	return cmd
}

func newHistoryCmd(rc *RootConfig) *cobra.Command {
	var (
		since time.Duration
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List closed and partially closed trades, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, store, err := openStore(cmd, rc)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := commandContext(cmd)
			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}

			var trades []domain.TradeHistoryEntry
			if cfg.JournalPath != "" {
				journal, err := tradejournal.NewSQLite(cfg.JournalPath)
				if err != nil {
					return err
				}
				defer journal.Close()

				if trades, err = journal.List(ctx, rc.scope(), from, limit); err != nil {
					return err
				}
			} else {
				history, err := ledger.NewRepository(store, rc.scope()).History(ctx)
				if err != nil {
					return err
				}
				trades = newestFirst(history, from, limit)
			}

			if len(trades) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no trades")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CLOSED\tASSET\tAMOUNT\tENTRY\tEXIT\tPNL\tPNL %\tDAYS\tPARTIAL")
			for _, t := range trades {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
					t.ClosedAt.Format(time.RFC3339),
					t.Asset,
					t.Amount.String(),
					t.EntryPrice.StringFixed(8),
					t.ExitPrice.StringFixed(8),
					t.PnL.StringFixed(2),
					t.PnLPercent().StringFixed(2),
					t.DurationDays.String(),
					t.Partial,
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&rc.Virtual, "virtual", false, "Show the paper-trading ledger")
	cmd.Flags().DurationVar(&since, "since", 0, "Only trades closed within this window (e.g. 24h)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of trades, 0 for all")
	return cmd
}

// newestFirst filters entries closed at or after from, reverses the
// append order and applies limit.
func newestFirst(history []domain.TradeHistoryEntry, from time.Time, limit int) []domain.TradeHistoryEntry {
	out := make([]domain.TradeHistoryEntry, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].ClosedAt.Before(from) {
			continue
		}
		out = append(out, history[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
