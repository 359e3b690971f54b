package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/vadiminshakov/watchtower/internal/domain"
	"github.com/vadiminshakov/watchtower/internal/services/alerts"
)

func newAlertsCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Manage one-shot price alerts",
	}
	cmd.AddCommand(newAlertsAddCmd(rc), newAlertsListCmd(rc), newAlertsRemoveCmd(rc))
	return cmd
}

func newAlertsAddCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:     "add <BASE-QUOTE> <above|below> <price>",
		Short:   "Add a price alert",
		Example: "watchtower alerts add BTC-USDT above 70000",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			condition, err := domain.ParseAlertCondition(args[1])
			if err != nil {
				return err
			}
			price, err := decimal.NewFromString(args[2])
			if err != nil {
				return errors.Wrapf(err, "invalid price %q", args[2])
			}

			_, store, err := openStore(cmd, rc)
			if err != nil {
				return err
			}
			defer store.Close()

			alert, err := alerts.NewBook(store).Add(commandContext(cmd), args[0], condition, price)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "alert %s: %s %s %s\n", alert.ID, alert.InstID, alert.Condition, alert.Price.String())
			return nil
		},
	}
}

func newAlertsListCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "list [BASE-QUOTE]",
		Short: "List pending alerts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openStore(cmd, rc)
			if err != nil {
				return err
			}
			defer store.Close()

			book := alerts.NewBook(store)
			ctx := commandContext(cmd)

			var pending []domain.PriceAlert
			if len(args) == 1 {
				pair, err := domain.ParsePair(args[0])
				if err != nil {
					return err
				}
				pending, err = book.List(ctx, pair.InstID())
				if err != nil {
					return err
				}
			} else if pending, err = book.ListAll(ctx); err != nil {
				return err
			}

			if len(pending) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no alerts")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tINSTRUMENT\tCONDITION\tPRICE\tCREATED")
			for _, a := range pending {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.InstID, a.Condition, a.Price.String(), a.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func newAlertsRemoveCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <BASE-QUOTE> <id>",
		Aliases: []string{"remove"},
		Short:   "Remove a pending alert",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := domain.ParsePair(args[0])
			if err != nil {
				return err
			}

			_, store, err := openStore(cmd, rc)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := alerts.NewBook(store).Remove(commandContext(cmd), pair.InstID(), args[1])
			if err != nil {
				return err
			}
			if !removed {
				return errors.Errorf("alert %s not found for %s", args[1], pair.InstID())
			}

			fmt.Fprintf(cmd.OutOrStdout(), "alert %s removed\n", args[1])
			return nil
		},
	}
}
