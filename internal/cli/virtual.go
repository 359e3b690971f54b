package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/vadiminshakov/watchtower/internal/services/account"
	"github.com/vadiminshakov/watchtower/internal/storage/keys"
	"github.com/vadiminshakov/watchtower/internal/storage/kv"
)

func newVirtualCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "virtual",
		Short: "Edit paper-trading balances picked up by the virtual ledger",
	}
	cmd.AddCommand(
		newVirtualBalanceCmd(rc, "set <symbol> <amount>", "Set the held amount of a symbol", func(a *account.StoreAccount, cmd *cobra.Command, symbol string, v decimal.Decimal) error {
			return a.SetBalance(commandContext(cmd), symbol, v)
		}),
		newVirtualBalanceCmd(rc, "adjust <symbol> <delta>", "Add a signed delta to the held amount of a symbol", func(a *account.StoreAccount, cmd *cobra.Command, symbol string, v decimal.Decimal) error {
			return a.Adjust(commandContext(cmd), symbol, v)
		}),
		newVirtualShowCmd(rc),
	)
	return cmd
}

func virtualAccount(store kv.Store) *account.StoreAccount {
	return account.NewStoreAccount(store, keys.ForScope(keys.VirtualScope).Balances())
}

func newVirtualBalanceCmd(
	rc *RootConfig,
	use, short string,
	apply func(a *account.StoreAccount, cmd *cobra.Command, symbol string, v decimal.Decimal) error,
) *cobra.Command {
	return &cobra.Command{
		Use:     use,
		Short:   short,
		Args:    cobra.ExactArgs(2),
		Example: "watchtower virtual set btc 0.5\nwatchtower virtual adjust -- btc -0.25",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := decimal.NewFromString(args[1])
			if err != nil {
				return errors.Wrapf(err, "invalid amount %q", args[1])
			}

			_, store, err := openStore(cmd, rc)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := apply(virtualAccount(store), cmd, args[0], v); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "virtual balance updated")
			return nil
		},
	}
}

func newVirtualShowCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show paper-trading balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, store, err := openStore(cmd, rc)
			if err != nil {
				return err
			}
			defer store.Close()

			balances, err := virtualAccount(store).GetBalances(commandContext(cmd))
			if err != nil {
				return err
			}
			if len(balances) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no virtual balances")
				return nil
			}

			symbols := make([]string, 0, len(balances))
			for s := range balances {
				symbols = append(symbols, s)
			}
			sort.Strings(symbols)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tAMOUNT")
			for _, s := range symbols {
				fmt.Fprintf(w, "%s\t%s\n", s, balances[s].String())
			}
			return w.Flush()
		},
	}
}
