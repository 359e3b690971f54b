// Package account fetches current balances from exchanges.
package account

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/watchtower/internal/domain"
)

// Gateway read-only balance access. Callers must skip the cycle on error,
// never treat a failure as zero balances.
type Gateway interface {
	GetBalances(ctx context.Context) (map[string]decimal.Decimal, error)
}

// put adds a parsed non-zero amount to balances.
func put(balances map[string]decimal.Decimal, symbol, amount string) error {
	if amount == "" {
		return nil
	}
	v, err := decimal.NewFromString(amount)
	if err != nil {
		return err
	}
	if v.IsZero() {
		return nil
	}
	key := domain.NormalizeSymbol(symbol)
	balances[key] = balances[key].Add(v)
	return nil
}
