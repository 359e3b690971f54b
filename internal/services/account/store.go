package account

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/watchtower/internal/domain"
	"github.com/vadiminshakov/watchtower/internal/storage/kv"
)

// StoreAccount balances kept in the state store, used for virtual trades.
type StoreAccount struct {
	store kv.Store
	key   string
}

func NewStoreAccount(store kv.Store, key string) *StoreAccount {
	return &StoreAccount{store: store, key: key}
}

func (a *StoreAccount) GetBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	balances, _, err := kv.GetJSON[map[string]decimal.Decimal](ctx, a.store, a.key)
	if errors.Is(err, kv.ErrNotFound) {
		return map[string]decimal.Decimal{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load virtual balances")
	}
	return balances, nil
}

// SetBalance records the held amount of symbol; zero removes it.
func (a *StoreAccount) SetBalance(ctx context.Context, symbol string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return errors.New("balance must not be negative")
	}
	symbol = domain.NormalizeSymbol(symbol)

	return kv.Update(ctx, a.store, a.key, func(cur *map[string]decimal.Decimal) (*map[string]decimal.Decimal, error) {
		next := make(map[string]decimal.Decimal)
		if cur != nil {
			for k, v := range *cur {
				next[k] = v
			}
		}
		if amount.IsZero() {
			delete(next, symbol)
		} else {
			next[symbol] = amount
		}
		return &next, nil
	})
}

// Adjust adds delta to the held amount of symbol.
func (a *StoreAccount) Adjust(ctx context.Context, symbol string, delta decimal.Decimal) error {
	symbol = domain.NormalizeSymbol(symbol)

	return kv.Update(ctx, a.store, a.key, func(cur *map[string]decimal.Decimal) (*map[string]decimal.Decimal, error) {
		next := make(map[string]decimal.Decimal)
		if cur != nil {
			for k, v := range *cur {
				next[k] = v
			}
		}
		amount := next[symbol].Add(delta)
		if amount.IsNegative() {
			return nil, errors.Errorf("insufficient virtual %s balance", symbol)
		}
		if amount.IsZero() {
			delete(next, symbol)
		} else {
			next[symbol] = amount
		}
		return &next, nil
	})
}
