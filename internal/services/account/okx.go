package account

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/watchtower/internal/clients"
	"github.com/vadiminshakov/watchtower/internal/domain"
)

// OKXGateway balances of the OKX trading account.
type OKXGateway struct {
	client *clients.OKXClient
}

func NewOKXGateway(client *clients.OKXClient) *OKXGateway {
	return &OKXGateway{client: client}
}

func (g *OKXGateway) GetBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	accounts, err := g.client.Balance(ctx)
	if err != nil {
		return nil, err
	}

	balances := make(map[string]decimal.Decimal)
	for _, acc := range accounts {
		for _, d := range acc.Details {
			amount := d.CashBal
			if amount == "" {
				amount = d.Eq
			}
			if err := put(balances, d.Ccy, amount); err != nil {
				return nil, domain.NewUpstreamError("okx", "balance", "", errors.Wrapf(err, "parse %s balance", d.Ccy))
			}
		}
	}

	return balances, nil
}
