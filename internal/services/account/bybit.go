package account

import (
	"context"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/watchtower/internal/domain"
)

// BybitGateway unified account wallet balances.
type BybitGateway struct {
	client *bybit.Client
}

func NewBybitGateway(client *bybit.Client) *BybitGateway {
	return &BybitGateway{client: client}
}

func (g *BybitGateway) GetBalances(context.Context) (map[string]decimal.Decimal, error) {
	res, err := g.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5("UNIFIED"), nil)
	if err != nil {
		return nil, domain.NewUpstreamError("bybit", "walletBalance", "", err)
	}

	balances := make(map[string]decimal.Decimal)
	for _, acc := range res.Result.List {
		for _, coin := range acc.Coin {
			if err := put(balances, string(coin.Coin), coin.WalletBalance); err != nil {
				return nil, domain.NewUpstreamError("bybit", "walletBalance", "", errors.Wrapf(err, "parse %s balance", coin.Coin))
			}
		}
	}

	return balances, nil
}
