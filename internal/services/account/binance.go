package account

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/watchtower/internal/domain"
)

// BinanceGateway spot balances; free and locked amounts are summed.
type BinanceGateway struct {
	client *binance.Client
}

func NewBinanceGateway(client *binance.Client) *BinanceGateway {
	return &BinanceGateway{client: client}
}

func (g *BinanceGateway) GetBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	account, err := g.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, domain.NewUpstreamError("binance", "account", "", err)
	}

	balances := make(map[string]decimal.Decimal)
	for _, b := range account.Balances {
		if err := put(balances, b.Asset, b.Free); err != nil {
			return nil, domain.NewUpstreamError("binance", "account", "", errors.Wrapf(err, "parse %s free balance", b.Asset))
		}
		if err := put(balances, b.Asset, b.Locked); err != nil {
			return nil, domain.NewUpstreamError("binance", "account", "", errors.Wrapf(err, "parse %s locked balance", b.Asset))
		}
	}

	return balances, nil
}
