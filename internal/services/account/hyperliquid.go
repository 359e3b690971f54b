package account

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"github.com/vadiminshakov/watchtower/internal/domain"
)

// HyperliquidGateway spot balances of one account address.
type HyperliquidGateway struct {
	info        *hyperliquid.Info
	accountAddr string
}

func NewHyperliquidGateway(info *hyperliquid.Info, accountAddr string) *HyperliquidGateway {
	return &HyperliquidGateway{info: info, accountAddr: accountAddr}
}

func (g *HyperliquidGateway) GetBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	st, err := g.info.SpotUserState(ctx, g.accountAddr)
	if err != nil {
		return nil, domain.NewUpstreamError("hyperliquid", "spotUserState", "", err)
	}

	balances := make(map[string]decimal.Decimal)
	for _, b := range st.Balances {
		if err := put(balances, b.Coin, b.Total); err != nil {
			return nil, domain.NewUpstreamError("hyperliquid", "spotUserState", "", errors.Wrapf(err, "parse %s balance", b.Coin))
		}
	}

	return balances, nil
}
