package marketdata

import (
	"context"
	"strings"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/watchtower/internal/domain"
)

const bybitProvider = "bybit"

// BybitGateway market data from Bybit spot. 24h change is not reported.
type BybitGateway struct {
	client *bybit.Client
	quote  string
}

func NewBybitGateway(client *bybit.Client, quote string) *BybitGateway {
	return &BybitGateway{client: client, quote: domain.NormalizeSymbol(quote)}
}

func (g *BybitGateway) GetPrices(ctx context.Context) (map[string]domain.Ticker, error) {
	result, err := g.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: "spot",
	})
	if err != nil {
		return nil, domain.NewUpstreamError(bybitProvider, "tickers", "", err)
	}
	prices := make(map[string]domain.Ticker, len(result.Result.Spot.List))
	for _, t := range result.Result.Spot.List {
		symbol := string(t.Symbol)
		if !strings.HasSuffix(symbol, g.quote) || symbol == g.quote {
			continue
		}
		last, err := decimal.NewFromString(t.LastPrice)
		if err != nil || !last.IsPositive() {
			continue
		}
		prices[strings.TrimSuffix(symbol, g.quote)] = domain.Ticker{Price: last}
	}

	return prices, nil
}

func (g *BybitGateway) GetCandles(context.Context, string, string, int) ([]decimal.Decimal, error) {
	return nil, errors.Wrap(domain.ErrStaleData, "bybit candle history is not supported")
}
