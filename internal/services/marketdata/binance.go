package marketdata

import (
	"context"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/watchtower/internal/domain"
)

const binanceProvider = "binance"

// BinanceGateway market data from Binance spot.
type BinanceGateway struct {
	client *binance.Client
	quote  string
}

func NewBinanceGateway(client *binance.Client, quote string) *BinanceGateway {
	return &BinanceGateway{client: client, quote: domain.NormalizeSymbol(quote)}
}

func (g *BinanceGateway) GetPrices(ctx context.Context) (map[string]domain.Ticker, error) {
	stats, err := g.client.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, domain.NewUpstreamError(binanceProvider, "ticker24h", "", err)
	}

	prices := make(map[string]domain.Ticker, len(stats))
	for _, s := range stats {
		if !strings.HasSuffix(s.Symbol, g.quote) || s.Symbol == g.quote {
			continue
		}
		last, err := decimal.NewFromString(s.LastPrice)
		if err != nil || !last.IsPositive() {
			continue
		}
		change, _ := decimal.NewFromString(s.PriceChangePercent)
		prices[strings.TrimSuffix(s.Symbol, g.quote)] = domain.Ticker{Price: last, Change24h: change}
	}

	return prices, nil
}

func (g *BinanceGateway) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]decimal.Decimal, error) {
	pair := domain.NewPair(symbol, g.quote)

	klines, err := g.client.NewKlinesService().
		Symbol(pair.Symbol()).
		Interval(lowerInterval(interval)).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, domain.NewUpstreamError(binanceProvider, "klines", "", err)
	}

	raw := make([]string, len(klines))
	for i, k := range klines {
		raw[i] = k.Close
	}

	return parseCloses(binanceProvider, "klines", raw)
}
