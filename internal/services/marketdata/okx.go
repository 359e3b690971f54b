package marketdata

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/watchtower/internal/clients"
	"github.com/vadiminshakov/watchtower/internal/domain"
)

const okxCloseIndex = 4

// OKXGateway market data from the OKX public REST API.
type OKXGateway struct {
	client *clients.OKXClient
	quote  string
}

func NewOKXGateway(client *clients.OKXClient, quote string) *OKXGateway {
	return &OKXGateway{client: client, quote: domain.NormalizeSymbol(quote)}
}

func (g *OKXGateway) GetPrices(ctx context.Context) (map[string]domain.Ticker, error) {
	tickers, err := g.client.Tickers(ctx, "SPOT")
	if err != nil {
		return nil, err
	}

	suffix := "-" + g.quote
	prices := make(map[string]domain.Ticker, len(tickers))
	for _, t := range tickers {
		if !strings.HasSuffix(t.InstID, suffix) {
			continue
		}
		last, err := decimal.NewFromString(t.Last)
		if err != nil || !last.IsPositive() {
			continue
		}

		ticker := domain.Ticker{Price: last}
		if open, err := decimal.NewFromString(t.Open24h); err == nil && open.IsPositive() {
			ticker.Change24h = domain.PercentChange(open, last)
		}
		prices[strings.TrimSuffix(t.InstID, suffix)] = ticker
	}

	return prices, nil
}

func (g *OKXGateway) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]decimal.Decimal, error) {
	instID := domain.NewPair(symbol, g.quote).InstID()
	rows, err := g.client.Candles(ctx, instID, upperInterval(interval), limit)
	if err != nil {
		return nil, err
	}

	// newest first on the wire
	raw := make([]string, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		if len(rows[i]) <= okxCloseIndex {
			return nil, domain.NewUpstreamError("okx", "candles", "", errors.Errorf("short candle row %d", i))
		}
		raw = append(raw, rows[i][okxCloseIndex])
	}

	return parseCloses("okx", "candles", raw)
}
