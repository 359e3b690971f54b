package marketdata

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"github.com/vadiminshakov/watchtower/internal/domain"
)

const hyperliquidProvider = "hyperliquid"

// HyperliquidGateway mid prices and candles keyed by coin name.
type HyperliquidGateway struct {
	info *hyperliquid.Info
	now  func() time.Time
}

func NewHyperliquidGateway(info *hyperliquid.Info) *HyperliquidGateway {
	return &HyperliquidGateway{info: info, now: time.Now}
}

func (g *HyperliquidGateway) GetPrices(ctx context.Context) (map[string]domain.Ticker, error) {
	mids, err := g.info.AllMids(ctx)
	if err != nil {
		return nil, domain.NewUpstreamError(hyperliquidProvider, "allMids", "", err)
	}

	prices := make(map[string]domain.Ticker, len(mids))
	for coin, mid := range mids {
		price, err := decimal.NewFromString(mid)
		if err != nil || !price.IsPositive() {
			continue
		}
		prices[domain.NormalizeSymbol(coin)] = domain.Ticker{Price: price}
	}

	return prices, nil
}

func (g *HyperliquidGateway) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]decimal.Decimal, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}
	interval = lowerInterval(interval)
	dur, err := parseIntervalToDuration(interval)
	if err != nil {
		return nil, err
	}

	endMs := g.now().UnixMilli()
	// two extra candles of slack for window rounding
	startMs := endMs - (int64(limit)+2)*dur.Milliseconds()

	candles, err := g.info.CandlesSnapshot(ctx, domain.NormalizeSymbol(symbol), interval, startMs, endMs)
	if err != nil {
		return nil, domain.NewUpstreamError(hyperliquidProvider, "candleSnapshot", "", err)
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	raw := make([]string, len(candles))
	for i, c := range candles {
		raw[i] = c.Close
	}

	return parseCloses(hyperliquidProvider, "candleSnapshot", raw)
}

func parseIntervalToDuration(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, errors.Errorf("invalid interval: %q", interval)
	}

	unit := interval[len(interval)-1]
	var n int64
	for _, r := range interval[:len(interval)-1] {
		if r < '0' || r > '9' {
			return 0, errors.Errorf("invalid interval number: %s", interval)
		}
		n = n*10 + int64(r-'0')
	}

	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, errors.Errorf("unsupported interval unit: %c", unit)
	}
}
