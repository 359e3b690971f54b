// Package marketdata fetches ticker snapshots and candle history from exchanges.
package marketdata

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/watchtower/internal/domain"
)

// Gateway read-only market data access.
type Gateway interface {
	// GetPrices returns tickers keyed by base symbol against the configured quote.
	// An empty map means no update this cycle.
	GetPrices(ctx context.Context) (map[string]domain.Ticker, error)
	// GetCandles returns closes, oldest first. Interval uses 1m/1H/1D notation.
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]decimal.Decimal, error)
}

// lowerInterval converts 1H/1D/1W into the lower-case form used by Binance and Hyperliquid.
func lowerInterval(interval string) string {
	if interval == "" {
		return interval
	}
	unit := interval[len(interval)-1]
	switch unit {
	case 'H', 'D', 'W':
		return interval[:len(interval)-1] + strings.ToLower(string(unit))
	}
	return interval
}

// upperInterval converts 1h/1d/1w into the OKX bar notation.
func upperInterval(interval string) string {
	if interval == "" {
		return interval
	}
	unit := interval[len(interval)-1]
	switch unit {
	case 'h', 'd', 'w':
		return interval[:len(interval)-1] + strings.ToUpper(string(unit))
	}
	return interval
}

func parseCloses(provider, op string, raw []string) ([]decimal.Decimal, error) {
	closes := make([]decimal.Decimal, 0, len(raw))
	for i, s := range raw {
		c, err := decimal.NewFromString(s)
		if err != nil {
			return nil, domain.NewUpstreamError(provider, op, "", errors.Errorf("parse close at %d: %v", i, err))
		}
		closes = append(closes, c)
	}
	return closes, nil
}
