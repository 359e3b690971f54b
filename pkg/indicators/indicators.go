// Package indicators computes technical indicators over candle closes.
package indicators

import (
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/watchtower/internal/domain"
)

// RSIPeriod default Relative Strength Index period.
const RSIPeriod = 14

// RSI returns the latest Relative Strength Index of closes (oldest first).
// Fewer than period+1 closes is stale data.
func RSI(closes []decimal.Decimal, period int) (decimal.Decimal, error) {
	if len(closes) < period+1 {
		return decimal.Zero, domain.StaleData("not enough data points for RSI: need %d, got %d", period+1, len(closes))
	}

	rsi := momentum.NewRsiWithPeriod[float64](period)
	out := helper.ChanToSlice(rsi.Compute(helper.SliceToChan(decimalsToFloat64(closes))))
	if len(out) == 0 {
		return decimal.Zero, domain.StaleData("RSI produced no values for %d closes", len(closes))
	}

	last := out[len(out)-1]
	if math.IsNaN(last) || math.IsInf(last, 0) {
		return decimal.Zero, domain.StaleData("RSI is undefined for flat closes")
	}

	return decimal.NewFromFloat(last).Round(2), nil
}

// Change returns the percent change between the close lookback candles ago and the latest close.
func Change(closes []decimal.Decimal, lookback int) (decimal.Decimal, error) {
	if lookback < 1 || len(closes) < lookback+1 {
		return decimal.Zero, domain.StaleData("not enough data points for %d candle change: got %d", lookback, len(closes))
	}

	from := closes[len(closes)-1-lookback]
	if from.IsZero() {
		return decimal.Zero, domain.StaleData("zero reference close")
	}

	return domain.PercentChange(from, closes[len(closes)-1]), nil
}

func decimalsToFloat64(values []decimal.Decimal) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v.InexactFloat64()
	}
	return out
}
