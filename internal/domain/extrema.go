package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Extrema running high and low since a position was opened.
type Extrema struct {
	Symbol string          `json:"symbol"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Since  time.Time       `json:"since"`
}

// NewExtrema seeds both bounds to the opening price.
func NewExtrema(symbol string, price decimal.Decimal, since time.Time) Extrema {
	return Extrema{Symbol: NormalizeSymbol(symbol), High: price, Low: price, Since: since}
}

// Observe widens the bounds to include price. Returns true when either bound changed.
func (e *Extrema) Observe(price decimal.Decimal) bool {
	changed := false
	if price.GreaterThan(e.High) {
		e.High = price
		changed = true
	}
	if price.LessThan(e.Low) {
		e.Low = price
		changed = true
	}
	return changed
}
