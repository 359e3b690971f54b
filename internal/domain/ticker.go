package domain

import "github.com/shopspring/decimal"

// Ticker last price and 24h change of a symbol against the configured quote.
type Ticker struct {
	Price     decimal.Decimal
	Change24h decimal.Decimal
}
