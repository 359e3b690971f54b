package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const percentageMultiplier = 100

// DefaultEpsilon quantities at or below this are treated as zero.
var DefaultEpsilon = decimal.New(1, -6)

// Position continuously held asset with a tracked cost basis.
type Position struct {
	Symbol            string          `json:"symbol"`
	AverageBuyPrice   decimal.Decimal `json:"average_buy_price"`
	TotalAmountBought decimal.Decimal `json:"total_amount_bought"`
	Holding           decimal.Decimal `json:"holding"`
	RealizedPnL       decimal.Decimal `json:"realized_pnl"`
	OpenDate          time.Time       `json:"open_date"`
	// AppliedSeq is the balance snapshot sequence whose delta was last applied,
	// AppliedBalance the account balance observed by that snapshot.
	AppliedSeq     uint64          `json:"applied_seq"`
	AppliedBalance decimal.Decimal `json:"applied_balance"`
}

// OpenPosition creates a position from the first observed buy.
func OpenPosition(symbol string, price, amount decimal.Decimal, at time.Time, seq uint64) (*Position, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("position amount must be greater than zero")
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("entry price must be greater than zero")
	}

	return &Position{
		Symbol:            NormalizeSymbol(symbol),
		AverageBuyPrice:   price,
		TotalAmountBought: amount,
		Holding:           amount,
		RealizedPnL:       decimal.Zero,
		OpenDate:          at,
		AppliedSeq:        seq,
		AppliedBalance:    amount,
	}, nil
}

// Add blends a new buy into the weighted average cost basis.
func (p *Position) Add(price, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return errors.New("buy amount must be greater than zero")
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return errors.New("buy price must be greater than zero")
	}

	newHolding := p.Holding.Add(amount)
	weighted := p.AverageBuyPrice.Mul(p.Holding).Add(price.Mul(amount))
	p.AverageBuyPrice = weighted.Div(newHolding)
	p.Holding = newHolding
	p.TotalAmountBought = p.TotalAmountBought.Add(amount)

	return nil
}

// Reduce removes sold units and returns the realized pnl on them.
// The average buy price is left untouched.
func (p *Position) Reduce(price, amount decimal.Decimal) decimal.Decimal {
	if amount.GreaterThan(p.Holding) {
		amount = p.Holding
	}

	pnl := price.Sub(p.AverageBuyPrice).Mul(amount)
	p.Holding = p.Holding.Sub(amount)
	p.RealizedPnL = p.RealizedPnL.Add(pnl)

	return pnl
}

// UnrealizedPnL profit or loss of the remaining holding at the given price.
func (p *Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return price.Sub(p.AverageBuyPrice).Mul(p.Holding)
}

// PnLPercent price change relative to the average buy price, in percent.
func (p *Position) PnLPercent(price decimal.Decimal) decimal.Decimal {
	if p == nil || p.AverageBuyPrice.IsZero() {
		return decimal.Zero
	}
	return PercentChange(p.AverageBuyPrice, price)
}

// CostBasis total cost of the remaining holding.
func (p *Position) CostBasis() decimal.Decimal {
	return p.AverageBuyPrice.Mul(p.Holding)
}

// IsOpen reports whether the holding is above epsilon.
func (p *Position) IsOpen(epsilon decimal.Decimal) bool {
	return p != nil && p.Holding.GreaterThan(epsilon)
}

// DurationDays fractional days since the position was opened.
func (p *Position) DurationDays(now time.Time) decimal.Decimal {
	return decimal.NewFromFloat(now.Sub(p.OpenDate).Hours() / 24).Round(2)
}

// PercentChange returns (to - from) / from * 100.
func PercentChange(from, to decimal.Decimal) decimal.Decimal {
	if from.IsZero() {
		return decimal.Zero
	}
	return to.Sub(from).Div(from).Mul(decimal.NewFromInt(percentageMultiplier))
}

// Dust returns zero for amounts whose magnitude is at or below epsilon.
func Dust(amount, epsilon decimal.Decimal) decimal.Decimal {
	if amount.Abs().LessThanOrEqual(epsilon) {
		return decimal.Zero
	}
	return amount
}
