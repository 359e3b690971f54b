package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionEventKind lifecycle transition of a position.
type PositionEventKind string

const (
	PositionOpened    PositionEventKind = "opened"
	PositionIncreased PositionEventKind = "increased"
	PositionReduced   PositionEventKind = "reduced"
	PositionClosed    PositionEventKind = "closed"
)

// PositionEvent emitted by the ledger for every applied balance delta.
type PositionEvent struct {
	Kind   PositionEventKind
	Scope  string
	Symbol string
	Price  decimal.Decimal
	Delta  decimal.Decimal
	// Position state after the transition. For closed positions it is the final state.
	Position Position
	// Trade is set for reduced and closed events.
	Trade *TradeHistoryEntry
	At    time.Time
}

// TotalRealizedPnL cumulative realized pnl over the position lifetime.
func (e PositionEvent) TotalRealizedPnL() decimal.Decimal {
	return e.Position.RealizedPnL
}

// AlertEvent emitted when a price alert fires.
type AlertEvent struct {
	Alert PriceAlert
	Price decimal.Decimal
	At    time.Time
}
