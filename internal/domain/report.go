package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReportKind rollup cadence.
type ReportKind string

const (
	ReportHourly ReportKind = "hourly"
	ReportDaily  ReportKind = "daily"
)

// PositionLine single position in a portfolio report.
type PositionLine struct {
	Symbol        string
	Holding       decimal.Decimal
	AverageBuy    decimal.Decimal
	Price         decimal.Decimal
	Change24h     decimal.Decimal
	UnrealizedPnL decimal.Decimal
	PnLPercent    decimal.Decimal
	Extrema       *Extrema
	// Daily only. Nil when candle history was insufficient.
	Change7d *decimal.Decimal
	RSI14    *decimal.Decimal
}

// Report portfolio rollup.
type Report struct {
	Kind          ReportKind
	GeneratedAt   time.Time
	Lines         []PositionLine
	TotalValue    decimal.Decimal
	TotalCost     decimal.Decimal
	UnrealizedPnL decimal.Decimal
	// Daily only.
	RealizedPnL  decimal.Decimal
	ClosedTrades int
}

// IsEmpty reports whether the report carries nothing worth sending.
func (r Report) IsEmpty() bool {
	return len(r.Lines) == 0 && r.ClosedTrades == 0
}
