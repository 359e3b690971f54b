package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TradeHistoryEntry immutable record of a closed (or partially closed) position.
type TradeHistoryEntry struct {
	ID           string          `json:"id"`
	Asset        string          `json:"asset"`
	PnL          decimal.Decimal `json:"pnl"`
	DurationDays decimal.Decimal `json:"duration_days"`
	ClosedAt     time.Time       `json:"closed_at"`
	Partial      bool            `json:"partial"`
	Amount       decimal.Decimal `json:"amount"`
	ExitPrice    decimal.Decimal `json:"exit_price"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	// Seq is the balance snapshot sequence that produced the entry.
	Seq uint64 `json:"seq"`
	// Ref identifies the position state the entry reduced, see TradeRef.
	Ref string `json:"ref"`
}

// PnLPercent realized return on the sold amount, in percent.
func (t TradeHistoryEntry) PnLPercent() decimal.Decimal {
	return PercentChange(t.EntryPrice, t.ExitPrice)
}

// RealizedSince sums the pnl of entries closed at or after since.
func RealizedSince(entries []TradeHistoryEntry, since time.Time) (decimal.Decimal, int) {
	total := decimal.Zero
	count := 0
	for _, e := range entries {
		if e.ClosedAt.Before(since) {
			continue
		}
		total = total.Add(e.PnL)
		count++
	}
	return total, count
}

// TradeRef identifies a reduction of the position of symbol by the state it
// started from: the sequence and balance last applied to the position. The
// ref is stable until the reduced position is written.
func TradeRef(symbol string, appliedSeq uint64, appliedBalance decimal.Decimal) string {
	return fmt.Sprintf("%s/%d/%s", NormalizeSymbol(symbol), appliedSeq, appliedBalance.String())
}
