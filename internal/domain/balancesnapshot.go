package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceSnapshot account holdings captured at one instant.
type BalanceSnapshot struct {
	Seq      uint64                     `json:"seq"`
	Taken    time.Time                  `json:"taken"`
	Balances map[string]decimal.Decimal `json:"balances"`
}

// NewBalanceSnapshot creates a snapshot with normalized symbols.
func NewBalanceSnapshot(seq uint64, taken time.Time, balances map[string]decimal.Decimal) BalanceSnapshot {
	normalized := make(map[string]decimal.Decimal, len(balances))
	for symbol, amount := range balances {
		key := NormalizeSymbol(symbol)
		normalized[key] = normalized[key].Add(amount)
	}

	return BalanceSnapshot{
		Seq:      seq,
		Taken:    taken,
		Balances: normalized,
	}
}

// Amount returns the held quantity, zero when absent.
func (s BalanceSnapshot) Amount(symbol string) decimal.Decimal {
	if s.Balances == nil {
		return decimal.Zero
	}
	return s.Balances[NormalizeSymbol(symbol)]
}

// IsEmpty reports whether the snapshot holds no balances at all.
func (s BalanceSnapshot) IsEmpty() bool {
	return len(s.Balances) == 0
}

// Clone returns a deep copy.
func (s BalanceSnapshot) Clone() BalanceSnapshot {
	balances := make(map[string]decimal.Decimal, len(s.Balances))
	for k, v := range s.Balances {
		balances[k] = v
	}
	return BalanceSnapshot{Seq: s.Seq, Taken: s.Taken, Balances: balances}
}

// UnionSymbols returns sorted symbols present in either snapshot.
func UnionSymbols(a, b BalanceSnapshot) []string {
	seen := make(map[string]struct{}, len(a.Balances)+len(b.Balances))
	for symbol := range a.Balances {
		seen[symbol] = struct{}{}
	}
	for symbol := range b.Balances {
		seen[symbol] = struct{}{}
	}

	symbols := make([]string, 0, len(seen))
	for symbol := range seen {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	return symbols
}
