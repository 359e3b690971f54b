package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementSettings percent thresholds for movement notifications.
type MovementSettings struct {
	Global    decimal.Decimal            `json:"global"`
	Overrides map[string]decimal.Decimal `json:"overrides,omitempty"`
}

// Threshold returns the override for symbol if present, else the global threshold.
func (s MovementSettings) Threshold(symbol string) decimal.Decimal {
	if v, ok := s.Overrides[NormalizeSymbol(symbol)]; ok {
		return v
	}
	return s.Global
}

// Baseline reference price for movement detection.
type Baseline struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Direction of a price move.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// MovementEvent emitted when a price moves past the effective threshold.
type MovementEvent struct {
	Symbol        string
	Direction     Direction
	ChangePercent decimal.Decimal
	Baseline      decimal.Decimal
	Price         decimal.Decimal
	Threshold     decimal.Decimal
	At            time.Time
}
