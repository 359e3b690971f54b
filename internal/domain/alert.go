package domain

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// AlertCondition direction in which a price alert triggers.
type AlertCondition string

const (
	// ConditionAbove fires when the price rises above the level.
	ConditionAbove AlertCondition = "above"
	// ConditionBelow fires when the price falls below the level.
	ConditionBelow AlertCondition = "below"
)

// ParseAlertCondition converts user input into a condition.
func ParseAlertCondition(s string) (AlertCondition, error) {
	c := AlertCondition(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", errors.Errorf("unknown alert condition %q, expected above or below", s)
	}
	return c, nil
}

// IsValid checks if the AlertCondition value is valid.
func (c AlertCondition) IsValid() bool {
	return c == ConditionAbove || c == ConditionBelow
}

// String returns the string representation.
func (c AlertCondition) String() string {
	return string(c)
}

// PriceAlert one-shot alert on a static price level.
type PriceAlert struct {
	ID        string          `json:"id"`
	InstID    string          `json:"inst_id"`
	Condition AlertCondition  `json:"condition"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewPriceAlert validates and builds an alert.
func NewPriceAlert(id, instID string, condition AlertCondition, price decimal.Decimal, createdAt time.Time) (PriceAlert, error) {
	pair, err := ParsePair(instID)
	if err != nil {
		return PriceAlert{}, err
	}
	if !condition.IsValid() {
		return PriceAlert{}, errors.Errorf("invalid alert condition %q", condition)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return PriceAlert{}, errors.New("alert price must be greater than zero")
	}

	return PriceAlert{
		ID:        id,
		InstID:    pair.InstID(),
		Condition: condition,
		Price:     price,
		CreatedAt: createdAt,
	}, nil
}

// Triggered reports whether the price strictly crosses the alert level.
func (a PriceAlert) Triggered(price decimal.Decimal) bool {
	switch a.Condition {
	case ConditionAbove:
		return price.GreaterThan(a.Price)
	case ConditionBelow:
		return price.LessThan(a.Price)
	default:
		return false
	}
}
