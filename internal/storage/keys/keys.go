// Package keys defines the state store key layout.
package keys

import (
	"strings"

	"github.com/vadiminshakov/watchtower/internal/domain"
)

const (
	positionPrefix = "position:"
	extremaPrefix  = "extrema:"
	baselinePrefix = "movement_baseline:"
	alertsPrefix   = "alerts:"

	movementSettings = "movement:settings"
	tradeHistory     = "trade_history"
	balanceSnapshot  = "snapshot:balances"
	balances         = "balances"

	// VirtualScope namespace of the paper-trading ledger.
	VirtualScope = "virtual"
)

// Layout builds keys for one ledger scope. The zero value is the real account.
type Layout struct {
	prefix string
}

// ForScope returns the layout for scope; an empty scope is the real account.
func ForScope(scope string) Layout {
	if scope == "" {
		return Layout{}
	}
	return Layout{prefix: scope + ":"}
}

func (l Layout) PositionPrefix() string { return l.prefix + positionPrefix }

func (l Layout) Position(symbol string) string {
	return l.PositionPrefix() + domain.NormalizeSymbol(symbol)
}

// SymbolFromPosition extracts the symbol from a position key.
func (l Layout) SymbolFromPosition(key string) string {
	return strings.TrimPrefix(key, l.PositionPrefix())
}

func (l Layout) Extrema(symbol string) string {
	return l.prefix + extremaPrefix + domain.NormalizeSymbol(symbol)
}

func (l Layout) TradeHistory() string { return l.prefix + tradeHistory }

func (l Layout) BalanceSnapshot() string { return l.prefix + balanceSnapshot }

// Balances holds balances maintained outside of any exchange (virtual trades).
func (l Layout) Balances() string { return l.prefix + balances }

// Baseline key of the movement baseline for symbol. Shared by all scopes.
func Baseline(symbol string) string {
	return baselinePrefix + domain.NormalizeSymbol(symbol)
}

// MovementSettings key of the movement thresholds.
func MovementSettings() string { return movementSettings }

// Alerts key holding every alert of one instrument.
func Alerts(instID string) string { return alertsPrefix + instID }

// AlertsPrefix prefix shared by every alerts key.
func AlertsPrefix() string { return alertsPrefix }

// InstIDFromAlerts extracts the instrument from an alerts key.
func InstIDFromAlerts(key string) string { return strings.TrimPrefix(key, alertsPrefix) }
