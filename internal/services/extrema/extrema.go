// Package extrema tracks the running high and low of open positions.
package extrema

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/watchtower/internal/domain"
	"github.com/vadiminshakov/watchtower/internal/storage/keys"
	"github.com/vadiminshakov/watchtower/internal/storage/kv"
	"go.uber.org/zap"
)

var errMissing = errors.New("extrema missing")

// Tracker maintains extrema records of one ledger scope.
type Tracker struct {
	l      *zap.Logger
	store  kv.Store
	layout keys.Layout
}

func NewTracker(l *zap.Logger, store kv.Store, scope string) *Tracker {
	return &Tracker{
		l:      l.With(zap.String("component", "extrema")),
		store:  store,
		layout: keys.ForScope(scope),
	}
}

// Update widens the extrema of symbol with price. Symbols without an open
// position are ignored. A missing record is seeded at price.
func (t *Tracker) Update(ctx context.Context, symbol string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return domain.StaleData("no price for %s", symbol)
	}

	pos, _, err := kv.GetJSON[domain.Position](ctx, t.store, t.layout.Position(symbol))
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "load %s position", symbol)
	}

	err = kv.Update(ctx, t.store, t.layout.Extrema(symbol), func(cur *domain.Extrema) (*domain.Extrema, error) {
		if cur == nil {
			return nil, errMissing
		}
		if !cur.Observe(price) {
			return nil, kv.ErrSkip
		}
		return cur, nil
	})
	if errors.Is(err, errMissing) {
		return t.seed(ctx, symbol, price, pos)
	}

	return errors.Wrapf(err, "update %s extrema", symbol)
}

// seed creates the missing extrema of pos at price. The ledger deletes the
// position before its extrema, so a position that is gone after the seed
// means it closed in between and the seeded record is removed again.
func (t *Tracker) seed(ctx context.Context, symbol string, price decimal.Decimal, pos domain.Position) error {
	key := t.layout.Extrema(symbol)

	payload, err := json.Marshal(domain.NewExtrema(symbol, price, pos.OpenDate))
	if err != nil {
		return errors.Wrapf(err, "encode %s extrema", symbol)
	}
	version, err := t.store.CompareAndSet(ctx, key, payload, 0)
	if errors.Is(err, kv.ErrConflict) {
		// seeded concurrently
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "seed %s extrema", symbol)
	}

	_, _, err = kv.GetJSON[domain.Position](ctx, t.store, t.layout.Position(symbol))
	if !errors.Is(err, kv.ErrNotFound) {
		return errors.Wrapf(err, "load %s position", symbol)
	}

	t.l.Debug("position closed while seeding extrema", zap.String("symbol", symbol))
	if err := t.store.CompareAndDelete(ctx, key, version); err != nil && !errors.Is(err, kv.ErrConflict) {
		return errors.Wrapf(err, "discard %s extrema", symbol)
	}
	return nil
}

// UpdateAll feeds prices to every open position of the scope. Failures are
// isolated per symbol and logged.
func (t *Tracker) UpdateAll(ctx context.Context, prices map[string]domain.Ticker) error {
	ks, err := t.store.Keys(ctx, t.layout.PositionPrefix())
	if err != nil {
		return errors.Wrap(err, "list positions")
	}

	for _, k := range ks {
		symbol := t.layout.SymbolFromPosition(k)
		ticker, ok := prices[symbol]
		if !ok {
			t.l.Debug("no price for open position", zap.String("symbol", symbol))
			continue
		}
		if err := t.Update(ctx, symbol, ticker.Price); err != nil {
			t.l.Warn("failed to update extrema", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	return nil
}

// Get returns the extrema of symbol or nil.
func (t *Tracker) Get(ctx context.Context, symbol string) (*domain.Extrema, error) {
	e, _, err := kv.GetJSON[domain.Extrema](ctx, t.store, t.layout.Extrema(symbol))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load %s extrema", symbol)
	}
	return &e, nil
}
