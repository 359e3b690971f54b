// Package movement detects price moves past a percent threshold from a resettable baseline.
package movement

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/watchtower/internal/domain"
	"github.com/vadiminshakov/watchtower/internal/storage/keys"
	"github.com/vadiminshakov/watchtower/internal/storage/kv"
	"go.uber.org/zap"
)

type priceSource interface {
	GetPrices(ctx context.Context) (map[string]domain.Ticker, error)
}

type eventSink interface {
	MovementEvent(ctx context.Context, ev domain.MovementEvent)
}

// PositionLister source of symbols with open positions.
type PositionLister interface {
	Positions(ctx context.Context) ([]domain.Position, error)
}

// PriceObserver receives every fetched price set.
type PriceObserver interface {
	UpdateAll(ctx context.Context, prices map[string]domain.Ticker) error
}

// Config detector settings.
type Config struct {
	// DefaultThreshold global percent threshold used until one is stored.
	DefaultThreshold decimal.Decimal
	Watchlist        []string
}

// Detector evaluates watched symbols against their stored baselines.
type Detector struct {
	l         *zap.Logger
	store     kv.Store
	prices    priceSource
	sink      eventSink
	positions []PositionLister
	observers []PriceObserver
	defaults  decimal.Decimal
	watchlist []string
	now       func() time.Time
}

// NewDetector creates a detector. Open positions of every lister are watched
// and every observer receives the fetched prices.
func NewDetector(
	l *zap.Logger,
	store kv.Store,
	prices priceSource,
	sink eventSink,
	positions []PositionLister,
	observers []PriceObserver,
	cfg Config,
) *Detector {
	watchlist := make([]string, 0, len(cfg.Watchlist))
	for _, s := range cfg.Watchlist {
		watchlist = append(watchlist, domain.NormalizeSymbol(s))
	}

	return &Detector{
		l:         l.With(zap.String("component", "movement")),
		store:     store,
		prices:    prices,
		sink:      sink,
		positions: positions,
		observers: observers,
		defaults:  cfg.DefaultThreshold,
		watchlist: watchlist,
		now:       time.Now,
	}
}

// Run fetches prices once, evaluates every watched symbol and feeds the
// price map to the extrema observers.
func (d *Detector) Run(ctx context.Context) error {
	prices, err := d.prices.GetPrices(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get prices")
	}
	if len(prices) == 0 {
		d.l.Warn("gateway returned no prices, skipping cycle")
		return nil
	}

	for _, o := range d.observers {
		if err := o.UpdateAll(ctx, prices); err != nil {
			d.l.Warn("failed to update extrema", zap.Error(err))
		}
	}

	settings, err := d.Settings(ctx)
	if err != nil {
		return err
	}

	symbols, err := d.watched(ctx, settings)
	if err != nil {
		return err
	}

	failed := 0
	for _, symbol := range symbols {
		ticker, ok := prices[symbol]
		if !ok {
			d.l.Debug("no price for watched symbol", zap.String("symbol", symbol))
			continue
		}

		ev, err := d.evaluate(ctx, settings, symbol, ticker.Price)
		if err != nil {
			failed++
			d.l.Warn("failed to evaluate movement", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if ev != nil {
			d.sink.MovementEvent(ctx, *ev)
		}
	}

	d.l.Debug("movement cycle finished", zap.Int("symbols", len(symbols)), zap.Int("failed", failed))

	return nil
}

// Evaluate compares price with the stored baseline of symbol. The first
// observation seeds the baseline. A move of at least the effective threshold
// returns an event and resets the baseline to price; smaller moves leave the
// baseline untouched.
func (d *Detector) Evaluate(ctx context.Context, symbol string, price decimal.Decimal) (*domain.MovementEvent, error) {
	settings, err := d.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return d.evaluate(ctx, settings, domain.NormalizeSymbol(symbol), price)
}

func (d *Detector) evaluate(ctx context.Context, settings domain.MovementSettings, symbol string, price decimal.Decimal) (*domain.MovementEvent, error) {
	if !price.IsPositive() {
		return nil, domain.StaleData("no price for %s", symbol)
	}

	threshold := settings.Threshold(symbol)
	now := d.now()
	var event *domain.MovementEvent

	err := kv.Update(ctx, d.store, keys.Baseline(symbol), func(cur *domain.Baseline) (*domain.Baseline, error) {
		event = nil
		if cur == nil || !cur.Price.IsPositive() {
			return &domain.Baseline{Symbol: symbol, Price: price, UpdatedAt: now}, nil
		}
		if !threshold.IsPositive() {
			return nil, kv.ErrSkip
		}

		change := domain.PercentChange(cur.Price, price)
		if change.Abs().LessThan(threshold) {
			return nil, kv.ErrSkip
		}

		direction := domain.DirectionUp
		if change.IsNegative() {
			direction = domain.DirectionDown
		}
		event = &domain.MovementEvent{
			Symbol:        symbol,
			Direction:     direction,
			ChangePercent: change,
			Baseline:      cur.Price,
			Price:         price,
			Threshold:     threshold,
			At:            now,
		}

		return &domain.Baseline{Symbol: symbol, Price: price, UpdatedAt: now}, nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "update %s baseline", symbol)
	}

	return event, nil
}

// Baseline returns the stored baseline of symbol or nil.
func (d *Detector) Baseline(ctx context.Context, symbol string) (*domain.Baseline, error) {
	b, _, err := kv.GetJSON[domain.Baseline](ctx, d.store, keys.Baseline(symbol))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load %s baseline", symbol)
	}
	return &b, nil
}

func (d *Detector) watched(ctx context.Context, settings domain.MovementSettings) ([]string, error) {
	set := make(map[string]struct{}, len(d.watchlist))
	for _, s := range d.watchlist {
		set[s] = struct{}{}
	}
	for s := range settings.Overrides {
		set[domain.NormalizeSymbol(s)] = struct{}{}
	}
	for _, lister := range d.positions {
		positions, err := lister.Positions(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "list open positions")
		}
		for _, p := range positions {
			set[p.Symbol] = struct{}{}
		}
	}

	symbols := make([]string, 0, len(set))
	for s := range set {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	return symbols, nil
}
