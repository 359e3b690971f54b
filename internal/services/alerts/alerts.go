// Package alerts evaluates one-shot price alerts.
package alerts

import (
	"context"
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
	AlertFired(ctx context.Context, ev domain.AlertEvent)
}

// Evaluator fires stored alerts whose level was crossed.
type Evaluator struct {
	*Book

	l      *zap.Logger
	prices priceSource
	sink   eventSink
	quote  string
}

// NewEvaluator creates an evaluator. quote is the quote currency the price gateway reports in.
func NewEvaluator(l *zap.Logger, store kv.Store, prices priceSource, sink eventSink, quote string) *Evaluator {
	return &Evaluator{
		Book:   NewBook(store),
		l:      l.With(zap.String("component", "alerts")),
		prices: prices,
		sink:   sink,
		quote:  domain.NormalizeSymbol(quote),
	}
}

// Evaluate removes and returns the alerts of instID triggered by price.
// Fired alerts are returned only after their removal is committed, so
// overlapping evaluations never return the same alert twice.
func (e *Evaluator) Evaluate(ctx context.Context, instID string, price decimal.Decimal) ([]domain.PriceAlert, error) {
	pair, err := domain.ParsePair(instID)
	if err != nil {
		return nil, err
	}
	if !price.IsPositive() {
		return nil, domain.StaleData("no price for %s", pair.InstID())
	}

	var fired []domain.PriceAlert
	err = kv.Update(ctx, e.store, keys.Alerts(pair.InstID()), func(cur *[]domain.PriceAlert) (*[]domain.PriceAlert, error) {
		fired = nil
		if cur == nil {
			return nil, kv.ErrSkip
		}

		remaining := make([]domain.PriceAlert, 0, len(*cur))
		for _, a := range *cur {
			if a.Triggered(price) {
				fired = append(fired, a)
				continue
			}
			remaining = append(remaining, a)
		}

		if len(fired) == 0 {
			return nil, kv.ErrSkip
		}
		if len(remaining) == 0 {
			return nil, nil
		}
		return &remaining, nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "evaluate alerts of %s", pair.InstID())
	}

	return fired, nil
}

// Run evaluates every instrument with alerts against one price fetch.
func (e *Evaluator) Run(ctx context.Context) error {
	instIDs, err := e.Instruments(ctx)
	if err != nil {
		return err
	}
	if len(instIDs) == 0 {
		return nil
	}

	prices, err := e.prices.GetPrices(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get prices")
	}
	if len(prices) == 0 {
		e.l.Warn("gateway returned no prices, skipping cycle")
		return nil
	}

	for _, instID := range instIDs {
		price, err := e.priceOf(instID, prices)
		if err != nil {
			e.l.Debug("skipping instrument", zap.String("inst_id", instID), zap.Error(err))
			continue
		}

		fired, err := e.Evaluate(ctx, instID, price)
		if err != nil {
			e.l.Warn("failed to evaluate alerts", zap.String("inst_id", instID), zap.Error(err))
			continue
		}

		now := time.Now()
		for _, a := range fired {
			e.l.Info("price alert fired",
				zap.String("id", a.ID),
				zap.String("inst_id", a.InstID),
				zap.String("condition", a.Condition.String()),
				zap.String("level", a.Price.String()),
				zap.String("price", price.String()))
			e.sink.AlertFired(ctx, domain.AlertEvent{Alert: a, Price: price, At: now})
		}
	}

	return nil
}

func (e *Evaluator) priceOf(instID string, prices map[string]domain.Ticker) (decimal.Decimal, error) {
	pair, err := domain.ParsePair(instID)
	if err != nil {
		return decimal.Zero, err
	}
	if pair.To != e.quote {
		return decimal.Zero, domain.StaleData("%s is not quoted in %s", instID, e.quote)
	}
	ticker, ok := prices[pair.From]
	if !ok || !ticker.Price.IsPositive() {
		return decimal.Zero, domain.StaleData("no price for %s", instID)
	}
	return ticker.Price, nil
}
