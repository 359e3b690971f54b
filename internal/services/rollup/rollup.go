// Package rollup builds periodic portfolio reports.
package rollup

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/watchtower/internal/domain"
	"github.com/vadiminshakov/watchtower/pkg/indicators"
	"go.uber.org/zap"
)

const (
	dailyInterval = "1D"
	weekLookback  = 7
)

type ledgerReader interface {
	Positions(ctx context.Context) ([]domain.Position, error)
	History(ctx context.Context) ([]domain.TradeHistoryEntry, error)
}

type extremaReader interface {
	Get(ctx context.Context, symbol string) (*domain.Extrema, error)
}

type marketData interface {
	GetPrices(ctx context.Context) (map[string]domain.Ticker, error)
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]decimal.Decimal, error)
}

type reportSink interface {
	Report(ctx context.Context, r domain.Report)
}

// Reporter assembles hourly and daily portfolio summaries.
type Reporter struct {
	l       *zap.Logger
	ledger  ledgerReader
	extrema extremaReader
	market  marketData
	sink    reportSink
	now     func() time.Time
}

func NewReporter(l *zap.Logger, ledger ledgerReader, extrema extremaReader, market marketData, sink reportSink) *Reporter {
	return &Reporter{
		l:       l.With(zap.String("component", "rollup")),
		ledger:  ledger,
		extrema: extrema,
		market:  market,
		sink:    sink,
		now:     time.Now,
	}
}

func (r *Reporter) Hourly(ctx context.Context) error {
	return r.send(ctx, domain.ReportHourly)
}

func (r *Reporter) Daily(ctx context.Context) error {
	return r.send(ctx, domain.ReportDaily)
}

func (r *Reporter) send(ctx context.Context, kind domain.ReportKind) error {
	report, err := r.Build(ctx, kind)
	if err != nil {
		return err
	}
	if report.IsEmpty() {
		r.l.Debug("nothing to report", zap.String("kind", string(kind)))
		return nil
	}
	r.sink.Report(ctx, report)
	return nil
}

// Build assembles a report. Positions without a price are left out; daily
// indicators that lack candle history are omitted from their line.
func (r *Reporter) Build(ctx context.Context, kind domain.ReportKind) (domain.Report, error) {
	now := r.now()
	report := domain.Report{
		Kind:          kind,
		GeneratedAt:   now,
		TotalValue:    decimal.Zero,
		TotalCost:     decimal.Zero,
		UnrealizedPnL: decimal.Zero,
		RealizedPnL:   decimal.Zero,
	}

	positions, err := r.ledger.Positions(ctx)
	if err != nil {
		return report, errors.Wrap(err, "failed to load positions")
	}

	if kind == domain.ReportDaily {
		history, err := r.ledger.History(ctx)
		if err != nil {
			return report, errors.Wrap(err, "failed to load trade history")
		}
		report.RealizedPnL, report.ClosedTrades = domain.RealizedSince(history, now.Add(-24*time.Hour))
	}

	if len(positions) == 0 {
		return report, nil
	}

	prices, err := r.market.GetPrices(ctx)
	if err != nil {
		return report, errors.Wrap(err, "failed to get prices")
	}

	for i := range positions {
		pos := &positions[i]
		ticker, ok := prices[pos.Symbol]
		if !ok || !ticker.Price.IsPositive() {
			r.l.Warn("no price for position, omitted from report", zap.String("symbol", pos.Symbol))
			continue
		}

		line := domain.PositionLine{
			Symbol:        pos.Symbol,
			Holding:       pos.Holding,
			AverageBuy:    pos.AverageBuyPrice,
			Price:         ticker.Price,
			Change24h:     ticker.Change24h,
			UnrealizedPnL: pos.UnrealizedPnL(ticker.Price),
			PnLPercent:    pos.PnLPercent(ticker.Price),
		}

		if e, err := r.extrema.Get(ctx, pos.Symbol); err != nil {
			r.l.Warn("failed to load extrema", zap.String("symbol", pos.Symbol), zap.Error(err))
		} else {
			line.Extrema = e
		}

		if kind == domain.ReportDaily {
			r.addIndicators(ctx, &line)
		}

		report.Lines = append(report.Lines, line)
		report.TotalValue = report.TotalValue.Add(pos.Holding.Mul(ticker.Price))
		report.TotalCost = report.TotalCost.Add(pos.CostBasis())
		report.UnrealizedPnL = report.UnrealizedPnL.Add(line.UnrealizedPnL)
	}

	return report, nil
}

func (r *Reporter) addIndicators(ctx context.Context, line *domain.PositionLine) {
	closes, err := r.market.GetCandles(ctx, line.Symbol, dailyInterval, indicators.RSIPeriod+1)
	if err != nil {
		r.l.Debug("no candles for daily indicators", zap.String("symbol", line.Symbol), zap.Error(err))
		return
	}

	if change, err := indicators.Change(closes, weekLookback); err == nil {
		line.Change7d = &change
	} else {
		r.l.Debug("skipping 7d change", zap.String("symbol", line.Symbol), zap.Error(err))
	}

	if rsi, err := indicators.RSI(closes, indicators.RSIPeriod); err == nil {
		line.RSI14 = &rsi
	} else {
		r.l.Debug("skipping RSI", zap.String("symbol", line.Symbol), zap.Error(err))
	}
}
