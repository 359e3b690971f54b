// Package ledger maintains open-position cost basis and lifecycle from account balance deltas.
package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/watchtower/internal/domain"
	"github.com/vadiminshakov/watchtower/internal/storage/kv"
	"go.uber.org/zap"
)

// emptyConfirmations consecutive empty balance responses after which an
// empty account is accepted as real.
const emptyConfirmations = 3

type accountGateway interface {
	GetBalances(ctx context.Context) (map[string]decimal.Decimal, error)
}

type priceSource interface {
	GetPrices(ctx context.Context) (map[string]domain.Ticker, error)
}

type eventSink interface {
	PositionEvent(ctx context.Context, ev domain.PositionEvent)
}

type tradeJournal interface {
	Record(ctx context.Context, scope string, e domain.TradeHistoryEntry) error
}

// Config ledger settings.
type Config struct {
	// Scope empty for the real account, keys.VirtualScope for paper trades.
	Scope   string
	Quote   string
	Ignored []string
	Epsilon decimal.Decimal
}

// Result outcome of one reconcile pass.
type Result struct {
	Events []domain.PositionEvent
	// Failed symbols whose deltas were not applied; they are retried next cycle.
	Failed map[string]error
}

// Ledger reconciles balance snapshots into positions and trade history.
type Ledger struct {
	*Repository

	l       *zap.Logger
	account accountGateway
	prices  priceSource
	sink    eventSink
	journal tradeJournal
	scope   string
	quote   string
	ignored map[string]struct{}
	epsilon decimal.Decimal
	now     func() time.Time
	newID   func() string

	// runs are serialized by the scheduler gate
	emptyStreak int
}

// NewLedger creates a ledger. journal may be nil.
func NewLedger(
	l *zap.Logger,
	store kv.Store,
	account accountGateway,
	prices priceSource,
	sink eventSink,
	journal tradeJournal,
	cfg Config,
) *Ledger {
	epsilon := cfg.Epsilon
	if !epsilon.IsPositive() {
		epsilon = domain.DefaultEpsilon
	}

	quote := domain.NormalizeSymbol(cfg.Quote)
	ignored := map[string]struct{}{quote: {}}
	for _, s := range cfg.Ignored {
		ignored[domain.NormalizeSymbol(s)] = struct{}{}
	}

	scope := cfg.Scope
	if scope == "" {
		scope = "account"
	}

	return &Ledger{
		Repository: NewRepository(store, cfg.Scope),
		l:          l.With(zap.String("component", "ledger"), zap.String("scope", scope)),
		account:    account,
		prices:     prices,
		sink:       sink,
		journal:    journal,
		scope:      cfg.Scope,
		quote:      quote,
		ignored:    ignored,
		epsilon:    epsilon,
		now:        time.Now,
		newID:      func() string { return ulid.Make().String() },
	}
}

// Run executes one balance reconciliation cycle: read the committed snapshot,
// fetch balances and prices, apply deltas, then commit the new snapshot.
func (l *Ledger) Run(ctx context.Context) error {
	previous, version, err := l.Snapshot(ctx)
	if err != nil {
		return err
	}

	balances, err := l.account.GetBalances(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch balances")
	}
	if len(balances) == 0 && !previous.IsEmpty() {
		l.emptyStreak++
		if l.emptyStreak < emptyConfirmations {
			l.l.Warn("account gateway returned no balances, skipping cycle",
				zap.Int("streak", l.emptyStreak), zap.Int("confirm_after", emptyConfirmations))
			return nil
		}
		l.l.Warn("account reported empty repeatedly, treating balances as withdrawn",
			zap.Int("streak", l.emptyStreak))
	}
	l.emptyStreak = 0

	current := domain.NewBalanceSnapshot(previous.Seq+1, l.now(), balances)
	if version != 0 && !l.hasChanges(previous, current) {
		return nil
	}

	var prices map[string]domain.Ticker
	if l.needsPrices(previous, current) {
		prices, err = l.prices.GetPrices(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch prices")
		}
		if len(prices) == 0 {
			l.l.Warn("market data gateway returned no prices, skipping cycle")
			return nil
		}
	}

	res, err := l.Reconcile(ctx, previous, current, prices)
	if err != nil {
		return err
	}

	committed := current.Clone()
	for symbol, symErr := range res.Failed {
		l.l.Warn("balance delta not applied, will retry next cycle",
			zap.String("symbol", symbol), zap.Error(symErr))
		if amount, ok := previous.Balances[symbol]; ok {
			committed.Balances[symbol] = amount
		} else {
			delete(committed.Balances, symbol)
		}
	}

	payload, err := json.Marshal(committed)
	if err != nil {
		return errors.Wrap(err, "encode balance snapshot")
	}
	if _, err := l.store.CompareAndSet(ctx, l.layout.BalanceSnapshot(), payload, version); err != nil {
		return errors.Wrap(err, "commit balance snapshot")
	}

	for _, ev := range res.Events {
		l.sink.PositionEvent(ctx, ev)
	}

	return nil
}

// Reconcile applies the delta of every symbol present in either snapshot.
// Symbols fail independently; a failure of one never aborts the others.
func (l *Ledger) Reconcile(ctx context.Context, previous, current domain.BalanceSnapshot, prices map[string]domain.Ticker) (Result, error) {
	history, err := l.History(ctx)
	if err != nil {
		return Result{}, err
	}
	applied := newAppliedTrades(history, current.Seq)

	res := Result{Failed: make(map[string]error)}
	for _, symbol := range domain.UnionSymbols(previous, current) {
		if _, skip := l.ignored[symbol]; skip {
			continue
		}

		events, err := l.applySymbol(ctx, symbol, previous, current, prices, applied)
		res.Events = append(res.Events, events...)
		if err != nil {
			res.Failed[symbol] = err
		}
	}

	return res, nil
}

// maxSymbolPasses bounds the passes over one symbol: a conflict retry and a
// resumed trade each take one.
const maxSymbolPasses = 3

func (l *Ledger) applySymbol(
	ctx context.Context,
	symbol string,
	previous, current domain.BalanceSnapshot,
	prices map[string]domain.Ticker,
	applied appliedTrades,
) ([]domain.PositionEvent, error) {
	var (
		events    []domain.PositionEvent
		conflicts int
	)
	for pass := 0; pass < maxSymbolPasses; pass++ {
		ev, resumed, err := l.applyOnce(ctx, symbol, previous, current, prices, applied)
		if errors.Is(err, kv.ErrConflict) && conflicts == 0 {
			conflicts++
			continue
		}
		if err != nil {
			return events, err
		}
		if ev != nil {
			events = append(events, *ev)
		}
		if !resumed {
			return events, nil
		}
	}
	return events, errors.Errorf("%s delta not settled after %d passes", symbol, maxSymbolPasses)
}

// applyOnce applies the pending delta of symbol. An open position carries the
// balance it already reflects, so the delta is measured from it rather than
// from the previous snapshot. resumed reports that a trade recorded by an
// interrupted cycle was settled and the symbol needs another pass.
func (l *Ledger) applyOnce(
	ctx context.Context,
	symbol string,
	previous, current domain.BalanceSnapshot,
	prices map[string]domain.Ticker,
	applied appliedTrades,
) (ev *domain.PositionEvent, resumed bool, err error) {
	seq := current.Seq
	prevAmt := domain.Dust(previous.Amount(symbol), l.epsilon)
	curAmt := domain.Dust(current.Amount(symbol), l.epsilon)

	pos, version, err := l.Position(ctx, symbol)
	if err != nil {
		return nil, false, err
	}

	switch {
	case pos != nil:
		if pending, ok := applied.get(domain.TradeRef(symbol, pos.AppliedSeq, pos.AppliedBalance)); ok {
			ev, err = l.resume(ctx, pos, version, pending, seq, applied)
			return ev, err == nil, err
		}
		prevAmt = pos.AppliedBalance
	case applied.closed(symbol):
		// closed earlier in this sequence by an interrupted cycle
		prevAmt = decimal.Zero
	}

	delta := curAmt.Sub(prevAmt)
	if delta.Abs().LessThanOrEqual(l.epsilon) {
		return nil, false, nil
	}
	if pos == nil && delta.IsNegative() {
		l.l.Debug("balance decreased without a tracked position",
			zap.String("symbol", symbol), zap.String("delta", delta.String()))
		return nil, false, nil
	}

	ticker, ok := prices[symbol]
	if !ok || !ticker.Price.IsPositive() {
		return nil, false, domain.StaleData("no %s price for %s", l.quote, symbol)
	}
	price := ticker.Price
	now := l.now()

	switch {
	case pos == nil:
		ev, err = l.open(ctx, symbol, price, delta, curAmt, seq, now)
	case delta.IsPositive():
		ev, err = l.increase(ctx, pos, version, price, delta, curAmt, seq, now)
	default:
		ev, err = l.reduce(ctx, pos, version, price, delta.Abs(), curAmt, seq, now, applied)
	}
	return ev, false, err
}

func (l *Ledger) open(ctx context.Context, symbol string, price, amount, balance decimal.Decimal, seq uint64, now time.Time) (*domain.PositionEvent, error) {
	pos, err := domain.OpenPosition(symbol, price, amount, now, seq)
	if err != nil {
		return nil, err
	}
	pos.AppliedBalance = balance

	if err := l.writePosition(ctx, pos, 0); err != nil {
		return nil, err
	}

	extrema := domain.NewExtrema(symbol, price, now)
	payload, err := json.Marshal(extrema)
	if err != nil {
		return nil, errors.Wrap(err, "encode extrema")
	}
	if _, err := l.store.Set(ctx, l.layout.Extrema(symbol), payload); err != nil {
		// the tracker seeds missing extrema lazily
		l.l.Warn("failed to seed extrema", zap.String("symbol", symbol), zap.Error(err))
	}

	l.l.Info("position opened",
		zap.String("symbol", symbol),
		zap.String("price", price.String()),
		zap.String("amount", amount.String()))

	return l.event(domain.PositionOpened, *pos, price, amount, nil, now), nil
}

func (l *Ledger) increase(ctx context.Context, pos *domain.Position, version uint64, price, amount, balance decimal.Decimal, seq uint64, now time.Time) (*domain.PositionEvent, error) {
	if err := pos.Add(price, amount); err != nil {
		return nil, err
	}
	pos.AppliedSeq = seq
	pos.AppliedBalance = balance

	if err := l.writePosition(ctx, pos, version); err != nil {
		return nil, err
	}

	l.l.Info("position increased",
		zap.String("symbol", pos.Symbol),
		zap.String("price", price.String()),
		zap.String("amount", amount.String()),
		zap.String("average_buy_price", pos.AverageBuyPrice.String()))

	return l.event(domain.PositionIncreased, *pos, price, amount, nil, now), nil
}

func (l *Ledger) reduce(
	ctx context.Context,
	pos *domain.Position,
	version uint64,
	price, sold, balance decimal.Decimal,
	seq uint64,
	now time.Time,
	applied appliedTrades,
) (*domain.PositionEvent, error) {
	entryPrice := pos.AverageBuyPrice
	ref := domain.TradeRef(pos.Symbol, pos.AppliedSeq, pos.AppliedBalance)
	closing := balance.LessThanOrEqual(l.epsilon) || pos.Holding.Sub(sold).LessThanOrEqual(l.epsilon)
	if closing {
		sold = pos.Holding
	}

	pnl := pos.Reduce(price, sold)
	pos.AppliedSeq = seq
	pos.AppliedBalance = balance

	entry := domain.TradeHistoryEntry{
		ID:           l.newID(),
		Asset:        pos.Symbol,
		PnL:          pnl,
		DurationDays: pos.DurationDays(now),
		ClosedAt:     now,
		Partial:      !closing,
		Amount:       sold,
		ExitPrice:    price,
		EntryPrice:   entryPrice,
		Seq:          seq,
		Ref:          ref,
	}

	// history first: until the position write lands the position keeps the
	// state the ref is built from, so the next pass finds the entry and resumes it
	appended, err := l.appendTrade(ctx, entry)
	if err != nil {
		return nil, err
	}
	applied.add(entry)
	if appended && l.journal != nil {
		if err := l.journal.Record(ctx, l.scope, entry); err != nil {
			l.l.Warn("failed to mirror trade into journal", zap.String("symbol", pos.Symbol), zap.Error(err))
		}
	}

	return l.settle(ctx, pos, version, entry, now)
}

// resume settles a trade that was recorded by an interrupted cycle but never
// reached the position.
func (l *Ledger) resume(
	ctx context.Context,
	pos *domain.Position,
	version uint64,
	entry domain.TradeHistoryEntry,
	seq uint64,
	applied appliedTrades,
) (*domain.PositionEvent, error) {
	l.l.Info("resuming recorded trade",
		zap.String("symbol", pos.Symbol),
		zap.String("ref", entry.Ref),
		zap.String("amount", entry.Amount.String()))

	balance := pos.AppliedBalance.Sub(entry.Amount)
	if balance.IsNegative() {
		balance = decimal.Zero
	}

	pos.Reduce(entry.ExitPrice, entry.Amount)
	pos.AppliedSeq = seq
	pos.AppliedBalance = balance

	ev, err := l.settle(ctx, pos, version, entry, l.now())
	if err != nil {
		return nil, err
	}
	if !entry.Partial {
		applied.markClosed(pos.Symbol)
	}
	return ev, nil
}

// settle writes pos after entry was recorded: a full close deletes the
// position and its extrema, a partial one stores the reduced position.
func (l *Ledger) settle(ctx context.Context, pos *domain.Position, version uint64, entry domain.TradeHistoryEntry, now time.Time) (*domain.PositionEvent, error) {
	price := entry.ExitPrice

	if !entry.Partial {
		if err := l.store.CompareAndDelete(ctx, l.layout.Position(pos.Symbol), version); err != nil {
			return nil, errors.Wrapf(err, "delete %s position", pos.Symbol)
		}
		if err := l.store.Delete(ctx, l.layout.Extrema(pos.Symbol)); err != nil {
			l.l.Warn("failed to discard extrema", zap.String("symbol", pos.Symbol), zap.Error(err))
		}

		l.l.Info("position closed",
			zap.String("symbol", pos.Symbol),
			zap.String("price", price.String()),
			zap.String("pnl", entry.PnL.String()),
			zap.String("realized_pnl", pos.RealizedPnL.String()))

		return l.event(domain.PositionClosed, *pos, price, entry.Amount.Neg(), &entry, now), nil
	}

	if err := l.writePosition(ctx, pos, version); err != nil {
		return nil, err
	}

	l.l.Info("position reduced",
		zap.String("symbol", pos.Symbol),
		zap.String("price", price.String()),
		zap.String("sold", entry.Amount.String()),
		zap.String("pnl", entry.PnL.String()))

	return l.event(domain.PositionReduced, *pos, price, entry.Amount.Neg(), &entry, now), nil
}

func (l *Ledger) writePosition(ctx context.Context, pos *domain.Position, version uint64) error {
	payload, err := json.Marshal(pos)
	if err != nil {
		return errors.Wrap(err, "encode position")
	}
	if _, err := l.store.CompareAndSet(ctx, l.layout.Position(pos.Symbol), payload, version); err != nil {
		return errors.Wrapf(err, "write %s position", pos.Symbol)
	}
	return nil
}

func (l *Ledger) event(kind domain.PositionEventKind, pos domain.Position, price, delta decimal.Decimal, trade *domain.TradeHistoryEntry, at time.Time) *domain.PositionEvent {
	return &domain.PositionEvent{
		Kind:     kind,
		Scope:    l.scope,
		Symbol:   pos.Symbol,
		Price:    price,
		Delta:    delta,
		Position: pos,
		Trade:    trade,
		At:       at,
	}
}

func (l *Ledger) hasChanges(previous, current domain.BalanceSnapshot) bool {
	for _, symbol := range domain.UnionSymbols(previous, current) {
		if !previous.Amount(symbol).Equal(current.Amount(symbol)) {
			return true
		}
	}
	return false
}

// needsPrices reports whether any tracked symbol moved by more than epsilon.
func (l *Ledger) needsPrices(previous, current domain.BalanceSnapshot) bool {
	for _, symbol := range domain.UnionSymbols(previous, current) {
		if _, skip := l.ignored[symbol]; skip {
			continue
		}
		delta := domain.Dust(current.Amount(symbol), l.epsilon).Sub(domain.Dust(previous.Amount(symbol), l.epsilon))
		if delta.Abs().GreaterThan(l.epsilon) {
			return true
		}
	}
	return false
}

// appliedTrades indexes recorded trades by ref, and the symbols closed
// within the current sequence.
type appliedTrades struct {
	refs       map[string]domain.TradeHistoryEntry
	closedSyms map[string]struct{}
}

func newAppliedTrades(history []domain.TradeHistoryEntry, seq uint64) appliedTrades {
	a := appliedTrades{refs: make(map[string]domain.TradeHistoryEntry), closedSyms: make(map[string]struct{})}
	for _, h := range history {
		a.refs[h.Ref] = h
		if h.Seq == seq && !h.Partial {
			a.markClosed(h.Asset)
		}
	}
	return a
}

func (a appliedTrades) add(e domain.TradeHistoryEntry) {
	a.refs[e.Ref] = e
	if !e.Partial {
		a.markClosed(e.Asset)
	}
}

func (a appliedTrades) get(ref string) (domain.TradeHistoryEntry, bool) {
	e, ok := a.refs[ref]
	return e, ok
}

func (a appliedTrades) markClosed(symbol string) {
	a.closedSyms[symbol] = struct{}{}
}

func (a appliedTrades) closed(symbol string) bool {
	_, ok := a.closedSyms[symbol]
	return ok
}
