package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	accountMock "github.com/vadiminshakov/watchtower/mocks/account"
	marketMock "github.com/vadiminshakov/watchtower/mocks/marketdata"

	"github.com/vadiminshakov/watchtower/internal/domain"
	"github.com/vadiminshakov/watchtower/internal/storage/kv"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.PositionEvent
}

func (r *recordingSink) PositionEvent(_ context.Context, ev domain.PositionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type testLedger struct {
	*Ledger
	store   *kv.WALStore
	account *accountMock.Gateway
	market  *marketMock.Gateway
	sink    *recordingSink
	clock   time.Time
}

func newTestLedger(t *testing.T) *testLedger {
	t.Helper()

	store, err := kv.NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tl := &testLedger{
		store:   store,
		account: accountMock.NewGateway(t),
		market:  marketMock.NewGateway(t),
		sink:    &recordingSink{},
		clock:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	tl.Ledger = NewLedger(zap.NewNop(), store, tl.account, tl.market, tl.sink, nil, Config{Quote: "USDT"})
	tl.now = func() time.Time { return tl.clock }

	return tl
}

func snapshot(seq uint64, balances map[string]string) domain.BalanceSnapshot {
	m := make(map[string]decimal.Decimal, len(balances))
	for k, v := range balances {
		m[k] = d(v)
	}
	return domain.NewBalanceSnapshot(seq, time.Time{}, m)
}

func prices(pairs ...string) map[string]domain.Ticker {
	m := make(map[string]domain.Ticker)
	for i := 0; i+1 < len(pairs); i += 2 {
		m[pairs[i]] = domain.Ticker{Price: d(pairs[i+1])}
	}
	return m
}

func TestLedger_OpenIncreaseClose(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)

	// open
	res, err := tl.Reconcile(ctx, snapshot(0, map[string]string{"BTC": "0"}), snapshot(1, map[string]string{"BTC": "0.5"}), prices("BTC", "60000"))
	require.NoError(t, err)
	require.Empty(t, res.Failed)
	require.Len(t, res.Events, 1)
	assert.Equal(t, domain.PositionOpened, res.Events[0].Kind)

	pos, _, err := tl.Position(ctx, "BTC")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.AverageBuyPrice.Equal(d("60000")))
	assert.True(t, pos.TotalAmountBought.Equal(d("0.5")))
	assert.Equal(t, tl.clock, pos.OpenDate)

	extrema, err := tl.Extrema(ctx, "BTC")
	require.NoError(t, err)
	require.NotNil(t, extrema)
	assert.True(t, extrema.High.Equal(d("60000")))
	assert.True(t, extrema.Low.Equal(d("60000")))

	// add
	res, err = tl.Reconcile(ctx, snapshot(1, map[string]string{"BTC": "0.5"}), snapshot(2, map[string]string{"BTC": "1.0"}), prices("BTC", "70000"))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, domain.PositionIncreased, res.Events[0].Kind)

	pos, _, err = tl.Position(ctx, "BTC")
	require.NoError(t, err)
	assert.True(t, pos.AverageBuyPrice.Equal(d("65000")), pos.AverageBuyPrice.String())
	assert.True(t, pos.TotalAmountBought.Equal(d("1")))

	// full close
	tl.clock = tl.clock.Add(48 * time.Hour)
	res, err = tl.Reconcile(ctx, snapshot(2, map[string]string{"BTC": "1.0"}), snapshot(3, map[string]string{"BTC": "0"}), prices("BTC", "80000"))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	ev := res.Events[0]
	assert.Equal(t, domain.PositionClosed, ev.Kind)
	require.NotNil(t, ev.Trade)
	assert.True(t, ev.Trade.PnL.Equal(d("15000")))
	assert.True(t, ev.TotalRealizedPnL().Equal(d("15000")))
	assert.True(t, ev.Trade.DurationDays.Equal(d("2")))
	assert.False(t, ev.Trade.Partial)

	pos, _, err = tl.Position(ctx, "BTC")
	require.NoError(t, err)
	assert.Nil(t, pos)

	extrema, err = tl.Extrema(ctx, "BTC")
	require.NoError(t, err)
	assert.Nil(t, extrema)

	history, err := tl.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].PnL.Equal(d("15000")))
	assert.Equal(t, "BTC", history[0].Asset)
}

func TestLedger_PartialClose(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)

	_, err := tl.Reconcile(ctx, snapshot(0, nil), snapshot(1, map[string]string{"ETH": "2"}), prices("ETH", "100"))
	require.NoError(t, err)

	res, err := tl.Reconcile(ctx, snapshot(1, map[string]string{"ETH": "2"}), snapshot(2, map[string]string{"ETH": "1.5"}), prices("ETH", "120"))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	ev := res.Events[0]
	assert.Equal(t, domain.PositionReduced, ev.Kind)
	require.NotNil(t, ev.Trade)
	assert.True(t, ev.Trade.Partial)
	assert.True(t, ev.Trade.PnL.Equal(d("10")))

	pos, _, err := tl.Position(ctx, "ETH")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.AverageBuyPrice.Equal(d("100")))
	assert.True(t, pos.Holding.Equal(d("1.5")))
	assert.True(t, pos.RealizedPnL.Equal(d("10")))

	// the next buy blends with the remaining holding
	_, err = tl.Reconcile(ctx, snapshot(2, map[string]string{"ETH": "1.5"}), snapshot(3, map[string]string{"ETH": "3"}), prices("ETH", "80"))
	require.NoError(t, err)
	pos, _, err = tl.Position(ctx, "ETH")
	require.NoError(t, err)
	assert.True(t, pos.AverageBuyPrice.Equal(d("90")), pos.AverageBuyPrice.String())
	assert.True(t, pos.TotalAmountBought.Equal(d("3.5")))
}

func TestLedger_WeightedAverageAcrossBuys(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)

	buys := []struct{ price, qty string }{{"10", "1"}, {"20", "3"}, {"5", "4"}}
	balance := decimal.Zero
	for i, b := range buys {
		prev := domain.NewBalanceSnapshot(uint64(i), time.Time{}, map[string]decimal.Decimal{"SOL": balance})
		balance = balance.Add(d(b.qty))
		cur := domain.NewBalanceSnapshot(uint64(i+1), time.Time{}, map[string]decimal.Decimal{"SOL": balance})
		_, err := tl.Reconcile(ctx, prev, cur, prices("SOL", b.price))
		require.NoError(t, err)
	}

	pos, _, err := tl.Position(ctx, "SOL")
	require.NoError(t, err)
	// (10*1 + 20*3 + 5*4) / 8
	assert.True(t, pos.AverageBuyPrice.Equal(d("11.25")), pos.AverageBuyPrice.String())
}

func TestLedger_DustAndIgnoredAssets(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)

	res, err := tl.Reconcile(ctx,
		snapshot(0, map[string]string{"USDT": "100", "BTC": "0.1"}),
		snapshot(1, map[string]string{"USDT": "5000", "BTC": "0.1000004"}),
		prices("BTC", "60000"))
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Empty(t, res.Failed)

	positions, err := tl.Positions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestLedger_MissingPriceIsolated(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)

	res, err := tl.Reconcile(ctx, snapshot(0, nil), snapshot(1, map[string]string{"BTC": "1", "XYZ": "10"}), prices("BTC", "60000"))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "BTC", res.Events[0].Symbol)
	require.Contains(t, res.Failed, "XYZ")
	assert.ErrorIs(t, res.Failed["XYZ"], domain.ErrStaleData)
}

func TestLedger_SellWithoutPositionIgnored(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)

	res, err := tl.Reconcile(ctx, snapshot(0, map[string]string{"ADA": "100"}), snapshot(1, map[string]string{"ADA": "40"}), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Empty(t, res.Failed)
}

func TestLedger_ReplayedCycleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)

	_, err := tl.Reconcile(ctx, snapshot(0, nil), snapshot(1, map[string]string{"BTC": "2"}), prices("BTC", "100"))
	require.NoError(t, err)

	prev := snapshot(1, map[string]string{"BTC": "2"})
	cur := snapshot(2, map[string]string{"BTC": "1"})

	res, err := tl.Reconcile(ctx, prev, cur, prices("BTC", "150"))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	// snapshot commit was lost, the same transition is replayed
	res, err = tl.Reconcile(ctx, prev, cur, prices("BTC", "150"))
	require.NoError(t, err)
	assert.Empty(t, res.Events)

	pos, _, err := tl.Position(ctx, "BTC")
	require.NoError(t, err)
	assert.True(t, pos.Holding.Equal(d("1")))
	history, err := tl.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	// replay with a newer balance only applies the remainder
	res, err = tl.Reconcile(ctx, prev, snapshot(2, map[string]string{"BTC": "1.5"}), prices("BTC", "200"))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, domain.PositionIncreased, res.Events[0].Kind)
	pos, _, err = tl.Position(ctx, "BTC")
	require.NoError(t, err)
	assert.True(t, pos.Holding.Equal(d("1.5")))
}

func TestLedger_ReplayedCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)

	_, err := tl.Reconcile(ctx, snapshot(0, nil), snapshot(1, map[string]string{"BTC": "1"}), prices("BTC", "100"))
	require.NoError(t, err)

	prev := snapshot(1, map[string]string{"BTC": "1"})
	_, err = tl.Reconcile(ctx, prev, snapshot(2, map[string]string{"BTC": "0"}), prices("BTC", "120"))
	require.NoError(t, err)

	// bought back before the replay
	res, err := tl.Reconcile(ctx, prev, snapshot(2, map[string]string{"BTC": "0.3"}), prices("BTC", "110"))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, domain.PositionOpened, res.Events[0].Kind)

	pos, _, err := tl.Position(ctx, "BTC")
	require.NoError(t, err)
	assert.True(t, pos.Holding.Equal(d("0.3")))
	history, err := tl.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestLedger_RunCommitsSnapshot(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)

	tl.account.On("GetBalances", mock.Anything).Return(map[string]decimal.Decimal{"BTC": d("0.5"), "USDT": d("10")}, nil).Once()
	tl.market.On("GetPrices", mock.Anything).Return(prices("BTC", "60000"), nil).Once()

	require.NoError(t, tl.Run(ctx))

	snap, _, err := tl.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Seq)
	assert.True(t, snap.Amount("BTC").Equal(d("0.5")))
	require.Len(t, tl.sink.events, 1)
	assert.Equal(t, domain.PositionOpened, tl.sink.events[0].Kind)

	// unchanged balances need neither prices nor a new snapshot
	tl.account.On("GetBalances", mock.Anything).Return(map[string]decimal.Decimal{"BTC": d("0.5"), "USDT": d("10")}, nil).Once()
	require.NoError(t, tl.Run(ctx))
	snap, _, err = tl.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Seq)
}

func TestLedger_RunGatewayFailureLeavesState(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)

	tl.account.On("GetBalances", mock.Anything).Return(map[string]decimal.Decimal{"BTC": d("1")}, nil).Once()
	tl.market.On("GetPrices", mock.Anything).Return(prices("BTC", "100"), nil).Once()
	require.NoError(t, tl.Run(ctx))

	upstream := domain.NewUpstreamError("okx", "balance", "50001", errors.New("service unavailable"))
	tl.account.On("GetBalances", mock.Anything).Return(nil, upstream).Once()
	err := tl.Run(ctx)
	require.ErrorIs(t, err, domain.ErrUpstream)

	tl.account.On("GetBalances", mock.Anything).Return(map[string]decimal.Decimal{}, nil).Once()
	require.NoError(t, tl.Run(ctx))

	snap, _, err := tl.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Seq)
	assert.True(t, snap.Amount("BTC").Equal(d("1")))

	pos, _, err := tl.Position(ctx, "BTC")
	require.NoError(t, err)
	require.NotNil(t, pos)
}

func TestLedger_RunCarriesFailedSymbolForward(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)

	tl.account.On("GetBalances", mock.Anything).Return(map[string]decimal.Decimal{"BTC": d("1"), "NEW": d("5")}, nil).Once()
	tl.market.On("GetPrices", mock.Anything).Return(prices("BTC", "100"), nil).Once()
	require.NoError(t, tl.Run(ctx))

	snap, _, err := tl.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Amount("BTC").Equal(d("1")))
	_, ok := snap.Balances["NEW"]
	assert.False(t, ok)

	// price shows up on the next tick and the delta is detected again
	tl.account.On("GetBalances", mock.Anything).Return(map[string]decimal.Decimal{"BTC": d("1"), "NEW": d("5")}, nil).Once()
	tl.market.On("GetPrices", mock.Anything).Return(prices("BTC", "100", "NEW", "2"), nil).Once()
	require.NoError(t, tl.Run(ctx))

	pos, _, err := tl.Position(ctx, "NEW")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.AverageBuyPrice.Equal(d("2")))
}

func TestLedger_VirtualScopeIsolated(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)

	virtual := NewLedger(zap.NewNop(), tl.store, tl.account, tl.market, tl.sink, nil, Config{Scope: "virtual", Quote: "USDT"})
	_, err := virtual.Reconcile(ctx, snapshot(0, nil), snapshot(1, map[string]string{"BTC": "1"}), prices("BTC", "100"))
	require.NoError(t, err)

	pos, _, err := tl.Position(ctx, "BTC")
	require.NoError(t, err)
	assert.Nil(t, pos)

	vpos, _, err := virtual.Position(ctx, "BTC")
	require.NoError(t, err)
	require.NotNil(t, vpos)

	keys, err := tl.store.Keys(ctx, "virtual:")
	require.NoError(t, err)
	assert.Contains(t, keys, "virtual:position:BTC")
}

// failingStore fails writes of one key until failures is exhausted.
type failingStore struct {
	kv.Store
	key      string
	failures int
}

func (s *failingStore) fail(key string) error {
	if key == s.key && s.failures > 0 {
		s.failures--
		return errors.New("no space left on device")
	}
	return nil
}

func (s *failingStore) CompareAndSet(ctx context.Context, key string, value []byte, version uint64) (uint64, error) {
	if err := s.fail(key); err != nil {
		return 0, err
	}
	return s.Store.CompareAndSet(ctx, key, value, version)
}

func (s *failingStore) CompareAndDelete(ctx context.Context, key string, version uint64) error {
	if err := s.fail(key); err != nil {
		return err
	}
	return s.Store.CompareAndDelete(ctx, key, version)
}

type recordingJournal struct {
	refs []string
}

func (j *recordingJournal) Record(_ context.Context, _ string, e domain.TradeHistoryEntry) error {
	j.refs = append(j.refs, e.Ref)
	return nil
}

// withFailingPosition rebuilds the ledger over a store that fails the next
// write of the symbol position.
func (tl *testLedger) withFailingPosition(symbol string, journal tradeJournal) *failingStore {
	store := &failingStore{Store: tl.store, key: tl.Layout().Position(symbol), failures: 1}
	tl.Ledger = NewLedger(zap.NewNop(), store, tl.account, tl.market, tl.sink, journal, Config{Quote: "USDT"})
	tl.now = func() time.Time { return tl.clock }
	return store
}

func (tl *testLedger) runWith(t *testing.T, balances map[string]decimal.Decimal, tickers map[string]domain.Ticker) {
	t.Helper()
	tl.account.On("GetBalances", mock.Anything).Return(balances, nil).Once()
	if tickers != nil {
		tl.market.On("GetPrices", mock.Anything).Return(tickers, nil).Once()
	}
	require.NoError(t, tl.Run(context.Background()))
}

func TestLedger_InterruptedCloseBookedOnce(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	journal := &recordingJournal{}

	tl.runWith(t, map[string]decimal.Decimal{"BTC": d("1")}, prices("BTC", "100"))
	tl.withFailingPosition("BTC", journal)

	// trade recorded, position delete fails
	tl.runWith(t, map[string]decimal.Decimal{"BTC": d("0")}, prices("BTC", "150"))
	pos, _, err := tl.Position(ctx, "BTC")
	require.NoError(t, err)
	require.NotNil(t, pos)
	snap, _, err := tl.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Amount("BTC").Equal(d("1")))

	tl.runWith(t, map[string]decimal.Decimal{"BTC": d("0")}, prices("BTC", "170"))

	pos, _, err = tl.Position(ctx, "BTC")
	require.NoError(t, err)
	assert.Nil(t, pos)

	history, err := tl.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].PnL.Equal(d("50")), history[0].PnL.String())
	assert.Len(t, journal.refs, 1)

	closed := tl.sink.events[len(tl.sink.events)-1]
	assert.Equal(t, domain.PositionClosed, closed.Kind)
	require.NotNil(t, closed.Trade)
	assert.True(t, closed.Trade.PnL.Equal(d("50")))
	assert.True(t, closed.Price.Equal(d("150")))
}

func TestLedger_InterruptedPartialCloseBookedOnce(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)

	tl.runWith(t, map[string]decimal.Decimal{"BTC": d("2")}, prices("BTC", "100"))
	tl.withFailingPosition("BTC", nil)

	tl.runWith(t, map[string]decimal.Decimal{"BTC": d("1")}, prices("BTC", "150"))
	tl.runWith(t, map[string]decimal.Decimal{"BTC": d("1")}, prices("BTC", "150"))

	pos, _, err := tl.Position(ctx, "BTC")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.Holding.Equal(d("1")), pos.Holding.String())
	assert.True(t, pos.RealizedPnL.Equal(d("50")), pos.RealizedPnL.String())
	assert.True(t, pos.AppliedBalance.Equal(d("1")))

	history, err := tl.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Partial)

	// settled: an unchanged balance is a no-op
	tl.runWith(t, map[string]decimal.Decimal{"BTC": d("1")}, nil)
	history, err = tl.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestLedger_ResumedCloseThenBuyBack(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)

	tl.runWith(t, map[string]decimal.Decimal{"BTC": d("1")}, prices("BTC", "100"))
	tl.withFailingPosition("BTC", nil)
	tl.runWith(t, map[string]decimal.Decimal{"BTC": d("0")}, prices("BTC", "150"))

	tl.sink.events = nil
	tl.runWith(t, map[string]decimal.Decimal{"BTC": d("0.4")}, prices("BTC", "200"))

	require.Len(t, tl.sink.events, 2)
	assert.Equal(t, domain.PositionClosed, tl.sink.events[0].Kind)
	assert.Equal(t, domain.PositionOpened, tl.sink.events[1].Kind)

	pos, _, err := tl.Position(ctx, "BTC")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.Holding.Equal(d("0.4")))
	assert.True(t, pos.AverageBuyPrice.Equal(d("200")))

	history, err := tl.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestLedger_EmptyAccountConfirmedAfterRepeats(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)

	tl.runWith(t, map[string]decimal.Decimal{"BTC": d("1"), "USDT": d("5")}, prices("BTC", "100"))

	for i := 1; i < emptyConfirmations; i++ {
		tl.runWith(t, map[string]decimal.Decimal{}, nil)
		pos, _, err := tl.Position(ctx, "BTC")
		require.NoError(t, err)
		require.NotNil(t, pos, "skip %d", i)
	}

	tl.runWith(t, map[string]decimal.Decimal{}, prices("BTC", "120"))

	pos, _, err := tl.Position(ctx, "BTC")
	require.NoError(t, err)
	assert.Nil(t, pos)
	snap, _, err := tl.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.IsEmpty())
}

func TestLedger_EmptyStreakResetsOnBalances(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)

	tl.runWith(t, map[string]decimal.Decimal{"BTC": d("1")}, prices("BTC", "100"))
	for i := 1; i < emptyConfirmations; i++ {
		tl.runWith(t, map[string]decimal.Decimal{}, nil)
	}
	tl.runWith(t, map[string]decimal.Decimal{"BTC": d("1")}, nil)
	tl.runWith(t, map[string]decimal.Decimal{}, nil)

	pos, _, err := tl.Position(ctx, "BTC")
	require.NoError(t, err)
	require.NotNil(t, pos)
}
