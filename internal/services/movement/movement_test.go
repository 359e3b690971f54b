package movement

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	marketMock "github.com/vadiminshakov/watchtower/mocks/marketdata"

	"github.com/vadiminshakov/watchtower/internal/domain"
	"github.com/vadiminshakov/watchtower/internal/storage/keys"
	"github.com/vadiminshakov/watchtower/internal/storage/kv"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recordingSink struct {
	events []domain.MovementEvent
}

func (r *recordingSink) MovementEvent(_ context.Context, ev domain.MovementEvent) {
	r.events = append(r.events, ev)
}

type staticPositions []domain.Position

func (s staticPositions) Positions(context.Context) ([]domain.Position, error) {
	return s, nil
}

type countingObserver struct {
	calls int
}

func (c *countingObserver) UpdateAll(context.Context, map[string]domain.Ticker) error {
	c.calls++
	return nil
}

func newTestDetector(t *testing.T, prices priceSource, sink eventSink, positions []PositionLister, observers []PriceObserver, watchlist ...string) (*Detector, kv.Store) {
	t.Helper()
	store, err := kv.NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	det := NewDetector(zap.NewNop(), store, prices, sink, positions, observers, Config{
		DefaultThreshold: d("5"),
		Watchlist:        watchlist,
	})
	det.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	return det, store
}

func TestEvaluate_FiresAndResetsBaseline(t *testing.T) {
	ctx := context.Background()
	det, store := newTestDetector(t, nil, nil, nil, nil)
	require.NoError(t, kv.SetJSON(ctx, store, keys.Baseline("ETH"), domain.Baseline{Symbol: "ETH", Price: d("2000")}))

	ev, err := det.Evaluate(ctx, "ETH", d("2110"))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, domain.DirectionUp, ev.Direction)
	assert.True(t, ev.ChangePercent.Equal(d("5.5")), ev.ChangePercent.String())
	assert.True(t, ev.Baseline.Equal(d("2000")))
	assert.True(t, ev.Threshold.Equal(d("5")))

	b, err := det.Baseline(ctx, "ETH")
	require.NoError(t, err)
	assert.True(t, b.Price.Equal(d("2110")))

	// same price again never fires twice
	ev, err = det.Evaluate(ctx, "ETH", d("2110"))
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestEvaluate_FirstObservationSeeds(t *testing.T) {
	ctx := context.Background()
	det, _ := newTestDetector(t, nil, nil, nil, nil)

	ev, err := det.Evaluate(ctx, "btc", d("60000"))
	require.NoError(t, err)
	assert.Nil(t, ev)

	b, err := det.Baseline(ctx, "BTC")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.True(t, b.Price.Equal(d("60000")))
}

func TestEvaluate_BelowThresholdKeepsBaseline(t *testing.T) {
	ctx := context.Background()
	det, _ := newTestDetector(t, nil, nil, nil, nil)

	_, err := det.Evaluate(ctx, "SOL", d("100"))
	require.NoError(t, err)

	for _, p := range []string{"103", "97", "104"} {
		ev, err := det.Evaluate(ctx, "SOL", d(p))
		require.NoError(t, err)
		assert.Nil(t, ev, p)
	}

	b, err := det.Baseline(ctx, "SOL")
	require.NoError(t, err)
	assert.True(t, b.Price.Equal(d("100")))

	ev, err := det.Evaluate(ctx, "SOL", d("95"))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, domain.DirectionDown, ev.Direction)
	assert.True(t, ev.ChangePercent.Equal(d("-5")))
}

func TestEvaluate_Override(t *testing.T) {
	ctx := context.Background()
	det, _ := newTestDetector(t, nil, nil, nil, nil)
	require.NoError(t, det.SetOverride(ctx, "doge", d("10")))

	_, err := det.Evaluate(ctx, "DOGE", d("0.1"))
	require.NoError(t, err)

	ev, err := det.Evaluate(ctx, "DOGE", d("0.107"))
	require.NoError(t, err)
	assert.Nil(t, ev)

	ev, err = det.Evaluate(ctx, "DOGE", d("0.11"))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.True(t, ev.Threshold.Equal(d("10")))

	require.NoError(t, det.ClearOverride(ctx, "DOGE"))
	s, err := det.Settings(ctx)
	require.NoError(t, err)
	assert.True(t, s.Threshold("DOGE").Equal(d("5")))
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	det, _ := newTestDetector(t, nil, nil, nil, nil)

	s, err := det.Settings(ctx)
	require.NoError(t, err)
	assert.True(t, s.Global.Equal(d("5")))

	require.NoError(t, det.SetGlobal(ctx, d("3")))
	require.NoError(t, det.SetOverride(ctx, "BTC", d("2")))
	s, err = det.Settings(ctx)
	require.NoError(t, err)
	assert.True(t, s.Global.Equal(d("3")))
	assert.True(t, s.Threshold("BTC").Equal(d("2")))

	assert.Error(t, det.SetGlobal(ctx, d("0")))
	assert.Error(t, det.SetOverride(ctx, "BTC", d("-1")))
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	market := marketMock.NewGateway(t)
	sink := &recordingSink{}
	observer := &countingObserver{}
	positions := staticPositions{{Symbol: "BTC"}}

	det, store := newTestDetector(t, market, sink, []PositionLister{positions}, []PriceObserver{observer}, "eth", "xrp")
	require.NoError(t, kv.SetJSON(ctx, store, keys.Baseline("ETH"), domain.Baseline{Symbol: "ETH", Price: d("2000")}))
	require.NoError(t, kv.SetJSON(ctx, store, keys.Baseline("BTC"), domain.Baseline{Symbol: "BTC", Price: d("60000")}))

	market.On("GetPrices", mock.Anything).Return(map[string]domain.Ticker{
		"ETH": {Price: d("2110")},
		"BTC": {Price: d("60500")},
		"ADA": {Price: d("1")},
	}, nil).Once()

	require.NoError(t, det.Run(ctx))

	require.Len(t, sink.events, 1)
	assert.Equal(t, "ETH", sink.events[0].Symbol)
	assert.Equal(t, 1, observer.calls)

	b, err := det.Baseline(ctx, "ADA")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestRun_GatewayFailure(t *testing.T) {
	market := marketMock.NewGateway(t)
	sink := &recordingSink{}
	observer := &countingObserver{}
	det, _ := newTestDetector(t, market, sink, nil, []PriceObserver{observer}, "ETH")

	market.On("GetPrices", mock.Anything).
		Return(nil, domain.NewUpstreamError("okx", "tickers", "50011", errors.New("rate limited"))).Once()

	err := det.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstream))
	assert.Empty(t, sink.events)
	assert.Zero(t, observer.calls)
}
