package extrema

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/watchtower/internal/domain"
	"github.com/vadiminshakov/watchtower/internal/storage/keys"
	"github.com/vadiminshakov/watchtower/internal/storage/kv"
)

func newStore(t *testing.T) *kv.WALStore {
	t.Helper()
	store, err := kv.NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func openPosition(t *testing.T, store kv.Store, scope, symbol string, price int64) {
	t.Helper()
	pos, err := domain.OpenPosition(symbol, decimal.NewFromInt(price), decimal.NewFromInt(1), time.Now(), 1)
	require.NoError(t, err)
	require.NoError(t, kv.SetJSON(context.Background(), store, keys.ForScope(scope).Position(symbol), pos))
}

func TestTracker_Update(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	tr := NewTracker(zap.NewNop(), store, "")

	openPosition(t, store, "", "BTC", 60000)
	seed := domain.NewExtrema("BTC", decimal.NewFromInt(60000), time.Now())
	require.NoError(t, kv.SetJSON(ctx, store, keys.ForScope("").Extrema("BTC"), seed))

	require.NoError(t, tr.Update(ctx, "BTC", decimal.NewFromInt(62000)))
	require.NoError(t, tr.Update(ctx, "BTC", decimal.NewFromInt(58000)))
	require.NoError(t, tr.Update(ctx, "BTC", decimal.NewFromInt(61000)))

	e, err := tr.Get(ctx, "BTC")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.True(t, e.High.Equal(decimal.NewFromInt(62000)))
	assert.True(t, e.Low.Equal(decimal.NewFromInt(58000)))
}

func TestTracker_UnchangedPriceSkipsWrite(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	tr := NewTracker(zap.NewNop(), store, "")

	openPosition(t, store, "", "ETH", 2000)
	require.NoError(t, tr.Update(ctx, "ETH", decimal.NewFromInt(2000)))
	before, err := store.Get(ctx, keys.ForScope("").Extrema("ETH"))
	require.NoError(t, err)

	require.NoError(t, tr.Update(ctx, "ETH", decimal.NewFromInt(2000)))
	after, err := store.Get(ctx, keys.ForScope("").Extrema("ETH"))
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
}

func TestTracker_IgnoresSymbolsWithoutPosition(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	tr := NewTracker(zap.NewNop(), store, "")

	require.NoError(t, tr.Update(ctx, "DOGE", decimal.NewFromFloat(0.1)))
	e, err := tr.Get(ctx, "DOGE")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestTracker_UpdateAllPerScope(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	account := NewTracker(zap.NewNop(), store, "")
	virtual := NewTracker(zap.NewNop(), store, keys.VirtualScope)

	openPosition(t, store, "", "BTC", 60000)
	openPosition(t, store, keys.VirtualScope, "SOL", 100)

	prices := map[string]domain.Ticker{
		"BTC": {Price: decimal.NewFromInt(61000)},
		"SOL": {Price: decimal.NewFromInt(90)},
	}
	require.NoError(t, account.UpdateAll(ctx, prices))
	require.NoError(t, virtual.UpdateAll(ctx, prices))

	e, err := account.Get(ctx, "BTC")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.True(t, e.High.Equal(decimal.NewFromInt(61000)))

	e, err = account.Get(ctx, "SOL")
	require.NoError(t, err)
	assert.Nil(t, e)

	e, err = virtual.Get(ctx, "SOL")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.True(t, e.Low.Equal(decimal.NewFromInt(90)))
}

func TestTracker_RejectsMissingPrice(t *testing.T) {
	tr := NewTracker(zap.NewNop(), newStore(t), "")
	err := tr.Update(context.Background(), "BTC", decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrStaleData)
}

// closingStore closes the position, the way the ledger does, right after the
// tracker has read it.
type closingStore struct {
	kv.Store
	layout keys.Layout
	symbol string
	closed bool
}

func (s *closingStore) Get(ctx context.Context, key string) (kv.Item, error) {
	if key == s.layout.Extrema(s.symbol) && !s.closed {
		s.closed = true
		if err := s.Store.Delete(ctx, s.layout.Position(s.symbol)); err != nil {
			return kv.Item{}, err
		}
		if err := s.Store.Delete(ctx, key); err != nil {
			return kv.Item{}, err
		}
	}
	return s.Store.Get(ctx, key)
}

func TestTracker_PositionClosedDuringSeed(t *testing.T) {
	ctx := context.Background()
	base := newStore(t)
	openPosition(t, base, "", "BTC", 100)

	store := &closingStore{Store: base, layout: keys.ForScope(""), symbol: "BTC"}
	tr := NewTracker(zap.NewNop(), store, "")

	require.NoError(t, tr.Update(ctx, "BTC", decimal.NewFromInt(120)))
	require.True(t, store.closed)

	e, err := tr.Get(ctx, "BTC")
	require.NoError(t, err)
	assert.Nil(t, e)

	_, err = base.Get(ctx, keys.ForScope("").Extrema("BTC"))
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestTracker_SeedsMissingRecord(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	tr := NewTracker(zap.NewNop(), store, "")

	openPosition(t, store, "", "BTC", 100)
	require.NoError(t, tr.Update(ctx, "BTC", decimal.NewFromInt(120)))

	e, err := tr.Get(ctx, "BTC")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.True(t, e.High.Equal(decimal.NewFromInt(120)))
	assert.True(t, e.Low.Equal(decimal.NewFromInt(120)))
}
