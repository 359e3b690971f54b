package account

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/watchtower/internal/storage/kv"
)

func TestStoreAccount(t *testing.T) {
	ctx := context.Background()
	store, err := kv.NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	acc := NewStoreAccount(store, "virtual:balances")

	balances, err := acc.GetBalances(ctx)
	require.NoError(t, err)
	assert.Empty(t, balances)

	require.NoError(t, acc.SetBalance(ctx, "btc", decimal.RequireFromString("0.5")))
	require.NoError(t, acc.Adjust(ctx, "BTC", decimal.RequireFromString("0.25")))
	require.NoError(t, acc.Adjust(ctx, "ETH", decimal.NewFromInt(2)))

	balances, err = acc.GetBalances(ctx)
	require.NoError(t, err)
	assert.True(t, balances["BTC"].Equal(decimal.RequireFromString("0.75")))
	assert.True(t, balances["ETH"].Equal(decimal.NewFromInt(2)))

	require.Error(t, acc.Adjust(ctx, "ETH", decimal.NewFromInt(-3)))
	require.NoError(t, acc.Adjust(ctx, "ETH", decimal.NewFromInt(-2)))
	require.Error(t, acc.SetBalance(ctx, "SOL", decimal.NewFromInt(-1)))

	balances, err = acc.GetBalances(ctx)
	require.NoError(t, err)
	_, ok := balances["ETH"]
	assert.False(t, ok)
}
