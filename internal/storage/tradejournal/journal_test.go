package tradejournal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/watchtower/internal/domain"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	return j, path
}

func entry(id, asset, pnl string, closedAt time.Time) domain.TradeHistoryEntry {
	return domain.TradeHistoryEntry{
		ID:           id,
		Asset:        asset,
		PnL:          decimal.RequireFromString(pnl),
		DurationDays: decimal.RequireFromString("1.5"),
		ClosedAt:     closedAt,
		Amount:       decimal.RequireFromString("0.25"),
		ExitPrice:    decimal.RequireFromString("80000"),
		EntryPrice:   decimal.RequireFromString("65000"),
		Seq:          7,
		Ref:          asset + "/7/0",
	}
}

func TestSQLite_SchemaCreated(t *testing.T) {
	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='trades'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "trades", name)
}

func TestSQLite_RecordAndList(t *testing.T) {
	ctx := context.Background()
	j, _ := newTestSQLite(t)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, j.Record(ctx, "", entry("01A", "BTC", "3750.5", base)))
	require.NoError(t, j.Record(ctx, "", entry("01B", "ETH", "-20", base.Add(time.Hour))))
	require.NoError(t, j.Record(ctx, "virtual", entry("01C", "SOL", "5", base.Add(2*time.Hour))))

	trades, err := j.List(ctx, "", time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "ETH", trades[0].Asset)
	assert.Equal(t, "BTC", trades[1].Asset)
	assert.True(t, trades[1].PnL.Equal(decimal.RequireFromString("3750.5")))
	assert.True(t, trades[1].Amount.Equal(decimal.RequireFromString("0.25")))
	assert.Equal(t, uint64(7), trades[1].Seq)
	assert.True(t, trades[1].ClosedAt.Equal(base))

	trades, err = j.List(ctx, "", time.Time{}, 1)
	require.NoError(t, err)
	assert.Len(t, trades, 1)

	total, n, err := j.Realized(ctx, "", base.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, total.Equal(decimal.NewFromInt(-20)))
}

func TestSQLite_RecordIsIdempotent(t *testing.T) {
	ctx := context.Background()
	j, _ := newTestSQLite(t)
	now := time.Now()

	e := entry("01A", "BTC", "10", now)
	require.NoError(t, j.Record(ctx, "", e))

	// same balance transition recorded again under a new id
	e.ID = "01B"
	require.NoError(t, j.Record(ctx, "", e))

	trades, err := j.List(ctx, "", time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}
