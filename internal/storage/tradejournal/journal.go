// Package tradejournal mirrors closed trades into SQLite for reporting queries.
package tradejournal

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/watchtower/internal/domain"
)

// SQLite trade journal. Decimals are stored as text to keep them exact.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "open trade journal")
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create trade journal schema")
	}

	return &SQLite{db: db}, nil
}

// Record stores a trade. Entries already recorded for the same balance
// transition are ignored.
func (j *SQLite) Record(ctx context.Context, scope string, e domain.TradeHistoryEntry) error {
	ref := e.Ref
	if ref == "" {
		ref = e.ID
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO trades
		(id, scope, ref, asset, partial, amount, entry_price, exit_price, pnl, duration_days, seq, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, scope, ref, e.Asset, e.Partial,
		e.Amount.String(), e.EntryPrice.String(), e.ExitPrice.String(),
		e.PnL.String(), e.DurationDays.String(), e.Seq, e.ClosedAt.UTC(),
	)
	return errors.Wrapf(err, "record trade %s", e.ID)
}

// List returns trades of scope closed at or after since, newest first.
// A non-positive limit returns every match.
func (j *SQLite) List(ctx context.Context, scope string, since time.Time, limit int) ([]domain.TradeHistoryEntry, error) {
	query := `
		SELECT id, ref, asset, partial, amount, entry_price, exit_price, pnl, duration_days, seq, closed_at
		FROM trades
		WHERE scope = ? AND closed_at >= ?
		ORDER BY closed_at DESC, id DESC`
	args := []any{scope, since.UTC()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query trades")
	}
	defer rows.Close()

	var out []domain.TradeHistoryEntry
	for rows.Next() {
		var (
			e                                  domain.TradeHistoryEntry
			amount, entry, exit, pnl, duration string
		)
		if err := rows.Scan(&e.ID, &e.Ref, &e.Asset, &e.Partial, &amount, &entry, &exit, &pnl, &duration, &e.Seq, &e.ClosedAt); err != nil {
			return nil, errors.Wrap(err, "scan trade")
		}
		if err := parseDecimals(
			[]string{amount, entry, exit, pnl, duration},
			[]*decimal.Decimal{&e.Amount, &e.EntryPrice, &e.ExitPrice, &e.PnL, &e.DurationDays},
		); err != nil {
			return nil, errors.Wrapf(err, "decode trade %s", e.ID)
		}
		out = append(out, e)
	}

	return out, errors.Wrap(rows.Err(), "iterate trades")
}

// Realized sums the pnl of trades of scope closed at or after since.
func (j *SQLite) Realized(ctx context.Context, scope string, since time.Time) (decimal.Decimal, int, error) {
	trades, err := j.List(ctx, scope, since, 0)
	if err != nil {
		return decimal.Zero, 0, err
	}
	total, n := domain.RealizedSince(trades, since)
	return total, n, nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func parseDecimals(src []string, dst []*decimal.Decimal) error {
	for i, s := range src {
		v, err := decimal.NewFromString(s)
		if err != nil {
			return err
		}
		*dst[i] = v
	}
	return nil
}
