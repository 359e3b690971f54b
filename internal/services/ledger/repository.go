package ledger

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/watchtower/internal/domain"
	"github.com/vadiminshakov/watchtower/internal/storage/keys"
	"github.com/vadiminshakov/watchtower/internal/storage/kv"
)

const defaultHistoryLimit = 1000

// Repository reads and writes ledger state of one scope.
type Repository struct {
	store        kv.Store
	layout       keys.Layout
	historyLimit int
}

func NewRepository(store kv.Store, scope string) *Repository {
	return &Repository{store: store, layout: keys.ForScope(scope), historyLimit: defaultHistoryLimit}
}

// Layout returns the key layout of the repository scope.
func (r *Repository) Layout() keys.Layout { return r.layout }

// Position returns the open position of symbol or nil.
func (r *Repository) Position(ctx context.Context, symbol string) (*domain.Position, uint64, error) {
	p, version, err := kv.GetJSON[domain.Position](ctx, r.store, r.layout.Position(symbol))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, errors.Wrapf(err, "load %s position", symbol)
	}
	return &p, version, nil
}

// Positions returns every open position sorted by symbol.
func (r *Repository) Positions(ctx context.Context) ([]domain.Position, error) {
	ks, err := r.store.Keys(ctx, r.layout.PositionPrefix())
	if err != nil {
		return nil, errors.Wrap(err, "list positions")
	}

	positions := make([]domain.Position, 0, len(ks))
	for _, k := range ks {
		p, _, err := kv.GetJSON[domain.Position](ctx, r.store, k)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "load position %s", k)
		}
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	return positions, nil
}

// History returns the trade history, oldest first.
func (r *Repository) History(ctx context.Context) ([]domain.TradeHistoryEntry, error) {
	h, _, err := kv.GetJSON[[]domain.TradeHistoryEntry](ctx, r.store, r.layout.TradeHistory())
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load trade history")
	}
	return h, nil
}

// Extrema returns the tracked extrema of symbol or nil.
func (r *Repository) Extrema(ctx context.Context, symbol string) (*domain.Extrema, error) {
	e, _, err := kv.GetJSON[domain.Extrema](ctx, r.store, r.layout.Extrema(symbol))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load %s extrema", symbol)
	}
	return &e, nil
}

// Snapshot returns the last committed balance snapshot.
func (r *Repository) Snapshot(ctx context.Context) (domain.BalanceSnapshot, uint64, error) {
	s, version, err := kv.GetJSON[domain.BalanceSnapshot](ctx, r.store, r.layout.BalanceSnapshot())
	if errors.Is(err, kv.ErrNotFound) {
		return domain.BalanceSnapshot{}, 0, nil
	}
	if err != nil {
		return domain.BalanceSnapshot{}, 0, errors.Wrap(err, "load balance snapshot")
	}
	return s, version, nil
}

// appendTrade appends e unless an entry with the same ref is already recorded.
// Returns false when the entry was already present.
func (r *Repository) appendTrade(ctx context.Context, e domain.TradeHistoryEntry) (bool, error) {
	appended := false
	err := kv.Update(ctx, r.store, r.layout.TradeHistory(), func(cur *[]domain.TradeHistoryEntry) (*[]domain.TradeHistoryEntry, error) {
		appended = false
		var history []domain.TradeHistoryEntry
		if cur != nil {
			history = *cur
		}
		for _, h := range history {
			if h.Ref == e.Ref {
				return nil, kv.ErrSkip
			}
		}

		history = append(history, e)
		if r.historyLimit > 0 && len(history) > r.historyLimit {
			history = history[len(history)-r.historyLimit:]
		}
		appended = true
		return &history, nil
	})
	if err != nil {
		return false, errors.Wrap(err, "append trade history")
	}
	return appended, nil
}
