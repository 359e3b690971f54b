package alerts

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/watchtower/internal/domain"
	"github.com/vadiminshakov/watchtower/internal/storage/keys"
	"github.com/vadiminshakov/watchtower/internal/storage/kv"
)

// Book manages stored price alerts.
type Book struct {
	store kv.Store
	now   func() time.Time
}

func NewBook(store kv.Store) *Book {
	return &Book{store: store, now: time.Now}
}

// Add stores a new alert on instID.
func (b *Book) Add(ctx context.Context, instID string, condition domain.AlertCondition, price decimal.Decimal) (domain.PriceAlert, error) {
	alert, err := domain.NewPriceAlert(uuid.NewString(), instID, condition, price, b.now().UTC())
	if err != nil {
		return domain.PriceAlert{}, err
	}

	err = kv.Update(ctx, b.store, keys.Alerts(alert.InstID), func(cur *[]domain.PriceAlert) (*[]domain.PriceAlert, error) {
		var next []domain.PriceAlert
		if cur != nil {
			next = append(next, *cur...)
		}
		next = append(next, alert)
		return &next, nil
	})
	if err != nil {
		return domain.PriceAlert{}, errors.Wrapf(err, "add alert on %s", alert.InstID)
	}

	return alert, nil
}

// Remove deletes the alert with id. Returns false when no such alert exists.
func (b *Book) Remove(ctx context.Context, instID, id string) (bool, error) {
	pair, err := domain.ParsePair(instID)
	if err != nil {
		return false, err
	}

	removed := false
	err = kv.Update(ctx, b.store, keys.Alerts(pair.InstID()), func(cur *[]domain.PriceAlert) (*[]domain.PriceAlert, error) {
		removed = false
		if cur == nil {
			return nil, kv.ErrSkip
		}
		next := make([]domain.PriceAlert, 0, len(*cur))
		for _, a := range *cur {
			if a.ID == id {
				removed = true
				continue
			}
			next = append(next, a)
		}
		if !removed {
			return nil, kv.ErrSkip
		}
		if len(next) == 0 {
			return nil, nil
		}
		return &next, nil
	})
	if err != nil {
		return false, errors.Wrapf(err, "remove alert %s", id)
	}

	return removed, nil
}

// List returns the alerts of instID.
func (b *Book) List(ctx context.Context, instID string) ([]domain.PriceAlert, error) {
	pair, err := domain.ParsePair(instID)
	if err != nil {
		return nil, err
	}

	list, _, err := kv.GetJSON[[]domain.PriceAlert](ctx, b.store, keys.Alerts(pair.InstID()))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load alerts of %s", pair.InstID())
	}
	return list, nil
}

// ListAll returns every stored alert ordered by instrument and creation time.
func (b *Book) ListAll(ctx context.Context) ([]domain.PriceAlert, error) {
	instIDs, err := b.Instruments(ctx)
	if err != nil {
		return nil, err
	}

	var all []domain.PriceAlert
	for _, instID := range instIDs {
		list, err := b.List(ctx, instID)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
		all = append(all, list...)
	}
	return all, nil
}

// Instruments returns the instruments that have at least one alert.
func (b *Book) Instruments(ctx context.Context) ([]string, error) {
	ks, err := b.store.Keys(ctx, keys.AlertsPrefix())
	if err != nil {
		return nil, errors.Wrap(err, "list alert keys")
	}
	instIDs := make([]string, 0, len(ks))
	for _, k := range ks {
		instIDs = append(instIDs, keys.InstIDFromAlerts(k))
	}
	return instIDs, nil
}
