package movement

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/watchtower/internal/domain"
	"github.com/vadiminshakov/watchtower/internal/storage/keys"
	"github.com/vadiminshakov/watchtower/internal/storage/kv"
)

// Settings returns the stored thresholds, falling back to the configured global threshold.
func (d *Detector) Settings(ctx context.Context) (domain.MovementSettings, error) {
	s, _, err := kv.GetJSON[domain.MovementSettings](ctx, d.store, keys.MovementSettings())
	if errors.Is(err, kv.ErrNotFound) {
		return domain.MovementSettings{Global: d.defaults}, nil
	}
	if err != nil {
		return domain.MovementSettings{}, errors.Wrap(err, "load movement settings")
	}
	return s, nil
}

// SetGlobal replaces the global threshold.
func (d *Detector) SetGlobal(ctx context.Context, threshold decimal.Decimal) error {
	if !threshold.IsPositive() {
		return errors.Errorf("threshold must be positive, got %s", threshold)
	}
	return d.updateSettings(ctx, func(s *domain.MovementSettings) {
		s.Global = threshold
	})
}

// SetOverride sets a per-symbol threshold.
func (d *Detector) SetOverride(ctx context.Context, symbol string, threshold decimal.Decimal) error {
	if !threshold.IsPositive() {
		return errors.Errorf("threshold must be positive, got %s", threshold)
	}
	return d.updateSettings(ctx, func(s *domain.MovementSettings) {
		if s.Overrides == nil {
			s.Overrides = make(map[string]decimal.Decimal)
		}
		s.Overrides[domain.NormalizeSymbol(symbol)] = threshold
	})
}

// ClearOverride removes the per-symbol threshold of symbol.
func (d *Detector) ClearOverride(ctx context.Context, symbol string) error {
	return d.updateSettings(ctx, func(s *domain.MovementSettings) {
		delete(s.Overrides, domain.NormalizeSymbol(symbol))
	})
}

func (d *Detector) updateSettings(ctx context.Context, apply func(s *domain.MovementSettings)) error {
	err := kv.Update(ctx, d.store, keys.MovementSettings(), func(cur *domain.MovementSettings) (*domain.MovementSettings, error) {
		next := domain.MovementSettings{Global: d.defaults}
		if cur != nil {
			next = *cur
		}
		apply(&next)
		return &next, nil
	})
	return errors.Wrap(err, "update movement settings")
}
