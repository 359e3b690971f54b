// Package kv provides the versioned key-value state store used by every monitoring component.
package kv

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/watchtower/internal/domain"
)

var (
	// ErrNotFound key is absent.
	ErrNotFound = errors.New("key not found")
	// ErrConflict conditional write observed a different version.
	ErrConflict = domain.ErrConflict
	// ErrSkip returned by an Update mutation to leave the key untouched.
	ErrSkip = errors.New("skip update")
)

// Item stored value with the version it was written at.
type Item struct {
	Value   []byte
	Version uint64
}

// Store versioned key-value persistence.
// Version 0 in a conditional write means the key must not exist.
type Store interface {
	Get(ctx context.Context, key string) (Item, error)
	Set(ctx context.Context, key string, value []byte) (uint64, error)
	CompareAndSet(ctx context.Context, key string, value []byte, version uint64) (uint64, error)
	Delete(ctx context.Context, key string) error
	CompareAndDelete(ctx context.Context, key string, version uint64) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// GetJSON reads and decodes key. Returns ErrNotFound when absent.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, uint64, error) {
	var v T
	item, err := s.Get(ctx, key)
	if err != nil {
		return v, 0, err
	}
	if err := json.Unmarshal(item.Value, &v); err != nil {
		return v, 0, errors.Wrapf(err, "decode %s", key)
	}
	return v, item.Version, nil
}

// SetJSON encodes and unconditionally writes v.
func SetJSON[T any](ctx context.Context, s Store, key string, v T) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	_, err = s.Set(ctx, key, payload)
	return err
}

// Update runs read -> mutate -> compare-and-set on key.
// mutate receives nil when the key is absent and returns nil to delete it
// or ErrSkip to leave it untouched. A lost race is retried once on a fresh
// read, after that ErrConflict is returned.
func Update[T any](ctx context.Context, s Store, key string, mutate func(cur *T) (*T, error)) error {
	const attempts = 2

	for attempt := 0; attempt < attempts; attempt++ {
		var cur *T
		var version uint64

		v, ver, err := GetJSON[T](ctx, s, key)
		switch {
		case err == nil:
			cur, version = &v, ver
		case errors.Is(err, ErrNotFound):
		default:
			return err
		}

		next, err := mutate(cur)
		if errors.Is(err, ErrSkip) {
			return nil
		}
		if err != nil {
			return err
		}

		if next == nil {
			if version == 0 {
				return nil
			}
			err = s.CompareAndDelete(ctx, key, version)
		} else {
			var payload []byte
			payload, err = json.Marshal(next)
			if err != nil {
				return errors.Wrapf(err, "encode %s", key)
			}
			_, err = s.CompareAndSet(ctx, key, payload, version)
		}

		if errors.Is(err, ErrConflict) {
			continue
		}
		return err
	}

	return errors.Wrapf(ErrConflict, "update %s", key)
}
