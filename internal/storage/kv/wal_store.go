package kv

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

const (
	defaultStateDir  = "./wal/state"
	stateSegmentSize = 1000
	stateMaxSegments = 100
	// live entries are re-appended once this many writes happened since the
	// last compaction so rotated-out segments never hold the only copy of a key
	compactEvery = stateSegmentSize * stateMaxSegments / 2
)

type walRecord struct {
	Version uint64 `json:"v"`
	Data    []byte `json:"d,omitempty"`
	Deleted bool   `json:"del,omitempty"`
}

// WALStore keeps state in memory and persists every write to a WAL.
// The WAL index of a write is the version of the written item.
type WALStore struct {
	wal       *gowal.Wal
	mu        sync.RWMutex
	items     map[string]Item
	compacted uint64
}

// NewWALStore opens (or creates) the WAL under dir and replays it.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultStateDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "state_",
		SegmentThreshold: stateSegmentSize,
		MaxSegments:      stateMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init state WAL")
	}

	s := &WALStore{wal: wal, items: make(map[string]Item)}
	for msg := range wal.Iterator() {
		var rec walRecord
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			_ = wal.Close()
			return nil, errors.Wrapf(err, "decode WAL record %s", msg.Key)
		}
		if rec.Deleted {
			delete(s.items, msg.Key)
			continue
		}
		s.items[msg.Key] = Item{Value: rec.Data, Version: rec.Version}
	}
	s.compacted = wal.CurrentIndex()

	return s, nil
}

func (s *WALStore) Get(_ context.Context, key string) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[key]
	if !ok {
		return Item{}, ErrNotFound
	}
	return Item{Value: append([]byte(nil), item.Value...), Version: item.Version}, nil
}

func (s *WALStore) Set(_ context.Context, key string, value []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(key, value)
}

func (s *WALStore) CompareAndSet(_ context.Context, key string, value []byte, version uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.items[key].Version != version {
		return 0, errors.Wrapf(ErrConflict, "set %s at version %d", key, version)
	}
	return s.write(key, value)
}

func (s *WALStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; !ok {
		return nil
	}
	return s.tombstone(key)
}

func (s *WALStore) CompareAndDelete(_ context.Context, key string, version uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok || item.Version != version {
		return errors.Wrapf(ErrConflict, "delete %s at version %d", key, version)
	}
	return s.tombstone(key)
}

func (s *WALStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0)
	for k := range s.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	return keys, nil
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("state store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

// write must be called with mu held.
func (s *WALStore) write(key string, value []byte) (uint64, error) {
	version := s.wal.CurrentIndex() + 1
	if err := s.append(version, key, walRecord{Version: version, Data: value}); err != nil {
		return 0, err
	}
	s.items[key] = Item{Value: append([]byte(nil), value...), Version: version}

	if err := s.compactIfNeeded(); err != nil {
		return 0, err
	}
	return version, nil
}

func (s *WALStore) tombstone(key string) error {
	index := s.wal.CurrentIndex() + 1
	if err := s.append(index, key, walRecord{Version: index, Deleted: true}); err != nil {
		return err
	}
	delete(s.items, key)

	return s.compactIfNeeded()
}

func (s *WALStore) append(index uint64, key string, rec walRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrapf(err, "encode WAL record %s", key)
	}
	if err := s.wal.Write(index, key, payload); err != nil {
		return errors.Wrapf(err, "write WAL record %s", key)
	}
	return nil
}

// compactIfNeeded re-appends live items, keeping their versions.
func (s *WALStore) compactIfNeeded() error {
	if s.wal.CurrentIndex()-s.compacted < compactEvery {
		return nil
	}

	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		item := s.items[k]
		if err := s.append(s.wal.CurrentIndex()+1, k, walRecord{Version: item.Version, Data: item.Value}); err != nil {
			return errors.Wrap(err, "compact state WAL")
		}
	}
	s.compacted = s.wal.CurrentIndex()

	return nil
}
