// Package memory provides an in-process kv.Store for tests and ephemeral runs.
package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/thyrotrack/thyrotrack/internal/platform/kv"
)

type entry struct {
	value []byte
	rev   uint64
}

// Store keeps documents in a map guarded by a RWMutex.
type Store struct {
	mu   sync.RWMutex
	docs map[string]entry
}

var _ kv.Store = (*Store)(nil)

func New() *Store {
	return &Store{docs: make(map[string]entry)}
}

func (s *Store) Driver() string { return "memory" }

func (s *Store) Get(_ context.Context, key string) (kv.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[key]
	if !ok {
		return kv.Document{}, kv.ErrNotFound
	}
	return kv.Document{Key: key, Value: clone(e.value), Revision: formatRev(e.rev)}, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte, expected string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.docs[key]
	current := kv.NoRevision
	if ok {
		current = formatRev(e.rev)
	}
	if !kv.Matches(current, expected) {
		return "", kv.ErrConflict
	}
	e = entry{value: clone(value), rev: e.rev + 1}
	s.docs[key] = e
	return formatRev(e.rev), nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func formatRev(rev uint64) string {
	return strconv.FormatUint(rev, 10)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
