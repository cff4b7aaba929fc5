// Package filestore persists each key as a JSON file under a root directory.
// The revision of a document is the SHA-256 of its bytes, so no sidecar is
// needed. Writes go to a temp file that is synced and renamed into place.
package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/thyrotrack/thyrotrack/internal/platform/kv"
)

// Store is safe for concurrent use within one process. Separate processes
// sharing a directory can still interleave between the hash check and the
// rename.
type Store struct {
	root string
	mu   sync.Mutex
}

var _ kv.Store = (*Store)(nil)

// New returns a file-backed store rooted at root, creating it if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = "./data"
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Driver() string { return "file" }

// Root returns the directory documents are written to.
func (s *Store) Root() string { return s.root }

// sanitizeKey keeps keys flat: no separators, no traversal.
func sanitizeKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("empty key")
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("invalid key %q", key)
	}
	return nil
}

func (s *Store) pathFor(key string) (string, error) {
	if err := sanitizeKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, key+".json"), nil
}

func (s *Store) Get(_ context.Context, key string) (kv.Document, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return kv.Document{}, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return kv.Document{}, kv.ErrNotFound
	}
	if err != nil {
		return kv.Document{}, fmt.Errorf("read %s: %w", key, err)
	}
	return kv.Document{Key: key, Value: data, Revision: revisionOf(data)}, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte, expected string) (string, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := kv.NoRevision
	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		current = revisionOf(existing)
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	if !kv.Matches(current, expected) {
		return "", kv.ErrConflict
	}

	if err := writeAtomic(path, value); err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	return revisionOf(value), nil
}

func (s *Store) Ping(context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.root)
	}
	return nil
}

func (s *Store) Close() error { return nil }

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func revisionOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
