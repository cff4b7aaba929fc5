// Package sqlite stores documents in a single SQLite table using the pure Go
// modernc.org/sqlite driver. Revisions are integers bumped on every write.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/thyrotrack/thyrotrack/internal/platform/kv"
)

const schema = `CREATE TABLE IF NOT EXISTS kv_documents (
	key      TEXT PRIMARY KEY,
	payload  BLOB NOT NULL,
	revision INTEGER NOT NULL
)`

// Store is a kv.Store on top of one SQLite database file.
type Store struct {
	db   *sql.DB
	path string
}

var _ kv.Store = (*Store)(nil)

// New opens (or creates) the database at path and ensures the table exists.
func New(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "thyrotrack.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; SQLite serialises writes anyway and this avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create kv_documents table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Driver() string { return "sqlite" }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying sql.DB for tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Get(ctx context.Context, key string) (kv.Document, error) {
	var (
		payload []byte
		rev     int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT payload, revision FROM kv_documents WHERE key = ?`, key).Scan(&payload, &rev)
	if errors.Is(err, sql.ErrNoRows) {
		return kv.Document{}, kv.ErrNotFound
	}
	if err != nil {
		return kv.Document{}, fmt.Errorf("select %s: %w", key, err)
	}
	return kv.Document{Key: key, Value: payload, Revision: strconv.FormatInt(rev, 10)}, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, expected string) (string, error) {
	switch expected {
	case kv.AnyRevision:
		var rev int64
		err := s.db.QueryRowContext(ctx, `INSERT INTO kv_documents(key, payload, revision) VALUES(?, ?, 1)
			ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, revision = kv_documents.revision + 1
			RETURNING revision`, key, value).Scan(&rev)
		if err != nil {
			return "", fmt.Errorf("upsert %s: %w", key, err)
		}
		return strconv.FormatInt(rev, 10), nil

	case kv.NoRevision:
		res, err := s.db.ExecContext(ctx, `INSERT INTO kv_documents(key, payload, revision) VALUES(?, ?, 1)
			ON CONFLICT(key) DO NOTHING`, key, value)
		if err != nil {
			return "", fmt.Errorf("insert %s: %w", key, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return "", kv.ErrConflict
		}
		return "1", nil

	default:
		rev, err := strconv.ParseInt(expected, 10, 64)
		if err != nil {
			return "", kv.ErrConflict
		}
		res, err := s.db.ExecContext(ctx, `UPDATE kv_documents SET payload = ?, revision = revision + 1
			WHERE key = ? AND revision = ?`, value, key, rev)
		if err != nil {
			return "", fmt.Errorf("update %s: %w", key, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return "", kv.ErrConflict
		}
		return strconv.FormatInt(rev+1, 10), nil
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
