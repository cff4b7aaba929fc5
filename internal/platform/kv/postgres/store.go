// Package postgres stores documents in the kv_documents table (see
// internal/platform/db/migrations) through a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thyrotrack/thyrotrack/internal/platform/kv"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ kv.Store = (*Store)(nil)

// New wraps an already-migrated pool. Close releases the pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Driver() string { return "postgres" }

// Pool exposes the pool for health reporting.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Get(ctx context.Context, key string) (kv.Document, error) {
	var (
		payload []byte
		rev     int64
	)
	err := s.pool.QueryRow(ctx, `SELECT payload, revision FROM kv_documents WHERE key = $1`, key).Scan(&payload, &rev)
	if errors.Is(err, pgx.ErrNoRows) {
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
		err := s.pool.QueryRow(ctx, `
			INSERT INTO kv_documents (key, payload, revision) VALUES ($1, $2, 1)
			ON CONFLICT (key) DO UPDATE
				SET payload = EXCLUDED.payload, revision = kv_documents.revision + 1, updated_at = NOW()
			RETURNING revision`, key, value).Scan(&rev)
		if err != nil {
			return "", fmt.Errorf("upsert %s: %w", key, err)
		}
		return strconv.FormatInt(rev, 10), nil

	case kv.NoRevision:
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO kv_documents (key, payload, revision) VALUES ($1, $2, 1)
			ON CONFLICT (key) DO NOTHING`, key, value)
		if err != nil {
			return "", fmt.Errorf("insert %s: %w", key, err)
		}
		if tag.RowsAffected() == 0 {
			return "", kv.ErrConflict
		}
		return "1", nil

	default:
		rev, err := strconv.ParseInt(expected, 10, 64)
		if err != nil {
			return "", kv.ErrConflict
		}
		tag, err := s.pool.Exec(ctx, `
			UPDATE kv_documents SET payload = $2, revision = revision + 1, updated_at = NOW()
			WHERE key = $1 AND revision = $3`, key, value, rev)
		if err != nil {
			return "", fmt.Errorf("update %s: %w", key, err)
		}
		if tag.RowsAffected() == 0 {
			return "", kv.ErrConflict
		}
		return strconv.FormatInt(rev+1, 10), nil
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
