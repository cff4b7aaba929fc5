// Package storage turns configuration into a ready kv.Store.
package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/thyrotrack/thyrotrack/internal/config"
	"github.com/thyrotrack/thyrotrack/internal/platform/db"
	"github.com/thyrotrack/thyrotrack/internal/platform/kv"
	"github.com/thyrotrack/thyrotrack/internal/platform/kv/filestore"
	"github.com/thyrotrack/thyrotrack/internal/platform/kv/memory"
	"github.com/thyrotrack/thyrotrack/internal/platform/kv/postgres"
	"github.com/thyrotrack/thyrotrack/internal/platform/kv/s3store"
	"github.com/thyrotrack/thyrotrack/internal/platform/kv/sqlite"
)

// SQLiteFile is the database file name placed under STORAGE_PATH.
const SQLiteFile = "thyrotrack.db"

// Open builds the driver selected by cfg.StorageDriver. The Postgres driver
// applies pending migrations before returning.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (kv.Store, error) {
	var (
		store kv.Store
		err   error
	)
	switch cfg.StorageDriver {
	case config.DriverMemory:
		store = memory.New()
	case config.DriverFile, "":
		store, err = filestore.New(cfg.StoragePath)
	case config.DriverSQLite:
		store, err = sqlite.New(ctx, filepath.Join(cfg.StoragePath, SQLiteFile))
	case config.DriverPostgres:
		store, err = openPostgres(ctx, cfg, logger)
	case config.DriverS3:
		store, err = s3store.New(ctx, s3store.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			Prefix:    cfg.S3Prefix,
			PathStyle: cfg.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.StorageDriver, err)
	}

	logger.Info().Str("driver", store.Driver()).Msg("storage opened")
	return store, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (kv.Store, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}
	n, err := db.NewMigrator(pool, db.Migrations()).Up(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if n > 0 {
		logger.Info().Int("applied", n).Msg("migrations applied")
	}
	return postgres.New(pool), nil
}
