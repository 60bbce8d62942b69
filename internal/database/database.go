package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the batch tables if needed. Having the migration in
// code keeps the deployment self-contained so docker-compose can bootstrap
// everything.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS photo_batches (
	id TEXT PRIMARY KEY,
	correlation_id TEXT NOT NULL UNIQUE,
	chat_id BIGINT NOT NULL,
	status TEXT NOT NULL,
	primary_labels TEXT[] NOT NULL DEFAULT '{}',
	secondary_codes TEXT[] NOT NULL DEFAULT '{}',
	barcodes TEXT[] NOT NULL DEFAULT '{}',
	submitted BOOLEAN NOT NULL DEFAULT FALSE,
	submission_response JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS photos (
	id TEXT PRIMARY KEY,
	batch_id TEXT NOT NULL REFERENCES photo_batches(id) ON DELETE CASCADE,
	file_id TEXT NOT NULL,
	object_key TEXT NOT NULL,
	ord INT NOT NULL,
	is_primary BOOLEAN NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_photo_batches_status ON photo_batches(status);
CREATE INDEX IF NOT EXISTS idx_photos_batch ON photos(batch_id, ord);`
	_, err := pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
