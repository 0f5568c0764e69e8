package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect creates a new database connection pool and verifies it with a ping.
// The caller owns the pool and must Close it.
func Connect(ctx context.Context, connString string, maxConns, minConns int, maxLifetime, maxIdleTime time.Duration) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("error parsing database config: %w", err)
	}

	if maxConns > 0 {
		config.MaxConns = int32(maxConns)
	}
	if minConns > 0 {
		config.MinConns = int32(minConns)
	}
	if maxLifetime > 0 {
		config.MaxConnLifetime = maxLifetime
	}
	if maxIdleTime > 0 {
		config.MaxConnIdleTime = maxIdleTime
	}
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	path text PRIMARY KEY,
	collection text NOT NULL,
	data jsonb NOT NULL DEFAULT '{}'::jsonb,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS documents_collection_idx ON documents (collection);

CREATE TABLE IF NOT EXISTS archives (
	id text PRIMARY KEY,
	source_url text NOT NULL,
	source_name text NOT NULL,
	retailer_id text NOT NULL,
	archive_path text NOT NULL,
	file_size bigint NOT NULL,
	checksum text NOT NULL,
	downloaded_at timestamptz NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS archives_checksum_idx ON archives (checksum);
`

// EnsureSchema creates the tables the service writes to when they are missing
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
