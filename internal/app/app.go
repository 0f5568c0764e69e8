// Package app assembles the ingester and its backends from configuration
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/kosarica/catalog-ingest/config"
	"github.com/kosarica/catalog-ingest/internal/database"
	"github.com/kosarica/catalog-ingest/internal/docstore"
	ihttp "github.com/kosarica/catalog-ingest/internal/http"
	"github.com/kosarica/catalog-ingest/internal/http/ratelimit"
	"github.com/kosarica/catalog-ingest/internal/pipeline"
	"github.com/kosarica/catalog-ingest/internal/storage"
)

// App holds the wired ingester and the resources it owns
type App struct {
	Ingester *pipeline.Ingester
	Store    docstore.Writer
	Buckets  storage.Buckets
	// Pool is nil with the memory store backend
	Pool *pgxpool.Pool
}

// New connects the configured document store and builds the ingester
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	if cfg.Storage.Type != string(storage.StorageTypeLocal) {
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Storage.Type)
	}

	a := &App{Buckets: storage.NewLocalBuckets(cfg.Storage.BasePath)}

	var index pipeline.ArchiveIndex
	switch cfg.Ingest.StoreBackend {
	case config.StoreBackendPostgres:
		pool, err := database.Connect(
			ctx,
			cfg.Database.URL,
			cfg.Database.MaxConnections,
			cfg.Database.MinConnections,
			cfg.Database.MaxConnLifetime,
			cfg.Database.MaxConnIdleTime,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		a.Pool = pool
		a.Store = database.NewDocumentStore(pool)
		index = database.NewArchiveStore(pool)
		logger.Info().Msg("Database connected")
	case config.StoreBackendMemory:
		a.Store = docstore.NewMemoryStore()
		logger.Warn().Msg("Using in-memory document store, writes are lost on exit")
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Ingest.StoreBackend)
	}

	fetcher := ihttp.NewClient(ihttp.Options{
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			MaxRetries:        cfg.RateLimit.MaxRetries,
			InitialBackoffMs:  cfg.RateLimit.InitialBackoffMs,
			MaxBackoffMs:      cfg.RateLimit.MaxBackoffMs,
		},
		Timeout:      cfg.Ingest.FetchTimeout,
		MaxBodyBytes: cfg.Ingest.MaxFetchBytes,
	})

	a.Ingester = pipeline.NewIngester(a.Store, a.Buckets, fetcher, pipeline.Options{
		Writer: pipeline.WriterOptions{
			FlushThreshold: cfg.Ingest.FlushThreshold,
			Currency:       cfg.Ingest.Currency,
		},
		MaxDecompressedBytes: cfg.Ingest.MaxDecompressedBytes,
	}, logger)

	if cfg.Ingest.Archive {
		bucket, err := a.Buckets.Bucket(cfg.Storage.ArchiveBucket)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open archive bucket: %w", err)
		}
		a.Ingester.WithArchiver(pipeline.NewArchiver(bucket, index, logger))
	}

	return a, nil
}

// Close releases the database pool, if any
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}
