package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kosarica/catalog-ingest/internal/docstore"
)

const upsertDocumentSQL = `
	INSERT INTO documents (path, collection, data, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (path) DO UPDATE SET
		data = documents.data || EXCLUDED.data,
		updated_at = EXCLUDED.updated_at
`

// DocumentStore is a docstore.Writer backed by a jsonb table. Each write is a
// top-level field merge, and each Commit runs in one transaction.
type DocumentStore struct {
	pool   *pgxpool.Pool
	maxOps int
}

// NewDocumentStore creates a document store over an open pool
func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool, maxOps: docstore.DefaultMaxBatchOps}
}

// MaxBatchOps implements docstore.Writer
func (s *DocumentStore) MaxBatchOps() int {
	return s.maxOps
}

// Commit implements docstore.Writer
func (s *DocumentStore) Commit(ctx context.Context, writes []docstore.Write) error {
	if len(writes) == 0 {
		return nil
	}
	if len(writes) > s.maxOps {
		return fmt.Errorf("%w: %d > %d", docstore.ErrBatchTooLarge, len(writes), s.maxOps)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Server timestamps resolve to the transaction start time of the database
	var now time.Time
	if err := tx.QueryRow(ctx, "SELECT now()").Scan(&now); err != nil {
		return fmt.Errorf("failed to read server time: %w", err)
	}

	batch := &pgx.Batch{}
	for _, w := range writes {
		if err := docstore.ValidatePath(w.Path); err != nil {
			return fmt.Errorf("%w: %q", err, w.Path)
		}
		data, err := json.Marshal(docstore.ResolveFields(w.Fields, now))
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", w.Path, err)
		}
		batch.Queue(upsertDocumentSQL, w.Path, docstore.CollectionOf(w.Path), data, now)
	}

	results := tx.SendBatch(ctx, batch)
	for _, w := range writes {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to upsert %s: %w", w.Path, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Get returns the document at path, or false when it does not exist
func (s *DocumentStore) Get(ctx context.Context, path string) (map[string]any, bool, error) {
	var data map[string]any
	err := s.pool.QueryRow(ctx, `SELECT data FROM documents WHERE path = $1`, path).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", path, err)
	}
	return data, true, nil
}

// CountByCollection returns the number of documents in each collection
func (s *DocumentStore) CountByCollection(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT collection, count(*) FROM documents GROUP BY collection`)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var collection string
		var n int64
		if err := rows.Scan(&collection, &n); err != nil {
			return nil, err
		}
		counts[collection] = n
	}
	return counts, rows.Err()
}
