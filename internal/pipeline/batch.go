package pipeline

import (
	"context"
	"fmt"
	"iter"

	"github.com/rs/zerolog"

	"github.com/kosarica/catalog-ingest/internal/docstore"
	"github.com/kosarica/catalog-ingest/internal/types"
)

const (
	// DefaultFlushThreshold is the operation count at which a batch is committed
	DefaultFlushThreshold = 450

	// DefaultCurrency is recorded on every store price
	DefaultCurrency = "ILS"

	// maxWritesPerItem is product + retailer link + store price
	maxWritesPerItem = 3
)

// WriterOptions configures a BatchWriter
type WriterOptions struct {
	FlushThreshold int    `mapstructure:"flush_threshold"`
	Currency       string `mapstructure:"currency"`
}

// WriteResult summarizes one WriteItems call
type WriteResult struct {
	Processed  int
	Operations int
	Commits    int
}

// BatchWriter turns an item stream into bounded merge-upsert commits
type BatchWriter struct {
	store     docstore.Writer
	threshold int
	currency  string
	logger    zerolog.Logger
	metrics   *MetricsRecorder
}

// NewBatchWriter creates a writer over store. The threshold is lowered when
// the store could not accept a batch that crossed it by one full item.
func NewBatchWriter(store docstore.Writer, options WriterOptions, logger zerolog.Logger) *BatchWriter {
	threshold := options.FlushThreshold
	if threshold <= 0 {
		threshold = DefaultFlushThreshold
	}
	if maxOps := store.MaxBatchOps(); maxOps > 0 && threshold+maxWritesPerItem-1 > maxOps {
		threshold = max(1, maxOps-maxWritesPerItem+1)
	}

	currency := options.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	return &BatchWriter{
		store:     store,
		threshold: threshold,
		currency:  currency,
		logger:    logger.With().Str("component", "batch_writer").Logger(),
		metrics:   NewMetricsRecorder(),
	}
}

// Threshold returns the effective flush threshold
func (w *BatchWriter) Threshold() int {
	return w.threshold
}

// WriteItems consumes items in order. Each item contributes two writes, or
// three when ictx has a store. Once the pending batch holds at least the
// threshold it is committed and a fresh batch started; the remainder is
// committed after the sequence ends. On a commit error the batches already
// committed stay committed and the error wraps ErrCommitFailed.
func (w *BatchWriter) WriteItems(ctx context.Context, items iter.Seq[types.CanonicalItem], ictx types.IngestionContext) (WriteResult, error) {
	var result WriteResult
	batch := w.newBatch()

	for item := range items {
		batch = append(batch, itemWrites(item, ictx, w.currency)...)
		result.Processed++

		if len(batch) >= w.threshold {
			if err := w.commit(ctx, batch, &result); err != nil {
				return result, err
			}
			batch = w.newBatch()
		}
	}

	if len(batch) > 0 {
		if err := w.commit(ctx, batch, &result); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (w *BatchWriter) newBatch() []docstore.Write {
	return make([]docstore.Write, 0, w.threshold+maxWritesPerItem-1)
}

func (w *BatchWriter) commit(ctx context.Context, batch []docstore.Write, result *WriteResult) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: batch %d: %w", ErrCommitFailed, result.Commits+1, err)
	}

	if err := w.store.Commit(ctx, batch); err != nil {
		w.metrics.RecordCommit(len(batch), false)
		w.logger.Error().
			Err(err).
			Int("batch", result.Commits+1).
			Int("operations", len(batch)).
			Msg("Batch commit failed")
		return fmt.Errorf("%w: batch %d: %w", ErrCommitFailed, result.Commits+1, err)
	}

	result.Commits++
	result.Operations += len(batch)
	w.metrics.RecordCommit(len(batch), true)
	w.logger.Debug().
		Int("batch", result.Commits).
		Int("operations", len(batch)).
		Msg("Batch committed")
	return nil
}
