package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kosarica/catalog-ingest/internal/database"
	"github.com/kosarica/catalog-ingest/internal/storage"
	"github.com/kosarica/catalog-ingest/internal/types"
)

// ArchiveIndex records archived payloads so identical downloads are stored once
type ArchiveIndex interface {
	GetArchiveByChecksum(ctx context.Context, checksum string) (*database.Archive, error)
	CreateArchive(ctx context.Context, archive *database.Archive) error
}

// Archiver keeps the raw bytes of fetched payloads in object storage under
// archives/{yyyy/mm/dd}/{sourceName}
type Archiver struct {
	store  storage.Storage
	index  ArchiveIndex
	logger zerolog.Logger
	now    func() time.Time
}

// NewArchiver creates an archiver. index may be nil, in which case every
// payload is stored without deduplication.
func NewArchiver(store storage.Storage, index ArchiveIndex, logger zerolog.Logger) *Archiver {
	return &Archiver{
		store:  store,
		index:  index,
		logger: logger.With().Str("component", "archiver").Logger(),
		now:    time.Now,
	}
}

// Archive stores payload unless the index already holds one with the same checksum
func (a *Archiver) Archive(ctx context.Context, payload []byte, sourceURL string, ictx types.IngestionContext) error {
	checksum := storage.ComputeChecksum(payload)

	if a.index != nil {
		existing, err := a.index.GetArchiveByChecksum(ctx, checksum)
		if err != nil {
			return fmt.Errorf("failed to check archive: %w", err)
		}
		if existing != nil {
			a.logger.Info().
				Str("source", ictx.SourceName).
				Str("archive_id", existing.ID).
				Msg("Skipping duplicate payload")
			return nil
		}
	}

	downloadedAt := a.now()
	key := storage.BuildArchiveKey(downloadedAt, ictx.SourceName)
	metadata := &storage.Metadata{
		OriginalName: ictx.SourceName,
		RetailerID:   ictx.RetailerID,
		StoreID:      ictx.StoreID,
		SourceURL:    sourceURL,
		Checksum:     checksum,
		DownloadedAt: downloadedAt,
	}
	if err := a.store.Put(ctx, key, payload, metadata); err != nil {
		return fmt.Errorf("failed to store archive: %w", err)
	}

	if a.index != nil {
		archive := &database.Archive{
			SourceURL:    sourceURL,
			SourceName:   ictx.SourceName,
			RetailerID:   ictx.RetailerID,
			ArchivePath:  key,
			FileSize:     int64(len(payload)),
			Checksum:     checksum,
			DownloadedAt: downloadedAt,
		}
		if err := a.index.CreateArchive(ctx, archive); err != nil {
			return fmt.Errorf("failed to record archive: %w", err)
		}
	}

	a.logger.Debug().Str("key", key).Str("checksum", checksum).Msg("Archived payload")
	return nil
}
