package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Archive represents a raw catalog payload kept in object storage
type Archive struct {
	ID           string    `json:"id"`           // arc_{uuid}
	SourceURL    string    `json:"source_url"`   // Original download URL
	SourceName   string    `json:"source_name"`  // Last URL path segment
	RetailerID   string    `json:"retailer_id"`  // e.g. 'shufersal'
	ArchivePath  string    `json:"archive_path"` // Storage key
	FileSize     int64     `json:"file_size"`    // Size in bytes as fetched
	Checksum     string    `json:"checksum"`     // SHA-256 checksum
	DownloadedAt time.Time `json:"downloaded_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewArchiveID returns a fresh archive identifier
func NewArchiveID() string {
	return "arc_" + uuid.NewString()
}

// ArchiveStore records archived payloads
type ArchiveStore struct {
	pool *pgxpool.Pool
}

// NewArchiveStore creates an archive store over an open pool
func NewArchiveStore(pool *pgxpool.Pool) *ArchiveStore {
	return &ArchiveStore{pool: pool}
}

// CreateArchive inserts or replaces an archive record
func (s *ArchiveStore) CreateArchive(ctx context.Context, archive *Archive) error {
	if archive.ID == "" {
		archive.ID = NewArchiveID()
	}
	archive.CreatedAt = time.Now()

	query := `
		INSERT INTO archives (
			id, source_url, source_name, retailer_id, archive_path,
			file_size, checksum, downloaded_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (id) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			source_name = EXCLUDED.source_name,
			retailer_id = EXCLUDED.retailer_id,
			archive_path = EXCLUDED.archive_path,
			file_size = EXCLUDED.file_size,
			checksum = EXCLUDED.checksum,
			downloaded_at = EXCLUDED.downloaded_at
	`

	_, err := s.pool.Exec(ctx, query,
		archive.ID, archive.SourceURL, archive.SourceName, archive.RetailerID,
		archive.ArchivePath, archive.FileSize, archive.Checksum,
		archive.DownloadedAt, archive.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create archive %s: %w", archive.ID, err)
	}
	return nil
}

// GetArchiveByChecksum looks up an archive by its checksum for deduplication.
// Returns nil without error when none exists.
func (s *ArchiveStore) GetArchiveByChecksum(ctx context.Context, checksum string) (*Archive, error) {
	query := `
		SELECT id, source_url, source_name, retailer_id, archive_path,
			file_size, checksum, downloaded_at, created_at
		FROM archives
		WHERE checksum = $1
		ORDER BY downloaded_at DESC
		LIMIT 1
	`

	var archive Archive
	err := s.pool.QueryRow(ctx, query, checksum).Scan(
		&archive.ID, &archive.SourceURL, &archive.SourceName, &archive.RetailerID,
		&archive.ArchivePath, &archive.FileSize, &archive.Checksum,
		&archive.DownloadedAt, &archive.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get archive by checksum: %w", err)
	}

	return &archive, nil
}
