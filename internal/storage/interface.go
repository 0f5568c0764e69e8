package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no object exists at a key
var ErrNotFound = errors.New("object not found")

// Metadata contains object metadata stored alongside the content
type Metadata struct {
	ContentType  string            `json:"contentType,omitempty"`
	OriginalName string            `json:"originalName,omitempty"`
	RetailerID   string            `json:"retailerId,omitempty"`
	StoreID      string            `json:"storeId,omitempty"`
	SourceURL    string            `json:"sourceUrl,omitempty"`
	Checksum     string            `json:"checksum,omitempty"`
	DownloadedAt time.Time         `json:"downloadedAt,omitempty"`
	Custom       map[string]string `json:"custom,omitempty"`
}

// Attributes flattens the metadata into the string map carried by storage events
func (m *Metadata) Attributes() map[string]string {
	attrs := make(map[string]string, len(m.Custom)+2)
	for k, v := range m.Custom {
		attrs[k] = v
	}
	if m.RetailerID != "" {
		attrs["retailerId"] = m.RetailerID
	}
	if m.StoreID != "" {
		attrs["storeId"] = m.StoreID
	}
	return attrs
}

// FileInfo contains information about a stored object
type FileInfo struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	ContentType string    `json:"contentType,omitempty"`
	ModifiedAt  time.Time `json:"modifiedAt"`
	Metadata    *Metadata `json:"metadata,omitempty"`
}

// Storage defines the object operations ingestion needs from a bucket.
// Implementations can be local filesystem, S3, GCS, etc.
type Storage interface {
	// Put stores content at the given key with optional metadata
	Put(ctx context.Context, key string, content []byte, metadata *Metadata) error

	// Get retrieves content from the given key
	Get(ctx context.Context, key string) ([]byte, error)

	// GetInfo retrieves object information without content
	GetInfo(ctx context.Context, key string) (*FileInfo, error)

	// List returns all keys matching the given prefix
	List(ctx context.Context, prefix string) ([]string, error)
}

// Buckets opens named buckets
type Buckets interface {
	Bucket(name string) (Storage, error)
}

// StorageType represents the type of storage backend
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
)
