// Package docstore defines the document-store contract the ingestion pipeline
// writes through: path-addressed documents updated by field-level merge-upserts
// grouped into atomic batches.
package docstore

import (
	"context"
	"errors"
	"maps"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrBatchTooLarge is returned when a commit exceeds the backend's batch limit
	ErrBatchTooLarge = errors.New("batch exceeds maximum operations")

	// ErrInvalidPath is returned for paths that do not address a document
	ErrInvalidPath = errors.New("invalid document path")
)

type serverTimestamp struct{}

// ServerTimestamp is a field value the backend replaces with its own commit time
var ServerTimestamp = serverTimestamp{}

// Write is a merge-upsert of Fields into the document at Path. Fields not named
// are left untouched; a missing document is created.
type Write struct {
	Path   string
	Fields map[string]any
}

// Writer commits batches of writes atomically
type Writer interface {
	// Commit applies every write or none of them
	Commit(ctx context.Context, writes []Write) error

	// MaxBatchOps is the largest number of writes a single Commit accepts
	MaxBatchOps() int
}

// ResolveFields returns a copy of fields with ServerTimestamp replaced by now
func ResolveFields(fields map[string]any, now time.Time) map[string]any {
	resolved := maps.Clone(fields)
	for k, v := range resolved {
		if v == ServerTimestamp {
			resolved[k] = now
		}
	}
	return resolved
}

const (
	ProductsCollection      = "products"
	RetailerItemsCollection = "retailerItems"
	StoreItemsCollection    = "storeItems"
	ItemsCollection         = "items"
)

// ProductPath addresses products/{productId}
func ProductPath(productID string) string {
	return join(ProductsCollection, productID)
}

// RetailerItemPath addresses products/{productId}/retailerItems/{retailerId}
func RetailerItemPath(productID, retailerID string) string {
	return join(ProductsCollection, productID, RetailerItemsCollection, retailerID)
}

// StoreItemPath addresses storeItems/{storeId}/items/{productId}
func StoreItemPath(storeID, productID string) string {
	return join(StoreItemsCollection, storeID, ItemsCollection, productID)
}

// join alternates collection names and escaped document IDs. Barcodes are
// vendor text, so a "/" inside one must not create an extra path segment.
func join(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		if i%2 == 1 {
			s = url.PathEscape(s)
		}
		escaped[i] = s
	}
	return strings.Join(escaped, "/")
}

// CollectionOf returns the innermost collection name of a document path
func CollectionOf(path string) string {
	segments := strings.Split(path, "/")
	if len(segments) < 2 {
		return ""
	}
	return segments[len(segments)-2]
}

// ValidatePath checks that path names a document: an even, non-zero number of
// non-empty segments
func ValidatePath(path string) error {
	segments := strings.Split(path, "/")
	if len(segments) == 0 || len(segments)%2 != 0 {
		return ErrInvalidPath
	}
	for _, s := range segments {
		if s == "" {
			return ErrInvalidPath
		}
	}
	return nil
}
