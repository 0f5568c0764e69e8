package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosarica/catalog-ingest/config"
	"github.com/kosarica/catalog-ingest/internal/docstore"
	"github.com/kosarica/catalog-ingest/internal/pipeline"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Storage: config.StorageConfig{Type: "local", BasePath: t.TempDir(), ArchiveBucket: "archives"},
		Ingest: config.IngestConfig{
			StoreBackend:   config.StoreBackendMemory,
			FlushThreshold: 450,
			Currency:       "ILS",
		},
	}
}

func TestNewMemoryBackend(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Ingest.Archive = true

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Pool)
	store, ok := a.Store.(*docstore.MemoryStore)
	require.True(t, ok)

	bucket, err := a.Buckets.Bucket("catalogs")
	require.NoError(t, err)
	content := `<Root><StoreId>S1</StoreId><Item><ItemCode>1</ItemCode><ItemName>Milk</ItemName><ItemPrice>6.90</ItemPrice></Item></Root>`
	require.NoError(t, bucket.Put(context.Background(), "prices/a.xml", []byte(content), nil))

	result, err := a.Ingester.IngestObject(context.Background(), pipeline.ObjectEvent{Bucket: "catalogs", Name: "prices/a.xml"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, []int{3}, store.CommitSizes())

	_, err = os.Stat(filepath.Join(cfg.Storage.BasePath, "archives"))
	assert.NoError(t, err)
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Ingest.StoreBackend = "firestore"
	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "unsupported store backend")

	cfg = memoryConfig(t)
	cfg.Storage.Type = "s3"
	_, err = New(context.Background(), cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "unsupported storage type")
}
