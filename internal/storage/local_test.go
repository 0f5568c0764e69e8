package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoragePutGet(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	content := []byte("<Root/>")
	meta := &Metadata{RetailerID: "shufersal", StoreID: "S1", ContentType: "application/xml"}
	require.NoError(t, s.Put(ctx, "prices/a.xml", content, meta))

	got, err := s.Get(ctx, "prices/a.xml")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	info, err := s.GetInfo(ctx, "prices/a.xml")
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.Equal(t, ComputeChecksum(content), info.Checksum)
	assert.Equal(t, "application/xml", info.ContentType)
	require.NotNil(t, info.Metadata)
	assert.Equal(t, map[string]string{"retailerId": "shufersal", "storeId": "S1"}, info.Metadata.Attributes())
}

func TestLocalStorageNotFound(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(ctx, "missing.xml")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.GetInfo(ctx, "missing.xml")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalStorageList(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "prices/a.xml", []byte("a"), &Metadata{}))
	require.NoError(t, s.Put(ctx, "prices/b.xml", []byte("b"), nil))
	require.NoError(t, s.Put(ctx, "other/c.xml", []byte("c"), nil))

	keys, err := s.List(ctx, "prices/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"prices/a.xml", "prices/b.xml"}, keys)

	keys, err = s.List(ctx, "nothing/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLocalStorageKeyCannotEscape(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewLocalStorage(filepath.Join(root, "bucket"))
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "../../escape.xml", []byte("x"), nil))

	_, err = os.Stat(filepath.Join(root, "escape.xml"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "bucket", "escape.xml"))
	assert.NoError(t, err)
}

func TestLocalBuckets(t *testing.T) {
	buckets := NewLocalBuckets(t.TempDir())

	b, err := buckets.Bucket("catalogs")
	require.NoError(t, err)
	require.NotNil(t, b)

	for _, name := range []string{"", "..", "a/b", `a\b`} {
		_, err := buckets.Bucket(name)
		assert.Error(t, err, name)
	}
}

func TestBuildArchiveKey(t *testing.T) {
	date := time.Date(2024, 3, 7, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "archives/2024/03/07/PriceFull.xml.gz", BuildArchiveKey(date, "PriceFull.xml.gz"))
}
