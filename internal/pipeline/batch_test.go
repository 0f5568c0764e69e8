package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosarica/catalog-ingest/internal/docstore"
	"github.com/kosarica/catalog-ingest/internal/types"
)

func makeItems(n int) iter.Seq[types.CanonicalItem] {
	return func(yield func(types.CanonicalItem) bool) {
		for i := range n {
			item := types.CanonicalItem{
				Barcode: fmt.Sprintf("729%09d", i),
				Name:    fmt.Sprintf("Item %d", i),
				Price:   decimal.NewFromInt(int64(i + 1)),
			}
			if !yield(item) {
				return
			}
		}
	}
}

func newTestWriter(store docstore.Writer) *BatchWriter {
	return NewBatchWriter(store, WriterOptions{}, zerolog.Nop())
}

func TestWriteItemsBatchBoundaries(t *testing.T) {
	withStore := types.NewIngestionContext("shufersal", "S1", "a.xml")
	noStore := types.NewIngestionContext("shufersal", "", "a.xml")

	tests := []struct {
		name         string
		items        int
		ictx         types.IngestionContext
		wantCommits  []int
		wantOpsTotal int
	}{
		{"150 items with store commit exactly once", 150, withStore, []int{450}, 450},
		{"151 items with store flush remainder", 151, withStore, []int{450, 3}, 453},
		{"225 items without store", 225, noStore, []int{450}, 450},
		{"226 items without store", 226, noStore, []int{450, 2}, 452},
		{"10 items", 10, withStore, []int{30}, 30},
		{"no items", 0, withStore, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := docstore.NewMemoryStore()
			result, err := newTestWriter(store).WriteItems(context.Background(), makeItems(tt.items), tt.ictx)
			require.NoError(t, err)

			assert.Equal(t, tt.items, result.Processed)
			assert.Equal(t, tt.wantOpsTotal, result.Operations)
			assert.Equal(t, len(tt.wantCommits), result.Commits)
			assert.Equal(t, tt.wantCommits, store.CommitSizes())
		})
	}
}

func TestWriteItemsNeverExceedsThresholdPlusOneItem(t *testing.T) {
	store := docstore.NewMemoryStore()
	w := NewBatchWriter(store, WriterOptions{FlushThreshold: 10}, zerolog.Nop())

	_, err := w.WriteItems(context.Background(), makeItems(50), types.NewIngestionContext("r", "s", "f"))
	require.NoError(t, err)

	for _, size := range store.CommitSizes() {
		assert.LessOrEqual(t, size, 10+maxWritesPerItem-1)
	}
	// 4 items reach 12 ops, so every full batch is 12
	assert.Equal(t, []int{12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 6}, store.CommitSizes())
}

func TestBatchWriterClampsThresholdToStoreLimit(t *testing.T) {
	store := docstore.NewMemoryStore()
	store.SetMaxBatchOps(100)

	w := newTestWriter(store)
	assert.Equal(t, 98, w.Threshold())

	_, err := w.WriteItems(context.Background(), makeItems(200), types.NewIngestionContext("r", "s", "f"))
	require.NoError(t, err)
	for _, size := range store.CommitSizes() {
		assert.LessOrEqual(t, size, 100)
	}
}

func TestWriteItemsCommitFailureKeepsEarlierBatches(t *testing.T) {
	store := docstore.NewMemoryStore()
	boom := errors.New("backend unavailable")
	store.FailCommit(2, boom)

	result, err := newTestWriter(store).WriteItems(context.Background(), makeItems(300), types.NewIngestionContext("r", "S1", "f"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommitFailed)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 1, result.Commits)
	assert.Equal(t, []int{450}, store.CommitSizes())
	assert.Len(t, store.Paths("products/"), 300)
	assert.Len(t, store.Paths("storeItems/"), 150)
}

func TestWriteItemsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := docstore.NewMemoryStore()
	_, err := newTestWriter(store).WriteItems(ctx, makeItems(5), types.NewIngestionContext("r", "s", "f"))
	assert.ErrorIs(t, err, ErrCommitFailed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.CommitSizes())
}

func TestWriteItemsMilkScenario(t *testing.T) {
	store := docstore.NewMemoryStore()
	item := types.CanonicalItem{
		Barcode: "729000011112",
		Name:    "Milk 1L",
		Price:   decimal.RequireFromString("6.90"),
	}

	result, err := newTestWriter(store).WriteItems(context.Background(), slices.Values([]types.CanonicalItem{item}),
		types.NewIngestionContext("shufersal", "S1", "PriceFull.xml"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, []int{3}, store.CommitSizes())

	product, ok := store.Get("products/729000011112")
	require.True(t, ok)
	assert.Equal(t, "729000011112", product["barcode"])
	assert.Equal(t, "Milk 1L", product["name"])
	assert.Equal(t, "milk 1l", product["normalizedName"])
	assert.Contains(t, product, "updatedAt")
	assert.NotContains(t, product, "brand")
	assert.NotContains(t, product, "unitSize")

	link, ok := store.Get("products/729000011112/retailerItems/shufersal")
	require.True(t, ok)
	assert.Equal(t, "729000011112", link["retailerItemId"])
	assert.Equal(t, "shufersal", link["retailerName"])
	assert.Equal(t, "PriceFull.xml", link["source"])
	assert.Contains(t, link, "lastSeenAt")

	price, ok := store.Get("storeItems/S1/items/729000011112")
	require.True(t, ok)
	assert.Equal(t, "729000011112", price["productId"])
	assert.Equal(t, "shufersal", price["retailerId"])
	assert.Equal(t, "S1", price["storeId"])
	assert.Equal(t, 6.9, price["price"])
	assert.Equal(t, "ILS", price["currency"])
	assert.Equal(t, "PriceFull.xml", price["sourceFile"])
}

func TestWriteItemsCafeCremeScenario(t *testing.T) {
	store := docstore.NewMemoryStore()
	items := []types.CanonicalItem{
		{Name: "Café Crème!!", Brand: "Elite", Price: decimal.RequireFromString("12.5")},
		{Name: "cafe creme", Price: decimal.RequireFromString("11")},
	}

	result, err := newTestWriter(store).WriteItems(context.Background(), slices.Values(items),
		types.NewIngestionContext("", "", "catalog.xml"))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, []int{4}, store.CommitSizes())

	assert.Equal(t, []string{
		"products/n_939d8bd5629cb43f",
		"products/n_939d8bd5629cb43f/retailerItems/unknown",
	}, store.Paths("products/"))
	assert.Empty(t, store.Paths("storeItems/"))

	product, _ := store.Get("products/n_939d8bd5629cb43f")
	assert.Equal(t, "", product["barcode"])
	assert.Equal(t, "cafe creme", product["normalizedName"])
	// Last write wins for name, the brand from the first item is kept
	assert.Equal(t, "cafe creme", product["name"])
	assert.Equal(t, "Elite", product["brand"])
}

func TestWriteItemsCustomCurrency(t *testing.T) {
	store := docstore.NewMemoryStore()
	w := NewBatchWriter(store, WriterOptions{Currency: "EUR"}, zerolog.Nop())

	_, err := w.WriteItems(context.Background(), makeItems(1), types.NewIngestionContext("r", "S1", "f"))
	require.NoError(t, err)

	price, ok := store.Get("storeItems/S1/items/729000000000")
	require.True(t, ok)
	assert.Equal(t, "EUR", price["currency"])
}
