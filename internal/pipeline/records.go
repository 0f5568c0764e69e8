package pipeline

import (
	"time"

	"github.com/kosarica/catalog-ingest/internal/docstore"
	"github.com/kosarica/catalog-ingest/internal/matching"
	"github.com/kosarica/catalog-ingest/internal/types"
)

// ProductRecord is the document at products/{productId}
type ProductRecord struct {
	Barcode        string    `json:"barcode" jsonschema:"description=Vendor barcode or empty for name-derived products"`
	Name           string    `json:"name" jsonschema:"minLength=1"`
	Brand          string    `json:"brand,omitempty"`
	UnitSize       string    `json:"unitSize,omitempty"`
	NormalizedName string    `json:"normalizedName"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// RetailerItemRecord is the document at products/{productId}/retailerItems/{retailerId}
type RetailerItemRecord struct {
	RetailerItemID string    `json:"retailerItemId"`
	RetailerName   string    `json:"retailerName"`
	LastSeenAt     time.Time `json:"lastSeenAt"`
	Source         string    `json:"source"`
}

// StoreItemRecord is the document at storeItems/{storeId}/items/{productId}
type StoreItemRecord struct {
	ProductID  string    `json:"productId"`
	RetailerID string    `json:"retailerId"`
	StoreID    string    `json:"storeId"`
	Price      float64   `json:"price"`
	Currency   string    `json:"currency"`
	SourceFile string    `json:"sourceFile"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// itemWrites builds the merge-upserts for one item: product and retailer link
// always, store price only when the store is known
func itemWrites(item types.CanonicalItem, ictx types.IngestionContext, currency string) []docstore.Write {
	normalized := matching.NormalizeName(item.Name)
	productID := matching.ResolveIdentity(item.Barcode, normalized)

	product := map[string]any{
		"barcode":        item.Barcode,
		"name":           item.Name,
		"normalizedName": normalized,
		"updatedAt":      docstore.ServerTimestamp,
	}
	// Absent optional fields must not clear values another feed supplied
	if item.Brand != "" {
		product["brand"] = item.Brand
	}
	if item.UnitSize != "" {
		product["unitSize"] = item.UnitSize
	}

	writes := []docstore.Write{
		{Path: docstore.ProductPath(productID), Fields: product},
		{
			Path: docstore.RetailerItemPath(productID, ictx.RetailerID),
			Fields: map[string]any{
				"retailerItemId": item.Barcode,
				"retailerName":   ictx.RetailerID,
				"lastSeenAt":     docstore.ServerTimestamp,
				"source":         ictx.SourceName,
			},
		},
	}

	if ictx.StoreID != "" {
		writes = append(writes, docstore.Write{
			Path: docstore.StoreItemPath(ictx.StoreID, productID),
			Fields: map[string]any{
				"productId":  productID,
				"retailerId": ictx.RetailerID,
				"storeId":    ictx.StoreID,
				"price":      item.Price.InexactFloat64(),
				"currency":   currency,
				"sourceFile": ictx.SourceName,
				"updatedAt":  docstore.ServerTimestamp,
			},
		})
	}

	return writes
}
