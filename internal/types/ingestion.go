package types

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// UnknownRetailer is used when the trigger does not name a retailer
const UnknownRetailer = "unknown"

// CanonicalItem represents one validated catalog entry from any vendor schema
type CanonicalItem struct {
	Barcode  string          `json:"barcode,omitempty"`
	Name     string          `json:"name"`
	Brand    string          `json:"brand,omitempty"`
	UnitSize string          `json:"unitSize,omitempty"`
	Price    decimal.Decimal `json:"price"`
}

// RawItem holds the trimmed field text extracted from one item node
type RawItem struct {
	Barcode  string `json:"barcode,omitempty"`
	Name     string `json:"name,omitempty"`
	Brand    string `json:"brand,omitempty"`
	UnitSize string `json:"unitSize,omitempty"`
	Price    string `json:"price,omitempty"`
}

// SkipReason explains why an item candidate was dropped
type SkipReason string

const (
	SkipNone         SkipReason = ""
	SkipMissingName  SkipReason = "missing_name"
	SkipMissingPrice SkipReason = "missing_price"
	SkipInvalidPrice SkipReason = "invalid_price"
)

// SkipReasons lists every reason an item can be skipped for
var SkipReasons = []SkipReason{SkipMissingName, SkipMissingPrice, SkipInvalidPrice}

// Canonical applies the disqualification predicates to the raw fields.
// Name is checked before price, so an item missing both reports missing_name.
func (r RawItem) Canonical() (CanonicalItem, SkipReason) {
	if r.Name == "" {
		return CanonicalItem{}, SkipMissingName
	}
	price, reason := ParsePrice(r.Price)
	if reason != SkipNone {
		return CanonicalItem{}, reason
	}
	return CanonicalItem{
		Barcode:  r.Barcode,
		Name:     r.Name,
		Brand:    r.Brand,
		UnitSize: r.UnitSize,
		Price:    price,
	}, SkipNone
}

// maxPriceExponent bounds the decimal exponent of a price. Prices are stored
// as float64, and converting an unbounded exponent is unbounded work.
const maxPriceExponent = 308

// ParsePrice parses price text as a decimal number that fits a finite float64.
// An unparsable value is absent, never zero.
func ParsePrice(value string) (decimal.Decimal, SkipReason) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Decimal{}, SkipMissingPrice
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return decimal.Decimal{}, SkipInvalidPrice
	}
	price, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, SkipInvalidPrice
	}
	if exp := price.Exponent(); exp > maxPriceExponent || exp < -maxPriceExponent {
		return decimal.Decimal{}, SkipInvalidPrice
	}
	return price, SkipNone
}

// IngestionContext carries per-file metadata for one ingestion run
type IngestionContext struct {
	RetailerID string `json:"retailerId"`
	StoreID    string `json:"storeId,omitempty"`
	SourceName string `json:"sourceName"`
}

// NewIngestionContext builds a context, defaulting the retailer to UnknownRetailer
func NewIngestionContext(retailerID, storeID, sourceName string) IngestionContext {
	retailerID = strings.TrimSpace(retailerID)
	if retailerID == "" {
		retailerID = UnknownRetailer
	}
	return IngestionContext{
		RetailerID: retailerID,
		StoreID:    strings.TrimSpace(storeID),
		SourceName: sourceName,
	}
}

// WithStoreID returns a copy of the context with the store replaced
func (c IngestionContext) WithStoreID(storeID string) IngestionContext {
	c.StoreID = storeID
	return c
}
