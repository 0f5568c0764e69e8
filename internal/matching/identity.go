package matching

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

const (
	// NameIdentityPrefix marks identities derived from a name hash so they
	// never collide with the barcode namespace
	NameIdentityPrefix = "n_"

	nameHashLength = 16
)

// HashName returns the first 16 hex characters of sha1(normalizedName)
func HashName(normalizedName string) string {
	sum := sha1.Sum([]byte(normalizedName))
	return hex.EncodeToString(sum[:])[:nameHashLength]
}

// ResolveIdentity derives the product identity used as the document key.
// A non-empty barcode is trusted verbatim (no checksum validation). Without a
// barcode the identity is NameIdentityPrefix + HashName(normalizedName), so two
// names that normalize identically resolve to the same product.
func ResolveIdentity(barcode, normalizedName string) string {
	if barcode != "" {
		return barcode
	}
	return NameIdentityPrefix + HashName(normalizedName)
}

// IsNameDerived reports whether an identity came from a name hash
func IsNameDerived(identity string) bool {
	return strings.HasPrefix(identity, NameIdentityPrefix) && len(identity) == len(NameIdentityPrefix)+nameHashLength
}
