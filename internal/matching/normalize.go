package matching

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics folds accented letters to their base form (é -> e).
// Letters without a canonical decomposition are left untouched.
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// NormalizeName canonicalizes a free-text item name into a comparison key.
// The result only contains a-z, 0-9 and single spaces, so applying it twice
// is a no-op. It is used for hash identity, never for display.
func NormalizeName(name string) string {
	s := strings.TrimSpace(name)
	if s == "" {
		return ""
	}

	s = RemoveDiacritics(strings.ToLower(s))
	// Whitespace and every non-ASCII-alphanumeric rune become a plain space
	s = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return ' '
	}, s)

	return strings.Join(strings.Fields(s), " ")
}
