package charset

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
)

var (
	utf8BOM         = []byte{0xEF, 0xBB, 0xBF}
	declarationRe   = regexp.MustCompile(`<\?xml[^?]*encoding=["']([^"']+)["'][^?]*\?>`)
	replacementRune = []byte("�")
)

// DeclaredEncoding extracts the encoding label from the XML declaration, lowercased.
// Returns "" when there is no declaration or it names no encoding.
func DeclaredEncoding(content []byte) string {
	head := content[:min(200, len(content))]
	if match := declarationRe.FindSubmatch(head); len(match) > 1 {
		return strings.ToLower(strings.TrimSpace(string(match[1])))
	}
	return ""
}

// IsUTF8Label reports whether an encoding label names UTF-8
func IsUTF8Label(label string) bool {
	switch strings.ToLower(label) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}

// Prepare strips a UTF-8 BOM and, for content that is meant to be UTF-8,
// replaces invalid byte sequences with U+FFFD instead of failing the parse.
// Content declaring another encoding is returned untouched for NewReader.
func Prepare(content []byte) []byte {
	content = bytes.TrimPrefix(content, utf8BOM)
	if utf8.Valid(content) {
		return content
	}
	if IsUTF8Label(DeclaredEncoding(content)) {
		return bytes.ToValidUTF8(content, replacementRune)
	}
	return content
}

// NewReader wraps input with a decoder converting the labelled encoding to UTF-8.
// Labels follow the WHATWG encoding index (windows-1255, iso-8859-8, ...).
func NewReader(label string, input io.Reader) (io.Reader, error) {
	if IsUTF8Label(label) {
		return input, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}
