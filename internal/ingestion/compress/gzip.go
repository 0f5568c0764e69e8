// Package compress unwraps gzip-compressed catalog payloads.
package compress

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
)

// ErrTooLarge is returned when decompressed output exceeds the configured limit
var ErrTooLarge = errors.New("decompressed payload too large")

var gzipMagic = []byte{0x1f, 0x8b}

// IsGzip reports whether content starts with the gzip signature
func IsGzip(content []byte) bool {
	return bytes.HasPrefix(content, gzipMagic)
}

// Gunzip decompresses content, reading every concatenated member.
// maxSize caps the output; zero means unlimited.
func Gunzip(content []byte, maxSize int64) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer zr.Close()

	var r io.Reader = zr
	if maxSize > 0 {
		r = io.LimitReader(zr, maxSize+1)
	}

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress gzip: %w", err)
	}
	if maxSize > 0 && int64(len(out)) > maxSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxSize)
	}
	return out, nil
}

// Decompress gunzips content when it carries the gzip signature and returns
// it unchanged otherwise. The signature decides, not the name: a ".gz" URL
// whose body was already decoded in transit is plain XML by the time it
// arrives.
func Decompress(content []byte, maxSize int64) ([]byte, bool, error) {
	if !IsGzip(content) {
		return content, false, nil
	}
	out, err := Gunzip(content, maxSize)
	if err != nil {
		return nil, true, err
	}
	return out, true, nil
}
