package zip

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrLimitExceeded is returned when an archive breaks one of the ExpandOptions limits
var ErrLimitExceeded = errors.New("archive limit exceeded")

var localFileHeader = []byte("PK\x03\x04")

// ExpandOptions bounds what Expand will extract. Zero limits are unlimited.
type ExpandOptions struct {
	MaxFileSize  int64
	MaxTotalSize int64
	MaxFiles     int
	// Entries whose path contains any of these are ignored
	SkipPatterns []string
}

// DefaultExpandOptions returns default options for ZIP expansion
func DefaultExpandOptions() ExpandOptions {
	return ExpandOptions{
		MaxFileSize:  100 << 20,
		MaxTotalSize: 1 << 30,
		MaxFiles:     1000,
		SkipPatterns: []string{"__MACOSX", ".DS_Store", "Thumbs.db"},
	}
}

// ExpandedFile is one XML catalog extracted from an archive
type ExpandedFile struct {
	InnerFilename string
	Content       []byte
}

// IsZip reports whether content starts with a local file header signature
func IsZip(content []byte) bool {
	return bytes.HasPrefix(content, localFileHeader)
}

// Expand returns the .xml entries of a ZIP archive in archive order, named by
// their base name. Directories, skipped patterns, other extensions and entries
// whose path would leave the archive root are ignored.
func Expand(ctx context.Context, content []byte, options ExpandOptions) ([]ExpandedFile, error) {
	// zip.ErrInsecurePath comes with a usable reader; such entries are filtered below
	archive, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("failed to open ZIP: %w", err)
	}

	var files []ExpandedFile
	var total int64
	for _, entry := range archive.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name, ok := catalogEntry(entry, options.SkipPatterns)
		if !ok {
			continue
		}
		if options.MaxFiles > 0 && len(files) == options.MaxFiles {
			return nil, fmt.Errorf("%w: more than %d files", ErrLimitExceeded, options.MaxFiles)
		}

		data, err := readEntry(entry, options.MaxFileSize)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		total += int64(len(data))
		if options.MaxTotalSize > 0 && total > options.MaxTotalSize {
			return nil, fmt.Errorf("%w: more than %d bytes extracted", ErrLimitExceeded, options.MaxTotalSize)
		}

		files = append(files, ExpandedFile{InnerFilename: name, Content: data})
	}
	return files, nil
}

// catalogEntry reports whether entry is an XML file to extract, and its base name
func catalogEntry(entry *zip.File, skip []string) (string, bool) {
	if entry.FileInfo().IsDir() {
		return "", false
	}
	for _, pattern := range skip {
		if strings.Contains(entry.Name, pattern) {
			return "", false
		}
	}
	name, err := sanitizeFilename(entry.Name)
	if err != nil {
		return "", false
	}
	return name, strings.EqualFold(path.Ext(name), ".xml")
}

// readEntry decompresses entry, failing once more than limit bytes come out.
// The header's declared size is not trusted.
func readEntry(entry *zip.File, limit int64) ([]byte, error) {
	if limit > 0 && entry.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("%w: declared size %d over %d", ErrLimitExceeded, entry.UncompressedSize64, limit)
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open entry: %w", err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if limit > 0 {
		r = io.LimitReader(rc, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read entry: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: entry over %d bytes", ErrLimitExceeded, limit)
	}
	return data, nil
}

// sanitizeFilename returns the base name of an archive path, rejecting
// absolute paths, drive letters and any ".." segment
func sanitizeFilename(name string) (string, error) {
	slashed := strings.ReplaceAll(name, `\`, "/")
	switch {
	case strings.HasPrefix(slashed, "/"):
		return "", fmt.Errorf("absolute path %q", name)
	case len(slashed) >= 2 && slashed[1] == ':':
		return "", fmt.Errorf("drive letter in %q", name)
	case slashed == ".." || strings.HasPrefix(slashed, "../") || strings.Contains(slashed, "/../") || strings.HasSuffix(slashed, "/.."):
		return "", fmt.Errorf("path traversal in %q", name)
	}

	base := path.Base(path.Clean(slashed))
	if base == "." || base == "/" {
		return "", fmt.Errorf("no file name in %q", name)
	}
	return base, nil
}
