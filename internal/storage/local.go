package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Object metadata lives next to the object in a JSON sidecar
const metaSuffix = ".meta"

// LocalStorage is a bucket backed by a directory. Keys are slash-separated
// paths below the directory.
type LocalStorage struct {
	root string
}

// NewLocalStorage opens the bucket at root, creating the directory if needed
func NewLocalStorage(root string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", root, err)
	}
	return &LocalStorage{root: root}, nil
}

// Put writes content and, when metadata is non-nil, its sidecar. Both files
// are written to a temporary name first so readers never see a partial object.
func (s *LocalStorage) Put(ctx context.Context, key string, content []byte, metadata *Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := s.resolve(key)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	if metadata != nil {
		sidecar, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", key, err)
		}
		if err := writeAtomic(target+metaSuffix, sidecar); err != nil {
			return err
		}
	}
	return writeAtomic(target, content)
}

func writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), ".tmp-"+filepath.Base(name)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), name); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	return nil
}

// Get returns the object content, or an error wrapping ErrNotFound
func (s *LocalStorage) Get(ctx context.Context, key string) ([]byte, error) {
	content, err := os.ReadFile(s.resolve(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return content, nil
}

// GetInfo describes the object without reading it, unless no checksum was
// recorded at Put time and one has to be computed
func (s *LocalStorage) GetInfo(ctx context.Context, key string) (*FileInfo, error) {
	target := s.resolve(key)

	stat, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", key, err)
	}

	info := &FileInfo{
		Key:        key,
		Size:       stat.Size(),
		ModifiedAt: stat.ModTime(),
	}
	if metadata, err := readSidecar(target + metaSuffix); err == nil {
		info.Metadata = metadata
		info.ContentType = metadata.ContentType
		info.Checksum = metadata.Checksum
	}

	if info.Checksum == "" {
		if info.Checksum, err = fileChecksum(target); err != nil {
			return nil, err
		}
	}
	return info, nil
}

func readSidecar(name string) (*Metadata, error) {
	raw, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	var metadata Metadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, err
	}
	return &metadata, nil
}

// List returns the sorted keys starting with prefix
func (s *LocalStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(s.root, name)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)

		if d.IsDir() {
			// Prune directories that cannot contain a match
			if name != s.root && !strings.HasPrefix(prefix, key+"/") && !strings.HasPrefix(key, prefix) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(key, metaSuffix) || strings.HasPrefix(path.Base(key), ".tmp-") {
			return nil
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", prefix, err)
	}

	slices.Sort(keys)
	return keys, nil
}

// resolve maps a key into the bucket directory. The key is rooted before
// cleaning so ".." segments stop at the bucket root.
func (s *LocalStorage) resolve(key string) string {
	clean := path.Clean("/" + strings.ReplaceAll(key, `\`, "/"))
	return filepath.Join(s.root, filepath.FromSlash(clean))
}

func fileChecksum(name string) (string, error) {
	f, err := os.Open(name)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", name, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeChecksum returns the hex sha256 of content
func ComputeChecksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// BuildArchiveKey returns archives/{yyyy}/{mm}/{dd}/{sourceName} for the UTC date
func BuildArchiveKey(date time.Time, sourceName string) string {
	return path.Join("archives", date.UTC().Format("2006/01/02"), sourceName)
}

// LocalBuckets maps bucket names to directories below a root
type LocalBuckets struct {
	root string
}

// NewLocalBuckets creates a bucket opener rooted at root
func NewLocalBuckets(root string) *LocalBuckets {
	return &LocalBuckets{root: root}
}

// Bucket opens the named bucket, creating its directory on first use
func (b *LocalBuckets) Bucket(name string) (Storage, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid bucket name %q", name)
	}
	return NewLocalStorage(filepath.Join(b.root, name))
}
