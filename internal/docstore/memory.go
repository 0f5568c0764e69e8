package docstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultMaxBatchOps matches the per-batch write limit of common document stores
const DefaultMaxBatchOps = 500

// MemoryStore is an in-process Writer used by tests and the memory backend
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]map[string]any
	commits []int
	maxOps  int
	now     func() time.Time

	failAt  int
	failErr error
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]map[string]any),
		maxOps: DefaultMaxBatchOps,
		now:    time.Now,
	}
}

// MaxBatchOps implements Writer
func (s *MemoryStore) MaxBatchOps() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxOps
}

// SetMaxBatchOps overrides the batch limit
func (s *MemoryStore) SetMaxBatchOps(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxOps = n
}

// FailCommit makes the n-th commit from now (1-based) fail with err
func (s *MemoryStore) FailCommit(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAt = len(s.commits) + n
	s.failErr = err
}

// Commit implements Writer. Writes are validated before any is applied.
func (s *MemoryStore) Commit(ctx context.Context, writes []Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(writes) > s.maxOps {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(writes), s.maxOps)
	}
	for _, w := range writes {
		if err := ValidatePath(w.Path); err != nil {
			return fmt.Errorf("%w: %q", err, w.Path)
		}
	}
	if s.failAt > 0 && len(s.commits)+1 == s.failAt {
		s.failAt = 0
		return s.failErr
	}

	now := s.now()
	for _, w := range writes {
		doc, ok := s.docs[w.Path]
		if !ok {
			doc = make(map[string]any, len(w.Fields))
			s.docs[w.Path] = doc
		}
		maps.Copy(doc, ResolveFields(w.Fields, now))
	}
	s.commits = append(s.commits, len(writes))
	return nil
}

// Get returns a copy of the document at path
func (s *MemoryStore) Get(path string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[path]
	if !ok {
		return nil, false
	}
	return maps.Clone(doc), true
}

// Paths returns the sorted paths of all documents under prefix
func (s *MemoryStore) Paths(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var paths []string
	for p := range s.docs {
		if strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	slices.Sort(paths)
	return paths
}

// CommitSizes returns the number of writes in each successful commit, in order
func (s *MemoryStore) CommitSizes() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.commits)
}
