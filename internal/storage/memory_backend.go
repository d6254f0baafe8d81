package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// MemoryBackend is an in-memory implementation of StorageBackend, used when
// no database path is configured and in tests.
type MemoryBackend struct {
	mu          sync.RWMutex
	runs        map[string]*RunRecord
	initialized bool
}

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		runs: make(map[string]*RunRecord),
	}
}

// Initialize implements StorageBackend.
func (m *MemoryBackend) Initialize(path string, readOnly bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = true
	return nil
}

// Close implements StorageBackend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = nil
	m.initialized = false
	return nil
}

// SaveRun implements StorageBackend. The record is copied.
func (m *MemoryBackend) SaveRun(ctx context.Context, run *RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.runs == nil {
		return errNotInitialized
	}
	run.prepare()
	c := *run
	m.runs[run.ID] = &c
	return nil
}

// GetRun implements StorageBackend.
func (m *MemoryBackend) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if r, ok := m.runs[id]; ok {
		c := *r
		return &c, nil
	}
	var found *RunRecord
	for rid, r := range m.runs {
		if id == "" || !strings.HasPrefix(rid, id) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: %q", ErrAmbiguousRun, id)
		}
		found = r
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %q", ErrRunNotFound, id)
	}
	c := *found
	return &c, nil
}

// ListRuns implements StorageBackend.
func (m *MemoryBackend) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]*RunRecord, 0, len(m.runs))
	for _, r := range m.runs {
		c := *r
		runs = append(runs, &c)
	}
	slices.SortFunc(runs, func(a, b *RunRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// DeleteRun implements StorageBackend.
func (m *MemoryBackend) DeleteRun(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[id]; !ok {
		return fmt.Errorf("%w: %q", ErrRunNotFound, id)
	}
	delete(m.runs, id)
	return nil
}

// Clear implements StorageBackend.
func (m *MemoryBackend) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.runs)
	return nil
}

// IsInitialized reports whether Initialize has been called.
func (m *MemoryBackend) IsInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// RunCount returns the number of stored runs.
func (m *MemoryBackend) RunCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}
