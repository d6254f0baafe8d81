package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes for different data types
const (
	prefixRun   = "run:" // run records by id
	prefixIndex = "idx:" // idx:<created unix nanos>:<id>, for listing by time
)

// BadgerBackend is a BadgerDB-backed storage implementation.
type BadgerBackend struct {
	db          *badger.DB
	initialized bool
	mu          sync.RWMutex
	runCount    int
}

// NewBadgerBackend creates a new BadgerDB backend.
func NewBadgerBackend() *BadgerBackend {
	return &BadgerBackend{}
}

// Initialize opens or creates the BadgerDB database at the given path.
func (b *BadgerBackend) Initialize(path string, readOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithNumMemtables(5).
		WithLoggingLevel(badger.ERROR) // Suppress INFO/WARNING logs

	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	var err error
	b.db, err = badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger DB: %w", err)
	}

	b.initialized = true
	b.runCount = b.countRuns()

	return nil
}

// countRuns counts the stored runs by their index keys.
func (b *BadgerBackend) countRuns() int {
	count := 0
	_ = b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixIndex)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count
}

// Close releases all resources held by the backend.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil
	b.initialized = false
	return err
}

// SaveRun stores a run and its time index entry.
func (b *BadgerBackend) SaveRun(ctx context.Context, run *RunRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return errNotInitialized
	}
	run.prepare()

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}

	existed := false
	err = b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(run.ID))
		switch {
		case err == nil:
			existed = true
			var old RunRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &old)
			}); err != nil {
				return fmt.Errorf("unmarshaling run: %w", err)
			}
			if err := txn.Delete(indexKey(&old)); err != nil {
				return fmt.Errorf("deleting run index: %w", err)
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if err := txn.Set(runKey(run.ID), data); err != nil {
			return fmt.Errorf("setting run: %w", err)
		}
		if err := txn.Set(indexKey(run), []byte(run.ID)); err != nil {
			return fmt.Errorf("setting run index: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !existed {
		b.runCount++
	}
	return nil
}

// GetRun returns the run whose id equals or starts with id.
func (b *BadgerBackend) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return nil, errNotInitialized
	}
	if id == "" {
		return nil, ErrRunNotFound
	}

	var run *RunRecord
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = runKey(id)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if run != nil {
				return fmt.Errorf("%w: %q", ErrAmbiguousRun, id)
			}
			var r RunRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return fmt.Errorf("unmarshaling run: %w", err)
			}
			run = &r
			if r.ID == id {
				return nil
			}
		}
		if run == nil {
			return fmt.Errorf("%w: %q", ErrRunNotFound, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns walks the time index backwards.
func (b *BadgerBackend) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return nil, errNotInitialized
	}

	var runs []*RunRecord
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		prefix := []byte(prefixIndex)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append(prefix, 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if limit > 0 && len(runs) >= limit {
				break
			}
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			item, err := txn.Get(runKey(string(id)))
			if err != nil {
				// Index entry without a run; skip it
				continue
			}
			var r RunRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return fmt.Errorf("unmarshaling run: %w", err)
			}
			runs = append(runs, &r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// DeleteRun removes a run and its index entry.
func (b *BadgerBackend) DeleteRun(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return errNotInitialized
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %q", ErrRunNotFound, id)
		}
		if err != nil {
			return err
		}
		var r RunRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		}); err != nil {
			return fmt.Errorf("unmarshaling run: %w", err)
		}
		if err := txn.Delete(indexKey(&r)); err != nil {
			return err
		}
		return txn.Delete(runKey(id))
	})
	if err != nil {
		return err
	}
	b.runCount--
	return nil
}

// Clear drops all data.
func (b *BadgerBackend) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return errNotInitialized
	}
	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("dropping runs: %w", err)
	}
	b.runCount = 0
	return nil
}

// RunCount returns the number of stored runs.
func (b *BadgerBackend) RunCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.runCount
}

func runKey(id string) []byte {
	return []byte(prefixRun + id)
}

func indexKey(r *RunRecord) []byte {
	return fmt.Appendf(nil, "%s%020d:%s", prefixIndex, r.CreatedAt.UnixNano(), r.ID)
}
