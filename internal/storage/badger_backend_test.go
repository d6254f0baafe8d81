package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestBadgerBackend(t *testing.T) (*BadgerBackend, string, func()) {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "badger")

	backend := NewBadgerBackend()
	err := backend.Initialize(dbPath, false)
	require.NoError(t, err)

	cleanup := func() {
		backend.Close()
	}

	return backend, dbPath, cleanup
}

func TestBadgerBackend_Initialize(t *testing.T) {
	t.Parallel()

	t.Run("Success", func(t *testing.T) {
		backend, _, cleanup := setupTestBadgerBackend(t)
		defer cleanup()

		assert.NotNil(t, backend.db)
		assert.True(t, backend.initialized)
		assert.Zero(t, backend.RunCount())
	})

	t.Run("ReadOnly", func(t *testing.T) {
		ctx := context.Background()
		backend1, dbPath, _ := setupTestBadgerBackend(t)
		require.NoError(t, backend1.SaveRun(ctx, sampleRun("counter", time.Time{})))
		require.NoError(t, backend1.Close())

		backend2 := NewBadgerBackend()
		err := backend2.Initialize(dbPath, true)
		require.NoError(t, err)
		defer backend2.Close()

		assert.True(t, backend2.initialized)
		assert.Equal(t, 1, backend2.RunCount(), "count is rebuilt from the index")
		runs, err := backend2.ListRuns(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, runs, 1)
	})
}

func TestBadgerBackend_NotInitialized(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backend := NewBadgerBackend()

	assert.ErrorIs(t, backend.SaveRun(ctx, &RunRecord{}), errNotInitialized)
	_, err := backend.GetRun(ctx, "x")
	assert.ErrorIs(t, err, errNotInitialized)
	_, err = backend.ListRuns(ctx, 0)
	assert.ErrorIs(t, err, errNotInitialized)
	assert.ErrorIs(t, backend.DeleteRun(ctx, "x"), errNotInitialized)
	assert.ErrorIs(t, backend.Clear(ctx), errNotInitialized)
	assert.NoError(t, backend.Close())
}

func TestBadgerBackend_Persistence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backend, dbPath, _ := setupTestBadgerBackend(t)
	run := sampleRun("counter", time.Time{})
	run.Cex = []string{"l0{}", "err{}"}
	require.NoError(t, backend.SaveRun(ctx, run))
	require.NoError(t, backend.Close())

	reopened := NewBadgerBackend()
	require.NoError(t, reopened.Initialize(dbPath, false))
	defer reopened.Close()

	got, err := reopened.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Cex, got.Cex)
	assert.Equal(t, run.Total, got.Total)
}

func TestBadgerBackend_SaveTwiceCountsOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backend, _, cleanup := setupTestBadgerBackend(t)
	defer cleanup()

	run := sampleRun("counter", time.Time{})
	require.NoError(t, backend.SaveRun(ctx, run))
	run.Outcome = "unsafe"
	require.NoError(t, backend.SaveRun(ctx, run))

	assert.Equal(t, 1, backend.RunCount())
	got, err := backend.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "unsafe", got.Outcome)
}

func TestBadgerBackend_ResaveMovesIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backend, dbPath, cleanup := setupTestBadgerBackend(t)
	defer cleanup()

	run := sampleRun("counter", time.Unix(100, 0).UTC())
	require.NoError(t, backend.SaveRun(ctx, run))
	require.NoError(t, backend.SaveRun(ctx, sampleRun("mutex", time.Unix(200, 0).UTC())))
	run.CreatedAt = time.Unix(300, 0).UTC()
	require.NoError(t, backend.SaveRun(ctx, run))

	runs, err := backend.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, "mutex", runs[1].Model)

	require.NoError(t, backend.Close())
	reopened := NewBadgerBackend()
	require.NoError(t, reopened.Initialize(dbPath, true))
	defer reopened.Close()
	assert.Equal(t, 2, reopened.RunCount())
}

func TestIndexKey_SortsByTime(t *testing.T) {
	t.Parallel()

	early := &RunRecord{ID: "b", CreatedAt: time.Unix(1, 0)}
	late := &RunRecord{ID: "a", CreatedAt: time.Unix(100, 0)}

	assert.Less(t, string(indexKey(early)), string(indexKey(late)))
}
