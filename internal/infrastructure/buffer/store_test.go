package buffer

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, maxSize int) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "outbox.db"), "", maxSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreIsFIFO(t *testing.T) {
	s := openStore(t, 0)
	base := time.Now().Add(-time.Minute)

	for i, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.Enqueue(Item{ID: id, Kind: "task.created", Payload: []byte(`{}`), Timestamp: base.Add(time.Duration(i) * time.Second)}))
	}

	items, err := s.GetBatch(2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "c", items[0].ID)
	assert.Equal(t, "a", items[1].ID)
	assert.Equal(t, "task.created", items[0].Subject)

	size, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, 3, size)
}

func TestStoreRequeueMovesToBack(t *testing.T) {
	s := openStore(t, 0)
	base := time.Now().Add(-time.Minute)
	require.NoError(t, s.Enqueue(Item{ID: "first", Kind: "task.deleted", Timestamp: base}))
	require.NoError(t, s.Enqueue(Item{ID: "second", Kind: "task.deleted", Timestamp: base.Add(time.Second)}))

	items, err := s.GetBatch(1)
	require.NoError(t, err)
	item := items[0]
	item.Retries++
	require.NoError(t, s.Requeue(item))

	items, err = s.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "second", items[0].ID)
	assert.Equal(t, "first", items[1].ID)
	assert.Equal(t, 1, items[1].Retries)
}

func TestStoreRemove(t *testing.T) {
	s := openStore(t, 0)
	require.NoError(t, s.Enqueue(Item{ID: "x", Kind: "task.updated"}))
	require.NoError(t, s.Enqueue(Item{ID: "y", Kind: "task.updated"}))

	items, err := s.GetBatch(10)
	require.NoError(t, err)
	require.NoError(t, s.Remove(items[0]))
	require.NoError(t, s.Remove(Item{ID: "y"}))

	size, err := s.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestStoreRespectsMaxSize(t *testing.T) {
	s := openStore(t, 1)
	require.NoError(t, s.Enqueue(Item{Kind: "task.created"}))
	assert.ErrorIs(t, s.Enqueue(Item{Kind: "task.created"}), ErrFull)
}

func TestStoreCleanup(t *testing.T) {
	s := openStore(t, 0)
	now := time.Now()
	require.NoError(t, s.Enqueue(Item{ID: "old", Kind: "task.created", Timestamp: now.Add(-48 * time.Hour)}))
	require.NoError(t, s.Enqueue(Item{ID: "new", Kind: "task.created", Timestamp: now}))

	removed, err := s.Cleanup(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	items, err := s.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "new", items[0].ID)
}

func TestClosedStore(t *testing.T) {
	var s *Store
	_, err := s.Size()
	assert.Error(t, err)
	assert.NoError(t, s.Close())
}

func TestStoreCleanupAgesRequeuedItemsFromFirstEnqueue(t *testing.T) {
	s := openStore(t, 0)
	now := time.Now()
	require.NoError(t, s.Enqueue(Item{ID: "stuck", Kind: "task.created", Timestamp: now.Add(-48 * time.Hour)}))
	require.NoError(t, s.Enqueue(Item{ID: "fresh", Kind: "task.created", Timestamp: now.Add(-time.Hour)}))

	items, err := s.GetBatch(1)
	require.NoError(t, err)
	require.Equal(t, "stuck", items[0].ID)
	require.NoError(t, s.Requeue(items[0]))

	items, err = s.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "stuck", items[1].ID)
	assert.WithinDuration(t, now.Add(-48*time.Hour), items[1].EnqueuedAt, time.Millisecond)

	removed, err := s.Cleanup(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	items, err = s.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "fresh", items[0].ID)
}
