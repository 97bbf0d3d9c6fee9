package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVectorStore(t *testing.T) *HNSWStore {
	t.Helper()
	s, err := NewHNSWStore(DefaultVectorStoreConfig(4))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHNSWStore_AddAndSearch(t *testing.T) {
	// Given a store with three orthogonal-ish vectors
	s := newTestVectorStore(t)
	ctx := context.Background()

	ids := []string{"a", "b", "c"}
	vectors := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
	}
	require.NoError(t, s.Add(ctx, ids, vectors))

	// When searching near vector "a"
	results, err := s.Search(ctx, []float32{0.9, 0.1, 0, 0}, 2)
	require.NoError(t, err)

	// Then "a" is the closest match
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ID)
	assert.Greater(t, results[0].Score, float32(0.5))
}

func TestHNSWStore_Replace_DoesNotDuplicate(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []string{"doc"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, s.Add(ctx, []string{"doc"}, [][]float32{{0, 0, 0, 1}}))

	// Count stays one after re-adding the same ID
	assert.Equal(t, 1, s.Count())

	// And search reflects the updated vector
	results, err := s.Search(ctx, []float32{0, 0, 0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.01)
}

func TestHNSWStore_Delete_HidesFromResults(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []string{"a", "b"}, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}))

	require.NoError(t, s.Delete(ctx, []string{"a"}))

	assert.Equal(t, 1, s.Count())
	assert.False(t, s.Contains("a"))
	assert.True(t, s.Contains("b"))

	results, err := s.Search(ctx, []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "a", r.ID)
	}
}

func TestHNSWStore_DimensionMismatch(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	err := s.Add(ctx, []string{"bad"}, [][]float32{{1, 0}})
	require.Error(t, err)
	assert.ErrorAs(t, err, &ErrDimensionMismatch{})

	_, err = s.Search(ctx, []float32{1, 0}, 1)
	require.Error(t, err)
	assert.ErrorAs(t, err, &ErrDimensionMismatch{})
}

func TestHNSWStore_SearchEmptyStore(t *testing.T) {
	s := newTestVectorStore(t)

	results, err := s.Search(context.Background(), []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWStore_SaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.hnsw")

	// Given a populated store saved to disk
	s := newTestVectorStore(t)
	require.NoError(t, s.Add(ctx, []string{"x", "y"}, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}))
	require.NoError(t, s.Save(path))

	// When loading into a fresh store
	loaded, err := NewHNSWStore(DefaultVectorStoreConfig(4))
	require.NoError(t, err)
	defer loaded.Close()
	require.NoError(t, loaded.Load(path))

	// Then contents survive the round trip
	assert.Equal(t, 2, loaded.Count())
	assert.True(t, loaded.Contains("x"))

	results, err := loaded.Search(ctx, []float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "x", results[0].ID)
}

func TestHNSWStore_Reset(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, s.Reset())

	assert.Equal(t, 0, s.Count())
	assert.Empty(t, s.AllIDs())

	// Store remains usable after reset
	require.NoError(t, s.Add(ctx, []string{"b"}, [][]float32{{0, 1, 0, 0}}))
	assert.Equal(t, 1, s.Count())
}

func TestReadStoredDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.hnsw")

	// Fresh start: no metadata yet
	dims, err := ReadStoredDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 0, dims)

	// After a save the stored dimensions are readable
	s := newTestVectorStore(t)
	require.NoError(t, s.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, s.Save(path))

	dims, err = ReadStoredDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 4, dims)
}

func TestHNSWStore_ClosedStoreErrors(t *testing.T) {
	s := newTestVectorStore(t)
	require.NoError(t, s.Close())

	err := s.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}})
	assert.Error(t, err)

	_, err = s.Search(context.Background(), []float32{1, 0, 0, 0}, 1)
	assert.Error(t, err)

	assert.Equal(t, 0, s.Count())
}
