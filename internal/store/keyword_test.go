package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKeywordIndex(t *testing.T) *BleveKeywordIndex {
	t.Helper()
	idx, err := NewBleveKeywordIndex("") // in-memory
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func testChunk(id, path, title, content string) *Chunk {
	return &Chunk{
		ID:      id,
		Path:    path,
		Title:   title,
		Content: content,
		Kind:    KindMarkdown,
	}
}

func TestKeywordIndex_IndexAndSearch(t *testing.T) {
	// Given an index with a few document chunks
	idx := newTestKeywordIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Chunk{
		testChunk("notes.md::chunk_0000", "notes.md", "Budget", "quarterly budget review for the household"),
		testChunk("recipes.md::chunk_0000", "recipes.md", "Recipes", "slow cooker chili with beans"),
	}))

	// When searching for a term from one chunk
	results, err := idx.Search(ctx, "budget", 10)
	require.NoError(t, err)

	// Then only the matching chunk is returned
	require.Len(t, results, 1)
	assert.Equal(t, "notes.md::chunk_0000", results[0].ID)
	assert.NotEmpty(t, results[0].MatchedTerms)
}

func TestKeywordIndex_TitleMatchRanksHigher(t *testing.T) {
	idx := newTestKeywordIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Chunk{
		testChunk("a", "a.md", "Gardening", "watering schedule for tomatoes"),
		testChunk("b", "b.md", "Journal", "thinking about gardening again this year and other things"),
	}))

	results, err := idx.Search(ctx, "gardening", 10)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID, "title match should outrank body match")
}

func TestKeywordIndex_Replace_DoesNotDuplicate(t *testing.T) {
	idx := newTestKeywordIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Chunk{
		testChunk("doc", "doc.md", "Old", "ancient content about turtles"),
	}))
	require.NoError(t, idx.Index(ctx, []*Chunk{
		testChunk("doc", "doc.md", "New", "fresh content about rockets"),
	}))

	assert.Equal(t, 1, idx.Stats().DocumentCount)

	// Old content is gone
	results, err := idx.Search(ctx, "turtles", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	// New content is findable
	results, err = idx.Search(ctx, "rockets", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc", results[0].ID)
}

func TestKeywordIndex_Delete(t *testing.T) {
	idx := newTestKeywordIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Chunk{
		testChunk("a", "a.md", "A", "alpha content"),
		testChunk("b", "b.md", "B", "beta content"),
	}))

	require.NoError(t, idx.Delete(ctx, []string{"a"}))

	assert.Equal(t, 1, idx.Stats().DocumentCount)
	results, err := idx.Search(ctx, "alpha", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestKeywordIndex_Reset(t *testing.T) {
	idx := newTestKeywordIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Chunk{
		testChunk("a", "a.md", "A", "something searchable"),
	}))
	require.NoError(t, idx.Reset())

	assert.Equal(t, 0, idx.Stats().DocumentCount)

	// Index remains usable after reset
	require.NoError(t, idx.Index(ctx, []*Chunk{
		testChunk("b", "b.md", "B", "post reset content"),
	}))
	results, err := idx.Search(ctx, "reset", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestKeywordIndex_EmptyQuery(t *testing.T) {
	idx := newTestKeywordIndex(t)

	results, err := idx.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestKeywordIndex_PersistsOnDisk(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/keyword.bleve"
	ctx := context.Background()

	idx, err := NewBleveKeywordIndex(path)
	require.NoError(t, err)
	require.NoError(t, idx.Index(ctx, []*Chunk{
		testChunk("a", "a.md", "Persisted", "this survives a reopen"),
	}))
	require.NoError(t, idx.Close())

	reopened, err := NewBleveKeywordIndex(path)
	require.NoError(t, err)
	defer reopened.Close()

	results, err := reopened.Search(ctx, "survives", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestKeywordIndex_LimitRespected(t *testing.T) {
	idx := newTestKeywordIndex(t)
	ctx := context.Background()

	var chunks []*Chunk
	for i := 0; i < 10; i++ {
		chunks = append(chunks, testChunk(
			fmt.Sprintf("doc-%d", i), fmt.Sprintf("doc-%d.md", i), "Note",
			"shared keyword sunflower appears everywhere"))
	}
	require.NoError(t, idx.Index(ctx, chunks))

	results, err := idx.Search(ctx, "sunflower", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}
