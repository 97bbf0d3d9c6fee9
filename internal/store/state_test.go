package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStateStore(t *testing.T) *StateStore {
	t.Helper()
	s, err := NewStateStore("") // in-memory
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStateStore_SaveAndGetDocument(t *testing.T) {
	s := newTestStateStore(t)
	ctx := context.Background()

	now := time.Now()
	doc := &Document{
		Path:        "notes/ideas.md",
		Size:        1234,
		ModTime:     now,
		ContentHash: "abc123",
		Kind:        KindMarkdown,
		ChunkCount:  3,
		IndexedAt:   now,
	}
	require.NoError(t, s.SaveDocument(ctx, doc))

	got, err := s.GetDocument(ctx, "notes/ideas.md")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, doc.Path, got.Path)
	assert.Equal(t, doc.Size, got.Size)
	assert.Equal(t, doc.ContentHash, got.ContentHash)
	assert.Equal(t, KindMarkdown, got.Kind)
	assert.Equal(t, 3, got.ChunkCount)
	assert.True(t, got.ModTime.Equal(now))
}

func TestStateStore_GetDocument_Missing(t *testing.T) {
	s := newTestStateStore(t)

	got, err := s.GetDocument(context.Background(), "nope.md")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStateStore_SaveDocuments_UpsertsByPath(t *testing.T) {
	s := newTestStateStore(t)
	ctx := context.Background()

	doc := &Document{Path: "a.md", ContentHash: "v1", Kind: KindMarkdown, ModTime: time.Now(), IndexedAt: time.Now()}
	require.NoError(t, s.SaveDocument(ctx, doc))

	doc.ContentHash = "v2"
	require.NoError(t, s.SaveDocument(ctx, doc))

	count, err := s.DocumentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := s.GetDocument(ctx, "a.md")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.ContentHash)
}

func TestStateStore_AllDocuments(t *testing.T) {
	s := newTestStateStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocuments(ctx, []*Document{
		{Path: "a.md", ContentHash: "ha", Kind: KindMarkdown, ModTime: time.Now(), IndexedAt: time.Now()},
		{Path: "b.txt", ContentHash: "hb", Kind: KindText, ModTime: time.Now(), IndexedAt: time.Now()},
	}))

	docs, err := s.AllDocuments(ctx)
	require.NoError(t, err)

	require.Len(t, docs, 2)
	assert.Equal(t, "ha", docs["a.md"].ContentHash)
	assert.Equal(t, "hb", docs["b.txt"].ContentHash)
}

func TestStateStore_DeleteDocument(t *testing.T) {
	s := newTestStateStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, &Document{
		Path: "gone.md", ContentHash: "h", Kind: KindMarkdown, ModTime: time.Now(), IndexedAt: time.Now(),
	}))
	require.NoError(t, s.DeleteDocument(ctx, "gone.md"))

	got, err := s.GetDocument(ctx, "gone.md")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStateStore_DeleteAllDocuments(t *testing.T) {
	s := newTestStateStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocuments(ctx, []*Document{
		{Path: "a.md", ContentHash: "ha", Kind: KindMarkdown, ModTime: time.Now(), IndexedAt: time.Now()},
		{Path: "b.md", ContentHash: "hb", Kind: KindMarkdown, ModTime: time.Now(), IndexedAt: time.Now()},
	}))

	require.NoError(t, s.DeleteAllDocuments(ctx))

	count, err := s.DocumentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestStateStore_ResyncHistory_NewestFirst(t *testing.T) {
	s := newTestStateStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		_, err := s.RecordResync(ctx, &ResyncRecord{
			StartedAt:    base.Add(time.Duration(i) * time.Minute),
			FinishedAt:   base.Add(time.Duration(i)*time.Minute + 10*time.Second),
			Reason:       fmt.Sprintf("run-%d", i),
			ItemsIndexed: i,
		})
		require.NoError(t, err)
	}

	records, err := s.RecentResyncs(ctx, 2)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "run-2", records[0].Reason)
	assert.Equal(t, "run-1", records[1].Reason)
}

func TestStateStore_ResyncHistory_Pruned(t *testing.T) {
	s := newTestStateStore(t)
	ctx := context.Background()

	base := time.Now().Add(-24 * time.Hour)
	for i := 0; i < maxResyncHistory+5; i++ {
		_, err := s.RecordResync(ctx, &ResyncRecord{
			StartedAt:  base.Add(time.Duration(i) * time.Second),
			FinishedAt: base.Add(time.Duration(i)*time.Second + time.Second),
			Reason:     "watcher",
		})
		require.NoError(t, err)
	}

	records, err := s.RecentResyncs(ctx, maxResyncHistory*2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(records), maxResyncHistory)
}

func TestStateStore_ResyncRecord_RoundTrip(t *testing.T) {
	s := newTestStateStore(t)
	ctx := context.Background()

	rec := &ResyncRecord{
		StartedAt:    time.Now().Add(-time.Minute),
		FinishedAt:   time.Now(),
		Reason:       "manual",
		Full:         true,
		ItemsIndexed: 7,
		ItemsSkipped: 2,
		ItemsRemoved: 1,
		Err:          "",
	}
	id, err := s.RecordResync(ctx, rec)
	require.NoError(t, err)
	assert.Positive(t, id)

	records, err := s.RecentResyncs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.True(t, got.Full)
	assert.Equal(t, 7, got.ItemsIndexed)
	assert.Equal(t, 2, got.ItemsSkipped)
	assert.Equal(t, 1, got.ItemsRemoved)
	assert.Empty(t, got.Err)
}

func TestStateStore_StateKV(t *testing.T) {
	s := newTestStateStore(t)
	ctx := context.Background()

	// Unset key returns empty
	val, err := s.GetState(ctx, StateKeyEmbedderModel)
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, s.SetState(ctx, StateKeyEmbedderModel, "nomic-embed-text"))
	require.NoError(t, s.SetState(ctx, StateKeyEmbedderDimensions, "768"))

	val, err = s.GetState(ctx, StateKeyEmbedderModel)
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", val)

	// Overwrite
	require.NoError(t, s.SetState(ctx, StateKeyEmbedderModel, "all-minilm"))
	val, err = s.GetState(ctx, StateKeyEmbedderModel)
	require.NoError(t, err)
	assert.Equal(t, "all-minilm", val)
}

func TestStateStore_OnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s, err := NewStateStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveDocument(ctx, &Document{
		Path: "kept.md", ContentHash: "h", Kind: KindMarkdown, ModTime: time.Now(), IndexedAt: time.Now(),
	}))
	require.NoError(t, s.Close())

	reopened, err := NewStateStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetDocument(ctx, "kept.md")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "h", got.ContentHash)
}
