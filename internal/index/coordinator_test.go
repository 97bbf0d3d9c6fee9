package index

import (
	"context"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secondbrain-labs/brainmcp/internal/errors"
	"github.com/secondbrain-labs/brainmcp/internal/store"
)

const testDims = 8

// hashEmbedder is a deterministic test embedder: similar strings do not
// map to similar vectors, but identical strings always match.
type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, testDims)
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%1000)/500.0 - 1.0
	}
	return vec, nil
}

func (e hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (hashEmbedder) Dimensions() int                { return testDims }
func (hashEmbedder) ModelName() string              { return "test-hash" }
func (hashEmbedder) Available(context.Context) bool { return true }
func (hashEmbedder) Close() error                   { return nil }

func newTestCoordinator(t *testing.T, dataDir string) *Coordinator {
	t.Helper()

	vector, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(testDims))
	require.NoError(t, err)

	keyword, err := store.NewBleveKeywordIndex(filepath.Join(t.TempDir(), "keyword.bleve"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = keyword.Close() })

	c, err := New(Config{
		Vector:   vector,
		Keyword:  keyword,
		Embedder: hashEmbedder{},
		DataDir:  dataDir,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testItem(t *testing.T, path string, seq int, content string) Item {
	t.Helper()
	vec, err := hashEmbedder{}.Embed(context.Background(), content)
	require.NoError(t, err)
	id := fmt.Sprintf("%s::chunk_%04d", path, seq)
	return Item{
		Chunk: &store.Chunk{
			ID:      id,
			Path:    path,
			Title:   path,
			Content: content,
			Kind:    store.KindText,
			Seq:     seq,
		},
		Vector: vec,
	}
}

func TestCoordinator_SearchUnavailableBeforeFirstBuild(t *testing.T) {
	c := newTestCoordinator(t, "")

	_, err := c.Search(context.Background(), "anything", 5)
	require.Error(t, err)
	assert.True(t, errors.IsIndexUnavailable(err))
	assert.Equal(t, uint64(0), c.CurrentEpoch())
}

func TestCoordinator_UpsertThenSearch(t *testing.T) {
	c := newTestCoordinator(t, "")
	ctx := context.Background()

	n, err := c.Upsert(ctx, []Item{
		testItem(t, "notes/go.md", 0, "goroutines and channels in Go"),
		testItem(t, "notes/cook.md", 0, "my favorite pasta recipe"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, uint64(1), c.CurrentEpoch())
	assert.Equal(t, 2, c.Count())

	results, err := c.Search(ctx, "goroutines and channels in Go", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "notes/go.md::chunk_0000", results[0].Chunk.ID)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestCoordinator_UpsertReplacesNotDuplicates(t *testing.T) {
	c := newTestCoordinator(t, "")
	ctx := context.Background()

	_, err := c.Upsert(ctx, []Item{testItem(t, "a.md", 0, "version one")})
	require.NoError(t, err)
	_, err = c.Upsert(ctx, []Item{testItem(t, "a.md", 0, "version two")})
	require.NoError(t, err)

	assert.Equal(t, 1, c.Count())
	chunk, ok := c.Get("a.md::chunk_0000")
	require.True(t, ok)
	assert.Equal(t, "version two", chunk.Content)
}

func TestCoordinator_EpochBumpsOncePerCall(t *testing.T) {
	c := newTestCoordinator(t, "")
	ctx := context.Background()

	_, err := c.Upsert(ctx, []Item{
		testItem(t, "a.md", 0, "alpha"),
		testItem(t, "a.md", 1, "beta"),
		testItem(t, "b.md", 0, "gamma"),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c.CurrentEpoch(), "one bump per call, not per item")

	_, err = c.Remove(ctx, []string{"b.md::chunk_0000"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), c.CurrentEpoch())

	require.NoError(t, c.Reset(ctx))
	assert.Equal(t, uint64(3), c.CurrentEpoch())
	assert.Equal(t, 0, c.Count())
}

func TestCoordinator_UpsertValidationLeavesStateUntouched(t *testing.T) {
	c := newTestCoordinator(t, "")
	ctx := context.Background()

	_, err := c.Upsert(ctx, []Item{testItem(t, "a.md", 0, "good")})
	require.NoError(t, err)

	bad := testItem(t, "b.md", 0, "bad dims")
	bad.Vector = []float32{1, 2} // wrong dimensions

	_, err = c.Upsert(ctx, []Item{testItem(t, "c.md", 0, "fine"), bad})
	require.Error(t, err)

	assert.Equal(t, uint64(1), c.CurrentEpoch(), "failed write must not bump the epoch")
	assert.Equal(t, 1, c.Count(), "failed write must not apply any item")
	_, ok := c.Get("c.md::chunk_0000")
	assert.False(t, ok)
}

// flakyKeywordIndex fails Index on a chosen call, delegating otherwise.
type flakyKeywordIndex struct {
	store.KeywordIndex
	failOnCall int
	calls      int
}

func (f *flakyKeywordIndex) Index(ctx context.Context, chunks []*store.Chunk) error {
	f.calls++
	if f.calls == f.failOnCall {
		return fmt.Errorf("simulated keyword failure")
	}
	return f.KeywordIndex.Index(ctx, chunks)
}

// flakyVectorStore fails Add on a chosen call or every Delete.
type flakyVectorStore struct {
	store.VectorStore
	failAddOnCall int
	addCalls      int
	failDeletes   bool
}

func (f *flakyVectorStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	f.addCalls++
	if f.addCalls == f.failAddOnCall {
		return fmt.Errorf("simulated vector failure")
	}
	return f.VectorStore.Add(ctx, ids, vectors)
}

func (f *flakyVectorStore) Delete(ctx context.Context, ids []string) error {
	if f.failDeletes {
		return fmt.Errorf("simulated vector delete failure")
	}
	return f.VectorStore.Delete(ctx, ids)
}

func newFlakyCoordinator(t *testing.T, vector store.VectorStore, keyword store.KeywordIndex) *Coordinator {
	t.Helper()
	c, err := New(Config{Vector: vector, Keyword: keyword, Embedder: hashEmbedder{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCoordinator_FailedReplaceKeepsPreviousVector(t *testing.T) {
	vector, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(testDims))
	require.NoError(t, err)
	keyword, err := store.NewBleveKeywordIndex(filepath.Join(t.TempDir(), "keyword.bleve"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = keyword.Close() })

	flaky := &flakyKeywordIndex{KeywordIndex: keyword, failOnCall: 2}
	c := newFlakyCoordinator(t, vector, flaky)
	ctx := context.Background()

	_, err = c.Upsert(ctx, []Item{testItem(t, "a.md", 0, "version one")})
	require.NoError(t, err)

	_, err = c.Upsert(ctx, []Item{testItem(t, "a.md", 0, "version two")})
	require.Error(t, err)

	// The failed replace must leave the previous write fully servable.
	assert.True(t, vector.Contains("a.md::chunk_0000"), "previous vector must survive a failed replace")
	assert.Equal(t, uint64(1), c.CurrentEpoch())
	chunk, ok := c.Get("a.md::chunk_0000")
	require.True(t, ok)
	assert.Equal(t, "version one", chunk.Content)

	results, err := c.Search(ctx, "version one", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a.md::chunk_0000", results[0].Chunk.ID)
}

func TestCoordinator_VectorFailureRestoresKeywordIndex(t *testing.T) {
	vector, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(testDims))
	require.NoError(t, err)
	keyword, err := store.NewBleveKeywordIndex(filepath.Join(t.TempDir(), "keyword.bleve"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = keyword.Close() })

	flaky := &flakyVectorStore{VectorStore: vector, failAddOnCall: 2}
	c := newFlakyCoordinator(t, flaky, keyword)
	ctx := context.Background()

	_, err = c.Upsert(ctx, []Item{testItem(t, "a.md", 0, "original words")})
	require.NoError(t, err)

	_, err = c.Upsert(ctx, []Item{
		testItem(t, "a.md", 0, "replacement words"),
		testItem(t, "b.md", 0, "brand new file"),
	})
	require.Error(t, err)

	assert.Equal(t, uint64(1), c.CurrentEpoch())
	assert.Equal(t, 1, c.Count())
	_, ok := c.Get("b.md::chunk_0000")
	assert.False(t, ok)

	// The keyword index was written before the vector failure and must
	// have been rolled back to the previous content.
	hits, err := keyword.Search(ctx, "replacement", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
	hits, err = keyword.Search(ctx, "original", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "a.md::chunk_0000", hits[0].ID)
	hits, err = keyword.Search(ctx, "brand", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestCoordinator_FailedRemoveLeavesIndexServable(t *testing.T) {
	vector, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(testDims))
	require.NoError(t, err)
	keyword, err := store.NewBleveKeywordIndex(filepath.Join(t.TempDir(), "keyword.bleve"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = keyword.Close() })

	flaky := &flakyVectorStore{VectorStore: vector, failDeletes: true}
	c := newFlakyCoordinator(t, flaky, keyword)
	ctx := context.Background()

	_, err = c.Upsert(ctx, []Item{testItem(t, "a.md", 0, "still here")})
	require.NoError(t, err)

	_, err = c.Remove(ctx, []string{"a.md::chunk_0000"})
	require.Error(t, err)

	assert.Equal(t, uint64(1), c.CurrentEpoch(), "failed remove must not bump the epoch")
	assert.Equal(t, 1, c.Count())
	assert.True(t, vector.Contains("a.md::chunk_0000"))

	results, err := c.Search(ctx, "still here", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a.md::chunk_0000", results[0].Chunk.ID)
}

func TestCoordinator_Remove(t *testing.T) {
	c := newTestCoordinator(t, "")
	ctx := context.Background()

	_, err := c.Upsert(ctx, []Item{
		testItem(t, "a.md", 0, "keep"),
		testItem(t, "gone.md", 0, "remove me"),
		testItem(t, "gone.md", 1, "remove me too"),
	})
	require.NoError(t, err)

	removed, err := c.Remove(ctx, []string{"gone.md::chunk_0000", "gone.md::chunk_0001", "never-existed"})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Count())

	results, err := c.Search(ctx, "remove me", 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "gone.md", r.Chunk.Path)
	}
}

func TestCoordinator_IDsForPath(t *testing.T) {
	c := newTestCoordinator(t, "")
	ctx := context.Background()

	_, err := c.Upsert(ctx, []Item{
		testItem(t, "a.md", 1, "two"),
		testItem(t, "a.md", 0, "one"),
		testItem(t, "b.md", 0, "other"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.md::chunk_0000", "a.md::chunk_0001"}, c.IDsForPath("a.md"))
	assert.Empty(t, c.IDsForPath("missing.md"))
}

func TestCoordinator_SearchUpsertCoherence(t *testing.T) {
	c := newTestCoordinator(t, "")
	ctx := context.Background()

	_, err := c.Upsert(ctx, []Item{testItem(t, "seed.md", 0, "seed content")})
	require.NoError(t, err)

	// Concurrent searches must never observe a partially applied write:
	// each search result set is internally consistent and never errors.
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				results, err := c.Search(ctx, "seed content", 5)
				assert.NoError(t, err)
				for _, r := range results {
					assert.NotNil(t, r.Chunk)
					assert.NotEmpty(t, r.Chunk.ID)
				}
			}
		}()
	}

	for i := 0; i < 20; i++ {
		_, err := c.Upsert(ctx, []Item{
			testItem(t, "churn.md", 0, fmt.Sprintf("revision %d", i)),
		})
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, uint64(21), c.CurrentEpoch())
}

func TestCoordinator_SaveAndRestore(t *testing.T) {
	dataDir := t.TempDir()
	ctx := context.Background()

	vector, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(testDims))
	require.NoError(t, err)
	keyword, err := store.NewBleveKeywordIndex(filepath.Join(dataDir, "keyword.bleve"))
	require.NoError(t, err)

	c1, err := New(Config{Vector: vector, Keyword: keyword, Embedder: hashEmbedder{}, DataDir: dataDir})
	require.NoError(t, err)

	_, err = c1.Upsert(ctx, []Item{testItem(t, "a.md", 0, "persisted content")})
	require.NoError(t, err)
	epoch := c1.CurrentEpoch()

	require.NoError(t, c1.Save())
	require.NoError(t, c1.Close())
	require.NoError(t, keyword.Close())

	// Fresh stores, same data dir: epoch and chunks come back.
	vector2, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(testDims))
	require.NoError(t, err)
	keyword2, err := store.NewBleveKeywordIndex(filepath.Join(dataDir, "keyword.bleve"))
	require.NoError(t, err)
	defer func() { _ = keyword2.Close() }()

	c2, err := New(Config{Vector: vector2, Keyword: keyword2, Embedder: hashEmbedder{}, DataDir: dataDir})
	require.NoError(t, err)
	defer func() { _ = c2.Close() }()

	assert.Equal(t, epoch, c2.CurrentEpoch())
	assert.Equal(t, 1, c2.Count())

	results, err := c2.Search(ctx, "persisted content", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a.md::chunk_0000", results[0].Chunk.ID)
}

func TestCoordinator_DataDirLockIsExclusive(t *testing.T) {
	dataDir := t.TempDir()

	c1 := newTestCoordinator(t, dataDir)
	_ = c1

	vector, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(testDims))
	require.NoError(t, err)
	keyword, err := store.NewBleveKeywordIndex(filepath.Join(t.TempDir(), "keyword.bleve"))
	require.NoError(t, err)
	defer func() { _ = keyword.Close() }()

	_, err = New(Config{Vector: vector, Keyword: keyword, Embedder: hashEmbedder{}, DataDir: dataDir})
	assert.Error(t, err, "second coordinator on the same data dir must fail")
}

func TestCoordinator_Stats(t *testing.T) {
	c := newTestCoordinator(t, "")
	ctx := context.Background()

	_, err := c.Upsert(ctx, []Item{
		testItem(t, "a.md", 0, "one"),
		testItem(t, "b.md", 0, "two"),
	})
	require.NoError(t, err)

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Epoch)
	assert.Equal(t, 2, s.Chunks)
	assert.Equal(t, 2, s.Vectors)
	assert.Equal(t, 2, s.KeywordDocs)
}
