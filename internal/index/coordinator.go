package index

import (
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/secondbrain-labs/brainmcp/internal/embed"
	"github.com/secondbrain-labs/brainmcp/internal/errors"
	"github.com/secondbrain-labs/brainmcp/internal/store"
)

// On-disk layout inside the data dir.
const (
	vectorFileName = "index.hnsw"
	chunksFileName = "chunks.gob"
	lockFileName   = "brainmcp.lock"
)

// Item is one unit of a write: a chunk plus its embedding.
// Embedding happens before Upsert so the write lock covers only the
// actual mutation.
type Item struct {
	Chunk  *store.Chunk
	Vector []float32
}

// Result is one search hit.
type Result struct {
	Chunk        *store.Chunk
	Score        float64 // Fused, normalized to 0-1 within the result set
	VectorScore  float64
	KeywordScore float64
	MatchedTerms []string
}

// Stats summarizes the index for diagnostics.
type Stats struct {
	Epoch       uint64
	Chunks      int
	Vectors     int
	KeywordDocs int
}

// Config wires a Coordinator.
type Config struct {
	Vector   store.VectorStore
	Keyword  store.KeywordIndex
	Embedder embed.Embedder

	// Weights for hybrid fusion. Zero value uses DefaultWeights.
	Weights     Weights
	RRFConstant int

	// DataDir enables persistence and cross-process locking.
	// Empty keeps the index purely in memory (tests).
	DataDir string
}

// Coordinator is the single owner of the index. Reads run concurrently;
// writes are exclusive and bump the epoch exactly once per successful
// call, so a search observes pre-write or fully-post-write state.
type Coordinator struct {
	cfg    Config
	mu     sync.RWMutex
	chunks map[string]*store.Chunk
	epoch  atomic.Uint64
	flk    *flock.Flock
}

// chunksSidecar is the persisted chunk contents plus the epoch, saved
// alongside the vector index so a restart restores both together.
type chunksSidecar struct {
	Epoch  uint64
	Chunks map[string]*store.Chunk
}

// New creates a Coordinator. When DataDir is set, it takes an exclusive
// file lock so two processes never write the same corpus, and restores
// any persisted index state.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Vector == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if cfg.Keyword == nil {
		return nil, fmt.Errorf("keyword index is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}

	c := &Coordinator{
		cfg:    cfg,
		chunks: make(map[string]*store.Chunk),
	}

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}

		flk := flock.New(filepath.Join(cfg.DataDir, lockFileName))
		locked, err := flk.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire data dir lock: %w", err)
		}
		if !locked {
			return nil, fmt.Errorf("data dir %s is locked by another process", cfg.DataDir)
		}
		c.flk = flk

		if err := c.load(); err != nil {
			_ = flk.Unlock()
			return nil, err
		}
	}

	return c, nil
}

// Search runs the hybrid query and returns up to k fused results.
// Returns an index-unavailable error until the first successful build.
func (c *Coordinator) Search(ctx context.Context, query string, k int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if k <= 0 {
		k = 10
	}

	if c.epoch.Load() == 0 {
		return nil, errors.IndexUnavailable()
	}

	// Embed before taking the read lock so a slow embedder never
	// extends a writer's wait.
	queryVec, err := c.cfg.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	fetch := k * 2

	var (
		vecResults []*store.VectorResult
		kwResults  []*store.KeywordResult
		vecErr     error
		kwErr      error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vecResults, vecErr = c.cfg.Vector.Search(gctx, queryVec, fetch)
		return nil
	})
	g.Go(func() error {
		kwResults, kwErr = c.cfg.Keyword.Search(gctx, query, fetch)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// One source failing degrades to the other; both failing is fatal.
	if vecErr != nil && kwErr != nil {
		return nil, fmt.Errorf("hybrid search failed: vector: %v; keyword: %v", vecErr, kwErr)
	}
	if vecErr != nil {
		slog.Warn("vector_search_failed", slog.String("error", vecErr.Error()))
	}
	if kwErr != nil {
		slog.Warn("keyword_search_failed", slog.String("error", kwErr.Error()))
	}

	hits := fuse(vecResults, kwResults, c.cfg.Weights, c.cfg.RRFConstant)

	results := make([]Result, 0, k)
	for _, h := range hits {
		chunk, ok := c.chunks[h.chunkID]
		if !ok {
			continue // orphaned by a concurrent removal's lazy deletion
		}
		results = append(results, Result{
			Chunk:        chunk,
			Score:        h.score,
			VectorScore:  h.vecScore,
			KeywordScore: h.keywordScore,
			MatchedTerms: h.matchedTerms,
		})
		if len(results) == k {
			break
		}
	}

	return results, nil
}

// Upsert writes items into all three structures. Idempotent per chunk
// ID: re-writing an ID replaces it. The epoch is bumped exactly once
// per successful call. Returns the number of items written.
func (c *Coordinator) Upsert(ctx context.Context, items []Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	// Full validation before any mutation.
	dims := c.cfg.Embedder.Dimensions()
	for i, item := range items {
		if item.Chunk == nil || item.Chunk.ID == "" {
			return 0, fmt.Errorf("item %d: missing chunk ID", i)
		}
		if len(item.Vector) != dims {
			return 0, store.ErrDimensionMismatch{Expected: dims, Got: len(item.Vector)}
		}
	}

	ids := make([]string, len(items))
	vectors := make([][]float32, len(items))
	chunks := make([]*store.Chunk, len(items))
	for i, item := range items {
		ids[i] = item.Chunk.ID
		vectors[i] = item.Vector
		chunks[i] = item.Chunk
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Keyword first: its batch either commits or leaves the index
	// untouched, and a replaced document can be restored exactly from
	// the previous chunk. Replacing a vector orphans the old one, so
	// the vector leg must be the last thing that can fail.
	if err := c.cfg.Keyword.Index(ctx, chunks); err != nil {
		return 0, fmt.Errorf("index keywords: %w", err)
	}
	if err := c.cfg.Vector.Add(ctx, ids, vectors); err != nil {
		c.restoreKeyword(ctx, ids)
		return 0, fmt.Errorf("add vectors: %w", err)
	}

	for _, chunk := range chunks {
		c.chunks[chunk.ID] = chunk
	}

	c.epoch.Add(1)
	return len(items), nil
}

// Remove deletes chunks by ID and bumps the epoch once. Unknown IDs
// are ignored. Returns the number of chunks actually removed.
func (c *Coordinator) Remove(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, id := range ids {
		if _, ok := c.chunks[id]; ok {
			removed++
		}
	}

	// Keyword first for the same reason as Upsert: its batch is
	// all-or-nothing and can be undone from the chunks still in the
	// map, while vector deletion discards the mapping for good.
	if err := c.cfg.Keyword.Delete(ctx, ids); err != nil {
		return 0, fmt.Errorf("delete keywords: %w", err)
	}
	if err := c.cfg.Vector.Delete(ctx, ids); err != nil {
		c.restoreKeyword(ctx, ids)
		return 0, fmt.Errorf("delete vectors: %w", err)
	}
	for _, id := range ids {
		delete(c.chunks, id)
	}

	c.epoch.Add(1)
	return removed, nil
}

// restoreKeyword puts the keyword index back in sync with c.chunks for
// the given IDs after a failed write: IDs still in the map are
// re-indexed from their previous content, the rest are deleted. Caller
// holds the write lock and has not yet touched c.chunks.
func (c *Coordinator) restoreKeyword(ctx context.Context, ids []string) {
	var reindex []*store.Chunk
	var drop []string
	for _, id := range ids {
		if old, ok := c.chunks[id]; ok {
			reindex = append(reindex, old)
		} else {
			drop = append(drop, id)
		}
	}
	if len(drop) > 0 {
		if err := c.cfg.Keyword.Delete(ctx, drop); err != nil {
			slog.Error("keyword_rollback_failed", slog.String("error", err.Error()))
		}
	}
	if len(reindex) > 0 {
		if err := c.cfg.Keyword.Index(ctx, reindex); err != nil {
			slog.Error("keyword_rollback_failed", slog.String("error", err.Error()))
		}
	}
}

// Reset clears all content ahead of a full rebuild and bumps the epoch.
func (c *Coordinator) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.cfg.Vector.Reset(); err != nil {
		return fmt.Errorf("reset vector store: %w", err)
	}
	if err := c.cfg.Keyword.Reset(); err != nil {
		return fmt.Errorf("reset keyword index: %w", err)
	}
	c.chunks = make(map[string]*store.Chunk)

	c.epoch.Add(1)
	return nil
}

// Get returns a chunk by ID.
func (c *Coordinator) Get(id string) (*store.Chunk, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chunk, ok := c.chunks[id]
	return chunk, ok
}

// IDsForPath returns the chunk IDs currently indexed for a document,
// sorted by sequence.
func (c *Coordinator) IDsForPath(path string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ids []string
	for id, chunk := range c.chunks {
		if chunk.Path == path {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// CurrentEpoch returns the write epoch. Zero means the index has never
// been built. Monotonically non-decreasing.
func (c *Coordinator) CurrentEpoch() uint64 {
	return c.epoch.Load()
}

// Count returns the number of indexed chunks.
func (c *Coordinator) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chunks)
}

// Stats returns diagnostics.
func (c *Coordinator) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		Epoch:   c.epoch.Load(),
		Chunks:  len(c.chunks),
		Vectors: c.cfg.Vector.Count(),
	}
	if kw := c.cfg.Keyword.Stats(); kw != nil {
		s.KeywordDocs = kw.DocumentCount
	}
	return s
}

// Save persists the vector index plus the chunk/epoch sidecar. The
// keyword index is disk-backed and persists on write. No-op without a
// data dir.
func (c *Coordinator) Save() error {
	if c.cfg.DataDir == "" {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.cfg.Vector.Save(filepath.Join(c.cfg.DataDir, vectorFileName)); err != nil {
		return fmt.Errorf("save vector index: %w", err)
	}
	if err := c.saveChunks(); err != nil {
		return fmt.Errorf("save chunk sidecar: %w", err)
	}
	return nil
}

// saveChunks writes the sidecar with temp file + rename.
// Caller holds at least a read lock.
func (c *Coordinator) saveChunks() error {
	path := filepath.Join(c.cfg.DataDir, chunksFileName)
	tmpPath := path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create sidecar: %w", err)
	}

	sidecar := chunksSidecar{
		Epoch:  c.epoch.Load(),
		Chunks: c.chunks,
	}
	if err := gob.NewEncoder(file).Encode(sidecar); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode sidecar: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close sidecar: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// load restores persisted state. Missing files mean a fresh corpus and
// leave the epoch at zero.
func (c *Coordinator) load() error {
	sidecarPath := filepath.Join(c.cfg.DataDir, chunksFileName)
	file, err := os.Open(sidecarPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open chunk sidecar: %w", err)
	}

	var sidecar chunksSidecar
	decodeErr := gob.NewDecoder(file).Decode(&sidecar)
	_ = file.Close()
	if decodeErr != nil {
		return fmt.Errorf("decode chunk sidecar: %w", decodeErr)
	}

	vectorPath := filepath.Join(c.cfg.DataDir, vectorFileName)
	if err := c.cfg.Vector.Load(vectorPath); err != nil {
		return fmt.Errorf("load vector index: %w", err)
	}

	c.chunks = sidecar.Chunks
	if c.chunks == nil {
		c.chunks = make(map[string]*store.Chunk)
	}
	c.epoch.Store(sidecar.Epoch)

	slog.Info("index_restored",
		slog.Uint64("epoch", sidecar.Epoch),
		slog.Int("chunks", len(c.chunks)))
	return nil
}

// Close releases the cross-process lock. The underlying stores are
// closed by their owners.
func (c *Coordinator) Close() error {
	if c.flk != nil {
		return c.flk.Unlock()
	}
	return nil
}
