package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWStore implements VectorStore on the pure Go coder/hnsw graph.
// Chunk IDs are strings; the graph wants integer keys, so the store
// keeps a bidirectional mapping and hands out monotonically growing
// keys that are never reused.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	keyByID map[string]uint64
	idByKey map[uint64]string
	nextKey uint64

	closed bool
}

var _ VectorStore = (*HNSWStore)(nil)

// hnswMetadata is the gob sidecar holding the ID mapping; the graph
// itself is serialized by coder/hnsw.
type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorStoreConfig
}

func NewHNSWStore(cfg VectorStoreConfig) (*HNSWStore, error) {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	return &HNSWStore{
		config:  cfg,
		graph:   newGraph(cfg),
		keyByID: make(map[string]uint64),
		idByKey: make(map[uint64]string),
	}, nil
}

func newGraph(cfg VectorStoreConfig) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	if cfg.Metric == "l2" {
		g.Distance = hnsw.EuclideanDistance
	} else {
		g.Distance = hnsw.CosineDistance
	}
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25 // level factor, 1/ln(M)
	return g
}

func (s *HNSWStore) checkOpen() error {
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// Add inserts vectors under their chunk IDs. A known ID is replaced by
// orphaning the old graph node and mapping the ID to a fresh key;
// coder/hnsw has a bug deleting the last node, so nodes are never
// removed from the graph. All validation happens before the first
// mutation, so a returned error means the store is unchanged.
func (s *HNSWStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if oldKey, known := s.keyByID[id]; known {
			delete(s.idByKey, oldKey)
			delete(s.keyByID, id)
		}

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}

		key := s.nextKey
		s.nextKey++
		s.graph.Add(hnsw.MakeNode(key, vec))
		s.keyByID[id] = key
		s.idByKey[key] = id
	}
	return nil
}

// Search returns up to k nearest neighbors. Orphans from replaced or
// deleted IDs are filtered out of the result.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(q)
	}

	var results []*VectorResult
	for _, node := range s.graph.Search(q, k) {
		id, live := s.idByKey[node.Key]
		if !live {
			continue
		}
		dist := s.graph.Distance(q, node.Value)
		results = append(results, &VectorResult{
			ID:       id,
			Distance: dist,
			Score:    distanceToScore(dist, s.config.Metric),
		})
	}
	if results == nil {
		results = []*VectorResult{}
	}
	return results, nil
}

// Delete drops IDs from the mapping. The graph nodes stay behind as
// orphans until the next Reset or rebuild.
func (s *HNSWStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	for _, id := range ids {
		if key, known := s.keyByID[id]; known {
			delete(s.idByKey, key)
			delete(s.keyByID, id)
		}
	}
	return nil
}

func (s *HNSWStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	ids := make([]string, 0, len(s.keyByID))
	for id := range s.keyByID {
		ids = append(ids, id)
	}
	return ids
}

func (s *HNSWStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	_, known := s.keyByID[id]
	return known
}

// Count is the number of live vectors, not counting orphans.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.keyByID)
}

// Reset drops every vector and accumulated orphan, keeping the
// configuration.
func (s *HNSWStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.graph = newGraph(s.config)
	s.keyByID = make(map[string]uint64)
	s.idByKey = make(map[uint64]string)
	s.nextKey = 0
	return nil
}

// Save writes the graph to path and the ID mapping to path+".meta",
// each via temp file and rename.
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := s.graph.Export(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename index file: %w", err)
	}

	meta := hnswMetadata{IDMap: s.keyByID, NextKey: s.nextKey, Config: s.config}
	if err := writeGobAtomic(path+".meta", meta); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

func writeGobAtomic(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load restores the graph and the ID mapping saved by Save.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	meta, err := readMetadata(path + ".meta")
	if err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}
	s.keyByID = meta.IDMap
	s.nextKey = meta.NextKey
	s.config = meta.Config
	s.idByKey = make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		s.idByKey[key] = id
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer func() { _ = f.Close() }()

	// coder/hnsw Import wants an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	return nil
}

func readMetadata(path string) (hnswMetadata, error) {
	var meta hnswMetadata
	f, err := os.Open(path)
	if err != nil {
		return meta, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("hnsw_metadata_close_failed", slog.String("error", err.Error()))
		}
	}()
	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return meta, fmt.Errorf("decode: %w", err)
	}
	return meta, nil
}

func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// ReadStoredDimensions peeks at a saved store's dimension without
// loading the graph. Returns 0 when no metadata exists yet. Startup
// uses this to notice an embedder change that forces a full rebuild.
func ReadStoredDimensions(vectorPath string) (int, error) {
	meta, err := readMetadata(vectorPath + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read hnsw metadata: %w", err)
	}
	return meta.Config.Dimensions, nil
}

func normalizeVectorInPlace(v []float32) {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	if sq == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sq))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore maps distance to a similarity in [0,1]. Cosine
// distance spans 0..2, so score is 1-d/2; L2 uses 1/(1+d).
func distanceToScore(distance float32, metric string) float32 {
	if metric == "l2" {
		return 1.0 / (1.0 + distance)
	}
	return 1.0 - distance/2.0
}
