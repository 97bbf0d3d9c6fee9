// Package store provides the persistence layer for indexed documents:
// HNSW vector storage, Bleve keyword search, and SQLite sync state.
package store

import (
	"context"
	"fmt"
	"time"
)

// DocKind classifies a document by how it was parsed.
type DocKind string

const (
	KindText     DocKind = "text"
	KindMarkdown DocKind = "markdown"
	KindHTML     DocKind = "html"
	KindData     DocKind = "data"
	KindCode     DocKind = "code"
	KindNotebook DocKind = "notebook"
)

// State keys for the sync state store.
const (
	// StateKeyEmbedderModel stores the embedding model name used for the index.
	StateKeyEmbedderModel = "embedder_model"
	// StateKeyEmbedderDimensions stores the embedding dimension used for the index.
	StateKeyEmbedderDimensions = "embedder_dimensions"
)

// Chunk is a retrievable unit of a document. Chunk IDs are stable for a
// given path and ordinal (path::chunk_NNNN), so re-indexing a changed
// file replaces its chunks instead of duplicating them.
type Chunk struct {
	ID        string
	Path      string // Relative to the docs root
	Title     string // Document title or section heading
	Content   string
	Kind      DocKind
	Seq       int // Ordinal of this chunk within its document
	StartLine int // 1-indexed, 0 when unknown
	EndLine   int // Inclusive
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Document is a tracked file in the sync state store. The content hash
// lets a resync skip files that have not changed.
type Document struct {
	Path        string // Relative to the docs root
	Size        int64
	ModTime     time.Time
	ContentHash string // SHA-256 of content
	Kind        DocKind
	ChunkCount  int
	IndexedAt   time.Time
}

// ResyncRecord is one row of resync history.
type ResyncRecord struct {
	ID           int64
	StartedAt    time.Time
	FinishedAt   time.Time
	Reason       string // "watcher", "manual", "startup", "recovery"
	Full         bool   // Full rebuild vs incremental
	ItemsIndexed int
	ItemsSkipped int
	ItemsRemoved int
	Err          string // Empty on success
}

// VectorResult is a single vector search result.
type VectorResult struct {
	ID       string
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// KeywordResult is a single keyword search result.
type KeywordResult struct {
	ID           string
	Score        float64
	MatchedTerms []string
}

// KeywordStats provides statistics about the keyword index.
type KeywordStats struct {
	DocumentCount int
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	// Dimensions is the vector dimension (768 for nomic-embed-text, 256 for static).
	Dimensions int

	// Metric is the distance metric: "cos" (cosine) or "l2" (euclidean).
	Metric string

	// M is HNSW max connections per layer (default: 16).
	M int

	// EfConstruction is HNSW build-time search width (default: 200).
	EfConstruction int

	// EfSearch is HNSW query-time search width (default: 100).
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults for the vector store.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Metric:         "cos",
		M:              16,
		EfConstruction: 200,
		EfSearch:       100,
	}
}

// VectorStore provides approximate nearest-neighbor search.
type VectorStore interface {
	// Add inserts vectors with their IDs. If an ID exists, it is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds k nearest neighbors to the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// AllIDs returns all vector IDs in the store.
	AllIDs() []string

	// Contains checks if an ID exists.
	Contains(id string) bool

	// Count returns the number of vectors.
	Count() int

	// Reset drops all vectors, keeping the configuration.
	Reset() error

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// KeywordIndex provides full-text keyword search over chunks.
// Disk-backed implementations persist on every write, so there is no
// explicit Save.
type KeywordIndex interface {
	// Index adds chunks to the index, replacing existing IDs.
	Index(ctx context.Context, chunks []*Chunk) error

	// Search returns chunks matching the query, best first.
	Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error)

	// Delete removes chunks from the index.
	Delete(ctx context.Context, ids []string) error

	// Stats returns index statistics.
	Stats() *KeywordStats

	// Reset drops all indexed content.
	Reset() error

	Close() error
}

// ErrDimensionMismatch indicates a vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'brainmcp ingest --rebuild')", e.Expected, e.Got)
}
