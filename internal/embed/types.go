// Package embed turns note chunks and queries into vectors. The real
// provider is Ollama over HTTP; a deterministic hash embedder serves
// as the offline fallback, and both can sit behind an LRU cache.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	MinBatchSize     = 1
	MaxBatchSize     = 256
	DefaultBatchSize = 16

	DefaultTimeout    = 60 * time.Second
	DefaultMaxRetries = 3

	// DefaultDimensions matches nomic-embed-text output.
	DefaultDimensions = 768
	// StaticDimensions is what the hash embedder produces.
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text. Implementations must
// return identical vectors for identical input within one process, or
// the embedding cache would poison search results.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions is the fixed length of every returned vector.
	Dimensions() int
	ModelName() string
	// Available reports whether the backend can serve right now.
	Available(ctx context.Context) bool
	Close() error
}

// normalizeVector scales v to unit length. Cosine similarity in the
// vector store assumes this. A zero vector passes through unchanged.
func normalizeVector(v []float32) []float32 {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	mag := math.Sqrt(sq)
	if mag == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / mag)
	}
	return out
}
