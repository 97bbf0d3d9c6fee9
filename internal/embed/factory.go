package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ProviderType selects an embedding provider.
type ProviderType string

const (
	// ProviderOllama uses the Ollama HTTP API for embeddings.
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses deterministic hash-based embeddings. No
	// external dependencies, reduced semantic quality.
	ProviderStatic ProviderType = "static"

	// ProviderAuto tries Ollama first and falls back to static.
	ProviderAuto ProviderType = ""
)

// Options configures embedder construction.
type Options struct {
	// Model is the embedding model name (Ollama only).
	Model string

	// Host is the Ollama API endpoint. Empty uses the default.
	Host string

	// Dimensions overrides auto-detection (0 = auto-detect).
	Dimensions int

	// BatchSize for batch embedding requests.
	BatchSize int

	// Timeout is the per-batch request timeout.
	Timeout time.Duration

	// CacheSize is the query-embedding LRU size (0 = default).
	CacheSize int
}

// NewEmbedder creates an embedder for the given provider, wrapped in an
// LRU cache. With ProviderAuto, Ollama is preferred when reachable and
// the static embedder is the fallback, so indexing works offline.
func NewEmbedder(ctx context.Context, provider ProviderType, opts Options) (Embedder, error) {
	var embedder Embedder
	var err error

	switch ProviderType(strings.ToLower(string(provider))) {
	case ProviderOllama:
		embedder, err = newOllama(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("ollama unavailable: %w (start it with 'ollama serve', or set embeddings.provider: static)", err)
		}

	case ProviderStatic:
		embedder = NewStaticEmbedder()

	case ProviderAuto:
		embedder, err = newOllama(ctx, opts)
		if err != nil {
			slog.Info("ollama_unavailable_using_static",
				slog.String("error", err.Error()))
			embedder = NewStaticEmbedder()
		}

	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", provider)
	}

	return NewCachedEmbedder(embedder, opts.CacheSize), nil
}

func newOllama(ctx context.Context, opts Options) (*OllamaEmbedder, error) {
	cfg := DefaultOllamaConfig()
	if opts.Model != "" {
		cfg.Model = opts.Model
	}
	if opts.Host != "" {
		cfg.Host = opts.Host
	}
	if opts.Dimensions > 0 {
		cfg.Dimensions = opts.Dimensions
	}
	if opts.BatchSize > 0 {
		cfg.BatchSize = opts.BatchSize
	}
	if opts.Timeout > 0 {
		cfg.Timeout = opts.Timeout
	}
	return NewOllamaEmbedder(ctx, cfg)
}
