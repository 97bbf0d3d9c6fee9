package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/secondbrain-labs/brainmcp/internal/cache"
	"github.com/secondbrain-labs/brainmcp/internal/config"
	"github.com/secondbrain-labs/brainmcp/internal/docs"
	"github.com/secondbrain-labs/brainmcp/internal/embed"
	"github.com/secondbrain-labs/brainmcp/internal/index"
	"github.com/secondbrain-labs/brainmcp/internal/llm"
	"github.com/secondbrain-labs/brainmcp/internal/ratelimit"
	"github.com/secondbrain-labs/brainmcp/internal/resync"
	"github.com/secondbrain-labs/brainmcp/internal/service"
	"github.com/secondbrain-labs/brainmcp/internal/store"
)

// On-disk names inside the data dir.
const (
	stateFileName  = "state.db"
	keywordDirName = "keyword.bleve"
)

// stack is the assembled retrieval pipeline. serve runs it with the
// watcher and both servers on top; ingest, search, and chat run it for
// a single operation and tear it down.
type stack struct {
	cfg         *config.Config
	state       *store.StateStore
	embedder    embed.Embedder
	coordinator *index.Coordinator
	loader      *docs.Loader
	driver      *resync.Driver
	cache       *cache.QueryCache[[]index.Result]
	limiter     *ratelimit.Limiter
	chat        *llm.Client
	svc         *service.Service
}

// buildStack wires the full pipeline for the given configuration.
// The returned stack's driver is created but not started. watchHealth
// may be nil; serve passes its notifier so status reports watcher
// degradation.
func buildStack(ctx context.Context, cfg *config.Config, watchHealth service.WatchHealth) (*stack, error) {
	dataDir := cfg.DataDir()

	embedder, err := embed.NewEmbedder(ctx, embed.ProviderType(cfg.Embeddings.Provider), embed.Options{
		Model:      cfg.Embeddings.Model,
		Host:       cfg.Embeddings.OllamaHost,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
		Timeout:    cfg.EmbedTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	vector, err := store.NewHNSWStore(store.VectorStoreConfig{
		Dimensions:     embedder.Dimensions(),
		Metric:         "cos",
		M:              cfg.Index.M,
		EfConstruction: cfg.Index.EfConstruction,
		EfSearch:       cfg.Index.EfSearch,
	})
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("create vector store: %w", err)
	}

	keyword, err := store.NewBleveKeywordIndex(filepath.Join(dataDir, keywordDirName))
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("open keyword index: %w", err)
	}

	coordinator, err := index.New(index.Config{
		Vector:   vector,
		Keyword:  keyword,
		Embedder: embedder,
		Weights: index.Weights{
			Vector:  cfg.Search.VectorWeight,
			Keyword: cfg.Search.KeywordWeight,
		},
		DataDir: dataDir,
	})
	if err != nil {
		_ = keyword.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("create index coordinator: %w", err)
	}

	state, err := store.NewStateStore(filepath.Join(dataDir, stateFileName))
	if err != nil {
		_ = coordinator.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("open state store: %w", err)
	}

	loader, err := docs.NewLoader(cfg.Docs.Root, docs.LoaderOptions{
		ChunkSize:      cfg.Chunking.Size,
		ChunkOverlap:   cfg.Chunking.Overlap,
		MaxFileSize:    int64(cfg.Docs.MaxFileSizeMB) * 1024 * 1024,
		IgnorePatterns: cfg.Docs.Ignore,
	})
	if err != nil {
		_ = state.Close()
		_ = coordinator.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("create document loader: %w", err)
	}

	queryCache := cache.New[[]index.Result](cfg.Cache.Capacity, cfg.CacheTTL(), coordinator.CurrentEpoch)

	driver, err := resync.NewDriver(loader, embedder, coordinator, state, queryCache, resync.Options{
		BatchSize: cfg.Embeddings.BatchSize,
	})
	if err != nil {
		_ = state.Close()
		_ = coordinator.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("create resync driver: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		PerMinute: cfg.RateLimit.PerMinute,
		Burst:     cfg.RateLimit.Burst,
		IdleAfter: cfg.RateIdleAfter(),
	})

	chat := llm.NewClient(llm.Config{
		Host:             cfg.Embeddings.OllamaHost,
		Model:            cfg.Chat.Model,
		Timeout:          cfg.ChatTimeout(),
		MaxContextChunks: cfg.Chat.MaxContextChunks,
	})

	s := &stack{
		cfg:         cfg,
		state:       state,
		embedder:    embedder,
		coordinator: coordinator,
		loader:      loader,
		driver:      driver,
		cache:       queryCache,
		limiter:     limiter,
		chat:        chat,
	}

	s.svc, err = service.New(service.Config{
		Limiter: limiter,
		Cache:   queryCache,
		Index:   coordinator,
		Driver:  driver,
		Chat:    chat,
		Watch:   watchHealth,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("create service: %w", err)
	}

	slog.Debug("stack_ready",
		slog.String("docs_root", cfg.Docs.Root),
		slog.String("embedder", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()),
		slog.Uint64("epoch", coordinator.CurrentEpoch()))

	return s, nil
}

// Close tears the stack down in reverse dependency order.
func (s *stack) Close() {
	if s.chat != nil {
		_ = s.chat.Close()
	}
	if s.state != nil {
		_ = s.state.Close()
	}
	if s.coordinator != nil {
		_ = s.coordinator.Close()
	}
	if s.embedder != nil {
		_ = s.embedder.Close()
	}
}
