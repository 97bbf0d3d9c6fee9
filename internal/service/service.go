// Package service is the admission-gated facade over the index, cache,
// chat client, and resync driver. Every operation charges the caller's
// rate-limit budget before touching anything else.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/secondbrain-labs/brainmcp/internal/cache"
	"github.com/secondbrain-labs/brainmcp/internal/errors"
	"github.com/secondbrain-labs/brainmcp/internal/index"
	"github.com/secondbrain-labs/brainmcp/internal/llm"
	"github.com/secondbrain-labs/brainmcp/internal/ratelimit"
	"github.com/secondbrain-labs/brainmcp/internal/resync"
	"github.com/secondbrain-labs/brainmcp/internal/store"
)

// DefaultK is the result count when a caller does not specify one.
const DefaultK = 10

// Index is the read surface of the index coordinator.
type Index interface {
	Search(ctx context.Context, query string, k int) ([]index.Result, error)
	Get(id string) (*store.Chunk, bool)
	Stats() index.Stats
}

// Resyncer accepts resync requests and reports run state.
type Resyncer interface {
	Trigger(req resync.Request)
	State() resync.State
	Progress() *resync.Progress
}

// ChatClient generates grounded answers.
type ChatClient interface {
	Chat(ctx context.Context, query string, chunks []*store.Chunk, model string) (*llm.Answer, error)
}

// WatchHealth reports the file watcher's condition.
type WatchHealth interface {
	Healthy() bool
	Mode() string
}

// Stats is the aggregate status snapshot served to clients.
type Stats struct {
	Epoch          uint64                  `json:"epoch"`
	IndexedChunks  int                     `json:"indexed_chunks"`
	Vectors        int                     `json:"vectors"`
	KeywordDocs    int                     `json:"keyword_docs"`
	Cache          cache.Stats             `json:"cache"`
	CacheHitRate   float64                 `json:"cache_hit_rate"`
	ResyncState    string                  `json:"resync_state"`
	ResyncProgress resync.ProgressSnapshot `json:"resync_progress"`
	WatcherHealthy bool                    `json:"watcher_healthy"`
	WatcherMode    string                  `json:"watcher_mode,omitempty"`
	RateClients    int                     `json:"rate_clients"`
	RateRejected   uint64                  `json:"rate_rejected"`
}

// Service wires the facade together. Chat and Watch are optional; a
// nil chat client makes Chat return an error, a nil watch reports an
// unhealthy watcher.
type Service struct {
	limiter *ratelimit.Limiter
	cache   *cache.QueryCache[[]index.Result]
	index   Index
	driver  Resyncer
	chat    ChatClient
	watch   WatchHealth
}

// Config collects the facade's collaborators.
type Config struct {
	Limiter *ratelimit.Limiter
	Cache   *cache.QueryCache[[]index.Result]
	Index   Index
	Driver  Resyncer
	Chat    ChatClient
	Watch   WatchHealth
}

// New creates the facade. Limiter, Cache, Index, and Driver are required.
func New(cfg Config) (*Service, error) {
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("service: limiter is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("service: cache is required")
	}
	if cfg.Index == nil {
		return nil, fmt.Errorf("service: index is required")
	}
	if cfg.Driver == nil {
		return nil, fmt.Errorf("service: resync driver is required")
	}
	return &Service{
		limiter: cfg.Limiter,
		cache:   cfg.Cache,
		index:   cfg.Index,
		driver:  cfg.Driver,
		chat:    cfg.Chat,
		watch:   cfg.Watch,
	}, nil
}

// Search runs a cached hybrid search. Identical concurrent queries
// share one index round-trip.
func (s *Service) Search(ctx context.Context, query string, k int, clientID string) ([]index.Result, error) {
	if !s.limiter.Admit(clientID) {
		return nil, errors.RateLimited(clientID)
	}

	start := time.Now()
	results, err := s.retrieve(ctx, query, k)
	if err != nil {
		return nil, err
	}
	slog.Debug("search_served",
		"client", clientID,
		"results", len(results),
		"duration", time.Since(start).Round(time.Microsecond))
	return results, nil
}

// Chat retrieves matching chunks and asks the generation model for a
// cited answer. The retrieval leg shares the query cache with Search.
func (s *Service) Chat(ctx context.Context, query string, k int, model string, clientID string) (*llm.Answer, error) {
	if !s.limiter.Admit(clientID) {
		return nil, errors.RateLimited(clientID)
	}
	if s.chat == nil {
		return nil, fmt.Errorf("chat is not configured")
	}

	results, err := s.retrieve(ctx, query, k)
	if err != nil {
		return nil, err
	}

	chunks := make([]*store.Chunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, r.Chunk)
	}
	return s.chat.Chat(ctx, query, chunks, model)
}

// TriggerResync queues a resync run. It returns immediately; progress
// is observable through Stats.
func (s *Service) TriggerResync(fullRebuild bool, clientID string) error {
	if !s.limiter.Admit(clientID) {
		return errors.RateLimited(clientID)
	}
	s.driver.Trigger(resync.Request{
		Reason:      resync.ReasonManual,
		FullRebuild: fullRebuild,
	})
	return nil
}

// Get returns one indexed chunk by its stable ID.
func (s *Service) Get(id string, clientID string) (*store.Chunk, error) {
	if !s.limiter.Admit(clientID) {
		return nil, errors.RateLimited(clientID)
	}
	chunk, ok := s.index.Get(id)
	if !ok {
		return nil, fmt.Errorf("chunk %q not found", id)
	}
	return chunk, nil
}

// Stats returns the aggregate status snapshot.
func (s *Service) Stats(ctx context.Context, clientID string) (*Stats, error) {
	if !s.limiter.Admit(clientID) {
		return nil, errors.RateLimited(clientID)
	}

	idxStats := s.index.Stats()
	cacheStats := s.cache.Stats()

	out := &Stats{
		Epoch:          idxStats.Epoch,
		IndexedChunks:  idxStats.Chunks,
		Vectors:        idxStats.Vectors,
		KeywordDocs:    idxStats.KeywordDocs,
		Cache:          cacheStats,
		CacheHitRate:   cacheStats.HitRate(),
		ResyncState:    string(s.driver.State()),
		ResyncProgress: s.driver.Progress().Snapshot(),
		RateClients:    s.limiter.ClientCount(),
		RateRejected:   s.limiter.Rejected(),
	}
	if s.watch != nil {
		out.WatcherHealthy = s.watch.Healthy()
		out.WatcherMode = s.watch.Mode()
	}
	return out, nil
}

// retrieve is the shared cache-through search path.
func (s *Service) retrieve(ctx context.Context, query string, k int) ([]index.Result, error) {
	if k <= 0 {
		k = DefaultK
	}
	key := cacheKey(query, k)
	return s.cache.GetOrCompute(ctx, key, func(ctx context.Context) ([]index.Result, error) {
		return s.index.Search(ctx, query, k)
	})
}

func cacheKey(query string, k int) string {
	return fmt.Sprintf("%d\x00%s", k, strings.TrimSpace(query))
}
