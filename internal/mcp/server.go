package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/secondbrain-labs/brainmcp/internal/index"
	"github.com/secondbrain-labs/brainmcp/internal/llm"
	"github.com/secondbrain-labs/brainmcp/internal/service"
	"github.com/secondbrain-labs/brainmcp/internal/store"
	"github.com/secondbrain-labs/brainmcp/pkg/version"
)

// DefaultClientID is the admission identity charged for MCP calls.
// Stdio carries a single client, so one identity covers the session.
const DefaultClientID = "mcp"

const maxSearchK = 50

// RAGService is the facade surface the server exposes as tools.
type RAGService interface {
	Search(ctx context.Context, query string, k int, clientID string) ([]index.Result, error)
	Chat(ctx context.Context, query string, k int, model string, clientID string) (*llm.Answer, error)
	TriggerResync(fullRebuild bool, clientID string) error
	Stats(ctx context.Context, clientID string) (*service.Stats, error)
	Get(id string, clientID string) (*store.Chunk, error)
}

// DocumentLister lists tracked documents for resource enumeration.
type DocumentLister interface {
	AllDocuments(ctx context.Context) (map[string]*store.Document, error)
}

// ResyncState exposes the resync driver's state for rag_reindex output.
type ResyncState interface {
	State() string
}

// Server bridges AI clients with the document index over MCP.
type Server struct {
	mcp      *mcp.Server
	svc      RAGService
	docs     DocumentLister // May be nil; disables resource listing
	state    func() string  // May be nil; rag_reindex reports "queued"
	clientID string
	logger   *slog.Logger
}

// NewServer creates an MCP server over the service facade. The lister
// and stateFn are optional.
func NewServer(svc RAGService, lister DocumentLister, stateFn func() string) (*Server, error) {
	if svc == nil {
		return nil, errors.New("service is required")
	}

	s := &Server{
		svc:      svc,
		docs:     lister,
		state:    stateFn,
		clientID: DefaultClientID,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "brainmcp",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying SDK server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rag_search",
		Description: "Search the user's personal documents by meaning and keywords. Returns the best-matching chunks with stable IDs, paths, and relevance scores.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rag_chat",
		Description: "Answer a question from the user's documents. Retrieves matching chunks and generates a cited answer; [N] in the answer refers to sources[N-1].",
	}, s.chatHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rag_get",
		Description: "Fetch one indexed chunk by the stable ID returned from rag_search. Use to read full chunk content referenced in citations.",
	}, s.getHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rag_reindex",
		Description: "Queue a resync of the document index. With full=true, drops the index and rebuilds from scratch. Returns immediately; watch rag_stats for progress.",
	}, s.reindexHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rag_stats",
		Description: "Report index health: write epoch, indexed chunk count, cache hit rate, resync state and progress, watcher health.",
	}, s.statsHandler)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 5))
}

func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required")
	}
	k := input.K
	if k > maxSearchK {
		k = maxSearchK
	}

	start := time.Now()
	requestID := generateRequestID()

	results, err := s.svc.Search(ctx, input.Query, k, s.clientID)
	if err != nil {
		s.logger.Warn("rag_search_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	out := SearchOutput{Results: make([]SearchResult, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, toSearchResult(r))
	}

	s.logger.Info("rag_search_completed",
		slog.String("request_id", requestID),
		slog.Int("results", len(out.Results)),
		slog.Duration("duration", time.Since(start)))
	return nil, out, nil
}

func (s *Server) chatHandler(ctx context.Context, _ *mcp.CallToolRequest, input ChatInput) (
	*mcp.CallToolResult,
	ChatOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, ChatOutput{}, NewInvalidParamsError("query is required")
	}

	start := time.Now()
	requestID := generateRequestID()

	answer, err := s.svc.Chat(ctx, input.Query, input.K, input.Model, s.clientID)
	if err != nil {
		s.logger.Warn("rag_chat_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, ChatOutput{}, MapError(err)
	}

	out := ChatOutput{
		Answer:  answer.Text,
		Model:   answer.Model,
		Sources: make([]SearchResult, 0, len(answer.Sources)),
	}
	for _, chunk := range answer.Sources {
		out.Sources = append(out.Sources, toSearchResult(index.Result{Chunk: chunk}))
	}

	s.logger.Info("rag_chat_completed",
		slog.String("request_id", requestID),
		slog.String("model", answer.Model),
		slog.Int("sources", len(out.Sources)),
		slog.Duration("duration", time.Since(start)))
	return nil, out, nil
}

func (s *Server) getHandler(ctx context.Context, _ *mcp.CallToolRequest, input GetInput) (
	*mcp.CallToolResult,
	*GetOutput,
	error,
) {
	if input.ID == "" {
		return nil, nil, NewInvalidParamsError("id is required")
	}

	chunk, err := s.svc.Get(input.ID, s.clientID)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, toGetOutput(chunk), nil
}

func (s *Server) reindexHandler(ctx context.Context, _ *mcp.CallToolRequest, input ReindexInput) (
	*mcp.CallToolResult,
	ReindexOutput,
	error,
) {
	if err := s.svc.TriggerResync(input.Full, s.clientID); err != nil {
		return nil, ReindexOutput{}, MapError(err)
	}

	out := ReindexOutput{Queued: true, State: "queued"}
	if s.state != nil {
		out.State = s.state()
	}
	s.logger.Info("rag_reindex_queued", slog.Bool("full", input.Full))
	return nil, out, nil
}

func (s *Server) statsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ StatsInput) (
	*mcp.CallToolResult,
	*StatsOutput,
	error,
) {
	stats, err := s.svc.Stats(ctx, s.clientID)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, stats, nil
}

// ResourceInfo describes one listable resource.
type ResourceInfo struct {
	URI      string
	Name     string
	MIMEType string
}

// ResourceContent is the content of one resource.
type ResourceContent struct {
	URI      string
	Content  string
	MIMEType string
}

// ListResources enumerates tracked documents as doc:// resources.
func (s *Server) ListResources(ctx context.Context) ([]ResourceInfo, error) {
	if s.docs == nil {
		return nil, nil
	}
	tracked, err := s.docs.AllDocuments(ctx)
	if err != nil {
		return nil, err
	}

	resources := make([]ResourceInfo, 0, len(tracked))
	for path, doc := range tracked {
		resources = append(resources, ResourceInfo{
			URI:      "doc://" + path,
			Name:     path,
			MIMEType: mimeTypeForKind(doc.Kind),
		})
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i].URI < resources[j].URI })
	return resources, nil
}

// ReadResource reads a chunk://<id> resource.
func (s *Server) ReadResource(ctx context.Context, uri string) (*ResourceContent, error) {
	chunkID, ok := strings.CutPrefix(uri, "chunk://")
	if !ok {
		return nil, NewResourceNotFoundError(uri)
	}

	chunk, err := s.svc.Get(chunkID, s.clientID)
	if err != nil {
		return nil, NewResourceNotFoundError(uri)
	}
	return &ResourceContent{
		URI:      uri,
		Content:  chunk.Content,
		MIMEType: mimeTypeForKind(chunk.Kind),
	}, nil
}

// Serve runs the server over the given transport until ctx is canceled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
