package mcp

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secondbrain-labs/brainmcp/internal/errors"
	"github.com/secondbrain-labs/brainmcp/internal/index"
	"github.com/secondbrain-labs/brainmcp/internal/llm"
	"github.com/secondbrain-labs/brainmcp/internal/service"
	"github.com/secondbrain-labs/brainmcp/internal/store"
)

type stubService struct {
	searchResults []index.Result
	searchErr     error
	chatAnswer    *llm.Answer
	chatErr       error
	chunks        map[string]*store.Chunk
	stats         *service.Stats
	resyncs       []bool
	resyncErr     error

	lastQuery    string
	lastK        int
	lastModel    string
	lastClientID string
}

func (s *stubService) Search(ctx context.Context, query string, k int, clientID string) ([]index.Result, error) {
	s.lastQuery, s.lastK, s.lastClientID = query, k, clientID
	return s.searchResults, s.searchErr
}

func (s *stubService) Chat(ctx context.Context, query string, k int, model string, clientID string) (*llm.Answer, error) {
	s.lastQuery, s.lastK, s.lastModel, s.lastClientID = query, k, model, clientID
	return s.chatAnswer, s.chatErr
}

func (s *stubService) TriggerResync(fullRebuild bool, clientID string) error {
	s.resyncs = append(s.resyncs, fullRebuild)
	s.lastClientID = clientID
	return s.resyncErr
}

func (s *stubService) Stats(ctx context.Context, clientID string) (*service.Stats, error) {
	s.lastClientID = clientID
	return s.stats, nil
}

func (s *stubService) Get(id string, clientID string) (*store.Chunk, error) {
	s.lastClientID = clientID
	if chunk, ok := s.chunks[id]; ok {
		return chunk, nil
	}
	return nil, fmt.Errorf("chunk %q not found", id)
}

type stubLister struct {
	docs map[string]*store.Document
}

func (l *stubLister) AllDocuments(ctx context.Context) (map[string]*store.Document, error) {
	return l.docs, nil
}

func chunkFixture(id, path, content string) *store.Chunk {
	return &store.Chunk{ID: id, Path: path, Content: content, Kind: store.KindMarkdown}
}

func newTestServer(t *testing.T, svc *stubService) *Server {
	t.Helper()
	srv, err := NewServer(svc, nil, func() string { return "idle" })
	require.NoError(t, err)
	return srv
}

func TestNewServer_RequiresService(t *testing.T) {
	_, err := NewServer(nil, nil, nil)
	assert.Error(t, err)
}

func TestSearchHandler_ReturnsTypedResults(t *testing.T) {
	svc := &stubService{searchResults: []index.Result{
		{
			Chunk:        chunkFixture("notes/a.md::chunk_0000", "notes/a.md", "hello world"),
			Score:        1.0,
			VectorScore:  0.91,
			KeywordScore: 4.2,
			MatchedTerms: []string{"hello"},
		},
	}}
	srv := newTestServer(t, svc)

	_, out, err := srv.searchHandler(context.Background(), nil, SearchInput{Query: "hello", K: 5})
	require.NoError(t, err)

	require.Len(t, out.Results, 1)
	r := out.Results[0]
	assert.Equal(t, "notes/a.md::chunk_0000", r.ID)
	assert.Equal(t, "notes/a.md", r.Path)
	assert.Equal(t, "hello world", r.Content)
	assert.Equal(t, "markdown", r.Kind)
	assert.InDelta(t, 1.0, r.Score, 0.001)
	assert.Equal(t, []string{"hello"}, r.MatchedTerms)

	assert.Equal(t, "hello", svc.lastQuery)
	assert.Equal(t, 5, svc.lastK)
	assert.Equal(t, DefaultClientID, svc.lastClientID)
}

func TestSearchHandler_EmptyQueryRejected(t *testing.T) {
	srv := newTestServer(t, &stubService{})

	_, _, err := srv.searchHandler(context.Background(), nil, SearchInput{Query: "   "})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestSearchHandler_ClampsK(t *testing.T) {
	svc := &stubService{}
	srv := newTestServer(t, svc)

	_, _, err := srv.searchHandler(context.Background(), nil, SearchInput{Query: "q", K: 500})
	require.NoError(t, err)
	assert.Equal(t, maxSearchK, svc.lastK)
}

func TestSearchHandler_MapsIndexUnavailable(t *testing.T) {
	svc := &stubService{searchErr: errors.ComputeFailed(errors.IndexUnavailable())}
	srv := newTestServer(t, svc)

	_, _, err := srv.searchHandler(context.Background(), nil, SearchInput{Query: "q"})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeIndexUnavailable, mcpErr.Code)
}

func TestSearchHandler_MapsRateLimited(t *testing.T) {
	svc := &stubService{searchErr: errors.RateLimited("mcp")}
	srv := newTestServer(t, svc)

	_, _, err := srv.searchHandler(context.Background(), nil, SearchInput{Query: "q"})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeRateLimited, mcpErr.Code)
}

func TestChatHandler_ReturnsAnswerAndSources(t *testing.T) {
	svc := &stubService{chatAnswer: &llm.Answer{
		Text:  "The flight leaves at 9am [1].",
		Model: "llama3",
		Sources: []*store.Chunk{
			chunkFixture("travel.md::chunk_0000", "travel.md", "Flight at 9am."),
		},
	}}
	srv := newTestServer(t, svc)

	_, out, err := srv.chatHandler(context.Background(), nil, ChatInput{Query: "when?", Model: "llama3"})
	require.NoError(t, err)

	assert.Equal(t, "The flight leaves at 9am [1].", out.Answer)
	assert.Equal(t, "llama3", out.Model)
	require.Len(t, out.Sources, 1)
	assert.Equal(t, "travel.md::chunk_0000", out.Sources[0].ID)
	assert.Equal(t, "llama3", svc.lastModel)
}

func TestGetHandler_FetchesChunkByID(t *testing.T) {
	svc := &stubService{chunks: map[string]*store.Chunk{
		"a.md::chunk_0001": chunkFixture("a.md::chunk_0001", "a.md", "body"),
	}}
	srv := newTestServer(t, svc)

	_, out, err := srv.getHandler(context.Background(), nil, GetInput{ID: "a.md::chunk_0001"})
	require.NoError(t, err)
	assert.Equal(t, "body", out.Content)
	assert.Equal(t, "a.md", out.Path)

	_, _, err = srv.getHandler(context.Background(), nil, GetInput{ID: "missing"})
	assert.Error(t, err)

	_, _, err = srv.getHandler(context.Background(), nil, GetInput{})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestReindexHandler_QueuesRun(t *testing.T) {
	svc := &stubService{}
	srv := newTestServer(t, svc)

	_, out, err := srv.reindexHandler(context.Background(), nil, ReindexInput{Full: true})
	require.NoError(t, err)
	assert.True(t, out.Queued)
	assert.Equal(t, "idle", out.State)
	assert.Equal(t, []bool{true}, svc.resyncs)
}

func TestStatsHandler_PassesThrough(t *testing.T) {
	svc := &stubService{stats: &service.Stats{Epoch: 9, IndexedChunks: 42}}
	srv := newTestServer(t, svc)

	_, out, err := srv.statsHandler(context.Background(), nil, StatsInput{})
	require.NoError(t, err)
	assert.Equal(t, uint64(9), out.Epoch)
	assert.Equal(t, 42, out.IndexedChunks)
}

func TestListResources_SortedDocURIs(t *testing.T) {
	svc := &stubService{}
	lister := &stubLister{docs: map[string]*store.Document{
		"b.md":      {Path: "b.md", Kind: store.KindMarkdown},
		"a/note.py": {Path: "a/note.py", Kind: store.KindCode},
	}}
	srv, err := NewServer(svc, lister, nil)
	require.NoError(t, err)

	resources, err := srv.ListResources(context.Background())
	require.NoError(t, err)
	require.Len(t, resources, 2)
	assert.Equal(t, "doc://a/note.py", resources[0].URI)
	assert.Equal(t, "text/x-python", resources[0].MIMEType)
	assert.Equal(t, "doc://b.md", resources[1].URI)
}

func TestReadResource_ChunkURI(t *testing.T) {
	svc := &stubService{chunks: map[string]*store.Chunk{
		"a.md::chunk_0000": chunkFixture("a.md::chunk_0000", "a.md", "content"),
	}}
	srv := newTestServer(t, svc)

	content, err := srv.ReadResource(context.Background(), "chunk://a.md::chunk_0000")
	require.NoError(t, err)
	assert.Equal(t, "content", content.Content)
	assert.Equal(t, "text/markdown", content.MIMEType)

	_, err = srv.ReadResource(context.Background(), "file:///etc/passwd")
	assert.Error(t, err)
}
