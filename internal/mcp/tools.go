package mcp

import (
	"github.com/secondbrain-labs/brainmcp/internal/index"
	"github.com/secondbrain-labs/brainmcp/internal/service"
	"github.com/secondbrain-labs/brainmcp/internal/store"
)

// SearchInput defines the input schema for the rag_search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query to run against the document index"`
	K     int    `json:"k,omitempty" jsonschema:"maximum number of results, default 10, max 50"`
}

// SearchOutput defines the output schema for the rag_search tool.
type SearchOutput struct {
	Results []SearchResult `json:"results" jsonschema:"matching chunks, best first"`
}

// SearchResult is one retrieved chunk with its fused relevance scores.
type SearchResult struct {
	ID           string   `json:"id" jsonschema:"stable chunk ID, usable with rag_get"`
	Path         string   `json:"path" jsonschema:"document path relative to the docs root"`
	Title        string   `json:"title,omitempty" jsonschema:"document or section title"`
	Content      string   `json:"content" jsonschema:"chunk content"`
	Kind         string   `json:"kind" jsonschema:"document kind: text, markdown, html, data, code, notebook"`
	Score        float64  `json:"score" jsonschema:"fused relevance score, top result normalized to 1.0"`
	VectorScore  float64  `json:"vector_score,omitempty" jsonschema:"semantic similarity component"`
	KeywordScore float64  `json:"keyword_score,omitempty" jsonschema:"keyword match component"`
	MatchedTerms []string `json:"matched_terms,omitempty" jsonschema:"query terms that matched"`
	StartLine    int      `json:"start_line,omitempty" jsonschema:"1-indexed first line, 0 when unknown"`
	EndLine      int      `json:"end_line,omitempty" jsonschema:"inclusive last line"`
}

// ChatInput defines the input schema for the rag_chat tool.
type ChatInput struct {
	Query string `json:"query" jsonschema:"the question to answer from the document index"`
	K     int    `json:"k,omitempty" jsonschema:"how many chunks to retrieve as context, default 10"`
	Model string `json:"model,omitempty" jsonschema:"generation model override, default from server config"`
}

// ChatOutput defines the output schema for the rag_chat tool.
type ChatOutput struct {
	Answer  string         `json:"answer" jsonschema:"generated answer with bracketed citations like [1]"`
	Model   string         `json:"model" jsonschema:"model that produced the answer"`
	Sources []SearchResult `json:"sources" jsonschema:"cited chunks; [N] in the answer refers to sources[N-1]"`
}

// GetInput defines the input schema for the rag_get tool.
type GetInput struct {
	ID string `json:"id" jsonschema:"stable chunk ID as returned by rag_search"`
}

// GetOutput defines the output schema for the rag_get tool.
type GetOutput struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	Title     string `json:"title,omitempty"`
	Content   string `json:"content"`
	Kind      string `json:"kind"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
}

// ReindexInput defines the input schema for the rag_reindex tool.
type ReindexInput struct {
	Full bool `json:"full,omitempty" jsonschema:"drop the index and rebuild from scratch instead of syncing changes"`
}

// ReindexOutput defines the output schema for the rag_reindex tool.
type ReindexOutput struct {
	Queued bool   `json:"queued" jsonschema:"true when the run was accepted"`
	State  string `json:"state" jsonschema:"resync driver state after queueing"`
}

// StatsInput defines the (empty) input schema for the rag_stats tool.
type StatsInput struct{}

// StatsOutput is the rag_stats tool output.
type StatsOutput = service.Stats

func toSearchResult(r index.Result) SearchResult {
	return SearchResult{
		ID:           r.Chunk.ID,
		Path:         r.Chunk.Path,
		Title:        r.Chunk.Title,
		Content:      r.Chunk.Content,
		Kind:         string(r.Chunk.Kind),
		Score:        r.Score,
		VectorScore:  r.VectorScore,
		KeywordScore: r.KeywordScore,
		MatchedTerms: r.MatchedTerms,
		StartLine:    r.Chunk.StartLine,
		EndLine:      r.Chunk.EndLine,
	}
}

func toGetOutput(chunk *store.Chunk) *GetOutput {
	return &GetOutput{
		ID:        chunk.ID,
		Path:      chunk.Path,
		Title:     chunk.Title,
		Content:   chunk.Content,
		Kind:      string(chunk.Kind),
		StartLine: chunk.StartLine,
		EndLine:   chunk.EndLine,
	}
}
