package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
)

// BleveKeywordIndex wraps Bleve v2 for keyword search over document chunks.
type BleveKeywordIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// bleveChunk is the document structure Bleve indexes.
type bleveChunk struct {
	Content string `json:"content"`
	Title   string `json:"title"`
	Path    string `json:"path"`
}

// validateIndexIntegrity checks if a Bleve index is valid before opening.
// Returns nil if valid, an error describing the corruption if not.
// Detects partially written indexes (crash during index build) so they
// can be cleared and rebuilt instead of failing every open.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Index doesn't exist, will be created
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}

	return nil
}

// isCorruptionError checks if an error indicates Bleve index corruption.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		strings.Contains(errStr, "no such file or directory") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveKeywordIndex creates or opens a keyword index.
// If path is empty, an in-memory index is created (tests).
// Corrupted on-disk indexes are cleared and recreated; the next resync
// repopulates them.
func NewBleveKeywordIndex(path string) (*BleveKeywordIndex, error) {
	indexMapping, err := createDocsMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			slog.Warn("keyword_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("keyword index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			slog.Info("keyword_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, resync will rebuild"))
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			slog.Warn("keyword_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))

			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("keyword index corrupted, cannot clear: %w (original: %v)", removeErr, err)
			}
			slog.Info("keyword_index_cleared",
				slog.String("path", path),
				slog.String("reason", "open failed with corruption, resync will rebuild"))

			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &BleveKeywordIndex{
		index: idx,
		path:  path,
	}, nil
}

// createDocsMapping creates the Bleve index mapping for document chunks.
// Content and title use the English analyzer (unicode tokenization,
// stemming, stop words); the path field is stored verbatim.
func createDocsMapping() (mapping.IndexMapping, error) {
	indexMapping := bleve.NewIndexMapping()

	chunkMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = en.AnalyzerName
	chunkMapping.AddFieldMappingsAt("content", contentField)

	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = en.AnalyzerName
	chunkMapping.AddFieldMappingsAt("title", titleField)

	pathField := bleve.NewTextFieldMapping()
	pathField.Analyzer = keyword.Name
	pathField.IncludeInAll = false
	chunkMapping.AddFieldMappingsAt("path", pathField)

	indexMapping.DefaultMapping = chunkMapping
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	return indexMapping, nil
}

// Index adds chunks to the index, replacing existing IDs.
func (b *BleveKeywordIndex) Index(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, chunk := range chunks {
		doc := bleveChunk{
			Content: chunk.Content,
			Title:   chunk.Title,
			Path:    chunk.Path,
		}
		if err := batch.Index(chunk.ID, doc); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", chunk.ID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	return nil
}

// Search returns chunks matching the query, best first.
// Title matches are boosted over body matches.
func (b *BleveKeywordIndex) Search(ctx context.Context, queryStr string, limit int) ([]*KeywordResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}

	if strings.TrimSpace(queryStr) == "" {
		return []*KeywordResult{}, nil
	}

	contentQuery := bleve.NewMatchQuery(queryStr)
	contentQuery.SetField("content")

	titleQuery := bleve.NewMatchQuery(queryStr)
	titleQuery.SetField("title")
	titleQuery.SetBoost(2.0)

	searchRequest := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(contentQuery, titleQuery))
	searchRequest.Size = limit
	searchRequest.IncludeLocations = true // For matched terms

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]*KeywordResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &KeywordResult{
			ID:           hit.ID,
			Score:        hit.Score,
			MatchedTerms: extractMatchedTerms(hit),
		})
	}

	return results, nil
}

// Delete removes chunks from the index.
func (b *BleveKeywordIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	return nil
}

// Stats returns index statistics.
func (b *BleveKeywordIndex) Stats() *KeywordStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return &KeywordStats{}
	}

	docCount, _ := b.index.DocCount()

	return &KeywordStats{
		DocumentCount: int(docCount),
	}
}

// Reset drops all indexed content by recreating the index.
func (b *BleveKeywordIndex) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	indexMapping, err := createDocsMapping()
	if err != nil {
		return fmt.Errorf("failed to create index mapping: %w", err)
	}

	if err := b.index.Close(); err != nil {
		return fmt.Errorf("failed to close index for reset: %w", err)
	}

	var idx bleve.Index
	if b.path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.RemoveAll(b.path); err != nil {
			return fmt.Errorf("failed to clear index directory: %w", err)
		}
		idx, err = bleve.New(b.path, indexMapping)
	}
	if err != nil {
		return fmt.Errorf("failed to recreate index: %w", err)
	}

	b.index = idx
	return nil
}

// Close closes the index.
func (b *BleveKeywordIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// extractMatchedTerms extracts matched terms from a search hit.
func extractMatchedTerms(hit *search.DocumentMatch) []string {
	terms := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field == "content" || field == "title" {
			for term := range locations {
				terms[term] = struct{}{}
			}
		}
	}

	result := make([]string, 0, len(terms))
	for term := range terms {
		result = append(result, term)
	}
	return result
}

// Verify interface implementation
var _ KeywordIndex = (*BleveKeywordIndex)(nil)
