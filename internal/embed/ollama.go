package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	brainerrors "github.com/secondbrain-labs/brainmcp/internal/errors"
)

const (
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel handles prose well and runs on modest
	// hardware, which fits a personal notes corpus.
	DefaultOllamaModel = "nomic-embed-text"

	ollamaConnectTimeout = 5 * time.Second
	ollamaPoolSize       = 4
)

// fallbackOllamaModels are tried in order when the configured model is
// not installed.
var fallbackOllamaModels = []string{"mxbai-embed-large", "all-minilm"}

// OllamaConfig configures the Ollama embedder. Zero values take the
// package defaults.
type OllamaConfig struct {
	Host           string
	Model          string
	FallbackModels []string

	// Dimensions overrides auto-detection when nonzero.
	Dimensions int

	BatchSize      int
	Timeout        time.Duration
	ConnectTimeout time.Duration
	MaxRetries     int
	PoolSize       int

	// SkipHealthCheck defers server contact to the first Embed call.
	SkipHealthCheck bool
}

func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:           DefaultOllamaHost,
		Model:          DefaultOllamaModel,
		FallbackModels: fallbackOllamaModels,
		BatchSize:      DefaultBatchSize,
		Timeout:        DefaultTimeout,
		ConnectTimeout: ollamaConnectTimeout,
		MaxRetries:     DefaultMaxRetries,
		PoolSize:       ollamaPoolSize,
	}
}

// Wire format of the /api/embed and /api/tags endpoints.
type embedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

type tagsResponse struct {
	Models []modelInfo `json:"models"`
}

type modelInfo struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}

// OllamaEmbedder produces embeddings over Ollama's HTTP API.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	modelName string
	dims      int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder connects to the server, resolves the model against
// what is installed, and probes the embedding dimension. With
// SkipHealthCheck set it returns immediately with the configured
// values.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	defaults := DefaultOllamaConfig()
	if cfg.Host == "" {
		cfg.Host = defaults.Host
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.FallbackModels == nil {
		cfg.FallbackModels = defaults.FallbackModels
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaults.PoolSize
	}

	// Idle connections drop quickly so a one-shot CLI run exits clean.
	// Request deadlines come from context rather than
	// http.Client.Timeout, keeping slow cold model loads cancellable.
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	e := &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		probeCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		if err := e.verify(probeCtx); err != nil {
			transport.CloseIdleConnections()
			return nil, err
		}
	}
	if e.dims == 0 {
		e.dims = DefaultDimensions
	}
	return e, nil
}

// verify resolves the model name and, if needed, the dimension by
// embedding a probe string.
func (e *OllamaEmbedder) verify(ctx context.Context) error {
	model, err := e.resolveModel(ctx)
	if err != nil {
		return fmt.Errorf("connect to ollama: %w", err)
	}
	e.modelName = model

	if e.dims == 0 {
		vecs, err := e.embedOnce(ctx, []string{"dimension probe"})
		if err != nil {
			return fmt.Errorf("detect embedding dimensions: %w", err)
		}
		if len(vecs) == 0 || len(vecs[0]) == 0 {
			return fmt.Errorf("detect embedding dimensions: empty embedding returned")
		}
		e.dims = len(vecs[0])
	}
	return nil
}

// resolveModel matches the configured model, then the fallbacks,
// against the server's installed models. Matching ignores case and
// the :tag suffix, so "nomic-embed-text" finds
// "nomic-embed-text:latest".
func (e *OllamaEmbedder) resolveModel(ctx context.Context) (string, error) {
	installed, err := e.installedModels(ctx)
	if err != nil {
		return "", err
	}

	byName := make(map[string]string, 2*len(installed))
	for _, m := range installed {
		lower := strings.ToLower(m.Name)
		byName[lower] = m.Name
		if base, _, found := strings.Cut(lower, ":"); found {
			if _, taken := byName[base]; !taken {
				byName[base] = m.Name
			}
		}
	}

	for _, want := range append([]string{e.config.Model}, e.config.FallbackModels...) {
		lower := strings.ToLower(want)
		if actual, ok := byName[lower]; ok {
			return actual, nil
		}
		base, _, _ := strings.Cut(lower, ":")
		if actual, ok := byName[base]; ok {
			return actual, nil
		}
	}
	return "", fmt.Errorf("no embedding model available (tried %s and %v)",
		e.config.Model, e.config.FallbackModels)
}

func (e *OllamaEmbedder) installedModels(ctx context.Context) ([]modelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list models: status %d: %s", resp.StatusCode, string(body))
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("list models: decode: %w", err)
	}
	return tags.Models, nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.ensureOpen(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return make([]float32, e.dims), nil
	}
	vecs, err := e.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in server-side batches. Blank texts get zero
// vectors without a round trip, and their slots are stitched back into
// the result in order.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.ensureOpen(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))
	var sendIdx []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out[i] = make([]float32, e.dims)
			continue
		}
		sendIdx = append(sendIdx, i)
	}

	for start := 0; start < len(sendIdx); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + e.config.BatchSize
		if end > len(sendIdx) {
			end = len(sendIdx)
		}

		batch := make([]string, end-start)
		for j, i := range sendIdx[start:end] {
			batch[j] = texts[i]
		}
		vecs, err := e.embedWithRetry(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embed batch: %w", err)
		}
		for j, i := range sendIdx[start:end] {
			out[i] = vecs[j]
		}
	}
	return out, nil
}

// embedWithRetry retries transient failures with exponential backoff.
// Each attempt carries its own deadline so one hung request does not
// burn the whole retry budget.
func (e *OllamaEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	cfg := brainerrors.RetryConfig{
		MaxRetries:   e.config.MaxRetries - 1,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}

	attempt := 0
	return brainerrors.RetryWithResult(ctx, cfg, func() ([][]float32, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		vecs, err := e.embedOnce(attemptCtx, texts)
		cancel()
		if err != nil {
			slog.Debug("embedding_attempt_failed",
				slog.Int("attempt", attempt),
				slog.Int("texts_count", len(texts)),
				slog.String("error", err.Error()))
		}
		return vecs, err
	})
}

// embedOnce is one /api/embed round trip. Returned vectors are
// normalized to unit length for the cosine-based vector store.
func (e *OllamaEmbedder) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	// The API accepts a bare string or an array.
	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}
	body, err := json.Marshal(embedRequest{Model: e.modelName, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, brainerrors.New(brainerrors.ErrCodeOllamaUnavailable, "embedding request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, brainerrors.New(brainerrors.ErrCodeOllamaUnavailable,
			fmt.Sprintf("embedding failed with status %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	vecs := make([][]float32, len(parsed.Embeddings))
	for i, raw := range parsed.Embeddings {
		vec := make([]float32, len(raw))
		for j, v := range raw {
			vec[j] = float32(v)
		}
		vecs[i] = normalizeVector(vec)
	}
	return vecs, nil
}

func (e *OllamaEmbedder) ensureOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return fmt.Errorf("embedder is closed")
	}
	return nil
}

func (e *OllamaEmbedder) Dimensions() int { return e.dims }

func (e *OllamaEmbedder) ModelName() string { return e.modelName }

// Available reports whether the server answers and still has the
// resolved model installed.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	if e.ensureOpen() != nil {
		return false
	}
	installed, err := e.installedModels(ctx)
	if err != nil {
		return false
	}
	want := strings.ToLower(e.modelName)
	for _, m := range installed {
		have := strings.ToLower(m.Name)
		if strings.Contains(have, want) || strings.Contains(want, have) {
			return true
		}
	}
	return false
}

func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
