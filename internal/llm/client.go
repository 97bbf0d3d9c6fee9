// Package llm generates grounded answers from retrieved document
// chunks using a local Ollama model.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	brainerrors "github.com/secondbrain-labs/brainmcp/internal/errors"
	"github.com/secondbrain-labs/brainmcp/internal/store"
)

const (
	// DefaultHost is the default Ollama API endpoint.
	DefaultHost = "http://localhost:11434"

	// DefaultModel is the default generation model.
	DefaultModel = "llama3"

	// DefaultTimeout is the per-request generation timeout. Generation
	// is much slower than embedding, especially on a cold model load.
	DefaultTimeout = 300 * time.Second

	// DefaultMaxContextChunks is how many retrieved chunks feed the prompt.
	DefaultMaxContextChunks = 6
)

// Config configures the generation client.
type Config struct {
	Host    string
	Model   string
	Timeout time.Duration

	// MaxContextChunks caps how many chunks go into the prompt.
	MaxContextChunks int
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxContextChunks <= 0 {
		c.MaxContextChunks = DefaultMaxContextChunks
	}
	return c
}

// Answer is a generated response with the chunks it was grounded on.
// Bracketed citations in the text ([1], [2], ...) refer to Sources by
// 1-based position.
type Answer struct {
	Text    string
	Model   string
	Sources []*store.Chunk
}

// Client calls Ollama's generate API. A circuit breaker fails requests
// fast while the server is down instead of burning the full generation
// timeout on every query.
type Client struct {
	client    *http.Client
	transport *http.Transport
	config    Config
	breaker   *brainerrors.CircuitBreaker
}

// NewClient creates a generation client. It does not contact the
// server; use Available to probe reachability.
func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()

	transport := &http.Transport{
		MaxIdleConns:        2,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     10 * time.Second,
	}

	return &Client{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		breaker: brainerrors.NewCircuitBreaker("ollama-generate",
			brainerrors.WithMaxFailures(3),
			brainerrors.WithResetTimeout(15*time.Second)),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.config.Model
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Chat answers a question grounded on the given chunks. The model
// argument overrides the configured model when non-empty. Chunks beyond
// the configured context cap are dropped, best-ranked first kept.
func (c *Client) Chat(ctx context.Context, query string, chunks []*store.Chunk, model string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	if model == "" {
		model = c.config.Model
	}
	if len(chunks) > c.config.MaxContextChunks {
		chunks = chunks[:c.config.MaxContextChunks]
	}

	body, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: buildPrompt(query, chunks),
		Stream: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.config.Host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if !c.breaker.Allow() {
		return nil, brainerrors.New(brainerrors.ErrCodeGenerationFailed,
			"ollama is unresponsive, backing off", brainerrors.ErrCircuitOpen)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= http.StatusInternalServerError {
			c.breaker.RecordFailure()
		}
		return nil, fmt.Errorf("generation failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	c.breaker.RecordSuccess()

	return &Answer{
		Text:    strings.TrimSpace(result.Response),
		Model:   model,
		Sources: chunks,
	}, nil
}

// buildPrompt lays out the chunks as a numbered context block so the
// model can cite them as [1], [2], ...
func buildPrompt(query string, chunks []*store.Chunk) string {
	var b strings.Builder
	b.WriteString("You are answering questions about the user's personal documents.\n")
	b.WriteString("Use only the numbered context below. Cite sources inline with bracketed numbers, e.g. [1] or [2].\n")
	b.WriteString("If the context does not contain the answer, say you don't know.\n\n")

	if len(chunks) == 0 {
		b.WriteString("Context: (no matching documents)\n")
	} else {
		b.WriteString("Context:\n")
		for i, chunk := range chunks {
			fmt.Fprintf(&b, "\n[%d] %s", i+1, chunk.Path)
			if chunk.Title != "" {
				fmt.Fprintf(&b, " (%s)", chunk.Title)
			}
			b.WriteString("\n")
			b.WriteString(strings.TrimSpace(chunk.Content))
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\nQuestion: %s\n\nAnswer:", query)
	return b.String()
}

// Available checks if Ollama is reachable.
func (c *Client) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}
