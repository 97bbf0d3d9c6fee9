package embed

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOllama serves /api/tags and /api/embed the way the real server
// does, recording embed inputs for assertions.
type fakeOllama struct {
	models     []string
	dims       int
	embedCalls int
	lastInputs []string
	failEmbeds int
}

func (f *fakeOllama) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		var tags tagsResponse
		for _, name := range f.models {
			tags.Models = append(tags.Models, modelInfo{Name: name})
		}
		_ = json.NewEncoder(w).Encode(tags)
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		f.embedCalls++
		if f.failEmbeds > 0 {
			f.failEmbeds--
			http.Error(w, "model loading", http.StatusInternalServerError)
			return
		}
		var req embedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		switch in := req.Input.(type) {
		case string:
			f.lastInputs = []string{in}
		case []any:
			f.lastInputs = f.lastInputs[:0]
			for _, v := range in {
				f.lastInputs = append(f.lastInputs, v.(string))
			}
		}

		resp := embedResponse{Model: req.Model}
		for i := range f.lastInputs {
			vec := make([]float64, f.dims)
			vec[i%f.dims] = 2.0
			resp.Embeddings = append(resp.Embeddings, vec)
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func newTestEmbedder(t *testing.T, f *fakeOllama, cfg OllamaConfig) *OllamaEmbedder {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	cfg.Host = srv.URL
	e, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestOllamaEmbedder_ResolvesModelByBaseName(t *testing.T) {
	// Given: a server that tags its models
	f := &fakeOllama{models: []string{"llama3:8b", "nomic-embed-text:latest"}, dims: 4}

	// When: requesting the untagged model name
	e := newTestEmbedder(t, f, OllamaConfig{Model: "nomic-embed-text", Dimensions: 4})

	// Then: the installed tagged name wins
	assert.Equal(t, "nomic-embed-text:latest", e.ModelName())
	assert.True(t, e.Available(context.Background()))
}

func TestOllamaEmbedder_FallsBackThroughModelList(t *testing.T) {
	f := &fakeOllama{models: []string{"all-minilm:latest"}, dims: 4}

	e := newTestEmbedder(t, f, OllamaConfig{Model: "nomic-embed-text", Dimensions: 4})

	assert.Equal(t, "all-minilm:latest", e.ModelName())
}

func TestOllamaEmbedder_NoModelInstalled(t *testing.T) {
	f := &fakeOllama{models: []string{"llama3:8b"}, dims: 4}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no embedding model available")
}

func TestOllamaEmbedder_DetectsDimensions(t *testing.T) {
	// Given: no configured dimension
	f := &fakeOllama{models: []string{"nomic-embed-text"}, dims: 6}

	// When: constructing with the health check on
	e := newTestEmbedder(t, f, OllamaConfig{Model: "nomic-embed-text"})

	// Then: the probe embedding sets the dimension
	assert.Equal(t, 6, e.Dimensions())
}

func TestOllamaEmbedder_EmbedNormalizesVectors(t *testing.T) {
	f := &fakeOllama{models: []string{"nomic-embed-text"}, dims: 4}
	e := newTestEmbedder(t, f, OllamaConfig{Model: "nomic-embed-text", Dimensions: 4})

	vec, err := e.Embed(context.Background(), "hello notes")
	require.NoError(t, err)
	require.Len(t, vec, 4)

	var sq float64
	for _, x := range vec {
		sq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sq), 1e-5)
}

func TestOllamaEmbedder_EmbedBatchStitchesBlanks(t *testing.T) {
	// Given: a batch with blank entries mixed in
	f := &fakeOllama{models: []string{"nomic-embed-text"}, dims: 4}
	e := newTestEmbedder(t, f, OllamaConfig{Model: "nomic-embed-text", Dimensions: 4})

	// When: embedding it
	out, err := e.EmbedBatch(context.Background(), []string{"first", "  ", "third"})
	require.NoError(t, err)
	require.Len(t, out, 3)

	// Then: only the real texts hit the server, blanks are zero vectors
	assert.Equal(t, []string{"first", "third"}, f.lastInputs)
	assert.Equal(t, make([]float32, 4), out[1])
	assert.NotEqual(t, make([]float32, 4), out[0])
	assert.NotEqual(t, make([]float32, 4), out[2])
}

func TestOllamaEmbedder_RetriesServerErrors(t *testing.T) {
	// Given: a server whose first embed attempt fails with a 500
	f := &fakeOllama{models: []string{"nomic-embed-text"}, dims: 4, failEmbeds: 1}
	e := newTestEmbedder(t, f, OllamaConfig{
		Model:      "nomic-embed-text",
		Dimensions: 4,
		MaxRetries: 3,
	})
	callsAfterSetup := f.embedCalls

	// When: embedding
	vec, err := e.Embed(context.Background(), "retry me")

	// Then: the retry succeeds on the second attempt
	require.NoError(t, err)
	require.Len(t, vec, 4)
	assert.Equal(t, callsAfterSetup+2, f.embedCalls)
}

func TestOllamaEmbedder_ClosedRefusesWork(t *testing.T) {
	f := &fakeOllama{models: []string{"nomic-embed-text"}, dims: 4}
	e := newTestEmbedder(t, f, OllamaConfig{Model: "nomic-embed-text", Dimensions: 4})

	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "late")
	require.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}
