package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// StaticEmbedder hashes text into a fixed-size vector. No network, no
// model download, so it always works; semantic quality is well below a
// real model, but related notes still land near each other through
// shared vocabulary and trigrams.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// englishStopWords carry little signal in prose and are dropped before
// hashing.
var englishStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "of": true, "to": true, "in": true, "on": true,
	"at": true, "for": true, "with": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "it": true, "its": true, "this": true, "that": true,
	"these": true, "those": true, "as": true, "not": true, "no": true,
}

// Word hits weigh more than trigram hits; trigrams mostly help typos
// and morphology variants overlap.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}
	return normalizeVector(e.hashVector(trimmed)), nil
}

func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// hashVector buckets word tokens and character trigrams into the
// vector with their respective weights.
func (e *StaticEmbedder) hashVector(text string) []float32 {
	vec := make([]float32, StaticDimensions)
	for _, token := range filterStopWords(tokenize(text)) {
		vec[hashToIndex(token, StaticDimensions)] += tokenWeight
	}
	for _, gram := range extractNgrams(normalizeForNgrams(text), ngramSize) {
		vec[hashToIndex(gram, StaticDimensions)] += ngramWeight
	}
	return vec
}

// tokenize lowercases and splits text into alphanumeric runs.
func tokenize(text string) []string {
	words := tokenRegex.FindAllString(text, -1)
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		tokens = append(tokens, strings.ToLower(w))
	}
	return tokens
}

func filterStopWords(tokens []string) []string {
	var kept []string
	for _, t := range tokens {
		if !englishStopWords[t] {
			kept = append(kept, t)
		}
	}
	return kept
}

// normalizeForNgrams strips everything but lowercase letters and
// digits so trigrams span word boundaries consistently.
func normalizeForNgrams(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func extractNgrams(text string, n int) []string {
	if len(text) < n {
		return []string{}
	}
	grams := make([]string, 0, len(text)-n+1)
	for i := 0; i+n <= len(text); i++ {
		grams = append(grams, text[i:i+n])
	}
	return grams
}

func hashToIndex(s string, dims int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(dims))
}

func (e *StaticEmbedder) Dimensions() int { return StaticDimensions }

func (e *StaticEmbedder) ModelName() string { return "static-hash-256" }

func (e *StaticEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
