// Package index owns the searchable index: the HNSW vector store, the
// Bleve keyword index, and the chunk contents, guarded by a single
// coordinator so a search always observes a consistent snapshot.
// Every successful write bumps a monotonic epoch that the query cache
// uses for staleness checks.
package index

import (
	"sort"

	"github.com/secondbrain-labs/brainmcp/internal/store"
)

// DefaultRRFConstant is the standard reciprocal-rank-fusion smoothing
// parameter; k=60 is the widely validated default.
const DefaultRRFConstant = 60

// Weights splits relevance between the two search sources.
type Weights struct {
	Vector  float64
	Keyword float64
}

// DefaultWeights favors semantic similarity, with keyword matching as
// a corrective for exact terms.
func DefaultWeights() Weights {
	return Weights{Vector: 0.8, Keyword: 0.2}
}

// fusedHit is one chunk after fusing the two ranked lists.
type fusedHit struct {
	chunkID      string
	score        float64 // Normalized RRF score (0-1)
	vecScore     float64
	vecRank      int // 1-indexed, 0 if absent
	keywordScore float64
	keywordRank  int // 1-indexed, 0 if absent
	inBothLists  bool
	matchedTerms []string
}

// fuse combines vector and keyword results with weighted reciprocal
// rank fusion: score(d) = Σ weight_i / (k + rank_i). A document absent
// from one list contributes that source at rank max(len)+1.
func fuse(vec []*store.VectorResult, kw []*store.KeywordResult, w Weights, k int) []*fusedHit {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	if len(vec) == 0 && len(kw) == 0 {
		return []*fusedHit{}
	}

	hits := make(map[string]*fusedHit, len(vec)+len(kw))
	get := func(id string) *fusedHit {
		if h, ok := hits[id]; ok {
			return h
		}
		h := &fusedHit{chunkID: id}
		hits[id] = h
		return h
	}

	for rank, r := range vec {
		h := get(r.ID)
		h.vecScore = float64(r.Score)
		h.vecRank = rank + 1
		h.score += w.Vector / float64(k+rank+1)
	}

	for rank, r := range kw {
		h := get(r.ID)
		h.keywordScore = r.Score
		h.keywordRank = rank + 1
		h.matchedTerms = r.MatchedTerms
		h.score += w.Keyword / float64(k+rank+1)
		if h.vecRank > 0 {
			h.inBothLists = true
		}
	}

	missingRank := len(vec) + 1
	if len(kw) >= len(vec) {
		missingRank = len(kw) + 1
	}
	for _, h := range hits {
		if h.vecRank == 0 && h.keywordRank > 0 {
			h.score += w.Vector / float64(k+missingRank)
		}
		if h.keywordRank == 0 && h.vecRank > 0 {
			h.score += w.Keyword / float64(k+missingRank)
		}
	}

	out := make([]*fusedHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.inBothLists != b.inBothLists {
			return a.inBothLists
		}
		if a.keywordScore != b.keywordScore {
			return a.keywordScore > b.keywordScore
		}
		return a.chunkID < b.chunkID
	})

	if max := out[0].score; max > 0 {
		for _, h := range out {
			h.score /= max
		}
	}

	return out
}
