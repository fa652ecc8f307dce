package search

import (
	"sort"

	"github.com/rizkaitbrik/maven/internal/store"
)

// FusedResult is a single chunk id after combining the BM25 and vector
// channels.
type FusedResult struct {
	ChunkID      string   // Chunk identifier
	Score        float64  // Highest per-channel weighted score
	BM25Score    float64  // Original BM25 score (preserved)
	BM25Rank     int      // Position in BM25 list (1-indexed, 0 if absent)
	VecScore     float64  // Original vector similarity score (preserved)
	VecRank      int      // Position in vector list (1-indexed, 0 if absent)
	InBothLists  bool     // Document appeared in both result lists
	MatchedTerms []string // BM25 matched terms (for highlighting)
}

// WeightedFusion combines BM25 and vector results the same way
// internal/hybrid combines its filename and content channels: weight each
// channel's own score and keep, per chunk, the higher of the two weighted
// contributions. There is no rank-position smoothing constant to tune.
type WeightedFusion struct{}

// NewWeightedFusion returns a WeightedFusion.
func NewWeightedFusion() *WeightedFusion {
	return &WeightedFusion{}
}

// Fuse combines BM25 and vector results into one ranked, deduplicated
// list. Results are sorted by Score (desc) → InBothLists (true first) →
// BM25Score (desc) → ChunkID (asc) for a deterministic order among ties.
func (f *WeightedFusion) Fuse(
	bm25 []*store.BM25Result,
	vec []*store.VectorResult,
	weights Weights,
) []*FusedResult {
	if len(bm25) == 0 && len(vec) == 0 {
		return []*FusedResult{}
	}

	capacity := len(bm25) + len(vec)
	scores := make(map[string]*FusedResult, capacity)

	for rank, r := range bm25 {
		result := f.getOrCreate(scores, r.DocID)
		result.BM25Score = r.Score
		result.BM25Rank = rank + 1
		result.MatchedTerms = r.MatchedTerms
		if weighted := weights.BM25 * r.Score; weighted > result.Score {
			result.Score = weighted
		}
	}

	for rank, r := range vec {
		result := f.getOrCreate(scores, r.ID)
		result.VecScore = float64(r.Score)
		result.VecRank = rank + 1
		if result.BM25Rank > 0 {
			result.InBothLists = true
		}
		if weighted := weights.Semantic * float64(r.Score); weighted > result.Score {
			result.Score = weighted
		}
	}

	return f.toSortedSlice(scores)
}

func (f *WeightedFusion) getOrCreate(m map[string]*FusedResult, id string) *FusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedResult{ChunkID: id}
	m[id] = r
	return r
}

func (f *WeightedFusion) toSortedSlice(m map[string]*FusedResult) []*FusedResult {
	results := make([]*FusedResult, 0, len(m))
	for _, r := range m {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		return f.compare(results[i], results[j])
	})
	return results
}

// compare reports whether a should rank before b.
func (f *WeightedFusion) compare(a, b *FusedResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}
	if a.BM25Score != b.BM25Score {
		return a.BM25Score > b.BM25Score
	}
	return a.ChunkID < b.ChunkID
}
