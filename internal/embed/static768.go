package embed

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Static768Dimensions matches the common 768-dim remote embedding
// models, so the hash fallback can stand in for one against an existing
// index without forcing a rebuild.
const Static768Dimensions = 768

// StaticEmbedder768 is the hash-based fallback at 768 dimensions: the
// same token/n-gram hashing as StaticEmbedder, widened to drop into an
// index a 768-dim model built. Semantic quality is what hashing buys —
// low — but dimensionality stays compatible.
type StaticEmbedder768 struct {
	mu     sync.RWMutex
	closed bool
}

// NewStaticEmbedder768 returns a ready embedder; there is nothing to
// load.
func NewStaticEmbedder768() *StaticEmbedder768 {
	return &StaticEmbedder768{}
}

// Embed hashes one text into a normalized 768-dim vector. Blank input
// yields the zero vector.
func (e *StaticEmbedder768) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, Static768Dimensions), nil
	}
	return normalizeVector(e.generateVector(trimmed)), nil
}

// generateVector buckets code-aware tokens (weight 0.7) and character
// n-grams (weight 0.3) into hashed positions, same recipe as the
// 256-dim embedder.
func (e *StaticEmbedder768) generateVector(text string) []float32 {
	vector := make([]float32, Static768Dimensions)

	tokens := filterStopWords(tokenize(text))
	for _, token := range tokens {
		vector[hashToIndex(token, Static768Dimensions)] += tokenWeight
	}

	normalized := normalizeForNgrams(text)
	for _, ngram := range extractNgrams(normalized, ngramSize) {
		vector[hashToIndex(ngram, Static768Dimensions)] += ngramWeight
	}

	return vector
}

// EmbedBatch embeds each text in turn; hashing is cheap enough that no
// real batching is needed.
func (e *StaticEmbedder768) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		results[i] = emb
	}
	return results, nil
}

// Dimensions returns 768.
func (e *StaticEmbedder768) Dimensions() int {
	return Static768Dimensions
}

// ModelName identifies this fallback in logs and stats.
func (e *StaticEmbedder768) ModelName() string {
	return "static768"
}

// Available is true until Close; hashing needs no backend.
func (e *StaticEmbedder768) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close marks the embedder unusable.
func (e *StaticEmbedder768) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// SetBatchIndex is a no-op: no backend, no thermal state.
func (e *StaticEmbedder768) SetBatchIndex(_ int) {}

// SetFinalBatch is a no-op: no backend, no thermal state.
func (e *StaticEmbedder768) SetFinalBatch(_ bool) {}
