package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rizkaitbrik/maven/internal/chunk"
	"github.com/rizkaitbrik/maven/internal/embed"
	"github.com/rizkaitbrik/maven/internal/store"
)

// IndexResult is the outcome of indexing a single document: either a
// success (possibly with zero chunks, for an empty file) or a failure
// carrying the document id and the error that aborted extraction,
// chunking, or upsert.
type IndexResult struct {
	DocID      string
	Path       string
	ChunkCount int
	Err        error
}

// Success reports whether the document was indexed without error.
func (r *IndexResult) Success() bool { return r.Err == nil }

// ScoredEntry pairs a stored Payload with its similarity score, the
// (entry, score) tuple the search surface returns.
type ScoredEntry struct {
	Entry *store.Payload
	Score float32
}

// SemanticIndexer orchestrates extract→chunk→embed→store for a single
// document and exposes a batched variant and a search surface over the
// result. It owns the id scheme (via chunk.DocID/chunk.ChunkID) and the
// delete-then-upsert protocol that keeps a document's chunk set atomic
// from a query's point of view.
type SemanticIndexer struct {
	Router   *chunk.Router
	Embedder embed.Embedder
	Store    store.VectorStore

	retry upsertRetry
}

// NewSemanticIndexer builds a SemanticIndexer over the given router,
// embedding provider, and vector store.
func NewSemanticIndexer(router *chunk.Router, embedder embed.Embedder, st store.VectorStore) *SemanticIndexer {
	return &SemanticIndexer{Router: router, Embedder: embedder, Store: st, retry: defaultUpsertRetry()}
}

// IndexFile runs the full pipeline for one path:
//
//	extraction  = router_extract(path)
//	chunks      = router_chunk(extraction.text, doc_id, extraction.metadata)
//	if chunks empty: return Success(doc_id, chunk_count=0)
//	delete_all_chunks_for(doc_id)   # idempotent upsert
//	store.upsert(docs, ids=chunk_ids)
//
// The delete-then-insert order matters: it prevents orphaned chunks from
// a prior longer version lingering after an update to a shorter one.
func (si *SemanticIndexer) IndexFile(ctx context.Context, path string) *IndexResult {
	docID := chunk.DocID(path)
	chunks, err := si.extractAndChunk(ctx, path, docID)
	if err != nil {
		return &IndexResult{DocID: docID, Path: path, Err: err}
	}
	if len(chunks) == 0 {
		return &IndexResult{DocID: docID, Path: path, ChunkCount: 0}
	}

	if err := si.deleteAllChunksFor(ctx, docID); err != nil {
		return &IndexResult{DocID: docID, Path: path, Err: err}
	}

	entries, err := si.buildEntries(ctx, chunks)
	if err != nil {
		return &IndexResult{DocID: docID, Path: path, Err: err}
	}
	err = si.retry.do(ctx, func() error { return si.Store.Upsert(ctx, entries) })
	if err != nil {
		return &IndexResult{DocID: docID, Path: path, Err: fmt.Errorf("upsert %s: %w", path, err)}
	}

	return &IndexResult{DocID: docID, Path: path, ChunkCount: len(chunks)}
}

// IndexFiles runs IndexFile over every path, collecting one IndexResult
// per document. A failure on one document never aborts the rest.
func (si *SemanticIndexer) IndexFiles(ctx context.Context, paths []string) []*IndexResult {
	results := make([]*IndexResult, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			results = append(results, &IndexResult{DocID: chunk.DocID(p), Path: p, Err: err})
			continue
		}
		results = append(results, si.IndexFile(ctx, p))
	}
	return results
}

// extractAndChunk runs the extractor+chunker pair for path and stamps
// document-level metadata onto every chunk: modified_at (for change
// detection) and indexed_at.
func (si *SemanticIndexer) extractAndChunk(ctx context.Context, path, docID string) ([]*chunk.Chunk, error) {
	extractor := si.Router.ExtractorFor(path)
	if extractor == nil {
		return nil, &chunk.ExtractError{Kind: chunk.KindUnsupported, Path: path}
	}
	extraction, err := extractor.Extract(ctx, path)
	if err != nil {
		return nil, err
	}

	modTime, statErr := fileModTimeISO(path)
	extraction.Metadata.Set("doc_id", docID)
	extraction.Metadata.Set("filename", filepath.Base(path))
	if statErr == nil {
		extraction.Metadata.Set("modified_at", modTime)
	}
	extraction.Metadata.Set("indexed_at", nowISO())

	return si.Router.RouteChunks(ctx, docID, extraction)
}

// buildEntries embeds a batch of chunks and wraps each into the
// IndexedEntry the store persists.
func (si *SemanticIndexer) buildEntries(ctx context.Context, chunks []*chunk.Chunk) ([]*store.IndexedEntry, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := si.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	entries := make([]*store.IndexedEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = &store.IndexedEntry{
			ID:       c.ChunkID,
			Vector:   vectors[i],
			Content:  c.Content,
			Metadata: map[string]any(c.Metadata),
		}
	}
	return entries, nil
}

// deleteAllChunksFor removes every chunk belonging to docID via the
// store's metadata-filter delete. DeleteByFilter is always present on
// store.VectorStore, so an enumerate-then-delete-by-id fallback would
// only matter for a hypothetical store that lacks it.
func (si *SemanticIndexer) deleteAllChunksFor(ctx context.Context, docID string) error {
	return si.Store.DeleteByFilter(ctx, store.Filter{"doc_id": docID})
}

// DeleteFile removes every chunk for path's document.
func (si *SemanticIndexer) DeleteFile(ctx context.Context, path string) error {
	return si.deleteAllChunksFor(ctx, chunk.DocID(path))
}

// ClearIndex empties the store entirely. VectorStore could expose a
// single authoritative clear via DeleteByFilter with an empty filter
// matching everything, but since stores in this package are never
// multi-tenant, a simpler enumerate+delete-by-id covers it without
// requiring DeleteByFilter to special-case an empty filter.
func (si *SemanticIndexer) ClearIndex(ctx context.Context) error {
	ids := si.Store.AllIDs()
	if len(ids) == 0 {
		return nil
	}
	return si.Store.Delete(ctx, ids)
}

// Search runs a kNN query against the store, embedding query first, and
// resolves each hit's id to its stored Payload.
func (si *SemanticIndexer) Search(ctx context.Context, query string, k int, filter store.Filter) ([]ScoredEntry, error) {
	vec, err := si.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var results []*store.VectorResult
	if len(filter) == 0 {
		results, err = si.Store.Search(ctx, vec, k)
	} else {
		results, err = si.Store.SearchWithFilter(ctx, vec, k, filter)
	}
	if err != nil {
		return nil, err
	}

	out := make([]ScoredEntry, 0, len(results))
	for _, r := range results {
		payload, err := si.Store.GetPayload(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		if payload == nil {
			continue
		}
		out = append(out, ScoredEntry{Entry: payload, Score: r.Score})
	}
	sortScoredByScoreDesc(out)
	return out, nil
}

// SearchByLanguage is sugar over Search filtering on chunk language.
func (si *SemanticIndexer) SearchByLanguage(ctx context.Context, query, language string, k int) ([]ScoredEntry, error) {
	return si.Search(ctx, query, k, store.Filter{"language": language})
}

// SearchByFile is sugar over Search filtering to a single document.
func (si *SemanticIndexer) SearchByFile(ctx context.Context, query, path string, k int) ([]ScoredEntry, error) {
	return si.Search(ctx, query, k, store.Filter{"doc_id": chunk.DocID(path)})
}

// BuildContext concatenates the top-k chunks for query into one string
// with per-section headers, for use as LLM context:
//
//	# <filename> [<language>] (<chunk_type>)
//
// separated by "\n\n---\n\n", truncated at maxChars when maxChars > 0.
func (si *SemanticIndexer) BuildContext(ctx context.Context, query string, k int, maxChars int, filter store.Filter) (string, error) {
	hits, err := si.Search(ctx, query, k, filter)
	if err != nil {
		return "", err
	}

	var sections []string
	for _, h := range hits {
		filename, _ := h.Entry.Metadata["filename"].(string)
		language, _ := h.Entry.Metadata["language"].(string)
		chunkType, _ := h.Entry.Metadata["chunk_type"].(string)
		header := fmt.Sprintf("# %s [%s] (%s)", filename, language, chunkType)
		sections = append(sections, header+"\n"+h.Entry.Content)
	}

	text := strings.Join(sections, "\n\n---\n\n")
	if maxChars > 0 && len(text) > maxChars {
		text = text[:maxChars]
	}
	return text, nil
}

// IndexStats is the user-visible stats view of one index. FileCount is
// the number of chunks, not files, under the current store shape — a
// deliberate approximation documented to consumers.
type IndexStats struct {
	FileCount     int    `json:"file_count"`
	DBPath        string `json:"db_path"`
	LastIndexedAt string `json:"last_indexed_at,omitempty"`
}

// Stats reports chunk count, the db path, and the most recent indexed_at
// across stored payloads (empty when the store is empty).
func (si *SemanticIndexer) Stats(ctx context.Context, dbPath string) (IndexStats, error) {
	stats := IndexStats{FileCount: si.Store.Count(), DBPath: dbPath}
	payloads, err := si.Store.EnumeratePayloads(ctx)
	if err != nil {
		return stats, err
	}
	for _, p := range payloads {
		// indexed_at is RFC3339 UTC, so lexical comparison orders by time.
		if ts, _ := p.Metadata["indexed_at"].(string); ts > stats.LastIndexedAt {
			stats.LastIndexedAt = ts
		}
	}
	return stats, nil
}

func fileModTimeISO(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return info.ModTime().UTC().Format(time.RFC3339), nil
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// sortScoredByScoreDesc sorts hits by descending score, used where a
// caller needs a deterministic order beyond what the store guarantees.
func sortScoredByScoreDesc(hits []ScoredEntry) {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
}
