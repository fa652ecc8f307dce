package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPayloadTestStore(t *testing.T) *HNSWStore {
	t.Helper()
	cfg := DefaultVectorStoreConfig(4)
	s, err := NewHNSWStore(cfg, filepath.Join(t.TempDir(), "payloads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testEntry(id, docID string, vec []float32) *IndexedEntry {
	return &IndexedEntry{
		ID:      id,
		Vector:  vec,
		Content: "content of " + id,
		Metadata: map[string]any{
			"doc_id":   docID,
			"path":     "/src/" + docID + ".txt",
			"language": "go",
		},
	}
}

// TP01: Upsert stores both the vector and the payload
func TestHNSWStore_Upsert_StoresVectorAndPayload(t *testing.T) {
	// Given: an empty store
	s := newPayloadTestStore(t)

	// When: I upsert two entries for one document
	entries := []*IndexedEntry{
		testEntry("c1", "doc-a", []float32{1, 0, 0, 0}),
		testEntry("c2", "doc-a", []float32{0, 1, 0, 0}),
	}
	err := s.Upsert(context.Background(), entries)
	require.NoError(t, err)

	// Then: both vectors are searchable
	assert.Equal(t, 2, s.Count())
	results, err := s.Search(context.Background(), []float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ID)

	// And: each payload round-trips with content and metadata intact
	p, err := s.GetPayload(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "doc-a", p.DocID)
	assert.Equal(t, "content of c1", p.Content)
	assert.Equal(t, "/src/doc-a.txt", p.Metadata["path"])
}

// TP02: Upsert on an existing id replaces, not duplicates
func TestHNSWStore_Upsert_ReplacesExistingID(t *testing.T) {
	// Given: a store holding chunk "c1"
	s := newPayloadTestStore(t)
	require.NoError(t, s.Upsert(context.Background(),
		[]*IndexedEntry{testEntry("c1", "doc-a", []float32{1, 0, 0, 0})}))

	// When: I upsert "c1" again with new content
	updated := testEntry("c1", "doc-a", []float32{0, 0, 1, 0})
	updated.Content = "revised content"
	require.NoError(t, s.Upsert(context.Background(), []*IndexedEntry{updated}))

	// Then: count stays 1 and the payload reflects the replacement
	assert.Equal(t, 1, s.Count())
	p, err := s.GetPayload(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "revised content", p.Content)
}

// TP03: Upsert with empty input is a no-op
func TestHNSWStore_Upsert_Empty(t *testing.T) {
	s := newPayloadTestStore(t)
	require.NoError(t, s.Upsert(context.Background(), nil))
	assert.Equal(t, 0, s.Count())
}

// TP04: DeleteByFilter removes every chunk of one document and nothing else
func TestHNSWStore_DeleteByFilter_ByDocID(t *testing.T) {
	// Given: two documents with two chunks each
	s := newPayloadTestStore(t)
	require.NoError(t, s.Upsert(context.Background(), []*IndexedEntry{
		testEntry("a1", "doc-a", []float32{1, 0, 0, 0}),
		testEntry("a2", "doc-a", []float32{0, 1, 0, 0}),
		testEntry("b1", "doc-b", []float32{0, 0, 1, 0}),
		testEntry("b2", "doc-b", []float32{0, 0, 0, 1}),
	}))

	// When: I delete by doc_id=doc-a
	err := s.DeleteByFilter(context.Background(), Filter{"doc_id": "doc-a"})
	require.NoError(t, err)

	// Then: only doc-b's chunks remain, in both the graph and the payload table
	assert.Equal(t, 2, s.Count())
	assert.False(t, s.Contains("a1"))
	assert.False(t, s.Contains("a2"))
	assert.True(t, s.Contains("b1"))
	payloads, err := s.EnumeratePayloads(context.Background())
	require.NoError(t, err)
	require.Len(t, payloads, 2)
	for _, p := range payloads {
		assert.Equal(t, "doc-b", p.DocID)
	}
}

// TP05: DeleteByFilter is idempotent for a doc_id with no chunks
func TestHNSWStore_DeleteByFilter_NoMatches(t *testing.T) {
	s := newPayloadTestStore(t)
	require.NoError(t, s.Upsert(context.Background(),
		[]*IndexedEntry{testEntry("a1", "doc-a", []float32{1, 0, 0, 0})}))

	err := s.DeleteByFilter(context.Background(), Filter{"doc_id": "doc-x"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Count())
}

// TP06: DeleteByFilter rejects an empty filter
func TestHNSWStore_DeleteByFilter_EmptyFilterRejected(t *testing.T) {
	s := newPayloadTestStore(t)
	err := s.DeleteByFilter(context.Background(), nil)
	require.Error(t, err)
}

// TP07: DeleteByFilter matches on metadata keys, not just doc_id
func TestHNSWStore_DeleteByFilter_ByMetadataKey(t *testing.T) {
	// Given: chunks in two languages
	s := newPayloadTestStore(t)
	goEntry := testEntry("g1", "doc-a", []float32{1, 0, 0, 0})
	pyEntry := testEntry("p1", "doc-b", []float32{0, 1, 0, 0})
	pyEntry.Metadata["language"] = "python"
	require.NoError(t, s.Upsert(context.Background(), []*IndexedEntry{goEntry, pyEntry}))

	// When: I delete by language=python
	require.NoError(t, s.DeleteByFilter(context.Background(), Filter{"language": "python"}))

	// Then: only the go chunk survives
	assert.True(t, s.Contains("g1"))
	assert.False(t, s.Contains("p1"))
}

// TP08: SearchWithFilter restricts results to matching payloads
func TestHNSWStore_SearchWithFilter_RestrictsByDocID(t *testing.T) {
	// Given: close vectors split across two documents
	s := newPayloadTestStore(t)
	require.NoError(t, s.Upsert(context.Background(), []*IndexedEntry{
		testEntry("a1", "doc-a", []float32{1, 0, 0, 0}),
		testEntry("b1", "doc-b", []float32{0.99, 0.01, 0, 0}),
	}))

	// When: I search with a doc-b filter and a query nearest to a1
	results, err := s.SearchWithFilter(context.Background(),
		[]float32{1, 0, 0, 0}, 5, Filter{"doc_id": "doc-b"})
	require.NoError(t, err)

	// Then: only doc-b's chunk comes back, despite a1 being closer
	require.Len(t, results, 1)
	assert.Equal(t, "b1", results[0].ID)
}

// TP09: SearchWithFilter with an empty filter degrades to plain Search
func TestHNSWStore_SearchWithFilter_EmptyFilter(t *testing.T) {
	s := newPayloadTestStore(t)
	require.NoError(t, s.Upsert(context.Background(), []*IndexedEntry{
		testEntry("a1", "doc-a", []float32{1, 0, 0, 0}),
		testEntry("b1", "doc-b", []float32{0, 1, 0, 0}),
	}))

	results, err := s.SearchWithFilter(context.Background(), []float32{1, 0, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a1", results[0].ID)
}

// TP10: SearchWithFilter caps results at k even when more match
func TestHNSWStore_SearchWithFilter_HonorsK(t *testing.T) {
	s := newPayloadTestStore(t)
	var entries []*IndexedEntry
	for i := 0; i < 6; i++ {
		entries = append(entries, testEntry(
			fmt.Sprintf("c%d", i), "doc-a",
			[]float32{1, float32(i) * 0.01, 0, 0}))
	}
	require.NoError(t, s.Upsert(context.Background(), entries))

	results, err := s.SearchWithFilter(context.Background(),
		[]float32{1, 0, 0, 0}, 3, Filter{"doc_id": "doc-a"})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

// TP11: EnumeratePayloads returns every stored payload
func TestHNSWStore_EnumeratePayloads(t *testing.T) {
	// Given: three chunks across two documents
	s := newPayloadTestStore(t)
	require.NoError(t, s.Upsert(context.Background(), []*IndexedEntry{
		testEntry("a1", "doc-a", []float32{1, 0, 0, 0}),
		testEntry("a2", "doc-a", []float32{0, 1, 0, 0}),
		testEntry("b1", "doc-b", []float32{0, 0, 1, 0}),
	}))

	// When: I enumerate
	payloads, err := s.EnumeratePayloads(context.Background())
	require.NoError(t, err)

	// Then: all three come back with ids, doc ids, and metadata
	require.Len(t, payloads, 3)
	byID := make(map[string]*Payload, len(payloads))
	for _, p := range payloads {
		byID[p.ID] = p
	}
	require.Contains(t, byID, "a2")
	assert.Equal(t, "doc-a", byID["a2"].DocID)
	assert.Equal(t, "/src/doc-a.txt", byID["a2"].Metadata["path"])
}

// TP12: EnumeratePayloads on an empty store returns empty, not nil
func TestHNSWStore_EnumeratePayloads_Empty(t *testing.T) {
	s := newPayloadTestStore(t)
	payloads, err := s.EnumeratePayloads(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, payloads)
	assert.Empty(t, payloads)
}

// TP13: GetPayload returns nil for an unknown id
func TestHNSWStore_GetPayload_Missing(t *testing.T) {
	s := newPayloadTestStore(t)
	p, err := s.GetPayload(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, p)
}

// TP14: Delete by id also removes the payload row
func TestHNSWStore_Delete_RemovesPayload(t *testing.T) {
	// Given: one stored entry
	s := newPayloadTestStore(t)
	require.NoError(t, s.Upsert(context.Background(),
		[]*IndexedEntry{testEntry("c1", "doc-a", []float32{1, 0, 0, 0})}))

	// When: I delete it by id
	require.NoError(t, s.Delete(context.Background(), []string{"c1"}))

	// Then: the payload is gone too
	p, err := s.GetPayload(context.Background(), "c1")
	require.NoError(t, err)
	assert.Nil(t, p)
	payloads, err := s.EnumeratePayloads(context.Background())
	require.NoError(t, err)
	assert.Empty(t, payloads)
}

// TP15: a vectors-only store (no payload path) degrades gracefully
func TestHNSWStore_NoPayloadDB(t *testing.T) {
	// Given: a store constructed without a payload database
	cfg := DefaultVectorStoreConfig(4)
	s, err := NewHNSWStore(cfg, "")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	// When: I upsert and read back
	require.NoError(t, s.Upsert(context.Background(),
		[]*IndexedEntry{testEntry("c1", "doc-a", []float32{1, 0, 0, 0})}))

	// Then: the vector side works; the payload side is empty
	assert.Equal(t, 1, s.Count())
	p, err := s.GetPayload(context.Background(), "c1")
	require.NoError(t, err)
	assert.Nil(t, p)
	payloads, err := s.EnumeratePayloads(context.Background())
	require.NoError(t, err)
	assert.Empty(t, payloads)
}

// TP16: Filter.Matches applies every key as an AND condition
func TestFilter_Matches(t *testing.T) {
	p := &Payload{
		ID:    "c1",
		DocID: "doc-a",
		Metadata: map[string]any{
			"language": "go",
			"path":     "/src/doc-a.txt",
		},
	}

	assert.True(t, Filter{}.Matches(p))
	assert.True(t, Filter{"doc_id": "doc-a"}.Matches(p))
	assert.True(t, Filter{"doc_id": "doc-a", "language": "go"}.Matches(p))
	assert.False(t, Filter{"doc_id": "doc-b"}.Matches(p))
	assert.False(t, Filter{"doc_id": "doc-a", "language": "python"}.Matches(p))
	assert.False(t, Filter{"missing": "x"}.Matches(p))
}
