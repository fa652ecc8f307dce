package search

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// pathDocument is the document Bleve indexes for BleveNameIndex: just the
// absolute path, analyzed as a keyword so partial/fuzzy matching still
// works via a match query without the code-tokenizer's stop-word pruning
// (grounded on internal/store's BleveDocument, repurposed from chunk
// content to filenames).
type pathDocument struct {
	Path string `json:"path"`
}

// BleveNameIndex is a NameIndex fallback for hosts with no mdfind/locate
// binary: it maintains its own in-memory (or on-disk) filename index via
// Bleve, the same engine used for BM25 content search, repurposed here
// for filename lookup. A NameIndex implementation may be a locally
// maintained filename index rather than a system tool.
type BleveNameIndex struct {
	mu    sync.RWMutex
	index bleve.Index
}

// NewBleveNameIndex opens (or creates) a filename index at path. An empty
// path yields an in-memory-only index, matching NewBleveBM25Index's
// in-memory-for-testing convention.
func NewBleveNameIndex(path string) (*BleveNameIndex, error) {
	mapping := bleve.NewIndexMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, mapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open filename index: %w", err)
	}
	return &BleveNameIndex{index: idx}, nil
}

// IndexPaths adds or replaces entries for every path, keyed by the path
// itself. The directory synchronizer can call this to keep the fallback
// filename index current alongside the semantic store.
func (b *BleveNameIndex) IndexPaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.index.NewBatch()
	for _, p := range paths {
		if err := batch.Index(p, pathDocument{Path: p}); err != nil {
			return fmt.Errorf("index path %s: %w", p, err)
		}
	}
	return b.index.Batch(batch)
}

// DeletePaths removes entries for every path (mirrors the semantic
// indexer's delete-then-upsert discipline for files that moved or were
// removed).
func (b *BleveNameIndex) DeletePaths(paths []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.index.NewBatch()
	for _, p := range paths {
		batch.Delete(p)
	}
	return b.index.Batch(batch)
}

// FindByName implements NameIndex: a match query over the path field,
// post-filtered in Go to paths under any of scopes (empty scopes means
// unscoped, matching ExecNameIndex's convention).
func (b *BleveNameIndex) FindByName(ctx context.Context, query string, scopes []string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	q := bleve.NewMatchQuery(query)
	q.SetField("path")
	req := bleve.NewSearchRequest(q)
	req.Size = 10000

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("filename search: %w", err)
	}

	var out []string
	for _, hit := range result.Hits {
		if inScope(hit.ID, scopes) {
			out = append(out, hit.ID)
		}
	}
	return out, nil
}

func inScope(path string, scopes []string) bool {
	if len(scopes) == 0 {
		return true
	}
	for _, s := range scopes {
		if strings.HasPrefix(path, s) {
			return true
		}
	}
	return false
}

// Close releases the underlying Bleve index.
func (b *BleveNameIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}
