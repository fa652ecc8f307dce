package index

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rizkaitbrik/maven/internal/chunk"
	"github.com/rizkaitbrik/maven/internal/policy"
	"github.com/rizkaitbrik/maven/internal/store"
)

// ProgressFunc reports sync progress after each batch: processed/total
// files and a short status message.
type ProgressFunc func(processed, total int, message string)

// SyncConfig configures one Synchronizer.Sync call.
type SyncConfig struct {
	// Root is the directory to reconcile.
	Root string
	// Recursive walks subdirectories when true; otherwise only Root's
	// direct children are considered.
	Recursive bool
	// BatchSize bounds how many documents are processed between bulk
	// upserts and progress callbacks. Defaults to 50 when <= 0.
	BatchSize int
	// ForceRebuild re-indexes every current file regardless of mtime.
	ForceRebuild bool
	// Progress is called after every batch, and is optional.
	Progress ProgressFunc
}

// SyncResult reports what a Sync call did, plus a per-document failure
// map holding a structured error record for each document that failed.
type SyncResult struct {
	Added    []string
	Updated  []string
	Deleted  []string
	Skipped  []string
	Failures map[string]error
}

// Synchronizer reconciles a directory tree against a VectorStore. It
// must stay correct under concurrent filesystem mutation and leave the
// index internally consistent if the process dies mid-run. It sequences
// delete-then-chunk per document and never splits one document's chunks
// across batches, but bulk-upserts once per batch rather than once per
// document.
type Synchronizer struct {
	indexer *SemanticIndexer
	matcher *policy.Matcher
}

// NewSynchronizer builds a Synchronizer over a SemanticIndexer (which
// supplies the extractor/chunker/embedder/store pipeline) and a policy
// Matcher (allow/block rules).
func NewSynchronizer(indexer *SemanticIndexer, matcher *policy.Matcher) *Synchronizer {
	return &Synchronizer{indexer: indexer, matcher: matcher}
}

type fsEntry struct {
	absPath string
	modTime string // ISO-8601; empty if unreadable
}

// Sync brings indexer.Store into agreement with the filesystem under
// cfg.Root via a four-step pass: enumerate filesystem, enumerate index,
// classify into to_delete/to_add/to_update, apply in batches.
func (s *Synchronizer) Sync(ctx context.Context, cfg SyncConfig) (*SyncResult, error) {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	current, err := s.enumerateFilesystem(cfg.Root, cfg.Recursive)
	if err != nil {
		return nil, fmt.Errorf("enumerate filesystem: %w", err)
	}
	indexed, err := s.enumerateIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate index: %w", err)
	}

	toDelete, toAdd, toUpdate, skipped := classify(current, indexed, cfg.ForceRebuild)

	result := &SyncResult{Failures: map[string]error{}, Skipped: skipped}

	// Step 4a: deletes for vanished files.
	for _, p := range toDelete {
		if err := s.indexer.DeleteFile(ctx, p); err != nil {
			result.Failures[p] = err
			continue
		}
		result.Deleted = append(result.Deleted, p)
	}

	// Step 4b: process to_add ∪ to_update in batches.
	toProcess := make([]string, 0, len(toAdd)+len(toUpdate))
	toProcess = append(toProcess, toAdd...)
	toProcess = append(toProcess, toUpdate...)
	sort.Strings(toProcess)

	updateSet := make(map[string]bool, len(toUpdate))
	for _, p := range toUpdate {
		updateSet[p] = true
	}

	total := len(toProcess)
	for start := 0; start < total; start += batchSize {
		if err := ctx.Err(); err != nil {
			return result, err // cancellation is checked at batch boundaries
		}
		end := start + batchSize
		if end > total {
			end = total
		}
		s.applyBatch(ctx, toProcess[start:end], updateSet, cfg.ForceRebuild, result)

		if cfg.Progress != nil {
			cfg.Progress(end, total, fmt.Sprintf("indexed %d/%d", end, total))
		}
	}

	return result, nil
}

// applyBatch handles one batch of to_add/to_update paths: per document,
// delete-then-extract-then-chunk; then one bulk upsert across the whole
// batch. A document's chunks are never split across batches, and the
// per-document delete always precedes its own insert even though the
// insert is deferred to the batch-wide upsert.
func (s *Synchronizer) applyBatch(ctx context.Context, batch []string, updateSet map[string]bool, force bool, result *SyncResult) {
	var entries []*store.IndexedEntry

	for _, p := range batch {
		isUpdate := updateSet[p] || force
		docID := chunk.DocID(p)

		if isUpdate {
			if err := s.indexer.deleteAllChunksFor(ctx, docID); err != nil {
				result.Failures[p] = err
				continue
			}
		}

		chunks, err := s.indexer.extractAndChunk(ctx, p, docID)
		if err != nil {
			result.Failures[p] = err
			continue
		}
		if len(chunks) > 0 {
			built, err := s.indexer.buildEntries(ctx, chunks)
			if err != nil {
				result.Failures[p] = err
				continue
			}
			entries = append(entries, built...)
		}
		// A zero-chunk file is a recorded success: no entries enter the
		// store, so it will be re-attempted next sync, which is acceptable.

		if isUpdate {
			result.Updated = append(result.Updated, p)
		} else {
			result.Added = append(result.Added, p)
		}
	}

	if len(entries) == 0 {
		return
	}
	err := s.indexer.retry.do(ctx, func() error { return s.indexer.Store.Upsert(ctx, entries) })
	if err != nil {
		// A batch-wide store failure fails every document in the batch:
		// store errors at batch granularity fail the whole batch and are
		// reported in results; the next batch proceeds regardless.
		for _, p := range batch {
			if _, already := result.Failures[p]; !already {
				result.Failures[p] = err
			}
		}
	}
}

// enumerateFilesystem walks Root (recursively if requested), keeping
// files an extractor supports and the policy Matcher admits.
func (s *Synchronizer) enumerateFilesystem(root string, recursive bool) (map[string]fsEntry, error) {
	current := make(map[string]fsEntry)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entry: skip, don't abort the whole walk
		}
		if d.IsDir() {
			if !recursive && path != absRoot {
				return fs.SkipDir
			}
			return nil
		}
		s.considerFile(path, current)
		return nil
	}

	if recursive {
		if err := filepath.WalkDir(absRoot, walkFn); err != nil {
			return nil, err
		}
	} else {
		entries, err := os.ReadDir(absRoot)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			s.considerFile(filepath.Join(absRoot, e.Name()), current)
		}
	}

	return current, nil
}

// admits reports whether path is a candidate for indexing: some
// registered extractor supports it and the policy Matcher allows it and
// doesn't block it.
func (s *Synchronizer) admits(path string) bool {
	if s.indexer.Router.ExtractorFor(path) == nil {
		return false
	}
	return s.matcher.Admitted(path)
}

func (s *Synchronizer) considerFile(path string, current map[string]fsEntry) {
	if !s.admits(path) {
		return
	}
	modTime, err := fileModTimeISO(path)
	if err != nil {
		// Unreadable mtime still participates: forced into to_update by
		// classify's empty-string comparison.
		modTime = ""
	}
	current[path] = fsEntry{absPath: path, modTime: modTime}
}

// enumerateIndex reads every stored payload's path and modified_at.
// Multiple chunks share one path; any one's modified_at is
// representative since all of a document's chunks carry the same value.
func (s *Synchronizer) enumerateIndex(ctx context.Context) (map[string]string, error) {
	payloads, err := s.indexer.Store.EnumeratePayloads(ctx)
	if err != nil {
		return nil, err
	}
	indexed := make(map[string]string, len(payloads))
	for _, p := range payloads {
		path, _ := p.Metadata["path"].(string)
		if path == "" {
			continue
		}
		modTime, _ := p.Metadata["modified_at"].(string)
		indexed[path] = modTime
	}
	return indexed, nil
}

// classify partitions current filesystem paths against the indexed map.
func classify(current map[string]fsEntry, indexed map[string]string, force bool) (toDelete, toAdd, toUpdate, skipped []string) {
	for p := range indexed {
		if _, ok := current[p]; !ok {
			toDelete = append(toDelete, p)
		}
	}
	for p, entry := range current {
		prevModTime, wasIndexed := indexed[p]
		switch {
		case !wasIndexed:
			toAdd = append(toAdd, p)
		case force || entry.modTime == "" || entry.modTime != prevModTime:
			toUpdate = append(toUpdate, p)
		default:
			skipped = append(skipped, p)
		}
	}
	sort.Strings(toDelete)
	sort.Strings(toAdd)
	sort.Strings(toUpdate)
	sort.Strings(skipped)
	return
}
