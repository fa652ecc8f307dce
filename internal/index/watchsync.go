package index

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/rizkaitbrik/maven/internal/watcher"
)

// WatchEventResult reports what ApplyWatchEvents did with one debounced
// batch of filesystem events, mirroring SyncResult's per-document
// failure shape.
type WatchEventResult struct {
	Indexed  []string
	Deleted  []string
	Skipped  []string
	Failures map[string]error
}

// ApplyWatchEvents drives the semantic indexer from one debounced batch
// emitted by watcher.HybridWatcher. Per event:
//
//   - OpDelete is admitted unconditionally — a vanished path can't be
//     re-checked against the extractor set or the allow/block rules — and
//     deletes all of that document's chunks.
//   - Every other admitted operation (OpCreate, OpModify, and the ambient
//     OpGitignoreChange/OpConfigChange reconciliation triggers) is
//     re-indexed only if some registered extractor supports the path and
//     the policy Matcher allows it.
//
// Deletes in the batch are applied before re-indexes: the debouncer has
// already resolved per-path update-wins-over-delete precedence, so within
// the surviving batch this only sequences operation kinds, preserving a
// deletes-then-updates ordering.
func (s *Synchronizer) ApplyWatchEvents(ctx context.Context, rootPath string, events []watcher.FileEvent) *WatchEventResult {
	result := &WatchEventResult{Failures: map[string]error{}}

	var deletes, updates []watcher.FileEvent
	for _, ev := range events {
		if ev.IsDir {
			continue // directory events are rejected
		}
		switch ev.Operation {
		case watcher.OpDelete:
			deletes = append(deletes, ev)
		case watcher.OpCreate, watcher.OpModify, watcher.OpGitignoreChange, watcher.OpConfigChange:
			updates = append(updates, ev)
		default:
			// OpRename never reaches here: HybridWatcher decomposes it
			// into OpDelete(old) + OpCreate(new) before debouncing.
		}
	}

	for _, ev := range deletes {
		absPath := s.resolveWatchPath(rootPath, ev.Path)
		if err := s.indexer.DeleteFile(ctx, absPath); err != nil {
			result.Failures[absPath] = err
			continue
		}
		result.Deleted = append(result.Deleted, absPath)
	}

	for _, ev := range updates {
		absPath := s.resolveWatchPath(rootPath, ev.Path)
		if !s.admits(absPath) {
			result.Skipped = append(result.Skipped, absPath)
			continue
		}
		r := s.indexer.IndexFile(ctx, absPath)
		if !r.Success() {
			result.Failures[absPath] = r.Err
			slog.Warn("watch-driven index failed",
				slog.String("path", absPath), slog.Any("error", r.Err))
			continue
		}
		result.Indexed = append(result.Indexed, absPath)
	}

	return result
}

// resolveWatchPath turns a watcher.FileEvent's root-relative Path into the
// absolute path the rest of the pipeline (fingerprinting, the policy
// Matcher, extractor Supports checks) expects.
func (s *Synchronizer) resolveWatchPath(rootPath, relPath string) string {
	if filepath.IsAbs(relPath) {
		return relPath
	}
	return filepath.Join(rootPath, relPath)
}
