package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rizkaitbrik/maven/internal/gitignore"
)

// Names the watcher treats specially: gitignore edits and project-config
// edits become reconciliation triggers instead of ordinary file events.
const (
	gitignoreName = ".gitignore"
	dataDirName   = ".maven"
)

var configFileNames = map[string]bool{
	".maven.yaml": true,
	".maven.yml":  true,
}

// HybridWatcher feeds debounced filesystem events to the indexing
// pipeline. fsnotify is the primary mechanism; when it cannot be
// constructed (some network mounts, container volumes), a polling scanner
// takes over behind the same interface. Every raw event, from either
// source, passes through one admission pipeline: ignore rules, then
// special-event classification, then the allow/block policy, then the
// debouncer.
type HybridWatcher struct {
	fsWatcher      *fsnotify.Watcher
	pollWatcher    *PollingWatcher
	useFsnotify    bool
	debouncer      *Debouncer
	gitignore      *gitignore.Matcher
	events         chan []FileEvent
	errors         chan error
	stopCh         chan struct{}
	rootPath       string
	opts           Options
	mu             sync.RWMutex
	stopped        bool
	droppedBatches atomic.Uint64
}

// NewHybridWatcher builds a watcher with opts, falling back to polling
// when fsnotify is unavailable on this host.
func NewHybridWatcher(opts Options) (*HybridWatcher, error) {
	opts = opts.WithDefaults()

	h := &HybridWatcher{
		debouncer: NewDebouncer(opts.DebounceWindow),
		gitignore: newIgnoreMatcher(opts.IgnorePatterns),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		opts:      opts,
	}

	if fsw, err := fsnotify.NewWatcher(); err == nil {
		h.fsWatcher = fsw
		h.useFsnotify = true
	} else {
		h.pollWatcher = NewPollingWatcher(opts.PollInterval)
	}

	return h, nil
}

// newIgnoreMatcher seeds a gitignore matcher with the caller's extra
// patterns plus the index's own data directory, which must never watch
// itself.
func newIgnoreMatcher(extra []string) *gitignore.Matcher {
	m := gitignore.New()
	for _, pattern := range extra {
		m.AddPattern(pattern)
	}
	m.AddPattern(dataDirName + "/")
	m.AddPattern(dataDirName + "/**")
	return m
}

// Start watches path until ctx is cancelled or Stop is called. It blocks
// running the active source's event loop.
func (h *HybridWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	h.rootPath = absPath

	h.reloadIgnoreRules()

	go h.forwardDebouncedEvents(ctx)

	if h.useFsnotify {
		return h.runFsnotify(ctx)
	}
	return h.runPolling(ctx)
}

// runFsnotify registers every directory under the root and drains raw
// fsnotify events through the admission pipeline.
func (h *HybridWatcher) runFsnotify(ctx context.Context) error {
	if err := h.watchTree(h.rootPath); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		case <-h.stopCh:
			return nil
		case event, ok := <-h.fsWatcher.Events:
			if !ok {
				return nil
			}
			h.translateFsnotify(event)
		case err, ok := <-h.fsWatcher.Errors:
			if !ok {
				return nil
			}
			h.emitError(err)
		}
	}
}

// runPolling drains the polling scanner's already-translated events
// through the same admission pipeline fsnotify events take.
func (h *HybridWatcher) runPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case event, ok := <-h.pollWatcher.Events():
				if !ok {
					return
				}
				h.admit(event)
			case err, ok := <-h.pollWatcher.Errors():
				if !ok {
					return
				}
				h.emitError(err)
			}
		}
	}()

	return h.pollWatcher.Start(ctx, h.rootPath)
}

// translateFsnotify maps a raw fsnotify event onto a FileEvent and feeds
// it to the admission pipeline. A rename is decomposed at this boundary:
// fsnotify's Rename fires for the old name only (the new name shows up
// as an independent Create), so the old name becomes a delete.
func (h *HybridWatcher) translateFsnotify(event fsnotify.Event) {
	relPath, err := filepath.Rel(h.rootPath, event.Name)
	if err != nil {
		relPath = event.Name
	}

	isDir := false
	if info, statErr := os.Stat(event.Name); statErr == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir {
			_ = h.fsWatcher.Add(event.Name) // new subtree joins the watch set
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpDelete // old name of the rename pair
	default:
		return // chmod and friends carry no content change
	}

	h.admit(FileEvent{
		Path:      relPath,
		Operation: op,
		IsDir:     isDir,
		Timestamp: time.Now(),
	})
}

// admit is the single admission pipeline both event sources share:
// ignore rules first, then special-event classification, then the
// allow/block policy for creates and modifies, then the debouncer.
// Deletes skip the policy check — a vanished path cannot be re-checked.
func (h *HybridWatcher) admit(ev FileEvent) {
	if h.ignored(ev.Path, ev.IsDir) {
		return
	}

	base := filepath.Base(ev.Path)
	switch {
	case base == gitignoreName:
		h.reloadIgnoreRules()
		h.debouncer.Add(FileEvent{Path: ev.Path, Operation: OpGitignoreChange, Timestamp: time.Now()})
		return
	case configFileNames[base]:
		h.debouncer.Add(FileEvent{Path: ev.Path, Operation: OpConfigChange, Timestamp: time.Now()})
		return
	}

	if h.opts.Policy != nil && !ev.IsDir &&
		(ev.Operation == OpCreate || ev.Operation == OpModify) &&
		!h.opts.Policy.Admitted(filepath.Join(h.rootPath, ev.Path)) {
		return
	}

	h.debouncer.Add(ev)
}

// forwardDebouncedEvents moves flushed batches from the debouncer to the
// output channel.
func (h *HybridWatcher) forwardDebouncedEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case events, ok := <-h.debouncer.Output():
			if !ok {
				return
			}
			if len(events) == 0 {
				continue
			}
			h.emitEvents(events)
		}
	}
}

// watchTree registers root and every non-ignored directory under it.
func (h *HybridWatcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}

		relPath, _ := filepath.Rel(h.rootPath, path)
		if relPath == "." {
			return h.fsWatcher.Add(path)
		}
		if h.ignored(relPath, true) {
			return filepath.SkipDir
		}
		return h.fsWatcher.Add(path)
	})
}

// ignored reports whether relPath is filtered out before admission: the
// VCS and index data directories always, then whatever the gitignore
// matcher (root and nested .gitignore files plus extra patterns) says.
func (h *HybridWatcher) ignored(relPath string, isDir bool) bool {
	if relPath == "." || relPath == "" {
		return true
	}
	for _, always := range []string{".git", dataDirName} {
		if relPath == always || strings.HasPrefix(relPath, always+"/") || strings.HasPrefix(relPath, always+string(filepath.Separator)) {
			return true
		}
	}

	h.mu.RLock() // the matcher is swapped wholesale on .gitignore edits
	defer h.mu.RUnlock()
	return h.gitignore.Match(relPath, isDir)
}

// reloadIgnoreRules rebuilds the gitignore matcher from the root
// .gitignore and every nested one, replacing the old matcher in one
// swap.
func (h *HybridWatcher) reloadIgnoreRules() {
	fresh := newIgnoreMatcher(h.opts.IgnorePatterns)

	rootIgnore := filepath.Join(h.rootPath, gitignoreName)
	if err := fresh.AddFromFile(rootIgnore, ""); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load root .gitignore",
			slog.String("path", rootIgnore),
			slog.String("error", err.Error()))
	}

	_ = filepath.WalkDir(h.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("skipping directory in gitignore scan",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil
		}
		if d.IsDir() || d.Name() != gitignoreName || path == rootIgnore {
			return nil
		}
		base, _ := filepath.Rel(h.rootPath, filepath.Dir(path))
		if err := fresh.AddFromFile(path, base); err != nil {
			slog.Warn("failed to read nested .gitignore",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		return nil
	})

	h.mu.Lock()
	h.gitignore = fresh
	h.mu.Unlock()
}

// emitEvents hands a flushed batch to the consumer, dropping it when the
// buffer is full rather than stalling the flush path.
func (h *HybridWatcher) emitEvents(events []FileEvent) {
	h.mu.RLock()
	stopped := h.stopped
	h.mu.RUnlock()
	if stopped {
		return
	}

	select {
	case h.events <- events:
	default:
		count := h.droppedBatches.Add(1)
		slog.Warn("event buffer full, dropping batch",
			slog.Int("batch_size", len(events)),
			slog.Uint64("total_dropped_batches", count),
		)
	}
}

// DroppedBatches counts batches lost to a full output buffer.
func (h *HybridWatcher) DroppedBatches() uint64 {
	return h.droppedBatches.Load()
}

func (h *HybridWatcher) emitError(err error) {
	h.mu.RLock()
	stopped := h.stopped
	h.mu.RUnlock()
	if stopped {
		return
	}

	select {
	case h.errors <- err:
	default:
	}
}

// Stop ends the watch and releases the underlying source. Safe to call
// more than once.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil
	}
	h.stopped = true
	close(h.stopCh)

	h.debouncer.Stop()
	if h.fsWatcher != nil {
		_ = h.fsWatcher.Close()
	}
	if h.pollWatcher != nil {
		_ = h.pollWatcher.Stop()
	}

	close(h.events)
	close(h.errors)
	return nil
}

// Events returns the channel of debounced event batches.
func (h *HybridWatcher) Events() <-chan []FileEvent {
	return h.events
}

// Errors returns the channel of non-fatal watcher errors.
func (h *HybridWatcher) Errors() <-chan error {
	return h.errors
}

// IsHealthy reports whether the watcher is still running.
func (h *HybridWatcher) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.stopped
}

// WatcherType names the active source, "fsnotify" or "polling".
func (h *HybridWatcher) WatcherType() string {
	if h.useFsnotify {
		return "fsnotify"
	}
	return "polling"
}

// RootPath returns the watched root.
func (h *HybridWatcher) RootPath() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rootPath
}
