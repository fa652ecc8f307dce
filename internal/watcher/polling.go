package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher detects changes by rescanning the tree on a fixed
// interval and diffing mtime/size snapshots. It is the fallback source
// behind HybridWatcher for hosts where fsnotify cannot run.
type PollingWatcher struct {
	interval time.Duration
	state    map[string]fileSnapshot
	events   chan FileEvent
	errors   chan error
	stopCh   chan struct{}
	mu       sync.RWMutex
	stopped  bool
	rootPath string
}

// fileSnapshot is the per-path fingerprint a diff compares: a changed
// mtime or size reads as a modification.
type fileSnapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// NewPollingWatcher builds a scanner that rescans every interval.
func NewPollingWatcher(interval time.Duration) *PollingWatcher {
	return &PollingWatcher{
		interval: interval,
		state:    make(map[string]fileSnapshot),
		events:   make(chan FileEvent, 100),
		errors:   make(chan error, 10),
		stopCh:   make(chan struct{}),
	}
}

// Start scans path once to establish the baseline, then rescans on every
// tick until ctx is cancelled or Stop is called.
func (p *PollingWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	p.rootPath = absPath

	baseline, err := p.snapshot()
	if err != nil {
		return fmt.Errorf("perform initial scan: %w", err)
	}
	p.mu.Lock()
	p.state = baseline
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.diffAndEmit(); err != nil {
				select {
				case p.errors <- err:
				default:
				}
			}
		}
	}
}

// Stop ends polling. Safe to call more than once.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns the channel of translated file events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns the channel of non-fatal scan errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}

// snapshot walks the tree and fingerprints every entry. Unreadable
// entries are simply absent from the result — they'll read as deletes if
// they were present before, and reappear once readable again.
func (p *PollingWatcher) snapshot() (map[string]fileSnapshot, error) {
	out := make(map[string]fileSnapshot)
	walkErr := filepath.WalkDir(p.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		relPath, relErr := filepath.Rel(p.rootPath, path)
		if relErr != nil || relPath == "." {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		out[relPath] = fileSnapshot{
			modTime: info.ModTime(),
			size:    info.Size(),
			isDir:   d.IsDir(),
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk %s: %w", p.rootPath, walkErr)
	}
	return out, nil
}

// diffAndEmit takes a fresh snapshot, emits create/modify events for
// paths that appeared or changed and delete events for paths that
// vanished, then adopts the fresh snapshot as the new baseline.
func (p *PollingWatcher) diffAndEmit() error {
	current, err := p.snapshot()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for relPath, snap := range current {
		prev, existed := p.state[relPath]
		switch {
		case !existed:
			p.emit(FileEvent{Path: relPath, Operation: OpCreate, IsDir: snap.isDir, Timestamp: time.Now()})
		case prev.modTime != snap.modTime || prev.size != snap.size:
			p.emit(FileEvent{Path: relPath, Operation: OpModify, IsDir: snap.isDir, Timestamp: time.Now()})
		}
	}

	for relPath, prev := range p.state {
		if _, stillThere := current[relPath]; !stillThere {
			p.emit(FileEvent{Path: relPath, Operation: OpDelete, IsDir: prev.isDir, Timestamp: time.Now()})
		}
	}

	p.state = current
	return nil
}

// emit sends without blocking; a full buffer drops the event. Caller
// holds p.mu.
func (p *PollingWatcher) emit(event FileEvent) {
	if p.stopped {
		return
	}
	select {
	case p.events <- event:
	default:
		slog.Warn("polling watcher buffer full, dropping event",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()),
		)
	}
}
