package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid file events to prevent index thrashing.
// Admitted events feed into two sets, pendingUpdate and
// pendingDelete, keyed by path. Every Add (re)arms a single shared timer
// at the debounce window from now; on firing, the flush takes a snapshot
// of both sets, clears them, and emits deletes first — but only for paths
// not also present in the update set. Net effect: an update always wins
// over a delete queued in the same debounce window, regardless of which
// arrived first.
type Debouncer struct {
	window        time.Duration
	mu            sync.Mutex
	pendingUpdate map[string]FileEvent
	pendingDelete map[string]FileEvent
	output        chan []FileEvent
	timer         *time.Timer
	stopCh        chan struct{}
	stopped       bool
}

// NewDebouncer creates a new debouncer with the given window duration.
// Events are coalesced within this window before being emitted.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:        window,
		pendingUpdate: make(map[string]FileEvent),
		pendingDelete: make(map[string]FileEvent),
		output:        make(chan []FileEvent, 10),
		stopCh:        make(chan struct{}),
	}
}

// Add adds an admitted event to the pending sets, keyed by path. A DELETE
// lands in pendingDelete; every other operation (CREATE, MODIFY, and the
// ambient gitignore/config-change events) lands in pendingUpdate. A second
// event for the same path in the same set simply replaces the first —
// within one window a path collapses to at most one update or one delete.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if event.Operation == OpDelete {
		d.pendingDelete[event.Path] = event
	} else {
		d.pendingUpdate[event.Path] = event
	}

	d.scheduleFlush()
}

// scheduleFlush (re)arms the single shared timer at window from now.
func (d *Debouncer) scheduleFlush() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush snapshots and clears both pending sets, then emits deletes not
// superseded by an update followed by all updates. Concurrent Adds during
// a flush land in the fresh sets and drive the next timer.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || (len(d.pendingUpdate) == 0 && len(d.pendingDelete) == 0) {
		return
	}

	updates := d.pendingUpdate
	deletes := d.pendingDelete
	d.pendingUpdate = make(map[string]FileEvent)
	d.pendingDelete = make(map[string]FileEvent)

	events := make([]FileEvent, 0, len(updates)+len(deletes))
	for path, ev := range deletes {
		if _, superseded := updates[path]; superseded {
			continue
		}
		events = append(events, ev)
	}
	for _, ev := range updates {
		events = append(events, ev)
	}

	select {
	case d.output <- events:
	default:
		slog.Warn("debouncer output full, dropping batch",
			slog.Int("batch_size", len(events)),
		)
	}
}

// Output returns the channel of debounced events.
// Events are emitted as batches after the debounce window.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop stops the debouncer and closes the output channel.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.stopCh)
	close(d.output)
}
