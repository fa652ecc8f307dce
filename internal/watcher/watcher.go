package watcher

import (
	"time"

	"github.com/rizkaitbrik/maven/internal/policy"
)

// Operation classifies a filesystem event as the indexing pipeline sees
// it. Renames never survive translation: the old name becomes an
// OpDelete and the new name arrives as its own OpCreate, so downstream
// consumers only ever deal in create/modify/delete plus the two
// reconciliation triggers.
type Operation int

const (
	// OpCreate is a new file or directory.
	OpCreate Operation = iota
	// OpModify is a content change to an existing file.
	OpModify
	// OpDelete is a removed file or directory, including the old name of
	// a rename.
	OpDelete
	// OpRename is emitted by no translation path; it exists so raw
	// fsnotify renames have a named value before decomposition.
	OpRename
	// OpGitignoreChange reports an edited .gitignore: the index needs a
	// reconcile to drop newly-ignored files and pick up unignored ones.
	OpGitignoreChange
	// OpConfigChange reports an edited project config file (.maven.yaml),
	// which carries the allow/block patterns a reconcile depends on.
	OpConfigChange
)

var operationNames = map[Operation]string{
	OpCreate:          "CREATE",
	OpModify:          "MODIFY",
	OpDelete:          "DELETE",
	OpRename:          "RENAME",
	OpGitignoreChange: "GITIGNORE_CHANGE",
	OpConfigChange:    "CONFIG_CHANGE",
}

func (op Operation) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// FileEvent is one translated filesystem event, path-relative to the
// watched root.
type FileEvent struct {
	// Path is relative to the watched root.
	Path string

	// OldPath carries a rename's previous name; empty otherwise.
	OldPath string

	Operation Operation

	// IsDir marks directory events, which the indexing pipeline rejects.
	IsDir bool

	// Timestamp is when the event was admitted.
	Timestamp time.Time
}

// Options tunes a watcher.
type Options struct {
	// DebounceWindow is how long after the last admitted event a flush
	// waits (index.debounce_ms).
	DebounceWindow time.Duration

	// PollInterval is the scan period when the fallback polling watcher
	// is in use.
	PollInterval time.Duration

	// EventBufferSize bounds the batched-event output channel.
	EventBufferSize int

	// IgnorePatterns supplement .gitignore with extra gitignore-syntax
	// patterns.
	IgnorePatterns []string

	// Policy applies the same allow/block rules the synchronizer and the
	// filename channel enforce, so a blocked path never reaches the
	// debouncer as a create or modify. Deletes bypass it: a vanished path
	// cannot be re-checked. Nil means no policy filtering at the watcher.
	Policy *policy.Matcher
}

// DefaultOptions returns the tuning used when a caller leaves Options
// zero-valued.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  200 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 1000,
	}
}

// WithDefaults fills zero values from DefaultOptions.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval == 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}
