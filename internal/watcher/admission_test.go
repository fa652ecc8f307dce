package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rizkaitbrik/maven/internal/policy"
)

func newAdmissionWatcher(t *testing.T, matcher *policy.Matcher) *HybridWatcher {
	t.Helper()
	w, err := NewHybridWatcher(Options{
		DebounceWindow: 10 * time.Millisecond,
		Policy:         matcher,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })
	w.rootPath = t.TempDir()
	return w
}

func drainBatch(t *testing.T, w *HybridWatcher) map[string]Operation {
	t.Helper()
	select {
	case batch := <-w.debouncer.Output():
		ops := make(map[string]Operation, len(batch))
		for _, ev := range batch {
			ops[ev.Path] = ev.Operation
		}
		return ops
	case <-time.After(time.Second):
		t.Fatal("no debounced batch arrived")
		return nil
	}
}

// A blocked path never reaches the debouncer as a create or modify, but
// its delete still does: a vanished path can't be re-checked.
func TestHybridWatcher_Admit_PolicyFiltersCreatesNotDeletes(t *testing.T) {
	w := newAdmissionWatcher(t, policy.New(nil, []string{"**/*.log"}))

	w.admit(FileEvent{Path: "app.log", Operation: OpCreate})
	w.admit(FileEvent{Path: "notes.txt", Operation: OpCreate})
	w.admit(FileEvent{Path: "old.log", Operation: OpDelete})

	ops := drainBatch(t, w)
	assert.NotContains(t, ops, "app.log")
	assert.Equal(t, OpCreate, ops["notes.txt"])
	assert.Equal(t, OpDelete, ops["old.log"])
}

// Project-config edits classify as reconciliation triggers, not file
// events.
func TestHybridWatcher_Admit_ConfigEditBecomesReconcileTrigger(t *testing.T) {
	w := newAdmissionWatcher(t, nil)

	w.admit(FileEvent{Path: ".maven.yaml", Operation: OpModify})

	ops := drainBatch(t, w)
	assert.Equal(t, OpConfigChange, ops[".maven.yaml"])
}

// Gitignore edits reload the ignore rules and classify as their own
// trigger.
func TestHybridWatcher_Admit_GitignoreEditReloadsAndTriggers(t *testing.T) {
	w := newAdmissionWatcher(t, nil)

	w.admit(FileEvent{Path: ".gitignore", Operation: OpModify})

	ops := drainBatch(t, w)
	assert.Equal(t, OpGitignoreChange, ops[".gitignore"])
}

// The index's own data directory is invisible to the watcher.
func TestHybridWatcher_Admit_DataDirAlwaysIgnored(t *testing.T) {
	w := newAdmissionWatcher(t, nil)

	w.admit(FileEvent{Path: ".maven/payloads.db", Operation: OpModify})
	w.admit(FileEvent{Path: "kept.txt", Operation: OpCreate})

	ops := drainBatch(t, w)
	assert.NotContains(t, ops, ".maven/payloads.db")
	assert.Contains(t, ops, "kept.txt")
}
