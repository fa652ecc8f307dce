package index

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rizkaitbrik/maven/internal/chunk"
	"github.com/rizkaitbrik/maven/internal/policy"
	"github.com/rizkaitbrik/maven/internal/watcher"
)

// TW01: a create event indexes the file
func TestApplyWatchEvents_CreateIndexesFile(t *testing.T) {
	// Given: a synchronizer and a new file under the root
	dir := t.TempDir()
	sync, si := newTestSynchronizer(t, nil)
	writeTestFile(t, dir, "notes.txt", "alpha beta gamma delta epsilon zeta eta theta")

	// When: the watcher reports a create for it
	result := sync.ApplyWatchEvents(context.Background(), dir, []watcher.FileEvent{
		{Path: "notes.txt", Operation: watcher.OpCreate},
	})

	// Then: the file is indexed and its chunks are in the store
	assert.Len(t, result.Indexed, 1)
	assert.Empty(t, result.Failures)
	assert.Greater(t, si.Store.Count(), 0)
}

// TW02: a delete event removes every chunk for the document
func TestApplyWatchEvents_DeleteRemovesChunks(t *testing.T) {
	// Given: an indexed file that has since vanished from disk
	dir := t.TempDir()
	sync, si := newTestSynchronizer(t, nil)
	path := writeTestFile(t, dir, "notes.txt", "alpha beta gamma delta epsilon zeta eta theta")
	r := si.IndexFile(context.Background(), path)
	require.True(t, r.Success())
	require.Greater(t, si.Store.Count(), 0)
	require.NoError(t, os.Remove(path))

	// When: the watcher reports the delete
	result := sync.ApplyWatchEvents(context.Background(), dir, []watcher.FileEvent{
		{Path: "notes.txt", Operation: watcher.OpDelete},
	})

	// Then: the document's chunks are gone
	assert.Len(t, result.Deleted, 1)
	assert.Empty(t, result.Failures)
	assert.Equal(t, 0, si.Store.Count())
}

// TW03: a delete is admitted even when the path would be blocked
func TestApplyWatchEvents_DeleteAdmittedUnconditionally(t *testing.T) {
	// Given: a matcher that blocks everything and a previously indexed file
	dir := t.TempDir()
	permissive, si := newTestSynchronizer(t, nil)
	path := writeTestFile(t, dir, "notes.txt", "alpha beta gamma delta epsilon zeta eta theta")
	require.True(t, permissive.indexer.IndexFile(context.Background(), path).Success())
	require.NoError(t, os.Remove(path))

	blocking := NewSynchronizer(si, policy.New(nil, []string{"**/*"}))

	// When: the blocked synchronizer sees the delete
	result := blocking.ApplyWatchEvents(context.Background(), dir, []watcher.FileEvent{
		{Path: "notes.txt", Operation: watcher.OpDelete},
	})

	// Then: the delete still applied — a vanished path can't be re-checked
	assert.Len(t, result.Deleted, 1)
	assert.Equal(t, 0, si.Store.Count())
}

// TW04: an update for an inadmissible path is skipped
func TestApplyWatchEvents_SkipsInadmissibleUpdate(t *testing.T) {
	// Given: a file whose extension no extractor supports
	dir := t.TempDir()
	sync, si := newTestSynchronizer(t, nil)
	writeTestFile(t, dir, "image.bin", "not text")

	// When: the watcher reports a modify for it
	result := sync.ApplyWatchEvents(context.Background(), dir, []watcher.FileEvent{
		{Path: "image.bin", Operation: watcher.OpModify},
	})

	// Then: it is skipped, not indexed and not failed
	assert.Len(t, result.Skipped, 1)
	assert.Empty(t, result.Indexed)
	assert.Empty(t, result.Failures)
	assert.Equal(t, 0, si.Store.Count())
}

// TW05: directory events are rejected outright
func TestApplyWatchEvents_RejectsDirectoryEvents(t *testing.T) {
	dir := t.TempDir()
	sync, si := newTestSynchronizer(t, nil)

	result := sync.ApplyWatchEvents(context.Background(), dir, []watcher.FileEvent{
		{Path: "subdir", Operation: watcher.OpCreate, IsDir: true},
	})

	assert.Empty(t, result.Indexed)
	assert.Empty(t, result.Deleted)
	assert.Empty(t, result.Skipped)
	assert.Equal(t, 0, si.Store.Count())
}

// TW06: deletes in a batch apply before updates
func TestApplyWatchEvents_DeletesBeforeUpdates(t *testing.T) {
	// Given: one indexed file being deleted and another being created,
	// arriving update-first in the same debounced batch
	dir := t.TempDir()
	sync, si := newTestSynchronizer(t, nil)
	oldPath := writeTestFile(t, dir, "old.txt", "alpha beta gamma delta epsilon zeta eta theta")
	require.True(t, si.IndexFile(context.Background(), oldPath).Success())
	require.NoError(t, os.Remove(oldPath))
	writeTestFile(t, dir, "new.txt", "iota kappa lambda mu nu xi omicron pi rho sigma")

	// When: both land in one batch, update listed first
	result := sync.ApplyWatchEvents(context.Background(), dir, []watcher.FileEvent{
		{Path: "new.txt", Operation: watcher.OpCreate},
		{Path: "old.txt", Operation: watcher.OpDelete},
	})

	// Then: both took effect — old gone, new present
	assert.Len(t, result.Deleted, 1)
	assert.Len(t, result.Indexed, 1)
	assert.Empty(t, result.Failures)
	require.Greater(t, si.Store.Count(), 0)
	payloads, err := si.Store.EnumeratePayloads(context.Background())
	require.NoError(t, err)
	oldDocID := chunk.DocID(oldPath)
	for _, p := range payloads {
		assert.NotEqual(t, oldDocID, p.DocID)
	}
}

// TW07: an absolute event path is used as-is
func TestApplyWatchEvents_AbsolutePath(t *testing.T) {
	// Given: an event carrying an absolute path instead of a root-relative one
	dir := t.TempDir()
	sync, si := newTestSynchronizer(t, nil)
	path := writeTestFile(t, dir, "notes.txt", "alpha beta gamma delta epsilon zeta eta theta")

	// When: the watcher reports it absolutely
	result := sync.ApplyWatchEvents(context.Background(), dir, []watcher.FileEvent{
		{Path: path, Operation: watcher.OpModify},
	})

	// Then: it indexes without double-joining the root
	require.Len(t, result.Indexed, 1)
	assert.Equal(t, path, result.Indexed[0])
	assert.Greater(t, si.Store.Count(), 0)
}
