package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rizkaitbrik/maven/internal/policy"
)

func newTestSynchronizer(t *testing.T, matcher *policy.Matcher) (*Synchronizer, *SemanticIndexer) {
	t.Helper()
	si := newTestIndexer(t)
	if matcher == nil {
		matcher = policy.New(nil, nil)
	}
	return NewSynchronizer(si, matcher), si
}

// TS01: a fresh sync adds every eligible file
func TestSynchronizer_Sync_AddsNewFiles(t *testing.T) {
	// Given: a directory with two text files and an empty index
	dir := t.TempDir()
	writeTestFile(t, dir, "a.txt", "alpha beta gamma delta epsilon zeta")
	writeTestFile(t, dir, "b.txt", "eta theta iota kappa lambda mu nu")
	sync, si := newTestSynchronizer(t, nil)

	// When: I sync the directory
	result, err := sync.Sync(context.Background(), SyncConfig{Root: dir, Recursive: true})

	// Then: both files were added, nothing updated/deleted/skipped, no failures
	require.NoError(t, err)
	assert.Len(t, result.Added, 2)
	assert.Empty(t, result.Updated)
	assert.Empty(t, result.Deleted)
	assert.Empty(t, result.Skipped)
	assert.Empty(t, result.Failures)
	assert.Greater(t, si.Store.Count(), 0)
}

// TS02: an unchanged file is skipped on the second sync
func TestSynchronizer_Sync_SkipsUnchangedFile(t *testing.T) {
	// Given: a directory synced once already
	dir := t.TempDir()
	writeTestFile(t, dir, "a.txt", "alpha beta gamma delta epsilon zeta")
	sync, _ := newTestSynchronizer(t, nil)
	_, err := sync.Sync(context.Background(), SyncConfig{Root: dir, Recursive: true})
	require.NoError(t, err)

	// When: I sync again with nothing changed on disk
	result, err := sync.Sync(context.Background(), SyncConfig{Root: dir, Recursive: true})

	// Then: the file is skipped, not re-added or updated
	require.NoError(t, err)
	assert.Empty(t, result.Added)
	assert.Empty(t, result.Updated)
	assert.Equal(t, []string{filepath.Join(dir, "a.txt")}, result.Skipped)
}

// TS03: a modified file is reclassified to_update and re-chunked
func TestSynchronizer_Sync_UpdatesModifiedFile(t *testing.T) {
	// Given: a directory synced once already
	dir := t.TempDir()
	path := writeTestFile(t, dir, "a.txt", "alpha beta gamma delta epsilon zeta")
	sync, si := newTestSynchronizer(t, nil)
	_, err := sync.Sync(context.Background(), SyncConfig{Root: dir, Recursive: true})
	require.NoError(t, err)
	firstCount := si.Store.Count()

	// When: the file's content and mtime change, then I sync again
	time.Sleep(10 * time.Millisecond)
	laterTime := time.Now().Add(time.Minute)
	require.NoError(t, os.WriteFile(path, []byte("brand new content entirely, much longer than before, "+
		"padded out across several more words so the chunker has real work to do here"), 0o644))
	require.NoError(t, os.Chtimes(path, laterTime, laterTime))

	result, err := sync.Sync(context.Background(), SyncConfig{Root: dir, Recursive: true})

	// Then: the file is classified as updated, and the store reflects only the new content
	require.NoError(t, err)
	assert.Equal(t, []string{path}, result.Updated)
	assert.Empty(t, result.Added)
	assert.NotEqual(t, firstCount, si.Store.Count())
}

// TS04: a deleted file is removed from the store
func TestSynchronizer_Sync_DeletesRemovedFile(t *testing.T) {
	// Given: a directory synced once, then a file removed from disk
	dir := t.TempDir()
	path := writeTestFile(t, dir, "a.txt", "alpha beta gamma delta epsilon zeta")
	sync, si := newTestSynchronizer(t, nil)
	_, err := sync.Sync(context.Background(), SyncConfig{Root: dir, Recursive: true})
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	// When: I sync again
	result, err := sync.Sync(context.Background(), SyncConfig{Root: dir, Recursive: true})

	// Then: the file is reported deleted and its chunks are gone
	require.NoError(t, err)
	assert.Equal(t, []string{path}, result.Deleted)
	assert.Equal(t, 0, si.Store.Count())
}

// TS05: ForceRebuild re-indexes even an unchanged file
func TestSynchronizer_Sync_ForceRebuild(t *testing.T) {
	// Given: a directory synced once already
	dir := t.TempDir()
	writeTestFile(t, dir, "a.txt", "alpha beta gamma delta epsilon zeta")
	sync, _ := newTestSynchronizer(t, nil)
	_, err := sync.Sync(context.Background(), SyncConfig{Root: dir, Recursive: true})
	require.NoError(t, err)

	// When: I sync again with ForceRebuild set
	result, err := sync.Sync(context.Background(), SyncConfig{Root: dir, Recursive: true, ForceRebuild: true})

	// Then: the unchanged file is classified as updated, not skipped
	require.NoError(t, err)
	assert.Empty(t, result.Skipped)
	assert.Len(t, result.Updated, 1)
}

// TS06: a blocked path is never admitted into the filesystem enumeration
func TestSynchronizer_Sync_RespectsBlockList(t *testing.T) {
	// Given: a directory with a node_modules subtree and a matcher blocking it
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules"), 0o755))
	writeTestFile(t, dir, "a.txt", "alpha beta gamma delta epsilon zeta")
	writeTestFile(t, filepath.Join(dir, "node_modules"), "dep.txt", "vendored dependency content here")
	matcher := policy.New(nil, []string{"**/node_modules/**"})
	sync, _ := newTestSynchronizer(t, matcher)

	// When: I sync the directory
	result, err := sync.Sync(context.Background(), SyncConfig{Root: dir, Recursive: true})

	// Then: only the non-blocked file was added
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.txt")}, result.Added)
}

// TS07: Progress is called once per batch with a running total
func TestSynchronizer_Sync_ReportsProgress(t *testing.T) {
	// Given: three files and a batch size of 1
	dir := t.TempDir()
	writeTestFile(t, dir, "a.txt", "alpha beta gamma delta epsilon zeta")
	writeTestFile(t, dir, "b.txt", "eta theta iota kappa lambda mu nu")
	writeTestFile(t, dir, "c.txt", "xi omicron pi rho sigma tau upsilon")
	sync, _ := newTestSynchronizer(t, nil)

	var calls []int
	_, err := sync.Sync(context.Background(), SyncConfig{
		Root:      dir,
		Recursive: true,
		BatchSize: 1,
		Progress:  func(processed, total int, _ string) { calls = append(calls, processed) },
	})

	// Then: progress was reported after each of the three batches, ending at the total
	require.NoError(t, err)
	require.Len(t, calls, 3)
	assert.Equal(t, 3, calls[len(calls)-1])
}

// TS08: a non-recursive sync ignores nested subdirectories
func TestSynchronizer_Sync_NonRecursiveIgnoresSubdirs(t *testing.T) {
	// Given: a top-level file and a file nested one directory down
	dir := t.TempDir()
	writeTestFile(t, dir, "top.txt", "alpha beta gamma delta epsilon zeta")
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	writeTestFile(t, sub, "nested.txt", "eta theta iota kappa lambda mu nu")
	sync, _ := newTestSynchronizer(t, nil)

	// When: I sync non-recursively
	result, err := sync.Sync(context.Background(), SyncConfig{Root: dir, Recursive: false})

	// Then: only the top-level file is added
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "top.txt")}, result.Added)
}
