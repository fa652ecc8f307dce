package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemNameIndex(t *testing.T) *BleveNameIndex {
	t.Helper()
	idx, err := NewBleveNameIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBleveNameIndex_FindByName_MatchesIndexedPath(t *testing.T) {
	// Given: an index holding a few paths
	idx := newMemNameIndex(t)
	require.NoError(t, idx.IndexPaths(context.Background(), []string{
		"/proj/src/report.txt",
		"/proj/src/main.go",
		"/proj/docs/readme.md",
	}))

	// When: I search by a filename token
	paths, err := idx.FindByName(context.Background(), "report", nil)
	require.NoError(t, err)

	// Then: the matching path comes back
	require.Len(t, paths, 1)
	assert.Equal(t, "/proj/src/report.txt", paths[0])
}

func TestBleveNameIndex_FindByName_ScopeRestricts(t *testing.T) {
	idx := newMemNameIndex(t)
	require.NoError(t, idx.IndexPaths(context.Background(), []string{
		"/proj/src/report.txt",
		"/other/report.txt",
	}))

	paths, err := idx.FindByName(context.Background(), "report", []string{"/proj"})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "/proj/src/report.txt", paths[0])
}

func TestBleveNameIndex_DeletePaths_RemovesEntries(t *testing.T) {
	idx := newMemNameIndex(t)
	require.NoError(t, idx.IndexPaths(context.Background(), []string{"/proj/report.txt"}))
	require.NoError(t, idx.DeletePaths([]string{"/proj/report.txt"}))

	paths, err := idx.FindByName(context.Background(), "report", nil)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestBleveNameIndex_PersistsAcrossReopen(t *testing.T) {
	// Given: an on-disk index with one path
	path := filepath.Join(t.TempDir(), "filenames.bleve")
	idx, err := NewBleveNameIndex(path)
	require.NoError(t, err)
	require.NoError(t, idx.IndexPaths(context.Background(), []string{"/proj/report.txt"}))
	require.NoError(t, idx.Close())

	// When: I reopen it
	reopened, err := NewBleveNameIndex(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	// Then: the entry survived
	paths, err := reopened.FindByName(context.Background(), "report", nil)
	require.NoError(t, err)
	require.Len(t, paths, 1)
}
