package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// BM25Backend names a keyword-index engine.
type BM25Backend string

const (
	// BM25BackendSQLite is the default: FTS5 in WAL mode, so the daemon
	// and a concurrent CLI invocation can both hold the index open.
	BM25BackendSQLite BM25Backend = "sqlite"

	// BM25BackendBleve is the earlier engine, kept for indexes built
	// before the SQLite default. BoltDB's exclusive lock limits it to one
	// process.
	BM25BackendBleve BM25Backend = "bleve"
)

// NewBM25IndexWithBackend opens (or creates) a BM25 index of the chosen
// backend. basePath carries no extension — the backend appends its own
// (.db or .bleve) — and an empty basePath yields an in-memory index for
// tests. An empty backend means SQLite.
func NewBM25IndexWithBackend(basePath string, config BM25Config, backend string) (BM25Index, error) {
	switch backend {
	case string(BM25BackendSQLite), "":
		var path string
		if basePath != "" {
			path = basePath + ".db"
		}
		return NewSQLiteBM25Index(path, config)

	case string(BM25BackendBleve):
		var path string
		if basePath != "" {
			path = basePath + ".bleve"
		}
		return NewBleveBM25Index(path, config)

	default:
		return nil, fmt.Errorf("unknown BM25 backend: %s (valid options: sqlite, bleve)", backend)
	}
}

// DetectBM25Backend reports which backend built the index at basePath,
// by which artifact exists on disk; "" means no index yet. Lets an
// upgraded binary keep opening an index the older engine wrote.
func DetectBM25Backend(basePath string) BM25Backend {
	if fileExists(basePath + ".db") {
		return BM25BackendSQLite
	}
	if dirExists(basePath + ".bleve") {
		return BM25BackendBleve
	}
	return ""
}

// GetBM25IndexPath resolves the backend's on-disk artifact under
// dataDir.
func GetBM25IndexPath(dataDir string, backend string) string {
	basePath := filepath.Join(dataDir, "bm25")
	if backend == string(BM25BackendBleve) {
		return basePath + ".bleve"
	}
	return basePath + ".db"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
