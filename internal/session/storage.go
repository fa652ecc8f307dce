package session

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/renameio/v2"
)

const (
	// sessionFileName holds a session's metadata inside its directory.
	sessionFileName = "session.json"

	// maxSessionNameLength bounds names; they become directory names.
	maxSessionNameLength = 64
)

// validSessionNamePattern keeps names filesystem-safe on every platform.
var validSessionNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateSessionName rejects names that couldn't serve as a session
// directory: empty, overlong, or carrying path-hostile characters.
func ValidateSessionName(name string) error {
	if name == "" {
		return fmt.Errorf("session name cannot be empty")
	}
	if len(name) > maxSessionNameLength {
		return fmt.Errorf("session name too long (max %d chars)", maxSessionNameLength)
	}
	if !validSessionNamePattern.MatchString(name) {
		return fmt.Errorf("session name can only contain letters, numbers, hyphens, and underscores")
	}
	return nil
}

// SaveSession writes a session's metadata atomically, so a crash
// mid-save never leaves a half-written session.json behind.
func SaveSession(sess *Session) error {
	if err := os.MkdirAll(sess.SessionDir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	sessionPath := filepath.Join(sess.SessionDir, sessionFileName)
	if err := renameio.WriteFile(sessionPath, data, 0644); err != nil {
		return fmt.Errorf("failed to save session file: %w", err)
	}
	return nil
}

// LoadSession reads a session's metadata back, restoring the computed
// SessionDir field the JSON doesn't carry.
func LoadSession(sessionDir string) (*Session, error) {
	sessionPath := filepath.Join(sessionDir, sessionFileName)

	data, err := os.ReadFile(sessionPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("session.json not found in %s", sessionDir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session.json: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session.json: %w", err)
	}
	sess.SessionDir = sessionDir
	return &sess, nil
}

// CalculateDirSize totals the file sizes under dir, reading a missing or
// partially unreadable directory as what it could see (zero for absent).
func CalculateDirSize(dir string) (int64, error) {
	var size int64

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if info, infoErr := d.Info(); infoErr == nil {
				size += info.Size()
			}
		}
		return nil
	})
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return size, nil
}

// sessionIndexFiles are the per-index artifacts a session snapshot
// carries: metadata, the HNSW graph and its id map, and the vector
// store's payload table. SQLite sidecar files (-wal/-shm) are transient
// and deliberately left behind.
var sessionIndexFiles = []string{
	"metadata.db",
	"vectors.hnsw",
	"vectors.hnsw.meta",
	"payloads.db",
}

// CopyIndexFiles snapshots srcDir's index artifacts into dstDir: the
// fixed file list, then whichever BM25 artifact exists, then the bleve
// filename-fallback index when one was built.
func CopyIndexFiles(srcDir, dstDir string) error {
	if _, err := os.Stat(srcDir); os.IsNotExist(err) {
		return fmt.Errorf("source directory does not exist: %s", srcDir)
	}
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	for _, file := range sessionIndexFiles {
		src := filepath.Join(srcDir, file)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := copyFile(src, filepath.Join(dstDir, file)); err != nil {
			return fmt.Errorf("failed to copy %s: %w", file, err)
		}
	}

	// BM25: SQLite artifact preferred, bleve directory for legacy
	// indexes.
	if src := filepath.Join(srcDir, "bm25.db"); fileIsPresent(src) {
		if err := copyFile(src, filepath.Join(dstDir, "bm25.db")); err != nil {
			return fmt.Errorf("failed to copy bm25.db: %w", err)
		}
	} else if src := filepath.Join(srcDir, "bm25.bleve"); fileIsPresent(src) {
		if err := copyDir(src, filepath.Join(dstDir, "bm25.bleve")); err != nil {
			return fmt.Errorf("failed to copy bm25.bleve: %w", err)
		}
	}

	if src := filepath.Join(srcDir, "filenames.bleve"); fileIsPresent(src) {
		if err := copyDir(src, filepath.Join(dstDir, "filenames.bleve")); err != nil {
			return fmt.Errorf("failed to copy filenames.bleve: %w", err)
		}
	}

	return nil
}

func fileIsPresent(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// copyFile copies one file, preserving the source's mode.
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source file: %w", err)
	}
	defer func() { _ = srcFile.Close() }()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("stat source file: %w", err)
	}

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode())
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}
	defer func() { _ = dstFile.Close() }()

	if _, err = io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("copy file contents: %w", err)
	}
	return nil
}

// copyDir copies a directory tree, preserving modes.
func copyDir(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source directory: %w", err)
	}
	if err := os.MkdirAll(dst, srcInfo.Mode()); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read source directory: %w", err)
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
		} else {
			if err := copyFile(srcPath, dstPath); err != nil {
				return err
			}
		}
	}
	return nil
}
