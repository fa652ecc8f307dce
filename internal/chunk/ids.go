package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

// DocID returns the 32-hex-character deterministic fingerprint of an
// absolute resolved path. Re-running on the same resolved path always
// yields the same id.
func DocID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])[:32]
}

// ChunkID returns the 24-hex fingerprint of (docID, chunkIndex). It is a
// pure function of its inputs: re-indexing a byte-identical document with
// the same chunker produces the same chunk_index sequence and therefore
// the same ids, making upsert idempotent.
func ChunkID(docID string, chunkIndex int) string {
	input := fmt.Sprintf("%s:%d", docID, chunkIndex)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])[:24]
}

// estimateTokens estimates the number of tokens in content.
func estimateTokens(content string) int {
	return len(content) / TokensPerChar
}
