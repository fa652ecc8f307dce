package chunk

import (
	"context"
	"strings"
)

// DefaultSeparators is the fixed separator order: blank line, newline,
// sentence, clause, word, character. The recursive splitter below tries
// them coarsest-first, descending into a finer separator only for
// pieces that are still too large.
var DefaultSeparators = []string{"\n\n", "\n", ". ", ", ", " ", ""}

// TextChunker implements recursive-character splitting with a configured
// target chunk_size and chunk_overlap. Grounded on a
// regex/paragraph-splitting style, generalized into a fixed
// separator-order recursion instead of a Markdown-header-specific split.
type TextChunker struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// NewTextChunker returns a TextChunker with the given tuning, defaulting
// ChunkSize/ChunkOverlap from the package constants and Separators from
// DefaultSeparators when zero/nil.
func NewTextChunker(chunkSize, chunkOverlap int, separators []string) *TextChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultMaxChunkTokens * TokensPerChar
	}
	if chunkOverlap <= 0 {
		chunkOverlap = DefaultOverlapTokens * TokensPerChar
	}
	if separators == nil {
		separators = DefaultSeparators
	}
	return &TextChunker{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap, Separators: separators}
}

// Chunk splits text into Chunks tagged chunker="text". Empty or
// whitespace-only input returns an empty, non-nil list.
func (t *TextChunker) Chunk(ctx context.Context, text string, docID string, metadata Metadata) ([]*Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return []*Chunk{}, nil
	}

	pieces := t.splitRecursive(text, t.Separators)
	bodies := t.mergeWithOverlap(pieces)

	chunks := make([]*Chunk, 0, len(bodies))
	for i, body := range bodies {
		md := metadata.Clone()
		md.Set("chunker", "text")
		md.Set("chunk_type", string(ContentTypeText))
		md.Set("chunk_index", int64(i))
		md.Set("total_chunks", int64(len(bodies)))
		chunks = append(chunks, &Chunk{
			ChunkID:    ChunkID(docID, i),
			DocID:      docID,
			ChunkIndex: i,
			Content:    body,
			Metadata:   md,
		})
	}
	return chunks, nil
}

// splitRecursive breaks text into pieces each at-or-under ChunkSize,
// preferring the coarsest separator that achieves it. A piece that
// still exceeds ChunkSize after exhausting all separators (including the
// empty "split every character" terminal case) is accepted as-is —
// character splitting always converges.
func (t *TextChunker) splitRecursive(text string, separators []string) []string {
	if len(text) <= t.ChunkSize || len(separators) == 0 {
		return []string{text}
	}

	sep := separators[0]
	rest := separators[1:]

	var parts []string
	if sep == "" {
		parts = splitEveryByte(text, t.ChunkSize)
	} else {
		parts = strings.Split(text, sep)
	}

	var out []string
	for i, p := range parts {
		// Re-attach the separator except after the final piece, so later
		// merging reconstructs (close to) the original text.
		piece := p
		if sep != "" && i < len(parts)-1 {
			piece = p + sep
		}
		if len(piece) <= t.ChunkSize {
			out = append(out, piece)
		} else {
			out = append(out, t.splitRecursive(piece, rest)...)
		}
	}
	return out
}

func splitEveryByte(text string, n int) []string {
	if n <= 0 {
		n = 1
	}
	var out []string
	for len(text) > 0 {
		if len(text) <= n {
			out = append(out, text)
			break
		}
		out = append(out, text[:n])
		text = text[n:]
	}
	return out
}

// mergeWithOverlap packs atomic pieces into chunks up to ChunkSize,
// carrying ChunkOverlap trailing characters of each finished chunk
// forward into the next so consecutive chunks share context.
func (t *TextChunker) mergeWithOverlap(pieces []string) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, current.String())
	}

	for _, p := range pieces {
		if current.Len() > 0 && current.Len()+len(p) > t.ChunkSize {
			flush()
			carry := overlapTail(current.String(), t.ChunkOverlap)
			current.Reset()
			current.WriteString(carry)
		}
		current.WriteString(p)
	}
	flush()

	if len(chunks) == 0 {
		return []string{}
	}
	return chunks
}

// overlapTail returns the trailing n bytes of s, rune-aligned.
func overlapTail(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return ""
	}
	start := len(s) - n
	for start < len(s) && !utf8RuneStart(s[start]) {
		start++
	}
	return s[start:]
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
