package chunk

import (
	"context"
	"fmt"
)

// languageSeparators gives each language's natural split boundaries for
// fallback-mode chunking, coarsest first (for a C-like language: class,
// function, blank line, newline, space).
var languageSeparators = map[string][]string{
	"go":         {"\nfunc ", "\ntype ", "\n\n", "\n", " ", ""},
	"typescript": {"\nclass ", "\nfunction ", "\n\n", "\n", " ", ""},
	"tsx":        {"\nclass ", "\nfunction ", "\n\n", "\n", " ", ""},
	"javascript": {"\nclass ", "\nfunction ", "\n\n", "\n", " ", ""},
	"jsx":        {"\nclass ", "\nfunction ", "\n\n", "\n", " ", ""},
	"python":     {"\nclass ", "\ndef ", "\n\n", "\n", " ", ""},
}

func separatorsFor(language string) []string {
	if s, ok := languageSeparators[language]; ok {
		return s
	}
	return []string{"\n\n", "\n", " ", ""}
}

// CodeChunker implements two chunking modes:
//
//   - Segment mode (ChunkSegments): one chunk per AST segment, split
//     further with the language-aware splitter when a segment alone
//     exceeds ChunkSize; sub-chunks carry is_split/split_part/split_total.
//   - Fallback mode (Chunk): the language-aware recursive splitter over
//     the whole file, chunk_type="code".
//
// Grounded on oversized-symbol splitting with overlap and
// content-addressable ids, adapted to a segment/fallback split rather
// than a single AST-or-line-fallback mode.
type CodeChunker struct {
	ChunkSize    int
	ChunkOverlap int
}

func NewCodeChunker(chunkSize, chunkOverlap int) *CodeChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultMaxChunkTokens * TokensPerChar
	}
	if chunkOverlap <= 0 {
		chunkOverlap = DefaultOverlapTokens * TokensPerChar
	}
	return &CodeChunker{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap}
}

// Chunk implements fallback mode: the Chunker interface entry point used
// when metadata.language is set but no segments are available (parse
// failure, or AST chunking disabled).
func (c *CodeChunker) Chunk(ctx context.Context, text string, docID string, metadata Metadata) ([]*Chunk, error) {
	language, _ := metadata["language"].(string)
	splitter := &TextChunker{ChunkSize: c.ChunkSize, ChunkOverlap: c.ChunkOverlap, Separators: separatorsFor(language)}

	pieces := splitter.splitRecursive(text, splitter.Separators)
	bodies := splitter.mergeWithOverlap(pieces)

	chunks := make([]*Chunk, 0, len(bodies))
	for i, body := range bodies {
		md := metadata.Clone()
		md.Set("chunker", "code")
		md.Set("chunk_type", string(ContentTypeCode))
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

// ChunkSegments implements segment mode: one chunk per segment, in
// source order, splitting any segment whose content exceeds ChunkSize.
func (c *CodeChunker) ChunkSegments(ctx context.Context, segments []Segment, docID string, metadata Metadata) ([]*Chunk, error) {
	if len(segments) == 0 {
		return []*Chunk{}, nil
	}

	type piece struct {
		content    string
		chunkType  ContentType
		language   string
		startLine  int
		isSplit    bool
		splitPart  int
		splitTotal int
	}
	var pieces []piece

	for _, seg := range segments {
		if len(seg.Content) <= c.ChunkSize {
			pieces = append(pieces, piece{content: seg.Content, chunkType: seg.ContentType, language: seg.Language, startLine: seg.StartLine})
			continue
		}
		splitter := &TextChunker{ChunkSize: c.ChunkSize, ChunkOverlap: c.ChunkOverlap, Separators: separatorsFor(seg.Language)}
		raw := splitter.splitRecursive(seg.Content, splitter.Separators)
		parts := splitter.mergeWithOverlap(raw)
		for i, p := range parts {
			pieces = append(pieces, piece{
				content: p, chunkType: seg.ContentType, language: seg.Language, startLine: seg.StartLine,
				isSplit: true, splitPart: i + 1, splitTotal: len(parts),
			})
		}
	}

	chunks := make([]*Chunk, 0, len(pieces))
	for i, p := range pieces {
		md := metadata.Clone()
		md.Set("chunker", "code")
		md.Set("chunk_type", string(p.chunkType))
		if p.language != "" {
			md.Set("language", p.language)
		}
		if p.startLine > 0 {
			md.Set("start_line", int64(p.startLine))
		}
		md.Set("chunk_index", int64(i))
		md.Set("total_chunks", int64(len(pieces)))
		if p.isSplit {
			md.Set("is_split", true)
			md.Set("split_part", int64(p.splitPart))
			md.Set("split_total", int64(p.splitTotal))
		}
		chunks = append(chunks, &Chunk{
			ChunkID:    ChunkID(docID, i),
			DocID:      docID,
			ChunkIndex: i,
			Content:    p.content,
			Metadata:   md,
		})
	}
	return chunks, nil
}

// String satisfies fmt.Stringer for debug logging.
func (c *CodeChunker) String() string {
	return fmt.Sprintf("CodeChunker(size=%d,overlap=%d)", c.ChunkSize, c.ChunkOverlap)
}
