// Package chunk implements the extractor and chunker sets: turning a
// path on disk into extracted (text, metadata), and extracted text into
// a list of indexable Chunks.
package chunk

import (
	"context"
)

// Chunk size defaults (based on 2025 RAG research)
const (
	DefaultMaxChunkTokens = 512 // Optimal for 85-90% recall
	DefaultOverlapTokens  = 64  // ~12.5% overlap
	MinChunkTokens        = 100 // Minimum viable chunk
	TokensPerChar         = 4   // Rough approximation: 4 chars = 1 token
)

// ContentType represents the type of content in a chunk.
type ContentType string

const (
	ContentTypeCode     ContentType = "code"
	ContentTypeText     ContentType = "text"
	ContentTypeFunction ContentType = "function"
	ContentTypeClass    ContentType = "class"
	ContentTypeMethod   ContentType = "method"
	ContentTypeSimple   ContentType = "simplified_code"
)

// Value is a primitive metadata value: string, i64, f64, or bool. The
// store's filter DSL accepts only primitives, so nested structures never
// cross into a Chunk's Metadata map.
type Value = any

// Metadata is a free-form map restricted to primitive Values. Construct it
// with NewMetadata/Set rather than a literal so the primitive restriction
// is enforced at the single point of entry rather than at every call site.
type Metadata map[string]Value

// NewMetadata returns an empty Metadata map.
func NewMetadata() Metadata {
	return make(Metadata)
}

// Set stores a primitive value under key. Non-primitive values (anything
// that isn't string/int/int64/float64/bool) are silently dropped: richer
// per-extractor fields belong in typed extractor outputs, not in the map
// that eventually reaches the store's filter boundary.
func (m Metadata) Set(key string, v Value) Metadata {
	switch v.(type) {
	case string, int, int64, float64, bool:
		m[key] = v
	}
	return m
}

// Merge copies every primitive entry of other into m, returning m.
func (m Metadata) Merge(other Metadata) Metadata {
	for k, v := range other {
		m.Set(k, v)
	}
	return m
}

// Clone returns a shallow copy.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Segment is an AST-delimited region produced by the code extractor: one
// input to the code chunker's segment mode. StartLine is 1-indexed and
// rides through chunk metadata so search hits can point at a line.
type Segment struct {
	Content     string
	ContentType ContentType
	Language    string
	StartLine   int
}

// Extraction is the result of running an Extractor over a path:
// the decoded text plus its metadata, and — for code — the segments
// the AST parse produced (nil when parsing wasn't attempted or failed).
type Extraction struct {
	Text     string
	Metadata Metadata
	Segments []Segment
}

// Extractor is the capability interface every extractor variant
// implements (text, code, PDF, DOCX). The router holds an ordered list
// of these; registration order determines tie-break when more than one
// extractor would claim a path.
type Extractor interface {
	// Name identifies the extractor (propagated into metadata as
	// "extractor").
	Name() string
	// Supports reports whether this extractor claims the given path, by
	// extension, exact filename, or glob.
	Supports(path string) bool
	// Extract returns the path's text and metadata, or an *ExtractError.
	Extract(ctx context.Context, path string) (*Extraction, error)
}

// Chunk is a retrievable unit of content: the storage/retrieval unit
// the index operates on. ChunkID is the 24-hex fingerprint of
// (DocID, ChunkIndex); Content is the raw chunk text; Metadata always
// carries chunk_type, total_chunks, and whatever primitive fields the
// extractor/chunker contributed.
type Chunk struct {
	ChunkID    string
	DocID      string
	ChunkIndex int
	Content    string
	Metadata   Metadata
}

// Chunker is the interface for splitting extracted text into Chunks.
// Empty or whitespace-only text yields an empty (non-nil) slice.
type Chunker interface {
	Chunk(ctx context.Context, text string, docID string, metadata Metadata) ([]*Chunk, error)
}

// Symbol represents a code symbol extracted from parsing.
type Symbol struct {
	Name       string
	Type       SymbolType
	StartLine  int
	EndLine    int
	Signature  string
	DocComment string
}

// SymbolType represents the kind of code symbol.
type SymbolType string

const (
	SymbolTypeFunction  SymbolType = "function"
	SymbolTypeClass     SymbolType = "class"
	SymbolTypeInterface SymbolType = "interface"
	SymbolTypeType      SymbolType = "type"
	SymbolTypeVariable  SymbolType = "variable"
	SymbolTypeConstant  SymbolType = "constant"
	SymbolTypeMethod    SymbolType = "method"
)

// Tree represents a parsed AST.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node represents a node in the AST.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point represents a position in the source code.
type Point struct {
	Row    uint32 // 0-indexed line number
	Column uint32
}

// LanguageConfig holds configuration for a supported language.
type LanguageConfig struct {
	Name       string
	Extensions []string

	FunctionTypes  []string
	ClassTypes     []string
	InterfaceTypes []string
	MethodTypes    []string
	TypeDefTypes   []string
	ConstantTypes  []string
	VariableTypes  []string
}
