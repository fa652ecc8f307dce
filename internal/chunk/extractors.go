package chunk

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// TextExtractor reads a file with a configured primary encoding, retrying
// on decode failure with UTF-8 replace-on-error and then Latin-1 as a
// last resort. It never throws on a readable file — only NotFound/
// NotAFile/TooLarge abort extraction.
type TextExtractor struct {
	// MaxFileSize bounds extractor input (index.max_file_size in config).
	// Zero means unbounded.
	MaxFileSize int64
	// Extensions this extractor self-identifies for when no more specific
	// extractor (e.g. the code extractor) claims the path.
	Extensions map[string]struct{}
}

// NewTextExtractor returns a TextExtractor recognizing the given
// dot-prefixed extensions (index.text_extensions in config).
func NewTextExtractor(extensions []string, maxFileSize int64) *TextExtractor {
	set := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		set[strings.ToLower(e)] = struct{}{}
	}
	return &TextExtractor{MaxFileSize: maxFileSize, Extensions: set}
}

func (t *TextExtractor) Name() string { return "text" }

func (t *TextExtractor) Supports(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	_, ok := t.Extensions[ext]
	return ok
}

func (t *TextExtractor) Extract(ctx context.Context, path string) (*Extraction, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, newExtractError(KindNotFound, path, err)
	}
	if info.IsDir() {
		return nil, newExtractError(KindNotAFile, path, nil)
	}
	if t.MaxFileSize > 0 && info.Size() > t.MaxFileSize {
		return nil, newExtractError(KindTooLarge, path, nil)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, newExtractError(KindNotFound, path, err)
	}

	text, encoding, ok := decodeBestEffort(raw)
	if !ok {
		return nil, newExtractError(KindDecodeError, path, nil)
	}

	md := NewMetadata()
	md.Set("extractor", t.Name())
	md.Set("path", path)
	md.Set("filename", filepath.Base(path))
	md.Set("extension", strings.ToLower(filepath.Ext(path)))
	md.Set("encoding", encoding)

	return &Extraction{Text: text, Metadata: md}, nil
}

// decodeBestEffort tries UTF-8 as-is, then UTF-8 replace-on-error, then
// Latin-1 (ISO-8859-1, a total function from bytes to runes so it always
// "succeeds"). Returns the decoded text, the encoding label used, and
// whether decoding succeeded at all (always true once Latin-1 is tried —
// DecodeError is reserved for inputs that are not text at all, e.g. a
// binary file slipping past extension-based routing).
func decodeBestEffort(raw []byte) (string, string, bool) {
	if utf8.Valid(raw) {
		return string(raw), "utf-8", true
	}
	if looksBinary(raw) {
		return "", "", false
	}
	// Replace invalid UTF-8 sequences rather than fail.
	if strings.ToValidUTF8(string(raw), "�") != "" {
		return strings.ToValidUTF8(string(raw), "�"), "utf-8-replace", true
	}
	// Latin-1: every byte maps 1:1 to a rune.
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return string(runes), "latin-1", true
}

// looksBinary scans a content prefix for NUL bytes, the conventional
// signal that a file is not text.
func looksBinary(raw []byte) bool {
	n := len(raw)
	if n > 512 {
		n = 512
	}
	for i := 0; i < n; i++ {
		if raw[i] == 0 {
			return true
		}
	}
	return false
}

// CodeExtractor extends TextExtractor: it maps the path to a language tag
// and, if AST chunking is enabled and the language is recognized, produces
// a Segments list via tree-sitter. A parse failure is non-fatal — the
// extraction still succeeds, just without Segments.
type CodeExtractor struct {
	text           *TextExtractor
	registry       *LanguageRegistry
	parser         *Parser
	symbolExtract  *SymbolExtractor
	useASTChunking bool
}

// NewCodeExtractor builds a CodeExtractor over the given language
// registry. useASTChunking mirrors the
// indexer.chunking.use_ast_chunks config knob.
func NewCodeExtractor(registry *LanguageRegistry, maxFileSize int64, useASTChunking bool) *CodeExtractor {
	exts := registry.SupportedExtensions()
	return &CodeExtractor{
		text:           NewTextExtractor(exts, maxFileSize),
		registry:       registry,
		parser:         NewParserWithRegistry(registry),
		symbolExtract:  NewSymbolExtractorWithRegistry(registry),
		useASTChunking: useASTChunking,
	}
}

func (c *CodeExtractor) Name() string { return "code" }

func (c *CodeExtractor) Supports(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	_, ok := c.registry.GetByExtension(ext)
	return ok
}

func (c *CodeExtractor) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

func (c *CodeExtractor) Extract(ctx context.Context, path string) (*Extraction, error) {
	ext, err := c.text.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	ext.Metadata.Set("extractor", c.Name())

	langConfig, ok := c.registry.GetByExtension(strings.ToLower(filepath.Ext(path)))
	if !ok {
		return ext, nil
	}
	ext.Metadata.Set("language", langConfig.Name)

	if !c.useASTChunking {
		return ext, nil
	}

	tree, perr := c.parser.Parse(ctx, []byte(ext.Text), langConfig.Name)
	if perr != nil || tree == nil {
		// ParseError is non-fatal: metadata carries language but no segments.
		return ext, nil
	}

	segs := c.buildSegments(tree, langConfig.Name)
	if len(segs) > 0 {
		ext.Segments = segs
	}
	return ext, nil
}

// segmentTypes maps a captured symbol's kind onto the chunk_type tag its
// segment carries.
var segmentTypes = map[SymbolType]ContentType{
	SymbolTypeFunction:  ContentTypeFunction,
	SymbolTypeMethod:    ContentTypeMethod,
	SymbolTypeClass:     ContentTypeClass,
	SymbolTypeInterface: ContentTypeClass,
	SymbolTypeType:      ContentTypeSimple,
	SymbolTypeConstant:  ContentTypeSimple,
	SymbolTypeVariable:  ContentTypeSimple,
}

// buildSegments delegates symbol discovery to the SymbolExtractor and
// slices one segment of source per symbol, in source order, carrying the
// symbol's start line through to the chunker.
func (c *CodeExtractor) buildSegments(tree *Tree, language string) []Segment {
	symbols := c.symbolExtract.Extract(tree, tree.Source)
	segments := make([]Segment, 0, len(symbols))
	for _, sym := range symbols {
		content := sliceLines(tree.Source, sym.StartLine, sym.EndLine)
		if strings.TrimSpace(content) == "" {
			continue
		}
		contentType, ok := segmentTypes[sym.Type]
		if !ok {
			contentType = ContentTypeCode
		}
		segments = append(segments, Segment{
			Content:     content,
			ContentType: contentType,
			Language:    language,
			StartLine:   sym.StartLine,
		})
	}
	return segments
}

// sliceLines returns source lines start..end inclusive, 1-indexed, the
// way Symbol records its range.
func sliceLines(source []byte, start, end int) string {
	lines := strings.Split(string(source), "\n")
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}
