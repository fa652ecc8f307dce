package chunk

import "context"

// Router chooses text vs code chunking deterministically: segment mode
// when Extraction.Segments is present and AST chunking is enabled; code
// fallback mode when a language was identified; otherwise the text
// chunker. It also holds the ordered Extractor list as an explicit
// capability-interface plugin registry (registration order is the
// tie-break when more than one extractor claims a path).
type Router struct {
	extractors   []Extractor
	CodeChunker  *CodeChunker
	TextChunker  *TextChunker
	UseASTChunks bool
}

// NewRouter builds a Router over extractors in registration order.
func NewRouter(extractors []Extractor, codeChunker *CodeChunker, textChunker *TextChunker, useASTChunks bool) *Router {
	return &Router{
		extractors:   extractors,
		CodeChunker:  codeChunker,
		TextChunker:  textChunker,
		UseASTChunks: useASTChunks,
	}
}

// ExtractorFor returns the first registered extractor whose Supports(path)
// is true, or nil if none claims it.
func (r *Router) ExtractorFor(path string) Extractor {
	for _, e := range r.extractors {
		if e.Supports(path) {
			return e
		}
	}
	return nil
}

// RouteChunks applies the chunk router rule to an already-produced
// Extraction.
func (r *Router) RouteChunks(ctx context.Context, docID string, ext *Extraction) ([]*Chunk, error) {
	if ext == nil {
		return []*Chunk{}, nil
	}

	if len(ext.Segments) > 0 && r.UseASTChunks {
		return r.CodeChunker.ChunkSegments(ctx, ext.Segments, docID, ext.Metadata)
	}

	if lang, _ := ext.Metadata["language"].(string); lang != "" {
		return r.CodeChunker.Chunk(ctx, ext.Text, docID, ext.Metadata)
	}
	if extractorName, _ := ext.Metadata["extractor"].(string); extractorName == "code" {
		return r.CodeChunker.Chunk(ctx, ext.Text, docID, ext.Metadata)
	}

	return r.TextChunker.Chunk(ctx, ext.Text, docID, ext.Metadata)
}
