package chunk

// DefaultTextExtensions lists the non-code extensions a plain TextExtractor
// claims when no more specific extractor (code, PDF, DOCX) recognizes the
// path.
var DefaultTextExtensions = []string{
	".txt", ".md", ".mdx", ".rst", ".json", ".yaml", ".yml", ".toml",
	".csv", ".html", ".xml", ".ini", ".cfg", ".conf", ".env",
}

// RouterConfig gathers the knobs the indexer.chunking and
// indexer.extraction config tables expose, assembled in one place so
// every caller (CLI, daemon) builds an identically-behaved pipeline.
type RouterConfig struct {
	ChunkSize    int
	ChunkOverlap int
	MaxFileSize  int64
	UseASTChunks bool
	// TextExtensions overrides the extensions the plain-text extractor
	// claims. Empty means DefaultTextExtensions.
	TextExtensions []string
	// Separators overrides the text chunker's separator order. Empty
	// means the chunker's built-in order.
	Separators []string
}

// NewDefaultRouter wires the extractor set (code, PDF, DOCX, text, in that
// priority order so the code/PDF/DOCX extractors' more specific Supports
// checks run before the catch-all text extractor) and the code/text
// chunker pair behind one Router.
func NewDefaultRouter(cfg RouterConfig) *Router {
	registry := DefaultRegistry()
	textExts := cfg.TextExtensions
	if len(textExts) == 0 {
		textExts = DefaultTextExtensions
	}
	extractors := []Extractor{
		NewCodeExtractor(registry, cfg.MaxFileSize, cfg.UseASTChunks),
		NewPDFExtractor(cfg.MaxFileSize),
		NewDOCXExtractor(cfg.MaxFileSize),
		NewTextExtractor(textExts, cfg.MaxFileSize),
	}
	codeChunker := NewCodeChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	textChunker := NewTextChunker(cfg.ChunkSize, cfg.ChunkOverlap, cfg.Separators)
	return NewRouter(extractors, codeChunker, textChunker, cfg.UseASTChunks)
}
