package mcp

// Input/output schemas for the MCP tool surface. The jsonschema tags
// become the parameter descriptions clients show their models, so they
// read as instructions, not documentation.

// SearchCodeInput parameterizes the search_code tool.
type SearchCodeInput struct {
	Query      string   `json:"query" jsonschema:"the code search query to execute"`
	Language   string   `json:"language,omitempty" jsonschema:"filter by programming language (go, typescript, python)"`
	SymbolType string   `json:"symbol_type,omitempty" jsonschema:"filter by symbol type: function, class, interface, type, method, or any"`
	Limit      int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Scope      []string `json:"scope,omitempty" jsonschema:"filter by path prefixes (OR logic)"`
}

// SearchDocsInput parameterizes the search_docs tool.
type SearchDocsInput struct {
	Query string   `json:"query" jsonschema:"the documentation search query to execute"`
	Limit int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Scope []string `json:"scope,omitempty" jsonschema:"filter by path prefixes (OR logic)"`
}

// IndexStatusInput parameterizes index_status, which takes nothing.
type IndexStatusInput struct{}

// IndexStatusOutput is index_status's result: what is indexed, with
// what embeddings, and whether a background run is still filling it.
type IndexStatusOutput struct {
	Project    ProjectInfo       `json:"project"`
	Stats      IndexStats        `json:"stats"`
	Embeddings EmbeddingInfo     `json:"embeddings"`
	Indexing   *IndexingProgress `json:"indexing,omitempty"` // present while a background run is live
}

// IndexingProgress snapshots a background indexing run for clients that
// poll index_status while waiting for first results.
type IndexingProgress struct {
	Status         string  `json:"status"`          // "indexing", "ready", or "error"
	Stage          string  `json:"stage,omitempty"` // "scanning", "chunking", "embedding", "indexing"
	FilesTotal     int     `json:"files_total"`
	FilesProcessed int     `json:"files_processed"`
	ChunksIndexed  int     `json:"chunks_indexed"`
	ProgressPct    float64 `json:"progress_pct"` // 0-100
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// ProjectInfo names the indexed project.
type ProjectInfo struct {
	Name     string `json:"name"`
	RootPath string `json:"root_path"`
	Type     string `json:"type"`
}

// IndexStats summarizes index size for index_status.
type IndexStats struct {
	FileCount      int    `json:"file_count"`
	ChunkCount     int    `json:"chunk_count"`
	IndexSizeBytes int64  `json:"index_size_bytes"`
	LastIndexed    string `json:"last_indexed"`
}

// EmbeddingInfo tells a client which embedder actually answered, so it
// can weigh semantic results accordingly when the static fallback is
// active.
type EmbeddingInfo struct {
	Provider string `json:"provider"` // configured
	Model    string `json:"model"`
	Status   string `json:"status"`

	ActualProvider   string `json:"actual_provider"` // what's really running
	ActualModel      string `json:"actual_model"`
	Dimensions       int    `json:"dimensions"`
	IsFallbackActive bool   `json:"is_fallback_active"`
	SemanticQuality  string `json:"semantic_quality"` // "high" or "low" (static fallback)
}
