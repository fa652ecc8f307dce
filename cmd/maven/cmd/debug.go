package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rizkaitbrik/maven/internal/config"
	"github.com/rizkaitbrik/maven/internal/embed"
	"github.com/rizkaitbrik/maven/internal/store"
)

// DebugInfo is the JSON/text payload for `maven debug`: a denser, more
// implementation-facing dump than `maven status` — file/language
// breakdown, raw store sizes, and embedder capability detail, meant for
// bug reports rather than everyday use.
type DebugInfo struct {
	ProjectRoot string             `json:"project_root"`
	IndexPath   string             `json:"index_path"`
	FileCount   int                `json:"file_count"`
	ChunkCount  int                `json:"chunk_count"`
	Languages   map[string]float64 `json:"languages"`
	IndexedAt   time.Time          `json:"indexed_at"`

	EmbedderProvider string `json:"embedder_provider"`
	EmbedderModel    string `json:"embedder_model"`
	EmbedderDims     int    `json:"embedder_dimensions"`

	MetadataSizeBytes int64 `json:"metadata_size_bytes"`
	BM25SizeBytes     int64 `json:"bm25_size_bytes"`
	VectorSizeBytes   int64 `json:"vector_size_bytes"`
}

func newDebugCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Dump detailed index internals for bug reports",
		Long: `Print a detailed internal snapshot of the current index: file and
chunk counts, language breakdown, embedder capability, and raw store
sizes on disk. More verbose than 'maven status' — intended for
attaching to bug reports.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDebug(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDebug(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	dataDir := filepath.Join(root, ".maven")

	metadataPath := filepath.Join(dataDir, "metadata.db")
	if !fileExists(metadataPath) {
		return fmt.Errorf("no index found in %s\nRun 'maven index' to create one", root)
	}

	info, err := collectDebugInfo(ctx, root, dataDir)
	if err != nil {
		return fmt.Errorf("failed to collect debug info: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	printDebugInfo(cmd, info)
	return nil
}

func collectDebugInfo(ctx context.Context, root, dataDir string) (*DebugInfo, error) {
	info := &DebugInfo{
		ProjectRoot: root,
		IndexPath:   dataDir,
		Languages:   make(map[string]float64),
	}

	metadataPath := filepath.Join(dataDir, "metadata.db")
	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	projectID := hashString(root)
	if project, err := metadata.GetProject(ctx, projectID); err == nil && project != nil {
		info.FileCount = project.FileCount
		info.ChunkCount = project.ChunkCount
		info.IndexedAt = project.IndexedAt
	}

	info.MetadataSizeBytes = getFileSize(metadataPath)
	bm25SQLitePath := filepath.Join(dataDir, "bm25.db")
	bm25BlevePath := filepath.Join(dataDir, "bm25.bleve")
	if size := getFileSize(bm25SQLitePath); size > 0 {
		info.BM25SizeBytes = size
	} else {
		info.BM25SizeBytes = getDirSize(bm25BlevePath)
	}
	info.VectorSizeBytes = getFileSize(filepath.Join(dataDir, "vectors.hnsw"))

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}
	info.EmbedderProvider = cfg.Embeddings.Provider
	if info.EmbedderProvider == "" {
		info.EmbedderProvider = "hugot"
	}
	info.EmbedderModel = cfg.Embeddings.Model
	if info.EmbedderModel == "" {
		info.EmbedderModel = "embeddinggemma"
	}
	info.EmbedderDims = embed.StaticDimensions

	languageCounts(ctx, filepath.Join(dataDir, "payloads.db"), cfg, info)

	return info, nil
}

// languageCounts opens the vector store's payload table read-only-ish
// (same path SemanticIndexer writes to) and fills info.Languages with the
// fraction of chunks per language. Any failure here is non-fatal: a fresh
// or mid-build index simply reports no language breakdown.
func languageCounts(ctx context.Context, payloadsPath string, cfg *config.Config, info *DebugInfo) {
	vectorCfg := store.DefaultVectorStoreConfig(info.EmbedderDims)
	vector, err := store.NewHNSWStore(vectorCfg, payloadsPath)
	if err != nil {
		return
	}
	defer func() { _ = vector.Close() }()

	payloads, err := vector.EnumeratePayloads(ctx)
	if err != nil || len(payloads) == 0 {
		return
	}

	counts := make(map[string]int)
	for _, p := range payloads {
		path, _ := p.Metadata["path"].(string)
		ext := strings.TrimPrefix(filepath.Ext(path), ".")
		if ext == "" {
			ext = "unknown"
		}
		counts[normalizeExtension(strings.ToLower(ext))]++
	}
	total := len(payloads)
	for lang, n := range counts {
		info.Languages[lang] = float64(n) / float64(total)
	}
}

func printDebugInfo(cmd *cobra.Command, info *DebugInfo) {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w, "Maven Debug Info")
	fmt.Fprintln(w, "================")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Project Root: %s\n", info.ProjectRoot)
	fmt.Fprintf(w, "Index Path:   %s\n", info.IndexPath)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "FILES & CHUNKS")
	fmt.Fprintf(w, "  Files:       %s\n", formatNumber(info.FileCount))
	fmt.Fprintf(w, "  Chunks:      %s\n", formatNumber(info.ChunkCount))
	fmt.Fprintf(w, "  Last indexed: %s\n", formatAge(info.IndexedAt))
	fmt.Fprintf(w, "  Languages:   %s\n", formatLanguages(info.Languages))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "EMBEDDER")
	fmt.Fprintf(w, "  Provider:    %s\n", info.EmbedderProvider)
	fmt.Fprintf(w, "  Model:       %s\n", info.EmbedderModel)
	fmt.Fprintf(w, "  Dimensions:  %d\n", info.EmbedderDims)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "BM25 INDEX")
	fmt.Fprintf(w, "  Size:        %s\n", formatBytes(info.BM25SizeBytes))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "VECTOR STORE")
	fmt.Fprintf(w, "  Size:        %s\n", formatBytes(info.VectorSizeBytes))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STORAGE")
	total := info.MetadataSizeBytes + info.BM25SizeBytes + info.VectorSizeBytes
	fmt.Fprintf(w, "  Metadata:    %s\n", formatBytes(info.MetadataSizeBytes))
	fmt.Fprintf(w, "  Total:       %s\n", formatBytes(total))
}

// formatAge renders a duration-since-t label for human display.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < 2*time.Minute:
		return "1 minute ago"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(d/time.Minute))
	case d < 2*time.Hour:
		return "1 hour ago"
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d/time.Hour))
	case d < 48*time.Hour:
		return "1 day ago"
	default:
		return fmt.Sprintf("%d days ago", int(d/(24*time.Hour)))
	}
}

// formatNumber adds thousands separators, e.g. 12345 -> "12,345".
func formatNumber(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, ",")
	if neg {
		out = "-" + out
	}
	return out
}

// formatLanguages renders a language-fraction map sorted by share
// descending, e.g. "go (50%), ts (30%), md (20%)".
func formatLanguages(langs map[string]float64) string {
	if len(langs) == 0 {
		return "none"
	}
	type kv struct {
		lang string
		pct  float64
	}
	kvs := make([]kv, 0, len(langs))
	for l, p := range langs {
		kvs = append(kvs, kv{l, p})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].pct != kvs[j].pct {
			return kvs[i].pct > kvs[j].pct
		}
		return kvs[i].lang < kvs[j].lang
	})
	parts := make([]string, len(kvs))
	for i, e := range kvs {
		parts[i] = fmt.Sprintf("%s (%d%%)", e.lang, int(e.pct*100+0.5))
	}
	return strings.Join(parts, ", ")
}

// normalizeExtension folds related file extensions onto one canonical
// language label (ts/tsx -> ts, yml/yaml -> yaml, ...).
func normalizeExtension(ext string) string {
	switch ext {
	case "tsx":
		return "ts"
	case "jsx", "mjs":
		return "js"
	case "yml":
		return "yaml"
	case "htm":
		return "html"
	default:
		return ext
	}
}

// formatBytes renders a byte count using binary (KiB/MiB) units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	units := []string{"KB", "MB", "GB", "TB"}
	return fmt.Sprintf("%.1f %s", float64(n)/float64(div), units[exp])
}
