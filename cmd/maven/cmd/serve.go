package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/rizkaitbrik/maven/internal/config"
	"github.com/rizkaitbrik/maven/internal/embed"
	"github.com/rizkaitbrik/maven/internal/logging"
	"github.com/rizkaitbrik/maven/internal/mcp"
	"github.com/rizkaitbrik/maven/internal/search"
	"github.com/rizkaitbrik/maven/internal/session"
	"github.com/rizkaitbrik/maven/internal/store"
)

// newServeCmd exposes the MCP server as its own subcommand, for clients
// that invoke `maven serve` directly instead of relying on the root
// command's smart default (root.go's runSmartDefault also ends in
// runServe once indexing is confirmed up to date).
func newServeCmd() *cobra.Command {
	var (
		transport   string
		port        int
		sessionName string
		debug       bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP (Model Context Protocol) server, exposing hybrid
search over the current project to AI coding assistants.

stdout is reserved exclusively for JSON-RPC traffic once the server
starts: all diagnostics go to the debug log file instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				os.Setenv("MAVEN_DEBUG", "1")
			}
			if sessionName != "" {
				root, err := config.FindProjectRoot(".")
				if err != nil {
					root, _ = os.Getwd()
				}
				return runServeWithSession(cmd.Context(), sessionName, root, transport, port)
			}
			return runServe(cmd.Context(), transport, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport type (stdio|sse)")
	cmd.Flags().IntVar(&port, "port", 8765, "Port for SSE transport")
	cmd.Flags().StringVar(&sessionName, "session", "", "Associate this server run with a named session")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable verbose MCP logging to the debug log file")

	return cmd
}

// verifyStdinForMCP warns early when stdin is an interactive terminal
// rather than the pipe an MCP client connects over: the
// handshake will otherwise hang with no indication why.
func verifyStdinForMCP() error {
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return fmt.Errorf("stdin is a terminal, not a pipe: maven serve expects to be launched by an MCP client over stdio")
	}
	return nil
}

// runServe starts the MCP server for the project rooted at the current
// directory (or the nearest ancestor with a .maven data directory).
func runServe(ctx context.Context, transport string, port int) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	return serveProject(ctx, root, transport, port)
}

// runServeWithSession mirrors runServe but records session activity
// (last-used timestamp) on the way in, for `maven resume`/`maven sessions`.
func runServeWithSession(ctx context.Context, name, projectPath, transport string, port int) error {
	cfg := config.NewConfig()
	if mgr, err := session.NewManager(session.ManagerConfig{
		StoragePath: cfg.Sessions.StoragePath,
		MaxSessions: cfg.Sessions.MaxSessions,
	}); err == nil {
		if sess, err := mgr.Open(name, projectPath); err == nil {
			_ = mgr.Save(sess)
		}
	}
	return serveProject(ctx, projectPath, transport, port)
}

// serveProject wires a search.Engine over root's persisted index (same
// store construction as runLocalSearch in search.go) and runs the MCP
// server over it until ctx is cancelled.
//
// Nothing here may write to stdout — it is reserved for
// JSON-RPC frames the moment Serve starts reading stdin.
func serveProject(ctx context.Context, root, transport string, port int) error {
	cleanup, err := logging.SetupMCPMode()
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer cleanup()

	if transport == "stdio" {
		if err := verifyStdinForMCP(); err != nil {
			slog.Warn("stdin_check_failed", slog.String("error", err.Error()))
		}
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	dataDir := cfg.IndexDataDir(root)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	metadataPath := filepath.Join(dataDir, "metadata.db")
	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	bm25BasePath := filepath.Join(dataDir, "bm25")
	bm25, err := store.NewBM25IndexWithBackend(bm25BasePath, store.DefaultBM25Config(), cfg.Search.BM25Backend)
	if err != nil {
		return fmt.Errorf("failed to open BM25 index: %w", err)
	}
	defer func() { _ = bm25.Close() }()

	embed.SetMLXConfig(embed.MLXServerConfig{
		Endpoint: cfg.Embeddings.MLXEndpoint,
		Model:    cfg.Embeddings.MLXModel,
	})
	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	embedder, err := embed.NewEmbedder(ctx, provider, cfg.Embeddings.Model)
	if err != nil {
		slog.Warn("embedder_unavailable_falling_back_to_static", slog.String("error", err.Error()))
		embedder = embed.NewStaticEmbedder768()
	}
	defer func() { _ = embedder.Close() }()

	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	vectorCfg := store.DefaultVectorStoreConfig(embedder.Dimensions())
	vector, err := store.NewHNSWStore(vectorCfg, filepath.Join(dataDir, "payloads.db"))
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}
	defer func() { _ = vector.Close() }()
	if _, err := os.Stat(vectorPath); err == nil {
		if err := vector.Load(vectorPath); err != nil {
			slog.Debug("no existing vector store to load", slog.String("error", err.Error()))
		}
	}

	engineConfig := search.DefaultConfig()
	if cfg.Search.MaxResults > 0 {
		engineConfig.DefaultLimit = cfg.Search.MaxResults
	}
	if cfg.Search.BM25Weight > 0 || cfg.Search.SemanticWeight > 0 {
		engineConfig.DefaultWeights = search.Weights{
			BM25:     cfg.Search.BM25Weight,
			Semantic: cfg.Search.SemanticWeight,
		}
	}
	engine := search.New(bm25, vector, embedder, metadata, engineConfig)
	defer func() { _ = engine.Close() }()

	server, err := mcp.NewServer(engine, metadata, embedder, cfg, root)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer func() { _ = server.Close() }()

	addr := ""
	if transport == "sse" {
		addr = fmt.Sprintf(":%d", port)
	}
	return server.Serve(ctx, transport, addr)
}
