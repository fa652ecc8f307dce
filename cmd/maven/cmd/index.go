package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rizkaitbrik/maven/internal/chunk"
	"github.com/rizkaitbrik/maven/internal/config"
	"github.com/rizkaitbrik/maven/internal/embed"
	"github.com/rizkaitbrik/maven/internal/index"
	"github.com/rizkaitbrik/maven/internal/logging"
	"github.com/rizkaitbrik/maven/internal/policy"
	"github.com/rizkaitbrik/maven/internal/store"
	"github.com/rizkaitbrik/maven/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var (
		noTUI   bool
		force   bool
		backend string
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory for searching",
		Long: `Index a directory to enable hybrid search over its contents.

This scans files, chunks code and documents, generates embeddings,
and builds a single vector store (HNSW graph plus payload table) that
backs both filename and semantic search.

Backend Selection:
  (default)          Provider from config; Ollama when none is set
  --backend=mlx      Use MLX (Apple Silicon, ~1.7x faster)
  --backend=ollama   Use Ollama (cross-platform)

Use --force to clear existing index data and rebuild from scratch.
Without --force, indexing reconciles: unchanged files are skipped,
changed files are re-embedded, and removed files are pruned.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Set up signal handling for Ctrl+C - this ensures context cancellation
			// propagates properly so GPU operations stop when user interrupts
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			if backend != "" {
				os.Setenv("MAVEN_EMBEDDER", backend)
			}

			return runIndex(ctx, cmd, path, false, noTUI, force)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVar(&force, "force", false, "Clear existing index and rebuild from scratch")
	cmd.Flags().StringVar(&backend, "backend", "", "Embedding backend: auto-detect (default), mlx, ollama, or static")

	cmd.AddCommand(newIndexInfoCmd())

	return cmd
}

// clearIndexData removes all index-related files from the data directory.
// This preserves the .maven.yaml config file (which is at project root, not in dataDir).
func clearIndexData(dataDir string) error {
	indexFiles := []string{
		filepath.Join(dataDir, "vectors.hnsw"),
		filepath.Join(dataDir, "vectors.hnsw.meta"),
		filepath.Join(dataDir, "payloads.db"),
		filepath.Join(dataDir, "payloads.db-wal"),
		filepath.Join(dataDir, "payloads.db-shm"),
		filepath.Join(dataDir, "filenames.bleve"),
		filepath.Join(dataDir, "metadata.db"),
		filepath.Join(dataDir, "metadata.db-wal"),
		filepath.Join(dataDir, "metadata.db-shm"),
		filepath.Join(dataDir, "bm25.db"),
		filepath.Join(dataDir, "bm25.bleve"),
	}

	for _, path := range indexFiles {
		if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", filepath.Base(path), err)
		}
	}

	return nil
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, offline, noTUI, force bool) error {
	// Initialize logging for CLI observability. File-only so it doesn't
	// interfere with user-facing progress output.
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	uiCfg := ui.NewConfig(cmd.OutOrStdout(), ui.WithForcePlain(noTUI), ui.WithProjectDir(root))
	renderer := ui.NewRenderer(uiCfg)
	if err := renderer.Start(ctx); err != nil {
		slog.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	dataDir := cfg.IndexDataDir(root)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if force {
		if err := clearIndexData(dataDir); err != nil {
			return fmt.Errorf("failed to clear index data: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Cleared existing index data, starting fresh...\n")
		slog.Info("index_force_clear", slog.String("data_dir", dataDir))
	}

	// Clean up a stale daemon.pid if the process no longer exists.
	daemonPidPath := filepath.Join(dataDir, "daemon.pid")
	if pidData, err := os.ReadFile(daemonPidPath); err == nil {
		var pid int
		if _, scanErr := fmt.Sscanf(string(pidData), "%d", &pid); scanErr == nil && pid > 0 {
			if process, findErr := os.FindProcess(pid); findErr == nil {
				if sigErr := process.Signal(syscall.Signal(0)); sigErr != nil {
					_ = os.Remove(daemonPidPath)
					slog.Debug("removed stale daemon.pid", slog.Int("pid", pid))
				}
			}
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	thermalCfg := embed.ThermalConfig{
		TimeoutProgression:     cfg.Embeddings.TimeoutProgression,
		RetryTimeoutMultiplier: cfg.Embeddings.RetryTimeoutMultiplier,
	}
	if cfg.Embeddings.InterBatchDelay != "" {
		if delay, parseErr := time.ParseDuration(cfg.Embeddings.InterBatchDelay); parseErr == nil && delay > 0 {
			thermalCfg.InterBatchDelay = delay
		}
	}
	embed.SetThermalConfig(thermalCfg)
	embed.SetMLXConfig(embed.MLXServerConfig{
		Endpoint: cfg.Embeddings.MLXEndpoint,
		Model:    cfg.Embeddings.MLXModel,
	})

	var embedder embed.Embedder
	if offline {
		embedder = embed.NewStaticEmbedder768()
	} else {
		provider := embed.ParseProvider(cfg.Embeddings.Provider)

		renderer.UpdateProgress(ui.ProgressEvent{
			Stage:   ui.StageScanning,
			Message: fmt.Sprintf("Connecting to %s embedder...", provider),
		})

		embedCtx, embedCancel := context.WithTimeout(ctx, 15*time.Second)
		embedder, err = embed.NewEmbedder(embedCtx, provider, cfg.Embeddings.Model)
		embedCancel()
		if err != nil {
			return fmt.Errorf("embedder initialization failed: %w", err)
		}
	}
	defer func() { _ = embedder.Close() }()

	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	dimensions := embedder.Dimensions()
	if !force {
		if d, err := store.ReadHNSWStoreDimensions(vectorPath); err == nil {
			dimensions = d
		}
	}
	vectorCfg := store.DefaultVectorStoreConfig(dimensions)
	vector, err := store.NewHNSWStore(vectorCfg, filepath.Join(dataDir, "payloads.db"))
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}
	defer func() { _ = vector.Close() }()

	if !force {
		if err := vector.Load(vectorPath); err != nil {
			slog.Debug("no existing vector store to load, starting fresh", slog.String("error", err.Error()))
		}
	}

	router := chunk.NewDefaultRouter(chunk.RouterConfig{
		ChunkSize:      cfg.Search.ChunkSize,
		ChunkOverlap:   cfg.Search.ChunkOverlap,
		MaxFileSize:    cfg.Performance.MaxFileSize,
		UseASTChunks:   cfg.Search.UseASTChunks,
		TextExtensions: cfg.Paths.TextExtensions,
		Separators:     cfg.Search.Separators,
	})
	semantic := index.NewSemanticIndexer(router, embedder, vector)
	matcher := policy.New(cfg.Paths.Include, cfg.Paths.Exclude)
	sync := index.NewSynchronizer(semantic, matcher)

	renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageScanning,
		Message: fmt.Sprintf("Scanning %s...", root),
	})

	result, err := sync.Sync(ctx, index.SyncConfig{
		Root:         root,
		Recursive:    true,
		ForceRebuild: force,
		Progress: func(processed, total int, message string) {
			renderer.UpdateProgress(ui.ProgressEvent{
				Stage:   ui.StageEmbedding,
				Current: processed,
				Total:   total,
				Message: message,
			})
		},
	})
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	if err := vector.Save(vectorPath); err != nil {
		return fmt.Errorf("failed to persist vector store: %w", err)
	}

	renderer.UpdateProgress(ui.ProgressEvent{
		Stage: ui.StageComplete,
		Message: fmt.Sprintf("Complete: %d added, %d updated, %d deleted, %d skipped",
			len(result.Added), len(result.Updated), len(result.Deleted), len(result.Skipped)),
	})

	for path, failErr := range result.Failures {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to index %s: %v\n", path, failErr)
	}

	return nil
}
