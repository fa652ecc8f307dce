package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rizkaitbrik/maven/internal/async"
	"github.com/rizkaitbrik/maven/internal/chunk"
	"github.com/rizkaitbrik/maven/internal/config"
	"github.com/rizkaitbrik/maven/internal/embed"
	"github.com/rizkaitbrik/maven/internal/hybrid"
	"github.com/rizkaitbrik/maven/internal/index"
	"github.com/rizkaitbrik/maven/internal/policy"
	"github.com/rizkaitbrik/maven/internal/search"
	"github.com/rizkaitbrik/maven/internal/store"
	"github.com/rizkaitbrik/maven/internal/watcher"
)

// projectState is one loaded project's pipeline: the vector store (sole
// persistent authority) plus the semantic indexer built over it, kept
// warm across searches so the embedder and HNSW graph don't pay init
// cost on every CLI invocation.
//
// cancel stops the project's background indexer and watcher:
// buildProject starts an initial full sync in the background, then
// hands off to a HybridWatcher that keeps the index live until the
// project is evicted or the daemon shuts down.
type projectState struct {
	rootPath string
	loadedAt time.Time
	lastUsed time.Time

	vector   store.VectorStore
	semantic *index.SemanticIndexer
	planner  *hybrid.Planner

	// searchType and dedup come from the project's hybrid_search config:
	// the default channel selection and whether fused hits sharing a path
	// collapse to one entry.
	searchType hybrid.SearchType
	dedup      bool

	// names is the bleve fallback filename index, non-nil only on hosts
	// without a usable metadata-search executable. Kept current from sync
	// results and watch events.
	names *search.BleveNameIndex

	cancel  context.CancelFunc
	bg      *async.BackgroundIndexer
	watcher *watcher.HybridWatcher
}

// Close stops the project's background indexer/watcher and releases its
// store. Safe to call on a zero-value projectState (no store loaded yet).
func (p *projectState) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	if p.bg != nil {
		p.bg.Stop()
	}
	if p.watcher != nil {
		_ = p.watcher.Stop()
	}
	if p.names != nil {
		_ = p.names.Close()
	}
	if p.vector == nil {
		return nil
	}
	return p.vector.Close()
}

// Daemon keeps one embedder and up to Config.MaxProjects project pipelines
// warm behind a Unix socket, so repeated CLI searches skip embedder/store
// init. It implements RequestHandler directly: no adapter layer
// sits between the wire protocol and the hybrid query planner.
type Daemon struct {
	cfg      Config
	embedder embed.Embedder

	mu       sync.RWMutex
	projects map[string]*projectState
	started  time.Time

	server  *Server
	pidFile *PIDFile

	// bgCtx outlives any individual request: it's the parent context for
	// every project's background indexer and watcher, cancelled only when
	// the daemon itself shuts down.
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// Option configures a Daemon at construction.
type Option func(*Daemon)

// WithEmbedder overrides the embedder every project pipeline shares.
// Without it, the daemon lazily builds one per project from that project's
// config the first time it's searched.
func WithEmbedder(e embed.Embedder) Option {
	return func(d *Daemon) { d.embedder = e }
}

// NewDaemon validates cfg and applies opts. The embedder, socket listener,
// and PID file are not touched until Start.
func NewDaemon(cfg Config, opts ...Option) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	d := &Daemon{
		cfg:      cfg,
		projects: make(map[string]*projectState),
		pidFile:  NewPIDFile(cfg.PIDPath),
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start brings up the PID file and the RPC server, and blocks until ctx
// is cancelled. On cancellation it shuts the server down, removes the PID
// file, and releases every loaded project before returning ctx.Err().
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.cfg.EnsureDir(); err != nil {
		return fmt.Errorf("prepare daemon directories: %w", err)
	}

	if d.pidFile.IsRunning() {
		return fmt.Errorf("daemon already running")
	}
	_ = d.pidFile.Remove() // drop any stale PID file left by a crashed instance
	if err := d.pidFile.Write(); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	defer func() { _ = d.pidFile.Remove() }()

	server, err := NewServer(d.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	server.SetHandler(d)
	d.server = server

	d.mu.Lock()
	d.started = time.Now()
	d.mu.Unlock()

	defer d.cleanup()

	return server.ListenAndServe(ctx)
}

// HandleSearch implements RequestHandler: it loads (or reuses) the
// project at params.RootPath, fails fast if it has never been indexed,
// and runs the hybrid query planner over it.
func (d *Daemon) HandleSearch(ctx context.Context, params SearchParams) ([]SearchResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	proj, err := d.loadProject(ctx, params.RootPath)
	if err != nil {
		return nil, err
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 10
	}

	resp := proj.planner.Search(ctx, hybrid.Request{
		Query:       params.Query,
		Page:        1,
		Size:        limit,
		SearchType:  proj.searchType,
		Deduplicate: proj.dedup,
	})

	results := make([]SearchResult, 0, len(resp.Results))
	for _, hit := range resp.Results {
		results = append(results, SearchResult{
			FilePath: hit.Path,
			Score:    hit.Score,
			Content:  hit.Snippet,
		})
	}
	return results, nil
}

// GetStatus implements RequestHandler.
func (d *Daemon) GetStatus() StatusResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := StatusResult{
		Running:        true,
		PID:            os.Getpid(),
		Uptime:         time.Since(d.started).Round(time.Second).String(),
		ProjectsLoaded: len(d.projects),
	}
	if d.embedder == nil {
		status.EmbedderType = "unavailable"
		status.EmbedderStatus = "unavailable"
		return status
	}
	status.EmbedderType = d.embedder.ModelName()
	status.EmbedderStatus = "ready"
	return status
}

// loadProject returns the cached pipeline for rootPath, building one if
// this is the first search against it. A root with no existing index
// data fails fast rather than silently creating an empty one: searching
// a never-indexed root is a caller error, not a store miss.
func (d *Daemon) loadProject(ctx context.Context, rootPath string) (*projectState, error) {
	d.mu.Lock()
	if proj, ok := d.projects[rootPath]; ok {
		proj.lastUsed = time.Now()
		d.mu.Unlock()
		return proj, nil
	}
	d.mu.Unlock()

	projCfg, err := config.Load(rootPath)
	if err != nil {
		projCfg = config.NewConfig()
	}
	dataDir := projCfg.IndexDataDir(rootPath)
	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	if _, err := os.Stat(vectorPath); err != nil {
		return nil, fmt.Errorf("no index found at %s: run 'maven index' first", rootPath)
	}

	proj, err := d.buildProject(ctx, rootPath, dataDir, vectorPath)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.projects[rootPath] = proj
	d.evictLRU()
	d.mu.Unlock()

	return proj, nil
}

// buildProject opens rootPath's persisted store and wires a
// SemanticIndexer and Planner over it, sharing the daemon's embedder
// when one was configured.
func (d *Daemon) buildProject(ctx context.Context, rootPath, dataDir, vectorPath string) (*projectState, error) {
	cfg, err := config.Load(rootPath)
	if err != nil {
		cfg = config.NewConfig()
	}

	embedder := d.embedder
	if embedder == nil {
		embedder, err = embed.NewEmbedder(ctx, embed.ParseProvider(cfg.Embeddings.Provider), cfg.Embeddings.Model)
		if err != nil {
			return nil, fmt.Errorf("init embedder: %w", err)
		}
	}

	dims, err := store.ReadHNSWStoreDimensions(vectorPath)
	if err != nil {
		dims = embedder.Dimensions()
	}

	vectorCfg := store.DefaultVectorStoreConfig(dims)
	vector, err := store.NewHNSWStore(vectorCfg, filepath.Join(dataDir, "payloads.db"))
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	if err := vector.Load(vectorPath); err != nil {
		_ = vector.Close()
		return nil, fmt.Errorf("load vector store: %w", err)
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

	// Filename channel: shells out to the host's metadata search tool. A
	// missing/unsupported executable degrades to empty results, not a
	// construction failure. Concrete directory entries of the allow-list
	// become scope restrictions; glob entries filter post-hoc via matcher.
	searchRoot := cfg.Paths.Root
	if searchRoot == "" {
		searchRoot = rootPath
	}
	var allowedDirs []string
	for _, p := range cfg.Paths.Include {
		if filepath.IsAbs(p) && !strings.ContainsAny(p, "*?[") {
			allowedDirs = append(allowedDirs, p)
		}
	}

	// Prefer the OS metadata-search tool; hosts without one get the bleve
	// fallback filename index, populated from sync results below.
	var nameIndex search.NameIndex
	var names *search.BleveNameIndex
	execIdx := search.NewExecNameIndex()
	if _, lookErr := exec.LookPath(execIdx.Command); lookErr == nil {
		nameIndex = execIdx
	} else if bn, bErr := search.NewBleveNameIndex(filepath.Join(dataDir, "filenames.bleve")); bErr == nil {
		nameIndex, names = bn, bn
	} else {
		slog.Warn("filename fallback index unavailable", slog.Any("error", bErr))
		nameIndex = execIdx // degrades to empty filename results
	}
	filename := search.NewFilenameAdapter(nameIndex, matcher, searchRoot, allowedDirs)

	planner := hybrid.NewPlanner(filename, semantic, hybrid.Weights{
		Filename: cfg.HybridSearch.FilenameWeight,
		Content:  cfg.HybridSearch.ContentWeight,
	})
	if planner.Weights.Filename == 0 && planner.Weights.Content == 0 {
		planner.Weights = hybrid.DefaultWeights()
	}
	sync := index.NewSynchronizer(semantic, matcher)

	// runSync reconciles the tree and mirrors the outcome into the bleve
	// fallback filename index when one is in play.
	runSync := func(syncCtx context.Context) (*index.SyncResult, error) {
		res, err := sync.Sync(syncCtx, index.SyncConfig{Root: rootPath, Recursive: true})
		if res != nil && names != nil {
			_ = names.IndexPaths(syncCtx, append(append([]string{}, res.Added...), res.Updated...))
			_ = names.DeletePaths(res.Deleted)
		}
		return res, err
	}

	planner.AutoIndexOnSearch = cfg.HybridSearch.AutoIndexOnSearch
	planner.TriggerSync = func(syncCtx context.Context) {
		_, _ = runSync(syncCtx)
	}

	searchType := hybrid.SearchType(cfg.HybridSearch.DefaultSearchType)
	if searchType == "" {
		searchType = hybrid.SearchTypeHybrid
	}
	if !cfg.HybridSearch.Enabled {
		// Fusion disabled: unqualified searches consult the semantic
		// channel alone.
		searchType = hybrid.SearchTypeContent
	}

	// Background indexer + watcher: run the project's initial full sync in
	// the background; its OnReady hook hands the project off to a
	// HybridWatcher that keeps the index live for as long as the project
	// stays loaded. Both are bound to the daemon's long-lived bgCtx, not
	// the (short-lived) request ctx that triggered this load.
	projCtx, projCancel := context.WithCancel(d.bgCtx)
	bg := async.NewBackgroundIndexer(async.IndexerConfig{DataDir: dataDir})
	bg.IndexFunc = func(syncCtx context.Context, _ *async.IndexProgress) error {
		_, err := runSync(syncCtx)
		return err
	}

	proj := &projectState{
		rootPath:   rootPath,
		loadedAt:   time.Now(),
		lastUsed:   time.Now(),
		vector:     vector,
		semantic:   semantic,
		planner:    planner,
		cancel:     projCancel,
		bg:         bg,
		searchType: searchType,
		dedup:      cfg.HybridSearch.Deduplicate,
		names:      names,
	}

	if cfg.Performance.EnableWatcher {
		bg.OnReady = func(readyCtx context.Context) {
			hw, werr := d.startWatcher(readyCtx, rootPath, sync, names, cfg)
			if werr != nil {
				slog.Warn("failed to start watcher", slog.String("root", rootPath), slog.Any("error", werr))
				return
			}
			d.mu.Lock()
			if current, ok := d.projects[rootPath]; ok && current == proj {
				proj.watcher = hw
			} else {
				_ = hw.Stop() // project was evicted/replaced while we were starting up
			}
			d.mu.Unlock()
		}
	}
	bg.Start(projCtx)

	return proj, nil
}

// startWatcher builds and starts a HybridWatcher over rootPath and drains
// its debounced event batches into sync.ApplyWatchEvents until ctx is
// cancelled. Start blocks its own run loop, so both the watcher and the
// drain loop run on dedicated goroutines.
func (d *Daemon) startWatcher(ctx context.Context, rootPath string, sync *index.Synchronizer, names *search.BleveNameIndex, cfg *config.Config) (*watcher.HybridWatcher, error) {
	debounce, err := time.ParseDuration(cfg.Performance.WatchDebounce)
	if err != nil || debounce <= 0 {
		debounce = watcher.DefaultOptions().DebounceWindow
	}

	// The watcher enforces the same allow/block rules the synchronizer
	// uses, so blocked paths never reach the debouncer.
	hw, err := watcher.NewHybridWatcher(watcher.Options{
		DebounceWindow: debounce,
		Policy:         cfg.PolicyMatcher(),
	})
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	go func() {
		if err := hw.Start(ctx, rootPath); err != nil && ctx.Err() == nil {
			slog.Warn("watcher stopped", slog.String("root", rootPath), slog.Any("error", err))
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-hw.Events():
				if !ok {
					return
				}
				res := sync.ApplyWatchEvents(ctx, rootPath, batch)
				if names != nil {
					_ = names.IndexPaths(ctx, res.Indexed)
					_ = names.DeletePaths(res.Deleted)
				}
			}
		}
	}()

	return hw, nil
}

// evictLRU drops the least-recently-used project once the loaded set
// exceeds Config.MaxProjects. Caller must hold d.mu.
func (d *Daemon) evictLRU() {
	if len(d.projects) <= d.cfg.MaxProjects {
		return
	}
	var oldestPath string
	var oldestTime time.Time
	for path, proj := range d.projects {
		if oldestPath == "" || proj.lastUsed.Before(oldestTime) {
			oldestPath, oldestTime = path, proj.lastUsed
		}
	}
	if oldestPath == "" {
		return
	}
	_ = d.projects[oldestPath].Close()
	delete(d.projects, oldestPath)
}

// cleanup releases every loaded project and the shared embedder on
// shutdown.
func (d *Daemon) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for path, proj := range d.projects {
		_ = proj.Close()
		delete(d.projects, path)
	}
	if d.embedder != nil {
		_ = d.embedder.Close()
		d.embedder = nil
	}
	d.bgCancel()
}
