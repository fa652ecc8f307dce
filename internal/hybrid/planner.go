// Package hybrid implements the hybrid query planner: it
// fans a query out to the filename channel (internal/search's
// FilenameAdapter) and the semantic channel (internal/index's
// SemanticIndexer) in parallel, fuses their scores, and paginates. It
// sits above both so that internal/index (which internal/search already
// depends on for its watcher-driven coordinator) never has to import
// this package back.
package hybrid

import (
	"context"
	"sort"

	"github.com/rizkaitbrik/maven/internal/index"
	"github.com/rizkaitbrik/maven/internal/search"
	"golang.org/x/sync/errgroup"
)

// Weights configures per-channel score weights for hybrid fusion.
// Both default to 1.0.
type Weights struct {
	Filename float64
	Content  float64
}

// DefaultWeights returns the default (untuned) weights.
func DefaultWeights() Weights {
	return Weights{Filename: 1.0, Content: 1.0}
}

// Request is the wire-level search request:
// {query, page >= 1, size >= 1, search_type}. SearchType selects which
// channel(s) Planner.Search consults.
type Request struct {
	Query       string
	Page        int
	Size        int
	SearchType  SearchType
	Deduplicate bool
}

// SearchType selects which channel(s) a request consults:
// search_type ∈ {filename, content, hybrid}.
type SearchType string

const (
	SearchTypeFilename SearchType = "filename"
	SearchTypeContent  SearchType = "content"
	SearchTypeHybrid   SearchType = "hybrid"
)

// Hit is one entry of a hybrid search response: {path, score, snippet?,
// line_number?, match_type?, metadata?}.
type Hit struct {
	Path       string
	Score      float64
	Snippet    string
	LineNumber int
	MatchType  string
	// MatchTypes lists every channel that produced this path, attached as
	// result metadata; MatchedIn is kept as an alias for callers that
	// predate the rename.
	MatchTypes []string
	MatchedIn  []string
	Combined   bool
}

// Response is the wire-level search response: {query,
// page, size, total, search_type, results}. Total is the merged,
// pre-pagination count.
type Response struct {
	Query      string
	Page       int
	Size       int
	Total      int
	SearchType SearchType
	Results    []Hit
}

// Planner fans a query out to the filename channel and the semantic
// channel in parallel, applies per-channel weights, deduplicates by
// path, and paginates.
type Planner struct {
	Filename *search.FilenameAdapter
	Semantic *index.SemanticIndexer
	Weights  Weights

	// AutoIndexOnSearch triggers a one-shot background sync if the store
	// is empty and auto_index_on_search is enabled. The caller supplies
	// the sync trigger; Planner only decides when to call it.
	AutoIndexOnSearch bool
	TriggerSync       func(ctx context.Context)
}

// NewPlanner builds a Planner. A nil Filename or Semantic channel is
// treated as permanently empty for that channel: if either channel
// fails, Planner substitutes an empty result for it.
func NewPlanner(filename *search.FilenameAdapter, semantic *index.SemanticIndexer, weights Weights) *Planner {
	return &Planner{Filename: filename, Semantic: semantic, Weights: weights}
}

const fanOutPageSize = 1000 // large local cap prior to merge

// Search runs the hybrid plan for req and returns the fused, paginated
// response.
func (p *Planner) Search(ctx context.Context, req Request) *Response {
	if p.AutoIndexOnSearch && p.TriggerSync != nil && p.Semantic != nil && p.Semantic.Store.Count() == 0 {
		p.TriggerSync(ctx)
	}

	var filenameHits []search.FilenameHit
	var contentHits []index.ScoredEntry

	switch req.SearchType {
	case SearchTypeFilename:
		filenameHits, _ = p.searchFilename(ctx, req.Query)
	case SearchTypeContent:
		contentHits, _ = p.searchSemantic(ctx, req.Query)
	default:
		filenameHits, contentHits = p.fanOut(ctx, req.Query)
	}

	groups := p.fuse(filenameHits, contentHits, req.Deduplicate)
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Score > groups[j].Score })

	total := len(groups)
	page, size := req.Page, req.Size
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	offset := (page - 1) * size
	var paged []Hit
	if offset < total {
		end := offset + size
		if end > total {
			end = total
		}
		paged = groups[offset:end]
	} else {
		paged = []Hit{}
	}

	searchType := req.SearchType
	if searchType == "" {
		searchType = SearchTypeHybrid
	}
	return &Response{
		Query:      req.Query,
		Page:       page,
		Size:       size,
		Total:      total,
		SearchType: searchType,
		Results:    paged,
	}
}

func (p *Planner) searchFilename(ctx context.Context, query string) ([]search.FilenameHit, error) {
	if p.Filename == nil {
		return nil, nil
	}
	hits, _, err := p.Filename.Search(ctx, query, 1, fanOutPageSize)
	if err != nil {
		return nil, err
	}
	return hits, nil
}

func (p *Planner) searchSemantic(ctx context.Context, query string) ([]index.ScoredEntry, error) {
	if p.Semantic == nil {
		return nil, nil
	}
	return p.Semantic.Search(ctx, query, fanOutPageSize, nil)
}

// fanOut runs both channels concurrently with page=1, size=1000,
// substituting an empty slice for any channel that errors or is absent.
// If both channels fail, both come back empty and the fused result is
// empty too.
func (p *Planner) fanOut(ctx context.Context, query string) ([]search.FilenameHit, []index.ScoredEntry) {
	var filenameHits []search.FilenameHit
	var contentHits []index.ScoredEntry

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hits, err := p.searchFilename(gctx, query)
		if err == nil {
			filenameHits = hits
		}
		return nil // a channel failure never aborts the other channel
	})

	g.Go(func() error {
		hits, err := p.searchSemantic(gctx, query)
		if err == nil {
			contentHits = hits
		}
		return nil
	})

	_ = g.Wait() // both goroutines always return nil; failures are absorbed per-channel above

	return filenameHits, contentHits
}

// fuse weights each channel's similarity, groups by absolute path, and
// (when dedup is requested) collapses each group to its
// highest-scoring entry.
func (p *Planner) fuse(filenameHits []search.FilenameHit, contentHits []index.ScoredEntry, dedup bool) []Hit {
	type group struct {
		best      Hit
		all       []Hit
		hasBest   bool
		matchedIn map[string]bool
	}
	groups := make(map[string]*group)

	getGroup := func(path string) *group {
		g, ok := groups[path]
		if !ok {
			g = &group{matchedIn: map[string]bool{}}
			groups[path] = g
		}
		return g
	}

	for _, h := range filenameHits {
		hit := Hit{Path: h.Path, Score: h.Score * p.Weights.Filename, MatchType: "filename"}
		g := getGroup(h.Path)
		g.matchedIn["filename"] = true
		g.all = append(g.all, hit)
		if !g.hasBest || hit.Score > g.best.Score {
			g.best, g.hasBest = hit, true
		}
	}

	for _, h := range contentHits {
		path, _ := h.Entry.Metadata["path"].(string)
		if path == "" {
			continue
		}
		hit := Hit{
			Path:      path,
			Score:     float64(h.Score) * p.Weights.Content,
			Snippet:   snippetOf(h.Entry.Content),
			MatchType: "content",
		}
		// start_line arrives as int64 fresh from the chunker but as
		// float64 after a round-trip through the payload table's JSON.
		switch line := h.Entry.Metadata["start_line"].(type) {
		case int64:
			hit.LineNumber = int(line)
		case float64:
			hit.LineNumber = int(line)
		}
		g := getGroup(path)
		g.matchedIn["content"] = true
		g.all = append(g.all, hit)
		// The highest weighted score wins the group, but a content-channel
		// snippet is preserved when present even if the filename-channel
		// hit ends up with the top score.
		if !g.hasBest || hit.Score > g.best.Score {
			g.best, g.hasBest = hit, true
		}
	}

	var out []Hit
	for path, g := range groups {
		matched := matchedInList(g.matchedIn)
		if dedup {
			best := g.best
			best.Path = path
			best.MatchedIn = matched
			best.MatchTypes = matched
			best.Combined = len(matched) > 1
			if best.Snippet == "" {
				for _, h := range g.all {
					if h.Snippet != "" {
						best.Snippet = h.Snippet
						break
					}
				}
			}
			out = append(out, best)
			continue
		}
		for _, h := range g.all {
			h.MatchedIn = matched
			h.MatchTypes = matched
			h.Combined = len(matched) > 1
			out = append(out, h)
		}
	}
	return out
}

func matchedInList(m map[string]bool) []string {
	var out []string
	if m["filename"] {
		out = append(out, "filename")
	}
	if m["content"] {
		out = append(out, "content")
	}
	return out
}

func snippetOf(content string) string {
	const maxLen = 240
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen]
}
