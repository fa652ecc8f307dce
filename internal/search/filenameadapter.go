package search

import (
	"bufio"
	"context"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/rizkaitbrik/maven/internal/policy"
)

// DefaultNameSearchTimeout is the bounded timeout a NameIndex invocation
// gets before its results are treated as empty: metadata-search
// invocations have a 5s default timeout.
const DefaultNameSearchTimeout = 5 * time.Second

// NameIndex is the external boundary for the host OS's metadata search
// tool: invoked with "restrict scope to directory" and "query string"
// arguments, returning newline-delimited absolute paths on stdout. It is
// a dependency at the system boundary, not implemented by this package
// beyond the contract.
type NameIndex interface {
	// FindByName returns absolute paths matching query, restricted to
	// scopes when non-empty. Implementations must respect ctx's deadline.
	FindByName(ctx context.Context, query string, scopes []string) ([]string, error)
}

// ExecNameIndex shells out to an OS-native metadata search executable
// (e.g. `mdfind` on macOS, `locate`/`plocate` elsewhere), one invocation
// per scope, restricting each to that directory. Grounded on the
// exec.Command usage in the lifecycle package for the "shell out, bound
// by context, parse stdout" shape.
type ExecNameIndex struct {
	// Command is the executable name (e.g. "mdfind"). Defaults by OS via
	// NewExecNameIndex when empty.
	Command string
	// ScopeFlag is the flag used to restrict a scope, e.g. "-onlyin" for
	// mdfind. When empty, the scope is appended as a bare trailing arg.
	ScopeFlag string
}

// NewExecNameIndex returns an ExecNameIndex defaulting to the
// conventional metadata-search tool for the running OS.
func NewExecNameIndex() *ExecNameIndex {
	switch runtime.GOOS {
	case "darwin":
		return &ExecNameIndex{Command: "mdfind", ScopeFlag: "-onlyin"}
	default:
		return &ExecNameIndex{Command: "locate"}
	}
}

// FindByName invokes Command once per scope (or once, unscoped, when
// scopes is empty) and merges newline-delimited stdout paths. A timeout
// or non-zero exit on any invocation yields an empty result for that
// invocation rather than aborting the others.
func (e *ExecNameIndex) FindByName(ctx context.Context, query string, scopes []string) ([]string, error) {
	if len(scopes) == 0 {
		return e.run(ctx, query, "")
	}
	var out []string
	for _, scope := range scopes {
		paths, _ := e.run(ctx, query, scope)
		out = append(out, paths...)
	}
	return out, nil
}

func (e *ExecNameIndex) run(ctx context.Context, query, scope string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultNameSearchTimeout)
	defer cancel()

	args := []string{}
	if scope != "" {
		if e.ScopeFlag != "" {
			args = append(args, e.ScopeFlag, scope)
		} else {
			args = append(args, scope)
		}
	}
	args = append(args, query)

	cmd := exec.CommandContext(ctx, e.Command, args...)
	stdout, err := cmd.Output()
	if err != nil {
		return nil, nil // timeout/non-zero exit -> empty result
	}

	var paths []string
	scanner := bufio.NewScanner(strings.NewReader(string(stdout)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// FilenameHit is one ranked, scored filename-channel result.
type FilenameHit struct {
	Path  string
	Score float64
}

// FilenameAdapter wraps a NameIndex with allow/block filtering, scope
// computation, ranking, and pagination.
type FilenameAdapter struct {
	Index       NameIndex
	Matcher     *policy.Matcher
	DefaultRoot string
	// AllowedDirs are concrete directory paths (not glob patterns) drawn
	// from the allow-list, passed to NameIndex as scope restrictions.
	// Glob patterns in the allow-list are filtered post-hoc by Matcher
	// instead.
	AllowedDirs []string
}

// NewFilenameAdapter builds a FilenameAdapter. allowedDirs should contain
// only the concrete (non-glob) directory entries of the allow-list; glob
// patterns belong in matcher instead.
func NewFilenameAdapter(index NameIndex, matcher *policy.Matcher, defaultRoot string, allowedDirs []string) *FilenameAdapter {
	return &FilenameAdapter{Index: index, Matcher: matcher, DefaultRoot: defaultRoot, AllowedDirs: allowedDirs}
}

// Search computes scopes, invokes the tool, filters by allow/block,
// ranks by position, then paginates.
func (a *FilenameAdapter) Search(ctx context.Context, query string, page, size int) ([]FilenameHit, int, error) {
	scopes := a.AllowedDirs
	if len(scopes) == 0 && a.DefaultRoot != "" {
		scopes = []string{a.DefaultRoot}
	}

	paths, err := a.Index.FindByName(ctx, query, scopes)
	if err != nil {
		return nil, 0, err
	}

	var filtered []string
	for _, p := range paths {
		if a.Matcher == nil || a.Matcher.Admitted(p) {
			filtered = append(filtered, p)
		}
	}

	total := len(filtered)
	hits := make([]FilenameHit, total)
	for i, p := range filtered {
		hits[i] = FilenameHit{Path: p, Score: 1 - float64(i)/float64(total)}
	}

	offset := (page - 1) * size
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []FilenameHit{}, total, nil
	}
	end := offset + size
	if end > total {
		end = total
	}
	return hits[offset:end], total, nil
}
