package mcp

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ProjectDetector names and types the project an MCP client connected
// to, from whichever manifest the root carries. The result only feeds
// resource labels, so detection stays shallow — no full manifest
// parsing.
type ProjectDetector struct {
	rootPath string
	logger   *slog.Logger
}

// NewProjectDetector builds a detector for rootPath.
func NewProjectDetector(rootPath string, logger *slog.Logger) *ProjectDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectDetector{rootPath: rootPath, logger: logger}
}

// Detect tries the manifests in precedence order — go.mod, package.json,
// pyproject.toml — and falls back to the directory name with type
// "unknown".
func (d *ProjectDetector) Detect() *ProjectInfo {
	info := &ProjectInfo{
		RootPath: d.rootPath,
		Name:     filepath.Base(d.rootPath),
		Type:     "unknown",
	}

	probes := []struct {
		projectType string
		detect      func() string
	}{
		{"go", d.detectGoMod},
		{"node", d.detectPackageJSON},
		{"python", d.detectPyproject},
	}
	for _, probe := range probes {
		if name := probe.detect(); name != "" {
			info.Name = name
			info.Type = probe.projectType
			return info
		}
	}
	return info
}

// detectGoMod reads the module line of go.mod and keeps its last path
// segment.
func (d *ProjectDetector) detectGoMod() string {
	file, err := os.Open(filepath.Join(d.rootPath, "go.mod"))
	if err != nil {
		return ""
	}
	defer func() { _ = file.Close() }()

	moduleRegex := regexp.MustCompile(`^module\s+(.+)$`)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if matches := moduleRegex.FindStringSubmatch(line); len(matches) > 1 {
			return filepath.Base(matches[1])
		}
	}
	return ""
}

// detectPackageJSON reads package.json's name, unscoping "@org/name" to
// "name".
func (d *ProjectDetector) detectPackageJSON() string {
	data, err := os.ReadFile(filepath.Join(d.rootPath, "package.json"))
	if err != nil {
		return ""
	}

	var pkg struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil || pkg.Name == "" {
		return ""
	}

	name := pkg.Name
	if strings.HasPrefix(name, "@") {
		if parts := strings.Split(name, "/"); len(parts) > 1 {
			name = parts[len(parts)-1]
		}
	}
	return name
}

// detectPyproject scans pyproject.toml for the [project] section's name.
// Line-oriented scanning is enough here; pulling in a TOML parser for
// one field would be the only use in the module.
func (d *ProjectDetector) detectPyproject() string {
	file, err := os.Open(filepath.Join(d.rootPath, "pyproject.toml"))
	if err != nil {
		return ""
	}
	defer func() { _ = file.Close() }()

	nameRegex := regexp.MustCompile(`^\s*name\s*=\s*["']([^"']+)["']`)
	inProjectSection := false

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "[") {
			inProjectSection = strings.TrimSpace(line) == "[project]"
			continue
		}
		if inProjectSection {
			if matches := nameRegex.FindStringSubmatch(line); len(matches) > 1 {
				return matches[1]
			}
		}
	}
	return ""
}
