package mcp

import (
	"path/filepath"
	"strings"
)

// mimeTypes covers the extensions the indexer plausibly serves as MCP
// resources: the AST-chunked languages first, then the text formats the
// plain extractor claims, then common source extensions clients may ask
// for directly.
var mimeTypes = map[string]string{
	// AST-chunked languages
	".go":  "text/x-go",
	".ts":  "text/typescript",
	".tsx": "text/typescript",
	".js":  "text/javascript",
	".jsx": "text/javascript",
	".mjs": "text/javascript",
	".py":  "text/x-python",

	// Go module files
	".mod": "text/x-go.mod",
	".sum": "text/x-go.sum",

	// Text and markup the plain extractor indexes
	".md":   "text/markdown",
	".mdx":  "text/markdown",
	".txt":  "text/plain",
	".rst":  "text/x-rst",
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".scss": "text/x-scss",
	".json": "application/json",
	".yaml": "text/x-yaml",
	".yml":  "text/x-yaml",
	".xml":  "text/xml",
	".toml": "text/x-toml",
	".env":  "text/plain",
	".ini":  "text/plain",
	".conf": "text/plain",

	// Other source a client may open through the resource surface
	".sh":   "text/x-sh",
	".bash": "text/x-sh",
	".zsh":  "text/x-sh",
	".sql":  "text/x-sql",
	".c":    "text/x-c",
	".cpp":  "text/x-c++",
	".h":    "text/x-c",
	".hpp":  "text/x-c++",
	".java": "text/x-java",
	".rs":   "text/x-rust",
	".rb":   "text/x-ruby",
	".php":  "text/x-php",
}

// specialFilenames types the extension-less build files by exact name.
var specialFilenames = map[string]string{
	"Dockerfile":     "text/x-dockerfile",
	"Makefile":       "text/x-makefile",
	"Jenkinsfile":    "text/x-groovy",
	"Vagrantfile":    "text/x-ruby",
	"Gemfile":        "text/x-ruby",
	"Rakefile":       "text/x-ruby",
	"CMakeLists.txt": "text/x-cmake",
}

// MimeTypeForPath types a path: exact filename first (Makefile beats
// .txt-style fallthrough), then extension, then text/plain.
func MimeTypeForPath(path string) string {
	base := filepath.Base(path)
	if mime, ok := specialFilenames[base]; ok {
		return mime
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != "" {
		if mime, ok := mimeTypes[ext]; ok {
			return mime
		}
	}
	return "text/plain"
}
