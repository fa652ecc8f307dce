package chunk

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageRegistry maps extensions to language configs and language
// names to tree-sitter grammars. It is assembled once from the
// definition table below and never mutated afterwards, so reads need no
// locking — it is data, not runtime configuration.
type LanguageRegistry struct {
	configs   map[string]*LanguageConfig
	extToLang map[string]string
	grammars  map[string]*sitter.Language
}

// languageDefinition pairs a config with the grammar that parses it.
type languageDefinition struct {
	config  *LanguageConfig
	grammar *sitter.Language
}

// languageDefinitions is the curated grammar table: the four language
// families the indexer segments by AST, with the node types that count
// as symbol boundaries in each. Dialects (tsx, jsx) share their parent's
// node-type lists and differ only in name, extension, and grammar.
//
// Notes on the curation:
//   - Go has no classes; interfaces arrive as type_declaration, so both
//     class and interface lists stay empty and type_declaration covers
//     structs, interfaces, and aliases alike.
//   - TS/JS const/let (lexical_declaration) counts as a constant even
//     when the bound value is an arrow function — the segment content
//     carries the function body either way.
//   - Python methods are function_definition nodes inside a
//     class_definition; top-level capture folds them into their class's
//     segment, so the method list stays empty.
func languageDefinitions() []languageDefinition {
	goConfig := &LanguageConfig{
		Name:          "go",
		Extensions:    []string{".go"},
		FunctionTypes: []string{"function_declaration"},
		MethodTypes:   []string{"method_declaration"},
		TypeDefTypes:  []string{"type_declaration"},
		ConstantTypes: []string{"const_declaration"},
		VariableTypes: []string{"var_declaration"},
	}

	tsConfig := &LanguageConfig{
		Name:           "typescript",
		Extensions:     []string{".ts"},
		FunctionTypes:  []string{"function_declaration"},
		MethodTypes:    []string{"method_definition"},
		ClassTypes:     []string{"class_declaration"},
		InterfaceTypes: []string{"interface_declaration"},
		TypeDefTypes:   []string{"type_alias_declaration"},
		ConstantTypes:  []string{"lexical_declaration"},
		VariableTypes:  []string{"variable_declaration"},
	}

	jsConfig := &LanguageConfig{
		Name:          "javascript",
		Extensions:    []string{".js", ".mjs"},
		FunctionTypes: []string{"function_declaration", "function"},
		MethodTypes:   []string{"method_definition"},
		ClassTypes:    []string{"class_declaration"},
		ConstantTypes: []string{"lexical_declaration"},
		VariableTypes: []string{"variable_declaration"},
	}

	pyConfig := &LanguageConfig{
		Name:          "python",
		Extensions:    []string{".py"},
		FunctionTypes: []string{"function_definition"},
		ClassTypes:    []string{"class_definition"},
		VariableTypes: []string{"assignment"},
	}

	return []languageDefinition{
		{goConfig, golang.GetLanguage()},
		{tsConfig, typescript.GetLanguage()},
		{dialect(tsConfig, "tsx", ".tsx"), tsx.GetLanguage()},
		{jsConfig, javascript.GetLanguage()},
		{dialect(jsConfig, "jsx", ".jsx"), javascript.GetLanguage()},
		{pyConfig, python.GetLanguage()},
	}
}

// dialect clones a base config for a dialect that shares its node-type
// lists under a different name and extension set.
func dialect(base *LanguageConfig, name string, extensions ...string) *LanguageConfig {
	clone := *base
	clone.Name = name
	clone.Extensions = extensions
	return &clone
}

// NewLanguageRegistry assembles a registry from the definition table.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:   make(map[string]*LanguageConfig),
		extToLang: make(map[string]string),
		grammars:  make(map[string]*sitter.Language),
	}
	for _, def := range languageDefinitions() {
		r.configs[def.config.Name] = def.config
		r.grammars[def.config.Name] = def.grammar
		for _, ext := range def.config.Extensions {
			r.extToLang[ext] = def.config.Name
		}
	}
	return r
}

// GetByExtension resolves a (dot-prefixed or bare) extension to its
// language config.
func (r *LanguageRegistry) GetByExtension(ext string) (*LanguageConfig, bool) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	langName, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}
	config, ok := r.configs[langName]
	return config, ok
}

// GetByName resolves a language name to its config.
func (r *LanguageRegistry) GetByName(name string) (*LanguageConfig, bool) {
	config, ok := r.configs[name]
	return config, ok
}

// GetTreeSitterLanguage resolves a language name to its grammar.
func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	grammar, ok := r.grammars[name]
	return grammar, ok
}

// SupportedExtensions lists every extension some registered language
// claims.
func (r *LanguageRegistry) SupportedExtensions() []string {
	exts := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		exts = append(exts, ext)
	}
	return exts
}

// defaultRegistry is assembled once at init. It is an immutable data
// table (grammar pointers and node-type lists), not mutable process
// state; constructors still take a *LanguageRegistry so tests can
// substitute their own.
var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the shared immutable registry.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}
