package chunk

import (
	"strings"
)

// SymbolExtractor turns a parsed Tree into the source-ordered symbol
// list the code extractor slices into segments. It holds only the
// language registry; one instance is shared per CodeExtractor.
type SymbolExtractor struct {
	registry *LanguageRegistry
}

// NewSymbolExtractor builds an extractor over the default registry.
func NewSymbolExtractor() *SymbolExtractor {
	return &SymbolExtractor{registry: DefaultRegistry()}
}

// NewSymbolExtractorWithRegistry builds an extractor over registry.
func NewSymbolExtractorWithRegistry(registry *LanguageRegistry) *SymbolExtractor {
	return &SymbolExtractor{registry: registry}
}

// symbolKinds flattens a LanguageConfig's node-type lists into one
// node-type → SymbolType lookup, built once per Extract call.
func symbolKinds(config *LanguageConfig) map[string]SymbolType {
	kinds := make(map[string]SymbolType)
	add := func(types []string, kind SymbolType) {
		for _, t := range types {
			kinds[t] = kind
		}
	}
	add(config.FunctionTypes, SymbolTypeFunction)
	add(config.MethodTypes, SymbolTypeMethod)
	add(config.ClassTypes, SymbolTypeClass)
	add(config.InterfaceTypes, SymbolTypeInterface)
	add(config.TypeDefTypes, SymbolTypeType)
	add(config.ConstantTypes, SymbolTypeConstant)
	add(config.VariableTypes, SymbolTypeVariable)
	return kinds
}

// Extract walks the tree depth-first and returns one Symbol per
// symbol-defining node, in source order. Capture is top-level: a
// captured symbol's body is not re-scanned, so a method inside a
// captured class belongs to the class's symbol rather than standing
// alone. Always returns a non-nil slice.
func (e *SymbolExtractor) Extract(tree *Tree, source []byte) []*Symbol {
	symbols := []*Symbol{}
	if tree == nil || tree.Root == nil {
		return symbols
	}
	config, ok := e.registry.GetByName(tree.Language)
	if !ok {
		return symbols
	}
	kinds := symbolKinds(config)

	tree.Root.Walk(func(n *Node) bool {
		kind, isSymbol := kinds[n.Type]
		if !isSymbol {
			return true
		}
		name := symbolName(n, source)
		if name == "" {
			return true // anonymous node of a symbol type; keep scanning inside
		}
		symbols = append(symbols, &Symbol{
			Name:       name,
			Type:       kind,
			StartLine:  int(n.StartPoint.Row) + 1,
			EndLine:    int(n.EndPoint.Row) + 1,
			Signature:  signatureOf(n.GetContent(source)),
			DocComment: precedingLineComment(n, source, tree.Language),
		})
		return false
	})
	return symbols
}

// nameNodeTypes are the node types that carry a declaration's name
// across every registered grammar: plain identifiers, Go's
// field_identifier for methods, and type_identifier for type-like
// declarations.
var nameNodeTypes = map[string]bool{
	"identifier":       true,
	"field_identifier": true,
	"type_identifier":  true,
}

// symbolName resolves a declaration's name: the first name-bearing node
// within two levels. Depth two covers Go's spec-wrapped declarations
// (type_declaration → type_spec → type_identifier, const/var likewise)
// and JS/TS declarator wrapping (lexical_declaration →
// variable_declarator → identifier); everything else names itself at
// depth one.
func symbolName(n *Node, source []byte) string {
	if node := findNameNode(n, 2); node != nil {
		return node.GetContent(source)
	}
	return ""
}

// findNameNode prefers a direct child over a deeper match, so a
// function's own name wins over identifiers in its parameter list.
func findNameNode(n *Node, depth int) *Node {
	for _, child := range n.Children {
		if nameNodeTypes[child.Type] {
			return child
		}
	}
	if depth <= 1 {
		return nil
	}
	for _, child := range n.Children {
		if found := findNameNode(child, depth-1); found != nil {
			return found
		}
	}
	return nil
}

// signatureOf reduces a declaration to its first line, cut before the
// opening brace when one appears there. Python declarations keep their
// full def/class line since they carry no brace.
func signatureOf(content string) string {
	line, _, _ := strings.Cut(content, "\n")
	line = strings.TrimSpace(line)
	if i := strings.Index(line, "{"); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	return line
}

// precedingLineComment returns the line-comment text immediately above
// the declaration, for languages whose doc convention is
// comment-above (Go, JS, TS). Python keeps docs inside the body as
// docstrings, which segment content already carries, so it reports
// nothing here.
func precedingLineComment(n *Node, source []byte, language string) string {
	switch language {
	case "go", "javascript", "jsx", "typescript", "tsx":
	default:
		return ""
	}
	if n.StartPoint.Row == 0 {
		return ""
	}

	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	if lineStart <= 1 {
		return ""
	}
	prevEnd := lineStart - 1
	prevStart := prevEnd - 1
	for prevStart > 0 && source[prevStart-1] != '\n' {
		prevStart--
	}

	prev := strings.TrimSpace(string(source[prevStart:prevEnd]))
	if strings.HasPrefix(prev, "//") {
		return strings.TrimPrefix(prev, "//")
	}
	return ""
}
