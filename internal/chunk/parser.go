package chunk

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Parser wraps one tree-sitter parser instance, re-targeted per call to
// whichever grammar the registry maps the requested language to. A
// CodeExtractor owns one Parser for its lifetime.
type Parser struct {
	parser   *sitter.Parser
	registry *LanguageRegistry
}

// NewParser builds a Parser over the default language registry.
func NewParser() *Parser {
	return NewParserWithRegistry(DefaultRegistry())
}

// NewParserWithRegistry builds a Parser over registry.
func NewParserWithRegistry(registry *LanguageRegistry) *Parser {
	return &Parser{
		parser:   sitter.NewParser(),
		registry: registry,
	}
}

// Parse parses source as language and converts the raw tree-sitter tree
// into this package's Tree. Syntax errors do not fail the parse:
// tree-sitter produces a partial tree with error nodes, which symbol
// extraction walks past.
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	grammar, ok := p.registry.GetTreeSitterLanguage(language)
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", language)
	}
	p.parser.SetLanguage(grammar)

	raw, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse source: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("parse source: nil tree")
	}

	return &Tree{
		Root:     convertNode(raw.RootNode()),
		Source:   source,
		Language: language,
	}, nil
}

// Close releases the underlying tree-sitter parser.
func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

// convertNode copies a tree-sitter node (and recursively its children)
// into the package-local Node shape, detaching the tree from the cgo-side
// lifetime so it can outlive the parse call.
func convertNode(raw *sitter.Node) *Node {
	if raw == nil {
		return nil
	}

	node := &Node{
		Type:      raw.Type(),
		StartByte: raw.StartByte(),
		EndByte:   raw.EndByte(),
		StartPoint: Point{
			Row:    raw.StartPoint().Row,
			Column: raw.StartPoint().Column,
		},
		EndPoint: Point{
			Row:    raw.EndPoint().Row,
			Column: raw.EndPoint().Column,
		},
		HasError: raw.HasError(),
		Children: make([]*Node, 0, int(raw.ChildCount())),
	}
	for i := 0; i < int(raw.ChildCount()); i++ {
		if child := raw.Child(i); child != nil {
			node.Children = append(node.Children, convertNode(child))
		}
	}
	return node
}

// GetContent returns the source text a node spans, or "" for a
// degenerate range.
func (n *Node) GetContent(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// Walk visits n and its descendants depth-first in source order. fn
// returning false prunes the subtree under the visited node.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}
