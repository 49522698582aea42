// Package parser wraps the tree-sitter grammars used for syntax checks.
package parser

import (
	"context"
	"fmt"

	"fortio.org/safecast"
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// SyntaxError is one ERROR or MISSING node. Positions are 1-based.
type SyntaxError struct {
	Line      int
	Column    int
	EndLine   int
	EndColumn int
	Missing   bool
	Kind      string
}

func (e SyntaxError) Message() string {
	if e.Missing {
		return fmt.Sprintf("missing %s", e.Kind)
	}
	return "syntax error"
}

// Parser is the shared syntax front end: one registry, one grammar loader
// and one pool per language.
type Parser struct {
	registry *Registry
	loader   *GrammarLoader
	pools    *PoolSet
}

func NewParser(registry *Registry, loader *GrammarLoader) *Parser {
	return &Parser{registry: registry, loader: loader, pools: NewPoolSet(loader)}
}

// NewDefaultParser builds a Parser over the default registry.
func NewDefaultParser() (*Parser, error) {
	registry := NewRegistry(nil)
	loader, err := NewGrammarLoader(registry)
	if err != nil {
		return nil, err
	}
	return NewParser(registry, loader), nil
}

func (p *Parser) Registry() *Registry { return p.registry }

// HasGrammar reports whether language can be parsed with tree-sitter.
func (p *Parser) HasGrammar(language string) bool {
	_, ok := p.loader.Language(language)
	return ok
}

// SyntaxErrors parses source and lists its error nodes in document order.
// ok is false when no grammar exists for language.
func (p *Parser) SyntaxErrors(ctx context.Context, language, source string) (errs []SyntaxError, ok bool, err error) {
	pool := p.pools.For(language)
	if pool == nil {
		return nil, false, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, true, err
	}

	sp := pool.Get()
	defer pool.Put(sp)

	tree := sp.Parse([]byte(source), nil)
	if tree == nil {
		return nil, true, fmt.Errorf("tree-sitter returned no tree for %s source", language)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || !root.HasError() {
		return nil, true, nil
	}
	collectErrors(root, &errs)
	if len(errs) == 0 {
		// HasError without a locatable node: report the root.
		errs = append(errs, toSyntaxError(root))
	}
	return errs, true, nil
}

func collectErrors(node *sitter.Node, out *[]SyntaxError) {
	if node.IsError() || node.IsMissing() {
		*out = append(*out, toSyntaxError(node))
		return
	}
	if !node.HasError() {
		return
	}
	count := node.ChildCount()
	for i := uint(0); i < count; i++ {
		child := node.Child(i)
		if child != nil {
			collectErrors(child, out)
		}
	}
}

func toSyntaxError(node *sitter.Node) SyntaxError {
	start := node.StartPosition()
	end := node.EndPosition()
	return SyntaxError{
		Line:      toInt(start.Row) + 1,
		Column:    toInt(start.Column) + 1,
		EndLine:   toInt(end.Row) + 1,
		EndColumn: toInt(end.Column) + 1,
		Missing:   node.IsMissing(),
		Kind:      node.Kind(),
	}
}

func toInt(v uint) int {
	n, err := safecast.Conv[int](v)
	if err != nil {
		return 0
	}
	return n
}
