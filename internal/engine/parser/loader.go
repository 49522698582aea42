// # internal/engine/parser/loader.go
package parser

import (
	"fmt"
	"sort"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_css "github.com/tree-sitter/tree-sitter-css/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_html "github.com/tree-sitter/tree-sitter-html/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// GrammarLoader holds the compiled-in tree-sitter grammars. It is built once
// and shared read-only by every session.
type GrammarLoader struct {
	languages map[string]*sitter.Language
}

func NewGrammarLoader(registry *Registry) (*GrammarLoader, error) {
	if registry == nil {
		registry = NewRegistry(nil)
	}
	gl := &GrammarLoader{languages: make(map[string]*sitter.Language)}

	for id, spec := range registry.specs {
		if !spec.Grammar {
			continue
		}
		switch id {
		case "css":
			gl.languages[id] = sitter.NewLanguage(tree_sitter_css.Language())
		case "go":
			gl.languages[id] = sitter.NewLanguage(tree_sitter_go.Language())
		case "html":
			gl.languages[id] = sitter.NewLanguage(tree_sitter_html.Language())
		case "java":
			gl.languages[id] = sitter.NewLanguage(tree_sitter_java.Language())
		case "javascript":
			gl.languages[id] = sitter.NewLanguage(tree_sitter_javascript.Language())
		case "python":
			gl.languages[id] = sitter.NewLanguage(tree_sitter_python.Language())
		case "rust":
			gl.languages[id] = sitter.NewLanguage(tree_sitter_rust.Language())
		case "tsx":
			gl.languages[id] = sitter.NewLanguage(tree_sitter_typescript.LanguageTSX())
		case "typescript":
			gl.languages[id] = sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
		default:
			return nil, fmt.Errorf("language %q declares a grammar but none is compiled in", id)
		}
	}
	return gl, nil
}

// Language returns the grammar for a language id.
func (gl *GrammarLoader) Language(id string) (*sitter.Language, bool) {
	lang, ok := gl.languages[id]
	return lang, ok
}

// Languages lists the ids with a loaded grammar.
func (gl *GrammarLoader) Languages() []string {
	ids := make([]string, 0, len(gl.languages))
	for id := range gl.languages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
