// # internal/engine/parser/registry.go
package parser

import (
	"path/filepath"
	"strings"
)

// LanguageSpec describes how files map to a language and whether a runtime
// tree-sitter grammar exists for it.
type LanguageSpec struct {
	Name       string
	Extensions []string
	Filenames  []string
	Grammar    bool
}

// DefaultLanguageRegistry lists every language the analyzers understand.
// Languages without a grammar are validated by bracket balance only.
func DefaultLanguageRegistry() map[string]LanguageSpec {
	return map[string]LanguageSpec{
		"css":        {Name: "css", Extensions: []string{".css"}, Grammar: true},
		"scss":       {Name: "scss", Extensions: []string{".scss", ".sass", ".less"}},
		"go":         {Name: "go", Extensions: []string{".go"}, Grammar: true},
		"html":       {Name: "html", Extensions: []string{".html", ".htm"}, Grammar: true},
		"java":       {Name: "java", Extensions: []string{".java"}, Grammar: true},
		"javascript": {Name: "javascript", Extensions: []string{".js", ".cjs", ".mjs", ".jsx"}, Grammar: true},
		"python":     {Name: "python", Extensions: []string{".py", ".pyi"}, Grammar: true},
		"rust":       {Name: "rust", Extensions: []string{".rs"}, Grammar: true},
		"tsx":        {Name: "tsx", Extensions: []string{".tsx"}, Grammar: true},
		"typescript": {Name: "typescript", Extensions: []string{".ts", ".mts", ".cts"}, Grammar: true},
		"csharp":     {Name: "csharp", Extensions: []string{".cs"}},
	}
}

// Registry resolves file paths to language ids.
type Registry struct {
	specs  map[string]LanguageSpec
	byExt  map[string]string
	byName map[string]string
}

func NewRegistry(specs map[string]LanguageSpec) *Registry {
	if specs == nil {
		specs = DefaultLanguageRegistry()
	}
	r := &Registry{
		specs:  make(map[string]LanguageSpec, len(specs)),
		byExt:  make(map[string]string),
		byName: make(map[string]string),
	}
	for id, spec := range specs {
		spec.Extensions = append([]string(nil), spec.Extensions...)
		spec.Filenames = append([]string(nil), spec.Filenames...)
		r.specs[id] = spec
		for _, ext := range spec.Extensions {
			r.byExt[strings.ToLower(ext)] = id
		}
		for _, name := range spec.Filenames {
			r.byName[strings.ToLower(name)] = id
		}
	}
	return r
}

// Detect returns the language id for path, or "" when unknown.
func (r *Registry) Detect(path string) string {
	base := strings.ToLower(filepath.Base(path))
	if id, ok := r.byName[base]; ok {
		return id
	}
	return r.byExt[strings.ToLower(filepath.Ext(base))]
}

func (r *Registry) Spec(id string) (LanguageSpec, bool) {
	spec, ok := r.specs[id]
	return spec, ok
}

// Supported reports whether path belongs to a known language.
func (r *Registry) Supported(path string) bool {
	return r.Detect(path) != ""
}
