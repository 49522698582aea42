package aggregate

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"coderefactor/internal/engine/parser"
	"coderefactor/internal/shared/util"
)

// Walker selects the analyzable files below a project root.
type Walker struct {
	include   []glob.Glob
	exclude   []glob.Glob
	languages *parser.Registry
}

// NewWalker compiles include and exclude patterns. Patterns match slash
// separated paths relative to the root; an empty include list selects every
// file with a known language.
func NewWalker(include, exclude []string, languages *parser.Registry) (*Walker, error) {
	inc, err := compilePatterns(include)
	if err != nil {
		return nil, fmt.Errorf("invalid include pattern: %w", err)
	}
	exc, err := compilePatterns(exclude)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern: %w", err)
	}
	return &Walker{include: inc, exclude: exc, languages: languages}, nil
}

// compilePatterns also compiles "x" for every "**/x" so that a leading
// double star matches at the root as well.
func compilePatterns(patterns []string) ([]glob.Glob, error) {
	var out []glob.Glob
	for _, p := range patterns {
		norm := util.NormalizePatternPath(p)
		if norm == "" {
			continue
		}
		variants := []string{norm}
		if rest, ok := strings.CutPrefix(norm, "**/"); ok && rest != "" {
			variants = append(variants, rest)
		}
		for _, v := range variants {
			g, err := glob.Compile(v, '/')
			if err != nil {
				return nil, fmt.Errorf("%q: %w", p, err)
			}
			out = append(out, g)
		}
	}
	return out, nil
}

func matchAny(globs []glob.Glob, path string) bool {
	for _, g := range globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// SkipDir reports whether the root-relative directory is excluded.
func (w *Walker) SkipDir(rel string) bool {
	return matchAny(w.exclude, strings.TrimSuffix(rel, "/")+"/")
}

// Match reports whether the root-relative file would be selected by Walk.
func (w *Walker) Match(rel string) bool {
	if matchAny(w.exclude, rel) {
		return false
	}
	if len(w.include) > 0 && !matchAny(w.include, rel) {
		return false
	}
	return w.languages == nil || w.languages.Supported(rel)
}

// Walk returns the selected files as sorted root-relative slash paths.
func (w *Walker) Walk(ctx context.Context, root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel := util.RelativeSlashPath(root, path)
		if rel == "" {
			return nil
		}
		if d.IsDir() {
			if w.SkipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !w.Match(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
