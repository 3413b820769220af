// Package pipeline orchestrates scanning, watching, parsing, and patch
// application into the graph store.
package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"codegraph/internal/uast"
)

// Directories never worth descending into, regardless of gitignore.
var skipDirs = map[string]struct{}{
	".git":          {},
	".hg":           {},
	".svn":          {},
	"node_modules":  {},
	"__pycache__":   {},
	"venv":          {},
	".venv":         {},
	"target":        {},
	"dist":          {},
	"build":         {},
	".mypy_cache":   {},
	".ruff_cache":   {},
	".pytest_cache": {},
	".idea":         {},
	".vscode":       {},
}

// PathFilter decides which repository paths enter the pipeline. It layers
// the repo's .gitignore, configured exclude patterns, and the supported
// extension set.
type PathFilter struct {
	root     string
	gi       *ignore.GitIgnore
	excludes *ignore.GitIgnore
}

// NewPathFilter compiles the filter for a repo root. Configured exclude
// patterns use gitignore syntax. A missing .gitignore is not an error.
func NewPathFilter(root string, exclude []string) *PathFilter {
	f := &PathFilter{root: root}
	if gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
		f.gi = gi
	}
	if len(exclude) > 0 {
		f.excludes = ignore.CompileIgnoreLines(exclude...)
	}
	return f
}

// SkipDir reports whether a directory should be pruned from the walk.
func (f *PathFilter) SkipDir(rel string) bool {
	name := filepath.Base(rel)
	if _, skip := skipDirs[name]; skip {
		return true
	}
	if strings.HasPrefix(name, ".") && rel != "." {
		return true
	}
	if f.excludes != nil && f.excludes.MatchesPath(rel) {
		return true
	}
	return f.gi != nil && f.gi.MatchesPath(rel)
}

// Accept reports whether a file path belongs in the pipeline: supported
// language extension, not hidden, not ignored.
func (f *PathFilter) Accept(rel string) bool {
	name := filepath.Base(rel)
	if strings.HasPrefix(name, ".") {
		return false
	}
	if uast.LanguageFromExtension(filepath.Ext(name)) == uast.LangUnknown {
		return false
	}
	for dir := filepath.Dir(rel); dir != "." && dir != "/"; dir = filepath.Dir(dir) {
		if _, skip := skipDirs[filepath.Base(dir)]; skip {
			return false
		}
	}
	if f.excludes != nil && f.excludes.MatchesPath(rel) {
		return false
	}
	return f.gi == nil || !f.gi.MatchesPath(rel)
}

// Rel converts an absolute path to its repo-relative slash form.
func (f *PathFilter) Rel(abs string) (string, bool) {
	rel, err := filepath.Rel(f.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Abs converts a repo-relative path back to an absolute one.
func (f *PathFilter) Abs(rel string) string {
	return filepath.Join(f.root, filepath.FromSlash(rel))
}

// statIsDir reports whether an absolute path currently names a directory.
func statIsDir(abs string) bool {
	info, err := os.Stat(abs)
	return err == nil && info.IsDir()
}
