// Package parser drives incremental tree-sitter parsing and hosts the
// per-language adapters that project concrete syntax trees into the
// universal AST.
package parser

import (
	"fmt"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"codegraph/internal/uast"
)

// Diagnostic records a sub-tree the adapter could not interpret. Diagnostics
// never abort a file; the remaining tree is still analysed.
type Diagnostic struct {
	Path    string
	Message string
	Span    uast.Span
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%s: %s", d.Path, d.Span, d.Message)
}

// Analysis is the adapter output for one file: the universal node and edge
// sets plus any diagnostics collected along the way.
type Analysis struct {
	Nodes       []uast.Node
	Edges       []uast.Edge
	Diagnostics []Diagnostic
}

// Adapter maps one language's syntax tree to universal nodes and edges.
// Analyse is pure, does no I/O, and is safe to invoke concurrently for
// distinct files. Edges may reference endpoints in files that have not been
// parsed yet; such edges are stored and resolved lazily at query time.
type Adapter interface {
	Language() uast.Language
	Analyse(root *tree_sitter.Node, source []byte, path string) *Analysis
}

// Registry holds the grammar and adapter for every supported language.
// Selection is by the explicit extension map with content sniffing as the
// only fallback.
type Registry struct {
	repoID   string
	grammars map[uast.Language]*tree_sitter.Language
	adapters map[uast.Language]Adapter
}

// NewRegistry creates a registry with the Go, Python, TypeScript, and Rust
// grammars and adapters registered.
func NewRegistry(repoID string) *Registry {
	r := &Registry{
		repoID: repoID,
		grammars: map[uast.Language]*tree_sitter.Language{
			uast.LangGo:         tree_sitter.NewLanguage(tree_sitter_go.Language()),
			uast.LangPython:     tree_sitter.NewLanguage(tree_sitter_python.Language()),
			uast.LangTypeScript: tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()),
			uast.LangRust:       tree_sitter.NewLanguage(tree_sitter_rust.Language()),
		},
		adapters: map[uast.Language]Adapter{},
	}
	r.adapters[uast.LangPython] = &pythonAdapter{repoID: repoID}
	r.adapters[uast.LangGo] = &goAdapter{repoID: repoID}
	r.adapters[uast.LangTypeScript] = &tsAdapter{repoID: repoID}
	r.adapters[uast.LangRust] = &rustAdapter{repoID: repoID}
	return r
}

// Register installs or replaces the adapter for a language. The grammar must
// already be known to the registry.
func (r *Registry) Register(a Adapter) error {
	lang := a.Language()
	if _, ok := r.grammars[lang]; !ok {
		return fmt.Errorf("parser: no grammar registered for %s", lang)
	}
	r.adapters[lang] = a
	return nil
}

// Languages returns the languages with a registered adapter.
func (r *Registry) Languages() []uast.Language {
	out := make([]uast.Language, 0, len(r.adapters))
	for lang := range r.adapters {
		out = append(out, lang)
	}
	return out
}

// resolve picks the language for a file from its extension, falling back to
// content sniffing. Returns ErrUnsupportedLanguage when neither matches a
// registered adapter.
func (r *Registry) resolve(ext string, source []byte) (uast.Language, Adapter, *tree_sitter.Language, error) {
	lang := uast.LanguageFromExtension(ext)
	if lang == uast.LangUnknown {
		lang = uast.SniffLanguage(source)
	}
	adapter, ok := r.adapters[lang]
	if !ok {
		return uast.LangUnknown, nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, ext)
	}
	return lang, adapter, r.grammars[lang], nil
}
