package parser

import (
	"path"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"codegraph/internal/uast"
)

type rustAdapter struct {
	repoID string
}

func (a *rustAdapter) Language() uast.Language { return uast.LangRust }

func (a *rustAdapter) Analyse(root *tree_sitter.Node, source []byte, filePath string) *Analysis {
	w := &rustWalk{repoID: a.repoID, path: filePath, source: source, decls: map[string]uast.NodeID{}}

	moduleName := strings.TrimSuffix(path.Base(filePath), path.Ext(filePath))
	w.module = uast.ModuleNode(a.repoID, moduleName, uast.LangRust, filePath)
	w.nodes = append(w.nodes, w.module)

	if root.HasError() {
		w.diags = append(w.diags, Diagnostic{Path: filePath, Message: "syntax errors present; analysis is partial", Span: tsSpan(root)})
	}

	w.declarations(root)
	w.relations(root, uast.NodeID{})

	return &Analysis{Nodes: w.nodes, Edges: w.edges, Diagnostics: w.diags}
}

type rustWalk struct {
	repoID string
	path   string
	source []byte

	module uast.Node
	nodes  []uast.Node
	edges  []uast.Edge
	diags  []Diagnostic

	decls map[string]uast.NodeID
}

func (w *rustWalk) declarations(n *tree_sitter.Node) {
	switch n.Kind() {
	case "function_item":
		kind := uast.KindFunction
		if rustInsideImpl(n) {
			kind = uast.KindMethod
		}
		w.declareNamed(n, kind, true)
	case "struct_item", "enum_item", "trait_item":
		w.declareNamed(n, uast.KindClass, false)
	case "static_item", "const_item":
		w.declareNamed(n, uast.KindVariable, false)
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil {
			w.declarations(c)
		}
	}
}

func (w *rustWalk) declareNamed(n *tree_sitter.Node, kind uast.NodeKind, withSig bool) {
	name := n.ChildByFieldName("name")
	if name == nil {
		return
	}
	text := name.Utf8Text(w.source)
	node := uast.NewNode(w.repoID, kind, text, uast.LangRust, w.path, tsSpan(name))
	if withSig {
		if params := n.ChildByFieldName("parameters"); params != nil {
			sig := params.Utf8Text(w.source)
			if ret := n.ChildByFieldName("return_type"); ret != nil {
				sig += " -> " + ret.Utf8Text(w.source)
			}
			node = node.WithSignature(sig)
		}
	}
	w.nodes = append(w.nodes, node)
	w.decls[text] = node.ID
}

func (w *rustWalk) relations(n *tree_sitter.Node, enclosing uast.NodeID) {
	switch n.Kind() {
	case "function_item":
		if name := n.ChildByFieldName("name"); name != nil {
			if id, ok := w.decls[name.Utf8Text(w.source)]; ok {
				enclosing = id
			}
		}
	case "impl_item":
		w.implTrait(n)
	case "call_expression":
		w.call(n, enclosing)
	case "use_declaration":
		w.useDeclaration(n)
	case "string_literal", "raw_string_literal":
		w.sqlLiteral(n)
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil {
			w.relations(c, enclosing)
		}
	}
}

// implTrait emits an IMPLEMENTS edge for `impl Trait for Type` when both
// sides resolve in-file.
func (w *rustWalk) implTrait(n *tree_sitter.Node) {
	traitNode := n.ChildByFieldName("trait")
	typeNode := n.ChildByFieldName("type")
	if traitNode == nil || typeNode == nil {
		return
	}
	typeID, ok := w.decls[typeNode.Utf8Text(w.source)]
	if !ok {
		return
	}
	traitID, ok := w.decls[traitNode.Utf8Text(w.source)]
	if !ok {
		return
	}
	w.edges = append(w.edges, uast.NewEdge(typeID, traitID, uast.EdgeImplements))
}

func (w *rustWalk) call(n *tree_sitter.Node, enclosing uast.NodeID) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	callee := fn.Utf8Text(w.source)
	if callee == "" {
		return
	}
	w.nodes = append(w.nodes,
		uast.NewNode(w.repoID, uast.KindCall, callee, uast.LangRust, w.path, tsSpan(n)))
	if enclosing.IsZero() {
		return
	}
	if target, ok := w.decls[callee]; ok {
		w.edges = append(w.edges, uast.NewEdge(enclosing, target, uast.EdgeCalls))
	}
}

// useDeclaration records the use path as an Import node. Rust module paths
// depend on crate layout, so no file-level edge is derived.
func (w *rustWalk) useDeclaration(n *tree_sitter.Node) {
	arg := n.ChildByFieldName("argument")
	if arg == nil {
		return
	}
	text := arg.Utf8Text(w.source)
	if text == "" {
		return
	}
	w.nodes = append(w.nodes,
		uast.NewNode(w.repoID, uast.KindImport, text, uast.LangRust, w.path, tsSpan(arg)))
}

func (w *rustWalk) sqlLiteral(n *tree_sitter.Node) {
	text := strings.Trim(n.Utf8Text(w.source), `r#"`)
	if !looksLikeSQL(text) {
		return
	}
	name := strings.Join(strings.Fields(text), " ")
	if len(name) > 80 {
		name = name[:80]
	}
	w.nodes = append(w.nodes,
		uast.NewNode(w.repoID, uast.KindSQLQuery, name, uast.LangRust, w.path, tsSpan(n)))
}

func rustInsideImpl(n *tree_sitter.Node) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		switch p.Kind() {
		case "impl_item", "trait_item":
			return true
		case "function_item":
			return false
		}
	}
	return false
}
