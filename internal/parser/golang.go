package parser

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"codegraph/internal/uast"
)

type goAdapter struct {
	repoID string
}

func (a *goAdapter) Language() uast.Language { return uast.LangGo }

func (a *goAdapter) Analyse(root *tree_sitter.Node, source []byte, filePath string) *Analysis {
	w := &goWalk{repoID: a.repoID, path: filePath, source: source, decls: map[string]uast.NodeID{}}

	pkg := "main"
	if clause := firstChildOfKind(root, "package_clause"); clause != nil {
		if ident := firstChildOfKind(clause, "package_identifier"); ident != nil {
			pkg = ident.Utf8Text(source)
		}
	}
	w.module = uast.ModuleNode(a.repoID, pkg, uast.LangGo, filePath)
	w.nodes = append(w.nodes, w.module)

	if root.HasError() {
		w.diags = append(w.diags, Diagnostic{Path: filePath, Message: "syntax errors present; analysis is partial", Span: tsSpan(root)})
	}

	w.declarations(root)
	w.relations(root, uast.NodeID{})

	return &Analysis{Nodes: w.nodes, Edges: w.edges, Diagnostics: w.diags}
}

type goWalk struct {
	repoID string
	path   string
	source []byte

	module uast.Node
	nodes  []uast.Node
	edges  []uast.Edge
	diags  []Diagnostic

	decls map[string]uast.NodeID
}

func (w *goWalk) declarations(n *tree_sitter.Node) {
	switch n.Kind() {
	case "function_declaration":
		w.declare(n, uast.KindFunction)
	case "method_declaration":
		w.declare(n, uast.KindMethod)
	case "type_spec":
		if name := n.ChildByFieldName("name"); name != nil {
			w.add(uast.KindClass, name, "")
		}
	case "const_spec", "var_spec":
		if goTopLevel(n) {
			if name := n.ChildByFieldName("name"); name != nil && name.Kind() == "identifier" {
				w.add(uast.KindVariable, name, "")
			}
		}
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil {
			w.declarations(c)
		}
	}
}

func (w *goWalk) declare(n *tree_sitter.Node, kind uast.NodeKind) {
	name := n.ChildByFieldName("name")
	if name == nil {
		return
	}
	sig := ""
	if params := n.ChildByFieldName("parameters"); params != nil {
		sig = params.Utf8Text(w.source)
		if ret := n.ChildByFieldName("result"); ret != nil {
			sig += " " + ret.Utf8Text(w.source)
		}
	}
	w.add(kind, name, sig)
}

func (w *goWalk) add(kind uast.NodeKind, name *tree_sitter.Node, sig string) {
	text := name.Utf8Text(w.source)
	node := uast.NewNode(w.repoID, kind, text, uast.LangGo, w.path, tsSpan(name))
	if sig != "" {
		node = node.WithSignature(sig)
	}
	w.nodes = append(w.nodes, node)
	w.decls[text] = node.ID
}

func (w *goWalk) relations(n *tree_sitter.Node, enclosing uast.NodeID) {
	switch n.Kind() {
	case "function_declaration", "method_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			if id, ok := w.decls[name.Utf8Text(w.source)]; ok {
				enclosing = id
			}
		}
	case "call_expression":
		w.call(n, enclosing)
	case "import_spec":
		w.importSpec(n)
	case "interpreted_string_literal", "raw_string_literal":
		w.sqlLiteral(n)
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil {
			w.relations(c, enclosing)
		}
	}
}

func (w *goWalk) call(n *tree_sitter.Node, enclosing uast.NodeID) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	callee := fn.Utf8Text(w.source)
	if callee == "" {
		return
	}
	w.nodes = append(w.nodes,
		uast.NewNode(w.repoID, uast.KindCall, callee, uast.LangGo, w.path, tsSpan(n)))
	if enclosing.IsZero() {
		return
	}
	if target, ok := w.decls[callee]; ok {
		w.edges = append(w.edges, uast.NewEdge(enclosing, target, uast.EdgeCalls))
	}
}

// importSpec records the import path as an Import node. Go import paths name
// packages, not files, so no cross-file module edge is derivable here.
func (w *goWalk) importSpec(n *tree_sitter.Node) {
	pathNode := n.ChildByFieldName("path")
	if pathNode == nil {
		return
	}
	imp := strings.Trim(pathNode.Utf8Text(w.source), `"`)
	if imp == "" {
		return
	}
	w.nodes = append(w.nodes,
		uast.NewNode(w.repoID, uast.KindImport, imp, uast.LangGo, w.path, tsSpan(pathNode)))
}

func (w *goWalk) sqlLiteral(n *tree_sitter.Node) {
	text := strings.Trim(n.Utf8Text(w.source), "`\"")
	if !looksLikeSQL(text) {
		return
	}
	name := strings.Join(strings.Fields(text), " ")
	if len(name) > 80 {
		name = name[:80]
	}
	w.nodes = append(w.nodes,
		uast.NewNode(w.repoID, uast.KindSQLQuery, name, uast.LangGo, w.path, tsSpan(n)))
}

func goTopLevel(n *tree_sitter.Node) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		switch p.Kind() {
		case "source_file":
			return true
		case "function_declaration", "method_declaration", "func_literal":
			return false
		}
	}
	return false
}

func firstChildOfKind(n *tree_sitter.Node, kind string) *tree_sitter.Node {
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil && c.Kind() == kind {
			return c
		}
	}
	return nil
}
