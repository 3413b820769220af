package parser

import (
	"path"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"codegraph/internal/uast"
)

type tsAdapter struct {
	repoID string
}

func (a *tsAdapter) Language() uast.Language { return uast.LangTypeScript }

func (a *tsAdapter) Analyse(root *tree_sitter.Node, source []byte, filePath string) *Analysis {
	w := &tsWalk{repoID: a.repoID, path: filePath, source: source, decls: map[string]uast.NodeID{}}

	moduleName := strings.TrimSuffix(path.Base(filePath), path.Ext(filePath))
	w.module = uast.ModuleNode(a.repoID, moduleName, uast.LangTypeScript, filePath)
	w.nodes = append(w.nodes, w.module)

	if root.HasError() {
		w.diags = append(w.diags, Diagnostic{Path: filePath, Message: "syntax errors present; analysis is partial", Span: tsSpan(root)})
	}

	w.declarations(root)
	w.relations(root, uast.NodeID{})

	return &Analysis{Nodes: w.nodes, Edges: w.edges, Diagnostics: w.diags}
}

type tsWalk struct {
	repoID string
	path   string
	source []byte

	module uast.Node
	nodes  []uast.Node
	edges  []uast.Edge
	diags  []Diagnostic

	decls map[string]uast.NodeID
}

func (w *tsWalk) declarations(n *tree_sitter.Node) {
	switch n.Kind() {
	case "function_declaration":
		w.declareNamed(n, uast.KindFunction)
	case "method_definition":
		w.declareNamed(n, uast.KindMethod)
	case "class_declaration", "interface_declaration":
		w.declareNamed(n, uast.KindClass)
	case "variable_declarator":
		w.declareVariable(n)
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil {
			w.declarations(c)
		}
	}
}

func (w *tsWalk) declareNamed(n *tree_sitter.Node, kind uast.NodeKind) {
	name := n.ChildByFieldName("name")
	if name == nil {
		return
	}
	text := name.Utf8Text(w.source)
	node := uast.NewNode(w.repoID, kind, text, uast.LangTypeScript, w.path, tsSpan(name))
	if params := n.ChildByFieldName("parameters"); params != nil {
		sig := params.Utf8Text(w.source)
		if ret := n.ChildByFieldName("return_type"); ret != nil {
			sig += ret.Utf8Text(w.source)
		}
		node = node.WithSignature(sig)
	}
	w.nodes = append(w.nodes, node)
	w.decls[text] = node.ID
}

// declareVariable records top-level `const fn = () => {}` as a Function and
// other top-level bindings as Variables.
func (w *tsWalk) declareVariable(n *tree_sitter.Node) {
	if !tsTopLevel(n) {
		return
	}
	name := n.ChildByFieldName("name")
	if name == nil || name.Kind() != "identifier" {
		return
	}
	kind := uast.KindVariable
	if value := n.ChildByFieldName("value"); value != nil {
		switch value.Kind() {
		case "arrow_function", "function_expression":
			kind = uast.KindFunction
		}
	}
	text := name.Utf8Text(w.source)
	node := uast.NewNode(w.repoID, kind, text, uast.LangTypeScript, w.path, tsSpan(name))
	w.nodes = append(w.nodes, node)
	w.decls[text] = node.ID
}

func (w *tsWalk) relations(n *tree_sitter.Node, enclosing uast.NodeID) {
	switch n.Kind() {
	case "function_declaration", "method_definition", "class_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			if id, ok := w.decls[name.Utf8Text(w.source)]; ok {
				enclosing = id
			}
		}
		w.heritage(n, enclosing)
	case "variable_declarator":
		if name := n.ChildByFieldName("name"); name != nil {
			if id, ok := w.decls[name.Utf8Text(w.source)]; ok {
				enclosing = id
			}
		}
	case "call_expression":
		w.call(n, enclosing)
	case "import_statement":
		w.importStatement(n)
	case "string", "template_string":
		w.sqlLiteral(n)
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil {
			w.relations(c, enclosing)
		}
	}
}

// heritage emits EXTENDS and IMPLEMENTS edges for class clauses resolvable
// in-file.
func (w *tsWalk) heritage(n *tree_sitter.Node, classID uast.NodeID) {
	if n.Kind() != "class_declaration" || classID.IsZero() {
		return
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		clause := n.Child(i)
		if clause == nil || clause.Kind() != "class_heritage" {
			continue
		}
		for j := uint(0); j < clause.ChildCount(); j++ {
			c := clause.Child(j)
			if c == nil {
				continue
			}
			var kind uast.EdgeKind
			switch c.Kind() {
			case "extends_clause":
				kind = uast.EdgeExtends
			case "implements_clause":
				kind = uast.EdgeImplements
			default:
				continue
			}
			for k := uint(0); k < c.NamedChildCount(); k++ {
				t := c.NamedChild(k)
				if t == nil {
					continue
				}
				if t.Kind() == "identifier" || t.Kind() == "type_identifier" {
					if target, ok := w.decls[t.Utf8Text(w.source)]; ok {
						w.edges = append(w.edges, uast.NewEdge(classID, target, kind))
					}
				}
			}
		}
	}
}

func (w *tsWalk) call(n *tree_sitter.Node, enclosing uast.NodeID) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	callee := fn.Utf8Text(w.source)
	if callee == "" {
		return
	}
	w.nodes = append(w.nodes,
		uast.NewNode(w.repoID, uast.KindCall, callee, uast.LangTypeScript, w.path, tsSpan(n)))
	if enclosing.IsZero() {
		return
	}
	if target, ok := w.decls[callee]; ok {
		w.edges = append(w.edges, uast.NewEdge(enclosing, target, uast.EdgeCalls))
	}
}

// importStatement emits an Import node and, for relative specifiers, an
// IMPORTS edge to the target file's module id.
func (w *tsWalk) importStatement(n *tree_sitter.Node) {
	src := n.ChildByFieldName("source")
	if src == nil {
		return
	}
	specifier := strings.Trim(src.Utf8Text(w.source), `"'`)
	if specifier == "" {
		return
	}
	w.nodes = append(w.nodes,
		uast.NewNode(w.repoID, uast.KindImport, specifier, uast.LangTypeScript, w.path, tsSpan(src)))

	if !strings.HasPrefix(specifier, "./") && !strings.HasPrefix(specifier, "../") {
		return // bare specifier, package-managed, no file target
	}
	target := path.Join(path.Dir(uast.NormalizePath(w.path)), specifier)
	if path.Ext(target) == "" {
		target += ".ts"
	}
	if target == uast.NormalizePath(w.path) {
		return
	}
	w.edges = append(w.edges,
		uast.NewEdge(w.module.ID, uast.ModuleID(w.repoID, target), uast.EdgeImports))
}

func (w *tsWalk) sqlLiteral(n *tree_sitter.Node) {
	text := strings.Trim(n.Utf8Text(w.source), "`\"'")
	if !looksLikeSQL(text) {
		return
	}
	name := strings.Join(strings.Fields(text), " ")
	if len(name) > 80 {
		name = name[:80]
	}
	w.nodes = append(w.nodes,
		uast.NewNode(w.repoID, uast.KindSQLQuery, name, uast.LangTypeScript, w.path, tsSpan(n)))
}

func tsTopLevel(n *tree_sitter.Node) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		switch p.Kind() {
		case "program":
			return true
		case "function_declaration", "method_definition", "arrow_function",
			"function_expression", "class_declaration":
			return false
		}
	}
	return false
}
