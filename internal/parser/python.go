package parser

import (
	"path"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"codegraph/internal/uast"
)

// pythonAdapter is the reference adapter: it exercises the full universal
// node set (declarations, parameters, calls, imports, routes, SQL literals,
// event emissions) and every relationship kind the extractor understands.
type pythonAdapter struct {
	repoID string
}

func (a *pythonAdapter) Language() uast.Language { return uast.LangPython }

func (a *pythonAdapter) Analyse(root *tree_sitter.Node, source []byte, filePath string) *Analysis {
	b := &pyWalk{
		repoID: a.repoID,
		path:   filePath,
		source: source,
		decls:  map[string]uast.NodeID{},
		kinds:  map[uast.NodeID]uast.NodeKind{},
		seen:   map[string]bool{},
	}

	moduleName := strings.TrimSuffix(path.Base(filePath), path.Ext(filePath))
	b.module = uast.ModuleNode(a.repoID, moduleName, uast.LangPython, filePath)
	b.nodes = append(b.nodes, b.module)

	if root.HasError() {
		b.diag(root, "syntax errors present; analysis is partial")
	}

	b.collectDecls(root)
	b.collectRelations(root, uast.NodeID{})

	return &Analysis{Nodes: b.nodes, Edges: b.edges, Diagnostics: b.diags}
}

// pyWalk carries the two-pass extraction state: declarations first so calls
// and reads can resolve in-file targets, relationships second.
type pyWalk struct {
	repoID string
	path   string
	source []byte

	module uast.Node
	nodes  []uast.Node
	edges  []uast.Edge
	diags  []Diagnostic

	decls map[string]uast.NodeID        // in-file declaration name -> node id
	kinds map[uast.NodeID]uast.NodeKind // declared id -> kind, for read/write filtering
	seen  map[string]bool               // read/write edge dedup
}

// declare records a named declaration in both lookup maps.
func (b *pyWalk) declare(name string, node uast.Node) {
	b.nodes = append(b.nodes, node)
	b.decls[name] = node.ID
	b.kinds[node.ID] = node.Kind
}

// --- pass 1: declarations ---

func (b *pyWalk) collectDecls(n *tree_sitter.Node) {
	switch n.Kind() {
	case "ERROR":
		b.diag(n, "unrecognized syntax; sub-tree skipped")
		return
	case "function_definition":
		b.declareFunction(n)
	case "class_definition":
		b.declareClass(n)
	case "assignment":
		b.declareVariable(n)
	}

	for i := uint(0); i < n.ChildCount(); i++ {
		if child := n.Child(i); child != nil {
			b.collectDecls(child)
		}
	}
}

func (b *pyWalk) declareFunction(n *tree_sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		b.diag(n, "function definition without a name")
		return
	}
	name := nameNode.Utf8Text(b.source)

	kind := uast.KindFunction
	if pyInsideClass(n) {
		kind = uast.KindMethod
	}

	// Identity anchors to the name token so edits to the body do not mint a
	// new id for the declaration.
	node := uast.NewNode(b.repoID, kind, name, uast.LangPython, b.path, b.span(nameNode)).
		WithSignature(b.signature(n))
	b.declare(name, node)

	b.declareParameters(n)
}

func (b *pyWalk) declareParameters(fn *tree_sitter.Node) {
	params := fn.ChildByFieldName("parameters")
	if params == nil {
		return
	}
	for i := uint(0); i < params.NamedChildCount(); i++ {
		p := params.NamedChild(i)
		if p == nil {
			continue
		}
		ident := p
		if p.Kind() != "identifier" {
			if ident = p.ChildByFieldName("name"); ident == nil {
				continue
			}
		}
		name := ident.Utf8Text(b.source)
		if name == "self" || name == "cls" {
			continue
		}
		b.nodes = append(b.nodes,
			uast.NewNode(b.repoID, uast.KindParameter, name, uast.LangPython, b.path, b.span(ident)))
	}
}

func (b *pyWalk) declareClass(n *tree_sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		b.diag(n, "class definition without a name")
		return
	}
	name := nameNode.Utf8Text(b.source)
	node := uast.NewNode(b.repoID, uast.KindClass, name, uast.LangPython, b.path, b.span(nameNode))
	b.declare(name, node)
}

// declareVariable records module-level assignments as Variable nodes.
func (b *pyWalk) declareVariable(n *tree_sitter.Node) {
	if !pyModuleLevel(n) {
		return
	}
	left := n.ChildByFieldName("left")
	if left == nil || left.Kind() != "identifier" {
		return
	}
	name := left.Utf8Text(b.source)
	if _, exists := b.decls[name]; exists {
		return // re-assignment of an already declared binding
	}
	node := uast.NewNode(b.repoID, uast.KindVariable, name, uast.LangPython, b.path, b.span(left))
	b.declare(name, node)
}

// --- pass 2: relationships ---

func (b *pyWalk) collectRelations(n *tree_sitter.Node, enclosing uast.NodeID) {
	switch n.Kind() {
	case "ERROR":
		return
	case "function_definition", "class_definition":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			if id, ok := b.decls[nameNode.Utf8Text(b.source)]; ok {
				enclosing = id
			}
		}
		b.classBases(n, enclosing)
	case "decorated_definition":
		b.routes(n)
	case "call":
		b.call(n, enclosing)
	case "import_statement":
		b.plainImport(n)
	case "import_from_statement":
		b.fromImport(n)
	case "raise_statement":
		b.raise(n, enclosing)
	case "string":
		b.sqlLiteral(n)
	case "assignment":
		b.write(n, enclosing)
	case "identifier":
		b.read(n, enclosing)
	}

	for i := uint(0); i < n.ChildCount(); i++ {
		if child := n.Child(i); child != nil {
			b.collectRelations(child, enclosing)
		}
	}
}

// classBases emits EXTENDS edges for class superclasses resolvable in-file.
func (b *pyWalk) classBases(n *tree_sitter.Node, classID uast.NodeID) {
	if n.Kind() != "class_definition" || classID.IsZero() {
		return
	}
	supers := n.ChildByFieldName("superclasses")
	if supers == nil {
		return
	}
	for i := uint(0); i < supers.NamedChildCount(); i++ {
		base := supers.NamedChild(i)
		if base == nil || base.Kind() != "identifier" {
			continue
		}
		if target, ok := b.decls[base.Utf8Text(b.source)]; ok {
			b.edges = append(b.edges, uast.NewEdge(classID, target, uast.EdgeExtends))
		}
	}
}

// call emits a Call node for every call site, a CALLS edge when the callee
// resolves to an in-file declaration, and EMITS bookkeeping for emit calls.
func (b *pyWalk) call(n *tree_sitter.Node, enclosing uast.NodeID) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}

	var callee string
	switch fn.Kind() {
	case "identifier", "attribute":
		callee = fn.Utf8Text(b.source)
	default:
		return
	}
	if callee == "" {
		return
	}

	callNode := uast.NewNode(b.repoID, uast.KindCall, callee, uast.LangPython, b.path, b.span(n))
	b.nodes = append(b.nodes, callNode)

	if base := pyCalleeBase(callee); base == "emit" {
		b.emitEvent(n, enclosing)
		return
	}

	if enclosing.IsZero() {
		return
	}
	if target, ok := b.decls[callee]; ok {
		b.edges = append(b.edges, uast.NewEdge(enclosing, target, uast.EdgeCalls))
	}
}

// emitEvent records an emit(...) call as an Event node plus an EMITS edge
// from the enclosing declaration.
func (b *pyWalk) emitEvent(call *tree_sitter.Node, enclosing uast.NodeID) {
	name := "event"
	if args := call.ChildByFieldName("arguments"); args != nil && args.NamedChildCount() > 0 {
		if first := args.NamedChild(0); first != nil && first.Kind() == "string" {
			name = pyStringContent(first.Utf8Text(b.source))
		}
	}
	event := uast.NewNode(b.repoID, uast.KindEvent, name, uast.LangPython, b.path, b.span(call))
	b.nodes = append(b.nodes, event)
	if !enclosing.IsZero() {
		b.edges = append(b.edges, uast.NewEdge(enclosing, event.ID, uast.EdgeEmits))
	}
}

// plainImport handles `import a.b, c`.
func (b *pyWalk) plainImport(n *tree_sitter.Node) {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		target := child
		if child.Kind() == "aliased_import" {
			if target = child.ChildByFieldName("name"); target == nil {
				continue
			}
		}
		if target.Kind() != "dotted_name" {
			continue
		}
		b.importEdge(target, target.Utf8Text(b.source), 0)
	}
}

// fromImport handles `from a.b import x` and relative forms `from ..a import x`.
func (b *pyWalk) fromImport(n *tree_sitter.Node) {
	moduleNode := n.ChildByFieldName("module_name")
	if moduleNode == nil {
		return
	}
	module := moduleNode.Utf8Text(b.source)
	dots := 0
	for dots < len(module) && module[dots] == '.' {
		dots++
	}
	b.importEdge(moduleNode, module[dots:], dots)
}

// importEdge emits the Import node and an IMPORTS edge from this file's
// module to the deterministic module id of the target path. The target may
// not exist yet; the edge stays dangling until it does.
func (b *pyWalk) importEdge(n *tree_sitter.Node, module string, relativeDots int) {
	if module == "" && relativeDots == 0 {
		return
	}
	display := strings.Repeat(".", relativeDots) + module
	imp := uast.NewNode(b.repoID, uast.KindImport, display, uast.LangPython, b.path, b.span(n))
	b.nodes = append(b.nodes, imp)

	targetPath := pyModulePath(b.path, module, relativeDots)
	if targetPath == "" || targetPath == uast.NormalizePath(b.path) {
		return
	}
	b.edges = append(b.edges,
		uast.NewEdge(b.module.ID, uast.ModuleID(b.repoID, targetPath), uast.EdgeImports))
}

// raise emits RAISES edges for exception classes declared in this file.
func (b *pyWalk) raise(n *tree_sitter.Node, enclosing uast.NodeID) {
	if enclosing.IsZero() {
		return
	}
	for i := uint(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		name := ""
		switch child.Kind() {
		case "identifier":
			name = child.Utf8Text(b.source)
		case "call":
			if fn := child.ChildByFieldName("function"); fn != nil && fn.Kind() == "identifier" {
				name = fn.Utf8Text(b.source)
			}
		}
		if target, ok := b.decls[name]; ok && name != "" {
			b.edges = append(b.edges, uast.NewEdge(enclosing, target, uast.EdgeRaises))
		}
	}
}

// routes recognizes route decorators (@app.route("/x"), @app.get("/x"), ...)
// and emits a Route node wired to the decorated function.
func (b *pyWalk) routes(n *tree_sitter.Node) {
	def := n.ChildByFieldName("definition")
	if def == nil || def.Kind() != "function_definition" {
		return
	}
	nameNode := def.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	fnID, ok := b.decls[nameNode.Utf8Text(b.source)]
	if !ok {
		return
	}

	for i := uint(0); i < n.ChildCount(); i++ {
		dec := n.Child(i)
		if dec == nil || dec.Kind() != "decorator" {
			continue
		}
		routePath, strNode := b.routeDecorator(dec)
		if strNode == nil {
			continue
		}
		route := uast.NewNode(b.repoID, uast.KindRoute, routePath, uast.LangPython, b.path, b.span(strNode))
		b.nodes = append(b.nodes, route)
		b.edges = append(b.edges, uast.NewEdge(route.ID, fnID, uast.EdgeRoutesTo))
	}
}

var pyRouteMethods = map[string]bool{
	"route": true, "get": true, "post": true, "put": true,
	"delete": true, "patch": true, "websocket": true,
}

func (b *pyWalk) routeDecorator(dec *tree_sitter.Node) (string, *tree_sitter.Node) {
	var call *tree_sitter.Node
	for i := uint(0); i < dec.NamedChildCount(); i++ {
		if c := dec.NamedChild(i); c != nil && c.Kind() == "call" {
			call = c
			break
		}
	}
	if call == nil {
		return "", nil
	}
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Kind() != "attribute" {
		return "", nil
	}
	attr := fn.ChildByFieldName("attribute")
	if attr == nil || !pyRouteMethods[attr.Utf8Text(b.source)] {
		return "", nil
	}
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return "", nil
	}
	first := args.NamedChild(0)
	if first == nil || first.Kind() != "string" {
		return "", nil
	}
	return pyStringContent(first.Utf8Text(b.source)), first
}

// sqlLiteral emits a SqlQuery node for string literals that look like SQL.
func (b *pyWalk) sqlLiteral(n *tree_sitter.Node) {
	text := pyStringContent(n.Utf8Text(b.source))
	if !looksLikeSQL(text) {
		return
	}
	name := strings.Join(strings.Fields(text), " ")
	if len(name) > 80 {
		name = name[:80]
	}
	b.nodes = append(b.nodes,
		uast.NewNode(b.repoID, uast.KindSQLQuery, name, uast.LangPython, b.path, b.span(n)))
}

// write emits WRITES edges for assignments inside a declaration that target
// a module-level variable.
func (b *pyWalk) write(n *tree_sitter.Node, enclosing uast.NodeID) {
	if enclosing.IsZero() {
		return
	}
	left := n.ChildByFieldName("left")
	if left == nil || left.Kind() != "identifier" {
		return
	}
	name := left.Utf8Text(b.source)
	target, ok := b.decls[name]
	if !ok || !b.isVariable(target) {
		return
	}
	b.dedupEdge(enclosing, target, uast.EdgeWrites)
}

// read emits READS edges for identifier uses inside a declaration that
// resolve to a module-level variable.
func (b *pyWalk) read(n *tree_sitter.Node, enclosing uast.NodeID) {
	if enclosing.IsZero() {
		return
	}
	parent := n.Parent()
	if parent == nil {
		return
	}
	switch parent.Kind() {
	case "assignment":
		if left := parent.ChildByFieldName("left"); left != nil && left.Id() == n.Id() {
			return // assignment target is a write, not a read
		}
	case "call":
		if fn := parent.ChildByFieldName("function"); fn != nil && fn.Id() == n.Id() {
			return // callee position is handled by call()
		}
	case "attribute", "keyword_argument", "parameters", "dotted_name":
		return
	}
	target, ok := b.decls[n.Utf8Text(b.source)]
	if !ok || !b.isVariable(target) {
		return
	}
	b.dedupEdge(enclosing, target, uast.EdgeReads)
}

// --- helpers ---

func (b *pyWalk) isVariable(id uast.NodeID) bool {
	return b.kinds[id] == uast.KindVariable
}

func (b *pyWalk) dedupEdge(src, dst uast.NodeID, kind uast.EdgeKind) {
	e := uast.NewEdge(src, dst, kind)
	if b.seen[e.ID()] {
		return
	}
	b.seen[e.ID()] = true
	b.edges = append(b.edges, e)
}

func (b *pyWalk) span(n *tree_sitter.Node) uast.Span {
	return tsSpan(n)
}

func (b *pyWalk) diag(n *tree_sitter.Node, msg string) {
	b.diags = append(b.diags, Diagnostic{Path: b.path, Message: msg, Span: tsSpan(n)})
}

// signature renders the parameter list and optional return annotation.
func (b *pyWalk) signature(fn *tree_sitter.Node) string {
	params := fn.ChildByFieldName("parameters")
	if params == nil {
		return ""
	}
	sig := params.Utf8Text(b.source)
	if ret := fn.ChildByFieldName("return_type"); ret != nil {
		sig += " -> " + ret.Utf8Text(b.source)
	}
	return sig
}

// pyInsideClass reports whether a definition sits inside a class body.
func pyInsideClass(n *tree_sitter.Node) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		switch p.Kind() {
		case "class_definition":
			return true
		case "function_definition":
			return false
		}
	}
	return false
}

// pyModuleLevel reports whether a statement is directly at module scope
// (its nearest statement ancestor chain reaches "module" without passing a
// function or class body).
func pyModuleLevel(n *tree_sitter.Node) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		switch p.Kind() {
		case "module":
			return true
		case "function_definition", "class_definition":
			return false
		}
	}
	return false
}

// pyCalleeBase returns the final attribute component of a callee expression.
func pyCalleeBase(callee string) string {
	if i := strings.LastIndexByte(callee, '.'); i >= 0 {
		return callee[i+1:]
	}
	return callee
}

// pyStringContent strips quotes and prefixes from a python string literal.
func pyStringContent(lit string) string {
	s := strings.TrimLeft(lit, "rbufRBUF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}

// pyModulePath maps a python module reference to a repo-relative file path.
// Absolute imports resolve from the repo root; relative imports resolve from
// the importing file's directory, one parent per extra leading dot.
func pyModulePath(fromFile, module string, relativeDots int) string {
	if relativeDots == 0 {
		if module == "" {
			return ""
		}
		return strings.ReplaceAll(module, ".", "/") + ".py"
	}
	dir := path.Dir(uast.NormalizePath(fromFile))
	for i := 1; i < relativeDots; i++ {
		dir = path.Dir(dir)
	}
	if module == "" {
		return path.Join(dir, "__init__.py")
	}
	return path.Join(dir, strings.ReplaceAll(module, ".", "/")+".py")
}

// looksLikeSQL reports whether a string literal starts like a SQL statement.
func looksLikeSQL(s string) bool {
	t := strings.ToUpper(strings.TrimSpace(s))
	for _, prefix := range []string{"SELECT ", "INSERT INTO ", "UPDATE ", "DELETE FROM ", "CREATE TABLE "} {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}

// tsSpan converts a tree-sitter node position to a universal span.
func tsSpan(n *tree_sitter.Node) uast.Span {
	start := n.StartPosition()
	end := n.EndPosition()
	return uast.Span{
		StartByte: int(n.StartByte()),
		EndByte:   int(n.EndByte()),
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column) + 1,
	}
}
