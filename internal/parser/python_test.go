package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegraph/internal/uast"
)

const pythonFixture = `import os
from models import Base

MAX_SIZE = 100

class ServiceError(Exception):
    pass

class UserService(Base):
    def lookup(self, user_id):
        raise ServiceError()

class AdminService(UserService):
    pass

QUERY = "SELECT id, name FROM users WHERE id = ?"

@app.route("/users")
def list_users():
    count = MAX_SIZE
    emit("users.listed")
    return helper()

def helper():
    global MAX_SIZE
    MAX_SIZE = 0
    return None
`

func TestPythonAdapter_Declarations(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	idx := parseFile(t, e, "svc/users.py", pythonFixture).Index

	tests := []struct {
		kind uast.NodeKind
		name string
	}{
		{uast.KindModule, "users"},
		{uast.KindClass, "ServiceError"},
		{uast.KindClass, "UserService"},
		{uast.KindMethod, "lookup"},
		{uast.KindFunction, "list_users"},
		{uast.KindFunction, "helper"},
		{uast.KindParameter, "user_id"},
		{uast.KindVariable, "MAX_SIZE"},
		{uast.KindImport, "os"},
		{uast.KindImport, "models"},
		{uast.KindRoute, "/users"},
		{uast.KindEvent, "users.listed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := findNode(idx, tt.kind, tt.name); !ok {
				t.Errorf("missing %s %q", tt.kind, tt.name)
			}
		})
	}

	// `self` never becomes a parameter node.
	if _, ok := findNode(idx, uast.KindParameter, "self"); ok {
		t.Error("self must not be declared as a parameter")
	}
}

func TestPythonAdapter_SQLLiteral(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	idx := parseFile(t, e, "svc/users.py", pythonFixture).Index

	found := false
	for _, n := range idx.Nodes {
		if n.Kind == uast.KindSQLQuery {
			found = true
			assert.Contains(t, n.Name, "SELECT id, name FROM users")
		}
	}
	assert.True(t, found, "SQL string literal should produce a SqlQuery node")
}

func TestPythonAdapter_Relationships(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	idx := parseFile(t, e, "svc/users.py", pythonFixture).Index

	kinds := map[uast.EdgeKind]int{}
	for _, edge := range idx.Edges {
		kinds[edge.Kind]++
	}

	assert.GreaterOrEqual(t, kinds[uast.EdgeCalls], 1, "list_users CALLS helper")
	assert.GreaterOrEqual(t, kinds[uast.EdgeRaises], 1, "lookup RAISES ServiceError")
	assert.GreaterOrEqual(t, kinds[uast.EdgeExtends], 1, "AdminService EXTENDS UserService")
	assert.GreaterOrEqual(t, kinds[uast.EdgeImports], 1, "module IMPORTS models")
	assert.GreaterOrEqual(t, kinds[uast.EdgeEmits], 1, "list_users EMITS users.listed")
	assert.GreaterOrEqual(t, kinds[uast.EdgeReads], 1, "list_users READS MAX_SIZE")
	assert.GreaterOrEqual(t, kinds[uast.EdgeWrites], 1, "helper WRITES MAX_SIZE")
	assert.GreaterOrEqual(t, kinds[uast.EdgeRoutesTo], 1, "route wired to list_users")
}

func TestPythonAdapter_ImportTargetsModuleID(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	idx := parseFile(t, e, "svc/users.py", pythonFixture).Index

	want := uast.ModuleID("repo", "models.py")
	found := false
	for _, edge := range idx.Edges {
		if edge.Kind == uast.EdgeImports && edge.Dst == want {
			found = true
		}
	}
	assert.True(t, found,
		"import edge must target the deterministic module id of models.py")
}

func TestPythonAdapter_RelativeImport(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	idx := parseFile(t, e, "pkg/sub/mod.py", "from ..base import thing\n").Index

	want := uast.ModuleID("repo", "pkg/base.py")
	found := false
	for _, edge := range idx.Edges {
		if edge.Kind == uast.EdgeImports && edge.Dst == want {
			found = true
		}
	}
	assert.True(t, found, "relative import should resolve against the file's package")
}

func TestPythonAdapter_NameAnchoredSpans(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	idx := parseFile(t, e, "a.py", "def foo():\n    return 1\n").Index

	foo, ok := findNode(idx, uast.KindFunction, "foo")
	require.True(t, ok)
	// Identity anchors to the `foo` token, not the whole definition.
	assert.Equal(t, 4, foo.Span.StartByte)
	assert.Equal(t, 7, foo.Span.EndByte)
	assert.Equal(t, 1, foo.Span.StartLine)
	assert.Equal(t, 5, foo.Span.StartCol)
}

func TestPythonAdapter_MethodVsFunction(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	idx := parseFile(t, e, "a.py", "class C:\n    def m(self): pass\n\ndef f(): pass\n").Index

	_, isMethod := findNode(idx, uast.KindMethod, "m")
	assert.True(t, isMethod)
	_, isFunc := findNode(idx, uast.KindFunction, "f")
	assert.True(t, isFunc)
	if _, wrong := findNode(idx, uast.KindFunction, "m"); wrong {
		t.Error("class-scoped def must be a method, not a function")
	}
}
