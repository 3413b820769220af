package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegraph/internal/uast"
)

func testNode(name, file string, start int) uast.Node {
	span := uast.Span{StartByte: start, EndByte: start + len(name), StartLine: 1, StartCol: start + 1, EndLine: 1, EndCol: start + 1 + len(name)}
	return uast.NewNode("repo", uast.KindFunction, name, uast.LangPython, file, span)
}

func commit(t *testing.T, s Store, fn func(Tx)) {
	t.Helper()
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	fn(tx)
	require.NoError(t, tx.Commit())
}

func TestMemStore_UpsertGet(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	foo := testNode("foo", "a.py", 4)

	commit(t, s, func(tx Tx) {
		require.NoError(t, tx.UpsertNode(foo))
	})

	got, err := s.GetNode(ctx, foo.ID)
	require.NoError(t, err)
	assert.Equal(t, foo, *got)

	ok, err := s.HasNode(ctx, foo.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemStore_GetMissing(t *testing.T) {
	s := NewMemStore()
	_, err := s.GetNode(context.Background(), uast.NodeID{1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStore_RollbackDiscards(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	foo := testNode("foo", "a.py", 4)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertNode(foo))
	require.NoError(t, tx.Rollback())

	ok, err := s.HasNode(ctx, foo.ID)
	require.NoError(t, err)
	assert.False(t, ok, "rolled-back node must not be visible")
}

func TestMemStore_UpsertIdempotent(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	foo := testNode("foo", "a.py", 4)

	for i := 0; i < 3; i++ {
		commit(t, s, func(tx Tx) {
			require.NoError(t, tx.UpsertNode(foo))
		})
	}

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Nodes)
}

func TestMemStore_DeleteCascadesEdges(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	foo := testNode("foo", "a.py", 4)
	bar := testNode("bar", "a.py", 30)
	call := uast.NewEdge(foo.ID, bar.ID, uast.EdgeCalls)

	commit(t, s, func(tx Tx) {
		require.NoError(t, tx.UpsertNode(foo))
		require.NoError(t, tx.UpsertNode(bar))
		require.NoError(t, tx.UpsertEdge(call))
	})

	commit(t, s, func(tx Tx) {
		require.NoError(t, tx.DeleteNode(bar.ID))
	})

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Nodes)
	assert.EqualValues(t, 0, stats.Edges, "incident edges must be cascaded")

	neighbors, err := s.Neighbors(ctx, foo.ID, DirectionOut, nil)
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestMemStore_DeleteAbsentSucceeds(t *testing.T) {
	s := NewMemStore()
	commit(t, s, func(tx Tx) {
		require.NoError(t, tx.DeleteNode(uast.NodeID{9}))
		require.NoError(t, tx.DeleteEdge("nonexistent>edge>CALLS"))
	})
}

func TestMemStore_DanglingEdgeBecomesVisible(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	foo := testNode("foo", "a.py", 4)
	ghost := testNode("ghost", "b.py", 4)
	edge := uast.NewEdge(foo.ID, ghost.ID, uast.EdgeImports)

	// Edge arrives before its target exists.
	commit(t, s, func(tx Tx) {
		require.NoError(t, tx.UpsertNode(foo))
		require.NoError(t, tx.UpsertEdge(edge))
	})

	neighbors, err := s.Neighbors(ctx, foo.ID, DirectionOut, nil)
	require.NoError(t, err)
	assert.Empty(t, neighbors, "dangling edge must be traversal-invisible")

	path, err := s.ShortestPath(ctx, foo.ID, ghost.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, path)

	// Target shows up; the same edge resolves with no reconciliation.
	commit(t, s, func(tx Tx) {
		require.NoError(t, tx.UpsertNode(ghost))
	})

	neighbors, err = s.Neighbors(ctx, foo.ID, DirectionOut, nil)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, ghost.ID, neighbors[0].ID)
}

func TestMemStore_NeighborsDirectionAndKind(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	a := testNode("a", "x.py", 1)
	b := testNode("b", "x.py", 20)
	c := testNode("c", "x.py", 40)

	commit(t, s, func(tx Tx) {
		require.NoError(t, tx.UpsertNode(a))
		require.NoError(t, tx.UpsertNode(b))
		require.NoError(t, tx.UpsertNode(c))
		require.NoError(t, tx.UpsertEdge(uast.NewEdge(a.ID, b.ID, uast.EdgeCalls)))
		require.NoError(t, tx.UpsertEdge(uast.NewEdge(c.ID, a.ID, uast.EdgeReads)))
	})

	out, err := s.Neighbors(ctx, a.ID, DirectionOut, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, b.ID, out[0].ID)

	in, err := s.Neighbors(ctx, a.ID, DirectionIn, nil)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, c.ID, in[0].ID)

	filtered, err := s.Neighbors(ctx, a.ID, DirectionOut, []uast.EdgeKind{uast.EdgeReads})
	require.NoError(t, err)
	assert.Empty(t, filtered)
}

func TestMemStore_ShortestPath(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	a := testNode("a", "x.py", 1)
	b := testNode("b", "x.py", 20)
	c := testNode("c", "x.py", 40)
	d := testNode("d", "y.py", 1)

	commit(t, s, func(tx Tx) {
		for _, n := range []uast.Node{a, b, c, d} {
			require.NoError(t, tx.UpsertNode(n))
		}
		require.NoError(t, tx.UpsertEdge(uast.NewEdge(a.ID, b.ID, uast.EdgeCalls)))
		require.NoError(t, tx.UpsertEdge(uast.NewEdge(b.ID, c.ID, uast.EdgeCalls)))
	})

	path, err := s.ShortestPath(ctx, a.ID, c.ID)
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.Equal(t, a.ID, path[0])
	assert.Equal(t, c.ID, path[2])

	none, err := s.ShortestPath(ctx, a.ID, d.ID)
	require.NoError(t, err)
	assert.Nil(t, none, "disconnected nodes have no path")
}

func TestMemStore_NodesInFileAndByKind(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	foo := testNode("foo", "a.py", 4)
	mod := uast.ModuleNode("repo", "a", uast.LangPython, "a.py")
	other := testNode("baz", "b.py", 4)

	commit(t, s, func(tx Tx) {
		require.NoError(t, tx.UpsertNode(foo))
		require.NoError(t, tx.UpsertNode(mod))
		require.NoError(t, tx.UpsertNode(other))
	})

	inFile, err := s.NodesInFile(ctx, "a.py")
	require.NoError(t, err)
	assert.Len(t, inFile, 2)

	mods, err := s.NodesByKind(ctx, uast.KindModule)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, mod.ID, mods[0].ID)
}
