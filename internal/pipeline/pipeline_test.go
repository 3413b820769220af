package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegraph/internal/graph"
	"codegraph/internal/linker"
	"codegraph/internal/metrics"
	"codegraph/internal/parser"
	"codegraph/internal/uast"
)

type harness struct {
	root  string
	store *graph.MemStore
	app   *graph.Applier
	pipe  *Pipeline
	m     *metrics.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	store := graph.NewMemStore()
	m := metrics.New()

	engine, err := parser.NewEngine(parser.NewRegistry("repo"), parser.Options{}, nil, m)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	app := graph.NewApplier(store, graph.DefaultApplyOptions(), nil, m)
	t.Cleanup(func() { app.Close() })

	filter := NewPathFilter(root, nil)
	pipe := New(Options{RepoID: "repo", Root: root, Workers: 2}, engine, app, filter, nil, m)
	return &harness{root: root, store: store, app: app, pipe: pipe, m: m}
}

func (h *harness) write(t *testing.T, rel, content string) {
	t.Helper()
	abs := filepath.Join(h.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

// settle waits for queued patches to reach the store.
func (h *harness) settle(t *testing.T) {
	t.Helper()
	h.pipe.wg.Wait()
	require.NoError(t, h.app.Flush(context.Background()))
}

func (h *harness) dispatch(t *testing.T, ev ChangeEvent) {
	t.Helper()
	h.pipe.Dispatch(context.Background(), ev)
	h.settle(t)
}

func TestPipeline_ScanIndexesRepo(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.py", "def foo(): pass\n")
	h.write(t, "pkg/b.py", "from a import foo\n")
	h.write(t, "notes.txt", "not code\n")

	res, err := h.pipe.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.FilesIndexed)
	assert.Equal(t, 0, res.FilesFailed)
	h.settle(t)

	ctx := context.Background()
	nodes, err := h.store.NodesInFile(ctx, "a.py")
	require.NoError(t, err)
	assert.NotEmpty(t, nodes)
	assert.Equal(t, 2, h.pipe.Tracked())
}

func TestPipeline_ModifyEmitsMinimalPatch(t *testing.T) {
	h := newHarness(t)
	h.write(t, "util.py", "def foo(): pass\n\ndef bar(): pass\n")
	h.dispatch(t, ChangeEvent{Path: "util.py", Kind: ChangeCreated})

	ctx := context.Background()
	before, err := h.store.Stats(ctx)
	require.NoError(t, err)

	h.write(t, "util.py", "def foo(): bar()\n\ndef bar(): pass\n")
	h.dispatch(t, ChangeEvent{Path: "util.py", Kind: ChangeModified})

	after, err := h.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Nodes+1, after.Nodes, "exactly the call node is new")
	assert.Equal(t, before.Edges+1, after.Edges, "exactly the CALLS edge is new")
}

func TestPipeline_DeleteRemovesEverything(t *testing.T) {
	h := newHarness(t)
	h.write(t, "gone.py", "def foo():\n    return bar()\n\ndef bar(): pass\n")
	h.dispatch(t, ChangeEvent{Path: "gone.py", Kind: ChangeCreated})

	ctx := context.Background()
	stats, err := h.store.Stats(ctx)
	require.NoError(t, err)
	require.Positive(t, stats.Nodes)

	require.NoError(t, os.Remove(filepath.Join(h.root, "gone.py")))
	h.dispatch(t, ChangeEvent{Path: "gone.py", Kind: ChangeDeleted})

	stats, err = h.store.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats.Nodes, "no stored entity may reference the deleted file")
	assert.EqualValues(t, 0, stats.Edges)

	nodes, err := h.store.NodesInFile(ctx, "gone.py")
	require.NoError(t, err)
	assert.Empty(t, nodes)
	assert.Equal(t, 0, h.pipe.Tracked())
}

func TestPipeline_DeleteUnknownFileIsNoop(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, ChangeEvent{Path: "never-seen.py", Kind: ChangeDeleted})
	assert.EqualValues(t, 0, h.m.EventsFailed.Load())
}

func TestPipeline_RenameIsDeletePlusAdd(t *testing.T) {
	h := newHarness(t)
	h.write(t, "old.py", "def foo(): pass\n")
	h.dispatch(t, ChangeEvent{Path: "old.py", Kind: ChangeCreated})

	ctx := context.Background()
	oldNodes, err := h.store.NodesInFile(ctx, "old.py")
	require.NoError(t, err)
	require.NotEmpty(t, oldNodes)

	require.NoError(t, os.Rename(
		filepath.Join(h.root, "old.py"), filepath.Join(h.root, "new.py")))
	h.dispatch(t, ChangeEvent{Path: "new.py", OldPath: "old.py", Kind: ChangeRenamed})

	gone, err := h.store.NodesInFile(ctx, "old.py")
	require.NoError(t, err)
	assert.Empty(t, gone, "old path fully retired")

	moved, err := h.store.NodesInFile(ctx, "new.py")
	require.NoError(t, err)
	require.NotEmpty(t, moved)

	// Identity does not survive the move: same shape, different file, new ids.
	var oldFoo, newFoo uast.Node
	for _, n := range oldNodes {
		if n.Kind == uast.KindFunction {
			oldFoo = n
		}
	}
	for _, n := range moved {
		if n.Kind == uast.KindFunction {
			newFoo = n
		}
	}
	require.False(t, newFoo.ID.IsZero())
	assert.NotEqual(t, oldFoo.ID, newFoo.ID)
}

func TestPipeline_BrokenFileIsIsolated(t *testing.T) {
	h := newHarness(t)
	h.write(t, "good.py", "def foo(): pass\n")
	h.write(t, "big.py", "x = 1\n")

	// Shrink the size ceiling so big.py is rejected while good.py parses.
	m := metrics.New()
	engine, err := parser.NewEngine(parser.NewRegistry("repo"), parser.Options{MaxFileSize: 20}, nil, m)
	require.NoError(t, err)
	defer engine.Close()
	h.write(t, "big.py", "x = 1  # comment long enough to cross the tiny ceiling\n")

	app := graph.NewApplier(h.store, graph.DefaultApplyOptions(), nil, m)
	defer app.Close()
	pipe := New(Options{RepoID: "repo", Root: h.root, Workers: 2},
		engine, app, NewPathFilter(h.root, nil), nil, m)

	res, err := pipe.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesIndexed)
	assert.Equal(t, 1, res.FilesFailed)
}

func TestPipeline_StaleParseDiscarded(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.py", "def foo(): pass\n")

	// Take a ticket, then let a newer one supersede it before committing.
	stale := h.pipe.takeTicket("a.py")
	_ = h.pipe.takeTicket("a.py")

	err := h.pipe.parseAndCommit(context.Background(), "a.py", stale)
	require.NoError(t, err)
	h.settle(t)

	assert.EqualValues(t, 1, h.m.StaleDiscards.Load())
	assert.Equal(t, 0, h.pipe.Tracked(), "stale result must not commit")
}

// slowStore delays transaction starts so enqueued patches are still pending
// when a reader races the single writer.
type slowStore struct {
	*graph.MemStore
	delay time.Duration
}

func (s *slowStore) Begin(ctx context.Context) (graph.Tx, error) {
	time.Sleep(s.delay)
	return s.MemStore.Begin(ctx)
}

func TestPipeline_LinkersWaitForScanToApply(t *testing.T) {
	root := t.TempDir()
	store := &slowStore{MemStore: graph.NewMemStore(), delay: 50 * time.Millisecond}
	m := metrics.New()

	engine, err := parser.NewEngine(parser.NewRegistry("repo"), parser.Options{}, nil, m)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	app := graph.NewApplier(store, graph.DefaultApplyOptions(), nil, m)
	t.Cleanup(func() { app.Close() })

	pipe := New(Options{RepoID: "repo", Root: root, Workers: 2},
		engine, app, NewPathFilter(root, nil), nil, m)

	write := func(rel, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(root, rel), []byte(content), 0o644))
	}
	write("routes.py", "@app.route(\"/users\")\ndef index():\n    pass\n")
	write("handlers.py", "def get_users():\n    pass\n")

	ctx := context.Background()
	_, err = pipe.Scan(ctx)
	require.NoError(t, err)
	pipe.wg.Wait()

	// No explicit flush here: the linker pass itself must wait out the
	// writer, or it reads an empty graph and drops the cross-file edge.
	require.NoError(t, pipe.RunLinkers(ctx, store, []linker.Linker{linker.RouteLinker{}}))
	require.NoError(t, app.Flush(ctx))

	routes, err := store.NodesByKind(ctx, uast.KindRoute)
	require.NoError(t, err)
	require.Len(t, routes, 1)

	nbrs, err := store.Neighbors(ctx, routes[0].ID, graph.DirectionOut,
		[]uast.EdgeKind{uast.EdgeRoutesTo})
	require.NoError(t, err)
	var names []string
	for _, n := range nbrs {
		names = append(names, n.Name)
	}
	assert.Contains(t, names, "get_users",
		"route in routes.py must link to the handler in handlers.py")
}
