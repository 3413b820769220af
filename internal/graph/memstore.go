package graph

import (
	"context"
	"sync"

	"codegraph/internal/uast"
)

// Compile-time assertion: *MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

// MemStore implements Store using Go maps. Thread-safe via sync.RWMutex.
// Transactions buffer their writes and apply them under the lock at Commit,
// so readers never observe a half-applied patch.
type MemStore struct {
	mu    sync.RWMutex
	nodes map[uast.NodeID]uast.Node
	edges map[string]uast.Edge
	// incident tracks edge ids touching each node, for cascade deletes.
	incident map[uast.NodeID]map[string]struct{}
	byFile   map[string]map[uast.NodeID]struct{}
}

// NewMemStore returns an initialized MemStore ready for use.
func NewMemStore() *MemStore {
	return &MemStore{
		nodes:    make(map[uast.NodeID]uast.Node),
		edges:    make(map[string]uast.Edge),
		incident: make(map[uast.NodeID]map[string]struct{}),
		byFile:   make(map[string]map[uast.NodeID]struct{}),
	}
}

// InitSchema is a no-op for the in-memory store.
func (m *MemStore) InitSchema(_ context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error { return nil }

// Begin opens a buffered transaction.
func (m *MemStore) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memTx{store: m}, nil
}

func (m *MemStore) GetNode(_ context.Context, id uast.NodeID) (*uast.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	node, ok := m.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &node, nil
}

func (m *MemStore) HasNode(_ context.Context, id uast.NodeID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.nodes[id]
	return ok, nil
}

func (m *MemStore) NodesInFile(_ context.Context, path string) ([]uast.Node, error) {
	path = uast.NormalizePath(path)
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids, ok := m.byFile[path]
	if !ok {
		return nil, nil
	}
	nodes := make([]uast.Node, 0, len(ids))
	for id := range ids {
		nodes = append(nodes, m.nodes[id])
	}
	return nodes, nil
}

func (m *MemStore) NodesByKind(_ context.Context, kind uast.NodeKind) ([]uast.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []uast.Node
	for _, node := range m.nodes {
		if node.Kind == kind {
			out = append(out, node)
		}
	}
	return out, nil
}

// Neighbors returns committed nodes one hop from id. Dangling edges, those
// whose far endpoint has no committed node, are skipped.
func (m *MemStore) Neighbors(_ context.Context, id uast.NodeID, dir Direction, kinds []uast.EdgeKind) ([]uast.Node, error) {
	want := map[uast.EdgeKind]bool{}
	for _, k := range kinds {
		want[k] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []uast.Node
	seen := map[uast.NodeID]bool{}
	for eid := range m.incident[id] {
		edge := m.edges[eid]
		if len(want) > 0 && !want[edge.Kind] {
			continue
		}
		var far uast.NodeID
		switch {
		case dir == DirectionOut && edge.Src == id:
			far = edge.Dst
		case dir == DirectionIn && edge.Dst == id:
			far = edge.Src
		default:
			continue
		}
		if seen[far] {
			continue
		}
		node, ok := m.nodes[far]
		if !ok {
			continue // dangling endpoint
		}
		seen[far] = true
		out = append(out, node)
	}
	return out, nil
}

// ShortestPath runs a BFS over committed edges, treating them as undirected.
// Returns nil when no path exists.
func (m *MemStore) ShortestPath(_ context.Context, from, to uast.NodeID) ([]uast.NodeID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.nodes[from]; !ok {
		return nil, ErrNotFound
	}
	if _, ok := m.nodes[to]; !ok {
		return nil, ErrNotFound
	}
	if from == to {
		return []uast.NodeID{from}, nil
	}

	prev := map[uast.NodeID]uast.NodeID{from: from}
	queue := []uast.NodeID{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for eid := range m.incident[cur] {
			edge := m.edges[eid]
			far := edge.Dst
			if far == cur {
				far = edge.Src
			}
			if _, ok := m.nodes[far]; !ok {
				continue
			}
			if _, visited := prev[far]; visited {
				continue
			}
			prev[far] = cur
			if far == to {
				var path []uast.NodeID
				for at := to; ; at = prev[at] {
					path = append([]uast.NodeID{at}, path...)
					if at == from {
						return path, nil
					}
				}
			}
			queue = append(queue, far)
		}
	}
	return nil, nil
}

func (m *MemStore) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{
		Nodes:       int64(len(m.nodes)),
		Edges:       int64(len(m.edges)),
		Files:       int64(len(m.byFile)),
		NodesByKind: map[uast.NodeKind]int{},
		EdgesByKind: map[uast.EdgeKind]int{},
	}
	for _, node := range m.nodes {
		stats.NodesByKind[node.Kind]++
	}
	for _, edge := range m.edges {
		stats.EdgesByKind[edge.Kind]++
	}
	return stats, nil
}

// memTx buffers operations and replays them under the store lock at Commit.
type memTx struct {
	store *MemStore
	ops   []func(*MemStore)
	done  bool
}

func (t *memTx) UpsertNode(node uast.Node) error {
	t.ops = append(t.ops, func(m *MemStore) { m.putNode(node) })
	return nil
}

func (t *memTx) UpsertEdge(edge uast.Edge) error {
	t.ops = append(t.ops, func(m *MemStore) { m.putEdge(edge) })
	return nil
}

func (t *memTx) DeleteNode(id uast.NodeID) error {
	t.ops = append(t.ops, func(m *MemStore) { m.dropNode(id) })
	return nil
}

func (t *memTx) DeleteEdge(edgeID string) error {
	t.ops = append(t.ops, func(m *MemStore) { m.dropEdge(edgeID) })
	return nil
}

func (t *memTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, op := range t.ops {
		op(t.store)
	}
	t.ops = nil
	return nil
}

func (t *memTx) Rollback() error {
	t.done = true
	t.ops = nil
	return nil
}

// --- locked mutation helpers ---

func (m *MemStore) putNode(node uast.Node) {
	m.nodes[node.ID] = node
	file := m.byFile[node.File]
	if file == nil {
		file = map[uast.NodeID]struct{}{}
		m.byFile[node.File] = file
	}
	file[node.ID] = struct{}{}
}

func (m *MemStore) putEdge(edge uast.Edge) {
	id := edge.ID()
	m.edges[id] = edge
	for _, nid := range []uast.NodeID{edge.Src, edge.Dst} {
		inc := m.incident[nid]
		if inc == nil {
			inc = map[string]struct{}{}
			m.incident[nid] = inc
		}
		inc[id] = struct{}{}
	}
}

func (m *MemStore) dropNode(id uast.NodeID) {
	node, ok := m.nodes[id]
	if !ok {
		return
	}
	delete(m.nodes, id)
	if file := m.byFile[node.File]; file != nil {
		delete(file, id)
		if len(file) == 0 {
			delete(m.byFile, node.File)
		}
	}
	for eid := range m.incident[id] {
		m.dropEdge(eid)
	}
	delete(m.incident, id)
}

func (m *MemStore) dropEdge(edgeID string) {
	edge, ok := m.edges[edgeID]
	if !ok {
		return
	}
	delete(m.edges, edgeID)
	for _, nid := range []uast.NodeID{edge.Src, edge.Dst} {
		if inc := m.incident[nid]; inc != nil {
			delete(inc, edgeID)
			if len(inc) == 0 {
				delete(m.incident, nid)
			}
		}
	}
}
