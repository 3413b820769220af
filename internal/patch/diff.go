package patch

import (
	"sort"

	"codegraph/internal/uast"
)

// FileIndex is the id-keyed view of one file's nodes and edges, as produced
// by a single parse. It is immutable once built; successive parses produce
// fresh indexes rather than mutating prior ones.
type FileIndex struct {
	Nodes map[uast.NodeID]uast.Node
	Edges map[string]uast.Edge
}

// NewFileIndex indexes adapter output by id. Identity collisions drop the
// later entity and are reported to the caller; duplicate emissions of the
// same logical entity are deduplicated silently.
func NewFileIndex(nodes []uast.Node, edges []uast.Edge) (*FileIndex, []error) {
	nodeIndex, collisions := uast.IndexNodes(nodes)
	edgeIndex := make(map[string]uast.Edge, len(edges))
	for _, e := range edges {
		edgeIndex[e.ID()] = e
	}
	return &FileIndex{Nodes: nodeIndex, Edges: edgeIndex}, collisions
}

// EmptyFileIndex returns an index with no entities, used for files not yet
// parsed or already deleted.
func EmptyFileIndex() *FileIndex {
	return &FileIndex{
		Nodes: map[uast.NodeID]uast.Node{},
		Edges: map[string]uast.Edge{},
	}
}

// NodeIDs returns all node ids in the index, sorted for determinism.
func (f *FileIndex) NodeIDs() []uast.NodeID {
	ids := make([]uast.NodeID, 0, len(f.Nodes))
	for id := range f.Nodes {
		ids = append(ids, id)
	}
	sortNodeIDs(ids)
	return ids
}

// EdgeIDs returns all edge ids in the index, sorted for determinism.
func (f *FileIndex) EdgeIDs() []string {
	ids := make([]string, 0, len(f.Edges))
	for id := range f.Edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Diff computes the minimal patch that transforms the graph contribution of
// one file from old to new. An id present in both sets produces no entry,
// unless the signature changed, in which case the node is re-emitted as an
// add and applied by the store as an upsert. The diff is pure, deterministic,
// and O(n) over the two indexes.
func Diff(repo, version string, before, after *FileIndex) AstPatch {
	if before == nil {
		before = EmptyFileIndex()
	}
	if after == nil {
		after = EmptyFileIndex()
	}

	p := New(repo, version)

	for _, id := range after.NodeIDs() {
		node := after.Nodes[id]
		prev, existed := before.Nodes[id]
		if !existed || prev.Signature != node.Signature {
			p.NodesAdd = append(p.NodesAdd, node)
		}
	}
	for _, id := range before.NodeIDs() {
		if _, kept := after.Nodes[id]; !kept {
			p.NodesDelete = append(p.NodesDelete, id)
		}
	}

	for _, id := range after.EdgeIDs() {
		if _, existed := before.Edges[id]; !existed {
			p.EdgesAdd = append(p.EdgesAdd, after.Edges[id])
		}
	}
	for _, id := range before.EdgeIDs() {
		if _, kept := after.Edges[id]; !kept {
			p.EdgesDelete = append(p.EdgesDelete, id)
		}
	}

	return p
}

// DeleteAll builds the patch that removes every entity attributed to a file,
// used for Deleted events and the first half of a rename.
func DeleteAll(repo, version string, index *FileIndex) AstPatch {
	return Diff(repo, version, index, nil)
}

func sortNodeIDs(ids []uast.NodeID) {
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
}
