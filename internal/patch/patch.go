// Package patch defines the minimal add/delete delta between two parse
// states of one file, and the differ that produces it.
package patch

import (
	"time"

	"codegraph/internal/uast"
)

// AstPatch is the self-contained, idempotent delta applied to the graph for
// one file-change cycle. The JSON shape is the wire contract toward storage
// and notification consumers.
type AstPatch struct {
	Repo        string        `json:"repo"`
	Version     string        `json:"version,omitempty"`
	NodesAdd    []uast.Node   `json:"nodes_add"`
	EdgesAdd    []uast.Edge   `json:"edges_add"`
	NodesDelete []uast.NodeID `json:"nodes_delete_id"`
	EdgesDelete []string      `json:"edges_delete_id"`
	TimestampMS int64         `json:"timestamp"`
}

// New creates an empty patch stamped with the current time.
func New(repo, version string) AstPatch {
	return AstPatch{
		Repo:        repo,
		Version:     version,
		TimestampMS: time.Now().UnixMilli(),
	}
}

// IsEmpty reports whether the patch carries no operations.
func (p AstPatch) IsEmpty() bool {
	return len(p.NodesAdd) == 0 && len(p.EdgesAdd) == 0 &&
		len(p.NodesDelete) == 0 && len(p.EdgesDelete) == 0
}

// OperationCount returns the total number of operations in the patch.
func (p AstPatch) OperationCount() int {
	return len(p.NodesAdd) + len(p.EdgesAdd) + len(p.NodesDelete) + len(p.EdgesDelete)
}

// Merge folds another patch into this one, keeping the latest timestamp.
func (p *AstPatch) Merge(other AstPatch) {
	p.NodesAdd = append(p.NodesAdd, other.NodesAdd...)
	p.EdgesAdd = append(p.EdgesAdd, other.EdgesAdd...)
	p.NodesDelete = append(p.NodesDelete, other.NodesDelete...)
	p.EdgesDelete = append(p.EdgesDelete, other.EdgesDelete...)
	if other.TimestampMS > p.TimestampMS {
		p.TimestampMS = other.TimestampMS
	}
}

// Builder accumulates patch operations fluently.
type Builder struct {
	patch AstPatch
}

// NewBuilder creates a builder for an empty patch.
func NewBuilder(repo, version string) *Builder {
	return &Builder{patch: New(repo, version)}
}

// AddNodes appends nodes to the add set.
func (b *Builder) AddNodes(nodes ...uast.Node) *Builder {
	b.patch.NodesAdd = append(b.patch.NodesAdd, nodes...)
	return b
}

// AddEdges appends edges to the add set.
func (b *Builder) AddEdges(edges ...uast.Edge) *Builder {
	b.patch.EdgesAdd = append(b.patch.EdgesAdd, edges...)
	return b
}

// DeleteNodes appends node ids to the delete set.
func (b *Builder) DeleteNodes(ids ...uast.NodeID) *Builder {
	b.patch.NodesDelete = append(b.patch.NodesDelete, ids...)
	return b
}

// DeleteEdges appends edge ids to the delete set.
func (b *Builder) DeleteEdges(ids ...string) *Builder {
	b.patch.EdgesDelete = append(b.patch.EdgesDelete, ids...)
	return b
}

// WithTimestamp overrides the patch timestamp.
func (b *Builder) WithTimestamp(ms int64) *Builder {
	b.patch.TimestampMS = ms
	return b
}

// Build returns the accumulated patch.
func (b *Builder) Build() AstPatch {
	return b.patch
}
