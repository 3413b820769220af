// Package graph holds the code graph storage backends and the patch apply
// engine that keeps them consistent with the parsed source.
package graph

import (
	"context"
	"errors"
	"io"

	"codegraph/internal/uast"
)

// ErrNotFound is returned by lookups for ids absent from the store.
var ErrNotFound = errors.New("graph: node not found")

// Store is the interface for the code graph backend.
// Implementations: KuzuStore (production), MemStore (testing and default).
type Store interface {
	io.Closer

	// Schema setup, called once before any data is inserted.
	InitSchema(ctx context.Context) error

	// Begin opens a transaction. Patches apply atomically: either every
	// operation in a patch commits or none do.
	Begin(ctx context.Context) (Tx, error)

	// Read operations. Reads observe only committed state.
	GetNode(ctx context.Context, id uast.NodeID) (*uast.Node, error)
	HasNode(ctx context.Context, id uast.NodeID) (bool, error)
	NodesInFile(ctx context.Context, path string) ([]uast.Node, error)
	NodesByKind(ctx context.Context, kind uast.NodeKind) ([]uast.Node, error)

	// Graph traversal. Edges whose endpoints are not (yet) present are
	// invisible to traversal.
	Neighbors(ctx context.Context, id uast.NodeID, dir Direction, kinds []uast.EdgeKind) ([]uast.Node, error)
	ShortestPath(ctx context.Context, from, to uast.NodeID) ([]uast.NodeID, error)

	// Stats.
	Stats(ctx context.Context) (*Stats, error)
}

// Tx is a single graph write transaction. Operations are idempotent:
// re-upserting an existing node or edge and deleting an absent one both
// succeed.
type Tx interface {
	UpsertNode(node uast.Node) error
	UpsertEdge(edge uast.Edge) error
	// DeleteNode removes a node and every edge incident to it.
	DeleteNode(id uast.NodeID) error
	DeleteEdge(edgeID string) error

	Commit() error
	Rollback() error
}

// Direction controls edge traversal direction.
type Direction string

const (
	DirectionOut Direction = "out" // follow edges from src to dst
	DirectionIn  Direction = "in"  // follow edges from dst to src
)

// Stats summarizes the committed graph contents.
type Stats struct {
	Nodes       int64                 `json:"nodes"`
	Edges       int64                 `json:"edges"`
	NodesByKind map[uast.NodeKind]int `json:"nodes_by_kind"`
	EdgesByKind map[uast.EdgeKind]int `json:"edges_by_kind"`
	Files       int64                 `json:"files"`
}
