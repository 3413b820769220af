package uast

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIdentityCollision reports two semantically distinct entities hashing to
// the same node id. The later entity is skipped, never merged.
var ErrIdentityCollision = errors.New("uast: node identity collision")

// Node is one entity in the universal AST. The wire shape matches the patch
// contract consumed by storage and notification collaborators.
type Node struct {
	ID        NodeID   `json:"id"`
	Kind      NodeKind `json:"kind"`
	Name      string   `json:"name"`
	Lang      Language `json:"lang"`
	File      string   `json:"file"`
	Span      Span     `json:"span"`
	Signature string   `json:"sig,omitempty"`
}

// NewNode builds a node with its deterministic id. The file path is
// normalized so the stored path and the hashed path agree.
func NewNode(repoID string, kind NodeKind, name string, lang Language, file string, span Span) Node {
	normalized := NormalizePath(file)
	return Node{
		ID:   ComputeNodeID(repoID, normalized, span, kind),
		Kind: kind,
		Name: name,
		Lang: lang,
		File: normalized,
		Span: span,
	}
}

// ModuleSpan is the fixed span given to every Module node. Anchoring modules
// to a constant span keeps their ids stable across edits and lets adapters
// compute the id of another file's module without parsing it.
func ModuleSpan() Span {
	return Span{StartLine: 1, StartCol: 1, EndLine: 1, EndCol: 1}
}

// ModuleID returns the deterministic id of the Module node for a file.
func ModuleID(repoID, file string) NodeID {
	return ComputeNodeID(repoID, NormalizePath(file), ModuleSpan(), KindModule)
}

// ModuleNode builds the Module node representing a whole file.
func ModuleNode(repoID, name string, lang Language, file string) Node {
	return NewNode(repoID, KindModule, name, lang, file, ModuleSpan())
}

// WithSignature returns a copy of the node carrying a type signature.
// Signatures do not participate in identity.
func (n Node) WithSignature(sig string) Node {
	n.Signature = sig
	return n
}

func (n Node) String() string {
	return fmt.Sprintf("%s %s %q at %s:%s", n.Lang, n.Kind, n.Name, n.File, n.Span)
}

// Edge is a relationship between two nodes. It has no lifecycle independent
// of its endpoints; its identity is fully determined by (src, dst, kind).
type Edge struct {
	Src  NodeID   `json:"src_id"`
	Dst  NodeID   `json:"dst_id"`
	Kind EdgeKind `json:"kind"`
}

// NewEdge builds an edge between two node ids.
func NewEdge(src, dst NodeID, kind EdgeKind) Edge {
	return Edge{Src: src, Dst: dst, Kind: kind}
}

// ID returns the canonical string identity of the edge.
func (e Edge) ID() string {
	return e.Src.String() + ">" + e.Dst.String() + ">" + string(e.Kind)
}

// ParseEdgeID decomposes a canonical edge id back into its parts.
func ParseEdgeID(id string) (Edge, error) {
	srcHex, rest, ok := strings.Cut(id, ">")
	if !ok {
		return Edge{}, fmt.Errorf("malformed edge id %q", id)
	}
	dstHex, kind, ok := strings.Cut(rest, ">")
	if !ok || kind == "" {
		return Edge{}, fmt.Errorf("malformed edge id %q", id)
	}
	src, err := ParseNodeID(srcHex)
	if err != nil {
		return Edge{}, fmt.Errorf("edge id %q: %w", id, err)
	}
	dst, err := ParseNodeID(dstHex)
	if err != nil {
		return Edge{}, fmt.Errorf("edge id %q: %w", id, err)
	}
	return Edge{Src: src, Dst: dst, Kind: EdgeKind(kind)}, nil
}

func (e Edge) String() string {
	return fmt.Sprintf("%s --%s-> %s", e.Src.Short(), e.Kind, e.Dst.Short())
}

// IndexNodes builds an id-keyed map from a node slice. When two distinct
// entities collide on the same id the later one is dropped and reported;
// re-emissions of the same logical entity are not collisions.
func IndexNodes(nodes []Node) (map[NodeID]Node, []error) {
	index := make(map[NodeID]Node, len(nodes))
	var collisions []error
	for _, n := range nodes {
		prev, ok := index[n.ID]
		if !ok {
			index[n.ID] = n
			continue
		}
		if prev.Name != n.Name || prev.Kind != n.Kind || prev.File != n.File {
			collisions = append(collisions, fmt.Errorf(
				"%w: %s kept %q, skipped %q", ErrIdentityCollision, n.ID.Short(), prev.Name, n.Name))
		}
	}
	return index, collisions
}
