// Package linker hosts post-pass plugins that add cross-file edges the
// per-file adapters cannot see. Linkers run after a full scan; their output
// is applied as one synthetic patch. The heuristics here are fuzzy on
// purpose and stay isolated from the identity-preserving core.
package linker

import (
	"context"

	"codegraph/internal/uast"
)

// GraphReader is the read-only graph view handed to linkers.
type GraphReader interface {
	NodesByKind(ctx context.Context, kind uast.NodeKind) ([]uast.Node, error)
}

// Linker derives extra edges from the committed graph. Implementations must
// be pure: no writes, no retained state between runs.
type Linker interface {
	Name() string
	Link(ctx context.Context, g GraphReader) ([]uast.Edge, error)
}

// RunAll executes every linker and concatenates their edges, deduplicated
// by edge identity. A failing linker is skipped, not fatal.
func RunAll(ctx context.Context, g GraphReader, linkers []Linker) ([]uast.Edge, []error) {
	seen := map[string]bool{}
	var edges []uast.Edge
	var errs []error
	for _, l := range linkers {
		out, err := l.Link(ctx, g)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, e := range out {
			if id := e.ID(); !seen[id] {
				seen[id] = true
				edges = append(edges, e)
			}
		}
	}
	return edges, errs
}
