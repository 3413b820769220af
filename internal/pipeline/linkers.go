package pipeline

import (
	"context"
	"time"

	"codegraph/internal/linker"
	"codegraph/internal/patch"
)

// RunLinkers executes the post-pass plugins over the committed graph and
// applies their edges as one synthetic patch. Linker failures are logged;
// edges from the surviving linkers still apply.
func (p *Pipeline) RunLinkers(ctx context.Context, g linker.GraphReader, linkers []linker.Linker) error {
	if len(linkers) == 0 {
		return nil
	}
	// Linkers read committed state. Patches from the scan may still be
	// queued behind the writer; drain them before the first read or
	// cross-file edges are silently missed.
	if err := p.applier.Flush(ctx); err != nil {
		return err
	}
	edges, errs := linker.RunAll(ctx, g, linkers)
	for _, err := range errs {
		p.logger.Warn("linker.failed", "error", err)
	}
	if len(edges) == 0 {
		return nil
	}

	pch := patch.NewBuilder(p.opts.RepoID, "").
		AddEdges(edges...).
		WithTimestamp(time.Now().UnixMilli()).
		Build()
	if err := p.applier.Enqueue(ctx, pch); err != nil {
		return err
	}
	p.logger.Info("linker.applied", "edges", len(edges))
	return nil
}
