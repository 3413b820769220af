package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"codegraph/internal/graph"
	"codegraph/internal/metrics"
	"codegraph/internal/parser"
	"codegraph/internal/patch"
)

// Options tunes the pipeline.
type Options struct {
	RepoID  string
	Root    string
	Workers int
}

// Pipeline consumes change events, parses the affected files, diffs the
// result against the last committed index, and hands minimal patches to the
// applier. Parsing fans out across workers; commits per path are ordered by
// a version counter, so a stale parse can never overwrite a newer one.
type Pipeline struct {
	opts    Options
	engine  *parser.Engine
	applier *graph.Applier
	filter  *PathFilter
	logger  *slog.Logger
	metrics *metrics.Metrics

	sem *semaphore.Weighted

	mu sync.Mutex
	// versions assigns a monotonic ticket per path at intake; a parse result
	// commits only while it still holds the latest ticket.
	versions map[string]uint64
	// lastIndex is the authoritative committed index per path. It survives
	// engine cache eviction, which keeps file deletes complete.
	lastIndex map[string]*patch.FileIndex

	wg sync.WaitGroup
}

// New builds a pipeline over an engine and applier.
func New(opts Options, engine *parser.Engine, applier *graph.Applier, filter *PathFilter, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		opts:      opts,
		engine:    engine,
		applier:   applier,
		filter:    filter,
		logger:    logger,
		metrics:   m,
		sem:       semaphore.NewWeighted(int64(opts.Workers)),
		versions:  make(map[string]uint64),
		lastIndex: make(map[string]*patch.FileIndex),
	}
}

// Run consumes watcher events until the context is canceled, then waits for
// in-flight work to finish.
func (p *Pipeline) Run(ctx context.Context, events <-chan ChangeEvent) error {
	defer p.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.Dispatch(ctx, ev)
		}
	}
}

// Dispatch routes one event to a worker. Deletes and renames run inline;
// they are cheap and must not race a concurrent parse of the same path.
func (p *Pipeline) Dispatch(ctx context.Context, ev ChangeEvent) {
	if p.metrics != nil {
		p.metrics.EventsProcessed.Add(1)
	}

	switch ev.Kind {
	case ChangeDeleted:
		p.handleDelete(ctx, ev.Path)
	case ChangeRenamed:
		if ev.OldPath != "" && ev.OldPath != ev.Path {
			p.handleDelete(ctx, ev.OldPath)
		}
		p.spawnParse(ctx, ev.Path)
	case ChangeCreated, ChangeModified:
		p.spawnParse(ctx, ev.Path)
	default:
		if p.metrics != nil {
			p.metrics.EventsFiltered.Add(1)
		}
	}
}

func (p *Pipeline) spawnParse(ctx context.Context, rel string) {
	ticket := p.takeTicket(rel)

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		if err := p.parseAndCommit(ctx, rel, ticket); err != nil {
			if p.metrics != nil {
				p.metrics.EventsFailed.Add(1)
			}
			p.logger.Warn("pipeline.file_failed", "path", rel, "error", err)
		}
	}()
}

func (p *Pipeline) takeTicket(rel string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.versions[rel]++
	return p.versions[rel]
}

// parseAndCommit parses one file and commits its diff. A failure leaves the
// previous committed state untouched, so one broken file never poisons the
// rest of the pipeline.
func (p *Pipeline) parseAndCommit(ctx context.Context, rel string, ticket uint64) error {
	abs := p.filter.Abs(rel)
	content, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Raced a delete; the delete event will settle the state.
			return nil
		}
		return fmt.Errorf("read: %w", err)
	}
	info, err := os.Stat(abs)
	mtime := time.Now()
	if err == nil {
		mtime = info.ModTime()
	}

	res, err := p.engine.Parse(ctx, rel, content, mtime)
	if err != nil {
		if errors.Is(err, parser.ErrUnsupportedLanguage) {
			if p.metrics != nil {
				p.metrics.EventsFiltered.Add(1)
			}
			return nil
		}
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.versions[rel] != ticket {
		if p.metrics != nil {
			p.metrics.StaleDiscards.Add(1)
		}
		return nil
	}

	before := p.lastIndex[rel]
	pch := patch.Diff(p.opts.RepoID, "", before, res.Index)
	p.lastIndex[rel] = res.Index

	if err := p.applier.Enqueue(ctx, pch); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	p.logger.Debug("pipeline.patched",
		"path", rel,
		"ops", pch.OperationCount(),
		"incremental", res.Incremental)
	return nil
}

// handleDelete retires a path: drop the cached tree, emit a delete-only
// patch covering everything the file last contributed.
func (p *Pipeline) handleDelete(ctx context.Context, rel string) {
	p.engine.Remove(rel)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.versions[rel]++ // invalidate any in-flight parse
	index, ok := p.lastIndex[rel]
	if !ok {
		return
	}
	delete(p.lastIndex, rel)

	pch := patch.DeleteAll(p.opts.RepoID, "", index)
	if err := p.applier.Enqueue(ctx, pch); err != nil {
		if p.metrics != nil {
			p.metrics.EventsFailed.Add(1)
		}
		p.logger.Warn("pipeline.delete_failed", "path", rel, "error", err)
		return
	}
	p.logger.Debug("pipeline.deleted", "path", rel, "ops", pch.OperationCount())
}

// Tracked returns how many files currently have committed graph state.
func (p *Pipeline) Tracked() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lastIndex)
}
