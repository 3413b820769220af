package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"codegraph/internal/metrics"
	"codegraph/internal/patch"
)

// ApplyOptions tunes the apply engine.
type ApplyOptions struct {
	// QueueSize bounds the pending patch queue; Enqueue blocks when full.
	QueueSize int
	// MaxRetries is the number of re-attempts after a failed commit.
	MaxRetries int
	// RetryBase is the first backoff delay; it doubles per attempt.
	RetryBase time.Duration
}

// DefaultApplyOptions mirrors the pipeline defaults.
func DefaultApplyOptions() ApplyOptions {
	return ApplyOptions{QueueSize: 256, MaxRetries: 3, RetryBase: 100 * time.Millisecond}
}

// ApplyError carries a patch that exhausted its retries and was parked.
type ApplyError struct {
	Patch patch.AstPatch
	Err   error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply: patch for %q parked after retries: %v", e.Patch.Repo, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Applier is the single writer to the graph store. Patches are applied in
// enqueue order, one transaction per patch, so a patch is all-or-nothing and
// readers never see a torn file update.
type Applier struct {
	store   Store
	opts    ApplyOptions
	logger  *slog.Logger
	metrics *metrics.Metrics

	queue  chan queued
	parked chan *ApplyError
	done   chan struct{}
}

type queued struct {
	patch    patch.AstPatch
	enqueued time.Time
	flush    chan struct{} // when set, the writer closes it instead of applying
}

// NewApplier starts the writer goroutine. Close drains and stops it.
func NewApplier(store Store, opts ApplyOptions, logger *slog.Logger, m *metrics.Metrics) *Applier {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultApplyOptions().QueueSize
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = DefaultApplyOptions().RetryBase
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Applier{
		store:   store,
		opts:    opts,
		logger:  logger,
		metrics: m,
		queue:   make(chan queued, opts.QueueSize),
		parked:  make(chan *ApplyError, 16),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Enqueue submits a patch for application. Blocks when the queue is full,
// which backpressures the parse workers. Empty patches are dropped.
func (a *Applier) Enqueue(ctx context.Context, p patch.AstPatch) error {
	if p.IsEmpty() {
		return nil
	}
	select {
	case a.queue <- queued{patch: p, enqueued: time.Now()}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush blocks until every patch enqueued before the call has been applied
// or parked.
func (a *Applier) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case a.queue <- queued{flush: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Parked exposes patches that exhausted their retries. The channel is
// buffered; unread parks are dropped rather than blocking the writer.
func (a *Applier) Parked() <-chan *ApplyError { return a.parked }

// Close stops accepting patches, applies everything already queued, and
// waits for the writer to exit.
func (a *Applier) Close() error {
	close(a.queue)
	<-a.done
	return nil
}

func (a *Applier) run() {
	defer close(a.done)
	// Parks are sent only from this goroutine; closing here lets consumers
	// range over Parked until the applier shuts down.
	defer close(a.parked)
	for q := range a.queue {
		if q.flush != nil {
			close(q.flush)
			continue
		}
		if a.metrics != nil {
			a.metrics.ApplyQueueLag.Store(time.Since(q.enqueued).Milliseconds())
		}
		a.applyWithRetry(q.patch)
	}
}

func (a *Applier) applyWithRetry(p patch.AstPatch) {
	delay := a.opts.RetryBase
	var err error
	for attempt := 0; attempt <= a.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if a.metrics != nil {
				a.metrics.ApplyRetries.Add(1)
			}
			time.Sleep(delay)
			delay *= 2
		}
		if err = a.applyOnce(p); err == nil {
			if a.metrics != nil {
				a.metrics.PatchesApplied.Add(1)
			}
			a.logger.Debug("apply.committed",
				"repo", p.Repo,
				"ops", p.OperationCount(),
				"attempt", attempt)
			return
		}
		a.logger.Warn("apply.failed",
			"repo", p.Repo,
			"attempt", attempt,
			"error", err)
	}

	if a.metrics != nil {
		a.metrics.PatchesParked.Add(1)
	}
	parked := &ApplyError{Patch: p, Err: err}
	select {
	case a.parked <- parked:
	default:
		a.logger.Error("apply.park_dropped", "repo", p.Repo, "error", err)
	}
}

// applyOnce runs one patch in one transaction. Order inside the transaction
// is deletes-then-adds: edge deletes, node deletes (cascading), node adds,
// edge adds, so a rename within a file never leaves a stale twin.
func (a *Applier) applyOnce(p patch.AstPatch) (err error) {
	ctx := context.Background()
	tx, err := a.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				a.logger.Error("apply.rollback_failed", "error", rbErr)
			}
		}
	}()

	for _, edgeID := range p.EdgesDelete {
		if err = tx.DeleteEdge(edgeID); err != nil {
			return fmt.Errorf("delete edge %s: %w", edgeID, err)
		}
	}
	for _, id := range p.NodesDelete {
		if err = tx.DeleteNode(id); err != nil {
			return fmt.Errorf("delete node %s: %w", id.Short(), err)
		}
	}
	for _, node := range p.NodesAdd {
		if err = tx.UpsertNode(node); err != nil {
			return fmt.Errorf("upsert node %s: %w", node.ID.Short(), err)
		}
	}
	for _, edge := range p.EdgesAdd {
		if err = tx.UpsertEdge(edge); err != nil {
			return fmt.Errorf("upsert edge %s: %w", edge.ID(), err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
