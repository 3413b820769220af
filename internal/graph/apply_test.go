package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegraph/internal/metrics"
	"codegraph/internal/patch"
	"codegraph/internal/uast"
)

func addPatch(nodes ...uast.Node) patch.AstPatch {
	return patch.NewBuilder("repo", "").AddNodes(nodes...).Build()
}

func TestApplier_AppliesInOrder(t *testing.T) {
	s := NewMemStore()
	m := metrics.New()
	a := NewApplier(s, DefaultApplyOptions(), nil, m)

	foo := testNode("foo", "a.py", 4)
	bar := testNode("bar", "b.py", 4)
	ctx := context.Background()

	require.NoError(t, a.Enqueue(ctx, addPatch(foo)))
	require.NoError(t, a.Enqueue(ctx, addPatch(bar)))
	require.NoError(t, a.Flush(ctx))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Nodes)
	assert.EqualValues(t, 2, m.PatchesApplied.Load())

	require.NoError(t, a.Close())
}

func TestApplier_EmptyPatchSkipped(t *testing.T) {
	s := NewMemStore()
	m := metrics.New()
	a := NewApplier(s, DefaultApplyOptions(), nil, m)
	defer a.Close()

	ctx := context.Background()
	require.NoError(t, a.Enqueue(ctx, patch.New("repo", "")))
	require.NoError(t, a.Flush(ctx))
	assert.EqualValues(t, 0, m.PatchesApplied.Load())
}

func TestApplier_ReapplyIsIdempotent(t *testing.T) {
	s := NewMemStore()
	a := NewApplier(s, DefaultApplyOptions(), nil, nil)
	defer a.Close()

	ctx := context.Background()
	p := addPatch(testNode("foo", "a.py", 4))
	require.NoError(t, a.Enqueue(ctx, p))
	require.NoError(t, a.Enqueue(ctx, p))
	require.NoError(t, a.Flush(ctx))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Nodes)
}

// flakyStore fails Begin a configured number of times before recovering.
type flakyStore struct {
	*MemStore
	failures int
}

var errFlaky = errors.New("transient backend failure")

func (f *flakyStore) Begin(ctx context.Context) (Tx, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errFlaky
	}
	return f.MemStore.Begin(ctx)
}

func TestApplier_RetriesTransientFailures(t *testing.T) {
	s := &flakyStore{MemStore: NewMemStore(), failures: 2}
	m := metrics.New()
	a := NewApplier(s, ApplyOptions{MaxRetries: 3, RetryBase: time.Millisecond}, nil, m)
	defer a.Close()

	ctx := context.Background()
	require.NoError(t, a.Enqueue(ctx, addPatch(testNode("foo", "a.py", 4))))
	require.NoError(t, a.Flush(ctx))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Nodes)
	assert.EqualValues(t, 2, m.ApplyRetries.Load())
	assert.EqualValues(t, 0, m.PatchesParked.Load())
}

func TestApplier_ParksAfterRetryExhaustion(t *testing.T) {
	s := &flakyStore{MemStore: NewMemStore(), failures: 100}
	m := metrics.New()
	a := NewApplier(s, ApplyOptions{MaxRetries: 2, RetryBase: time.Millisecond}, nil, m)
	defer a.Close()

	ctx := context.Background()
	p := addPatch(testNode("foo", "a.py", 4))
	require.NoError(t, a.Enqueue(ctx, p))
	require.NoError(t, a.Flush(ctx))

	assert.EqualValues(t, 1, m.PatchesParked.Load())
	select {
	case parked := <-a.Parked():
		assert.ErrorIs(t, parked, errFlaky)
		assert.Equal(t, "repo", parked.Patch.Repo)
	default:
		t.Fatal("parked patch not surfaced")
	}
}

// commitFailStore wraps MemStore transactions so the first commit fails,
// exercising the retry-after-rollback path.
type commitFailStore struct {
	*MemStore
	remaining int
}

func (c *commitFailStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.MemStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &commitFailTx{Tx: tx, store: c}, nil
}

type commitFailTx struct {
	Tx
	store *commitFailStore
}

func (t *commitFailTx) Commit() error {
	if t.store.remaining > 0 {
		t.store.remaining--
		return errFlaky
	}
	return t.Tx.Commit()
}

func TestApplier_FailedCommitLeavesNoPartialState(t *testing.T) {
	s := &commitFailStore{MemStore: NewMemStore(), remaining: 1}
	a := NewApplier(s, ApplyOptions{MaxRetries: 1, RetryBase: time.Millisecond}, nil, nil)
	defer a.Close()

	ctx := context.Background()
	good := testNode("good", "a.py", 4)
	require.NoError(t, a.Enqueue(ctx, addPatch(good)))
	require.NoError(t, a.Flush(ctx))

	// The retry succeeds; exactly one copy of the node is committed and the
	// failed first attempt left nothing behind.
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Nodes)
}

func TestApplier_ParkedClosesOnClose(t *testing.T) {
	a := NewApplier(NewMemStore(), DefaultApplyOptions(), nil, nil)
	require.NoError(t, a.Close())

	// Consumers range over Parked; shutdown must terminate them.
	_, ok := <-a.Parked()
	assert.False(t, ok)
}
