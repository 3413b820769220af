package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"codegraph/internal/metrics"
	"codegraph/internal/patch"
	"codegraph/internal/uast"
)

var (
	// ErrUnsupportedLanguage marks files with no registered adapter; the
	// pipeline skips them without error.
	ErrUnsupportedLanguage = errors.New("parser: unsupported language")

	// ErrFileTooLarge marks files above the configured size ceiling.
	ErrFileTooLarge = errors.New("parser: file exceeds size ceiling")
)

// ParseError reports a grammar failure or timeout on one file. The file's
// graph contribution stays frozen at the last good patch.
type ParseError struct {
	Path    string
	Timeout bool
	Err     error
}

func (e *ParseError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("parser: %s: parse exceeded time budget", e.Path)
	}
	return fmt.Sprintf("parser: %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Result is the output of one parse cycle for one file.
type Result struct {
	Path        string
	Lang        uast.Language
	Index       *patch.FileIndex
	Diagnostics []Diagnostic
	Incremental bool
}

// parseUnit is one cache entry: the tree snapshot, the source it was parsed
// from, the derived index, and the file mtime. Units are replaced wholesale
// on re-parse, never mutated after insertion.
type parseUnit struct {
	tree   *tree_sitter.Tree
	source []byte
	index  *patch.FileIndex
	mtime  time.Time
}

// Options bound the engine's resource use.
type Options struct {
	MaxFileSize  int           // bytes; 0 means DefaultMaxFileSize
	MaxParse     time.Duration // per-file wall clock; 0 means DefaultMaxParse
	CacheEntries int           // LRU ceiling; 0 means DefaultCacheEntries
}

const (
	DefaultMaxFileSize  = 2 << 20 // 2 MiB
	DefaultMaxParse     = 10 * time.Second
	DefaultCacheEntries = 4096
)

// Engine owns all cached trees and drives per-file incremental parsing.
// Distinct paths parse in parallel; parses of one path are serialized by a
// per-path mutex so the cache stays coherent. Trees never leave the engine:
// callers receive immutable index snapshots only, which keeps prior parse
// output safe for concurrent readers while the engine reuses old trees for
// incremental parsing.
type Engine struct {
	registry *Registry
	opts     Options
	logger   *slog.Logger
	counters *metrics.Metrics

	cache *lru.Cache[string, *parseUnit]

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates an engine over the given registry.
func NewEngine(registry *Registry, opts Options, logger *slog.Logger, counters *metrics.Metrics) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if counters == nil {
		counters = metrics.New()
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.MaxParse <= 0 {
		opts.MaxParse = DefaultMaxParse
	}
	if opts.CacheEntries <= 0 {
		opts.CacheEntries = DefaultCacheEntries
	}

	e := &Engine{
		registry: registry,
		opts:     opts,
		logger:   logger,
		counters: counters,
		locks:    map[string]*sync.Mutex{},
	}

	cache, err := lru.NewWithEvict(opts.CacheEntries, func(path string, unit *parseUnit) {
		unit.tree.Close()
		counters.CacheEvictions.Add(1)
	})
	if err != nil {
		return nil, fmt.Errorf("parser: build tree cache: %w", err)
	}
	e.cache = cache
	return e, nil
}

// Parse runs one (incremental) parse of path with the given content and
// returns the new index snapshot. Unsupported and oversized files return
// ErrUnsupportedLanguage / ErrFileTooLarge; grammar failures and exceeded
// time budgets return *ParseError and leave the cache untouched.
func (e *Engine) Parse(ctx context.Context, path string, content []byte, mtime time.Time) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	norm := uast.NormalizePath(path)

	if len(content) > e.opts.MaxFileSize {
		e.counters.OversizedSkips.Add(1)
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrFileTooLarge, norm, len(content))
	}

	lang, adapter, grammar, err := e.registry.resolve(filepath.Ext(norm), content)
	if err != nil {
		return nil, err
	}

	lock := e.pathLock(norm)
	lock.Lock()
	defer lock.Unlock()

	prev, hasPrev := e.cache.Get(norm)

	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(grammar); err != nil {
		return nil, &ParseError{Path: norm, Err: err}
	}

	var oldTree *tree_sitter.Tree
	if hasPrev {
		// The old tree is consumed here under the path lock; no reader
		// outside the engine ever holds a tree reference.
		prev.tree.Edit(spliceEdit(prev.source, content))
		oldTree = prev.tree
	}

	started := time.Now()
	tree := parser.Parse(content, oldTree)
	elapsed := time.Since(started)

	if tree == nil {
		e.counters.ParseFailures.Add(1)
		e.evictEdited(norm, hasPrev)
		return nil, &ParseError{Path: norm, Err: errors.New("grammar returned no tree")}
	}
	if elapsed > e.opts.MaxParse {
		tree.Close()
		e.counters.ParseFailures.Add(1)
		e.evictEdited(norm, hasPrev)
		return nil, &ParseError{Path: norm, Timeout: true}
	}

	root := tree.RootNode()
	analysis := adapter.Analyse(root, content, norm)

	index, collisions := patch.NewFileIndex(analysis.Nodes, analysis.Edges)
	for _, c := range collisions {
		e.counters.IdentityCollisions.Add(1)
		e.logger.Warn("parser.identity_collision", "path", norm, "err", c)
	}
	if len(analysis.Diagnostics) > 0 {
		e.counters.ExtractionDiagnostics.Add(int64(len(analysis.Diagnostics)))
	}

	// Replace the unit wholesale. Add does not fire the evict callback when
	// overwriting an existing key, so the superseded tree is closed here.
	if hasPrev {
		prev.tree.Close()
	}
	e.cache.Add(norm, &parseUnit{
		tree:   tree,
		source: content,
		index:  index,
		mtime:  mtime,
	})

	e.logger.Debug("parser.parsed",
		"path", norm,
		"lang", lang,
		"nodes", len(index.Nodes),
		"edges", len(index.Edges),
		"incremental", hasPrev,
		"elapsed_ms", elapsed.Milliseconds(),
	)

	return &Result{
		Path:        norm,
		Lang:        lang,
		Index:       index,
		Diagnostics: analysis.Diagnostics,
		Incremental: hasPrev,
	}, nil
}

// Remove drops the cache entry for a deleted file and returns its last
// index, or nil if the path was never parsed or already evicted.
func (e *Engine) Remove(path string) *patch.FileIndex {
	norm := uast.NormalizePath(path)
	lock := e.pathLock(norm)
	lock.Lock()
	defer lock.Unlock()

	unit, ok := e.cache.Peek(norm)
	if !ok {
		return nil
	}
	index := unit.index
	// Remove fires the evict callback, which closes the tree.
	e.cache.Remove(norm)
	return index
}

// Cached returns the last index snapshot for a path without parsing.
func (e *Engine) Cached(path string) *patch.FileIndex {
	unit, ok := e.cache.Peek(uast.NormalizePath(path))
	if !ok {
		return nil
	}
	return unit.index
}

// Close releases every cached tree.
func (e *Engine) Close() error {
	e.cache.Purge()
	return nil
}

// evictEdited drops a cached unit whose tree was already spliced for a parse
// that then failed. The edited tree no longer matches the unit's source;
// reusing it would splice the next edit on top of corrupted state. Eviction
// forces the next parse of the path to start from scratch. Must be called
// under the path lock.
func (e *Engine) evictEdited(path string, edited bool) {
	if !edited {
		return
	}
	e.cache.Remove(path)
}

func (e *Engine) pathLock(path string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[path]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[path] = lock
	}
	return lock
}

// spliceEdit describes the transition from old to new content as a single
// replacement of the differing middle section, which is what tree-sitter
// needs to reuse unchanged subtrees.
func spliceEdit(oldSrc, newSrc []byte) *tree_sitter.InputEdit {
	prefix := commonPrefix(oldSrc, newSrc)
	suffix := commonSuffix(oldSrc[prefix:], newSrc[prefix:])

	oldEnd := len(oldSrc) - suffix
	newEnd := len(newSrc) - suffix

	return &tree_sitter.InputEdit{
		StartByte:      uint(prefix),
		OldEndByte:     uint(oldEnd),
		NewEndByte:     uint(newEnd),
		StartPosition:  tsPoint(newSrc, prefix),
		OldEndPosition: tsPoint(oldSrc, oldEnd),
		NewEndPosition: tsPoint(newSrc, newEnd),
	}
}

func commonPrefix(a, b []byte) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func commonSuffix(a, b []byte) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[len(a)-1-i] != b[len(b)-1-i] {
			return i
		}
	}
	return n
}

func tsPoint(source []byte, offset int) tree_sitter.Point {
	line, col := uast.PointAt(source, offset)
	return tree_sitter.Point{Row: uint(line - 1), Column: uint(col - 1)}
}
