package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeKind classifies a filesystem change after debouncing.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeRenamed  ChangeKind = "renamed"
)

// ChangeEvent is one debounced file change. Paths are repo-relative.
// OldPath is set only for renames.
type ChangeEvent struct {
	Path    string
	OldPath string
	Kind    ChangeKind
}

// Watcher wraps fsnotify with per-path debouncing: a burst of raw events on
// one path within the window collapses into a single ChangeEvent carrying
// the final state of the file.
type Watcher struct {
	root     string
	filter   *PathFilter
	debounce time.Duration
	logger   *slog.Logger

	fsw    *fsnotify.Watcher
	events chan ChangeEvent

	mu      sync.Mutex
	pending map[string]*pendingChange

	closeOnce sync.Once
	done      chan struct{}
}

type pendingChange struct {
	kind    ChangeKind
	oldPath string
	timer   *time.Timer
}

// NewWatcher starts watching root and every non-pruned subdirectory.
func NewWatcher(root string, filter *PathFilter, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 50 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: %w", err)
	}
	w := &Watcher{
		root:     root,
		filter:   filter,
		debounce: debounce,
		logger:   logger,
		fsw:      fsw,
		events:   make(chan ChangeEvent, 256),
		pending:  make(map[string]*pendingChange),
		done:     make(chan struct{}),
	}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	go w.loop()
	return w, nil
}

// Events delivers debounced changes. The channel stays open for the
// watcher's lifetime; consumers stop via their own context.
func (w *Watcher) Events() <-chan ChangeEvent { return w.events }

// Close stops the watcher; pending debounce timers are dropped.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
		<-w.done
		w.mu.Lock()
		for _, p := range w.pending {
			p.timer.Stop()
		}
		w.pending = map[string]*pendingChange{}
		w.mu.Unlock()
	})
	return err
}

// addTree registers root and all non-pruned subdirectories. fsnotify is not
// recursive, so new directories are added as their create events arrive.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := w.filter.Rel(path); ok && rel != "." && w.filter.SkipDir(rel) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("watch.add_failed", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch.error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, ok := w.filter.Rel(ev.Name)
	if !ok {
		return
	}

	if ev.Op.Has(fsnotify.Create) && statIsDir(ev.Name) {
		if !w.filter.SkipDir(rel) {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("watch.add_failed", "path", ev.Name, "error", err)
			}
		}
		return
	}

	if !w.filter.Accept(rel) {
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Create):
		w.schedule(rel, ChangeCreated, "")
	case ev.Op.Has(fsnotify.Write):
		w.schedule(rel, ChangeModified, "")
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		// fsnotify reports a rename as Rename(old) followed by Create(new);
		// without correlating the pair, the old path is simply a delete.
		w.schedule(rel, ChangeDeleted, "")
	}
}

// schedule coalesces the new raw event into the pending change for the path
// and (re)arms its debounce timer.
func (w *Watcher) schedule(rel string, kind ChangeKind, oldPath string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p := w.pending[rel]
	if p == nil {
		p = &pendingChange{kind: kind, oldPath: oldPath}
		p.timer = time.AfterFunc(w.debounce, func() { w.flush(rel) })
		w.pending[rel] = p
		return
	}

	p.kind = coalesce(p.kind, kind)
	p.timer.Reset(w.debounce)
}

// coalesce merges a new raw kind into the pending kind for the same path.
// Create followed by Write stays Create; Create followed by Remove is still
// reported as a delete and resolved downstream against known state.
func coalesce(prev, next ChangeKind) ChangeKind {
	switch {
	case prev == ChangeCreated && next == ChangeModified:
		return ChangeCreated
	case next == ChangeCreated && prev == ChangeDeleted:
		return ChangeModified // delete+create within the window is a rewrite
	default:
		return next
	}
}

func (w *Watcher) flush(rel string) {
	w.mu.Lock()
	p, ok := w.pending[rel]
	if ok {
		delete(w.pending, rel)
	}
	w.mu.Unlock()
	if !ok {
		return
	}

	select {
	case w.events <- ChangeEvent{Path: rel, OldPath: p.oldPath, Kind: p.kind}:
	case <-w.done:
	}
}
