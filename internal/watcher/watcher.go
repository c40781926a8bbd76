// Package watcher keeps the knowledge base in sync with directories on disk.
// Files created or modified under a watched root are handed to an ingest
// callback once they settle; files removed or renamed away are handed to a
// remove callback.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// defaultDebounce is how long a path must stay quiet before it is ingested.
// Editors and downloads write files in bursts; only the final state matters.
const defaultDebounce = 500 * time.Millisecond

// Watcher watches a fixed set of root directories for document changes.
type Watcher struct {
	roots      []string
	extensions []string
	recursive  bool
	onIngest   func(path string)
	onRemove   func(path string)
	debounce   time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	pending  map[string]*time.Timer
	started  bool
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger enables logging of watch events.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// WithDebounce overrides the settle delay before a changed file is ingested.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// NewWatcher creates a watcher over roots. extensions filters which files are
// handled (empty means all); the callbacks receive the path of the affected
// file. Either callback may be nil.
func NewWatcher(roots, extensions []string, recursive bool, onIngest, onRemove func(path string), opts ...Option) *Watcher {
	w := &Watcher{
		roots:      roots,
		extensions: extensions,
		recursive:  recursive,
		onIngest:   onIngest,
		onRemove:   onRemove,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		pending:    make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching and returns immediately. Missing roots are created so
// a fresh install can point at a directory that does not exist yet. The event
// loop runs until ctx is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.fsw = fsw
	for _, root := range w.roots {
		if err := w.watchTreeLocked(filepath.Clean(root), true); err != nil {
			_ = fsw.Close()
			w.fsw = nil
			w.mu.Unlock()
			return err
		}
	}
	w.started = true
	w.mu.Unlock()

	w.logger.Info("watching directories",
		zap.Strings("roots", w.roots),
		zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive))

	go w.run(ctx)
	return nil
}

// watchTreeLocked registers dir (and, when recursive, every directory below
// it) with the fsnotify watcher. createRoot makes the directory first when it
// does not exist yet.
func (w *Watcher) watchTreeLocked(dir string, createRoot bool) error {
	if createRoot {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
	}
	if !w.recursive {
		return w.fsw.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if !w.underRoot(path) {
		return
	}
	switch {
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if w.matchExtension(path) {
			w.scheduleIngest(path)
		}
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		// A rename reports the old path here; the new location arrives as
		// a separate Create event and is ingested on its own.
		w.cancelPending(path)
		if w.matchExtension(path) && w.onRemove != nil {
			w.logger.Debug("watched file removed", zap.String("path", path))
			w.onRemove(path)
		}
	}
}

// handleNewDirectory reacts to a directory appearing inside a watched root,
// typically a folder copied in wholesale. Its files already exist by the time
// the watch is in place, so the tree is swept once after registering it.
func (w *Watcher) handleNewDirectory(dir string) {
	if !w.recursive {
		return
	}
	w.mu.Lock()
	if w.fsw != nil {
		if err := w.watchTreeLocked(dir, false); err != nil {
			w.logger.Warn("cannot watch new directory", zap.String("path", dir), zap.Error(err))
		}
	}
	w.mu.Unlock()
	w.sweepDirectory(dir)
}

// sweepDirectory schedules every matching file under dir for ingestion.
func (w *Watcher) sweepDirectory(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if w.matchExtension(path) {
			w.scheduleIngest(path)
		}
		return nil
	})
}

// SyncExistingFiles ingests every matching file already present under the
// watched roots. Called once on startup so documents that appeared while the
// service was down still make it into the knowledge base.
func (w *Watcher) SyncExistingFiles() {
	for _, root := range w.roots {
		if w.recursive {
			w.sweepDirectory(filepath.Clean(root))
			continue
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			w.logger.Warn("cannot list watched directory", zap.String("path", root), zap.Error(err))
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(root, entry.Name())
			if w.matchExtension(path) {
				w.scheduleIngest(path)
			}
		}
	}
}

// scheduleIngest (re)starts the debounce timer for path. The ingest callback
// fires only after the file has been quiet for the full debounce window.
func (w *Watcher) scheduleIngest(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		if w.onIngest != nil {
			w.logger.Debug("ingesting watched file", zap.String("path", path))
			w.onIngest(path)
		}
	})
}

// cancelPending drops a not-yet-fired ingest for path, if any. A file deleted
// during its debounce window should never be ingested.
func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Stop()
		delete(w.pending, path)
	}
}

// underRoot reports whether path lies inside one of the watched roots.
func (w *Watcher) underRoot(path string) bool {
	for _, root := range w.roots {
		rel, err := filepath.Rel(filepath.Clean(root), path)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// matchExtension reports whether path has one of the configured extensions.
// Comparison ignores case and leading dots; an empty list matches everything.
func (w *Watcher) matchExtension(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return false
	}
	for _, allowed := range w.extensions {
		if strings.ToLower(strings.TrimPrefix(allowed, ".")) == ext {
			return true
		}
	}
	return false
}

// Stop halts the watcher and cancels all pending ingests. Safe to call more
// than once and safe to call concurrently with event handling.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		for path, timer := range w.pending {
			timer.Stop()
			delete(w.pending, path)
		}
		if w.fsw != nil {
			_ = w.fsw.Close()
		}
		w.started = false
		w.mu.Unlock()
		w.logger.Info("watcher stopped")
	})
}
