// Package watch re-validates trail files as they change on disk.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
	"github.com/ChamsBouzaiene/trailblaze/internal/trail"
)

// DefaultDebounce is how long changes are collected before callbacks run.
const DefaultDebounce = 500 * time.Millisecond

// Change is the state of one trail file after a burst of edits.
type Change struct {
	Path    string
	Removed bool
	// Items is the decoded trail when Err is nil and the file exists.
	Items []trail.Item
	Err   error
}

type matcher interface{ MatchesPath(string) bool }

// Watcher watches a trails directory tree and decodes the trail files that
// change.
type Watcher struct {
	root     string
	codec    *tools.Codec
	watcher  *fsnotify.Watcher
	ignore   matcher
	debounce time.Duration
	log      *zap.Logger
	onChange func([]Change)

	mu      sync.Mutex
	pending map[string]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

func WithDebounce(d time.Duration) Option { return func(w *Watcher) { w.debounce = d } }
func WithLogger(l *zap.Logger) Option     { return func(w *Watcher) { w.log = l } }

// New creates a watcher for root. Trail files are decoded with codec.
func New(root string, codec *tools.Codec, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &Watcher{
		root:     abs,
		codec:    codec,
		watcher:  fw,
		ignore:   trail.NewIgnoreMatcher(abs),
		debounce: DefaultDebounce,
		log:      zap.NewNop(),
		pending:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.Named("watch")
	return w, nil
}

// OnChange sets the callback receiving each debounced batch, sorted by path.
// It must be set before Start.
func (w *Watcher) OnChange(fn func([]Change)) { w.onChange = fn }

// Start adds every directory under root and begins processing events.
func (w *Watcher) Start(ctx context.Context) error {
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path, true) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.log.Warn("failed to watch directory", zap.String("dir", path), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", w.root, err)
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(2)
	go w.eventLoop(ctx)
	go w.debounceLoop(ctx)
	w.log.Info("watching trails", zap.String("root", w.root))
	return nil
}

// Stop ends event processing and releases the fsnotify watcher.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	return w.watcher.Close()
}

func (w *Watcher) ignored(path string, dir bool) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	rel = filepath.ToSlash(rel)
	if dir {
		rel += "/"
	}
	return w.ignore.MatchesPath(rel)
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if w.ignored(event.Name, true) {
				return
			}
			if err := w.watcher.Add(event.Name); err != nil {
				w.log.Warn("failed to watch new directory", zap.String("dir", event.Name), zap.Error(err))
			}
			// Files may have landed before the directory was added.
			w.queueExisting(event.Name)
			return
		}
	}
	if !trail.IsTrailFile(event.Name) || w.ignored(event.Name, false) {
		return
	}
	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.mu.Lock()
		w.pending[event.Name] = true
		w.mu.Unlock()
	}
}

func (w *Watcher) queueExisting(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir {
				if w.ignored(path, true) {
					return filepath.SkipDir
				}
				_ = w.watcher.Add(path)
			}
			return nil
		}
		if trail.IsTrailFile(path) && !w.ignored(path, false) {
			w.mu.Lock()
			w.pending[path] = true
			w.mu.Unlock()
		}
		return nil
	})
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processPending()
		}
	}
}

func (w *Watcher) processPending() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()
	sort.Strings(paths)

	changes := make([]Change, 0, len(paths))
	for _, p := range paths {
		changes = append(changes, w.load(p))
	}
	w.log.Debug("trail files changed", zap.Int("count", len(changes)))
	if w.onChange != nil {
		w.onChange(changes)
	}
}

func (w *Watcher) load(path string) Change {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Change{Path: path, Removed: true}
	}
	if err != nil {
		return Change{Path: path, Err: err}
	}
	defer f.Close()
	items, err := trail.Decode(f, w.codec)
	if err != nil {
		w.log.Warn("invalid trail", zap.String("path", path), zap.Error(err))
		return Change{Path: path, Err: err}
	}
	return Change{Path: path, Items: items}
}
