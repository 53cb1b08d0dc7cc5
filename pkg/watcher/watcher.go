// Package watcher maintains a recursive set of watched asset directories
// and coalesces filesystem events into per-path refresh callbacks.
//
// Adapted from the teacher's fsnotify-based source watcher: the same
// recursive fsnotify.Add walk, the same pending-path-plus-ticker debounce,
// generalized here to asset source refreshes instead of re-indexing text.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RefreshFunc is called, at most once per debounce window, with the path
// that changed.
type RefreshFunc func(path string)

// Watcher recursively watches a set of root directories and debounces
// filesystem events into refresh calls.
type Watcher struct {
	fsw        *fsnotify.Watcher
	refresh    RefreshFunc
	debounce   time.Duration
	skipDirs   map[string]bool

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}

	pendingMu sync.Mutex
	pending   map[string]time.Time
}

// Config controls debounce timing and directory exclusions.
type Config struct {
	DebounceMs int
	SkipDirs   []string // directory base names to never descend into, e.g. ".git"
}

// DefaultConfig returns sane defaults: a 300ms debounce and the common VCS
// and build-output directory skip list.
func DefaultConfig() Config {
	return Config{
		DebounceMs: 300,
		SkipDirs:   []string{".git", ".svn", "node_modules", "bin", "obj"},
	}
}

// New creates a Watcher that calls refresh for every coalesced change.
func New(cfg Config, refresh RefreshFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: create: %w", err)
	}

	skip := make(map[string]bool, len(cfg.SkipDirs))
	for _, d := range cfg.SkipDirs {
		skip[d] = true
	}

	debounce := time.Duration(cfg.DebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}

	return &Watcher{
		fsw:      fsw,
		refresh:  refresh,
		debounce: debounce,
		skipDirs: skip,
		stopCh:   make(chan struct{}),
		pending:  make(map[string]time.Time),
	}, nil
}

// AddRoot recursively registers dir and every subdirectory (skipping the
// configured skip list) with the underlying fsnotify watch.
func (w *Watcher) AddRoot(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // best-effort; one unreadable subtree doesn't abort the walk
		}
		if !d.IsDir() {
			return nil
		}
		if w.skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// RemoveRoot stops watching dir (non-recursively; fsnotify.Remove only
// detaches the exact path previously Add-ed).
func (w *Watcher) RemoveRoot(dir string) error {
	return w.fsw.Remove(dir)
}

// Start begins processing filesystem events in the background. Safe to
// call once; subsequent calls are no-ops while already running.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.processEvents()
	go w.processDebounced()
}

// Stop halts event processing and closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.fsw.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	return w.fsw.Close()
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.markPending(event.Name)

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.AddRoot(event.Name)
				}
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) markPending(path string) {
	w.pendingMu.Lock()
	w.pending[path] = time.Now()
	w.pendingMu.Unlock()
}

func (w *Watcher) processDebounced() {
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.flushReady()
		}
	}
}

func (w *Watcher) flushReady() {
	now := time.Now()
	var ready []string

	w.pendingMu.Lock()
	for path, t := range w.pending {
		if now.Sub(t) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.pendingMu.Unlock()

	for _, path := range ready {
		w.refresh(path)
	}
}
