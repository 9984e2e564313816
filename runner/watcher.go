package runner

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the workspace must stay quiet before a re-run
const DefaultDebounce = 500 * time.Millisecond

// Watcher re-runs the whole gate whenever files under a directory change.
// Runs never overlap: changes seen during a run queue exactly one more run.
type Watcher struct {
	dir      string
	debounce time.Duration
	run      func(ctx context.Context)
	ignored  map[string]bool
	stopChan chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	running bool
	pending bool
	idle    *sync.Cond
}

// NewWatcher creates a watcher for dir that calls run for every gate run
func NewWatcher(dir string, debounce time.Duration, run func(ctx context.Context)) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	w := &Watcher{
		dir:      dir,
		debounce: debounce,
		run:      run,
		ignored:  make(map[string]bool),
		stopChan: make(chan struct{}),
	}
	w.idle = sync.NewCond(&w.mu)
	return w
}

// Ignore excludes files from triggering runs, e.g. the history database
func (w *Watcher) Ignore(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		w.ignored[p] = true
	}
}

// Start runs the gate once, then watches until ctx is done or Stop is called
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addTree(fsw, w.dir); err != nil {
		return err
	}

	log.Printf("👀 Watching %s", w.dir)
	w.trigger(ctx)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				// new directories need their own watch
				_ = w.addTree(fsw, event.Name)
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.trigger(ctx)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Printf("⚠️  Watch error: %v", err)

		case <-ctx.Done():
			w.wait()
			return nil

		case <-w.stopChan:
			w.wait()
			log.Println("👀 Watcher stopped")
			return nil
		}
	}
}

// Stop ends the watch loop after the current run finishes
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

// trigger starts a gate run, or queues one if a run is in progress
func (w *Watcher) trigger(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.pending = true
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go func() {
		for {
			w.run(ctx)

			w.mu.Lock()
			if !w.pending || ctx.Err() != nil {
				w.running = false
				w.pending = false
				w.idle.Broadcast()
				w.mu.Unlock()
				return
			}
			w.pending = false
			w.mu.Unlock()
		}
	}()
}

// wait blocks until no run is in progress
func (w *Watcher) wait() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.running {
		w.idle.Wait()
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	return !w.shouldIgnore(event.Name)
}

// shouldIgnore filters VCS metadata, editor scratch files and ignored paths
func (w *Watcher) shouldIgnore(path string) bool {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if w.ignored[path] || w.ignored[strings.TrimSuffix(path, "-journal")] {
		return true
	}

	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		rel = path
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		switch part {
		case ".git", ".hg", ".svn", "node_modules", ".idea":
			return true
		}
	}

	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasSuffix(base, ".tmp"),
		strings.HasPrefix(base, ".#"),
		base == "4913": // vim's write probe
		return true
	}
	return false
}

// addTree watches root and every directory below it
func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("failed to watch %s: %w", root, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.dir && w.shouldIgnore(path) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
