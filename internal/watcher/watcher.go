// Package watcher triggers flattening runs when watched roots change on
// disk. Filesystem events are debounced per root, so a burst of writes
// (a download finishing, an unzip) collapses into one run after the tree
// goes quiet.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/harrison/flatten/internal/history"
	"github.com/harrison/flatten/internal/logger"
)

// DefaultDebounce is how long a root must stay quiet before a run fires.
const DefaultDebounce = 2 * time.Second

// RunFunc handles one debounced change notification for a root.
type RunFunc func(ctx context.Context, root string)

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period before a changed root triggers a run.
	// Zero means DefaultDebounce.
	Debounce time.Duration

	// Log receives watcher lifecycle and error messages. Nil disables
	// logging.
	Log *logger.ConsoleLogger
}

// Watcher observes one or more roots and invokes a RunFunc after each
// debounced change burst.
type Watcher struct {
	fsw      *fsnotify.Watcher
	roots    []string
	run      RunFunc
	debounce time.Duration
	log      *logger.ConsoleLogger

	mu     sync.Mutex
	timers map[string]*time.Timer
	fired  chan string
}

// New creates a Watcher over the given roots. Each root and all of its
// current subdirectories are registered; directories created later are
// picked up from their create events.
func New(roots []string, run RunFunc, opts Options) (*Watcher, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("no roots to watch")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create filesystem watcher: %w", err)
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		fsw:      fsw,
		run:      run,
		debounce: debounce,
		log:      opts.Log,
		timers:   make(map[string]*time.Timer),
		fired:    make(chan string, len(roots)),
	}

	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("resolve watch root %s: %w", root, err)
		}
		if err := w.addTree(abs); err != nil {
			fsw.Close()
			return nil, err
		}
		w.roots = append(w.roots, abs)
	}

	return w, nil
}

// Start blocks, dispatching debounced runs until the context is done or
// the underlying watcher fails.
func (w *Watcher) Start(ctx context.Context) error {
	if w.log != nil {
		w.log.Infof("watching %d root(s), debounce %s", len(w.roots), w.debounce)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case root := <-w.fired:
			if w.log != nil {
				w.log.Infof("changes settled under %s, flattening", root)
			}
			w.run(ctx, root)
			// The run itself produces events; re-arm only on the next
			// external change.
			w.clearTimer(root)

		case event, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("filesystem watcher closed")
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("filesystem watcher closed")
			}
			if w.log != nil {
				w.log.Warnf("watch error: %v", err)
			}
		}
	}
}

// Close releases the underlying filesystem watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	for root, timer := range w.timers {
		timer.Stop()
		delete(w.timers, root)
	}
	w.mu.Unlock()
	return w.fsw.Close()
}

// handleEvent classifies one filesystem event: state-directory noise is
// dropped, new directories are registered, and the owning root's
// debounce timer is reset.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	root := w.rootFor(event.Name)
	if root == "" {
		return
	}
	if underStateDir(root, event.Name) {
		return
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil && w.log != nil {
				w.log.Warnf("watch new directory %s: %v", event.Name, err)
			}
		}
	}

	w.resetTimer(root)
}

// resetTimer (re)arms the debounce timer for a root.
func (w *Watcher) resetTimer(root string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[root]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.timers[root] = time.AfterFunc(w.debounce, func() {
		w.fired <- root
	})
}

// clearTimer drops a root's timer after its run completed, so the next
// change starts a fresh debounce window.
func (w *Watcher) clearTimer(root string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[root]; ok {
		timer.Stop()
		delete(w.timers, root)
	}
}

// rootFor returns the watched root containing path, or an empty string.
func (w *Watcher) rootFor(path string) string {
	for _, root := range w.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return root
		}
	}
	return ""
}

// underStateDir reports whether path is inside the root's own state
// directory. History writes must not retrigger the watcher.
func underStateDir(root, path string) bool {
	stateDir := filepath.Join(root, history.StateDirName)
	return path == stateDir || strings.HasPrefix(path, stateDir+string(filepath.Separator))
}

// addTree registers a directory and every subdirectory currently under
// it. The state directory is excluded.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// Vanished or unreadable entries are skipped, not fatal.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == history.StateDirName {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
