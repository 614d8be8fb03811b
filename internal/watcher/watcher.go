// Package watcher polls a directory tree for source-file changes and
// invokes a debounced callback, driving the build tool's rebuild cycle.
//
// A polling strategy is used deliberately for cross-platform simplicity:
// the contract is an exact debounced snapshot comparison, not "whatever an
// OS file-event API happens to deliver", so this is hand rolled against
// os/filepath rather than wired to an inotify-style library — see
// DESIGN.md.
package watcher

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// pollInterval and debounceDelay are the watcher's default timings (1s
// poll, 500ms debounce). They're vars rather than consts so tests can
// shrink them.
var (
	pollInterval  = 1 * time.Second
	debounceDelay = 500 * time.Millisecond
)

// snapshot maps a file's path (relative to the watched root) to its last
// observed modification time.
type snapshot map[string]time.Time

// Watcher polls root for changes to files with one of the configured
// extensions, skipping any path containing a skipped directory component.
type Watcher struct {
	root       string
	extensions map[string]bool
	skipDirs   []string
	onChange   func()

	mu     sync.Mutex
	cancel func()
	done   chan struct{}
}

// Option configures a Watcher at construction.
type Option func(*Watcher)

// WithExtensions overrides the default {"swift"} extension set.
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		w.extensions = make(map[string]bool, len(exts))
		for _, e := range exts {
			w.extensions[strings.TrimPrefix(e, ".")] = true
		}
	}
}

// WithSkipDirs overrides the default {"/.build/", "/Packages/"} skip list.
func WithSkipDirs(dirs ...string) Option {
	return func(w *Watcher) { w.skipDirs = dirs }
}

// New creates a Watcher rooted at root, invoking onChange after a
// debounced batch of additions/removals/modifications.
func New(root string, onChange func(), opts ...Option) *Watcher {
	w := &Watcher{
		root:       root,
		extensions: map[string]bool{"swift": true},
		skipDirs:   []string{"/.build/", "/Packages/"},
		onChange:   onChange,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins the polling loop in a background goroutine. Calling Start
// twice without an intervening Stop is not supported.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	stopCh := make(chan struct{})
	w.cancel = sync.OnceFunc(func() { close(stopCh) })
	w.done = make(chan struct{})

	go w.loop(stopCh, w.done)
}

// Stop cancels the polling loop at its next sleep boundary and waits for
// it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

func (w *Watcher) loop(stop <-chan struct{}, done chan struct{}) {
	defer close(done)

	prev := w.takeSnapshot()

	for {
		select {
		case <-stop:
			return
		case <-time.After(pollInterval):
		}

		current := w.takeSnapshot()
		if !changed(prev, current) {
			continue
		}

		select {
		case <-stop:
			return
		case <-time.After(debounceDelay):
		}

		prev = w.takeSnapshot()
		if w.onChange != nil {
			w.onChange()
		}
	}
}

// changed reports whether current differs from prev: the snapshots differ
// in size, or some file in current is absent from prev or has a strictly
// newer mtime. A pure size decrease with no mtime advance (a deletion with
// everything else unchanged) is still caught by the count comparison —
// deletions must count as a change in their own right, not just mtime
// advances.
func changed(prev, current snapshot) bool {
	if len(prev) != len(current) {
		return true
	}
	for path, mtime := range current {
		prevMtime, ok := prev[path]
		if !ok || mtime.After(prevMtime) {
			return true
		}
	}
	return false
}

func (w *Watcher) takeSnapshot() snapshot {
	snap := make(snapshot)

	_ = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort: unreadable entries are simply skipped
		}
		if d.IsDir() {
			return nil
		}
		if w.shouldSkip(path) {
			return nil
		}
		ext := strings.TrimPrefix(filepath.Ext(path), ".")
		if !w.extensions[ext] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			rel = path
		}
		snap[rel] = info.ModTime()
		return nil
	})

	return snap
}

func (w *Watcher) shouldSkip(path string) bool {
	slashed := filepath.ToSlash(path)
	for _, skip := range w.skipDirs {
		if strings.Contains(slashed, skip) {
			return true
		}
	}
	return false
}
