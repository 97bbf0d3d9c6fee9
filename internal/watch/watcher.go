package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/secondbrain-labs/brainmcp/internal/ignore"
)

// Watcher observes the docs root recursively and feeds filtered change
// events to a Notifier. fsnotify is the primary mechanism; if the
// subscription cannot be established or is lost the watcher degrades
// to polling and tells the notifier.
type Watcher struct {
	notifier *Notifier
	opts     Options

	fsWatcher *fsnotify.Watcher
	poller    *poller
	usePoll   bool

	mu       sync.RWMutex
	matcher  *ignore.Matcher
	rootPath string
	stopCh   chan struct{}
	stopped  bool
}

// NewWatcher creates a watcher that reports into the given notifier.
// If fsnotify is unavailable on this platform the watcher starts in
// polling mode and the notifier is degraded immediately on Start.
func NewWatcher(notifier *Notifier, opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()

	w := &Watcher{
		notifier: notifier,
		opts:     opts,
		matcher:  ignore.NewWithPatterns(opts.IgnorePatterns),
		stopCh:   make(chan struct{}),
	}

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		w.fsWatcher = fsw
	} else {
		w.usePoll = true
		w.poller = newPoller(opts.PollInterval)
	}

	return w, nil
}

// Start begins watching the given directory. Blocks until the context
// is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context, root string) error {
	absPath, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve docs root: %w", err)
	}
	w.mu.Lock()
	w.rootPath = absPath
	w.mu.Unlock()

	w.loadIgnoreRules()

	if w.usePoll {
		w.notifier.Degrade(fmt.Errorf("fsnotify unavailable, polling every %s", w.opts.PollInterval))
		return w.runPolling(ctx)
	}
	return w.runFsnotify(ctx)
}

// runFsnotify drives the kernel-subscription path. If the event stream
// closes unexpectedly, the watcher degrades to polling in place.
func (w *Watcher) runFsnotify(ctx context.Context) error {
	if err := w.addRecursive(w.root()); err != nil {
		return fmt.Errorf("subscribe to directories: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return w.degradeToPolling(ctx, fmt.Errorf("fsnotify event stream closed"))
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return w.degradeToPolling(ctx, fmt.Errorf("fsnotify error stream closed"))
			}
			slog.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

// degradeToPolling switches to the polling fallback after the fsnotify
// subscription is lost mid-run.
func (w *Watcher) degradeToPolling(ctx context.Context, cause error) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.usePoll = true
	w.poller = newPoller(w.opts.PollInterval)
	w.mu.Unlock()

	w.notifier.Degrade(cause)
	return w.runPolling(ctx)
}

// runPolling drives the degraded path.
func (w *Watcher) runPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case ev, ok := <-w.poller.Events():
				if !ok {
					return
				}
				w.handleChange(ev.path, ev.kind, ev.isDir)
			}
		}
	}()

	return w.poller.Start(ctx, w.root())
}

// handleFsnotifyEvent converts a raw fsnotify event and forwards it.
func (w *Watcher) handleFsnotifyEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.root(), event.Name)
	if err != nil {
		relPath = event.Name
	}

	isDir := false
	if info, statErr := os.Stat(event.Name); statErr == nil {
		isDir = info.IsDir()
	}

	var kind EventKind
	switch {
	case event.Op&fsnotify.Create != 0:
		kind = KindCreated
		// New subdirectories need their own subscription.
		if isDir && !w.shouldIgnore(relPath, true) {
			_ = w.fsWatcher.Add(event.Name)
		}
	case event.Op&fsnotify.Write != 0:
		kind = KindModified
	case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
		kind = KindDeleted
	default:
		return
	}

	w.handleChange(relPath, kind, isDir)
}

// handleChange filters one change and notifies on acceptance. Shared
// between the fsnotify and polling paths.
func (w *Watcher) handleChange(relPath string, kind EventKind, isDir bool) {
	if w.shouldIgnore(relPath, isDir) {
		return
	}

	// The ignore file itself changing means filtered paths may need
	// reconciling; reload rules and force a resync.
	if filepath.Base(relPath) == ignore.IgnoreFileName {
		w.loadIgnoreRules()
		w.notifier.Notify(ChangeEvent{
			Path:      relPath,
			Kind:      KindIgnoreRulesChanged,
			Timestamp: time.Now(),
		})
		return
	}

	// Directory events carry no content; creations are handled by the
	// subscription bookkeeping above.
	if isDir {
		return
	}

	if w.opts.Accept != nil && !w.opts.Accept(relPath) {
		return
	}

	w.notifier.Notify(ChangeEvent{
		Path:      relPath,
		Kind:      kind,
		Timestamp: time.Now(),
	})
}

// addRecursive subscribes to every directory under root.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if !d.IsDir() {
			return nil
		}

		relPath, _ := filepath.Rel(root, path)
		if relPath == "." {
			return w.fsWatcher.Add(path)
		}
		if w.shouldIgnore(relPath, true) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

// shouldIgnore reports whether a relative path is excluded from
// watching: the data directory, VCS metadata, or an ignore-rule match.
func (w *Watcher) shouldIgnore(relPath string, isDir bool) bool {
	if relPath == "." || relPath == "" {
		return true
	}

	relPath = filepath.ToSlash(relPath)

	if strings.HasPrefix(relPath, ".git/") || relPath == ".git" {
		return true
	}

	dataDir := w.opts.DataDirName
	if relPath == dataDir || strings.HasPrefix(relPath, dataDir+"/") {
		return true
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.matcher.Match(relPath, isDir)
}

// loadIgnoreRules rebuilds the matcher from configured patterns plus
// the docs root's ignore file.
func (w *Watcher) loadIgnoreRules() {
	m := ignore.NewWithPatterns(w.opts.IgnorePatterns)

	ignorePath := filepath.Join(w.root(), ignore.IgnoreFileName)
	if err := m.AddFromFile(ignorePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("ignore_file_unreadable",
			slog.String("path", ignorePath),
			slog.String("error", err.Error()))
	}

	w.mu.Lock()
	w.matcher = m
	w.mu.Unlock()
}

// Stop stops the watcher and releases resources.
// Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)

	if w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	if w.poller != nil {
		_ = w.poller.Stop()
	}
	return nil
}

// Mode returns "fsnotify" or "polling".
func (w *Watcher) Mode() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.usePoll {
		return "polling"
	}
	return "fsnotify"
}

func (w *Watcher) root() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.rootPath
}
