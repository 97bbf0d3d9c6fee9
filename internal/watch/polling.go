package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// pollEvent is a raw change detected by a directory scan.
type pollEvent struct {
	path  string
	kind  EventKind
	isDir bool
}

// poller detects changes by periodically scanning the docs root and
// diffing modtime/size snapshots. Fallback for when fsnotify is
// unavailable; the watcher applies the same filtering to its events.
type poller struct {
	interval  time.Duration
	snapshots map[string]fileSnapshot
	events    chan pollEvent
	stopCh    chan struct{}
	mu        sync.Mutex
	stopped   bool
	rootPath  string
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

func newPoller(interval time.Duration) *poller {
	return &poller{
		interval:  interval,
		snapshots: make(map[string]fileSnapshot),
		events:    make(chan pollEvent, 256),
		stopCh:    make(chan struct{}),
	}
}

// Start establishes a baseline snapshot and scans on a ticker until
// the context is cancelled or Stop is called.
func (p *poller) Start(ctx context.Context, root string) error {
	absPath, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve docs root: %w", err)
	}
	p.rootPath = absPath

	if err := p.baseline(); err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.diff(); err != nil {
				slog.Warn("poll_scan_failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Stop halts the poller. Safe to call multiple times.
func (p *poller) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	return nil
}

// Events returns detected changes.
func (p *poller) Events() <-chan pollEvent {
	return p.events
}

// baseline records the current state without emitting events.
func (p *poller) baseline() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return filepath.WalkDir(p.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		relPath, snap, ok := p.snapshot(path, d)
		if ok {
			p.snapshots[relPath] = snap
		}
		return nil
	})
}

// diff compares the tree against the previous snapshot and emits
// created/modified/deleted events.
func (p *poller) diff() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := make(map[string]fileSnapshot, len(p.snapshots))

	err := filepath.WalkDir(p.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		relPath, snap, ok := p.snapshot(path, d)
		if !ok {
			return nil
		}
		current[relPath] = snap

		if prev, seen := p.snapshots[relPath]; !seen {
			p.emit(pollEvent{path: relPath, kind: KindCreated, isDir: snap.isDir})
		} else if prev.modTime != snap.modTime || prev.size != snap.size {
			p.emit(pollEvent{path: relPath, kind: KindModified, isDir: snap.isDir})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk docs root: %w", err)
	}

	for relPath, snap := range p.snapshots {
		if _, exists := current[relPath]; !exists {
			p.emit(pollEvent{path: relPath, kind: KindDeleted, isDir: snap.isDir})
		}
	}

	p.snapshots = current
	return nil
}

// snapshot builds one entry for a walked path. Returns ok=false for
// the root itself or unreadable entries.
func (p *poller) snapshot(path string, d fs.DirEntry) (string, fileSnapshot, bool) {
	relPath, err := filepath.Rel(p.rootPath, path)
	if err != nil || relPath == "." {
		return "", fileSnapshot{}, false
	}
	info, err := d.Info()
	if err != nil {
		return "", fileSnapshot{}, false
	}
	return relPath, fileSnapshot{
		modTime: info.ModTime(),
		size:    info.Size(),
		isDir:   d.IsDir(),
	}, true
}

// emit sends an event without blocking. Called with p.mu held.
func (p *poller) emit(ev pollEvent) {
	if p.stopped {
		return
	}
	select {
	case p.events <- ev:
	default:
		slog.Warn("poll_buffer_full",
			slog.String("path", ev.path),
			slog.String("kind", ev.kind.String()),
		)
	}
}
