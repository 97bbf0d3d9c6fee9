package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secondbrain-labs/brainmcp/internal/ignore"
)

// startWatcher runs a watcher over dir and returns its notifier plus a
// cleanup func.
func startWatcher(t *testing.T, dir string, opts Options) (*Watcher, *Notifier) {
	t.Helper()

	if opts.DebounceWindow == 0 {
		opts.DebounceWindow = 30 * time.Millisecond
	}
	n := NewNotifier(opts.DebounceWindow)
	w, err := NewWatcher(n, opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Start(ctx, dir)
	}()

	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
		<-done
		n.Stop()
	})

	// Give the recursive subscription a moment to establish.
	time.Sleep(100 * time.Millisecond)
	return w, n
}

func awaitSignal(t *testing.T, n *Notifier, timeout time.Duration) (Signal, bool) {
	t.Helper()
	select {
	case sig, ok := <-n.Signals():
		return sig, ok
	case <-time.After(timeout):
		return Signal{}, false
	}
}

func TestWatcher_FileCreateEmitsSignal(t *testing.T) {
	dir := t.TempDir()
	_, n := startWatcher(t, dir, Options{})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.md"), []byte("hello"), 0o644))

	sig, ok := awaitSignal(t, n, 3*time.Second)
	require.True(t, ok, "expected a signal for the new file")
	assert.GreaterOrEqual(t, sig.Events, 1)
}

func TestWatcher_IgnoredPatternIsFiltered(t *testing.T) {
	dir := t.TempDir()
	_, n := startWatcher(t, dir, Options{IgnorePatterns: []string{"*.tmp"}})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "scratch.tmp"), []byte("x"), 0o644))

	_, ok := awaitSignal(t, n, 300*time.Millisecond)
	assert.False(t, ok, "ignored file must not produce a signal")
}

func TestWatcher_DataDirIsFiltered(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".brainmcp"), 0o755))
	_, n := startWatcher(t, dir, Options{})

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".brainmcp", "state.db"), []byte("x"), 0o644))

	_, ok := awaitSignal(t, n, 300*time.Millisecond)
	assert.False(t, ok, "data dir writes must not produce a signal")
}

func TestWatcher_AcceptFilterDropsUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	accept := func(relPath string) bool {
		return strings.HasSuffix(relPath, ".md")
	}
	_, n := startWatcher(t, dir, Options{Accept: accept})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "binary.exe"), []byte("x"), 0o644))
	_, ok := awaitSignal(t, n, 300*time.Millisecond)
	assert.False(t, ok, "rejected extension must not produce a signal")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.md"), []byte("x"), 0o644))
	_, ok = awaitSignal(t, n, 3*time.Second)
	assert.True(t, ok, "accepted extension must produce a signal")
}

func TestWatcher_NewSubdirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()
	_, n := startWatcher(t, dir, Options{})

	sub := filepath.Join(dir, "projects")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	// The mkdir itself is a directory event and may or may not coalesce
	// into a signal; the file inside definitely must.
	time.Sleep(200 * time.Millisecond)
	drainSignals(n)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "plan.md"), []byte("x"), 0o644))

	_, ok := awaitSignal(t, n, 3*time.Second)
	assert.True(t, ok, "file in new subdirectory must produce a signal")
}

func TestWatcher_IgnoreFileChangeTriggersSignal(t *testing.T) {
	dir := t.TempDir()
	_, n := startWatcher(t, dir, Options{})

	require.NoError(t, os.WriteFile(filepath.Join(dir, ignore.IgnoreFileName), []byte("*.tmp\n"), 0o644))

	_, ok := awaitSignal(t, n, 3*time.Second)
	assert.True(t, ok, "ignore file change must trigger reconciliation")
}

func TestWatcher_Mode(t *testing.T) {
	n := NewNotifier(time.Second)
	defer n.Stop()
	w, err := NewWatcher(n, Options{})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	assert.Contains(t, []string{"fsnotify", "polling"}, w.Mode())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	n := NewNotifier(time.Second)
	defer n.Stop()
	w, err := NewWatcher(n, Options{})
	require.NoError(t, err)

	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func drainSignals(n *Notifier) {
	for {
		select {
		case <-n.Signals():
		default:
			return
		}
	}
}
