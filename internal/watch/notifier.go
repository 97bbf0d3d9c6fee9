package watch

import (
	"log/slog"
	"sync"
	"time"
)

// Notifier coalesces change events into resync signals. Notify is safe
// to call from the event-delivery goroutine: it only counts the event
// and resets the quiescence timer. A signal fires once the window
// elapses with no further events, so a burst of a thousand saves
// becomes one signal.
type Notifier struct {
	window time.Duration

	mu       sync.Mutex
	pending  int
	degraded bool
	healthy  bool
	timer    *time.Timer
	signals  chan Signal
	stopped  bool

	// now is injectable for tests.
	now func() time.Time
}

// NewNotifier creates a notifier with the given debounce window.
func NewNotifier(window time.Duration) *Notifier {
	if window <= 0 {
		window = time.Second
	}
	return &Notifier{
		window:  window,
		healthy: true,
		signals: make(chan Signal, 1),
		now:     time.Now,
	}
}

// Notify records one change event and resets the quiescence timer.
// Returns immediately.
func (n *Notifier) Notify(ev ChangeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped {
		return
	}

	n.pending++
	n.scheduleLocked(n.window)
}

// Degrade marks the watch subscription as lost. The notifier stays
// usable; it logs, flips the health flag, and emits one prompt signal
// so changes missed during the gap are recovered by a resync.
func (n *Notifier) Degrade(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped {
		return
	}

	if err != nil {
		slog.Warn("watch_degraded", slog.String("error", err.Error()))
	} else {
		slog.Warn("watch_degraded")
	}

	n.healthy = false
	n.degraded = true
	if n.pending == 0 {
		n.pending = 1
	}
	n.scheduleLocked(0)
}

// Restore marks the subscription healthy again after a degraded spell.
func (n *Notifier) Restore() {
	n.mu.Lock()
	n.healthy = true
	n.mu.Unlock()
}

// Healthy reports whether the underlying subscription is intact.
func (n *Notifier) Healthy() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.healthy
}

// Signals returns the channel of coalesced signals. At most one signal
// is buffered; if the consumer is slow, subsequent bursts merge into
// the next signal rather than being dropped.
func (n *Notifier) Signals() <-chan Signal {
	return n.signals
}

// Stop halts the notifier and closes the signal channel.
// Safe to call multiple times.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped {
		return
	}
	n.stopped = true
	if n.timer != nil {
		n.timer.Stop()
	}
	close(n.signals)
}

// scheduleLocked (re)arms the flush timer. Caller holds n.mu.
func (n *Notifier) scheduleLocked(after time.Duration) {
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(after, n.flush)
}

// flush emits the pending signal. If the consumer has not drained the
// previous signal yet, the counts are kept and the flush retried, so
// nothing is lost.
func (n *Notifier) flush() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped || n.pending == 0 {
		return
	}

	sig := Signal{Events: n.pending, Degraded: n.degraded, At: n.now()}
	select {
	case n.signals <- sig:
		n.pending = 0
		n.degraded = false
	default:
		n.scheduleLocked(n.window)
	}
}
