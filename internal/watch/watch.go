// Package watch observes the documents root for changes and coalesces
// bursts of raw filesystem events into single resync signals. The
// primary mechanism is fsnotify; if the kernel subscription cannot be
// established or is lost, the watcher degrades to periodic polling and
// flags the degradation so callers can surface it in stats.
package watch

import (
	"time"
)

// EventKind classifies a filesystem change.
type EventKind int

const (
	// KindCreated indicates a new file appeared.
	KindCreated EventKind = iota
	// KindModified indicates an existing file changed.
	KindModified
	// KindDeleted indicates a file was removed or renamed away.
	KindDeleted
	// KindIgnoreRulesChanged indicates the ignore file itself changed,
	// so previously filtered paths may need reconciling.
	KindIgnoreRulesChanged
)

// String returns a human-readable name for the kind.
func (k EventKind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindModified:
		return "modified"
	case KindDeleted:
		return "deleted"
	case KindIgnoreRulesChanged:
		return "ignore_rules_changed"
	default:
		return "unknown"
	}
}

// ChangeEvent is a single filtered filesystem change, path relative to
// the docs root.
type ChangeEvent struct {
	Path      string
	Kind      EventKind
	Timestamp time.Time
}

// Signal is one coalesced burst of changes, emitted after the debounce
// window has elapsed with no further events.
type Signal struct {
	// Events is the number of change events coalesced into this signal.
	Events int

	// Degraded is set when the watcher has fallen back to polling or
	// lost its subscription since the last signal.
	Degraded bool

	// At is when the signal was emitted.
	At time.Time
}

// AcceptFunc decides whether a relative file path is worth indexing.
// The watcher applies it after ignore-pattern filtering so unsupported
// file types never reset the debounce timer.
type AcceptFunc func(relPath string) bool

// Options configures the watcher.
type Options struct {
	// DebounceWindow is the quiescence period before a signal fires.
	// Default: 1s.
	DebounceWindow time.Duration

	// PollInterval is the scan interval in degraded polling mode.
	// Default: 5s.
	PollInterval time.Duration

	// IgnorePatterns are gitignore-syntax patterns applied on top of
	// the docs root's ignore file.
	IgnorePatterns []string

	// DataDirName is the service's own data directory inside the docs
	// root; it is always excluded. Default: ".brainmcp".
	DataDirName string

	// Accept filters by file type. Nil accepts every file.
	Accept AcceptFunc
}

// WithDefaults returns the options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow == 0 {
		o.DebounceWindow = time.Second
	}
	if o.PollInterval == 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.DataDirName == "" {
		o.DataDirName = ".brainmcp"
	}
	return o
}
