package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo is everything the status command shows. It serializes to
// JSON for --json output.
type StatusInfo struct {
	DocsDir     string    `json:"docs_dir"`
	TotalFiles  int       `json:"total_files"`
	TotalChunks int       `json:"total_chunks"`
	Epoch       uint64    `json:"epoch"`
	LastSynced  time.Time `json:"last_synced"`

	StateSize   int64 `json:"state_size_bytes"`
	KeywordSize int64 `json:"keyword_size_bytes"`
	VectorSize  int64 `json:"vector_size_bytes"`
	TotalSize   int64 `json:"total_size_bytes"`

	EmbedderType   string `json:"embedder_type"`
	EmbedderStatus string `json:"embedder_status"`
	EmbedderModel  string `json:"embedder_model"`

	WatcherStatus string  `json:"watcher_status"`
	DaemonStatus  string  `json:"daemon_status"`
	ResyncState   string  `json:"resync_state,omitempty"`
	CacheHitRate  float64 `json:"cache_hit_rate_pct"`
}

// StatusRenderer prints StatusInfo as a grouped human-readable report
// or as JSON.
type StatusRenderer struct {
	out   io.Writer
	theme Theme
}

func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, theme: NewTheme(noColor || noColorEnv())}
}

func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (r *StatusRenderer) Render(info StatusInfo) error {
	w := r.out
	t := r.theme

	_, _ = fmt.Fprintln(w, t.Title.Render("brainmcp status"))
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, t.Accent.Render("Corpus"))
	r.row("docs", info.DocsDir)
	r.row("files", fmt.Sprintf("%d", info.TotalFiles))
	r.row("chunks", fmt.Sprintf("%d", info.TotalChunks))
	r.row("epoch", fmt.Sprintf("%d", info.Epoch))
	if !info.LastSynced.IsZero() {
		r.row("last sync", fmt.Sprintf("%s (%s ago)",
			info.LastSynced.Format("2006-01-02 15:04:05"),
			time.Since(info.LastSynced).Round(time.Second)))
	} else {
		r.row("last sync", "never")
	}
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, t.Accent.Render("Storage"))
	r.row("state", FormatBytes(info.StateSize))
	r.row("keyword", FormatBytes(info.KeywordSize))
	r.row("vector", FormatBytes(info.VectorSize))
	r.row("total", FormatBytes(info.TotalSize))
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, t.Accent.Render("Embeddings"))
	r.row("backend", info.EmbedderType)
	r.row("model", info.EmbedderModel)
	r.row("status", r.health(info.EmbedderStatus))
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, t.Accent.Render("Runtime"))
	r.row("daemon", r.health(info.DaemonStatus))
	r.row("watcher", r.health(info.WatcherStatus))
	if info.ResyncState != "" {
		r.row("resync", info.ResyncState)
	}
	if info.DaemonStatus == "running" {
		r.row("cache hits", fmt.Sprintf("%.1f%%", info.CacheHitRate))
	}
	return nil
}

func (r *StatusRenderer) row(label, value string) {
	_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.theme.Muted.Render(fmt.Sprintf("%-10s", label)), value)
}

// health colors known state words so problems stand out in the report.
func (r *StatusRenderer) health(state string) string {
	switch state {
	case "running", "ready":
		return r.theme.Good.Render(state)
	case "degraded":
		return r.theme.Warn.Render(state)
	case "stopped", "offline":
		return r.theme.Muted.Render(state)
	default:
		return state
	}
}

// FormatBytes renders a byte count with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
