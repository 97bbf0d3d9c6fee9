package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// lineRenderer logs progress as plain lines for CI and piped output.
// It prints a line on every stage transition and then at most one line
// per percentStep of progress, so a large corpus does not flood logs.
type lineRenderer struct {
	mu       sync.Mutex
	out      io.Writer
	stage    Stage
	started  bool
	lastPct  int
	startAt  time.Time
	stageAt  time.Time
	warnings int
	errors   int
}

const percentStep = 10

func newLineRenderer(cfg Config) *lineRenderer {
	return &lineRenderer{out: cfg.Output, lastPct: -1}
}

func (r *lineRenderer) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startAt = time.Now()
	r.stageAt = r.startAt
	return nil
}

func (r *lineRenderer) UpdateProgress(ev ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started || ev.Stage != r.stage {
		if r.started {
			_, _ = fmt.Fprintf(r.out, "[%s] done in %s\n", r.stage, time.Since(r.stageAt).Round(100*time.Millisecond))
		}
		r.started = true
		r.stage = ev.Stage
		r.stageAt = time.Now()
		r.lastPct = -1
		_, _ = fmt.Fprintf(r.out, "[%s] started\n", ev.Stage)
	}

	if ev.Message != "" {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", ev.Stage, ev.Message)
		return
	}
	if ev.Total <= 0 {
		return
	}
	pct := ev.Current * 100 / ev.Total
	if pct/percentStep <= r.lastPct/percentStep && r.lastPct >= 0 {
		return
	}
	r.lastPct = pct
	_, _ = fmt.Fprintf(r.out, "[%s] %d/%d %s (%d%%)\n", ev.Stage, ev.Current, ev.Total, ev.Stage.Unit(), pct)
}

func (r *lineRenderer) AddError(ev ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if ev.IsWarn {
		prefix = "WARN"
		r.warnings++
	} else {
		r.errors++
	}
	if ev.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, ev.File, ev.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, ev.Err)
	}
}

func (r *lineRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		_, _ = fmt.Fprintf(r.out, "[%s] done in %s\n", r.stage, time.Since(r.stageAt).Round(100*time.Millisecond))
	}
	_, _ = fmt.Fprintf(r.out, "complete: %d files, %d chunks in %s",
		stats.Files, stats.Chunks, stats.Duration.Round(100*time.Millisecond))
	if stats.Errors > 0 || stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d errors, %d warnings)", stats.Errors, stats.Warnings)
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.Embedder.Backend != "" {
		_, _ = fmt.Fprintf(r.out, "embeddings: %s (%s)\n", stats.Embedder.Backend, stats.Embedder.Model)
	}
}

func (r *lineRenderer) Stop() error {
	return nil
}

var _ Renderer = (*lineRenderer)(nil)
