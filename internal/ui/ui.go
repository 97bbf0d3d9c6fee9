// Package ui renders ingest progress and index status for the CLI.
// The pipeline reports four stages: scanning and chunking count files,
// embedding and indexing count chunks. NewRenderer picks a live
// bubbletea view on a terminal and a line-oriented fallback everywhere
// else.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is one step of the ingest pipeline.
type Stage int

const (
	StageScanning Stage = iota
	StageChunking
	StageEmbedding
	StageIndexing
)

// stageCount is the number of pipeline stages.
const stageCount = 4

func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "scan"
	case StageChunking:
		return "chunk"
	case StageEmbedding:
		return "embed"
	case StageIndexing:
		return "index"
	}
	return "?"
}

// Unit names what this stage's counters measure.
func (s Stage) Unit() string {
	if s == StageEmbedding || s == StageIndexing {
		return "chunks"
	}
	return "files"
}

// ProgressEvent is one pipeline progress update.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent is a per-file failure surfaced during a run.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// EmbedderInfo names the backend that produced the vectors.
type EmbedderInfo struct {
	Backend string
	Model   string
}

// CompletionStats summarizes a finished run.
type CompletionStats struct {
	Files    int
	Chunks   int
	Duration time.Duration
	Errors   int
	Warnings int
	Embedder EmbedderInfo
}

// Renderer consumes pipeline events and owns the display.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)
	AddError(event ErrorEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// Config selects and parameterizes a renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	DocsDir    string
}

// NewRenderer returns the live view for interactive terminals and the
// line renderer for pipes, CI, and --no-tui.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || runningInCI() || !isTerminal(cfg.Output) {
		return newLineRenderer(cfg)
	}
	live, err := newLiveRenderer(cfg)
	if err != nil {
		return newLineRenderer(cfg)
	}
	return live
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func runningInCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL"} {
		if _, set := os.LookupEnv(v); set {
			return true
		}
	}
	return false
}

func noColorEnv() bool {
	_, set := os.LookupEnv("NO_COLOR")
	return set
}
