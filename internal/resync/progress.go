// Package resync drives index synchronization runs on a single
// background goroutine, coalescing trigger bursts into at most one
// pending follow-up run.
package resync

import (
	"sync"
	"time"
)

// Status represents the overall outcome of the current or last run.
type Status string

const (
	// StatusSyncing indicates a resync run is in progress.
	StatusSyncing Status = "syncing"
	// StatusReady indicates the last run completed and the index is servable.
	StatusReady Status = "ready"
	// StatusError indicates the last run failed.
	StatusError Status = "error"
)

// Stage represents the current phase of a resync run.
type Stage string

const (
	// StageScanning indicates the file discovery phase.
	StageScanning Stage = "scanning"
	// StageChunking indicates the parse/chunk phase.
	StageChunking Stage = "chunking"
	// StageEmbedding indicates the embedding generation phase.
	StageEmbedding Stage = "embedding"
	// StageIndexing indicates the index write phase.
	StageIndexing Stage = "indexing"
)

// ProgressSnapshot is an immutable snapshot of resync progress.
type ProgressSnapshot struct {
	Status         string  `json:"status"`
	Stage          string  `json:"stage"`
	FilesTotal     int     `json:"files_total"`
	FilesProcessed int     `json:"files_processed"`
	FilesSkipped   int     `json:"files_skipped"`
	ChunksTotal    int     `json:"chunks_total"`
	ChunksIndexed  int     `json:"chunks_indexed"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// Progress provides thread-safe tracking of one resync run.
type Progress struct {
	mu sync.RWMutex

	status         Status
	stage          Stage
	filesTotal     int
	filesProcessed int
	filesSkipped   int
	chunksTotal    int
	chunksIndexed  int
	startTime      time.Time
	errorMessage   string
}

// NewProgress creates a progress tracker initialized to a fresh run.
func NewProgress() *Progress {
	return &Progress{
		status:    StatusSyncing,
		stage:     StageScanning,
		startTime: time.Now(),
	}
}

// Restart resets the tracker for a new run.
func (p *Progress) Restart() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusSyncing
	p.stage = StageScanning
	p.filesTotal = 0
	p.filesProcessed = 0
	p.filesSkipped = 0
	p.chunksTotal = 0
	p.chunksIndexed = 0
	p.startTime = time.Now()
	p.errorMessage = ""
}

// SetStage updates the current stage and the total for that stage.
func (p *Progress) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.filesTotal = total
}

// UpdateFiles updates the processed and skipped file counts.
func (p *Progress) UpdateFiles(processed, skipped int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.filesProcessed = processed
	p.filesSkipped = skipped
}

// SetChunksTotal sets the total number of chunks to index.
func (p *Progress) SetChunksTotal(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.chunksTotal = total
}

// UpdateChunks updates the number of indexed chunks.
func (p *Progress) UpdateChunks(indexed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.chunksIndexed = indexed
}

// SetError marks the run as failed.
func (p *Progress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.errorMessage = message
}

// SetReady marks the run as complete.
func (p *Progress) SetReady() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusReady
}

// IsSyncing reports whether a run is still in progress.
func (p *Progress) IsSyncing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusSyncing
}

// Snapshot returns an immutable copy of the current progress state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var progressPct float64
	if p.filesTotal > 0 {
		progressPct = float64(p.filesProcessed+p.filesSkipped) / float64(p.filesTotal) * 100.0
	}

	return ProgressSnapshot{
		Status:         string(p.status),
		Stage:          string(p.stage),
		FilesTotal:     p.filesTotal,
		FilesProcessed: p.filesProcessed,
		FilesSkipped:   p.filesSkipped,
		ChunksTotal:    p.chunksTotal,
		ChunksIndexed:  p.chunksIndexed,
		ProgressPct:    progressPct,
		ElapsedSeconds: int(time.Since(p.startTime).Seconds()),
		ErrorMessage:   p.errorMessage,
	}
}
