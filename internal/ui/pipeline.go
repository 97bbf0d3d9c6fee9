package ui

import (
	"sync"
	"time"
)

// rateAlpha weighs fresh throughput samples against the running rate.
const rateAlpha = 0.25

// stageState is what the display remembers about one stage.
type stageState struct {
	Done    int
	Total   int
	Took    time.Duration
	Visited bool
}

// pipelineState folds the event stream into one displayable value.
// Safe for concurrent use; both renderers feed it from the ingest
// polling loop while the view reads it on its own tick.
type pipelineState struct {
	mu           sync.Mutex
	startedAt    time.Time
	stage        Stage
	stageStarted time.Time
	stages       [stageCount]stageState
	currentFile  string
	errors       []ErrorEvent
	warnings     []ErrorEvent

	rate       float64
	lastSample time.Time
	lastCount  int
}

// pipelineSnapshot is a consistent copy for rendering.
type pipelineSnapshot struct {
	Stage       Stage
	Stages      [stageCount]stageState
	CurrentFile string
	Elapsed     time.Duration
	Rate        float64
	Remaining   time.Duration
	ErrorCount  int
	WarnCount   int
	LastErrors  []ErrorEvent
}

func newPipelineState() *pipelineState {
	now := time.Now()
	return &pipelineState{
		startedAt:    now,
		stageStarted: now,
		lastSample:   now,
	}
}

// Observe folds in one progress event, advancing the stage when the
// event belongs to a later one.
func (p *pipelineState) Observe(ev ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.Stage != p.stage {
		now := time.Now()
		p.stages[p.stage].Took = now.Sub(p.stageStarted)
		p.stages[p.stage].Visited = true
		p.stage = ev.Stage
		p.stageStarted = now
		p.rate = 0
		p.lastSample = now
		p.lastCount = 0
	}

	st := &p.stages[ev.Stage]
	st.Done = ev.Current
	st.Total = ev.Total
	st.Visited = true
	if ev.CurrentFile != "" {
		p.currentFile = ev.CurrentFile
	}

	p.sampleRate(ev.Current)
}

// sampleRate updates the throughput EWMA at most every half second.
// Caller holds the lock.
func (p *pipelineState) sampleRate(count int) {
	now := time.Now()
	elapsed := now.Sub(p.lastSample)
	if elapsed < 500*time.Millisecond {
		return
	}
	if delta := count - p.lastCount; delta > 0 {
		sample := float64(delta) / elapsed.Seconds()
		if p.rate == 0 {
			p.rate = sample
		} else {
			p.rate = rateAlpha*sample + (1-rateAlpha)*p.rate
		}
	}
	p.lastSample = now
	p.lastCount = count
}

// Fail records a per-file failure.
func (p *pipelineState) Fail(ev ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.IsWarn {
		p.warnings = append(p.warnings, ev)
	} else {
		p.errors = append(p.errors, ev)
	}
}

// Snapshot copies the state for rendering.
func (p *pipelineState) Snapshot() pipelineSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := pipelineSnapshot{
		Stage:       p.stage,
		Stages:      p.stages,
		CurrentFile: p.currentFile,
		Elapsed:     time.Since(p.startedAt),
		Rate:        p.rate,
		ErrorCount:  len(p.errors),
		WarnCount:   len(p.warnings),
	}

	if st := p.stages[p.stage]; p.rate > 0 && st.Total > st.Done {
		snap.Remaining = time.Duration(float64(st.Total-st.Done) / p.rate * float64(time.Second))
	}

	tail := len(p.errors)
	if tail > 3 {
		tail = 3
	}
	snap.LastErrors = append(snap.LastErrors, p.errors[len(p.errors)-tail:]...)
	return snap
}

// Percent is the completion ratio of the active stage, 0 to 1.
func (s pipelineSnapshot) Percent() float64 {
	st := s.Stages[s.Stage]
	if st.Total <= 0 {
		return 0
	}
	pct := float64(st.Done) / float64(st.Total)
	if pct > 1 {
		pct = 1
	}
	return pct
}
