package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// liveRenderer drives the bubbletea view of a running ingest.
type liveRenderer struct {
	mu      sync.Mutex
	state   *pipelineState
	program *tea.Program
	cfg     Config
	started bool
	done    chan struct{}
}

func newLiveRenderer(cfg Config) (*liveRenderer, error) {
	if !isTerminal(cfg.Output) {
		return nil, fmt.Errorf("output is not a terminal")
	}
	return &liveRenderer{
		cfg:   cfg,
		state: newPipelineState(),
		done:  make(chan struct{}),
	}, nil
}

func (r *liveRenderer) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	model := newIngestView(r.state, r.cfg)
	opts := []tea.ProgramOption{}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

func (r *liveRenderer) UpdateProgress(ev ProgressEvent) {
	r.state.Observe(ev)
}

func (r *liveRenderer) AddError(ev ErrorEvent) {
	r.state.Fail(ev)
}

func (r *liveRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(runDoneMsg(stats))
	}
}

func (r *liveRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program == nil {
		return nil
	}
	r.program.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		// An unresponsive view must not wedge shutdown.
	}
	return nil
}

type runDoneMsg CompletionStats
type refreshMsg time.Time

// ingestView renders the pipeline as a stage checklist above a single
// progress bar for the active stage.
type ingestView struct {
	state    *pipelineState
	theme    Theme
	spin     spinner.Model
	bar      progress.Model
	docsDir  string
	width    int
	finished bool
	stats    CompletionStats
	quitting bool
}

func newIngestView(state *pipelineState, cfg Config) *ingestView {
	theme := NewTheme(cfg.NoColor || noColorEnv())
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = theme.Accent
	bar := progress.New(progress.WithSolidFill(accentColor), progress.WithoutPercentage())
	return &ingestView{
		state:   state,
		theme:   theme,
		spin:    sp,
		bar:     bar,
		docsDir: cfg.DocsDir,
		width:   80,
	}
}

func (v *ingestView) Init() tea.Cmd {
	return tea.Batch(v.spin.Tick, refreshTick())
}

func refreshTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (v *ingestView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			v.quitting = true
			return v, tea.Quit
		}
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.bar.Width = msg.Width - 16
		if v.bar.Width < 16 {
			v.bar.Width = 16
		}
	case runDoneMsg:
		v.finished = true
		v.stats = CompletionStats(msg)
		return v, tea.Quit
	case refreshMsg:
		return v, refreshTick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		v.spin, cmd = v.spin.Update(msg)
		return v, cmd
	}
	return v, nil
}

func (v *ingestView) View() string {
	if v.quitting {
		return "cancelled\n"
	}
	if v.finished {
		return v.summaryView()
	}

	snap := v.state.Snapshot()
	var b strings.Builder

	title := "indexing"
	if v.docsDir != "" {
		title += " " + v.docsDir
	}
	b.WriteString(v.theme.Title.Render(title))
	b.WriteString("\n\n")

	for st := Stage(0); st < stageCount; st++ {
		b.WriteString(v.stageLine(st, snap))
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	b.WriteString(v.bar.ViewAs(snap.Percent()))
	b.WriteString(v.theme.Accent.Render(fmt.Sprintf(" %3.0f%%", snap.Percent()*100)))
	b.WriteByte('\n')

	meta := fmt.Sprintf("elapsed %s", snap.Elapsed.Round(time.Second))
	if snap.Rate > 0 {
		meta += fmt.Sprintf("   %.0f %s/s", snap.Rate, snap.Stage.Unit())
	}
	if snap.Remaining > 0 {
		meta += fmt.Sprintf("   ~%s left", snap.Remaining.Round(time.Second))
	}
	b.WriteString(v.theme.Muted.Render(meta))
	b.WriteByte('\n')

	if snap.CurrentFile != "" {
		b.WriteString(v.theme.Muted.Render(shortenPath(snap.CurrentFile, v.width-4)))
		b.WriteByte('\n')
	}

	for _, e := range snap.LastErrors {
		b.WriteString(v.theme.Bad.Render(fmt.Sprintf("✗ %s: %v", e.File, e.Err)))
		b.WriteByte('\n')
	}
	if snap.WarnCount > 0 {
		b.WriteString(v.theme.Warn.Render(fmt.Sprintf("%d warnings", snap.WarnCount)))
		b.WriteByte('\n')
	}

	return b.String()
}

// stageLine renders one checklist row: done, active with live counts,
// or pending.
func (v *ingestView) stageLine(st Stage, snap pipelineSnapshot) string {
	info := snap.Stages[st]
	label := fmt.Sprintf("%-6s", st.String())

	switch {
	case st == snap.Stage:
		count := ""
		if info.Total > 0 {
			count = fmt.Sprintf("  %d/%d %s", info.Done, info.Total, st.Unit())
		}
		return v.spin.View() + " " + v.theme.Accent.Render(label) + v.theme.Muted.Render(count)
	case info.Visited:
		took := ""
		if info.Took > 0 {
			took = fmt.Sprintf("  %d %s in %s", info.Done, st.Unit(), info.Took.Round(time.Millisecond*100))
		}
		return v.theme.Good.Render("✓ "+label) + v.theme.Muted.Render(took)
	default:
		return v.theme.Muted.Render("· " + label)
	}
}

func (v *ingestView) summaryView() string {
	var b strings.Builder
	b.WriteString(v.theme.Good.Render("✓ index up to date"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %d files, %d chunks in %s\n",
		v.stats.Files, v.stats.Chunks, v.stats.Duration.Round(100*time.Millisecond)))
	if v.stats.Embedder.Backend != "" {
		b.WriteString(v.theme.Muted.Render(
			fmt.Sprintf("  embeddings: %s (%s)\n", v.stats.Embedder.Backend, v.stats.Embedder.Model)))
	}
	if v.stats.Errors > 0 {
		b.WriteString(v.theme.Bad.Render(fmt.Sprintf("  %d files failed\n", v.stats.Errors)))
	}
	if v.stats.Warnings > 0 {
		b.WriteString(v.theme.Warn.Render(fmt.Sprintf("  %d warnings\n", v.stats.Warnings)))
	}
	return b.String()
}

// shortenPath keeps the filename and as much of the directory tail as
// fits.
func shortenPath(path string, max int) string {
	if max < 8 || len(path) <= max {
		return path
	}
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "…" + path[len(path)-max+1:]
	}
	name := path[i+1:]
	if len(name)+2 >= max {
		return "…" + name[len(name)-max+1:]
	}
	keep := max - len(name) - 2
	dir := path[:i]
	if len(dir) > keep {
		dir = "…" + dir[len(dir)-keep:]
	}
	return dir + "/" + name
}

var _ Renderer = (*liveRenderer)(nil)
