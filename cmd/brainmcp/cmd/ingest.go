package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/secondbrain-labs/brainmcp/internal/config"
	"github.com/secondbrain-labs/brainmcp/internal/resync"
	"github.com/secondbrain-labs/brainmcp/internal/ui"
)

func newIngestCmd() *cobra.Command {
	var (
		full    bool
		offline bool
		noTUI   bool
	)

	cmd := &cobra.Command{
		Use:   "ingest [path]",
		Short: "Index your documents once and exit",
		Long: `Ingest scans the documents root, chunks and embeds every supported
file, and writes the hybrid index. Subsequent runs only process files
whose content changed; use --full to rebuild from scratch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			cfg, err := config.Load(root)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if offline {
				cfg.Embeddings.Provider = "static"
			}
			return runIngest(cmd, cfg, full, noTUI)
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "rebuild the index from scratch")
	cmd.Flags().BoolVar(&offline, "offline", false, "use static embeddings, never contact Ollama")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "plain text progress output")
	return cmd
}

func runIngest(cmd *cobra.Command, cfg *config.Config, full, noTUI bool) error {
	ctx := cmd.Context()

	if err := os.MkdirAll(cfg.DataDir(), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	s, err := buildStack(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	renderer := ui.NewRenderer(ui.Config{
		Output:     cmd.OutOrStdout(),
		ForcePlain: noTUI,
		DocsDir:    cfg.Docs.Root,
	})
	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("start progress display: %w", err)
	}
	defer func() { _ = renderer.Stop() }()

	started := time.Now()
	s.driver.Start()
	defer s.driver.Stop()
	s.driver.Trigger(resync.Request{Reason: resync.ReasonManual, FullRebuild: full})

	// The driver runs on its own goroutine; poll its progress snapshots
	// into the renderer until it settles back to idle.
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		snap := s.driver.Progress().Snapshot()
		renderer.UpdateProgress(progressEvent(snap))

		// A run starts with status "syncing"; wait for it to settle to
		// ready or error with the driver back at idle.
		if s.driver.State() != resync.StateIdle {
			continue
		}
		switch snap.Status {
		case string(resync.StatusError):
			renderer.AddError(ui.ErrorEvent{Err: fmt.Errorf("%s", snap.ErrorMessage)})
			return fmt.Errorf("sync failed: %s", snap.ErrorMessage)
		case string(resync.StatusReady):
			renderer.Complete(ui.CompletionStats{
				Files:    snap.FilesProcessed,
				Chunks:   snap.ChunksIndexed,
				Duration: time.Since(started),
				Embedder: ui.EmbedderInfo{
					Backend: embedderBackend(cfg),
					Model:   s.embedder.ModelName(),
				},
			})
			return nil
		}
	}
}

// progressEvent maps a driver snapshot onto a renderer event.
func progressEvent(snap resync.ProgressSnapshot) ui.ProgressEvent {
	ev := ui.ProgressEvent{
		Current: snap.FilesProcessed + snap.FilesSkipped,
		Total:   snap.FilesTotal,
	}
	switch resync.Stage(snap.Stage) {
	case resync.StageScanning:
		ev.Stage = ui.StageScanning
	case resync.StageChunking:
		ev.Stage = ui.StageChunking
	case resync.StageEmbedding:
		ev.Stage = ui.StageEmbedding
		ev.Current = snap.ChunksIndexed
		ev.Total = snap.ChunksTotal
	case resync.StageIndexing:
		ev.Stage = ui.StageIndexing
		ev.Current = snap.ChunksIndexed
		ev.Total = snap.ChunksTotal
	default:
		ev.Stage = ui.StageScanning
	}
	return ev
}

// embedderBackend reports which embedding backend the config resolves
// to for display purposes. Auto is resolved at build time, so either
// label may be an approximation when Ollama flaps mid-run.
func embedderBackend(cfg *config.Config) string {
	if cfg.Embeddings.Provider == "static" {
		return "static"
	}
	return "ollama"
}
