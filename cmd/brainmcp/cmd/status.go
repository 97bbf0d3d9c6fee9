package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/secondbrain-labs/brainmcp/internal/config"
	"github.com/secondbrain-labs/brainmcp/internal/daemon"
	"github.com/secondbrain-labs/brainmcp/internal/store"
	"github.com/secondbrain-labs/brainmcp/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Show index and service health",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			cfg, err := config.Load(root)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runStatus(cmd.Context(), cmd, cfg, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "machine-readable output")
	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, cfg *config.Config, jsonOut bool) error {
	info := gatherStatus(ctx, cfg)

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), os.Getenv("NO_COLOR") != "")
	if jsonOut {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

// gatherStatus collects everything displayable without mutating state.
// A running serve process supplies live stats over the control socket;
// otherwise the state store is read directly.
func gatherStatus(ctx context.Context, cfg *config.Config) ui.StatusInfo {
	dataDir := cfg.DataDir()

	info := ui.StatusInfo{
		DocsDir:       cfg.Docs.Root,
		EmbedderType:  embedderBackend(cfg),
		EmbedderModel: cfg.Embeddings.Model,
		DaemonStatus:  "stopped",
		WatcherStatus: "stopped",
	}

	info.StateSize = fileSize(filepath.Join(dataDir, stateFileName))
	info.KeywordSize = dirSize(filepath.Join(dataDir, keywordDirName))
	info.VectorSize = fileSize(filepath.Join(dataDir, "index.hnsw")) + fileSize(filepath.Join(dataDir, "chunks.gob"))
	info.TotalSize = info.StateSize + info.KeywordSize + info.VectorSize

	if cfg.Embeddings.Provider == "static" {
		info.EmbedderStatus = "offline"
	} else if ollamaReachable(ctx, cfg.Embeddings.OllamaHost) {
		info.EmbedderStatus = "ready"
	} else {
		info.EmbedderStatus = "offline"
	}

	client := daemon.NewClient(daemon.ConfigForDataDir(dataDir), cliClientID)
	if client.IsRunning() {
		info.DaemonStatus = "running"
		if status, err := client.Status(ctx); err == nil && status.Stats != nil {
			info.TotalChunks = status.Stats.IndexedChunks
			info.Epoch = status.Stats.Epoch
			info.ResyncState = status.Stats.ResyncState
			info.CacheHitRate = status.Stats.CacheHitRate * 100
			switch {
			case !status.Stats.WatcherHealthy:
				info.WatcherStatus = "degraded"
			case status.Stats.WatcherMode != "":
				info.WatcherStatus = "running"
			}
		}
	}

	// File count and last sync come from the state store either way.
	if state, err := store.NewStateStore(filepath.Join(dataDir, stateFileName)); err == nil {
		defer func() { _ = state.Close() }()
		if n, err := state.DocumentCount(ctx); err == nil {
			info.TotalFiles = n
		}
		if recs, err := state.RecentResyncs(ctx, 1); err == nil && len(recs) > 0 {
			info.LastSynced = recs[0].FinishedAt
		}
	}

	return info
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func dirSize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += fi.Size()
		}
		return nil
	})
	return total
}

func ollamaReachable(ctx context.Context, host string) bool {
	if host == "" {
		host = "http://localhost:11434"
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
