package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/secondbrain-labs/brainmcp/internal/config"
	"github.com/secondbrain-labs/brainmcp/internal/daemon"
	"github.com/secondbrain-labs/brainmcp/internal/docs"
	"github.com/secondbrain-labs/brainmcp/internal/logging"
	"github.com/secondbrain-labs/brainmcp/internal/mcp"
	"github.com/secondbrain-labs/brainmcp/internal/resync"
	"github.com/secondbrain-labs/brainmcp/internal/watch"
)

type serveOptions struct {
	fullResync bool
	offline    bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve [path]",
		Short: "Run the MCP server over your documents",
		Long: `Serve starts the full pipeline: document watcher, resync driver,
query cache, rate limiter, control socket, and the MCP server on
stdin/stdout. This is what MCP clients should launch.

The documents root is the argument, the nearest .brainmcp.yaml, or the
current directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := ""
			if len(args) > 0 {
				root = args[0]
			} else if found, err := config.FindDocsRoot("."); err == nil {
				root = found
			} else {
				root = "."
			}

			cfg, err := config.Load(root)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if opts.offline {
				cfg.Embeddings.Provider = "static"
			}
			return runServe(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.fullResync, "full", false, "rebuild the index from scratch on startup")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "use static embeddings, never contact Ollama")
	return cmd
}

// runServe wires and runs the whole service. It blocks until the
// context is canceled or the MCP transport closes.
func runServe(ctx context.Context, cfg *config.Config, opts serveOptions) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Stdout belongs to the MCP transport, so logs go to a file only.
	logCfg := logging.DefaultConfig()
	logCfg.FilePath = logging.DataDirLogPath(dataDir)
	logCfg.WriteToStderr = false
	if debugMode {
		logCfg.Level = "debug"
	}
	logCleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logCleanup()

	notifier := watch.NewNotifier(cfg.DebounceWindow())
	defer notifier.Stop()

	s, err := buildStack(ctx, cfg, notifier)
	if err != nil {
		return err
	}
	defer s.Close()

	s.driver.Start()
	defer s.driver.Stop()
	s.driver.Trigger(resync.Request{
		Reason:      resync.ReasonStartup,
		FullRebuild: opts.fullResync,
	})

	go s.limiter.Run(ctx)

	// File watcher feeds the resync driver. A degraded signal means
	// events may have been lost, so it forces a full reconcile pass.
	if cfg.Watch.Enabled {
		watcher, err := watch.NewWatcher(notifier, watch.Options{
			DebounceWindow: cfg.DebounceWindow(),
			IgnorePatterns: cfg.Docs.Ignore,
			Accept:         docs.SupportedExtension,
		})
		if err != nil {
			slog.Warn("watcher_unavailable", slog.String("error", err.Error()))
		} else {
			go func() {
				if err := watcher.Start(ctx, cfg.Docs.Root); err != nil {
					slog.Error("watcher_stopped", slog.String("error", err.Error()))
				}
			}()
			defer func() { _ = watcher.Stop() }()
		}
	}
	go func() {
		for sig := range notifier.Signals() {
			reason := resync.ReasonWatcher
			if sig.Degraded {
				reason = resync.ReasonRecovery
			}
			slog.Debug("change_signal",
				slog.Int("events", sig.Events),
				slog.Bool("degraded", sig.Degraded))
			s.driver.Trigger(resync.Request{Reason: reason, FullRebuild: sig.Degraded})
		}
	}()

	// Control socket for the CLI (search, status, resync without a
	// second index copy).
	daemonCfg := daemon.ConfigForDataDir(dataDir)
	srv, err := daemon.NewServer(daemonCfg, s.svc)
	if err != nil {
		return fmt.Errorf("create control server: %w", err)
	}
	pidFile := daemon.NewPIDFile(daemonCfg.PIDPath)
	if err := pidFile.Write(); err != nil {
		slog.Warn("pidfile_write_failed", slog.String("error", err.Error()))
	}
	defer func() { _ = pidFile.Remove() }()
	go func() {
		if err := srv.ListenAndServe(ctx); err != nil {
			slog.Error("control_server_stopped", slog.String("error", err.Error()))
		}
	}()

	slog.Info("serving",
		slog.String("docs_root", cfg.Docs.Root),
		slog.String("data_dir", dataDir),
		slog.String("transport", cfg.Server.Transport))

	// "socket" mode runs the control socket only; MCP clients are not
	// attached, so just wait for shutdown.
	if cfg.Server.Transport == "socket" {
		<-ctx.Done()
		return nil
	}

	mcpServer, err := mcp.NewServer(s.svc, s.state, func() string {
		return string(s.driver.State())
	})
	if err != nil {
		return fmt.Errorf("create mcp server: %w", err)
	}
	return mcpServer.Serve(ctx, "stdio")
}
