// Package cmd provides the CLI commands for brainmcp.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/secondbrain-labs/brainmcp/internal/config"
	"github.com/secondbrain-labs/brainmcp/internal/logging"
	"github.com/secondbrain-labs/brainmcp/internal/preflight"
	"github.com/secondbrain-labs/brainmcp/internal/profiling"
	"github.com/secondbrain-labs/brainmcp/pkg/version"
)

// Profiling flags
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profSession  *profiling.Session
)

// Debug logging flag
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the brainmcp CLI.
func NewRootCmd() *cobra.Command {
	var offline bool
	var resync bool
	var skipCheck bool

	cmd := &cobra.Command{
		Use:   "brainmcp",
		Short: "Local-first RAG MCP server for personal documents",
		Long: `brainmcp provides hybrid search (keyword + semantic) over a personal
document library for AI assistants like Claude Code and Cursor.

It runs entirely locally with zero configuration required.

Just run 'brainmcp' in your documents directory to get started.`,
		Version: version.Version,
		// Errors are formatted once in main via the error taxonomy.
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			return runSmartDefault(cmd.Context(), offline, resync, skipCheck)
		},
	}

	cmd.SetVersionTemplate("brainmcp version {{.Version}}\n")

	// Root flags
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (skip Ollama)")
	cmd.Flags().BoolVar(&resync, "resync", false, "Force a full rebuild even if an index exists")
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Skip pre-flight system checks")

	// Profiling flags
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	// Debug logging flag
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.brainmcp/logs/")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	// Subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts CPU/trace profiling and debug logging if flags are set.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error

	if debugMode {
		cfg := logging.DefaultConfig()
		cfg.Level = "debug"
		logger, cleanup, err := logging.Setup(cfg)
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Info("debug_logging_enabled",
			slog.String("log_file", logging.DefaultLogPath()))
	}

	opts := profiling.Options{
		CPUPath:   profileCPU,
		TracePath: profileTrace,
		HeapPath:  profileMem,
	}
	if opts.Enabled() {
		profSession, err = profiling.Start(opts)
		if err != nil {
			return fmt.Errorf("failed to start profiling: %w", err)
		}
	}

	return nil
}

// stopProfilingAndLogging flushes the profiling session and log file.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if profSession != nil {
		if err := profSession.Stop(); err != nil {
			return fmt.Errorf("failed to stop profiling: %w", err)
		}
		profSession = nil
	}

	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}

	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// runSmartDefault implements the zero-config flow: check the system,
// then serve MCP over stdio with the watcher and daemon socket running.
// The MCP protocol owns stdout, so all diagnostics go to the log file.
func runSmartDefault(ctx context.Context, offline, fullResync, skipCheck bool) error {
	root, err := config.FindDocsRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if offline {
		cfg.Embeddings.Provider = "static"
	}

	dataDir := cfg.DataDir()

	if !skipCheck && preflight.NeedsCheck(dataDir) {
		checker := preflight.New(
			preflight.WithOffline(offline),
			preflight.WithOutput(io.Discard), // stdout belongs to MCP
		)
		results := checker.RunAll(ctx, root)

		if checker.HasCriticalFailures(results) {
			slog.Error("system check failed, run 'brainmcp doctor' for diagnostics")
			return fmt.Errorf("system check failed")
		}

		if err := preflight.MarkPassed(dataDir); err != nil {
			slog.Debug("preflight_mark_failed", slog.String("error", err.Error()))
		}
	}

	return runServe(ctx, cfg, serveOptions{fullResync: fullResync})
}
