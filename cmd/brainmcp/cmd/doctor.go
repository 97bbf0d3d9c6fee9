package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/secondbrain-labs/brainmcp/internal/config"
	"github.com/secondbrain-labs/brainmcp/internal/lifecycle"
	"github.com/secondbrain-labs/brainmcp/internal/output"
	"github.com/secondbrain-labs/brainmcp/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor [path]",
		Short: "Diagnose the environment and report what needs fixing",
		Long: `Doctor runs every preflight check verbosely and inspects the local
Ollama installation. Nothing is modified.`,
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
			return runDoctor(cmd, cfg, offline)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "skip Ollama connectivity checks")
	return cmd
}

func runDoctor(cmd *cobra.Command, cfg *config.Config, offline bool) error {
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())

	checker := preflight.New(
		preflight.WithVerbose(true),
		preflight.WithOffline(offline),
		preflight.WithOutput(cmd.OutOrStdout()),
	)
	results := checker.RunAll(ctx, cfg.Docs.Root)
	checker.PrintResults(results)

	if !offline {
		out.Newline()
		out.Status("🦙", "Ollama")
		mgr := lifecycle.NewOllamaManagerWithHost(cfg.Embeddings.OllamaHost)
		status, err := mgr.Status(ctx, cfg.Embeddings.Model)
		switch {
		case err != nil:
			out.Warningf("  status check failed: %v", err)
		case !status.Installed:
			out.Warning("  not installed; embeddings fall back to static vectors")
		case !status.Running:
			out.Warningf("  installed at %s but not running (start with 'ollama serve')", status.InstalledPath)
		case !status.HasModel:
			out.Warningf("  running, but model %s is missing (pull with 'ollama pull %s')",
				status.TargetModel, status.TargetModel)
		default:
			out.Successf("  running with %s (%d models available)",
				status.TargetModel, len(status.Models))
		}
	}

	if checker.HasCriticalFailures(results) {
		var failed []string
		for _, r := range results {
			if r.Required && r.Status == preflight.StatusFail {
				failed = append(failed, r.Name)
			}
		}
		return fmt.Errorf("critical checks failed: %s", strings.Join(failed, ", "))
	}
	return nil
}
