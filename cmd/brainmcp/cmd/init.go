package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/secondbrain-labs/brainmcp/configs"
	"github.com/secondbrain-labs/brainmcp/internal/config"
	"github.com/secondbrain-labs/brainmcp/internal/lifecycle"
	"github.com/secondbrain-labs/brainmcp/internal/output"
)

func newInitCmd() *cobra.Command {
	var (
		force      bool
		skipOllama bool
	)

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Set up a documents root for indexing",
		Long: `Init writes a .brainmcp.yaml configuration into the documents root and
makes sure the embedding model is available. Run it once per document
collection, then 'brainmcp ingest' to build the index.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			return runInit(cmd, root, force, skipOllama)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing .brainmcp.yaml")
	cmd.Flags().BoolVar(&skipOllama, "skip-ollama", false, "skip Ollama setup, use static embeddings")
	return cmd
}

func runInit(cmd *cobra.Command, root string, force, skipOllama bool) error {
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if fi, err := os.Stat(absRoot); err != nil || !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", absRoot)
	}

	cfgPath := filepath.Join(absRoot, ".brainmcp.yaml")
	if _, err := os.Stat(cfgPath); err == nil && !force {
		out.Warningf("%s already exists (use --force to overwrite)", cfgPath)
	} else {
		if backup, err := config.BackupConfigFile(cfgPath); err != nil {
			return fmt.Errorf("back up config: %w", err)
		} else if backup != "" {
			out.Statusf(" ", "Saved previous config to %s", filepath.Base(backup))
		}
		if err := os.WriteFile(cfgPath, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		out.Successf("Wrote %s", cfgPath)
	}

	cfg, err := config.Load(absRoot)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if !skipOllama {
		mgr := lifecycle.NewOllamaManagerWithHost(cfg.Embeddings.OllamaHost)
		err := mgr.EnsureReady(ctx, cfg.Embeddings.Model, lifecycle.EnsureOpts{
			AutoStart: true,
			AutoPull:  true,
			Stdout:    cmd.OutOrStdout(),
		})
		if err != nil {
			out.Warningf("Ollama setup incomplete: %v", err)
			out.Warning("Embeddings will fall back to static vectors until Ollama is ready.")
		} else {
			out.Successf("Ollama ready with %s", cfg.Embeddings.Model)
		}
	}

	out.Newline()
	out.Status("➡️", "Next: brainmcp ingest "+root)
	return nil
}
