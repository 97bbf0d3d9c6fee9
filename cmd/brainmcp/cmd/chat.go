package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/secondbrain-labs/brainmcp/internal/config"
	"github.com/secondbrain-labs/brainmcp/internal/output"
)

func newChatCmd() *cobra.Command {
	var (
		topK  int
		model string
	)

	cmd := &cobra.Command{
		Use:   "chat <question>",
		Short: "Ask a question answered from your documents",
		Long: `Chat retrieves the most relevant chunks for the question and asks the
local Ollama model to answer from them. The answer cites the documents
it drew from.

Requires Ollama with a generation model pulled (default: llama3).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			cfg, err := config.Load(".")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runChat(cmd, cfg, question, topK, model)
		},
	}

	cmd.Flags().IntVarP(&topK, "top", "k", 0, "number of context chunks (default from config)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "generation model (default from config)")
	return cmd
}

func runChat(cmd *cobra.Command, cfg *config.Config, question string, topK int, model string) error {
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())

	s, err := buildStack(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if !s.chat.Available(ctx) {
		return fmt.Errorf("ollama is not reachable at %s; start it with 'ollama serve' or run 'brainmcp doctor'", cfg.Embeddings.OllamaHost)
	}

	out.Statusf("💭", "Thinking with %s...", s.chat.Model())

	answer, err := s.svc.Chat(ctx, question, topK, model, cliClientID)
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(answer.Text))

	if len(answer.Sources) > 0 {
		fmt.Fprintln(cmd.OutOrStdout())
		out.Status("📚", "Sources:")
		seen := make(map[string]bool, len(answer.Sources))
		for _, src := range answer.Sources {
			if seen[src.Path] {
				continue
			}
			seen[src.Path] = true
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", src.Path)
		}
	}
	return nil
}
