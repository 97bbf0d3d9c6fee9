package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/secondbrain-labs/brainmcp/internal/config"
	"github.com/secondbrain-labs/brainmcp/internal/daemon"
	"github.com/secondbrain-labs/brainmcp/internal/output"
)

const cliClientID = "cli"

func newSearchCmd() *cobra.Command {
	var (
		topK     int
		jsonOut  bool
		noDaemon bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search your documents",
		Long: `Search runs a hybrid query (semantic plus keyword) over the index.

When a serve process is running, the query goes over its control socket
and shares its warm index and cache. Otherwise the index is opened
directly, which costs a few seconds of startup.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			cfg, err := config.Load(".")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runSearch(cmd, cfg, query, topK, jsonOut, noDaemon)
		},
	}

	cmd.Flags().IntVarP(&topK, "top", "k", 5, "number of results")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "machine-readable output")
	cmd.Flags().BoolVar(&noDaemon, "no-daemon", false, "bypass a running serve process")
	return cmd
}

func runSearch(cmd *cobra.Command, cfg *config.Config, query string, topK int, jsonOut, noDaemon bool) error {
	out := output.New(cmd.OutOrStdout())

	results, served, err := searchResults(cmd, cfg, query, topK, noDaemon)
	if err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		out.Warningf("No results for %q", query)
		return nil
	}

	source := "local index"
	if served {
		source = "daemon"
	}
	out.Statusf("🔍", "%d results for %q (%s)", len(results), query, source)
	out.Newline()

	for i, r := range results {
		title := r.Title
		if title == "" {
			title = r.Path
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d. %s  (%.2f)\n", i+1, title, r.Score)
		fmt.Fprintf(cmd.OutOrStdout(), "   %s", r.Path)
		if r.StartLine > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), ":%d-%d", r.StartLine, r.EndLine)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		if snippet := snippet(r.Content, 200); snippet != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "   %s\n", snippet)
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}

// searchResults answers from a running serve process when one is up,
// otherwise builds a throwaway local stack. The bool reports which
// path served the query.
func searchResults(cmd *cobra.Command, cfg *config.Config, query string, topK int, noDaemon bool) ([]daemon.SearchResult, bool, error) {
	ctx := cmd.Context()

	if !noDaemon {
		client := daemon.NewClient(daemon.ConfigForDataDir(cfg.DataDir()), cliClientID)
		if client.IsRunning() {
			results, err := client.Search(ctx, query, topK)
			if err != nil {
				return nil, true, err
			}
			return results, true, nil
		}
	}

	s, err := buildStack(ctx, cfg, nil)
	if err != nil {
		return nil, false, err
	}
	defer s.Close()

	local, err := s.svc.Search(ctx, query, topK, cliClientID)
	if err != nil {
		return nil, false, err
	}
	results := make([]daemon.SearchResult, 0, len(local))
	for _, r := range local {
		results = append(results, daemon.SearchResult{
			ID:           r.Chunk.ID,
			Path:         r.Chunk.Path,
			Title:        r.Chunk.Title,
			Content:      r.Chunk.Content,
			Kind:         string(r.Chunk.Kind),
			Score:        r.Score,
			MatchedTerms: r.MatchedTerms,
			StartLine:    r.Chunk.StartLine,
			EndLine:      r.Chunk.EndLine,
		})
	}
	return results, false, nil
}

// snippet returns the first maxLen runes of content collapsed onto one
// line.
func snippet(content string, maxLen int) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	return string(runes[:maxLen]) + "…"
}
