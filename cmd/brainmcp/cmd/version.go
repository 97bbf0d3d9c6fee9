package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/secondbrain-labs/brainmcp/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var (
		jsonOut  bool
		shortOut bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version and build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case shortOut:
				fmt.Fprintln(cmd.OutOrStdout(), version.Short())
			case jsonOut:
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(version.GetInfo())
			default:
				fmt.Fprintln(cmd.OutOrStdout(), version.String())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "machine-readable output")
	cmd.Flags().BoolVar(&shortOut, "short", false, "version number only")
	return cmd
}
