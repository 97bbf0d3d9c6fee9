// Package main provides the entry point for the brainmcp CLI.
package main

import (
	"fmt"
	"os"

	"github.com/secondbrain-labs/brainmcp/cmd/brainmcp/cmd"
	brainerrors "github.com/secondbrain-labs/brainmcp/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, brainerrors.FormatForCLI(err))
		os.Exit(1)
	}
}
