// Package preflight validates the environment before the daemon or an
// ingest run starts: the documents root must be readable, the data dir
// writable with room for the index to grow, and the process must have
// enough file descriptors for the keyword index and the watcher.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
)

// CheckStatus classifies a check outcome.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	}
	return "????"
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports whether a required check failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// checkFunc produces one result for the given documents root.
type checkFunc func(ctx context.Context, c *Checker, docsRoot string) CheckResult

// Checker runs the preflight suite.
type Checker struct {
	offline bool
	verbose bool
	output  io.Writer
	checks  []checkFunc
}

// Option configures a Checker.
type Option func(*Checker)

// WithOffline skips network probes; embeddings fall back to static.
func WithOffline(offline bool) Option {
	return func(c *Checker) { c.offline = offline }
}

// WithVerbose includes per-check details in PrintResults.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) { c.verbose = verbose }
}

// WithOutput sets where PrintResults writes.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) { c.output = w }
}

// New creates a Checker with the standard suite.
func New(opts ...Option) *Checker {
	c := &Checker{
		output: os.Stdout,
		checks: []checkFunc{
			checkDocsRoot,
			checkDataDirWritable,
			checkIndexDiskSpace,
			checkFileDescriptors,
			checkOllamaReachable,
			checkModelDiskSpace,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs the suite against a documents root.
func (c *Checker) RunAll(ctx context.Context, docsRoot string) []CheckResult {
	results := make([]CheckResult, 0, len(c.checks))
	for _, check := range c.checks {
		results = append(results, check(ctx, c, docsRoot))
	}
	return results
}

// HasCriticalFailures reports whether any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// Summary condenses results into "ready", "ready_with_warnings", or
// "failed".
func Summary(results []CheckResult) string {
	warned := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			warned = true
		}
	}
	if warned {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults writes a human-readable report to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %-18s %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "       %s\n", r.Details)
		}
	}
	_, _ = fmt.Fprintf(c.output, "\nStatus: %s\n", Summary(results))

	for _, r := range results {
		if r.IsCritical() {
			_, _ = fmt.Fprintf(c.output, "  fix: %s (%s)\n", r.Name, r.Message)
		}
	}
}
