// Package lifecycle brings the local Ollama daemon to a usable state
// for embedding: detect the binary, start the server, and pull the
// configured model. Used by init and doctor; the embedder itself only
// talks to a daemon that is already up.
package lifecycle

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	// DefaultHost is where a stock Ollama install listens.
	DefaultHost = "http://localhost:11434"

	// DefaultModel matches the embedder's default.
	DefaultModel = "nomic-embed-text"

	startupTimeout = 30 * time.Second
	probeTimeout   = 2 * time.Second
)

var (
	ErrNotInstalled  = errors.New("ollama is not installed")
	ErrNotRunning    = errors.New("ollama is not running")
	ErrModelMissing  = errors.New("embedding model is not pulled")
	errStartTimedOut = errors.New("ollama did not become ready in time")
)

// OllamaStatus is a point-in-time view of the local install.
type OllamaStatus struct {
	Installed     bool
	InstalledPath string
	Running       bool
	Models        []string
	HasModel      bool
	TargetModel   string
}

// PullProgress is one update from a streaming model pull.
type PullProgress struct {
	Status    string
	Completed int64
	Total     int64
}

// EnsureOpts controls how far EnsureReady may go on its own.
type EnsureOpts struct {
	AutoStart    bool
	AutoPull     bool
	ProgressFunc func(PullProgress)
	Stdout       io.Writer
}

// OllamaManager probes and drives a local Ollama daemon.
type OllamaManager struct {
	host   string
	client *http.Client

	// Seams for tests.
	lookPath func(file string) (string, error)
	startCmd func(path string) error
}

// NewOllamaManagerWithHost creates a manager. BRAINMCP_OLLAMA_HOST
// overrides both the argument and the default.
func NewOllamaManagerWithHost(host string) *OllamaManager {
	if env := os.Getenv("BRAINMCP_OLLAMA_HOST"); env != "" {
		host = env
	}
	if host == "" {
		host = DefaultHost
	}
	return &OllamaManager{
		host:     host,
		client:   &http.Client{Timeout: probeTimeout},
		lookPath: exec.LookPath,
		startCmd: startServeDetached,
	}
}

// Host returns the resolved API endpoint.
func (m *OllamaManager) Host() string { return m.host }

// Status probes install, liveness, and model availability in one call.
func (m *OllamaManager) Status(ctx context.Context, targetModel string) (*OllamaStatus, error) {
	if targetModel == "" {
		targetModel = DefaultModel
	}
	st := &OllamaStatus{TargetModel: targetModel}

	if path, err := m.lookPath("ollama"); err == nil {
		st.Installed = true
		st.InstalledPath = path
	}

	models, err := m.listModels(ctx)
	if err != nil {
		// Unreachable daemon just means not running.
		return st, nil
	}
	st.Running = true
	st.Models = models
	st.HasModel = hasModel(models, targetModel)
	return st, nil
}

// EnsureReady leaves Ollama serving the target model, starting the
// daemon and pulling the model when the options allow it.
func (m *OllamaManager) EnsureReady(ctx context.Context, model string, opts EnsureOpts) error {
	if model == "" {
		model = DefaultModel
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	st, err := m.Status(ctx, model)
	if err != nil {
		return err
	}

	if !st.Running {
		if !st.Installed {
			return ErrNotInstalled
		}
		if !opts.AutoStart {
			return ErrNotRunning
		}
		fmt.Fprintln(opts.Stdout, "Starting ollama serve...")
		if err := m.startCmd(st.InstalledPath); err != nil {
			return fmt.Errorf("start ollama: %w", err)
		}
		if err := m.waitForReady(ctx); err != nil {
			return err
		}
		st, err = m.Status(ctx, model)
		if err != nil {
			return err
		}
	}

	if st.HasModel {
		return nil
	}
	if !opts.AutoPull {
		return fmt.Errorf("%w: %s", ErrModelMissing, model)
	}

	fmt.Fprintf(opts.Stdout, "Pulling %s...\n", model)
	progress := opts.ProgressFunc
	if progress == nil {
		progress = stdoutProgress(opts.Stdout)
	}
	if err := m.pullModel(ctx, model, progress); err != nil {
		return fmt.Errorf("pull %s: %w", model, err)
	}
	fmt.Fprintf(opts.Stdout, "\nModel %s ready.\n", model)
	return nil
}

// listModels queries /api/tags. An error means the daemon is down.
func (m *OllamaManager) listModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.host+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned HTTP %d", resp.StatusCode)
	}

	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	names := make([]string, len(payload.Models))
	for i, mdl := range payload.Models {
		names[i] = mdl.Name
	}
	return names, nil
}

// hasModel matches a target against the tag list, ignoring the
// ":latest"-style suffix.
func hasModel(models []string, target string) bool {
	base := strings.ToLower(strings.SplitN(target, ":", 2)[0])
	for _, name := range models {
		got := strings.ToLower(strings.SplitN(name, ":", 2)[0])
		if got == base {
			return true
		}
	}
	return false
}

// waitForReady polls liveness with doubling intervals until the daemon
// answers or the startup budget runs out.
func (m *OllamaManager) waitForReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	interval := 100 * time.Millisecond
	for {
		if _, err := m.listModels(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errStartTimedOut
		case <-time.After(interval):
		}
		if interval < 2*time.Second {
			interval *= 2
		}
	}
}

// pullModel streams /api/pull and forwards progress lines.
func (m *OllamaManager) pullModel(ctx context.Context, model string, progress func(PullProgress)) error {
	body, err := json.Marshal(map[string]any{"name": model, "stream": true})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.host+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	// No client timeout: a pull is long-lived and bounded by ctx.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pull returned HTTP %d: %s", resp.StatusCode, msg)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var line struct {
			Status    string `json:"status"`
			Completed int64  `json:"completed"`
			Total     int64  `json:"total"`
		}
		if json.Unmarshal(scanner.Bytes(), &line) != nil {
			continue
		}
		if progress != nil {
			progress(PullProgress{Status: line.Status, Completed: line.Completed, Total: line.Total})
		}
	}
	return scanner.Err()
}

// stdoutProgress renders pull progress as a single rewriting line.
func stdoutProgress(w io.Writer) func(PullProgress) {
	var lastPct int64 = -1
	return func(p PullProgress) {
		if p.Total == 0 {
			return
		}
		pct := p.Completed * 100 / p.Total
		if pct != lastPct {
			lastPct = pct
			fmt.Fprintf(w, "\r%s: %d%% (%d/%d MB)", p.Status, pct, p.Completed>>20, p.Total>>20)
		}
	}
}

// startServeDetached launches "ollama serve" and lets it outlive us.
func startServeDetached(path string) error {
	cmd := exec.Command(path, "serve")
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
