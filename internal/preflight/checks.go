package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

const (
	dataDirName = ".brainmcp"

	// The hybrid index roughly doubles the corpus size on disk, so a
	// small floor catches obviously full volumes before a long ingest.
	minIndexDiskBytes = 200 << 20

	// An Ollama embedding model pull is on the order of a gigabyte.
	minModelDiskBytes = 2 << 30

	// Bleve keeps segment files open and the watcher holds one fd per
	// watched directory.
	minOpenFiles = 1024

	defaultOllamaHost = "http://localhost:11434"
	ollamaProbeWait   = 2 * time.Second
)

func checkDocsRoot(_ context.Context, _ *Checker, docsRoot string) CheckResult {
	r := CheckResult{Name: "docs_root", Required: true}

	info, err := os.Stat(docsRoot)
	switch {
	case err != nil:
		r.Status = StatusFail
		r.Message = fmt.Sprintf("cannot stat %s: %v", docsRoot, err)
	case !info.IsDir():
		r.Status = StatusFail
		r.Message = fmt.Sprintf("%s is not a directory", docsRoot)
	default:
		if _, err := os.ReadDir(docsRoot); err != nil {
			r.Status = StatusFail
			r.Message = fmt.Sprintf("cannot list %s: %v", docsRoot, err)
			return r
		}
		r.Status = StatusPass
		r.Message = docsRoot
	}
	return r
}

func checkDataDirWritable(_ context.Context, _ *Checker, docsRoot string) CheckResult {
	r := CheckResult{Name: "data_dir", Required: true}

	dataDir := filepath.Join(docsRoot, dataDirName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("cannot create %s: %v", dataDir, err)
		return r
	}

	probe := filepath.Join(dataDir, ".write-probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("%s is not writable: %v", dataDir, err)
		return r
	}
	_ = os.Remove(probe)

	r.Status = StatusPass
	r.Message = fmt.Sprintf("%s is writable", dataDir)
	return r
}

func checkIndexDiskSpace(_ context.Context, _ *Checker, docsRoot string) CheckResult {
	r := CheckResult{Name: "disk_space", Required: true}

	free, err := freeBytes(docsRoot)
	if err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("cannot stat filesystem: %v", err)
		return r
	}
	r.Message = fmt.Sprintf("%s free for the index", FormatBytes(free))
	if free < minIndexDiskBytes {
		r.Status = StatusFail
		r.Details = "free disk space or move the documents root to a larger volume"
		return r
	}
	r.Status = StatusPass
	return r
}

func checkFileDescriptors(_ context.Context, _ *Checker, _ string) CheckResult {
	r := CheckResult{Name: "open_files", Required: true}

	var lim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &lim); err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("cannot read rlimit: %v", err)
		return r
	}
	r.Message = fmt.Sprintf("limit %d", lim.Cur)
	if lim.Cur < minOpenFiles {
		r.Status = StatusFail
		r.Details = fmt.Sprintf("the keyword index and the watcher need at least %d descriptors; raise with ulimit -n", minOpenFiles)
		return r
	}
	r.Status = StatusPass
	return r
}

// checkOllamaReachable is advisory: search degrades to static embeddings
// when Ollama is down.
func checkOllamaReachable(ctx context.Context, c *Checker, _ string) CheckResult {
	r := CheckResult{Name: "ollama"}

	if c.offline {
		r.Status = StatusWarn
		r.Message = "offline mode, static embeddings"
		return r
	}

	host := os.Getenv("BRAINMCP_OLLAMA_HOST")
	if host == "" {
		host = defaultOllamaHost
	}

	probeCtx, cancel := context.WithTimeout(ctx, ollamaProbeWait)
	defer cancel()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, host+"/api/tags", nil)
	if err != nil {
		r.Status = StatusWarn
		r.Message = fmt.Sprintf("invalid host %s: %v", host, err)
		return r
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		r.Status = StatusWarn
		r.Message = "not reachable, static embeddings until it starts"
		r.Details = "host: " + host
		return r
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		r.Status = StatusWarn
		r.Message = fmt.Sprintf("HTTP %d from %s", resp.StatusCode, host)
		return r
	}
	r.Status = StatusPass
	r.Message = "reachable at " + host
	return r
}

func checkModelDiskSpace(_ context.Context, _ *Checker, _ string) CheckResult {
	r := CheckResult{Name: "model_disk_space"}

	home, err := os.UserHomeDir()
	if err != nil {
		r.Status = StatusWarn
		r.Message = fmt.Sprintf("cannot resolve home: %v", err)
		return r
	}
	free, err := freeBytes(home)
	if err != nil {
		r.Status = StatusWarn
		r.Message = fmt.Sprintf("cannot stat filesystem: %v", err)
		return r
	}
	r.Message = fmt.Sprintf("%s free for model pulls", FormatBytes(free))
	if free < minModelDiskBytes {
		r.Status = StatusWarn
		r.Details = "a model pull needs about 2 GB; use --offline to skip Ollama entirely"
	} else {
		r.Status = StatusPass
	}
	return r
}

func freeBytes(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// FormatBytes renders a byte count with a binary unit suffix.
func FormatBytes(n uint64) string {
	switch {
	case n >= 1<<40:
		return fmt.Sprintf("%.1f TB", float64(n)/float64(1<<40))
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(n)/float64(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/float64(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/float64(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
