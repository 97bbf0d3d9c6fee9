package preflight

import (
	"os"
	"path/filepath"
	"time"
)

// markerFile records in the data dir that the suite last passed, so the
// server skips the checks on routine restarts.
const markerFile = "preflight.ok"

// markerTTL forces a re-check after enough time that disk or rlimit
// conditions may have drifted.
const markerTTL = 7 * 24 * time.Hour

// NeedsCheck reports whether the suite should run for this data dir.
func NeedsCheck(dataDir string) bool {
	info, err := os.Stat(filepath.Join(dataDir, markerFile))
	if err != nil {
		return true
	}
	return time.Since(info.ModTime()) > markerTTL
}

// MarkPassed records a successful run.
func MarkPassed(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dataDir, markerFile)
	if err := os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)+"\n"), 0o644); err != nil {
		return err
	}
	now := time.Now()
	return os.Chtimes(path, now, now)
}

// ClearMarker forces the suite to run on the next start.
func ClearMarker(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, markerFile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
