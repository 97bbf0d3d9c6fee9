package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default directory for log files,
// ~/.brainmcp/logs, falling back to a temp directory when the home
// directory cannot be resolved.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "brainmcp", "logs")
	}
	return filepath.Join(home, ".brainmcp", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "brainmcp.log")
}

// DataDirLogPath returns the log file path inside a project data
// directory. The daemon prefers this so that logs live next to the
// index they describe.
func DataDirLogPath(dataDir string) string {
	return filepath.Join(dataDir, "logs", "brainmcp.log")
}

// EnsureLogDir creates the directory for the given log path.
func EnsureLogDir(logPath string) error {
	return os.MkdirAll(filepath.Dir(logPath), 0o755)
}
