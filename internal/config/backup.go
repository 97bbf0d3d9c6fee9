package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// keepBackups is how many old copies of .brainmcp.yaml survive a
// rewrite.
const keepBackups = 3

const backupSuffix = ".bak"

// BackupConfigFile copies the config aside under a timestamped name
// before it gets overwritten, pruning copies beyond keepBackups. A
// missing config is not an error; the returned path is empty.
func BackupConfigFile(configPath string) (string, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read config for backup: %w", err)
	}

	backupPath := configPath + backupSuffix + "." + time.Now().Format("20060102-150405")
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}

	// Pruning is best effort once the copy exists.
	if old, err := ListConfigBackups(configPath); err == nil && len(old) > keepBackups {
		for _, stale := range old[keepBackups:] {
			_ = os.Remove(stale)
		}
	}
	return backupPath, nil
}

// ListConfigBackups returns the backup copies of configPath, newest
// first.
func ListConfigBackups(configPath string) ([]string, error) {
	dir := filepath.Dir(configPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list config directory: %w", err)
	}

	prefix := filepath.Base(configPath) + backupSuffix + "."
	var found []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			found = append(found, filepath.Join(dir, e.Name()))
		}
	}

	// The timestamp in the name sorts the same as mtime and survives
	// copies that disturb file times.
	sort.Sort(sort.Reverse(sort.StringSlice(found)))
	return found, nil
}
