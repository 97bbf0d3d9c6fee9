package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secondbrain-labs/brainmcp/internal/config"
)

func TestGatherStatus_ColdDirectory(t *testing.T) {
	// Given: a docs root that has never been indexed
	tmpDir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Docs.Root = tmpDir
	cfg.Embeddings.Provider = "static" // no network probes

	// When: gathering status
	info := gatherStatus(context.Background(), cfg)

	// Then: everything reports empty and stopped
	assert.Equal(t, tmpDir, info.DocsDir)
	assert.Equal(t, "stopped", info.DaemonStatus)
	assert.Equal(t, "stopped", info.WatcherStatus)
	assert.Equal(t, "offline", info.EmbedderStatus)
	assert.Equal(t, "static", info.EmbedderType)
	assert.Zero(t, info.TotalFiles)
	assert.Zero(t, info.TotalSize)
}

func TestFileSize(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "f")
	require.NoError(t, os.WriteFile(path, []byte("12345"), 0o644))

	assert.Equal(t, int64(5), fileSize(path))
	assert.Zero(t, fileSize(filepath.Join(tmpDir, "missing")))
}

func TestDirSize(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "a"), []byte("123"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "sub", "b"), []byte("4567"), 0o644))

	assert.Equal(t, int64(7), dirSize(tmpDir))
	assert.Zero(t, dirSize(filepath.Join(tmpDir, "missing")))
}
