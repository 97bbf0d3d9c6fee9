package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestInitCmd_WritesProjectConfig(t *testing.T) {
	// Given: an empty documents directory
	tmpDir := t.TempDir()

	cmd := newInitCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{tmpDir, "--skip-ollama"})

	// When: running init
	err := cmd.Execute()

	// Then: a parseable .brainmcp.yaml exists
	require.NoError(t, err)
	cfgPath := filepath.Join(tmpDir, ".brainmcp.yaml")
	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal(data, &parsed))
	assert.Contains(t, parsed, "search")
	assert.Contains(t, parsed, "chunking")
	assert.Contains(t, buf.String(), "Wrote")
}

func TestInitCmd_DoesNotClobberWithoutForce(t *testing.T) {
	// Given: a directory that already has a config
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, ".brainmcp.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("version: 1\n"), 0o644))

	cmd := newInitCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir, "--skip-ollama"})

	// When: running init without --force
	err := cmd.Execute()

	// Then: the existing file survives untouched
	require.NoError(t, err)
	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))
	assert.Contains(t, buf.String(), "already exists")
}

func TestInitCmd_ForceOverwrites(t *testing.T) {
	// Given: a directory with a stale config
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, ".brainmcp.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("version: 1\n"), 0o644))

	cmd := newInitCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir, "--skip-ollama", "--force"})

	// When: running init with --force
	err := cmd.Execute()

	// Then: the template replaces it
	require.NoError(t, err)
	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "vector_weight")
}

func TestInitCmd_RejectsMissingDirectory(t *testing.T) {
	// Given: a path that does not exist
	cmd := newInitCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"/nonexistent/path/nowhere", "--skip-ollama"})

	// When: running init
	err := cmd.Execute()

	// Then: it should fail
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}
