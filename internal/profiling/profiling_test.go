package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Enabled(t *testing.T) {
	assert.False(t, Options{}.Enabled())
	assert.True(t, Options{CPUPath: "cpu.out"}.Enabled())
	assert.True(t, Options{HeapPath: "heap.out"}.Enabled())
}

func TestSession_CPUProfileWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpu.prof")

	s, err := Start(Options{CPUPath: path})
	require.NoError(t, err)
	require.NoError(t, s.Stop())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSession_HeapSnapshotOnStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.prof")

	s, err := Start(Options{HeapPath: path})
	require.NoError(t, err)
	require.NoError(t, s.Stop())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSession_TraceWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.out")

	s, err := Start(Options{TracePath: path})
	require.NoError(t, err)
	require.NoError(t, s.Stop())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestStart_BadPathFails(t *testing.T) {
	_, err := Start(Options{CPUPath: filepath.Join(t.TempDir(), "missing", "cpu.prof")})
	assert.Error(t, err)
}
