package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFileWriteReadRemove(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "d", PIDFileName))

	require.NoError(t, pf.Write())

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, pf.Remove())
	require.NoError(t, pf.Remove(), "remove is idempotent")
}

func TestPIDFileReadMissing(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), PIDFileName))

	_, err := pf.Read()
	assert.ErrorIs(t, err, ErrPIDFileNotFound)
}

func TestPIDFileReadGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), PIDFileName)
	require.NoError(t, os.WriteFile(path, []byte("not a pid"), 0o644))

	_, err := NewPIDFile(path).Read()
	assert.Error(t, err)
}

func TestPIDFileIsRunning(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), PIDFileName))

	assert.False(t, pf.IsRunning(), "no pid file means not running")

	require.NoError(t, pf.Write())
	assert.True(t, pf.IsRunning(), "our own pid is alive")
}
