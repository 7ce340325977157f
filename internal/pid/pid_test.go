package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"codeberg.org/mutker/co2scale/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPath(t *testing.T) {
	assert.Equal(t, filepath.Join(os.TempDir(), "co2scale.pid"), Path(""))
	assert.Equal(t, "/run/co2scale.pid", Path(" /run/co2scale.pid "))
}

func TestWriteAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "co2scale.pid")

	require.NoError(t, Write(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	require.NoError(t, Remove(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, Remove(path), "removing a missing file is not an error")
}

func TestWriteRefusesRunningProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "co2scale.pid")
	require.NoError(t, Write(path))

	err := Write(path)
	require.Error(t, err)

	code, ok := errors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrAlreadyRunning, code)
}

func TestWriteReplacesStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "co2scale.pid")
	// Above the kernel's pid_max, so no such process exists.
	require.NoError(t, os.WriteFile(path, []byte("999999999"), 0o600))

	require.NoError(t, Write(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}

func TestWriteRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "co2scale.pid")
	require.NoError(t, os.WriteFile(path, []byte("not a pid"), 0o600))

	assert.Error(t, Write(path))
}
