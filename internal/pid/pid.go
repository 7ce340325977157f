package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/co2scale/internal/errors"
)

const (
	pidFile = "co2scale.pid"
)

// Path returns configured, or the default PID file in the temp directory.
func Path(configured string) string {
	if configured = strings.TrimSpace(configured); configured != "" {
		return configured
	}
	return filepath.Join(os.TempDir(), pidFile)
}

// Write writes the current process ID to path. A file left by a process
// that is no longer running is replaced.
func Write(path string) error {
	errFactory := errors.New()
	pid := os.Getpid()

	if _, err := os.Stat(path); err == nil {
		// PID file exists, check if the process is running
		bytes, err := os.ReadFile(path)
		if err != nil {
			return errFactory.Wrap(errors.ErrInternal, err)
		}

		other, err := strconv.Atoi(strings.TrimSpace(string(bytes)))
		if err != nil {
			return errFactory.Wrap(errors.ErrInternal, err)
		}

		process, err := os.FindProcess(other)
		if err != nil {
			return errFactory.Wrap(errors.ErrInternal, err)
		}

		if err := process.Signal(syscall.Signal(0)); err == nil {
			return errFactory.WithData(errors.ErrAlreadyRunning, other)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the PID file at path.
func Remove(path string) error {
	errFactory := errors.New()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	if err := os.Remove(path); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}
