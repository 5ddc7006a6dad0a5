// Package pidfile prevents duplicate daemon instances via a PID file.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDFile is an acquired PID file owned by the current process.
type PIDFile struct {
	path string
	pid  int
}

// New acquires the PID file at path. Fails when another live process
// already holds it; stale files left by dead processes are replaced.
func New(path string) (*PIDFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create PID directory: %w", err)
	}

	if data, err := os.ReadFile(path); err == nil {
		if existingPID, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
			if isProcessRunning(existingPID) {
				return nil, fmt.Errorf("another instance is already running (PID %d)", existingPID)
			}
			if err := os.Remove(path); err != nil {
				return nil, fmt.Errorf("failed to remove stale PID file: %w", err)
			}
		}
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", pid)), 0644); err != nil {
		return nil, fmt.Errorf("failed to write PID file: %w", err)
	}

	return &PIDFile{path: path, pid: pid}, nil
}

// Remove deletes the PID file if it still belongs to this process.
func (p *PIDFile) Remove() error {
	if p == nil {
		return nil
	}
	if data, err := os.ReadFile(p.path); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && pid == p.pid {
			return os.Remove(p.path)
		}
	}
	return nil
}

// isProcessRunning probes the PID with signal 0.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix FindProcess always succeeds, so probe with a null signal.
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if err == syscall.EPERM {
		// Exists but owned by someone else.
		return true
	}
	return false
}

// Path returns the standard PID file location for an application name.
func Path(appName string) string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "scribed", appName+".pid")
}
