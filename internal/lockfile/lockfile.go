// Package lockfile keeps two Forge processes from sharing one state
// directory. The SQLite store and the whatsmeow device database both live
// there and neither tolerates a second writer.
//
// The lock is an flock on a file inside the directory, so the kernel drops
// it when the process dies, however it dies.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// FileName is the lock file created inside the state directory.
const FileName = "forge.lock"

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the lock for stateDir, creating the directory when needed.
// A held lock yields a *HeldError describing the owner.
func Acquire(stateDir string) (*Lock, error) {
	path := filepath.Join(stateDir, FileName)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory %s: %w", stateDir, err)
	}

	// O_TRUNC would wipe the owner's pid before we know whether we win.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		owner := describeOwner(path)
		slog.Error("lockfile.Acquire: state directory in use", "lock_path", path, "owner", owner)
		return nil, &HeldError{Path: path, Owner: owner, Cause: err}
	}

	if err := writePID(f); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("write lock file %s: %w", path, err)
	}

	slog.Info("lockfile.Acquire: state directory locked", "lock_path", path, "pid", os.Getpid())
	return &Lock{file: f, path: path}, nil
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt([]byte(fmt.Sprintf("pid=%d\n", os.Getpid())), 0); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		slog.Warn("lockfile.Acquire: sync failed", "error", err, "lock_path", f.Name())
	}
	return nil
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// Release drops the lock and removes the file. Calling it again is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("Lock.Release: unlock failed", "error", err, "lock_path", l.path)
	}
	closeErr := l.file.Close()
	l.file = nil
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lock.Release: remove failed", "error", err, "lock_path", l.path)
	}
	slog.Debug("Lock.Release: state directory unlocked", "lock_path", l.path)
	return closeErr
}

// HeldError reports that another process owns the state directory.
type HeldError struct {
	Path  string
	Owner string
	Cause error
}

func (e *HeldError) Error() string {
	msg := "another forge process is using this state directory (lock " + e.Path
	if e.Owner != "" {
		msg += ", held by " + e.Owner
	}
	return msg + "); stop it first, or remove the lock file if that process is gone"
}

func (e *HeldError) Unwrap() error { return e.Cause }

// describeOwner reads the pid the owner wrote and says whether it still runs.
func describeOwner(path string) string {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return ""
	}
	pid := parsePID(string(data))
	if pid <= 0 {
		return strings.TrimSpace(string(data))
	}
	if processAlive(pid) {
		return fmt.Sprintf("pid %d", pid)
	}
	return fmt.Sprintf("pid %d, not running", pid)
}

// parsePID extracts N from a "pid=N" line, or returns 0.
func parsePID(content string) int {
	for _, line := range strings.Split(content, "\n") {
		v, ok := strings.CutPrefix(strings.TrimSpace(line), "pid=")
		if !ok {
			continue
		}
		if pid, err := strconv.Atoi(v); err == nil {
			return pid
		}
	}
	return 0
}

// processAlive sends signal 0, which checks existence without delivering.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
