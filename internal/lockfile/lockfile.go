// Package lockfile guards a state directory so that only one kwlq server
// writes to a local SQLite database at a time.
//
// The lock is an flock on a file inside the directory, so the kernel releases
// it when the holding process dies.
package lockfile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the name of the lock file created in the state directory.
const LockFileName = "kwlq.lock"

// Owner describes the process holding a lock.
type Owner struct {
	PID       int
	Host      string
	StartedAt time.Time
}

func (o Owner) String() string {
	if o.PID == 0 {
		return "unknown owner"
	}
	state := "not running, stale lock"
	if processAlive(o.PID) {
		state = "running"
	}
	s := fmt.Sprintf("PID %d (%s)", o.PID, state)
	if o.Host != "" {
		s += " on " + o.Host
	}
	if !o.StartedAt.IsZero() {
		s += " since " + o.StartedAt.Format(time.RFC3339)
	}
	return s
}

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the exclusive lock on stateDir, creating the directory if needed.
// It fails immediately with a *LockError if another process holds it.
func Acquire(stateDir string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory %s: %w", stateDir, err)
	}
	path := filepath.Join(stateDir, LockFileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		owner := readOwner(f)
		f.Close()
		slog.Error("Acquire: state directory is locked", "path", path, "owner", owner.String())
		return nil, &LockError{Path: path, Owner: owner, Cause: err}
	}

	if err := writeOwner(f); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("write lock file %s: %w", path, err)
	}
	slog.Info("Acquire: state directory locked", "path", path, "pid", os.Getpid())
	return &Lock{file: f, path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release unlocks and removes the lock file. Calling it more than once is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove while still holding the lock so no other process locks a file we then delete.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lock.Release: remove lock file", "path", l.path, "error", err)
	}
	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	slog.Info("Lock.Release: state directory unlocked", "path", l.path)
	if unlockErr != nil {
		return fmt.Errorf("unlock %s: %w", l.path, unlockErr)
	}
	return closeErr
}

// LockError is returned when another process holds the lock.
type LockError struct {
	Path  string
	Owner Owner
	Cause error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("state directory is locked by another kwlq process (%s); lock file %s. "+
		"Remove it only if that process is gone", e.Owner, e.Path)
}

func (e *LockError) Unwrap() error { return e.Cause }

func writeOwner(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	host, _ := os.Hostname()
	_, err := fmt.Fprintf(f, "pid=%d\nhost=%s\nstarted_at=%s\n", os.Getpid(), host, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}
	return f.Sync()
}

func readOwner(f *os.File) Owner {
	if _, err := f.Seek(0, 0); err != nil {
		return Owner{}
	}
	return parseOwner(bufio.NewScanner(f))
}

func parseOwner(sc *bufio.Scanner) Owner {
	var o Owner
	for sc.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			o.PID, _ = strconv.Atoi(val)
		case "host":
			o.Host = val
		case "started_at":
			o.StartedAt, _ = time.Parse(time.RFC3339, val)
		}
	}
	return o
}

// processAlive sends signal 0, which only checks that pid exists.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
