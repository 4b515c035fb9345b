//go:build windows

package recompute

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

// RunLock guards against two recompute daemons folding the same database
// concurrently. On Windows it atomically creates the lock file; creation
// fails while another process owns it. The holder's pid is written into
// the file so a losing process can name its competitor.
type RunLock struct {
	path   string
	locked bool
}

// NewRunLock creates a RunLock for the given path.
func NewRunLock(path string) *RunLock {
	return &RunLock{path: path}
}

// TryLock attempts to acquire the lock without blocking. Returns false
// when another process holds it.
func (l *RunLock) TryLock() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, err
	}
	f.WriteString(strconv.Itoa(os.Getpid()))
	f.Close()
	l.locked = true
	return true, nil
}

// Owner returns the pid recorded by the current holder, or "" when the
// lock file is absent or empty.
func (l *RunLock) Owner() string {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Unlock releases the lock and removes the lock file.
func (l *RunLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	return os.Remove(l.path)
}
