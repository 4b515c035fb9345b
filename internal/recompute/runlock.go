//go:build !windows

package recompute

import (
	"os"
	"strconv"
	"strings"
	"syscall"
)

// RunLock guards against two recompute daemons folding the same database
// concurrently, via a non-blocking flock(2). The holder's pid is written
// into the lock file so a losing process can name its competitor.
type RunLock struct {
	path string
	file *os.File
}

// NewRunLock creates a RunLock for the given path.
func NewRunLock(path string) *RunLock {
	return &RunLock{path: path}
}

// TryLock attempts to acquire the lock without blocking. Returns false
// when another process holds it.
func (l *RunLock) TryLock() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return false, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			return false, nil
		}
		return false, err
	}
	if err := f.Truncate(0); err == nil {
		f.WriteString(strconv.Itoa(os.Getpid()))
		f.Sync()
	}
	l.file = f
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
	if l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		l.file.Close()
		return err
	}
	name := l.file.Name()
	l.file.Close()
	l.file = nil
	os.Remove(name)
	return nil
}
