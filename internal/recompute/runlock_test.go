//go:build !windows

package recompute

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestRunLockExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.lock")

	first := NewRunLock(path)
	ok, err := first.TryLock()
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if !ok {
		t.Fatal("first lock not acquired")
	}

	if owner := first.Owner(); owner != strconv.Itoa(os.Getpid()) {
		t.Errorf("owner = %q, want this process's pid", owner)
	}

	second := NewRunLock(path)
	ok, err = second.TryLock()
	if err != nil {
		t.Fatalf("second lock: %v", err)
	}
	if ok {
		second.Unlock()
		t.Fatal("second lock acquired while first held")
	}
	if owner := second.Owner(); owner != strconv.Itoa(os.Getpid()) {
		t.Errorf("loser sees owner %q, want the holder's pid", owner)
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("lock file left behind after unlock")
	}

	ok, err = second.TryLock()
	if err != nil || !ok {
		t.Fatalf("relock after release = (%v, %v), want acquired", ok, err)
	}
	second.Unlock()
}
