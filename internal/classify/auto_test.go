package classify

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProjectRootInnermostMarkerWins(t *testing.T) {
	root := t.TempDir()
	mono := filepath.Join(root, "mono")
	leaf := filepath.Join(mono, "services", "api")
	deep := filepath.Join(leaf, "internal", "handlers")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}
	// VCS root at the monorepo top, a module marker on the leaf service.
	if err := os.Mkdir(filepath.Join(mono, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(leaf, "go.mod"), []byte("module api\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := ProjectRoot(deep); got != leaf {
		t.Errorf("ProjectRoot(%s) = %s, want %s", deep, got, leaf)
	}
	if got := ProjectRoot(filepath.Join(mono, "docs")); got != mono {
		t.Errorf("ProjectRoot under mono = %s, want %s", got, mono)
	}
}

func TestProjectRootNoMarker(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plain")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if got := ProjectRoot(dir); got != dir {
		t.Errorf("ProjectRoot(%s) = %s, want the path itself", dir, got)
	}
}
