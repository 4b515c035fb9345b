package classify

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/splitclock/splitclock/internal/store"
)

// Markers that identify a project root. Matching walks upward from the
// working directory and the innermost marker wins, which in a monorepo
// means a leaf marker overrides an ancestor's VCS root.
var projectMarkers = []string{".git", "go.mod", "package.json", "Cargo.toml", "pyproject.toml"}

// ProjectRoot resolves the project root for a working directory by walking
// toward the filesystem root and stopping at the first directory carrying
// a marker. Returns path itself when nothing matches.
func ProjectRoot(path string) string {
	dir := filepath.Clean(path)
	for {
		for _, marker := range projectMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return filepath.Clean(path)
		}
		dir = parent
	}
}

// AutoAssign runs the conservative automatic rule for freshly ingested
// sessions: a session is auto-assigned only when its project path maps to
// exactly one prior classified stream. Anything ambiguous stays
// unclassified for later explicit classification, and this path never
// creates a stream. Returns the number of sessions assigned.
func AutoAssign(st *store.Store, sessionIDs []string) (int, error) {
	assigned := 0
	for _, sid := range sessionIDs {
		already, err := st.SessionHasAssignment(sid)
		if err != nil {
			return assigned, err
		}
		if already {
			continue
		}
		session, err := st.GetAgentSession(sid)
		if err != nil {
			return assigned, err
		}
		if session == nil || session.ProjectPath == "" {
			continue
		}
		candidates, err := st.StreamsForProjectPath(session.ProjectPath)
		if err != nil {
			return assigned, err
		}
		switch len(candidates) {
		case 0:
			continue
		case 1:
			tx, err := st.Begin()
			if err != nil {
				return assigned, err
			}
			if _, _, err := st.AssignBySession(tx, sid, candidates[0]); err != nil {
				tx.Rollback()
				return assigned, err
			}
			if err := st.TouchStream(tx, candidates[0]); err != nil {
				tx.Rollback()
				return assigned, err
			}
			if err := tx.Commit(); err != nil {
				return assigned, err
			}
			assigned++
		default:
			slog.Debug("auto-assignment ambiguous, leaving session unclassified",
				"session_id", sid, "project_path", session.ProjectPath, "candidates", len(candidates))
		}
	}
	return assigned, nil
}
