// Package classify assigns events to streams: by session, by cwd pattern,
// and (during ingestion) by a conservatively-scoped automatic rule.
package classify

import (
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/splitclock/splitclock/internal/store"
)

// Document is the programmatic classification apply format: streams to
// create or ensure, plus session- and pattern-scoped assignments.
type Document struct {
	Streams         []StreamSpec        `yaml:"streams"`
	AssignBySession []SessionAssignment `yaml:"assign_by_session"`
	AssignByPattern []PatternAssignment `yaml:"assign_by_pattern"`
}

// StreamSpec names a stream to create (or ensure) with its tags.
type StreamSpec struct {
	Name string   `yaml:"name"`
	Tags []string `yaml:"tags"`
}

// SessionAssignment routes a whole session to one stream. Because it
// targets every event carrying the session id, it cannot split a session
// across streams.
type SessionAssignment struct {
	SessionID string `yaml:"session_id"`
	Stream    string `yaml:"stream"`
}

// PatternAssignment routes events whose cwd matches a SQL LIKE pattern,
// optionally bounded to a time window. Used for focus/scroll/AFK events
// that have no session grouping.
type PatternAssignment struct {
	CWDLike string     `yaml:"cwd_like"`
	Start   *time.Time `yaml:"start"`
	End     *time.Time `yaml:"end"`
	Stream  string     `yaml:"stream"`
}

// Result summarizes one apply: what was created, assigned, and how many
// user-corrected events were left untouched.
type Result struct {
	StreamsCreated int
	Assigned       int
	Skipped        int
}

// Parse decodes an apply document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse classification document: %w", err)
	}
	for i, sp := range doc.Streams {
		if sp.Name == "" {
			return nil, fmt.Errorf("streams[%d]: missing name", i)
		}
	}
	return &doc, nil
}

// Apply runs the document atomically. An assignment referencing a stream
// name that neither exists nor appears in the document's streams list
// fails the whole operation; nothing is partially assigned. Events with a
// user assignment are silently skipped and counted. Each assignment is
// independently idempotent, so re-applying a document is a no-op mapping.
func Apply(st *store.Store, doc *Document) (*Result, error) {
	tx, err := st.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res := &Result{}

	// Ensure declared streams first so assignments may reference them.
	streamIDs := map[string]string{}
	for _, sp := range doc.Streams {
		existing, err := st.GetStreamByName(tx, sp.Name)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			res.StreamsCreated++
		}
		created, err := st.EnsureStream(tx, sp.Name, sp.Tags)
		if err != nil {
			return nil, err
		}
		streamIDs[sp.Name] = created.ID
	}

	resolve := func(name string) (string, error) {
		if id, ok := streamIDs[name]; ok {
			return id, nil
		}
		existing, err := st.GetStreamByName(tx, name)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return "", fmt.Errorf("assignment references unknown stream %q", name)
		}
		streamIDs[name] = existing.ID
		return existing.ID, nil
	}

	touched := map[string]struct{}{}

	for _, a := range doc.AssignBySession {
		id, err := resolve(a.Stream)
		if err != nil {
			return nil, err
		}
		assigned, skipped, err := st.AssignBySession(tx, a.SessionID, id)
		if err != nil {
			return nil, err
		}
		res.Assigned += assigned
		res.Skipped += skipped
		touched[id] = struct{}{}
	}

	for _, a := range doc.AssignByPattern {
		id, err := resolve(a.Stream)
		if err != nil {
			return nil, err
		}
		assigned, skipped, err := st.AssignByPattern(tx, a.CWDLike, a.Start, a.End, id)
		if err != nil {
			return nil, err
		}
		res.Assigned += assigned
		res.Skipped += skipped
		touched[id] = struct{}{}
	}

	for id := range touched {
		if err := st.TouchStream(tx, id); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	slog.Info("classification applied",
		"streams_created", res.StreamsCreated,
		"assigned", res.Assigned,
		"skipped_user", res.Skipped)
	return res, nil
}

// SplitWarnings runs the split-session validation: one warning per session
// whose events reference more than one stream. Advisory, never fatal, and
// recomputed on every recompute pass since ad hoc assignment tooling can
// violate the invariant.
func SplitWarnings(st *store.Store) ([]string, error) {
	splits, err := st.SplitSessions()
	if err != nil {
		return nil, err
	}
	var warnings []string
	for _, sp := range splits {
		w := fmt.Sprintf("session %s is split across streams %v", sp.SessionID, sp.StreamIDs)
		warnings = append(warnings, w)
		slog.Warn("split session detected", "session_id", sp.SessionID, "streams", sp.StreamIDs)
	}
	return warnings, nil
}
