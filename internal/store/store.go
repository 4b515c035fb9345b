// Package store provides the embedded SQLite persistence for events,
// streams, and agent sessions. The event table's primary key is the
// deterministic event id, which enforces idempotent ingestion.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/splitclock/splitclock/internal/event"

	_ "modernc.org/sqlite"
)

// Store wraps the shared SQLite handle.
type Store struct {
	db *sql.DB
}

// dbtx is the common surface of *sql.DB and *sql.Tx, so assignment
// helpers can run inside a caller-owned transaction.
type dbtx interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Open opens (creating if needed) the database at dbPath and applies the
// schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open store db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// Begin starts a transaction for callers that need multi-statement
// atomicity (classification apply, recompute materialization).
func (s *Store) Begin() (*sql.Tx, error) { return s.db.Begin() }

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// InsertEvents inserts a batch idempotently. Events whose deterministic id
// already exists are silently ignored. Returns the number actually inserted.
func (s *Store) InsertEvents(events []event.Event) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
	INSERT OR IGNORE INTO events (id, timestamp, event_type, source, machine_id, cwd, session_id, payload)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range events {
		payload := string(e.Payload)
		if payload == "" {
			payload = "{}"
		}
		res, err := stmt.Exec(e.ID, e.Timestamp.UTC(), e.Type, e.Source, e.MachineID, e.CWD, e.SessionID, payload)
		if err != nil {
			return 0, fmt.Errorf("insert event %s: %w", e.ID, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

const eventColumns = `id, timestamp, event_type, source, machine_id, cwd, session_id, stream_id, assignment_source, payload`

// Range returns events in [start, end) ordered by timestamp with ties
// broken by the fixed event priority.
func (s *Store) Range(start, end time.Time) ([]event.Event, error) {
	return s.queryEvents(`SELECT `+eventColumns+` FROM events WHERE timestamp >= ? AND timestamp < ? ORDER BY timestamp`, start.UTC(), end.UTC())
}

// EventsUntil returns all events strictly before end, ordered. Used to
// seed the fold state for a bounded allocation run.
func (s *Store) EventsUntil(end time.Time) ([]event.Event, error) {
	return s.queryEvents(`SELECT `+eventColumns+` FROM events WHERE timestamp < ? ORDER BY timestamp`, end.UTC())
}

// EventsForSession returns every event carrying the given session id.
func (s *Store) EventsForSession(sessionID string) ([]event.Event, error) {
	return s.queryEvents(`SELECT `+eventColumns+` FROM events WHERE session_id = ? ORDER BY timestamp`, sessionID)
}

func (s *Store) queryEvents(query string, args ...any) ([]event.Event, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var e event.Event
		var streamID sql.NullString
		var payload string
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Type, &e.Source, &e.MachineID, &e.CWD, &e.SessionID, &streamID, &e.AssignmentSource, &payload); err != nil {
			return nil, err
		}
		e.Timestamp = e.Timestamp.UTC()
		e.StreamID = streamID.String
		e.Payload = json.RawMessage(payload)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	event.Sort(events)
	return events, nil
}

// AssignEvent sets the stream of a single event with explicit provenance.
// This is the user-correction write path; it may overwrite anything.
func (s *Store) AssignEvent(eventID, streamID, source string) error {
	res, err := s.db.Exec(`UPDATE events SET stream_id = ?, assignment_source = ? WHERE id = ?`, nullable(streamID), source, eventID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %s not found", eventID)
	}
	return nil
}

// AssignBySession assigns every event of a session to a stream, skipping
// events already corrected by the user. Runs on the given transaction.
// Returns (assigned, skipped).
func (s *Store) AssignBySession(x dbtx, sessionID, streamID string) (int, int, error) {
	var skipped int
	if err := x.QueryRow(`SELECT COUNT(*) FROM events WHERE session_id = ? AND assignment_source = ?`, sessionID, event.AssignUser).Scan(&skipped); err != nil {
		return 0, 0, err
	}
	res, err := x.Exec(`
	UPDATE events SET stream_id = ?, assignment_source = ?
	WHERE session_id = ? AND assignment_source != ?`,
		streamID, event.AssignInferred, sessionID, event.AssignUser)
	if err != nil {
		return 0, 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), skipped, nil
}

// AssignByPattern assigns events whose cwd matches a SQL LIKE pattern,
// optionally bounded to [start, end), skipping user-corrected events.
func (s *Store) AssignByPattern(x dbtx, cwdLike string, start, end *time.Time, streamID string) (int, int, error) {
	where := ` WHERE cwd LIKE ?`
	countArgs := []any{cwdLike}
	if start != nil {
		where += ` AND timestamp >= ?`
		countArgs = append(countArgs, start.UTC())
	}
	if end != nil {
		where += ` AND timestamp < ?`
		countArgs = append(countArgs, end.UTC())
	}

	var skipped int
	if err := x.QueryRow(`SELECT COUNT(*) FROM events`+where+` AND assignment_source = ?`, append(countArgs, event.AssignUser)...).Scan(&skipped); err != nil {
		return 0, 0, err
	}
	args := append([]any{streamID, event.AssignInferred}, countArgs...)
	res, err := x.Exec(`UPDATE events SET stream_id = ?, assignment_source = ?`+where+` AND assignment_source != ?`, append(args, event.AssignUser)...)
	if err != nil {
		return 0, 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), skipped, nil
}

// SplitSessions finds sessions whose classified events reference more than
// one distinct stream.
func (s *Store) SplitSessions() ([]SplitSession, error) {
	rows, err := s.db.Query(`
	SELECT session_id, stream_id FROM events
	WHERE session_id != '' AND stream_id IS NOT NULL
	GROUP BY session_id, stream_id
	ORDER BY session_id, stream_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bySession := map[string][]string{}
	var order []string
	for rows.Next() {
		var sid, streamID string
		if err := rows.Scan(&sid, &streamID); err != nil {
			return nil, err
		}
		if _, seen := bySession[sid]; !seen {
			order = append(order, sid)
		}
		bySession[sid] = append(bySession[sid], streamID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var splits []SplitSession
	for _, sid := range order {
		if streams := bySession[sid]; len(streams) > 1 {
			splits = append(splits, SplitSession{SessionID: sid, StreamIDs: streams})
		}
	}
	return splits, nil
}

// ---------------------------------------------------------------------------
// Streams
// ---------------------------------------------------------------------------

// EnsureStream returns the stream with the given name, creating it (with a
// fresh id and the given tags) when absent. Stream creation is always an
// explicit act; nothing in ingestion calls this.
func (s *Store) EnsureStream(x dbtx, name string, tags []string) (*Stream, error) {
	existing, err := getStreamBy(x, "name", name)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}
	tagsJSON, _ := json.Marshal(tags)
	if tags == nil {
		tagsJSON = []byte("[]")
	}
	id := uuid.NewString()
	if _, err := x.Exec(`INSERT INTO streams (id, name, tags) VALUES (?, ?, ?)`, id, name, string(tagsJSON)); err != nil {
		return nil, fmt.Errorf("create stream %q: %w", name, err)
	}
	return getStreamBy(x, "id", id)
}

// GetStream returns a stream by id.
func (s *Store) GetStream(id string) (*Stream, error) {
	st, err := getStreamBy(s.db, "id", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("stream %s not found", id)
	}
	return st, err
}

// GetStreamByName returns a stream by name, or (nil, nil) when absent.
func (s *Store) GetStreamByName(x dbtx, name string) (*Stream, error) {
	st, err := getStreamBy(x, "name", name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return st, err
}

const streamColumns = `id, name, tags, time_direct_ms, time_delegated_ms, first_event_at, last_event_at, needs_recompute, computed_from, computed_until, created_at`

func getStreamBy(x dbtx, column, value string) (*Stream, error) {
	row := x.QueryRow(`SELECT `+streamColumns+` FROM streams WHERE `+column+` = ?`, value)
	return scanStream(row.Scan)
}

func scanStream(scan func(...any) error) (*Stream, error) {
	var st Stream
	var tags string
	var first, last, from, until sql.NullTime
	if err := scan(&st.ID, &st.Name, &tags, &st.TimeDirectMS, &st.TimeDelegatedMS, &first, &last, &st.NeedsRecompute, &from, &until, &st.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &st.Tags); err != nil {
		st.Tags = nil
	}
	st.FirstEventAt = timePtr(first)
	st.LastEventAt = timePtr(last)
	st.ComputedFrom = timePtr(from)
	st.ComputedUntil = timePtr(until)
	return &st, nil
}

// ListStreams returns all streams ordered by name.
func (s *Store) ListStreams() ([]Stream, error) {
	rows, err := s.db.Query(`SELECT ` + streamColumns + ` FROM streams ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var streams []Stream
	for rows.Next() {
		st, err := scanStream(rows.Scan)
		if err != nil {
			return nil, err
		}
		streams = append(streams, *st)
	}
	return streams, rows.Err()
}

// StreamsNeedingRecompute returns the ids of streams flagged for lazy
// recomputation.
func (s *Store) StreamsNeedingRecompute() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM streams WHERE needs_recompute = 1 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TouchStream refreshes a stream's event bounds from the event table and
// flags it for recomputation. Called after any assignment that moved
// events into or out of the stream.
func (s *Store) TouchStream(x dbtx, streamID string) error {
	_, err := x.Exec(`
	UPDATE streams SET
		first_event_at = (SELECT MIN(timestamp) FROM events WHERE stream_id = ?),
		last_event_at = (SELECT MAX(timestamp) FROM events WHERE stream_id = ?),
		needs_recompute = 1
	WHERE id = ?`, streamID, streamID, streamID)
	return err
}

// MaterializeTotals writes recomputed totals for the target streams in one
// transaction, recording the covered range and clearing the recompute flag.
// Streams in targets with no entry in totals genuinely accrued zero time.
func (s *Store) MaterializeTotals(targets []string, totals map[string]StreamTotals, from, until time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range targets {
		t := totals[id]
		if _, err := tx.Exec(`
		UPDATE streams SET
			time_direct_ms = ?, time_delegated_ms = ?,
			computed_from = ?, computed_until = ?, needs_recompute = 0
		WHERE id = ?`, t.DirectMS, t.DelegatedMS, from.UTC(), until.UTC(), id); err != nil {
			return fmt.Errorf("materialize stream %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Agent sessions
// ---------------------------------------------------------------------------

// UpsertAgentSession inserts or replaces a session record from the session
// index collaborator.
func (s *Store) UpsertAgentSession(as *AgentSession) error {
	_, err := s.db.Exec(`
	INSERT INTO agent_sessions (session_id, parent_session_id, session_type, project_path, start_time, end_time, tool_call_count, user_prompt_count)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		parent_session_id = excluded.parent_session_id,
		session_type = excluded.session_type,
		project_path = excluded.project_path,
		start_time = excluded.start_time,
		end_time = excluded.end_time,
		tool_call_count = excluded.tool_call_count,
		user_prompt_count = excluded.user_prompt_count`,
		as.SessionID, as.ParentSessionID, as.SessionType, as.ProjectPath,
		as.StartTime.UTC(), nullableTime(as.EndTime), as.ToolCallCount, as.UserPromptCount)
	return err
}

// AgentSessions returns all known session records keyed by session id.
func (s *Store) AgentSessions() (map[string]AgentSession, error) {
	rows, err := s.db.Query(`SELECT session_id, parent_session_id, session_type, project_path, start_time, end_time, tool_call_count, user_prompt_count FROM agent_sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := map[string]AgentSession{}
	for rows.Next() {
		var as AgentSession
		var end sql.NullTime
		if err := rows.Scan(&as.SessionID, &as.ParentSessionID, &as.SessionType, &as.ProjectPath, &as.StartTime, &end, &as.ToolCallCount, &as.UserPromptCount); err != nil {
			return nil, err
		}
		as.StartTime = as.StartTime.UTC()
		as.EndTime = timePtr(end)
		sessions[as.SessionID] = as
	}
	return sessions, rows.Err()
}

// GetAgentSession returns one session record, or (nil, nil) when unknown.
func (s *Store) GetAgentSession(sessionID string) (*AgentSession, error) {
	var as AgentSession
	var end sql.NullTime
	err := s.db.QueryRow(`SELECT session_id, parent_session_id, session_type, project_path, start_time, end_time, tool_call_count, user_prompt_count FROM agent_sessions WHERE session_id = ?`, sessionID).
		Scan(&as.SessionID, &as.ParentSessionID, &as.SessionType, &as.ProjectPath, &as.StartTime, &end, &as.ToolCallCount, &as.UserPromptCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	as.StartTime = as.StartTime.UTC()
	as.EndTime = timePtr(end)
	return &as, nil
}

// SessionHasAssignment reports whether any event of the session is already
// classified.
func (s *Store) SessionHasAssignment(sessionID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM events WHERE session_id = ? AND stream_id IS NOT NULL`, sessionID).Scan(&n)
	return n > 0, err
}

// StreamsForProjectPath returns the distinct streams that classified
// sessions with the given project path were assigned to. Feeds the
// conservative auto-assignment rule: exactly one result makes the mapping
// unambiguous.
func (s *Store) StreamsForProjectPath(projectPath string) ([]string, error) {
	rows, err := s.db.Query(`
	SELECT DISTINCT e.stream_id FROM events e
	JOIN agent_sessions a ON e.session_id = a.session_id
	WHERE a.project_path = ? AND e.stream_id IS NOT NULL
	ORDER BY e.stream_id`, projectPath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}
