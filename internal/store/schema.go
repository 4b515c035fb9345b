package store

import (
	"time"
)

// Stream is a materialized, coherent unit of work. The time totals are
// outputs of the allocation engine and always recomputable from events;
// they are never authoritative on their own.
type Stream struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Tags            []string   `json:"tags"`
	TimeDirectMS    int64      `json:"time_direct_ms"`
	TimeDelegatedMS int64      `json:"time_delegated_ms"`
	FirstEventAt    *time.Time `json:"first_event_at,omitempty"`
	LastEventAt     *time.Time `json:"last_event_at,omitempty"`
	NeedsRecompute  bool       `json:"needs_recompute"`
	ComputedFrom    *time.Time `json:"computed_from,omitempty"`
	ComputedUntil   *time.Time `json:"computed_until,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Agent session types from the session index collaborator.
const (
	SessionTypeUser       = "user"
	SessionTypeBackground = "background"
	SessionTypeSubagent   = "subagent"
)

// AgentSession is one agent run, normalized by the external session index.
// The engine reads only SessionID and EndTime; ProjectPath feeds the
// conservative auto-assignment rule.
type AgentSession struct {
	SessionID       string     `json:"session_id"`
	ParentSessionID string     `json:"parent_session_id,omitempty"`
	SessionType     string     `json:"session_type"`
	ProjectPath     string     `json:"project_path,omitempty"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	ToolCallCount   int        `json:"tool_call_count"`
	UserPromptCount int        `json:"user_prompt_count"`
}

// SplitSession reports a session whose classified events reference more
// than one stream. Advisory; surfaced as a warning at recompute time.
type SplitSession struct {
	SessionID string
	StreamIDs []string
}

// StreamTotals is a materialization payload for one stream.
type StreamTotals struct {
	DirectMS    int64
	DelegatedMS int64
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	timestamp DATETIME NOT NULL,
	event_type TEXT NOT NULL,
	source TEXT NOT NULL,
	machine_id TEXT NOT NULL,
	cwd TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL DEFAULT '',
	stream_id TEXT,
	assignment_source TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
CREATE INDEX IF NOT EXISTS idx_events_stream ON events(stream_id);
CREATE INDEX IF NOT EXISTS idx_events_cwd ON events(cwd);

CREATE TABLE IF NOT EXISTS streams (
	id TEXT PRIMARY KEY,
	name TEXT UNIQUE NOT NULL,
	tags TEXT NOT NULL DEFAULT '[]',
	time_direct_ms INTEGER NOT NULL DEFAULT 0,
	time_delegated_ms INTEGER NOT NULL DEFAULT 0,
	first_event_at DATETIME,
	last_event_at DATETIME,
	needs_recompute BOOLEAN NOT NULL DEFAULT 0,
	computed_from DATETIME,
	computed_until DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS agent_sessions (
	session_id TEXT PRIMARY KEY,
	parent_session_id TEXT NOT NULL DEFAULT '',
	session_type TEXT NOT NULL DEFAULT 'user',
	project_path TEXT NOT NULL DEFAULT '',
	start_time DATETIME NOT NULL,
	end_time DATETIME,
	tool_call_count INTEGER NOT NULL DEFAULT 0,
	user_prompt_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_agent_sessions_project ON agent_sessions(project_path);
`
