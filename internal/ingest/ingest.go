// Package ingest decodes collector batches at the ingestion boundary: one
// JSON record per line, per the event ingestion contract. Malformed
// records are dropped with a warning and never abort the batch.
package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/splitclock/splitclock/internal/event"
	"github.com/splitclock/splitclock/internal/store"
)

// Record is one collector observation. ID may be omitted; the store's
// deterministic identity is recomputed from the remaining fields.
type Record struct {
	ID        string          `json:"id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	MachineID string          `json:"machine_id"`
	CWD       string          `json:"cwd,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Event validates the record and converts it, computing the deterministic
// id when the collector didn't supply one.
func (r Record) Event() (event.Event, error) {
	if r.Timestamp.IsZero() {
		return event.Event{}, fmt.Errorf("missing timestamp")
	}
	if r.Type == "" {
		return event.Event{}, fmt.Errorf("missing type")
	}
	if r.MachineID == "" {
		return event.Event{}, fmt.Errorf("missing machine_id")
	}
	id := r.ID
	if id == "" {
		id = event.ComputeID(r.MachineID, r.Source, r.Type, r.Timestamp, r.Payload)
	}
	return event.Event{
		ID:        id,
		Timestamp: r.Timestamp.UTC(),
		Type:      r.Type,
		Source:    r.Source,
		MachineID: r.MachineID,
		CWD:       r.CWD,
		SessionID: r.SessionID,
		Payload:   r.Payload,
	}, nil
}

// DecodeBatch reads a JSONL batch. Returns the decoded events and the
// number of malformed records dropped.
func DecodeBatch(r io.Reader) ([]event.Event, int) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var events []event.Event
	dropped := 0
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			slog.Warn("dropping malformed event record", "line", line, "error", err)
			dropped++
			continue
		}
		e, err := rec.Event()
		if err != nil {
			slog.Warn("dropping invalid event record", "line", line, "error", err)
			dropped++
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("batch read truncated", "line", line, "error", err)
	}
	return events, dropped
}

// SessionRecord is one normalized agent run from the session index
// collaborator.
type SessionRecord struct {
	SessionID       string     `json:"session_id"`
	ParentSessionID string     `json:"parent_session_id,omitempty"`
	SessionType     string     `json:"session_type"`
	ProjectPath     string     `json:"project_path,omitempty"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	ToolCallCount   int        `json:"tool_call_count"`
	UserPromptCount int        `json:"user_prompt_count"`
}

// DecodeSessions reads a JSONL batch of agent session records. Returns the
// decoded sessions and the number dropped.
func DecodeSessions(r io.Reader) ([]store.AgentSession, int) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var sessions []store.AgentSession
	dropped := 0
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec SessionRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil || rec.SessionID == "" || rec.StartTime.IsZero() {
			slog.Warn("dropping malformed session record", "line", line, "error", err)
			dropped++
			continue
		}
		sessionType := rec.SessionType
		if sessionType == "" {
			sessionType = store.SessionTypeUser
		}
		sessions = append(sessions, store.AgentSession{
			SessionID:       rec.SessionID,
			ParentSessionID: rec.ParentSessionID,
			SessionType:     sessionType,
			ProjectPath:     rec.ProjectPath,
			StartTime:       rec.StartTime.UTC(),
			EndTime:         rec.EndTime,
			ToolCallCount:   rec.ToolCallCount,
			UserPromptCount: rec.UserPromptCount,
		})
	}
	return sessions, dropped
}
