package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/splitclock/splitclock/internal/event"
	"github.com/splitclock/splitclock/internal/store"
)

func TestDecodeBatchDropsMalformed(t *testing.T) {
	batch := strings.Join([]string{
		`{"timestamp":"2026-03-01T10:00:00Z","type":"tmux_scroll","source":"tmux","machine_id":"m1"}`,
		`not json at all`,
		``,
		`{"type":"tmux_scroll","source":"tmux","machine_id":"m1"}`,
		`{"timestamp":"2026-03-01T10:01:00Z","type":"user_message","source":"agent","machine_id":"m1","session_id":"sess-a"}`,
	}, "\n")

	events, dropped := DecodeBatch(strings.NewReader(batch))
	if len(events) != 2 {
		t.Fatalf("decoded %d events, want 2", len(events))
	}
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2 (one unparseable, one missing timestamp)", dropped)
	}
	if events[1].SessionID != "sess-a" {
		t.Errorf("session_id = %q, want sess-a", events[1].SessionID)
	}
}

func TestDecodeBatchComputesDeterministicID(t *testing.T) {
	line := `{"timestamp":"2026-03-01T10:00:00Z","type":"window_focus","source":"macos","machine_id":"m1","payload":{"app":"iTerm2"}}`

	first, _ := DecodeBatch(strings.NewReader(line))
	second, _ := DecodeBatch(strings.NewReader(line))
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("decoded %d/%d events, want 1 each", len(first), len(second))
	}
	if first[0].ID == "" {
		t.Fatal("id not computed")
	}
	if first[0].ID != second[0].ID {
		t.Errorf("ids differ for identical records: %s vs %s", first[0].ID, second[0].ID)
	}

	ts, _ := time.Parse(time.RFC3339, "2026-03-01T10:00:00Z")
	want := event.ComputeID("m1", "macos", "window_focus", ts, []byte(`{"app":"iTerm2"}`))
	if first[0].ID != want {
		t.Errorf("id = %s, want %s", first[0].ID, want)
	}
}

func TestDecodeBatchKeepsSuppliedID(t *testing.T) {
	line := `{"id":"abc","timestamp":"2026-03-01T10:00:00Z","type":"tmux_scroll","source":"tmux","machine_id":"m1"}`
	events, _ := DecodeBatch(strings.NewReader(line))
	if len(events) != 1 || events[0].ID != "abc" {
		t.Fatalf("events = %+v, want one with id abc", events)
	}
}

func TestDecodeSessions(t *testing.T) {
	batch := strings.Join([]string{
		`{"session_id":"sess-a","session_type":"user","project_path":"/home/dev/proj","start_time":"2026-03-01T10:00:00Z","end_time":"2026-03-01T10:10:00Z","tool_call_count":4}`,
		`{"session_id":"","start_time":"2026-03-01T10:00:00Z"}`,
		`{"session_id":"sess-b","start_time":"2026-03-01T11:00:00Z"}`,
	}, "\n")

	sessions, dropped := DecodeSessions(strings.NewReader(batch))
	if len(sessions) != 2 || dropped != 1 {
		t.Fatalf("got %d sessions, %d dropped; want 2 and 1", len(sessions), dropped)
	}
	if sessions[0].EndTime == nil || sessions[0].ToolCallCount != 4 {
		t.Errorf("first session = %+v", sessions[0])
	}
	// Omitted type defaults to a user session.
	if sessions[1].SessionType != store.SessionTypeUser {
		t.Errorf("session_type = %q, want %q", sessions[1].SessionType, store.SessionTypeUser)
	}
	if sessions[1].EndTime != nil {
		t.Error("open session decoded with an end time")
	}
}
