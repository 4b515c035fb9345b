package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/splitclock/splitclock/internal/event"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "splitclock.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testEvent(id string, ts time.Time, typ, sessionID string) event.Event {
	return event.Event{
		ID:        id,
		Timestamp: ts,
		Type:      typ,
		Source:    "test",
		MachineID: "m1",
		SessionID: sessionID,
	}
}

func seedEvents(t *testing.T, s *Store, events ...event.Event) {
	t.Helper()
	if _, err := s.InsertEvents(events); err != nil {
		t.Fatalf("insert events: %v", err)
	}
}

func TestInsertEventsIdempotent(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	batch := []event.Event{
		testEvent("e1", base, event.KindTmuxScroll, ""),
		testEvent("e2", base.Add(time.Minute), event.KindUserMessage, "sess-a"),
	}

	n, err := s.InsertEvents(batch)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if n != 2 {
		t.Errorf("first insert = %d rows, want 2", n)
	}

	n, err = s.InsertEvents(batch)
	if err != nil {
		t.Fatalf("re-insert: %v", err)
	}
	if n != 0 {
		t.Errorf("re-insert = %d rows, want 0", n)
	}

	got, err := s.Range(base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("range returned %d events, want 2", len(got))
	}
}

func TestRangeIsHalfOpenAndOrdered(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedEvents(t, s,
		testEvent("e3", base.Add(2*time.Minute), event.KindTmuxScroll, ""),
		testEvent("e1", base, event.KindTmuxScroll, ""),
		// Same instant as e1; user_message outranks scroll in the
		// deterministic order.
		testEvent("e2", base, event.KindUserMessage, "sess-a"),
		testEvent("e4", base.Add(time.Hour), event.KindTmuxScroll, ""),
	)

	got, err := s.Range(base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	var ids []string
	for _, e := range got {
		ids = append(ids, e.ID)
	}
	want := []string{"e2", "e1", "e3"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("range order = %v, want %v", ids, want)
	}
}

func TestAssignBySessionSkipsUserCorrections(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedEvents(t, s,
		testEvent("e1", base, event.KindUserMessage, "sess-a"),
		testEvent("e2", base.Add(time.Minute), event.KindAgentToolUse, "sess-a"),
		testEvent("e3", base.Add(2*time.Minute), event.KindAgentToolUse, "sess-a"),
	)

	// The user pinned e2 to another stream by hand.
	if err := s.AssignEvent("e2", "stream-other", event.AssignUser); err != nil {
		t.Fatalf("assign event: %v", err)
	}

	tx, err := s.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	assigned, skipped, err := s.AssignBySession(tx, "sess-a", "stream-1")
	if err != nil {
		t.Fatalf("assign by session: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if assigned != 2 || skipped != 1 {
		t.Errorf("assigned = %d skipped = %d, want 2 and 1", assigned, skipped)
	}

	got, err := s.EventsForSession("sess-a")
	if err != nil {
		t.Fatalf("events for session: %v", err)
	}
	for _, e := range got {
		want := "stream-1"
		if e.ID == "e2" {
			want = "stream-other"
		}
		if e.StreamID != want {
			t.Errorf("event %s: stream = %q, want %q", e.ID, e.StreamID, want)
		}
	}
}

func TestAssignByPatternHonorsWindow(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := testEvent("e1", base, event.KindTmuxPaneFocus, "")
	in.CWD = "/home/dev/proj/api"
	out := testEvent("e2", base.Add(2*time.Hour), event.KindTmuxPaneFocus, "")
	out.CWD = "/home/dev/proj/api"
	other := testEvent("e3", base, event.KindTmuxPaneFocus, "")
	other.CWD = "/home/dev/elsewhere"
	seedEvents(t, s, in, out, other)

	start := base
	end := base.Add(time.Hour)
	tx, err := s.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	assigned, skipped, err := s.AssignByPattern(tx, "/home/dev/proj/%", &start, &end, "stream-1")
	if err != nil {
		t.Fatalf("assign by pattern: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if assigned != 1 || skipped != 0 {
		t.Errorf("assigned = %d skipped = %d, want 1 and 0", assigned, skipped)
	}

	got, err := s.Range(base, base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	for _, e := range got {
		want := ""
		if e.ID == "e1" {
			want = "stream-1"
		}
		if e.StreamID != want {
			t.Errorf("event %s: stream = %q, want %q", e.ID, e.StreamID, want)
		}
	}
}

func TestSplitSessions(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedEvents(t, s,
		testEvent("e1", base, event.KindUserMessage, "sess-a"),
		testEvent("e2", base.Add(time.Minute), event.KindAgentToolUse, "sess-a"),
		testEvent("e3", base, event.KindUserMessage, "sess-b"),
	)
	for id, stream := range map[string]string{"e1": "s1", "e2": "s2", "e3": "s1"} {
		if err := s.AssignEvent(id, stream, event.AssignUser); err != nil {
			t.Fatalf("assign %s: %v", id, err)
		}
	}

	splits, err := s.SplitSessions()
	if err != nil {
		t.Fatalf("split sessions: %v", err)
	}
	if len(splits) != 1 {
		t.Fatalf("got %d split sessions, want 1: %v", len(splits), splits)
	}
	if splits[0].SessionID != "sess-a" || len(splits[0].StreamIDs) != 2 {
		t.Errorf("unexpected split: %+v", splits[0])
	}
}

func TestEnsureStreamIdempotent(t *testing.T) {
	s := newTestStore(t)

	first, err := s.EnsureStream(s.DB(), "api-refactor", []string{"work"})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	second, err := s.EnsureStream(s.DB(), "api-refactor", nil)
	if err != nil {
		t.Fatalf("re-ensure: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("ensure created a second stream: %s vs %s", first.ID, second.ID)
	}
	if len(second.Tags) != 1 || second.Tags[0] != "work" {
		t.Errorf("tags = %v, want [work]", second.Tags)
	}

	byName, err := s.GetStreamByName(s.DB(), "api-refactor")
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if byName == nil || byName.ID != first.ID {
		t.Errorf("lookup by name = %+v, want id %s", byName, first.ID)
	}
	missing, err := s.GetStreamByName(s.DB(), "nope")
	if err != nil || missing != nil {
		t.Errorf("missing stream = (%+v, %v), want (nil, nil)", missing, err)
	}
}

func TestTouchStreamFlagsRecompute(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st, err := s.EnsureStream(s.DB(), "api-refactor", nil)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	seedEvents(t, s,
		testEvent("e1", base, event.KindUserMessage, "sess-a"),
		testEvent("e2", base.Add(time.Hour), event.KindAgentToolUse, "sess-a"),
	)
	tx, err := s.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, _, err := s.AssignBySession(tx, "sess-a", st.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := s.TouchStream(tx, st.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := s.GetStream(st.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.NeedsRecompute {
		t.Error("needs_recompute not set")
	}
	if got.FirstEventAt == nil || !got.FirstEventAt.Equal(base) {
		t.Errorf("first_event_at = %v, want %v", got.FirstEventAt, base)
	}
	if got.LastEventAt == nil || !got.LastEventAt.Equal(base.Add(time.Hour)) {
		t.Errorf("last_event_at = %v, want %v", got.LastEventAt, base.Add(time.Hour))
	}

	ids, err := s.StreamsNeedingRecompute()
	if err != nil {
		t.Fatalf("needing recompute: %v", err)
	}
	if len(ids) != 1 || ids[0] != st.ID {
		t.Errorf("needing recompute = %v, want [%s]", ids, st.ID)
	}
}

func TestMaterializeTotalsClearsFlag(t *testing.T) {
	s := newTestStore(t)
	st, err := s.EnsureStream(s.DB(), "api-refactor", nil)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := s.TouchStream(s.DB(), st.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}

	from := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	until := from.Add(time.Hour)
	totals := map[string]StreamTotals{st.ID: {DirectMS: 120_000, DelegatedMS: 300_000}}
	if err := s.MaterializeTotals([]string{st.ID}, totals, from, until); err != nil {
		t.Fatalf("materialize: %v", err)
	}

	got, err := s.GetStream(st.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TimeDirectMS != 120_000 || got.TimeDelegatedMS != 300_000 {
		t.Errorf("totals = %d/%d, want 120000/300000", got.TimeDirectMS, got.TimeDelegatedMS)
	}
	if got.NeedsRecompute {
		t.Error("needs_recompute still set after materialize")
	}
	if got.ComputedFrom == nil || !got.ComputedFrom.Equal(from) {
		t.Errorf("computed_from = %v, want %v", got.ComputedFrom, from)
	}
	if got.ComputedUntil == nil || !got.ComputedUntil.Equal(until) {
		t.Errorf("computed_until = %v, want %v", got.ComputedUntil, until)
	}

	// A targeted stream with no totals entry accrued zero time.
	if err := s.MaterializeTotals([]string{st.ID}, nil, from, until); err != nil {
		t.Fatalf("materialize zero: %v", err)
	}
	got, err = s.GetStream(st.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TimeDirectMS != 0 || got.TimeDelegatedMS != 0 {
		t.Errorf("zero materialize left totals %d/%d", got.TimeDirectMS, got.TimeDelegatedMS)
	}
}

func TestAgentSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Minute)

	as := &AgentSession{
		SessionID:   "sess-a",
		SessionType: SessionTypeUser,
		ProjectPath: "/home/dev/proj/api",
		StartTime:   start,
	}
	if err := s.UpsertAgentSession(as); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// The collaborator re-exports the session once it has ended.
	as.EndTime = &end
	as.ToolCallCount = 7
	if err := s.UpsertAgentSession(as); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	got, err := s.GetAgentSession("sess-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.EndTime == nil || !got.EndTime.Equal(end) || got.ToolCallCount != 7 {
		t.Errorf("session after re-upsert = %+v", got)
	}

	all, err := s.AgentSessions()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("got %d sessions, want 1", len(all))
	}

	unknown, err := s.GetAgentSession("nope")
	if err != nil || unknown != nil {
		t.Errorf("unknown session = (%+v, %v), want (nil, nil)", unknown, err)
	}
}

func TestStreamsForProjectPath(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedEvents(t, s,
		testEvent("e1", base, event.KindUserMessage, "sess-a"),
		testEvent("e2", base, event.KindUserMessage, "sess-b"),
	)
	for _, as := range []AgentSession{
		{SessionID: "sess-a", SessionType: SessionTypeUser, ProjectPath: "/home/dev/proj/api", StartTime: base},
		{SessionID: "sess-b", SessionType: SessionTypeUser, ProjectPath: "/home/dev/proj/api", StartTime: base},
	} {
		as := as
		if err := s.UpsertAgentSession(&as); err != nil {
			t.Fatalf("upsert %s: %v", as.SessionID, err)
		}
	}
	if err := s.AssignEvent("e1", "s1", event.AssignInferred); err != nil {
		t.Fatalf("assign: %v", err)
	}

	streams, err := s.StreamsForProjectPath("/home/dev/proj/api")
	if err != nil {
		t.Fatalf("streams for path: %v", err)
	}
	if len(streams) != 1 || streams[0] != "s1" {
		t.Errorf("streams = %v, want [s1]", streams)
	}

	has, err := s.SessionHasAssignment("sess-a")
	if err != nil || !has {
		t.Errorf("sess-a assignment = (%v, %v), want true", has, err)
	}
	has, err = s.SessionHasAssignment("sess-b")
	if err != nil || has {
		t.Errorf("sess-b assignment = (%v, %v), want false", has, err)
	}
}
