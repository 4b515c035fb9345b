// Package engine implements the attention allocation fold: a deterministic
// state machine that converts an ordered event timeline into per-stream
// direct and delegated millisecond totals over a bounded range.
package engine

import (
	"fmt"
	"time"

	"github.com/splitclock/splitclock/internal/event"
)

// Default engine parameters. Carried verbatim across recomputation so
// results stay reproducible.
const (
	DefaultAttentionWindowMS = 120_000
	DefaultSessionTimeoutMS  = 1_800_000
)

// Params are the tunable engine constants.
type Params struct {
	AttentionWindowMS int64
	SessionTimeoutMS  int64
}

// DefaultParams returns the stock attention window and session timeout.
func DefaultParams() Params {
	return Params{
		AttentionWindowMS: DefaultAttentionWindowMS,
		SessionTimeoutMS:  DefaultSessionTimeoutMS,
	}
}

// Range is the half-open computation interval [Start, End).
type Range struct {
	Start time.Time
	End   time.Time
}

// Totals are the integrated millisecond outputs for one stream.
type Totals struct {
	DirectMS    int64
	DelegatedMS int64
}

// FocusState is the per-instant attention/delegation state threaded through
// the fold. Rebuilt fresh for every computation, never persisted.
type FocusState struct {
	CurrentStream      string
	ActiveSessions     map[string]struct{}
	SessionLastEvent   map[string]time.Time
	SessionKnownEnd    map[string]time.Time
	SessionStream      map[string]string
	LastActivity       time.Time
	IsAFK              bool
	WindowFocusApp     string
	TmuxFocusStream    string
	BrowserFocusStream string
}

func newFocusState() *FocusState {
	return &FocusState{
		ActiveSessions:   map[string]struct{}{},
		SessionLastEvent: map[string]time.Time{},
		SessionKnownEnd:  map[string]time.Time{},
		SessionStream:    map[string]string{},
	}
}

// fold carries the state plus the open attention/delegation segments and
// the clipped accumulator for one Allocate run.
type fold struct {
	state     *FocusState
	params    Params
	apps      AppClasses
	knownEnds map[string]time.Time
	r         Range

	totals map[string]Totals

	directOpen   bool
	directStream string
	directStart  time.Time

	delegatedStart map[string]time.Time

	focusClaimedAt time.Time
	prev           time.Time
}

// Allocate folds the ordered event timeline into per-stream totals over
// [r.Start, r.End). Events before r.Start must be included in the input:
// they replay to reconstruct the state at r.Start; their segments are
// clipped to the range, which also makes results additive over tiled
// sub-ranges. knownEnds carries AgentSession end times from the session
// index; a session with a known end is trusted over the timeout heuristic.
func Allocate(events []event.Event, knownEnds map[string]time.Time, r Range, p Params) map[string]Totals {
	return AllocateWithApps(events, knownEnds, r, p, DefaultAppClasses())
}

// AllocateWithApps is Allocate with an explicit terminal/browser app
// classification.
func AllocateWithApps(events []event.Event, knownEnds map[string]time.Time, r Range, p Params, apps AppClasses) map[string]Totals {
	sorted := make([]event.Event, len(events))
	copy(sorted, events)
	event.Sort(sorted)

	f := &fold{
		state:          newFocusState(),
		params:         p,
		apps:           apps,
		knownEnds:      knownEnds,
		r:              r,
		totals:         map[string]Totals{},
		delegatedStart: map[string]time.Time{},
	}

	for _, e := range sorted {
		t := e.Timestamp
		if t.Before(f.prev) {
			panic(fmt.Sprintf("engine: timeline not sorted: %s before %s", t, f.prev))
		}
		f.prev = t
		f.expire(t)
		f.apply(e)
	}
	f.finish()
	return f.totals
}

// ---------------------------------------------------------------------------
// Accumulation
// ---------------------------------------------------------------------------

func (f *fold) addDirect(stream string, from, to time.Time)    { f.add(stream, from, to, true) }
func (f *fold) addDelegated(stream string, from, to time.Time) { f.add(stream, from, to, false) }

func (f *fold) add(stream string, from, to time.Time, direct bool) {
	if stream == "" {
		return
	}
	if from.Before(f.r.Start) {
		from = f.r.Start
	}
	if to.After(f.r.End) {
		to = f.r.End
	}
	ms := to.Sub(from).Milliseconds()
	if ms <= 0 {
		return
	}
	t := f.totals[stream]
	if direct {
		t.DirectMS += ms
	} else {
		t.DelegatedMS += ms
	}
	f.totals[stream] = t
}

// ---------------------------------------------------------------------------
// Segment bookkeeping
// ---------------------------------------------------------------------------

func (f *fold) openDirect(at time.Time) {
	f.directOpen = true
	f.directStream = f.state.CurrentStream
	f.directStart = at
}

func (f *fold) closeDirect(at time.Time) {
	if !f.directOpen {
		return
	}
	f.addDirect(f.directStream, f.directStart, at)
	f.directOpen = false
}

func (f *fold) closeDelegated(sessionID string, at time.Time) {
	start, open := f.delegatedStart[sessionID]
	if !open {
		return
	}
	f.addDelegated(f.state.SessionStream[sessionID], start, at)
	delete(f.delegatedStart, sessionID)
}

// expire closes segments whose end instant precedes t: a direct segment
// past the attention window, a delegated segment past its session's known
// end, and delegated segments of sessions whose last event is older than
// the session timeout. The timeout only governs sessions whose true end is
// unknown.
func (f *fold) expire(t time.Time) {
	if f.directOpen {
		cutoff := f.state.LastActivity.Add(msDur(f.params.AttentionWindowMS))
		if cutoff.Before(t) {
			f.closeDirect(cutoff)
		}
	}
	for sid := range f.state.ActiveSessions {
		if knownEnd, ok := f.state.SessionKnownEnd[sid]; ok {
			if !knownEnd.After(t) {
				f.closeDelegated(sid, knownEnd)
				delete(f.state.ActiveSessions, sid)
			}
			continue
		}
		cutoff := f.state.SessionLastEvent[sid].Add(msDur(f.params.SessionTimeoutMS))
		if cutoff.Before(t) {
			f.closeDelegated(sid, cutoff)
			delete(f.state.ActiveSessions, sid)
		}
	}
}

// finish flushes open segments at the instant the state itself implies:
// attention at its window cutoff, delegated sessions at their known end or
// timeout cutoff. Clipping bounds everything to the range.
func (f *fold) finish() {
	if f.directOpen {
		f.closeDirect(f.state.LastActivity.Add(msDur(f.params.AttentionWindowMS)))
	}
	for sid := range f.delegatedStart {
		if knownEnd, ok := f.state.SessionKnownEnd[sid]; ok {
			f.closeDelegated(sid, knownEnd)
			continue
		}
		f.closeDelegated(sid, f.state.SessionLastEvent[sid].Add(msDur(f.params.SessionTimeoutMS)))
	}
}

// ---------------------------------------------------------------------------
// Transitions
// ---------------------------------------------------------------------------

func (f *fold) apply(e event.Event) {
	s := f.state
	t := e.Timestamp

	switch e.Type {
	case event.KindTmuxPaneFocus:
		s.TmuxFocusStream = e.StreamID
		// A pane focus only resolves exclusive focus while a
		// terminal-class window is (or nothing is yet) foregrounded.
		if (s.WindowFocusApp == "" || f.apps.IsTerminal(s.WindowFocusApp)) && f.claimFocus(t) {
			f.setCurrent(s.TmuxFocusStream, t)
		}
		f.activity(t)

	case event.KindWindowFocus:
		if p, ok := e.WindowFocus(); ok {
			s.WindowFocusApp = p.App
		}
		switch {
		case f.apps.IsTerminal(s.WindowFocusApp):
			// Restore the remembered pane stream when known.
			f.setOrClear(s.TmuxFocusStream, t)
		case f.apps.IsBrowser(s.WindowFocusApp):
			f.setOrClear(s.BrowserFocusStream, t)
		default:
			f.setOrClear(e.StreamID, t)
		}
		f.activity(t)

	case event.KindBrowserTab:
		s.BrowserFocusStream = e.StreamID
		if f.apps.IsBrowser(s.WindowFocusApp) && f.claimFocus(t) {
			f.setCurrent(s.BrowserFocusStream, t)
		}
		f.activity(t)

	case event.KindTmuxScroll:
		f.activity(t)

	case event.KindUserMessage:
		// A message to an agent is the strongest attention signal there
		// is: the user is demonstrably present, and exclusive focus pulls
		// onto the message's stream, resolved directly or through the
		// session's existing mapping.
		s.IsAFK = false
		if stream := f.messageStream(e); stream != "" && f.claimFocus(t) {
			f.setCurrent(stream, t)
		}
		f.activity(t)
		f.refreshSession(e, t)

	case event.KindAgentSession:
		if p, ok := e.AgentSession(); ok && p.State == event.SessionEnded {
			f.endSession(e.SessionID, t)
		} else {
			f.refreshSession(e, t)
		}

	case event.KindAgentToolUse:
		f.refreshSession(e, t)

	case event.KindAFKChange:
		p, ok := e.AFK()
		if !ok {
			return
		}
		switch p.State {
		case event.AFKIdle:
			f.goIdle(t, p.IdleDurationMS)
		case event.AFKActive:
			s.IsAFK = false
			s.LastActivity = t
		}

	default:
		// Unknown kinds only refresh session liveness, never focus state.
		if e.SessionID != "" {
			f.refreshSession(e, t)
		}
	}
}

// claimFocus reports whether exclusive focus state may be mutated at this
// instant. Events are ordered by priority within a timestamp, so the first
// focus-setting event at an instant wins; lower-priority ones at the same
// instant still update hierarchy side state and liveness.
func (f *fold) claimFocus(t time.Time) bool {
	if f.focusClaimedAt.Equal(t) {
		return false
	}
	f.focusClaimedAt = t
	return true
}

// setOrClear sets exclusive focus to stream under the claim discipline.
// An unknown target ("") drops focus without consuming the claim, so a
// lower-priority event at the same instant may still resolve it: a window
// switch and its tab or pane observation often share a timestamp.
func (f *fold) setOrClear(stream string, t time.Time) {
	if stream != "" {
		if f.claimFocus(t) {
			f.setCurrent(stream, t)
		}
		return
	}
	if !f.focusClaimedAt.Equal(t) {
		f.setCurrent("", t)
	}
}

// setCurrent moves exclusive direct attention to stream (possibly none),
// closing and opening attention segments at t.
func (f *fold) setCurrent(stream string, t time.Time) {
	s := f.state
	if s.CurrentStream == stream {
		if stream != "" && !f.directOpen && !s.IsAFK {
			f.openDirect(t)
		}
		return
	}
	f.closeDirect(t)
	s.CurrentStream = stream
	if stream != "" && !s.IsAFK {
		f.openDirect(t)
	}
}

// activity records a human activity signal: refreshes last_activity and
// resumes an attention segment that had lapsed past the window.
func (f *fold) activity(t time.Time) {
	s := f.state
	s.LastActivity = t
	if !s.IsAFK && s.CurrentStream != "" && !f.directOpen {
		f.openDirect(t)
	}
}

// messageStream resolves the stream a user message addresses: the event's
// own classification first, then the session's established mapping.
func (f *fold) messageStream(e event.Event) string {
	if e.StreamID != "" {
		return e.StreamID
	}
	return f.state.SessionStream[e.SessionID]
}

// refreshSession marks the event's session as live. An unknown session id
// with no stream mapping is a pure liveness refresh with no attributable
// stream; it never fails the fold.
func (f *fold) refreshSession(e event.Event, t time.Time) {
	sid := e.SessionID
	if sid == "" {
		return
	}
	s := f.state
	if _, active := s.ActiveSessions[sid]; !active {
		s.ActiveSessions[sid] = struct{}{}
		if knownEnd, ok := f.knownEnds[sid]; ok {
			s.SessionKnownEnd[sid] = knownEnd.UTC()
		}
	}
	s.SessionLastEvent[sid] = t
	if s.SessionStream[sid] == "" && e.StreamID != "" {
		s.SessionStream[sid] = e.StreamID
	}
	if s.SessionStream[sid] == "" {
		return
	}
	if _, open := f.delegatedStart[sid]; !open {
		if knownEnd, ok := s.SessionKnownEnd[sid]; !ok || t.Before(knownEnd) {
			f.delegatedStart[sid] = t
		}
	}
}

func (f *fold) endSession(sessionID string, t time.Time) {
	if sessionID == "" {
		return
	}
	f.closeDelegated(sessionID, t)
	delete(f.state.ActiveSessions, sessionID)
}

// goIdle handles an AFK idle transition. A reported idle duration moves
// the idle start retroactively, clamped to not precede the current focus
// interval's start. The current attention segment closes there and
// exclusive focus drops until a new focus event after the user returns.
func (f *fold) goIdle(t time.Time, idleDurationMS int64) {
	idleAt := t
	if idleDurationMS > 0 {
		idleAt = t.Add(-msDur(idleDurationMS))
	}
	if f.directOpen && idleAt.Before(f.directStart) {
		idleAt = f.directStart
	}
	if idleAt.After(t) {
		idleAt = t
	}
	f.closeDirect(idleAt)
	f.state.IsAFK = true
	f.state.CurrentStream = ""
}

func msDur(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
