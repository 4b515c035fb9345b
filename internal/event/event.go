// Package event defines the atomic activity observation model and its
// deterministic identity.
package event

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/zeebo/blake3"
)

// Event kinds recognized by the allocation engine. Unknown kinds are
// stored and carried through the fold as liveness-only events.
const (
	KindWindowFocus   = "window_focus"
	KindTmuxPaneFocus = "tmux_pane_focus"
	KindTmuxScroll    = "tmux_scroll"
	KindBrowserTab    = "browser_tab"
	KindAFKChange     = "afk_change"
	KindAgentSession  = "agent_session"
	KindAgentToolUse  = "agent_tool_use"
	KindUserMessage   = "user_message"
)

// Assignment provenance. Automatic write paths must never overwrite an
// event whose assignment is AssignUser.
const (
	AssignInferred = "inferred"
	AssignUser     = "user"
)

// Event is a single immutable observation from a collector. Only StreamID
// and AssignmentSource are ever rewritten after insert.
type Event struct {
	ID               string          `json:"id"`
	Timestamp        time.Time       `json:"timestamp"`
	Type             string          `json:"type"`
	Source           string          `json:"source"`
	MachineID        string          `json:"machine_id"`
	CWD              string          `json:"cwd,omitempty"`
	SessionID        string          `json:"session_id,omitempty"`
	StreamID         string          `json:"stream_id,omitempty"`
	AssignmentSource string          `json:"assignment_source,omitempty"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

// ComputeID derives the deterministic identity of an observation. The same
// logical observation always hashes to the same id, so re-ingesting a batch
// collapses to existing rows. MachineID namespaces the hash so multi-machine
// merges cannot collide.
func ComputeID(machineID, source, typ string, ts time.Time, payload []byte) string {
	h := blake3.New()
	for _, part := range []string{machineID, source, typ, ts.UTC().Format(time.RFC3339Nano)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write(canonicalPayload(payload))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// canonicalPayload strips insignificant whitespace so that reformatted but
// identical JSON hashes the same. Non-JSON payloads hash verbatim.
func canonicalPayload(payload []byte) []byte {
	if len(payload) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return payload
	}
	return buf.Bytes()
}

// Priority is the fixed tie-break order for events sharing an exact
// timestamp. Higher applies first; among same-instant events that set
// mutually-exclusive focus state only the highest-priority one wins.
func Priority(kind string) int {
	switch kind {
	case KindUserMessage:
		return 90
	case KindTmuxPaneFocus:
		return 80
	case KindWindowFocus:
		return 70
	case KindBrowserTab:
		return 60
	case KindTmuxScroll:
		return 50
	case KindAgentSession:
		return 40
	case KindAgentToolUse:
		return 30
	case KindAFKChange:
		return 20
	default:
		return 10
	}
}

// Sort orders events chronologically with the fixed same-timestamp
// priority, then id, so the fold over them is fully deterministic.
func Sort(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		pa, pb := Priority(a.Type), Priority(b.Type)
		if pa != pb {
			return pa > pb
		}
		return a.ID < b.ID
	})
}
