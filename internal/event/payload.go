package event

import "encoding/json"

// WindowFocusPayload carries the foreground application for a
// window_focus event.
type WindowFocusPayload struct {
	App         string `json:"app"`
	WindowTitle string `json:"window_title,omitempty"`
}

// PaneFocusPayload carries the pane identity for a tmux_pane_focus event.
// The working directory is duplicated in the event's top-level CWD column
// for indexing.
type PaneFocusPayload struct {
	Pane string `json:"pane,omitempty"`
	CWD  string `json:"cwd,omitempty"`
}

// BrowserTabPayload carries the active tab for a browser_tab event.
type BrowserTabPayload struct {
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// AFK states carried by afk_change payloads.
const (
	AFKIdle   = "idle"
	AFKActive = "active"
)

// AFKPayload carries an AFK transition. IdleDurationMS, when present on an
// idle transition, retroactively moves the idle start that far before the
// event's timestamp.
type AFKPayload struct {
	State          string `json:"state"`
	IdleDurationMS int64  `json:"idle_duration_ms,omitempty"`
}

// Agent session lifecycle states carried by agent_session payloads.
const (
	SessionStarted = "started"
	SessionEnded   = "ended"
)

// AgentSessionPayload carries the lifecycle transition of an agent run.
type AgentSessionPayload struct {
	State string `json:"state"`
}

// WindowFocus decodes the window_focus payload. Returns false when the
// payload is absent or malformed.
func (e *Event) WindowFocus() (WindowFocusPayload, bool) {
	var p WindowFocusPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil || p.App == "" {
		return WindowFocusPayload{}, false
	}
	return p, true
}

// AFK decodes the afk_change payload.
func (e *Event) AFK() (AFKPayload, bool) {
	var p AFKPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil || p.State == "" {
		return AFKPayload{}, false
	}
	return p, true
}

// AgentSession decodes the agent_session payload.
func (e *Event) AgentSession() (AgentSessionPayload, bool) {
	var p AgentSessionPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil || p.State == "" {
		return AgentSessionPayload{}, false
	}
	return p, true
}
