package engine

import "strings"

// AppClasses resolves the focus hierarchy: a terminal-class foreground app
// defers to tmux pane focus, a browser-class app to the active tab, and
// anything else maps (or doesn't) directly.
type AppClasses struct {
	terminal map[string]struct{}
	browser  map[string]struct{}
}

// NewAppClasses builds a case-insensitive app classification.
func NewAppClasses(terminals, browsers []string) AppClasses {
	a := AppClasses{
		terminal: map[string]struct{}{},
		browser:  map[string]struct{}{},
	}
	for _, name := range terminals {
		a.terminal[strings.ToLower(name)] = struct{}{}
	}
	for _, name := range browsers {
		a.browser[strings.ToLower(name)] = struct{}{}
	}
	return a
}

// DefaultAppClasses covers the common macOS/Linux terminal emulators and
// browsers.
func DefaultAppClasses() AppClasses {
	return NewAppClasses(
		[]string{"Terminal", "iTerm2", "Alacritty", "kitty", "WezTerm", "Ghostty"},
		[]string{"Safari", "Google Chrome", "Chrome", "Chromium", "Firefox", "Arc", "Brave Browser"},
	)
}

func (a AppClasses) IsTerminal(app string) bool {
	_, ok := a.terminal[strings.ToLower(app)]
	return ok
}

func (a AppClasses) IsBrowser(app string) bool {
	_, ok := a.browser[strings.ToLower(app)]
	return ok
}
