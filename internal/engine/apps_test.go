package engine

import "testing"

func TestAppClassesCaseInsensitive(t *testing.T) {
	apps := DefaultAppClasses()
	if !apps.IsTerminal("iterm2") || !apps.IsTerminal("KITTY") {
		t.Error("terminal match should ignore case")
	}
	if !apps.IsBrowser("google chrome") {
		t.Error("browser match should ignore case")
	}
	if apps.IsTerminal("Slack") || apps.IsBrowser("Slack") {
		t.Error("Slack classified as terminal or browser")
	}
}

func TestCustomAppClasses(t *testing.T) {
	apps := NewAppClasses([]string{"foot"}, []string{"qutebrowser"})
	if !apps.IsTerminal("foot") || !apps.IsBrowser("qutebrowser") {
		t.Error("custom classes not matched")
	}
	if apps.IsTerminal("iTerm2") {
		t.Error("defaults leaked into custom classes")
	}
}
