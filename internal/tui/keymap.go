package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings of the run view.
type KeyMap struct {
	Quit       key.Binding
	ToggleLogs key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "cancel run"),
		),
		ToggleLogs: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "toggle log"),
		),
	}
}
