package tui

import "github.com/charmbracelet/bubbles/key"

// RunKeys are active in the run view.
type RunKeys struct {
	Quit key.Binding
	Up   key.Binding
	Down key.Binding
}

var runKeys = RunKeys{
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "cancel/quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("j/k", "scroll"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("j/k", "scroll"),
	),
}
