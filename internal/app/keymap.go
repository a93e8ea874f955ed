package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the composer's bindings. Bindings that do nothing in the
// current mode are disabled so the footer only lists live keys.
type KeyMap struct {
	Record   key.Binding
	Send     key.Binding
	Discard  key.Binding
	Play     key.Binding
	SeekBack key.Binding
	SeekFwd  key.Binding
	Focus    key.Binding
	Up       key.Binding
	Down     key.Binding
	Listen   key.Binding
	Quit     key.Binding
}

// DefaultKeyMap returns the standard bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Record: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "record"),
		),
		Send: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Discard: key.NewBinding(
			key.WithKeys("x", "esc"),
			key.WithHelp("x/esc", "discard"),
		),
		Play: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "play/pause"),
		),
		SeekBack: key.NewBinding(
			key.WithKeys("left"),
			key.WithHelp("←", "-10%"),
		),
		SeekFwd: key.NewBinding(
			key.WithKeys("right"),
			key.WithHelp("→", "+10%"),
		),
		Focus: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "focus"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("j/k", "select"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
		),
		Listen: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "listen"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "Q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Record, k.Send, k.Discard, k.Play, k.SeekBack, k.SeekFwd,
		k.Focus, k.Up, k.Listen, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Record, k.Send, k.Discard},
		{k.Play, k.SeekBack, k.SeekFwd},
		{k.Focus, k.Up, k.Down, k.Listen},
		{k.Quit},
	}
}
