package tui

import (
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap holds the dashboard bindings.
type KeyMap struct {
	Up, Down         key.Binding
	PageUp, PageDown key.Binding
	Home, End        key.Binding

	Enter        key.Binding
	Back         key.Binding
	Search       key.Binding
	Refresh      key.Binding
	ToggleFailed key.Binding
	ToggleMapped key.Binding
	ToggleIDs    key.Binding
	Reconcile    key.Binding

	Copy        key.Binding
	CopyOps     key.Binding
	CopyAllJSON key.Binding
	CopyAllYAML key.Binding

	Quit key.Binding
	Help key.Binding
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown, k.Home, k.End},
		{k.Enter, k.Back, k.Search, k.Refresh},
		{k.ToggleFailed, k.ToggleMapped, k.ToggleIDs, k.Reconcile},
		{k.Copy, k.CopyOps, k.CopyAllJSON, k.CopyAllYAML},
		{k.Help, k.Quit},
	}
}

func bind(help, desc string, keys ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(help, desc))
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:       bind("↑/k", "up", "up", "k"),
		Down:     bind("↓/j", "down", "down", "j"),
		PageUp:   bind("pgup", "page up", "pgup", "ctrl+u"),
		PageDown: bind("pgdn", "page down", "pgdown", "ctrl+d"),
		Home:     bind("home/g", "newest", "home", "g"),
		End:      bind("end/G", "oldest", "end", "G"),

		Enter:        bind("enter", "pass detail", "enter"),
		Back:         bind("esc", "back", "esc", "backspace"),
		Search:       bind("/", "search", "/"),
		Refresh:      bind("r", "refresh", "r"),
		ToggleFailed: bind("f", "failed only", "f"),
		ToggleMapped: bind("m", "mapped stack", "m"),
		ToggleIDs:    bind("x", "hex/decimal ids", "x"),
		Reconcile:    bind("R", "reconcile now", "R"),

		Copy:        bind("c", "copy pass id", "c"),
		CopyOps:     bind("o", "copy requests", "o"),
		CopyAllJSON: bind("C", "copy visible as JSON", "C"),
		CopyAllYAML: bind("alt+c", "copy visible as YAML", "alt+c"),

		Quit: bind("q", "quit", "q", "ctrl+c"),
		Help: bind("?", "help", "?"),
	}
}
