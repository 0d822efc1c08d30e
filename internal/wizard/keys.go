package wizard

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Select   key.Binding
	Rescan   key.Binding
	Manual   key.Binding
	Hidden   key.Binding
	Next     key.Binding
	Prev     key.Binding
	Submit   key.Binding
	Retry    key.Binding
	Discover key.Binding
	Back     key.Binding
	Quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Select:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		Rescan:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescan")),
		Manual:   key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "enter address")),
		Hidden:   key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "hidden network")),
		Next:     key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab", "next field")),
		Prev:     key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab", "previous")),
		Submit:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Retry:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "edit and retry")),
		Discover: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "another device")),
		Back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// screenKeys adapts the bindings of one screen to help.KeyMap.
type screenKeys []key.Binding

func (s screenKeys) ShortHelp() []key.Binding  { return s }
func (s screenKeys) FullHelp() [][]key.Binding { return [][]key.Binding{s} }

func (k keyMap) forScreen(s Screen) screenKeys {
	switch s {
	case ScreenDiscovery:
		return screenKeys{k.Select, k.Rescan, k.Manual, k.Quit}
	case ScreenNetworks:
		return screenKeys{k.Select, k.Hidden, k.Rescan, k.Back}
	case ScreenCredentials:
		return screenKeys{k.Next, k.Prev, k.Submit, k.Back}
	case ScreenSuccess:
		return screenKeys{k.Discover, k.Quit}
	case ScreenFailure:
		return screenKeys{k.Retry, k.Discover, k.Quit}
	default:
		return screenKeys{k.Quit}
	}
}
