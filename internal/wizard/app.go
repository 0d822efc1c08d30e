package wizard

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muurk/edgent/internal/client"
	"github.com/muurk/edgent/internal/discovery"
	"github.com/muurk/edgent/internal/scan"
	"github.com/muurk/edgent/internal/transport"
)

// Screen identifies the active step of the wizard.
type Screen string

const (
	ScreenDiscovery   Screen = "discovery"
	ScreenNetworks    Screen = "networks"
	ScreenCredentials Screen = "credentials"
	ScreenApplying    Screen = "applying"
	ScreenSuccess     Screen = "success"
	ScreenFailure     Screen = "failure"
)

// Device is the subset of the portal client the wizard uses.
type Device interface {
	BoardInfo(ctx context.Context) (*transport.BoardInfo, error)
	Scan(ctx context.Context) ([]scan.Network, error)
	Provision(ctx context.Context, p *client.Provision) (*client.Result, error)
}

// Config wires the wizard to discovery and the portal client.
type Config struct {
	Discover func(ctx context.Context) ([]*discovery.Device, error)
	Connect  func(d *discovery.Device) Device

	// Prefilled form values
	Token string
	Host  string
	Port  int
}

// Form field indexes
const (
	fieldSSID = iota
	fieldPass
	fieldToken
	fieldCount
)

// Async results
type devicesMsg struct {
	devices []*discovery.Device
	err     error
}

type boardMsg struct {
	info *transport.BoardInfo
	nets []scan.Network
	err  error
}

type provisionMsg struct {
	res *client.Result
	err error
}

// Model is the top-level bubbletea model.
type Model struct {
	Screen Screen

	cfg Config
	ctx context.Context

	devices  list.Model
	networks list.Model
	manual   textinput.Model
	inputs   []textinput.Model
	focus    int

	selected *discovery.Device
	dev      Device
	info     *transport.BoardInfo
	result   *client.Result

	loading  bool
	manualOn bool
	formErr  error
	Err      error

	spinner spinner.Model
	help    help.Model
	keys    keyMap
	width   int
	height  int
}

// New creates the wizard. ctx bounds every request it makes.
func New(ctx context.Context, cfg Config) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	manual := textinput.New()
	manual.Placeholder = client.DefaultAddress
	manual.CharLimit = 64
	manual.Width = 30

	inputs := make([]textinput.Model, fieldCount)
	for i := range inputs {
		in := textinput.New()
		in.Width = 40
		inputs[i] = in
	}
	inputs[fieldSSID].CharLimit = client.MaxSSIDLength
	inputs[fieldPass].CharLimit = client.MaxFieldLength
	inputs[fieldPass].EchoMode = textinput.EchoPassword
	inputs[fieldPass].Placeholder = "empty for an open network"
	inputs[fieldToken].CharLimit = client.TokenLength
	inputs[fieldToken].Placeholder = "32 character device token"
	inputs[fieldToken].SetValue(cfg.Token)

	return Model{
		Screen:   ScreenDiscovery,
		cfg:      cfg,
		ctx:      ctx,
		devices:  newList("Devices in configuration mode"),
		networks: newList("Networks"),
		manual:   manual,
		inputs:   inputs,
		spinner:  s,
		help:     help.New(),
		keys:     newKeyMap(),
		loading:  true,
	}
}

func newList(title string) list.Model {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.Styles.Title = titleStyle
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	// quitting is handled by the wizard
	l.KeyMap.Quit.SetEnabled(false)
	l.KeyMap.ForceQuit.SetEnabled(false)
	l.SetSize(60, 14)
	return l
}

// Init starts discovery.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.discover(), m.spinner.Tick)
}

// Update routes messages to the active screen.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		h := msg.Height - 12
		if h < 6 {
			h = 6
		}
		m.devices.SetSize(msg.Width-8, h)
		m.networks.SetSize(msg.Width-8, h)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case devicesMsg:
		m.loading = false
		m.Err = msg.err
		items := make([]list.Item, 0, len(msg.devices))
		for _, d := range msg.devices {
			items = append(items, deviceItem{d})
		}
		cmd := m.devices.SetItems(items)
		return m, cmd

	case boardMsg:
		m.loading = false
		if msg.err != nil {
			return m.fail(msg.err), nil
		}
		m.info = msg.info
		items := make([]list.Item, 0, len(msg.nets))
		for _, n := range msg.nets {
			items = append(items, networkItem{n})
		}
		cmd := m.networks.SetItems(items)
		return m, cmd

	case provisionMsg:
		m.loading = false
		if msg.err != nil {
			return m.fail(msg.err), nil
		}
		m.result = msg.res
		m.Screen = ScreenSuccess
		return m, nil
	}

	switch m.Screen {
	case ScreenDiscovery:
		return m.updateDiscovery(msg)
	case ScreenNetworks:
		return m.updateNetworks(msg)
	case ScreenCredentials:
		return m.updateCredentials(msg)
	case ScreenSuccess, ScreenFailure:
		return m.updateResult(msg)
	}
	return m, nil
}

func (m Model) updateDiscovery(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	keyMsg, isKey := msg.(tea.KeyMsg)

	if m.manualOn {
		if isKey {
			switch keyMsg.String() {
			case "esc":
				m.manualOn = false
				m.manual.Blur()
				return m, nil
			case "enter":
				addr := strings.TrimSpace(m.manual.Value())
				if addr == "" {
					addr = client.DefaultAddress
				}
				m.manualOn = false
				m.manual.Blur()
				return m.open(&discovery.Device{Name: addr, IP: addr, Port: discovery.DefaultPort})
			}
		}
		m.manual, cmd = m.manual.Update(msg)
		return m, cmd
	}

	if isKey && !m.loading && m.devices.FilterState() != list.Filtering {
		switch {
		case key.Matches(keyMsg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(keyMsg, m.keys.Rescan):
			m.loading = true
			m.Err = nil
			cmd := tea.Batch(m.devices.SetItems(nil), m.discover(), m.spinner.Tick)
			return m, cmd
		case key.Matches(keyMsg, m.keys.Manual):
			m.manualOn = true
			m.manual.SetValue("")
			cmd := m.manual.Focus()
			return m, cmd
		case key.Matches(keyMsg, m.keys.Select):
			if it, ok := m.devices.SelectedItem().(deviceItem); ok {
				return m.open(it.d)
			}
			return m, nil
		}
	}

	m.devices, cmd = m.devices.Update(msg)
	return m, cmd
}

func (m Model) updateNetworks(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, isKey := msg.(tea.KeyMsg)
	if isKey && !m.loading && m.networks.FilterState() != list.Filtering {
		switch {
		case key.Matches(keyMsg, m.keys.Back):
			m.Screen = ScreenDiscovery
			return m, nil
		case key.Matches(keyMsg, m.keys.Rescan):
			return m.open(m.selected)
		case key.Matches(keyMsg, m.keys.Hidden):
			return m.editCredentials("")
		case key.Matches(keyMsg, m.keys.Select):
			if it, ok := m.networks.SelectedItem().(networkItem); ok {
				return m.editCredentials(it.n.SSID)
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.networks, cmd = m.networks.Update(msg)
	return m, cmd
}

func (m Model) updateCredentials(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(keyMsg, m.keys.Back):
			m.Screen = ScreenNetworks
			return m, nil
		case key.Matches(keyMsg, m.keys.Next):
			cmd := m.focusField((m.focus + 1) % fieldCount)
			return m, cmd
		case key.Matches(keyMsg, m.keys.Prev):
			cmd := m.focusField((m.focus + fieldCount - 1) % fieldCount)
			return m, cmd
		case key.Matches(keyMsg, m.keys.Submit):
			p := m.provision()
			if err := p.Validate(); err != nil {
				m.formErr = err
				return m, nil
			}
			m.formErr = nil
			m.Screen = ScreenApplying
			m.loading = true
			return m, tea.Batch(m.send(p), m.spinner.Tick)
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) updateResult(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(keyMsg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.Discover):
		m.Screen = ScreenDiscovery
		m.loading = true
		m.Err = nil
		cmd := tea.Batch(m.devices.SetItems(nil), m.discover(), m.spinner.Tick)
		return m, cmd
	case m.Screen == ScreenFailure && key.Matches(keyMsg, m.keys.Retry):
		if m.info == nil {
			return m.open(m.selected)
		}
		m.Screen = ScreenCredentials
		cmd := m.focusField(m.focus)
		return m, cmd
	}
	return m, nil
}

// open selects a device and loads its board info and visible networks.
func (m Model) open(d *discovery.Device) (tea.Model, tea.Cmd) {
	m.selected = d
	m.dev = m.cfg.Connect(d)
	m.info = nil
	m.Screen = ScreenNetworks
	m.loading = true
	cmd := tea.Batch(m.networks.SetItems(nil), m.load(), m.spinner.Tick)
	return m, cmd
}

func (m Model) editCredentials(ssid string) (tea.Model, tea.Cmd) {
	m.inputs[fieldSSID].SetValue(ssid)
	m.Screen = ScreenCredentials
	m.formErr = nil
	if ssid == "" {
		cmd := m.focusField(fieldSSID)
		return m, cmd
	}
	cmd := m.focusField(fieldPass)
	return m, cmd
}

func (m *Model) focusField(i int) tea.Cmd {
	for j := range m.inputs {
		m.inputs[j].Blur()
	}
	m.focus = i
	return m.inputs[i].Focus()
}

func (m Model) fail(err error) Model {
	m.Err = err
	m.Screen = ScreenFailure
	return m
}

func (m Model) provision() *client.Provision {
	return &client.Provision{
		SSID:     strings.TrimSpace(m.inputs[fieldSSID].Value()),
		Password: m.inputs[fieldPass].Value(),
		Token:    strings.TrimSpace(m.inputs[fieldToken].Value()),
		Host:     m.cfg.Host,
		Port:     m.cfg.Port,
		Save:     true,
	}
}

func (m Model) discover() tea.Cmd {
	ctx, find := m.ctx, m.cfg.Discover
	return func() tea.Msg {
		devices, err := find(ctx)
		return devicesMsg{devices: devices, err: err}
	}
}

func (m Model) load() tea.Cmd {
	ctx, dev := m.ctx, m.dev
	return func() tea.Msg {
		info, err := dev.BoardInfo(ctx)
		if err != nil {
			return boardMsg{err: err}
		}
		if !info.WiFiScan {
			return boardMsg{info: info}
		}
		nets, err := dev.Scan(ctx)
		return boardMsg{info: info, nets: nets, err: err}
	}
}

func (m Model) send(p *client.Provision) tea.Cmd {
	ctx, dev := m.ctx, m.dev
	return func() tea.Msg {
		res, err := dev.Provision(ctx, p)
		return provisionMsg{res: res, err: err}
	}
}

// Run starts the wizard full screen and returns its final state.
func Run(ctx context.Context, cfg Config) (Model, error) {
	final, err := tea.NewProgram(New(ctx, cfg), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil {
		return Model{}, fmt.Errorf("wizard failed: %w", err)
	}
	return final.(Model), nil
}
