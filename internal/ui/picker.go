package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/melchor629/chromecaster/internal/discovery"
)

// ErrPickerCancelled is returned when the user quits without choosing
var ErrPickerCancelled = errors.New("device selection cancelled")

// DeviceUpMsg tells the picker a device appeared or changed
type DeviceUpMsg struct {
	Device discovery.Device
}

// DeviceDownMsg tells the picker a device left
type DeviceDownMsg struct {
	Name string
}

// pickerKeyMap defines key bindings for the picker
type pickerKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k pickerKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k pickerKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Select, k.Quit},
	}
}

// PickerModel is a device list that fills in while discovery runs
type PickerModel struct {
	Devices  []discovery.Device
	Cursor   int
	Selected string
	Quit     bool

	Spinner spinner.Model
	Help    help.Model
	Keys    pickerKeyMap
}

// NewPickerModel creates a picker seeded with the devices already known
func NewPickerModel(initial []discovery.Device) PickerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	keys := pickerKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "move down"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("enter", "cast"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}

	return PickerModel{
		Devices: append([]discovery.Device(nil), initial...),
		Spinner: s,
		Help:    help.New(),
		Keys:    keys,
	}
}

// Init starts the spinner
func (m PickerModel) Init() tea.Cmd {
	return m.Spinner.Tick
}

// Update handles messages and updates the model
func (m PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.Keys.Quit):
			m.Quit = true
			return m, tea.Quit
		case key.Matches(msg, m.Keys.Up):
			if m.Cursor > 0 {
				m.Cursor--
			}
		case key.Matches(msg, m.Keys.Down):
			if m.Cursor < len(m.Devices)-1 {
				m.Cursor++
			}
		case key.Matches(msg, m.Keys.Select):
			if len(m.Devices) > 0 {
				m.Selected = m.Devices[m.Cursor].Name
				return m, tea.Quit
			}
		}

	case DeviceUpMsg:
		m.upsert(msg.Device)

	case DeviceDownMsg:
		m.remove(msg.Name)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *PickerModel) upsert(d discovery.Device) {
	for i := range m.Devices {
		if m.Devices[i].Name == d.Name {
			m.Devices[i] = d
			return
		}
	}
	m.Devices = append(m.Devices, d)
}

// remove drops a device and keeps the cursor on the same entry when it can
func (m *PickerModel) remove(name string) {
	for i := range m.Devices {
		if m.Devices[i].Name != name {
			continue
		}
		m.Devices = append(m.Devices[:i], m.Devices[i+1:]...)
		if m.Cursor > i || m.Cursor >= len(m.Devices) {
			m.Cursor--
		}
		if m.Cursor < 0 {
			m.Cursor = 0
		}
		return
	}
}

// View renders the picker
func (m PickerModel) View() string {
	if m.Selected != "" || m.Quit {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("%s Searching for Cast devices", m.Spinner.View())))
	b.WriteString("\n")

	if len(m.Devices) == 0 {
		b.WriteString(ItemStyle.Render(DeviceDetailStyle.Render("Nothing found yet...")))
		b.WriteString("\n")
	}
	for i, d := range m.Devices {
		label := d.Name
		if d.Type != "" {
			label += DeviceDetailStyle.Render(" (" + d.Type + ")")
		}
		if i == m.Cursor {
			b.WriteString(SelectedItemStyle.Render(CursorMarker + " " + label))
		} else {
			b.WriteString(ItemStyle.Render(label))
		}
		b.WriteString("\n")
	}

	b.WriteString(HelpStyle.Render(m.Help.View(m.Keys)))
	b.WriteString("\n")
	return b.String()
}

// deviceSource is the part of discovery.Engine the picker needs
type deviceSource interface {
	Subscribe(l discovery.Listener)
	Device(name string) (discovery.Device, error)
	Devices() []discovery.Device
}

// PickDevice runs the picker on the controlling terminal until the user
// chooses a device, and returns its name. The keyboard is read from the
// TTY so stdin can carry the stream.
func PickDevice(ctx context.Context, engine deviceSource, out io.Writer) (string, error) {
	// Subscribe before the snapshot so no device falls in between
	pending := make(chan tea.Msg, 64)
	engine.Subscribe(discovery.ListenerFuncs{
		Up: func(name string) {
			if d, err := engine.Device(name); err == nil {
				forward(pending, DeviceUpMsg{Device: d})
			}
		},
		Down: func(name string) {
			forward(pending, DeviceDownMsg{Name: name})
		},
	})

	p := tea.NewProgram(
		NewPickerModel(engine.Devices()),
		tea.WithContext(ctx),
		tea.WithInputTTY(),
		tea.WithOutput(out),
	)

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case msg := <-pending:
				p.Send(msg)
			case <-done:
				return
			}
		}
	}()

	final, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("device picker failed: %w", err)
	}
	m := final.(PickerModel)
	if m.Selected == "" {
		return "", ErrPickerCancelled
	}
	return m.Selected, nil
}

// forward queues msg without ever blocking the discovery loop. Once the
// picker has returned nobody drains the queue and late events are dropped.
func forward(pending chan<- tea.Msg, msg tea.Msg) {
	select {
	case pending <- msg:
	default:
	}
}
