// Package ui provides the Bubbletea terminal dashboard for the AGC loop.
package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aceituno/teleagc/internal/control"
)

// eventLogDepth bounds the in-memory event log.
const eventLogDepth = 100

// Model is the Bubbletea model for the live dashboard. Key presses become
// InputEvents for the control loop; snapshots and events flow back through
// StatusChan.
type Model struct {
	DeviceName string

	// StatusChan receives SnapshotMsg/EventMsg/LoopDoneMsg from outside
	// the program.
	StatusChan chan tea.Msg

	inputs chan<- control.InputEvent

	snapshot  control.Snapshot
	haveState bool

	events   []string
	eventLog viewport.Model

	width  int
	height int

	done    bool
	loopErr error
}

// NewModel creates the dashboard model. inputs is the control loop's input
// channel; status is the buffered channel its Sink publishes into.
func NewModel(deviceName string, inputs chan<- control.InputEvent, status chan tea.Msg) Model {
	m := Model{
		DeviceName: deviceName,
		StatusChan: status,
		inputs:     inputs,
		eventLog:   viewport.New(72, 8),
	}
	m.snapshot.Volume = control.VolumeUnknown
	return m
}

// LoopErr reports the control loop's exit error after the program ends.
func (m Model) LoopErr() error { return m.loopErr }

// Init starts listening for status messages.
func (m Model) Init() tea.Cmd {
	return waitForStatus(m.StatusChan)
}

// Update handles key input and loop status messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			m.send(control.VolumeUp)
		case "down", "j":
			m.send(control.VolumeDown)
		case "+", "=":
			m.send(control.BaselineUp)
		case "-", "_":
			m.send(control.BaselineDown)
		case "q", "ctrl+c":
			m.send(control.Quit)
			m.done = true
			return m, tea.Quit
		default:
			var cmd tea.Cmd
			m.eventLog, cmd = m.eventLog.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.eventLog.Width = msg.Width - 4
		if h := msg.Height - 14; h > 3 {
			m.eventLog.Height = h
		}

	case SnapshotMsg:
		m.snapshot = msg.Snapshot
		m.haveState = true
		return m, waitForStatus(m.StatusChan)

	case EventMsg:
		m.appendEvent(msg.Event)
		return m, waitForStatus(m.StatusChan)

	case LoopDoneMsg:
		m.loopErr = msg.Err
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

// send forwards an input event without ever blocking the UI thread.
func (m *Model) send(ev control.InputEvent) {
	select {
	case m.inputs <- ev:
	default:
	}
}

func (m *Model) appendEvent(e control.Event) {
	line := fmt.Sprintf("%s  %-12s %s",
		e.Time.Format(time.TimeOnly), "["+e.Kind.String()+"]", e.Detail)
	m.events = append(m.events, line)
	if len(m.events) > eventLogDepth {
		m.events = m.events[len(m.events)-eventLogDepth:]
	}
	m.eventLog.SetContent(joinLines(m.events))
	m.eventLog.GotoBottom()
}

// View renders the dashboard.
func (m Model) View() string {
	if m.width == 0 {
		return "Starting..."
	}
	return renderDashboard(m)
}

// waitForStatus pulls the next message published by the control loop.
func waitForStatus(ch chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}
