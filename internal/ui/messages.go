package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aceituno/teleagc/internal/control"
)

// SnapshotMsg carries one state snapshot from the control loop.
type SnapshotMsg struct {
	Snapshot control.Snapshot
}

// EventMsg carries one status event for the log pane.
type EventMsg struct {
	Event control.Event
}

// LoopDoneMsg reports that the control loop returned; Err is nil on a
// clean quit.
type LoopDoneMsg struct {
	Err error
}

// Sink adapts the loop's StatusSink to the UI message channel. Sends never
// block the loop: when the UI falls behind and the channel is full, the
// update being sent is dropped.
type Sink struct {
	ch chan<- tea.Msg
}

// NewSink wraps a buffered message channel.
func NewSink(ch chan<- tea.Msg) Sink {
	return Sink{ch: ch}
}

func (s Sink) Snapshot(snap control.Snapshot) {
	select {
	case s.ch <- SnapshotMsg{Snapshot: snap}:
	default:
	}
}

func (s Sink) Event(e control.Event) {
	select {
	case s.ch <- EventMsg{Event: e}:
	default:
	}
}
