package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/aceituno/teleagc/internal/classify"
	"github.com/aceituno/teleagc/internal/control"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00AAAA"))

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	statusBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00AAAA")).
			Padding(0, 1).
			Width(72)

	logBox = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#888888")).
		Padding(0, 1)

	dialogueStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00AA00"))
	musicStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#AA00AA"))
	unknownStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	holdStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFA500"))
	warnStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A40000"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// renderDashboard composes the full view.
func renderDashboard(m Model) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("teleagc"))
	b.WriteString("  ")
	b.WriteString(subtitleStyle.Render("dialogue up, music down · " + m.DeviceName))
	b.WriteString("\n\n")

	b.WriteString(statusBox.Render(renderStatus(m)))
	b.WriteString("\n")

	b.WriteString(logBox.Width(m.eventLog.Width + 2).Render(m.eventLog.View()))
	b.WriteString("\n")

	b.WriteString(helpStyle.Render("↑/↓ volume · +/- target level · q quit"))
	b.WriteString("\n")

	return b.String()
}

func renderStatus(m Model) string {
	s := m.snapshot
	var b strings.Builder

	if !m.haveState {
		return "Waiting for first analysis window..."
	}

	volume := "--"
	if s.Volume != control.VolumeUnknown {
		volume = fmt.Sprintf("%d", s.Volume)
	}
	b.WriteString(fmt.Sprintf("Volume   %3s  %s  (auto cap %d)\n",
		volume, renderVolumeBar(s.Volume, s.BaselineMax, 40), s.BaselineMax))

	b.WriteString(fmt.Sprintf("Level    %6.1f dB  %s  target %.0f dB\n",
		s.DB, renderLevelBar(s.DB, 40), s.TargetDB))

	b.WriteString(fmt.Sprintf("Audio    %s  %.0f%%\n",
		renderLabel(s.Label), s.Confidence*100))

	mode := s.Mode.String()
	switch {
	case !s.Connected:
		mode = warnStyle.Render("disconnected, analyzing only")
	case s.Degraded:
		mode = warnStyle.Render("degraded, auto paused")
	case s.Mode == control.ModeManualHold:
		mode = holdStyle.Render(fmt.Sprintf("manual hold (%.0fs left)", s.PauseRemaining.Seconds()))
	}
	b.WriteString(fmt.Sprintf("Mode     %s", mode))

	if s.Gaps > 0 {
		b.WriteString(fmt.Sprintf("  ·  %d capture gap(s)", s.Gaps))
	}

	return b.String()
}

func renderLabel(l classify.Label) string {
	switch l {
	case classify.Dialogue:
		return dialogueStyle.Render("DIALOGUE")
	case classify.Music:
		return musicStyle.Render("MUSIC   ")
	default:
		return unknownStyle.Render("unknown ")
	}
}

// renderVolumeBar draws volume 0..100 with a marker at the baseline cap.
func renderVolumeBar(volume, baselineMax, width int) string {
	if volume == control.VolumeUnknown {
		volume = 0
	}
	filled := volume * width / 100
	capAt := baselineMax * width / 100

	var b strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i == capAt:
			b.WriteString("┃")
		case i < filled:
			b.WriteString("█")
		default:
			b.WriteString("░")
		}
	}
	return b.String()
}

// renderLevelBar maps -80..0 dB onto the bar width.
func renderLevelBar(db float64, width int) string {
	const floor = -80.0
	frac := (db - floor) / -floor
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	filled := int(frac * float64(width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
