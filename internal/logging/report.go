package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aceituno/teleagc/internal/classify"
	"github.com/aceituno/teleagc/internal/control"
)

// ReportData carries everything the session report needs.
type ReportData struct {
	DeviceName string
	Backend    string
	Stats      *control.Stats
	TargetDB   float64
	Loud       float64
	Quiet      float64
}

// WriteReport renders the session report to path.
func WriteReport(path string, data ReportData) error {
	var sb strings.Builder

	sb.WriteString("teleagc session report\n")
	sb.WriteString(strings.Repeat("=", 60) + "\n\n")

	st := data.Stats
	runtime := st.Stopped.Sub(st.Started)

	session := &StatTable{}
	session.Add("Device", "%s (%s)", data.DeviceName, data.Backend)
	session.Add("Started", "%s", st.Started.Format(time.RFC3339))
	session.AddUnit("Runtime", "", "%s", runtime.Round(time.Second))
	session.Add("Windows analyzed", "%d", st.Windows)
	sb.WriteString("Session\n")
	sb.WriteString(session.String() + "\n")

	labels := &StatTable{}
	total := st.Windows
	if total == 0 {
		total = 1
	}
	for _, l := range []classify.Label{classify.Dialogue, classify.Music, classify.Unknown} {
		n := st.LabelCounts[l]
		labels.Add(l.String(), "%d (%d%%)", n, n*100/total)
	}
	sb.WriteString("Classification\n")
	sb.WriteString(labels.String() + "\n")

	adjust := &StatTable{}
	adjust.Add("Auto raises", "%d", st.AutoRaises)
	adjust.Add("Auto lowers", "%d", st.AutoLowers)
	adjust.Add("Manual presses", "%d", st.ManualCount)
	adjust.Add("Baseline shifts", "%d", st.BaselineMove)
	adjust.Add("Capture gaps", "%d", st.Gaps)
	adjust.Add("Renderer errors", "%d", st.Errors)
	sb.WriteString("Adjustments\n")
	sb.WriteString(adjust.String() + "\n")

	final := &StatTable{}
	final.AddUnit("Target level", "dB", "%.1f", data.TargetDB)
	final.AddUnit("Loud threshold", "dB", "%.1f", data.Loud)
	final.AddUnit("Quiet threshold", "dB", "%.1f", data.Quiet)
	sb.WriteString("Final baselines\n")
	sb.WriteString(final.String() + "\n")

	if len(st.Events) > 0 {
		sb.WriteString("Events\n")
		for _, e := range st.Events {
			sb.WriteString(fmt.Sprintf("  %s  %-12s %s\n",
				e.Time.Format(time.TimeOnly), e.Kind, e.Detail))
		}
	}

	return os.WriteFile(path, []byte(sb.String()), 0o644)
}
