package control

import (
	"strings"
	"time"

	"github.com/aceituno/teleagc/internal/classify"
)

// maxRecordedEvents bounds the events kept for the session report. The
// first maxRecordedEvents events are kept; later ones are not recorded.
const maxRecordedEvents = 200

// Stats accumulates session totals for the exit report. Owned by the loop
// goroutine; read only after Run returns.
type Stats struct {
	Started time.Time
	Stopped time.Time

	Windows     int
	LabelCounts [3]int

	AutoRaises   int
	AutoLowers   int
	ManualCount  int
	BaselineMove int
	Gaps         int
	Errors       int

	Events []Event
}

func (s *Stats) countLabel(l classify.Label) {
	s.LabelCounts[l]++
}

func (s *Stats) record(e Event) {
	switch e.Kind {
	case EventAutoAdjust:
		if strings.Contains(e.Detail, "+") {
			s.AutoRaises++
		} else {
			s.AutoLowers++
		}
	case EventManualAdjust:
		s.ManualCount++
	case EventBaselineShift:
		s.BaselineMove++
	case EventCaptureGap:
		s.Gaps++
	case EventRendererError:
		s.Errors++
	}
	if len(s.Events) < maxRecordedEvents {
		s.Events = append(s.Events, e)
	}
}

// recordingSink tees events into the stats before forwarding to the real
// sink.
type recordingSink struct {
	stats *Stats
	next  StatusSink
}

func (r recordingSink) Snapshot(s Snapshot) { r.next.Snapshot(s) }

func (r recordingSink) Event(e Event) {
	r.stats.record(e)
	r.next.Event(e)
}
