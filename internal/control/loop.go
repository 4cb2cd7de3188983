package control

import (
	"context"
	"fmt"
	"time"

	"github.com/aceituno/teleagc/internal/audio"
	"github.com/aceituno/teleagc/internal/classify"
	"github.com/aceituno/teleagc/internal/config"
	"github.com/aceituno/teleagc/internal/dsp"
	"github.com/aceituno/teleagc/internal/history"
)

const (
	// chunkQueueDepth bounds the capture queue. With one window per
	// chunk this holds 8 windows of samples, comfortably above the
	// 4-window minimum the capture thread needs to ride out a slow tick.
	chunkQueueDepth = 8

	// snapshotInterval throttles status publication to 10 Hz.
	snapshotInterval = 100 * time.Millisecond

	// deviceLostTimeout declares the capture device gone when no chunk
	// arrives for this long; one reopen is attempted.
	deviceLostTimeout = 2 * time.Second
)

// Loop is the single owner of the pipeline: it pulls capture chunks,
// assembles and analyzes windows, dispatches user input between windows,
// and consults the controller once per window.
type Loop struct {
	source   audio.Source
	asm      *audio.Assembler
	norm     audio.Normalizer
	analyzer *dsp.Analyzer
	cls      *classify.Classifier
	hist     *history.Window

	st       *State
	baseline *Baseline
	ctrl     *Controller
	sink     StatusSink

	chunks chan audio.Chunk
	inputs chan InputEvent

	stats        Stats
	lastSnapshot time.Time
	reopened     bool
}

// NewLoop assembles the pipeline around an already-connected controller.
// humHz selects the hum-guard fundamental; 0 disables it.
func NewLoop(cfg config.Settings, source audio.Source, st *State, b *Baseline, ctrl *Controller, sink StatusSink, humHz int) *Loop {
	if sink == nil {
		sink = NopSink{}
	}
	n := cfg.WindowSize()
	l := &Loop{
		source:   source,
		asm:      audio.NewAssembler(n),
		norm:     audio.NewNormalizer(cfg.NormTargetRMS, cfg.NormMaxGain),
		analyzer: dsp.NewAnalyzer(cfg.SampleRate, n, humHz),
		cls:      classify.New(classify.Thresholds{Dialogue: cfg.DialogueThreshold, Music: cfg.MusicThreshold}),
		hist:     history.New(cfg.SmoothingWindow),
		st:       st,
		baseline: b,
		ctrl:     ctrl,
		sink:     sink,
		chunks:   make(chan audio.Chunk, chunkQueueDepth),
		inputs:   make(chan InputEvent, 16),
	}
	// Route controller events through the stats recorder as well.
	teed := recordingSink{stats: &l.stats, next: sink}
	l.sink = teed
	ctrl.sink = teed
	return l
}

// Inputs is the channel user-input sources write to.
func (l *Loop) Inputs() chan<- InputEvent { return l.inputs }

// Stats returns session totals. Valid after Run returns.
func (l *Loop) Stats() *Stats { return &l.stats }

// Baselines returns the adaptive values for the optional exit dump.
func (l *Loop) Baselines() config.Baselines {
	return config.Baselines{
		TargetDB:       l.baseline.TargetDB,
		ThresholdLoud:  l.baseline.ThresholdLoud,
		ThresholdQuiet: l.baseline.ThresholdQuiet,
	}
}

// Run drives the loop until the context is cancelled, Quit arrives, or the
// capture device is lost beyond recovery. One final snapshot is published
// on the way out; no volume command is issued after shutdown begins.
func (l *Loop) Run(ctx context.Context) error {
	l.stats.Started = time.Now()
	defer func() {
		l.stats.Stopped = time.Now()
		l.publishSnapshot(time.Now(), true)
	}()

	if err := l.source.Start(l.chunks); err != nil {
		return err
	}
	defer l.source.Stop()

	if err := l.ctrl.SyncVolume(ctx); err != nil {
		// Start degraded rather than dying: analysis is still useful
		// while the renderer recovers.
		l.sink.Event(Event{Time: time.Now(), Kind: EventRendererError, Detail: err.Error()})
	}

	lost := time.NewTimer(deviceLostTimeout)
	defer lost.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-l.inputs:
			if quit := l.handleInput(ctx, ev); quit {
				return nil
			}

		case chunk := <-l.chunks:
			if !lost.Stop() {
				select {
				case <-lost.C:
				default:
				}
			}
			lost.Reset(deviceLostTimeout)
			if quit := l.handleChunk(ctx, chunk); quit {
				return nil
			}

		case <-lost.C:
			if err := l.reopenSource(); err != nil {
				return err
			}
			lost.Reset(deviceLostTimeout)
		}
	}
}

// handleChunk feeds the assembler and runs the analysis chain on every
// completed window. User events queued while a window was being analyzed
// are dispatched before the next window so a keypress never waits behind
// the whole batch.
func (l *Loop) handleChunk(ctx context.Context, chunk audio.Chunk) (quit bool) {
	if chunk.EOF {
		return true
	}
	if chunk.Overflow {
		l.asm.Flush()
		l.sink.Event(Event{Time: time.Now(), Kind: EventCaptureGap,
			Detail: fmt.Sprintf("capture overflow, gap %d", l.asm.Gaps())})
	}

	for _, window := range l.asm.Push(chunk.Samples) {
		if quit := l.drainInputs(ctx); quit {
			return true
		}
		l.analyzeWindow(ctx, window)
	}
	return false
}

// analyzeWindow runs the full chain for one window: level, normalize,
// spectrum, classify, smooth, decide.
func (l *Loop) analyzeWindow(ctx context.Context, window []float32) {
	now := time.Now()

	db := audio.DBFS(window)
	_, features := l.analyzer.Analyze(l.norm.Normalize(window))
	result := l.cls.Classify(features)

	l.hist.Push(db, result)
	l.stats.Windows++
	l.stats.countLabel(result.Label)

	smoothedDB := l.hist.SmoothedDB()
	label, confidence := l.hist.Predominant()
	l.ctrl.Tick(ctx, now, smoothedDB, label, confidence)

	l.publishSnapshot(now, false)
}

func (l *Loop) handleInput(ctx context.Context, ev InputEvent) (quit bool) {
	now := time.Now()
	switch ev {
	case VolumeUp:
		l.ctrl.Manual(ctx, now, +1, l.hist.SmoothedDB())
	case VolumeDown:
		l.ctrl.Manual(ctx, now, -1, l.hist.SmoothedDB())
	case BaselineUp:
		l.ctrl.NudgeBaseline(now, +1)
	case BaselineDown:
		l.ctrl.NudgeBaseline(now, -1)
	case Quit:
		return true
	}
	l.publishSnapshot(now, true)
	return false
}

func (l *Loop) drainInputs(ctx context.Context) (quit bool) {
	for {
		select {
		case ev := <-l.inputs:
			if quit := l.handleInput(ctx, ev); quit {
				return true
			}
		default:
			return false
		}
	}
}

// reopenSource attempts a single capture recovery after silence from the
// device; the second loss is fatal.
func (l *Loop) reopenSource() error {
	if l.reopened {
		return fmt.Errorf("%w: capture stalled twice", audio.ErrDeviceUnavailable)
	}
	l.reopened = true
	l.source.Stop()
	l.asm.Flush()
	if err := l.source.Start(l.chunks); err != nil {
		return fmt.Errorf("reopen capture: %w", err)
	}
	l.sink.Event(Event{Time: time.Now(), Kind: EventCaptureGap, Detail: "capture device reopened"})
	return nil
}

// publishSnapshot throttles to the snapshot interval unless forced.
func (l *Loop) publishSnapshot(now time.Time, force bool) {
	if !force && now.Sub(l.lastSnapshot) < snapshotInterval {
		return
	}
	l.lastSnapshot = now

	label, confidence := l.hist.Predominant()
	l.sink.Snapshot(Snapshot{
		Volume:         l.st.CurrentVolume,
		BaselineMax:    l.st.BaselineMax,
		DB:             l.hist.SmoothedDB(),
		Label:          label,
		Confidence:     confidence,
		Mode:           l.st.Mode(now),
		PauseRemaining: l.st.PauseRemaining(now),
		TargetDB:       l.baseline.TargetDB,
		ThresholdLoud:  l.baseline.ThresholdLoud,
		ThresholdQuiet: l.baseline.ThresholdQuiet,
		Degraded:       l.st.Degraded(now),
		Connected:      l.st.Connected,
		Gaps:           l.asm.Gaps(),
	})
}
