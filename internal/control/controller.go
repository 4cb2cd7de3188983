package control

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aceituno/teleagc/internal/classify"
	"github.com/aceituno/teleagc/internal/renderer"
)

// Dialogue pushes hard: confidence above its floor scales the step up to
// 3.5x. Music pulls gently: even confident music only slightly exceeds one
// step.
const (
	dialogueMultBase  = 2.0
	dialogueMultMax   = 3.5
	dialogueConfFloor = 0.25
	dialogueConfSlope = 3.0

	musicMultBase  = 0.8
	musicMultMin   = 0.5
	musicMultMax   = 1.2
	musicConfFloor = 0.5
	musicConfSlope = 1.5

	// Music also backs off when the level drifts this far above target
	// without crossing the loud threshold.
	musicTargetMargin = 3.0

	manualStep = 2

	// Transport failure policy.
	retryBackoffFirst       = 100 * time.Millisecond
	retryBackoffSecond      = 400 * time.Millisecond
	degradedCoolOff         = 5 * time.Second
	failuresBeforeReconnect = 3

	// After a silence stretch the first command may come sooner than the
	// configured interval.
	silenceRecoveryInterval = 300 * time.Millisecond
)

// Reconnector re-runs discovery after the transport is declared lost.
type Reconnector func(ctx context.Context) (renderer.Control, error)

// Controller turns smoothed measurements into bounded, rate-limited volume
// commands. It is not safe for concurrent use; the loop goroutine owns it.
type Controller struct {
	st        *State
	baseline  *Baseline
	rc        renderer.Control
	reconnect Reconnector
	sink      StatusSink

	prevSilence bool
}

// NewController wires the controller. reconnect may be nil, in which case
// a lost transport stays lost.
func NewController(st *State, b *Baseline, rc renderer.Control, reconnect Reconnector, sink StatusSink) *Controller {
	if sink == nil {
		sink = NopSink{}
	}
	return &Controller{st: st, baseline: b, rc: rc, reconnect: reconnect, sink: sink}
}

// SyncVolume reads the renderer's current volume into state. Called once
// at startup and after reconnects.
func (c *Controller) SyncVolume(ctx context.Context) error {
	v, err := c.rc.GetVolume(ctx)
	if err != nil {
		return err
	}
	c.st.CurrentVolume = v
	return nil
}

// Tick evaluates one smoothed measurement. Exactly one decision is made
// per analyzed window; silence, manual hold, rate limiting, and degraded
// transport all resolve to "no command".
func (c *Controller) Tick(ctx context.Context, now time.Time, db float64, label classify.Label, confidence float64) {
	if db <= c.st.SilenceThreshold {
		c.prevSilence = true
		return
	}
	wasSilence := c.prevSilence
	c.prevSilence = false

	if c.st.Mode(now) == ModeManualHold {
		return
	}
	if c.st.Degraded(now) || !c.st.Connected {
		return
	}

	interval := c.st.MinAdjustInterval
	if wasSilence && silenceRecoveryInterval < interval {
		interval = silenceRecoveryInterval
	}
	if now.Sub(c.st.LastAdjustAt) < interval {
		return
	}

	v := c.st.CurrentVolume
	if v == VolumeUnknown {
		if err := c.SyncVolume(ctx); err != nil {
			c.transportFailure(ctx, now, err)
			return
		}
		v = c.st.CurrentVolume
	}

	delta := c.decide(v, db, label, confidence)
	if delta == 0 {
		return
	}

	target := c.st.clampHard(v + delta)
	if target == v {
		return
	}

	if err := c.command(ctx, target); err != nil {
		c.transportFailure(ctx, now, err)
		return
	}
	c.st.Failures = 0
	c.st.CurrentVolume = target
	c.st.LastAdjustAt = now
	c.sink.Event(Event{Time: now, Kind: EventAutoAdjust,
		Detail: fmt.Sprintf("%s %+d -> %d", label, target-v, target)})
}

// decide computes the signed volume change for one measurement, before
// hard clamping.
func (c *Controller) decide(v int, db float64, label classify.Label, confidence float64) int {
	b := c.baseline
	step := c.st.Step

	switch label {
	case classify.Dialogue:
		mult := clampF(dialogueMultBase+(confidence-dialogueConfFloor)*dialogueConfSlope, 1.0, dialogueMultMax)
		var delta int
		switch {
		case db < b.ThresholdQuiet:
			delta = int(math.Round(float64(step) * mult))
		case db < b.TargetDB:
			delta = step
		}
		return capRaise(v, delta, c.st.BaselineMax)

	case classify.Music:
		mult := clampF(musicMultBase+(confidence-musicConfFloor)*musicConfSlope, musicMultMin, musicMultMax)
		var delta int
		switch {
		case db > b.ThresholdLoud:
			delta = -int(math.Round(float64(step) * mult))
		case db > b.TargetDB+musicTargetMargin:
			delta = -step
		}
		return capLower(v, delta, c.st.HardMin)

	default:
		switch {
		case db > b.ThresholdLoud:
			return capLower(v, -step, c.st.HardMin)
		case db < b.ThresholdQuiet:
			return capRaise(v, step, c.st.BaselineMax)
		}
		return 0
	}
}

// Manual applies one user volume press. Manual commands respect only the
// hard limits and may exceed the baseline cap; every press opens the
// manual hold window and feeds the adaptive baseline.
func (c *Controller) Manual(ctx context.Context, now time.Time, direction int, smoothedDB float64) {
	v := c.st.CurrentVolume
	if v == VolumeUnknown {
		if err := c.SyncVolume(ctx); err != nil {
			c.transportFailure(ctx, now, err)
			return
		}
		v = c.st.CurrentVolume
	}

	target := c.st.clampHard(v + direction*manualStep)
	if target != v {
		if err := c.command(ctx, target); err != nil {
			c.transportFailure(ctx, now, err)
			return
		}
		c.st.Failures = 0
		c.st.CurrentVolume = target
	}

	c.st.ManualPauseUntil = now.Add(c.st.ManualPause)
	c.st.LastManualVolume = target
	c.st.LastManualDB = smoothedDB

	if shift := c.baseline.RecordManual(direction, smoothedDB); shift != 0 {
		c.sink.Event(Event{Time: now, Kind: EventBaselineShift,
			Detail: fmt.Sprintf("target %+.0f dB -> %.0f dB", shift, c.baseline.TargetDB)})
	}
	c.sink.Event(Event{Time: now, Kind: EventManualAdjust,
		Detail: fmt.Sprintf("%+d -> %d", direction*manualStep, target)})
}

// NudgeBaseline applies a +/- key: shift the target and both thresholds by
// one dB without touching the volume.
func (c *Controller) NudgeBaseline(now time.Time, direction int) {
	if shift := c.baseline.Shift(float64(direction) * baselineStepDB); shift != 0 {
		c.sink.Event(Event{Time: now, Kind: EventBaselineShift,
			Detail: fmt.Sprintf("target %+.0f dB -> %.0f dB", shift, c.baseline.TargetDB)})
	}
}

// command issues one set_volume with the transient-failure retry ladder:
// immediate attempt, then 100 ms and 400 ms backoffs. The renderer call
// carries its own 2 s timeout and no lock is held here.
func (c *Controller) command(ctx context.Context, volume int) error {
	var err error
	for _, wait := range []time.Duration{0, retryBackoffFirst, retryBackoffSecond} {
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = c.rc.SetVolume(ctx, volume); err == nil {
			return nil
		}
		if !errors.Is(err, renderer.ErrUnreachable) {
			return err
		}
	}
	return err
}

// transportFailure records a failed command: cool off, and after three
// consecutive failures attempt rediscovery. State is left unchanged so the
// failed command is not reflected anywhere.
func (c *Controller) transportFailure(ctx context.Context, now time.Time, err error) {
	c.st.Failures++
	c.st.DegradedUntil = now.Add(degradedCoolOff)
	c.sink.Event(Event{Time: now, Kind: EventRendererError, Detail: err.Error()})
	c.sink.Event(Event{Time: now, Kind: EventDegraded,
		Detail: fmt.Sprintf("auto paused %s", degradedCoolOff)})

	if c.st.Failures < failuresBeforeReconnect || c.reconnect == nil {
		return
	}

	rc, rerr := c.reconnect(ctx)
	if rerr != nil {
		c.st.Connected = false
		c.sink.Event(Event{Time: now, Kind: EventDisconnected, Detail: rerr.Error()})
		return
	}
	c.rc.Close()
	c.rc = rc
	c.st.Connected = true
	c.st.Failures = 0
	c.st.CurrentVolume = VolumeUnknown
	c.sink.Event(Event{Time: now, Kind: EventReconnected})
}

func capRaise(v, delta, max int) int {
	if delta <= 0 {
		return delta
	}
	if v >= max {
		return 0
	}
	if v+delta > max {
		return max - v
	}
	return delta
}

func capLower(v, delta, min int) int {
	if delta >= 0 {
		return delta
	}
	if v <= min {
		return 0
	}
	if v+delta < min {
		return min - v
	}
	return delta
}

func clampF(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
