package control

import (
	"time"

	"github.com/aceituno/teleagc/internal/config"
)

// VolumeUnknown marks that no reading has been obtained from the renderer
// yet.
const VolumeUnknown = -1

// State is the controller's authoritative view of the renderer and its
// limits. Created once at startup, mutated only from the loop goroutine.
type State struct {
	CurrentVolume int

	BaselineMax int // automatic increases stop here
	HardMax     int // nothing goes above this, manual included
	HardMin     int

	SilenceThreshold float64

	Step              int
	MinAdjustInterval time.Duration
	ManualPause       time.Duration

	LastAdjustAt     time.Time
	ManualPauseUntil time.Time

	LastManualVolume int
	LastManualDB     float64

	// Degraded blocks automatic commands after repeated transport
	// failures; analysis keeps running.
	DegradedUntil time.Time
	Failures      int // consecutive command failures
	Connected     bool
}

// NewState seeds controller state from settings.
func NewState(s config.Settings) *State {
	return &State{
		CurrentVolume:     VolumeUnknown,
		BaselineMax:       s.VolumeBaselineMax,
		HardMax:           s.VolumeMax,
		HardMin:           s.VolumeMin,
		SilenceThreshold:  s.SilenceDB,
		Step:              s.AdjustmentStep,
		MinAdjustInterval: s.AdjustInterval(),
		ManualPause:       s.PauseDuration(),
		LastManualVolume:  VolumeUnknown,
		Connected:         true,
	}
}

// Mode reports auto or manual hold at the given instant.
func (st *State) Mode(now time.Time) Mode {
	if now.Before(st.ManualPauseUntil) {
		return ModeManualHold
	}
	return ModeAuto
}

// PauseRemaining reports how much of the manual hold is left.
func (st *State) PauseRemaining(now time.Time) time.Duration {
	if remaining := st.ManualPauseUntil.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// Degraded reports whether the transport is in its cool-off window.
func (st *State) Degraded(now time.Time) bool {
	return now.Before(st.DegradedUntil)
}

// clampHard bounds a volume to the absolute limits.
func (st *State) clampHard(v int) int {
	if v < st.HardMin {
		return st.HardMin
	}
	if v > st.HardMax {
		return st.HardMax
	}
	return v
}
