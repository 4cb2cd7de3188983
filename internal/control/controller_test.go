package control

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aceituno/teleagc/internal/classify"
	"github.com/aceituno/teleagc/internal/config"
	"github.com/aceituno/teleagc/internal/renderer"
)

// fakeRenderer records commands and can be scripted to fail.
type fakeRenderer struct {
	volume   int
	sets     []int
	setErrs  []error // consumed per SetVolume call
	getErr   error
	getCalls int
	closed   bool
}

func (f *fakeRenderer) GetVolume(ctx context.Context) (int, error) {
	f.getCalls++
	if f.getErr != nil {
		return 0, f.getErr
	}
	return f.volume, nil
}

func (f *fakeRenderer) SetVolume(ctx context.Context, v int) error {
	if len(f.setErrs) > 0 {
		err := f.setErrs[0]
		f.setErrs = f.setErrs[1:]
		if err != nil {
			return err
		}
	}
	f.volume = v
	f.sets = append(f.sets, v)
	return nil
}

func (f *fakeRenderer) Close() error {
	f.closed = true
	return nil
}

func transientErr() error {
	return fmt.Errorf("%w: injected", renderer.ErrUnreachable)
}

type testRig struct {
	st       *State
	baseline *Baseline
	rc       *fakeRenderer
	ctrl     *Controller
	now      time.Time
}

func newRig(t *testing.T, volume int) *testRig {
	t.Helper()
	cfg := config.Default()
	st := NewState(cfg)
	b := NewBaseline(cfg.TargetDB, cfg.ThresholdLoud, cfg.ThresholdQuiet)
	rc := &fakeRenderer{volume: volume}
	ctrl := NewController(st, b, rc, nil, nil)
	st.CurrentVolume = volume
	return &testRig{
		st:       st,
		baseline: b,
		rc:       rc,
		ctrl:     ctrl,
		now:      time.Now(),
	}
}

// advance moves the rig's synthetic clock.
func (r *testRig) advance(d time.Duration) time.Time {
	r.now = r.now.Add(d)
	return r.now
}

func TestSilenceGuard(t *testing.T) {
	rig := newRig(t, 50)

	// Well below the -65 dB silence threshold: never a command.
	for i := 0; i < 10; i++ {
		rig.ctrl.Tick(context.Background(), rig.advance(time.Second), -80, classify.Unknown, 0)
	}
	if len(rig.rc.sets) != 0 {
		t.Fatalf("silence produced %d commands", len(rig.rc.sets))
	}
}

func TestRateLimit(t *testing.T) {
	rig := newRig(t, 50)
	ctx := context.Background()

	// Quiet dialogue wants a raise every tick; the interval allows one.
	rig.ctrl.Tick(ctx, rig.now, -40, classify.Dialogue, 0.5)
	rig.ctrl.Tick(ctx, rig.advance(100*time.Millisecond), -40, classify.Dialogue, 0.5)
	rig.ctrl.Tick(ctx, rig.advance(100*time.Millisecond), -40, classify.Dialogue, 0.5)
	if len(rig.rc.sets) != 1 {
		t.Fatalf("got %d commands inside one interval, want 1", len(rig.rc.sets))
	}

	rig.ctrl.Tick(ctx, rig.advance(300*time.Millisecond), -40, classify.Dialogue, 0.5)
	if len(rig.rc.sets) != 2 {
		t.Fatalf("got %d commands after interval elapsed, want 2", len(rig.rc.sets))
	}
}

func TestDialogueRaise(t *testing.T) {
	t.Run("below_quiet_threshold_uses_multiplier", func(t *testing.T) {
		rig := newRig(t, 50)
		// conf 0.5: multiplier = 2.0 + 0.25*3.0 = 2.75 -> round(5*2.75) = 14.
		rig.ctrl.Tick(context.Background(), rig.now, -40, classify.Dialogue, 0.5)
		if len(rig.rc.sets) != 1 || rig.rc.sets[0] != 64 {
			t.Fatalf("sets = %v, want [64]", rig.rc.sets)
		}
	})

	t.Run("between_quiet_and_target_uses_plain_step", func(t *testing.T) {
		rig := newRig(t, 50)
		rig.ctrl.Tick(context.Background(), rig.now, -25, classify.Dialogue, 0.5)
		if len(rig.rc.sets) != 1 || rig.rc.sets[0] != 55 {
			t.Fatalf("sets = %v, want [55]", rig.rc.sets)
		}
	})

	t.Run("at_target_no_command", func(t *testing.T) {
		rig := newRig(t, 50)
		rig.ctrl.Tick(context.Background(), rig.now, -18, classify.Dialogue, 0.9)
		if len(rig.rc.sets) != 0 {
			t.Fatalf("sets = %v, want none", rig.rc.sets)
		}
	})

	t.Run("never_exceeds_baseline_max", func(t *testing.T) {
		rig := newRig(t, 68)
		ctx := context.Background()
		for i := 0; i < 20; i++ {
			rig.ctrl.Tick(ctx, rig.advance(time.Second), -40, classify.Dialogue, 0.9)
		}
		for _, v := range rig.rc.sets {
			if v > rig.st.BaselineMax {
				t.Fatalf("auto command %d above baseline max %d", v, rig.st.BaselineMax)
			}
		}
		if rig.st.CurrentVolume != rig.st.BaselineMax {
			t.Errorf("volume settled at %d, want %d", rig.st.CurrentVolume, rig.st.BaselineMax)
		}
		// Once capped, no redundant sets.
		before := len(rig.rc.sets)
		rig.ctrl.Tick(ctx, rig.advance(time.Second), -40, classify.Dialogue, 0.9)
		if len(rig.rc.sets) != before {
			t.Errorf("redundant command at the cap")
		}
	})
}

func TestMusicLower(t *testing.T) {
	t.Run("above_loud_threshold_uses_multiplier", func(t *testing.T) {
		rig := newRig(t, 50)
		// conf 0.9: multiplier = 0.8 + 0.4*1.5 = 1.4 clamped to 1.2 ->
		// round(5*1.2) = 6.
		rig.ctrl.Tick(context.Background(), rig.now, -10, classify.Music, 0.9)
		if len(rig.rc.sets) != 1 || rig.rc.sets[0] != 44 {
			t.Fatalf("sets = %v, want [44]", rig.rc.sets)
		}
	})

	t.Run("above_target_margin_uses_plain_step", func(t *testing.T) {
		rig := newRig(t, 50)
		rig.ctrl.Tick(context.Background(), rig.now, -16, classify.Music, 0.6)
		if len(rig.rc.sets) != 1 || rig.rc.sets[0] != 45 {
			t.Fatalf("sets = %v, want [45]", rig.rc.sets)
		}
	})

	t.Run("never_below_hard_min", func(t *testing.T) {
		rig := newRig(t, 23)
		ctx := context.Background()
		for i := 0; i < 10; i++ {
			rig.ctrl.Tick(ctx, rig.advance(time.Second), -5, classify.Music, 0.9)
		}
		for _, v := range rig.rc.sets {
			if v < rig.st.HardMin {
				t.Fatalf("auto command %d below hard min %d", v, rig.st.HardMin)
			}
		}
	})
}

func TestUnknownLabel(t *testing.T) {
	rig := newRig(t, 50)
	ctx := context.Background()

	rig.ctrl.Tick(ctx, rig.now, -10, classify.Unknown, 0)
	if len(rig.rc.sets) != 1 || rig.rc.sets[0] != 45 {
		t.Fatalf("loud unknown sets = %v, want [45]", rig.rc.sets)
	}

	rig.ctrl.Tick(ctx, rig.advance(time.Second), -50, classify.Unknown, 0)
	if len(rig.rc.sets) != 2 || rig.rc.sets[1] != 50 {
		t.Fatalf("quiet unknown sets = %v, want second 50", rig.rc.sets)
	}

	rig.ctrl.Tick(ctx, rig.advance(time.Second), -25, classify.Unknown, 0)
	if len(rig.rc.sets) != 2 {
		t.Fatalf("mid-range unknown issued a command: %v", rig.rc.sets)
	}
}

func TestManualOverride(t *testing.T) {
	t.Run("exceeds_baseline_up_to_hard_max", func(t *testing.T) {
		rig := newRig(t, 70) // at the baseline cap already
		ctx := context.Background()

		rig.ctrl.Manual(ctx, rig.now, +1, -20)
		rig.ctrl.Manual(ctx, rig.advance(time.Second), +1, -20)
		if rig.st.CurrentVolume != 74 {
			t.Fatalf("volume = %d, want 74", rig.st.CurrentVolume)
		}

		// Hard max still binds.
		for i := 0; i < 10; i++ {
			rig.ctrl.Manual(ctx, rig.advance(time.Second), +1, -20)
		}
		if rig.st.CurrentVolume != rig.st.HardMax {
			t.Fatalf("volume = %d, want hard max %d", rig.st.CurrentVolume, rig.st.HardMax)
		}
	})

	t.Run("suppresses_auto_for_pause_window", func(t *testing.T) {
		rig := newRig(t, 50)
		ctx := context.Background()

		rig.ctrl.Manual(ctx, rig.now, +1, -20)
		autoBase := len(rig.rc.sets)

		// Nine seconds of loud music: still inside the 10 s hold.
		for i := 0; i < 9; i++ {
			rig.ctrl.Tick(ctx, rig.advance(time.Second), -10, classify.Music, 0.9)
		}
		if len(rig.rc.sets) != autoBase {
			t.Fatalf("auto command during manual hold")
		}

		// Past the hold the controller resumes.
		rig.ctrl.Tick(ctx, rig.advance(2*time.Second), -10, classify.Music, 0.9)
		if len(rig.rc.sets) != autoBase+1 {
			t.Fatalf("auto did not resume after hold")
		}
	})

	t.Run("resumes_below_baseline_after_manual_excess", func(t *testing.T) {
		rig := newRig(t, 74) // user pushed past the baseline cap
		ctx := context.Background()

		rig.ctrl.Tick(ctx, rig.now, -40, classify.Dialogue, 0.9)
		if len(rig.rc.sets) != 0 {
			t.Fatalf("auto raised above baseline max: %v", rig.rc.sets)
		}
	})
}

func TestTransientFailureRetries(t *testing.T) {
	t.Run("two_failures_then_success", func(t *testing.T) {
		rig := newRig(t, 50)
		rig.rc.setErrs = []error{transientErr(), transientErr(), nil}

		before := rig.st.LastAdjustAt
		rig.ctrl.Tick(context.Background(), rig.now, -40, classify.Dialogue, 0.5)

		if len(rig.rc.sets) != 1 {
			t.Fatalf("sets = %v, want one successful command", rig.rc.sets)
		}
		if rig.st.LastAdjustAt == before {
			t.Error("LastAdjustAt not advanced after eventual success")
		}
		if rig.st.Failures != 0 {
			t.Errorf("failure counter = %d after success", rig.st.Failures)
		}
	})

	t.Run("exhausted_retries_degrade", func(t *testing.T) {
		rig := newRig(t, 50)
		rig.rc.setErrs = []error{transientErr(), transientErr(), transientErr()}

		before := rig.st.LastAdjustAt
		rig.ctrl.Tick(context.Background(), rig.now, -40, classify.Dialogue, 0.5)

		if len(rig.rc.sets) != 0 {
			t.Fatalf("sets = %v, want none", rig.rc.sets)
		}
		if rig.st.LastAdjustAt != before {
			t.Error("LastAdjustAt advanced on failure")
		}
		if !rig.st.Degraded(rig.now.Add(time.Second)) {
			t.Error("not degraded after exhausted retries")
		}

		// Degraded: no commands even for loud content.
		rig.ctrl.Tick(context.Background(), rig.advance(2*time.Second), -10, classify.Music, 0.9)
		if len(rig.rc.sets) != 0 {
			t.Fatalf("command issued while degraded")
		}

		// Cool-off over: commands flow again.
		rig.ctrl.Tick(context.Background(), rig.advance(10*time.Second), -10, classify.Music, 0.9)
		if len(rig.rc.sets) != 1 {
			t.Fatalf("command not issued after cool-off: %v", rig.rc.sets)
		}
	})
}

func TestReconnectAfterConsecutiveFailures(t *testing.T) {
	cfg := config.Default()
	st := NewState(cfg)
	b := NewBaseline(cfg.TargetDB, cfg.ThresholdLoud, cfg.ThresholdQuiet)

	old := &fakeRenderer{volume: 50}
	fresh := &fakeRenderer{volume: 50}
	reconnects := 0
	ctrl := NewController(st, b, old, func(ctx context.Context) (renderer.Control, error) {
		reconnects++
		return fresh, nil
	}, nil)
	st.CurrentVolume = 50

	now := time.Now()
	ctx := context.Background()
	for i := 0; i < failuresBeforeReconnect; i++ {
		old.setErrs = []error{transientErr(), transientErr(), transientErr()}
		now = now.Add(10 * time.Second) // clear rate limit and cool-off
		ctrl.Tick(ctx, now, -40, classify.Dialogue, 0.5)
	}

	if reconnects != 1 {
		t.Fatalf("reconnects = %d, want 1", reconnects)
	}
	if !old.closed {
		t.Error("stale transport not closed")
	}
	if !st.Connected {
		t.Error("state not marked connected after reconnect")
	}
	if st.CurrentVolume != VolumeUnknown {
		t.Errorf("volume should be re-read after reconnect, got %d", st.CurrentVolume)
	}
}

// Setting the same volume twice is equivalent to setting it once: a zero
// delta or a clamp back to the current value never reaches the renderer.
func TestNoRedundantCommands(t *testing.T) {
	rig := newRig(t, 70)
	ctx := context.Background()

	// Dialogue at the cap: delta clamps to zero.
	for i := 0; i < 5; i++ {
		rig.ctrl.Tick(ctx, rig.advance(time.Second), -40, classify.Dialogue, 0.9)
	}
	if len(rig.rc.sets) != 0 {
		t.Fatalf("redundant sets issued: %v", rig.rc.sets)
	}
}
