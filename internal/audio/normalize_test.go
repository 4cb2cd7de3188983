package audio

import (
	"math"
	"testing"
)

func TestNormalizerGainBounds(t *testing.T) {
	n := NewNormalizer(0.15, 20.0)

	// Gain stays in [0, MaxGain] across the full RMS range.
	for _, rms := range []float64{0, 1e-12, 0.001, 0.0075, 0.15, 0.5, 1.0} {
		g := n.Gain(rms)
		if g < 0 || g > n.MaxGain {
			t.Errorf("Gain(%v) = %v outside [0, %v]", rms, g, n.MaxGain)
		}
	}
}

func TestNormalizerTargetsRMS(t *testing.T) {
	n := NewNormalizer(0.15, 20.0)

	t.Run("moderate_signal_reaches_target", func(t *testing.T) {
		x := genSine(t, 1000, -25, 8192, 44100)
		out := n.Normalize(x)
		if rms := RMS(out); math.Abs(rms-0.15) > 0.01 {
			t.Errorf("normalized RMS = %v, want ~0.15", rms)
		}
	})

	t.Run("weak_signal_capped_at_max_gain", func(t *testing.T) {
		x := genSine(t, 1000, -60, 8192, 44100)
		inRMS := RMS(x)
		out := n.Normalize(x)
		outRMS := RMS(out)
		if ratio := outRMS / inRMS; math.Abs(ratio-n.MaxGain) > 0.1 {
			t.Errorf("gain ratio = %v, want ~%v", ratio, n.MaxGain)
		}
	})

	t.Run("silence_stays_silent", func(t *testing.T) {
		out := n.Normalize(genSilence(1024))
		for i, s := range out {
			if s != 0 {
				t.Fatalf("sample %d = %v after normalizing silence", i, s)
			}
		}
	})
}

// The level meter must always see the raw signal; Normalize works on a
// copy.
func TestNormalizerDoesNotMutateInput(t *testing.T) {
	n := NewNormalizer(0.15, 20.0)
	x := genSine(t, 1000, -25, 1024, 44100)
	orig := make([]float32, len(x))
	copy(orig, x)

	n.Normalize(x)

	for i := range x {
		if x[i] != orig[i] {
			t.Fatalf("input mutated at sample %d", i)
		}
	}
}
