package audio

import "math"

// Normalizer scales a window to a target RMS before spectral analysis. The
// microphone may sit several metres from the TV, so band ratios are
// computed on a level-compensated copy; the level meter always sees the
// raw window. Gain is capped so the noise floor of a near-silent room
// cannot be amplified into spurious high-band energy.
type Normalizer struct {
	TargetRMS float64
	MaxGain   float64
}

// NewNormalizer returns a normalizer with the given target and cap.
func NewNormalizer(targetRMS, maxGain float64) Normalizer {
	return Normalizer{TargetRMS: targetRMS, MaxGain: maxGain}
}

// Gain computes the scale factor for a window with the given RMS, clamped
// to [0, MaxGain]. Near-silence clamps to MaxGain, which leaves an
// all-zero window untouched.
func (n Normalizer) Gain(rms float64) float64 {
	g := n.TargetRMS / math.Max(rms, rmsEpsilon)
	if g < 0 {
		return 0
	}
	if g > n.MaxGain {
		return n.MaxGain
	}
	return g
}

// Normalize returns a scaled copy of x. The input is never mutated.
func (n Normalizer) Normalize(x []float32) []float32 {
	g := float32(n.Gain(RMS(x)))
	out := make([]float32, len(x))
	for i, s := range x {
		out[i] = s * g
	}
	return out
}
