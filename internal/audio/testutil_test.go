package audio

import (
	"math"
	"testing"
)

// genSine produces a sine window at the given frequency and dBFS level.
func genSine(t *testing.T, freq float64, levelDB float64, n, sampleRate int) []float32 {
	t.Helper()

	// dBFS is RMS-referenced; a sine's peak sits sqrt(2) above its RMS.
	amp := math.Pow(10, levelDB/20) * math.Sqrt2

	out := make([]float32, n)
	for i := range out {
		ts := float64(i) / float64(sampleRate)
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*ts))
	}
	return out
}

// genNoise produces deterministic white-ish noise at roughly the given
// dBFS level, using the same LCG the encoder tests use upstream.
func genNoise(t *testing.T, levelDB float64, n int) []float32 {
	t.Helper()

	// Uniform noise in [-a, a] has RMS a/sqrt(3).
	amp := math.Pow(10, levelDB/20) * math.Sqrt(3)

	state := uint32(12345)
	next := func() float64 {
		state = state*1664525 + 1013904223
		return (float64(state)/float64(0xFFFFFFFF))*2 - 1
	}

	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * next())
	}
	return out
}

func genSilence(n int) []float32 {
	return make([]float32, n)
}
