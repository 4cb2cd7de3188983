// Package dsp extracts band-energy features from analysis windows.
package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Band edges in Hz, half-open [lo, hi). The high band runs to Nyquist.
const (
	bassLo           = 20.0
	bassHi           = 200.0
	voiceFundLo      = 200.0
	voiceFundHi      = 500.0
	voiceFormantsLo  = 500.0
	voiceFormantsHi  = 2000.0
	voiceHarmonicsLo = 2000.0
	voiceHarmonicsHi = 4000.0
	highMidLo        = 4000.0
	highMidHi        = 8000.0
	highLo           = 8000.0
)

const energyEpsilon = 1e-10

// Bands holds per-band magnitude sums for one window, plus the mean and
// standard deviation of the positive half-spectrum.
type Bands struct {
	Bass           float64
	VoiceFund      float64
	VoiceFormants  float64
	VoiceHarmonics float64
	HighMid        float64
	High           float64
	Total          float64

	Mean   float64
	StdDev float64
}

// VoiceEnergy is the magnitude sum across the three voice bands.
func (b Bands) VoiceEnergy() float64 {
	return b.VoiceFund + b.VoiceFormants + b.VoiceHarmonics
}

// Features are the unitless classifier inputs derived from Bands.
type Features struct {
	VoiceFormantsRatio   float64
	VoiceEnergyRatio     float64
	BassRatio            float64
	HighRatio            float64
	BassToVoice          float64
	BackgroundMusicRatio float64
	SpectralVariation    float64
}

// Analyzer computes the half-spectrum of fixed-size windows and reduces it
// to band energies. One instance serves one window size; the FFT plan is
// reused across windows.
//
// No window function is applied before the transform: band ratios compare
// wide regions of the spectrum against each other, and the rectangular
// window keeps the analysis consistent with the level meter. The choice is
// fixed for the lifetime of the process.
type Analyzer struct {
	sampleRate int
	n          int
	fft        *fourier.FFT
	in         []float64
	coeffs     []complex128
	mags       []float64
	humBins    []bool
}

// NewAnalyzer builds an analyzer for windows of n samples. humHz of 50 or
// 60 enables the hum guard: bins within humHalfWidth of the mains
// fundamental and its harmonics below the bass band ceiling are excluded
// from the band sums, so amplified mains hum does not read as bass energy.
// humHz of 0 disables the guard.
func NewAnalyzer(sampleRate, n, humHz int) *Analyzer {
	a := &Analyzer{
		sampleRate: sampleRate,
		n:          n,
		fft:        fourier.NewFFT(n),
		in:         make([]float64, n),
		coeffs:     make([]complex128, n/2+1),
		mags:       make([]float64, n/2+1),
		humBins:    make([]bool, n/2+1),
	}
	if humHz > 0 {
		a.markHumBins(float64(humHz))
	}
	return a
}

// humHalfWidth is the exclusion half-width around each hum harmonic, in Hz.
// Narrow enough to leave real bass content intact.
const humHalfWidth = 5.0

func (a *Analyzer) markHumBins(fundamental float64) {
	binHz := float64(a.sampleRate) / float64(a.n)
	for harmonic := fundamental; harmonic < bassHi; harmonic += fundamental {
		lo := int(math.Ceil((harmonic - humHalfWidth) / binHz))
		hi := int(math.Floor((harmonic + humHalfWidth) / binHz))
		for i := lo; i <= hi && i < len(a.humBins); i++ {
			if i >= 0 {
				a.humBins[i] = true
			}
		}
	}
}

// Analyze computes band energies and derived features for one window of
// exactly the analyzer's size. The window is expected to be normalized.
func (a *Analyzer) Analyze(window []float32) (Bands, Features) {
	for i, s := range window {
		a.in[i] = float64(s)
	}
	coeffs := a.fft.Coefficients(a.coeffs, a.in)

	var sum, sumSq float64
	for i, c := range coeffs {
		m := math.Hypot(real(c), imag(c))
		a.mags[i] = m
		sum += m
		sumSq += m * m
	}

	count := float64(len(a.mags))
	mean := sum / count
	variance := sumSq/count - mean*mean
	if variance < 0 {
		variance = 0
	}

	bands := Bands{Mean: mean, StdDev: math.Sqrt(variance)}
	binHz := float64(a.sampleRate) / float64(a.n)
	for i, m := range a.mags {
		freq := float64(i) * binHz
		switch {
		case freq < bassLo:
		case freq < bassHi:
			if a.humBins[i] {
				continue
			}
			bands.Bass += m
		case freq < voiceFundHi:
			bands.VoiceFund += m
		case freq < voiceFormantsHi:
			bands.VoiceFormants += m
		case freq < voiceHarmonicsHi:
			bands.VoiceHarmonics += m
		case freq < highMidHi:
			bands.HighMid += m
		default:
			bands.High += m
		}
	}
	bands.Total = bands.Bass + bands.VoiceFund + bands.VoiceFormants +
		bands.VoiceHarmonics + bands.HighMid + bands.High

	return bands, deriveFeatures(bands)
}

func deriveFeatures(b Bands) Features {
	if b.Total <= energyEpsilon {
		return Features{}
	}

	voice := b.VoiceEnergy()
	voiceFloor := math.Max(voice, energyEpsilon)

	background := (b.Bass + b.High) / voiceFloor
	if background > 1 {
		background = 1
	}

	variation := 0.0
	if b.Mean > energyEpsilon {
		variation = b.StdDev / b.Mean
	}

	return Features{
		VoiceFormantsRatio:   b.VoiceFormants / b.Total,
		VoiceEnergyRatio:     voice / b.Total,
		BassRatio:            b.Bass / b.Total,
		HighRatio:            b.High / b.Total,
		BassToVoice:          b.Bass / voiceFloor,
		BackgroundMusicRatio: background,
		SpectralVariation:    variation,
	}
}
