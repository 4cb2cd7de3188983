// Package config holds the runtime settings for the AGC loop.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Settings is the complete runtime configuration. Zero value is not usable;
// start from Default() and override.
type Settings struct {
	DeviceName  string `toml:"device"`
	DeviceIndex int    `toml:"device_index"`

	VolumeMin         int `toml:"volume_min"`
	VolumeMax         int `toml:"volume_max"`
	VolumeBaselineMax int `toml:"volume_baseline_max"`

	TargetDB       float64 `toml:"target_db"`
	ThresholdLoud  float64 `toml:"threshold_loud"`
	ThresholdQuiet float64 `toml:"threshold_quiet"`
	SilenceDB      float64 `toml:"silence_threshold"`

	AdjustmentStep    int     `toml:"step"`
	MinAdjustInterval float64 `toml:"min_adjust_interval"` // seconds
	ManualPause       float64 `toml:"manual_pause"`        // seconds

	SampleRate    int     `toml:"sample_rate"`
	ChunkDuration float64 `toml:"chunk_duration"` // seconds

	SmoothingWindow int `toml:"smoothing_window"`

	NormTargetRMS float64 `toml:"norm_target_rms"`
	NormMaxGain   float64 `toml:"norm_max_gain"`

	// Classifier decision thresholds. The 0.20/0.40 variant documented in
	// older captures of this tuning is reachable by overriding these.
	DialogueThreshold float64 `toml:"dialogue_threshold"`
	MusicThreshold    float64 `toml:"music_threshold"`
}

// Default returns the stock configuration.
func Default() Settings {
	return Settings{
		DeviceName:        "AceituTele",
		DeviceIndex:       -1,
		VolumeMin:         20,
		VolumeMax:         80,
		VolumeBaselineMax: 70,
		TargetDB:          -20.0,
		ThresholdLoud:     -15.0,
		ThresholdQuiet:    -35.0,
		SilenceDB:         -65.0,
		AdjustmentStep:    5,
		MinAdjustInterval: 0.4,
		ManualPause:       10.0,
		SampleRate:        44100,
		ChunkDuration:     0.4,
		SmoothingWindow:   5,
		NormTargetRMS:     0.15,
		NormMaxGain:       20.0,
		DialogueThreshold: 0.15,
		MusicThreshold:    0.35,
	}
}

// ForDistance returns settings tuned for a microphone sitting the given
// number of metres from the TV. Attenuation at 6 m is roughly 15.5 dB, so
// thresholds sit lower and the step is slightly larger than stock.
func ForDistance(metres float64) Settings {
	s := Default()
	if metres <= 2 {
		return s
	}
	s.VolumeMax = 85
	s.VolumeBaselineMax = 75
	s.TargetDB = -25.0
	s.ThresholdLoud = -20.0
	s.ThresholdQuiet = -45.0
	s.AdjustmentStep = 6
	s.MinAdjustInterval = 0.3
	return s
}

// Validate reports the first configuration fault found. A non-nil result
// maps to exit code 2.
func (s Settings) Validate() error {
	switch {
	case s.VolumeMin < 0 || s.VolumeMax > 100 || s.VolumeMin >= s.VolumeMax:
		return fmt.Errorf("config: volume range %d..%d must satisfy 0 <= min < max <= 100", s.VolumeMin, s.VolumeMax)
	case s.VolumeBaselineMax < s.VolumeMin || s.VolumeBaselineMax > s.VolumeMax:
		return fmt.Errorf("config: baseline max %d must lie within volume range %d..%d", s.VolumeBaselineMax, s.VolumeMin, s.VolumeMax)
	case s.ThresholdQuiet >= s.ThresholdLoud:
		return fmt.Errorf("config: quiet threshold %.1f must be below loud threshold %.1f", s.ThresholdQuiet, s.ThresholdLoud)
	case s.AdjustmentStep < 1 || s.AdjustmentStep > 10:
		return fmt.Errorf("config: step %d outside 1..10", s.AdjustmentStep)
	case s.ChunkDuration < 0.25 || s.ChunkDuration > 1.0:
		return fmt.Errorf("config: chunk duration %.2fs outside 0.25..1.0s", s.ChunkDuration)
	case s.SampleRate <= 0:
		return fmt.Errorf("config: sample rate %d", s.SampleRate)
	case s.SmoothingWindow < 1:
		return fmt.Errorf("config: smoothing window %d", s.SmoothingWindow)
	case s.MinAdjustInterval <= 0:
		return fmt.Errorf("config: min adjust interval %.2fs", s.MinAdjustInterval)
	case s.NormMaxGain <= 0 || s.NormTargetRMS <= 0:
		return fmt.Errorf("config: normalizer target %.2f / max gain %.2f must be positive", s.NormTargetRMS, s.NormMaxGain)
	case s.DialogueThreshold < 0 || s.DialogueThreshold > 1 || s.MusicThreshold < 0 || s.MusicThreshold > 1:
		return fmt.Errorf("config: classifier thresholds %.2f/%.2f outside 0..1", s.DialogueThreshold, s.MusicThreshold)
	}
	return nil
}

// WindowSize returns the number of samples in one analysis window.
func (s Settings) WindowSize() int {
	return int(float64(s.SampleRate)*s.ChunkDuration + 0.5)
}

// AdjustInterval returns MinAdjustInterval as a duration.
func (s Settings) AdjustInterval() time.Duration {
	return time.Duration(s.MinAdjustInterval * float64(time.Second))
}

// PauseDuration returns ManualPause as a duration.
func (s Settings) PauseDuration() time.Duration {
	return time.Duration(s.ManualPause * float64(time.Second))
}

// Load reads a TOML file over the given base settings. Unknown keys are an
// error so a typo in the file does not silently fall back to a default.
func Load(path string, base Settings) (Settings, error) {
	s := base
	meta, err := toml.DecodeFile(path, &s)
	if err != nil {
		return base, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return base, fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), path)
	}
	return s, nil
}

// Baselines is the learned subset written back on exit.
type Baselines struct {
	TargetDB       float64 `toml:"target_db"`
	ThresholdLoud  float64 `toml:"threshold_loud"`
	ThresholdQuiet float64 `toml:"threshold_quiet"`
}

// DumpBaselines writes the adaptive baselines to path. Baselines learned
// during a run are otherwise discarded at shutdown.
func DumpBaselines(path string, b Baselines) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(b); err != nil {
		return fmt.Errorf("config: encode %s: %w", path, err)
	}
	return nil
}
