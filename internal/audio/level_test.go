package audio

import (
	"math"
	"testing"
)

func TestRMS(t *testing.T) {
	t.Run("silence", func(t *testing.T) {
		if rms := RMS(genSilence(1024)); rms != 0 {
			t.Errorf("RMS(silence) = %v, want 0", rms)
		}
	})

	t.Run("sine", func(t *testing.T) {
		// genSine is RMS-referenced, so a 0 dBFS sine has RMS 1 (peak sqrt(2)).
		x := genSine(t, 1000, 0, 44100, 44100)
		want := 1.0
		if rms := RMS(x); math.Abs(rms-want) > 0.01 {
			t.Errorf("RMS(0 dBFS sine) = %v, want ~%v", rms, want)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if rms := RMS(nil); rms != 0 {
			t.Errorf("RMS(nil) = %v", rms)
		}
	})
}

func TestDBFS(t *testing.T) {
	t.Run("floor_at_silence", func(t *testing.T) {
		if db := DBFS(genSilence(1024)); db != DBFloor {
			t.Errorf("DBFS(silence) = %v, want %v", db, DBFloor)
		}
	})

	t.Run("known_level", func(t *testing.T) {
		x := genSine(t, 1000, -25, 44100, 44100)
		db := DBFS(x)
		if math.Abs(db-(-25)) > 0.5 {
			t.Errorf("DBFS(-25 dBFS sine) = %.2f", db)
		}
	})

	t.Run("noise_level", func(t *testing.T) {
		x := genNoise(t, -30, 44100)
		if db := DBFS(x); math.Abs(db-(-30)) > 1.0 {
			t.Errorf("DBFS(-30 dBFS noise) = %.2f", db)
		}
	})

	t.Run("monotonic_in_level", func(t *testing.T) {
		quiet := DBFS(genSine(t, 1000, -40, 8192, 44100))
		loud := DBFS(genSine(t, 1000, -10, 8192, 44100))
		if quiet >= loud {
			t.Errorf("quiet %.1f dB >= loud %.1f dB", quiet, loud)
		}
	})
}
