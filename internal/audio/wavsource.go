package audio

import (
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
)

// WAVSource replays a WAV file as if it were live capture, pacing delivery
// at the file's real-time rate. Used for offline runs against recorded room
// audio and for exercising the full pipeline without a microphone.
type WAVSource struct {
	path      string
	blockSize int
	realtime  bool

	samples []float32
	rate    int

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewWAVSource opens and decodes the file up front so that format errors
// surface before the loop starts. Set realtime to false in tests to deliver
// as fast as the consumer drains.
func NewWAVSource(path string, blockSize int, realtime bool) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a WAV file", ErrDeviceUnavailable, path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrDeviceUnavailable, path, err)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		return nil, fmt.Errorf("%w: %s has no channels", ErrDeviceUnavailable, path)
	}
	scale := 1.0
	if dec.BitDepth > 0 {
		scale = 1.0 / float64(int64(1)<<(dec.BitDepth-1))
	}

	// Mix down to mono.
	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(buf.Data[i*channels+ch]) * scale
		}
		samples[i] = float32(sum / float64(channels))
	}

	return &WAVSource{
		path:      path,
		blockSize: blockSize,
		realtime:  realtime,
		samples:   samples,
		rate:      buf.Format.SampleRate,
	}, nil
}

// SampleRate reports the file's native rate; the caller should analyze at
// this rate rather than the configured capture rate.
func (w *WAVSource) SampleRate() int { return w.rate }

// Duration reports the decoded length.
func (w *WAVSource) Duration() time.Duration {
	if w.rate == 0 {
		return 0
	}
	return time.Duration(float64(len(w.samples)) / float64(w.rate) * float64(time.Second))
}

// Start begins paced delivery. The delivery goroutine exits when the file
// runs out or Stop is called.
func (w *WAVSource) Start(out chan<- Chunk) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop != nil {
		return nil
	}
	w.stop = make(chan struct{})
	w.done = make(chan struct{})

	interval := time.Duration(float64(w.blockSize) / float64(w.rate) * float64(time.Second))

	go func() {
		defer close(w.done)
		var ticker *time.Ticker
		if w.realtime {
			ticker = time.NewTicker(interval)
			defer ticker.Stop()
		}
		for off := 0; off < len(w.samples); off += w.blockSize {
			end := off + w.blockSize
			if end > len(w.samples) {
				end = len(w.samples)
			}
			block := make([]float32, end-off)
			copy(block, w.samples[off:end])

			if ticker != nil {
				select {
				case <-ticker.C:
				case <-w.stop:
					return
				}
			}
			select {
			case out <- Chunk{Samples: block}:
			case <-w.stop:
				return
			}
		}
		select {
		case out <- Chunk{EOF: true}:
		case <-w.stop:
		}
	}()
	return nil
}

// Stop halts delivery.
func (w *WAVSource) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop == nil {
		return nil
	}
	close(w.stop)
	<-w.done
	w.stop = nil
	return nil
}

// Silent reports whether the decoded file carries any usable signal.
// Guards against analyzing a mis-exported empty capture.
func (w *WAVSource) Silent() bool {
	var sum float64
	for _, s := range w.samples {
		sum += float64(s) * float64(s)
	}
	if len(w.samples) == 0 {
		return true
	}
	return math.Sqrt(sum/float64(len(w.samples))) < 1e-6
}
