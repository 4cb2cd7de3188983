package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Capture is the PortAudio-backed Source. The callback copies each incoming
// block and hands it to the loop's channel without blocking; a full channel
// drops the block and flags overflow on the next delivered chunk.
type Capture struct {
	deviceIndex int // -1 selects the default input
	sampleRate  int
	blockSize   int

	mu       sync.Mutex
	stream   *portaudio.Stream
	out      chan<- Chunk
	overflow bool
	running  bool
}

// NewCapture prepares a capture source. blockSize is the callback block in
// samples; the assembler regroups blocks into analysis windows, so it need
// not match the window size.
func NewCapture(deviceIndex, sampleRate, blockSize int) *Capture {
	return &Capture{
		deviceIndex: deviceIndex,
		sampleRate:  sampleRate,
		blockSize:   blockSize,
	}
}

// Start opens the device and begins delivery.
func (c *Capture) Start(out chan<- Chunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	params, err := c.inputParams()
	if err != nil {
		portaudio.Terminate()
		return err
	}

	c.out = out
	stream, err := portaudio.OpenStream(params, c.callback)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: open stream: %v", ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("%w: start stream: %v", ErrDeviceUnavailable, err)
	}
	c.stream = stream
	c.running = true
	return nil
}

func (c *Capture) inputParams() (portaudio.StreamParameters, error) {
	var dev *portaudio.DeviceInfo
	var err error
	if c.deviceIndex < 0 {
		dev, err = portaudio.DefaultInputDevice()
		if err != nil {
			return portaudio.StreamParameters{}, fmt.Errorf("%w: no default input: %v", ErrDeviceUnavailable, err)
		}
	} else {
		devices, err := portaudio.Devices()
		if err != nil {
			return portaudio.StreamParameters{}, fmt.Errorf("%w: enumerate: %v", ErrDeviceUnavailable, err)
		}
		if c.deviceIndex >= len(devices) {
			return portaudio.StreamParameters{}, fmt.Errorf("%w: index %d out of range", ErrDeviceUnavailable, c.deviceIndex)
		}
		dev = devices[c.deviceIndex]
		if dev.MaxInputChannels < 1 {
			return portaudio.StreamParameters{}, fmt.Errorf("%w: device %q has no inputs", ErrDeviceUnavailable, dev.Name)
		}
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(c.sampleRate)
	params.FramesPerBuffer = c.blockSize
	return params, nil
}

// callback runs on the PortAudio capture thread. It must not block.
func (c *Capture) callback(in []float32) {
	samples := make([]float32, len(in))
	copy(samples, in)

	chunk := Chunk{Samples: samples, Overflow: c.overflow}
	select {
	case c.out <- chunk:
		c.overflow = false
	default:
		c.overflow = true
	}
}

// Stop halts capture and releases the device.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false
	err := c.stream.Stop()
	if cerr := c.stream.Close(); err == nil {
		err = cerr
	}
	c.stream = nil
	portaudio.Terminate()
	return err
}

// ListDevices enumerates capture-capable inputs.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer portaudio.Terminate()

	all, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate: %v", ErrDeviceUnavailable, err)
	}
	def, _ := portaudio.DefaultInputDevice()

	var devices []Device
	for i, d := range all {
		if d.MaxInputChannels < 1 {
			continue
		}
		devices = append(devices, Device{
			Index:      i,
			Name:       d.Name,
			Channels:   d.MaxInputChannels,
			SampleRate: d.DefaultSampleRate,
			Default:    def != nil && d.Name == def.Name,
		})
	}
	return devices, nil
}
