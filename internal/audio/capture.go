package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog/log"
)

// ErrDeviceUnavailable marks failures to open a microphone or speaker stream.
var ErrDeviceUnavailable = errors.New("audio device unavailable")

// InitPortAudio initialises the PortAudio host API. The returned func releases it.
func InitPortAudio() (func() error, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return portaudio.Terminate, nil
}

// Capture is a continuous microphone stream delivering fixed 30 ms frames to a FrameQueue.
type Capture struct {
	device     int
	sampleRate int
	queue      *FrameQueue

	mu     sync.Mutex
	stream *portaudio.Stream
}

// NewCapture builds a capture for device index device (-1 selects the system default).
func NewCapture(device, sampleRate int, queue *FrameQueue) *Capture {
	if sampleRate <= 0 {
		sampleRate = CaptureSampleRate
	}
	return &Capture{device: device, sampleRate: sampleRate, queue: queue}
}

// Open starts the input stream. Failure is fatal for the caller.
func (c *Capture) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return nil
	}

	dev, err := inputDevice(c.device)
	if err != nil {
		return err
	}
	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(c.sampleRate)
	params.FramesPerBuffer = SamplesPerFrame(c.sampleRate)

	stream, err := portaudio.OpenStream(params, c.onAudio)
	if err != nil {
		return fmt.Errorf("%w: open input %q: %v", ErrDeviceUnavailable, dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("%w: start input %q: %v", ErrDeviceUnavailable, dev.Name, err)
	}
	c.stream = stream
	log.Info().Str("device", dev.Name).Int("sample_rate", c.sampleRate).Msg("microphone stream open")
	return nil
}

// Close stops and releases the stream. Safe to call more than once and from any goroutine.
func (c *Capture) Close() error {
	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()
	if stream == nil {
		return nil
	}
	stopErr := stream.Stop()
	closeErr := stream.Close()
	return errors.Join(stopErr, closeErr)
}

// onAudio runs on the PortAudio thread: copy and enqueue only.
func (c *Capture) onAudio(in []int16, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	if flags&(portaudio.InputOverflow|portaudio.InputUnderflow) != 0 {
		log.Warn().Uint64("flags", uint64(flags)).Msg("microphone stream status")
	}
	samples := make([]int16, len(in))
	copy(samples, in)
	c.queue.Push(Frame{Samples: samples, SampleRate: c.sampleRate, Captured: time.Now()})
}

func inputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index >= 0 {
		devices, err := portaudio.Devices()
		if err != nil {
			return nil, fmt.Errorf("%w: list devices: %v", ErrDeviceUnavailable, err)
		}
		if index >= len(devices) || devices[index].MaxInputChannels < 1 {
			return nil, fmt.Errorf("%w: no input device at index %d", ErrDeviceUnavailable, index)
		}
		return devices[index], nil
	}
	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: default input: %v", ErrDeviceUnavailable, err)
	}
	return dev, nil
}

// Device summarises one PortAudio device for listings.
type Device struct {
	Index          int
	Name           string
	HostAPI        string
	InputChannels  int
	OutputChannels int
	DefaultRate    float64
}

// ListDevices enumerates devices. PortAudio must be initialised.
func ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	out := make([]Device, 0, len(devices))
	for i, d := range devices {
		host := ""
		if d.HostApi != nil {
			host = d.HostApi.Name
		}
		out = append(out, Device{
			Index:          i,
			Name:           d.Name,
			HostAPI:        host,
			InputChannels:  d.MaxInputChannels,
			OutputChannels: d.MaxOutputChannels,
			DefaultRate:    d.DefaultSampleRate,
		})
	}
	return out, nil
}
