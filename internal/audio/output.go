package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Sink opens speaker streams.
type Sink interface {
	Open(sampleRate, framesPerBuffer int) (OutputStream, error)
}

// OutputStream accepts PCM16 samples for playback.
type OutputStream interface {
	Write(samples []int16) error
	// Drain blocks until written audio has played.
	Drain() error
	// Abort stops playback immediately, discarding buffered audio.
	Abort() error
	Close() error
}

// PortAudioSink plays through a PortAudio output device (-1 selects the default).
type PortAudioSink struct {
	Device int
}

func (s PortAudioSink) Open(sampleRate, framesPerBuffer int) (OutputStream, error) {
	dev, err := outputDevice(s.Device)
	if err != nil {
		return nil, err
	}
	params := portaudio.LowLatencyParameters(nil, dev)
	params.Output.Channels = 1
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = framesPerBuffer

	out := &portAudioOutput{buf: make([]int16, framesPerBuffer)}
	stream, err := portaudio.OpenStream(params, out.buf)
	if err != nil {
		return nil, fmt.Errorf("%w: open output %q: %v", ErrDeviceUnavailable, dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("%w: start output %q: %v", ErrDeviceUnavailable, dev.Name, err)
	}
	out.stream = stream
	return out, nil
}

type portAudioOutput struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
	fill   int
	closed bool
}

func (o *portAudioOutput) Write(samples []int16) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errors.New("output stream closed")
	}
	for len(samples) > 0 {
		n := copy(o.buf[o.fill:], samples)
		o.fill += n
		samples = samples[n:]
		if o.fill == len(o.buf) {
			if err := o.stream.Write(); err != nil {
				return err
			}
			o.fill = 0
		}
	}
	return nil
}

func (o *portAudioOutput) Drain() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	if o.fill > 0 {
		clear(o.buf[o.fill:])
		if err := o.stream.Write(); err != nil {
			return err
		}
		o.fill = 0
	}
	return o.stream.Stop()
}

func (o *portAudioOutput) Abort() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.fill = 0
	return o.stream.Abort()
}

func (o *portAudioOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	return o.stream.Close()
}

func outputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index >= 0 {
		devices, err := portaudio.Devices()
		if err != nil {
			return nil, fmt.Errorf("%w: list devices: %v", ErrDeviceUnavailable, err)
		}
		if index >= len(devices) || devices[index].MaxOutputChannels < 1 {
			return nil, fmt.Errorf("%w: no output device at index %d", ErrDeviceUnavailable, index)
		}
		return devices[index], nil
	}
	dev, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: default output: %v", ErrDeviceUnavailable, err)
	}
	return dev, nil
}
