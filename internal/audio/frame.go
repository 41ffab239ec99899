package audio

import (
	"encoding/binary"
	"time"
)

const (
	// CaptureSampleRate is the microphone and playback rate used throughout the pipeline.
	CaptureSampleRate = 24000
	// FrameDuration is the fixed length of every captured frame.
	FrameDuration = 30 * time.Millisecond
)

// Frame is one fixed-duration slice of mono PCM16 audio. Frames are immutable once captured.
type Frame struct {
	Samples    []int16
	SampleRate int
	Captured   time.Time
}

// Duration reports the audio time covered by the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// SamplesPerFrame returns the sample count of one FrameDuration at rate.
func SamplesPerFrame(rate int) int {
	return rate * int(FrameDuration/time.Millisecond) / 1000
}

// Concat joins frame samples in order.
func Concat(frames []Frame) []int16 {
	n := 0
	for _, f := range frames {
		n += len(f.Samples)
	}
	out := make([]int16, 0, n)
	for _, f := range frames {
		out = append(out, f.Samples...)
	}
	return out
}

// Peak returns the largest absolute sample value.
func Peak(samples []int16) int {
	peak := 0
	for _, s := range samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// PCM16Bytes encodes samples as little-endian bytes.
func PCM16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToPCM16 decodes little-endian PCM16 bytes. A trailing odd byte is ignored.
func BytesToPCM16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}
