package turn

import (
	"time"

	"github.com/antoniostano/samantha-voice/internal/audio"
)

// AccumulatorConfig holds end-of-utterance tuning. All durations are measured
// in captured audio, not wall-clock time.
type AccumulatorConfig struct {
	// SilenceThreshold of consecutive non-speech ends an utterance.
	SilenceThreshold time.Duration
	// MinRecording is the shortest utterance silence may end.
	MinRecording time.Duration
	// InitialGrace after onset during which silence cannot end the utterance.
	InitialGrace time.Duration
	// PreRoll bounds the frames retained while waiting for speech, and the
	// whole buffer while the session is idle.
	PreRoll time.Duration
}

func DefaultAccumulatorConfig() AccumulatorConfig {
	return AccumulatorConfig{
		SilenceThreshold: time.Second,
		MinRecording:     300 * time.Millisecond,
		InitialGrace:     time.Second,
		PreRoll:          15 * time.Second,
	}
}

// Accumulator segments the frame stream into utterances. It is owned by the
// control loop and never shared.
type Accumulator struct {
	cfg       AccumulatorConfig
	frames    []audio.Frame
	buffered  time.Duration
	recording bool
	recorded  time.Duration
	silence   time.Duration
}

func NewAccumulator(cfg AccumulatorConfig) *Accumulator {
	return &Accumulator{cfg: cfg}
}

// Feed adds one classified frame. When the utterance is complete it returns
// the buffered frames and resets to waiting. While idle the buffer never holds
// more than PreRoll of audio, even mid-recording.
func (a *Accumulator) Feed(f audio.Frame, speech, idle bool) ([]audio.Frame, bool) {
	d := f.Duration()
	a.frames = append(a.frames, f)
	a.buffered += d

	if !a.recording {
		if speech {
			a.recording = true
			a.recorded = d
			a.silence = 0
			if idle {
				a.trimPreRoll()
			}
			return nil, false
		}
		a.trimPreRoll()
		return nil, false
	}

	a.recorded += d
	if idle {
		a.trimPreRoll()
	}
	if speech {
		a.silence = 0
		return nil, false
	}
	a.silence += d
	if a.recorded < a.cfg.MinRecording || a.recorded < a.cfg.InitialGrace || a.silence < a.cfg.SilenceThreshold {
		return nil, false
	}
	out := a.frames
	a.frames = nil
	a.Reset()
	return out, true
}

func (a *Accumulator) trimPreRoll() {
	if a.cfg.PreRoll <= 0 {
		return
	}
	drop := 0
	for a.buffered > a.cfg.PreRoll && drop < len(a.frames) {
		a.buffered -= a.frames[drop].Duration()
		drop++
	}
	a.frames = a.frames[drop:]
}

// Reset discards everything and returns to waiting.
func (a *Accumulator) Reset() {
	a.frames = nil
	a.buffered = 0
	a.recording = false
	a.recorded = 0
	a.silence = 0
}

func (a *Accumulator) Recording() bool { return a.recording }

// Buffered is the audio currently held.
func (a *Accumulator) Buffered() time.Duration { return a.buffered }
