package vad

import (
	"fmt"
	"sync"

	"github.com/maxhawkins/go-webrtcvad"
	"github.com/rs/zerolog/log"

	"github.com/antoniostano/samantha-voice/internal/audio"
)

// DetectorRate is the sample rate frames are resampled to before detection.
const DetectorRate = 16000

// Profile selects the failure policy and aggressiveness of a classifier.
type Profile int

const (
	// Listening is used while waiting for the user to speak.
	Listening Profile = iota
	// Interrupt is used while text-to-speech is playing.
	Interrupt
)

func (p Profile) String() string {
	switch p {
	case Listening:
		return "listening"
	case Interrupt:
		return "interrupt"
	default:
		return fmt.Sprintf("profile(%d)", int(p))
	}
}

// fallback is the decision when no reliable answer is available. Listening keeps
// possible speech, interrupt listening never triggers on doubt.
func (p Profile) fallback() bool {
	return p == Listening
}

// Classifier decides whether a captured frame contains speech.
type Classifier interface {
	IsSpeech(frame audio.Frame) bool
	Profile() Profile
	// Name identifies the strategy: "webrtc" or "passthrough".
	Name() string
}

type detector interface {
	Process(rate int, frame []byte) (bool, error)
}

// WebRTC classifies frames with the WebRTC voice activity detector.
type WebRTC struct {
	mu      sync.Mutex
	det     detector
	profile Profile
	mode    int
}

// NewWebRTC builds a detector with aggressiveness mode (0 least, 3 most aggressive).
func NewWebRTC(profile Profile, mode int) (*WebRTC, error) {
	if mode < 0 || mode > 3 {
		return nil, fmt.Errorf("vad mode %d out of range 0..3", mode)
	}
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("create webrtc vad: %w", err)
	}
	if err := v.SetMode(mode); err != nil {
		return nil, fmt.Errorf("set webrtc vad mode: %w", err)
	}
	return &WebRTC{det: v, profile: profile, mode: mode}, nil
}

func (w *WebRTC) IsSpeech(frame audio.Frame) bool {
	samples := audio.Resample(frame.Samples, frame.SampleRate, DetectorRate)
	samples = audio.FitLength(samples, audio.SamplesPerFrame(DetectorRate))

	w.mu.Lock()
	speech, err := w.det.Process(DetectorRate, audio.PCM16Bytes(samples))
	w.mu.Unlock()
	if err != nil {
		log.Debug().Err(err).Stringer("profile", w.profile).Msg("vad process failed")
		return w.profile.fallback()
	}
	return speech
}

func (w *WebRTC) Profile() Profile { return w.profile }
func (w *WebRTC) Name() string     { return "webrtc" }

// Passthrough is used when no detector is available. Every listening frame is
// treated as speech and no interrupt frame is.
type Passthrough struct {
	profile Profile
}

func NewPassthrough(profile Profile) Passthrough {
	return Passthrough{profile: profile}
}

func (p Passthrough) IsSpeech(audio.Frame) bool { return p.profile.fallback() }
func (p Passthrough) Profile() Profile          { return p.profile }
func (p Passthrough) Name() string              { return "passthrough" }

// New selects the strategy for profile once at startup. The boolean reports
// degraded mode, where the passthrough stands in for a detector.
func New(profile Profile, mode int, enabled bool) (Classifier, bool) {
	if !enabled {
		log.Warn().Stringer("profile", profile).Msg("vad disabled by config; segmentation degraded")
		return NewPassthrough(profile), true
	}
	c, err := NewWebRTC(profile, mode)
	if err != nil {
		log.Warn().Err(err).Stringer("profile", profile).Msg("vad unavailable; segmentation degraded")
		return NewPassthrough(profile), true
	}
	return c, false
}
