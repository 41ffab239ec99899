package phrase

import (
	"strings"
	"time"
)

const (
	DefaultEchoWindow = 10 * time.Second

	echoMinWords     = 3
	echoOverlapRatio = 0.5
)

// Spoken records the most recent text-to-speech utterance.
type Spoken struct {
	Text       string
	FinishedAt time.Time
}

// Verdict is the outcome of filtering one transcription.
type Verdict int

const (
	Keep Verdict = iota
	Echo
	Noise
)

func (v Verdict) String() string {
	switch v {
	case Echo:
		return "echo"
	case Noise:
		return "noise"
	default:
		return "keep"
	}
}

// Filter drops transcriptions that are the system hearing itself, or noise.
type Filter struct {
	Window  time.Duration
	Matcher *Matcher
}

func NewFilter(m *Matcher) Filter {
	return Filter{Window: DefaultEchoWindow, Matcher: m}
}

// IsEcho reports whether text repeats what was spoken within the echo window.
func (f Filter) IsEcho(text string, last Spoken, now time.Time) bool {
	if text == "" || last.Text == "" || last.FinishedAt.IsZero() {
		return false
	}
	window := f.Window
	if window <= 0 {
		window = DefaultEchoWindow
	}
	if now.Sub(last.FinishedAt) > window {
		return false
	}

	heard := strings.ToLower(strings.TrimSpace(text))
	said := strings.ToLower(strings.TrimSpace(last.Text))
	if strings.Contains(said, heard) || strings.Contains(heard, said) {
		return true
	}

	heardWords := wordSet(heard)
	if len(heardWords) <= echoMinWords {
		return false
	}
	saidWords := wordSet(said)
	shared := 0
	for w := range heardWords {
		if _, ok := saidWords[w]; ok {
			shared++
		}
	}
	return float64(shared)/float64(len(heardWords)) > echoOverlapRatio
}

// Classify runs the echo check first, then noise classification.
func (f Filter) Classify(text string, last Spoken, now time.Time) Verdict {
	if f.IsEcho(text, last, now) {
		return Echo
	}
	if f.Matcher != nil && f.Matcher.IsNoise(text) {
		return Noise
	}
	return Keep
}

func wordSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	out := make(map[string]struct{}, len(fields))
	for _, w := range fields {
		out[w] = struct{}{}
	}
	return out
}
