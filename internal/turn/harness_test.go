package turn

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/antoniostano/samantha-voice/internal/audio"
	"github.com/antoniostano/samantha-voice/internal/convlog"
	"github.com/antoniostano/samantha-voice/internal/phrase"
	"github.com/antoniostano/samantha-voice/internal/playback"
	"github.com/antoniostano/samantha-voice/internal/session"
	"github.com/antoniostano/samantha-voice/internal/vad"
)

type fakeSource struct {
	mu      sync.Mutex
	frames  []audio.Frame
	drained int
}

func (s *fakeSource) push(frames ...audio.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frames...)
}

func (s *fakeSource) Poll(time.Duration) (audio.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return audio.Frame{}, false
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, true
}

func (s *fakeSource) Drain() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.frames)
	s.frames = nil
	s.drained += n
	return n
}

func (s *fakeSource) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// peakVAD calls a frame speech when its peak reaches min.
type peakVAD struct {
	min     int
	profile vad.Profile
}

func (v peakVAD) IsSpeech(f audio.Frame) bool { return audio.Peak(f.Samples) >= v.min }
func (v peakVAD) Profile() vad.Profile        { return v.profile }
func (v peakVAD) Name() string                { return "webrtc" }

type scriptedTranscriber struct {
	mu      sync.Mutex
	replies []string
	calls   int
	err     error
}

func (s *scriptedTranscriber) say(replies ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
}

func (s *scriptedTranscriber) Transcribe(context.Context, []int16, int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return "", nil
	}
	text := s.replies[0]
	s.replies = s.replies[1:]
	return text, nil
}

func (s *scriptedTranscriber) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeSpeaker plays until interrupted, or returns at once when complete is set.
type fakeSpeaker struct {
	mu        sync.Mutex
	started   []string
	complete  bool
	err       error
	active    int
	maxActive int
}

func (s *fakeSpeaker) Play(ctx context.Context, text string, interrupt *atomic.Bool) (playback.Outcome, error) {
	s.mu.Lock()
	s.started = append(s.started, text)
	complete, err := s.complete, s.err
	s.active++
	s.maxActive = max(s.maxActive, s.active)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()
	if complete || err != nil {
		return playback.Completed, err
	}
	if interrupt == nil {
		interrupt = new(atomic.Bool)
	}
	for {
		if interrupt.Load() {
			return playback.Interrupted, nil
		}
		if ctx.Err() != nil {
			return playback.Completed, ctx.Err()
		}
		time.Sleep(time.Millisecond)
	}
}

// Active is the number of Play calls in progress.
func (s *fakeSpeaker) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *fakeSpeaker) MaxActive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxActive
}

func (s *fakeSpeaker) Started() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.started...)
}

type fakeChimes struct {
	mu     sync.Mutex
	played []playback.Sound
}

func (c *fakeChimes) Play(s playback.Sound) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.played = append(c.played, s)
}

func (c *fakeChimes) Played() []playback.Sound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]playback.Sound(nil), c.played...)
}

type fakeInjector struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (i *fakeInjector) Inject(_ context.Context, text string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return i.err
	}
	i.texts = append(i.texts, text)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []any
}

func (r *recorder) publish(evt any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

type failingLog struct{}

func (failingLog) Append(context.Context, convlog.Entry) error { return errors.New("disk full") }
func (failingLog) Recent(context.Context, int) ([]convlog.Entry, error) {
	return nil, nil
}
func (failingLog) Close() error { return nil }

func testLists() phrase.Lists {
	return phrase.Lists{
		WakeWords:           []string{"hey samantha", "samantha"},
		DeactivationPhrases: []string{"goodbye samantha", "that's all samantha"},
		StopPhrases:         []string{"that's all", "thank you"},
		InterruptWords:      phrase.DefaultInterruptWords,
		SkipWords:           phrase.DefaultSkipWords,
	}
}

type harness struct {
	m        *Machine
	source   *fakeSource
	stt      *scriptedTranscriber
	speaker  *fakeSpeaker
	chimes   *fakeChimes
	injector *fakeInjector
	clock    *fakeClock
	session  *session.Window
	queue    *SpeechQueue
	log      *convlog.InMemoryStore
	events   *recorder
	sleeps   []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		source:   &fakeSource{},
		stt:      &scriptedTranscriber{},
		speaker:  &fakeSpeaker{},
		chimes:   &fakeChimes{},
		injector: &fakeInjector{},
		clock:    &fakeClock{now: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)},
		session:  session.NewWindow(30 * time.Minute),
		queue:    NewSpeechQueue(),
		log:      convlog.NewInMemoryStore(),
		events:   &recorder{},
	}
	h.m = NewMachine(DefaultConfig(), h.deps())
	return h
}

func (h *harness) deps() Deps {
	return Deps{
		Frames:      h.source,
		Listening:   peakVAD{min: 500, profile: vad.Listening},
		Interrupt:   peakVAD{min: 500, profile: vad.Interrupt},
		Transcriber: h.stt,
		Speaker:     h.speaker,
		Chimes:      h.chimes,
		Injector:    h.injector,
		Matcher:     phrase.NewMatcher(testLists()),
		Session:     h.session,
		Queue:       h.queue,
		Log:         h.log,
		Publish:     h.events.publish,
		Now:         h.clock.Now,
		Sleep:       func(d time.Duration) { h.sleeps = append(h.sleeps, d) },
	}
}

// speak pushes an utterance: speech frames of the given peak followed by
// enough silence to end it.
func (h *harness) speak(peak int16, d time.Duration) {
	for i := 0; i < framesFor(d); i++ {
		h.source.push(frame(peak))
	}
	for i := 0; i < framesFor(time.Second); i++ {
		h.source.push(frame(0))
	}
}

// drain steps until every pushed frame has been consumed.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	for i := 0; h.source.Len() > 0; i++ {
		if i > 10000 {
			t.Fatalf("frames not consumed")
		}
		if err := h.m.Step(context.Background()); err != nil {
			t.Fatalf("Step() error = %v", err)
		}
	}
}

// stepUntil steps the loop until cond holds or a second passes.
func (h *harness) stepUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached")
		}
		if err := h.m.Step(context.Background()); err != nil {
			t.Fatalf("Step() error = %v", err)
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *harness) entries(t *testing.T) []convlog.Entry {
	t.Helper()
	out, err := h.log.Recent(context.Background(), 100)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	return out
}
