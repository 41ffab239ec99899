// Package turn runs the turn-taking loop: it listens for the user, forwards
// commands to the assistant, speaks replies and lets the user interrupt them.
package turn

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/antoniostano/samantha-voice/internal/audio"
	"github.com/antoniostano/samantha-voice/internal/convlog"
	"github.com/antoniostano/samantha-voice/internal/inject"
	"github.com/antoniostano/samantha-voice/internal/observability"
	"github.com/antoniostano/samantha-voice/internal/phrase"
	"github.com/antoniostano/samantha-voice/internal/playback"
	"github.com/antoniostano/samantha-voice/internal/protocol"
	"github.com/antoniostano/samantha-voice/internal/reliability"
	"github.com/antoniostano/samantha-voice/internal/session"
	"github.com/antoniostano/samantha-voice/internal/speech"
	"github.com/antoniostano/samantha-voice/internal/vad"
)

const (
	// VoiceMessagePrefix marks injected text as spoken rather than typed.
	VoiceMessagePrefix = "[🎙️ Voice - samantha_speak]"
	// InjectFailureNotice is spoken when no assistant could receive a command.
	InjectFailureNotice = "I couldn't find Claude running in any IDE or Terminal. Please make sure Claude is open."

	errorPause = 100 * time.Millisecond
	// settleDelay lets the output device go quiet before mic frames are flushed.
	settleDelay = 100 * time.Millisecond
	// playbackExitWait bounds how long Run waits for an interrupted playback on exit.
	playbackExitWait = time.Second
)

// FrameSource is the capture queue the loop polls.
type FrameSource interface {
	Poll(timeout time.Duration) (audio.Frame, bool)
	Drain() int
}

// Config tunes the loop.
type Config struct {
	Accumulator AccumulatorConfig
	// InterruptMinSpeech of speech frames is collected before an interrupt check.
	InterruptMinSpeech time.Duration
	// InterruptGrace after playback starts during which interrupts are not checked.
	InterruptGrace    time.Duration
	ListenPoll        time.Duration
	InterruptPoll     time.Duration
	TranscribeTimeout time.Duration
	SampleRate        int
}

func DefaultConfig() Config {
	return Config{
		Accumulator:        DefaultAccumulatorConfig(),
		InterruptMinSpeech: 300 * time.Millisecond,
		InterruptGrace:     2 * time.Second,
		ListenPoll:         100 * time.Millisecond,
		InterruptPoll:      50 * time.Millisecond,
		TranscribeTimeout:  speech.DefaultTranscribeTimeout,
		SampleRate:         audio.CaptureSampleRate,
	}
}

// Deps are the collaborators the loop drives. Metrics, Latency, Log and
// Publish may be nil.
type Deps struct {
	Frames      FrameSource
	Listening   vad.Classifier
	Interrupt   vad.Classifier
	Transcriber speech.Transcriber
	Speaker     playback.Speaker
	Chimes      playback.Chimes
	Injector    inject.Injector
	Matcher     *phrase.Matcher
	Session     *session.Window
	Queue       *SpeechQueue
	Log         convlog.Store
	Metrics     *observability.Metrics
	Latency     *observability.LatencyWindow
	Publish     func(any)
	Now         func() time.Time
	Sleep       func(time.Duration)
}

// Machine is the control loop. Every field except current is owned by the
// goroutine calling Step.
type Machine struct {
	cfg    Config
	d      Deps
	filter phrase.Filter
	acc    *Accumulator

	interruptFrames []audio.Frame
	interruptSpeech time.Duration

	current  *PlaybackState
	speaking atomic.Bool
	last     phrase.Spoken
}

func NewMachine(cfg Config, d Deps) *Machine {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Sleep == nil {
		d.Sleep = time.Sleep
	}
	if d.Chimes == nil {
		d.Chimes = playback.Silent{}
	}
	if d.Queue == nil {
		d.Queue = NewSpeechQueue()
	}
	if d.Session == nil {
		d.Session = session.NewWindow(session.DefaultTimeout)
	}
	m := &Machine{
		cfg:    cfg,
		d:      d,
		filter: phrase.NewFilter(d.Matcher),
		acc:    NewAccumulator(cfg.Accumulator),
	}
	return m
}

// Run steps until ctx is canceled. Failed or panicking iterations are logged
// and followed by a short pause.
func (m *Machine) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := m.safeStep(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Error().Err(err).Msg("loop iteration failed")
			if m.d.Metrics != nil {
				m.d.Metrics.LoopErrors.Inc()
			}
			m.publish(protocol.NewErrorEvent("loop", "iteration_failed", err.Error(), true, m.d.Now()))
			m.d.Sleep(errorPause)
		}
	}
	if p := m.current; p != nil {
		p.RequestInterrupt()
		select {
		case <-p.Done():
		case <-time.After(playbackExitWait):
			log.Warn().Dur("waited", playbackExitWait).Msg("playback slow to stop")
		}
	}
}

func (m *Machine) safeStep(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return m.Step(ctx)
}

// Step runs one iteration of the loop.
func (m *Machine) Step(ctx context.Context) error {
	m.maybeStartPlayback(ctx)

	if p := m.current; p != nil {
		if p.finished() {
			m.finishPlayback(ctx, p)
			return nil
		}
		return m.listenForInterrupt(ctx, p)
	}

	now := m.d.Now()
	if m.d.Session.Expire(now) {
		log.Info().Dur("timeout", m.d.Session.Timeout()).Msg("session timed out, returning to idle")
		m.d.Chimes.Play(playback.SoundTimeout)
	}
	return m.listen(ctx)
}

// PlaybackActive reports whether an utterance is being spoken. Only the loop
// goroutine may call it.
func (m *Machine) PlaybackActive() bool { return m.current != nil }

// Speaking is PlaybackActive for other goroutines.
func (m *Machine) Speaking() bool { return m.speaking.Load() }

func (m *Machine) maybeStartPlayback(ctx context.Context) {
	if m.current != nil {
		return
	}
	item, ok := m.d.Queue.Pop()
	if !ok {
		return
	}
	now := m.d.Now()
	p := newPlaybackState(item, now)
	m.current = p
	m.speaking.Store(true)

	m.d.Frames.Drain()
	m.acc.Reset()
	m.resetInterruptBuffer()

	log.Info().
		Str("text", preview(item.Text, 60)).
		Strs("interrupt_words", m.d.Matcher.ActiveInterruptWords(item.Text)).
		Msg("speaking")
	m.countPlayback("started")
	evt := protocol.NewEvent(protocol.TypePlaybackStarted, now)
	evt.Text = item.Text
	m.publish(evt)

	go m.play(ctx, p)
}

func (m *Machine) play(ctx context.Context, p *PlaybackState) {
	defer close(p.done)
	defer func() {
		if r := recover(); r != nil {
			p.err = fmt.Errorf("playback panic: %v", r)
		}
		p.finishedAt = m.d.Now()
		p.playing.Store(false)
	}()
	p.outcome, p.err = m.d.Speaker.Play(ctx, p.Item.Text, &p.interrupt)
}

func (m *Machine) finishPlayback(ctx context.Context, p *PlaybackState) {
	m.current = nil
	m.speaking.Store(false)
	if p.err == nil || p.outcome == playback.Interrupted {
		m.last = phrase.Spoken{Text: p.Item.Text, FinishedAt: p.finishedAt}
	}

	evt := protocol.NewEvent(protocol.TypePlaybackFinished, p.finishedAt)
	evt.Text = p.Item.Text
	switch {
	case p.err != nil && ctx.Err() == nil:
		log.Error().Err(p.err).Str("text", preview(p.Item.Text, 60)).Msg("playback failed")
		m.countPlayback("failed")
		m.countServiceError("kokoro", p.err)
		evt.Reason = "failed"
		evt.Detail = p.err.Error()
	case p.outcome == playback.Interrupted:
		m.countPlayback("interrupted")
		evt.Reason = playback.Interrupted.String()
		if !p.interruptAt.IsZero() && m.d.Latency != nil {
			m.d.Latency.Observe(observability.StageInterruptToSilent, p.finishedAt.Sub(p.interruptAt))
		}
	default:
		m.countPlayback("completed")
		evt.Reason = playback.Completed.String()
	}
	m.publish(evt)

	// Residual playback picked up by the mic must not be read as the user.
	dropped := m.d.Frames.Drain()
	log.Debug().Int("dropped_frames", dropped).Msg("post-playback cleanup")
	m.acc.Reset()
	m.resetInterruptBuffer()
	m.d.Session.Touch(m.d.Now())
}

func (m *Machine) listenForInterrupt(ctx context.Context, p *PlaybackState) error {
	f, ok := m.d.Frames.Poll(m.cfg.InterruptPoll)
	if p.InterruptRequested() {
		return nil
	}
	// Only speech is buffered, but the threshold is checked on every poll so
	// speech heard during the grace period is still evaluated once it ends.
	if ok && m.d.Interrupt.IsSpeech(f) {
		m.interruptFrames = append(m.interruptFrames, f)
		m.interruptSpeech += f.Duration()
	}

	now := m.d.Now()
	if m.interruptSpeech < m.cfg.InterruptMinSpeech || now.Sub(p.StartedAt) < m.cfg.InterruptGrace {
		return nil
	}
	samples := audio.Concat(m.interruptFrames)
	m.resetInterruptBuffer()

	sanitized := phrase.Sanitize(m.transcribe(ctx, samples))
	if sanitized == "" {
		return nil
	}
	speaking := p.Item.Text
	isInterrupt := m.d.Matcher.ContainsInterrupt(sanitized, speaking)
	isSkip := !isInterrupt && m.d.Matcher.ContainsSkip(sanitized, speaking)
	if !isInterrupt && !isSkip {
		log.Debug().Str("text", preview(sanitized, 50)).Msg("speech during playback ignored")
		return nil
	}

	var (
		kind  convlog.Kind
		sound playback.Sound
		typ   protocol.MessageType
	)
	if isInterrupt {
		cleared := m.d.Queue.Clear()
		log.Info().Str("text", preview(sanitized, 50)).Int("cleared", cleared).Msg("interrupt detected")
		kind, sound, typ = convlog.KindInterrupt, playback.SoundStop, protocol.TypePlaybackInterrupt
		m.countPlayback("interrupt")
	} else {
		log.Info().Str("text", preview(sanitized, 50)).Msg("skip detected")
		kind, sound, typ = convlog.KindSkip, playback.SoundSkip, protocol.TypePlaybackSkip
		m.countPlayback("skip")
	}

	p.RequestInterrupt()
	p.interruptAt = now
	m.d.Session.RecordInterrupt()
	m.d.Sleep(settleDelay)
	m.d.Frames.Drain()
	m.d.Chimes.Play(sound)
	m.d.Session.Touch(m.d.Now())

	evt := protocol.NewEvent(typ, now)
	evt.Text = sanitized
	evt.ActivationID = m.d.Session.Snapshot().ID
	m.publish(evt)
	return m.appendLog(ctx, kind, sanitized)
}

func (m *Machine) listen(ctx context.Context) error {
	f, ok := m.d.Frames.Poll(m.cfg.ListenPoll)
	if !ok {
		return nil
	}
	speaking := m.d.Listening.IsSpeech(f)
	wasRecording := m.acc.Recording()
	frames, complete := m.acc.Feed(f, speaking, !m.d.Session.Active())
	if !wasRecording && m.acc.Recording() {
		log.Debug().Msg("speech detected, recording")
	}
	if !complete {
		return nil
	}
	return m.handleUtterance(ctx, frames)
}

func (m *Machine) handleUtterance(ctx context.Context, frames []audio.Frame) error {
	endedAt := m.d.Now()
	text := m.transcribe(ctx, audio.Concat(frames))
	if text == "" {
		m.countUtterance("empty")
		return nil
	}

	now := m.d.Now()
	switch verdict := m.filter.Classify(text, m.last, now); verdict {
	case phrase.Echo, phrase.Noise:
		log.Debug().Str("verdict", verdict.String()).Str("text", preview(text, 50)).Msg("discarding transcription")
		m.countUtterance(verdict.String())
		evt := protocol.NewEvent(protocol.TypeUtteranceDiscarded, now)
		evt.Text = text
		evt.Reason = verdict.String()
		m.publish(evt)
		return nil
	}

	active := m.d.Session.Active()
	log.Info().Bool("active", active).Str("text", preview(text, 100)).Msg("heard")
	evt := protocol.NewEvent(protocol.TypeUtteranceHeard, now)
	evt.Text = text
	evt.ActivationID = m.d.Session.Snapshot().ID
	m.publish(evt)

	if active {
		if m.d.Matcher.MatchesDeactivation(text) {
			m.countUtterance("deactivation")
			m.d.Session.Deactivate(now, session.ReasonDeactivation)
			m.d.Chimes.Play(playback.SoundDeactivate)
			return nil
		}
		m.countUtterance("command")
		m.d.Session.Touch(now)
		return m.forward(ctx, text, endedAt)
	}

	if word, ok := m.d.Matcher.MatchWakeWord(text); ok {
		log.Info().Str("wake_word", word).Msg("activated")
		m.countUtterance("wake")
		m.d.Session.Activate(now)
		m.d.Chimes.Play(playback.SoundActivate)
		return m.forward(ctx, text, endedAt)
	}

	log.Debug().Msg("no wake word, discarding")
	m.countUtterance("ignored")
	return nil
}

func (m *Machine) forward(ctx context.Context, text string, endedAt time.Time) error {
	cleaned := m.d.Matcher.CleanCommand(text)
	if cleaned == "" {
		return nil
	}
	logErr := m.appendLog(ctx, convlog.KindSTT, cleaned)

	if err := m.d.Injector.Inject(ctx, VoiceMessagePrefix+" "+cleaned); err != nil {
		log.Warn().Err(err).Msg("injection failed")
		m.countInjection("failed")
		m.d.Queue.Push(InjectFailureNotice)
		m.publish(protocol.NewErrorEvent("inject", "no_target", err.Error(), false, m.d.Now()))
		return logErr
	}
	m.countInjection("ok")
	if m.d.Latency != nil {
		m.d.Latency.Observe(observability.StageUtteranceToInject, m.d.Now().Sub(endedAt))
	}
	evt := protocol.NewEvent(protocol.TypeCommandInjected, m.d.Now())
	evt.Text = cleaned
	evt.ActivationID = m.d.Session.Snapshot().ID
	m.publish(evt)
	return logErr
}

// transcribe returns "" for anything that is not usable text.
func (m *Machine) transcribe(ctx context.Context, samples []int16) string {
	if len(samples) == 0 {
		return ""
	}
	timeout := m.cfg.TranscribeTimeout
	if timeout <= 0 {
		timeout = speech.DefaultTranscribeTimeout
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := m.d.Transcriber.Transcribe(tctx, samples, m.cfg.SampleRate)
	switch {
	case errors.Is(err, speech.ErrBelowEnergy):
		m.countUtterance("below_energy")
		return ""
	case err != nil:
		log.Debug().Err(err).Msg("transcription failed, treating as silence")
		m.countServiceError("whisper", err)
		return ""
	}
	if text == "[BLANK_AUDIO]" {
		return ""
	}
	return text
}

func (m *Machine) resetInterruptBuffer() {
	m.interruptFrames = nil
	m.interruptSpeech = 0
}

func (m *Machine) appendLog(ctx context.Context, kind convlog.Kind, text string) error {
	if m.d.Log == nil {
		return nil
	}
	if err := m.d.Log.Append(ctx, convlog.Entry{
		Kind:         kind,
		Text:         text,
		ActivationID: m.d.Session.Snapshot().ID,
		CreatedAt:    m.d.Now(),
	}); err != nil {
		return fmt.Errorf("conversation log: %w", err)
	}
	return nil
}

func (m *Machine) publish(evt any) {
	if m.d.Publish != nil {
		m.d.Publish(evt)
	}
}

func (m *Machine) countUtterance(outcome string) {
	if m.d.Metrics != nil {
		m.d.Metrics.Utterances.WithLabelValues(outcome).Inc()
	}
	if m.d.Latency != nil {
		m.d.Latency.Count("utterance_" + outcome)
	}
}

func (m *Machine) countPlayback(event string) {
	if m.d.Metrics != nil {
		m.d.Metrics.PlaybackEvents.WithLabelValues(event).Inc()
	}
	if m.d.Latency != nil {
		m.d.Latency.Count("playback_" + event)
	}
}

func (m *Machine) countInjection(result string) {
	if m.d.Metrics != nil {
		m.d.Metrics.Injections.WithLabelValues(result).Inc()
	}
}

func (m *Machine) countServiceError(service string, err error) {
	if m.d.Metrics != nil {
		m.d.Metrics.ServiceErrors.WithLabelValues(service, reliability.ErrorKind(err)).Inc()
	}
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
