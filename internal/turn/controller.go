package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/antoniostano/samantha-voice/internal/audio"
	"github.com/antoniostano/samantha-voice/internal/instance"
	"github.com/antoniostano/samantha-voice/internal/protocol"
	"github.com/antoniostano/samantha-voice/internal/session"
)

var (
	ErrNotRunning     = errors.New("listener not running")
	ErrAlreadyRunning = errors.New("listener already running")
	ErrStartTimeout   = errors.New("listener did not become ready in time")
	ErrEmptyText      = errors.New("text is empty")
	ErrSpeakFailed    = errors.New("TTS failed: Kokoro service may not be running")
)

// Capture is the microphone stream feeding a frame queue. Close must be idempotent.
type Capture interface {
	Open() error
	Close() error
}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	Config       Config
	StartTimeout time.Duration
	// StopWait is how long Stop waits for the loop before force-closing the capture.
	StopWait time.Duration
	// ForceWait is the extra wait after force-closing.
	ForceWait time.Duration
	Marker    *instance.Marker
	// Prepare runs before the microphone opens, typically service health checks.
	Prepare    func(ctx context.Context) error
	NewCapture func(queue *audio.FrameQueue) Capture
}

// Status is a point-in-time view of the listener.
type Status struct {
	Running    bool             `json:"running"`
	Session    session.Snapshot `json:"session"`
	Playing    bool             `json:"playing"`
	QueueDepth int              `json:"queue_depth"`
	VAD        string           `json:"vad"`
	Degraded   bool             `json:"degraded"`
}

// Controller is the start/stop/speak/status surface around one Machine at a time.
type Controller struct {
	opts ControllerOptions
	deps Deps

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	capture Capture

	running atomic.Bool
	machine atomic.Pointer[Machine]
}

func NewController(opts ControllerOptions, deps Deps) *Controller {
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 30 * time.Second
	}
	if opts.StopWait <= 0 {
		opts.StopWait = 2 * time.Second
	}
	if opts.ForceWait <= 0 {
		opts.ForceWait = time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Queue == nil {
		deps.Queue = NewSpeechQueue()
	}
	if deps.Session == nil {
		deps.Session = session.NewWindow(session.DefaultTimeout)
	}
	c := &Controller{opts: opts, deps: deps}
	deps.Session.SetTransitionHook(c.onTransition)
	if deps.Metrics != nil {
		deps.Queue.OnChange(func(depth int) { deps.Metrics.SpeechQueueDepth.Set(float64(depth)) })
	}
	return c
}

// Start opens the microphone and runs the loop. It returns once the capture
// stream is open, or fails after StartTimeout.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running.Load() {
		return ErrAlreadyRunning
	}
	if c.opts.Marker != nil {
		if err := c.opts.Marker.Acquire(); err != nil {
			return err
		}
	}
	release := func() {
		if c.opts.Marker != nil {
			_ = c.opts.Marker.Release()
		}
	}
	if c.opts.Prepare != nil {
		if err := c.opts.Prepare(ctx); err != nil {
			release()
			return err
		}
	}
	if c.opts.NewCapture == nil {
		release()
		return errors.New("no capture configured")
	}

	frames := audio.NewFrameQueue(audio.DefaultQueueCapacity)
	capture := c.opts.NewCapture(frames)
	deps := c.deps
	deps.Frames = frames
	m := NewMachine(c.opts.Config, deps)

	loopCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := capture.Open(); err != nil {
			ready <- err
			return
		}
		defer capture.Close()
		ready <- nil
		m.Run(loopCtx)
		log.Info().Msg("listener loop exited")
	}()

	timer := time.NewTimer(c.opts.StartTimeout)
	defer timer.Stop()
	select {
	case err := <-ready:
		if err != nil {
			cancel()
			release()
			return fmt.Errorf("open microphone: %w", err)
		}
	case <-timer.C:
		cancel()
		_ = capture.Close()
		release()
		return ErrStartTimeout
	case <-ctx.Done():
		cancel()
		_ = capture.Close()
		release()
		return ctx.Err()
	}

	c.cancel, c.done, c.capture = cancel, done, capture
	c.machine.Store(m)
	c.running.Store(true)
	if c.deps.Metrics != nil {
		c.deps.Metrics.LoopRunning.Set(1)
	}
	log.Info().
		Str("vad", c.deps.Listening.Name()).
		Msg("listener started")
	c.publish(protocol.NewEvent(protocol.TypeLoopStarted, c.deps.Now()))
	return nil
}

// Stop ends the loop, clears pending speech and releases the microphone. When
// this process is not running the loop, a listener recorded by another process
// is terminated instead; ok reports whether anything was stopped.
func (c *Controller) Stop() (ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running.Load() {
		if c.opts.Marker != nil && c.opts.Marker.TerminateOther() {
			log.Info().Msg("stopped listener owned by another process")
			return true, nil
		}
		return false, ErrNotRunning
	}

	c.running.Store(false)
	c.cancel()
	cleared := c.deps.Queue.Clear()

	select {
	case <-c.done:
	case <-time.After(c.opts.StopWait):
		log.Warn().Dur("waited", c.opts.StopWait).Msg("loop slow to stop, closing microphone")
		_ = c.capture.Close()
		select {
		case <-c.done:
		case <-time.After(c.opts.ForceWait):
			log.Error().Msg("loop did not exit after microphone close")
		}
	}

	c.machine.Store(nil)
	if c.opts.Marker != nil {
		if err := c.opts.Marker.Release(); err != nil {
			log.Warn().Err(err).Msg("release pid file failed")
		}
	}
	c.deps.Session.Deactivate(c.deps.Now(), session.ReasonStopped)
	if c.deps.Metrics != nil {
		c.deps.Metrics.LoopRunning.Set(0)
	}
	log.Info().Int("cleared", cleared).Msg("listener stopped")
	c.publish(protocol.NewEvent(protocol.TypeLoopStopped, c.deps.Now()))
	return true, nil
}

// Speak queues text while the loop runs, otherwise plays it immediately.
// queued reports which path was taken.
func (c *Controller) Speak(ctx context.Context, text string) (queued bool, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, ErrEmptyText
	}
	// Held across direct playback so it never overlaps a loop that is starting or stopping.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running.Load() {
		c.deps.Queue.Push(text)
		return true, nil
	}
	if _, err := c.deps.Speaker.Play(ctx, text, nil); err != nil {
		log.Error().Err(err).Msg("direct speak failed")
		return false, fmt.Errorf("%w: %v", ErrSpeakFailed, err)
	}
	return false, nil
}

func (c *Controller) Running() bool { return c.running.Load() }

func (c *Controller) Status() Status {
	st := Status{
		Running:    c.running.Load(),
		Session:    c.deps.Session.Snapshot(),
		QueueDepth: c.deps.Queue.Len(),
	}
	if m := c.machine.Load(); m != nil {
		st.Playing = m.Speaking()
	}
	if c.deps.Listening != nil {
		st.VAD = c.deps.Listening.Name()
		st.Degraded = st.VAD != "webrtc"
	}
	return st
}

func (c *Controller) onTransition(t session.Transition) {
	typ := protocol.TypeSessionActivated
	switch {
	case t.To == session.StateActive:
	case t.Reason == session.ReasonTimeout:
		typ = protocol.TypeSessionTimeout
	default:
		typ = protocol.TypeSessionDeactivated
	}
	log.Info().Str("from", string(t.From)).Str("to", string(t.To)).Str("reason", t.Reason).Msg("session transition")
	if c.deps.Metrics != nil {
		c.deps.Metrics.SessionEvents.WithLabelValues(t.Reason).Inc()
		active := 0.0
		if t.To == session.StateActive {
			active = 1
		}
		c.deps.Metrics.SessionActive.Set(active)
	}
	evt := protocol.NewEvent(typ, t.At)
	evt.ActivationID = t.ID
	evt.Reason = t.Reason
	c.publish(evt)
}

func (c *Controller) publish(evt any) {
	if c.deps.Publish != nil {
		c.deps.Publish(evt)
	}
}
