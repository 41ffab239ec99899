package turn

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/samantha-voice/internal/audio"
	"github.com/antoniostano/samantha-voice/internal/instance"
	"github.com/antoniostano/samantha-voice/internal/protocol"
)

type fakeCapture struct {
	openErr   error
	openDelay time.Duration
	opened    atomic.Int32
	closed    atomic.Int32
}

func (c *fakeCapture) Open() error {
	time.Sleep(c.openDelay)
	if c.openErr != nil {
		return c.openErr
	}
	c.opened.Add(1)
	return nil
}

func (c *fakeCapture) Close() error {
	c.closed.Add(1)
	return nil
}

func newTestController(t *testing.T, capture *fakeCapture) (*Controller, *harness, string) {
	t.Helper()
	h := newHarness(t)
	d := h.deps()
	d.Now = nil
	d.Sleep = nil
	pidPath := filepath.Join(t.TempDir(), "listener.pid")
	c := NewController(ControllerOptions{
		Config:       DefaultConfig(),
		StartTimeout: 200 * time.Millisecond,
		StopWait:     500 * time.Millisecond,
		Marker:       instance.NewMarker(pidPath),
		NewCapture:   func(*audio.FrameQueue) Capture { return capture },
	}, d)
	return c, h, pidPath
}

func TestControllerStartStop(t *testing.T) {
	capture := &fakeCapture{}
	c, h, pidPath := newTestController(t, capture)

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Running())
	assert.Equal(t, int32(1), capture.opened.Load())
	assert.FileExists(t, pidPath)

	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyRunning)

	st := c.Status()
	assert.True(t, st.Running)
	assert.Equal(t, "webrtc", st.VAD)
	assert.False(t, st.Degraded)

	h.session.Activate(time.Now())
	ok, err := c.Stop()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, c.Running())
	assert.False(t, h.session.Active())
	assert.GreaterOrEqual(t, capture.closed.Load(), int32(1))
	_, statErr := os.Stat(pidPath)
	assert.True(t, os.IsNotExist(statErr))

	types := eventTypes(h.events)
	assert.Contains(t, types, protocol.TypeLoopStarted)
	assert.Contains(t, types, protocol.TypeSessionActivated)
	assert.Contains(t, types, protocol.TypeLoopStopped)
}

func TestControllerStopWhenIdle(t *testing.T) {
	c, _, _ := newTestController(t, &fakeCapture{})

	ok, err := c.Stop()
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestControllerStartFailsWhenMicrophoneUnavailable(t *testing.T) {
	capture := &fakeCapture{openErr: audio.ErrDeviceUnavailable}
	c, _, pidPath := newTestController(t, capture)

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, audio.ErrDeviceUnavailable)
	assert.False(t, c.Running())
	assert.NoFileExists(t, pidPath)
}

func TestControllerStartTimesOut(t *testing.T) {
	capture := &fakeCapture{openDelay: time.Second}
	c, _, pidPath := newTestController(t, capture)

	assert.ErrorIs(t, c.Start(context.Background()), ErrStartTimeout)
	assert.False(t, c.Running())
	assert.NoFileExists(t, pidPath)
}

func TestControllerPrepareFailureReleasesMarker(t *testing.T) {
	capture := &fakeCapture{}
	c, _, pidPath := newTestController(t, capture)
	c.opts.Prepare = func(context.Context) error { return errors.New("whisper unhealthy") }

	assert.EqualError(t, c.Start(context.Background()), "whisper unhealthy")
	assert.Equal(t, int32(0), capture.opened.Load())
	assert.NoFileExists(t, pidPath)
}

func TestControllerSpeakQueuesWhileRunning(t *testing.T) {
	c, h, _ := newTestController(t, &fakeCapture{})
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	queued, err := c.Speak(context.Background(), "  build finished  ")
	require.NoError(t, err)
	assert.True(t, queued)

	require.Eventually(t, func() bool { return len(h.speaker.Started()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"build finished"}, h.speaker.Started())
	assert.Eventually(t, func() bool { return c.Status().Playing }, time.Second, 10*time.Millisecond)
}

func TestControllerStopWaitsForPlayback(t *testing.T) {
	c, h, _ := newTestController(t, &fakeCapture{})
	require.NoError(t, c.Start(context.Background()))

	_, err := c.Speak(context.Background(), "a long explanation")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.speaker.Active() == 1 }, time.Second, 5*time.Millisecond)

	ok, err := c.Stop()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, h.speaker.Active())
}

func TestControllerSpeakDuringStopNeverOverlapsPlayback(t *testing.T) {
	c, h, _ := newTestController(t, &fakeCapture{})
	require.NoError(t, c.Start(context.Background()))

	_, err := c.Speak(context.Background(), "first reply")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.speaker.Active() == 1 }, time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = c.Stop()
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _ = c.Speak(ctx, "second reply")
	wg.Wait()

	assert.Equal(t, 1, h.speaker.MaxActive())
	assert.Equal(t, 0, h.speaker.Active())
}

func TestControllerSpeakDirectWhenStopped(t *testing.T) {
	c, h, _ := newTestController(t, &fakeCapture{})
	h.speaker.complete = true

	queued, err := c.Speak(context.Background(), "hello")
	require.NoError(t, err)
	assert.False(t, queued)
	assert.Equal(t, []string{"hello"}, h.speaker.Started())
	assert.Equal(t, 0, h.queue.Len())
}

func TestControllerSpeakErrors(t *testing.T) {
	c, h, _ := newTestController(t, &fakeCapture{})

	_, err := c.Speak(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)

	h.speaker.err = errors.New("connection refused")
	_, err = c.Speak(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrSpeakFailed)
}
