package turn

import (
	"sync/atomic"
	"time"

	"github.com/antoniostano/samantha-voice/internal/playback"
)

// PlaybackState is one in-flight utterance. The loop writes interrupt; the
// playback goroutine writes playing, outcome, err and finishedAt, which the
// loop reads only after done is closed.
type PlaybackState struct {
	Item      Utterance
	StartedAt time.Time

	playing     atomic.Bool
	interrupt   atomic.Bool
	done        chan struct{}
	interruptAt time.Time

	outcome    playback.Outcome
	err        error
	finishedAt time.Time
}

func newPlaybackState(item Utterance, now time.Time) *PlaybackState {
	p := &PlaybackState{Item: item, StartedAt: now, done: make(chan struct{})}
	p.playing.Store(true)
	return p
}

func (p *PlaybackState) Playing() bool { return p.playing.Load() }

// RequestInterrupt sets the cooperative cancel flag. It reports whether this
// call was the first request.
func (p *PlaybackState) RequestInterrupt() bool {
	return p.interrupt.CompareAndSwap(false, true)
}

func (p *PlaybackState) InterruptRequested() bool { return p.interrupt.Load() }

func (p *PlaybackState) Done() <-chan struct{} { return p.done }

func (p *PlaybackState) finished() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
