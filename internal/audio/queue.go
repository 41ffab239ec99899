package audio

import (
	"sync"
	"time"
)

// DefaultQueueCapacity holds two minutes of 30 ms frames.
const DefaultQueueCapacity = 4000

// FrameQueue is the hand-off between the capture callback and the control loop.
// Push never blocks. When the backlog reaches capacity the oldest frame is dropped.
type FrameQueue struct {
	mu       sync.Mutex
	frames   []Frame
	capacity int
	dropped  uint64
	notify   chan struct{}
}

func NewFrameQueue(capacity int) *FrameQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &FrameQueue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

func (q *FrameQueue) Push(f Frame) {
	q.mu.Lock()
	if len(q.frames) >= q.capacity {
		q.frames = q.frames[1:]
		q.dropped++
	}
	q.frames = append(q.frames, f)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Poll returns the oldest frame, waiting up to timeout for one to arrive.
func (q *FrameQueue) Poll(timeout time.Duration) (Frame, bool) {
	if f, ok := q.pop(); ok {
		return f, true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.notify:
			if f, ok := q.pop(); ok {
				return f, true
			}
		case <-timer.C:
			return q.pop()
		}
	}
}

// Drain discards every queued frame and returns how many were dropped.
func (q *FrameQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.frames)
	q.frames = nil
	return n
}

func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Dropped reports frames discarded because of overflow.
func (q *FrameQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *FrameQueue) pop() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		return Frame{}, false
	}
	f := q.frames[0]
	q.frames[0] = Frame{}
	q.frames = q.frames[1:]
	return f, true
}
