package turn

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Utterance is one pending text-to-speech item.
type Utterance struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	QueuedAt time.Time `json:"queued_at"`
}

// SpeechQueue is the FIFO of pending speech, shared between callers of Speak
// and the control loop.
type SpeechQueue struct {
	mu       sync.Mutex
	items    []Utterance
	onChange func(depth int)
}

func NewSpeechQueue() *SpeechQueue {
	return &SpeechQueue{}
}

// OnChange registers a callback receiving the depth after every mutation.
func (q *SpeechQueue) OnChange(fn func(depth int)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onChange = fn
}

func (q *SpeechQueue) Push(text string) Utterance {
	u := Utterance{ID: uuid.NewString(), Text: text, QueuedAt: time.Now()}
	q.mu.Lock()
	q.items = append(q.items, u)
	depth, fn := len(q.items), q.onChange
	q.mu.Unlock()
	if fn != nil {
		fn(depth)
	}
	return u
}

func (q *SpeechQueue) Pop() (Utterance, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return Utterance{}, false
	}
	u := q.items[0]
	q.items[0] = Utterance{}
	q.items = q.items[1:]
	depth, fn := len(q.items), q.onChange
	q.mu.Unlock()
	if fn != nil {
		fn(depth)
	}
	return u, true
}

// Clear drops every pending item and returns how many were dropped.
func (q *SpeechQueue) Clear() int {
	q.mu.Lock()
	n := len(q.items)
	q.items = nil
	fn := q.onChange
	q.mu.Unlock()
	if fn != nil && n > 0 {
		fn(0)
	}
	return n
}

func (q *SpeechQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *SpeechQueue) Snapshot() []Utterance {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Utterance, len(q.items))
	copy(out, q.items)
	return out
}
