package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the activation state of the voice conversation.
type State string

const (
	// StateIdle waits for a wake word.
	StateIdle State = "idle"
	// StateActive forwards everything heard to the assistant.
	StateActive State = "active"
)

// DefaultTimeout returns an active window to idle after this much silence.
const DefaultTimeout = 30 * time.Minute

// Transition reasons.
const (
	ReasonWakeWord     = "wake_word"
	ReasonDeactivation = "deactivation"
	ReasonTimeout      = "timeout"
	ReasonStopped      = "stopped"
)

// Snapshot is a copy of the window for status reporting.
type Snapshot struct {
	ID             string    `json:"activation_id,omitempty"`
	State          State     `json:"state"`
	ActivatedAt    time.Time `json:"activated_at,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at,omitempty"`
	Activations    int       `json:"activations"`
	Interruptions  int       `json:"interruptions"`
}

// Transition describes one state change.
type Transition struct {
	From   State
	To     State
	Reason string
	At     time.Time
	ID     string
}

// Window tracks the activation state. The control loop is the only writer;
// other goroutines read through Snapshot.
type Window struct {
	mu       sync.RWMutex
	cur      Snapshot
	timeout  time.Duration
	onChange func(Transition)
}

func NewWindow(timeout time.Duration) *Window {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Window{cur: Snapshot{State: StateIdle}, timeout: timeout}
}

func (w *Window) SetTransitionHook(hook func(Transition)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = hook
}

func (w *Window) Timeout() time.Duration { return w.timeout }

// Activate moves IDLE to ACTIVE. It returns false when already active.
func (w *Window) Activate(now time.Time) bool {
	w.mu.Lock()
	if w.cur.State == StateActive {
		w.cur.LastActivityAt = now
		w.mu.Unlock()
		return false
	}
	w.cur.ID = uuid.NewString()
	w.cur.State = StateActive
	w.cur.ActivatedAt = now
	w.cur.LastActivityAt = now
	w.cur.Activations++
	t := Transition{From: StateIdle, To: StateActive, Reason: ReasonWakeWord, At: now, ID: w.cur.ID}
	hook := w.onChange
	w.mu.Unlock()

	if hook != nil {
		hook(t)
	}
	return true
}

// Deactivate moves ACTIVE to IDLE. It returns false when already idle.
func (w *Window) Deactivate(now time.Time, reason string) bool {
	w.mu.Lock()
	if w.cur.State != StateActive {
		w.mu.Unlock()
		return false
	}
	t := Transition{From: StateActive, To: StateIdle, Reason: reason, At: now, ID: w.cur.ID}
	w.cur.State = StateIdle
	w.cur.LastActivityAt = now
	hook := w.onChange
	w.mu.Unlock()

	if hook != nil {
		hook(t)
	}
	return true
}

// Touch refreshes the activity timer of an active window.
func (w *Window) Touch(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cur.State == StateActive {
		w.cur.LastActivityAt = now
	}
}

// RecordInterrupt counts a spoken interrupt or skip.
func (w *Window) RecordInterrupt() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cur.Interruptions++
}

// Expire returns an active window to idle once the timeout has elapsed since
// the last activity. It reports whether the transition happened.
func (w *Window) Expire(now time.Time) bool {
	w.mu.RLock()
	expired := w.cur.State == StateActive && now.Sub(w.cur.LastActivityAt) > w.timeout
	w.mu.RUnlock()
	if !expired {
		return false
	}
	return w.Deactivate(now, ReasonTimeout)
}

func (w *Window) Active() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur.State == StateActive
}

func (w *Window) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur
}
