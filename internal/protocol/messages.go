package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl MessageType = "client_control"

	TypeSessionActivated   MessageType = "session_activated"
	TypeSessionDeactivated MessageType = "session_deactivated"
	TypeSessionTimeout     MessageType = "session_timeout"
	TypeUtteranceHeard     MessageType = "utterance_heard"
	TypeUtteranceDiscarded MessageType = "utterance_discarded"
	TypeCommandInjected    MessageType = "command_injected"
	TypePlaybackStarted    MessageType = "playback_started"
	TypePlaybackFinished   MessageType = "playback_finished"
	TypePlaybackInterrupt  MessageType = "playback_interrupt"
	TypePlaybackSkip       MessageType = "playback_skip"
	TypeLoopStarted        MessageType = "loop_started"
	TypeLoopStopped        MessageType = "loop_stopped"
	TypeErrorEvent         MessageType = "error_event"
)

// Control actions accepted from websocket clients.
const (
	ActionSpeak  = "speak"
	ActionStop   = "stop"
	ActionStart  = "start"
	ActionStatus = "status"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// Event is a loop transition broadcast to observers.
type Event struct {
	Type         MessageType `json:"type"`
	ID           string      `json:"id"`
	ActivationID string      `json:"activation_id,omitempty"`
	Text         string      `json:"text,omitempty"`
	Reason       string      `json:"reason,omitempty"`
	Detail       string      `json:"detail,omitempty"`
	TSMs         int64       `json:"ts_ms"`
}

func NewEvent(t MessageType, at time.Time) Event {
	return Event{Type: t, ID: uuid.NewString(), TSMs: at.UnixMilli()}
}

// ErrorEvent reports a recovered failure inside the loop.
type ErrorEvent struct {
	Type      MessageType `json:"type"`
	ID        string      `json:"id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
	TSMs      int64       `json:"ts_ms"`
}

func NewErrorEvent(source, code, detail string, retryable bool, at time.Time) ErrorEvent {
	return ErrorEvent{
		Type:      TypeErrorEvent,
		ID:        uuid.NewString(),
		Code:      code,
		Source:    source,
		Retryable: retryable,
		Detail:    detail,
		TSMs:      at.UnixMilli(),
	}
}

type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
	Text   string      `json:"text,omitempty"`
}

// SpeakRequest is the body of POST /v1/speak.
type SpeakRequest struct {
	Text string `json:"text"`
}

// StatusResponse reports the listener state.
type StatusResponse struct {
	Active     bool     `json:"active"`
	Running    bool     `json:"running"`
	Session    string   `json:"session"`
	Playing    bool     `json:"playing"`
	QueueDepth int      `json:"queue_depth"`
	WakeWords  []string `json:"wake_words"`
	LogFile    string   `json:"log_file"`
	Profile    string   `json:"profile"`
	VAD        string   `json:"vad"`
	Degraded   bool     `json:"degraded"`
	PID        int      `json:"pid"`
}

// MessageResponse carries a human-readable outcome.
type MessageResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Action {
		case ActionSpeak:
			if strings.TrimSpace(msg.Text) == "" {
				return nil, errors.New("invalid client_control: speak requires text")
			}
		case ActionStop, ActionStart, ActionStatus:
		default:
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
