package convlog

import (
	"context"
	"time"
)

// Kind labels a conversation log entry.
type Kind string

const (
	KindSTT       Kind = "STT"
	KindTTS       Kind = "TTS"
	KindInterrupt Kind = "INTERRUPT"
	KindSkip      Kind = "SKIP"
)

// Entry is one line of the conversation log.
type Entry struct {
	ID           string    `json:"id"`
	ActivationID string    `json:"activation_id,omitempty"`
	Kind         Kind      `json:"kind"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store appends conversation entries and reads back the most recent ones.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}
