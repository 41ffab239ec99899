package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseClientMessageSpeak(t *testing.T) {
	raw := []byte(`{"type":"client_control","action":"speak","text":"build finished"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.Action != ActionSpeak || control.Text != "build finished" {
		t.Fatalf("unexpected client control: %+v", control)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsInvalidControl(t *testing.T) {
	for _, raw := range []string{
		`{"type":"client_control","action":"speak","text":"  "}`,
		`{"type":"client_control","action":"dance"}`,
		`{"type":"client_control"`,
	} {
		if _, err := ParseClientMessage([]byte(raw)); err == nil {
			t.Fatalf("ParseClientMessage(%s) expected error", raw)
		}
	}
}

func TestParseClientMessageStop(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_control","action":"stop"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if msg.(ClientControl).Action != ActionStop {
		t.Fatalf("Action = %q, want stop", msg.(ClientControl).Action)
	}
}

func TestNewEventJSON(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	evt := NewEvent(TypePlaybackSkip, at)
	evt.Text = "skip"
	raw, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded)
	if decoded["type"] != "playback_skip" || decoded["ts_ms"].(float64) != 1700000000123 {
		t.Fatalf("unexpected event json: %s", raw)
	}
	if evt.ID == "" {
		t.Fatalf("event id is empty")
	}
	if _, ok := decoded["activation_id"]; ok {
		t.Fatalf("empty activation_id should be omitted: %s", raw)
	}
}

func BenchmarkParseClientMessageControl(b *testing.B) {
	raw := []byte(`{"type":"client_control","action":"speak","text":"the tests passed"}`)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msg, err := ParseClientMessage(raw)
		if err != nil {
			b.Fatalf("ParseClientMessage() error = %v", err)
		}
		if _, ok := msg.(ClientControl); !ok {
			b.Fatalf("message type = %T, want ClientControl", msg)
		}
	}
}
