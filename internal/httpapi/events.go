package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/antoniostano/samantha-voice/internal/observability"
	"github.com/antoniostano/samantha-voice/internal/protocol"
)

const (
	subscriberBuffer = 256
	writeWait        = 10 * time.Second
	pongWait         = 120 * time.Second
	pingPeriod       = 30 * time.Second
)

// Hub fans loop events out to websocket subscribers. A subscriber that cannot
// keep up loses events rather than stalling the loop.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	metrics *observability.Metrics
}

type subscriber struct {
	send chan any
}

func NewHub(metrics *observability.Metrics) *Hub {
	return &Hub{subs: make(map[*subscriber]struct{}), metrics: metrics}
}

// Broadcast never blocks.
func (h *Hub) Broadcast(evt any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.send <- evt:
		default:
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) subscribe() *subscriber {
	sub := &subscriber{send: make(chan any, subscriberBuffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.EventSubscriptions.Set(float64(n))
	}
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	n := len(h.subs)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.EventSubscriptions.Set(float64(n))
	}
}

// reply delivers a response to one subscriber only.
func (sub *subscriber) reply(v any) {
	select {
	case sub.send <- v:
	default:
	}
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := s.hub.subscribe()
	defer s.hub.unsubscribe(sub)
	log.Debug().Str("remote", r.RemoteAddr).Msg("event subscriber connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-sub.send:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for ctx.Err() == nil {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			sub.reply(protocol.NewErrorEvent("gateway", "invalid_client_message", err.Error(), false, time.Now()))
			continue
		}
		if ctl, ok := parsed.(protocol.ClientControl); ok {
			s.handleControl(ctx, sub, ctl)
		}
	}

	cancel()
	<-writerDone
	log.Debug().Str("remote", r.RemoteAddr).Msg("event subscriber disconnected")
}

func (s *Server) handleControl(ctx context.Context, sub *subscriber, ctl protocol.ClientControl) {
	var (
		msg string
		err error
	)
	switch ctl.Action {
	case protocol.ActionStatus:
		sub.reply(s.listener.Status())
		return
	case protocol.ActionStart:
		msg, err = s.listener.Start(ctx)
	case protocol.ActionStop:
		msg, err = s.listener.Stop()
	case protocol.ActionSpeak:
		var queued bool
		queued, err = s.listener.Speak(ctx, ctl.Text)
		msg = "Spoken"
		if queued {
			msg = "Queued for speech"
		}
	}
	if err != nil {
		sub.reply(protocol.NewErrorEvent("control", ctl.Action+"_failed", err.Error(), false, time.Now()))
		return
	}
	sub.reply(protocol.MessageResponse{OK: true, Message: msg})
}
