package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/antoniostano/samantha-voice/internal/convlog"
	"github.com/antoniostano/samantha-voice/internal/instance"
	"github.com/antoniostano/samantha-voice/internal/observability"
	"github.com/antoniostano/samantha-voice/internal/protocol"
	"github.com/antoniostano/samantha-voice/internal/turn"
)

const (
	defaultConversationLimit = 20
	maxConversationLimit     = 200
)

// Listener is the voice loop as seen by the control surface.
type Listener interface {
	Start(ctx context.Context) (string, error)
	Stop() (string, error)
	Speak(ctx context.Context, text string) (queued bool, err error)
	Status() protocol.StatusResponse
}

type Options struct {
	// AllowAnyOrigin disables the same-origin check on websocket upgrades.
	AllowAnyOrigin bool
}

type Server struct {
	listener     Listener
	conversation convlog.Store
	metrics      *observability.Metrics
	latency      *observability.LatencyWindow
	hub          *Hub
	upgrader     websocket.Upgrader
}

func New(opts Options, listener Listener, conversation convlog.Store, metrics *observability.Metrics, latency *observability.LatencyWindow, hub *Hub) *Server {
	if hub == nil {
		hub = NewHub(metrics)
	}
	return &Server{
		listener:     listener,
		conversation: conversation,
		metrics:      metrics,
		latency:      latency,
		hub:          hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers on other sites must not drive the microphone.
				if opts.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			http.NotFound(w, r)
			return
		}
		s.metrics.Handler().ServeHTTP(w, r)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
		r.Post("/speak", s.handleSpeak)
		r.Get("/conversation", s.handleConversation)
		r.Get("/perf/latency", s.handlePerfLatency)
		r.Get("/events/ws", s.handleEventsWS)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.listener.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	msg, err := s.listener.Start(r.Context())
	switch {
	case errors.Is(err, turn.ErrAlreadyRunning), errors.Is(err, instance.ErrAlreadyRunning):
		respondError(w, http.StatusConflict, "already_running", "Voice mode is already running")
	case err != nil:
		log.Error().Err(err).Msg("start failed")
		respondError(w, http.StatusServiceUnavailable, "start_failed", err.Error())
	default:
		respondJSON(w, http.StatusOK, protocol.MessageResponse{OK: true, Message: msg})
	}
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	msg, err := s.listener.Stop()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "stop_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, protocol.MessageResponse{OK: true, Message: msg})
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req protocol.SpeakRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	queued, err := s.listener.Speak(r.Context(), req.Text)
	switch {
	case errors.Is(err, turn.ErrEmptyText):
		respondError(w, http.StatusBadRequest, "empty_text", "No text provided")
	case err != nil:
		respondError(w, http.StatusBadGateway, "speak_failed", err.Error())
	case queued:
		respondJSON(w, http.StatusAccepted, protocol.MessageResponse{OK: true, Message: "Queued for speech"})
	default:
		respondJSON(w, http.StatusOK, protocol.MessageResponse{OK: true, Message: "Spoken"})
	}
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	if s.conversation == nil {
		respondJSON(w, http.StatusOK, map[string]any{"entries": []convlog.Entry{}})
		return
	}
	limit := defaultConversationLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxConversationLimit)
	}
	entries, err := s.conversation.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "conversation_unavailable", err.Error())
		return
	}
	if entries == nil {
		entries = []convlog.Entry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.latency == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"stages":       []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.latency.Snapshot())
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
