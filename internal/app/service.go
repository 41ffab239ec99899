package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/antoniostano/samantha-voice/internal/config"
	"github.com/antoniostano/samantha-voice/internal/inject"
	"github.com/antoniostano/samantha-voice/internal/instance"
	"github.com/antoniostano/samantha-voice/internal/protocol"
	"github.com/antoniostano/samantha-voice/internal/speech"
	"github.com/antoniostano/samantha-voice/internal/turn"
)

// Controller is the part of turn.Controller the service drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop() (bool, error)
	Speak(ctx context.Context, text string) (bool, error)
	Status() turn.Status
}

// TargetDetector reports which assistant surfaces are currently open.
type TargetDetector interface {
	DetectTargets(ctx context.Context) inject.Targets
}

// Service turns listener operations into the user-facing messages of the
// control surface.
type Service struct {
	cfg        config.Config
	controller Controller
	targets    TargetDetector
	marker     *instance.Marker
}

func NewService(cfg config.Config, controller Controller, targets TargetDetector, marker *instance.Marker) *Service {
	return &Service{cfg: cfg, controller: controller, targets: targets, marker: marker}
}

func (s *Service) Start(ctx context.Context) (string, error) {
	name := s.cfg.AssistantName()
	if err := s.controller.Start(ctx); err != nil {
		return "", err
	}
	msg := fmt.Sprintf("🎧 %s started.", name)
	if t := s.targets.DetectTargets(ctx); t.Empty() {
		msg += " ⚠️ No IDE/terminal detected yet - will find it when you speak."
	} else {
		msg += " Detected: " + t.String() + "."
	}
	msg += fmt.Sprintf(" Say 'Hey %s' to activate.", name)
	return msg, nil
}

func (s *Service) Stop() (string, error) {
	_, err := s.controller.Stop()
	if errors.Is(err, turn.ErrNotRunning) {
		return fmt.Sprintf("%s is not running", s.cfg.AssistantName()), nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("🛑 %s stopped", s.cfg.AssistantName()), nil
}

func (s *Service) Speak(ctx context.Context, text string) (bool, error) {
	return s.controller.Speak(ctx, text)
}

func (s *Service) Status() protocol.StatusResponse {
	st := s.controller.Status()
	active := st.Running
	if !active && s.marker != nil {
		_, active = s.marker.RunningElsewhere()
	}
	wake := s.cfg.WakeWords
	if len(wake) > 5 {
		wake = wake[:5]
	}
	return protocol.StatusResponse{
		Active:     active,
		Running:    st.Running,
		Session:    string(st.Session.State),
		Playing:    st.Playing,
		QueueDepth: st.QueueDepth,
		WakeWords:  wake,
		LogFile:    s.cfg.ConversationLog(),
		Profile:    s.cfg.Profile,
		VAD:        st.VAD,
		Degraded:   st.Degraded,
		PID:        os.Getpid(),
	}
}

// prepareServices makes sure both speech services answer before the microphone opens.
func prepareServices(cfg config.Config, client *http.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		kokoro := speech.KokoroService(cfg.Home, cfg.KokoroHealthURL)
		if err := speech.EnsureRunning(ctx, client, kokoro, cfg.AutostartServices); err != nil {
			log.Error().Err(err).Msg("kokoro unavailable")
			return fmt.Errorf("Failed to start Kokoro TTS service: %w", err)
		}
		whisper := speech.WhisperService(cfg.Home, cfg.WhisperHealthURL)
		if err := speech.EnsureRunning(ctx, client, whisper, cfg.AutostartServices); err != nil {
			log.Error().Err(err).Msg("whisper unavailable")
			return fmt.Errorf("Failed to start Whisper STT service: %w", err)
		}
		return nil
	}
}
