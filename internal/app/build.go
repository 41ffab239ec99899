package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/antoniostano/samantha-voice/internal/audio"
	"github.com/antoniostano/samantha-voice/internal/config"
	"github.com/antoniostano/samantha-voice/internal/convlog"
	"github.com/antoniostano/samantha-voice/internal/httpapi"
	"github.com/antoniostano/samantha-voice/internal/inject"
	"github.com/antoniostano/samantha-voice/internal/instance"
	"github.com/antoniostano/samantha-voice/internal/observability"
	"github.com/antoniostano/samantha-voice/internal/phrase"
	"github.com/antoniostano/samantha-voice/internal/playback"
	"github.com/antoniostano/samantha-voice/internal/session"
	"github.com/antoniostano/samantha-voice/internal/turn"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Service      *Service
	Controller   *turn.Controller
	Conversation convlog.Store
	Metrics      *observability.Metrics
	Latency      *observability.LatencyWindow
	VoiceDetail  string

	// Cleanup releases the conversation store and the audio host API.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace, nil)
	latency := observability.NewLatencyWindow(256)

	conversation, err := convlog.NewStore(ctx, cfg.ConversationLog(), cfg.AssistantName(), cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("conversation log init failed: %w", err)
	}

	terminateAudio, err := audio.InitPortAudio()
	if err != nil {
		// Capture will report the device error on start; playback falls back to a system player.
		log.Warn().Err(err).Msg("audio host unavailable")
		terminateAudio = func() error { return nil }
	}

	voice := resolveVoice(cfg, metrics, latency)

	mode, err := inject.ParseMode(cfg.InjectionMode)
	if err != nil {
		_ = terminateAudio()
		_ = conversation.Close()
		return nil, err
	}
	injector := inject.NewDesktop(inject.Options{
		Mode:           mode,
		TargetApp:      cfg.TargetApp,
		RestoreFocus:   cfg.RestoreFocus,
		AIProcessRegex: cfg.AIProcessPattern,
		WindowTitles:   cfg.AIWindowTitles,
	})

	player := playback.NewPlayer(voice.synthesizer, audio.PortAudioSink{Device: cfg.OutputDevice}, playback.Options{
		Voice: cfg.Voice,
		Log:   conversation,
		ObserveFirstAudio: func(d time.Duration) {
			metrics.ObserveFirstAudioLatency(d)
			latency.Observe(observability.StageSynthFirstAudio, d)
		},
		FilePlayer: playback.SystemFilePlayer{},
	})

	matcher := phrase.NewMatcher(phrase.Lists{
		WakeWords:           cfg.WakeWords,
		DeactivationPhrases: cfg.DeactivationPhrases,
		StopPhrases:         cfg.StopPhrases,
		InterruptWords:      cfg.InterruptWords,
		SkipWords:           cfg.SkipWords,
	})

	hub := httpapi.NewHub(metrics)
	marker := instance.NewMarker(cfg.ActiveFile())

	controller := turn.NewController(turn.ControllerOptions{
		Config:       turnConfig(cfg),
		StartTimeout: cfg.StartTimeout,
		Marker:       marker,
		Prepare:      prepareServices(cfg, &http.Client{}),
		NewCapture: func(queue *audio.FrameQueue) turn.Capture {
			return audio.NewCapture(cfg.InputDevice, audio.CaptureSampleRate, queue)
		},
	}, turn.Deps{
		Listening:   voice.listening,
		Interrupt:   voice.interrupt,
		Transcriber: voice.transcriber,
		Speaker:     player,
		Chimes:      playback.NewSystemChimes(),
		Injector:    injector,
		Matcher:     matcher,
		Session:     session.NewWindow(cfg.SessionTimeout),
		Queue:       turn.NewSpeechQueue(),
		Log:         conversation,
		Metrics:     metrics,
		Latency:     latency,
		Publish:     hub.Broadcast,
	})

	service := NewService(cfg, controller, injector, marker)
	api := httpapi.New(httpapi.Options{AllowAnyOrigin: cfg.AllowAnyOrigin}, service, conversation, metrics, latency, hub)

	cleanup := func() error {
		var errs []error
		if controller.Running() {
			if _, err := controller.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := terminateAudio(); err != nil {
			errs = append(errs, fmt.Errorf("terminate audio: %w", err))
		}
		if err := conversation.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close conversation log: %w", err))
		}
		return errors.Join(errs...)
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Service:      service,
		Controller:   controller,
		Conversation: conversation,
		Metrics:      metrics,
		Latency:      latency,
		VoiceDetail:  voice.detail,
		Cleanup:      cleanup,
	}, nil
}

func turnConfig(cfg config.Config) turn.Config {
	tc := turn.DefaultConfig()
	tc.Accumulator = turn.AccumulatorConfig{
		SilenceThreshold: cfg.SilenceThreshold,
		MinRecording:     cfg.MinRecording,
		InitialGrace:     cfg.InitialGrace,
		PreRoll:          cfg.PreRoll,
	}
	tc.InterruptMinSpeech = cfg.InterruptMinSpeech
	tc.InterruptGrace = cfg.InterruptGrace
	tc.TranscribeTimeout = cfg.TranscribeTimeout
	return tc
}
