package app

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/antoniostano/samantha-voice/internal/audio"
	"github.com/antoniostano/samantha-voice/internal/config"
	"github.com/antoniostano/samantha-voice/internal/observability"
	"github.com/antoniostano/samantha-voice/internal/speech"
	"github.com/antoniostano/samantha-voice/internal/vad"
)

type voiceSetup struct {
	transcriber speech.Transcriber
	synthesizer speech.Synthesizer
	listening   vad.Classifier
	interrupt   vad.Classifier
	degraded    bool
	detail      string
}

func resolveVoice(cfg config.Config, metrics *observability.Metrics, latency *observability.LatencyWindow) voiceSetup {
	whisper := speech.NewWhisperClient(whisperConfig(cfg))
	kokoro := speech.NewKokoroClient(speech.KokoroConfig{
		BaseURL: cfg.KokoroURL,
		Timeout: cfg.SynthesizeTimeout,
	})

	listening, listeningDegraded := vad.New(vad.Listening, cfg.VADListeningMode, cfg.VADEnabled)
	interrupt, interruptDegraded := vad.New(vad.Interrupt, cfg.VADInterruptMode, cfg.VADEnabled)
	degraded := listeningDegraded || interruptDegraded
	if degraded {
		log.Warn().
			Str("listening", listening.Name()).
			Str("interrupt", interrupt.Name()).
			Msg("voice activity detection degraded")
	}

	return voiceSetup{
		transcriber: speech.Gated{
			Next: whisper,
			Gate: audio.NewEnergyGate(cfg.MinAudioEnergy),
			Observe: func(d time.Duration) {
				metrics.ObserveTranscribeLatency(d)
				latency.Observe(observability.StageTranscribe, d)
			},
		},
		synthesizer: kokoro,
		listening:   listening,
		interrupt:   interrupt,
		degraded:    degraded,
		detail:      fmt.Sprintf("whisper %s + kokoro %s (%s), vad %s", cfg.WhisperURL, cfg.KokoroURL, cfg.Voice, listening.Name()),
	}
}

// whisperConfig leaves Language empty unless configured so the server detects it.
func whisperConfig(cfg config.Config) speech.WhisperConfig {
	return speech.WhisperConfig{
		BaseURL:  cfg.WhisperURL,
		Language: cfg.WhisperLanguage,
		Timeout:  cfg.TranscribeTimeout,
	}
}
