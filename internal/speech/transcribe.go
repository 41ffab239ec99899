package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/antoniostano/samantha-voice/internal/audio"
)

// ErrBelowEnergy means the utterance was too quiet to send for transcription.
var ErrBelowEnergy = errors.New("utterance below energy threshold")

// DefaultTranscribeTimeout bounds one transcription request.
const DefaultTranscribeTimeout = 10 * time.Second

// Transcriber turns an utterance into text. Empty text means nothing was heard.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error)
}

// WhisperConfig configures an OpenAI-compatible transcription endpoint.
type WhisperConfig struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
}

// WhisperClient posts WAV utterances to a whisper server speaking the OpenAI audio API.
type WhisperClient struct {
	client   *openai.Client
	model    string
	language string
	timeout  time.Duration
}

func NewWhisperClient(cfg WhisperConfig) *WhisperClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = BaseURL(cfg.BaseURL, "/audio/transcriptions")
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = openai.Whisper1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTranscribeTimeout
	}
	return &WhisperClient{
		client:   openai.NewClientWithConfig(oc),
		model:    model,
		language: cfg.Language,
		timeout:  timeout,
	}
}

func (w *WhisperClient) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	wav, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wav),
		Format:   openai.AudioResponseFormatJSON,
		Language: w.language,
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Gated runs the energy gate and gain normalization in front of a Transcriber.
type Gated struct {
	Next    Transcriber
	Gate    audio.EnergyGate
	Observe func(time.Duration)
}

func (g Gated) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	peak, ok := g.Gate.Admit(samples)
	if !ok {
		log.Debug().Int("peak", peak).Int("threshold", g.Gate.MinPeak).Msg("skipping transcription: low energy")
		return "", ErrBelowEnergy
	}
	start := time.Now()
	text, err := g.Next.Transcribe(ctx, audio.Normalize(samples), sampleRate)
	if g.Observe != nil {
		g.Observe(time.Since(start))
	}
	if err != nil {
		return "", err
	}
	log.Debug().Int("peak", peak).Str("text", truncate(text, 50)).Msg("transcribed")
	return text, nil
}

// BaseURL accepts either an API root or a full endpoint URL and returns the root.
func BaseURL(raw, endpoint string) string {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	return strings.TrimSuffix(u, endpoint)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
