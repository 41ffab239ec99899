package speech

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// DefaultSynthesizeTimeout bounds one synthesis request including streaming.
const DefaultSynthesizeTimeout = 60 * time.Second

// Format is the audio encoding requested from the synthesis service.
type Format string

const (
	// FormatPCM is headerless 16-bit mono PCM at 24 kHz, streamed.
	FormatPCM Format = "pcm"
	// FormatWAV is a complete WAV file.
	FormatWAV Format = "wav"
)

// Synthesizer turns text into an audio stream. Callers must close the stream.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string, format Format) (io.ReadCloser, error)
}

// KokoroConfig configures an OpenAI-compatible speech endpoint.
type KokoroConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// KokoroClient requests speech from a Kokoro server speaking the OpenAI audio API.
type KokoroClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewKokoroClient(cfg KokoroConfig) *KokoroClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = BaseURL(cfg.BaseURL, "/audio/speech")
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "kokoro"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultSynthesizeTimeout
	}
	return &KokoroClient{client: openai.NewClientWithConfig(oc), model: model, timeout: timeout}
}

func (k *KokoroClient) Synthesize(ctx context.Context, text, voice string, format Format) (io.ReadCloser, error) {
	responseFormat := openai.SpeechResponseFormatPcm
	if format == FormatWAV {
		responseFormat = openai.SpeechResponseFormatWav
	}

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	resp, err := k.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(k.model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: responseFormat,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("kokoro synthesis: %w", err)
	}
	return &cancelOnClose{ReadCloser: resp.ReadCloser, cancel: cancel}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
