// Package playback speaks assistant replies through the output device and
// stops the moment an interrupt is requested.
package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/antoniostano/samantha-voice/internal/audio"
	"github.com/antoniostano/samantha-voice/internal/convlog"
	"github.com/antoniostano/samantha-voice/internal/speech"
)

const (
	OutputSampleRate = 24000
	BlockSize        = 1024

	interruptPoll = 20 * time.Millisecond
)

// Outcome reports how a playback ended.
type Outcome int

const (
	Completed Outcome = iota
	Interrupted
)

func (o Outcome) String() string {
	if o == Interrupted {
		return "interrupted"
	}
	return "completed"
}

// Speaker plays one utterance. interrupt is polled while audio is playing.
type Speaker interface {
	Play(ctx context.Context, text string, interrupt *atomic.Bool) (Outcome, error)
}

// Options configures a Player.
type Options struct {
	Voice string
	Log   convlog.Store
	// ObserveFirstAudio receives the delay between the request and the first written block.
	ObserveFirstAudio func(time.Duration)
	// FilePlayer plays a WAV file when the output device cannot be opened.
	FilePlayer FilePlayer
}

// Player streams synthesized PCM into an audio sink.
type Player struct {
	synth speech.Synthesizer
	sink  audio.Sink
	opts  Options
}

func NewPlayer(synth speech.Synthesizer, sink audio.Sink, opts Options) *Player {
	if opts.FilePlayer == nil {
		opts.FilePlayer = SystemFilePlayer{}
	}
	return &Player{synth: synth, sink: sink, opts: opts}
}

func (p *Player) Play(ctx context.Context, text string, interrupt *atomic.Bool) (Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Completed, nil
	}
	if interrupt == nil {
		interrupt = new(atomic.Bool)
	}
	started := time.Now()

	out, err := p.sink.Open(OutputSampleRate, BlockSize)
	if err != nil {
		if !errors.Is(err, audio.ErrDeviceUnavailable) {
			return Completed, err
		}
		log.Warn().Err(err).Msg("output device unavailable, using file playback")
		return p.playFile(ctx, text, interrupt)
	}
	defer out.Close()

	stream, err := p.synth.Synthesize(ctx, text, p.opts.Voice, speech.FormatPCM)
	if err != nil {
		return Completed, err
	}
	defer stream.Close()

	outcome, err := p.pump(stream, out, interrupt, started)
	if err != nil {
		_ = out.Abort()
		return outcome, err
	}
	if outcome == Interrupted {
		_ = out.Abort()
		return Interrupted, nil
	}
	if err := out.Drain(); err != nil {
		return Completed, fmt.Errorf("drain output: %w", err)
	}
	if interrupt.Load() {
		return Interrupted, nil
	}
	p.record(ctx, text)
	return Completed, nil
}

func (p *Player) pump(stream io.Reader, out audio.OutputStream, interrupt *atomic.Bool, started time.Time) (Outcome, error) {
	buf := make([]byte, BlockSize*2)
	first := true
	var carry []byte
	for {
		if interrupt.Load() {
			return Interrupted, nil
		}
		n, readErr := stream.Read(buf)
		if n > 0 {
			chunk := append(carry, buf[:n]...)
			even := len(chunk) &^ 1
			if even > 0 {
				if err := out.Write(audio.BytesToPCM16(chunk[:even])); err != nil {
					return Completed, fmt.Errorf("write output: %w", err)
				}
				if first {
					first = false
					if p.opts.ObserveFirstAudio != nil {
						p.opts.ObserveFirstAudio(time.Since(started))
					}
				}
			}
			carry = append(carry[:0:0], chunk[even:]...)
		}
		if errors.Is(readErr, io.EOF) {
			return Completed, nil
		}
		if readErr != nil {
			return Completed, fmt.Errorf("read synthesis stream: %w", readErr)
		}
	}
}

func (p *Player) playFile(ctx context.Context, text string, interrupt *atomic.Bool) (Outcome, error) {
	stream, err := p.synth.Synthesize(ctx, text, p.opts.Voice, speech.FormatWAV)
	if err != nil {
		return Completed, err
	}
	f, err := os.CreateTemp("", "samantha-*.wav")
	if err != nil {
		_ = stream.Close()
		return Completed, fmt.Errorf("create temp wav: %w", err)
	}
	defer os.Remove(f.Name())
	_, copyErr := io.Copy(f, stream)
	_ = stream.Close()
	if err := f.Close(); err != nil && copyErr == nil {
		copyErr = err
	}
	if copyErr != nil {
		return Completed, fmt.Errorf("write temp wav: %w", copyErr)
	}

	playCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.opts.FilePlayer.PlayFile(playCtx, f.Name()) }()

	ticker := time.NewTicker(interruptPoll)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			if err != nil {
				return Completed, err
			}
			if interrupt.Load() {
				return Interrupted, nil
			}
			p.record(ctx, text)
			return Completed, nil
		case <-ticker.C:
			if interrupt.Load() {
				cancel()
				<-done
				return Interrupted, nil
			}
		}
	}
}

func (p *Player) record(ctx context.Context, text string) {
	if p.opts.Log == nil {
		return
	}
	if err := p.opts.Log.Append(ctx, convlog.Entry{Kind: convlog.KindTTS, Text: text}); err != nil {
		log.Warn().Err(err).Msg("conversation log append failed")
	}
}

// FilePlayer plays an audio file to completion or until ctx is canceled.
type FilePlayer interface {
	PlayFile(ctx context.Context, path string) error
}

var ErrNoFilePlayer = errors.New("no audio player found")

// SystemFilePlayer shells out to the first available command-line player.
type SystemFilePlayer struct{}

func (SystemFilePlayer) PlayFile(ctx context.Context, path string) error {
	name, args, err := filePlayerCommand(runtime.GOOS, exec.LookPath)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, name, append(args, path)...)
	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func filePlayerCommand(goos string, lookPath func(string) (string, error)) (string, []string, error) {
	candidates := [][]string{{"paplay"}, {"pw-play"}, {"aplay", "-q"}, {"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"}}
	if goos == "darwin" {
		candidates = append([][]string{{"afplay"}}, candidates...)
	}
	for _, c := range candidates {
		if path, err := lookPath(c[0]); err == nil {
			return path, c[1:], nil
		}
	}
	return "", nil, ErrNoFilePlayer
}
