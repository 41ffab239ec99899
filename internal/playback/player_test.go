package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/samantha-voice/internal/audio"
	"github.com/antoniostano/samantha-voice/internal/convlog"
	"github.com/antoniostano/samantha-voice/internal/speech"
)

type fakeSynth struct {
	pcm     []byte
	formats []speech.Format
	reader  func([]byte) io.Reader
}

func (f *fakeSynth) Synthesize(_ context.Context, _, _ string, format speech.Format) (io.ReadCloser, error) {
	f.formats = append(f.formats, format)
	var r io.Reader = bytes.NewReader(f.pcm)
	if f.reader != nil {
		r = f.reader(f.pcm)
	}
	return io.NopCloser(r), nil
}

type fakeOutput struct {
	written []int16
	drained bool
	aborted bool
	closed  bool
}

func (o *fakeOutput) Write(s []int16) error {
	o.written = append(o.written, s...)
	return nil
}

func (o *fakeOutput) Drain() error {
	o.drained = true
	return nil
}

func (o *fakeOutput) Abort() error {
	o.aborted = true
	return nil
}

func (o *fakeOutput) Close() error {
	o.closed = true
	return nil
}

type fakeSink struct {
	out *fakeOutput
	err error
}

func (s *fakeSink) Open(int, int) (audio.OutputStream, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.out, nil
}

// oneByteReader forces odd-sized reads so sample reassembly is exercised.
type oneByteReader struct{ r io.Reader }

func (o oneByteReader) Read(p []byte) (int, error) { return o.r.Read(p[:1]) }

func TestPlayCompletesAndLogs(t *testing.T) {
	samples := []int16{1, -2, 300, -400, 5}
	synth := &fakeSynth{pcm: audio.PCM16Bytes(samples), reader: func(b []byte) io.Reader {
		return oneByteReader{bytes.NewReader(b)}
	}}
	out := &fakeOutput{}
	store := convlog.NewInMemoryStore()
	var firstAudio time.Duration = -1
	p := NewPlayer(synth, &fakeSink{out: out}, Options{
		Voice:             "af_aoede",
		Log:               store,
		ObserveFirstAudio: func(d time.Duration) { firstAudio = d },
	})

	outcome, err := p.Play(context.Background(), "  hello there ", nil)
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
	assert.Equal(t, samples, out.written)
	assert.True(t, out.drained)
	assert.True(t, out.closed)
	assert.False(t, out.aborted)
	assert.GreaterOrEqual(t, firstAudio, time.Duration(0))

	entries, _ := store.Recent(context.Background(), 10)
	require.Len(t, entries, 1)
	assert.Equal(t, convlog.KindTTS, entries[0].Kind)
	assert.Equal(t, "hello there", entries[0].Text)
}

type interruptingReader struct {
	r    io.Reader
	flag *atomic.Bool
}

func (i interruptingReader) Read(p []byte) (int, error) {
	n, err := i.r.Read(p)
	i.flag.Store(true)
	return n, err
}

func TestPlayStopsOnInterrupt(t *testing.T) {
	var flag atomic.Bool
	long := make([]int16, BlockSize*10)
	synth := &fakeSynth{pcm: audio.PCM16Bytes(long), reader: func(b []byte) io.Reader {
		return interruptingReader{r: bytes.NewReader(b), flag: &flag}
	}}
	out := &fakeOutput{}
	store := convlog.NewInMemoryStore()
	p := NewPlayer(synth, &fakeSink{out: out}, Options{Log: store})

	outcome, err := p.Play(context.Background(), "a long answer", &flag)
	require.NoError(t, err)
	assert.Equal(t, Interrupted, outcome)
	assert.True(t, out.aborted)
	assert.False(t, out.drained)
	assert.Less(t, len(out.written), len(long))

	entries, _ := store.Recent(context.Background(), 10)
	assert.Empty(t, entries)
}

func TestPlayEmptyTextIsNoop(t *testing.T) {
	synth := &fakeSynth{}
	p := NewPlayer(synth, &fakeSink{out: &fakeOutput{}}, Options{})
	outcome, err := p.Play(context.Background(), "   ", nil)
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
	assert.Empty(t, synth.formats)
}

type fakeFilePlayer struct {
	path  string
	size  int64
	block bool
}

func (f *fakeFilePlayer) PlayFile(ctx context.Context, path string) error {
	f.path = path
	if st, err := os.Stat(path); err == nil {
		f.size = st.Size()
	}
	if f.block {
		<-ctx.Done()
	}
	return nil
}

func TestPlayFallsBackToFile(t *testing.T) {
	synth := &fakeSynth{pcm: []byte("RIFFfakewav")}
	fp := &fakeFilePlayer{}
	store := convlog.NewInMemoryStore()
	sinkErr := fmt.Errorf("%w: no speakers", audio.ErrDeviceUnavailable)
	p := NewPlayer(synth, &fakeSink{err: sinkErr}, Options{Log: store, FilePlayer: fp})

	outcome, err := p.Play(context.Background(), "fallback", nil)
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
	assert.Equal(t, []speech.Format{speech.FormatWAV}, synth.formats)
	assert.EqualValues(t, len("RIFFfakewav"), fp.size)
	_, statErr := os.Stat(fp.path)
	assert.True(t, os.IsNotExist(statErr), "temp file should be removed")

	entries, _ := store.Recent(context.Background(), 10)
	assert.Len(t, entries, 1)
}

func TestPlayFileInterrupted(t *testing.T) {
	var flag atomic.Bool
	synth := &fakeSynth{pcm: []byte("RIFF")}
	fp := &fakeFilePlayer{block: true}
	p := NewPlayer(synth, &fakeSink{err: audio.ErrDeviceUnavailable}, Options{FilePlayer: fp})

	go func() {
		time.Sleep(50 * time.Millisecond)
		flag.Store(true)
	}()
	outcome, err := p.Play(context.Background(), "stop me", &flag)
	require.NoError(t, err)
	assert.Equal(t, Interrupted, outcome)
}

func TestPlayOtherSinkErrorsAreReturned(t *testing.T) {
	boom := errors.New("boom")
	p := NewPlayer(&fakeSynth{}, &fakeSink{err: boom}, Options{})
	_, err := p.Play(context.Background(), "x", nil)
	assert.ErrorIs(t, err, boom)
}

func TestFilePlayerCommandPreference(t *testing.T) {
	has := func(names ...string) func(string) (string, error) {
		return func(n string) (string, error) {
			for _, want := range names {
				if n == want {
					return "/usr/bin/" + n, nil
				}
			}
			return "", exec.ErrNotFound
		}
	}
	name, _, err := filePlayerCommand("darwin", has("afplay", "paplay"))
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/afplay", name)

	name, args, err := filePlayerCommand("linux", has("aplay", "ffplay"))
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/aplay", name)
	assert.Equal(t, []string{"-q"}, args)

	_, _, err = filePlayerCommand("linux", has())
	assert.ErrorIs(t, err, ErrNoFilePlayer)
}
