package inject

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	tools     map[string]bool
	responses map[string]string
	calls     []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	cmd := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, cmd)
	if out, ok := f.responses[cmd]; ok {
		return out, nil
	}
	return "", errors.New("exit status 1")
}

func (f *fakeRunner) Has(name string) bool { return f.tools[name] }

func newTestDesktop(t *testing.T, opts Options, goos string, r *fakeRunner) (*Desktop, *[]string) {
	t.Helper()
	d := newDesktop(opts, goos, r)
	var copied []string
	d.copy = func(s string) error {
		copied = append(copied, s)
		return nil
	}
	d.pause = func(time.Duration) {}
	return d, &copied
}

func TestParseMode(t *testing.T) {
	for raw, want := range map[string]Mode{"": ModeAuto, "AUTO": ModeAuto, " cli ": ModeCLI, "desktop": ModeDesktop} {
		got, err := ParseMode(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("telepathy")
	assert.Error(t, err)
}

func TestLinuxAutoPrefersIDE(t *testing.T) {
	r := &fakeRunner{
		tools: map[string]bool{"xdotool": true},
		responses: map[string]string{
			"xdotool search --name code":                "4411",
			"ps -eo comm=":                              "bash\nclaude",
			"xdotool search --name code windowactivate": "",
			"xdotool key ctrl+Escape":                   "",
			"xdotool key ctrl+v":                        "",
			"xdotool key Return":                        "",
		},
	}
	d, copied := newTestDesktop(t, Options{}, "linux", r)

	require.NoError(t, d.Inject(context.Background(), "[🎙️ Voice - samantha_speak] run the tests"))
	assert.Equal(t, []string{"[🎙️ Voice - samantha_speak] run the tests"}, *copied)
	assert.Contains(t, r.calls, "xdotool key ctrl+Escape")
	assert.Equal(t, "xdotool key Return", r.calls[len(r.calls)-1])
}

func TestLinuxAutoFallsBackToTerminal(t *testing.T) {
	r := &fakeRunner{
		tools: map[string]bool{"xdotool": true},
		responses: map[string]string{
			"ps -eo tty=,comm=":            "?  systemd\npts/3 claude",
			"xdotool search --name claude": "9001\n9002",
			"xdotool windowactivate 9001":  "",
			"xdotool key ctrl+v":           "",
			"xdotool key Return":           "",
		},
	}
	d, copied := newTestDesktop(t, Options{}, "linux", r)

	require.NoError(t, d.Inject(context.Background(), "hello"))
	assert.Len(t, *copied, 1)
	assert.Contains(t, r.calls, "xdotool windowactivate 9001")
	assert.NotContains(t, r.calls, "xdotool key ctrl+Escape")
}

func TestInjectWithoutTargetFails(t *testing.T) {
	r := &fakeRunner{tools: map[string]bool{"xdotool": true}, responses: map[string]string{
		"ps -eo tty=,comm=": "?  claude",
	}}
	d, copied := newTestDesktop(t, Options{}, "linux", r)

	err := d.Inject(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNoTarget)
	assert.Empty(t, *copied)
}

func TestTerminalModeSkipsIDE(t *testing.T) {
	r := &fakeRunner{tools: map[string]bool{"xdotool": true}, responses: map[string]string{
		"xdotool search --name code": "1",
	}}
	d, _ := newTestDesktop(t, Options{Mode: ModeTerminal}, "linux", r)

	err := d.Inject(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNoTarget)
	for _, c := range r.calls {
		assert.NotEqual(t, "xdotool search --name code", c)
	}
}

func TestRestoreFocus(t *testing.T) {
	r := &fakeRunner{
		tools: map[string]bool{"xdotool": true},
		responses: map[string]string{
			"xdotool getactivewindow getwindowname":        "Firefox",
			"ps -eo tty=,comm=":                            "pts/1 aider",
			"xdotool search --name aider":                  "5",
			"xdotool windowactivate 5":                     "",
			"xdotool key ctrl+v":                           "",
			"xdotool key Return":                           "",
			"xdotool search --name Firefox windowactivate": "",
		},
	}
	d, _ := newTestDesktop(t, Options{Mode: ModeTerminal, RestoreFocus: true}, "linux", r)

	require.NoError(t, d.Inject(context.Background(), "hello"))
	assert.Equal(t, "xdotool search --name Firefox windowactivate", r.calls[len(r.calls)-1])
}

func TestDetectTargetsDarwin(t *testing.T) {
	count := func(app string) string {
		return `osascript -e tell application "System Events" to tell process "` + app + `" to get (count of windows)`
	}
	r := &fakeRunner{responses: map[string]string{
		count("Cursor"):     "2",
		count("iTerm2"):     "1",
		count("Claude"):     "0",
		"ps -eo tty=,comm=": "ttys001 /usr/local/bin/claude",
	}}
	d, _ := newTestDesktop(t, Options{}, "darwin", r)

	got := d.DetectTargets(context.Background())
	assert.Equal(t, Targets{IDE: "Cursor", Terminal: "iTerm2"}, got)
	assert.Equal(t, "IDE: Cursor, Terminal: iTerm2", got.String())
	assert.True(t, Targets{}.Empty())
}

func TestDarwinIDEFallsBackToProcessTable(t *testing.T) {
	r := &fakeRunner{responses: map[string]string{
		"ps -eo comm=": "/Applications/GoLand.app/Contents/MacOS/goland\nlaunchd",
	}}
	d, _ := newTestDesktop(t, Options{}, "darwin", r)
	assert.Equal(t, "GoLand", d.runningIDE(context.Background()))
}

func TestPreviewTruncatesRunes(t *testing.T) {
	long := strings.Repeat("é", 60)
	assert.Equal(t, 50, len([]rune(preview(long))))
	assert.Equal(t, "short", preview("short"))
}
