// Package inject delivers recognized commands into the assistant's input box
// by writing the clipboard and simulating paste and enter.
package inject

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog/log"
)

var ErrNoTarget = errors.New("no assistant target found")

// Mode selects which targets injection may use.
type Mode string

const (
	ModeAuto      Mode = "auto"
	ModeExtension Mode = "extension"
	ModeCLI       Mode = "cli"
	ModeTerminal  Mode = "terminal"
	ModeDesktop   Mode = "desktop"
)

func ParseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeExtension, ModeCLI, ModeTerminal, ModeDesktop:
		return m, nil
	default:
		return "", fmt.Errorf("unknown injection mode %q", raw)
	}
}

// Injector delivers text to the assistant.
type Injector interface {
	Inject(ctx context.Context, text string) error
}

// Options configures a Desktop injector.
type Options struct {
	Mode           Mode
	TargetApp      string
	RestoreFocus   bool
	AIProcessRegex string
	WindowTitles   []string
}

// Desktop injects through the OS clipboard and keystroke automation tools.
type Desktop struct {
	mode         Mode
	targetApp    string
	restoreFocus bool
	aiPattern    *regexp.Regexp
	windowTitles []string

	goos  string
	run   Runner
	copy  func(string) error
	pause func(time.Duration)
}

func NewDesktop(opts Options) *Desktop {
	d := newDesktop(opts, runtime.GOOS, execRunner{})
	d.copy = clipboard.WriteAll
	d.pause = time.Sleep
	return d
}

func newDesktop(opts Options, goos string, run Runner) *Desktop {
	mode := opts.Mode
	if mode == "" {
		mode = ModeAuto
	}
	titles := opts.WindowTitles
	if len(titles) == 0 {
		titles = DefaultAIWindowTitles
	}
	lowered := make([]string, len(titles))
	for i, t := range titles {
		lowered[i] = strings.ToLower(t)
	}
	return &Desktop{
		mode:         mode,
		targetApp:    strings.TrimSpace(opts.TargetApp),
		restoreFocus: opts.RestoreFocus,
		aiPattern:    compilePattern(opts.AIProcessRegex),
		windowTitles: lowered,
		goos:         goos,
		run:          run,
		copy:         func(string) error { return nil },
		pause:        func(time.Duration) {},
	}
}

func (d *Desktop) Inject(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var previous string
	if d.restoreFocus {
		previous = d.frontmostApp(ctx)
	}

	target, err := d.deliver(ctx, text)
	if err != nil {
		return err
	}
	if previous != "" && previous != target {
		d.pause(300 * time.Millisecond)
		if d.activateApp(ctx, previous) {
			log.Debug().Str("app", previous).Msg("restored focus")
		}
	}
	return nil
}

func (d *Desktop) deliver(ctx context.Context, text string) (string, error) {
	switch d.mode {
	case ModeExtension:
		return d.intoIDE(ctx, text)
	case ModeCLI, ModeTerminal:
		return d.intoTerminal(ctx, text)
	case ModeDesktop:
		return d.intoDesktopApp(ctx, text)
	}
	target, err := d.intoIDE(ctx, text)
	if err == nil {
		return target, nil
	}
	log.Debug().Err(err).Msg("ide injection unavailable, trying terminal")
	return d.intoTerminal(ctx, text)
}

func (d *Desktop) intoIDE(ctx context.Context, text string) (string, error) {
	ide := d.runningIDE(ctx)
	if ide == "" {
		return "", fmt.Errorf("%w: no supported IDE open", ErrNoTarget)
	}
	if !d.aiRunning(ctx) {
		return "", fmt.Errorf("%w: assistant process not running", ErrNoTarget)
	}
	log.Info().Str("target", ide).Str("text", preview(text)).Msg("injecting into ide")
	if err := d.copy(text); err != nil {
		return "", fmt.Errorf("copy to clipboard: %w", err)
	}
	if err := d.focusAssistantInput(ctx, ide); err != nil {
		return "", fmt.Errorf("focus %s assistant input: %w", ide, err)
	}
	d.pause(200 * time.Millisecond)
	if err := d.pasteAndEnter(ctx); err != nil {
		return "", fmt.Errorf("paste into %s: %w", ide, err)
	}
	return ide, nil
}

func (d *Desktop) intoTerminal(ctx context.Context, text string) (string, error) {
	if !d.aiInTerminal(ctx) {
		return "", fmt.Errorf("%w: assistant not running in a terminal", ErrNoTarget)
	}
	log.Info().Str("target", "terminal").Str("text", preview(text)).Msg("injecting into terminal")
	if err := d.copy(text); err != nil {
		return "", fmt.Errorf("copy to clipboard: %w", err)
	}
	if !d.activateAITerminal(ctx) {
		return "", fmt.Errorf("%w: no terminal window titled for an assistant", ErrNoTarget)
	}
	d.pause(300 * time.Millisecond)
	if err := d.pasteAndEnter(ctx); err != nil {
		return "", fmt.Errorf("paste into terminal: %w", err)
	}
	return "Terminal", nil
}

func (d *Desktop) intoDesktopApp(ctx context.Context, text string) (string, error) {
	app := d.runningDesktopApp(ctx)
	if app == "" {
		return "", fmt.Errorf("%w: desktop assistant not open", ErrNoTarget)
	}
	log.Info().Str("target", app).Str("text", preview(text)).Msg("injecting into desktop app")
	if err := d.copy(text); err != nil {
		return "", fmt.Errorf("copy to clipboard: %w", err)
	}
	if !d.activateApp(ctx, app) {
		return "", fmt.Errorf("activate %s: %w", app, ErrNoTarget)
	}
	d.pause(300 * time.Millisecond)
	if err := d.pasteAndEnter(ctx); err != nil {
		return "", fmt.Errorf("paste into %s: %w", app, err)
	}
	return app, nil
}

// focusAssistantInput raises the IDE and presses Cmd/Ctrl+Escape, which
// toggles focus onto the assistant extension's prompt box.
func (d *Desktop) focusAssistantInput(ctx context.Context, ide string) error {
	d.activateApp(ctx, ide)
	d.pause(300 * time.Millisecond)
	var err error
	switch {
	case d.goos == "darwin":
		_, err = d.run.Run(ctx, "osascript", "-e", `tell application "System Events" to key code 53 using command down`)
	case d.goos == "linux" && d.run.Has("xdotool"):
		_, err = d.run.Run(ctx, "xdotool", "key", "ctrl+Escape")
	case d.goos == "linux" && d.run.Has("ydotool"):
		_, err = d.run.Run(ctx, "ydotool", "key", "29:1", "1:1", "1:0", "29:0")
	default:
		return errors.New("no keystroke tool found")
	}
	d.pause(200 * time.Millisecond)
	return err
}

func (d *Desktop) pasteAndEnter(ctx context.Context) error {
	switch {
	case d.goos == "darwin":
		_, err := d.run.Run(ctx, "osascript", "-e", `tell application "System Events"
	keystroke "v" using command down
	delay 0.2
	key code 36
end tell`)
		return err
	case d.goos == "linux" && d.run.Has("xdotool"):
		if _, err := d.run.Run(ctx, "xdotool", "key", "ctrl+v"); err != nil {
			return err
		}
		d.pause(200 * time.Millisecond)
		_, err := d.run.Run(ctx, "xdotool", "key", "Return")
		return err
	case d.goos == "linux" && d.run.Has("ydotool"):
		if _, err := d.run.Run(ctx, "ydotool", "key", "29:1", "47:1", "47:0", "29:0"); err != nil {
			return err
		}
		d.pause(200 * time.Millisecond)
		_, err := d.run.Run(ctx, "ydotool", "key", "28:1", "28:0")
		return err
	}
	return errors.New("no keystroke tool found")
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= 50 {
		return s
	}
	return string(r[:50])
}
