package playback

import (
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog/log"
)

// Sound names a short feedback cue.
type Sound string

const (
	SoundActivate   Sound = "activate"
	SoundDeactivate Sound = "deactivate"
	SoundSkip       Sound = "skip"
	SoundStop       Sound = "stop"
	SoundTimeout    Sound = "timeout"
)

// Chimes plays cues without blocking the caller.
type Chimes interface {
	Play(s Sound)
}

// Silent discards every cue.
type Silent struct{}

func (Silent) Play(Sound) {}

var macSounds = map[Sound]string{
	SoundActivate:   "Funk",
	SoundDeactivate: "Bottle",
	SoundSkip:       "Blow",
	SoundStop:       "Pop",
	SoundTimeout:    "Submarine",
}

var freedesktopSounds = map[Sound]string{
	SoundActivate:   "service-login",
	SoundDeactivate: "service-logout",
	SoundSkip:       "message-new-instant",
	SoundStop:       "dialog-warning",
	SoundTimeout:    "complete",
}

// SystemChimes uses the platform's stock sounds.
type SystemChimes struct {
	goos     string
	lookPath func(string) (string, error)
	start    func(*exec.Cmd) error
}

func NewSystemChimes() *SystemChimes {
	return &SystemChimes{goos: runtime.GOOS, lookPath: exec.LookPath, start: startDetached}
}

func (c *SystemChimes) Play(s Sound) {
	name, args, ok := c.command(s)
	if !ok {
		return
	}
	if err := c.start(exec.Command(name, args...)); err != nil {
		log.Debug().Err(err).Str("sound", string(s)).Msg("chime failed")
	}
}

func (c *SystemChimes) command(s Sound) (string, []string, bool) {
	switch c.goos {
	case "darwin":
		base, ok := macSounds[s]
		if !ok {
			return "", nil, false
		}
		return "afplay", []string{filepath.Join("/System/Library/Sounds", base+".aiff")}, true
	case "linux":
		base, ok := freedesktopSounds[s]
		if !ok {
			return "", nil, false
		}
		file := filepath.Join("/usr/share/sounds/freedesktop/stereo", base+".oga")
		for _, player := range []string{"paplay", "pw-play", "aplay"} {
			if path, err := c.lookPath(player); err == nil {
				return path, []string{file}, true
			}
		}
	}
	return "", nil, false
}

func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
