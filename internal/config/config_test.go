package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsUseSamanthaProfile(t *testing.T) {
	setCoreEnvEmpty(t)
	home := t.TempDir()

	cfg, err := LoadFrom(home)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Profile != "samantha" || cfg.Voice != "af_aoede" || cfg.UserName != "Theodore" {
		t.Fatalf("profile = %q voice = %q user = %q", cfg.Profile, cfg.Voice, cfg.UserName)
	}
	if cfg.MinAudioEnergy != 1500 {
		t.Fatalf("MinAudioEnergy = %d, want 1500", cfg.MinAudioEnergy)
	}
	if cfg.SessionTimeout != 30*time.Minute || cfg.InterruptGrace != 2*time.Second {
		t.Fatalf("timeouts = %v / %v", cfg.SessionTimeout, cfg.InterruptGrace)
	}
	if cfg.InputDevice != -1 || cfg.OutputDevice != -1 {
		t.Fatalf("devices = %d/%d, want system default", cfg.InputDevice, cfg.OutputDevice)
	}
	if got := strings.Join(cfg.InterruptWords, ","); got != "stop,quiet,enough,halt" {
		t.Fatalf("InterruptWords = %q", got)
	}
	if cfg.WakeWords[0] != "samantha" {
		t.Fatalf("WakeWords[0] = %q", cfg.WakeWords[0])
	}
	if cfg.ActiveFile() != filepath.Join(home, "samantha_active") {
		t.Fatalf("ActiveFile() = %q", cfg.ActiveFile())
	}
	if cfg.WhisperLanguage != "" {
		t.Fatalf("WhisperLanguage = %q, want empty for auto-detect", cfg.WhisperLanguage)
	}
	if cfg.AssistantName() != "Samantha" {
		t.Fatalf("AssistantName() = %q", cfg.AssistantName())
	}
}

func TestLoadProfileFromConfigFile(t *testing.T) {
	setCoreEnvEmpty(t)
	home := t.TempDir()
	writeConfig(t, home, `{"profile": "jarvis", "min_audio_energy": 3000, "injection_mode": "terminal"}`)

	cfg, err := LoadFrom(home)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Voice != "bm_lewis" || cfg.UserName != "Tony" {
		t.Fatalf("voice = %q user = %q", cfg.Voice, cfg.UserName)
	}
	if cfg.MinAudioEnergy != 3000 || cfg.InjectionMode != "terminal" {
		t.Fatalf("energy = %d mode = %q", cfg.MinAudioEnergy, cfg.InjectionMode)
	}
	if !containsString(cfg.DeactivationPhrases, "standby jarvis") {
		t.Fatalf("DeactivationPhrases = %v", cfg.DeactivationPhrases)
	}
	if cfg.AssistantName() != "Jarvis" {
		t.Fatalf("AssistantName() = %q", cfg.AssistantName())
	}
}

func TestExplicitListsOverrideProfile(t *testing.T) {
	setCoreEnvEmpty(t)
	home := t.TempDir()
	writeConfig(t, home, `{"wake_words": ["Computer", "hey computer"]}`)
	t.Setenv("SAMANTHA_STOP_PHRASES", "Over, done now ")

	cfg, err := LoadFrom(home)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if got := strings.Join(cfg.WakeWords, "|"); got != "computer|hey computer" {
		t.Fatalf("WakeWords = %q", got)
	}
	if got := strings.Join(cfg.StopPhrases, "|"); got != "over|done now" {
		t.Fatalf("StopPhrases = %q", got)
	}
	if !containsString(cfg.DeactivationPhrases, "goodbye samantha") {
		t.Fatalf("DeactivationPhrases should fall back to the profile: %v", cfg.DeactivationPhrases)
	}
}

func TestEnvOverridesConfigFile(t *testing.T) {
	setCoreEnvEmpty(t)
	home := t.TempDir()
	writeConfig(t, home, `{"voice": "af_bella", "session_timeout": "10m"}`)
	t.Setenv("SAMANTHA_VOICE", "af_sky")
	t.Setenv("SAMANTHA_WHISPER_LANGUAGE", " DE ")

	cfg, err := LoadFrom(home)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Voice != "af_sky" {
		t.Fatalf("Voice = %q, want env value", cfg.Voice)
	}
	if cfg.WhisperLanguage != "de" {
		t.Fatalf("WhisperLanguage = %q, want de", cfg.WhisperLanguage)
	}
	if cfg.SessionTimeout != 10*time.Minute {
		t.Fatalf("SessionTimeout = %v, want 10m", cfg.SessionTimeout)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown profile", map[string]string{"SAMANTHA_PROFILE": "hal"}, "unknown profile"},
		{"injection mode", map[string]string{"SAMANTHA_INJECTION_MODE": "telepathy"}, "injection_mode"},
		{"vad mode", map[string]string{"SAMANTHA_VAD_LISTENING_MODE": "4"}, "vad_listening_mode"},
		{"duration", map[string]string{"SAMANTHA_SILENCE_THRESHOLD": "0s"}, "silence_threshold"},
		{"energy", map[string]string{"SAMANTHA_MIN_AUDIO_ENERGY": "-1"}, "min_audio_energy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFrom(t.TempDir())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("LoadFrom() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestProfileNamesSorted(t *testing.T) {
	if got := strings.Join(ProfileNames(), ","); got != "alfred,jarvis,samantha" {
		t.Fatalf("ProfileNames() = %q", got)
	}
	p, _ := LookupProfile("alfred")
	p.WakeWords[0] = "changed"
	again, _ := LookupProfile("alfred")
	if again.WakeWords[0] != "alfred" {
		t.Fatalf("LookupProfile returned shared slice")
	}
}

func writeConfig(t *testing.T, home, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(home, "config.json"), []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// setCoreEnvEmpty unsets every SAMANTHA_ variable for the duration of the test.
func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, envPrefix+"_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}
