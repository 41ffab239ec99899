package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "SAMANTHA"

var injectionModes = []string{"auto", "extension", "cli", "terminal", "desktop"}

// Config contains all runtime settings for the voice listener.
type Config struct {
	Home string

	Profile  string
	UserName string
	Voice    string
	Theodore bool

	InputDevice    int
	OutputDevice   int
	MinAudioEnergy int

	WakeWords           []string
	DeactivationPhrases []string
	StopPhrases         []string
	InterruptWords      []string
	SkipWords           []string

	TargetApp        string
	InjectionMode    string
	RestoreFocus     bool
	AIProcessPattern string
	AIWindowTitles   []string

	WhisperURL        string
	WhisperHealthURL  string
	WhisperLanguage   string
	KokoroURL         string
	KokoroHealthURL   string
	AutostartServices bool

	BindAddr         string
	AllowAnyOrigin   bool
	MetricsNamespace string
	DatabaseURL      string
	LogLevel         string

	VADEnabled       bool
	VADListeningMode int
	VADInterruptMode int

	SilenceThreshold   time.Duration
	MinRecording       time.Duration
	InitialGrace       time.Duration
	PreRoll            time.Duration
	SessionTimeout     time.Duration
	InterruptMinSpeech time.Duration
	InterruptGrace     time.Duration
	StartTimeout       time.Duration
	TranscribeTimeout  time.Duration
	SynthesizeTimeout  time.Duration
	ShutdownTimeout    time.Duration
}

// DefaultHome is ~/.samantha unless SAMANTHA_HOME is set.
func DefaultHome() string {
	if h := strings.TrimSpace(os.Getenv(envPrefix + "_HOME")); h != "" {
		return h
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return ".samantha"
	}
	return filepath.Join(dir, ".samantha")
}

func (c Config) ConfigFile() string      { return filepath.Join(c.Home, "config.json") }
func (c Config) ActiveFile() string      { return filepath.Join(c.Home, "samantha_active") }
func (c Config) ConversationLog() string { return filepath.Join(c.Home, "conversation.log") }
func (c Config) LogFile() string         { return filepath.Join(c.Home, "samantha.log") }

// AssistantName is the display name used in the conversation log.
func (c Config) AssistantName() string {
	if c.Profile == "" {
		return "Samantha"
	}
	return strings.ToUpper(c.Profile[:1]) + c.Profile[1:]
}

// Load reads .env, the home config file and SAMANTHA_* variables.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return LoadFrom(DefaultHome())
}

// LoadFrom resolves configuration rooted at home. Environment variables take
// precedence over config.json, which takes precedence over profile defaults.
func LoadFrom(home string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	path := filepath.Join(home, "config.json")
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	cfg := Config{
		Home:                home,
		Profile:             strings.ToLower(strings.TrimSpace(v.GetString("profile"))),
		Voice:               strings.TrimSpace(v.GetString("voice")),
		Theodore:            v.GetBool("theodore"),
		InputDevice:         v.GetInt("input_device"),
		OutputDevice:        v.GetInt("output_device"),
		MinAudioEnergy:      v.GetInt("min_audio_energy"),
		WakeWords:           list(v, "wake_words"),
		DeactivationPhrases: list(v, "deactivation_words"),
		StopPhrases:         list(v, "stop_phrases"),
		InterruptWords:      list(v, "interrupt_words"),
		SkipWords:           list(v, "skip_words"),
		TargetApp:           strings.TrimSpace(v.GetString("target_app")),
		InjectionMode:       strings.ToLower(strings.TrimSpace(v.GetString("injection_mode"))),
		RestoreFocus:        v.GetBool("restore_focus"),
		AIProcessPattern:    strings.TrimSpace(v.GetString("ai_process_pattern")),
		AIWindowTitles:      list(v, "ai_window_titles"),
		WhisperURL:          v.GetString("whisper_url"),
		WhisperHealthURL:    v.GetString("whisper_health_url"),
		WhisperLanguage:     strings.ToLower(strings.TrimSpace(v.GetString("whisper_language"))),
		KokoroURL:           v.GetString("kokoro_url"),
		KokoroHealthURL:     v.GetString("kokoro_health_url"),
		AutostartServices:   v.GetBool("autostart_services"),
		BindAddr:            strings.TrimSpace(v.GetString("bind_addr")),
		AllowAnyOrigin:      v.GetBool("allow_any_origin"),
		MetricsNamespace:    v.GetString("metrics_namespace"),
		DatabaseURL:         strings.TrimSpace(v.GetString("database_url")),
		LogLevel:            strings.ToLower(v.GetString("log_level")),
		VADEnabled:          v.GetBool("vad_enabled"),
		VADListeningMode:    v.GetInt("vad_listening_mode"),
		VADInterruptMode:    v.GetInt("vad_interrupt_mode"),
		SilenceThreshold:    v.GetDuration("silence_threshold"),
		MinRecording:        v.GetDuration("min_recording"),
		InitialGrace:        v.GetDuration("initial_grace"),
		PreRoll:             v.GetDuration("pre_roll"),
		SessionTimeout:      v.GetDuration("session_timeout"),
		InterruptMinSpeech:  v.GetDuration("interrupt_min_speech"),
		InterruptGrace:      v.GetDuration("interrupt_grace"),
		StartTimeout:        v.GetDuration("start_timeout"),
		TranscribeTimeout:   v.GetDuration("transcribe_timeout"),
		SynthesizeTimeout:   v.GetDuration("synthesize_timeout"),
		ShutdownTimeout:     v.GetDuration("shutdown_timeout"),
	}

	profile, ok := LookupProfile(cfg.Profile)
	if !ok {
		return Config{}, fmt.Errorf("unknown profile %q (want one of %s)", cfg.Profile, strings.Join(ProfileNames(), ", "))
	}
	cfg.UserName = profile.UserName
	if cfg.Voice == "" {
		cfg.Voice = profile.Voice
	}
	if len(cfg.WakeWords) == 0 {
		cfg.WakeWords = profile.WakeWords
	}
	if len(cfg.DeactivationPhrases) == 0 {
		cfg.DeactivationPhrases = profile.DeactivationPhrases
	}
	if len(cfg.StopPhrases) == 0 {
		cfg.StopPhrases = profile.StopPhrases
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the listener cannot run with.
func (c Config) Validate() error {
	if _, ok := LookupProfile(c.Profile); !ok {
		return fmt.Errorf("unknown profile %q", c.Profile)
	}
	if !contains(injectionModes, c.InjectionMode) {
		return fmt.Errorf("injection_mode must be one of %s, got %q", strings.Join(injectionModes, ", "), c.InjectionMode)
	}
	if c.VADListeningMode < 0 || c.VADListeningMode > 3 {
		return fmt.Errorf("vad_listening_mode must be within 0..3, got %d", c.VADListeningMode)
	}
	if c.VADInterruptMode < 0 || c.VADInterruptMode > 3 {
		return fmt.Errorf("vad_interrupt_mode must be within 0..3, got %d", c.VADInterruptMode)
	}
	if c.MinAudioEnergy < 0 {
		return fmt.Errorf("min_audio_energy must be >= 0")
	}
	if c.BindAddr == "" {
		return fmt.Errorf("bind_addr must not be empty")
	}
	if len(c.WakeWords) == 0 {
		return fmt.Errorf("at least one wake word is required")
	}
	durations := []struct {
		key string
		d   time.Duration
	}{
		{"silence_threshold", c.SilenceThreshold},
		{"min_recording", c.MinRecording},
		{"initial_grace", c.InitialGrace},
		{"pre_roll", c.PreRoll},
		{"session_timeout", c.SessionTimeout},
		{"interrupt_min_speech", c.InterruptMinSpeech},
		{"interrupt_grace", c.InterruptGrace},
		{"start_timeout", c.StartTimeout},
		{"transcribe_timeout", c.TranscribeTimeout},
		{"synthesize_timeout", c.SynthesizeTimeout},
		{"shutdown_timeout", c.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive", d.key)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("profile", DefaultProfile)
	v.SetDefault("voice", "")
	v.SetDefault("theodore", false)
	v.SetDefault("input_device", -1)
	v.SetDefault("output_device", -1)
	v.SetDefault("min_audio_energy", 1500)
	v.SetDefault("wake_words", "")
	v.SetDefault("deactivation_words", "")
	v.SetDefault("stop_phrases", "")
	v.SetDefault("interrupt_words", "stop,quiet,enough,halt")
	v.SetDefault("skip_words", "continue,skip")
	v.SetDefault("target_app", "")
	v.SetDefault("injection_mode", "auto")
	v.SetDefault("restore_focus", true)
	v.SetDefault("ai_process_pattern", "claude|gemini|copilot|aider|chatgpt|gpt|sgpt|codex")
	v.SetDefault("ai_window_titles", "claude,gemini,copilot,aider,chatgpt,gpt")
	v.SetDefault("whisper_url", "http://localhost:2022/v1")
	v.SetDefault("whisper_health_url", "http://localhost:2022/health")
	v.SetDefault("whisper_language", "")
	v.SetDefault("kokoro_url", "http://localhost:8880/v1")
	v.SetDefault("kokoro_health_url", "http://localhost:8880/health")
	v.SetDefault("autostart_services", true)
	v.SetDefault("bind_addr", "127.0.0.1:7733")
	v.SetDefault("allow_any_origin", false)
	v.SetDefault("metrics_namespace", "samantha")
	v.SetDefault("database_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("vad_enabled", true)
	v.SetDefault("vad_listening_mode", 1)
	v.SetDefault("vad_interrupt_mode", 1)
	v.SetDefault("silence_threshold", "1s")
	v.SetDefault("min_recording", "300ms")
	v.SetDefault("initial_grace", "1s")
	v.SetDefault("pre_roll", "15s")
	v.SetDefault("session_timeout", "30m")
	v.SetDefault("interrupt_min_speech", "300ms")
	v.SetDefault("interrupt_grace", "2s")
	v.SetDefault("start_timeout", "30s")
	v.SetDefault("transcribe_timeout", "10s")
	v.SetDefault("synthesize_timeout", "60s")
	v.SetDefault("shutdown_timeout", "15s")
}

// list accepts a JSON array or a comma separated string. Entries are lowercased.
func list(v *viper.Viper, key string) []string {
	var raw []string
	switch val := v.Get(key).(type) {
	case nil:
	case string:
		raw = strings.Split(val, ",")
	case []string:
		raw = val
	case []any:
		for _, item := range val {
			raw = append(raw, fmt.Sprint(item))
		}
	default:
		raw = strings.Split(fmt.Sprint(val), ",")
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
