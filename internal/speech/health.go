package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/antoniostano/samantha-voice/internal/reliability"
)

const healthProbeTimeout = 2 * time.Second

// Service describes a local speech service the loop depends on.
type Service struct {
	Name        string
	HealthURL   string
	StartScript string
	StartDir    string
	// Wait bounds how long to poll for health after a start attempt.
	Wait time.Duration
}

// KokoroService is the synthesis server installed under home.
func KokoroService(home, healthURL string) Service {
	dir := filepath.Join(home, "services", "kokoro")
	script := "start-cpu.sh"
	switch runtime.GOOS {
	case "darwin":
		script = "start-gpu_mac.sh"
	case "linux":
		if _, err := exec.LookPath("nvidia-smi"); err == nil {
			script = "start-gpu.sh"
		}
	}
	return Service{
		Name:        "Kokoro TTS",
		HealthURL:   healthURL,
		StartScript: filepath.Join(dir, script),
		StartDir:    dir,
		Wait:        45 * time.Second,
	}
}

// WhisperService is the transcription server installed under home.
func WhisperService(home, healthURL string) Service {
	return Service{
		Name:        "Whisper STT",
		HealthURL:   healthURL,
		StartScript: filepath.Join(home, "services", "whisper", "bin", "start-whisper-server.sh"),
		Wait:        20 * time.Second,
	}
}

// Healthy performs one health probe.
func Healthy(ctx context.Context, client *http.Client, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK && !reliability.IsRetryableHTTPStatus(resp.StatusCode) {
		log.Warn().Str("url", url).Int("status", resp.StatusCode).Msg("unexpected health status")
	}
	return resp.StatusCode == http.StatusOK
}

// EnsureRunning returns nil once svc is healthy, launching its start script
// when it is not already up.
func EnsureRunning(ctx context.Context, client *http.Client, svc Service, autostart bool) error {
	if client == nil {
		client = http.DefaultClient
	}
	if Healthy(ctx, client, svc.HealthURL) {
		log.Info().Str("service", svc.Name).Msg("service is running")
		return nil
	}
	if autostart {
		if err := launch(svc); err != nil {
			log.Error().Err(err).Str("service", svc.Name).Msg("service start failed")
		}
	}

	deadline := time.Now().Add(svc.Wait)
	for attempt := 0; time.Now().Before(deadline); attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reliability.ExponentialBackoff(attempt, 250*time.Millisecond, time.Second)):
		}
		if Healthy(ctx, client, svc.HealthURL) {
			log.Info().Str("service", svc.Name).Msg("service started")
			return nil
		}
	}
	return fmt.Errorf("%s not healthy at %s after %s", svc.Name, svc.HealthURL, svc.Wait)
}

func launch(svc Service) error {
	if svc.StartScript == "" {
		return fmt.Errorf("no start script configured")
	}
	if _, err := os.Stat(svc.StartScript); err != nil {
		return fmt.Errorf("start script %s: %w", svc.StartScript, err)
	}
	cmd := exec.Command("bash", svc.StartScript)
	cmd.Dir = svc.StartDir
	if err := cmd.Start(); err != nil {
		return err
	}
	log.Info().Str("service", svc.Name).Str("script", filepath.Base(svc.StartScript)).Int("pid", cmd.Process.Pid).Msg("service starting")
	return cmd.Process.Release()
}
