// Package instance records the running listener's PID so a second process
// can detect and stop it.
package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrAlreadyRunning = errors.New("listener already running")

const killGrace = 200 * time.Millisecond

// Marker is a PID file.
type Marker struct {
	Path string
}

func NewMarker(path string) *Marker {
	return &Marker{Path: path}
}

// Acquire writes the current PID. It fails with ErrAlreadyRunning when the
// file names another live process; stale files are overwritten.
func (m *Marker) Acquire() error {
	if pid, ok := m.RunningElsewhere(); ok {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}
	if err := os.MkdirAll(filepath.Dir(m.Path), 0o755); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}
	if err := os.WriteFile(m.Path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Release removes the file if it still names this process.
func (m *Marker) Release() error {
	pid, err := m.Read()
	if err != nil {
		return nil
	}
	if pid != os.Getpid() {
		return nil
	}
	if err := os.Remove(m.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}

func (m *Marker) Read() (int, error) {
	raw, err := os.ReadFile(m.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s", m.Path)
	}
	return pid, nil
}

// RunningElsewhere reports the recorded PID when it is alive and not ours.
func (m *Marker) RunningElsewhere() (int, bool) {
	pid, err := m.Read()
	if err != nil || pid == os.Getpid() {
		return 0, false
	}
	return pid, Alive(pid)
}

// TerminateOther sends SIGTERM to a listener recorded by another process and
// SIGKILLs it if it is still alive after a short grace. It reports whether a
// process was signalled.
func (m *Marker) TerminateOther() bool {
	pid, ok := m.RunningElsewhere()
	if !ok {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		log.Warn().Err(err).Int("pid", pid).Msg("sigterm listener failed")
		return false
	}
	time.Sleep(killGrace)
	if Alive(pid) {
		log.Warn().Int("pid", pid).Msg("listener ignored sigterm, killing")
		_ = proc.Signal(syscall.SIGKILL)
	}
	_ = os.Remove(m.Path)
	return true
}

// Alive probes pid with signal 0.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
