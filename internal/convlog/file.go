package convlog

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const timeLayout = "15:04:05"

// FileStore appends human-readable lines to a plain-text log file.
type FileStore struct {
	mu        sync.Mutex
	path      string
	assistant string
}

// NewFileStore logs to path. assistant names the speaker of TTS lines.
func NewFileStore(path, assistant string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}
	if strings.TrimSpace(assistant) == "" {
		assistant = "Samantha"
	}
	return &FileStore{path: path, assistant: assistant}, nil
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Append(_ context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	line := FormatLine(e, s.assistant)

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open conversation log: %w", err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("write conversation log: %w", err)
	}
	return f.Close()
}

// Recent parses the last limit lines of the log. Timestamps carry only the
// time of day, so entries are dated today.
func (s *FileStore) Recent(_ context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open conversation log: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if len(lines) > limit {
			lines = lines[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read conversation log: %w", err)
	}

	out := make([]Entry, 0, len(lines))
	for _, l := range lines {
		if e, ok := ParseLine(l, s.assistant, time.Now()); ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *FileStore) Close() error { return nil }

// FormatLine renders e as "[HH:MM:SS] <label>: <text>".
func FormatLine(e Entry, assistant string) string {
	return fmt.Sprintf("[%s] %s: %s", e.CreatedAt.Format(timeLayout), label(e.Kind, assistant), e.Text)
}

// ParseLine is the inverse of FormatLine. day supplies the date.
func ParseLine(line, assistant string, day time.Time) (Entry, bool) {
	if len(line) < len(timeLayout)+3 || line[0] != '[' || line[len(timeLayout)+1] != ']' {
		return Entry{}, false
	}
	clock, err := time.ParseInLocation(timeLayout, line[1:len(timeLayout)+1], day.Location())
	if err != nil {
		return Entry{}, false
	}
	rest := strings.TrimPrefix(line[len(timeLayout)+2:], " ")
	head, text, ok := strings.Cut(rest, ": ")
	if !ok {
		return Entry{}, false
	}
	kind := Kind(head)
	for _, k := range []Kind{KindSTT, KindTTS, KindInterrupt} {
		if head == label(k, assistant) {
			kind = k
			break
		}
	}
	y, m, d := day.Date()
	return Entry{
		ID:        uuid.NewString(),
		Kind:      kind,
		Text:      text,
		CreatedAt: time.Date(y, m, d, clock.Hour(), clock.Minute(), clock.Second(), 0, day.Location()),
	}, true
}

func label(k Kind, assistant string) string {
	switch k {
	case KindSTT:
		return "🎙️ User"
	case KindTTS:
		return "🔊 " + assistant
	case KindInterrupt:
		return "🛑 Interrupt"
	default:
		return string(k)
	}
}
