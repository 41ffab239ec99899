package phrase

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultInterruptWords cancel playback and clear everything queued.
var DefaultInterruptWords = []string{"stop", "quiet", "enough", "halt"}

// DefaultSkipWords cancel only the utterance being spoken.
var DefaultSkipWords = []string{"continue", "skip"}

// Lists is the phrase vocabulary of one voice profile.
type Lists struct {
	WakeWords           []string
	DeactivationPhrases []string
	StopPhrases         []string
	InterruptWords      []string
	SkipWords           []string
}

type wakePattern struct {
	word string
	norm string
	re   *regexp.Regexp
}

// Matcher answers every phrase question the turn-taking loop asks.
// It is immutable after construction and safe for concurrent use.
type Matcher struct {
	lists        Lists
	wake         []wakePattern
	deactivation []string
	stopRe       *regexp.Regexp
	keywords     []string
}

func NewMatcher(l Lists) *Matcher {
	if len(l.InterruptWords) == 0 {
		l.InterruptWords = DefaultInterruptWords
	}
	if len(l.SkipWords) == 0 {
		l.SkipWords = DefaultSkipWords
	}
	l.InterruptWords = lowerAll(l.InterruptWords)
	l.SkipWords = lowerAll(l.SkipWords)

	m := &Matcher{lists: l}

	words := append([]string(nil), l.WakeWords...)
	sort.SliceStable(words, func(i, j int) bool { return len(words[i]) > len(words[j]) })
	for _, w := range words {
		parts := strings.Fields(w)
		if len(parts) == 0 {
			continue
		}
		m.wake = append(m.wake, wakePattern{
			word: w,
			norm: Normalize(w),
			re:   regexp.MustCompile(`(?i)` + joinQuoted(parts, `[^\p{L}\p{N}_]*`)),
		})
	}

	for _, p := range l.DeactivationPhrases {
		if n := Normalize(p); n != "" {
			m.deactivation = append(m.deactivation, n)
		}
	}

	var stops []string
	for _, p := range l.StopPhrases {
		if parts := strings.Fields(p); len(parts) > 0 {
			stops = append(stops, joinQuoted(parts, `\s+`))
		}
	}
	if len(stops) > 0 {
		m.stopRe = regexp.MustCompile(`(?i)(` + strings.Join(stops, "|") + `)`)
	}

	for _, group := range [][]string{l.WakeWords, l.StopPhrases, l.DeactivationPhrases, l.InterruptWords, l.SkipWords} {
		m.keywords = append(m.keywords, lowerAll(group)...)
	}
	return m
}

func (m *Matcher) Lists() Lists { return m.lists }

// MatchWakeWord returns the longest wake word contained in text.
func (m *Matcher) MatchWakeWord(text string) (string, bool) {
	norm := Normalize(text)
	if norm == "" {
		return "", false
	}
	for _, w := range m.wake {
		if w.norm != "" && strings.Contains(norm, w.norm) {
			return w.word, true
		}
	}
	return "", false
}

// MatchesDeactivation reports whether text contains a deactivation phrase.
func (m *Matcher) MatchesDeactivation(text string) bool {
	norm := Normalize(text)
	if norm == "" {
		return false
	}
	for _, p := range m.deactivation {
		if strings.Contains(norm, p) {
			return true
		}
	}
	return false
}

// ContainsStopPhrase reports whether text contains a stop phrase.
func (m *Matcher) ContainsStopPhrase(text string) bool {
	return m.stopRe != nil && m.stopRe.MatchString(text)
}

// CleanCommand produces the text forwarded to the assistant: annotations are
// removed, everything before the first wake word is dropped and everything after
// the first stop phrase is cut, keeping the phrase itself.
func (m *Matcher) CleanCommand(text string) string {
	cleaned := StripAnnotations(text)
	for _, w := range m.wake {
		if loc := w.re.FindStringIndex(cleaned); loc != nil {
			cleaned = strings.TrimSpace(cleaned[loc[0]:])
			break
		}
	}
	if m.stopRe != nil {
		if loc := m.stopRe.FindStringIndex(cleaned); loc != nil {
			cleaned = cleaned[:loc[1]]
		}
	}
	return collapseSpace(cleaned)
}

// ActiveInterruptWords returns the interrupt words not present in the text being spoken.
func (m *Matcher) ActiveInterruptWords(speaking string) []string {
	spoken := strings.ToLower(speaking)
	out := make([]string, 0, len(m.lists.InterruptWords))
	for _, w := range m.lists.InterruptWords {
		if !strings.Contains(spoken, w) {
			out = append(out, w)
		}
	}
	return out
}

// SkipAllowed is false while the spoken text itself contains a skip word.
func (m *Matcher) SkipAllowed(speaking string) bool {
	spoken := strings.ToLower(speaking)
	for _, w := range m.lists.SkipWords {
		if strings.Contains(spoken, w) {
			return false
		}
	}
	return true
}

// ContainsInterrupt checks sanitized text for an interrupt. A word repeated at
// least twice always counts, even when playback is saying it.
func (m *Matcher) ContainsInterrupt(sanitized, speaking string) bool {
	words := strings.Fields(sanitized)
	if len(words) == 0 {
		return false
	}
	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[w]++
	}
	for _, w := range m.lists.InterruptWords {
		if counts[w] >= 2 {
			return true
		}
	}
	for _, w := range m.ActiveInterruptWords(speaking) {
		if counts[w] > 0 {
			return true
		}
	}
	return false
}

// ContainsSkip checks sanitized text for a skip word.
func (m *Matcher) ContainsSkip(sanitized, speaking string) bool {
	if sanitized == "" || !m.SkipAllowed(speaking) {
		return false
	}
	for _, w := range strings.Fields(sanitized) {
		for _, s := range m.lists.SkipWords {
			if w == s {
				return true
			}
		}
	}
	return false
}

func joinQuoted(parts []string, sep string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(quoted, sep)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
