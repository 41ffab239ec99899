package phrase

import "strings"

var (
	noisePhrases = []string{
		"thank you for watching",
		"look at the next video",
	}
	noiseTokens = map[string]struct{}{
		"click": {}, "clap": {}, "ding": {}, "bell": {}, "tick": {}, "thud": {}, "bang": {},
		"engine": {}, "revving": {}, "engine revving": {}, "keyboard": {}, "typing": {},
		"keyboard typing": {}, "noise": {}, "silence": {}, "static": {}, "hum": {},
		"buzz": {}, "music": {},
	}
)

// IsNoise classifies a raw transcription as environmental noise rather than speech.
// Anything containing a known keyword is never noise.
func (m *Matcher) IsNoise(text string) bool {
	sanitized := Sanitize(text)
	if len(sanitized) < 3 {
		return true
	}
	for _, k := range m.keywords {
		if strings.Contains(sanitized, k) {
			return false
		}
	}
	for _, p := range noisePhrases {
		if strings.Contains(sanitized, p) {
			return true
		}
	}
	_, ok := noiseTokens[sanitized]
	return ok
}
