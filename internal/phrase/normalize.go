package phrase

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// Transcriber annotations such as [Music], (coughing) and note glyphs.
	annotationRe = regexp.MustCompile(`\[.*?\]|\(.*?\)|♪+`)
	nonSpeechRe  = regexp.MustCompile(`[^\p{L}\p{N}_\s']`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// Normalize lowercases text and strips punctuation for phrase matching.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsPunct(r) || (r < unicode.MaxASCII && unicode.IsSymbol(r)) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// StripAnnotations removes bracketed and parenthesized sound tags and musical notes.
func StripAnnotations(text string) string {
	return strings.TrimSpace(annotationRe.ReplaceAllString(text, ""))
}

// Sanitize prepares a raw transcription for interrupt, skip and noise checks:
// annotations and punctuation other than apostrophes are removed, whitespace
// collapsed and the result lowercased.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}
	cleaned := annotationRe.ReplaceAllString(text, "")
	cleaned = nonSpeechRe.ReplaceAllString(cleaned, "")
	cleaned = spaceRe.ReplaceAllString(cleaned, " ")
	return strings.ToLower(strings.TrimSpace(cleaned))
}

func collapseSpace(text string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}
