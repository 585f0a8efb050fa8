// Package tts defines speech synthesis for interviewer replies.
package tts

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxChars caps the text sent for synthesis.
const MaxChars = 400

// ErrEmptyText is returned when there is nothing left to speak after cleaning.
var ErrEmptyText = errors.New("tts: empty text")

// Synthesizer converts reply text to encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

var (
	codeBlockRe  = regexp.MustCompile("(?s)```.*?```")
	urlRe        = regexp.MustCompile(`https?://\S+`)
	markdownRe   = regexp.MustCompile("[*_`#]")
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// CleanText prepares text for speech: code blocks become a placeholder,
// URLs and markdown are removed, whitespace is collapsed, the sentence is
// closed with punctuation and the result is capped at MaxChars.
func CleanText(text string) string {
	s := codeBlockRe.ReplaceAllString(text, "[code example]")
	s = urlRe.ReplaceAllString(s, "")
	s = markdownRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
	if s == "" {
		return ""
	}

	if !strings.HasSuffix(s, ".") && !strings.HasSuffix(s, "!") && !strings.HasSuffix(s, "?") {
		lower := strings.ToLower(s)
		if strings.Contains(lower, "okay") || strings.Contains(lower, "great") || strings.Contains(lower, "interesting") {
			s += "."
		} else {
			s += "?"
		}
	}

	if utf8.RuneCountInString(s) > MaxChars {
		s = string([]rune(s)[:MaxChars]) + "..."
	}
	return s
}
