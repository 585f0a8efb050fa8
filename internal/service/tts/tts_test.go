package tts

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain question", "What is a goroutine?", "What is a goroutine?"},
		{"markdown", "**Great** answer. Tell me about `channels`.", "Great answer. Tell me about channels."},
		{"url", "See https://go.dev/doc for details.", "See for details."},
		{"code block", "Consider this: ```go\nfunc f() {}\n``` What does it do?", "Consider this: [code example] What does it do?"},
		{"whitespace", "  Tell me\n\n about   testing.  ", "Tell me about testing."},
		{"closing question mark", "Tell me about your team", "Tell me about your team?"},
		{"closing period", "Okay, let's move on", "Okay, let's move on."},
		{"empty", "  ** ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.in); got != tt.want {
				t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanText_Cap(t *testing.T) {
	long := strings.Repeat("é", 500) + "."
	got := CleanText(long)

	if !strings.HasSuffix(got, "...") {
		t.Error("expected ellipsis on truncated text")
	}
	if n := utf8.RuneCountInString(got); n != MaxChars+3 {
		t.Errorf("expected %d runes, got %d", MaxChars+3, n)
	}
	if !utf8.ValidString(got) {
		t.Error("truncation split a rune")
	}
}
