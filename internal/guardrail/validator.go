// Package guardrail classifies generated interviewer text against the
// interview content policy. Validation is pure: text in, verdict out.
package guardrail

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Severity ranks how serious a verdict is.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Verdict is the result of validating one text.
type Verdict struct {
	IsValid    bool     `json:"is_valid"`
	Violations []string `json:"violations"`
	Severity   Severity `json:"severity"`
}

// languageMarkers lists words that indicate a reply left English.
// Ordered so violation lists are deterministic.
var languageMarkers = []struct {
	language string
	words    []string
}{
	{"spanish", []string{
		"hola", "buenos", "días", "noche", "gracias", "por favor",
		"cómo", "qué", "dónde", "cuándo", "sí", "bien",
		"buena", "malo", "mañana", "semana", "año", "mes", "ayer",
	}},
	{"french", []string{"bonjour", "merci", "oui", "non", "comment", "pourquoi"}},
	{"german", []string{"hallo", "danke", "ja", "nein", "wie", "warum"}},
	{"other", []string{"你好", "こんにちは", "привет", "안녕하세요"}},
}

var casualPhrases = []string{
	"hey", "what's up", "whats up", "lol", "btw", "umm", "uh",
	"gonna", "wanna", "kinda", "sorta", "yeah",
	"literally", "basically", "stuff", "thing",
}

var personalKeywords = []string{
	"age", "aged", "young", "old", "married", "children", "kids",
	"religion", "politics", "salary", "pay", "where do you live",
	"personal life", "family", "relationship", "gender", "ethnicity",
	"nationality", "visa", "immigration",
}

var interruptionPhrases = []string{"let me finish", "wait a moment", "hold on"}

// Validate runs every check over text and returns the combined verdict.
// All checks run regardless of earlier findings.
func Validate(text string) Verdict {
	lower := strings.ToLower(text)
	v := Verdict{Violations: []string{}, Severity: SeverityNone}

	for _, lang := range languageMarkers {
		for _, w := range lang.words {
			if containsWord(lower, w) {
				v.add(SeverityCritical, fmt.Sprintf("Possible non-English (%s) content detected: '%s'", lang.language, w))
			}
		}
	}

	if n := strings.Count(text, "?"); n > 1 {
		v.add(SeverityWarning, fmt.Sprintf("Multiple questions detected (%d). Should ask one question at a time.", n))
	}

	for _, p := range casualPhrases {
		if containsWord(lower, p) {
			v.add(SeverityWarning, fmt.Sprintf("Casual language detected: '%s'. Use professional tone.", p))
		}
	}

	for _, k := range personalKeywords {
		if containsWord(lower, k) {
			v.add(SeverityCritical, fmt.Sprintf("Potential personal question detected: '%s'. Focus on job-related topics.", k))
		}
	}

	for _, p := range interruptionPhrases {
		if strings.Contains(lower, p) {
			v.add(SeverityWarning, "Response suggests interrupting behavior")
			break
		}
	}

	v.IsValid = len(v.Violations) == 0
	return v
}

func (v *Verdict) add(s Severity, msg string) {
	v.Violations = append(v.Violations, msg)
	if s.rank() > v.Severity.rank() {
		v.Severity = s
	}
}

// containsWord reports whether word occurs in text delimited by non-word
// runes on both sides. Unlike regexp's \b this is Unicode aware, so accented
// and non-Latin markers match.
func containsWord(text, word string) bool {
	for start := 0; start < len(text); {
		i := strings.Index(text[start:], word)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(word)

		before, _ := utf8.DecodeLastRuneInString(text[:i])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (i == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		start = i + size
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
