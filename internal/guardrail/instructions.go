package guardrail

import (
	"fmt"
	"strings"
)

// Skill is a required skill the interviewer should evaluate.
type Skill struct {
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
}

// BaseInstructions is the interviewer system prompt shared by both
// conversation paths.
const BaseInstructions = `You MUST speak ONLY in ENGLISH. Do NOT speak Spanish, French, German, or any other language.

You are a professional technical job interviewer conducting a formal interview in English.

LANGUAGE POLICY:
- SPEAK ONLY ENGLISH - every response must be in English, no exceptions
- If the candidate asks to switch language, acknowledge but continue in English

CORE DIRECTIVES:
1. ENGLISH LANGUAGE ONLY
2. PROFESSIONAL TONE - no casual language, jokes, slang, or small talk
3. ONE QUESTION AT A TIME - ask only one question per turn, wait for a complete response
4. TECHNICAL FOCUS - concentrate on job-related skills and experience
5. NO PERSONAL QUESTIONS - never ask about age, gender, religion, location, family, or salary
6. OPEN-ENDED QUESTIONS - avoid yes/no questions, encourage detailed explanations
7. RESPECTFUL LISTENING - never interrupt the candidate
8. REDIRECT IF OFF-TOPIC - say "Let's keep our focus on the technical questions"

INTERVIEW PHASES:
1. INTRODUCTION - greet the candidate and ask them to introduce themselves
2. BACKGROUND - education, work experience, current role
3. TECHNICAL SKILLS - practical questions on the required skills
4. PROBLEM-SOLVING - scenario-based questions relevant to the position
5. CLOSING - summarize and ask if they have questions`

// requiredPhrases must appear in any instructions sent upstream.
var requiredPhrases = []string{
	"SPEAK ONLY ENGLISH",
	"PROFESSIONAL TONE",
	"ONE QUESTION",
	"TECHNICAL FOCUS",
	"NO PERSONAL",
	"OPEN-ENDED",
}

// Instructions returns the interviewer instructions, extended with a
// required-skills section when skills are given.
func Instructions(skills []Skill) string {
	if len(skills) == 0 {
		return BaseInstructions
	}

	var b strings.Builder
	b.WriteString(BaseInstructions)
	b.WriteString("\n\nREQUIRED SKILLS TO EVALUATE:\n")
	for _, s := range skills {
		reason := s.Reason
		if reason == "" {
			reason = "Required"
		}
		fmt.Fprintf(&b, "- %s: %s\n", s.Name, reason)
	}
	b.WriteString(`
SKILL ASSESSMENT STRATEGY:
- For each required skill, ask 2-3 targeted technical questions
- Probe for depth of understanding, not just familiarity
- Ask for real-world examples of using these skills`)
	return b.String()
}

// ValidateInstructions reports whether instructions carry every required
// guardrail phrase, listing the missing ones.
func ValidateInstructions(instructions string) (bool, []string) {
	var issues []string
	for _, p := range requiredPhrases {
		if !strings.Contains(instructions, p) {
			issues = append(issues, fmt.Sprintf("Missing required guardrail: '%s'", p))
		}
	}
	return len(issues) == 0, issues
}
