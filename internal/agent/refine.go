package agent

import (
	"fmt"
	"strings"
)

// RefineSystemPrompt instructs an LLM to write one extra prompt.
const RefineSystemPrompt = `You write short prompts for a real-time instrumental music generator.

Given a mood, its lead description and the listener's state, output ONE phrase
of 4-12 words naming an instrument, texture or production detail that fits.

Rules:
- Describe the SOUND: instruments, timbre, effects, space.
- Never mention vocals, lyrics, artists or song titles.
- Never repeat the previous phrase.

Output ONLY the phrase. No quotes, no preamble.

/no_think`

// RefinePrompt renders req as the user message for RefineSystemPrompt.
func RefinePrompt(req RefineRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Mood: %s\n", req.Mood)
	fmt.Fprintf(&b, "Lead description: %s\n", req.Description)
	fmt.Fprintf(&b, "Listener: %s (arousal %.2f, stress %.2f)", req.Analysis.Label,
		req.Analysis.Arousal, req.Analysis.Stress)
	if req.Previous != "" {
		fmt.Fprintf(&b, "\nPrevious phrase (do NOT repeat): %s", req.Previous)
	}
	return b.String()
}

// maxRefinedLen bounds an accepted phrase, in bytes.
const maxRefinedLen = 120

// CleanRefined strips common LLM artifacts and returns "" when what is left
// is unusable.
func CleanRefined(s string) string {
	s = strings.TrimSpace(s)

	// Reasoning models may leak their thinking block.
	if idx := strings.Index(s, "</think>"); idx >= 0 {
		s = strings.TrimSpace(s[idx+len("</think>"):])
	}

	// Keep the first non-empty line.
	for line := range strings.SplitSeq(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			s = line
			break
		}
	}

	s = strings.Trim(s, "\"'`*-• ")
	for _, p := range []string{"phrase:", "prompt:", "here's a phrase:", "here is a phrase:"} {
		if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
			s = strings.TrimSpace(s[len(p):])
		}
	}
	s = strings.TrimRight(s, ".")

	if len(s) < 3 || len(s) > maxRefinedLen {
		return ""
	}
	return s
}
