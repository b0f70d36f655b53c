package agent

import (
	"strings"
	"testing"
)

func TestCleanRefined(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"warm rhodes chords", "warm rhodes chords"},
		{`"Soft brushed snare."`, "Soft brushed snare"},
		{"<think>planning</think>\nglassy bells", "glassy bells"},
		{"Phrase: low cello drone", "low cello drone"},
		{"\n\n- tape wobble\nsecond line", "tape wobble"},
		{"ok", ""},
		{strings.Repeat("long ", 40), ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanRefined(tt.in); got != tt.want {
			t.Errorf("CleanRefined(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRefinePrompt(t *testing.T) {
	p := RefinePrompt(RefineRequest{
		Mood:        "lofi",
		Description: Describe("lofi"),
		Analysis:    Analysis{Arousal: 0.4, Stress: 0.1, Label: LabelCalm},
	})
	for _, want := range []string{"Mood: lofi", "calm", "0.40"} {
		if !strings.Contains(p, want) {
			t.Errorf("RefinePrompt missing %q:\n%s", want, p)
		}
	}
	if strings.Contains(p, "Previous") {
		t.Error("RefinePrompt should omit an empty previous phrase")
	}
}
