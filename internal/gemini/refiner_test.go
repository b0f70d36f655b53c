package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/satindergrewal/bioradio/internal/agent"
)

type fakeModels struct {
	resp *genai.GenerateContentResponse
	err  error

	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content,
	config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model, f.contents, f.config = model, contents, config
	return f.resp, f.err
}

func reply(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func TestRefine(t *testing.T) {
	f := &fakeModels{resp: reply(
		&genai.Part{Text: "thinking about pads", Thought: true},
		&genai.Part{Text: "\"Glassy bells over warm pads.\""},
	)}
	r := newRefiner(f, "", nil)

	text, err := r.Refine(context.Background(), agent.RefineRequest{
		Mood:        "ambient",
		Description: agent.Describe("ambient"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Glassy bells over warm pads", text)

	assert.Equal(t, DefaultModel, f.model)
	require.Len(t, f.contents, 1)
	assert.Contains(t, f.contents[0].Parts[0].Text, "Mood: ambient")
	assert.Equal(t, agent.RefineSystemPrompt, f.config.SystemInstruction.Parts[0].Text)
}

func TestRefineErrors(t *testing.T) {
	tests := []struct {
		name string
		f    *fakeModels
	}{
		{"request", &fakeModels{err: errors.New("quota")}},
		{"no candidates", &fakeModels{resp: &genai.GenerateContentResponse{}}},
		{"nil content", &fakeModels{resp: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{}},
		}}},
		{"only thoughts", &fakeModels{resp: reply(&genai.Part{Text: "hmm", Thought: true})}},
		{"unusable", &fakeModels{resp: reply(&genai.Part{Text: "ok"})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newRefiner(tt.f, "gemini-test", nil).Refine(context.Background(), agent.RefineRequest{Mood: "lofi"})
			assert.Error(t, err)
		})
	}
}
