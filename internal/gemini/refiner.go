// Package gemini refines agent prompts with a Gemini model.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/decred/slog"
	"google.golang.org/genai"

	"github.com/satindergrewal/bioradio/internal/agent"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

const userRole = "user"

var (
	errNoCandidates = errors.New("no candidates in gemini response")
	errUnusable     = errors.New("unusable model output")
)

// contentGenerator is the part of *genai.Models the refiner uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content,
		config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Refiner adds one model-written prompt per agent cycle.
type Refiner struct {
	models contentGenerator
	model  string
	log    slog.Logger
}

// NewRefiner creates a refiner using the Gemini API with apiKey.
func NewRefiner(ctx context.Context, apiKey, model string, log slog.Logger) (*Refiner, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newRefiner(client.Models, model, log), nil
}

func newRefiner(models contentGenerator, model string, log slog.Logger) *Refiner {
	if model == "" {
		model = DefaultModel
	}
	if log == nil {
		log = slog.Disabled
	}
	return &Refiner{models: models, model: model, log: log}
}

// Refine implements agent.Refiner.
func (r *Refiner) Refine(ctx context.Context, req agent.RefineRequest) (string, error) {
	contents := []*genai.Content{{
		Role:  userRole,
		Parts: []*genai.Part{{Text: agent.RefinePrompt(req)}},
	}}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: agent.RefineSystemPrompt}},
		},
		Temperature: genai.Ptr[float32](0.9),
	}

	result, err := r.models.GenerateContent(ctx, r.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	raw, err := firstText(result)
	if err != nil {
		return "", err
	}
	text := agent.CleanRefined(raw)
	if text == "" {
		r.log.Debugf("Gemini returned unusable phrase: %q", raw)
		return "", errUnusable
	}
	r.log.Debugf("Refined [%s]: %s", req.Mood, text)
	return text, nil
}

func firstText(result *genai.GenerateContentResponse) (string, error) {
	if result == nil || len(result.Candidates) == 0 {
		return "", errNoCandidates
	}
	content := result.Candidates[0].Content
	if content == nil {
		return "", errNoCandidates
	}
	for _, p := range content.Parts {
		if p != nil && p.Text != "" && !p.Thought {
			return p.Text, nil
		}
	}
	return "", errUnusable
}
