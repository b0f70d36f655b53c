package ollama

import (
	"context"
	"errors"

	"github.com/satindergrewal/bioradio/internal/agent"
)

var errUnusable = errors.New("unusable model output")

// Refiner adds one model-written prompt per agent cycle.
type Refiner struct {
	client *Client
}

// NewRefiner creates a refiner backed by client.
func NewRefiner(client *Client) *Refiner {
	return &Refiner{client: client}
}

// Refine implements agent.Refiner.
func (r *Refiner) Refine(ctx context.Context, req agent.RefineRequest) (string, error) {
	raw, err := r.client.Phrase(ctx, agent.RefineSystemPrompt, agent.RefinePrompt(req))
	if err != nil {
		return "", err
	}
	text := agent.CleanRefined(raw)
	if text == "" {
		r.client.log.Debugf("Ollama returned unusable phrase: %q", raw)
		return "", errUnusable
	}
	r.client.log.Debugf("Refined [%s]: %s", req.Mood, text)
	return text, nil
}
