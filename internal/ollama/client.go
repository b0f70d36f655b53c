// Package ollama refines agent prompts with a local Ollama model.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/decred/slog"
)

const (
	// loadTimeout covers the first request, which loads the model into memory.
	loadTimeout = 120 * time.Second
	// keepAlive holds the model in memory between agent cycles.
	keepAlive = "10m"
	// errBodyLimit bounds how much of a failed response is read.
	errBodyLimit = 512
)

// phraseOptions are the sampling settings for one refined prompt phrase:
// warm enough to vary cycle to cycle, short enough to stay a single phrase.
type phraseOptions struct {
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	NumPredict    int     `json:"num_predict"`
	RepeatPenalty float64 `json:"repeat_penalty"`
}

var defaultPhraseOptions = phraseOptions{
	Temperature:   0.9,
	TopP:          0.95,
	NumPredict:    48,
	RepeatPenalty: 1.1,
}

type phraseRequest struct {
	Model     string        `json:"model"`
	System    string        `json:"system"`
	Prompt    string        `json:"prompt"`
	Stream    bool          `json:"stream"`
	KeepAlive string        `json:"keep_alive,omitempty"`
	Options   phraseOptions `json:"options"`
}

type phraseResponse struct {
	Response   string `json:"response"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Client asks an Ollama server for short prompt phrases.
type Client struct {
	endpoint string
	model    string
	hc       *http.Client
	opts     phraseOptions
	log      slog.Logger
}

// NewClient returns a client for the server at baseURL using model.
func NewClient(baseURL, model string, log slog.Logger) *Client {
	if log == nil {
		log = slog.Disabled
	}
	return &Client{
		endpoint: strings.TrimRight(baseURL, "/"),
		model:    model,
		hc:       &http.Client{Timeout: loadTimeout},
		opts:     defaultPhraseOptions,
		log:      log,
	}
}

// Ping reports whether the server answers its model listing.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama status %d", resp.StatusCode)
	}
	return nil
}

// Phrase completes prompt under the system instructions and returns the
// trimmed model output. Cleanup of the phrase is left to the caller.
func (c *Client) Phrase(ctx context.Context, system, prompt string) (string, error) {
	body, err := json.Marshal(phraseRequest{
		Model:     c.model,
		System:    system,
		Prompt:    prompt,
		KeepAlive: keepAlive,
		Options:   c.opts,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	var out phraseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if out.Error != "" {
		return "", errors.New("ollama: " + out.Error)
	}
	if out.DoneReason == "length" {
		c.log.Tracef("Phrase hit the %d token limit", c.opts.NumPredict)
	}
	return strings.TrimSpace(out.Response), nil
}

// statusError prefers the server's own error message over the raw body.
func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
	var e phraseResponse
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		return fmt.Errorf("ollama status %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

// AwaitReady pings every interval until the server answers or ctx ends, and
// returns the last ping error in the latter case.
func (c *Client) AwaitReady(ctx context.Context, every time.Duration) error {
	err := c.Ping(ctx)
	if err == nil {
		return nil
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return err
		case <-ticker.C:
			if err = c.Ping(ctx); err == nil {
				c.log.Infof("Ollama ready (model: %s)", c.model)
				return nil
			}
		}
	}
}
