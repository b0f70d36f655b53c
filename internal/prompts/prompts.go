// Package prompts holds the user's prompt collection.
package prompts

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/decred/slog"
	"github.com/google/uuid"

	"github.com/satindergrewal/bioradio/internal/lyria"
)

var (
	ErrNotFound      = errors.New("prompt not found")
	ErrNotEditable   = errors.New("prompt text is not editable")
	ErrEmptyText     = errors.New("prompt text is empty")
	ErrInvalidWeight = errors.New("prompt weight must be between 0 and 2")
)

// MaxWeight is the largest weight a prompt may carry.
const MaxWeight = 2.0

// Prompt is a user-authored weighted text tag.
type Prompt struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	Weight   float64 `json:"weight"`
	Color    string  `json:"color"`
	Editable bool    `json:"editable"`
}

// Patch is a partial update. Nil fields are left alone.
type Patch struct {
	Text   *string  `json:"text,omitempty"`
	Weight *float64 `json:"weight,omitempty"`
	Color  *string  `json:"color,omitempty"`
}

var palette = []string{
	"#9900ff", "#5200ff", "#ff25f6", "#2af6de",
	"#ffdd28", "#3dffab", "#d8ff3e", "#d9b2ff",
}

// Defaults are the built-in presets offered before the user adds any.
func Defaults() []Prompt {
	texts := []string{
		"Bossa Nova", "Chillwave", "Drum and Bass", "Post Punk",
		"Shoegaze", "Funk", "Chiptune", "Lush Strings",
		"Sparkling Arpeggios", "Staccato Rhythms", "Punchy Kick", "Dubstep",
		"K Pop", "Neo Soul", "Trip Hop", "Thrash",
	}
	out := make([]Prompt, len(texts))
	for i, text := range texts {
		out[i] = Prompt{
			ID:    uuid.NewString(),
			Text:  text,
			Color: palette[i%len(palette)],
		}
	}
	return out
}

// Store persists the collection as one ordered list.
type Store interface {
	Load() ([]Prompt, error)
	Save([]Prompt) error
}

// Collection is the ordered, concurrency-safe prompt list. Every mutation
// is written through to the store.
type Collection struct {
	store Store
	log   slog.Logger

	mu    sync.Mutex
	items []Prompt
}

// Open loads the collection from store, seeding it with Defaults when the
// store is empty.
func Open(store Store, log slog.Logger) (*Collection, error) {
	if log == nil {
		log = slog.Disabled
	}
	items, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	c := &Collection{store: store, log: log, items: items}
	if len(items) == 0 {
		if err := c.commit(Defaults()); err != nil {
			return nil, err
		}
		log.Infof("Seeded %d default prompts", len(c.items))
	} else {
		log.Infof("Loaded %d prompts", len(items))
	}
	return c, nil
}

// commit saves items and makes them current. On failure the collection
// keeps its previous contents.
func (c *Collection) commit(items []Prompt) error {
	if err := c.store.Save(items); err != nil {
		return fmt.Errorf("save prompts: %w", err)
	}
	c.items = items
	return nil
}

func (c *Collection) index(id string) int {
	for i, p := range c.items {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func validWeight(w float64) bool {
	return w >= 0 && w <= MaxWeight
}

// List returns a copy of the collection in order.
func (c *Collection) List() []Prompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Prompt(nil), c.items...)
}

// Get returns the prompt with id.
func (c *Collection) Get(id string) (Prompt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.index(id)
	if i < 0 {
		return Prompt{}, ErrNotFound
	}
	return c.items[i], nil
}

// Add appends an editable prompt.
func (c *Collection) Add(text string, weight float64, color string) (Prompt, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Prompt{}, ErrEmptyText
	}
	if !validWeight(weight) {
		return Prompt{}, ErrInvalidWeight
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if color == "" {
		color = palette[len(c.items)%len(palette)]
	}
	p := Prompt{
		ID:       uuid.NewString(),
		Text:     text,
		Weight:   weight,
		Color:    color,
		Editable: true,
	}
	if err := c.commit(append(slices.Clone(c.items), p)); err != nil {
		return Prompt{}, err
	}
	c.log.Debugf("Added prompt %q (%.2f)", text, weight)
	return p, nil
}

// Update applies patch to the prompt with id. Text changes on prompts that
// are not editable fail with ErrNotEditable; weight and color always apply.
func (c *Collection) Update(id string, patch Patch) (Prompt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.index(id)
	if i < 0 {
		return Prompt{}, ErrNotFound
	}
	p := c.items[i]
	if patch.Text != nil {
		text := strings.TrimSpace(*patch.Text)
		if text != p.Text {
			if !p.Editable {
				return Prompt{}, ErrNotEditable
			}
			if text == "" {
				return Prompt{}, ErrEmptyText
			}
			p.Text = text
		}
	}
	if patch.Weight != nil {
		if !validWeight(*patch.Weight) {
			return Prompt{}, ErrInvalidWeight
		}
		p.Weight = *patch.Weight
	}
	if patch.Color != nil {
		p.Color = *patch.Color
	}

	items := slices.Clone(c.items)
	items[i] = p
	if err := c.commit(items); err != nil {
		return Prompt{}, err
	}
	return p, nil
}

// Remove deletes the prompt with id.
func (c *Collection) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.index(id)
	if i < 0 {
		return ErrNotFound
	}
	return c.commit(slices.Delete(slices.Clone(c.items), i, i+1))
}

// Active returns the prompts with positive weight as wire prompts, in order.
func (c *Collection) Active() []lyria.WeightedPrompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []lyria.WeightedPrompt
	for _, p := range c.items {
		if p.Weight > 0 {
			out = append(out, lyria.WeightedPrompt{Text: p.Text, Weight: p.Weight})
		}
	}
	return out
}
