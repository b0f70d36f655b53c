package control

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/decred/slog"

	"github.com/satindergrewal/bioradio/internal/lyria"
	"github.com/satindergrewal/bioradio/internal/metrics"
	"github.com/satindergrewal/bioradio/internal/session"
)

const (
	// FillerPrompt is sent alone when nothing else is active, since the
	// generator requires at least one weighted prompt.
	FillerPrompt = "Silence"
	FillerWeight = 0.01

	// ResetPrompt replaces the agent's prompts after a user reset.
	ResetPrompt = "Ambient, calm, slow evolving pads"

	DefaultInterval = 200 * time.Millisecond

	// Dispatch channel names.
	ChannelPrompts = "prompts"
	ChannelConfig  = "config"

	sendTimeout = 10 * time.Second
)

// Sender delivers full-replace control messages to the generator.
type Sender interface {
	SetWeightedPrompts(ctx context.Context, prompts []lyria.WeightedPrompt) error
	SetMusicGenerationConfig(ctx context.Context, cfg lyria.GenerationConfig) error
}

// PromptSource supplies the user's active prompts at dispatch time.
type PromptSource interface {
	Active() []lyria.WeightedPrompt
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Sender   Sender
	User     PromptSource
	Settings *Settings
	Filtered *FilteredSet
	Interval time.Duration
	Clock    clock.Clock
	Stats    *metrics.Stats
	Log      slog.Logger

	// OnFailure is called, from the sending goroutine, when a send is
	// rejected by a live session.
	OnFailure func(channel string, err error)
}

// Dispatcher forwards prompt-set and config changes to the generator on
// two independent throttled channels. Both always send the full current
// state, so the channels need no ordering between them.
type Dispatcher struct {
	sender    Sender
	user      PromptSource
	settings  *Settings
	filtered  *FilteredSet
	stats     *metrics.Stats
	log       slog.Logger
	onFailure func(string, error)

	prompts *Throttle[[]lyria.WeightedPrompt]
	config  *Throttle[lyria.GenerationConfig]

	mu    sync.Mutex
	agent []lyria.WeightedPrompt
}

// NewDispatcher creates a dispatcher. The agent set starts empty.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Settings == nil {
		cfg.Settings = DefaultSettings()
	}
	if cfg.Filtered == nil {
		cfg.Filtered = NewFilteredSet()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}
	d := &Dispatcher{
		sender:    cfg.Sender,
		user:      cfg.User,
		settings:  cfg.Settings,
		filtered:  cfg.Filtered,
		stats:     cfg.Stats,
		log:       cfg.Log,
		onFailure: cfg.OnFailure,
	}
	d.prompts = NewThrottle(cfg.Clock, cfg.Interval, d.sendPrompts)
	d.config = NewThrottle(cfg.Clock, cfg.Interval, d.sendConfig)
	return d
}

// Settings returns the tracked settings.
func (d *Dispatcher) Settings() *Settings {
	return d.settings
}

// Filtered returns the filtered prompt set.
func (d *Dispatcher) Filtered() *FilteredSet {
	return d.filtered
}

// AgentPrompts returns a copy of the agent's current prompt set.
func (d *Dispatcher) AgentPrompts() []lyria.WeightedPrompt {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]lyria.WeightedPrompt(nil), d.agent...)
}

// SetAgentPrompts replaces the agent's prompt set and dispatches.
func (d *Dispatcher) SetAgentPrompts(prompts []lyria.WeightedPrompt) {
	cp := append([]lyria.WeightedPrompt(nil), prompts...)
	d.mu.Lock()
	d.agent = cp
	d.mu.Unlock()
	d.prompts.Call(cp)
}

// PromptsChanged dispatches after a user prompt add, edit or removal.
func (d *Dispatcher) PromptsChanged() {
	d.prompts.Call(d.AgentPrompts())
}

// UpdateConfig applies patch and dispatches the full config.
func (d *Dispatcher) UpdateConfig(patch ConfigPatch) {
	d.settings.Apply(patch)
	d.config.Call(d.settings.Config())
}

// Update applies an agent output: its prompt set and config patch.
func (d *Dispatcher) Update(prompts []lyria.WeightedPrompt, patch ConfigPatch) {
	d.SetAgentPrompts(prompts)
	if !patch.Empty() {
		d.UpdateConfig(patch)
	}
}

// Resend dispatches the full current state on both channels.
func (d *Dispatcher) Resend() {
	d.prompts.Call(d.AgentPrompts())
	d.config.Call(d.settings.Config())
}

// Filter excludes text from every later dispatch and reports whether it
// was newly added.
func (d *Dispatcher) Filter(text string) bool {
	return d.filtered.Add(text)
}

// ResetFiltered forgets all filtered texts.
func (d *Dispatcher) ResetFiltered() {
	d.filtered.Reset()
}

// Merged returns the prompt set that would be sent now.
func (d *Dispatcher) Merged() []lyria.WeightedPrompt {
	return d.merge(d.AgentPrompts())
}

// merge combines the agent set with the user's active prompts, dropping
// filtered and non-positive entries.
func (d *Dispatcher) merge(agent []lyria.WeightedPrompt) []lyria.WeightedPrompt {
	var user []lyria.WeightedPrompt
	if d.user != nil {
		user = d.user.Active()
	}
	out := make([]lyria.WeightedPrompt, 0, len(agent)+len(user))
	for _, set := range [][]lyria.WeightedPrompt{agent, user} {
		for _, p := range set {
			if p.Weight <= 0 || d.filtered.Contains(p.Text) {
				continue
			}
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = append(out, lyria.WeightedPrompt{Text: FillerPrompt, Weight: FillerWeight})
	}
	return out
}

// Stop drops pending dispatches.
func (d *Dispatcher) Stop() {
	d.prompts.Stop()
	d.config.Stop()
}

func (d *Dispatcher) sendPrompts(agent []lyria.WeightedPrompt) {
	merged := d.merge(agent)
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	d.finish(ChannelPrompts, d.sender.SetWeightedPrompts(ctx, merged))
	d.log.Tracef("Dispatched %d prompts", len(merged))
}

func (d *Dispatcher) sendConfig(cfg lyria.GenerationConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	d.finish(ChannelConfig, d.sender.SetMusicGenerationConfig(ctx, cfg))
}

func (d *Dispatcher) finish(channel string, err error) {
	if errors.Is(err, session.ErrNotConnected) {
		// State is resent on the next connect.
		d.log.Debugf("Skipping %s dispatch: not connected", channel)
		return
	}
	d.stats.Dispatch(channel, err)
	if err == nil {
		return
	}
	d.log.Warnf("Failed to dispatch %s: %v", channel, err)
	if d.onFailure != nil {
		d.onFailure(channel, err)
	}
}
