// Package agent simulates a small multi-agent pipeline: a sensor agent
// samples biometrics, an analyst scores them and a composer turns the
// result into a weighted prompt set and config patch for the player.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/decred/slog"

	"github.com/satindergrewal/bioradio/internal/control"
	"github.com/satindergrewal/bioradio/internal/events"
	"github.com/satindergrewal/bioradio/internal/lyria"
	"github.com/satindergrewal/bioradio/internal/metrics"
)

const (
	DefaultInterval  = 5 * time.Second
	DefaultStartMood = "ambient"
	DefaultDwellMin  = time.Minute
	DefaultDwellMax  = 3 * time.Minute

	refineTimeout = 15 * time.Second
)

// ErrUnknownMood is returned when a mood is not in the graph.
var ErrUnknownMood = errors.New("unknown mood")

// Updater receives each cycle's output.
type Updater interface {
	ApplyAgentUpdate(ctx context.Context, prompts []lyria.WeightedPrompt, patch control.ConfigPatch) error
}

// RefineRequest describes the current composition to a Refiner.
type RefineRequest struct {
	Mood        string
	Description string
	Analysis    Analysis
	Previous    string
}

// Refiner writes one extra descriptive prompt, usually with an LLM.
type Refiner interface {
	Refine(ctx context.Context, req RefineRequest) (string, error)
}

// Config configures an Agent.
type Config struct {
	Source  Source
	Updater Updater
	Refiner Refiner // optional

	Interval  time.Duration
	StartMood string
	DwellMin  time.Duration
	DwellMax  time.Duration
	Seed      int64

	Clock clock.Clock
	Bus   *events.Bus
	Stats *metrics.Stats
	Log   slog.Logger
}

// CycleStats counts cycles. The average covers successful cycles only.
type CycleStats struct {
	Total      int     `json:"total"`
	Successful int     `json:"successful"`
	Failed     int     `json:"failed"`
	AvgCycleMs float64 `json:"avgCycleMs"`
}

// Status is a snapshot of the agent.
type Status struct {
	Enabled        bool                   `json:"enabled"`
	Mood           string                 `json:"mood"`
	DwellRemaining float64                `json:"dwellRemaining"` // seconds
	Reading        *Reading               `json:"reading,omitempty"`
	Analysis       *Analysis              `json:"analysis,omitempty"`
	Prompts        []lyria.WeightedPrompt `json:"prompts,omitempty"`
	Refined        string                 `json:"refined,omitempty"`
	LastError      string                 `json:"lastError,omitempty"`
	Stats          CycleStats             `json:"stats"`
}

// Agent runs the pipeline on a timer.
type Agent struct {
	source   Source
	updater  Updater
	refiner  Refiner
	interval time.Duration
	clk      clock.Clock
	bus      *events.Bus
	stats    *metrics.Stats
	log      slog.Logger

	// cycleMu serializes cycles; mu guards the fields below it.
	cycleMu sync.Mutex
	mu      sync.Mutex
	comp    *composer
	enabled bool
	reading *Reading
	last    *Analysis
	prompts []lyria.WeightedPrompt
	refined string
	lastErr string
	counts  CycleStats
	avg     time.Duration
}

// New creates an agent. Source and Updater are required.
func New(cfg Config) (*Agent, error) {
	if cfg.Source == nil || cfg.Updater == nil {
		return nil, errors.New("agent: source and updater are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.StartMood == "" {
		cfg.StartMood = DefaultStartMood
	}
	if !IsValidMood(cfg.StartMood) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMood, cfg.StartMood)
	}
	if cfg.DwellMin <= 0 {
		cfg.DwellMin = DefaultDwellMin
	}
	if cfg.DwellMax < cfg.DwellMin {
		cfg.DwellMax = max(DefaultDwellMax, cfg.DwellMin)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	return &Agent{
		source:   cfg.Source,
		updater:  cfg.Updater,
		refiner:  cfg.Refiner,
		interval: cfg.Interval,
		clk:      cfg.Clock,
		bus:      cfg.Bus,
		stats:    cfg.Stats,
		log:      cfg.Log,
		comp:     newComposer(cfg.Clock, newRand(cfg.Seed), cfg.StartMood, cfg.DwellMin, cfg.DwellMax),
		enabled:  true,
	}, nil
}

// SetEnabled turns the agent on or off. A disabled agent skips its cycles.
func (a *Agent) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	if enabled {
		a.comp.resetDwell()
	}
	a.mu.Unlock()
	a.log.Infof("Agent enabled: %v", enabled)
}

// SetMood overrides the current mood. The composer moves on from there.
func (a *Agent) SetMood(name string) error {
	if !IsValidMood(name) {
		return fmt.Errorf("%w: %q", ErrUnknownMood, name)
	}
	a.mu.Lock()
	a.comp.setMood(name)
	a.mu.Unlock()
	a.log.Infof("Mood manually set to: %s", name)
	return nil
}

// Status returns the current agent state.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := Status{
		Enabled:        a.enabled,
		Mood:           a.comp.mood,
		DwellRemaining: a.comp.dwellRemaining().Seconds(),
		Prompts:        append([]lyria.WeightedPrompt(nil), a.prompts...),
		Refined:        a.refined,
		LastError:      a.lastErr,
		Stats:          a.counts,
	}
	if a.reading != nil {
		r := *a.reading
		st.Reading = &r
	}
	if a.last != nil {
		an := *a.last
		st.Analysis = &an
	}
	return st
}

// Run cycles immediately and then every interval until ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	a.log.Infof("Agent started, cycling every %v", a.interval)

	ticker := a.clk.Ticker(a.interval)
	defer ticker.Stop()

	for {
		a.mu.Lock()
		enabled := a.enabled
		a.mu.Unlock()
		if enabled {
			if err := a.Cycle(ctx); err != nil && ctx.Err() == nil {
				a.log.Warnf("Agent cycle failed: %v", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cycle runs the pipeline once: read, analyze, compose, optionally refine
// and hand the result to the updater.
func (a *Agent) Cycle(ctx context.Context) error {
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()

	start := a.clk.Now()
	err := a.cycle(ctx)

	a.mu.Lock()
	a.counts.Total++
	if err != nil {
		a.counts.Failed++
		a.lastErr = err.Error()
	} else {
		a.counts.Successful++
		a.lastErr = ""
		a.avg += (a.clk.Since(start) - a.avg) / time.Duration(a.counts.Successful)
		a.counts.AvgCycleMs = float64(a.avg) / float64(time.Millisecond)
	}
	a.mu.Unlock()

	a.stats.AgentCycle(err == nil)
	if err == nil {
		a.bus.Publish(events.KindBiometrics, a.Status())
	}
	return err
}

func (a *Agent) cycle(ctx context.Context) error {
	reading, err := a.source.Read(ctx)
	if err != nil {
		return fmt.Errorf("read sensors: %w", err)
	}
	analysis := Analyze(reading)

	a.mu.Lock()
	prevMood := a.comp.mood
	comp := a.comp.compose(analysis)
	prevRefined := a.refined
	a.mu.Unlock()

	if comp.Mood != prevMood {
		a.log.Infof("Mood transition: %s -> %s (%s, arousal %.2f)",
			prevMood, comp.Mood, analysis.Label, analysis.Arousal)
	}

	refined := a.refine(ctx, RefineRequest{
		Mood:        comp.Mood,
		Description: Describe(comp.Mood),
		Analysis:    analysis,
		Previous:    prevRefined,
	})
	if refined != "" {
		comp.Prompts = append(comp.Prompts, lyria.WeightedPrompt{Text: refined, Weight: refinedWeight})
	}

	if err := a.updater.ApplyAgentUpdate(ctx, comp.Prompts, comp.Patch); err != nil {
		return fmt.Errorf("apply update: %w", err)
	}

	a.mu.Lock()
	a.reading = &reading
	a.last = &analysis
	a.prompts = comp.Prompts
	if refined != "" {
		a.refined = refined
	}
	a.mu.Unlock()

	a.log.Debugf("Cycle: %s hr=%.0f arousal=%.2f stress=%.2f prompts=%d",
		comp.Mood, reading.HeartRate, analysis.Arousal, analysis.Stress, len(comp.Prompts))
	return nil
}

// refine asks the refiner for an extra prompt. Failures only lose the
// extra prompt.
func (a *Agent) refine(ctx context.Context, req RefineRequest) string {
	if a.refiner == nil {
		return ""
	}
	rctx, cancel := context.WithTimeout(ctx, refineTimeout)
	defer cancel()
	text, err := a.refiner.Refine(rctx, req)
	if err != nil {
		a.log.Warnf("Prompt refinement failed: %v", err)
		return ""
	}
	text = strings.TrimSpace(text)
	if text == "" || strings.EqualFold(text, req.Previous) {
		return ""
	}
	return text
}
