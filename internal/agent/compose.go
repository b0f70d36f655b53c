package agent

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/satindergrewal/bioradio/internal/control"
	"github.com/satindergrewal/bioradio/internal/lyria"
)

// Analysis is the analyst's view of one reading.
type Analysis struct {
	Arousal float64 `json:"arousal"` // 0 calm .. 1 excited
	Stress  float64 `json:"stress"`  // 0 relaxed .. 1 strained
	Label   string  `json:"label"`
}

// Analysis labels.
const (
	LabelResting  = "resting"
	LabelCalm     = "calm"
	LabelEngaged  = "engaged"
	LabelActive   = "active"
	LabelStressed = "stressed"
)

// Analyze derives arousal and stress from a reading. Heart rate dominates
// arousal; low HRV and high skin conductance raise stress, and movement
// discounts it since exercise explains both.
func Analyze(r Reading) Analysis {
	hr := clamp((r.HeartRate-50)/80, 0, 1)
	eda := clamp((r.SkinConductance-1)/14, 0, 1)
	hrv := clamp((r.HRV-15)/85, 0, 1)
	motion := clamp(r.Motion, 0, 1)

	a := Analysis{
		Arousal: round2(0.55*hr + 0.25*eda + 0.2*motion),
		Stress:  round2((0.6*(1-hrv) + 0.4*eda) * (1 - 0.5*motion)),
	}
	switch {
	case a.Stress >= 0.7:
		a.Label = LabelStressed
	case a.Arousal < 0.2:
		a.Label = LabelResting
	case a.Arousal < 0.45:
		a.Label = LabelCalm
	case a.Arousal < 0.7:
		a.Label = LabelEngaged
	default:
		a.Label = LabelActive
	}
	return a
}

// TargetEnergy is the mood energy the composer steers toward. Stress pulls
// the target down so the music leads the listener toward calm.
func TargetEnergy(a Analysis) float64 {
	if a.Label == LabelStressed {
		return round2(a.Arousal * 0.6)
	}
	return a.Arousal
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Prompt weights.
const (
	leadWeight    = 1.0
	textureWeight = 0.6
	calmingWeight = 0.5
	restingWeight = 0.4
	refinedWeight = 0.7
)

// urgentGap forces a move before the dwell time ends.
const urgentGap = 0.3

// Composition is one agent output.
type Composition struct {
	Mood    string
	Prompts []lyria.WeightedPrompt
	Patch   control.ConfigPatch
}

// composer walks the mood graph. Not safe for concurrent use.
type composer struct {
	clk      clock.Clock
	rng      *rand.Rand
	dwellMin time.Duration
	dwellMax time.Duration

	mood     string
	dwellEnd time.Time
}

func newComposer(clk clock.Clock, rng *rand.Rand, start string, dwellMin, dwellMax time.Duration) *composer {
	c := &composer{
		clk:      clk,
		rng:      rng,
		dwellMin: dwellMin,
		dwellMax: dwellMax,
		mood:     start,
	}
	c.resetDwell()
	return c
}

// resetDwell sets a new random dwell deadline.
func (c *composer) resetDwell() {
	spread := c.dwellMax - c.dwellMin
	dwell := c.dwellMin
	if spread > 0 {
		dwell += time.Duration(c.rng.Int64N(int64(spread)))
	}
	c.dwellEnd = c.clk.Now().Add(dwell)
}

func (c *composer) setMood(name string) {
	c.mood = name
	c.resetDwell()
}

func (c *composer) dwellRemaining() time.Duration {
	return max(c.dwellEnd.Sub(c.clk.Now()), 0)
}

// compose picks the next mood and builds the prompt set and config patch.
func (c *composer) compose(a Analysis) Composition {
	target := TargetEnergy(a)
	cur := MoodGraph[c.mood]
	switch {
	case cur == nil:
	case math.Abs(cur.Energy-target) > urgentGap:
		c.setMood(Step(c.mood, target))
	case !c.clk.Now().Before(c.dwellEnd):
		c.setMood(Drift(c.mood, target, c.rng))
	}

	prompts := []lyria.WeightedPrompt{{Text: Describe(c.mood), Weight: leadWeight}}
	if t := Texture(c.mood, c.rng); t != "" {
		prompts = append(prompts, lyria.WeightedPrompt{Text: t, Weight: textureWeight})
	}
	switch a.Label {
	case LabelStressed:
		prompts = append(prompts, lyria.WeightedPrompt{Text: "Soothing, slow breathing pace", Weight: calmingWeight})
	case LabelResting:
		prompts = append(prompts, lyria.WeightedPrompt{Text: "Soft and sparse", Weight: restingWeight})
	}

	bpm := 100
	if m := MoodGraph[c.mood]; m != nil {
		bpm = m.BPM + int(math.Round((a.Arousal-m.Energy)*20))
	}
	bpm = min(max(bpm, 60), 200)

	return Composition{
		Mood:    c.mood,
		Prompts: prompts,
		Patch: control.ConfigPatch{
			BPM:        lyria.Ptr(bpm),
			Density:    lyria.Ptr(round2(0.15 + 0.7*a.Arousal)),
			Brightness: lyria.Ptr(round2(0.25 + 0.6*(1-a.Stress))),
		},
	}
}
