package control

import (
	"sync"

	"github.com/satindergrewal/bioradio/internal/lyria"
)

// AutoKnob is a generation knob that is either left to the generator (auto)
// or pinned to a value (manual). The last manual value is remembered while
// auto so switching back restores it.
type AutoKnob struct {
	manual bool
	last   float64
}

// Auto returns a knob in auto mode remembering fallback as its manual value.
func Auto(fallback float64) AutoKnob {
	return AutoKnob{last: fallback}
}

// Manual returns a knob pinned to v.
func Manual(v float64) AutoKnob {
	return AutoKnob{manual: true, last: v}
}

// IsAuto reports whether the knob is left to the generator.
func (k AutoKnob) IsAuto() bool {
	return !k.manual
}

// Last returns the remembered manual value.
func (k AutoKnob) Last() float64 {
	return k.last
}

// Wire returns the value to transmit: nil while auto.
func (k AutoKnob) Wire() *float64 {
	if !k.manual {
		return nil
	}
	v := k.last
	return &v
}

// Apply updates the knob from an optional value and an optional auto flag.
// A value without a flag pins the knob; a flag without a value switches
// mode and keeps the remembered value.
func (k AutoKnob) Apply(value *float64, auto *bool) AutoKnob {
	if value != nil {
		k.last = *value
		k.manual = true
	}
	if auto != nil {
		k.manual = !*auto
	}
	return k
}

// ConfigPatch is a partial settings update from a user or the agent.
type ConfigPatch struct {
	Temperature         *float64 `json:"temperature,omitempty"`
	TopK                *int     `json:"topK,omitempty"`
	Seed                *int     `json:"seed,omitempty"`
	Guidance            *float64 `json:"guidance,omitempty"`
	BPM                 *int     `json:"bpm,omitempty"`
	Density             *float64 `json:"density,omitempty"`
	DensityAuto         *bool    `json:"densityAuto,omitempty"`
	Brightness          *float64 `json:"brightness,omitempty"`
	BrightnessAuto      *bool    `json:"brightnessAuto,omitempty"`
	Scale               *string  `json:"scale,omitempty"`
	MuteBass            *bool    `json:"muteBass,omitempty"`
	MuteDrums           *bool    `json:"muteDrums,omitempty"`
	OnlyBassAndDrums    *bool    `json:"onlyBassAndDrums,omitempty"`
	MusicGenerationMode *string  `json:"musicGenerationMode,omitempty"`

	// Clear lists fields to unset, by JSON name.
	Clear []string `json:"clear,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ConfigPatch) Empty() bool {
	return p.Temperature == nil && p.TopK == nil && p.Seed == nil &&
		p.Guidance == nil && p.BPM == nil && p.Density == nil &&
		p.DensityAuto == nil && p.Brightness == nil && p.BrightnessAuto == nil &&
		p.Scale == nil && p.MuteBass == nil && p.MuteDrums == nil &&
		p.OnlyBassAndDrums == nil && p.MusicGenerationMode == nil && len(p.Clear) == 0
}

// SettingsSnapshot is the tracked settings as reported to the UI.
type SettingsSnapshot struct {
	Config         lyria.GenerationConfig `json:"config"`
	DensityAuto    bool                   `json:"densityAuto"`
	DensityLast    float64                `json:"densityLast"`
	BrightnessAuto bool                   `json:"brightnessAuto"`
	BrightnessLast float64                `json:"brightnessLast"`
}

// Settings tracks the generation config. Density and brightness are kept
// as AutoKnobs outside the transmitted config.
type Settings struct {
	mu         sync.Mutex
	base       lyria.GenerationConfig
	density    AutoKnob
	brightness AutoKnob
}

// DefaultSettings mirrors the generator's defaults with both auto knobs on.
func DefaultSettings() *Settings {
	return &Settings{
		base: lyria.GenerationConfig{
			Temperature: lyria.Ptr(1.1),
			TopK:        lyria.Ptr(40),
			Guidance:    lyria.Ptr(4.0),
		},
		density:    Auto(0.5),
		brightness: Auto(0.5),
	}
}

// Apply merges p into the tracked settings.
func (s *Settings) Apply(p ConfigPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range p.Clear {
		s.clear(name)
	}
	b := &s.base
	if p.Temperature != nil {
		b.Temperature = lyria.Ptr(*p.Temperature)
	}
	if p.TopK != nil {
		b.TopK = lyria.Ptr(*p.TopK)
	}
	if p.Seed != nil {
		b.Seed = lyria.Ptr(*p.Seed)
	}
	if p.Guidance != nil {
		b.Guidance = lyria.Ptr(*p.Guidance)
	}
	if p.BPM != nil {
		b.BPM = lyria.Ptr(*p.BPM)
	}
	if p.Scale != nil {
		b.Scale = *p.Scale
	}
	if p.MuteBass != nil {
		b.MuteBass = lyria.Ptr(*p.MuteBass)
	}
	if p.MuteDrums != nil {
		b.MuteDrums = lyria.Ptr(*p.MuteDrums)
	}
	if p.OnlyBassAndDrums != nil {
		b.OnlyBassAndDrums = lyria.Ptr(*p.OnlyBassAndDrums)
	}
	if p.MusicGenerationMode != nil {
		b.MusicGenerationMode = *p.MusicGenerationMode
	}
	s.density = s.density.Apply(p.Density, p.DensityAuto)
	s.brightness = s.brightness.Apply(p.Brightness, p.BrightnessAuto)
}

func (s *Settings) clear(name string) {
	b := &s.base
	switch name {
	case "temperature":
		b.Temperature = nil
	case "topK":
		b.TopK = nil
	case "seed":
		b.Seed = nil
	case "guidance":
		b.Guidance = nil
	case "bpm":
		b.BPM = nil
	case "scale":
		b.Scale = ""
	case "muteBass":
		b.MuteBass = nil
	case "muteDrums":
		b.MuteDrums = nil
	case "onlyBassAndDrums":
		b.OnlyBassAndDrums = nil
	case "musicGenerationMode":
		b.MusicGenerationMode = ""
	}
}

// Config returns the config to transmit. Auto knobs are omitted.
func (s *Settings) Config() lyria.GenerationConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.base.Clone()
	cfg.Density = s.density.Wire()
	cfg.Brightness = s.brightness.Wire()
	return cfg
}

// Snapshot returns the config plus the knob modes.
func (s *Settings) Snapshot() SettingsSnapshot {
	cfg := s.Config()
	s.mu.Lock()
	defer s.mu.Unlock()
	return SettingsSnapshot{
		Config:         cfg,
		DensityAuto:    s.density.IsAuto(),
		DensityLast:    s.density.Last(),
		BrightnessAuto: s.brightness.IsAuto(),
		BrightnessLast: s.brightness.Last(),
	}
}

// Density and Brightness return the knobs.
func (s *Settings) Density() AutoKnob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.density
}

func (s *Settings) Brightness() AutoKnob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brightness
}
