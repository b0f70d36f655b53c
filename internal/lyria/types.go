package lyria

import "fmt"

// DefaultModel is the realtime music model the radio streams from.
const DefaultModel = "models/lyria-realtime-exp"

// WeightedPrompt is a text tag with its relative influence on generation.
type WeightedPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// Scale values accepted by the generator.
const (
	ScaleUnspecified = "SCALE_UNSPECIFIED"
	ScaleCMajor      = "C_MAJOR_A_MINOR"
	ScaleDbMajor     = "D_FLAT_MAJOR_B_FLAT_MINOR"
	ScaleDMajor      = "D_MAJOR_B_MINOR"
	ScaleEbMajor     = "E_FLAT_MAJOR_C_MINOR"
	ScaleEMajor      = "E_MAJOR_D_FLAT_MINOR"
	ScaleFMajor      = "F_MAJOR_D_MINOR"
	ScaleGbMajor     = "G_FLAT_MAJOR_E_FLAT_MINOR"
	ScaleGMajor      = "G_MAJOR_E_MINOR"
	ScaleAbMajor     = "A_FLAT_MAJOR_F_MINOR"
	ScaleAMajor      = "A_MAJOR_G_FLAT_MINOR"
	ScaleBbMajor     = "B_FLAT_MAJOR_G_MINOR"
	ScaleBMajor      = "B_MAJOR_A_FLAT_MINOR"
)

// Generation modes.
const (
	ModeQuality   = "QUALITY"
	ModeDiversity = "DIVERSITY"
	ModeVocalizer = "VOCALIZATION"
)

// GenerationConfig is the sparse set of generation knobs. Nil fields are
// omitted on the wire and left to the generator.
type GenerationConfig struct {
	Temperature         *float64 `json:"temperature,omitempty"`
	TopK                *int     `json:"topK,omitempty"`
	Seed                *int     `json:"seed,omitempty"`
	Guidance            *float64 `json:"guidance,omitempty"`
	BPM                 *int     `json:"bpm,omitempty"`
	Density             *float64 `json:"density,omitempty"`
	Brightness          *float64 `json:"brightness,omitempty"`
	Scale               string   `json:"scale,omitempty"`
	MuteBass            *bool    `json:"muteBass,omitempty"`
	MuteDrums           *bool    `json:"muteDrums,omitempty"`
	OnlyBassAndDrums    *bool    `json:"onlyBassAndDrums,omitempty"`
	MusicGenerationMode string   `json:"musicGenerationMode,omitempty"`
}

// Clone returns a deep copy so callers can keep mutating the original.
func (c GenerationConfig) Clone() GenerationConfig {
	out := c
	out.Temperature = clonePtr(c.Temperature)
	out.TopK = clonePtr(c.TopK)
	out.Seed = clonePtr(c.Seed)
	out.Guidance = clonePtr(c.Guidance)
	out.BPM = clonePtr(c.BPM)
	out.Density = clonePtr(c.Density)
	out.Brightness = clonePtr(c.Brightness)
	out.MuteBass = clonePtr(c.MuteBass)
	out.MuteDrums = clonePtr(c.MuteDrums)
	out.OnlyBassAndDrums = clonePtr(c.OnlyBassAndDrums)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v, for building sparse configs.
func Ptr[T any](v T) *T {
	return &v
}

// PlaybackControl commands.
type PlaybackControl string

const (
	ControlPlay         PlaybackControl = "PLAY"
	ControlPause        PlaybackControl = "PAUSE"
	ControlStop         PlaybackControl = "STOP"
	ControlResetContext PlaybackControl = "RESET_CONTEXT"
)

// --- Client -> server ---

type setupMessage struct {
	Setup struct {
		Model string `json:"model"`
	} `json:"setup"`
}

type clientContentMessage struct {
	ClientContent struct {
		WeightedPrompts []WeightedPrompt `json:"weightedPrompts"`
	} `json:"clientContent"`
}

type configMessage struct {
	MusicGenerationConfig GenerationConfig `json:"musicGenerationConfig"`
}

type controlMessage struct {
	PlaybackControl PlaybackControl `json:"playbackControl"`
}

// --- Server -> client ---

// ServerMessage is one inbound frame. Any subset of the fields may be set.
type ServerMessage struct {
	SetupComplete  *struct{}       `json:"setupComplete,omitempty"`
	ServerContent  *ServerContent  `json:"serverContent,omitempty"`
	FilteredPrompt *FilteredPrompt `json:"filteredPrompt,omitempty"`
	Warning        string          `json:"warning,omitempty"`
}

// ServerContent carries generated audio.
type ServerContent struct {
	AudioChunks []AudioChunk `json:"audioChunks"`
}

// AudioChunk is base64 encoded 16-bit PCM.
type AudioChunk struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType,omitempty"`
}

// FilteredPrompt reports a prompt the generator refused.
type FilteredPrompt struct {
	Text           string `json:"text"`
	FilteredReason string `json:"filteredReason"`
}

// CloseEvent describes how a session ended.
type CloseEvent struct {
	Code   int
	Reason string
	Clean  bool
}

func (e CloseEvent) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("websocket closed (code %d)", e.Code)
	}
	return fmt.Sprintf("websocket closed (code %d): %s", e.Code, e.Reason)
}

// Callbacks receive inbound session events. They are called from the
// session's read goroutine, one at a time, in arrival order.
type Callbacks struct {
	OnMessage func(*ServerMessage)
	OnError   func(error)
	OnClose   func(CloseEvent)
}
