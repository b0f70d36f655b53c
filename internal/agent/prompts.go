package agent

import "math/rand/v2"

// descriptions maps each mood to its lead prompt. Short phrases steer the
// generator better than long captions; all are instrumental.
var descriptions = map[string]string{
	"deep rest":        "Slow drifting drones, soft sine pads, no percussion, very spacious",
	"ambient":          "Ethereal ambient pads, gentle reverb, slow evolving textures",
	"meditative piano": "Sparse felt piano, long sustain, quiet room tone, meditative",
	"neo-classical":    "Neo-classical strings and piano, flowing arpeggios, tender and reflective",
	"chillwave":        "Hazy chillwave synths, soft drum machine, warm tape saturation",
	"lofi":             "Lofi beat, dusty piano chords, vinyl crackle, mellow boom bap drums",
	"bossa nova":       "Bossa nova nylon guitar, brushed percussion, relaxed Brazilian groove",
	"trip hop":         "Trip hop breakbeat, deep bass, moody Rhodes, smoky late night feel",
	"cinematic":        "Cinematic orchestral swell, rising strings, steady taiko pulse",
	"synthwave":        "Synthwave analog arpeggios, gated drums, neon night drive",
	"jazz funk":        "Jazz funk clavinet, slap bass, tight horn stabs, upbeat groove",
	"electronic":       "Driving electronic groove, four on the floor kick, bright plucks",
	"drum and bass":    "Liquid drum and bass, rolling sub bass, fast breakbeats",
}

// Describe returns the lead prompt for a mood.
func Describe(mood string) string {
	if d, ok := descriptions[mood]; ok {
		return d
	}
	return mood + " instrumental, warm balanced mix"
}

// textures gives each mood a pool of secondary prompts so consecutive
// cycles do not send identical sets.
var textures = map[string][]string{
	"deep rest":        {"distant wind chimes", "low cello drone", "ocean swell"},
	"ambient":          {"shimmering granular pads", "soft airy pads", "glassy bells"},
	"meditative piano": {"soft rain ambience", "warm upright bass notes", "singing bowl"},
	"neo-classical":    {"solo violin melody", "muted piano hammers", "pizzicato strings"},
	"chillwave":        {"dreamy guitar chorus", "pastel synth leads", "washed out synth chops"},
	"lofi":             {"rainy window ambience", "jazzy guitar licks", "tape wobble"},
	"bossa nova":       {"soft flute melody", "shaker groove", "warm upright bass"},
	"trip hop":         {"scratched vinyl textures", "muted trumpet", "dark string pads"},
	"cinematic":        {"brass swells", "distant timpani rolls", "ticking clock percussion"},
	"synthwave":        {"chrome lead synth", "pulsing bassline", "retro tom fills"},
	"jazz funk":        {"wah guitar", "electric piano solo", "congas"},
	"electronic":       {"sidechained pads", "acid bassline", "euphoric chord stabs"},
	"drum and bass":    {"reese bass", "atmospheric pads", "amen break chops"},
}

// Texture returns a random secondary prompt for a mood, or "" when the mood
// has none.
func Texture(mood string, rng *rand.Rand) string {
	pool := textures[mood]
	if len(pool) == 0 {
		return ""
	}
	return pool[rng.IntN(len(pool))]
}
