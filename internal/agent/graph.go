package agent

import (
	"math"
	"math/rand/v2"
	"sort"
)

// Mood is a node in the mood graph. Energy runs from 0 (resting) to 1
// (peak activity) and is what the composer steers toward.
type Mood struct {
	Name     string
	Energy   float64
	BPM      int
	Adjacent []string
}

// MoodGraph maps mood names to nodes. Moves only follow edges so the music
// never jumps across the graph between two cycles.
var MoodGraph = map[string]*Mood{
	"deep rest": {
		Name: "deep rest", Energy: 0.05, BPM: 60,
		Adjacent: []string{"ambient", "meditative piano"},
	},
	"ambient": {
		Name: "ambient", Energy: 0.15, BPM: 64,
		Adjacent: []string{"deep rest", "meditative piano", "chillwave"},
	},
	"meditative piano": {
		Name: "meditative piano", Energy: 0.2, BPM: 66,
		Adjacent: []string{"deep rest", "ambient", "neo-classical"},
	},
	"neo-classical": {
		Name: "neo-classical", Energy: 0.3, BPM: 76,
		Adjacent: []string{"meditative piano", "cinematic", "lofi"},
	},
	"chillwave": {
		Name: "chillwave", Energy: 0.35, BPM: 84,
		Adjacent: []string{"ambient", "lofi", "synthwave"},
	},
	"lofi": {
		Name: "lofi", Energy: 0.4, BPM: 82,
		Adjacent: []string{"neo-classical", "chillwave", "bossa nova", "trip hop"},
	},
	"bossa nova": {
		Name: "bossa nova", Energy: 0.45, BPM: 96,
		Adjacent: []string{"lofi", "jazz funk"},
	},
	"trip hop": {
		Name: "trip hop", Energy: 0.5, BPM: 92,
		Adjacent: []string{"lofi", "cinematic", "synthwave"},
	},
	"cinematic": {
		Name: "cinematic", Energy: 0.6, BPM: 100,
		Adjacent: []string{"neo-classical", "trip hop", "electronic"},
	},
	"synthwave": {
		Name: "synthwave", Energy: 0.65, BPM: 110,
		Adjacent: []string{"chillwave", "trip hop", "electronic"},
	},
	"jazz funk": {
		Name: "jazz funk", Energy: 0.7, BPM: 112,
		Adjacent: []string{"bossa nova", "electronic", "drum and bass"},
	},
	"electronic": {
		Name: "electronic", Energy: 0.8, BPM: 124,
		Adjacent: []string{"cinematic", "synthwave", "jazz funk", "drum and bass"},
	},
	"drum and bass": {
		Name: "drum and bass", Energy: 0.95, BPM: 174,
		Adjacent: []string{"jazz funk", "electronic"},
	},
}

// MoodNames returns all mood names, sorted by energy.
func MoodNames() []string {
	names := make([]string, 0, len(MoodGraph))
	for name := range MoodGraph {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := MoodGraph[names[i]], MoodGraph[names[j]]
		if a.Energy != b.Energy {
			return a.Energy < b.Energy
		}
		return a.Name < b.Name
	})
	return names
}

// IsValidMood checks if a mood exists in the graph.
func IsValidMood(name string) bool {
	_, ok := MoodGraph[name]
	return ok
}

// Step moves one edge from current toward the target energy. It stays on
// current when no neighbour is closer. Unknown moods are returned unchanged.
func Step(current string, target float64) string {
	m, ok := MoodGraph[current]
	if !ok {
		return current
	}
	best, gap := current, math.Abs(m.Energy-target)
	for _, name := range m.Adjacent {
		if d := math.Abs(MoodGraph[name].Energy - target); d < gap {
			best, gap = name, d
		}
	}
	return best
}

// driftBand is how far from the target energy a drift move may land.
const driftBand = 0.15

// Drift picks a random neighbour that still suits the target energy, so a
// steady listener hears variety. It falls back to Step when no neighbour
// is within driftBand.
func Drift(current string, target float64, rng *rand.Rand) string {
	m, ok := MoodGraph[current]
	if !ok {
		return current
	}
	var fits []string
	for _, name := range m.Adjacent {
		if math.Abs(MoodGraph[name].Energy-target) <= driftBand {
			fits = append(fits, name)
		}
	}
	if len(fits) == 0 {
		return Step(current, target)
	}
	return fits[rng.IntN(len(fits))]
}
