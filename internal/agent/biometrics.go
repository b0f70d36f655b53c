package agent

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrNoReading is returned by a source that has nothing to report yet.
var ErrNoReading = errors.New("no sensor reading")

// Reading is one physiological sample.
type Reading struct {
	Time            time.Time `json:"time"`
	HeartRate       float64   `json:"heartRate"`       // bpm
	HRV             float64   `json:"hrv"`             // RMSSD, ms
	SkinConductance float64   `json:"skinConductance"` // microsiemens
	Motion          float64   `json:"motion"`          // 0..1
}

// Source produces readings on demand.
type Source interface {
	Read(ctx context.Context) (Reading, error)
}

// syntheticPeriod is one full rest→activity→rest cycle.
const syntheticPeriod = 10 * time.Minute

// Synthetic generates plausible readings from a seeded random walk that
// follows a slow activity wave. The same seed and clock give the same
// sequence.
type Synthetic struct {
	clk   clock.Clock
	start time.Time

	mu  sync.Mutex
	rng *rand.Rand
	hr  float64
	eda float64
}

// NewSynthetic creates a synthetic source. A zero seed is replaced by the
// current time.
func NewSynthetic(seed int64, clk clock.Clock) *Synthetic {
	if clk == nil {
		clk = clock.New()
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Synthetic{
		clk:   clk,
		start: clk.Now(),
		rng:   newRand(seed),
		hr:    64,
		eda:   2,
	}
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

// Read advances the walk one step.
func (s *Synthetic) Read(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	now := s.clk.Now()
	phase := 2 * math.Pi * float64(now.Sub(s.start)) / float64(syntheticPeriod)
	activity := 0.5 - 0.5*math.Cos(phase) // starts at rest

	s.mu.Lock()
	defer s.mu.Unlock()

	s.hr += 0.3*(58+60*activity-s.hr) + s.rng.NormFloat64()*1.5
	s.hr = clamp(s.hr, 45, 185)
	s.eda += 0.2*(2+8*activity-s.eda) + s.rng.NormFloat64()*0.2
	s.eda = clamp(s.eda, 0.5, 20)

	hrv := clamp(95-0.9*(s.hr-55)+s.rng.NormFloat64()*3, 10, 120)
	motion := clamp(0.8*activity+s.rng.NormFloat64()*0.1, 0, 1)
	if s.rng.Float64() < 0.05 {
		motion = clamp(motion+0.4, 0, 1)
	}

	return Reading{
		Time:            now,
		HeartRate:       round1(s.hr),
		HRV:             round1(hrv),
		SkinConductance: round1(s.eda),
		Motion:          math.Round(motion*100) / 100,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
