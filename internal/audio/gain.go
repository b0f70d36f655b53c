package audio

import "time"

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// Gain is an automatable gain parameter on the output clock. A ramp always
// starts from the value the parameter has at the moment the ramp is
// requested, so retargeting mid-ramp never produces a discontinuity.
//
// Gain is not safe for concurrent use; Output guards it.
type Gain struct {
	from, to   float64
	start, end time.Duration
}

// NewGain returns a gain parameter holding v.
func NewGain(v float64) *Gain {
	return &Gain{from: v, to: v}
}

// Set jumps to v immediately, cancelling any ramp in progress.
func (g *Gain) Set(v float64) {
	g.from, g.to = v, v
	g.start, g.end = 0, 0
}

// RampTo reads the current value at now and ramps from it to target over d.
func (g *Gain) RampTo(target float64, now, d time.Duration) {
	cur := g.ValueAt(now)
	if d <= 0 {
		g.Set(target)
		return
	}
	g.from, g.to = cur, target
	g.start, g.end = now, now+d
}

// Target returns the value the gain settles on once the ramp completes.
func (g *Gain) Target() float64 {
	return g.to
}

// ValueAt returns the gain value at time t.
func (g *Gain) ValueAt(t time.Duration) float64 {
	if t >= g.end || g.end == g.start {
		return g.to
	}
	if t <= g.start {
		return g.from
	}
	progress := float64(t-g.start) / float64(g.end-g.start)
	return g.from + (g.to-g.from)*Smoothstep(progress)
}
