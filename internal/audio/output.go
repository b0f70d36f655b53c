package audio

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/decred/slog"
)

type scheduledBuffer struct {
	buf   *Buffer
	start int64 // first sample frame on the output clock
}

func (s scheduledBuffer) end() int64 {
	return s.start + int64(s.buf.Frames())
}

// Output is the playback graph. Buffers scheduled at absolute positions on
// the output clock are mixed onto one timeline, scaled by a gain node and
// rendered as 20ms int16 frames at real-time rate. The clock only advances
// while the graph is running, one frame per render tick.
type Output struct {
	frameCh chan []int16
	log     slog.Logger

	mu       sync.Mutex
	queue    []scheduledBuffer
	gain     *Gain
	rendered int64 // frames of FrameSize rendered so far
	running  bool
}

// NewOutput creates a suspended output graph with its gain at zero.
func NewOutput(log slog.Logger) *Output {
	if log == nil {
		log = slog.Disabled
	}
	return &Output{
		frameCh: make(chan []int16, 100),
		log:     log,
		gain:    NewGain(0),
	}
}

// Frames returns the channel of rendered PCM frames (20ms each).
func (o *Output) Frames() <-chan []int16 {
	return o.frameCh
}

// Now returns the current position of the output clock.
func (o *Output) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now()
}

func (o *Output) now() time.Duration {
	return time.Duration(o.rendered) * FrameDuration
}

// Resume starts (or keeps) the output clock running.
func (o *Output) Resume() {
	o.mu.Lock()
	if !o.running {
		o.log.Debugf("Output resumed at %v", o.now())
	}
	o.running = true
	o.mu.Unlock()
}

// Running reports whether the output clock is advancing.
func (o *Output) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Schedule queues b to start playing at position at on the output clock.
func (o *Output) Schedule(b *Buffer, at time.Duration) {
	if b.Frames() == 0 {
		return
	}
	item := scheduledBuffer{buf: b, start: samplePos(at)}

	o.mu.Lock()
	defer o.mu.Unlock()
	i := sort.Search(len(o.queue), func(i int) bool {
		return o.queue[i].start > item.start
	})
	o.queue = append(o.queue, scheduledBuffer{})
	copy(o.queue[i+1:], o.queue[i:])
	o.queue[i] = item
}

// Pending returns the number of scheduled buffers not fully played yet.
func (o *Output) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Flush drops all scheduled audio and returns how many buffers were dropped.
func (o *Output) Flush() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := len(o.queue)
	o.queue = nil
	return n
}

// RampGain ramps the gain from its current value to target over d.
func (o *Output) RampGain(target float64, d time.Duration) {
	o.mu.Lock()
	o.gain.RampTo(target, o.now(), d)
	o.mu.Unlock()
}

// SetGain sets the gain immediately.
func (o *Output) SetGain(v float64) {
	o.mu.Lock()
	o.gain.Set(v)
	o.mu.Unlock()
}

// GainValue returns the gain at the current clock position.
func (o *Output) GainValue() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gain.ValueAt(o.now())
}

// Run renders one frame per tick while running. Blocks until ctx is cancelled.
func (o *Output) Run(ctx context.Context) {
	defer close(o.frameCh)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, ok := o.render()
		if !ok {
			continue
		}

		select {
		case o.frameCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// render mixes the next frame and advances the clock. Returns false while
// the graph is suspended.
func (o *Output) render() ([]int16, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return nil, false
	}

	s0 := o.rendered * FrameSize
	s1 := s0 + FrameSize
	mix := make([]float32, FrameSamples)

	keep := o.queue[:0]
	for _, item := range o.queue {
		if item.start < s1 {
			from := max(s0, item.start)
			to := min(s1, item.end())
			for s := from; s < to; s++ {
				src := int(s - item.start)
				dst := int(s-s0) * Channels
				for ch := 0; ch < Channels; ch++ {
					mix[dst+ch] += item.buf.sample(src, ch)
				}
			}
		}
		if item.end() > s1 {
			keep = append(keep, item)
		}
	}
	for i := len(keep); i < len(o.queue); i++ {
		o.queue[i] = scheduledBuffer{}
	}
	o.queue = keep

	frame := make([]int16, FrameSamples)
	start := o.now()
	for i := 0; i < FrameSize; i++ {
		t := start + time.Duration(i)*time.Second/SampleRate
		g := float32(o.gain.ValueAt(t))
		for ch := 0; ch < Channels; ch++ {
			frame[i*Channels+ch] = FloatToInt16(mix[i*Channels+ch] * g)
		}
	}

	o.rendered++
	return frame, true
}
