package audio

import "time"

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Buffer is a decoded block of normalized float PCM, interleaved by channel.
type Buffer struct {
	Samples    []float32
	Channels   int
	SampleRate int
}

// Frames returns the number of sample frames (samples per channel).
func (b *Buffer) Frames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// sample returns the value of channel ch at frame i, upmixing mono sources.
func (b *Buffer) sample(i, ch int) float32 {
	if b.Channels == 1 {
		return b.Samples[i]
	}
	if ch >= b.Channels {
		ch = b.Channels - 1
	}
	return b.Samples[i*b.Channels+ch]
}

// samplePos converts a position on the output clock to a sample frame index.
// Whole seconds are scaled apart from the remainder so the product stays in
// range for any realistic uptime.
func samplePos(d time.Duration) int64 {
	sec, rem := d/time.Second, d%time.Second
	return int64(sec)*SampleRate + (int64(rem)*SampleRate+int64(time.Second)/2)/int64(time.Second)
}
