package audio

import (
	"sync"

	"github.com/decred/slog"
)

// Player plays rendered frames on a local output device.
type Player interface {
	Start() error
	Close() error
	Name() string
}

// framePump adapts a channel of 20ms frames to a device data callback that
// asks for an arbitrary number of bytes. Missing data is filled with
// silence and counted as a stall.
type framePump struct {
	frames <-chan []int16
	log    slog.Logger

	mu      sync.Mutex
	pending []byte
	stalls  int
}

func newFramePump(frames <-chan []int16, log slog.Logger) *framePump {
	if log == nil {
		log = slog.Disabled
	}
	return &framePump{frames: frames, log: log}
}

// fill writes len(out) bytes of little-endian int16 PCM into out.
func (p *framePump) fill(out []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.pending) < len(out) {
		select {
		case frame, ok := <-p.frames:
			if !ok {
				p.frames = nil
				continue
			}
			p.pending = append(p.pending, SamplesToBytes(frame)...)
			continue
		default:
		}
		break
	}

	n := copy(out, p.pending)
	p.pending = p.pending[n:]
	if n < len(out) {
		clear(out[n:])
		p.stalls++
		if p.stalls%250 == 1 {
			p.log.Debugf("Device stalled waiting for frames (%d stalls)", p.stalls)
		}
	}
}
