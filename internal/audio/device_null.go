//go:build !cgo || noaudio

// This player is only used in cgo-less and noaudio builds.

package audio

import (
	"context"

	"github.com/decred/slog"
)

// nullPlayer drains frames without playing them.
type nullPlayer struct {
	frames <-chan []int16
	cancel context.CancelFunc
}

// NewDevicePlayer returns a player that discards frames.
func NewDevicePlayer(frames <-chan []int16, log slog.Logger) (Player, error) {
	return &nullPlayer{frames: frames}, nil
}

func (p *nullPlayer) Name() string { return "nullaudio" }

func (p *nullPlayer) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-p.frames:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

func (p *nullPlayer) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}
