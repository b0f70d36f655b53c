//go:build cgo && !noaudio

package audio

import (
	"fmt"

	"github.com/decred/slog"
	"github.com/gen2brain/malgo"
)

// malgoPlayer plays frames on the default playback device via miniaudio.
type malgoPlayer struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	pump   *framePump
	log    slog.Logger
}

// NewDevicePlayer opens the default playback device and feeds it frames.
func NewDevicePlayer(frames <-chan []int16, log slog.Logger) (Player, error) {
	if log == nil {
		log = slog.Disabled
	}
	if size := malgo.SampleSizeInBytes(malgo.FormatS16); size != 2 {
		return nil, fmt.Errorf("malgo S16 sample size is %d, want 2", size)
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	pump := newFramePump(frames, log)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.SampleRate = SampleRate
	deviceConfig.PeriodSizeInMilliseconds = uint32(FrameDuration.Milliseconds())
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = Channels
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, framecount uint32) {
			n := int(framecount) * Channels * 2
			if n > len(out) {
				n = len(out)
			}
			pump.fill(out[:n])
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("init playback device: %w", err)
	}

	return &malgoPlayer{ctx: mctx, device: device, pump: pump, log: log}, nil
}

func (p *malgoPlayer) Name() string { return "malgo" }

func (p *malgoPlayer) Start() error {
	if err := p.device.Start(); err != nil {
		return fmt.Errorf("start playback device: %w", err)
	}
	p.log.Infof("Local playback started (%d Hz, %d ch)", SampleRate, Channels)
	return nil
}

func (p *malgoPlayer) Close() error {
	p.device.Uninit()
	if err := p.ctx.Uninit(); err != nil {
		return err
	}
	p.ctx.Free()
	return nil
}
