package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/decred/slog"

	"github.com/satindergrewal/bioradio/internal/audio"
	"github.com/satindergrewal/bioradio/internal/control"
	"github.com/satindergrewal/bioradio/internal/events"
	"github.com/satindergrewal/bioradio/internal/lyria"
	"github.com/satindergrewal/bioradio/internal/metrics"
	"github.com/satindergrewal/bioradio/internal/session"
)

const (
	DefaultBufferTime = 2 * time.Second
	DefaultGainRamp   = 100 * time.Millisecond
	DefaultResetDelay = 100 * time.Millisecond

	// DefaultConnectTimeout bounds a dial. Dials do not inherit the caller's
	// context, so an abandoned request cannot fail the connection.
	DefaultConnectTimeout = 15 * time.Second

	// filteredTextLen bounds the quoted prompt in a filtered notice.
	filteredTextLen = 60

	noticeConnectionLost = "Connection error, please restart audio."
)

// ErrStopped is returned by commands once the event loop has exited.
var ErrStopped = errors.New("controller stopped")

// Graph is the output graph the controller drives.
type Graph interface {
	audio.Graph
	Resume()
	Flush() int
	RampGain(target float64, d time.Duration)
	GainValue() float64
}

// Config configures a Controller.
type Config struct {
	Connector session.Connector
	Model     string
	Output    Graph
	User      control.PromptSource
	Settings  *control.Settings

	BufferTime       time.Duration
	GainRamp         time.Duration
	ResetDelay       time.Duration
	ThrottleInterval time.Duration
	ConnectTimeout   time.Duration

	Clock clock.Clock
	Bus   *events.Bus
	Stats *metrics.Stats

	Log        slog.Logger
	SessionLog slog.Logger
	ControlLog slog.Logger

	// OnError reports connection failures, for example to an error tracker.
	OnError func(error)
}

// Status is a snapshot of the controller for the API.
type Status struct {
	State           State                    `json:"state"`
	Connected       bool                     `json:"connected"`
	ConnectionError bool                     `json:"connectionError"`
	NextStart       time.Duration            `json:"nextStart"`
	Gain            float64                  `json:"gain"`
	AgentPrompts    []lyria.WeightedPrompt   `json:"agentPrompts"`
	Merged          []lyria.WeightedPrompt   `json:"merged"`
	Filtered        []string                 `json:"filtered"`
	Settings        control.SettingsSnapshot `json:"settings"`
}

// Controller ties the session, scheduler, dispatcher and state machine
// together. All state is owned by one event loop goroutine started by Run:
// commands, session events, timers and dispatch failures are closures run
// on that loop in order.
type Controller struct {
	machine    *Machine
	sessions   *session.Manager
	dispatcher *control.Dispatcher
	sched      *audio.Scheduler
	out        Graph
	clock      clock.Clock
	bus        *events.Bus
	stats      *metrics.Stats
	log        slog.Logger
	onError    func(error)

	gainRamp       time.Duration
	resetDelay     time.Duration
	connectTimeout time.Duration

	events chan func()
	quit   chan struct{}

	// Owned by the loop.
	primeSeq uint64
	resetSeq uint64
	fadeSeq  uint64
}

// NewController builds a controller. Call Run to start its loop.
func NewController(cfg Config) *Controller {
	if cfg.BufferTime <= 0 {
		cfg.BufferTime = DefaultBufferTime
	}
	if cfg.GainRamp <= 0 {
		cfg.GainRamp = DefaultGainRamp
	}
	if cfg.ResetDelay <= 0 {
		cfg.ResetDelay = DefaultResetDelay
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}
	if cfg.Model == "" {
		cfg.Model = lyria.DefaultModel
	}

	c := &Controller{
		machine:        NewMachine(),
		sched:          audio.NewScheduler(cfg.Output, cfg.BufferTime),
		out:            cfg.Output,
		clock:          cfg.Clock,
		bus:            cfg.Bus,
		stats:          cfg.Stats,
		log:            cfg.Log,
		onError:        cfg.OnError,
		gainRamp:       cfg.GainRamp,
		resetDelay:     cfg.ResetDelay,
		connectTimeout: cfg.ConnectTimeout,
		events:         make(chan func(), 64),
		quit:           make(chan struct{}),
	}
	c.sessions = session.NewManager(cfg.Connector, cfg.Model, c, cfg.SessionLog)
	c.dispatcher = control.NewDispatcher(control.DispatcherConfig{
		Sender:    c.sessions,
		User:      cfg.User,
		Settings:  cfg.Settings,
		Interval:  cfg.ThrottleInterval,
		Clock:     cfg.Clock,
		Stats:     cfg.Stats,
		Log:       cfg.ControlLog,
		OnFailure: c.dispatchFailed,
	})

	c.stats.SetState(Stopped.String(), stateNames())
	c.machine.Observe(c.transitioned)
	return c
}

func stateNames() []string {
	names := make([]string, len(States))
	for i, s := range States {
		names[i] = s.String()
	}
	return names
}

// Machine returns the state machine, for registering observers.
func (c *Controller) Machine() *Machine {
	return c.machine
}

// Dispatcher returns the control-plane dispatcher.
func (c *Controller) Dispatcher() *control.Dispatcher {
	return c.dispatcher
}

// State returns the current playback state.
func (c *Controller) State() State {
	return c.machine.State()
}

// Run processes events until ctx is done, then drops the session.
func (c *Controller) Run(ctx context.Context) error {
	defer func() {
		close(c.quit)
		c.dispatcher.Stop()
		c.sessions.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-c.events:
			fn()
		}
	}
}

// post queues fn on the loop, blocking until it is accepted.
func (c *Controller) post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.quit:
	}
}

// do runs fn on the loop and waits for its result.
func (c *Controller) do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	select {
	case c.events <- func() { done <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.quit:
		return ErrStopped
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.quit:
		return ErrStopped
	}
}

func (c *Controller) transitioned(tr Transition) {
	if tr.From != tr.To {
		c.log.Infof("Playback %v -> %v (%v)", tr.From, tr.To, tr.Trigger)
	}
	c.stats.SetState(tr.To.String(), stateNames())
	c.bus.Publish(events.KindState, events.StateChange{
		From:    tr.From.String(),
		To:      tr.To.String(),
		Trigger: tr.Trigger.String(),
	})
}

func (c *Controller) notice(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.log.Warnf("Notice: %s", msg)
	c.bus.Notice(msg)
}

func (c *Controller) reportError(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}

// --- Commands ---

// Play starts playback, connecting first if needed.
func (c *Controller) Play(ctx context.Context) error {
	return c.do(ctx, func() error {
		c.resetSeq++
		return c.play(ctx)
	})
}

// Pause pauses playback. Only valid while playing.
func (c *Controller) Pause(ctx context.Context) error {
	return c.do(ctx, func() error {
		c.resetSeq++
		return c.pause(ctx)
	})
}

// Stop stops playback.
func (c *Controller) Stop(ctx context.Context) error {
	return c.do(ctx, func() error {
		c.resetSeq++
		return c.stop(ctx)
	})
}

// Toggle pauses while playing, plays while paused or stopped and stops
// while loading.
func (c *Controller) Toggle(ctx context.Context) error {
	return c.do(ctx, func() error {
		c.resetSeq++
		switch c.machine.State() {
		case Playing:
			return c.pause(ctx)
		case Loading:
			return c.stop(ctx)
		default:
			return c.play(ctx)
		}
	})
}

// Reset pauses, clears the generator's context and the agent prompts,
// then resumes after a short delay unless another command intervenes.
func (c *Controller) Reset(ctx context.Context) error {
	return c.do(ctx, func() error {
		c.resetSeq++
		return c.reset(ctx)
	})
}

// PromptsChanged dispatches after a user prompt add, edit or removal.
func (c *Controller) PromptsChanged(ctx context.Context) error {
	return c.do(ctx, func() error {
		c.dispatcher.PromptsChanged()
		c.bus.Publish(events.KindPrompts, c.dispatcher.Merged())
		return nil
	})
}

// UpdateSettings applies a user settings patch.
func (c *Controller) UpdateSettings(ctx context.Context, patch control.ConfigPatch) error {
	return c.do(ctx, func() error {
		c.dispatcher.UpdateConfig(patch)
		c.bus.Publish(events.KindSettings, c.dispatcher.Settings().Snapshot())
		return nil
	})
}

// ApplyAgentUpdate applies the agent's prompt set and config patch through
// the same paths as user edits.
func (c *Controller) ApplyAgentUpdate(ctx context.Context, prompts []lyria.WeightedPrompt, patch control.ConfigPatch) error {
	return c.do(ctx, func() error {
		c.dispatcher.Update(prompts, patch)
		c.bus.Publish(events.KindAgent, prompts)
		if !patch.Empty() {
			c.bus.Publish(events.KindSettings, c.dispatcher.Settings().Snapshot())
		}
		return nil
	})
}

// Status returns a snapshot taken on the loop.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, func() error {
		st = Status{
			State:           c.machine.State(),
			Connected:       c.sessions.Connected(),
			ConnectionError: c.sessions.ConnectionError(),
			NextStart:       c.sched.NextStart(),
			Gain:            c.out.GainValue(),
			AgentPrompts:    c.dispatcher.AgentPrompts(),
			Merged:          c.dispatcher.Merged(),
			Filtered:        c.dispatcher.Filtered().List(),
			Settings:        c.dispatcher.Settings().Snapshot(),
		}
		return nil
	})
	return st, err
}

// --- Loop-side operations ---

func (c *Controller) connect() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.connectTimeout)
	defer cancel()
	err := c.sessions.Connect(ctx)
	c.stats.Connect(err)
	if err != nil {
		c.log.Errorf("Connect failed: %v", err)
		c.reportError(err)
		c.forceStop()
		c.notice("Failed to connect: %v", err)
		return err
	}
	c.dispatcher.ResetFiltered()
	c.dispatcher.Resend()
	return nil
}

// invalidate drops the cursor and any pending lookahead timer.
func (c *Controller) invalidate() {
	c.sched.Reset()
	c.primeSeq++
}

func (c *Controller) play(ctx context.Context) error {
	if !c.machine.Can(TriggerPlay) {
		return nil
	}
	if !c.sessions.Connected() {
		if err := c.connect(); err != nil {
			return err
		}
	}
	if _, err := c.machine.Fire(TriggerPlay); err != nil {
		return err
	}

	c.fadeSeq++
	c.out.Resume()
	c.out.Flush()
	c.invalidate()
	c.out.RampGain(1, c.gainRamp)

	if err := c.sessions.Play(ctx); err != nil {
		c.notice("Failed to start playback: %v", err)
		c.failSafe()
		return err
	}
	return nil
}

func (c *Controller) pause(ctx context.Context) error {
	if !c.machine.Can(TriggerPause) {
		_, err := c.machine.Fire(TriggerPause)
		return err
	}
	if err := c.sessions.Pause(ctx); err != nil {
		c.notice("Failed to pause: %v", err)
	}
	c.machine.Fire(TriggerPause)
	c.invalidate()
	c.out.RampGain(0, c.gainRamp)
	return nil
}

func (c *Controller) stop(ctx context.Context) error {
	if !c.machine.Can(TriggerStop) {
		_, err := c.machine.Fire(TriggerStop)
		return err
	}
	if c.sessions.Connected() {
		if err := c.sessions.Stop(ctx); err != nil {
			c.notice("Failed to stop: %v", err)
		}
	}
	c.machine.Fire(TriggerStop)
	c.invalidate()
	c.fadeOut()
	return nil
}

func (c *Controller) reset(ctx context.Context) error {
	seq := c.resetSeq
	if !c.sessions.Connected() || c.sessions.ConnectionError() {
		if err := c.connect(); err != nil {
			return err
		}
	}

	c.machine.Fire(TriggerReset)
	c.invalidate()
	c.out.RampGain(0, c.gainRamp)

	if err := c.sessions.Pause(ctx); err != nil {
		c.notice("Failed to pause: %v", err)
	}
	if err := c.sessions.ResetContext(ctx); err != nil {
		c.notice("Failed to reset context: %v", err)
	}
	c.dispatcher.ResetFiltered()
	c.dispatcher.SetAgentPrompts([]lyria.WeightedPrompt{{Text: control.ResetPrompt, Weight: 1}})
	c.bus.Publish(events.KindPrompts, c.dispatcher.Merged())

	c.clock.AfterFunc(c.resetDelay, func() {
		c.post(func() {
			if c.resetSeq != seq || c.machine.State() != Paused {
				return
			}
			if err := c.play(context.Background()); err != nil {
				c.log.Warnf("Resume after reset failed: %v", err)
			}
		})
	})
	return nil
}

// forceStop moves to Stopped from any state and silences output.
func (c *Controller) forceStop() {
	c.resetSeq++
	c.machine.Fire(TriggerFatal)
	c.invalidate()
	c.fadeOut()
}

// fadeOut ramps the gain to zero and drops the scheduled audio once the
// ramp is over, unless playback restarted in the meantime.
func (c *Controller) fadeOut() {
	c.out.RampGain(0, c.gainRamp)
	c.fadeSeq++
	seq := c.fadeSeq
	c.clock.AfterFunc(c.gainRamp, func() {
		c.post(func() {
			if c.fadeSeq != seq || c.machine.State() != Stopped {
				return
			}
			if n := c.out.Flush(); n > 0 {
				c.log.Debugf("Dropped %d scheduled buffers after stop", n)
			}
		})
	})
}

// failSafe pauses after a failed send on a live link.
func (c *Controller) failSafe() {
	if !c.machine.Can(TriggerFailSafe) {
		return
	}
	c.machine.Fire(TriggerFailSafe)
	c.invalidate()
	c.out.RampGain(0, c.gainRamp)
}

func (c *Controller) dispatchFailed(channel string, err error) {
	// Called from a dispatch, which may itself be running on the loop.
	go c.post(func() {
		c.notice("Failed to update %s: %v", channel, err)
		if c.machine.Can(TriggerFailSafe) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := c.sessions.Pause(ctx); err != nil {
				c.log.Warnf("Fail-safe pause: %v", err)
			}
			c.failSafe()
		}
	})
}

// --- session.Handler ---

func (c *Controller) SetupComplete() {
	c.log.Debugf("Setup complete")
}

func (c *Controller) FilteredPrompt(text, reason string) {
	c.post(func() {
		if !c.dispatcher.Filter(text) {
			return
		}
		c.stats.Filtered()
		c.bus.Publish(events.KindFiltered, events.Filtered{Text: text, Reason: reason})
		c.notice("Prompt filtered (%s): %q", reason, events.Truncate(text, filteredTextLen))
		c.dispatcher.PromptsChanged()
	})
}

func (c *Controller) AudioChunk(data string) {
	c.post(func() { c.handleChunk(data) })
}

func (c *Controller) ConnectionLost(err error) {
	c.post(func() {
		c.reportError(err)
		c.forceStop()
		c.notice(noticeConnectionLost)
	})
}

func (c *Controller) handleChunk(data string) {
	c.stats.ChunkReceived()

	switch c.machine.State() {
	case Paused, Stopped:
		c.stats.ChunkDropped(metrics.DropGated)
		return
	}

	buf, err := audio.DecodeChunk(data, audio.SampleRate, audio.Channels)
	if err != nil {
		c.log.Debugf("Dropping chunk: %v", err)
		c.stats.ChunkDropped(metrics.DropDecode)
		return
	}

	p := c.sched.Enqueue(buf)
	switch p.Outcome {
	case audio.Primed:
		c.stats.Primed()
		c.stats.ChunkScheduled()
		c.armLookahead()
	case audio.Scheduled:
		c.stats.ChunkScheduled()
	case audio.Underrun:
		c.log.Debugf("Underrun, re-priming")
		c.stats.Underrun()
		c.stats.ChunkDropped(metrics.DropUnderrun)
		c.primeSeq++
		c.machine.Fire(TriggerUnderrun)
	}
}

// armLookahead moves loading to playing once the lookahead elapses, unless
// a newer prime or a state change supersedes it.
func (c *Controller) armLookahead() {
	c.primeSeq++
	seq := c.primeSeq
	c.clock.AfterFunc(c.sched.BufferTime(), func() {
		c.post(func() {
			if c.primeSeq != seq || c.machine.State() != Loading {
				return
			}
			c.machine.Fire(TriggerLookahead)
		})
	})
}
