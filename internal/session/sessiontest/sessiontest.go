// Package sessiontest provides in-memory session fakes.
package sessiontest

import (
	"context"
	"sync"

	"github.com/satindergrewal/bioradio/internal/lyria"
	"github.com/satindergrewal/bioradio/internal/session"
)

// FakeConn is an in-memory session.Conn that records what was sent. Tests drive
// inbound events through the callbacks captured by FakeConnector.
type FakeConn struct {
	mu       sync.Mutex
	Prompts  [][]lyria.WeightedPrompt
	Configs  []lyria.GenerationConfig
	Commands []string
	Closed   bool
	Err      error // returned by every send when set
}

func (f *FakeConn) record(cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Commands = append(f.Commands, cmd)
	return nil
}

func (f *FakeConn) SetWeightedPrompts(_ context.Context, p []lyria.WeightedPrompt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Prompts = append(f.Prompts, append([]lyria.WeightedPrompt(nil), p...))
	return nil
}

func (f *FakeConn) SetMusicGenerationConfig(_ context.Context, c lyria.GenerationConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Configs = append(f.Configs, c.Clone())
	return nil
}

func (f *FakeConn) Play(context.Context) error         { return f.record("play") }
func (f *FakeConn) Pause(context.Context) error        { return f.record("pause") }
func (f *FakeConn) Stop(context.Context) error         { return f.record("stop") }
func (f *FakeConn) ResetContext(context.Context) error { return f.record("reset") }

func (f *FakeConn) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// SetErr makes every later send fail with err.
func (f *FakeConn) SetErr(err error) {
	f.mu.Lock()
	f.Err = err
	f.mu.Unlock()
}

// Sent returns a copy of the transport commands recorded so far.
func (f *FakeConn) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Commands...)
}

// PromptSets returns a copy of the prompt sets recorded so far.
func (f *FakeConn) PromptSets() [][]lyria.WeightedPrompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]lyria.WeightedPrompt(nil), f.Prompts...)
}

// ConfigsSent returns a copy of the configs recorded so far.
func (f *FakeConn) ConfigsSent() []lyria.GenerationConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]lyria.GenerationConfig(nil), f.Configs...)
}

// FakeConnector hands out FakeConns and keeps the callbacks of each.
type FakeConnector struct {
	mu        sync.Mutex
	Conns     []*FakeConn
	Callbacks []lyria.Callbacks
	Models    []string
	Err       error // returned by Connect when set
}

func (f *FakeConnector) Connect(_ context.Context, model string, cb lyria.Callbacks) (session.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Models = append(f.Models, model)
	if f.Err != nil {
		return nil, f.Err
	}
	c := &FakeConn{}
	f.Conns = append(f.Conns, c)
	f.Callbacks = append(f.Callbacks, cb)
	return c, nil
}

// SetErr makes later connects fail with err.
func (f *FakeConnector) SetErr(err error) {
	f.mu.Lock()
	f.Err = err
	f.mu.Unlock()
}

// Attempts returns how many connects were attempted.
func (f *FakeConnector) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Models)
}

// Last returns the newest connection and its callbacks.
func (f *FakeConnector) Last() (*FakeConn, lyria.Callbacks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Conns) == 0 {
		return nil, lyria.Callbacks{}
	}
	n := len(f.Conns) - 1
	return f.Conns[n], f.Callbacks[n]
}
