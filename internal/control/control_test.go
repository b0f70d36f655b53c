package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satindergrewal/bioradio/internal/lyria"
	"github.com/satindergrewal/bioradio/internal/session"
)

const waitFor = time.Second

// --- Throttle ---

type calls[T any] struct {
	mu  sync.Mutex
	got []T
}

func (c *calls[T]) add(v T) {
	c.mu.Lock()
	c.got = append(c.got, v)
	c.mu.Unlock()
}

func (c *calls[T]) list() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.got...)
}

func TestThrottleLeadingEdge(t *testing.T) {
	mock := clock.NewMock()
	var c calls[int]
	th := NewThrottle(mock, 200*time.Millisecond, c.add)

	th.Call(1)
	assert.Equal(t, []int{1}, c.list(), "first call must fire immediately")
	assert.False(t, th.Pending())
}

func TestThrottleCoalescesToLastValue(t *testing.T) {
	mock := clock.NewMock()
	var c calls[int]
	th := NewThrottle(mock, 200*time.Millisecond, c.add)

	th.Call(1)
	for i := 2; i <= 10; i++ {
		th.Call(i)
	}
	assert.Equal(t, []int{1}, c.list())
	assert.True(t, th.Pending())

	mock.Add(200 * time.Millisecond)
	require.Eventually(t, func() bool { return len(c.list()) == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, []int{1, 10}, c.list())

	// The trailing call opened a new window; a quiet one closes it.
	mock.Add(200 * time.Millisecond)
	require.Eventually(t, func() bool {
		th.mu.Lock()
		defer th.mu.Unlock()
		return th.timer == nil
	}, waitFor, time.Millisecond)

	th.Call(11)
	assert.Equal(t, []int{1, 10, 11}, c.list())
}

func TestThrottleOneDispatchPerWindow(t *testing.T) {
	mock := clock.NewMock()
	var c calls[int]
	th := NewThrottle(mock, 100*time.Millisecond, c.add)

	th.Call(0)
	for w := 1; w <= 3; w++ {
		th.Call(w * 10)
		th.Call(w*10 + 1)
		mock.Add(100 * time.Millisecond)
		want := w + 1
		require.Eventually(t, func() bool { return len(c.list()) == want }, waitFor, time.Millisecond)
	}
	assert.Equal(t, []int{0, 11, 21, 31}, c.list())
}

func TestThrottleStop(t *testing.T) {
	mock := clock.NewMock()
	var c calls[int]
	th := NewThrottle(mock, 100*time.Millisecond, c.add)

	th.Call(1)
	th.Call(2)
	th.Stop()
	mock.Add(time.Second)
	th.Call(3)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, []int{1}, c.list())
}

// --- AutoKnob / Settings ---

func TestAutoKnobRoundTrip(t *testing.T) {
	k := Auto(0.5)
	assert.True(t, k.IsAuto())
	assert.Nil(t, k.Wire())

	x := 0.8
	k = k.Apply(&x, nil)
	require.NotNil(t, k.Wire())
	assert.Equal(t, 0.8, *k.Wire())

	yes, no := true, false
	k = k.Apply(nil, &yes)
	assert.True(t, k.IsAuto())
	assert.Nil(t, k.Wire(), "auto knob must not transmit")
	assert.Equal(t, 0.8, k.Last())

	k = k.Apply(nil, &no)
	require.NotNil(t, k.Wire())
	assert.Equal(t, 0.8, *k.Wire())
}

func TestAutoKnobValueWhileAuto(t *testing.T) {
	yes := true
	v := 0.3
	k := Manual(0.9).Apply(&v, &yes)
	assert.True(t, k.IsAuto())
	assert.Equal(t, 0.3, k.Last())
}

func TestSettingsConfigOmitsAutoKnobs(t *testing.T) {
	s := DefaultSettings()
	cfg := s.Config()
	assert.Nil(t, cfg.Density)
	assert.Nil(t, cfg.Brightness)
	require.NotNil(t, cfg.Temperature)

	s.Apply(ConfigPatch{
		Density:  lyria.Ptr(0.2),
		BPM:      lyria.Ptr(120),
		Scale:    lyria.Ptr(lyria.ScaleDMajor),
		MuteBass: lyria.Ptr(true),
		Clear:    []string{"temperature"},
	})
	cfg = s.Config()
	require.NotNil(t, cfg.Density)
	assert.Equal(t, 0.2, *cfg.Density)
	assert.Nil(t, cfg.Brightness)
	assert.Equal(t, 120, *cfg.BPM)
	assert.Equal(t, lyria.ScaleDMajor, cfg.Scale)
	assert.True(t, *cfg.MuteBass)
	assert.Nil(t, cfg.Temperature)

	snap := s.Snapshot()
	assert.False(t, snap.DensityAuto)
	assert.True(t, snap.BrightnessAuto)
	assert.Equal(t, 0.5, snap.BrightnessLast)
}

func TestConfigPatchEmpty(t *testing.T) {
	assert.True(t, ConfigPatch{}.Empty())
	assert.False(t, ConfigPatch{DensityAuto: lyria.Ptr(true)}.Empty())
	assert.False(t, ConfigPatch{Clear: []string{"bpm"}}.Empty())
}

// --- FilteredSet ---

func TestFilteredSet(t *testing.T) {
	f := NewFilteredSet()
	assert.True(t, f.Add("b"))
	assert.True(t, f.Add("a"))
	assert.False(t, f.Add("a"))
	assert.Equal(t, []string{"a", "b"}, f.List())
	f.Reset()
	assert.False(t, f.Contains("a"))
}

// --- Dispatcher ---

type fakeSender struct {
	mu      sync.Mutex
	prompts [][]lyria.WeightedPrompt
	configs []lyria.GenerationConfig
	err     error
}

func (s *fakeSender) SetWeightedPrompts(_ context.Context, p []lyria.WeightedPrompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.prompts = append(s.prompts, p)
	return nil
}

func (s *fakeSender) SetMusicGenerationConfig(_ context.Context, c lyria.GenerationConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.configs = append(s.configs, c)
	return nil
}

func (s *fakeSender) promptSets() [][]lyria.WeightedPrompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]lyria.WeightedPrompt(nil), s.prompts...)
}

func (s *fakeSender) configSets() []lyria.GenerationConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]lyria.GenerationConfig(nil), s.configs...)
}

type staticPrompts struct {
	mu sync.Mutex
	ps []lyria.WeightedPrompt
}

func (s *staticPrompts) Active() []lyria.WeightedPrompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []lyria.WeightedPrompt
	for _, p := range s.ps {
		if p.Weight > 0 {
			out = append(out, p)
		}
	}
	return out
}

func (s *staticPrompts) set(ps ...lyria.WeightedPrompt) {
	s.mu.Lock()
	s.ps = ps
	s.mu.Unlock()
}

type dispatchFixture struct {
	d      *Dispatcher
	sender *fakeSender
	user   *staticPrompts
	mock   *clock.Mock

	mu       sync.Mutex
	failures []string
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	f := &dispatchFixture{
		sender: &fakeSender{},
		user:   &staticPrompts{},
		mock:   clock.NewMock(),
	}
	f.d = NewDispatcher(DispatcherConfig{
		Sender: f.sender,
		User:   f.user,
		Clock:  f.mock,
		OnFailure: func(channel string, err error) {
			f.mu.Lock()
			f.failures = append(f.failures, channel)
			f.mu.Unlock()
		},
	})
	t.Cleanup(f.d.Stop)
	return f
}

func (f *dispatchFixture) failureList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.failures...)
}

func TestEmptySetSubstitution(t *testing.T) {
	f := newDispatchFixture(t)
	f.user.set(lyria.WeightedPrompt{Text: "muted", Weight: 0})
	f.d.SetAgentPrompts([]lyria.WeightedPrompt{{Text: "zero", Weight: 0}})

	sets := f.sender.promptSets()
	require.Len(t, sets, 1)
	assert.Equal(t, []lyria.WeightedPrompt{{Text: FillerPrompt, Weight: FillerWeight}}, sets[0])
}

func TestMergeOrderAgentThenUser(t *testing.T) {
	f := newDispatchFixture(t)
	f.user.set(
		lyria.WeightedPrompt{Text: "user a", Weight: 0.7},
		lyria.WeightedPrompt{Text: "user b", Weight: 0},
	)
	f.d.SetAgentPrompts([]lyria.WeightedPrompt{{Text: "agent", Weight: 1}})

	assert.Equal(t, []lyria.WeightedPrompt{
		{Text: "agent", Weight: 1},
		{Text: "user a", Weight: 0.7},
	}, f.sender.promptSets()[0])
}

func TestFilteredPromptStaysExcluded(t *testing.T) {
	f := newDispatchFixture(t)
	f.d.Filter("banned")

	for i, w := range []float64{0.5, 1, 2} {
		f.user.set(lyria.WeightedPrompt{Text: "banned", Weight: w}, lyria.WeightedPrompt{Text: "ok", Weight: 1})
		f.d.PromptsChanged()
		if i > 0 {
			f.mock.Add(DefaultInterval)
		}
		want := i + 1
		require.Eventually(t, func() bool { return len(f.sender.promptSets()) == want }, waitFor, time.Millisecond)
	}
	for _, set := range f.sender.promptSets() {
		for _, p := range set {
			assert.NotEqual(t, "banned", p.Text)
		}
	}

	f.d.ResetFiltered()
	assert.Contains(t, f.d.Merged(), lyria.WeightedPrompt{Text: "banned", Weight: 2})
}

func TestDispatcherCoalescesPromptChanges(t *testing.T) {
	f := newDispatchFixture(t)
	f.d.SetAgentPrompts([]lyria.WeightedPrompt{{Text: "v0", Weight: 1}})
	for i := 1; i <= 5; i++ {
		f.d.SetAgentPrompts([]lyria.WeightedPrompt{{Text: fmt.Sprintf("v%d", i), Weight: 1}})
	}
	require.Len(t, f.sender.promptSets(), 1)

	f.mock.Add(DefaultInterval)
	require.Eventually(t, func() bool { return len(f.sender.promptSets()) == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, "v5", f.sender.promptSets()[1][0].Text)
}

func TestConfigChannelIndependent(t *testing.T) {
	f := newDispatchFixture(t)
	f.d.SetAgentPrompts([]lyria.WeightedPrompt{{Text: "a", Weight: 1}})
	f.d.UpdateConfig(ConfigPatch{Density: lyria.Ptr(0.9)})

	require.Len(t, f.sender.configSets(), 1, "config channel has its own window")
	cfg := f.sender.configSets()[0]
	require.NotNil(t, cfg.Density)
	assert.Equal(t, 0.9, *cfg.Density)
	assert.Nil(t, cfg.Brightness)
}

func TestAgentUpdateAppliesBoth(t *testing.T) {
	f := newDispatchFixture(t)
	f.d.Update([]lyria.WeightedPrompt{{Text: "calm", Weight: 1}}, ConfigPatch{BPM: lyria.Ptr(70)})
	require.Len(t, f.sender.promptSets(), 1)
	require.Len(t, f.sender.configSets(), 1)
	assert.Equal(t, 70, *f.sender.configSets()[0].BPM)

	f.d.Update([]lyria.WeightedPrompt{{Text: "calmer", Weight: 1}}, ConfigPatch{})
	assert.Len(t, f.sender.configSets(), 1, "empty patch sends no config")
}

func TestDispatchFailureCallsHook(t *testing.T) {
	f := newDispatchFixture(t)
	f.sender.err = errors.New("broken pipe")
	f.d.SetAgentPrompts(nil)
	f.d.UpdateConfig(ConfigPatch{})
	assert.Equal(t, []string{ChannelPrompts, ChannelConfig}, f.failureList())
}

func TestNotConnectedIsSilent(t *testing.T) {
	f := newDispatchFixture(t)
	f.sender.err = fmt.Errorf("wrapped: %w", session.ErrNotConnected)
	f.d.Resend()
	assert.Empty(t, f.failureList())
}
