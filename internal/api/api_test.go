package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satindergrewal/bioradio/internal/agent"
	"github.com/satindergrewal/bioradio/internal/control"
	"github.com/satindergrewal/bioradio/internal/events"
	"github.com/satindergrewal/bioradio/internal/metrics"
	"github.com/satindergrewal/bioradio/internal/playback"
	"github.com/satindergrewal/bioradio/internal/prompts"
)

type fakePlayer struct {
	mu             sync.Mutex
	state          playback.State
	calls          []string
	err            error
	promptsChanged int
	patches        []control.ConfigPatch
	settings       *control.Settings
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{settings: control.DefaultSettings()}
}

func (f *fakePlayer) do(name string, next playback.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.err != nil {
		return f.err
	}
	f.state = next
	return nil
}

func (f *fakePlayer) Play(context.Context) error   { return f.do("play", playback.Playing) }
func (f *fakePlayer) Pause(context.Context) error  { return f.do("pause", playback.Paused) }
func (f *fakePlayer) Stop(context.Context) error   { return f.do("stop", playback.Stopped) }
func (f *fakePlayer) Toggle(context.Context) error { return f.do("toggle", playback.Playing) }
func (f *fakePlayer) Reset(context.Context) error  { return f.do("reset", playback.Loading) }

func (f *fakePlayer) PromptsChanged(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.promptsChanged++
	return nil
}

func (f *fakePlayer) UpdateSettings(_ context.Context, patch control.ConfigPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, patch)
	f.settings.Apply(patch)
	return nil
}

func (f *fakePlayer) Status(context.Context) (playback.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return playback.Status{State: f.state, Settings: f.settings.Snapshot()}, nil
}

type fakeAgent struct {
	mu      sync.Mutex
	enabled bool
	mood    string
}

func (f *fakeAgent) Status() agent.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return agent.Status{Enabled: f.enabled, Mood: f.mood}
}

func (f *fakeAgent) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enabled
}

func (f *fakeAgent) SetMood(name string) error {
	if !agent.IsValidMood(name) {
		return agent.ErrUnknownMood
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mood = name
	return nil
}

type fixture struct {
	srv     *Server
	player  *fakePlayer
	agent   *fakeAgent
	prompts *prompts.Collection
	bus     *events.Bus
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := prompts.NewMemStore()
	require.NoError(t, err)
	coll, err := prompts.Open(store, nil)
	require.NoError(t, err)

	f := &fixture{
		player:  newFakePlayer(),
		agent:   &fakeAgent{enabled: true, mood: "ambient"},
		prompts: coll,
		bus:     events.NewBus(),
	}
	f.srv = New(Config{
		Player:    f.player,
		Prompts:   coll,
		Agent:     f.agent,
		Bus:       f.bus,
		Stats:     metrics.New(),
		Listeners: func() int { return 3 },
	})
	f.handler = f.srv.Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "GET", "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp struct {
		Playback struct {
			State string `json:"state"`
		} `json:"playback"`
		Agent struct {
			Enabled bool   `json:"enabled"`
			Mood    string `json:"mood"`
		} `json:"agent"`
		Listeners int `json:"listeners"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "stopped", resp.Playback.State)
	assert.True(t, resp.Agent.Enabled)
	assert.Equal(t, "ambient", resp.Agent.Mood)
	assert.Equal(t, 3, resp.Listeners)
}

func TestTransportCommands(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		path  string
		state string
	}{
		{"/api/play", "playing"},
		{"/api/pause", "paused"},
		{"/api/toggle", "playing"},
		{"/api/reset", "loading"},
		{"/api/stop", "stopped"},
	}
	for _, tc := range tests {
		w := f.do(t, "POST", tc.path, "")
		require.Equal(t, http.StatusOK, w.Code, tc.path)
		st := decode[map[string]any](t, w)
		assert.Equal(t, tc.state, st["state"], tc.path)
	}
	assert.Equal(t, []string{"play", "pause", "toggle", "reset", "stop"}, f.player.calls)
}

func TestTransportErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid transition", playback.ErrInvalidTransition, http.StatusConflict},
		{"stopped", playback.ErrStopped, http.StatusServiceUnavailable},
		{"connect failure", errors.New("dial: refused"), http.StatusBadGateway},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.player.err = tc.err

			w := f.do(t, "POST", "/api/play", "")
			assert.Equal(t, tc.code, w.Code)
			resp := decode[errorResponse](t, w)
			assert.Equal(t, tc.err.Error(), resp.Error)
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "GET", "/api/play", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "OPTIONS", "/api/prompts", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

// --- Prompts ---

func TestPromptLifecycle(t *testing.T) {
	f := newFixture(t)
	before := len(f.prompts.List())

	w := f.do(t, "POST", "/api/prompts", `{"text":"Warm Rhodes","weight":1.2,"color":"#ff0000"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	p := decode[prompts.Prompt](t, w)
	assert.Equal(t, "Warm Rhodes", p.Text)
	assert.True(t, p.Editable)
	assert.NotEmpty(t, p.ID)

	w = f.do(t, "GET", "/api/prompts", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]prompts.Prompt](t, w)
	assert.Len(t, list, before+1)

	w = f.do(t, "PATCH", "/api/prompts/"+p.ID, `{"text":"Dusty Rhodes","weight":0.4}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	p = decode[prompts.Prompt](t, w)
	assert.Equal(t, "Dusty Rhodes", p.Text)
	assert.Equal(t, 0.4, p.Weight)

	w = f.do(t, "DELETE", "/api/prompts/"+p.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Len(t, f.prompts.List(), before)

	assert.Equal(t, 3, f.player.promptsChanged)
}

func TestPromptErrors(t *testing.T) {
	f := newFixture(t)
	preset := f.prompts.List()[0]
	require.False(t, preset.Editable)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{"empty text", "POST", "/api/prompts", `{"text":"  ","weight":1}`, http.StatusBadRequest},
		{"weight too high", "POST", "/api/prompts", `{"text":"x","weight":2.5}`, http.StatusBadRequest},
		{"bad body", "POST", "/api/prompts", `{`, http.StatusBadRequest},
		{"unknown id", "PATCH", "/api/prompts/nope", `{"weight":1}`, http.StatusNotFound},
		{"preset text", "PATCH", "/api/prompts/" + preset.ID, `{"text":"Other"}`, http.StatusForbidden},
		{"delete unknown", "DELETE", "/api/prompts/nope", "", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.code, w.Code, w.Body.String())
		})
	}
	assert.Zero(t, f.player.promptsChanged)

	// Presets still take weight edits.
	w := f.do(t, "PATCH", "/api/prompts/"+preset.ID, `{"weight":1.5}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.5, decode[prompts.Prompt](t, w).Weight)
}

// --- Settings ---

func TestSettings(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "POST", "/api/settings", `{"bpm":128,"densityAuto":false,"density":0.8}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap := decode[control.SettingsSnapshot](t, w)
	require.NotNil(t, snap.Config.BPM)
	assert.Equal(t, 128, *snap.Config.BPM)
	assert.False(t, snap.DensityAuto)

	require.Len(t, f.player.patches, 1)

	w = f.do(t, "GET", "/api/settings", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 128, *decode[control.SettingsSnapshot](t, w).Config.BPM)

	w = f.do(t, "POST", "/api/settings", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Agent ---

func TestAgentControl(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "POST", "/api/agent", `{"enabled":false,"mood":"lofi"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st := decode[map[string]any](t, w)
	assert.Equal(t, false, st["enabled"])
	assert.Equal(t, "lofi", st["mood"])

	w = f.do(t, "POST", "/api/agent", `{"mood":"polka"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "GET", "/api/agent", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "lofi", decode[map[string]any](t, w)["mood"])
}

func TestAgentDisabled(t *testing.T) {
	f := newFixture(t)
	f.srv.agent = nil
	h := f.srv.Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/agent", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"agent"`)
}

// --- Misc ---

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bioradio_listeners")
}

func TestOptionalStreamRoutes(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "GET", "/stream", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	f.srv.stream = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	w = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/stream", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

// --- WebSocket ---

func TestWebSocketEvents(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() events.Event {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var ev events.Event
		require.NoError(t, json.Unmarshal(msg, &ev))
		return ev
	}

	greeting := read()
	assert.Equal(t, events.KindStatus, greeting.Kind)

	f.bus.Notice("connection lost")
	ev := read()
	assert.Equal(t, events.KindNotice, ev.Kind)
	assert.Equal(t, map[string]any{"message": "connection lost"}, ev.Data)

	assert.Equal(t, 1, f.bus.Subscribers())
	conn.Close()
	assert.Eventually(t, func() bool { return f.bus.Subscribers() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestWebSocketBusClosed(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage() // greeting
	require.NoError(t, err)

	f.bus.Close()
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived), "got %v", err)
}
