// Package api serves the player's HTTP JSON API and websocket event feed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/decred/slog"

	"github.com/satindergrewal/bioradio/internal/agent"
	"github.com/satindergrewal/bioradio/internal/control"
	"github.com/satindergrewal/bioradio/internal/events"
	"github.com/satindergrewal/bioradio/internal/metrics"
	"github.com/satindergrewal/bioradio/internal/playback"
	"github.com/satindergrewal/bioradio/internal/prompts"
)

// Player is the playback controller as seen by the API.
type Player interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Toggle(ctx context.Context) error
	Reset(ctx context.Context) error
	PromptsChanged(ctx context.Context) error
	UpdateSettings(ctx context.Context, patch control.ConfigPatch) error
	Status(ctx context.Context) (playback.Status, error)
}

// Agent is the optional agent control surface.
type Agent interface {
	Status() agent.Status
	SetEnabled(enabled bool)
	SetMood(name string) error
}

// Config configures a Server.
type Config struct {
	Player  Player
	Prompts *prompts.Collection
	Agent   Agent // optional
	Bus     *events.Bus
	Stats   *metrics.Stats

	Stream    http.Handler // optional MP3 stream
	Offer     http.Handler // optional WebRTC offer endpoint
	Listeners func() int   // optional remote listener count

	Log slog.Logger
}

// Server routes API requests.
type Server struct {
	player    Player
	prompts   *prompts.Collection
	agent     Agent
	bus       *events.Bus
	stats     *metrics.Stats
	stream    http.Handler
	offer     http.Handler
	listeners func() int
	log       slog.Logger
}

// New creates a server.
func New(cfg Config) *Server {
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}
	return &Server{
		player:    cfg.Player,
		prompts:   cfg.Prompts,
		agent:     cfg.Agent,
		bus:       cfg.Bus,
		stats:     cfg.Stats,
		stream:    cfg.Stream,
		offer:     cfg.Offer,
		listeners: cfg.Listeners,
		log:       cfg.Log,
	}
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/play", s.command(Player.Play))
	mux.HandleFunc("POST /api/pause", s.command(Player.Pause))
	mux.HandleFunc("POST /api/stop", s.command(Player.Stop))
	mux.HandleFunc("POST /api/toggle", s.command(Player.Toggle))
	mux.HandleFunc("POST /api/reset", s.command(Player.Reset))

	mux.HandleFunc("GET /api/prompts", s.handleListPrompts)
	mux.HandleFunc("POST /api/prompts", s.handleAddPrompt)
	mux.HandleFunc("PATCH /api/prompts/{id}", s.handleUpdatePrompt)
	mux.HandleFunc("DELETE /api/prompts/{id}", s.handleRemovePrompt)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("POST /api/settings", s.handleUpdateSettings)

	mux.HandleFunc("GET /api/agent", s.handleGetAgent)
	mux.HandleFunc("POST /api/agent", s.handleUpdateAgent)

	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.Handle("GET /metrics", s.stats.Handler())
	if s.stream != nil {
		mux.Handle("GET /stream", s.stream)
	}
	if s.offer != nil {
		mux.Handle("POST /offer", s.offer)
	}

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, playback.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, playback.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, prompts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, prompts.ErrNotEditable):
		return http.StatusForbidden
	case errors.Is(err, prompts.ErrEmptyText), errors.Is(err, prompts.ErrInvalidWeight),
		errors.Is(err, agent.ErrUnknownMood):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// --- Playback ---

type statusResponse struct {
	Playback  playback.Status `json:"playback"`
	Agent     *agent.Status   `json:"agent,omitempty"`
	Listeners int             `json:"listeners"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.player.Status(r.Context())
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	resp := statusResponse{Playback: st}
	if s.agent != nil {
		as := s.agent.Status()
		resp.Agent = &as
	}
	if s.listeners != nil {
		resp.Listeners = s.listeners()
	}
	writeJSON(w, http.StatusOK, resp)
}

// command runs a transport command and replies with the new status.
func (s *Server) command(fn func(Player, context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(s.player, r.Context()); err != nil {
			s.log.Debugf("%s %s: %v", r.Method, r.URL.Path, err)
			writeError(w, errorStatus(err), err)
			return
		}
		st, err := s.player.Status(r.Context())
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// --- Prompts ---

type addPromptRequest struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
	Color  string  `json:"color"`
}

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.prompts.List())
}

func (s *Server) handleAddPrompt(w http.ResponseWriter, r *http.Request) {
	var req addPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	p, err := s.prompts.Add(req.Text, req.Weight, req.Color)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	s.promptsChanged(r.Context())
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	var patch prompts.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	p, err := s.prompts.Update(r.PathValue("id"), patch)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	s.promptsChanged(r.Context())
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleRemovePrompt(w http.ResponseWriter, r *http.Request) {
	if err := s.prompts.Remove(r.PathValue("id")); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	s.promptsChanged(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// promptsChanged tells the player after a collection edit. The edit is
// already saved, so a stopped player is only logged.
func (s *Server) promptsChanged(ctx context.Context) {
	if err := s.player.PromptsChanged(ctx); err != nil {
		s.log.Warnf("Unable to dispatch prompt change: %v", err)
	}
}

// --- Settings ---

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.player.Status(r.Context())
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, st.Settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch control.ConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if err := s.player.UpdateSettings(r.Context(), patch); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	s.handleGetSettings(w, r)
}

// --- Agent ---

type agentRequest struct {
	Enabled *bool   `json:"enabled"`
	Mood    *string `json:"mood"`
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		writeError(w, http.StatusNotFound, errors.New("agent disabled"))
		return
	}
	writeJSON(w, http.StatusOK, s.agent.Status())
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		writeError(w, http.StatusNotFound, errors.New("agent disabled"))
		return
	}
	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if req.Mood != nil {
		if err := s.agent.SetMood(*req.Mood); err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
	}
	if req.Enabled != nil {
		s.agent.SetEnabled(*req.Enabled)
	}
	writeJSON(w, http.StatusOK, s.agent.Status())
}
