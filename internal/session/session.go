package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/decred/slog"

	"github.com/satindergrewal/bioradio/internal/lyria"
)

var ErrNotConnected = errors.New("not connected")

// Conn is a live generator session.
type Conn interface {
	SetWeightedPrompts(ctx context.Context, prompts []lyria.WeightedPrompt) error
	SetMusicGenerationConfig(ctx context.Context, cfg lyria.GenerationConfig) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	ResetContext(ctx context.Context) error
	Close() error
}

// Connector opens generator sessions.
type Connector interface {
	Connect(ctx context.Context, model string, cb lyria.Callbacks) (Conn, error)
}

// ConnectorFunc adapts a function to a Connector.
type ConnectorFunc func(ctx context.Context, model string, cb lyria.Callbacks) (Conn, error)

func (f ConnectorFunc) Connect(ctx context.Context, model string, cb lyria.Callbacks) (Conn, error) {
	return f(ctx, model, cb)
}

// LyriaConnector opens sessions with a websocket client.
func LyriaConnector(c *lyria.Client) Connector {
	return ConnectorFunc(func(ctx context.Context, model string, cb lyria.Callbacks) (Conn, error) {
		s, err := c.Connect(ctx, model, cb)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// Handler receives inbound session events. Calls arrive from the session's
// read goroutine in arrival order and must not block for long.
type Handler interface {
	SetupComplete()
	FilteredPrompt(text, reason string)
	AudioChunk(data string)
	ConnectionLost(err error)
}

type route struct {
	name    string
	present func(*lyria.ServerMessage) bool
	handle  func(*lyria.ServerMessage)
}

// Manager owns the single generator session and its connectivity flags.
// Events from sessions that were replaced or closed are ignored.
type Manager struct {
	connector Connector
	model     string
	handler   Handler
	log       slog.Logger

	routes []route

	mu      sync.Mutex
	conn    Conn
	gen     uint64
	connErr bool
}

// NewManager creates a disconnected manager.
func NewManager(connector Connector, model string, h Handler, log slog.Logger) *Manager {
	if log == nil {
		log = slog.Disabled
	}
	m := &Manager{
		connector: connector,
		model:     model,
		handler:   h,
		log:       log,
	}
	m.routes = []route{{
		name:    "setupComplete",
		present: func(msg *lyria.ServerMessage) bool { return msg.SetupComplete != nil },
		handle: func(*lyria.ServerMessage) {
			m.mu.Lock()
			m.connErr = false
			m.mu.Unlock()
			m.handler.SetupComplete()
		},
	}, {
		name:    "filteredPrompt",
		present: func(msg *lyria.ServerMessage) bool { return msg.FilteredPrompt != nil },
		handle: func(msg *lyria.ServerMessage) {
			m.handler.FilteredPrompt(msg.FilteredPrompt.Text, msg.FilteredPrompt.FilteredReason)
		},
	}, {
		name: "audioChunks",
		present: func(msg *lyria.ServerMessage) bool {
			return msg.ServerContent != nil && len(msg.ServerContent.AudioChunks) > 0
		},
		handle: func(msg *lyria.ServerMessage) {
			for _, chunk := range msg.ServerContent.AudioChunks {
				m.handler.AudioChunk(chunk.Data)
			}
		},
	}}
	return m
}

// Connected reports whether a live session exists.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// ConnectionError reports whether the last connect failed or the last
// session was lost.
func (m *Manager) ConnectionError() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connErr
}

// Connect opens a fresh session. Calling it with a live session is a no-op.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.conn != nil {
		m.mu.Unlock()
		return nil
	}
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	conn, err := m.connector.Connect(ctx, m.model, m.callbacks(gen))

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.connErr = true
		return fmt.Errorf("connect: %w", err)
	}
	if m.gen != gen {
		// Closed while dialing.
		conn.Close()
		return fmt.Errorf("connect: %w", ErrNotConnected)
	}
	m.conn = conn
	m.connErr = false
	m.log.Infof("Session %d connected", gen)
	return nil
}

// Close drops the live session, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.gen++
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (m *Manager) callbacks(gen uint64) lyria.Callbacks {
	return lyria.Callbacks{
		OnMessage: func(msg *lyria.ServerMessage) {
			if m.current(gen) {
				m.dispatch(msg)
			}
		},
		OnError: func(err error) {
			m.lost(gen, err)
		},
		OnClose: func(ev lyria.CloseEvent) {
			if ev.Clean {
				m.dropped(gen)
				return
			}
			m.lost(gen, ev)
		},
	}
}

// current reports whether gen is the newest session. Messages can arrive
// before Connect has returned, so a live conn is not required.
func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen == gen
}

// dispatch runs every route whose part is present in msg.
func (m *Manager) dispatch(msg *lyria.ServerMessage) {
	for _, r := range m.routes {
		if r.present(msg) {
			r.handle(msg)
		}
	}
}

// dropped forgets a cleanly closed session.
func (m *Manager) dropped(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.conn == nil {
		return
	}
	m.conn = nil
	m.gen++
	m.log.Infof("Session %d closed", gen)
}

// lost handles an error or unclean close of the session.
func (m *Manager) lost(gen uint64, err error) {
	m.mu.Lock()
	if m.gen != gen || m.conn == nil {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.conn = nil
	m.gen++
	m.connErr = true
	m.mu.Unlock()

	conn.Close()
	m.log.Errorf("Session %d lost: %v", gen, err)
	m.handler.ConnectionLost(err)
}

func (m *Manager) live() (Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil, ErrNotConnected
	}
	return m.conn, nil
}

// SetWeightedPrompts sends the full weighted prompt set.
func (m *Manager) SetWeightedPrompts(ctx context.Context, prompts []lyria.WeightedPrompt) error {
	conn, err := m.live()
	if err != nil {
		return err
	}
	if err := conn.SetWeightedPrompts(ctx, prompts); err != nil {
		return fmt.Errorf("set weighted prompts: %w", err)
	}
	return nil
}

// SetMusicGenerationConfig sends the full generation config.
func (m *Manager) SetMusicGenerationConfig(ctx context.Context, cfg lyria.GenerationConfig) error {
	conn, err := m.live()
	if err != nil {
		return err
	}
	if err := conn.SetMusicGenerationConfig(ctx, cfg); err != nil {
		return fmt.Errorf("set generation config: %w", err)
	}
	return nil
}

func (m *Manager) Play(ctx context.Context) error {
	return m.command(ctx, "play", Conn.Play)
}

func (m *Manager) Pause(ctx context.Context) error {
	return m.command(ctx, "pause", Conn.Pause)
}

func (m *Manager) Stop(ctx context.Context) error {
	return m.command(ctx, "stop", Conn.Stop)
}

func (m *Manager) ResetContext(ctx context.Context) error {
	return m.command(ctx, "reset context", Conn.ResetContext)
}

func (m *Manager) command(ctx context.Context, name string, fn func(Conn, context.Context) error) error {
	conn, err := m.live()
	if err != nil {
		return err
	}
	if err := fn(conn, ctx); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	m.log.Debugf("Sent %s", name)
	return nil
}
